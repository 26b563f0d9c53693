package export

import (
	"fmt"
	"strings"
)

const mermaidClassDefs = `classDef datasetNode fill:#d9d2e9,stroke:#8e7cc3,stroke-width:2px,font-size:14px,text-align:center;
classDef viewNode fill:#fff2cc,stroke:#f1c232,stroke-width:2px,font-size:14px,text-align:center;
classDef tableNode fill:#d7e9f7,stroke:#3c78d8,stroke-width:2px,font-size:14px,text-align:center;
classDef fieldNode fill:#fff2cc,stroke:#f1c232,stroke-width:1px,font-size:12px,text-align:left;
`

// RenderMermaid writes the hierarchy as a Mermaid top-down flowchart.
func RenderMermaid(h *Hierarchy) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")
	sb.WriteString(mermaidClassDefs)
	sb.WriteString("\n")

	ids := make(map[string]string)
	for i, n := range h.Nodes() {
		id := fmt.Sprintf("n%d", i)
		ids[n.ID] = id
		fmt.Fprintf(&sb, "    %s[\"%s\"]:::%sNode\n", id, mermaidEscape(n.Label), n.Kind)
	}
	if len(h.Edges) > 0 {
		sb.WriteString("\n")
	}
	for _, e := range h.Edges {
		fmt.Fprintf(&sb, "    %s --> %s\n", ids[e.From], ids[e.To])
	}
	return sb.String()
}

// mermaidEscape replaces characters that would end a quoted label.
func mermaidEscape(s string) string {
	return strings.NewReplacer(`"`, "#quot;", "\n", " ").Replace(s)
}
