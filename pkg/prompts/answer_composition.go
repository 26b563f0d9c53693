package prompts

import (
	"fmt"
	"strings"
)

// RelationContext is one entity directly related to a matched entity.
type RelationContext struct {
	Relation     string // child, parent, field or owner
	Kind         string
	PhysicalName string
	LogicalName  string
}

// EntityContext describes a matched schema object or field and its
// immediate relations.
type EntityContext struct {
	Kind         string // table, view, dataset or field
	PhysicalName string
	LogicalName  string
	// Owner is "kind:name" of the owning object for fields.
	Owner     string
	Relations []RelationContext
}

const noContextNotice = "No schema objects in the knowledge graph matched this question."

// BuildAnswerPrompt embeds the question and the resolved schema context.
// Every matched entity gets its header while the header fits in
// maxContextBytes, and the first one always does. Relation lines are added
// until the budget runs out and the rest are counted. maxContextBytes <= 0
// means unbounded.
func BuildAnswerPrompt(query string, entities []EntityContext, maxContextBytes int) string {
	var prompt strings.Builder

	prompt.WriteString("# Schema Question\n\n")
	prompt.WriteString("Answer the user's question about the database schema using only the knowledge graph context below. ")
	prompt.WriteString("If the context does not contain the answer, say that no related information was found. ")
	prompt.WriteString("Answer in the same language as the question.\n\n")

	prompt.WriteString("## Knowledge Graph Context\n\n")
	prompt.WriteString(formatContext(entities, maxContextBytes))
	prompt.WriteString("\n")

	prompt.WriteString("## Question\n\n")
	prompt.WriteString(query)
	prompt.WriteString("\n")

	return prompt.String()
}

func formatContext(entities []EntityContext, maxBytes int) string {
	if len(entities) == 0 {
		return noContextNotice + "\n"
	}

	var ctx strings.Builder
	included := 0
	for _, e := range entities {
		header := formatHeader(e)
		// The first matched entity is always named, even when its header
		// alone exceeds the budget.
		if included > 0 && maxBytes > 0 && ctx.Len()+len(header) > maxBytes {
			break
		}
		ctx.WriteString(header)
		writeRelations(&ctx, e.Relations, maxBytes)
		ctx.WriteString("\n")
		included++
	}

	if omitted := len(entities) - included; omitted > 0 {
		ctx.WriteString(fmt.Sprintf("(%d more matched entities omitted)\n", omitted))
	}
	return ctx.String()
}

func formatHeader(e EntityContext) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("### %s %s", e.Kind, e.PhysicalName))
	if e.LogicalName != "" {
		b.WriteString(fmt.Sprintf(" (logical name: %s)", e.LogicalName))
	}
	b.WriteString("\n")
	if e.Owner != "" {
		b.WriteString(fmt.Sprintf("- belongs to: %s\n", e.Owner))
	}
	return b.String()
}

// writeRelations appends relation lines while they fit in maxBytes and notes
// how many were left out.
func writeRelations(b *strings.Builder, relations []RelationContext, maxBytes int) {
	written := 0
	for _, r := range relations {
		line := formatRelation(r)
		if maxBytes > 0 && b.Len()+len(line) > maxBytes {
			break
		}
		b.WriteString(line)
		written++
	}
	if omitted := len(relations) - written; omitted > 0 {
		b.WriteString(fmt.Sprintf("- (%d more relations omitted)\n", omitted))
	}
}

func formatRelation(r RelationContext) string {
	line := fmt.Sprintf("- %s: %s %s", r.Relation, r.Kind, r.PhysicalName)
	if r.LogicalName != "" {
		line += fmt.Sprintf(" (%s)", r.LogicalName)
	}
	return line + "\n"
}
