// Package prompts builds the model prompts used by chat resolution.
package prompts

import (
	"strings"
)

// BuildEntityExtractionPrompt asks the model to list, as a single JSON
// object, the schema object names a question mentions. The question and the
// schema names may be in different languages or scripts.
func BuildEntityExtractionPrompt(query string) string {
	var prompt strings.Builder

	prompt.WriteString("# Schema Entity Extraction\n\n")
	prompt.WriteString("Identify every database table, view, dataset or column name mentioned in the user question below.\n\n")

	prompt.WriteString("## Rules\n\n")
	prompt.WriteString("- The question may be written in any language, and may mix languages and scripts. ")
	prompt.WriteString("Schema names may be in a different language or script than the question.\n")
	prompt.WriteString("- Copy each name exactly as it appears in the question. Do not translate, pluralize, singularize or change letter case.\n")
	prompt.WriteString("- List names in the order they appear. List each name once.\n")
	prompt.WriteString("- If no schema names are mentioned, return an empty object: {}\n\n")

	prompt.WriteString("## Response Format\n\n")
	prompt.WriteString("Return ONLY a single JSON object, with no explanation and no markdown. ")
	prompt.WriteString("Keys are \"item1\", \"item2\", ... in order; values are the names.\n\n")
	prompt.WriteString("Example: {\"item1\": \"employees\", \"item2\": \"department_id\"}\n\n")

	prompt.WriteString("## Question\n\n")
	prompt.WriteString(query)
	prompt.WriteString("\n")

	return prompt.String()
}
