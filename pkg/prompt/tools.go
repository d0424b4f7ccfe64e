package prompt

import "qa-guru-be/pkg/llm"

// ToolDecls is the tool contract the provider is told about.
func ToolDecls() []llm.ToolDecl {
	return []llm.ToolDecl{
		{
			Name:        "edit_document",
			Description: "Apply one edit to the question document. Pick the narrowest edit_type that accomplishes the change.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"edit_type": map[string]interface{}{
						"type":        "string",
						"enum":        []string{"edit_question", "add_questions", "delete_question", "edit_section", "snippet_replace", "full_replace"},
						"description": "Which edit variant to apply. May be omitted when the populated fields make it unambiguous.",
					},
					"question_number": map[string]interface{}{
						"type":        "integer",
						"description": "1-based question number (edit_question, delete_question).",
					},
					"field": map[string]interface{}{
						"type":        "string",
						"enum":        []string{"question", "answer", "reference", "full_question"},
						"description": "Which field of the question to change (edit_question).",
					},
					"new_content": map[string]interface{}{
						"type":        "string",
						"description": "New content for the targeted field, or the new question blocks markup (add_questions).",
					},
					"position": map[string]interface{}{
						"type":        "string",
						"description": "Where to insert new questions: 'start', 'end', or a question number to insert after (add_questions).",
					},
					"full_document_html": map[string]interface{}{
						"type":        "string",
						"description": "Complete replacement document markup (full_replace).",
					},
					"html_snippet_to_replace": map[string]interface{}{
						"type":        "string",
						"description": "Verbatim markup snippet to locate (snippet_replace, edit_section).",
					},
					"replacement_html": map[string]interface{}{
						"type":        "string",
						"description": "Markup that replaces the located snippet (snippet_replace, edit_section).",
					},
					"instruction": map[string]interface{}{
						"type":        "string",
						"description": "Short plain-language description of the edit's intent. Required for reliable matching recovery.",
					},
				},
			},
		},
		{
			Name:        "read_document",
			Description: "Read a structural summary of the current document (question numbers, texts, answered state). Mutates nothing.",
			Parameters: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
	}
}
