package prompt

import (
	"fmt"
	"strings"

	"qa-guru-be/pkg/store"
)

// Selection describes the host editor's current user selection. When present
// the model is steered to edit only the selected region.
type Selection struct {
	Text          string `json:"text"`
	Markup        string `json:"markup"`
	StartLine     int    `json:"start_line"`
	EndLine       int    `json:"end_line"`
	ContextBefore string `json:"context_before,omitempty"`
	ContextAfter  string `json:"context_after,omitempty"`
}

// Template is an opaque markup template descriptor from the template store.
// It only informs prompt construction; the core never interprets it.
type Template struct {
	QuestionType   string `json:"question_type"`
	MarkupTemplate string `json:"markup_template"`
}

// Builder assembles the system instruction for one turn.
type Builder struct {
	attachments []store.DocumentAttachment
	selection   *Selection
	templates   []Template
}

func NewBuilder(attachments []store.DocumentAttachment, selection *Selection, templates []Template) *Builder {
	return &Builder{
		attachments: attachments,
		selection:   selection,
		templates:   templates,
	}
}

// Build creates the full system instruction: role, editing rules, reference
// material, templates and the active selection.
func (b *Builder) Build() string {
	var prompt strings.Builder

	b.writeRole(&prompt)
	b.writeEditingRules(&prompt)
	b.writeReferenceMaterial(&prompt)
	b.writeTemplates(&prompt)
	b.writeSelection(&prompt)

	return prompt.String()
}

// StaticPrefix is the cacheable portion of the prompt: everything that does
// not change between turns of the same session (role, rules, reference
// documents). Selection is per-turn and excluded.
func (b *Builder) StaticPrefix() string {
	var prompt strings.Builder
	b.writeRole(&prompt)
	b.writeEditingRules(&prompt)
	b.writeReferenceMaterial(&prompt)
	b.writeTemplates(&prompt)
	return prompt.String()
}

func (b *Builder) writeRole(prompt *strings.Builder) {
	prompt.WriteString("<task>\n")
	prompt.WriteString("You are an expert assistant helping the user inspect and edit a structured question-and-answer document.\n")
	prompt.WriteString("The document is HTML markup containing numbered question blocks, each with a bolded header, an answer, and optionally choices and a reference line.\n")
	prompt.WriteString("</task>\n\n")
}

func (b *Builder) writeEditingRules(prompt *strings.Builder) {
	prompt.WriteString("<editing_rules>\n")
	prompt.WriteString("To change the document you MUST call the edit_document tool; never paste modified markup into your text reply.\n")
	prompt.WriteString("Use read_document first when you are unsure of the current document structure.\n")
	prompt.WriteString("Pick the narrowest edit type that does the job:\n")
	prompt.WriteString("- edit_question: change one field (question, answer, reference, full_question) of a numbered question\n")
	prompt.WriteString("- add_questions: insert new question blocks at a position\n")
	prompt.WriteString("- delete_question: remove one numbered question\n")
	prompt.WriteString("- edit_section: rewrite a contiguous markup region\n")
	prompt.WriteString("- snippet_replace: replace an exact markup snippet with new markup\n")
	prompt.WriteString("- full_replace: replace the whole document (last resort)\n")
	prompt.WriteString("For snippet_replace, copy the snippet to replace VERBATIM from the document markup.\n")
	prompt.WriteString("Always include a short plain-language instruction describing the intent of the edit.\n")
	prompt.WriteString("When you are done editing, reply with plain text only and no further tool calls.\n")
	prompt.WriteString("</editing_rules>\n\n")
}

func (b *Builder) writeReferenceMaterial(prompt *strings.Builder) {
	wroteHeader := false
	for _, doc := range b.attachments {
		if doc.Native || doc.Text == "" {
			continue
		}
		if !wroteHeader {
			prompt.WriteString("<reference_material>\n")
			wroteHeader = true
		}
		fmt.Fprintf(prompt, "--- %s ---\n%s\n", doc.Name, doc.Text)
	}
	if wroteHeader {
		prompt.WriteString("</reference_material>\n\n")
	}
}

func (b *Builder) writeTemplates(prompt *strings.Builder) {
	if len(b.templates) == 0 {
		return
	}
	prompt.WriteString("<question_templates>\n")
	prompt.WriteString("When adding questions, follow the matching markup template:\n")
	for _, t := range b.templates {
		fmt.Fprintf(prompt, "[%s]\n%s\n", t.QuestionType, t.MarkupTemplate)
	}
	prompt.WriteString("</question_templates>\n\n")
}

func (b *Builder) writeSelection(prompt *strings.Builder) {
	if b.selection == nil {
		return
	}
	prompt.WriteString("<user_selection>\n")
	fmt.Fprintf(prompt, "The user has selected lines %d-%d of the document. Scope your edits to this selection unless asked otherwise.\n",
		b.selection.StartLine, b.selection.EndLine)
	fmt.Fprintf(prompt, "Selected markup:\n%s\n", b.selection.Markup)
	if b.selection.ContextBefore != "" {
		fmt.Fprintf(prompt, "Context before:\n%s\n", b.selection.ContextBefore)
	}
	if b.selection.ContextAfter != "" {
		fmt.Fprintf(prompt, "Context after:\n%s\n", b.selection.ContextAfter)
	}
	prompt.WriteString("</user_selection>\n\n")
}
