package document

import (
	"errors"
	"strings"
	"testing"
)

func TestUpdateQuestionFieldAnswer(t *testing.T) {
	result := ParseQuestions(azureDoc)
	q := result.Questions[0]

	updated, err := UpdateQuestionField(q, FieldAnswer, "A logical container for Azure resources")
	if err != nil {
		t.Fatalf("UpdateQuestionField: %v", err)
	}
	if updated.AnswerText != "A logical container for Azure resources" {
		t.Errorf("AnswerText = %q", updated.AnswerText)
	}
	if !strings.Contains(updated.FullMarkup, "<p><strong>A logical container for Azure resources</strong></p>") {
		t.Errorf("answer paragraph not rewritten in place:\n%s", updated.FullMarkup)
	}
	// Header is out of the replacement range even when it shares text.
	if !strings.Contains(updated.FullMarkup, "<strong>1: What is an Azure Resource Group?</strong>") {
		t.Errorf("header damaged:\n%s", updated.FullMarkup)
	}
}

func TestUpdateQuestionFieldQuestion(t *testing.T) {
	result := ParseQuestions(azureDoc)
	q := result.Questions[1]

	updated, err := UpdateQuestionField(q, FieldQuestion, "Which Azure service is serverless?")
	if err != nil {
		t.Fatalf("UpdateQuestionField: %v", err)
	}
	if !strings.Contains(updated.FullMarkup, "<strong>2: Which Azure service is serverless?</strong>") {
		t.Errorf("header text not rewritten:\n%s", updated.FullMarkup)
	}
	// The answer paragraph is untouched.
	if !strings.Contains(updated.FullMarkup, "Answer: Azure Functions") {
		t.Errorf("answer damaged:\n%s", updated.FullMarkup)
	}
}

func TestUpdateQuestionFieldMissingAnswer(t *testing.T) {
	result := ParseQuestions(azureDoc)
	q := result.Questions[2] // no marked answer

	_, err := UpdateQuestionField(q, FieldAnswer, "It connects virtual networks")
	if !errors.Is(err, ErrFieldNotFound) {
		t.Fatalf("err = %v, want ErrFieldNotFound", err)
	}
}

func TestUpdateQuestionFieldFullQuestion(t *testing.T) {
	result := ParseQuestions(azureDoc)
	newBlock := `<p><strong>3: What does VNet peering do?</strong></p><p><strong>It connects two virtual networks</strong></p>`

	updated, err := UpdateQuestionField(result.Questions[2], FieldFullQuestion, newBlock)
	if err != nil {
		t.Fatalf("UpdateQuestionField: %v", err)
	}
	if updated.FullMarkup != newBlock {
		t.Errorf("FullMarkup not replaced")
	}
	if updated.AnswerText != "It connects two virtual networks" {
		t.Errorf("AnswerText = %q, reparse did not run", updated.AnswerText)
	}
}

func TestUpdateQuestionFieldUnknown(t *testing.T) {
	result := ParseQuestions(azureDoc)
	if _, err := UpdateQuestionField(result.Questions[0], "choices", "x"); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestRenumberQuestions(t *testing.T) {
	markup := `<p><strong>1: First?</strong></p><p><strong>5: Second?</strong></p><h2><b>2) Third?</b></h2>`
	result := ParseQuestions(markup)

	renumbered := RenumberQuestions(result.Questions)
	for i, q := range renumbered {
		if q.Number != i+1 {
			t.Errorf("q[%d].Number = %d, want %d", i, q.Number, i+1)
		}
	}
	if !strings.Contains(renumbered[1].FullMarkup, "<strong>2: Second?</strong>") {
		t.Errorf("numeral not rewritten: %s", renumbered[1].FullMarkup)
	}
	if !strings.Contains(renumbered[2].FullMarkup, "<b>3) Third?</b>") {
		t.Errorf("numeral not rewritten: %s", renumbered[2].FullMarkup)
	}
	// Question text is preserved verbatim.
	if renumbered[1].QuestionText != "Second?" {
		t.Errorf("QuestionText = %q", renumbered[1].QuestionText)
	}
}

func TestRenumberQuestionsAlreadyCorrect(t *testing.T) {
	markup := `<p><strong>1: A?</strong></p><p><strong>2: B?</strong></p>`
	result := ParseQuestions(markup)

	renumbered := RenumberQuestions(result.Questions)
	for i, q := range renumbered {
		if q.FullMarkup != result.Questions[i].FullMarkup {
			t.Errorf("block %d rewritten despite correct numbering", i+1)
		}
	}
}

func TestRebuildDocumentAfterEdit(t *testing.T) {
	result := ParseQuestions(azureDoc)
	updated, err := UpdateQuestionField(result.Questions[1], FieldAnswer, "Azure Container Apps")
	if err != nil {
		t.Fatalf("UpdateQuestionField: %v", err)
	}

	blocks := append([]ParsedQuestion(nil), result.Questions...)
	blocks[1] = updated
	rebuilt := RebuildDocument(azureDoc, result, blocks)

	if !strings.Contains(rebuilt, "Answer: Azure Container Apps") {
		t.Error("edit not present in rebuilt document")
	}
	if !strings.HasPrefix(rebuilt, result.Preamble) {
		t.Error("preamble lost")
	}
	// Untouched blocks survive byte-for-byte.
	if !strings.Contains(rebuilt, result.Questions[0].FullMarkup) {
		t.Error("untouched first block changed")
	}
}

func TestRebuildDocumentNoBlocks(t *testing.T) {
	markup := "<p>plain prose</p>"
	result := ParseQuestions(markup)
	if got := RebuildDocument(markup, result, nil); got != markup {
		t.Errorf("RebuildDocument = %q, want original", got)
	}
}
