package promptcache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"testing"
	"time"

	"qa-guru-be/pkg/llm"
)

type fakeBackend struct {
	created   int
	deleted   []string
	createErr error
	deleteErr error
}

func (f *fakeBackend) CreateCachedContent(ctx context.Context, model, system string, contents []llm.Content, tools []llm.ToolDecl, ttl time.Duration) (string, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	f.created++
	return fmt.Sprintf("cachedContents/entry-%d", f.created), nil
}

func (f *fakeBackend) DeleteCachedContent(ctx context.Context, name string) error {
	f.deleted = append(f.deleted, name)
	return f.deleteErr
}

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func TestFingerprintStable(t *testing.T) {
	a := Fingerprint("model", "system", "doc")
	b := Fingerprint("model", "system", "doc")
	if a != b {
		t.Error("identical parts must hash identically")
	}
	if a == Fingerprint("model", "system", "doc2") {
		t.Error("changed part must change the fingerprint")
	}
	// Part boundaries matter: "ab"+"c" is not "a"+"bc".
	if Fingerprint("ab", "c") == Fingerprint("a", "bc") {
		t.Error("fingerprint must separate parts")
	}
}

func TestEnsureReusesMatchingEntry(t *testing.T) {
	backend := &fakeBackend{}
	svc := NewService(backend, time.Hour, quietLogger())
	ctx := context.Background()

	first, err := svc.Ensure(ctx, "gemini-2.0-flash", "system", []llm.Content{llm.UserText("doc")}, nil)
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	second, err := svc.Ensure(ctx, "gemini-2.0-flash", "system", []llm.Content{llm.UserText("doc")}, nil)
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}

	if backend.created != 1 {
		t.Errorf("backend.created = %d, want 1", backend.created)
	}
	if first.ID != second.ID {
		t.Errorf("entry not reused: %s vs %s", first.ID, second.ID)
	}
	if len(backend.deleted) != 0 {
		t.Errorf("nothing should be deleted on reuse, got %v", backend.deleted)
	}
}

func TestEnsureSupersedesOnChange(t *testing.T) {
	backend := &fakeBackend{}
	svc := NewService(backend, time.Hour, quietLogger())
	ctx := context.Background()

	first, err := svc.Ensure(ctx, "m", "system", []llm.Content{llm.UserText("doc v1")}, nil)
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	second, err := svc.Ensure(ctx, "m", "system", []llm.Content{llm.UserText("doc v2")}, nil)
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}

	if backend.created != 2 {
		t.Errorf("backend.created = %d, want 2", backend.created)
	}
	if first.ID == second.ID {
		t.Error("changed content must produce a new entry")
	}
	if len(backend.deleted) != 1 || backend.deleted[0] != first.ID {
		t.Errorf("superseded entry not deleted, got %v", backend.deleted)
	}
	if active, found := svc.Active(); !found || active.ID != second.ID {
		t.Errorf("active entry = %+v", active)
	}
}

func TestEnsureSupersedesOnToolSchemaChange(t *testing.T) {
	backend := &fakeBackend{}
	svc := NewService(backend, time.Hour, quietLogger())
	ctx := context.Background()

	toolsV1 := []llm.ToolDecl{{
		Name:        "edit_document",
		Description: "Apply one edit.",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"new_content": map[string]interface{}{"type": "string"},
			},
		},
	}}
	// Same name and description, different parameter schema.
	toolsV2 := []llm.ToolDecl{{
		Name:        "edit_document",
		Description: "Apply one edit.",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"new_content": map[string]interface{}{"type": "string"},
				"position":    map[string]interface{}{"type": "string"},
			},
		},
	}}

	first, err := svc.Ensure(ctx, "m", "system", []llm.Content{llm.UserText("doc")}, toolsV1)
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	second, err := svc.Ensure(ctx, "m", "system", []llm.Content{llm.UserText("doc")}, toolsV2)
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}

	if backend.created != 2 {
		t.Errorf("backend.created = %d, want 2", backend.created)
	}
	if first.ID == second.ID {
		t.Error("schema change must supersede the entry")
	}
	if len(backend.deleted) != 1 || backend.deleted[0] != first.ID {
		t.Errorf("superseded entry not deleted, got %v", backend.deleted)
	}
}

func TestEnsureDeleteFailureIsNotFatal(t *testing.T) {
	backend := &fakeBackend{deleteErr: errors.New("404 not found")}
	svc := NewService(backend, time.Hour, quietLogger())
	ctx := context.Background()

	if _, err := svc.Ensure(ctx, "m", "s", []llm.Content{llm.UserText("v1")}, nil); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	entry, err := svc.Ensure(ctx, "m", "s", []llm.Content{llm.UserText("v2")}, nil)
	if err != nil {
		t.Fatalf("delete failure must not fail Ensure: %v", err)
	}
	if entry == nil || entry.ID == "" {
		t.Error("new entry must still be published")
	}
}

func TestEnsureCreateError(t *testing.T) {
	backend := &fakeBackend{createErr: errors.New("quota exhausted")}
	svc := NewService(backend, time.Hour, quietLogger())

	_, err := svc.Ensure(context.Background(), "m", "s", []llm.Content{llm.UserText("doc")}, nil)
	if err == nil {
		t.Fatal("expected create error to propagate")
	}
	if _, found := svc.Active(); found {
		t.Error("failed create must not publish an entry")
	}
}

func TestInvalidate(t *testing.T) {
	backend := &fakeBackend{}
	svc := NewService(backend, time.Hour, quietLogger())
	ctx := context.Background()

	entry, err := svc.Ensure(ctx, "m", "s", []llm.Content{llm.UserText("doc")}, nil)
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}

	svc.Invalidate(ctx)

	if _, found := svc.Active(); found {
		t.Error("entry must be gone after Invalidate")
	}
	if len(backend.deleted) != 1 || backend.deleted[0] != entry.ID {
		t.Errorf("server-side entry not deleted, got %v", backend.deleted)
	}
}
