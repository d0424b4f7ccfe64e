package promptcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"qa-guru-be/pkg/llm"

	"github.com/patrickmn/go-cache"
)

// Entry is one live server-side cache reference. At most one entry exists per
// service instance; superseded entries are deleted best-effort.
type Entry struct {
	ID          string    `json:"id"`
	Fingerprint string    `json:"fingerprint"`
	CreatedAt   time.Time `json:"created_at"`
}

// Backend creates and deletes server-side cached prompt prefixes. The direct
// provider implements this; backends without caching are never handed to a
// Service (the agent loop checks SupportsCaching first).
type Backend interface {
	CreateCachedContent(ctx context.Context, model, systemInstruction string, contents []llm.Content, tools []llm.ToolDecl, ttl time.Duration) (string, error)
	DeleteCachedContent(ctx context.Context, name string) error
}

const activeEntryKey = "active"

// Service owns the single live cache entry for a session. It is injected into
// the agent loop rather than imported as ambient state, so it can be tested
// in isolation.
type Service struct {
	backend Backend
	ttl     time.Duration
	store   *cache.Cache
	logger  *log.Logger
}

// NewService creates a cache service. Entries expire locally on the same TTL
// the backend is asked for, so a stale reference is never reused.
func NewService(backend Backend, ttl time.Duration, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		backend: backend,
		ttl:     ttl,
		store:   cache.New(ttl, 10*time.Minute),
		logger:  logger,
	}
}

// Fingerprint hashes the cacheable prompt content. Any changed part yields a
// new fingerprint and supersedes the live entry.
func Fingerprint(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Active returns the live entry, if any.
func (s *Service) Active() (*Entry, bool) {
	if x, found := s.store.Get(activeEntryKey); found {
		return x.(*Entry), true
	}
	return nil, false
}

// Ensure returns a cache entry for the given static prompt content, reusing
// the live entry when the fingerprint matches and creating (and publishing) a
// new one otherwise. The superseded entry is invalidated best-effort before
// the new fingerprint is published; a failed delete is a leak, not an error.
func (s *Service) Ensure(ctx context.Context, model, systemInstruction string, contents []llm.Content, tools []llm.ToolDecl) (*Entry, error) {
	parts := []string{model, systemInstruction}
	for _, c := range contents {
		parts = append(parts, llm.JoinText(c))
	}
	for _, t := range tools {
		schema, err := json.Marshal(t.Parameters)
		if err != nil {
			return nil, fmt.Errorf("failed to serialize tool schema for %s: %w", t.Name, err)
		}
		parts = append(parts, t.Name, t.Description, string(schema))
	}
	fingerprint := Fingerprint(parts...)

	if current, found := s.Active(); found && current.Fingerprint == fingerprint {
		return current, nil
	}

	id, err := s.backend.CreateCachedContent(ctx, model, systemInstruction, contents, tools, s.ttl)
	if err != nil {
		return nil, fmt.Errorf("failed to create cached content: %w", err)
	}

	if previous, found := s.Active(); found {
		if delErr := s.backend.DeleteCachedContent(ctx, previous.ID); delErr != nil {
			s.logger.Printf("[CACHE] failed to delete superseded entry %s: %v", previous.ID, delErr)
		}
	}

	entry := &Entry{
		ID:          id,
		Fingerprint: fingerprint,
		CreatedAt:   time.Now(),
	}
	s.store.Set(activeEntryKey, entry, cache.DefaultExpiration)
	return entry, nil
}

// Invalidate removes the live entry, best-effort deleting it server-side.
func (s *Service) Invalidate(ctx context.Context) {
	if current, found := s.Active(); found {
		if err := s.backend.DeleteCachedContent(ctx, current.ID); err != nil {
			s.logger.Printf("[CACHE] failed to delete entry %s: %v", current.ID, err)
		}
	}
	s.store.Delete(activeEntryKey)
}
