// Package store persists the application's client-side state: the course
// collection plus small auxiliary records (theme preference, trivia
// blobs). Persistence is a cache of the in-memory truth, so loads never
// fail to the caller (corrupt or foreign data is discarded wholesale)
// and saves are best-effort, logged on failure.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/studyloop/studyloop/internal/course"
)

const (
	keyCourses = "courses"
	keyTheme   = "theme"
)

// ErrNotFound is returned by a KV backend when a key has never been set.
var ErrNotFound = errors.New("key not found")

// KV is one keyed persistence backend (file, memory, redis, postgres).
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Store wraps a KV backend with the load/save contract the rest of the
// application relies on.
type Store struct {
	kv KV
}

// New creates a store over the given backend.
func New(kv KV) *Store {
	return &Store{kv: kv}
}

// LoadCourses returns the persisted course collection, or an empty
// collection when nothing was saved or the data is structurally invalid.
func (s *Store) LoadCourses(ctx context.Context) []course.Course {
	data, err := s.kv.Get(ctx, keyCourses)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			slog.Warn("course load failed, starting empty", "error", err)
		}
		return nil
	}

	var courses []course.Course
	if err := json.Unmarshal(data, &courses); err != nil {
		slog.Warn("discarding corrupt course data", "error", err)
		return nil
	}
	return courses
}

// SaveCourses persists the whole course collection. Failures are logged,
// not surfaced; the session keeps operating on in-memory state.
func (s *Store) SaveCourses(ctx context.Context, courses []course.Course) {
	if courses == nil {
		courses = []course.Course{}
	}
	data, err := json.Marshal(courses)
	if err != nil {
		slog.Error("course marshal failed", "error", err)
		return
	}
	if err := s.kv.Set(ctx, keyCourses, data); err != nil {
		slog.Warn("course save failed, continuing in memory", "error", err)
	}
}

// LoadTheme returns the persisted theme flag, or "" when unset.
func (s *Store) LoadTheme(ctx context.Context) string {
	data, err := s.kv.Get(ctx, keyTheme)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			slog.Warn("theme load failed", "error", err)
		}
		return ""
	}
	return string(data)
}

// SaveTheme persists the theme flag.
func (s *Store) SaveTheme(ctx context.Context, theme string) {
	if err := s.kv.Set(ctx, keyTheme, []byte(theme)); err != nil {
		slog.Warn("theme save failed", "error", err)
	}
}

// LoadRaw returns an auxiliary record (trivia history, in-progress map
// quiz) by key, or nil when unset or unreadable.
func (s *Store) LoadRaw(ctx context.Context, key string) []byte {
	data, err := s.kv.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			slog.Warn("raw load failed", "key", key, "error", err)
		}
		return nil
	}
	return data
}

// SaveRaw persists an auxiliary record by key.
func (s *Store) SaveRaw(ctx context.Context, key string, data []byte) {
	if err := s.kv.Set(ctx, key, data); err != nil {
		slog.Warn("raw save failed", "key", key, "error", err)
	}
}

// MemoryKV is an in-memory backend for tests and ephemeral sessions.
type MemoryKV struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryKV creates an empty in-memory backend.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: make(map[string][]byte)}
}

func (m *MemoryKV) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *MemoryKV) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data[key] = append([]byte(nil), value...)
	return nil
}
