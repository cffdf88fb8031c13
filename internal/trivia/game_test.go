package trivia

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/studyloop/studyloop/internal/ai"
	"github.com/studyloop/studyloop/internal/store"
)

func newGame(t *testing.T, mock *ai.MockProvider) (*Game, *store.Store) {
	t.Helper()
	router := ai.NewRouter(nil)
	router.Register("mock", mock)
	st := store.New(store.NewMemoryKV())
	return NewGame(router, DefaultCatalog(), st), st
}

func TestAskAndAnswer(t *testing.T) {
	mock := ai.NewMockProvider(`{"prompt": "Which country is famous for sushi and Mount Fuji?"}`)
	g, _ := newGame(t, mock)
	ctx := context.Background()

	q, err := g.Ask(ctx, "jp")
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if q.Answer != "Japan" {
		t.Errorf("Answer = %q, want Japan", q.Answer)
	}
	if q.Prompt == "" || q.ID == "" {
		t.Errorf("incomplete question: %+v", q)
	}

	if active, ok := g.Active(ctx); !ok || active.ID != q.ID {
		t.Error("asked question is not the active one")
	}

	out, err := g.Answer(ctx, "  japan ")
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if !out.Correct {
		t.Errorf("case and whitespace variants should match: %+v", out)
	}

	if _, ok := g.Active(ctx); ok {
		t.Error("question still active after it was answered")
	}

	history := g.History(ctx)
	if len(history) != 1 || !history[0].Correct {
		t.Errorf("history = %+v, want one correct attempt", history)
	}
}

func TestAnswer_AliasAndDiacritics(t *testing.T) {
	mock := ai.NewMockProvider(`{"prompt": "Which country hosts the Alhambra?"}`)
	g, _ := newGame(t, mock)
	ctx := context.Background()

	tests := []struct {
		guess   string
		correct bool
	}{
		{"Spain", true},
		{"españa", true}, // alias with diacritics folded away
		{"ESPANA", true},
		{"Portugal", false},
		{"", false},
	}
	for _, tt := range tests {
		if _, err := g.Ask(ctx, "es"); err != nil {
			t.Fatalf("Ask() error = %v", err)
		}
		out, err := g.Answer(ctx, tt.guess)
		if err != nil {
			t.Fatalf("Answer(%q) error = %v", tt.guess, err)
		}
		if out.Correct != tt.correct {
			t.Errorf("Answer(%q).Correct = %v, want %v", tt.guess, out.Correct, tt.correct)
		}
	}

	if got := len(g.History(ctx)); got != len(tests) {
		t.Errorf("history length = %d, want %d", got, len(tests))
	}
}

func TestAnswer_NoActiveQuestion(t *testing.T) {
	g, _ := newGame(t, ai.NewMockProvider(`{"prompt": "x"}`))

	_, err := g.Answer(context.Background(), "France")
	if !errors.Is(err, ErrNoActiveQuestion) {
		t.Fatalf("error = %v, want ErrNoActiveQuestion", err)
	}
}

func TestAsk_UnknownRegion(t *testing.T) {
	g, _ := newGame(t, ai.NewMockProvider(`{"prompt": "x"}`))

	_, err := g.Ask(context.Background(), "atlantis")
	if !errors.Is(err, ErrUnknownRegion) {
		t.Fatalf("error = %v, want ErrUnknownRegion", err)
	}
}

func TestAsk_RandomRegion(t *testing.T) {
	mock := ai.NewMockProvider(`{"prompt": "Name this place."}`)
	g, _ := newGame(t, mock)

	q, err := g.Ask(context.Background(), "")
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if _, ok := DefaultCatalog().Get(q.RegionID); !ok {
		t.Errorf("random question uses unknown region %q", q.RegionID)
	}
}

func TestAsk_BadModelOutput(t *testing.T) {
	g, _ := newGame(t, ai.NewMockProvider(`{"answer": "leaked"}`))

	if _, err := g.Ask(context.Background(), "fr"); err == nil {
		t.Fatal("expected a schema error")
	}
}

func TestStatePersistsAcrossGames(t *testing.T) {
	mock := ai.NewMockProvider(`{"prompt": "Which country has the maple leaf flag?"}`)
	router := ai.NewRouter(nil)
	router.Register("mock", mock)
	st := store.New(store.NewMemoryKV())
	ctx := context.Background()

	first := NewGame(router, DefaultCatalog(), st)
	if _, err := first.Ask(ctx, "ca"); err != nil {
		t.Fatalf("Ask() error = %v", err)
	}

	second := NewGame(router, DefaultCatalog(), st)
	if _, ok := second.Active(ctx); !ok {
		t.Fatal("active question did not survive a restart")
	}
	out, err := second.Answer(ctx, "Canada")
	if err != nil || !out.Correct {
		t.Fatalf("Answer() = %+v, %v", out, err)
	}
	if got := len(second.History(ctx)); got != 1 {
		t.Errorf("history length = %d, want 1", got)
	}
}

func TestNormalizeAnswer(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"  France  ", "france"},
		{"ESPAÑA", "espana"},
		{"São Tomé", "sao tome"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := normalizeAnswer(tt.in); got != tt.want {
			t.Errorf("normalizeAnswer(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNewCatalog(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "regions.yaml")
	yaml := `regions:
  - id: fr
    name: France
    continent: Europe
  - id: de
    name: Germany
    continent: Europe
    aliases: ["Deutschland"]
  - id: ""
    name: Nameless
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := NewCatalog(path)
	if err != nil {
		t.Fatalf("NewCatalog() error = %v", err)
	}
	if c.Len() != 2 {
		t.Errorf("Len() = %d, want 2 (entry without id skipped)", c.Len())
	}
	de, ok := c.Get("de")
	if !ok || len(de.Aliases) != 1 {
		t.Errorf("Get(de) = %+v, %v", de, ok)
	}

	if _, err := NewCatalog(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected an error for a missing catalog file")
	}
}

func TestNewCatalog_EmptyPathUsesDefault(t *testing.T) {
	c, err := NewCatalog("")
	if err != nil {
		t.Fatalf("NewCatalog(\"\") error = %v", err)
	}
	if c.Len() == 0 {
		t.Error("default catalog is empty")
	}
}
