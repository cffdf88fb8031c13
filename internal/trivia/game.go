package trivia

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/xeipuuv/gojsonschema"
	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/studyloop/studyloop/internal/ai"
	"github.com/studyloop/studyloop/internal/store"
)

const (
	activeKey  = "trivia:active"
	historyKey = "trivia:history"
)

var (
	ErrUnknownRegion    = errors.New("unknown region")
	ErrNoActiveQuestion = errors.New("no trivia question in progress")
)

// The model writes the clue; the expected answer always comes from the
// catalog so a hallucinated answer cannot mark correct guesses wrong.
var promptSchema = map[string]any{
	"type":                 "object",
	"additionalProperties": false,
	"required":             []string{"prompt"},
	"properties": map[string]any{
		"prompt": map[string]any{"type": "string", "minLength": 1},
	},
}

// Game runs the map-trivia side mode. One question is active at a
// time, persisted outside the course data under its own keys.
type Game struct {
	router  *ai.Router
	catalog *Catalog
	store   *store.Store

	mu sync.Mutex
}

func NewGame(router *ai.Router, catalog *Catalog, st *store.Store) *Game {
	return &Game{router: router, catalog: catalog, store: st}
}

// Ask generates a question for the given region, or a random one when
// regionID is empty, and makes it the active question.
func (g *Game) Ask(ctx context.Context, regionID string) (Question, error) {
	region, err := g.pickRegion(regionID)
	if err != nil {
		return Question{}, err
	}

	prompt := fmt.Sprintf(
		"Write one short trivia question about %s (%s) whose answer is the name of that country or region. "+
			"Never include the name itself in the question. Use a notable geographic, cultural, or historical fact.",
		region.Name, region.Continent,
	)

	resp, err := g.router.Complete(ctx, ai.CompletionRequest{
		Messages:       []ai.Message{{Role: "user", Content: prompt}},
		Task:           ai.TaskTrivia,
		MaxTokens:      256,
		ResponseSchema: promptSchema,
	})
	if err != nil {
		return Question{}, fmt.Errorf("trivia question: %w", err)
	}

	var out struct {
		Prompt string `json:"prompt"`
	}
	if err := decodePrompt(resp.Content, &out); err != nil {
		return Question{}, fmt.Errorf("trivia question: %w", err)
	}

	q := Question{
		ID:       uuid.NewString(),
		RegionID: region.ID,
		Region:   region.Name,
		Prompt:   out.Prompt,
		Answer:   region.Name,
		AskedAt:  time.Now(),
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.saveActive(ctx, &q)
	return q, nil
}

// Answer checks the guess against the active question, appends the
// attempt to the history, and closes the question.
func (g *Game) Answer(ctx context.Context, given string) (Outcome, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	q, ok := g.loadActive(ctx)
	if !ok {
		return Outcome{}, ErrNoActiveQuestion
	}

	region, _ := g.catalog.Get(q.RegionID)
	correct := matches(given, q.Answer, region.Aliases)

	history := g.loadHistory(ctx)
	history = append(history, Attempt{
		RegionID: q.RegionID,
		Prompt:   q.Prompt,
		Given:    given,
		Expected: q.Answer,
		Correct:  correct,
		AskedAt:  q.AskedAt,
	})
	g.saveHistory(ctx, history)
	g.saveActive(ctx, nil)

	return Outcome{Correct: correct, Expected: q.Answer, Given: given}, nil
}

// Active returns the question in progress, if any.
func (g *Game) Active(ctx context.Context) (Question, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.loadActive(ctx)
}

// History returns all answered questions, oldest first.
func (g *Game) History(ctx context.Context) []Attempt {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.loadHistory(ctx)
}

// Regions exposes the playable catalog.
func (g *Game) Regions() []Region {
	return g.catalog.All()
}

func (g *Game) pickRegion(regionID string) (Region, error) {
	if regionID != "" {
		region, ok := g.catalog.Get(regionID)
		if !ok {
			return Region{}, fmt.Errorf("%w: %s", ErrUnknownRegion, regionID)
		}
		return region, nil
	}
	all := g.catalog.All()
	if len(all) == 0 {
		return Region{}, ErrUnknownRegion
	}
	return all[rand.IntN(len(all))], nil
}

func (g *Game) loadActive(ctx context.Context) (Question, bool) {
	data := g.store.LoadRaw(ctx, activeKey)
	if len(data) == 0 {
		return Question{}, false
	}
	var q Question
	if err := json.Unmarshal(data, &q); err != nil {
		slog.Warn("discarding corrupt active trivia question", "error", err)
		return Question{}, false
	}
	return q, true
}

func (g *Game) saveActive(ctx context.Context, q *Question) {
	if q == nil {
		g.store.SaveRaw(ctx, activeKey, []byte{})
		return
	}
	data, err := json.Marshal(q)
	if err != nil {
		slog.Warn("failed to encode active trivia question", "error", err)
		return
	}
	g.store.SaveRaw(ctx, activeKey, data)
}

func (g *Game) loadHistory(ctx context.Context) []Attempt {
	data := g.store.LoadRaw(ctx, historyKey)
	if len(data) == 0 {
		return nil
	}
	var history []Attempt
	if err := json.Unmarshal(data, &history); err != nil {
		slog.Warn("discarding corrupt trivia history", "error", err)
		return nil
	}
	return history
}

func (g *Game) saveHistory(ctx context.Context, history []Attempt) {
	data, err := json.Marshal(history)
	if err != nil {
		slog.Warn("failed to encode trivia history", "error", err)
		return
	}
	g.store.SaveRaw(ctx, historyKey, data)
}

func decodePrompt(content string, v any) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(promptSchema),
		gojsonschema.NewStringLoader(content),
	)
	if err != nil {
		return fmt.Errorf("validating response: %w", err)
	}
	if !result.Valid() {
		return fmt.Errorf("response does not match schema: %v", result.Errors())
	}
	return json.Unmarshal([]byte(content), v)
}

// matches compares a guess to the expected name and its aliases, folding
// case and stripping diacritics so "españa" matches "España".
func matches(given, expected string, aliases []string) bool {
	guess := normalizeAnswer(given)
	if guess == "" {
		return false
	}
	if guess == normalizeAnswer(expected) {
		return true
	}
	for _, alias := range aliases {
		if guess == normalizeAnswer(alias) {
			return true
		}
	}
	return false
}

func normalizeAnswer(s string) string {
	folded := cases.Fold().String(strings.TrimSpace(s))
	stripped, _, err := transform.String(
		transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC),
		folded,
	)
	if err != nil {
		return folded
	}
	return stripped
}
