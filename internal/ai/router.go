package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrBudgetExhausted reports that the configured token budget is spent.
var ErrBudgetExhausted = errors.New("generation token budget exhausted")

// Router selects a provider by ordered fallback and accounts token usage.
type Router struct {
	providers map[string]Provider
	fallback  []string // ordered fallback chain
	usage     *UsageTracker
	mu        sync.RWMutex
}

// NewRouter creates a router; usage may be nil to disable accounting.
func NewRouter(usage *UsageTracker) *Router {
	return &Router{
		providers: make(map[string]Provider),
		usage:     usage,
	}
}

// Register adds a provider to the end of the fallback chain.
func (r *Router) Register(name string, provider Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = provider
	r.fallback = append(r.fallback, name)
}

// Complete routes a request to the first provider that succeeds. When a
// usage tracker is set, requests are refused once the budget is spent and
// successful completions are recorded against it.
func (r *Router) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	if r.usage != nil && !r.usage.Allow() {
		return CompletionResponse{}, ErrBudgetExhausted
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, name := range r.fallback {
		provider := r.providers[name]

		resp, err := provider.Complete(ctx, req)
		if err != nil {
			slog.Warn("generation provider failed, trying next",
				"provider", name,
				"task", req.Task.String(),
				"error", err,
			)
			continue
		}

		if r.usage != nil {
			r.usage.Record(req.Task, resp.TotalTokens())
		}
		slog.Debug("generation completed",
			"provider", name,
			"task", req.Task.String(),
			"model", resp.Model,
			"input_tokens", resp.InputTokens,
			"output_tokens", resp.OutputTokens,
		)
		return resp, nil
	}

	return CompletionResponse{}, fmt.Errorf("all generation providers failed")
}

// HasProvider returns true if at least one provider is registered.
func (r *Router) HasProvider() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.providers) > 0
}
