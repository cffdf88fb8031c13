// Package ai provides a provider-agnostic gateway for structured content
// generation with task-based routing.
package ai

import "context"

// TaskType identifies the kind of generation task, for routing and usage
// accounting.
type TaskType int

const (
	TaskCourse TaskType = iota
	TaskLevel
	TaskQuiz
	TaskNextSteps
	TaskSupplement
	TaskTrivia
)

func (t TaskType) String() string {
	switch t {
	case TaskCourse:
		return "course"
	case TaskLevel:
		return "level"
	case TaskQuiz:
		return "quiz"
	case TaskNextSteps:
		return "next-steps"
	case TaskSupplement:
		return "supplement"
	case TaskTrivia:
		return "trivia"
	default:
		return "unknown"
	}
}

// Message is one prompt message. Images carries base64-encoded source
// images attached alongside the text.
type Message struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

// CompletionRequest is the input to a generation call. When
// ResponseSchema is set the provider must constrain its output to JSON
// matching that schema.
type CompletionRequest struct {
	Messages       []Message      `json:"messages"`
	Model          string         `json:"model,omitempty"`
	MaxTokens      int            `json:"max_tokens,omitempty"`
	Temperature    float64        `json:"temperature,omitempty"`
	Task           TaskType       `json:"task,omitempty"`
	ResponseSchema map[string]any `json:"response_schema,omitempty"`
}

// CompletionResponse is the output from a generation call. Content holds
// the raw model text; callers validate and decode it themselves.
type CompletionResponse struct {
	Content      string `json:"content"`
	Model        string `json:"model"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
}

// TotalTokens returns the sum of input and output tokens.
func (r CompletionResponse) TotalTokens() int {
	return r.InputTokens + r.OutputTokens
}

// ModelInfo describes an available model.
type ModelInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	MaxTokens   int    `json:"max_tokens"`
	Description string `json:"description"`
}

// Provider is the interface all generation providers must implement.
type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
	Models() []ModelInfo
	HealthCheck(ctx context.Context) error
}
