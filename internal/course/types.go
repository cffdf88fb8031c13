// Package course models a generated course and every operation that may
// mutate one. All mutations are pure: they return a new Course value and
// leave the input untouched, so callers must write the result back.
package course

import (
	"time"

	"github.com/google/uuid"
)

// Difficulty is the target audience of a course, fixed at creation.
type Difficulty string

const (
	DifficultyBeginner Difficulty = "beginner"
	DifficultyAdvanced Difficulty = "advanced"
)

// LevelStatus tracks a level's lifecycle. Transitions are monotonic:
// a completed level never regresses.
type LevelStatus string

const (
	LevelNotStarted LevelStatus = "not-started"
	LevelInProgress LevelStatus = "in-progress"
	LevelCompleted  LevelStatus = "completed"
)

// QuizStatus tracks a quiz's lifecycle. Monotonic, like LevelStatus.
type QuizStatus string

const (
	QuizNotStarted QuizStatus = "not-started"
	QuizCompleted  QuizStatus = "completed"
)

// QuizQuestion is one multiple-choice question. CorrectAnswer holds the
// text of the correct option, not its index.
type QuizQuestion struct {
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correct_answer"`
	ImageURL      string   `json:"image_url,omitempty"`
}

// Quiz is one scored question set. Score is set exactly once, when the
// quiz transitions to completed.
type Quiz struct {
	ID        string         `json:"id"`
	Questions []QuizQuestion `json:"questions"`
	Status    QuizStatus     `json:"status"`
	Score     *int           `json:"score,omitempty"`
}

// CaseStudySuggestion is a pointer to advanced follow-up material.
type CaseStudySuggestion struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// StudySuggestions holds per-level reference material. CaseStudies stays
// empty for normally generated levels.
type StudySuggestions struct {
	Articles    []string              `json:"articles"`
	Videos      []string              `json:"videos"`
	CaseStudies []CaseStudySuggestion `json:"case_studies,omitempty"`
}

// NextSteps is course-wide follow-up guidance, set once at creation.
type NextSteps struct {
	RelatedTopics    []string              `json:"related_topics"`
	AdvancedMaterial []CaseStudySuggestion `json:"advanced_material"`
}

// Level is one pedagogical unit. Quizzes[0] is the mandatory knowledge
// check; later entries are user-requested practice tests, append-only.
type Level struct {
	ID         string           `json:"id"`
	Title      string           `json:"title"`
	Status     LevelStatus      `json:"status"`
	Summary    string           `json:"summary"`
	ImageURL   string           `json:"image_url,omitempty"`
	Quizzes    []Quiz           `json:"quizzes"`
	References StudySuggestions `json:"references"`
}

// QuizAttempt is an immutable audit record of one quiz submission.
// LevelTitle is denormalized for display.
type QuizAttempt struct {
	ID             string    `json:"id"`
	QuizID         string    `json:"quiz_id"`
	LevelID        string    `json:"level_id"`
	LevelTitle     string    `json:"level_title"`
	Score          int       `json:"score"`
	TotalQuestions int       `json:"total_questions"`
	Percentage     int       `json:"percentage"`
	Timestamp      time.Time `json:"timestamp"`
}

// Course is the top-level learning unit built from one source document.
// Progress is derived from the level list and never set independently.
type Course struct {
	ID         string        `json:"id"`
	Title      string        `json:"title"`
	Difficulty Difficulty    `json:"difficulty"`
	Levels     []Level       `json:"levels"`
	History    []QuizAttempt `json:"history"`
	Progress   int           `json:"progress"`
	NextSteps  NextSteps     `json:"next_steps"`
	CreatedAt  time.Time     `json:"created_at"`
}

// NewID returns a collision-resistant identifier for courses, levels,
// quizzes and attempts.
func NewID() string {
	return uuid.NewString()
}

// Clone returns a deep copy of the course so mutations never alias the
// caller's value.
func (c Course) Clone() Course {
	out := c
	out.Levels = make([]Level, len(c.Levels))
	for i, lvl := range c.Levels {
		out.Levels[i] = lvl.clone()
	}
	out.History = append([]QuizAttempt(nil), c.History...)
	out.NextSteps.RelatedTopics = append([]string(nil), c.NextSteps.RelatedTopics...)
	out.NextSteps.AdvancedMaterial = append([]CaseStudySuggestion(nil), c.NextSteps.AdvancedMaterial...)
	return out
}

func (l Level) clone() Level {
	out := l
	out.Quizzes = make([]Quiz, len(l.Quizzes))
	for i, q := range l.Quizzes {
		out.Quizzes[i] = q.clone()
	}
	out.References.Articles = append([]string(nil), l.References.Articles...)
	out.References.Videos = append([]string(nil), l.References.Videos...)
	out.References.CaseStudies = append([]CaseStudySuggestion(nil), l.References.CaseStudies...)
	return out
}

func (q Quiz) clone() Quiz {
	out := q
	out.Questions = make([]QuizQuestion, len(q.Questions))
	for i, qq := range q.Questions {
		qq.Options = append([]string(nil), qq.Options...)
		out.Questions[i] = qq
	}
	if q.Score != nil {
		score := *q.Score
		out.Score = &score
	}
	return out
}
