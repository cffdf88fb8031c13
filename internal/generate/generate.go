// Package generate orchestrates calls to the external content generator
// and assembles validated output into course values. Construction is
// all-or-nothing: a failed call means no partial course or level ever
// reaches the caller, let alone the store.
package generate

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/studyloop/studyloop/internal/ai"
	"github.com/studyloop/studyloop/internal/course"
)

// Orchestrator sequences generator calls for the course-building flows.
type Orchestrator struct {
	router  *ai.Router
	timeout time.Duration // per generator call; 0 means none
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithCallTimeout bounds each generator call. Zero keeps calls unbounded;
// the knob exists because a hung call otherwise pins the flow in a
// loading state forever.
func WithCallTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.timeout = d
	}
}

// New creates an orchestrator over the given provider router.
func New(router *ai.Router, opts ...Option) *Orchestrator {
	o := &Orchestrator{router: router}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Generated payload shapes, as the schema documents promise them.

type genQuestion struct {
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correct_answer"`
	ImageIndex    int      `json:"image_index"`
}

type genReferences struct {
	Articles []string `json:"articles"`
	Videos   []string `json:"videos"`
}

type genLevel struct {
	LevelTitle string        `json:"level_title"`
	Summary    string        `json:"summary"`
	ImageIndex int           `json:"image_index"`
	Questions  []genQuestion `json:"questions"`
	References genReferences `json:"references"`
}

type genCaseStudy struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

type genNextSteps struct {
	RelatedTopics    []string       `json:"related_topics"`
	AdvancedMaterial []genCaseStudy `json:"advanced_material"`
}

type genCourse struct {
	CourseTitle string       `json:"course_title"`
	Levels      []genLevel   `json:"levels"`
	NextSteps   genNextSteps `json:"next_steps"`
}

type genLevelContent struct {
	Summary    string        `json:"summary"`
	ImageIndex int           `json:"image_index"`
	Questions  []genQuestion `json:"questions"`
	References genReferences `json:"references"`
}

type genQuiz struct {
	Questions []genQuestion `json:"questions"`
}

type genSupplement struct {
	Levels []genLevel `json:"levels"`
}

// ResolveImage maps a generator-returned index into the supplied image
// list. The generator is not guaranteed to stay in bounds: -1 and any
// out-of-range index resolve to no image. Resolved images become data
// URLs ready for display.
func ResolveImage(images []string, index int) string {
	if index < 0 || index >= len(images) {
		return ""
	}
	return "data:image/png;base64," + images[index]
}

func buildQuestions(gqs []genQuestion, images []string) []course.QuizQuestion {
	out := make([]course.QuizQuestion, len(gqs))
	for i, gq := range gqs {
		out[i] = course.QuizQuestion{
			Question:      gq.Question,
			Options:       gq.Options,
			CorrectAnswer: gq.CorrectAnswer,
			ImageURL:      ResolveImage(images, gq.ImageIndex),
		}
	}
	return out
}

func buildLevel(gl genLevel, images []string) course.Level {
	return course.Level{
		ID:       course.NewID(),
		Title:    gl.LevelTitle,
		Status:   course.LevelNotStarted,
		Summary:  gl.Summary,
		ImageURL: ResolveImage(images, gl.ImageIndex),
		Quizzes: []course.Quiz{{
			ID:        course.NewID(),
			Questions: buildQuestions(gl.Questions, images),
			Status:    course.QuizNotStarted,
		}},
		References: course.StudySuggestions{
			Articles: gl.References.Articles,
			Videos:   gl.References.Videos,
			// Case studies only ever come from next-steps material.
			CaseStudies: []course.CaseStudySuggestion{},
		},
	}
}

func buildNextSteps(gns genNextSteps) course.NextSteps {
	material := make([]course.CaseStudySuggestion, len(gns.AdvancedMaterial))
	for i, m := range gns.AdvancedMaterial {
		material[i] = course.CaseStudySuggestion{Title: m.Title, Description: m.Description}
	}
	return course.NextSteps{
		RelatedTopics:    gns.RelatedTopics,
		AdvancedMaterial: material,
	}
}

func (o *Orchestrator) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.timeout > 0 {
		return context.WithTimeout(ctx, o.timeout)
	}
	return context.WithCancel(ctx)
}

// call runs one generator request and decodes the validated result into v.
func (o *Orchestrator) call(ctx context.Context, op string, task ai.TaskType, prompt string, images []string, schema map[string]any, v any) error {
	callCtx, cancel := o.callCtx(ctx)
	defer cancel()

	resp, err := o.router.Complete(callCtx, ai.CompletionRequest{
		Task: task,
		Messages: []ai.Message{
			{Role: "user", Content: prompt, Images: images},
		},
		ResponseSchema: schema,
	})
	if err != nil {
		return genErr(op, err)
	}
	if err := decode(resp.Content, schema, v); err != nil {
		return genErr(op, err)
	}
	return nil
}

// BuildCourseAuto asks the generator for a complete three-level course in
// a single call. On any failure no course is created.
func (o *Orchestrator) BuildCourseAuto(ctx context.Context, text string, images []string, difficulty course.Difficulty) (course.Course, error) {
	var gc genCourse
	prompt := buildAutoCoursePrompt(text, len(images), difficulty)
	if err := o.call(ctx, "auto course", ai.TaskCourse, prompt, images, courseSchema(), &gc); err != nil {
		return course.Course{}, err
	}

	c := course.Course{
		ID:         course.NewID(),
		Title:      gc.CourseTitle,
		Difficulty: difficulty,
		History:    []course.QuizAttempt{},
		NextSteps:  buildNextSteps(gc.NextSteps),
		CreatedAt:  time.Now().UTC(),
	}
	for _, gl := range gc.Levels {
		c.Levels = append(c.Levels, buildLevel(gl, images))
	}

	slog.Info("course generated", "course_id", c.ID, "title", c.Title, "levels", len(c.Levels))
	return c, nil
}

// BuildCourseManual builds a course from a user-authored level outline:
// one generator call per level, issued concurrently, plus one call for
// next steps. Results are reassembled in the user's original level order
// regardless of completion order. Any single failure aborts the whole
// build.
func (o *Orchestrator) BuildCourseManual(ctx context.Context, text string, images []string, title string, levelTitles []string, difficulty course.Difficulty) (course.Course, error) {
	if strings.TrimSpace(title) == "" {
		return course.Course{}, &ValidationError{Field: "course title", Reason: "must not be empty"}
	}
	if len(levelTitles) == 0 {
		return course.Course{}, &ValidationError{Field: "level outline", Reason: "at least one level title is required"}
	}
	for _, lt := range levelTitles {
		if strings.TrimSpace(lt) == "" {
			return course.Course{}, &ValidationError{Field: "level outline", Reason: "level titles must not be empty"}
		}
	}

	contents := make([]genLevelContent, len(levelTitles))
	var gns genNextSteps

	g, gctx := errgroup.WithContext(ctx)
	for i, levelTitle := range levelTitles {
		g.Go(func() error {
			prompt := buildLevelPrompt(text, title, levelTitle, len(images), difficulty)
			return o.call(gctx, "level "+levelTitle, ai.TaskLevel, prompt, images, levelContentSchema(), &contents[i])
		})
	}
	g.Go(func() error {
		prompt := buildNextStepsPrompt(text, title, difficulty)
		return o.call(gctx, "next steps", ai.TaskNextSteps, prompt, nil, nextStepsSchema(), &gns)
	})
	if err := g.Wait(); err != nil {
		return course.Course{}, err
	}

	c := course.Course{
		ID:         course.NewID(),
		Title:      title,
		Difficulty: difficulty,
		History:    []course.QuizAttempt{},
		NextSteps:  buildNextSteps(gns),
		CreatedAt:  time.Now().UTC(),
	}
	// User order, not completion order.
	for i, levelTitle := range levelTitles {
		gl := genLevel{
			LevelTitle: levelTitle,
			Summary:    contents[i].Summary,
			ImageIndex: contents[i].ImageIndex,
			Questions:  contents[i].Questions,
			References: contents[i].References,
		}
		c.Levels = append(c.Levels, buildLevel(gl, images))
	}

	slog.Info("course generated from outline", "course_id", c.ID, "title", c.Title, "levels", len(c.Levels))
	return c, nil
}

// SupplementalLevels generates exactly two new levels from new source
// material, steering the generator away from the course's existing level
// titles. The returned levels are fully formed but not yet appended.
func (o *Orchestrator) SupplementalLevels(ctx context.Context, existing course.Course, newText string, newImages []string, difficulty course.Difficulty) ([]course.Level, error) {
	titles := make([]string, len(existing.Levels))
	for i, lvl := range existing.Levels {
		titles[i] = lvl.Title
	}

	var gs genSupplement
	prompt := buildSupplementPrompt(titles, newText, len(newImages), difficulty)
	if err := o.call(ctx, "supplemental levels", ai.TaskSupplement, prompt, newImages, supplementSchema(), &gs); err != nil {
		return nil, err
	}

	levels := make([]course.Level, len(gs.Levels))
	for i, gl := range gs.Levels {
		levels[i] = buildLevel(gl, newImages)
	}

	slog.Info("supplemental levels generated", "course_id", existing.ID, "levels", len(levels))
	return levels, nil
}

// PracticeQuiz generates a fresh question set for one level, avoiding
// questions the learner has already seen.
func (o *Orchestrator) PracticeQuiz(ctx context.Context, level course.Level, difficulty course.Difficulty) ([]course.QuizQuestion, error) {
	var gq genQuiz
	prompt := buildPracticeQuizPrompt(level, difficulty)
	if err := o.call(ctx, "practice quiz", ai.TaskQuiz, prompt, nil, quizSchema(), &gq); err != nil {
		return nil, err
	}
	// Practice quizzes carry no images; the source pages are not resent.
	return buildQuestions(gq.Questions, nil), nil
}
