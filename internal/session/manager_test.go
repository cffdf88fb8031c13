package session_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/studyloop/studyloop/internal/ai"
	"github.com/studyloop/studyloop/internal/course"
	"github.com/studyloop/studyloop/internal/extract"
	"github.com/studyloop/studyloop/internal/generate"
	"github.com/studyloop/studyloop/internal/session"
	"github.com/studyloop/studyloop/internal/store"
)

const sourceText = "This is a long enough piece of source material about photosynthesis. " +
	"Plants convert light, water, and carbon dioxide into glucose and oxygen."

func levelFixture(title string) string {
	return fmt.Sprintf(`{
		"level_title": %q,
		"summary": "summary of %s",
		"image_index": -1,
		"questions": [{"question": "q", "options": ["a","b","c","d"], "correct_answer": "a", "image_index": -1}],
		"references": {"articles": [], "videos": []}
	}`, title, title)
}

func courseFixture() string {
	return fmt.Sprintf(`{
		"course_title": "Photosynthesis",
		"levels": [%s, %s, %s],
		"next_steps": {"related_topics": ["respiration"], "advanced_material": []}
	}`, levelFixture("One"), levelFixture("Two"), levelFixture("Three"))
}

type harness struct {
	manager *session.Manager
	store   *store.Store
	events  *session.MemoryEventLogger
	mock    *ai.MockProvider
}

func newHarness(t *testing.T, extractor extract.Extractor) *harness {
	t.Helper()
	mock := ai.NewMockProvider(courseFixture())
	router := ai.NewRouter(nil)
	router.Register("mock", mock)
	st := store.New(store.NewMemoryKV())
	events := session.NewMemoryEventLogger()
	m := session.NewManager(session.ManagerConfig{
		Store:        st,
		Extractor:    extractor,
		Orchestrator: generate.New(router),
		Events:       events,
	})
	return &harness{manager: m, store: st, events: events, mock: mock}
}

func TestStartUpload(t *testing.T) {
	h := newHarness(t, &extract.Mock{Result: extract.Result{Text: sourceText, Images: []string{"aW1n"}}})

	f, err := h.manager.StartUpload(context.Background(), []byte("%PDF"))
	if err != nil {
		t.Fatalf("StartUpload() error = %v", err)
	}
	if f.State != session.FlowAwaitingMode {
		t.Errorf("flow state = %q, want awaiting_mode_choice", f.State)
	}
	if f.ID == "" {
		t.Error("flow has no id")
	}

	snap, ok := h.manager.CurrentFlow()
	if !ok || snap.ID != f.ID {
		t.Error("CurrentFlow() does not return the started flow")
	}
}

func TestStartUpload_TooLittleText(t *testing.T) {
	h := newHarness(t, &extract.Mock{Result: extract.Result{Text: "barely anything"}})

	f, err := h.manager.StartUpload(context.Background(), []byte("%PDF"))
	if !errors.Is(err, extract.ErrTooLittleText) {
		t.Fatalf("error = %v, want ErrTooLittleText", err)
	}
	if f.State != session.FlowFailed {
		t.Errorf("flow state = %q, want failed", f.State)
	}
	if n := len(h.mock.Requests()); n != 0 {
		t.Errorf("model requests = %d, want 0 for rejected uploads", n)
	}
}

func TestStartUpload_ExtractionFailure(t *testing.T) {
	h := newHarness(t, &extract.Mock{Err: errors.New("service down")})

	f, err := h.manager.StartUpload(context.Background(), []byte("%PDF"))
	if err == nil {
		t.Fatal("expected an error")
	}
	if f.State != session.FlowFailed || f.Err == "" {
		t.Errorf("flow = %+v, want failed with message", f)
	}
}

func TestGenerateAuto(t *testing.T) {
	h := newHarness(t, &extract.Mock{Result: extract.Result{Text: sourceText}})
	ctx := context.Background()

	f, err := h.manager.StartUpload(ctx, []byte("%PDF"))
	if err != nil {
		t.Fatalf("StartUpload() error = %v", err)
	}

	c, err := h.manager.GenerateAuto(ctx, f.ID, course.DifficultyBeginner)
	if err != nil {
		t.Fatalf("GenerateAuto() error = %v", err)
	}
	if c.Title != "Photosynthesis" {
		t.Errorf("Title = %q", c.Title)
	}

	stored := h.manager.ListCourses(ctx)
	if len(stored) != 1 || stored[0].ID != c.ID {
		t.Fatalf("stored courses = %d, want the generated course", len(stored))
	}

	if activeID, _ := h.manager.Active(); activeID != c.ID {
		t.Errorf("active course = %q, want %q", activeID, c.ID)
	}

	snap, _ := h.manager.CurrentFlow()
	if snap.State != session.FlowDone || snap.CourseID != c.ID {
		t.Errorf("flow after generation = %+v, want done with course id", snap)
	}

	events := h.events.Events()
	if len(events) != 1 || events[0].EventType != session.EventCourseCreated {
		t.Errorf("events = %+v, want one course_created", events)
	}
}

func TestGenerateAuto_UnknownFlow(t *testing.T) {
	h := newHarness(t, &extract.Mock{Result: extract.Result{Text: sourceText}})

	_, err := h.manager.GenerateAuto(context.Background(), "no-such-flow", course.DifficultyBeginner)
	if !errors.Is(err, session.ErrFlowNotFound) {
		t.Fatalf("error = %v, want ErrFlowNotFound", err)
	}
}

func TestGenerateAuto_SupersededResultDiscarded(t *testing.T) {
	h := newHarness(t, &extract.Mock{Result: extract.Result{Text: sourceText}})
	ctx := context.Background()

	release := make(chan struct{})
	h.mock.RespondFunc = func(req ai.CompletionRequest) (string, error) {
		<-release
		return courseFixture(), nil
	}

	first, err := h.manager.StartUpload(ctx, []byte("%PDF"))
	if err != nil {
		t.Fatalf("StartUpload() error = %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := h.manager.GenerateAuto(ctx, first.ID, course.DifficultyBeginner)
		done <- err
	}()

	// Wait for the first generation to be in flight, then supersede it.
	waitForGenerating(t, h.manager, first.ID)
	if _, err := h.manager.StartUpload(ctx, []byte("%PDF")); err != nil {
		t.Fatalf("second StartUpload() error = %v", err)
	}
	close(release)

	if err := <-done; !errors.Is(err, session.ErrFlowSuperseded) {
		t.Fatalf("first generation error = %v, want ErrFlowSuperseded", err)
	}
	if got := h.manager.ListCourses(ctx); len(got) != 0 {
		t.Errorf("superseded result was persisted: %d courses", len(got))
	}
}

func waitForGenerating(t *testing.T, m *session.Manager, flowID string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if f, ok := m.CurrentFlow(); ok && f.ID == flowID && f.State == session.FlowGenerating {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("flow never entered generating state")
}

func TestGenerateManual_FailureMarksFlowFailed(t *testing.T) {
	h := newHarness(t, &extract.Mock{Result: extract.Result{Text: sourceText}})
	ctx := context.Background()
	h.mock.Err = errors.New("provider down")

	f, err := h.manager.StartUpload(ctx, []byte("%PDF"))
	if err != nil {
		t.Fatalf("StartUpload() error = %v", err)
	}

	_, err = h.manager.GenerateManual(ctx, f.ID, "My Course", []string{"Alpha"}, course.DifficultyAdvanced)
	if err == nil {
		t.Fatal("expected generation failure")
	}

	snap, _ := h.manager.CurrentFlow()
	if snap.State != session.FlowFailed {
		t.Errorf("flow state = %q, want failed", snap.State)
	}
	if got := h.manager.ListCourses(ctx); len(got) != 0 {
		t.Errorf("failed generation was persisted: %d courses", len(got))
	}
}

func seedCourse(t *testing.T, h *harness) course.Course {
	t.Helper()
	ctx := context.Background()
	f, err := h.manager.StartUpload(ctx, []byte("%PDF"))
	if err != nil {
		t.Fatalf("StartUpload() error = %v", err)
	}
	c, err := h.manager.GenerateAuto(ctx, f.ID, course.DifficultyBeginner)
	if err != nil {
		t.Fatalf("GenerateAuto() error = %v", err)
	}
	return c
}

func TestSubmitQuiz(t *testing.T) {
	h := newHarness(t, &extract.Mock{Result: extract.Result{Text: sourceText}})
	ctx := context.Background()
	c := seedCourse(t, h)

	updated, err := h.manager.SubmitQuiz(ctx, c.ID, 0, c.Levels[0].Quizzes[0].ID, 1)
	if err != nil {
		t.Fatalf("SubmitQuiz() error = %v", err)
	}
	if updated.Levels[0].Status != course.LevelCompleted {
		t.Errorf("level status = %q, want completed", updated.Levels[0].Status)
	}
	if len(updated.History) != 1 {
		t.Fatalf("history length = %d, want 1", len(updated.History))
	}

	// The mutation must be persisted, not just returned.
	reloaded, err := h.manager.GetCourse(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetCourse() error = %v", err)
	}
	if reloaded.Progress != updated.Progress {
		t.Errorf("persisted progress = %d, want %d", reloaded.Progress, updated.Progress)
	}

	var quizEvents int
	for _, e := range h.events.Events() {
		if e.EventType == session.EventQuizCompleted {
			quizEvents++
		}
	}
	if quizEvents != 1 {
		t.Errorf("quiz_completed events = %d, want 1", quizEvents)
	}
}

func TestSubmitQuiz_LockedLevel(t *testing.T) {
	h := newHarness(t, &extract.Mock{Result: extract.Result{Text: sourceText}})
	c := seedCourse(t, h)

	_, err := h.manager.SubmitQuiz(context.Background(), c.ID, 2, c.Levels[2].Quizzes[0].ID, 1)
	if !errors.Is(err, session.ErrLevelLocked) {
		t.Fatalf("error = %v, want ErrLevelLocked", err)
	}
}

func TestSubmitQuiz_UnknownCourse(t *testing.T) {
	h := newHarness(t, &extract.Mock{Result: extract.Result{Text: sourceText}})

	_, err := h.manager.SubmitQuiz(context.Background(), "missing", 0, "quiz", 1)
	if !errors.Is(err, session.ErrCourseNotFound) {
		t.Fatalf("error = %v, want ErrCourseNotFound", err)
	}
}

func TestAddPracticeQuiz(t *testing.T) {
	h := newHarness(t, &extract.Mock{Result: extract.Result{Text: sourceText}})
	ctx := context.Background()
	c := seedCourse(t, h)

	h.mock.RespondFunc = func(req ai.CompletionRequest) (string, error) {
		if req.Task != ai.TaskQuiz {
			return "", fmt.Errorf("unexpected task %s", req.Task)
		}
		return `{"questions": [{"question": "fresh", "options": ["a","b","c","d"], "correct_answer": "b", "image_index": -1}]}`, nil
	}

	updated, err := h.manager.AddPracticeQuiz(ctx, c.ID, 0, course.DifficultyBeginner)
	if err != nil {
		t.Fatalf("AddPracticeQuiz() error = %v", err)
	}
	if len(updated.Levels[0].Quizzes) != 2 {
		t.Errorf("quiz count = %d, want 2", len(updated.Levels[0].Quizzes))
	}
	if updated.Progress != c.Progress {
		t.Error("practice quiz must not change progress")
	}
}

func TestAddPracticeQuiz_LockedLevel(t *testing.T) {
	h := newHarness(t, &extract.Mock{Result: extract.Result{Text: sourceText}})
	c := seedCourse(t, h)

	_, err := h.manager.AddPracticeQuiz(context.Background(), c.ID, 1, course.DifficultyBeginner)
	if !errors.Is(err, session.ErrLevelLocked) {
		t.Fatalf("error = %v, want ErrLevelLocked", err)
	}
}

func TestSupplement(t *testing.T) {
	h := newHarness(t, &extract.Mock{Result: extract.Result{Text: sourceText}})
	ctx := context.Background()
	c := seedCourse(t, h)

	var sawPrompt string
	h.mock.RespondFunc = func(req ai.CompletionRequest) (string, error) {
		sawPrompt = req.Messages[0].Content
		return fmt.Sprintf(`{"levels": [%s, %s]}`, levelFixture("Four"), levelFixture("Five")), nil
	}

	updated, err := h.manager.Supplement(ctx, c.ID, []byte("%PDF"), course.DifficultyBeginner)
	if err != nil {
		t.Fatalf("Supplement() error = %v", err)
	}
	if len(updated.Levels) != 5 {
		t.Fatalf("level count = %d, want 5", len(updated.Levels))
	}
	if !strings.Contains(sawPrompt, "One") {
		t.Error("existing level titles not sent to the generator")
	}

	var appended int
	for _, e := range h.events.Events() {
		if e.EventType == session.EventLevelsAppended {
			appended++
		}
	}
	if appended != 1 {
		t.Errorf("levels_appended events = %d, want 1", appended)
	}
}

func TestDeleteCourse(t *testing.T) {
	h := newHarness(t, &extract.Mock{Result: extract.Result{Text: sourceText}})
	ctx := context.Background()
	c := seedCourse(t, h)

	h.manager.DeleteCourse(ctx, c.ID)

	if got := h.manager.ListCourses(ctx); len(got) != 0 {
		t.Errorf("courses after delete = %d, want 0", len(got))
	}
	if activeID, levelIdx := h.manager.Active(); activeID != "" || levelIdx != -1 {
		t.Errorf("active selection not cleared: %q, %d", activeID, levelIdx)
	}

	// Deleting again is a no-op and logs nothing new.
	before := len(h.events.Events())
	h.manager.DeleteCourse(ctx, c.ID)
	if after := len(h.events.Events()); after != before {
		t.Errorf("repeat delete logged %d extra events", after-before)
	}
}

func TestSelectLevel(t *testing.T) {
	h := newHarness(t, &extract.Mock{Result: extract.Result{Text: sourceText}})
	ctx := context.Background()
	c := seedCourse(t, h)

	if err := h.manager.SelectLevel(ctx, c.ID, 0); err != nil {
		t.Fatalf("SelectLevel(0) error = %v", err)
	}
	if _, levelIdx := h.manager.Active(); levelIdx != 0 {
		t.Errorf("active level = %d, want 0", levelIdx)
	}

	if err := h.manager.SelectLevel(ctx, c.ID, 1); !errors.Is(err, session.ErrLevelLocked) {
		t.Errorf("SelectLevel(locked) error = %v, want ErrLevelLocked", err)
	}
	if err := h.manager.SelectLevel(ctx, c.ID, 7); !errors.Is(err, course.ErrLevelOutOfRange) {
		t.Errorf("SelectLevel(7) error = %v, want ErrLevelOutOfRange", err)
	}
}

func TestView(t *testing.T) {
	h := newHarness(t, &extract.Mock{Result: extract.Result{Text: sourceText}})
	ctx := context.Background()
	c := seedCourse(t, h)

	if got := h.manager.CurrentView(); got != session.ViewList {
		t.Errorf("default view = %q, want list", got)
	}
	if err := h.manager.SetView("settings"); err == nil {
		t.Error("SetView(settings) succeeded, want error")
	}
	if err := h.manager.SetView(session.ViewTrivia); err != nil {
		t.Fatalf("SetView(trivia) error = %v", err)
	}
	if got := h.manager.CurrentView(); got != session.ViewTrivia {
		t.Errorf("view = %q, want trivia", got)
	}

	// Selecting a level opens the detail view; deleting that course
	// falls back to the list.
	if err := h.manager.SelectLevel(ctx, c.ID, 0); err != nil {
		t.Fatalf("SelectLevel() error = %v", err)
	}
	if got := h.manager.CurrentView(); got != session.ViewDetail {
		t.Errorf("view after select = %q, want detail", got)
	}
	h.manager.DeleteCourse(ctx, c.ID)
	if got := h.manager.CurrentView(); got != session.ViewList {
		t.Errorf("view after deleting active course = %q, want list", got)
	}
}

func TestTheme(t *testing.T) {
	h := newHarness(t, &extract.Mock{Result: extract.Result{Text: sourceText}})
	ctx := context.Background()

	if got := h.manager.Theme(ctx); got != "" {
		t.Errorf("default theme = %q, want empty", got)
	}
	h.manager.SetTheme(ctx, "dark")
	if got := h.manager.Theme(ctx); got != "dark" {
		t.Errorf("theme = %q, want dark", got)
	}
}
