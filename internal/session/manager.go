package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/studyloop/studyloop/internal/course"
	"github.com/studyloop/studyloop/internal/extract"
	"github.com/studyloop/studyloop/internal/generate"
	"github.com/studyloop/studyloop/internal/store"
)

const defaultMinTextChars = 100

var (
	ErrFlowNotFound   = errors.New("upload flow not found")
	ErrFlowState      = errors.New("upload flow is not awaiting a mode choice")
	ErrFlowSuperseded = errors.New("upload flow superseded by a newer upload")
	ErrCourseNotFound = errors.New("course not found")
	ErrLevelLocked    = errors.New("level is locked")
)

// FlowState tracks where an upload is in its lifecycle.
type FlowState string

const (
	FlowExtracting   FlowState = "extracting"
	FlowAwaitingMode FlowState = "awaiting_mode_choice"
	FlowGenerating   FlowState = "generating"
	FlowDone         FlowState = "done"
	FlowFailed       FlowState = "failed"
)

// Flow is a single upload-to-course pipeline. A new upload supersedes
// the previous flow; results from superseded flows are discarded.
type Flow struct {
	ID         string
	State      FlowState
	Text       string
	Images     []string
	CourseID   string
	Err        string
	StartedAt  time.Time
	FinishedAt time.Time
}

// View is the screen the client is on. Course data never derives from
// it; it only governs which actions are legal.
type View string

const (
	ViewList   View = "list"
	ViewDetail View = "detail"
	ViewTrivia View = "trivia"
)

// Notifier receives state-change notifications for live clients.
type Notifier func(kind string, payload map[string]any)

// ManagerConfig holds dependencies for the session manager.
type ManagerConfig struct {
	Store        *store.Store
	Extractor    extract.Extractor
	Orchestrator *generate.Orchestrator
	Events       EventLogger
	Notify       Notifier
	MinTextChars int // minimum extracted characters before generation (default 100)
}

// Manager coordinates uploads, generation, and course mutations.
// Course mutations are load-mutate-save over the whole collection,
// serialized by the manager's mutex.
type Manager struct {
	store        *store.Store
	extractor    extract.Extractor
	orch         *generate.Orchestrator
	events       EventLogger
	notify       Notifier
	minTextChars int

	mu           sync.Mutex
	flow         *Flow
	flowSeq      uint64
	activeCourse string
	activeLevel  int
	view         View
}

func NewManager(cfg ManagerConfig) *Manager {
	events := cfg.Events
	if events == nil {
		events = NopEventLogger{}
	}
	notify := cfg.Notify
	if notify == nil {
		notify = func(string, map[string]any) {}
	}
	minChars := cfg.MinTextChars
	if minChars == 0 {
		minChars = defaultMinTextChars
	}
	return &Manager{
		store:        cfg.Store,
		extractor:    cfg.Extractor,
		orch:         cfg.Orchestrator,
		events:       events,
		notify:       notify,
		minTextChars: minChars,
		activeLevel:  -1,
		view:         ViewList,
	}
}

// StartUpload extracts the document and opens a new flow, superseding
// any flow already in progress.
func (m *Manager) StartUpload(ctx context.Context, pdf []byte) (Flow, error) {
	m.mu.Lock()
	m.flowSeq++
	seq := m.flowSeq
	f := &Flow{
		ID:        course.NewID(),
		State:     FlowExtracting,
		StartedAt: time.Now(),
	}
	m.flow = f
	m.mu.Unlock()
	m.notify("flow", map[string]any{"flow_id": f.ID, "state": string(FlowExtracting)})

	result, err := m.extractor.Extract(ctx, pdf)
	if err == nil && len(result.Text) < m.minTextChars {
		err = fmt.Errorf("%w: got %d characters, need %d", extract.ErrTooLittleText, len(result.Text), m.minTextChars)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.flowSeq != seq {
		return Flow{}, ErrFlowSuperseded
	}
	if err != nil {
		f.State = FlowFailed
		f.Err = err.Error()
		f.FinishedAt = time.Now()
		m.notify("flow", map[string]any{"flow_id": f.ID, "state": string(FlowFailed), "error": f.Err})
		return *f, err
	}
	f.State = FlowAwaitingMode
	f.Text = result.Text
	f.Images = result.Images
	m.notify("flow", map[string]any{"flow_id": f.ID, "state": string(FlowAwaitingMode), "images": len(f.Images)})
	return *f, nil
}

// CurrentFlow returns a snapshot of the flow in progress, if any.
func (m *Manager) CurrentFlow() (Flow, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.flow == nil {
		return Flow{}, false
	}
	return *m.flow, true
}

// beginGeneration flips the flow to generating and hands back its
// extracted source. The returned seq pins the result to this flow.
func (m *Manager) beginGeneration(flowID string) (text string, images []string, seq uint64, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.flow == nil || m.flow.ID != flowID {
		return "", nil, 0, ErrFlowNotFound
	}
	if m.flow.State != FlowAwaitingMode {
		return "", nil, 0, ErrFlowState
	}
	m.flow.State = FlowGenerating
	m.notify("flow", map[string]any{"flow_id": flowID, "state": string(FlowGenerating)})
	return m.flow.Text, m.flow.Images, m.flowSeq, nil
}

// finishGeneration records the outcome, unless a newer upload started
// while the generator was running. Stale results are dropped whole.
func (m *Manager) finishGeneration(ctx context.Context, flowID string, seq uint64, c course.Course, genErr error) (course.Course, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.flowSeq != seq || m.flow == nil || m.flow.ID != flowID {
		slog.Info("discarding result from superseded flow", "flow_id", flowID)
		return course.Course{}, ErrFlowSuperseded
	}
	m.flow.FinishedAt = time.Now()
	if genErr != nil {
		m.flow.State = FlowFailed
		m.flow.Err = genErr.Error()
		m.notify("flow", map[string]any{"flow_id": flowID, "state": string(FlowFailed), "error": m.flow.Err})
		return course.Course{}, genErr
	}

	courses := m.store.LoadCourses(ctx)
	courses = append(courses, c)
	m.store.SaveCourses(ctx, courses)

	m.flow.State = FlowDone
	m.flow.CourseID = c.ID
	m.activeCourse = c.ID
	m.activeLevel = -1

	if err := m.events.LogEvent(Event{
		CourseID:  c.ID,
		EventType: EventCourseCreated,
		Data:      map[string]any{"title": c.Title, "levels": len(c.Levels), "difficulty": string(c.Difficulty)},
	}); err != nil {
		slog.Warn("failed to log course_created event", "error", err)
	}
	m.notify("flow", map[string]any{"flow_id": flowID, "state": string(FlowDone), "course_id": c.ID})
	return c, nil
}

// GenerateAuto builds a course from the flow's source with an
// AI-chosen structure.
func (m *Manager) GenerateAuto(ctx context.Context, flowID string, difficulty course.Difficulty) (course.Course, error) {
	text, images, seq, err := m.beginGeneration(flowID)
	if err != nil {
		return course.Course{}, err
	}
	c, genErr := m.orch.BuildCourseAuto(ctx, text, images, difficulty)
	return m.finishGeneration(ctx, flowID, seq, c, genErr)
}

// GenerateManual builds a course from the flow's source with a
// user-chosen title and level outline.
func (m *Manager) GenerateManual(ctx context.Context, flowID, title string, levelTitles []string, difficulty course.Difficulty) (course.Course, error) {
	text, images, seq, err := m.beginGeneration(flowID)
	if err != nil {
		return course.Course{}, err
	}
	c, genErr := m.orch.BuildCourseManual(ctx, text, images, title, levelTitles, difficulty)
	return m.finishGeneration(ctx, flowID, seq, c, genErr)
}

// Supplement extracts an additional document and appends new levels
// to an existing course.
func (m *Manager) Supplement(ctx context.Context, courseID string, pdf []byte, difficulty course.Difficulty) (course.Course, error) {
	existing, err := m.GetCourse(ctx, courseID)
	if err != nil {
		return course.Course{}, err
	}

	result, err := m.extractor.Extract(ctx, pdf)
	if err != nil {
		return course.Course{}, err
	}
	if len(result.Text) < m.minTextChars {
		return course.Course{}, fmt.Errorf("%w: got %d characters, need %d", extract.ErrTooLittleText, len(result.Text), m.minTextChars)
	}

	levels, err := m.orch.SupplementalLevels(ctx, existing, result.Text, result.Images, difficulty)
	if err != nil {
		return course.Course{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	courses := m.store.LoadCourses(ctx)
	current, ok := course.Find(courses, courseID)
	if !ok {
		return course.Course{}, ErrCourseNotFound
	}
	updated := course.AppendLevels(current, levels)
	m.store.SaveCourses(ctx, course.Replace(courses, updated))

	if err := m.events.LogEvent(Event{
		CourseID:  courseID,
		EventType: EventLevelsAppended,
		Data:      map[string]any{"added": len(levels), "total": len(updated.Levels)},
	}); err != nil {
		slog.Warn("failed to log levels_appended event", "error", err)
	}
	m.notify("course", map[string]any{"course_id": courseID, "levels": len(updated.Levels)})
	return updated, nil
}

// SubmitQuiz records a quiz result against an unlocked level.
func (m *Manager) SubmitQuiz(ctx context.Context, courseID string, levelIndex int, quizID string, score int) (course.Course, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	courses := m.store.LoadCourses(ctx)
	current, ok := course.Find(courses, courseID)
	if !ok {
		return course.Course{}, ErrCourseNotFound
	}
	if levelIndex >= 0 && levelIndex < len(current.Levels) && !course.IsLevelUnlocked(current, levelIndex) {
		return course.Course{}, ErrLevelLocked
	}

	updated, err := course.CompleteQuiz(current, levelIndex, quizID, score, time.Now())
	if err != nil {
		return course.Course{}, err
	}
	m.store.SaveCourses(ctx, course.Replace(courses, updated))

	attempt := updated.History[len(updated.History)-1]
	if err := m.events.LogEvent(Event{
		CourseID:  courseID,
		EventType: EventQuizCompleted,
		Data: map[string]any{
			"quiz_id":    quizID,
			"level_id":   attempt.LevelID,
			"score":      attempt.Score,
			"total":      attempt.TotalQuestions,
			"percentage": attempt.Percentage,
		},
	}); err != nil {
		slog.Warn("failed to log quiz_completed event", "error", err)
	}
	m.notify("course", map[string]any{"course_id": courseID, "progress": updated.Progress})
	return updated, nil
}

// AddPracticeQuiz generates a fresh quiz for an unlocked level and
// appends it without touching level status or progress.
func (m *Manager) AddPracticeQuiz(ctx context.Context, courseID string, levelIndex int, difficulty course.Difficulty) (course.Course, error) {
	current, err := m.GetCourse(ctx, courseID)
	if err != nil {
		return course.Course{}, err
	}
	if levelIndex < 0 || levelIndex >= len(current.Levels) {
		return course.Course{}, course.ErrLevelOutOfRange
	}
	if !course.IsLevelUnlocked(current, levelIndex) {
		return course.Course{}, ErrLevelLocked
	}

	questions, err := m.orch.PracticeQuiz(ctx, current.Levels[levelIndex], difficulty)
	if err != nil {
		return course.Course{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	courses := m.store.LoadCourses(ctx)
	current, ok := course.Find(courses, courseID)
	if !ok {
		return course.Course{}, ErrCourseNotFound
	}
	updated, err := course.AppendPracticeQuiz(current, levelIndex, questions)
	if err != nil {
		return course.Course{}, err
	}
	m.store.SaveCourses(ctx, course.Replace(courses, updated))
	return updated, nil
}

// DeleteCourse removes a course. Deleting an unknown id is a no-op.
func (m *Manager) DeleteCourse(ctx context.Context, courseID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	courses := m.store.LoadCourses(ctx)
	remaining := course.DeleteCourse(courses, courseID)
	if len(remaining) == len(courses) {
		return
	}
	m.store.SaveCourses(ctx, remaining)

	if m.activeCourse == courseID {
		m.activeCourse = ""
		m.activeLevel = -1
		if m.view == ViewDetail {
			m.view = ViewList
		}
	}

	if err := m.events.LogEvent(Event{
		CourseID:  courseID,
		EventType: EventCourseDeleted,
	}); err != nil {
		slog.Warn("failed to log course_deleted event", "error", err)
	}
	m.notify("course", map[string]any{"course_id": courseID, "deleted": true})
}

// ListCourses returns all stored courses.
func (m *Manager) ListCourses(ctx context.Context) []course.Course {
	return m.store.LoadCourses(ctx)
}

// GetCourse returns one course by id.
func (m *Manager) GetCourse(ctx context.Context, courseID string) (course.Course, error) {
	c, ok := course.Find(m.store.LoadCourses(ctx), courseID)
	if !ok {
		return course.Course{}, ErrCourseNotFound
	}
	return c, nil
}

// SelectLevel marks a level as the one being studied. Locked levels
// cannot be selected.
func (m *Manager) SelectLevel(ctx context.Context, courseID string, levelIndex int) error {
	c, err := m.GetCourse(ctx, courseID)
	if err != nil {
		return err
	}
	if levelIndex < 0 || levelIndex >= len(c.Levels) {
		return course.ErrLevelOutOfRange
	}
	if !course.IsLevelUnlocked(c, levelIndex) {
		return ErrLevelLocked
	}
	m.mu.Lock()
	m.activeCourse = courseID
	m.activeLevel = levelIndex
	m.view = ViewDetail
	m.mu.Unlock()
	return nil
}

// Active returns the course id and level index currently being studied.
// The level index is -1 when no level is selected.
func (m *Manager) Active() (courseID string, levelIndex int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeCourse, m.activeLevel
}

// CurrentView returns the screen the client last reported.
func (m *Manager) CurrentView() View {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view
}

// SetView records the screen the client navigated to. Unknown values
// are rejected so stale clients cannot wedge the session.
func (m *Manager) SetView(v View) error {
	switch v {
	case ViewList, ViewDetail, ViewTrivia:
	default:
		return fmt.Errorf("unknown view %q", v)
	}
	m.mu.Lock()
	m.view = v
	m.mu.Unlock()
	return nil
}

// Theme returns the saved UI theme, empty when unset.
func (m *Manager) Theme(ctx context.Context) string {
	return m.store.LoadTheme(ctx)
}

// SetTheme persists the UI theme.
func (m *Manager) SetTheme(ctx context.Context, theme string) {
	m.store.SaveTheme(ctx, theme)
}

// LogTrivia records a trivia answer for activity history.
func (m *Manager) LogTrivia(region string, correct bool) {
	if err := m.events.LogEvent(Event{
		EventType: EventTriviaAnswered,
		Data:      map[string]any{"region": region, "correct": correct},
	}); err != nil {
		slog.Warn("failed to log trivia_answered event", "error", err)
	}
}
