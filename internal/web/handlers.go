package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/studyloop/studyloop/internal/ai"
	"github.com/studyloop/studyloop/internal/course"
	"github.com/studyloop/studyloop/internal/export"
	"github.com/studyloop/studyloop/internal/extract"
	"github.com/studyloop/studyloop/internal/generate"
	"github.com/studyloop/studyloop/internal/session"
	"github.com/studyloop/studyloop/internal/trivia"
)

const maxUploadBytes = 25 << 20 // 25 MiB

// Server holds the handler dependencies.
type Server struct {
	manager *session.Manager
	game    *trivia.Game
	hub     *Hub
}

func NewServer(manager *session.Manager, game *trivia.Game, hub *Hub) *Server {
	return &Server{manager: manager, game: game, hub: hub}
}

// NewMux creates the HTTP router.
func (s *Server) NewMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealthz)
	mux.HandleFunc("GET /readyz", handleReadyz)

	mux.HandleFunc("POST /api/uploads", s.handleUpload)
	mux.HandleFunc("GET /api/uploads/current", s.handleCurrentFlow)
	mux.HandleFunc("POST /api/uploads/{flowID}/auto", s.handleGenerateAuto)
	mux.HandleFunc("POST /api/uploads/{flowID}/manual", s.handleGenerateManual)

	mux.HandleFunc("GET /api/courses", s.handleListCourses)
	mux.HandleFunc("GET /api/courses/{id}", s.handleGetCourse)
	mux.HandleFunc("DELETE /api/courses/{id}", s.handleDeleteCourse)
	mux.HandleFunc("POST /api/courses/{id}/supplement", s.handleSupplement)
	mux.HandleFunc("POST /api/courses/{id}/quiz-results", s.handleSubmitQuiz)
	mux.HandleFunc("POST /api/courses/{id}/practice-quiz", s.handlePracticeQuiz)
	mux.HandleFunc("POST /api/courses/{id}/active-level", s.handleSelectLevel)
	mux.HandleFunc("GET /api/courses/{id}/export", s.handleExport)

	mux.HandleFunc("GET /api/trivia/regions", s.handleTriviaRegions)
	mux.HandleFunc("POST /api/trivia/question", s.handleTriviaQuestion)
	mux.HandleFunc("POST /api/trivia/answer", s.handleTriviaAnswer)
	mux.HandleFunc("GET /api/trivia/history", s.handleTriviaHistory)

	mux.HandleFunc("GET /api/theme", s.handleGetTheme)
	mux.HandleFunc("PUT /api/theme", s.handleSetTheme)
	mux.HandleFunc("GET /api/view", s.handleGetView)
	mux.HandleFunc("PUT /api/view", s.handleSetView)

	if s.hub != nil {
		mux.HandleFunc("GET /ws/events", s.hub.HandleEvents)
	}
	return mux
}

func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func handleReadyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	pdf, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUploadBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "upload too large")
		return
	}
	if len(pdf) == 0 {
		writeError(w, http.StatusBadRequest, "empty upload")
		return
	}

	flow, err := s.manager.StartUpload(r.Context(), pdf)
	if err != nil {
		writeTaxonomyError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, flowView(flow))
}

func (s *Server) handleCurrentFlow(w http.ResponseWriter, _ *http.Request) {
	flow, ok := s.manager.CurrentFlow()
	if !ok {
		writeError(w, http.StatusNotFound, "no upload in progress")
		return
	}
	writeJSON(w, http.StatusOK, flowView(flow))
}

func (s *Server) handleGenerateAuto(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Difficulty string `json:"difficulty"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	difficulty, err := parseDifficulty(req.Difficulty)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	c, err := s.manager.GenerateAuto(r.Context(), r.PathValue("flowID"), difficulty)
	if err != nil {
		writeTaxonomyError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleGenerateManual(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title       string   `json:"title"`
		LevelTitles []string `json:"level_titles"`
		Difficulty  string   `json:"difficulty"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	difficulty, err := parseDifficulty(req.Difficulty)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	c, err := s.manager.GenerateManual(r.Context(), r.PathValue("flowID"), req.Title, req.LevelTitles, difficulty)
	if err != nil {
		writeTaxonomyError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleListCourses(w http.ResponseWriter, r *http.Request) {
	courses := s.manager.ListCourses(r.Context())
	if courses == nil {
		courses = []course.Course{}
	}
	writeJSON(w, http.StatusOK, courses)
}

func (s *Server) handleGetCourse(w http.ResponseWriter, r *http.Request) {
	c, err := s.manager.GetCourse(r.Context(), r.PathValue("id"))
	if err != nil {
		writeTaxonomyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleDeleteCourse(w http.ResponseWriter, r *http.Request) {
	s.manager.DeleteCourse(r.Context(), r.PathValue("id"))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSupplement(w http.ResponseWriter, r *http.Request) {
	pdf, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUploadBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "upload too large")
		return
	}
	difficulty, err := parseDifficulty(r.URL.Query().Get("difficulty"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	c, err := s.manager.Supplement(r.Context(), r.PathValue("id"), pdf, difficulty)
	if err != nil {
		writeTaxonomyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleSubmitQuiz(w http.ResponseWriter, r *http.Request) {
	var req struct {
		LevelIndex int    `json:"level_index"`
		QuizID     string `json:"quiz_id"`
		Score      int    `json:"score"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	c, err := s.manager.SubmitQuiz(r.Context(), r.PathValue("id"), req.LevelIndex, req.QuizID, req.Score)
	if err != nil {
		writeTaxonomyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handlePracticeQuiz(w http.ResponseWriter, r *http.Request) {
	var req struct {
		LevelIndex int    `json:"level_index"`
		Difficulty string `json:"difficulty"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	difficulty, err := parseDifficulty(req.Difficulty)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	c, err := s.manager.AddPracticeQuiz(r.Context(), r.PathValue("id"), req.LevelIndex, difficulty)
	if err != nil {
		writeTaxonomyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleSelectLevel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		LevelIndex int `json:"level_index"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.manager.SelectLevel(r.Context(), r.PathValue("id"), req.LevelIndex); err != nil {
		writeTaxonomyError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	c, err := s.manager.GetCourse(r.Context(), r.PathValue("id"))
	if err != nil {
		writeTaxonomyError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "quiz-history.xlsx"))
	if err := export.WriteHistory(w, c); err != nil {
		slog.Error("export failed", "course_id", c.ID, "error", err)
	}
}

func (s *Server) handleTriviaRegions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.game.Regions())
}

// questionView hides the answer from the client.
type questionView struct {
	ID       string `json:"id"`
	RegionID string `json:"region_id"`
	Prompt   string `json:"prompt"`
}

func (s *Server) handleTriviaQuestion(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RegionID string `json:"region_id"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	q, err := s.game.Ask(r.Context(), req.RegionID)
	if err != nil {
		writeTaxonomyError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, questionView{ID: q.ID, RegionID: q.RegionID, Prompt: q.Prompt})
}

func (s *Server) handleTriviaAnswer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Guess string `json:"guess"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	active, _ := s.game.Active(r.Context())
	out, err := s.game.Answer(r.Context(), req.Guess)
	if err != nil {
		writeTaxonomyError(w, err)
		return
	}
	s.manager.LogTrivia(active.RegionID, out.Correct)
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleTriviaHistory(w http.ResponseWriter, r *http.Request) {
	history := s.game.History(r.Context())
	if history == nil {
		history = []trivia.Attempt{}
	}
	writeJSON(w, http.StatusOK, history)
}

func (s *Server) handleGetTheme(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"theme": s.manager.Theme(r.Context())})
}

func (s *Server) handleSetTheme(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Theme string `json:"theme"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.manager.SetTheme(r.Context(), req.Theme)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetView(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"view": string(s.manager.CurrentView())})
}

func (s *Server) handleSetView(w http.ResponseWriter, r *http.Request) {
	var req struct {
		View string `json:"view"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.manager.SetView(session.View(req.View)); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type flowJSON struct {
	ID     string `json:"id"`
	State  string `json:"state"`
	Images int    `json:"images"`
	Course string `json:"course_id,omitempty"`
	Error  string `json:"error,omitempty"`
}

func flowView(f session.Flow) flowJSON {
	return flowJSON{
		ID:     f.ID,
		State:  string(f.State),
		Images: len(f.Images),
		Course: f.CourseID,
		Error:  f.Err,
	}
}

func parseDifficulty(s string) (course.Difficulty, error) {
	switch s {
	case "", string(course.DifficultyBeginner):
		return course.DifficultyBeginner, nil
	case string(course.DifficultyAdvanced):
		return course.DifficultyAdvanced, nil
	default:
		return "", fmt.Errorf("unknown difficulty %q", s)
	}
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeTaxonomyError maps domain errors to HTTP status codes.
func writeTaxonomyError(w http.ResponseWriter, err error) {
	var valErr *generate.ValidationError
	var genErr *generate.GenerationError

	switch {
	case errors.As(err, &valErr):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, extract.ErrTooLittleText):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, session.ErrCourseNotFound),
		errors.Is(err, session.ErrFlowNotFound),
		errors.Is(err, course.ErrQuizNotFound),
		errors.Is(err, course.ErrLevelOutOfRange),
		errors.Is(err, trivia.ErrUnknownRegion),
		errors.Is(err, trivia.ErrNoActiveQuestion):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, session.ErrLevelLocked),
		errors.Is(err, session.ErrFlowState),
		errors.Is(err, session.ErrFlowSuperseded):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ai.ErrBudgetExhausted):
		writeError(w, http.StatusTooManyRequests, err.Error())
	case errors.As(err, &genErr):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
