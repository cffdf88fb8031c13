package course

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrLevelOutOfRange reports a level index outside the course.
	ErrLevelOutOfRange = errors.New("level index out of range")
	// ErrQuizNotFound reports a quiz id absent from the addressed level.
	ErrQuizNotFound = errors.New("quiz not found")
)

// computeProgress derives the progress percentage from the level list.
// An empty level list yields 0, never a division by zero.
func computeProgress(levels []Level) int {
	if len(levels) == 0 {
		return 0
	}
	completed := 0
	for _, lvl := range levels {
		if lvl.Status == LevelCompleted {
			completed++
		}
	}
	return int(math.Round(100 * float64(completed) / float64(len(levels))))
}

// attemptPercentage guards against quizzes that ended up with no
// questions (a generator failure mode): they score 0%, not a panic.
func attemptPercentage(score, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(100 * float64(score) / float64(total)))
}

// CompleteQuiz marks the quiz with quizID inside the level at levelIndex
// as completed with the given score, appends a QuizAttempt stamped with
// now, completes the level if the quiz is its knowledge check, and
// recomputes progress. The input course is not modified; on error it is
// returned unchanged.
func CompleteQuiz(c Course, levelIndex int, quizID string, score int, now time.Time) (Course, error) {
	if levelIndex < 0 || levelIndex >= len(c.Levels) {
		return c, fmt.Errorf("complete quiz: %w: %d", ErrLevelOutOfRange, levelIndex)
	}

	out := c.Clone()
	lvl := &out.Levels[levelIndex]

	quizIdx := -1
	for i, q := range lvl.Quizzes {
		if q.ID == quizID {
			quizIdx = i
			break
		}
	}
	if quizIdx == -1 {
		return c, fmt.Errorf("complete quiz: %w: %s", ErrQuizNotFound, quizID)
	}

	quiz := &lvl.Quizzes[quizIdx]
	quiz.Status = QuizCompleted
	s := score
	quiz.Score = &s

	out.History = append(out.History, QuizAttempt{
		ID:             NewID(),
		QuizID:         quiz.ID,
		LevelID:        lvl.ID,
		LevelTitle:     lvl.Title,
		Score:          score,
		TotalQuestions: len(quiz.Questions),
		Percentage:     attemptPercentage(score, len(quiz.Questions)),
		Timestamp:      now,
	})

	// Only the knowledge check (index 0) completes a level; practice
	// quizzes never change level status.
	if quizIdx == 0 && lvl.Status != LevelCompleted {
		lvl.Status = LevelCompleted
	}

	out.Progress = computeProgress(out.Levels)
	return out, nil
}

// AppendPracticeQuiz appends a fresh not-started quiz to the level at
// levelIndex. Level status and course progress are unaffected.
func AppendPracticeQuiz(c Course, levelIndex int, questions []QuizQuestion) (Course, error) {
	if levelIndex < 0 || levelIndex >= len(c.Levels) {
		return c, fmt.Errorf("append practice quiz: %w: %d", ErrLevelOutOfRange, levelIndex)
	}

	out := c.Clone()
	out.Levels[levelIndex].Quizzes = append(out.Levels[levelIndex].Quizzes, Quiz{
		ID:        NewID(),
		Questions: questions,
		Status:    QuizNotStarted,
	})
	return out, nil
}

// AppendLevels appends fully-formed levels to the end of the course and
// recomputes progress. The denominator grows, so progress can drop even
// though no existing level regressed; that is the intended reading of
// "percent of current material completed".
func AppendLevels(c Course, newLevels []Level) Course {
	out := c.Clone()
	for _, lvl := range newLevels {
		out.Levels = append(out.Levels, lvl.clone())
	}
	out.Progress = computeProgress(out.Levels)
	return out
}

// IsLevelUnlocked reports whether the level at levelIndex may be viewed.
// Level 0 is always unlocked; any other level requires the previous one
// to be completed.
func IsLevelUnlocked(c Course, levelIndex int) bool {
	if levelIndex < 0 || levelIndex >= len(c.Levels) {
		return false
	}
	if levelIndex == 0 {
		return true
	}
	return c.Levels[levelIndex-1].Status == LevelCompleted
}

// DeleteCourse removes the course with the given id from the collection.
// Deleting an absent id is a no-op, which makes deletion idempotent.
func DeleteCourse(courses []Course, id string) []Course {
	out := make([]Course, 0, len(courses))
	for _, c := range courses {
		if c.ID != id {
			out = append(out, c)
		}
	}
	return out
}

// Find returns the course with the given id, if present.
func Find(courses []Course, id string) (Course, bool) {
	for _, c := range courses {
		if c.ID == id {
			return c, true
		}
	}
	return Course{}, false
}

// Replace swaps the course matching updated.ID into the collection.
// Callers always write whole courses back, never field-level deltas, so a
// concurrent read never observes a half-applied mutation.
func Replace(courses []Course, updated Course) []Course {
	out := append([]Course(nil), courses...)
	for i, c := range out {
		if c.ID == updated.ID {
			out[i] = updated
			return out
		}
	}
	return out
}
