package generate

import (
	"fmt"
	"strings"

	"github.com/studyloop/studyloop/internal/course"
)

const promptRules = `You are an instructional designer turning source material into a short interactive course.

Rules:
- Work only from the supplied source text; do not invent facts it does not support.
- Write summaries that teach, not abstracts that describe.
- Every quiz question has exactly 4 options and exactly one correct answer; the correct_answer field repeats the correct option verbatim.
- Distractors should reflect plausible misunderstandings of the material, not random values.
- image_index refers to the numbered image list supplied with the request; use -1 when no image fits.
- Reference suggestions are search-friendly titles, not URLs.`

func difficultyLine(d course.Difficulty) string {
	if d == course.DifficultyAdvanced {
		return "Audience: advanced readers already familiar with the basics. Assume prior knowledge and go deep."
	}
	return "Audience: beginners with no prior exposure. Explain terms on first use."
}

// truncate keeps prompts bounded on very large documents.
func truncate(text string, max int) string {
	if len(text) <= max {
		return text
	}
	return text[:max] + "\n[source truncated]"
}

const maxSourceChars = 60000

func buildAutoCoursePrompt(text string, imageCount int, difficulty course.Difficulty) string {
	var b strings.Builder
	b.WriteString(promptRules)
	b.WriteString("\n\n")
	b.WriteString(difficultyLine(difficulty))
	fmt.Fprintf(&b, "\n\nCreate a complete course: a course title, exactly 3 levels in teaching order, and next-step suggestions.\n")
	fmt.Fprintf(&b, "Each level needs a title, a summary, one knowledge-check quiz, and reference suggestions.\n")
	fmt.Fprintf(&b, "%d source images are attached, numbered 0 to %d.\n", imageCount, imageCount-1)
	b.WriteString("\nSource text:\n")
	b.WriteString(truncate(text, maxSourceChars))
	return b.String()
}

func buildLevelPrompt(text, courseTitle, levelTitle string, imageCount int, difficulty course.Difficulty) string {
	var b strings.Builder
	b.WriteString(promptRules)
	b.WriteString("\n\n")
	b.WriteString(difficultyLine(difficulty))
	fmt.Fprintf(&b, "\n\nCourse: %s\n", courseTitle)
	fmt.Fprintf(&b, "Write the content for the single level titled %q: a summary, one knowledge-check quiz, and reference suggestions, scoped strictly to that level's topic within the source.\n", levelTitle)
	fmt.Fprintf(&b, "%d source images are attached, numbered 0 to %d.\n", imageCount, imageCount-1)
	b.WriteString("\nSource text:\n")
	b.WriteString(truncate(text, maxSourceChars))
	return b.String()
}

func buildNextStepsPrompt(text, courseTitle string, difficulty course.Difficulty) string {
	var b strings.Builder
	b.WriteString(promptRules)
	b.WriteString("\n\n")
	b.WriteString(difficultyLine(difficulty))
	fmt.Fprintf(&b, "\n\nThe course %q has been built from the source below. Suggest related topics to study next and advanced case-study material.\n", courseTitle)
	b.WriteString("\nSource text:\n")
	b.WriteString(truncate(text, maxSourceChars))
	return b.String()
}

func buildPracticeQuizPrompt(level course.Level, difficulty course.Difficulty) string {
	var b strings.Builder
	b.WriteString(promptRules)
	b.WriteString("\n\n")
	b.WriteString(difficultyLine(difficulty))
	fmt.Fprintf(&b, "\n\nWrite a fresh practice quiz for the level %q. Do not reuse questions the learner has already seen.\n", level.Title)
	b.WriteString("\nLevel summary:\n")
	b.WriteString(level.Summary)
	if prior := priorQuestions(level); len(prior) > 0 {
		b.WriteString("\n\nQuestions already asked:\n")
		for _, q := range prior {
			b.WriteString("- ")
			b.WriteString(q)
			b.WriteString("\n")
		}
	}
	return b.String()
}

func priorQuestions(level course.Level) []string {
	var out []string
	for _, quiz := range level.Quizzes {
		for _, q := range quiz.Questions {
			out = append(out, q.Question)
		}
	}
	return out
}

func buildSupplementPrompt(existingTitles []string, newText string, imageCount int, difficulty course.Difficulty) string {
	var b strings.Builder
	b.WriteString(promptRules)
	b.WriteString("\n\n")
	b.WriteString(difficultyLine(difficulty))
	b.WriteString("\n\nThe course already covers these levels:\n")
	for _, title := range existingTitles {
		b.WriteString("- ")
		b.WriteString(title)
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "\nCreate exactly 2 new levels from the new source material below, without duplicating the existing levels.\n")
	fmt.Fprintf(&b, "%d source images are attached, numbered 0 to %d.\n", imageCount, imageCount-1)
	b.WriteString("\nNew source text:\n")
	b.WriteString(truncate(newText, maxSourceChars))
	return b.String()
}
