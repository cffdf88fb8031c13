package generate

import (
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// The schema documents below do double duty: they are sent to the
// provider as the response schema and enforced locally with gojsonschema
// before any generated data reaches the course model. The external
// generator is not trusted to honor its contract.

func questionSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"question": map[string]any{
				"type":        "string",
				"description": "The question prompt shown to the learner",
			},
			"options": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"minItems":    4,
				"maxItems":    4,
				"description": "Exactly 4 answer options, exactly one correct",
			},
			"correct_answer": map[string]any{
				"type":        "string",
				"description": "The text of the correct option, verbatim",
			},
			"image_index": map[string]any{
				"type":        "integer",
				"description": "0-based index into the supplied image list, or -1 for none",
			},
		},
		"required": []any{"question", "options", "correct_answer", "image_index"},
	}
}

func referencesSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"articles": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
			"videos": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
		},
		"required": []any{"articles", "videos"},
	}
}

func levelSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"level_title": map[string]any{"type": "string"},
			"summary": map[string]any{
				"type":        "string",
				"description": "Teaching summary of this level's material",
			},
			"image_index": map[string]any{
				"type":        "integer",
				"description": "0-based index into the supplied image list, or -1 for none",
			},
			"questions": map[string]any{
				"type":     "array",
				"items":    questionSchema(),
				"minItems": 1,
			},
			"references": referencesSchema(),
		},
		"required": []any{"level_title", "summary", "image_index", "questions", "references"},
	}
}

func courseSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"course_title": map[string]any{"type": "string"},
			"levels": map[string]any{
				"type":     "array",
				"items":    levelSchema(),
				"minItems": 3,
				"maxItems": 3,
			},
			"next_steps": nextStepsSchema(),
		},
		"required": []any{"course_title", "levels", "next_steps"},
	}
}

func levelContentSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"summary":     map[string]any{"type": "string"},
			"image_index": map[string]any{"type": "integer"},
			"questions": map[string]any{
				"type":     "array",
				"items":    questionSchema(),
				"minItems": 1,
			},
			"references": referencesSchema(),
		},
		"required": []any{"summary", "image_index", "questions", "references"},
	}
}

func nextStepsSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"related_topics": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
			"advanced_material": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"title":       map[string]any{"type": "string"},
						"description": map[string]any{"type": "string"},
					},
					"required": []any{"title", "description"},
				},
			},
		},
		"required": []any{"related_topics", "advanced_material"},
	}
}

func quizSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"questions": map[string]any{
				"type":     "array",
				"items":    questionSchema(),
				"minItems": 1,
			},
		},
		"required": []any{"questions"},
	}
}

func supplementSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"levels": map[string]any{
				"type":     "array",
				"items":    levelSchema(),
				"minItems": 2,
				"maxItems": 2,
			},
		},
		"required": []any{"levels"},
	}
}

// decode validates raw generator output against a schema and unmarshals
// it. Non-JSON or wrong-shape output comes back as one error for the
// caller to wrap as a GenerationError.
func decode(content string, schema map[string]any, v any) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(schema),
		gojsonschema.NewStringLoader(content),
	)
	if err != nil {
		return fmt.Errorf("response is not valid JSON: %w", err)
	}
	if !result.Valid() {
		return fmt.Errorf("response violates schema: %s", result.Errors()[0])
	}
	if err := json.Unmarshal([]byte(content), v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
