package ai

import (
	openai "github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"

	"github.com/CJSBLACKPEARL/spark-fullstack-buddy/pkg/domain"
)

const (
	FlashcardsToolName = "create_flashcards"
	QuizToolName       = "create_quiz"
)

// FlashcardsArgs is the argument payload of create_flashcards.
type FlashcardsArgs struct {
	Flashcards []struct {
		Front string `json:"front"`
		Back  string `json:"back"`
	} `json:"flashcards"`
}

// QuizArgs is the argument payload of create_quiz.
type QuizArgs struct {
	Title     string                `json:"title"`
	Questions []domain.QuizQuestion `json:"questions"`
}

func FlashcardsTool() openai.Tool {
	return openai.Tool{
		Type: openai.ToolTypeFunction,
		Function: &openai.FunctionDefinition{
			Name:        FlashcardsToolName,
			Description: "Create a set of educational flashcards",
			Parameters: jsonschema.Definition{
				Type: jsonschema.Object,
				Properties: map[string]jsonschema.Definition{
					"flashcards": {
						Type: jsonschema.Array,
						Items: &jsonschema.Definition{
							Type: jsonschema.Object,
							Properties: map[string]jsonschema.Definition{
								"front": {Type: jsonschema.String, Description: "Question or prompt"},
								"back":  {Type: jsonschema.String, Description: "Answer or explanation"},
							},
							Required: []string{"front", "back"},
						},
					},
				},
				Required: []string{"flashcards"},
			},
		},
	}
}

func QuizTool() openai.Tool {
	return openai.Tool{
		Type: openai.ToolTypeFunction,
		Function: &openai.FunctionDefinition{
			Name:        QuizToolName,
			Description: "Create a multiple-choice quiz",
			Parameters: jsonschema.Definition{
				Type: jsonschema.Object,
				Properties: map[string]jsonschema.Definition{
					"title": {Type: jsonschema.String},
					"questions": {
						Type: jsonschema.Array,
						Items: &jsonschema.Definition{
							Type: jsonschema.Object,
							Properties: map[string]jsonschema.Definition{
								"question": {Type: jsonschema.String},
								"options": {
									Type:        jsonschema.Array,
									Items:       &jsonschema.Definition{Type: jsonschema.String},
									Description: "Exactly 4 options",
								},
								"correctAnswer": {Type: jsonschema.Integer, Description: "Index of correct option (0-3)"},
							},
							Required: []string{"question", "options", "correctAnswer"},
						},
					},
				},
				Required: []string{"title", "questions"},
			},
		},
	}
}
