package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

type Category string

const (
	CategoryHealth   Category = "health"
	CategoryAcademic Category = "academic"
	CategoryWellness Category = "wellness"
)

// Categories lists every chat category in display order.
var Categories = []Category{CategoryHealth, CategoryAcademic, CategoryWellness}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategoryHealth, CategoryAcademic, CategoryWellness:
		return true
	}
	return false
}

type SourceType string

const (
	SourceAIGenerated  SourceType = "ai_generated"
	SourcePPTGenerated SourceType = "ppt_generated"
	SourceManual       SourceType = "manual"
)

type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

func (d Difficulty) Valid() bool {
	return d == DifficultyEasy || d == DifficultyMedium || d == DifficultyHard
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Conversation struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Category  Category  `json:"category"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
}

type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"createdAt"`
}

type Flashcard struct {
	ID         string     `json:"id"`
	UserID     string     `json:"userId"`
	Title      string     `json:"title"`
	Front      string     `json:"front"`
	Back       string     `json:"back"`
	Category   Category   `json:"category"`
	SourceType SourceType `json:"sourceType"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// QuizQuestion is one multiple-choice question; CorrectAnswer indexes Options.
type QuizQuestion struct {
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer int      `json:"correctAnswer"`
}

// UnmarshalJSON accepts correctAnswer as any whole JSON number, so 2 and 2.0 both
// decode; a fractional index is an error and a missing one decodes as -1.
func (q *QuizQuestion) UnmarshalJSON(data []byte) error {
	var raw struct {
		Question      string      `json:"question"`
		Options       []string    `json:"options"`
		CorrectAnswer json.Number `json:"correctAnswer"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	answer := -1
	if raw.CorrectAnswer != "" {
		f, err := raw.CorrectAnswer.Float64()
		if err != nil {
			return fmt.Errorf("correctAnswer %q: %w", raw.CorrectAnswer, err)
		}
		if f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
			return fmt.Errorf("correctAnswer %s is not a whole index", raw.CorrectAnswer)
		}
		answer = int(f)
	}
	*q = QuizQuestion{Question: raw.Question, Options: raw.Options, CorrectAnswer: answer}
	return nil
}

type Quiz struct {
	ID          string         `json:"id"`
	UserID      string         `json:"userId"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Questions   []QuizQuestion `json:"questions"`
	SourceType  SourceType     `json:"sourceType"`
	CreatedAt   time.Time      `json:"createdAt"`
}

type QuizResult struct {
	ID             string    `json:"id"`
	UserID         string    `json:"userId"`
	QuizID         string    `json:"quizId"`
	Score          int       `json:"score"`
	TotalQuestions int       `json:"totalQuestions"`
	CompletedAt    time.Time `json:"completedAt"`
}

type UploadedDocument struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	FileName  string    `json:"fileName"`
	FilePath  string    `json:"filePath"`
	FileType  string    `json:"fileType"`
	FileSize  int64     `json:"fileSize"`
	CreatedAt time.Time `json:"createdAt"`
}

type RunStatus string

const (
	RunPending    RunStatus = "pending"
	RunProcessing RunStatus = "processing"
	RunDone       RunStatus = "done"
	RunFailed     RunStatus = "failed"
)

// ProcessingRun records which document-processing steps have committed,
// so a failed run resumes instead of repeating finished work.
type ProcessingRun struct {
	ID              string    `json:"id"`
	UserID          string    `json:"userId"`
	FilePath        string    `json:"filePath"`
	FileName        string    `json:"fileName"`
	Status          RunStatus `json:"status"`
	ExtractedText   string    `json:"-"`
	FlashcardsDone  bool      `json:"flashcardsDone"`
	FlashcardsCount int       `json:"flashcardsCount"`
	QuizDone        bool      `json:"quizDone"`
	QuizID          string    `json:"quizId,omitempty"`
	QuestionsCount  int       `json:"questionsCount"`
	ErrorMessage    string    `json:"errorMessage,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// Extracted reports whether the extraction step has committed.
func (r ProcessingRun) Extracted() bool {
	return r.ExtractedText != ""
}
