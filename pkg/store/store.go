package store

import (
	"context"
	"time"

	"github.com/CJSBLACKPEARL/spark-fullstack-buddy/pkg/domain"
)

// Store defines persistence for the study tables. Every read is scoped to the
// owning user; callers never see another user's rows.
type Store interface {
	// conversations
	CreateConversation(ctx context.Context, c domain.Conversation) error
	GetConversation(ctx context.Context, userID, id string) (domain.Conversation, bool, error)
	ListConversations(ctx context.Context, userID string) ([]domain.Conversation, error)
	AppendMessage(ctx context.Context, msg domain.Message) error
	// ListMessages returns the newest limit messages in chronological order; limit <= 0 means all.
	ListMessages(ctx context.Context, conversationID string, limit int) ([]domain.Message, error)
	CountMessages(ctx context.Context, conversationID string) (int, error)

	// flashcards
	CreateFlashcards(ctx context.Context, cards []domain.Flashcard) error
	ListFlashcards(ctx context.Context, userID string, limit int) ([]domain.Flashcard, error)
	CountFlashcardsSince(ctx context.Context, userID string, since time.Time) (int, error)

	// quizzes
	CreateQuiz(ctx context.Context, q domain.Quiz) error
	GetQuiz(ctx context.Context, userID, id string) (domain.Quiz, bool, error)
	ListQuizzes(ctx context.Context, userID string, limit int) ([]domain.Quiz, error)
	QuizTitles(ctx context.Context, ids []string) (map[string]string, error)

	// quiz results
	CreateQuizResult(ctx context.Context, r domain.QuizResult) error
	ListQuizResultsSince(ctx context.Context, userID string, since time.Time) ([]domain.QuizResult, error)
	ListRecentQuizResults(ctx context.Context, userID string, limit int) ([]domain.QuizResult, error)

	// documents
	CreateDocument(ctx context.Context, d domain.UploadedDocument) error
	GetDocument(ctx context.Context, userID, id string) (domain.UploadedDocument, bool, error)
	ListDocuments(ctx context.Context, userID string) ([]domain.UploadedDocument, error)

	// document processing runs
	GetRun(ctx context.Context, userID, filePath string) (domain.ProcessingRun, bool, error)
	SaveRun(ctx context.Context, run domain.ProcessingRun) error
	// ClaimRun atomically moves the run for (run.UserID, run.FilePath) to processing,
	// inserting run when none exists. It returns the stored run and true when the caller
	// now owns it; a done run, or a processing run updated at or after staleBefore,
	// is returned unchanged with false.
	ClaimRun(ctx context.Context, run domain.ProcessingRun, staleBefore time.Time) (domain.ProcessingRun, bool, error)
	// CommitFlashcardStep inserts the cards and saves run in one unit where the backend allows it.
	CommitFlashcardStep(ctx context.Context, run domain.ProcessingRun, cards []domain.Flashcard) error
	// CommitQuizStep inserts the quiz and saves run in one unit where the backend allows it.
	CommitQuizStep(ctx context.Context, run domain.ProcessingRun, quiz domain.Quiz) error

	Close() error
}

// runClaimable reports whether a stored run may be taken over by a new caller.
func runClaimable(run domain.ProcessingRun, staleBefore time.Time) bool {
	switch run.Status {
	case domain.RunDone:
		return false
	case domain.RunProcessing:
		return run.UpdatedAt.Before(staleBefore)
	default:
		return true
	}
}
