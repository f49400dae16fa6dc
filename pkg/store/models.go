package store

import (
	"encoding/json"
	"time"

	"github.com/CJSBLACKPEARL/spark-fullstack-buddy/pkg/domain"
	"gorm.io/datatypes"
)

// GORM models mirror the BaaS tables so either backend reads the same rows.
type ConversationModel struct {
	ID        string    `gorm:"type:uuid;primaryKey"`
	UserID    string    `gorm:"type:uuid;not null;index:idx_conv_user_created,priority:1"`
	Category  string    `gorm:"not null"`
	Title     string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null;index:idx_conv_user_created,priority:2"`
}

func (ConversationModel) TableName() string { return "chat_conversations" }

type MessageModel struct {
	ID             string    `gorm:"type:uuid;primaryKey"`
	ConversationID string    `gorm:"type:uuid;not null;index:idx_msg_conv_created,priority:1"`
	Role           string    `gorm:"not null"`
	Content        string    `gorm:"type:text;not null"`
	CreatedAt      time.Time `gorm:"not null;index:idx_msg_conv_created,priority:2"`
}

func (MessageModel) TableName() string { return "chat_messages" }

type FlashcardModel struct {
	ID         string    `gorm:"type:uuid;primaryKey"`
	UserID     string    `gorm:"type:uuid;not null;index:idx_card_user_created,priority:1"`
	Title      string    `gorm:"not null"`
	Front      string    `gorm:"type:text;not null"`
	Back       string    `gorm:"type:text;not null"`
	Category   string    `gorm:"not null"`
	SourceType string    `gorm:"not null"`
	CreatedAt  time.Time `gorm:"not null;index:idx_card_user_created,priority:2"`
}

func (FlashcardModel) TableName() string { return "flashcards" }

type QuizModel struct {
	ID          string         `gorm:"type:uuid;primaryKey"`
	UserID      string         `gorm:"type:uuid;not null;index:idx_quiz_user_created,priority:1"`
	Title       string         `gorm:"not null"`
	Description string         `gorm:"type:text"`
	Questions   datatypes.JSON `gorm:"type:jsonb;not null"`
	SourceType  string         `gorm:"not null"`
	CreatedAt   time.Time      `gorm:"not null;index:idx_quiz_user_created,priority:2"`
}

func (QuizModel) TableName() string { return "quizzes" }

type QuizResultModel struct {
	ID             string    `gorm:"type:uuid;primaryKey"`
	UserID         string    `gorm:"type:uuid;not null;index:idx_result_user_completed,priority:1"`
	QuizID         string    `gorm:"type:uuid;not null;index"`
	Score          int       `gorm:"not null"`
	TotalQuestions int       `gorm:"not null"`
	CompletedAt    time.Time `gorm:"not null;index:idx_result_user_completed,priority:2"`
}

func (QuizResultModel) TableName() string { return "quiz_results" }

type DocumentModel struct {
	ID        string    `gorm:"type:uuid;primaryKey"`
	UserID    string    `gorm:"type:uuid;not null;index"`
	FileName  string    `gorm:"not null"`
	FilePath  string    `gorm:"not null;uniqueIndex"`
	FileType  string    `gorm:"not null"`
	FileSize  int64     `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
}

func (DocumentModel) TableName() string { return "uploaded_documents" }

type ProcessingRunModel struct {
	ID              string    `gorm:"type:uuid;primaryKey"`
	UserID          string    `gorm:"type:uuid;not null;uniqueIndex:idx_run_user_path,priority:1"`
	FilePath        string    `gorm:"not null;uniqueIndex:idx_run_user_path,priority:2"`
	FileName        string    `gorm:"not null"`
	Status          string    `gorm:"not null"`
	ExtractedText   string    `gorm:"type:text"`
	FlashcardsDone  bool      `gorm:"not null;default:false"`
	FlashcardsCount int       `gorm:"not null;default:0"`
	QuizDone        bool      `gorm:"not null;default:false"`
	QuizID          *string   `gorm:"type:uuid"`
	QuestionsCount  int       `gorm:"not null;default:0"`
	ErrorMessage    string
	CreatedAt       time.Time `gorm:"not null"`
	UpdatedAt       time.Time `gorm:"not null"`
}

func (ProcessingRunModel) TableName() string { return "processing_runs" }

func conversationToModel(c domain.Conversation) ConversationModel {
	return ConversationModel{ID: c.ID, UserID: c.UserID, Category: string(c.Category), Title: c.Title, CreatedAt: c.CreatedAt}
}

func conversationFromModel(m ConversationModel) domain.Conversation {
	return domain.Conversation{ID: m.ID, UserID: m.UserID, Category: domain.Category(m.Category), Title: m.Title, CreatedAt: m.CreatedAt}
}

func messageToModel(msg domain.Message) MessageModel {
	return MessageModel{ID: msg.ID, ConversationID: msg.ConversationID, Role: msg.Role, Content: msg.Content, CreatedAt: msg.CreatedAt}
}

func messageFromModel(m MessageModel) domain.Message {
	return domain.Message{ID: m.ID, ConversationID: m.ConversationID, Role: m.Role, Content: m.Content, CreatedAt: m.CreatedAt}
}

func flashcardToModel(c domain.Flashcard) FlashcardModel {
	return FlashcardModel{
		ID:         c.ID,
		UserID:     c.UserID,
		Title:      c.Title,
		Front:      c.Front,
		Back:       c.Back,
		Category:   string(c.Category),
		SourceType: string(c.SourceType),
		CreatedAt:  c.CreatedAt,
	}
}

func flashcardFromModel(m FlashcardModel) domain.Flashcard {
	return domain.Flashcard{
		ID:         m.ID,
		UserID:     m.UserID,
		Title:      m.Title,
		Front:      m.Front,
		Back:       m.Back,
		Category:   domain.Category(m.Category),
		SourceType: domain.SourceType(m.SourceType),
		CreatedAt:  m.CreatedAt,
	}
}

func quizToModel(q domain.Quiz) (QuizModel, error) {
	questions := q.Questions
	if questions == nil {
		questions = []domain.QuizQuestion{}
	}
	raw, err := json.Marshal(questions)
	if err != nil {
		return QuizModel{}, err
	}
	return QuizModel{
		ID:          q.ID,
		UserID:      q.UserID,
		Title:       q.Title,
		Description: q.Description,
		Questions:   raw,
		SourceType:  string(q.SourceType),
		CreatedAt:   q.CreatedAt,
	}, nil
}

func quizFromModel(m QuizModel) domain.Quiz {
	var questions []domain.QuizQuestion
	if len(m.Questions) > 0 {
		_ = json.Unmarshal(m.Questions, &questions)
	}
	return domain.Quiz{
		ID:          m.ID,
		UserID:      m.UserID,
		Title:       m.Title,
		Description: m.Description,
		Questions:   questions,
		SourceType:  domain.SourceType(m.SourceType),
		CreatedAt:   m.CreatedAt,
	}
}

func resultToModel(r domain.QuizResult) QuizResultModel {
	return QuizResultModel{ID: r.ID, UserID: r.UserID, QuizID: r.QuizID, Score: r.Score, TotalQuestions: r.TotalQuestions, CompletedAt: r.CompletedAt}
}

func resultFromModel(m QuizResultModel) domain.QuizResult {
	return domain.QuizResult{ID: m.ID, UserID: m.UserID, QuizID: m.QuizID, Score: m.Score, TotalQuestions: m.TotalQuestions, CompletedAt: m.CompletedAt}
}

func documentToModel(d domain.UploadedDocument) DocumentModel {
	return DocumentModel{ID: d.ID, UserID: d.UserID, FileName: d.FileName, FilePath: d.FilePath, FileType: d.FileType, FileSize: d.FileSize, CreatedAt: d.CreatedAt}
}

func documentFromModel(m DocumentModel) domain.UploadedDocument {
	return domain.UploadedDocument{ID: m.ID, UserID: m.UserID, FileName: m.FileName, FilePath: m.FilePath, FileType: m.FileType, FileSize: m.FileSize, CreatedAt: m.CreatedAt}
}

func runToModel(r domain.ProcessingRun) ProcessingRunModel {
	var quizID *string
	if r.QuizID != "" {
		id := r.QuizID
		quizID = &id
	}
	return ProcessingRunModel{
		ID:              r.ID,
		UserID:          r.UserID,
		FilePath:        r.FilePath,
		FileName:        r.FileName,
		Status:          string(r.Status),
		ExtractedText:   r.ExtractedText,
		FlashcardsDone:  r.FlashcardsDone,
		FlashcardsCount: r.FlashcardsCount,
		QuizDone:        r.QuizDone,
		QuizID:          quizID,
		QuestionsCount:  r.QuestionsCount,
		ErrorMessage:    r.ErrorMessage,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

func runFromModel(m ProcessingRunModel) domain.ProcessingRun {
	quizID := ""
	if m.QuizID != nil {
		quizID = *m.QuizID
	}
	return domain.ProcessingRun{
		ID:              m.ID,
		UserID:          m.UserID,
		FilePath:        m.FilePath,
		FileName:        m.FileName,
		Status:          domain.RunStatus(m.Status),
		ExtractedText:   m.ExtractedText,
		FlashcardsDone:  m.FlashcardsDone,
		FlashcardsCount: m.FlashcardsCount,
		QuizDone:        m.QuizDone,
		QuizID:          quizID,
		QuestionsCount:  m.QuestionsCount,
		ErrorMessage:    m.ErrorMessage,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}
