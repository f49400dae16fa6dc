package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/CJSBLACKPEARL/spark-fullstack-buddy/pkg/domain"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

const migrateLockID int64 = 51720917

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations under an advisory lock,
// so several replicas can boot against the same database.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, migrate); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func migrate(tx *gorm.DB) error {
	if err := tx.AutoMigrate(
		&ConversationModel{},
		&MessageModel{},
		&FlashcardModel{},
		&QuizModel{},
		&QuizResultModel{},
		&DocumentModel{},
		&ProcessingRunModel{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	if err := tx.Exec(`
		DO $$
		BEGIN
			IF NOT EXISTS (
				SELECT 1 FROM information_schema.table_constraints
				WHERE table_schema = 'public'
				AND table_name = 'chat_messages'
				AND constraint_name = 'chat_messages_conversation_id_fkey'
			) THEN
				ALTER TABLE chat_messages
				ADD CONSTRAINT chat_messages_conversation_id_fkey
				FOREIGN KEY (conversation_id) REFERENCES chat_conversations(id) ON DELETE CASCADE;
			END IF;
			IF NOT EXISTS (
				SELECT 1 FROM information_schema.table_constraints
				WHERE table_schema = 'public'
				AND table_name = 'quiz_results'
				AND constraint_name = 'quiz_results_quiz_id_fkey'
			) THEN
				ALTER TABLE quiz_results
				ADD CONSTRAINT quiz_results_quiz_id_fkey
				FOREIGN KEY (quiz_id) REFERENCES quizzes(id) ON DELETE CASCADE;
			END IF;
		END $$;
	`).Error; err != nil {
		return fmt.Errorf("ensure foreign keys: %w", err)
	}
	return nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// Close releases the underlying connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *GormStore) CreateConversation(ctx context.Context, c domain.Conversation) error {
	model := conversationToModel(c)
	return s.db.WithContext(ctx).Create(&model).Error
}

func (s *GormStore) GetConversation(ctx context.Context, userID, id string) (domain.Conversation, bool, error) {
	var model ConversationModel
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Conversation{}, false, nil
	}
	if err != nil {
		return domain.Conversation{}, false, err
	}
	return conversationFromModel(model), true, nil
}

func (s *GormStore) ListConversations(ctx context.Context, userID string) ([]domain.Conversation, error) {
	var models []ConversationModel
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at desc").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Conversation, 0, len(models))
	for _, m := range models {
		out = append(out, conversationFromModel(m))
	}
	return out, nil
}

func (s *GormStore) AppendMessage(ctx context.Context, msg domain.Message) error {
	model := messageToModel(msg)
	return s.db.WithContext(ctx).Create(&model).Error
}

func (s *GormStore) ListMessages(ctx context.Context, conversationID string, limit int) ([]domain.Message, error) {
	var models []MessageModel
	q := s.db.WithContext(ctx).Where("conversation_id = ?", conversationID).Order("created_at desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Message, len(models))
	for i, m := range models {
		out[len(models)-1-i] = messageFromModel(m)
	}
	return out, nil
}

func (s *GormStore) CountMessages(ctx context.Context, conversationID string) (int, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&MessageModel{}).Where("conversation_id = ?", conversationID).Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

func (s *GormStore) CreateFlashcards(ctx context.Context, cards []domain.Flashcard) error {
	return createFlashcards(s.db.WithContext(ctx), cards)
}

func createFlashcards(tx *gorm.DB, cards []domain.Flashcard) error {
	if len(cards) == 0 {
		return nil
	}
	models := make([]FlashcardModel, 0, len(cards))
	for _, c := range cards {
		models = append(models, flashcardToModel(c))
	}
	return tx.Create(&models).Error
}

func (s *GormStore) ListFlashcards(ctx context.Context, userID string, limit int) ([]domain.Flashcard, error) {
	var models []FlashcardModel
	q := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Flashcard, 0, len(models))
	for _, m := range models {
		out = append(out, flashcardFromModel(m))
	}
	return out, nil
}

func (s *GormStore) CountFlashcardsSince(ctx context.Context, userID string, since time.Time) (int, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&FlashcardModel{}).
		Where("user_id = ? AND created_at >= ?", userID, since).
		Count(&count).Error
	return int(count), err
}

func (s *GormStore) CreateQuiz(ctx context.Context, q domain.Quiz) error {
	return createQuiz(s.db.WithContext(ctx), q)
}

func createQuiz(tx *gorm.DB, q domain.Quiz) error {
	model, err := quizToModel(q)
	if err != nil {
		return fmt.Errorf("encode questions: %w", err)
	}
	return tx.Create(&model).Error
}

func (s *GormStore) GetQuiz(ctx context.Context, userID, id string) (domain.Quiz, bool, error) {
	var model QuizModel
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Quiz{}, false, nil
	}
	if err != nil {
		return domain.Quiz{}, false, err
	}
	return quizFromModel(model), true, nil
}

func (s *GormStore) ListQuizzes(ctx context.Context, userID string, limit int) ([]domain.Quiz, error) {
	var models []QuizModel
	q := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Quiz, 0, len(models))
	for _, m := range models {
		out = append(out, quizFromModel(m))
	}
	return out, nil
}

func (s *GormStore) QuizTitles(ctx context.Context, ids []string) (map[string]string, error) {
	titles := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return titles, nil
	}
	var rows []struct {
		ID    string
		Title string
	}
	if err := s.db.WithContext(ctx).Model(&QuizModel{}).Select("id", "title").Where("id IN ?", ids).Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, r := range rows {
		titles[r.ID] = r.Title
	}
	return titles, nil
}

func (s *GormStore) CreateQuizResult(ctx context.Context, r domain.QuizResult) error {
	model := resultToModel(r)
	return s.db.WithContext(ctx).Create(&model).Error
}

func (s *GormStore) ListQuizResultsSince(ctx context.Context, userID string, since time.Time) ([]domain.QuizResult, error) {
	var models []QuizResultModel
	if err := s.db.WithContext(ctx).
		Where("user_id = ? AND completed_at >= ?", userID, since).
		Order("completed_at desc").
		Find(&models).Error; err != nil {
		return nil, err
	}
	return resultsFromModels(models), nil
}

func (s *GormStore) ListRecentQuizResults(ctx context.Context, userID string, limit int) ([]domain.QuizResult, error) {
	var models []QuizResultModel
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("completed_at desc").Limit(limit).Find(&models).Error; err != nil {
		return nil, err
	}
	return resultsFromModels(models), nil
}

func resultsFromModels(models []QuizResultModel) []domain.QuizResult {
	out := make([]domain.QuizResult, 0, len(models))
	for _, m := range models {
		out = append(out, resultFromModel(m))
	}
	return out
}

func (s *GormStore) CreateDocument(ctx context.Context, d domain.UploadedDocument) error {
	model := documentToModel(d)
	return s.db.WithContext(ctx).Create(&model).Error
}

func (s *GormStore) GetDocument(ctx context.Context, userID, id string) (domain.UploadedDocument, bool, error) {
	var model DocumentModel
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.UploadedDocument{}, false, nil
	}
	if err != nil {
		return domain.UploadedDocument{}, false, err
	}
	return documentFromModel(model), true, nil
}

func (s *GormStore) ListDocuments(ctx context.Context, userID string) ([]domain.UploadedDocument, error) {
	var models []DocumentModel
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at desc").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.UploadedDocument, 0, len(models))
	for _, m := range models {
		out = append(out, documentFromModel(m))
	}
	return out, nil
}

func (s *GormStore) GetRun(ctx context.Context, userID, filePath string) (domain.ProcessingRun, bool, error) {
	var model ProcessingRunModel
	err := s.db.WithContext(ctx).Where("user_id = ? AND file_path = ?", userID, filePath).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ProcessingRun{}, false, nil
	}
	if err != nil {
		return domain.ProcessingRun{}, false, err
	}
	return runFromModel(model), true, nil
}

func (s *GormStore) SaveRun(ctx context.Context, run domain.ProcessingRun) error {
	return saveRun(s.db.WithContext(ctx), run)
}

// ClaimRun inserts the run or locks the existing row before taking it over.
func (s *GormStore) ClaimRun(ctx context.Context, run domain.ProcessingRun, staleBefore time.Time) (domain.ProcessingRun, bool, error) {
	var claimed domain.ProcessingRun
	owned := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		run.Status = domain.RunProcessing
		model := runToModel(run)
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "file_path"}},
			DoNothing: true,
		}).Create(&model)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 1 {
			claimed, owned = run, true
			return nil
		}

		var existing ProcessingRunModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ? AND file_path = ?", run.UserID, run.FilePath).First(&existing).Error
		if err != nil {
			return err
		}
		claimed = runFromModel(existing)
		if !runClaimable(claimed, staleBefore) {
			return nil
		}
		err = tx.Model(&ProcessingRunModel{}).Where("id = ?", existing.ID).Updates(map[string]any{
			"status":        string(domain.RunProcessing),
			"error_message": "",
			"updated_at":    run.UpdatedAt,
		}).Error
		if err != nil {
			return err
		}
		claimed.Status = domain.RunProcessing
		claimed.ErrorMessage = ""
		claimed.UpdatedAt = run.UpdatedAt
		owned = true
		return nil
	})
	if err != nil {
		return domain.ProcessingRun{}, false, err
	}
	return claimed, owned, nil
}

func saveRun(tx *gorm.DB, run domain.ProcessingRun) error {
	model := runToModel(run)
	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "file_path"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"file_name", "status", "extracted_text", "flashcards_done", "flashcards_count",
			"quiz_done", "quiz_id", "questions_count", "error_message", "updated_at",
		}),
	}).Create(&model).Error
}

func (s *GormStore) CommitFlashcardStep(ctx context.Context, run domain.ProcessingRun, cards []domain.Flashcard) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := createFlashcards(tx, cards); err != nil {
			return err
		}
		return saveRun(tx, run)
	})
}

func (s *GormStore) CommitQuizStep(ctx context.Context, run domain.ProcessingRun, quiz domain.Quiz) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := createQuiz(tx, quiz); err != nil {
			return err
		}
		return saveRun(tx, run)
	})
}
