package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/CJSBLACKPEARL/spark-fullstack-buddy/pkg/domain"
	postgrest "github.com/supabase-community/postgrest-go"
	supabase "github.com/supabase-community/supabase-go"
)

// SupabaseStore implements Store over the PostgREST API of a Supabase project,
// reading and writing the same tables the web client uses. The REST API has no
// multi-statement transactions, so the commit steps write sequentially.
type SupabaseStore struct {
	client *supabase.Client
}

// NewSupabaseClient builds a service-role client for url.
func NewSupabaseClient(url, serviceKey string) (*supabase.Client, error) {
	if url == "" || serviceKey == "" {
		return nil, errors.New("supabase credentials missing: url or service role key not set")
	}
	return supabase.NewClient(url, serviceKey, nil)
}

func NewSupabaseStore(client *supabase.Client) (*SupabaseStore, error) {
	if client == nil {
		return nil, errors.New("supabase client not initialized")
	}
	return &SupabaseStore{client: client}, nil
}

// Ping fetches at most one conversation id.
func (s *SupabaseStore) Ping(ctx context.Context) error {
	_ = ctx
	_, err := s.client.From("chat_conversations").Select("id", "", false).Limit(1, "").ExecuteTo(&[]conversationRow{})
	return err
}

func (s *SupabaseStore) Close() error { return nil }

type conversationRow struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Category  string    `json:"category"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

type messageRow struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

type flashcardRow struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Title      string    `json:"title"`
	Front      string    `json:"front"`
	Back       string    `json:"back"`
	Category   string    `json:"category"`
	SourceType string    `json:"source_type"`
	CreatedAt  time.Time `json:"created_at"`
}

type quizRow struct {
	ID          string                `json:"id"`
	UserID      string                `json:"user_id"`
	Title       string                `json:"title"`
	Description string                `json:"description"`
	Questions   []domain.QuizQuestion `json:"questions"`
	SourceType  string                `json:"source_type"`
	CreatedAt   time.Time             `json:"created_at"`
}

type quizResultRow struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	QuizID         string    `json:"quiz_id"`
	Score          int       `json:"score"`
	TotalQuestions int       `json:"total_questions"`
	CompletedAt    time.Time `json:"completed_at"`
}

type documentRow struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	FileName  string    `json:"file_name"`
	FilePath  string    `json:"file_path"`
	FileType  string    `json:"file_type"`
	FileSize  int64     `json:"file_size"`
	CreatedAt time.Time `json:"created_at"`
}

type runRow struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	FilePath        string    `json:"file_path"`
	FileName        string    `json:"file_name"`
	Status          string    `json:"status"`
	ExtractedText   string    `json:"extracted_text"`
	FlashcardsDone  bool      `json:"flashcards_done"`
	FlashcardsCount int       `json:"flashcards_count"`
	QuizDone        bool      `json:"quiz_done"`
	QuizID          *string   `json:"quiz_id"`
	QuestionsCount  int       `json:"questions_count"`
	ErrorMessage    string    `json:"error_message"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func timeFilter(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func (s *SupabaseStore) CreateConversation(ctx context.Context, c domain.Conversation) error {
	_ = ctx
	row := conversationRow{ID: c.ID, UserID: c.UserID, Category: string(c.Category), Title: c.Title, CreatedAt: c.CreatedAt}
	_, _, err := s.client.From("chat_conversations").Insert(row, false, "", "minimal", "").Execute()
	return err
}

func (s *SupabaseStore) GetConversation(ctx context.Context, userID, id string) (domain.Conversation, bool, error) {
	_ = ctx
	var rows []conversationRow
	_, err := s.client.From("chat_conversations").Select("*", "", false).
		Eq("id", id).Eq("user_id", userID).Limit(1, "").ExecuteTo(&rows)
	if err != nil || len(rows) == 0 {
		return domain.Conversation{}, false, err
	}
	r := rows[0]
	return domain.Conversation{ID: r.ID, UserID: r.UserID, Category: domain.Category(r.Category), Title: r.Title, CreatedAt: r.CreatedAt}, true, nil
}

func (s *SupabaseStore) ListConversations(ctx context.Context, userID string) ([]domain.Conversation, error) {
	_ = ctx
	var rows []conversationRow
	_, err := s.client.From("chat_conversations").Select("*", "", false).Eq("user_id", userID).
		Order("created_at", &postgrest.OrderOpts{Ascending: false}).ExecuteTo(&rows)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Conversation, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.Conversation{ID: r.ID, UserID: r.UserID, Category: domain.Category(r.Category), Title: r.Title, CreatedAt: r.CreatedAt})
	}
	return out, nil
}

func (s *SupabaseStore) AppendMessage(ctx context.Context, msg domain.Message) error {
	_ = ctx
	row := messageRow{ID: msg.ID, ConversationID: msg.ConversationID, Role: msg.Role, Content: msg.Content, CreatedAt: msg.CreatedAt}
	_, _, err := s.client.From("chat_messages").Insert(row, false, "", "minimal", "").Execute()
	return err
}

func (s *SupabaseStore) ListMessages(ctx context.Context, conversationID string, limit int) ([]domain.Message, error) {
	_ = ctx
	var rows []messageRow
	query := s.client.From("chat_messages").Select("*", "", false).Eq("conversation_id", conversationID).
		Order("created_at", &postgrest.OrderOpts{Ascending: false})
	if limit > 0 {
		query = query.Limit(limit, "")
	}
	if _, err := query.ExecuteTo(&rows); err != nil {
		return nil, err
	}
	out := make([]domain.Message, len(rows))
	for i, r := range rows {
		out[len(rows)-1-i] = domain.Message{ID: r.ID, ConversationID: r.ConversationID, Role: r.Role, Content: r.Content, CreatedAt: r.CreatedAt}
	}
	return out, nil
}

func (s *SupabaseStore) CountMessages(ctx context.Context, conversationID string) (int, error) {
	_ = ctx
	_, count, err := s.client.From("chat_messages").Select("id", "exact", true).Eq("conversation_id", conversationID).Execute()
	return int(count), err
}

func (s *SupabaseStore) CreateFlashcards(ctx context.Context, cards []domain.Flashcard) error {
	_ = ctx
	if len(cards) == 0 {
		return nil
	}
	rows := make([]flashcardRow, 0, len(cards))
	for _, c := range cards {
		rows = append(rows, flashcardRow{
			ID:         c.ID,
			UserID:     c.UserID,
			Title:      c.Title,
			Front:      c.Front,
			Back:       c.Back,
			Category:   string(c.Category),
			SourceType: string(c.SourceType),
			CreatedAt:  c.CreatedAt,
		})
	}
	_, _, err := s.client.From("flashcards").Insert(rows, false, "", "minimal", "").Execute()
	return err
}

func (s *SupabaseStore) ListFlashcards(ctx context.Context, userID string, limit int) ([]domain.Flashcard, error) {
	_ = ctx
	var rows []flashcardRow
	query := s.client.From("flashcards").Select("*", "", false).Eq("user_id", userID).
		Order("created_at", &postgrest.OrderOpts{Ascending: false})
	if limit > 0 {
		query = query.Limit(limit, "")
	}
	if _, err := query.ExecuteTo(&rows); err != nil {
		return nil, err
	}
	out := make([]domain.Flashcard, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.Flashcard{
			ID:         r.ID,
			UserID:     r.UserID,
			Title:      r.Title,
			Front:      r.Front,
			Back:       r.Back,
			Category:   domain.Category(r.Category),
			SourceType: domain.SourceType(r.SourceType),
			CreatedAt:  r.CreatedAt,
		})
	}
	return out, nil
}

func (s *SupabaseStore) CountFlashcardsSince(ctx context.Context, userID string, since time.Time) (int, error) {
	_ = ctx
	_, count, err := s.client.From("flashcards").Select("id", "exact", true).
		Eq("user_id", userID).Gte("created_at", timeFilter(since)).Execute()
	return int(count), err
}

func quizRowFrom(q domain.Quiz) quizRow {
	questions := q.Questions
	if questions == nil {
		questions = []domain.QuizQuestion{}
	}
	return quizRow{
		ID:          q.ID,
		UserID:      q.UserID,
		Title:       q.Title,
		Description: q.Description,
		Questions:   questions,
		SourceType:  string(q.SourceType),
		CreatedAt:   q.CreatedAt,
	}
}

func (r quizRow) toDomain() domain.Quiz {
	return domain.Quiz{
		ID:          r.ID,
		UserID:      r.UserID,
		Title:       r.Title,
		Description: r.Description,
		Questions:   r.Questions,
		SourceType:  domain.SourceType(r.SourceType),
		CreatedAt:   r.CreatedAt,
	}
}

func (s *SupabaseStore) CreateQuiz(ctx context.Context, q domain.Quiz) error {
	_ = ctx
	_, _, err := s.client.From("quizzes").Insert(quizRowFrom(q), false, "", "minimal", "").Execute()
	return err
}

func (s *SupabaseStore) GetQuiz(ctx context.Context, userID, id string) (domain.Quiz, bool, error) {
	_ = ctx
	var rows []quizRow
	_, err := s.client.From("quizzes").Select("*", "", false).Eq("id", id).Eq("user_id", userID).Limit(1, "").ExecuteTo(&rows)
	if err != nil || len(rows) == 0 {
		return domain.Quiz{}, false, err
	}
	return rows[0].toDomain(), true, nil
}

func (s *SupabaseStore) ListQuizzes(ctx context.Context, userID string, limit int) ([]domain.Quiz, error) {
	_ = ctx
	var rows []quizRow
	query := s.client.From("quizzes").Select("*", "", false).Eq("user_id", userID).
		Order("created_at", &postgrest.OrderOpts{Ascending: false})
	if limit > 0 {
		query = query.Limit(limit, "")
	}
	if _, err := query.ExecuteTo(&rows); err != nil {
		return nil, err
	}
	out := make([]domain.Quiz, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (s *SupabaseStore) QuizTitles(ctx context.Context, ids []string) (map[string]string, error) {
	_ = ctx
	titles := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return titles, nil
	}
	var rows []struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	}
	if _, err := s.client.From("quizzes").Select("id,title", "", false).In("id", ids).ExecuteTo(&rows); err != nil {
		return nil, err
	}
	for _, r := range rows {
		titles[r.ID] = r.Title
	}
	return titles, nil
}

func (r quizResultRow) toDomain() domain.QuizResult {
	return domain.QuizResult{ID: r.ID, UserID: r.UserID, QuizID: r.QuizID, Score: r.Score, TotalQuestions: r.TotalQuestions, CompletedAt: r.CompletedAt}
}

func (s *SupabaseStore) CreateQuizResult(ctx context.Context, res domain.QuizResult) error {
	_ = ctx
	row := quizResultRow{ID: res.ID, UserID: res.UserID, QuizID: res.QuizID, Score: res.Score, TotalQuestions: res.TotalQuestions, CompletedAt: res.CompletedAt}
	_, _, err := s.client.From("quiz_results").Insert(row, false, "", "minimal", "").Execute()
	return err
}

func (s *SupabaseStore) ListQuizResultsSince(ctx context.Context, userID string, since time.Time) ([]domain.QuizResult, error) {
	_ = ctx
	var rows []quizResultRow
	_, err := s.client.From("quiz_results").Select("*", "", false).Eq("user_id", userID).
		Gte("completed_at", timeFilter(since)).
		Order("completed_at", &postgrest.OrderOpts{Ascending: false}).ExecuteTo(&rows)
	if err != nil {
		return nil, err
	}
	out := make([]domain.QuizResult, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (s *SupabaseStore) ListRecentQuizResults(ctx context.Context, userID string, limit int) ([]domain.QuizResult, error) {
	_ = ctx
	var rows []quizResultRow
	_, err := s.client.From("quiz_results").Select("*", "", false).Eq("user_id", userID).
		Order("completed_at", &postgrest.OrderOpts{Ascending: false}).Limit(limit, "").ExecuteTo(&rows)
	if err != nil {
		return nil, err
	}
	out := make([]domain.QuizResult, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (r documentRow) toDomain() domain.UploadedDocument {
	return domain.UploadedDocument{ID: r.ID, UserID: r.UserID, FileName: r.FileName, FilePath: r.FilePath, FileType: r.FileType, FileSize: r.FileSize, CreatedAt: r.CreatedAt}
}

func (s *SupabaseStore) CreateDocument(ctx context.Context, d domain.UploadedDocument) error {
	_ = ctx
	row := documentRow{ID: d.ID, UserID: d.UserID, FileName: d.FileName, FilePath: d.FilePath, FileType: d.FileType, FileSize: d.FileSize, CreatedAt: d.CreatedAt}
	_, _, err := s.client.From("uploaded_documents").Insert(row, false, "", "minimal", "").Execute()
	return err
}

func (s *SupabaseStore) GetDocument(ctx context.Context, userID, id string) (domain.UploadedDocument, bool, error) {
	_ = ctx
	var rows []documentRow
	_, err := s.client.From("uploaded_documents").Select("*", "", false).Eq("id", id).Eq("user_id", userID).Limit(1, "").ExecuteTo(&rows)
	if err != nil || len(rows) == 0 {
		return domain.UploadedDocument{}, false, err
	}
	return rows[0].toDomain(), true, nil
}

func (s *SupabaseStore) ListDocuments(ctx context.Context, userID string) ([]domain.UploadedDocument, error) {
	_ = ctx
	var rows []documentRow
	_, err := s.client.From("uploaded_documents").Select("*", "", false).Eq("user_id", userID).
		Order("created_at", &postgrest.OrderOpts{Ascending: false}).ExecuteTo(&rows)
	if err != nil {
		return nil, err
	}
	out := make([]domain.UploadedDocument, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func runRowFrom(run domain.ProcessingRun) runRow {
	row := runRow{
		ID:              run.ID,
		UserID:          run.UserID,
		FilePath:        run.FilePath,
		FileName:        run.FileName,
		Status:          string(run.Status),
		ExtractedText:   run.ExtractedText,
		FlashcardsDone:  run.FlashcardsDone,
		FlashcardsCount: run.FlashcardsCount,
		QuizDone:        run.QuizDone,
		QuestionsCount:  run.QuestionsCount,
		ErrorMessage:    run.ErrorMessage,
		CreatedAt:       run.CreatedAt,
		UpdatedAt:       run.UpdatedAt,
	}
	if run.QuizID != "" {
		id := run.QuizID
		row.QuizID = &id
	}
	return row
}

func (r runRow) toDomain() domain.ProcessingRun {
	run := domain.ProcessingRun{
		ID:              r.ID,
		UserID:          r.UserID,
		FilePath:        r.FilePath,
		FileName:        r.FileName,
		Status:          domain.RunStatus(r.Status),
		ExtractedText:   r.ExtractedText,
		FlashcardsDone:  r.FlashcardsDone,
		FlashcardsCount: r.FlashcardsCount,
		QuizDone:        r.QuizDone,
		QuestionsCount:  r.QuestionsCount,
		ErrorMessage:    r.ErrorMessage,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
	if r.QuizID != nil {
		run.QuizID = *r.QuizID
	}
	return run
}

func (s *SupabaseStore) GetRun(ctx context.Context, userID, filePath string) (domain.ProcessingRun, bool, error) {
	_ = ctx
	var rows []runRow
	_, err := s.client.From("processing_runs").Select("*", "", false).
		Eq("user_id", userID).Eq("file_path", filePath).Limit(1, "").ExecuteTo(&rows)
	if err != nil || len(rows) == 0 {
		return domain.ProcessingRun{}, false, err
	}
	return rows[0].toDomain(), true, nil
}

func (s *SupabaseStore) SaveRun(ctx context.Context, run domain.ProcessingRun) error {
	_ = ctx
	_, _, err := s.client.From("processing_runs").Upsert(runRowFrom(run), "user_id,file_path", "minimal", "").Execute()
	return err
}

// uniqueViolation is the Postgres error code PostgREST relays for a duplicate key.
const uniqueViolation = "(23505)"

// ClaimRun relies on the (user_id, file_path) unique key for the first claim and on
// a filtered PATCH for takeovers, so only one caller sees its row come back.
func (s *SupabaseStore) ClaimRun(ctx context.Context, run domain.ProcessingRun, staleBefore time.Time) (domain.ProcessingRun, bool, error) {
	run.Status = domain.RunProcessing
	var inserted []runRow
	_, err := s.client.From("processing_runs").Insert(runRowFrom(run), false, "", "representation", "").ExecuteTo(&inserted)
	if err == nil {
		return run, true, nil
	}
	if !strings.Contains(err.Error(), uniqueViolation) {
		return domain.ProcessingRun{}, false, err
	}

	patch := map[string]any{
		"status":        string(domain.RunProcessing),
		"error_message": "",
		"updated_at":    run.UpdatedAt,
	}
	stale := fmt.Sprintf("status.neq.%s,updated_at.lt.\"%s\"", domain.RunProcessing, timeFilter(staleBefore))
	var updated []runRow
	_, err = s.client.From("processing_runs").Update(patch, "representation", "").
		Eq("user_id", run.UserID).Eq("file_path", run.FilePath).
		Neq("status", string(domain.RunDone)).Or(stale, "").ExecuteTo(&updated)
	if err != nil {
		return domain.ProcessingRun{}, false, err
	}
	if len(updated) > 0 {
		return updated[0].toDomain(), true, nil
	}
	current, ok, err := s.GetRun(ctx, run.UserID, run.FilePath)
	if err != nil {
		return domain.ProcessingRun{}, false, err
	}
	if !ok {
		return domain.ProcessingRun{}, false, fmt.Errorf("run %s vanished during claim", run.FilePath)
	}
	return current, false, nil
}

// CommitFlashcardStep inserts the cards before marking the run. A crash between
// the two writes leaves cards without a done flag, and a retry inserts them again.
func (s *SupabaseStore) CommitFlashcardStep(ctx context.Context, run domain.ProcessingRun, cards []domain.Flashcard) error {
	if err := s.CreateFlashcards(ctx, cards); err != nil {
		return fmt.Errorf("insert flashcards: %w", err)
	}
	return s.SaveRun(ctx, run)
}

func (s *SupabaseStore) CommitQuizStep(ctx context.Context, run domain.ProcessingRun, quiz domain.Quiz) error {
	if err := s.CreateQuiz(ctx, quiz); err != nil {
		return fmt.Errorf("insert quiz: %w", err)
	}
	return s.SaveRun(ctx, run)
}
