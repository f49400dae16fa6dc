package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/CJSBLACKPEARL/spark-fullstack-buddy/pkg/domain"
)

var errDuplicatePath = errors.New("document path already exists")

// MemoryStore keeps rows in process memory. Insertion order breaks timestamp ties.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations []domain.Conversation
	messages      []domain.Message
	flashcards    []domain.Flashcard
	quizzes       []domain.Quiz
	results       []domain.QuizResult
	documents     []domain.UploadedDocument
	runs          map[string]domain.ProcessingRun
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: make(map[string]domain.ProcessingRun)}
}

func runKey(userID, filePath string) string { return userID + "\x00" + filePath }

// newestFirst returns the indices of items sorted by ts descending.
func newestFirst(n int, ts func(i int) time.Time) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ta, tb := ts(idx[a]), ts(idx[b])
		if ta.Equal(tb) {
			return idx[a] > idx[b]
		}
		return ta.After(tb)
	})
	return idx
}

func (m *MemoryStore) CreateConversation(_ context.Context, c domain.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conversations = append(m.conversations, c)
	return nil
}

func (m *MemoryStore) GetConversation(_ context.Context, userID, id string) (domain.Conversation, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.conversations {
		if c.ID == id && c.UserID == userID {
			return c, true, nil
		}
	}
	return domain.Conversation{}, false, nil
}

func (m *MemoryStore) ListConversations(_ context.Context, userID string) ([]domain.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []domain.Conversation{}
	for _, i := range newestFirst(len(m.conversations), func(i int) time.Time { return m.conversations[i].CreatedAt }) {
		if m.conversations[i].UserID == userID {
			out = append(out, m.conversations[i])
		}
	}
	return out, nil
}

func (m *MemoryStore) AppendMessage(_ context.Context, msg domain.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	return nil
}

func (m *MemoryStore) ListMessages(_ context.Context, conversationID string, limit int) ([]domain.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var newest []domain.Message
	for _, i := range newestFirst(len(m.messages), func(i int) time.Time { return m.messages[i].CreatedAt }) {
		if m.messages[i].ConversationID != conversationID {
			continue
		}
		newest = append(newest, m.messages[i])
		if limit > 0 && len(newest) == limit {
			break
		}
	}
	out := make([]domain.Message, len(newest))
	for i, msg := range newest {
		out[len(newest)-1-i] = msg
	}
	return out, nil
}

func (m *MemoryStore) CountMessages(_ context.Context, conversationID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, msg := range m.messages {
		if msg.ConversationID == conversationID {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) CreateFlashcards(_ context.Context, cards []domain.Flashcard) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flashcards = append(m.flashcards, cards...)
	return nil
}

func (m *MemoryStore) ListFlashcards(_ context.Context, userID string, limit int) ([]domain.Flashcard, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []domain.Flashcard{}
	for _, i := range newestFirst(len(m.flashcards), func(i int) time.Time { return m.flashcards[i].CreatedAt }) {
		if m.flashcards[i].UserID != userID {
			continue
		}
		out = append(out, m.flashcards[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryStore) CountFlashcardsSince(_ context.Context, userID string, since time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, c := range m.flashcards {
		if c.UserID == userID && !c.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) CreateQuiz(_ context.Context, q domain.Quiz) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quizzes = append(m.quizzes, q)
	return nil
}

func (m *MemoryStore) GetQuiz(_ context.Context, userID, id string) (domain.Quiz, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, q := range m.quizzes {
		if q.ID == id && q.UserID == userID {
			return q, true, nil
		}
	}
	return domain.Quiz{}, false, nil
}

func (m *MemoryStore) ListQuizzes(_ context.Context, userID string, limit int) ([]domain.Quiz, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []domain.Quiz{}
	for _, i := range newestFirst(len(m.quizzes), func(i int) time.Time { return m.quizzes[i].CreatedAt }) {
		if m.quizzes[i].UserID != userID {
			continue
		}
		out = append(out, m.quizzes[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryStore) QuizTitles(_ context.Context, ids []string) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	titles := make(map[string]string, len(ids))
	for _, q := range m.quizzes {
		if _, ok := want[q.ID]; ok {
			titles[q.ID] = q.Title
		}
	}
	return titles, nil
}

func (m *MemoryStore) CreateQuizResult(_ context.Context, r domain.QuizResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, r)
	return nil
}

func (m *MemoryStore) ListQuizResultsSince(_ context.Context, userID string, since time.Time) ([]domain.QuizResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []domain.QuizResult{}
	for _, i := range newestFirst(len(m.results), func(i int) time.Time { return m.results[i].CompletedAt }) {
		r := m.results[i]
		if r.UserID == userID && !r.CompletedAt.Before(since) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *MemoryStore) ListRecentQuizResults(_ context.Context, userID string, limit int) ([]domain.QuizResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []domain.QuizResult{}
	for _, i := range newestFirst(len(m.results), func(i int) time.Time { return m.results[i].CompletedAt }) {
		if m.results[i].UserID != userID {
			continue
		}
		out = append(out, m.results[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryStore) CreateDocument(_ context.Context, d domain.UploadedDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.documents {
		if existing.FilePath == d.FilePath {
			return errDuplicatePath
		}
	}
	m.documents = append(m.documents, d)
	return nil
}

func (m *MemoryStore) GetDocument(_ context.Context, userID, id string) (domain.UploadedDocument, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, d := range m.documents {
		if d.ID == id && d.UserID == userID {
			return d, true, nil
		}
	}
	return domain.UploadedDocument{}, false, nil
}

func (m *MemoryStore) ListDocuments(_ context.Context, userID string) ([]domain.UploadedDocument, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []domain.UploadedDocument{}
	for _, i := range newestFirst(len(m.documents), func(i int) time.Time { return m.documents[i].CreatedAt }) {
		if m.documents[i].UserID == userID {
			out = append(out, m.documents[i])
		}
	}
	return out, nil
}

func (m *MemoryStore) GetRun(_ context.Context, userID, filePath string) (domain.ProcessingRun, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[runKey(userID, filePath)]
	return run, ok, nil
}

func (m *MemoryStore) SaveRun(_ context.Context, run domain.ProcessingRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveRunLocked(run)
	return nil
}

func (m *MemoryStore) ClaimRun(_ context.Context, run domain.ProcessingRun, staleBefore time.Time) (domain.ProcessingRun, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := runKey(run.UserID, run.FilePath)
	existing, ok := m.runs[key]
	if !ok {
		run.Status = domain.RunProcessing
		m.runs[key] = run
		return run, true, nil
	}
	if !runClaimable(existing, staleBefore) {
		return existing, false, nil
	}
	existing.Status = domain.RunProcessing
	existing.ErrorMessage = ""
	existing.UpdatedAt = run.UpdatedAt
	m.runs[key] = existing
	return existing, true, nil
}

func (m *MemoryStore) saveRunLocked(run domain.ProcessingRun) {
	key := runKey(run.UserID, run.FilePath)
	if existing, ok := m.runs[key]; ok {
		run.ID = existing.ID
		run.CreatedAt = existing.CreatedAt
	}
	m.runs[key] = run
}

func (m *MemoryStore) CommitFlashcardStep(_ context.Context, run domain.ProcessingRun, cards []domain.Flashcard) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flashcards = append(m.flashcards, cards...)
	m.saveRunLocked(run)
	return nil
}

func (m *MemoryStore) CommitQuizStep(_ context.Context, run domain.ProcessingRun, quiz domain.Quiz) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quizzes = append(m.quizzes, quiz)
	m.saveRunLocked(run)
	return nil
}

func (m *MemoryStore) Close() error { return nil }
