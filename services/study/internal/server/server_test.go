package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	openai "github.com/sashabaranov/go-openai"

	"github.com/CJSBLACKPEARL/spark-fullstack-buddy/internal/ratelimit"
	"github.com/CJSBLACKPEARL/spark-fullstack-buddy/internal/usertoken"
	"github.com/CJSBLACKPEARL/spark-fullstack-buddy/pkg/ai"
	"github.com/CJSBLACKPEARL/spark-fullstack-buddy/pkg/domain"
	"github.com/CJSBLACKPEARL/spark-fullstack-buddy/pkg/storage"
	"github.com/CJSBLACKPEARL/spark-fullstack-buddy/pkg/store"
	"github.com/CJSBLACKPEARL/spark-fullstack-buddy/services/study/internal/app"
)

const testSecret = "test-jwt-secret-with-enough-bytes"

type stubGateway struct {
	toolErr error
	chatErr error
}

func (g *stubGateway) CallTool(_ context.Context, _, _ string, tool openai.Tool, out any) error {
	if g.toolErr != nil {
		return g.toolErr
	}
	var raw string
	switch tool.Function.Name {
	case ai.FlashcardsToolName:
		raw = `{"flashcards":[{"front":"What is ATP?","back":"Energy currency"},{"front":"What is DNA?","back":"Genetic material"}]}`
	case ai.QuizToolName:
		raw = `{"title":"Cells Quiz","questions":[{"question":"Powerhouse?","options":["Nucleus","Mitochondria","Ribosome","Golgi"],"correctAnswer":1}]}`
	default:
		return fmt.Errorf("unexpected tool %s", tool.Function.Name)
	}
	return json.Unmarshal([]byte(raw), out)
}

func (g *stubGateway) CompleteMessages(context.Context, string, []openai.ChatCompletionMessage) (string, error) {
	if g.chatErr != nil {
		return "", g.chatErr
	}
	return "Try the Pomodoro technique.", nil
}

func (g *stubGateway) CompleteWithDocument(context.Context, string, string, []byte) (string, error) {
	return "Cells are the basic unit of life.", nil
}

type testServer struct {
	url     string
	store   *store.MemoryStore
	objects *storage.MemoryStore
	metrics *Metrics
}

func newTestServer(t *testing.T, gw app.Gateway, rateLimit int) *testServer {
	t.Helper()
	dataStore := store.NewMemoryStore()
	objects := storage.NewMemoryStore()
	metrics := NewMetrics(prometheus.NewRegistry())
	a, err := app.New(app.Config{
		Store:          dataStore,
		Objects:        objects,
		Gateway:        gw,
		MaxUploadBytes: 64 << 10,
		StepObserver:   metrics.ObserveStep,
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	verifier, err := usertoken.NewVerifier(usertoken.Config{Secret: testSecret})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	limiter, err := ratelimit.NewRedisFixedWindowLimiter(client, "test:ratelimit", rateLimit, time.Minute)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	srv := New(Config{App: a, TokenVerifier: verifier, Limiter: limiter, Metrics: metrics})
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return &testServer{url: ts.URL, store: dataStore, objects: objects, metrics: metrics}
}

func mustToken(t *testing.T, userID string) string {
	t.Helper()
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		Audience:  jwt.ClaimStrings{"authenticated"},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, s.url+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var payload map[string]any
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(raw, &payload); err != nil {
			t.Fatalf("decode %s %s response %q: %v", method, path, raw, err)
		}
	}
	return resp, payload
}

func TestHealthzIsPublic(t *testing.T) {
	s := newTestServer(t, &stubGateway{}, 10)
	resp, payload := s.do(t, http.MethodGet, "/healthz", "", nil)
	if resp.StatusCode != http.StatusOK || payload["status"] != "ok" {
		t.Fatalf("expected healthy, got %d %v", resp.StatusCode, payload)
	}
	if resp.Header.Get("X-Request-Id") == "" {
		t.Fatalf("expected request id header")
	}
}

func TestRoutesRequireValidToken(t *testing.T) {
	s := newTestServer(t, &stubGateway{}, 10)
	resp, _ := s.do(t, http.MethodGet, "/api/flashcards", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("missing token expected 401, got %d", resp.StatusCode)
	}
	resp, _ = s.do(t, http.MethodGet, "/api/flashcards", "not-a-jwt", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("garbage token expected 401, got %d", resp.StatusCode)
	}
	resp, _ = s.do(t, http.MethodGet, "/api/flashcards", mustToken(t, "user-1"), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("valid token expected 200, got %d", resp.StatusCode)
	}
}

func TestGenerateFlashcardsPersistsForCaller(t *testing.T) {
	s := newTestServer(t, &stubGateway{}, 10)
	token := mustToken(t, "user-1")
	resp, payload := s.do(t, http.MethodPost, "/api/generate-flashcards", token, map[string]any{
		"topic": "Cell biology", "count": 2, "category": "academic", "userId": "user-1",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d %v", resp.StatusCode, payload)
	}
	cards, _ := payload["flashcards"].([]any)
	if len(cards) != 2 {
		t.Fatalf("expected 2 flashcards, got %v", payload)
	}

	resp, payload = s.do(t, http.MethodGet, "/api/flashcards?limit=1", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list expected 200, got %d", resp.StatusCode)
	}
	if list, _ := payload["flashcards"].([]any); len(list) != 1 {
		t.Fatalf("expected limit to apply, got %v", payload)
	}
	resp, payload = s.do(t, http.MethodGet, "/api/flashcards", mustToken(t, "user-2"), nil)
	if list, _ := payload["flashcards"].([]any); resp.StatusCode != http.StatusOK || len(list) != 0 {
		t.Fatalf("expected other user to see nothing, got %d %v", resp.StatusCode, payload)
	}
}

func TestBodyUserMismatchIsForbidden(t *testing.T) {
	s := newTestServer(t, &stubGateway{}, 10)
	resp, _ := s.do(t, http.MethodPost, "/api/generate-quiz", mustToken(t, "user-1"), map[string]any{
		"topic": "Cells", "questionCount": 1, "difficulty": "easy", "userId": "user-2",
	})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
}

func TestGenerateInvalidInput(t *testing.T) {
	s := newTestServer(t, &stubGateway{}, 10)
	token := mustToken(t, "user-1")
	resp, payload := s.do(t, http.MethodPost, "/api/generate-flashcards", token, map[string]any{"topic": "", "count": 5, "category": "academic"})
	if resp.StatusCode != http.StatusBadRequest || payload["error"] == "" {
		t.Fatalf("empty topic expected 400, got %d %v", resp.StatusCode, payload)
	}
	resp, _ = s.do(t, http.MethodGet, "/api/generate-flashcards", token, nil)
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("GET expected 405, got %d", resp.StatusCode)
	}
}

func TestQuizRoundTripAndResults(t *testing.T) {
	s := newTestServer(t, &stubGateway{}, 10)
	token := mustToken(t, "user-1")
	resp, payload := s.do(t, http.MethodPost, "/api/generate-quiz", token, map[string]any{
		"topic": "Cells", "questionCount": 1, "difficulty": "medium",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("generate quiz expected 200, got %d %v", resp.StatusCode, payload)
	}
	quiz, _ := payload["quiz"].(map[string]any)
	quizID, _ := quiz["id"].(string)
	if quizID == "" || quiz["title"] != "Cells Quiz" {
		t.Fatalf("unexpected quiz payload: %v", payload)
	}

	resp, _ = s.do(t, http.MethodGet, "/api/quizzes/"+quizID, mustToken(t, "user-2"), nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("other user's quiz expected 404, got %d", resp.StatusCode)
	}

	resp, payload = s.do(t, http.MethodPost, "/api/quizzes/"+quizID+"/results", token, map[string]any{"answers": []int{1}})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("submit expected 201, got %d %v", resp.StatusCode, payload)
	}
	result, _ := payload["result"].(map[string]any)
	if result["score"] != float64(1) {
		t.Fatalf("expected score 1, got %v", payload)
	}

	resp, payload = s.do(t, http.MethodGet, "/api/progress", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("progress expected 200, got %d", resp.StatusCode)
	}
	recent, _ := payload["recent"].([]any)
	if len(recent) != 1 {
		t.Fatalf("expected one recent result, got %v", payload)
	}
}

func TestGatewayErrorsMapToStatus(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"rate limited", &ai.GatewayError{Status: http.StatusTooManyRequests}, http.StatusTooManyRequests},
		{"credits exhausted", &ai.GatewayError{Status: http.StatusPaymentRequired}, http.StatusPaymentRequired},
		{"no tool call", ai.ErrNoToolCall, http.StatusBadGateway},
		{"malformed", fmt.Errorf("%w: bad json", ai.ErrMalformedOutput), http.StatusBadGateway},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newTestServer(t, &stubGateway{toolErr: tc.err}, 10)
			resp, payload := s.do(t, http.MethodPost, "/api/generate-flashcards", mustToken(t, "user-1"), map[string]any{
				"topic": "Cells", "count": 2, "category": "academic",
			})
			if resp.StatusCode != tc.status {
				t.Fatalf("expected %d, got %d %v", tc.status, resp.StatusCode, payload)
			}
		})
	}
}

func TestMissingGatewayIsServerError(t *testing.T) {
	s := newTestServer(t, nil, 10)
	resp, payload := s.do(t, http.MethodPost, "/api/chat", mustToken(t, "user-1"), map[string]any{
		"category": "academic", "message": "help",
	})
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}
	if payload["error"] != app.ErrNotConfigured.Error() {
		t.Fatalf("unexpected error message: %v", payload)
	}
}

func TestChatAndConversationHistory(t *testing.T) {
	s := newTestServer(t, &stubGateway{}, 10)
	token := mustToken(t, "user-1")
	resp, payload := s.do(t, http.MethodPost, "/api/chat", token, map[string]any{
		"category": "wellness", "message": "How do I focus?",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("chat expected 200, got %d %v", resp.StatusCode, payload)
	}
	conv, _ := payload["conversation"].(map[string]any)
	convID, _ := conv["id"].(string)
	if convID == "" || payload["reply"] == nil {
		t.Fatalf("unexpected chat payload: %v", payload)
	}

	resp, payload = s.do(t, http.MethodGet, "/api/conversations/"+convID+"/messages", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("messages expected 200, got %d", resp.StatusCode)
	}
	if msgs, _ := payload["messages"].([]any); len(msgs) != 2 {
		t.Fatalf("expected user and assistant messages, got %v", payload)
	}

	resp, _ = s.do(t, http.MethodGet, "/api/conversations/"+convID+"/messages", mustToken(t, "user-2"), nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("foreign conversation expected 404, got %d", resp.StatusCode)
	}

	resp, payload = s.do(t, http.MethodGet, "/api/conversations", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("history expected 200, got %d", resp.StatusCode)
	}
	if convs, _ := payload["conversations"].([]any); len(convs) != 1 {
		t.Fatalf("expected one conversation, got %v", payload)
	}
}

func TestRateLimitRejectsWithRetryAfter(t *testing.T) {
	s := newTestServer(t, &stubGateway{}, 2)
	token := mustToken(t, "user-1")
	body := map[string]any{"category": "academic", "message": "hi"}
	for i := 0; i < 2; i++ {
		resp, _ := s.do(t, http.MethodPost, "/api/chat", token, body)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("request %d expected 200, got %d", i+1, resp.StatusCode)
		}
	}
	resp, _ := s.do(t, http.MethodPost, "/api/chat", token, body)
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}
	resp, _ = s.do(t, http.MethodPost, "/api/chat", mustToken(t, "user-2"), body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("other user should have its own budget, got %d", resp.StatusCode)
	}
	// reads are not limited
	resp, _ = s.do(t, http.MethodGet, "/api/conversations", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET expected 200 while limited, got %d", resp.StatusCode)
	}
}

func uploadRequest(t *testing.T, url, token, fileName string, data []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", fileName)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fw.Write(data); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, url+"/api/documents", &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestUploadProcessesInlineWithoutQueue(t *testing.T) {
	s := newTestServer(t, &stubGateway{}, 10)
	token := mustToken(t, "user-1")
	pdf := []byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\ntrailer\n<<>>\n%%EOF\n")
	resp, err := http.DefaultClient.Do(uploadRequest(t, s.url, token, "notes.pdf", pdf))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		raw, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected 201, got %d %s", resp.StatusCode, raw)
	}
	var res app.UploadResult
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Summary == nil || !res.Summary.Success || res.Summary.FlashcardsCount != 2 || res.Summary.QuestionsCount != 1 {
		t.Fatalf("unexpected summary: %+v", res.Summary)
	}
	if !strings.HasPrefix(res.Document.FilePath, "user-1/") {
		t.Fatalf("expected user-scoped path, got %s", res.Document.FilePath)
	}

	_, payload := s.do(t, http.MethodPost, "/api/process-document", token, map[string]any{
		"filePath": res.Document.FilePath, "fileName": "notes.pdf",
	})
	if payload["success"] != true || payload["flashcardsCount"] != float64(2) {
		t.Fatalf("reprocessing should replay the finished run, got %v", payload)
	}
	cards, _ := s.store.ListFlashcards(context.Background(), "user-1", 0)
	if len(cards) != 2 || cards[0].SourceType != domain.SourcePPTGenerated {
		t.Fatalf("expected 2 document flashcards, got %+v", cards)
	}
}

func TestUploadRejectsLargeAndUnsupportedFiles(t *testing.T) {
	s := newTestServer(t, &stubGateway{}, 10)
	token := mustToken(t, "user-1")

	resp, err := http.DefaultClient.Do(uploadRequest(t, s.url, token, "big.pdf", append([]byte("%PDF-1.4\n"), make([]byte, 70<<10)...)))
	if err != nil {
		t.Fatalf("upload big: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", resp.StatusCode)
	}

	resp, err = http.DefaultClient.Do(uploadRequest(t, s.url, token, "notes.txt", []byte("plain text notes")))
	if err != nil {
		t.Fatalf("upload text: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnsupportedMediaType {
		t.Fatalf("expected 415, got %d", resp.StatusCode)
	}
}

func TestProcessDocumentOutsideOwnFolderIsForbidden(t *testing.T) {
	s := newTestServer(t, &stubGateway{}, 10)
	resp, _ := s.do(t, http.MethodPost, "/api/process-document", mustToken(t, "user-1"), map[string]any{
		"filePath": "user-2/1_notes.pdf", "fileName": "notes.pdf",
	})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
}

func TestMetricsEndpointExposesRequestCounters(t *testing.T) {
	s := newTestServer(t, &stubGateway{}, 10)
	s.do(t, http.MethodGet, "/api/progress", mustToken(t, "user-1"), nil)
	want := `study_http_requests_total{code="200",method="GET",route="/api/progress"}`
	// the observer runs after the response is flushed
	var body string
	for i := 0; i < 20; i++ {
		resp, err := http.Get(s.url + "/metrics")
		if err != nil {
			t.Fatalf("metrics: %v", err)
		}
		raw, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		body = string(raw)
		if strings.Contains(body, want) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected request counter in metrics output:\n%s", body)
}

func TestInvalidLimitParam(t *testing.T) {
	s := newTestServer(t, &stubGateway{}, 10)
	resp, _ := s.do(t, http.MethodGet, "/api/quizzes?limit=abc", mustToken(t, "user-1"), nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestProcessDocumentTraversalIsForbidden(t *testing.T) {
	s := newTestServer(t, &stubGateway{}, 10)
	resp, _ := s.do(t, http.MethodPost, "/api/process-document", mustToken(t, "user-1"), map[string]any{
		"filePath": "user-1/../user-2/1_notes.pdf", "fileName": "notes.pdf",
	})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
}

func TestProcessDocumentInProgressIsConflict(t *testing.T) {
	s := newTestServer(t, &stubGateway{}, 10)
	now := time.Now()
	err := s.store.SaveRun(context.Background(), domain.ProcessingRun{
		ID: "run-1", UserID: "user-1", FilePath: "user-1/1_notes.pdf", FileName: "notes.pdf",
		Status: domain.RunProcessing, CreatedAt: now, UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("save run: %v", err)
	}
	resp, payload := s.do(t, http.MethodPost, "/api/process-document", mustToken(t, "user-1"), map[string]any{
		"filePath": "user-1/1_notes.pdf", "fileName": "notes.pdf",
	})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d %v", resp.StatusCode, payload)
	}
	if payload["error"] != app.ErrRunInProgress.Error() {
		t.Fatalf("unexpected error body %v", payload)
	}
}

func TestDocumentURLIsOwnerScoped(t *testing.T) {
	s := newTestServer(t, &stubGateway{}, 10)
	ctx := context.Background()
	doc := domain.UploadedDocument{
		ID: "doc-1", UserID: "user-1", FileName: "notes.pdf", FilePath: "user-1/1_notes.pdf",
		FileType: "application/pdf", FileSize: 8, CreatedAt: time.Now(),
	}
	if err := s.store.CreateDocument(ctx, doc); err != nil {
		t.Fatalf("create document: %v", err)
	}
	if err := s.objects.Put(ctx, doc.FilePath, strings.NewReader("%PDF-1.4"), 8, doc.FileType); err != nil {
		t.Fatalf("put object: %v", err)
	}

	resp, payload := s.do(t, http.MethodGet, "/api/documents/doc-1/url", mustToken(t, "user-1"), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d %v", resp.StatusCode, payload)
	}
	if payload["url"] != "memory://user-1/1_notes.pdf" {
		t.Fatalf("unexpected url %v", payload["url"])
	}
	expires, err := time.Parse(time.RFC3339Nano, fmt.Sprint(payload["expiresAt"]))
	if err != nil || !expires.After(time.Now()) {
		t.Fatalf("expected future expiry, got %v (%v)", payload["expiresAt"], err)
	}

	for _, tc := range []struct {
		user, path string
		status     int
	}{
		{"user-2", "/api/documents/doc-1/url", http.StatusNotFound},
		{"user-1", "/api/documents/missing/url", http.StatusNotFound},
		{"user-1", "/api/documents/doc-1", http.StatusNotFound},
		{"user-1", "/api/documents/doc-1/url/extra", http.StatusNotFound},
	} {
		resp, _ := s.do(t, http.MethodGet, tc.path, mustToken(t, tc.user), nil)
		if resp.StatusCode != tc.status {
			t.Fatalf("%s as %s: expected %d, got %d", tc.path, tc.user, tc.status, resp.StatusCode)
		}
	}
	resp, _ = s.do(t, http.MethodPost, "/api/documents/doc-1/url", mustToken(t, "user-1"), nil)
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.StatusCode)
	}
}
