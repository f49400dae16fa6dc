package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/CJSBLACKPEARL/spark-fullstack-buddy/internal/ratelimit"
	"github.com/CJSBLACKPEARL/spark-fullstack-buddy/internal/util"
	"github.com/CJSBLACKPEARL/spark-fullstack-buddy/pkg/ai"
	"github.com/CJSBLACKPEARL/spark-fullstack-buddy/pkg/domain"
	"github.com/CJSBLACKPEARL/spark-fullstack-buddy/services/study/internal/app"
)

const (
	maxJSONBody     = 1 << 20
	defaultPageSize = 100
	maxPageSize     = 500
)

// TokenVerifier resolves a bearer token to its subject.
type TokenVerifier interface {
	VerifySubject(token string) (string, error)
}

// RateLimiter is implemented by ratelimit.FixedWindowLimiter.
type RateLimiter interface {
	Allow(ctx context.Context, key string) ratelimit.Decision
	Limit() int
}

// Config wires required dependencies for the HTTP server.
type Config struct {
	App            *app.App
	TokenVerifier  TokenVerifier
	Limiter        RateLimiter
	Metrics        *Metrics
	TrustedProxies *util.TrustedProxies
}

// Server exposes HTTP endpoints for the study service.
type Server struct {
	app            *app.App
	tokenVerifier  TokenVerifier
	limiter        RateLimiter
	metrics        *Metrics
	trustedProxies *util.TrustedProxies
	mux            *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	s := &Server{
		app:            cfg.App,
		tokenVerifier:  cfg.TokenVerifier,
		limiter:        cfg.Limiter,
		metrics:        cfg.Metrics,
		trustedProxies: cfg.TrustedProxies,
		mux:            http.NewServeMux(),
	}
	s.routes()
	return s
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	logCfg := util.RequestLogConfig{Service: "study", TrustedProxies: s.trustedProxies}
	if s.metrics != nil {
		logCfg.Observers = append(logCfg.Observers, s.metrics.ObserveRequest)
	}
	handler := util.WithSecurityHeaders(s.trustedProxies, util.WithCORS(s.mux))
	return util.WithRequestID(util.WithRequestLog(logCfg, handler))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)
	if s.metrics != nil {
		s.mux.Handle("/metrics", s.metrics.Handler())
	}
	s.mux.Handle("/api/generate-flashcards", s.withUser(s.limited(s.handleGenerateFlashcards)))
	s.mux.Handle("/api/generate-quiz", s.withUser(s.limited(s.handleGenerateQuiz)))
	s.mux.Handle("/api/process-document", s.withUser(s.limited(s.handleProcessDocument)))
	s.mux.Handle("/api/documents", s.withUser(s.handleDocuments))
	s.mux.Handle("/api/documents/", s.withUser(s.handleDocumentURL))
	s.mux.Handle("/api/jobs/", s.withUser(s.handleJob))
	s.mux.Handle("/api/flashcards", s.withUser(s.handleFlashcards))
	s.mux.Handle("/api/quizzes", s.withUser(s.handleQuizzes))
	s.mux.Handle("/api/quizzes/", s.withUser(s.handleQuizByID))
	s.mux.Handle("/api/chat", s.withUser(s.limited(s.handleChat)))
	s.mux.Handle("/api/conversations", s.withUser(s.handleConversations))
	s.mux.Handle("/api/conversations/", s.withUser(s.handleConversationMessages))
	s.mux.Handle("/api/progress", s.withUser(s.handleProgress))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type userHandler func(http.ResponseWriter, *http.Request, string)

func (s *Server) withUser(next userHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.tokenVerifier == nil {
			writeError(w, http.StatusInternalServerError, "token verifier not configured")
			return
		}
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		userID, err := s.tokenVerifier.VerifySubject(token)
		if err != nil {
			util.LoggerFromContext(r.Context()).Debug("token rejected", "err", err)
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		ctx := util.ContextWithLogger(r.Context(), util.LoggerFromContext(r.Context()).With("user_id", userID))
		next(w, r.WithContext(ctx), userID)
	})
}

// limited applies the per-user budget to POST requests.
func (s *Server) limited(next userHandler) userHandler {
	return func(w http.ResponseWriter, r *http.Request, userID string) {
		if r.Method == http.MethodPost && !s.allowRate(w, r, userID) {
			return
		}
		next(w, r, userID)
	}
}

func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, userID string) bool {
	if s.limiter == nil {
		return true
	}
	decision := s.limiter.Allow(r.Context(), "user:"+userID)
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(s.limiter.Limit()))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
	if decision.Allowed {
		return true
	}
	retry := int(math.Ceil(time.Until(decision.ResetAt).Seconds()))
	if retry < 1 {
		retry = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retry))
	if s.metrics != nil {
		s.metrics.rateLimited.Inc()
	}
	writeError(w, http.StatusTooManyRequests, "Rate limit exceeded, please try again later.")
	return false
}

type flashcardsRequest struct {
	Topic    string          `json:"topic"`
	Count    int             `json:"count"`
	Category domain.Category `json:"category"`
	UserID   string          `json:"userId"`
}

func (s *Server) handleGenerateFlashcards(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req flashcardsRequest
	if !decodeJSON(w, r, &req) || !sameUser(w, req.UserID, userID) {
		return
	}
	cards, err := s.app.GenerateFlashcards(r.Context(), userID, req.Topic, req.Count, req.Category)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"flashcards": cards})
}

type quizRequest struct {
	Topic         string            `json:"topic"`
	QuestionCount int               `json:"questionCount"`
	Difficulty    domain.Difficulty `json:"difficulty"`
	UserID        string            `json:"userId"`
}

func (s *Server) handleGenerateQuiz(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req quizRequest
	if !decodeJSON(w, r, &req) || !sameUser(w, req.UserID, userID) {
		return
	}
	quiz, err := s.app.GenerateQuiz(r.Context(), userID, req.Topic, req.QuestionCount, req.Difficulty)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"quiz": quiz})
}

type processRequest struct {
	FilePath string `json:"filePath"`
	FileName string `json:"fileName"`
	UserID   string `json:"userId"`
}

func (s *Server) handleProcessDocument(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req processRequest
	if !decodeJSON(w, r, &req) || !sameUser(w, req.UserID, userID) {
		return
	}
	summary, err := s.app.ProcessDocument(r.Context(), userID, req.FilePath, req.FileName)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request, userID string) {
	switch r.Method {
	case http.MethodGet:
		docs, err := s.app.ListDocuments(r.Context(), userID)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
	case http.MethodPost:
		if !s.allowRate(w, r, userID) {
			return
		}
		s.handleUpload(w, r, userID)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request, userID string) {
	// multipart framing on top of the file itself
	r.Body = http.MaxBytesReader(w, r.Body, s.app.MaxUploadBytes()+(1<<20))
	reader, err := r.MultipartReader()
	if err != nil {
		writeError(w, http.StatusBadRequest, "multipart form with a file field is required")
		return
	}
	part, err := nextFilePart(reader)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeAppError(w, r, app.ErrTooLarge)
			return
		}
		writeError(w, http.StatusBadRequest, "multipart form with a file field is required")
		return
	}
	defer part.Close()
	res, err := s.app.UploadDocument(r.Context(), userID, part.FileName(), part)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			err = app.ErrTooLarge
		}
		writeAppError(w, r, err)
		return
	}
	status := http.StatusCreated
	if res.Job != nil {
		status = http.StatusAccepted
	}
	writeJSON(w, status, res)
}

func nextFilePart(reader *multipart.Reader) (*multipart.Part, error) {
	for {
		part, err := reader.NextPart()
		if err != nil {
			return nil, err
		}
		if part.FormName() == "file" && part.FileName() != "" {
			return part, nil
		}
		part.Close()
	}
}

func (s *Server) handleDocumentURL(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	docID, ok := strings.CutSuffix(strings.TrimPrefix(r.URL.Path, "/api/documents/"), "/url")
	if !ok || docID == "" || strings.Contains(docID, "/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	link, err := s.app.DocumentURL(r.Context(), userID, docID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, link)
}

func (s *Server) handleJob(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	jobID := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	if jobID == "" || strings.Contains(jobID, "/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	job, err := s.app.GetJob(r.Context(), userID, jobID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleFlashcards(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	limit, ok := pageSize(w, r)
	if !ok {
		return
	}
	cards, err := s.app.ListFlashcards(r.Context(), userID, limit)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"flashcards": cards})
}

func (s *Server) handleQuizzes(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	limit, ok := pageSize(w, r)
	if !ok {
		return
	}
	quizzes, err := s.app.ListQuizzes(r.Context(), userID, limit)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"quizzes": quizzes})
}

type resultRequest struct {
	Answers []int `json:"answers"`
}

func (s *Server) handleQuizByID(w http.ResponseWriter, r *http.Request, userID string) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/quizzes/")
	quizID, sub, _ := strings.Cut(rest, "/")
	if quizID == "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	switch sub {
	case "":
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		quiz, err := s.app.GetQuiz(r.Context(), userID, quizID)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"quiz": quiz})
	case "results":
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		var req resultRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		result, err := s.app.SubmitQuizResult(r.Context(), userID, quizID, req.Answers)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"result": result})
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

type chatRequest struct {
	Category       domain.Category `json:"category"`
	Message        string          `json:"message"`
	ConversationID string          `json:"conversationId"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req chatRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	reply, err := s.app.SendMessage(r.Context(), userID, req.Category, req.ConversationID, req.Message)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	history, err := s.app.ConversationHistory(r.Context(), userID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (s *Server) handleConversationMessages(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/api/conversations/")
	convID, sub, _ := strings.Cut(rest, "/")
	if convID == "" || sub != "messages" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	msgs, err := s.app.ListMessages(r.Context(), userID, convID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	progress, err := s.app.Progress(r.Context(), userID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody)).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// sameUser rejects bodies naming a different user than the token.
func sameUser(w http.ResponseWriter, bodyUserID, userID string) bool {
	if bodyUserID != "" && bodyUserID != userID {
		writeError(w, http.StatusForbidden, "userId does not match the authenticated user")
		return false
	}
	return true
}

func pageSize(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultPageSize, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > maxPageSize {
		writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
		return 0, false
	}
	return n, true
}

func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := errorStatus(err)
	if status >= http.StatusInternalServerError {
		util.LoggerFromContext(r.Context()).Error("request failed", "status", status, "err", err)
	}
	var procErr *app.ProcessError
	if errors.As(err, &procErr) {
		writeJSON(w, status, map[string]any{"error": msg, "flashcardsCount": procErr.FlashcardsCount})
		return
	}
	writeError(w, status, msg)
}

func errorStatus(err error) (int, string) {
	var gwErr *ai.GatewayError
	switch {
	case errors.Is(err, app.ErrInvalidInput):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, app.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, app.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, app.ErrRunInProgress):
		return http.StatusConflict, app.ErrRunInProgress.Error()
	case errors.Is(err, app.ErrTooLarge):
		return http.StatusRequestEntityTooLarge, "file too large"
	case errors.Is(err, app.ErrUnsupportedType):
		return http.StatusUnsupportedMediaType, err.Error()
	case errors.Is(err, app.ErrNotConfigured):
		return http.StatusInternalServerError, app.ErrNotConfigured.Error()
	case errors.As(err, &gwErr):
		return gwErr.Status, "AI gateway error"
	case errors.Is(err, ai.ErrNoToolCall), errors.Is(err, ai.ErrMalformedOutput), errors.Is(err, ai.ErrEmptyResponse):
		return http.StatusBadGateway, err.Error()
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}
