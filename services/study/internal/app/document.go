package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/CJSBLACKPEARL/spark-fullstack-buddy/internal/util"
	"github.com/CJSBLACKPEARL/spark-fullstack-buddy/pkg/ai"
	"github.com/CJSBLACKPEARL/spark-fullstack-buddy/pkg/domain"
	"github.com/CJSBLACKPEARL/spark-fullstack-buddy/pkg/queue"
	"github.com/CJSBLACKPEARL/spark-fullstack-buddy/pkg/storage"
)

const (
	mimePDF  = "application/pdf"
	mimePPT  = "application/vnd.ms-powerpoint"
	mimePPTX = "application/vnd.openxmlformats-officedocument.presentationml.presentation"
	mimeDOC  = "application/msword"
	mimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

	extractPrompt = "Extract the main content and key points from this document. Provide a comprehensive summary."

	documentFlashcardSystemPrompt = "You are a flashcard generator. Create educational flashcards from document content."
	documentQuizSystemPrompt      = "You are a quiz generator. Create multiple-choice questions from document content."
	documentFlashcardCount        = 10
	documentQuestionCount         = 5

	documentLinkExpiry = 15 * time.Minute

	// runLease outlasts the slowest single step, each of which refreshes updated_at.
	runLease = 10 * time.Minute
)

var allowedTypes = []string{mimePDF, mimePPT, mimePPTX, mimeDOC, mimeDOCX}

var typeByExtension = map[string]string{
	".pdf":  mimePDF,
	".ppt":  mimePPT,
	".pptx": mimePPTX,
	".doc":  mimeDOC,
	".docx": mimeDOCX,
}

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// ProcessSummary is the outcome of a completed document run.
type ProcessSummary struct {
	Success         bool `json:"success"`
	FlashcardsCount int  `json:"flashcardsCount"`
	QuestionsCount  int  `json:"questionsCount"`
}

// DocumentLink is a short-lived download URL for an upload.
type DocumentLink struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// UploadResult holds the stored document and either its queued job or its inline summary.
type UploadResult struct {
	Document domain.UploadedDocument `json:"document"`
	Job      *queue.JobStatus        `json:"job,omitempty"`
	Summary  *ProcessSummary         `json:"summary,omitempty"`
}

// detectFileType sniffs data and resolves generic container types by extension.
func detectFileType(data []byte, fileName string) (string, bool) {
	detected := mimetype.Detect(data)
	for _, allowed := range allowedTypes {
		if detected.Is(allowed) {
			return allowed, true
		}
	}
	if detected.Is("application/zip") || detected.Is("application/x-ole-storage") {
		if t, ok := typeByExtension[strings.ToLower(filepath.Ext(fileName))]; ok {
			return t, true
		}
	}
	return detected.String(), false
}

func sanitizeFileName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = unsafeNameChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, "._")
	if name == "" {
		name = "document"
	}
	return name
}

// UploadDocument stores a document for userID and starts its processing.
func (a *App) UploadDocument(ctx context.Context, userID, fileName string, r io.Reader) (UploadResult, error) {
	if strings.TrimSpace(fileName) == "" {
		return UploadResult{}, invalidInput("file name is required")
	}
	data, err := io.ReadAll(io.LimitReader(r, a.maxUploadBytes+1))
	if err != nil {
		return UploadResult{}, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > a.maxUploadBytes {
		return UploadResult{}, ErrTooLarge
	}
	if len(data) == 0 {
		return UploadResult{}, invalidInput("file is empty")
	}
	fileType, ok := detectFileType(data, fileName)
	if !ok {
		return UploadResult{}, fmt.Errorf("%w: %s", ErrUnsupportedType, fileType)
	}

	now := a.now()
	key := fmt.Sprintf("%s/%d_%s", userID, now.UnixMilli(), sanitizeFileName(fileName))
	if err := a.objects.Put(ctx, key, bytes.NewReader(data), int64(len(data)), fileType); err != nil {
		return UploadResult{}, fmt.Errorf("store document: %w", err)
	}
	doc := domain.UploadedDocument{
		ID:        util.NewID(),
		UserID:    userID,
		FileName:  fileName,
		FilePath:  key,
		FileType:  fileType,
		FileSize:  int64(len(data)),
		CreatedAt: now,
	}
	logger := util.LoggerFromContext(ctx)
	if err := a.store.CreateDocument(ctx, doc); err != nil {
		if delErr := a.objects.Delete(ctx, key); delErr != nil {
			logger.Warn("orphaned document blob", "key", key, "err", delErr)
		}
		return UploadResult{}, fmt.Errorf("save document: %w", err)
	}
	logger.Info("document uploaded", "user_id", userID, "document_id", doc.ID, "type", fileType, "size", doc.FileSize)

	result := UploadResult{Document: doc}
	if a.queue != nil {
		job, err := a.queue.Enqueue(ctx, doc.ID, userID)
		if err != nil {
			return result, fmt.Errorf("enqueue document: %w", err)
		}
		result.Job = &job
		return result, nil
	}
	summary, err := a.ProcessDocument(ctx, userID, doc.FilePath, doc.FileName)
	if err != nil {
		return result, err
	}
	result.Summary = &summary
	return result, nil
}

// ListDocuments returns the user's uploads, newest first.
func (a *App) ListDocuments(ctx context.Context, userID string) ([]domain.UploadedDocument, error) {
	return a.store.ListDocuments(ctx, userID)
}

// DocumentURL signs a download link for one of the user's uploads.
func (a *App) DocumentURL(ctx context.Context, userID, documentID string) (DocumentLink, error) {
	doc, ok, err := a.store.GetDocument(ctx, userID, documentID)
	if err != nil {
		return DocumentLink{}, fmt.Errorf("load document: %w", err)
	}
	if !ok {
		return DocumentLink{}, ErrNotFound
	}
	url, err := a.objects.PresignGet(ctx, doc.FilePath, documentLinkExpiry)
	if errors.Is(err, storage.ErrObjectNotFound) {
		return DocumentLink{}, ErrNotFound
	}
	if err != nil {
		return DocumentLink{}, fmt.Errorf("sign document url: %w", err)
	}
	return DocumentLink{URL: url, ExpiresAt: a.now().Add(documentLinkExpiry)}, nil
}

// GetJob returns a queued job owned by userID.
func (a *App) GetJob(ctx context.Context, userID, jobID string) (queue.JobStatus, error) {
	if a.queue == nil {
		return queue.JobStatus{}, ErrNotFound
	}
	job, ok, err := a.queue.GetJob(ctx, jobID)
	if err != nil {
		return queue.JobStatus{}, fmt.Errorf("load job: %w", err)
	}
	if !ok || job.UserID != userID {
		return queue.JobStatus{}, ErrNotFound
	}
	return job, nil
}

// HandleJob is the queue handler for uploaded documents.
func (a *App) HandleJob(ctx context.Context, job queue.JobStatus) error {
	doc, ok, err := a.store.GetDocument(ctx, job.UserID, job.DocumentID)
	if err != nil {
		return fmt.Errorf("load document: %w", err)
	}
	if !ok {
		return fmt.Errorf("document %s: %w", job.DocumentID, ErrNotFound)
	}
	ctx = util.ContextWithLogger(ctx, util.LoggerFromContext(ctx).With("job_id", job.ID))
	_, err = a.ProcessDocument(ctx, job.UserID, doc.FilePath, doc.FileName)
	return err
}

// ProcessDocument turns an uploaded file into flashcards and a quiz. Each step is
// recorded on the run for (userID, filePath); a repeated call skips completed steps
// and a call overlapping a live run fails with ErrRunInProgress.
func (a *App) ProcessDocument(ctx context.Context, userID, filePath, fileName string) (ProcessSummary, error) {
	filePath = strings.TrimSpace(filePath)
	if filePath == "" {
		return ProcessSummary{}, invalidInput("filePath is required")
	}
	if strings.TrimSpace(fileName) == "" {
		return ProcessSummary{}, invalidInput("fileName is required")
	}
	if !ownsPath(userID, filePath) {
		return ProcessSummary{}, ErrForbidden
	}
	if err := a.requireGateway(); err != nil {
		return ProcessSummary{}, err
	}

	run, owned, err := a.claimRun(ctx, userID, filePath, fileName)
	if err != nil {
		return ProcessSummary{}, err
	}
	if run.Status == domain.RunDone {
		return summaryOf(run), nil
	}
	if !owned {
		return ProcessSummary{}, ErrRunInProgress
	}
	logger := util.LoggerFromContext(ctx).With("user_id", userID, "file_path", filePath, "run_id", run.ID)

	fail := func(step string, stepErr error) (ProcessSummary, error) {
		a.observeStep(step, "failed")
		logger.Error("document step failed", "step", step, "err", stepErr)
		run.Status = domain.RunFailed
		run.ErrorMessage = stepErr.Error()
		run.UpdatedAt = a.now()
		if err := a.store.SaveRun(context.WithoutCancel(ctx), run); err != nil {
			logger.Error("save failed run", "err", err)
		}
		return ProcessSummary{}, &ProcessError{Err: stepErr, FlashcardsCount: run.FlashcardsCount}
	}

	if !run.Extracted() {
		text, err := a.extract(ctx, filePath)
		if err != nil {
			return fail("extract", err)
		}
		run.ExtractedText = truncateRunes(text, maxContentRunes)
		run.UpdatedAt = a.now()
		if err := a.store.SaveRun(ctx, run); err != nil {
			return fail("extract", fmt.Errorf("save run: %w", err))
		}
		a.observeStep("extract", "done")
		logger.Info("document extracted", "runes", len([]rune(run.ExtractedText)))
	}

	if !run.FlashcardsDone {
		userPrompt := fmt.Sprintf("Based on this document content, generate %d flashcards:\n\n%s", documentFlashcardCount, run.ExtractedText)
		cards, err := a.askFlashcards(ctx, documentFlashcardSystemPrompt, userPrompt, userID, fileName, domain.CategoryAcademic, domain.SourcePPTGenerated)
		if err != nil {
			return fail("flashcards", err)
		}
		next := run
		next.FlashcardsDone = true
		next.FlashcardsCount = len(cards)
		next.UpdatedAt = a.now()
		if err := a.store.CommitFlashcardStep(ctx, next, cards); err != nil {
			return fail("flashcards", fmt.Errorf("save flashcards: %w", err))
		}
		run = next
		a.observeStep("flashcards", "done")
		logger.Info("document flashcards saved", "count", run.FlashcardsCount)
	}

	if !run.QuizDone {
		userPrompt := fmt.Sprintf("Based on this document content, generate %d multiple-choice questions:\n\n%s", documentQuestionCount, run.ExtractedText)
		args, err := a.askQuiz(ctx, documentQuizSystemPrompt, userPrompt)
		if err != nil {
			return fail("quiz", err)
		}
		quiz := domain.Quiz{
			ID:          util.NewID(),
			UserID:      userID,
			Title:       fileName + " Quiz",
			Description: "Quiz generated from " + fileName,
			Questions:   args.Questions,
			SourceType:  domain.SourcePPTGenerated,
			CreatedAt:   a.now(),
		}
		next := run
		next.QuizDone = true
		next.QuizID = quiz.ID
		next.QuestionsCount = len(quiz.Questions)
		next.Status = domain.RunDone
		next.UpdatedAt = a.now()
		if err := a.store.CommitQuizStep(ctx, next, quiz); err != nil {
			return fail("quiz", fmt.Errorf("save quiz: %w", err))
		}
		run = next
		a.observeStep("quiz", "done")
		logger.Info("document quiz saved", "quiz_id", quiz.ID, "questions", run.QuestionsCount)
	}

	if run.Status != domain.RunDone {
		run.Status = domain.RunDone
		run.UpdatedAt = a.now()
		if err := a.store.SaveRun(ctx, run); err != nil {
			return ProcessSummary{}, fmt.Errorf("save run: %w", err)
		}
	}
	return summaryOf(run), nil
}

func summaryOf(run domain.ProcessingRun) ProcessSummary {
	return ProcessSummary{Success: true, FlashcardsCount: run.FlashcardsCount, QuestionsCount: run.QuestionsCount}
}

// ownsPath reports whether filePath is a canonical key under userID's prefix.
func ownsPath(userID, filePath string) bool {
	if userID == "" || path.Clean(filePath) != filePath {
		return false
	}
	rest, ok := strings.CutPrefix(filePath, userID+"/")
	return ok && rest != ""
}

// claimRun takes the run for (userID, filePath). A processing run untouched for
// runLease is treated as abandoned.
func (a *App) claimRun(ctx context.Context, userID, filePath, fileName string) (domain.ProcessingRun, bool, error) {
	now := a.now()
	fresh := domain.ProcessingRun{
		ID:        util.NewID(),
		UserID:    userID,
		FilePath:  filePath,
		FileName:  fileName,
		Status:    domain.RunProcessing,
		CreatedAt: now,
		UpdatedAt: now,
	}
	run, owned, err := a.store.ClaimRun(ctx, fresh, now.Add(-runLease))
	if err != nil {
		return domain.ProcessingRun{}, false, fmt.Errorf("claim run: %w", err)
	}
	return run, owned, nil
}

// extract asks the gateway to read the document and falls back to local parsing
// when the gateway is unreachable or answers with nothing.
func (a *App) extract(ctx context.Context, filePath string) (string, error) {
	data, err := a.objects.Get(ctx, filePath)
	if errors.Is(err, storage.ErrObjectNotFound) {
		return "", fmt.Errorf("document %s: %w", filePath, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("download document: %w", err)
	}
	fileType, ok := detectFileType(data, filePath)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, fileType)
	}
	text, err := a.gateway.CompleteWithDocument(ctx, extractPrompt, fileType, data)
	if err == nil {
		return text, nil
	}
	var gwErr *ai.GatewayError
	if errors.As(err, &gwErr) {
		return "", err
	}
	util.LoggerFromContext(ctx).Warn("gateway extraction failed, parsing locally", "err", err)
	local, localErr := extractLocalText(fileType, data)
	if localErr != nil {
		return "", fmt.Errorf("extract document: %w (local: %v)", err, localErr)
	}
	return local, nil
}
