package app

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/CJSBLACKPEARL/spark-fullstack-buddy/pkg/queue"
	"github.com/CJSBLACKPEARL/spark-fullstack-buddy/pkg/storage"
	"github.com/CJSBLACKPEARL/spark-fullstack-buddy/pkg/store"
)

const (
	maxGenerateCount      = 50
	defaultHistoryLimit   = 20
	defaultMaxUploadBytes = 20 << 20
)

// Gateway is the subset of ai.GatewayClient the app depends on.
type Gateway interface {
	CompleteMessages(ctx context.Context, systemPrompt string, history []openai.ChatCompletionMessage) (string, error)
	CompleteWithDocument(ctx context.Context, prompt, mimeType string, data []byte) (string, error)
	CallTool(ctx context.Context, systemPrompt, userPrompt string, tool openai.Tool, out any) error
}

// JobQueue hands uploaded documents to background workers.
type JobQueue interface {
	Enqueue(ctx context.Context, documentID, userID string) (queue.JobStatus, error)
	GetJob(ctx context.Context, jobID string) (queue.JobStatus, bool, error)
}

// StepObserver is told the outcome of each document processing step.
type StepObserver func(step, outcome string)

// Config holds runtime configuration for the core application.
type Config struct {
	Store          store.Store
	Objects        storage.ObjectStore
	Gateway        Gateway
	Queue          JobQueue
	HistoryLimit   int
	MaxUploadBytes int64
	StepObserver   StepObserver
	Now            func() time.Time
}

// App implements the study operations on top of storage and the AI gateway.
type App struct {
	store          store.Store
	objects        storage.ObjectStore
	gateway        Gateway
	queue          JobQueue
	historyLimit   int
	maxUploadBytes int64
	observeStep    StepObserver
	now            func() time.Time
}

// New constructs the application on an opened store and object store.
func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store required")
	}
	if cfg.Objects == nil {
		return nil, fmt.Errorf("object store required")
	}
	historyLimit := cfg.HistoryLimit
	if historyLimit <= 0 {
		historyLimit = defaultHistoryLimit
	}
	maxUpload := cfg.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = defaultMaxUploadBytes
	}
	observe := cfg.StepObserver
	if observe == nil {
		observe = func(string, string) {}
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &App{
		store:          cfg.Store,
		objects:        cfg.Objects,
		gateway:        cfg.Gateway,
		queue:          cfg.Queue,
		historyLimit:   historyLimit,
		maxUploadBytes: maxUpload,
		observeStep:    observe,
		now:            now,
	}, nil
}

// MaxUploadBytes is the largest accepted document.
func (a *App) MaxUploadBytes() int64 { return a.maxUploadBytes }

// QueueEnabled reports whether uploads are processed in the background.
func (a *App) QueueEnabled() bool { return a.queue != nil }

func (a *App) Close() error { return a.store.Close() }

func (a *App) requireGateway() error {
	if a.gateway == nil {
		return ErrNotConfigured
	}
	return nil
}
