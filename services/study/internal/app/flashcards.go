package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/CJSBLACKPEARL/spark-fullstack-buddy/internal/util"
	"github.com/CJSBLACKPEARL/spark-fullstack-buddy/pkg/ai"
	"github.com/CJSBLACKPEARL/spark-fullstack-buddy/pkg/domain"
)

const flashcardSystemPrompt = "You are a flashcard generator. Create educational flashcards with clear questions on the front and concise answers on the back."

// GenerateFlashcards asks the gateway for count cards on topic and stores them for userID.
func (a *App) GenerateFlashcards(ctx context.Context, userID, topic string, count int, category domain.Category) ([]domain.Flashcard, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, invalidInput("topic is required")
	}
	if count < 1 || count > maxGenerateCount {
		return nil, invalidInput("count must be between 1 and %d", maxGenerateCount)
	}
	if category == "" {
		category = domain.CategoryAcademic
	}
	if !category.Valid() {
		return nil, invalidInput("category must be one of health, academic, wellness")
	}
	if err := a.requireGateway(); err != nil {
		return nil, err
	}

	userPrompt := fmt.Sprintf("Generate %d flashcards about %q. Each flashcard should have a clear question or prompt on the front and a detailed but concise answer on the back.", count, topic)
	cards, err := a.askFlashcards(ctx, flashcardSystemPrompt, userPrompt, userID, topic, category, domain.SourceAIGenerated)
	if err != nil {
		return nil, err
	}
	if err := a.store.CreateFlashcards(ctx, cards); err != nil {
		return nil, fmt.Errorf("save flashcards: %w", err)
	}
	util.LoggerFromContext(ctx).Info("flashcards generated", "user_id", userID, "count", len(cards))
	return cards, nil
}

// ListFlashcards returns the user's cards, newest first.
func (a *App) ListFlashcards(ctx context.Context, userID string, limit int) ([]domain.Flashcard, error) {
	return a.store.ListFlashcards(ctx, userID, limit)
}

// askFlashcards runs the create_flashcards tool and builds unsaved rows.
func (a *App) askFlashcards(ctx context.Context, systemPrompt, userPrompt, userID, title string, category domain.Category, source domain.SourceType) ([]domain.Flashcard, error) {
	var args ai.FlashcardsArgs
	if err := a.gateway.CallTool(ctx, systemPrompt, userPrompt, ai.FlashcardsTool(), &args); err != nil {
		return nil, err
	}
	if len(args.Flashcards) == 0 {
		return nil, fmt.Errorf("%w: no flashcards returned", ai.ErrMalformedOutput)
	}
	now := a.now()
	cards := make([]domain.Flashcard, 0, len(args.Flashcards))
	for i, fc := range args.Flashcards {
		front := strings.TrimSpace(fc.Front)
		back := strings.TrimSpace(fc.Back)
		if front == "" || back == "" {
			return nil, fmt.Errorf("%w: flashcard %d is missing front or back", ai.ErrMalformedOutput, i+1)
		}
		cards = append(cards, domain.Flashcard{
			ID:         util.NewID(),
			UserID:     userID,
			Title:      title,
			Front:      front,
			Back:       back,
			Category:   category,
			SourceType: source,
			CreatedAt:  now,
		})
	}
	return cards, nil
}
