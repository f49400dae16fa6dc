package app

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CJSBLACKPEARL/spark-fullstack-buddy/pkg/ai"
	"github.com/CJSBLACKPEARL/spark-fullstack-buddy/pkg/domain"
)

func TestGenerateFlashcardsPersistsCards(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	cards, err := env.app.GenerateFlashcards(ctx, "u1", "  Photosynthesis ", 3, domain.CategoryAcademic)
	require.NoError(t, err)
	require.Len(t, cards, 3)
	for _, c := range cards {
		assert.Equal(t, "u1", c.UserID)
		assert.Equal(t, "Photosynthesis", c.Title)
		assert.Equal(t, domain.CategoryAcademic, c.Category)
		assert.Equal(t, domain.SourceAIGenerated, c.SourceType)
		assert.NotEmpty(t, c.ID)
	}

	stored, err := env.store.ListFlashcards(ctx, "u1", 0)
	require.NoError(t, err)
	assert.Len(t, stored, 3)

	prompts := env.gateway.prompts(ai.FlashcardsToolName)
	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0], `Generate 3 flashcards about "Photosynthesis".`)
}

func TestGenerateFlashcardsDefaultsCategory(t *testing.T) {
	env := newTestEnv(t)
	cards, err := env.app.GenerateFlashcards(context.Background(), "u1", "Sleep", 3, "")
	require.NoError(t, err)
	assert.Equal(t, domain.CategoryAcademic, cards[0].Category)
}

func TestGenerateFlashcardsRepeatedCallsCreateIndependentRows(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.app.GenerateFlashcards(ctx, "u1", "Photosynthesis", 3, domain.CategoryAcademic)
	require.NoError(t, err)
	second, err := env.app.GenerateFlashcards(ctx, "u1", "Photosynthesis", 3, domain.CategoryAcademic)
	require.NoError(t, err)

	ids := map[string]bool{}
	for _, c := range append(first, second...) {
		ids[c.ID] = true
	}
	assert.Len(t, ids, 6)
	stored, _ := env.store.ListFlashcards(ctx, "u1", 0)
	assert.Len(t, stored, 6)
}

func TestGenerateFlashcardsValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	cases := []struct {
		name     string
		topic    string
		count    int
		category domain.Category
	}{
		{"empty topic", "  ", 3, domain.CategoryAcademic},
		{"zero count", "Cells", 0, domain.CategoryAcademic},
		{"too many", "Cells", 51, domain.CategoryAcademic},
		{"bad category", "Cells", 3, "sports"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.app.GenerateFlashcards(ctx, "u1", tc.topic, tc.count, tc.category)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
	assert.Zero(t, env.gateway.calls(ai.FlashcardsToolName))
}

func TestGenerateFlashcardsRejectsBlankCards(t *testing.T) {
	env := newTestEnv(t)
	env.gateway.flashcards = func(int) (string, error) {
		return `{"flashcards":[{"front":"Q","back":""}]}`, nil
	}
	_, err := env.app.GenerateFlashcards(context.Background(), "u1", "Cells", 1, "")
	require.ErrorIs(t, err, ai.ErrMalformedOutput)
	stored, _ := env.store.ListFlashcards(context.Background(), "u1", 0)
	assert.Empty(t, stored)
}

func TestGenerateFlashcardsPropagatesGatewayError(t *testing.T) {
	env := newTestEnv(t)
	env.gateway.flashcards = func(int) (string, error) {
		return "", &ai.GatewayError{Status: 429, Body: "rate limited"}
	}
	_, err := env.app.GenerateFlashcards(context.Background(), "u1", "Cells", 3, "")
	var gwErr *ai.GatewayError
	require.True(t, errors.As(err, &gwErr))
	assert.Equal(t, 429, gwErr.Status)
}
