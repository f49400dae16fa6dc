package app

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/CJSBLACKPEARL/spark-fullstack-buddy/pkg/domain"
)

const messageCountConcurrency = 8

type ConversationSummary struct {
	domain.Conversation
	MessageCount int `json:"messageCount"`
}

type CategoryStats struct {
	Sessions int `json:"sessions"`
	Messages int `json:"messages"`
}

type ConversationHistory struct {
	Conversations []ConversationSummary             `json:"conversations"`
	Categories    map[domain.Category]CategoryStats `json:"categories"`
}

// ConversationHistory lists the user's conversations with message counts and per-category totals.
func (a *App) ConversationHistory(ctx context.Context, userID string) (ConversationHistory, error) {
	conversations, err := a.store.ListConversations(ctx, userID)
	if err != nil {
		return ConversationHistory{}, fmt.Errorf("list conversations: %w", err)
	}
	summaries := make([]ConversationSummary, len(conversations))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(messageCountConcurrency)
	for i, conv := range conversations {
		i, conv := i, conv // per-iteration copies for the goroutine (pre-Go 1.22 loop semantics)
		summaries[i].Conversation = conv
		g.Go(func() error {
			n, err := a.store.CountMessages(gctx, conv.ID)
			if err != nil {
				return fmt.Errorf("count messages for %s: %w", conv.ID, err)
			}
			summaries[i].MessageCount = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return ConversationHistory{}, err
	}

	categories := make(map[domain.Category]CategoryStats, len(domain.Categories))
	for _, c := range domain.Categories {
		categories[c] = CategoryStats{}
	}
	for _, s := range summaries {
		stats := categories[s.Category]
		stats.Sessions++
		stats.Messages += s.MessageCount
		categories[s.Category] = stats
	}
	return ConversationHistory{Conversations: summaries, Categories: categories}, nil
}
