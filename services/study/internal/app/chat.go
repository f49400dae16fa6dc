package app

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/CJSBLACKPEARL/spark-fullstack-buddy/internal/util"
	"github.com/CJSBLACKPEARL/spark-fullstack-buddy/pkg/domain"
)

const conversationTitleRunes = 50

var chatSystemPrompts = map[domain.Category]string{
	domain.CategoryHealth:   "You are a supportive health coach. Give practical, evidence-based guidance on fitness, nutrition and sleep, and suggest seeing a professional for medical concerns.",
	domain.CategoryAcademic: "You are an academic tutor. Explain concepts step by step, check understanding with short questions, and suggest effective study techniques.",
	domain.CategoryWellness: "You are a calm wellness coach. Help with stress, focus and motivation using concrete, gentle techniques.",
}

// ChatReply is the result of one chat turn.
type ChatReply struct {
	Conversation domain.Conversation `json:"conversation"`
	Reply        domain.Message      `json:"reply"`
}

// SendMessage appends a user message to a conversation (creating one when
// conversationID is empty) and stores the assistant's answer.
func (a *App) SendMessage(ctx context.Context, userID string, category domain.Category, conversationID, content string) (ChatReply, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return ChatReply{}, invalidInput("message is required")
	}
	if err := a.requireGateway(); err != nil {
		return ChatReply{}, err
	}
	conversation, err := a.ensureConversation(ctx, userID, category, conversationID, content)
	if err != nil {
		return ChatReply{}, err
	}

	userMsg := domain.Message{
		ID:             util.NewID(),
		ConversationID: conversation.ID,
		Role:           domain.RoleUser,
		Content:        content,
		CreatedAt:      a.now(),
	}
	if err := a.store.AppendMessage(ctx, userMsg); err != nil {
		return ChatReply{}, fmt.Errorf("save message: %w", err)
	}
	history, err := a.store.ListMessages(ctx, conversation.ID, a.historyLimit)
	if err != nil {
		return ChatReply{}, fmt.Errorf("load history: %w", err)
	}

	answer, err := a.gateway.CompleteMessages(ctx, chatSystemPrompts[conversation.Category], toChatMessages(history))
	if err != nil {
		return ChatReply{}, err
	}
	reply := domain.Message{
		ID:             util.NewID(),
		ConversationID: conversation.ID,
		Role:           domain.RoleAssistant,
		Content:        answer,
		CreatedAt:      a.now(),
	}
	if err := a.store.AppendMessage(ctx, reply); err != nil {
		return ChatReply{}, fmt.Errorf("save reply: %w", err)
	}
	return ChatReply{Conversation: conversation, Reply: reply}, nil
}

func (a *App) ensureConversation(ctx context.Context, userID string, category domain.Category, conversationID, firstMessage string) (domain.Conversation, error) {
	if conversationID != "" {
		conv, ok, err := a.store.GetConversation(ctx, userID, conversationID)
		if err != nil {
			return domain.Conversation{}, fmt.Errorf("load conversation: %w", err)
		}
		if !ok {
			return domain.Conversation{}, ErrNotFound
		}
		return conv, nil
	}
	if !category.Valid() {
		return domain.Conversation{}, invalidInput("category must be one of health, academic, wellness")
	}
	conv := domain.Conversation{
		ID:        util.NewID(),
		UserID:    userID,
		Category:  category,
		Title:     truncateRunes(firstMessage, conversationTitleRunes),
		CreatedAt: a.now(),
	}
	if err := a.store.CreateConversation(ctx, conv); err != nil {
		return domain.Conversation{}, fmt.Errorf("create conversation: %w", err)
	}
	return conv, nil
}

func toChatMessages(history []domain.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(history))
	for _, msg := range history {
		role := openai.ChatMessageRoleUser
		if msg.Role == domain.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, Content: msg.Content})
	}
	return out
}

// ListMessages returns the messages of one of the user's conversations in order.
func (a *App) ListMessages(ctx context.Context, userID, conversationID string) ([]domain.Message, error) {
	if _, ok, err := a.store.GetConversation(ctx, userID, conversationID); err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	} else if !ok {
		return nil, ErrNotFound
	}
	return a.store.ListMessages(ctx, conversationID, 0)
}
