package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/CJSBLACKPEARL/spark-fullstack-buddy/internal/util"
	"github.com/CJSBLACKPEARL/spark-fullstack-buddy/pkg/ai"
	"github.com/CJSBLACKPEARL/spark-fullstack-buddy/pkg/domain"
)

const (
	quizSystemPrompt   = "You are a quiz generator. Create multiple-choice questions with 4 options each and indicate the correct answer."
	optionsPerQuestion = 4
)

// GenerateQuiz asks the gateway for a multiple-choice quiz and stores it for userID.
func (a *App) GenerateQuiz(ctx context.Context, userID, topic string, questionCount int, difficulty domain.Difficulty) (domain.Quiz, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return domain.Quiz{}, invalidInput("topic is required")
	}
	if questionCount < 1 || questionCount > maxGenerateCount {
		return domain.Quiz{}, invalidInput("questionCount must be between 1 and %d", maxGenerateCount)
	}
	if !difficulty.Valid() {
		return domain.Quiz{}, invalidInput("difficulty must be one of easy, medium, hard")
	}
	if err := a.requireGateway(); err != nil {
		return domain.Quiz{}, err
	}

	userPrompt := fmt.Sprintf("Generate %d %s difficulty multiple-choice questions about %q. Each question should have 4 options and a clear correct answer.", questionCount, difficulty, topic)
	args, err := a.askQuiz(ctx, quizSystemPrompt, userPrompt)
	if err != nil {
		return domain.Quiz{}, err
	}
	title := strings.TrimSpace(args.Title)
	if title == "" {
		title = topic + " Quiz"
	}
	quiz := domain.Quiz{
		ID:          util.NewID(),
		UserID:      userID,
		Title:       title,
		Description: fmt.Sprintf("%s difficulty quiz on %s", difficulty, topic),
		Questions:   args.Questions,
		SourceType:  domain.SourceAIGenerated,
		CreatedAt:   a.now(),
	}
	if err := a.store.CreateQuiz(ctx, quiz); err != nil {
		return domain.Quiz{}, fmt.Errorf("save quiz: %w", err)
	}
	util.LoggerFromContext(ctx).Info("quiz generated", "user_id", userID, "quiz_id", quiz.ID, "questions", len(quiz.Questions))
	return quiz, nil
}

func (a *App) askQuiz(ctx context.Context, systemPrompt, userPrompt string) (ai.QuizArgs, error) {
	var args ai.QuizArgs
	if err := a.gateway.CallTool(ctx, systemPrompt, userPrompt, ai.QuizTool(), &args); err != nil {
		return ai.QuizArgs{}, err
	}
	if err := validateQuestions(args.Questions); err != nil {
		return ai.QuizArgs{}, err
	}
	return args, nil
}

func validateQuestions(questions []domain.QuizQuestion) error {
	if len(questions) == 0 {
		return fmt.Errorf("%w: no questions returned", ai.ErrMalformedOutput)
	}
	for i, q := range questions {
		if strings.TrimSpace(q.Question) == "" {
			return fmt.Errorf("%w: question %d has no text", ai.ErrMalformedOutput, i+1)
		}
		if len(q.Options) != optionsPerQuestion {
			return fmt.Errorf("%w: question %d has %d options", ai.ErrMalformedOutput, i+1, len(q.Options))
		}
		if q.CorrectAnswer < 0 || q.CorrectAnswer >= optionsPerQuestion {
			return fmt.Errorf("%w: question %d correctAnswer %d out of range", ai.ErrMalformedOutput, i+1, q.CorrectAnswer)
		}
	}
	return nil
}

// GetQuiz returns one of the user's quizzes.
func (a *App) GetQuiz(ctx context.Context, userID, quizID string) (domain.Quiz, error) {
	quiz, ok, err := a.store.GetQuiz(ctx, userID, quizID)
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load quiz: %w", err)
	}
	if !ok {
		return domain.Quiz{}, ErrNotFound
	}
	return quiz, nil
}

func (a *App) ListQuizzes(ctx context.Context, userID string, limit int) ([]domain.Quiz, error) {
	return a.store.ListQuizzes(ctx, userID, limit)
}

// SubmitQuizResult scores answers against the quiz and records the attempt.
func (a *App) SubmitQuizResult(ctx context.Context, userID, quizID string, answers []int) (domain.QuizResult, error) {
	quiz, err := a.GetQuiz(ctx, userID, quizID)
	if err != nil {
		return domain.QuizResult{}, err
	}
	if len(answers) != len(quiz.Questions) {
		return domain.QuizResult{}, invalidInput("expected %d answers, got %d", len(quiz.Questions), len(answers))
	}
	score := 0
	for i, q := range quiz.Questions {
		if answers[i] == q.CorrectAnswer {
			score++
		}
	}
	result := domain.QuizResult{
		ID:             util.NewID(),
		UserID:         userID,
		QuizID:         quiz.ID,
		Score:          score,
		TotalQuestions: len(quiz.Questions),
		CompletedAt:    a.now(),
	}
	if err := a.store.CreateQuizResult(ctx, result); err != nil {
		return domain.QuizResult{}, fmt.Errorf("save quiz result: %w", err)
	}
	return result, nil
}
