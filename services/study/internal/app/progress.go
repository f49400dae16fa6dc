package app

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/CJSBLACKPEARL/spark-fullstack-buddy/pkg/domain"
)

const (
	weekWindow         = 7 * 24 * time.Hour
	monthWindow        = 30 * 24 * time.Hour
	minutesPerQuiz     = 15
	recentResultsLimit = 10
	defaultQuizTitle   = "Quiz"
)

// WindowStats summarises study activity in a trailing window.
// StudyMinutes is an estimate of minutesPerQuiz per completed quiz, not measured time.
type WindowStats struct {
	QuizzesCompleted  int `json:"quizzesCompleted"`
	AverageScore      int `json:"averageScore"`
	FlashcardsCreated int `json:"flashcardsCreated"`
	StudyMinutes      int `json:"studyMinutes"`
}

type RecentResult struct {
	QuizID         string    `json:"quizId"`
	QuizTitle      string    `json:"quizTitle"`
	Score          int       `json:"score"`
	TotalQuestions int       `json:"totalQuestions"`
	Percentage     int       `json:"percentage"`
	CompletedAt    time.Time `json:"completedAt"`
}

type Progress struct {
	Week   WindowStats    `json:"week"`
	Month  WindowStats    `json:"month"`
	Recent []RecentResult `json:"recent"`
}

// Progress aggregates the user's quiz results and flashcards over the last week and month.
func (a *App) Progress(ctx context.Context, userID string) (Progress, error) {
	now := a.now()
	week, err := a.windowStats(ctx, userID, now.Add(-weekWindow))
	if err != nil {
		return Progress{}, err
	}
	month, err := a.windowStats(ctx, userID, now.Add(-monthWindow))
	if err != nil {
		return Progress{}, err
	}
	results, err := a.store.ListRecentQuizResults(ctx, userID, recentResultsLimit)
	if err != nil {
		return Progress{}, fmt.Errorf("load recent results: %w", err)
	}
	ids := make([]string, 0, len(results))
	for _, r := range results {
		ids = append(ids, r.QuizID)
	}
	titles, err := a.store.QuizTitles(ctx, ids)
	if err != nil {
		return Progress{}, fmt.Errorf("load quiz titles: %w", err)
	}
	recent := make([]RecentResult, 0, len(results))
	for _, r := range results {
		title, ok := titles[r.QuizID]
		if !ok || title == "" {
			title = defaultQuizTitle
		}
		recent = append(recent, RecentResult{
			QuizID:         r.QuizID,
			QuizTitle:      title,
			Score:          r.Score,
			TotalQuestions: r.TotalQuestions,
			Percentage:     percentage(r),
			CompletedAt:    r.CompletedAt,
		})
	}
	return Progress{Week: week, Month: month, Recent: recent}, nil
}

func (a *App) windowStats(ctx context.Context, userID string, since time.Time) (WindowStats, error) {
	results, err := a.store.ListQuizResultsSince(ctx, userID, since)
	if err != nil {
		return WindowStats{}, fmt.Errorf("load quiz results: %w", err)
	}
	cards, err := a.store.CountFlashcardsSince(ctx, userID, since)
	if err != nil {
		return WindowStats{}, fmt.Errorf("count flashcards: %w", err)
	}
	return WindowStats{
		QuizzesCompleted:  len(results),
		AverageScore:      averageScore(results),
		FlashcardsCreated: cards,
		StudyMinutes:      len(results) * minutesPerQuiz,
	}, nil
}

// averageScore is the rounded mean percentage; attempts without questions are skipped.
func averageScore(results []domain.QuizResult) int {
	var sum float64
	n := 0
	for _, r := range results {
		if r.TotalQuestions <= 0 {
			continue
		}
		sum += float64(r.Score) / float64(r.TotalQuestions) * 100
		n++
	}
	if n == 0 {
		return 0
	}
	return int(math.Round(sum / float64(n)))
}

func percentage(r domain.QuizResult) int {
	if r.TotalQuestions <= 0 {
		return 0
	}
	return int(math.Round(float64(r.Score) / float64(r.TotalQuestions) * 100))
}
