package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"trivia-quiz-service/internal/domain"
)

// HistoryStore keeps finished session results in the quiz_results table.
type HistoryStore struct {
	pool *pgxpool.Pool
}

func NewHistoryStore(pool *pgxpool.Pool) *HistoryStore {
	return &HistoryStore{pool: pool}
}

// Save inserts result for userID. Saving the same result ID twice is a no-op.
func (s *HistoryStore) Save(ctx context.Context, userID string, result domain.SessionResult) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO quiz_results (id, user_id, category_id, category, difficulty, score, total_questions, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`,
		result.ID, userID, result.CategoryID, result.Category, string(result.Difficulty),
		result.Score, result.TotalQuestions, result.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("save result: %w", err)
	}
	return nil
}

// List returns the user's results, newest first.
func (s *HistoryStore) List(ctx context.Context, userID string) ([]domain.SessionResult, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, category_id, category, difficulty, score, total_questions, completed_at
		FROM quiz_results
		WHERE user_id = $1
		ORDER BY completed_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()

	results := []domain.SessionResult{}
	for rows.Next() {
		var (
			r          domain.SessionResult
			difficulty string
		)
		if err := rows.Scan(&r.ID, &r.CategoryID, &r.Category, &difficulty, &r.Score, &r.TotalQuestions, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		r.Difficulty = domain.Difficulty(difficulty)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	return results, nil
}
