package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/pavelanni/mathtutor/internal/model"
)

// ExportSubmissions returns every submission joined with its exercise and,
// when the submitter has an account, its display name. Newest first.
func (s *Store) ExportSubmissions(ctx context.Context) ([]model.SubmissionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.user_id, COALESCE(u.display_name, ''), s.exercise_id,
		       COALESCE(e.title, ''), COALESCE(e.difficulty, ''), COALESCE(e.points, 0),
		       s.final_answer, s.steps, s.correct, s.score_earned, s.ai_global_score, s.submitted_at
		FROM submissions s
		LEFT JOIN exercises e ON e.id = s.exercise_id
		LEFT JOIN users u ON u.username = s.user_id
		ORDER BY s.rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("query submissions: %w", err)
	}
	defer rows.Close()

	records := []model.SubmissionRecord{}
	for rows.Next() {
		var (
			r     model.SubmissionRecord
			steps string
			ai    sql.NullFloat64
		)
		if err := rows.Scan(&r.SubmissionID, &r.UserID, &r.DisplayName, &r.ExerciseID,
			&r.ExerciseTitle, &r.Difficulty, &r.MaxPoints,
			&r.FinalAnswer, &steps, &r.Correct, &r.ScoreEarned, &ai, &r.SubmittedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(steps), &r.Steps); err != nil {
			return nil, fmt.Errorf("submission %s steps: %w", r.SubmissionID, err)
		}
		if ai.Valid {
			v := ai.Float64
			r.AIGlobalScore = &v
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	slices.SortStableFunc(records, func(a, b model.SubmissionRecord) int {
		return b.SubmittedAt.Compare(a.SubmittedAt)
	})
	return records, nil
}
