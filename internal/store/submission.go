package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/pavelanni/mathtutor/internal/model"
)

const submissionColumns = `id, user_id, exercise_id, answer, final_answer, steps, correct, score_earned, ai_global_score, source, submitted_at`

// SaveSubmission inserts a graded submission, assigning an id when none is set.
// Submissions are never updated.
func (s *Store) SaveSubmission(ctx context.Context, sub model.Submission) (model.Submission, error) {
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	if sub.Source == "" {
		sub.Source = model.SourceText
	}
	steps, err := marshalJSON(nonNil(sub.Steps))
	if err != nil {
		return sub, err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO submissions (`+submissionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.ID, sub.UserID, sub.ExerciseID, sub.Answer, sub.FinalAnswer, steps,
		sub.Correct, sub.ScoreEarned, sub.AIGlobalScore, sub.Source, sub.SubmittedAt,
	)
	if err != nil {
		return sub, fmt.Errorf("insert submission: %w", err)
	}
	return sub, nil
}

// GetSubmission returns a submission by id.
func (s *Store) GetSubmission(ctx context.Context, id string) (model.Submission, error) {
	subs, err := s.querySubmissions(ctx, `SELECT `+submissionColumns+` FROM submissions WHERE id = ?`, id)
	if err != nil {
		return model.Submission{}, err
	}
	if len(subs) == 0 {
		return model.Submission{}, fmt.Errorf("submission %q: %w", id, model.ErrNotFound)
	}
	return subs[0], nil
}

// ListSubmissionsByUser returns a user's submissions, newest first.
func (s *Store) ListSubmissionsByUser(ctx context.Context, userID string) ([]model.Submission, error) {
	return s.querySubmissions(ctx,
		`SELECT `+submissionColumns+` FROM submissions WHERE user_id = ?`, userID)
}

// ListSubmissionsByUserAndExercise returns a user's submissions for one
// exercise, newest first.
func (s *Store) ListSubmissionsByUserAndExercise(ctx context.Context, userID, exerciseID string) ([]model.Submission, error) {
	return s.querySubmissions(ctx,
		`SELECT `+submissionColumns+` FROM submissions WHERE user_id = ? AND exercise_id = ?`,
		userID, exerciseID)
}

// ListAllSubmissions returns every submission, newest first.
func (s *Store) ListAllSubmissions(ctx context.Context) ([]model.Submission, error) {
	return s.querySubmissions(ctx, `SELECT `+submissionColumns+` FROM submissions`)
}

func (s *Store) querySubmissions(ctx context.Context, query string, args ...any) ([]model.Submission, error) {
	rows, err := s.db.QueryContext(ctx, query+` ORDER BY rowid DESC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	subs := []model.Submission{}
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Row order breaks ties between equal timestamps.
	slices.SortStableFunc(subs, func(a, b model.Submission) int {
		return b.SubmittedAt.Compare(a.SubmittedAt)
	})
	return subs, nil
}

func scanSubmission(row scanner) (model.Submission, error) {
	var (
		sub   model.Submission
		steps string
		ai    sql.NullFloat64
	)
	err := row.Scan(&sub.ID, &sub.UserID, &sub.ExerciseID, &sub.Answer, &sub.FinalAnswer, &steps,
		&sub.Correct, &sub.ScoreEarned, &ai, &sub.Source, &sub.SubmittedAt)
	if err != nil {
		return sub, err
	}
	if ai.Valid {
		v := ai.Float64
		sub.AIGlobalScore = &v
	}
	if err := json.Unmarshal([]byte(steps), &sub.Steps); err != nil {
		return sub, fmt.Errorf("submission %s steps: %w", sub.ID, err)
	}
	if len(sub.Steps) == 0 {
		sub.Steps = nil
	}
	return sub, nil
}
