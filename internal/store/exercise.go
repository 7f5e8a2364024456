package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pavelanni/mathtutor/internal/model"
)

const exerciseColumns = `id, title, description, difficulty, topics, solution, points, steps_required, correction_mode, created_at`

// UpsertExercise inserts an exercise or replaces the one with the same id.
func (s *Store) UpsertExercise(ctx context.Context, ex model.Exercise) error {
	topics, err := marshalJSON(nonNil(ex.Topics))
	if err != nil {
		return err
	}
	if ex.CreatedAt.IsZero() {
		ex.CreatedAt = time.Now().UTC()
	}
	if ex.CorrectionMode == "" {
		ex.CorrectionMode = model.CorrectionAuto
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO exercises (`+exerciseColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			difficulty = excluded.difficulty,
			topics = excluded.topics,
			solution = excluded.solution,
			points = excluded.points,
			steps_required = excluded.steps_required,
			correction_mode = excluded.correction_mode`,
		ex.ID, ex.Title, ex.Description, model.ParseLevel(string(ex.Difficulty)), topics,
		ex.Solution, ex.Points, ex.StepsRequired, ex.CorrectionMode, ex.CreatedAt,
	)
	return err
}

// GetExercise returns an exercise by id, or an error matching
// model.ErrNotFound.
func (s *Store) GetExercise(ctx context.Context, id string) (model.Exercise, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+exerciseColumns+` FROM exercises WHERE id = ?`, id)
	ex, err := scanExercise(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Exercise{}, fmt.Errorf("exercise %q: %w", id, model.ErrNotFound)
	}
	return ex, err
}

// ListExercises returns exercises ordered by difficulty then id. A non-empty
// level keeps only the exercises a learner at that level may attempt.
func (s *Store) ListExercises(ctx context.Context, level model.Level) ([]model.Exercise, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+exerciseColumns+` FROM exercises
		 ORDER BY CASE difficulty WHEN 'BEGINNER' THEN 1 WHEN 'INTERMEDIATE' THEN 2 ELSE 3 END, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	exercises := []model.Exercise{}
	for rows.Next() {
		ex, err := scanExercise(rows)
		if err != nil {
			return nil, err
		}
		if level != "" && !level.CanAccess(ex.Difficulty) {
			continue
		}
		exercises = append(exercises, ex)
	}
	return exercises, rows.Err()
}

// ExerciseCount returns the number of exercises in the database.
func (s *Store) ExerciseCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM exercises`).Scan(&count)
	return count, err
}

func scanExercise(row scanner) (model.Exercise, error) {
	var (
		ex     model.Exercise
		topics string
	)
	err := row.Scan(&ex.ID, &ex.Title, &ex.Description, &ex.Difficulty, &topics,
		&ex.Solution, &ex.Points, &ex.StepsRequired, &ex.CorrectionMode, &ex.CreatedAt)
	if err != nil {
		return ex, err
	}
	if err := json.Unmarshal([]byte(topics), &ex.Topics); err != nil {
		return ex, fmt.Errorf("exercise %s topics: %w", ex.ID, err)
	}
	return ex, nil
}

func nonNil(ss []string) []string {
	if ss == nil {
		return []string{}
	}
	return ss
}
