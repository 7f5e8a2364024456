package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pavelanni/mathtutor/internal/model"
)

const diagnosticColumns = `id, student_id, questions, answers, status, started_at, completed_at, result`

// CreateDiagnosticTest stores a newly started test.
func (s *Store) CreateDiagnosticTest(ctx context.Context, t model.DiagnosticTest) error {
	questions, err := marshalJSON(t.Questions)
	if err != nil {
		return err
	}
	answers, err := marshalJSON(nonNil(t.Answers))
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO diagnostic_tests (id, student_id, questions, answers, status, started_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		t.ID, t.StudentID, questions, answers, t.Status, t.StartedAt,
	)
	return err
}

// GetDiagnosticTest returns a test by id, or an error matching model.ErrNotFound.
func (s *Store) GetDiagnosticTest(ctx context.Context, id string) (model.DiagnosticTest, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+diagnosticColumns+` FROM diagnostic_tests WHERE id = ?`, id)
	t, err := scanDiagnosticTest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.DiagnosticTest{}, fmt.Errorf("diagnostic test %q: %w", id, model.ErrNotFound)
	}
	return t, err
}

// CompleteDiagnosticTest records answers and result. The update only applies
// to an IN_PROGRESS test, so of two racing submissions exactly one wins and
// the other gets model.ErrConflict.
func (s *Store) CompleteDiagnosticTest(ctx context.Context, t model.DiagnosticTest) error {
	answers, err := marshalJSON(nonNil(t.Answers))
	if err != nil {
		return err
	}
	result, err := marshalJSON(t.Result)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE diagnostic_tests
		 SET answers = ?, result = ?, status = ?, completed_at = ?
		 WHERE id = ? AND status = ?`,
		answers, result, model.TestCompleted, t.CompletedAt, t.ID, model.TestInProgress,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := s.GetDiagnosticTest(ctx, t.ID); err != nil {
			return err
		}
		return fmt.Errorf("diagnostic test %q already completed: %w", t.ID, model.ErrConflict)
	}
	return nil
}

// LatestCompletedDiagnosticTest returns the student's most recently completed
// test, or an error matching model.ErrNotFound.
func (s *Store) LatestCompletedDiagnosticTest(ctx context.Context, studentID string) (model.DiagnosticTest, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+diagnosticColumns+` FROM diagnostic_tests
		 WHERE student_id = ? AND status = ? ORDER BY rowid`,
		studentID, model.TestCompleted)
	if err != nil {
		return model.DiagnosticTest{}, err
	}
	defer rows.Close()

	var (
		latest model.DiagnosticTest
		found  bool
	)
	for rows.Next() {
		t, err := scanDiagnosticTest(rows)
		if err != nil {
			return model.DiagnosticTest{}, err
		}
		if t.CompletedAt == nil {
			continue
		}
		if !found || !t.CompletedAt.Before(*latest.CompletedAt) {
			latest, found = t, true
		}
	}
	if err := rows.Err(); err != nil {
		return model.DiagnosticTest{}, err
	}
	if !found {
		return model.DiagnosticTest{}, fmt.Errorf("no completed diagnostic for %q: %w", studentID, model.ErrNotFound)
	}
	return latest, nil
}

func scanDiagnosticTest(row scanner) (model.DiagnosticTest, error) {
	var (
		t                  model.DiagnosticTest
		questions, answers string
		result             sql.NullString
	)
	err := row.Scan(&t.ID, &t.StudentID, &questions, &answers, &t.Status, &t.StartedAt, &t.CompletedAt, &result)
	if err != nil {
		return t, err
	}
	if err := json.Unmarshal([]byte(questions), &t.Questions); err != nil {
		return t, fmt.Errorf("diagnostic test %s questions: %w", t.ID, err)
	}
	if err := json.Unmarshal([]byte(answers), &t.Answers); err != nil {
		return t, fmt.Errorf("diagnostic test %s answers: %w", t.ID, err)
	}
	if result.Valid && result.String != "" && result.String != "null" {
		var r model.DiagnosticResult
		if err := json.Unmarshal([]byte(result.String), &r); err != nil {
			return t, fmt.Errorf("diagnostic test %s result: %w", t.ID, err)
		}
		t.Result = &r
	}
	return t, nil
}
