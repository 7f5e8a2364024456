package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pavelanni/mathtutor/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func insertTestExercise(t *testing.T, s *Store, id string, level model.Level) {
	t.Helper()
	err := s.UpsertExercise(context.Background(), model.Exercise{
		ID:         id,
		Title:      "Exercise " + id,
		Difficulty: level,
		Topics:     []string{"algebra"},
		Solution:   "x=5",
		Points:     20,
	})
	if err != nil {
		t.Fatalf("insertTestExercise: %v", err)
	}
}

var t0 = time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)

func TestExerciseCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	count, err := s.ExerciseCount(ctx)
	if err != nil {
		t.Fatalf("ExerciseCount: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 exercises, got %d", count)
	}

	insertTestExercise(t, s, "eq-1", model.LevelBeginner)
	ex, err := s.GetExercise(ctx, "eq-1")
	if err != nil {
		t.Fatalf("GetExercise: %v", err)
	}
	if ex.Title != "Exercise eq-1" || ex.Solution != "x=5" || ex.Points != 20 {
		t.Errorf("unexpected exercise %+v", ex)
	}
	if len(ex.Topics) != 1 || ex.Topics[0] != "algebra" {
		t.Errorf("expected topics [algebra], got %v", ex.Topics)
	}
	if ex.CorrectionMode != model.CorrectionAuto {
		t.Errorf("expected default correction mode AUTO, got %q", ex.CorrectionMode)
	}

	// Not found.
	_, err = s.GetExercise(ctx, "missing")
	if !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	// Upsert replaces.
	err = s.UpsertExercise(ctx, model.Exercise{ID: "eq-1", Title: "Renamed", Solution: "7"})
	if err != nil {
		t.Fatalf("UpsertExercise: %v", err)
	}
	ex, _ = s.GetExercise(ctx, "eq-1")
	if ex.Title != "Renamed" || ex.Solution != "7" {
		t.Errorf("expected replaced exercise, got %+v", ex)
	}
	if ex.Points != 0 {
		t.Errorf("expected stored points 0, got %d", ex.Points)
	}
	if ex.Difficulty != model.LevelBeginner {
		t.Errorf("expected difficulty to default to BEGINNER, got %q", ex.Difficulty)
	}
	count, _ = s.ExerciseCount(ctx)
	if count != 1 {
		t.Errorf("expected count 1 after upsert, got %d", count)
	}
}

func TestListExercisesByLevel(t *testing.T) {
	s := newTestStore(t)
	insertTestExercise(t, s, "a", model.LevelAdvanced)
	insertTestExercise(t, s, "b", model.LevelBeginner)
	insertTestExercise(t, s, "i", model.LevelIntermediate)

	tests := []struct {
		name    string
		level   model.Level
		wantIDs []string
	}{
		{"no filter", "", []string{"b", "i", "a"}},
		{"beginner", model.LevelBeginner, []string{"b"}},
		{"intermediate", model.LevelIntermediate, []string{"b", "i"}},
		{"advanced", model.LevelAdvanced, []string{"b", "i", "a"}},
		{"unknown level acts as beginner", model.Level("EXPERT"), []string{"b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exs, err := s.ListExercises(context.Background(), tt.level)
			if err != nil {
				t.Fatalf("ListExercises: %v", err)
			}
			if len(exs) != len(tt.wantIDs) {
				t.Fatalf("expected %d exercises, got %d", len(tt.wantIDs), len(exs))
			}
			for i, id := range tt.wantIDs {
				if exs[i].ID != id {
					t.Errorf("position %d: expected %q, got %q", i, id, exs[i].ID)
				}
			}
		})
	}
}

func TestSubmissions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	insertTestExercise(t, s, "eq-1", model.LevelBeginner)
	insertTestExercise(t, s, "eq-2", model.LevelBeginner)

	score := 0.25
	saved, err := s.SaveSubmission(ctx, model.Submission{
		UserID:        "alice",
		ExerciseID:    "eq-1",
		Answer:        "x=4",
		FinalAnswer:   "x=4",
		Steps:         []string{"2x=8", "x=4"},
		AIGlobalScore: &score,
		SubmittedAt:   t0,
	})
	if err != nil {
		t.Fatalf("SaveSubmission: %v", err)
	}
	if saved.ID == "" {
		t.Fatal("expected an id to be assigned")
	}

	for i, ex := range []string{"eq-1", "eq-2"} {
		_, err := s.SaveSubmission(ctx, model.Submission{
			UserID: "alice", ExerciseID: ex, Answer: "5", FinalAnswer: "5",
			Correct: true, ScoreEarned: 20, SubmittedAt: t0.Add(time.Duration(i+1) * time.Hour),
		})
		if err != nil {
			t.Fatalf("SaveSubmission: %v", err)
		}
	}
	if _, err := s.SaveSubmission(ctx, model.Submission{UserID: "bob", ExerciseID: "eq-1", Answer: "1", SubmittedAt: t0.Add(3 * time.Hour)}); err != nil {
		t.Fatalf("SaveSubmission: %v", err)
	}

	got, err := s.GetSubmission(ctx, saved.ID)
	if err != nil {
		t.Fatalf("GetSubmission: %v", err)
	}
	if len(got.Steps) != 2 || got.Steps[1] != "x=4" {
		t.Errorf("expected steps round trip, got %v", got.Steps)
	}
	if got.AIGlobalScore == nil || *got.AIGlobalScore != 0.25 {
		t.Errorf("expected ai score 0.25, got %v", got.AIGlobalScore)
	}
	if got.Source != model.SourceText {
		t.Errorf("expected default source text, got %q", got.Source)
	}
	if !got.SubmittedAt.Equal(t0) {
		t.Errorf("expected submitted_at %v, got %v", t0, got.SubmittedAt)
	}

	all, err := s.ListSubmissionsByUser(ctx, "alice")
	if err != nil {
		t.Fatalf("ListSubmissionsByUser: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 submissions, got %d", len(all))
	}
	if all[0].ExerciseID != "eq-2" || all[2].ID != saved.ID {
		t.Errorf("expected newest first, got %s ... %s", all[0].ExerciseID, all[2].ID)
	}
	if all[0].AIGlobalScore != nil {
		t.Errorf("expected nil ai score, got %v", *all[0].AIGlobalScore)
	}

	one, err := s.ListSubmissionsByUserAndExercise(ctx, "alice", "eq-1")
	if err != nil {
		t.Fatalf("ListSubmissionsByUserAndExercise: %v", err)
	}
	if len(one) != 2 {
		t.Errorf("expected 2 submissions for eq-1, got %d", len(one))
	}

	everyone, err := s.ListAllSubmissions(ctx)
	if err != nil {
		t.Fatalf("ListAllSubmissions: %v", err)
	}
	if len(everyone) != 4 {
		t.Fatalf("expected 4 submissions, got %d", len(everyone))
	}
	if everyone[0].UserID != "bob" || everyone[3].ID != saved.ID {
		t.Errorf("expected newest first, got %s ... %s", everyone[0].UserID, everyone[3].ID)
	}

	none, err := s.ListSubmissionsByUser(ctx, "carol")
	if err != nil {
		t.Fatalf("ListSubmissionsByUser: %v", err)
	}
	if none == nil || len(none) != 0 {
		t.Errorf("expected empty non-nil list, got %v", none)
	}

	_, err = s.GetSubmission(ctx, "missing")
	if !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func newDiagnosticTest(id, student string) model.DiagnosticTest {
	return model.DiagnosticTest{
		ID:        id,
		StudentID: student,
		Questions: []model.DiagnosticQuestion{
			{ID: "q1", Text: "1+1", Options: []string{"2", "3"}, CorrectAnswer: "2", Topic: "Calcul"},
		},
		Status:    model.TestInProgress,
		StartedAt: t0,
	}
}

func completeTest(t *testing.T, s *Store, test model.DiagnosticTest, at time.Time, level model.Level) error {
	t.Helper()
	test.Answers = []string{"2"}
	test.Status = model.TestCompleted
	test.CompletedAt = &at
	test.Result = &model.DiagnosticResult{
		TotalQuestions: 1, CorrectAnswers: 1, Score: 1, LevelRecommendation: level,
		TopicScores:       []model.TopicScore{{Topic: "Calcul", Score: 1, Level: model.TopicStrong}},
		RecommendedTopics: []string{},
	}
	return s.CompleteDiagnosticTest(context.Background(), test)
}

func TestDiagnosticLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	test := newDiagnosticTest("t1", "alice")
	if err := s.CreateDiagnosticTest(ctx, test); err != nil {
		t.Fatalf("CreateDiagnosticTest: %v", err)
	}

	got, err := s.GetDiagnosticTest(ctx, "t1")
	if err != nil {
		t.Fatalf("GetDiagnosticTest: %v", err)
	}
	if got.Status != model.TestInProgress || got.Result != nil || got.CompletedAt != nil {
		t.Errorf("expected fresh in-progress test, got %+v", got)
	}
	if len(got.Questions) != 1 || got.Questions[0].CorrectAnswer != "2" {
		t.Errorf("expected questions round trip, got %+v", got.Questions)
	}

	_, err = s.LatestCompletedDiagnosticTest(ctx, "alice")
	if !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected ErrNotFound before completion, got %v", err)
	}

	if err := completeTest(t, s, got, t0.Add(time.Hour), model.LevelAdvanced); err != nil {
		t.Fatalf("CompleteDiagnosticTest: %v", err)
	}
	got, _ = s.GetDiagnosticTest(ctx, "t1")
	if got.Status != model.TestCompleted || got.Result == nil || got.CompletedAt == nil {
		t.Fatalf("expected completed test, got %+v", got)
	}
	if got.Result.LevelRecommendation != model.LevelAdvanced {
		t.Errorf("expected ADVANCED, got %q", got.Result.LevelRecommendation)
	}

	// Second completion is rejected.
	err = completeTest(t, s, got, t0.Add(2*time.Hour), model.LevelBeginner)
	if !errors.Is(err, model.ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}

	err = completeTest(t, s, newDiagnosticTest("nope", "alice"), t0, model.LevelBeginner)
	if !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown test, got %v", err)
	}

	_, err = s.GetDiagnosticTest(ctx, "nope")
	if !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestLatestCompletedDiagnosticTest(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"old", "new", "open"} {
		if err := s.CreateDiagnosticTest(ctx, newDiagnosticTest(id, "alice")); err != nil {
			t.Fatalf("CreateDiagnosticTest: %v", err)
		}
	}
	// Completed out of creation order.
	if err := completeTest(t, s, newDiagnosticTest("new", "alice"), t0.Add(3*time.Hour), model.LevelAdvanced); err != nil {
		t.Fatal(err)
	}
	if err := completeTest(t, s, newDiagnosticTest("old", "alice"), t0.Add(time.Hour), model.LevelBeginner); err != nil {
		t.Fatal(err)
	}

	latest, err := s.LatestCompletedDiagnosticTest(ctx, "alice")
	if err != nil {
		t.Fatalf("LatestCompletedDiagnosticTest: %v", err)
	}
	if latest.ID != "new" {
		t.Errorf("expected latest test 'new', got %q", latest.ID)
	}

	_, err = s.LatestCompletedDiagnosticTest(ctx, "bob")
	if !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected ErrNotFound for other student, got %v", err)
	}
}

func TestConcurrentDiagnosticCompletion(t *testing.T) {
	s := newTestStore(t)
	if err := s.CreateDiagnosticTest(context.Background(), newDiagnosticTest("race", "alice")); err != nil {
		t.Fatal(err)
	}

	const n = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := completeTest(t, s, newDiagnosticTest("race", "alice"), t0.Add(time.Duration(i)*time.Minute), model.LevelBeginner)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, model.ErrConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	if succeeded != 1 || conflicts != n-1 {
		t.Errorf("expected 1 success and %d conflicts, got %d and %d", n-1, succeeded, conflicts)
	}
}

func TestUsersAndSessions(t *testing.T) {
	s := newTestStore(t)

	count, _ := s.UserCount()
	if count != 0 {
		t.Fatalf("expected 0 users, got %d", count)
	}

	id, err := s.CreateUser(model.User{Username: "alice", DisplayName: "Alice", PasswordHash: "hash", Active: true})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	u, err := s.GetUserByUsername("alice")
	if err != nil || u == nil {
		t.Fatalf("GetUserByUsername: %v %v", u, err)
	}
	if u.ID != id || u.Role != model.UserRoleStudent || !u.Active {
		t.Errorf("unexpected user %+v", u)
	}
	if missing, err := s.GetUserByUsername("nobody"); err != nil || missing != nil {
		t.Errorf("expected nil user, got %v %v", missing, err)
	}
	if _, err := s.CreateUser(model.User{Username: "alice", PasswordHash: "x"}); err == nil {
		t.Error("expected duplicate username to fail")
	}

	token, err := s.CreateAuthSession(id)
	if err != nil {
		t.Fatalf("CreateAuthSession: %v", err)
	}
	sess, err := s.GetAuthSession(token)
	if err != nil || sess == nil {
		t.Fatalf("GetAuthSession: %v %v", sess, err)
	}
	if sess.UserID != id {
		t.Errorf("expected session for user %d, got %d", id, sess.UserID)
	}
	if sess.ID == token {
		t.Error("expected token to be stored hashed")
	}

	// Deactivating a user drops its sessions.
	if err := s.ToggleUserActive(id); err != nil {
		t.Fatalf("ToggleUserActive: %v", err)
	}
	if sess, _ := s.GetAuthSession(token); sess != nil {
		t.Error("expected session to be revoked on deactivation")
	}
	u, _ = s.GetUserByID(id)
	if u.Active {
		t.Error("expected user to be inactive")
	}
	if err := s.ToggleUserActive(999); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	token, _ = s.CreateAuthSession(id)
	if err := s.DeleteAuthSession(token); err != nil {
		t.Fatalf("DeleteAuthSession: %v", err)
	}
	if sess, _ := s.GetAuthSession(token); sess != nil {
		t.Error("expected deleted session to be gone")
	}

	users, err := s.ListUsers()
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(users) != 1 {
		t.Errorf("expected 1 user, got %d", len(users))
	}
}

func TestImportedFileHash(t *testing.T) {
	s := newTestStore(t)

	// Missing file returns empty string.
	hash, err := s.GetImportedFileHash("/some/path.json")
	if err != nil {
		t.Fatalf("GetImportedFileHash: %v", err)
	}
	if hash != "" {
		t.Errorf("expected empty hash, got %q", hash)
	}

	if err := s.SetImportedFileHash("/some/path.json", "abc123"); err != nil {
		t.Fatalf("SetImportedFileHash: %v", err)
	}
	hash, _ = s.GetImportedFileHash("/some/path.json")
	if hash != "abc123" {
		t.Errorf("expected 'abc123', got %q", hash)
	}

	// Update existing.
	if err := s.SetImportedFileHash("/some/path.json", "def456"); err != nil {
		t.Fatalf("SetImportedFileHash update: %v", err)
	}
	hash, _ = s.GetImportedFileHash("/some/path.json")
	if hash != "def456" {
		t.Errorf("expected 'def456', got %q", hash)
	}

	// Plain metadata does not collide with import hashes.
	if v, _ := s.GetMetadata("/some/path.json"); v != "" {
		t.Errorf("expected no plain metadata, got %q", v)
	}
}

func TestExportSubmissions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	insertTestExercise(t, s, "eq-1", model.LevelIntermediate)
	if _, err := s.CreateUser(model.User{Username: "alice", DisplayName: "Alice A.", PasswordHash: "h", Active: true}); err != nil {
		t.Fatal(err)
	}

	_, _ = s.SaveSubmission(ctx, model.Submission{UserID: "alice", ExerciseID: "eq-1", FinalAnswer: "5", Steps: []string{"x=5"}, Correct: true, ScoreEarned: 26, SubmittedAt: t0})
	_, _ = s.SaveSubmission(ctx, model.Submission{UserID: "guest", ExerciseID: "eq-1", FinalAnswer: "4", SubmittedAt: t0.Add(time.Hour)})

	records, err := s.ExportSubmissions(ctx)
	if err != nil {
		t.Fatalf("ExportSubmissions: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].UserID != "guest" || records[0].DisplayName != "" {
		t.Errorf("expected newest guest record first, got %+v", records[0])
	}
	r := records[1]
	if r.DisplayName != "Alice A." || r.ExerciseTitle != "Exercise eq-1" || r.MaxPoints != 20 || r.Difficulty != model.LevelIntermediate {
		t.Errorf("unexpected joined record %+v", r)
	}
	if !r.Correct || r.ScoreEarned != 26 || len(r.Steps) != 1 {
		t.Errorf("unexpected submission fields %+v", r)
	}
}
