// Package grading scores exercise submissions, in simple mode (one answer)
// or step mode (reasoning steps plus a final answer, with a partial-credit
// bonus and an external evaluator consulted when the final answer is wrong).
package grading

import (
	"context"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/pavelanni/mathtutor/internal/answer"
	"github.com/pavelanni/mathtutor/internal/model"
)

// StepBonusRate is the share of an exercise's points that can be earned on
// top of a correct final answer for well-reasoned steps.
const StepBonusRate = 0.3

// ExerciseFinder loads exercises. It returns an error matching
// model.ErrNotFound for unknown ids.
type ExerciseFinder interface {
	GetExercise(ctx context.Context, id string) (model.Exercise, error)
}

// SubmissionStore persists and lists submissions.
type SubmissionStore interface {
	SaveSubmission(ctx context.Context, sub model.Submission) (model.Submission, error)
	ListSubmissionsByUser(ctx context.Context, userID string) ([]model.Submission, error)
	ListSubmissionsByUserAndExercise(ctx context.Context, userID, exerciseID string) ([]model.Submission, error)
}

// StepEvaluator judges reasoning steps. Implementations talk to a remote
// service or an LLM and may fail; failures never reach the student.
type StepEvaluator interface {
	EvaluateSteps(ctx context.Context, req model.StepEvalRequest) (*model.StepEvalResult, error)
}

// TextExtractor turns an uploaded image of handwritten work into text.
type TextExtractor interface {
	ExtractText(ctx context.Context, image []byte) (string, error)
}

// Request is one submission as received from a caller.
type Request struct {
	ExerciseID  string
	UserID      string
	Answer      string
	Steps       []string
	FinalAnswer string
	// Image is used when Answer is blank and no steps were given.
	Image []byte
}

// Service is the step scoring engine.
type Service struct {
	exercises   ExerciseFinder
	submissions SubmissionStore
	evaluator   StepEvaluator
	ocr         TextExtractor
	evalTimeout time.Duration
	now         func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithEvaluator sets the external step evaluator. Without one, wrong final
// answers get no step feedback.
func WithEvaluator(e StepEvaluator) Option {
	return func(s *Service) { s.evaluator = e }
}

// WithTextExtractor sets the OCR collaborator used for image submissions.
func WithTextExtractor(x TextExtractor) Option {
	return func(s *Service) { s.ocr = x }
}

// WithEvalTimeout bounds each evaluator and OCR call.
func WithEvalTimeout(d time.Duration) Option {
	return func(s *Service) { s.evalTimeout = d }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a grading service.
func NewService(exercises ExerciseFinder, submissions SubmissionStore, opts ...Option) *Service {
	s := &Service{
		exercises:   exercises,
		submissions: submissions,
		evalTimeout: 20 * time.Second,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit grades a submission and persists exactly one record for it.
// Validation and not-found errors are returned before anything is saved.
func (s *Service) Submit(ctx context.Context, req Request) (*model.SubmissionResult, error) {
	if isBlank(req.UserID) {
		return nil, model.Required("userId")
	}

	if len(req.Steps) > 0 {
		final := req.FinalAnswer
		if isBlank(final) {
			final = req.Answer
		}
		if isBlank(final) {
			return nil, &model.ValidationError{
				Field:   "finalAnswer",
				Message: "finalAnswer (or answer) is required when steps are provided",
			}
		}
		return s.submitWithSteps(ctx, req.ExerciseID, req.UserID, req.Steps, final)
	}

	source := model.SourceText
	given := req.Answer
	if isBlank(given) && len(req.Image) > 0 {
		given = s.extractText(ctx, req.ExerciseID, req.Image)
		source = model.SourceOCR
	}
	if isBlank(given) {
		return nil, model.Required("answer")
	}
	return s.submitSimple(ctx, req.ExerciseID, req.UserID, given, source)
}

func (s *Service) submitSimple(ctx context.Context, exerciseID, userID, given string, source model.AnswerSource) (*model.SubmissionResult, error) {
	ex, err := s.exercises.GetExercise(ctx, exerciseID)
	if err != nil {
		return nil, err
	}

	given = strings.TrimSpace(given)
	correct := answer.Equivalent(given, ex.Solution)
	earned := 0
	if correct {
		earned = ex.Points
	}

	saved, err := s.submissions.SaveSubmission(ctx, model.Submission{
		UserID:      userID,
		ExerciseID:  exerciseID,
		Answer:      given,
		FinalAnswer: given,
		Correct:     correct,
		ScoreEarned: earned,
		Source:      source,
		SubmittedAt: s.now(),
	})
	if err != nil {
		return nil, err
	}

	slog.Info("graded submission",
		"mode", "simple", "exercise_id", exerciseID, "user_id", userID,
		"correct", correct, "score", earned)
	return &model.SubmissionResult{Submission: saved}, nil
}

func (s *Service) submitWithSteps(ctx context.Context, exerciseID, userID string, steps []string, finalAnswer string) (*model.SubmissionResult, error) {
	ex, err := s.exercises.GetExercise(ctx, exerciseID)
	if err != nil {
		return nil, err
	}

	finalAnswer = strings.TrimSpace(finalAnswer)
	finalCorrect := answer.Equivalent(finalAnswer, ex.Solution)
	points := ex.Points

	var (
		feedback []model.StepFeedback
		aiResult *model.StepEvalResult
	)
	if finalCorrect {
		// A correct final answer is never discouraged: every step counts as right.
		feedback = allCorrectFeedback(steps)
	} else {
		aiResult = s.evaluateSteps(ctx, model.StepEvalRequest{
			ExerciseID:     exerciseID,
			StudentID:      userID,
			ExpectedAnswer: strings.TrimSpace(ex.Solution),
			Steps:          steps,
			FinalAnswer:    finalAnswer,
		})
		if aiResult != nil {
			feedback = aiResult.StepsFeedback
		}
	}
	if feedback == nil {
		feedback = []model.StepFeedback{}
	}

	earned := 0
	if finalCorrect {
		earned = points + StepBonus(points, feedback)
	}

	sub := model.Submission{
		UserID:      userID,
		ExerciseID:  exerciseID,
		Answer:      finalAnswer,
		FinalAnswer: finalAnswer,
		Steps:       steps,
		Correct:     finalCorrect,
		ScoreEarned: earned,
		Source:      model.SourceText,
		SubmittedAt: s.now(),
	}
	if aiResult != nil {
		score := aiResult.GlobalScore
		sub.AIGlobalScore = &score
	}

	saved, err := s.submissions.SaveSubmission(ctx, sub)
	if err != nil {
		return nil, err
	}

	res := &model.SubmissionResult{Submission: saved, StepsFeedback: feedback}
	if aiResult != nil {
		res.GeneratedSolutionSteps = aiResult.GeneratedSolutionSteps
	}

	slog.Info("graded submission",
		"mode", "steps", "exercise_id", exerciseID, "user_id", userID,
		"correct", finalCorrect, "score", earned, "steps", len(steps),
		"ai_feedback", aiResult != nil)
	return res, nil
}

// evaluateSteps calls the evaluator once. Any failure yields nil.
func (s *Service) evaluateSteps(ctx context.Context, req model.StepEvalRequest) *model.StepEvalResult {
	if s.evaluator == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.evalTimeout)
	defer cancel()

	res, err := s.evaluator.EvaluateSteps(ctx, req)
	if err != nil {
		slog.Warn("step evaluation unavailable", "exercise_id", req.ExerciseID, "error", err)
		return nil
	}
	if res == nil {
		slog.Warn("step evaluation returned nothing", "exercise_id", req.ExerciseID)
		return nil
	}
	if res.GlobalScore < 0 || res.GlobalScore > 1 || math.IsNaN(res.GlobalScore) {
		slog.Warn("step evaluation score out of range, ignoring result",
			"exercise_id", req.ExerciseID, "global_score", res.GlobalScore)
		return nil
	}
	return res
}

// extractText runs OCR once. Any failure yields an empty answer.
func (s *Service) extractText(ctx context.Context, exerciseID string, image []byte) string {
	if s.ocr == nil {
		slog.Warn("image submitted but no text extractor configured", "exercise_id", exerciseID)
		return ""
	}
	ctx, cancel := context.WithTimeout(ctx, s.evalTimeout)
	defer cancel()

	text, err := s.ocr.ExtractText(ctx, image)
	if err != nil {
		slog.Warn("text extraction failed", "exercise_id", exerciseID, "error", err)
		return ""
	}
	return strings.TrimSpace(text)
}

// StepBonus returns the partial-credit bonus for a correct final answer:
// points * StepBonusRate scaled by the share of correct steps, rounded, and
// capped at round(points * StepBonusRate).
func StepBonus(points int, feedback []model.StepFeedback) int {
	if len(feedback) == 0 {
		return 0
	}
	correct := 0
	for _, f := range feedback {
		if f.Correct {
			correct++
		}
	}
	ratio := float64(correct) / float64(len(feedback))
	bonus := int(math.Round(float64(points) * StepBonusRate * ratio))
	maxBonus := int(math.Round(float64(points) * StepBonusRate))
	return min(bonus, maxBonus)
}

func allCorrectFeedback(steps []string) []model.StepFeedback {
	out := make([]model.StepFeedback, len(steps))
	for i, st := range steps {
		out[i] = model.StepFeedback{Index: i, Step: st, Correct: true}
	}
	return out
}

// ListSubmissions returns a user's submissions, newest first, optionally
// restricted to one exercise.
func (s *Service) ListSubmissions(ctx context.Context, userID, exerciseID string) ([]model.Submission, error) {
	if isBlank(userID) {
		return nil, model.Required("userId")
	}
	if exerciseID == "" {
		return s.submissions.ListSubmissionsByUser(ctx, userID)
	}
	return s.submissions.ListSubmissionsByUserAndExercise(ctx, userID, exerciseID)
}

// Progress summarizes a user's history.
func (s *Service) Progress(ctx context.Context, userID string) (model.Progress, error) {
	subs, err := s.ListSubmissions(ctx, userID, "")
	if err != nil {
		return model.Progress{}, err
	}
	p := model.Progress{UserID: userID, TotalSubmissions: len(subs)}
	for _, sub := range subs {
		if sub.Correct {
			p.CorrectSubmissions++
		}
		p.TotalScore += sub.ScoreEarned
		if p.LastSubmissionAt == nil || sub.SubmittedAt.After(*p.LastSubmissionAt) {
			at := sub.SubmittedAt
			p.LastSubmissionAt = &at
		}
	}
	return p, nil
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
