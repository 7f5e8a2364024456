// Package diagnostic runs placement tests: it draws a random question set
// from a static bank, grades the answers per topic and recommends a level.
package diagnostic

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/mathtutor/internal/answer"
	"github.com/pavelanni/mathtutor/internal/model"
)

// DefaultSize is the number of questions drawn per test.
const DefaultSize = 5

// Topic and overall level thresholds.
const (
	strongTopic   = 0.7
	averageTopic  = 0.4
	advancedScore = 0.8
	passingScore  = 0.5
	// weakTopicsForBeginner demotes a passing student with this many weak topics.
	weakTopicsForBeginner = 2
)

// Repository persists diagnostic tests.
type Repository interface {
	CreateDiagnosticTest(ctx context.Context, t model.DiagnosticTest) error
	// GetDiagnosticTest returns model.ErrNotFound for unknown ids.
	GetDiagnosticTest(ctx context.Context, id string) (model.DiagnosticTest, error)
	// CompleteDiagnosticTest stores answers and result of an IN_PROGRESS test.
	// It returns model.ErrConflict when the test was already completed.
	CompleteDiagnosticTest(ctx context.Context, t model.DiagnosticTest) error
	// LatestCompletedDiagnosticTest returns model.ErrNotFound when the
	// student has no completed test.
	LatestCompletedDiagnosticTest(ctx context.Context, studentID string) (model.DiagnosticTest, error)
}

// Engine is the diagnostic test engine.
type Engine struct {
	repo    Repository
	bank    []model.DiagnosticQuestion
	size    int
	shuffle func(n int, swap func(i, j int))
	now     func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithSize sets how many questions a test draws.
func WithSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.size = n
		}
	}
}

// WithRand makes question selection use r, for reproducible tests.
func WithRand(r *rand.Rand) Option {
	return func(e *Engine) { e.shuffle = r.Shuffle }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an engine over the given question bank.
func New(repo Repository, bank []model.DiagnosticQuestion, opts ...Option) *Engine {
	e := &Engine{
		repo:    repo,
		bank:    slices.Clone(bank),
		size:    DefaultSize,
		shuffle: rand.Shuffle,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start creates an IN_PROGRESS test for a student with a fresh random
// selection of questions.
func (e *Engine) Start(ctx context.Context, studentID string) (*model.DiagnosticTest, error) {
	studentID = strings.TrimSpace(studentID)
	if studentID == "" {
		return nil, model.Required("studentId")
	}

	test := model.DiagnosticTest{
		ID:        uuid.NewString(),
		StudentID: studentID,
		Questions: e.selectQuestions(),
		Answers:   []string{},
		Status:    model.TestInProgress,
		StartedAt: e.now().UTC(),
	}
	if err := e.repo.CreateDiagnosticTest(ctx, test); err != nil {
		return nil, fmt.Errorf("create diagnostic test: %w", err)
	}

	slog.Info("diagnostic test started", "test_id", test.ID, "student_id", studentID,
		"questions", len(test.Questions))
	return &test, nil
}

func (e *Engine) selectQuestions() []model.DiagnosticQuestion {
	qs := slices.Clone(e.bank)
	e.shuffle(len(qs), func(i, j int) { qs[i], qs[j] = qs[j], qs[i] })
	if len(qs) > e.size {
		qs = qs[:e.size]
	}
	return qs
}

// Submit grades a test once and moves it to COMPLETED. The caller's student
// id must match the test owner.
func (e *Engine) Submit(ctx context.Context, testID, studentID string, answers []string) (*model.DiagnosticResult, error) {
	if strings.TrimSpace(testID) == "" {
		return nil, model.Required("testId")
	}
	studentID = strings.TrimSpace(studentID)
	if studentID == "" {
		return nil, model.Required("studentId")
	}
	if answers == nil {
		return nil, model.Required("answers")
	}

	test, err := e.repo.GetDiagnosticTest(ctx, testID)
	if err != nil {
		return nil, err
	}
	if test.StudentID != studentID {
		slog.Warn("diagnostic submission by non-owner", "test_id", testID, "student_id", studentID)
		return nil, fmt.Errorf("test %s belongs to another student: %w", testID, model.ErrForbidden)
	}
	if test.Status == model.TestCompleted {
		return nil, fmt.Errorf("test %s already submitted: %w", testID, model.ErrConflict)
	}

	result := Evaluate(test.Questions, answers)
	completed := e.now().UTC()
	test.Answers = alignAnswers(answers, len(test.Questions))
	test.Status = model.TestCompleted
	test.CompletedAt = &completed
	test.Result = &result

	if err := e.repo.CompleteDiagnosticTest(ctx, test); err != nil {
		return nil, err
	}

	slog.Info("diagnostic test completed", "test_id", testID, "student_id", studentID,
		"score", result.Score, "level", result.LevelRecommendation)
	return &result, nil
}

// alignAnswers pads or truncates answers to one per question.
func alignAnswers(answers []string, n int) []string {
	out := make([]string, n)
	copy(out, answers)
	return out
}

// Evaluate grades answers against questions by exact option match. Missing
// answers count as wrong; extra answers are ignored.
func Evaluate(questions []model.DiagnosticQuestion, answers []string) model.DiagnosticResult {
	type tally struct{ correct, total int }
	var (
		order   []string
		topics  = map[string]*tally{}
		correct int
	)
	for i, q := range questions {
		t, ok := topics[q.Topic]
		if !ok {
			t = &tally{}
			topics[q.Topic] = t
			order = append(order, q.Topic)
		}
		t.total++
		if i < len(answers) && answer.Exact(answers[i], q.CorrectAnswer) {
			t.correct++
			correct++
		}
	}

	res := model.DiagnosticResult{
		TotalQuestions:    len(questions),
		CorrectAnswers:    correct,
		TopicScores:       make([]model.TopicScore, 0, len(order)),
		RecommendedTopics: []string{},
	}
	if len(questions) > 0 {
		res.Score = float64(correct) / float64(len(questions))
	}

	weak := 0
	for _, name := range order {
		t := topics[name]
		score := float64(t.correct) / float64(t.total)
		level := ClassifyTopic(score)
		if level == model.TopicWeak {
			weak++
			res.RecommendedTopics = append(res.RecommendedTopics, name)
		}
		res.TopicScores = append(res.TopicScores, model.TopicScore{Topic: name, Score: score, Level: level})
	}
	res.LevelRecommendation = ClassifyOverall(res.Score, weak)
	return res
}

// ClassifyTopic maps a topic accuracy to WEAK, AVERAGE or STRONG.
func ClassifyTopic(score float64) model.TopicLevel {
	switch {
	case score >= strongTopic:
		return model.TopicStrong
	case score >= averageTopic:
		return model.TopicAverage
	default:
		return model.TopicWeak
	}
}

// ClassifyOverall recommends a level from the overall score and the number
// of weak topics.
func ClassifyOverall(score float64, weakTopics int) model.Level {
	switch {
	case score >= advancedScore:
		return model.LevelAdvanced
	case score >= passingScore:
		if weakTopics >= weakTopicsForBeginner {
			return model.LevelBeginner
		}
		return model.LevelIntermediate
	default:
		return model.LevelBeginner
	}
}

// LatestResult returns the result of the student's most recently completed test.
func (e *Engine) LatestResult(ctx context.Context, studentID string) (*model.DiagnosticResult, error) {
	studentID = strings.TrimSpace(studentID)
	if studentID == "" {
		return nil, model.Required("studentId")
	}
	test, err := e.repo.LatestCompletedDiagnosticTest(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if test.Result == nil {
		return nil, fmt.Errorf("diagnostic result for %s: %w", studentID, model.ErrNotFound)
	}
	return test.Result, nil
}

// GetTest loads a test by id.
func (e *Engine) GetTest(ctx context.Context, testID string) (*model.DiagnosticTest, error) {
	if strings.TrimSpace(testID) == "" {
		return nil, model.Required("testId")
	}
	test, err := e.repo.GetDiagnosticTest(ctx, testID)
	if err != nil {
		return nil, err
	}
	return &test, nil
}

// Questions returns the bank without expected answers.
func (e *Engine) Questions() []model.DiagnosticQuestion {
	out := make([]model.DiagnosticQuestion, len(e.bank))
	for i, q := range e.bank {
		out[i] = q.PublicQuestion()
	}
	return out
}

// BankSize returns the number of questions in the bank.
func (e *Engine) BankSize() int { return len(e.bank) }
