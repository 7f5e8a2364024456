package model

import (
	"context"
	"strings"
	"time"
)

// UserRole represents a user's access level.
type UserRole string

const (
	// UserRoleStudent is a student user role.
	UserRoleStudent UserRole = "student"
	// UserRoleTeacher is a teacher user role.
	UserRoleTeacher UserRole = "teacher"
	// UserRoleAdmin is an admin user role.
	UserRoleAdmin UserRole = "admin"
)

// User represents a system user. Username doubles as the user id carried by
// submissions and diagnostic tests.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	DisplayName  string    `json:"display_name"`
	ExternalID   string    `json:"external_id,omitempty"`
	PasswordHash string    `json:"-"`
	Role         UserRole  `json:"role"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
}

// AuthSession represents an authentication session.
type AuthSession struct {
	ID        string
	UserID    int64
	CreatedAt time.Time
	ExpiresAt time.Time
}

type userCtxKey struct{}

// ContextWithUser stores a user in the request context.
func ContextWithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, u)
}

// UserFromContext retrieves the authenticated user from context, or nil.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userCtxKey{}).(*User)
	return u
}

// Level is a proficiency level. It is used both as exercise difficulty and as
// the level recommended by a diagnostic test.
type Level string

const (
	LevelBeginner     Level = "BEGINNER"
	LevelIntermediate Level = "INTERMEDIATE"
	LevelAdvanced     Level = "ADVANCED"
)

var levelRank = map[Level]int{
	LevelBeginner:     1,
	LevelIntermediate: 2,
	LevelAdvanced:     3,
}

// ParseLevel maps a free-form level string to a Level. Unknown or empty
// values fall back to BEGINNER.
func ParseLevel(s string) Level {
	l := Level(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := levelRank[l]; ok {
		return l
	}
	return LevelBeginner
}

// CanAccess reports whether a learner at level l may attempt content at level required.
func (l Level) CanAccess(required Level) bool {
	return levelRank[ParseLevel(string(l))] >= levelRank[ParseLevel(string(required))]
}

// CorrectionMode says how an exercise is meant to be corrected.
type CorrectionMode string

const (
	CorrectionAuto   CorrectionMode = "AUTO"
	CorrectionAI     CorrectionMode = "AI"
	CorrectionManual CorrectionMode = "MANUAL"
)

// DefaultPoints is the reward of an imported exercise whose file omits one.
const DefaultPoints = 10

// Exercise is a gradable math exercise.
type Exercise struct {
	ID             string         `json:"id"`
	Title          string         `json:"title"`
	Description    string         `json:"description"`
	Difficulty     Level          `json:"difficulty"`
	Topics         []string       `json:"topics"`
	Solution       string         `json:"solution"`
	Points         int            `json:"points"`
	StepsRequired  bool           `json:"steps_required"`
	CorrectionMode CorrectionMode `json:"correction_mode"`
	CreatedAt      time.Time      `json:"created_at"`
}

// AnswerSource records where the graded answer text came from.
type AnswerSource string

const (
	SourceText AnswerSource = "text"
	SourceOCR  AnswerSource = "ocr"
)

// Submission is one graded attempt. It is created once per grading call and
// never updated.
type Submission struct {
	ID            string       `json:"id"`
	UserID        string       `json:"user_id"`
	ExerciseID    string       `json:"exercise_id"`
	Answer        string       `json:"answer"`
	FinalAnswer   string       `json:"final_answer"`
	Steps         []string     `json:"steps,omitempty"`
	Correct       bool         `json:"correct"`
	ScoreEarned   int          `json:"score_earned"`
	AIGlobalScore *float64     `json:"ai_global_score,omitempty"`
	Source        AnswerSource `json:"source"`
	SubmittedAt   time.Time    `json:"submitted_at"`
}

// StepFeedback is the verdict on one reasoning step.
type StepFeedback struct {
	Index         int    `json:"index"`
	Step          string `json:"step"`
	Correct       bool   `json:"correct"`
	Hint          string `json:"hint,omitempty"`
	CorrectedStep string `json:"corrected_step,omitempty"`
}

// SubmissionResult mirrors the saved submission plus transient feedback.
type SubmissionResult struct {
	Submission
	StepsFeedback          []StepFeedback `json:"steps_feedback"`
	GeneratedSolutionSteps []string       `json:"generated_solution_steps,omitempty"`
}

// StepEvalRequest is sent to an external step evaluator.
type StepEvalRequest struct {
	ExerciseID     string   `json:"exercise_id"`
	StudentID      string   `json:"student_id"`
	ExpectedAnswer string   `json:"expected_answer"`
	Steps          []string `json:"steps"`
	FinalAnswer    string   `json:"final_answer"`
}

// StepEvalResult is what an external step evaluator returns.
type StepEvalResult struct {
	GlobalScore            float64        `json:"global_score"`
	StepsFeedback          []StepFeedback `json:"steps_feedback"`
	GeneratedSolutionSteps []string       `json:"generated_solution_steps"`
}

// Progress summarizes a learner's submission history.
type Progress struct {
	UserID             string     `json:"user_id"`
	TotalSubmissions   int        `json:"total_submissions"`
	CorrectSubmissions int        `json:"correct_submissions"`
	TotalScore         int        `json:"total_score"`
	LastSubmissionAt   *time.Time `json:"last_submission_at,omitempty"`
}

// ExerciseImport is used for loading exercises from JSON.
type ExerciseImport struct {
	ID             string         `json:"id"`
	Title          string         `json:"title"`
	Description    string         `json:"description"`
	Difficulty     string         `json:"difficulty"`
	Topics         []string       `json:"topics"`
	Solution       string         `json:"solution"`
	Points         *int           `json:"points"`
	StepsRequired  bool           `json:"steps_required"`
	CorrectionMode CorrectionMode `json:"correction_mode"`
}
