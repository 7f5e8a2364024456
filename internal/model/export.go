package model

import "time"

// SubmissionExport is the top-level JSON structure for submission export.
type SubmissionExport struct {
	ExportedAt  time.Time          `json:"exported_at"`
	Count       int                `json:"count"`
	Submissions []SubmissionRecord `json:"submissions"`
}

// SubmissionRecord holds one submission joined with its exercise for export.
type SubmissionRecord struct {
	SubmissionID  string    `json:"submission_id"`
	UserID        string    `json:"user_id"`
	DisplayName   string    `json:"display_name,omitempty"`
	ExerciseID    string    `json:"exercise_id"`
	ExerciseTitle string    `json:"exercise_title"`
	Difficulty    Level     `json:"difficulty"`
	MaxPoints     int       `json:"max_points"`
	FinalAnswer   string    `json:"final_answer"`
	Steps         []string  `json:"steps,omitempty"`
	Correct       bool      `json:"correct"`
	ScoreEarned   int       `json:"score_earned"`
	AIGlobalScore *float64  `json:"ai_global_score,omitempty"`
	SubmittedAt   time.Time `json:"submitted_at"`
}
