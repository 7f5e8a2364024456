package model

import "time"

// TestStatus is the lifecycle state of a diagnostic test.
type TestStatus string

const (
	TestInProgress TestStatus = "IN_PROGRESS"
	TestCompleted  TestStatus = "COMPLETED"
)

// TopicLevel classifies accuracy within one topic.
type TopicLevel string

const (
	TopicWeak    TopicLevel = "WEAK"
	TopicAverage TopicLevel = "AVERAGE"
	TopicStrong  TopicLevel = "STRONG"
)

// DiagnosticQuestion is a static multiple-choice question of the bank.
type DiagnosticQuestion struct {
	ID            string   `json:"id"`
	Text          string   `json:"question_text"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correct_answer,omitempty"`
	Topic         string   `json:"topic"`
	Difficulty    string   `json:"difficulty"`
}

// DiagnosticTest is one student's placement test.
type DiagnosticTest struct {
	ID          string               `json:"id"`
	StudentID   string               `json:"student_id"`
	Questions   []DiagnosticQuestion `json:"questions"`
	Answers     []string             `json:"student_answers"`
	Status      TestStatus           `json:"status"`
	StartedAt   time.Time            `json:"started_at"`
	CompletedAt *time.Time           `json:"completed_at,omitempty"`
	Result      *DiagnosticResult    `json:"result,omitempty"`
}

// TopicScore is the accuracy for a single topic.
type TopicScore struct {
	Topic string     `json:"topic"`
	Score float64    `json:"score"`
	Level TopicLevel `json:"level"`
}

// DiagnosticResult is attached to a test on submission.
type DiagnosticResult struct {
	TotalQuestions      int          `json:"total_questions"`
	CorrectAnswers      int          `json:"correct_answers"`
	Score               float64      `json:"score"`
	LevelRecommendation Level        `json:"level_recommendation"`
	TopicScores         []TopicScore `json:"topic_scores"`
	RecommendedTopics   []string     `json:"recommended_topics"`
}

// PublicQuestion strips the expected answer before a question is sent to a student.
func (q DiagnosticQuestion) PublicQuestion() DiagnosticQuestion {
	q.CorrectAnswer = ""
	return q
}

// Public returns a copy safe to show the student: expected answers are
// hidden until the test is completed.
func (t DiagnosticTest) Public() DiagnosticTest {
	if t.Status == TestCompleted {
		return t
	}
	qs := make([]DiagnosticQuestion, len(t.Questions))
	for i, q := range t.Questions {
		qs[i] = q.PublicQuestion()
	}
	t.Questions = qs
	return t
}
