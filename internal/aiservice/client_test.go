package aiservice

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelanni/mathtutor/internal/grading"
	"github.com/pavelanni/mathtutor/internal/model"
)

func TestEvaluateSteps(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/evaluation/evaluate-steps", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"global_score": 0.5,
			"steps_feedback": [
				{"index": 0, "step": "2x = 10", "is_correct": true, "hint": ""},
				{"index": 1, "step": "x = 4", "is_correct": false, "hint": "10 / 2 = 5", "corrected_step": "x = 5"}
			],
			"generated_solution_steps": ["2x = 10", "x = 5"],
			"correct_answer": "x=5"
		}`))
	}))
	defer server.Close()

	c := New(server.URL+"/", 5*time.Second)
	res, err := c.EvaluateSteps(context.Background(), model.StepEvalRequest{
		ExerciseID:     "ex1",
		StudentID:      "alice",
		ExpectedAnswer: "x=5",
		Steps:          []string{"2x = 10", "x = 4"},
		FinalAnswer:    "x = 4",
	})
	require.NoError(t, err)

	assert.Equal(t, "ex1", got["exercise_id"])
	assert.Equal(t, "alice", got["student_id"])
	assert.Equal(t, "x=5", got["expected_answer"])
	assert.Equal(t, "x = 4", got["final_answer"])
	assert.Len(t, got["steps"], 2)

	assert.InDelta(t, 0.5, res.GlobalScore, 1e-9)
	require.Len(t, res.StepsFeedback, 2)
	assert.True(t, res.StepsFeedback[0].Correct)
	assert.False(t, res.StepsFeedback[1].Correct)
	assert.Equal(t, "10 / 2 = 5", res.StepsFeedback[1].Hint)
	assert.Equal(t, "x = 5", res.StepsFeedback[1].CorrectedStep)
	assert.Equal(t, []string{"2x = 10", "x = 5"}, res.GeneratedSolutionSteps)
}

func TestEvaluateStepsErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"server error", http.StatusInternalServerError, `{"error":"boom"}`, ErrUnavailable},
		{"not found", http.StatusNotFound, ``, ErrUnavailable},
		{"malformed body", http.StatusOK, `{"global_score":`, ErrInvalidResponse},
		{"missing score", http.StatusOK, `{"steps_feedback":[]}`, ErrInvalidResponse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := New(server.URL, time.Second).EvaluateSteps(context.Background(), model.StepEvalRequest{})
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestEvaluateStepsTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	_, err := New(server.URL, 50*time.Millisecond).EvaluateSteps(context.Background(), model.StepEvalRequest{})
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestExtractText(t *testing.T) {
	image := []byte{0x89, 'P', 'N', 'G', 1, 2, 3}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ocr/process", r.URL.Path)
		var req ocrRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		decoded, err := base64.StdEncoding.DecodeString(req.ImageBase64)
		require.NoError(t, err)
		assert.Equal(t, image, decoded)

		_, _ = w.Write([]byte(`{"text":" x = 5 ","latex":"x=5","is_math":true,"confidence":0.9,"success":true}`))
	}))
	defer server.Close()

	text, err := New(server.URL, time.Second).ExtractText(context.Background(), image)
	require.NoError(t, err)
	assert.Equal(t, "x = 5", text)
}

func TestExtractTextFailure(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not successful", `{"text":"","confidence":0,"success":false}`},
		{"empty text", `{"text":"  ","confidence":0.1,"success":true}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := New(server.URL, time.Second).ExtractText(context.Background(), []byte{1})
			require.ErrorIs(t, err, ErrInvalidResponse)
		})
	}

	_, err := New("http://127.0.0.1:1", time.Second).ExtractText(context.Background(), nil)
	require.Error(t, err)
}

func TestPing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	require.NoError(t, New(server.URL, time.Second).Ping(context.Background()))
	require.ErrorIs(t, New(server.URL+"/nope", time.Second).Ping(context.Background()), ErrUnavailable)
}

type oneExercise struct{ ex model.Exercise }

func (o oneExercise) GetExercise(context.Context, string) (model.Exercise, error) { return o.ex, nil }

type discardSubmissions struct{ saved int }

func (d *discardSubmissions) SaveSubmission(_ context.Context, s model.Submission) (model.Submission, error) {
	d.saved++
	return s, nil
}

func (d *discardSubmissions) ListSubmissionsByUser(context.Context, string) ([]model.Submission, error) {
	return nil, nil
}

func (d *discardSubmissions) ListSubmissionsByUserAndExercise(context.Context, string, string) ([]model.Submission, error) {
	return nil, nil
}

// A dead AI service must not fail a step submission.
func TestGradingSurvivesUnavailableService(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	subs := &discardSubmissions{}
	svc := grading.NewService(oneExercise{model.Exercise{ID: "ex", Solution: "x=5"}}, subs,
		grading.WithEvaluator(New(server.URL, time.Second)))

	res, err := svc.Submit(context.Background(), grading.Request{
		ExerciseID: "ex", UserID: "alice", Steps: []string{"x = 4"}, FinalAnswer: "x = 4",
	})
	require.NoError(t, err)
	assert.False(t, res.Correct)
	assert.Empty(t, res.StepsFeedback)
	assert.Nil(t, res.AIGlobalScore)
	assert.Equal(t, 1, subs.saved)
}
