// Package aiservice is a client for the external math AI service, which
// evaluates reasoning steps and reads handwritten answers from images.
package aiservice

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pavelanni/mathtutor/internal/model"
)

// ErrUnavailable wraps transport failures and non-2xx responses.
var ErrUnavailable = errors.New("ai service unavailable")

// ErrInvalidResponse marks a response body that could not be used.
var ErrInvalidResponse = errors.New("invalid ai service response")

const maxResponseBytes = 1 << 20

// Client talks to the AI service over HTTP/JSON.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client. The timeout bounds every call.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

type stepFeedbackWire struct {
	Index         int    `json:"index"`
	Step          string `json:"step"`
	IsCorrect     bool   `json:"is_correct"`
	Hint          string `json:"hint"`
	CorrectedStep string `json:"corrected_step"`
}

type evaluateStepsResponse struct {
	GlobalScore            *float64           `json:"global_score"`
	StepsFeedback          []stepFeedbackWire `json:"steps_feedback"`
	GeneratedSolutionSteps []string           `json:"generated_solution_steps"`
	CorrectAnswer          string             `json:"correct_answer"`
}

// EvaluateSteps asks the service to judge each reasoning step.
func (c *Client) EvaluateSteps(ctx context.Context, req model.StepEvalRequest) (*model.StepEvalResult, error) {
	var resp evaluateStepsResponse
	if err := c.post(ctx, "/evaluation/evaluate-steps", req, &resp); err != nil {
		return nil, err
	}
	if resp.GlobalScore == nil {
		return nil, fmt.Errorf("%w: missing global_score", ErrInvalidResponse)
	}

	res := &model.StepEvalResult{
		GlobalScore:            *resp.GlobalScore,
		StepsFeedback:          make([]model.StepFeedback, len(resp.StepsFeedback)),
		GeneratedSolutionSteps: resp.GeneratedSolutionSteps,
	}
	for i, f := range resp.StepsFeedback {
		res.StepsFeedback[i] = model.StepFeedback{
			Index:         f.Index,
			Step:          f.Step,
			Correct:       f.IsCorrect,
			Hint:          f.Hint,
			CorrectedStep: f.CorrectedStep,
		}
	}
	return res, nil
}

type ocrRequest struct {
	Text        string `json:"text"`
	ImageBase64 string `json:"image_base64"`
}

type ocrResponse struct {
	Text       string  `json:"text"`
	Latex      string  `json:"latex"`
	IsMath     bool    `json:"is_math"`
	Confidence float64 `json:"confidence"`
	Success    bool    `json:"success"`
}

// ExtractText runs OCR on an image and returns the recognized text.
func (c *Client) ExtractText(ctx context.Context, image []byte) (string, error) {
	if len(image) == 0 {
		return "", fmt.Errorf("ocr: empty image")
	}
	var resp ocrResponse
	err := c.post(ctx, "/ocr/process", ocrRequest{ImageBase64: base64.StdEncoding.EncodeToString(image)}, &resp)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp.Text)
	if !resp.Success || text == "" {
		return "", fmt.Errorf("%w: ocr did not recognize any text (confidence %.2f)", ErrInvalidResponse, resp.Confidence)
	}
	return text, nil
}

// Ping checks that the service answers its health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("%w: health returned %d", ErrUnavailable, resp.StatusCode)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUnavailable, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%w: read %s: %v", ErrUnavailable, path, err)
	}
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("%w: %s returned %d", ErrUnavailable, path, resp.StatusCode)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidResponse, path, err)
	}
	return nil
}
