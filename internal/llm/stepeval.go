package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/pavelanni/mathtutor/internal/llm/prompts"
	"github.com/pavelanni/mathtutor/internal/model"
)

// stepEvalSchema is the structured output the evaluation prompt asks for.
// Every property is required and no extras are allowed, as strict JSON
// schema modes demand.
var stepEvalSchema = &Schema{
	Name:        "step-evaluation",
	Description: "Per-step verdicts on a student's worked solution",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"global_score": map[string]any{
				"type":    "number",
				"minimum": 0,
				"maximum": 1,
			},
			"steps_feedback": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"index":          map[string]any{"type": "integer"},
						"step":           map[string]any{"type": "string"},
						"is_correct":     map[string]any{"type": "boolean"},
						"hint":           map[string]any{"type": "string"},
						"corrected_step": map[string]any{"type": "string"},
					},
					"required":             []any{"index", "step", "is_correct", "hint", "corrected_step"},
					"additionalProperties": false,
				},
			},
			"generated_solution_steps": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
		},
		"required":             []any{"global_score", "steps_feedback", "generated_solution_steps"},
		"additionalProperties": false,
	},
}

const (
	stepEvalMaxTokens   = 2048
	stepEvalTemperature = 0.1
)

type stepEvalOutput struct {
	GlobalScore   float64 `json:"global_score"`
	StepsFeedback []struct {
		Index         int    `json:"index"`
		Step          string `json:"step"`
		IsCorrect     bool   `json:"is_correct"`
		Hint          string `json:"hint"`
		CorrectedStep string `json:"corrected_step"`
	} `json:"steps_feedback"`
	GeneratedSolutionSteps []string `json:"generated_solution_steps"`
}

// StepEvaluator grades reasoning steps with an LLM provider.
type StepEvaluator struct {
	provider Provider
	variant  prompts.PromptVariant
}

// NewStepEvaluator returns an evaluator using the given prompt variant. An
// empty variant selects the standard prompt.
func NewStepEvaluator(p Provider, variant prompts.PromptVariant) (*StepEvaluator, error) {
	if variant == "" {
		variant = prompts.PromptStandard
	}
	if !prompts.IsValidVariant(string(variant)) {
		return nil, fmt.Errorf("invalid prompt variant: %q", variant)
	}
	return &StepEvaluator{provider: p, variant: variant}, nil
}

// EvaluateSteps asks the model for a verdict on every step.
func (e *StepEvaluator) EvaluateSteps(ctx context.Context, req model.StepEvalRequest) (*model.StepEvalResult, error) {
	prompt, err := prompts.BuildStepsPrompt(e.variant, req)
	if err != nil {
		return nil, fmt.Errorf("build prompt: %w", err)
	}

	resp, err := e.provider.Generate(ctx, Request{
		System:      prompt,
		Messages:    []Message{{Role: RoleUser, Content: "Evaluate the student's work now."}},
		Schema:      stepEvalSchema,
		MaxTokens:   stepEvalMaxTokens,
		Temperature: stepEvalTemperature,
	})
	if err != nil {
		return nil, err
	}

	var out stepEvalOutput
	if err := json.Unmarshal(resp.Content, &out); err != nil {
		return nil, &ErrInvalidResponse{Content: resp.Content, Err: err}
	}
	slog.DebugContext(ctx, "step evaluation", "exercise_id", req.ExerciseID,
		"global_score", out.GlobalScore, "steps", len(out.StepsFeedback))

	res := &model.StepEvalResult{
		GlobalScore:            out.GlobalScore,
		StepsFeedback:          make([]model.StepFeedback, 0, len(out.StepsFeedback)),
		GeneratedSolutionSteps: out.GeneratedSolutionSteps,
	}
	for _, f := range out.StepsFeedback {
		// The model echoes a sanitized copy of the step; report what the
		// student actually wrote.
		step := f.Step
		if f.Index >= 0 && f.Index < len(req.Steps) {
			step = req.Steps[f.Index]
		}
		res.StepsFeedback = append(res.StepsFeedback, model.StepFeedback{
			Index:         f.Index,
			Step:          step,
			Correct:       f.IsCorrect,
			Hint:          f.Hint,
			CorrectedStep: f.CorrectedStep,
		})
	}
	return res, nil
}
