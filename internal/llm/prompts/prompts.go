package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"

	"github.com/pavelanni/mathtutor/internal/model"
)

// DefaultFS holds the built-in step evaluation templates.
//
//go:embed templates/*.txt
var DefaultFS embed.FS

const maxAnswerRunes = 10000

var (
	studentAnswerRegex      = regexp.MustCompile(`(?i)</?\s*student-answer\b[^>]*>`)
	systemInstructionsRegex = regexp.MustCompile(`(?i)</?\s*system-instructions\b[^>]*>`)
)

// PromptVariant represents a step evaluation prompt variant.
type PromptVariant string

const (
	// PromptStrict marks any imprecision as a mistake.
	PromptStrict PromptVariant = "strict"
	// PromptStandard is the default variant.
	PromptStandard PromptVariant = "standard"
	// PromptLenient accepts informal but correct reasoning.
	PromptLenient PromptVariant = "lenient"
)

var validVariants = map[PromptVariant]bool{
	PromptStrict:   true,
	PromptStandard: true,
	PromptLenient:  true,
}

var (
	loadOnce       sync.Once
	loadErr        error
	stepsTemplates map[PromptVariant]*template.Template
)

// IsValidVariant checks if a prompt variant name is valid.
func IsValidVariant(v string) bool {
	return validVariants[PromptVariant(v)]
}

// StepsData holds template data for step evaluation prompts.
type StepsData struct {
	ExerciseID     string
	ExpectedAnswer string
	Steps          []string
	FinalAnswer    string
}

// Load loads prompt templates from fsys, normally DefaultFS.
// It uses sync.Once to ensure templates are loaded only once.
func Load(fsys fs.FS) error {
	loadOnce.Do(func() {
		stepsTemplates = make(map[PromptVariant]*template.Template)
		for _, v := range []PromptVariant{PromptStrict, PromptStandard, PromptLenient} {
			file := "templates/steps_" + string(v) + ".txt"
			content, err := fs.ReadFile(fsys, file)
			if err != nil {
				loadErr = fmt.Errorf("read prompt file %s: %w", file, err)
				return
			}
			tmpl, err := template.New("steps_" + string(v)).Parse(string(content))
			if err != nil {
				loadErr = fmt.Errorf("parse prompt template %s: %w", file, err)
				return
			}
			stepsTemplates[v] = tmpl
		}
	})
	return loadErr
}

// BuildStepsPrompt renders the step evaluation prompt for a request.
// Student-written text is sanitized first.
func BuildStepsPrompt(variant PromptVariant, req model.StepEvalRequest) (string, error) {
	if stepsTemplates == nil {
		return "", errors.New("templates not initialized: call Load first")
	}
	tmpl, ok := stepsTemplates[variant]
	if !ok {
		if loadErr != nil {
			return "", fmt.Errorf("templates load failed: %w", loadErr)
		}
		return "", errors.New("invalid prompt variant: " + string(variant))
	}

	steps := make([]string, len(req.Steps))
	for i, s := range req.Steps {
		steps[i] = sanitizeAnswer(s)
	}
	data := StepsData{
		ExerciseID:     req.ExerciseID,
		ExpectedAnswer: req.ExpectedAnswer,
		Steps:          steps,
		FinalAnswer:    sanitizeAnswer(req.FinalAnswer),
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func sanitizeAnswer(answer string) string {
	answer = studentAnswerRegex.ReplaceAllString(answer, "")
	answer = systemInstructionsRegex.ReplaceAllString(answer, "")
	answer = strings.TrimSpace(answer)

	if answer == "" {
		return "[No answer provided]"
	}

	if utf8.RuneCountInString(answer) > maxAnswerRunes {
		runes := []rune(answer)
		answer = string(runes[:maxAnswerRunes]) + "\n\n[Answer truncated due to length]"
	}

	return answer
}
