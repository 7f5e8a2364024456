package diagnostic

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/pavelanni/mathtutor/internal/model"
)

//go:embed questions.json
var defaultBankJSON []byte

// DefaultBank returns the built-in question bank.
func DefaultBank() []model.DiagnosticQuestion {
	bank, err := ParseBank(defaultBankJSON)
	if err != nil {
		panic(fmt.Sprintf("diagnostic: embedded question bank: %v", err))
	}
	return bank
}

// LoadBank reads a question bank from a JSON file. An empty path returns the
// built-in bank.
func LoadBank(path string) ([]model.DiagnosticQuestion, error) {
	if path == "" {
		return DefaultBank(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	bank, err := ParseBank(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return bank, nil
}

// ParseBank decodes and checks a question bank. Every question needs an id
// and a topic, ids must be unique and the correct answer must be one of the
// options verbatim.
func ParseBank(data []byte) ([]model.DiagnosticQuestion, error) {
	var bank []model.DiagnosticQuestion
	if err := json.Unmarshal(data, &bank); err != nil {
		return nil, err
	}
	if len(bank) == 0 {
		return nil, fmt.Errorf("question bank is empty")
	}
	seen := make(map[string]bool, len(bank))
	for i, q := range bank {
		if strings.TrimSpace(q.ID) == "" {
			return nil, fmt.Errorf("question %d: missing id", i)
		}
		if seen[q.ID] {
			return nil, fmt.Errorf("question %s: duplicate id", q.ID)
		}
		seen[q.ID] = true
		if strings.TrimSpace(q.Topic) == "" {
			return nil, fmt.Errorf("question %s: missing topic", q.ID)
		}
		if !slices.Contains(q.Options, q.CorrectAnswer) {
			return nil, fmt.Errorf("question %s: correct answer %q is not one of the options", q.ID, q.CorrectAnswer)
		}
	}
	return bank, nil
}
