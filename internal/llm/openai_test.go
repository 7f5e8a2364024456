package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"github.com/pavelanni/mathtutor/internal/model"
)

func newTestOpenAIProvider(t *testing.T, handler http.HandlerFunc) *OpenAIProvider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	config := openai.DefaultConfig("test-key")
	config.BaseURL = server.URL + "/v1"
	return &OpenAIProvider{
		client: openai.NewClientWithConfig(config),
		model:  "gpt-4o-mini",
	}
}

func chatCompletion(content, finishReason string) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"created": 1234567890,
		"model":   "gpt-4o-mini",
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]any{"role": "assistant", "content": content},
			"finish_reason": finishReason,
		}},
		"usage": map[string]any{"prompt_tokens": 40, "completion_tokens": 25, "total_tokens": 65},
	}
}

func TestOpenAIProvider_StepEvaluation(t *testing.T) {
	var sent map[string]any
	p := newTestOpenAIProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&sent); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(chatCompletion(goodEvaluation, "stop"))
	})

	ev, err := NewStepEvaluator(p, "")
	if err != nil {
		t.Fatalf("NewStepEvaluator: %v", err)
	}
	res, err := ev.EvaluateSteps(context.Background(), model.StepEvalRequest{
		ExerciseID: "eq-1", Steps: []string{"2x = 10", "x = 4"}, FinalAnswer: "x = 4",
	})
	if err != nil {
		t.Fatalf("EvaluateSteps: %v", err)
	}
	if res.GlobalScore != 0.5 || len(res.StepsFeedback) != 2 {
		t.Errorf("unexpected result: %+v", res)
	}

	format, _ := sent["response_format"].(map[string]any)
	if format["type"] != "json_schema" {
		t.Errorf("response_format type = %v, want json_schema", format["type"])
	}
	msgs, _ := sent["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("expected system and user messages, got %d", len(msgs))
	}
	if first, _ := msgs[0].(map[string]any); first["role"] != "system" {
		t.Errorf("first message role = %v", first["role"])
	}
}

func TestOpenAIProvider_JSONObjectMode(t *testing.T) {
	var sent map[string]any
	p := newTestOpenAIProvider(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&sent)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(chatCompletion(goodEvaluation, "stop"))
	})
	p.jsonObjectOnly = true

	if _, err := p.Generate(context.Background(), Request{Schema: stepEvalSchema}); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	format, _ := sent["response_format"].(map[string]any)
	if format["type"] != "json_object" {
		t.Errorf("response_format type = %v, want json_object", format["type"])
	}
}

func TestOpenAIProvider_Usage(t *testing.T) {
	p := newTestOpenAIProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(chatCompletion("hello", "stop"))
	})
	resp, err := p.Generate(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if resp.Usage.InputTokens != 40 || resp.Usage.OutputTokens != 25 || resp.Usage.TotalTokens != 65 {
		t.Errorf("unexpected usage: %+v", resp.Usage)
	}
	if resp.StopReason != "end" {
		t.Errorf("StopReason = %q", resp.StopReason)
	}
}

func TestOpenAIProvider_Errors(t *testing.T) {
	t.Run("rate limit", func(t *testing.T) {
		p := newTestOpenAIProvider(t, func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"error": map[string]any{"message": "Rate limit exceeded", "type": "rate_limit_error"},
			})
		})
		var rl *ErrRateLimit
		if _, err := p.Generate(context.Background(), Request{}); !errors.As(err, &rl) {
			t.Errorf("error = %v, want ErrRateLimit", err)
		}
	})

	t.Run("server error", func(t *testing.T) {
		p := newTestOpenAIProvider(t, func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"error": map[string]any{"message": "internal", "type": "server_error"},
			})
		})
		var unavailable *ErrProviderUnavailable
		if _, err := p.Generate(context.Background(), Request{}); !errors.As(err, &unavailable) {
			t.Errorf("error = %v, want ErrProviderUnavailable", err)
		}
	})

	t.Run("truncated", func(t *testing.T) {
		p := newTestOpenAIProvider(t, func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(chatCompletion(`{"global_score": 0.`, "length"))
		})
		var maxTokens *ErrMaxTokensExceeded
		if _, err := p.Generate(context.Background(), Request{Schema: stepEvalSchema}); !errors.As(err, &maxTokens) {
			t.Errorf("error = %v, want ErrMaxTokensExceeded", err)
		}
	})

	t.Run("schema mismatch", func(t *testing.T) {
		p := newTestOpenAIProvider(t, func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(chatCompletion(`{"score": 3}`, "stop"))
		})
		var invalid *ErrInvalidResponse
		if _, err := p.Generate(context.Background(), Request{Schema: stepEvalSchema}); !errors.As(err, &invalid) {
			t.Errorf("error = %v, want ErrInvalidResponse", err)
		}
	})
}

func TestBuildGeminiSchema(t *testing.T) {
	s := buildGeminiSchema(stepEvalSchema.Definition)
	if len(s.Required) != 3 {
		t.Errorf("Required = %v", s.Required)
	}
	score := s.Properties["global_score"]
	if score == nil || score.Maximum == nil || *score.Maximum != 1 {
		t.Errorf("global_score bounds not carried: %+v", score)
	}
	items := s.Properties["steps_feedback"].Items
	if items == nil || items.Properties["is_correct"] == nil {
		t.Fatal("nested item schema missing")
	}
}

func TestPing(t *testing.T) {
	p := newTestOpenAIProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/models" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[{"id":"gpt-4o-mini","object":"model"}]}`))
	})
	if err := Ping(context.Background(), WithLogging(p, ProviderOpenAI)); err != nil {
		t.Errorf("Ping: %v", err)
	}

	down := newTestOpenAIProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	var unavailable *ErrProviderUnavailable
	if err := Ping(context.Background(), down); !errors.As(err, &unavailable) {
		t.Errorf("Ping on dead endpoint = %v, want ErrProviderUnavailable", err)
	}

	if err := Ping(context.Background(), NewMockProvider()); err != nil {
		t.Errorf("providers without Ping should report success, got %v", err)
	}
}
