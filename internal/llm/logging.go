package llm

import (
	"context"
	"log/slog"
	"time"
)

// LoggingProvider logs every request with its latency and token usage.
type LoggingProvider struct {
	inner Provider
	name  string
}

// WithLogging wraps p so each Generate call is logged under the provider name.
func WithLogging(p Provider, name string) Provider {
	return &LoggingProvider{inner: p, name: name}
}

func (l *LoggingProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	resp, err := l.inner.Generate(ctx, req)

	attrs := []any{
		"provider", l.name,
		"model", l.inner.ModelID(),
		"latency_ms", time.Since(start).Milliseconds(),
	}
	if req.Schema != nil {
		attrs = append(attrs, "schema", req.Schema.Name)
	}
	if err != nil {
		slog.WarnContext(ctx, "LLM request failed", append(attrs, "error", err)...)
		return nil, err
	}
	attrs = append(attrs,
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens,
	)
	slog.DebugContext(ctx, "LLM request completed", attrs...)
	return resp, nil
}

func (l *LoggingProvider) ModelID() string {
	return l.inner.ModelID()
}
