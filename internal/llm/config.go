package llm

import (
	"context"
	"fmt"
	"strings"
)

// Provider names accepted by NewProvider.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
	ProviderMock      = "mock"
)

// Config selects and configures one provider. BaseURL only applies to
// OpenAI-compatible endpoints such as Ollama or vLLM.
type Config struct {
	Provider string
	BaseURL  string
	APIKey   string
	Model    string
}

// Validate checks that the selected provider can be built.
func (c Config) Validate() error {
	switch c.Provider {
	case ProviderOpenAI:
		if c.APIKey == "" && c.BaseURL == "" {
			return fmt.Errorf("llm-key or llm-url is required for the openai provider")
		}
	case ProviderAnthropic, ProviderGemini:
		if c.APIKey == "" {
			return fmt.Errorf("llm-key is required for the %s provider", c.Provider)
		}
	case ProviderMock:
	default:
		return fmt.Errorf("unknown LLM provider: %q", c.Provider)
	}
	return nil
}

// NewProvider creates a Provider from configuration, wrapped with request
// logging.
func NewProvider(ctx context.Context, cfg Config) (Provider, error) {
	cfg.Provider = strings.ToLower(strings.TrimSpace(cfg.Provider))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var (
		base Provider
		err  error
	)
	switch cfg.Provider {
	case ProviderOpenAI:
		base, err = NewOpenAIProvider(cfg)
	case ProviderAnthropic:
		base, err = NewAnthropicProvider(cfg)
	case ProviderGemini:
		base, err = NewGeminiProvider(ctx, cfg)
	case ProviderMock:
		return NewMockProvider(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("initializing %s provider: %w", cfg.Provider, err)
	}
	return WithLogging(base, cfg.Provider), nil
}

type pinger interface {
	Ping(ctx context.Context) error
}

// Ping checks that the provider's endpoint answers, for providers that
// support it. Others report success.
func Ping(ctx context.Context, p Provider) error {
	if l, ok := p.(*LoggingProvider); ok {
		p = l.inner
	}
	if pp, ok := p.(pinger); ok {
		return pp.Ping(ctx)
	}
	return nil
}
