package narrator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Options selects and configures a narrator backend.
type Options struct {
	Provider string // "deepseek" or "gemini"
	APIKey   string
	Model    string
	BaseURL  string
	Timeout  time.Duration
}

// New constructs the narrator backend named by opts.Provider.
func New(ctx context.Context, opts Options, logger *zap.Logger) (Narrator, error) {
	switch opts.Provider {
	case "", "deepseek":
		cfg := DefaultDeepSeekConfig(opts.APIKey)
		if opts.Model != "" {
			cfg.Model = opts.Model
		}
		if opts.BaseURL != "" {
			cfg.BaseURL = opts.BaseURL
		}
		if opts.Timeout > 0 {
			cfg.Timeout = opts.Timeout
		}
		return NewDeepSeekClient(cfg, logger), nil
	case "gemini":
		return NewGeminiClient(ctx, GeminiConfig{
			APIKey:  opts.APIKey,
			Model:   opts.Model,
			Timeout: opts.Timeout,
		}, logger)
	default:
		return nil, fmt.Errorf("unknown narrator provider: %q", opts.Provider)
	}
}
