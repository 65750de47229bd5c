package narrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

// GeminiConfig holds configuration for the Gemini client.
type GeminiConfig struct {
	APIKey          string
	Model           string
	Timeout         time.Duration
	Temperature     float32
	MaxOutputTokens int32
}

// GeminiClient implements Narrator using Google's Gemini API.
type GeminiClient struct {
	client *genai.Client
	cfg    GeminiConfig
	logger *zap.Logger
}

// NewGeminiClient creates a Gemini narrator client.
func NewGeminiClient(ctx context.Context, cfg GeminiConfig, logger *zap.Logger) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.9
	}
	if cfg.MaxOutputTokens == 0 {
		cfg.MaxOutputTokens = 1024
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.APIKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GeminiClient{client: client, cfg: cfg, logger: logger.Named("gemini")}, nil
}

// Generate sends the prompt with the persona prompt as system instruction.
func (g *GeminiClient) Generate(ctx context.Context, msgs []Message) (string, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.cfg.Timeout)
		defer cancel()
	}

	contents := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		var role genai.Role = genai.RoleUser
		if m.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}

	start := time.Now()
	result, err := g.client.Models.GenerateContent(ctx, g.cfg.Model, contents,
		&genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(personaPrompt, genai.RoleUser),
			Temperature:       genai.Ptr(g.cfg.Temperature),
			MaxOutputTokens:   g.cfg.MaxOutputTokens,
		})
	if err != nil {
		g.logger.Warn("generation failed", zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		return "", &GenerationError{Provider: "gemini", Err: err}
	}

	text := strings.TrimSpace(result.Text())
	if text == "" {
		return "", &GenerationError{Provider: "gemini", Err: fmt.Errorf("no completion returned")}
	}
	g.logger.Debug("generation completed",
		zap.Duration("elapsed", time.Since(start)), zap.Int("response_len", len(text)))
	return Sanitize(text), nil
}
