// Package narrator adapts external text-generation backends to the one call
// the game needs: ordered role/content messages in, persona-voiced prose out.
//
// Failures are typed so callers can degrade to filler text instead of ever
// surfacing a raw error to players.
package narrator

import (
	"context"
	"fmt"
	"strings"
)

// Roles for prompt messages. The persona system prompt is always prepended
// by the adapter; callers never need to supply a system message themselves.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one entry of a generation prompt.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Narrator produces persona-voiced narrative text for a prompt.
type Narrator interface {
	Generate(ctx context.Context, msgs []Message) (string, error)
}

// GenerationError wraps any transport, auth, or rate-limit failure from a
// backend. The game recovers from it locally with fallback text.
type GenerationError struct {
	Provider string
	Err      error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("%s generation failed: %v", e.Provider, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// Sanitize strips emphasis markup the backends like to sprinkle into prose.
// Chat transports render it literally, so it never reaches players.
func Sanitize(text string) string {
	replacer := strings.NewReplacer(
		"**", "",
		"__", "",
		"*", "",
		"_", "",
		"#", "",
		"`", "",
	)
	return strings.TrimSpace(replacer.Replace(text))
}
