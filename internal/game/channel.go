package game

import "context"

// Button is one inline keyboard button attached to an outbound message.
type Button struct {
	Label string
	Data  string
}

// SendOptions carries optional presentation for an outbound message.
type SendOptions struct {
	// Buttons lays out inline buttons, one slice per row.
	Buttons [][]Button
}

// Channel is the messaging transport the engine publishes through. The
// Telegram adapter and the local console both implement it.
type Channel interface {
	// SendMessage publishes text to a chat and returns the message id,
	// which situation replies must target.
	SendMessage(ctx context.Context, chatID int64, text string, opts *SendOptions) (int64, error)
	// ReplyTo answers a specific message in a chat.
	ReplyTo(ctx context.Context, chatID, messageID int64, text string) error
	// RosterSize reports how many non-persona participants the chat has.
	RosterSize(ctx context.Context, chatID int64) (int, error)
}
