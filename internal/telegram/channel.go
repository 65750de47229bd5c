package telegram

import (
	"context"

	"consigliere/internal/game"
)

// The Client doubles as the game's Channel.

// SendMessage publishes text to a chat, translating button rows into an
// inline keyboard. Returns the new message id.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, opts *game.SendOptions) (int64, error) {
	req := sendMessageRequest{ChatID: chatID, Text: text}
	if opts != nil && len(opts.Buttons) > 0 {
		markup := &InlineKeyboardMarkup{}
		for _, row := range opts.Buttons {
			var keyboardRow []InlineKeyboardButton
			for _, btn := range row {
				keyboardRow = append(keyboardRow, InlineKeyboardButton{
					Text:         btn.Label,
					CallbackData: btn.Data,
				})
			}
			markup.InlineKeyboard = append(markup.InlineKeyboard, keyboardRow)
		}
		req.ReplyMarkup = markup
	}
	msg, err := c.sendMessage(ctx, req)
	if err != nil {
		return 0, err
	}
	return msg.MessageID, nil
}

// ReplyTo answers a specific message in a chat.
func (c *Client) ReplyTo(ctx context.Context, chatID, messageID int64, text string) error {
	_, err := c.sendMessage(ctx, sendMessageRequest{
		ChatID:           chatID,
		Text:             text,
		ReplyToMessageID: messageID,
	})
	return err
}

// RosterSize reports the chat's non-persona member count.
func (c *Client) RosterSize(ctx context.Context, chatID int64) (int, error) {
	count, err := c.getChatMemberCount(ctx, chatID)
	if err != nil {
		return 0, err
	}
	// The count includes the bot itself.
	if count > 0 {
		count--
	}
	return count, nil
}
