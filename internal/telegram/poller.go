package telegram

import (
	"context"
	"time"

	"go.uber.org/zap"

	"consigliere/internal/router"
)

// Handler consumes flattened transport events. In production this is the
// router's HandleUpdate.
type Handler func(ctx context.Context, u router.Update)

// Poll long-polls for updates until ctx is cancelled, flattening each one
// and handing it to the handler. Transport errors back off and retry; the
// loop only ends with the context.
func (c *Client) Poll(ctx context.Context, handle Handler) error {
	var offset int64
	for {
		updates, err := c.GetUpdates(ctx, offset)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("poll failed; backing off", zap.Error(err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(5 * time.Second):
			}
			continue
		}

		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			if flat, ok := c.flatten(u); ok {
				handle(ctx, flat)
			}
		}
	}
}

// flatten converts a wire update into the router's event shape.
func (c *Client) flatten(u Update) (router.Update, bool) {
	switch {
	case u.CallbackQuery != nil:
		cb := u.CallbackQuery
		if cb.Message == nil {
			return router.Update{}, false
		}
		return router.Update{
			ChatID:       cb.Message.Chat.ID,
			UserID:       cb.From.ID,
			Username:     cb.From.Username,
			DisplayName:  cb.From.DisplayName(),
			CallbackID:   cb.ID,
			CallbackData: cb.Data,
		}, true

	case u.Message != nil:
		msg := u.Message
		if msg.From != nil && msg.From.IsBot {
			return router.Update{}, false
		}
		flat := router.Update{
			ChatID:      msg.Chat.ID,
			MessageID:   msg.MessageID,
			Text:        msg.Text,
			UserID:      userID(msg.From),
			Username:    username(msg.From),
			DisplayName: msg.From.DisplayName(),
		}
		if reply := msg.ReplyToMessage; reply != nil {
			flat.ReplyToMessageID = reply.MessageID
			flat.ReplyToPersona = c.self != nil && reply.From != nil && reply.From.ID == c.self.ID
		}
		for _, member := range msg.NewChatMembers {
			if !member.IsBot {
				flat.MemberJoined = member.DisplayName()
				break
			}
		}
		if flat.Text == "" && flat.MemberJoined == "" {
			return router.Update{}, false
		}
		return flat, true
	}
	return router.Update{}, false
}

func userID(u *User) int64 {
	if u == nil {
		return 0
	}
	return u.ID
}

func username(u *User) string {
	if u == nil {
		return ""
	}
	return u.Username
}
