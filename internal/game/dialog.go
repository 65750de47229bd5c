package game

import (
	"context"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"consigliere/internal/narrator"
)

// Personal asides run beside the situation flow: a participant talking to
// the persona directly gets a contextual reply from their rolling dialog
// transcript. This path never touches the day counter, the economy, or the
// collection window.

// topicKeywords is the fixed domain vocabulary; an aside that matches is
// worth remembering, so it lands in history as a synthetic entry and feeds
// future generation context.
var topicKeywords = []string{
	"money", "syndicate", "scheme", "problem", "plot",
	"history", "deal", "allies", "enemies", "plan",
}

func isTopical(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range topicKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// HandlePersonalMention records the participant's turn, generates the
// persona's reply from the last K turns, records that too, and persists.
// Topical asides are additionally remembered in history.
func (e *Engine) HandlePersonalMention(ctx context.Context, chatID, userID int64, displayName, text string) (string, error) {
	userKey := dialogKey(userID)
	now := time.Now()

	var prompt []narrator.Message
	err := e.sessions.Update(ctx, chatID, func(s *ChatSession) (bool, error) {
		s.Dialogs[userKey] = append(s.Dialogs[userKey], DialogTurn{
			Speaker:   SpeakerUser,
			Text:      text,
			Timestamp: now,
		})
		prompt = dialogPrompt(s, displayName, s.RecentDialog(userKey, e.settings.DialogContext))
		return true, nil
	})
	if err != nil {
		return "", err
	}

	reply, genErr := e.narrator.Generate(ctx, prompt)
	if genErr != nil {
		e.logger.Warn("dialog generation failed; using filler",
			zap.Int64("chat_id", chatID), zap.Int64("user_id", userID), zap.Error(genErr))
		reply = e.pickFiller(dialogFillers)
	}

	topical := isTopical(text)
	err = e.sessions.Update(ctx, chatID, func(s *ChatSession) (bool, error) {
		s.Dialogs[userKey] = append(s.Dialogs[userKey], DialogTurn{
			Speaker:   SpeakerPersona,
			Text:      reply,
			Timestamp: time.Now(),
		})
		if topical {
			s.History = append(s.History, HistoryEntry{
				Day:       s.Day,
				Event:     "Aside with " + displayName + ": " + summarizeAside(text, reply),
				Timestamp: time.Now(),
			})
		}
		return true, nil
	})
	if err != nil {
		return reply, err
	}
	return reply, nil
}

// dialogKey keys transcripts by the participant's stable identifier.
func dialogKey(userID int64) string {
	return "u" + strconv.FormatInt(userID, 10)
}

func summarizeAside(question, answer string) string {
	const maxLen = 160
	return truncate(strings.TrimSpace(question), maxLen) + " / " + truncate(strings.TrimSpace(answer), maxLen)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := s[:max]
	// Back off only over the rune the cut split in half; invalid bytes
	// earlier in the input stay as they came.
	for len(cut) > 0 && !utf8.RuneStart(cut[len(cut)-1]) {
		cut = cut[:len(cut)-1]
	}
	if r, size := utf8.DecodeLastRuneInString(cut); r == utf8.RuneError && size == 1 {
		// A dangling lead byte of the split rune.
		cut = cut[:len(cut)-1]
	}
	return cut + "..."
}
