package game

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Theme voting precedes a campaign: the crew picks the setting, the session
// resets, and the first situation opens. Votes are in-memory; an unfinished
// vote simply evaporates on restart.

type themeVote struct {
	themes []Theme
	votes  map[int64]int // participant -> theme index, last write wins
	timer  *time.Timer
}

// StartThemeVote opens (or restarts) a theme vote for the chat. The vote
// closes after the configured window even if nobody voted.
func (e *Engine) StartThemeVote(ctx context.Context, chatID int64) error {
	themes := e.themes.Themes()

	buttons := make([][]Button, 0, len(themes))
	for i, t := range themes {
		buttons = append(buttons, []Button{{Label: t.Name, Data: fmt.Sprintf("vote_theme_%d", i)}})
	}
	text := "New campaign on the table. Vote for the setting with the buttons below. " +
		"If nobody votes before the window closes, I pick - and you live with my taste."
	if _, err := e.channel.SendMessage(ctx, chatID, text, &SendOptions{Buttons: buttons}); err != nil {
		return err
	}

	e.votesMu.Lock()
	if prev, ok := e.votes[chatID]; ok {
		prev.timer.Stop()
	}
	e.votes[chatID] = &themeVote{
		themes: themes,
		votes:  make(map[int64]int),
		timer: time.AfterFunc(e.settings.VoteWindow, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()
			e.finishThemeVote(ctx, chatID)
		}),
	}
	e.votesMu.Unlock()

	e.logger.Info("theme vote opened",
		zap.Int64("chat_id", chatID),
		zap.Int("themes", len(themes)),
		zap.Duration("window", e.settings.VoteWindow))
	return nil
}

// CastThemeVote records one participant's choice. Re-voting replaces the
// earlier choice. Once every roster member has voted the vote closes early,
// which also keeps single-player sessions from waiting out the window.
// Returns a confirmation suitable for a callback answer.
func (e *Engine) CastThemeVote(chatID, userID int64, choice int) (string, bool) {
	e.votesMu.Lock()
	v, ok := e.votes[chatID]
	if !ok || choice < 0 || choice >= len(v.themes) {
		e.votesMu.Unlock()
		return "", false
	}
	v.votes[userID] = choice
	voted := len(v.votes)
	name := v.themes[choice].Name
	e.votesMu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		roster, err := e.channel.RosterSize(ctx, chatID)
		if err == nil && roster > 0 && voted >= roster {
			e.finishThemeVote(ctx, chatID)
		}
	}()
	return "Vote counted: " + name, true
}

// finishThemeVote tallies the vote, resets the session for the winning
// theme, and opens the first situation. No votes picks a random theme; a
// tie picks randomly among the leaders.
func (e *Engine) finishThemeVote(ctx context.Context, chatID int64) {
	e.votesMu.Lock()
	v, ok := e.votes[chatID]
	if ok {
		v.timer.Stop()
		delete(e.votes, chatID)
	}
	e.votesMu.Unlock()
	if !ok {
		return
	}

	counts := make(map[int]int)
	for _, idx := range v.votes {
		counts[idx]++
	}
	var leaders []int
	max := 0
	for idx, n := range counts {
		switch {
		case n > max:
			max = n
			leaders = []int{idx}
		case n == max:
			leaders = append(leaders, idx)
		}
	}

	e.rngMu.Lock()
	var chosen int
	switch {
	case len(leaders) == 0:
		chosen = e.rng.Intn(len(v.themes))
		e.logger.Info("no votes cast; theme chosen at random", zap.Int64("chat_id", chatID))
	case len(leaders) > 1:
		chosen = leaders[e.rng.Intn(len(leaders))]
		e.logger.Info("vote tied; theme chosen among leaders", zap.Int64("chat_id", chatID))
	default:
		chosen = leaders[0]
	}
	e.rngMu.Unlock()

	theme := v.themes[chosen]
	err := e.sessions.Update(ctx, chatID, func(s *ChatSession) (bool, error) {
		fresh := NewChatSession()
		fresh.Theme = theme.ID
		*s = *fresh
		return true, nil
	})
	if err != nil {
		e.logger.Error("campaign reset failed", zap.Int64("chat_id", chatID), zap.Error(err))
		return
	}
	e.cancelGrace(chatID, "")

	intro := fmt.Sprintf("The crew has chosen: %s\n\n%s", theme.Name, theme.Intro)
	if _, err := e.channel.SendMessage(ctx, chatID, intro, nil); err != nil {
		e.logger.Error("theme intro publish failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}

	if err := e.CreateSituation(ctx, chatID, "opening"); err != nil {
		e.logger.Error("opening situation failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}
