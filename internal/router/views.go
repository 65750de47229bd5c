package router

import (
	"context"
	"fmt"
	"strings"

	"consigliere/internal/game"
)

// Read-only views served straight from the session manager.

const historyView = 10

func (r *Router) sendMenu(ctx context.Context, chatID int64) error {
	_, err := r.channel.SendMessage(ctx, chatID, "At your service:", &game.SendOptions{
		Buttons: [][]game.Button{
			{{Label: "Chronicle", Data: "menu_history"}},
			{{Label: "Allies & enemies", Data: "menu_relationships"}},
			{{Label: "Summon the Don", Data: "menu_call_persona"}},
			{{Label: "Status", Data: "menu_status"}},
			{{Label: "Help", Data: "menu_help"}},
		},
	})
	return err
}

func (r *Router) sendHistory(ctx context.Context, chatID int64) error {
	var b strings.Builder
	err := r.sessions.View(ctx, chatID, func(s *game.ChatSession) {
		entries := s.RecentHistory(historyView)
		if len(entries) == 0 {
			b.WriteString("The chronicle is empty. Nothing has happened yet - enjoy it while it lasts.")
			return
		}
		b.WriteString("The chronicle, most recent days:\n")
		for _, e := range entries {
			fmt.Fprintf(&b, "\nDay %d: %s\n", e.Day, e.Event)
		}
	})
	if err != nil {
		return err
	}
	_, err = r.channel.SendMessage(ctx, chatID, b.String(), nil)
	return err
}

func (r *Router) sendRelationships(ctx context.Context, chatID int64) error {
	var b strings.Builder
	err := r.sessions.View(ctx, chatID, func(s *game.ChatSession) {
		if len(s.Allies) == 0 && len(s.Enemies) == 0 {
			b.WriteString("No allies, no enemies. A clean slate is a rare luxury - spend it wisely.")
			return
		}
		if len(s.Allies) > 0 {
			b.WriteString("Friends of the family:\n")
			for _, a := range s.Allies {
				fmt.Fprintf(&b, "- %s (standing %d)\n", a.Name, a.Standing)
			}
		}
		if len(s.Enemies) > 0 {
			if b.Len() > 0 {
				b.WriteString("\n")
			}
			b.WriteString("People who should worry:\n")
			for _, e := range s.Enemies {
				fmt.Fprintf(&b, "- %s (standing %d)\n", e.Name, e.Standing)
			}
		}
	})
	if err != nil {
		return err
	}
	_, err = r.channel.SendMessage(ctx, chatID, b.String(), nil)
	return err
}

func (r *Router) sendStatus(ctx context.Context, chatID int64) error {
	var b strings.Builder
	err := r.sessions.View(ctx, chatID, func(s *game.ChatSession) {
		fmt.Fprintf(&b, "Day %d. Treasury: %d. Reputation: %d.\n", s.Day, s.Money, s.Reputation)
		if s.Theme != "" {
			fmt.Fprintf(&b, "Campaign: %s.\n", s.Theme)
		}
		if len(s.Problems) > 0 {
			fmt.Fprintf(&b, "Open problems: %s.\n", strings.Join(s.Problems, "; "))
		}
		switch {
		case s.Phase == game.PhaseCollecting && s.Active != nil:
			fmt.Fprintf(&b, "A situation is open with %d responses so far", len(s.Active.Responses))
			if s.Active.Deadline != nil {
				fmt.Fprintf(&b, "; it closes at %s", s.Active.Deadline.Format("15:04"))
			}
			b.WriteString(".")
		case s.Phase == game.PhaseResolving:
			b.WriteString("The day is being resolved. Hold your breath.")
		default:
			b.WriteString("No open situation. The street is quiet - for now.")
		}
	})
	if err != nil {
		return err
	}
	_, err = r.channel.SendMessage(ctx, chatID, b.String(), nil)
	return err
}
