package game

import (
	"fmt"
	"strings"

	"consigliere/internal/narrator"
)

// Prompt assembly is purely synchronous string work; the narrator adapter
// owns the persona system prompt, so everything built here rides in user
// messages.

func describeRelationships(s *ChatSession) string {
	if len(s.Allies) == 0 && len(s.Enemies) == 0 {
		return "No standing allies or enemies yet."
	}
	var b strings.Builder
	if len(s.Allies) > 0 {
		b.WriteString("Allies:")
		for _, a := range s.Allies {
			fmt.Fprintf(&b, " %s (standing %d);", a.Name, a.Standing)
		}
		b.WriteString("\n")
	}
	if len(s.Enemies) > 0 {
		b.WriteString("Enemies:")
		for _, e := range s.Enemies {
			fmt.Fprintf(&b, " %s (standing %d);", e.Name, e.Standing)
		}
	}
	return strings.TrimSpace(b.String())
}

func describeHistory(entries []HistoryEntry) string {
	if len(entries) == 0 {
		return "Nothing has happened yet; this is the beginning of the story."
	}
	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "Day %d: %s\n", e.Day, e.Event)
	}
	return strings.TrimSpace(b.String())
}

func describeProblems(problems []string) string {
	if len(problems) == 0 {
		return "No open problems on the books."
	}
	return "Open problems: " + strings.Join(problems, "; ")
}

// situationPrompt asks for a fresh narrative beat. tag qualifies the moment
// ("morning", "evening", "summoned", "opening").
func situationPrompt(s *ChatSession, theme Theme, tag string, historyN int) []narrator.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Setting: %s. %s\n\n", theme.Name, theme.Flavor)
	fmt.Fprintf(&b, "It is day %d. Moment: %s.\n", s.Day, tag)
	fmt.Fprintf(&b, "Treasury: %d. Reputation: %d.\n", s.Money, s.Reputation)
	b.WriteString(describeProblems(s.Problems) + "\n")
	b.WriteString(describeRelationships(s) + "\n\n")
	b.WriteString("Recent events:\n" + describeHistory(s.RecentHistory(historyN)) + "\n\n")
	b.WriteString("Narrate a new situation the crew must deal with today. " +
		"It needs a decision from them. End by demanding their answers.")
	return []narrator.Message{{Role: narrator.RoleUser, Content: b.String()}}
}

// resolutionPrompt asks for the consequences of a closed collection window.
// Every recorded response is included, duplicates and all, in order.
func resolutionPrompt(s *ChatSession, theme Theme, sit *Situation, sidelined string, historyN int) []narrator.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Setting: %s. %s\n\n", theme.Name, theme.Flavor)
	fmt.Fprintf(&b, "It is day %d. Treasury: %d. Reputation: %d.\n", s.Day, s.Money, s.Reputation)
	b.WriteString(describeProblems(s.Problems) + "\n\n")
	b.WriteString("Recent events:\n" + describeHistory(s.RecentHistory(historyN)) + "\n\n")
	b.WriteString("The situation was:\n" + sit.Text + "\n\n")

	if len(sit.Responses) == 0 {
		b.WriteString("Nobody in the crew stepped up. Not one word.\n\n")
		b.WriteString("Narrate how the day plays out with the crew silent, and what it costs them.")
	} else {
		b.WriteString("The crew answered, in order:\n")
		for _, r := range sit.Responses {
			fmt.Fprintf(&b, "- %s: %s\n", r.DisplayName, r.Text)
		}
		b.WriteString("\nNarrate how the day plays out given those answers. " +
			"Weigh every answer; call players out by name.")
	}
	if sidelined != "" {
		fmt.Fprintf(&b, "\nIn the telling, %s gets taken out of the picture for a couple of days"+
			" (hurt, arrested, or lying low). Make it stick, but leave the door open for a return.", sidelined)
	}
	return []narrator.Message{{Role: narrator.RoleUser, Content: b.String()}}
}

// dialogPrompt asks for a reply in a personal aside with one participant.
func dialogPrompt(s *ChatSession, displayName string, turns []DialogTurn) []narrator.Message {
	preamble := fmt.Sprintf("A private word with %s, one of your crew. Day %d of the story. "+
		"Reply in one or two sentences, in character.", displayName, s.Day)
	msgs := []narrator.Message{{Role: narrator.RoleUser, Content: preamble}}
	for _, t := range turns {
		role := narrator.RoleUser
		if t.Speaker == SpeakerPersona {
			role = narrator.RoleAssistant
		}
		msgs = append(msgs, narrator.Message{Role: role, Content: t.Text})
	}
	return msgs
}
