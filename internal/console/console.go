// Package console is a local, single-player Channel for trying the game
// without Telegram. One terminal, one chat, roster of one.
//
// Plain lines reply to the most recent situation; lines starting with "!"
// press an inline button by its callback data; slash commands work as in
// chat. Without a narrator API key the engine falls back to filler text, so
// play mode works offline.
package console

import (
	"context"
	"fmt"
	"strings"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"consigliere/internal/game"
	"consigliere/internal/router"
)

// ChatID is the single simulated chat.
const ChatID int64 = 1

const (
	playerID   int64 = 100
	playerName       = "you"
)

// Channel implements game.Channel and router.Transport against a bubbletea
// program.
type Channel struct {
	mu           sync.Mutex
	program      *tea.Program
	nextID       int64
	lastSituated int64 // last message that carried the next_step button
}

// NewChannel creates the console channel. Attach the program before use.
func NewChannel() *Channel {
	return &Channel{nextID: 1}
}

// Attach binds the running bubbletea program.
func (c *Channel) Attach(p *tea.Program) {
	c.mu.Lock()
	c.program = p
	c.mu.Unlock()
}

type personaLine struct {
	text    string
	buttons [][]game.Button
}

type noticeLine struct{ text string }

func (c *Channel) send(msg tea.Msg) {
	c.mu.Lock()
	p := c.program
	c.mu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

// SendMessage prints a persona message and returns a synthetic message id.
func (c *Channel) SendMessage(_ context.Context, _ int64, text string, opts *game.SendOptions) (int64, error) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	if opts != nil {
		for _, row := range opts.Buttons {
			for _, b := range row {
				if b.Data == "next_step" {
					c.lastSituated = id
				}
			}
		}
	}
	c.mu.Unlock()

	var buttons [][]game.Button
	if opts != nil {
		buttons = opts.Buttons
	}
	c.send(personaLine{text: text, buttons: buttons})
	return id, nil
}

// ReplyTo prints a persona reply; the console has no threading.
func (c *Channel) ReplyTo(_ context.Context, _ int64, _ int64, text string) error {
	c.send(personaLine{text: text})
	return nil
}

// RosterSize is always one player.
func (c *Channel) RosterSize(_ context.Context, _ int64) (int, error) { return 1, nil }

// AnswerCallback surfaces button acknowledgements as notices.
func (c *Channel) AnswerCallback(_ context.Context, _ string, text string) error {
	if text != "" {
		c.send(noticeLine{text: text})
	}
	return nil
}

func (c *Channel) situationAnchor() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSituated
}

var (
	personaStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("178")).Bold(true)
	playerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	noticeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Italic(true)
	promptStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
)

// Model is the terminal UI: a transcript and a one-line input.
type Model struct {
	channel  *Channel
	dispatch func(router.Update)

	lines []string
	input []rune
	width int
}

// NewModel creates the play-mode UI. dispatch receives each player action;
// it is called on its own goroutine since handling may block on the
// narrator.
func NewModel(channel *Channel, dispatch func(router.Update)) *Model {
	return &Model{
		channel:  channel,
		dispatch: dispatch,
		lines: []string{
			noticeStyle.Render("Local table. /start begins a campaign, /help lists the rest, ctrl+c leaves."),
		},
	}
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd { return nil }

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width

	case personaLine:
		m.lines = append(m.lines, personaStyle.Render("Don: ")+msg.text)
		for _, row := range msg.buttons {
			for _, b := range row {
				m.lines = append(m.lines, noticeStyle.Render(fmt.Sprintf("  [%s] -> !%s", b.Label, b.Data)))
			}
		}

	case noticeLine:
		m.lines = append(m.lines, noticeStyle.Render(msg.text))

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			line := strings.TrimSpace(string(m.input))
			m.input = m.input[:0]
			if line != "" {
				m.lines = append(m.lines, playerStyle.Render(playerName+": ")+line)
				go m.dispatch(m.toUpdate(line))
			}
		case tea.KeyBackspace:
			if len(m.input) > 0 {
				m.input = m.input[:len(m.input)-1]
			}
		case tea.KeySpace:
			m.input = append(m.input, ' ')
		case tea.KeyRunes:
			m.input = append(m.input, msg.Runes...)
		}
	}
	return m, nil
}

// toUpdate maps a typed line onto the router's event shape. Plain text
// replies to the latest situation, "!data" presses a button.
func (m *Model) toUpdate(line string) router.Update {
	u := router.Update{
		ChatID:      ChatID,
		UserID:      playerID,
		Username:    playerName,
		DisplayName: playerName,
	}
	if data, ok := strings.CutPrefix(line, "!"); ok {
		u.CallbackID = "console"
		u.CallbackData = data
		return u
	}
	u.Text = line
	if !strings.HasPrefix(line, "/") {
		if anchor := m.channel.situationAnchor(); anchor != 0 {
			u.MessageID = anchor + 1
			u.ReplyToMessageID = anchor
			u.ReplyToPersona = true
		}
	}
	return u
}

// View implements tea.Model.
func (m *Model) View() string {
	var b strings.Builder
	// Keep the tail that fits a modest terminal.
	lines := m.lines
	if len(lines) > 200 {
		lines = lines[len(lines)-200:]
	}
	for _, l := range lines {
		b.WriteString(l)
		b.WriteString("\n")
	}
	b.WriteString(promptStyle.Render("> ") + string(m.input))
	return b.String()
}
