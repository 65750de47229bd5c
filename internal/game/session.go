// Package game holds the per-chat narrative state and the situation
// lifecycle engine that advances it.
//
// A chat session moves through days. Each day the persona publishes a
// "situation", collects free-text player responses against it, and resolves
// the window into a history entry. Sessions are cached in memory and
// persisted as JSON documents through a StateStore.
package game

import (
	"time"
)

// Phase is the lifecycle state of a chat's collection window.
type Phase string

const (
	// PhaseIdle means no situation is open.
	PhaseIdle Phase = "idle"
	// PhaseCollecting means a situation is published and responses are accepted.
	PhaseCollecting Phase = "collecting"
	// PhaseResolving means closure was triggered and resolution is in flight.
	// The transition into this phase is the at-most-once guard for the window.
	PhaseResolving Phase = "resolving"
)

// Speaker identifies who produced a dialog turn.
type Speaker string

const (
	SpeakerUser    Speaker = "user"
	SpeakerPersona Speaker = "persona"
)

// Response is one player reply recorded against a situation. A participant
// may respond more than once per window; every response is kept and fed to
// resolution in recorded order.
type Response struct {
	UserID      int64     `json:"user_id"`
	DisplayName string    `json:"display_name"`
	Text        string    `json:"text"`
	Mentions    []string  `json:"mentions,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// HistoryEntry is one resolved day in the chat's chronicle. History is
// append-only; read-side views take a suffix.
type HistoryEntry struct {
	Day       int        `json:"day"`
	Event     string     `json:"event"`
	Responses []Response `json:"responses,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// Relationship carries metadata about an ally or enemy of the chat's crew.
// The engine carries these fields but never derives them from narrative text.
type Relationship struct {
	Name     string `json:"name"`
	Standing int    `json:"standing"`
	Note     string `json:"note,omitempty"`
}

// DialogTurn is one turn of a personal aside between a participant and the
// persona. Unbounded in storage; generation context takes the last K turns.
type DialogTurn struct {
	Speaker   Speaker   `json:"speaker"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Situation is the live collection window. At most one exists per chat.
type Situation struct {
	// ID distinguishes this window from any later one so stale grace
	// timers can recognize they fire for a window that already closed.
	ID string `json:"id"`
	// AnchorMessageID is the outbound message replies must target.
	AnchorMessageID int64      `json:"anchor_message_id"`
	Text            string     `json:"text"`
	Responses       []Response `json:"responses"`
	Deadline        *time.Time `json:"deadline,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// Responders returns the set of distinct participants that responded.
func (s *Situation) Responders() map[int64]struct{} {
	set := make(map[int64]struct{}, len(s.Responses))
	for _, r := range s.Responses {
		set[r.UserID] = struct{}{}
	}
	return set
}

// ChatSession is the whole persisted document for one chat.
type ChatSession struct {
	Day        int                     `json:"day"`
	Money      int                     `json:"money"`
	Reputation int                     `json:"reputation"`
	Theme      string                  `json:"theme,omitempty"`
	Problems   []string                `json:"problems,omitempty"`
	Allies     map[string]Relationship `json:"allies"`
	Enemies    map[string]Relationship `json:"enemies"`
	History    []HistoryEntry          `json:"history"`
	Active     *Situation              `json:"active_situation,omitempty"`
	Dialogs    map[string][]DialogTurn `json:"personal_dialogs"`
	Phase      Phase                   `json:"phase"`
}

// NewChatSession returns a default-initialized session for a chat the store
// has never seen. Day starts at 1; the first resolution moves it to 2.
func NewChatSession() *ChatSession {
	return &ChatSession{
		Day:        1,
		Money:      500,
		Reputation: 0,
		Allies:     make(map[string]Relationship),
		Enemies:    make(map[string]Relationship),
		History:    []HistoryEntry{},
		Dialogs:    make(map[string][]DialogTurn),
		Phase:      PhaseIdle,
	}
}

// Normalize repairs a session deserialized from an older or partial
// document so the rest of the code never sees nil maps or an impossible
// phase. A session persisted mid-resolution falls back to collecting (the
// resolution never committed, so the window is still open).
func (c *ChatSession) Normalize() {
	if c.Day < 1 {
		c.Day = 1
	}
	if c.Allies == nil {
		c.Allies = make(map[string]Relationship)
	}
	if c.Enemies == nil {
		c.Enemies = make(map[string]Relationship)
	}
	if c.History == nil {
		c.History = []HistoryEntry{}
	}
	if c.Dialogs == nil {
		c.Dialogs = make(map[string][]DialogTurn)
	}
	switch {
	case c.Active == nil:
		c.Phase = PhaseIdle
	case c.Phase != PhaseCollecting:
		c.Phase = PhaseCollecting
	}
}

// RecentHistory returns up to n most recent history entries, oldest first.
func (c *ChatSession) RecentHistory(n int) []HistoryEntry {
	if n <= 0 || len(c.History) == 0 {
		return nil
	}
	if len(c.History) <= n {
		return c.History
	}
	return c.History[len(c.History)-n:]
}

// RecentDialog returns up to k most recent turns of one participant's
// personal dialog, oldest first.
func (c *ChatSession) RecentDialog(userKey string, k int) []DialogTurn {
	turns := c.Dialogs[userKey]
	if k <= 0 || len(turns) == 0 {
		return nil
	}
	if len(turns) <= k {
		return turns
	}
	return turns[len(turns)-k:]
}
