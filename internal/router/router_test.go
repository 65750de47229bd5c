package router

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"consigliere/internal/game"
)

// call records one GameService invocation for assertion.
type call struct {
	method string
	text   string
	userID int64
	choice int
	tag    string
}

type fakeGame struct {
	mu       sync.Mutex
	calls    []call
	ack      string
	recorded bool
}

func (f *fakeGame) record(c call) {
	f.mu.Lock()
	f.calls = append(f.calls, c)
	f.mu.Unlock()
}

func (f *fakeGame) StartThemeVote(_ context.Context, chatID int64) error {
	f.record(call{method: "StartThemeVote"})
	return nil
}

func (f *fakeGame) CastThemeVote(_ int64, userID int64, choice int) (string, bool) {
	f.record(call{method: "CastThemeVote", userID: userID, choice: choice})
	return "counted", true
}

func (f *fakeGame) CreateSituation(_ context.Context, _ int64, tag string) error {
	f.record(call{method: "CreateSituation", tag: tag})
	return nil
}

func (f *fakeGame) RecordResponse(_ context.Context, _ int64, userID int64, _ string, text string) (string, bool, error) {
	f.record(call{method: "RecordResponse", userID: userID, text: text})
	return f.ack, f.recorded, nil
}

func (f *fakeGame) CloseAndResolve(_ context.Context, _ int64, reason string) error {
	f.record(call{method: "CloseAndResolve", tag: reason})
	return nil
}

func (f *fakeGame) HandlePersonalMention(_ context.Context, _ int64, userID int64, _ string, text string) (string, error) {
	f.record(call{method: "HandlePersonalMention", userID: userID, text: text})
	return "a word back", nil
}

func (f *fakeGame) methods() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.method
	}
	return out
}

func (f *fakeGame) last() call {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return call{}
	}
	return f.calls[len(f.calls)-1]
}

// fakeTransport implements Transport in memory.
type fakeTransport struct {
	mu        sync.Mutex
	messages  []string
	replies   []string
	callbacks []string
}

func (t *fakeTransport) SendMessage(_ context.Context, _ int64, text string, _ *game.SendOptions) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messages = append(t.messages, text)
	return int64(len(t.messages)), nil
}

func (t *fakeTransport) ReplyTo(_ context.Context, _ int64, _ int64, text string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.replies = append(t.replies, text)
	return nil
}

func (t *fakeTransport) RosterSize(_ context.Context, _ int64) (int, error) { return 5, nil }

func (t *fakeTransport) AnswerCallback(_ context.Context, _ string, text string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.callbacks = append(t.callbacks, text)
	return nil
}

// memStore backs the session manager for anchor lookups.
type memStore struct {
	mu   sync.Mutex
	docs map[int64][]byte
}

func (s *memStore) Get(_ context.Context, chatID int64) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[chatID]
	return doc, ok, nil
}

func (s *memStore) Put(_ context.Context, chatID int64, doc []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.docs == nil {
		s.docs = make(map[int64][]byte)
	}
	s.docs[chatID] = doc
	return nil
}

func (s *memStore) Keys(_ context.Context) ([]int64, error) { return nil, nil }

const (
	chatID     int64 = 42
	anchorID   int64 = 77
	responseID int64 = 501
)

func testRouter(t *testing.T) (*Router, *fakeGame, *fakeTransport, *game.Manager) {
	t.Helper()
	g := &fakeGame{ack: "noted", recorded: true}
	tr := &fakeTransport{}
	sessions := game.NewManager(&memStore{}, nil)
	r := New(g, sessions, tr, nil)
	r.SetBotUsername("ConsigliereBot")
	return r, g, tr, sessions
}

// openAnchor plants an open collection window whose anchor is anchorID.
func openAnchor(t *testing.T, sessions *game.Manager) {
	t.Helper()
	deadline := time.Now().Add(time.Hour)
	require.NoError(t, sessions.Update(context.Background(), chatID, func(s *game.ChatSession) (bool, error) {
		s.Active = &game.Situation{
			ID:              "w1",
			AnchorMessageID: anchorID,
			Text:            "trouble",
			Deadline:        &deadline,
			CreatedAt:       time.Now(),
		}
		s.Phase = game.PhaseCollecting
		return true, nil
	}))
}

func TestReplyToAnchorIsResponse(t *testing.T) {
	r, g, tr, sessions := testRouter(t)
	openAnchor(t, sessions)

	r.HandleUpdate(context.Background(), Update{
		ChatID:           chatID,
		MessageID:        responseID,
		UserID:           9,
		DisplayName:      "vinny",
		Text:             "we pay the cops off",
		ReplyToMessageID: anchorID,
		ReplyToPersona:   true,
	})

	assert.Equal(t, []string{"RecordResponse"}, g.methods())
	assert.Equal(t, "we pay the cops off", g.last().text)
	require.Len(t, tr.replies, 1, "the ack lands as a threaded reply")
	assert.Equal(t, "noted", tr.replies[0])
}

func TestReplyToOtherPersonaMessageIsAside(t *testing.T) {
	r, g, tr, sessions := testRouter(t)
	openAnchor(t, sessions)

	r.HandleUpdate(context.Background(), Update{
		ChatID:           chatID,
		MessageID:        responseID,
		UserID:           9,
		DisplayName:      "vinny",
		Text:             "that resolution was harsh",
		ReplyToMessageID: anchorID + 1, // the resolution message, not the anchor
		ReplyToPersona:   true,
	})

	assert.Equal(t, []string{"HandlePersonalMention"}, g.methods())
	require.Len(t, tr.replies, 1)
	assert.Equal(t, "a word back", tr.replies[0])
}

func TestAliasMentionIsAside(t *testing.T) {
	r, g, _, sessions := testRouter(t)
	openAnchor(t, sessions)

	for _, text := range []string{
		"hey don, got a minute?",
		"ask the Boss about it",
		"@ConsigliereBot what's the plan",
	} {
		g.mu.Lock()
		g.calls = nil
		g.mu.Unlock()
		r.HandleUpdate(context.Background(), Update{ChatID: chatID, UserID: 9, DisplayName: "vinny", Text: text})
		assert.Equal(t, []string{"HandlePersonalMention"}, g.methods(), "text: %s", text)
	}
}

func TestAliasRequiresWholeWord(t *testing.T) {
	r, g, _, _ := testRouter(t)

	r.HandleUpdate(context.Background(), Update{ChatID: chatID, UserID: 9, Text: "I went to london today"})
	r.HandleUpdate(context.Background(), Update{ChatID: chatID, UserID: 9, Text: "abandoned warehouse job"})

	assert.Empty(t, g.methods(), "substrings of aliases are plain chatter")
}

func TestPlainChatterIsIgnored(t *testing.T) {
	r, g, tr, sessions := testRouter(t)
	openAnchor(t, sessions)

	r.HandleUpdate(context.Background(), Update{ChatID: chatID, UserID: 9, Text: "anyone up for lunch?"})

	assert.Empty(t, g.methods())
	assert.Empty(t, tr.replies)
	assert.Empty(t, tr.messages)
}

func TestAnchorBeatsMention(t *testing.T) {
	r, g, _, sessions := testRouter(t)
	openAnchor(t, sessions)

	// A reply on the anchor that also says "don" is still a response.
	r.HandleUpdate(context.Background(), Update{
		ChatID:           chatID,
		MessageID:        responseID,
		UserID:           9,
		DisplayName:      "vinny",
		Text:             "don, we pay them off",
		ReplyToMessageID: anchorID,
		ReplyToPersona:   true,
	})

	assert.Equal(t, []string{"RecordResponse"}, g.methods())
}

func TestCommands(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"/start", "StartThemeVote"},
		{"/theme", "StartThemeVote"},
		{"/theme@ConsigliereBot", "StartThemeVote"},
		{"/don", "CreateSituation"},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			r, g, _, _ := testRouter(t)
			r.HandleUpdate(context.Background(), Update{ChatID: chatID, UserID: 9, Text: tt.text})
			assert.Equal(t, []string{tt.want}, g.methods())
		})
	}

	t.Run("/don tags the situation as summoned", func(t *testing.T) {
		r, g, _, _ := testRouter(t)
		r.HandleUpdate(context.Background(), Update{ChatID: chatID, UserID: 9, Text: "/don"})
		assert.Equal(t, "summoned", g.last().tag)
	})

	t.Run("unknown command is ignored", func(t *testing.T) {
		r, g, tr, _ := testRouter(t)
		r.HandleUpdate(context.Background(), Update{ChatID: chatID, UserID: 9, Text: "/dance"})
		assert.Empty(t, g.methods())
		assert.Empty(t, tr.messages)
	})
}

func TestContinueClosesOpenWindow(t *testing.T) {
	r, g, _, sessions := testRouter(t)
	openAnchor(t, sessions)

	r.HandleUpdate(context.Background(), Update{ChatID: chatID, UserID: 9, Text: "/continue"})

	assert.Equal(t, []string{"CloseAndResolve"}, g.methods())
	assert.Equal(t, "manual", g.last().tag)
}

func TestContinueOpensWhenIdle(t *testing.T) {
	r, g, _, _ := testRouter(t)

	r.HandleUpdate(context.Background(), Update{ChatID: chatID, UserID: 9, Text: "/continue"})

	assert.Equal(t, []string{"CreateSituation"}, g.methods())
	assert.Equal(t, "summoned", g.last().tag)
}

func TestViews(t *testing.T) {
	r, _, tr, sessions := testRouter(t)
	require.NoError(t, sessions.Update(context.Background(), chatID, func(s *game.ChatSession) (bool, error) {
		s.Day = 4
		s.History = append(s.History, game.HistoryEntry{Day: 3, Event: "The docks deal closed."})
		s.Allies["sal"] = game.Relationship{Name: "Sal the Fence", Standing: 2}
		return true, nil
	}))

	r.HandleUpdate(context.Background(), Update{ChatID: chatID, UserID: 9, Text: "/history"})
	r.HandleUpdate(context.Background(), Update{ChatID: chatID, UserID: 9, Text: "/relationships"})
	r.HandleUpdate(context.Background(), Update{ChatID: chatID, UserID: 9, Text: "/status"})
	r.HandleUpdate(context.Background(), Update{ChatID: chatID, UserID: 9, Text: "/help"})

	require.Len(t, tr.messages, 4)
	assert.Contains(t, tr.messages[0], "Day 3: The docks deal closed.")
	assert.Contains(t, tr.messages[1], "Sal the Fence")
	assert.Contains(t, tr.messages[2], "Day 4")
	assert.Contains(t, tr.messages[3], "/continue")
}

func TestVoteCallback(t *testing.T) {
	r, g, tr, _ := testRouter(t)

	r.HandleUpdate(context.Background(), Update{
		ChatID:       chatID,
		UserID:       9,
		CallbackID:   "cb1",
		CallbackData: "vote_theme_2",
	})

	assert.Equal(t, []string{"CastThemeVote"}, g.methods())
	assert.Equal(t, 2, g.last().choice)
	require.Len(t, tr.callbacks, 1)
	assert.Equal(t, "counted", tr.callbacks[0])
}

func TestNextStepCallback(t *testing.T) {
	r, g, tr, sessions := testRouter(t)
	openAnchor(t, sessions)

	r.HandleUpdate(context.Background(), Update{
		ChatID:       chatID,
		UserID:       9,
		CallbackID:   "cb1",
		CallbackData: "next_step",
	})

	assert.Equal(t, []string{"CloseAndResolve"}, g.methods())
	require.Len(t, tr.callbacks, 1)
}

func TestMenuCallbackRoutesToViews(t *testing.T) {
	r, _, tr, _ := testRouter(t)

	r.HandleUpdate(context.Background(), Update{ChatID: chatID, UserID: 9, Text: "/menu"})
	require.Len(t, tr.messages, 1)

	r.HandleUpdate(context.Background(), Update{
		ChatID: chatID, UserID: 9, CallbackID: "cb1", CallbackData: "menu_status",
	})
	assert.Len(t, tr.messages, 2)
}

func TestMemberJoinedGreeting(t *testing.T) {
	r, g, tr, _ := testRouter(t)

	r.HandleUpdate(context.Background(), Update{ChatID: chatID, MemberJoined: "Nicky"})

	assert.Empty(t, g.methods())
	require.Len(t, tr.messages, 1)
	assert.Contains(t, tr.messages[0], "Nicky")
}
