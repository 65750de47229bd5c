package game

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPersonalMentionRecordsBothTurns(t *testing.T) {
	e, n, _ := testEngine(nil)
	defer e.Close()
	n.reply = "Careful who you ask about that."

	reply, err := e.HandlePersonalMention(context.Background(), testChat, 9, "vinny", "what do you think of the new guy?")
	require.NoError(t, err)
	assert.Equal(t, "Careful who you ask about that.", reply)

	snap := sessionSnapshot(t, e)
	turns := snap.Dialogs[dialogKey(9)]
	require.Len(t, turns, 2)
	assert.Equal(t, SpeakerUser, turns[0].Speaker)
	assert.Equal(t, "what do you think of the new guy?", turns[0].Text)
	assert.Equal(t, SpeakerPersona, turns[1].Speaker)
}

func TestPersonalMentionNeverTouchesLifecycle(t *testing.T) {
	e, _, _ := testEngine(nil)
	defer e.Close()
	openWindow(t, e)
	before := sessionSnapshot(t, e)

	_, err := e.HandlePersonalMention(context.Background(), testChat, 9, "vinny", "nice weather, boss")
	require.NoError(t, err)

	after := sessionSnapshot(t, e)
	assert.Equal(t, before.Day, after.Day)
	assert.Equal(t, before.Money, after.Money)
	require.NotNil(t, after.Active)
	assert.Equal(t, before.Active.ID, after.Active.ID)
	assert.Len(t, after.Active.Responses, 0, "an aside is not a situation response")
	assert.Equal(t, PhaseCollecting, after.Phase)
}

func TestTopicalAsideLandsInHistory(t *testing.T) {
	e, n, _ := testEngine(nil)
	defer e.Close()
	n.reply = "The money stays where it is."

	_, err := e.HandlePersonalMention(context.Background(), testChat, 9, "vinny", "boss, where did the money go?")
	require.NoError(t, err)

	snap := sessionSnapshot(t, e)
	require.Len(t, snap.History, 1)
	assert.Equal(t, 1, snap.History[0].Day)
	assert.Contains(t, snap.History[0].Event, "Aside with vinny")
	assert.Contains(t, snap.History[0].Event, "where did the money go?")
}

func TestSmallTalkStaysOutOfHistory(t *testing.T) {
	e, _, _ := testEngine(nil)
	defer e.Close()

	_, err := e.HandlePersonalMention(context.Background(), testChat, 9, "vinny", "good morning boss")
	require.NoError(t, err)
	assert.Empty(t, sessionSnapshot(t, e).History)
}

func TestPersonalMentionFallsBackOnNarratorError(t *testing.T) {
	e, n, _ := testEngine(nil)
	defer e.Close()
	n.err = errors.New("provider down")

	reply, err := e.HandlePersonalMention(context.Background(), testChat, 9, "vinny", "you there?")
	require.NoError(t, err)
	assert.Contains(t, dialogFillers, reply)

	// The filler still lands in the transcript as the persona's turn.
	turns := sessionSnapshot(t, e).Dialogs[dialogKey(9)]
	require.Len(t, turns, 2)
	assert.Equal(t, reply, turns[1].Text)
}

func TestDialogContextWindow(t *testing.T) {
	e, n, _ := testEngine(nil)
	defer e.Close()
	e.settings.DialogContext = 4
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := e.HandlePersonalMention(ctx, testChat, 9, "vinny", "question number "+strings.Repeat("x", i+1))
		require.NoError(t, err)
	}

	// Preamble plus at most DialogContext turns.
	n.mu.Lock()
	last := n.prompts[len(n.prompts)-1]
	n.mu.Unlock()
	assert.LessOrEqual(t, len(last), 1+4)
}

func TestIsTopical(t *testing.T) {
	assert.True(t, isTopical("what about the MONEY"))
	assert.True(t, isTopical("any new problems?"))
	assert.False(t, isTopical("nice hat"))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	long := strings.Repeat("a", 200)
	got := truncate(long, 160)
	assert.Len(t, got, 163)
	assert.True(t, strings.HasSuffix(got, "..."))

	t.Run("cut inside a rune", func(t *testing.T) {
		// "é" is two bytes; a cut at 5 lands between them.
		got := truncate("abcdé and more", 5)
		assert.Equal(t, "abcd...", got)
	})
	t.Run("invalid bytes before the cut stay", func(t *testing.T) {
		// Garbage early in the input must not make the trim walk back to
		// an empty string.
		s := "ab\xffcd" + strings.Repeat("e", 200)
		got := truncate(s, 160)
		assert.Len(t, got, 163)
		assert.True(t, strings.HasPrefix(got, "ab\xffcd"))
	})
}
