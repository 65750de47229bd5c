package game

import (
	"context"
	"math/rand"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"consigliere/internal/narrator"
)

// Settings are the tunable constants of the lifecycle. Windows and delays
// are configuration, never derived values.
type Settings struct {
	// ResponseWindow is how long a situation stays open for responses.
	ResponseWindow time.Duration
	// ResponseQuota is the response count that arms quota closure.
	ResponseQuota int
	// GraceDelay is how long after the quota fires stragglers may still
	// respond before the window closes.
	GraceDelay time.Duration
	// VoteWindow is how long a theme vote stays open.
	VoteWindow time.Duration
	// HistoryContext is how many history entries feed generation prompts.
	HistoryContext int
	// DialogContext is how many personal-dialog turns feed dialog prompts.
	DialogContext int
	// SidelineChance is the probability a resolution writes one responder
	// out of the story; SidelineDays is how many days they sit out.
	SidelineChance float64
	SidelineDays   int
}

// DefaultSettings mirrors the pacing of the original game.
func DefaultSettings() Settings {
	return Settings{
		ResponseWindow: 90 * time.Minute,
		ResponseQuota:  3,
		GraceDelay:     2 * time.Minute,
		VoteWindow:     30 * time.Minute,
		HistoryContext: 5,
		DialogContext:  8,
		SidelineChance: 0.4,
		SidelineDays:   2,
	}
}

type windowTimer struct {
	windowID string
	timer    *time.Timer
}

// Engine owns the situation lifecycle: creation, collection, the
// closure-decision race, and resolution. The COLLECTING to RESOLVING
// transition, committed under the session lock before any narrator call, is
// the at-most-once guard; every closure trigger funnels through it and
// loses silently when another trigger got there first.
type Engine struct {
	sessions *Manager
	narrator narrator.Narrator
	channel  Channel
	themes   *Catalog
	settings Settings
	logger   *zap.Logger

	rngMu sync.Mutex
	rng   *rand.Rand

	timersMu    sync.Mutex
	graceTimers map[int64]*windowTimer

	votesMu sync.Mutex
	votes   map[int64]*themeVote

	sidelinedMu sync.Mutex
	sidelined   map[int64]map[int64]sidelinedPlayer
}

type sidelinedPlayer struct {
	name     string
	untilDay int
}

// NewEngine wires the lifecycle engine to its collaborators.
func NewEngine(sessions *Manager, n narrator.Narrator, ch Channel, themes *Catalog, settings Settings, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		sessions:    sessions,
		narrator:    n,
		channel:     ch,
		themes:      themes,
		settings:    settings,
		logger:      logger.Named("engine"),
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		graceTimers: make(map[int64]*windowTimer),
		votes:       make(map[int64]*themeVote),
		sidelined:   make(map[int64]map[int64]sidelinedPlayer),
	}
}

// Close stops every outstanding timer. Pending closures simply never fire;
// durable state is already consistent.
func (e *Engine) Close() {
	e.timersMu.Lock()
	for chatID, wt := range e.graceTimers {
		wt.timer.Stop()
		delete(e.graceTimers, chatID)
	}
	e.timersMu.Unlock()

	e.votesMu.Lock()
	for chatID, v := range e.votes {
		v.timer.Stop()
		delete(e.votes, chatID)
	}
	e.votesMu.Unlock()
}

// KnownChats lists the chats the engine can currently act on.
func (e *Engine) KnownChats() []int64 {
	return e.sessions.Chats()
}

var mentionPattern = regexp.MustCompile(`@([A-Za-z0-9_]+)`)

func extractMentions(text string) []string {
	matches := mentionPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m[1])
	}
	return out
}

// CreateSituation publishes a new narrative beat and opens a collection
// window. Creating over an unresolved window discards it without an error,
// the uncollected responses are simply dropped. A narrator failure degrades
// to filler text so the cycle never stalls.
func (e *Engine) CreateSituation(ctx context.Context, chatID int64, tag string) error {
	var (
		msgs      []narrator.Message
		resolving bool
	)
	err := e.sessions.View(ctx, chatID, func(s *ChatSession) {
		if s.Phase == PhaseResolving {
			resolving = true
			return
		}
		theme := e.themes.ByID(s.Theme)
		msgs = situationPrompt(s, theme, tag, e.settings.HistoryContext)
	})
	if err != nil {
		return err
	}
	if resolving {
		e.logger.Debug("situation creation skipped; resolution in flight",
			zap.Int64("chat_id", chatID))
		return nil
	}

	text, genErr := e.narrator.Generate(ctx, msgs)
	if genErr != nil {
		e.logger.Warn("situation generation failed; using filler",
			zap.Int64("chat_id", chatID), zap.Error(genErr))
		text = e.pickFiller(situationFillers)
	}

	msgID, err := e.channel.SendMessage(ctx, chatID, text, &SendOptions{
		Buttons: [][]Button{{{Label: "Next step", Data: "next_step"}}},
	})
	if err != nil {
		// Best effort: no state changed, the next trigger will retry.
		e.logger.Error("situation publish failed", zap.Int64("chat_id", chatID), zap.Error(err))
		return err
	}

	windowID := uuid.NewString()
	now := time.Now()
	deadline := now.Add(e.settings.ResponseWindow)
	err = e.sessions.Update(ctx, chatID, func(s *ChatSession) (bool, error) {
		if s.Phase == PhaseResolving {
			// A closure slipped in while we were generating; leave it be.
			return false, nil
		}
		if s.Active != nil {
			e.logger.Info("discarding unresolved situation",
				zap.Int64("chat_id", chatID),
				zap.Int("dropped_responses", len(s.Active.Responses)))
		}
		s.Active = &Situation{
			ID:              windowID,
			AnchorMessageID: msgID,
			Text:            text,
			Responses:       []Response{},
			Deadline:        &deadline,
			CreatedAt:       now,
		}
		s.Phase = PhaseCollecting
		return true, nil
	})
	if err != nil {
		return err
	}

	// Any grace timer armed for the discarded window is moot.
	e.cancelGrace(chatID, "")

	e.logger.Info("situation opened",
		zap.Int64("chat_id", chatID),
		zap.String("window_id", windowID),
		zap.String("tag", tag),
		zap.Time("deadline", deadline))
	return nil
}

// RecordResponse appends one player reply to the open window. Responses are
// not deduplicated; a participant may answer any number of times and every
// answer is retained and fed to resolution. Returns an in-character
// acknowledgement and whether the response was recorded.
func (e *Engine) RecordResponse(ctx context.Context, chatID, userID int64, displayName, text string) (string, bool, error) {
	if sidelined, _ := e.sidelineStatus(ctx, chatID, userID); sidelined {
		return e.pickFiller(sidelinedFillers), false, nil
	}

	var (
		recorded   bool
		windowID   string
		total      int
		responders int
	)
	err := e.sessions.Update(ctx, chatID, func(s *ChatSession) (bool, error) {
		if s.Phase != PhaseCollecting || s.Active == nil {
			return false, nil
		}
		s.Active.Responses = append(s.Active.Responses, Response{
			UserID:      userID,
			DisplayName: displayName,
			Text:        text,
			Mentions:    extractMentions(text),
			Timestamp:   time.Now(),
		})
		recorded = true
		windowID = s.Active.ID
		total = len(s.Active.Responses)
		responders = len(s.Active.Responders())
		return true, nil
	})
	if err != nil {
		return "", false, err
	}
	if !recorded {
		return "", false, nil
	}

	e.logger.Debug("response recorded",
		zap.Int64("chat_id", chatID),
		zap.Int64("user_id", userID),
		zap.Int("total", total))

	// Closure triggers: full roster beats quota; quota arms a grace delay.
	// Full-roster closure runs off this call so the responder's
	// acknowledgement reaches the chat before the resolution text.
	if roster, err := e.channel.RosterSize(ctx, chatID); err == nil && roster > 0 && responders >= roster {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()
			if err := e.closeAndResolve(ctx, chatID, windowID, "full roster"); err != nil {
				e.logger.Error("full-roster closure failed", zap.Int64("chat_id", chatID), zap.Error(err))
			}
		}()
	} else if total >= e.settings.ResponseQuota {
		e.armGraceClose(chatID, windowID)
	}

	return e.pickFiller(ackFillers), true, nil
}

// armGraceClose schedules quota closure after the grace delay, once per
// window. The timer re-validates the window id when it fires, so a window
// that already closed or was replaced makes the timer a no-op.
func (e *Engine) armGraceClose(chatID int64, windowID string) {
	e.timersMu.Lock()
	defer e.timersMu.Unlock()

	if wt, ok := e.graceTimers[chatID]; ok {
		if wt.windowID == windowID {
			return // already armed for this window
		}
		wt.timer.Stop()
	}
	e.graceTimers[chatID] = &windowTimer{
		windowID: windowID,
		timer: time.AfterFunc(e.settings.GraceDelay, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()
			if err := e.closeAndResolve(ctx, chatID, windowID, "quota"); err != nil {
				e.logger.Error("quota closure failed", zap.Int64("chat_id", chatID), zap.Error(err))
			}
		}),
	}
	e.logger.Debug("quota reached; grace delay armed",
		zap.Int64("chat_id", chatID),
		zap.String("window_id", windowID),
		zap.Duration("grace", e.settings.GraceDelay))
}

// cancelGrace stops a pending grace timer. With a window id it only cancels
// a timer armed for that window; with "" it cancels unconditionally.
func (e *Engine) cancelGrace(chatID int64, windowID string) {
	e.timersMu.Lock()
	defer e.timersMu.Unlock()
	wt, ok := e.graceTimers[chatID]
	if !ok {
		return
	}
	if windowID != "" && wt.windowID != windowID {
		return
	}
	wt.timer.Stop()
	delete(e.graceTimers, chatID)
}

// CloseAndResolve force-closes the open window, whatever trigger asked.
// Safe to call when no window is open (silent no-op).
func (e *Engine) CloseAndResolve(ctx context.Context, chatID int64, reason string) error {
	return e.closeAndResolve(ctx, chatID, "", reason)
}

type resolutionSnapshot struct {
	windowID  string
	day       int
	responses []Response
	prompt    []narrator.Message
}

// closeAndResolve is the single guarded path out of COLLECTING. windowID
// restricts closure to one specific window ("" closes whichever is open).
// The phase flip to RESOLVING happens under the session lock before the
// narrator is called; competing triggers that lose the race observe a
// non-COLLECTING phase and return silently.
func (e *Engine) closeAndResolve(ctx context.Context, chatID int64, windowID, reason string) error {
	var (
		snap    resolutionSnapshot
		claimed bool
	)
	err := e.sessions.Update(ctx, chatID, func(s *ChatSession) (bool, error) {
		if s.Phase != PhaseCollecting || s.Active == nil {
			return false, nil
		}
		if windowID != "" && s.Active.ID != windowID {
			return false, nil
		}
		s.Phase = PhaseResolving
		claimed = true

		responses := make([]Response, len(s.Active.Responses))
		copy(responses, s.Active.Responses)
		sidelinedName := e.maybeSideline(chatID, s.Day, responses)
		theme := e.themes.ByID(s.Theme)
		snap = resolutionSnapshot{
			windowID:  s.Active.ID,
			day:       s.Day,
			responses: responses,
			prompt:    resolutionPrompt(s, theme, s.Active, sidelinedName, e.settings.HistoryContext),
		}
		return true, nil
	})
	// A failed flush of the RESOLVING flag is logged by the manager; the
	// in-memory claim already excludes competing triggers, so resolution
	// proceeds rather than stalling the chat.
	if !claimed {
		if err != nil {
			return err
		}
		return nil
	}

	e.cancelGrace(chatID, "")
	e.logger.Info("closing collection window",
		zap.Int64("chat_id", chatID),
		zap.String("reason", reason),
		zap.Int("responses", len(snap.responses)),
		zap.Int("day", snap.day))

	text, genErr := e.narrator.Generate(ctx, snap.prompt)
	if genErr != nil {
		e.logger.Warn("resolution generation failed; using filler",
			zap.Int64("chat_id", chatID), zap.Error(genErr))
		text = e.pickFiller(resolutionFillers)
	}

	committed := false
	err = e.sessions.Update(ctx, chatID, func(s *ChatSession) (bool, error) {
		// The session may have been replaced while the narrator was busy
		// (a theme vote resetting the campaign). Commit only to the window
		// this closure claimed; otherwise the text belongs to a story that
		// no longer exists.
		if s.Phase != PhaseResolving || s.Active == nil || s.Active.ID != snap.windowID {
			return false, nil
		}
		s.History = append(s.History, HistoryEntry{
			Day:       snap.day,
			Event:     text,
			Responses: snap.responses,
			Timestamp: time.Now(),
		})
		s.Day = snap.day + 1
		s.Active = nil
		s.Phase = PhaseIdle
		committed = true
		return true, nil
	})
	if err != nil {
		e.logger.Error("resolution commit flush failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
	if !committed {
		e.logger.Info("resolution discarded; session was replaced mid-resolution",
			zap.Int64("chat_id", chatID), zap.String("window_id", snap.windowID))
		return nil
	}

	if _, sendErr := e.channel.SendMessage(ctx, chatID, text, nil); sendErr != nil {
		e.logger.Error("resolution publish failed", zap.Int64("chat_id", chatID), zap.Error(sendErr))
	}
	return nil
}

// CloseDueSituations closes every in-memory chat whose window deadline has
// passed. It reads live state, never a captured deadline, so a window that
// already closed by another trigger is skipped.
func (e *Engine) CloseDueSituations(ctx context.Context, now time.Time) {
	for _, chatID := range e.sessions.Chats() {
		var (
			due      bool
			windowID string
		)
		err := e.sessions.View(ctx, chatID, func(s *ChatSession) {
			if s.Phase == PhaseCollecting && s.Active != nil &&
				s.Active.Deadline != nil && now.After(*s.Active.Deadline) {
				due = true
				windowID = s.Active.ID
			}
		})
		if err != nil || !due {
			continue
		}
		if err := e.closeAndResolve(ctx, chatID, windowID, "deadline"); err != nil {
			e.logger.Error("deadline closure failed", zap.Int64("chat_id", chatID), zap.Error(err))
		}
	}
}

// maybeSideline rolls the narrative-exit chance against the window's
// distinct responders and books the victim for SidelineDays. Bookkeeping is
// in-memory only; it never touches persisted state. Called with the session
// lock held, so it must stay synchronous.
func (e *Engine) maybeSideline(chatID int64, day int, responses []Response) string {
	if e.settings.SidelineChance <= 0 || len(responses) == 0 {
		return ""
	}
	e.rngMu.Lock()
	roll := e.rng.Float64()
	e.rngMu.Unlock()
	if roll >= e.settings.SidelineChance {
		return ""
	}

	type candidate struct {
		id   int64
		name string
	}
	seen := make(map[int64]struct{})
	var candidates []candidate
	for _, r := range responses {
		if _, ok := seen[r.UserID]; ok {
			continue
		}
		seen[r.UserID] = struct{}{}
		if e.isSidelined(chatID, r.UserID, day) {
			continue
		}
		candidates = append(candidates, candidate{id: r.UserID, name: r.DisplayName})
	}
	if len(candidates) == 0 {
		return ""
	}

	e.rngMu.Lock()
	pick := candidates[e.rng.Intn(len(candidates))]
	e.rngMu.Unlock()

	e.sidelinedMu.Lock()
	if e.sidelined[chatID] == nil {
		e.sidelined[chatID] = make(map[int64]sidelinedPlayer)
	}
	e.sidelined[chatID][pick.id] = sidelinedPlayer{name: pick.name, untilDay: day + e.settings.SidelineDays}
	e.sidelinedMu.Unlock()

	e.logger.Info("player sidelined",
		zap.Int64("chat_id", chatID),
		zap.Int64("user_id", pick.id),
		zap.Int("until_day", day+e.settings.SidelineDays))
	return pick.name
}

func (e *Engine) isSidelined(chatID, userID int64, day int) bool {
	e.sidelinedMu.Lock()
	defer e.sidelinedMu.Unlock()
	chat, ok := e.sidelined[chatID]
	if !ok {
		return false
	}
	sp, ok := chat[userID]
	if !ok {
		return false
	}
	if sp.untilDay <= day {
		delete(chat, userID) // resurrection
		return false
	}
	return true
}

// sidelineStatus checks the current day for a chat and reports whether the
// participant is still written out of the story.
func (e *Engine) sidelineStatus(ctx context.Context, chatID, userID int64) (bool, string) {
	var day int
	if err := e.sessions.View(ctx, chatID, func(s *ChatSession) { day = s.Day }); err != nil {
		return false, ""
	}
	e.sidelinedMu.Lock()
	sp, ok := e.sidelined[chatID][userID]
	e.sidelinedMu.Unlock()
	if !ok {
		return false, ""
	}
	if !e.isSidelined(chatID, userID, day) {
		return false, ""
	}
	return true, sp.name
}
