// Package router classifies inbound transport events and dispatches them to
// the lifecycle engine or to read-only session views.
//
// Message classification is an ordered policy:
//  1. a reply targeting the active situation's anchor is a situation response;
//  2. a reply to any other persona message, or a message mentioning the
//     persona by alias or @username, is a personal aside;
//  3. anything else is ordinary chatter and is ignored.
package router

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"consigliere/internal/game"
	"consigliere/internal/narrator"
)

// Update is one inbound transport event, already flattened by the adapter.
type Update struct {
	ChatID      int64
	MessageID   int64
	UserID      int64
	Username    string
	DisplayName string
	Text        string

	// ReplyToMessageID is the replied-to message, 0 for none.
	// ReplyToPersona reports whether that message was the persona's own.
	ReplyToMessageID int64
	ReplyToPersona   bool

	// CallbackID/CallbackData are set for inline-button presses.
	CallbackID   string
	CallbackData string

	// MemberJoined is the display name of a newly added member, "" otherwise.
	MemberJoined string
}

// GameService is the write-side surface of the lifecycle engine.
type GameService interface {
	StartThemeVote(ctx context.Context, chatID int64) error
	CastThemeVote(chatID, userID int64, choice int) (string, bool)
	CreateSituation(ctx context.Context, chatID int64, tag string) error
	RecordResponse(ctx context.Context, chatID, userID int64, displayName, text string) (string, bool, error)
	CloseAndResolve(ctx context.Context, chatID int64, reason string) error
	HandlePersonalMention(ctx context.Context, chatID, userID int64, displayName, text string) (string, error)
}

// Transport is the channel surface the router answers through.
type Transport interface {
	game.Channel
	AnswerCallback(ctx context.Context, callbackID, text string) error
}

// Router dispatches updates. Read-only queries (history, relationships,
// status) are served straight from the session manager; everything that
// mutates goes through the GameService.
type Router struct {
	game     GameService
	sessions *game.Manager
	channel  Transport
	logger   *zap.Logger

	// botUsername enables @mention detection once the transport knows it.
	botUsername string
}

// New creates a router.
func New(g GameService, sessions *game.Manager, channel Transport, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		game:     g,
		sessions: sessions,
		channel:  channel,
		logger:   logger.Named("router"),
	}
}

// SetBotUsername records the transport's own username for mention matching.
func (r *Router) SetBotUsername(username string) {
	r.botUsername = strings.TrimPrefix(username, "@")
}

// HandleUpdate classifies and dispatches one inbound event. Errors are
// handled (logged) here; the caller's loop should keep running regardless.
func (r *Router) HandleUpdate(ctx context.Context, u Update) {
	switch {
	case u.CallbackID != "":
		r.handleCallback(ctx, u)
	case u.MemberJoined != "":
		r.greet(ctx, u)
	case strings.HasPrefix(u.Text, "/"):
		r.handleCommand(ctx, u)
	case u.Text != "":
		r.handleMessage(ctx, u)
	}
}

func (r *Router) handleCommand(ctx context.Context, u Update) {
	cmd := strings.Fields(u.Text)[0]
	// Group chats address commands as /cmd@BotName.
	if at := strings.Index(cmd, "@"); at > 0 {
		cmd = cmd[:at]
	}

	var err error
	switch cmd {
	case "/start", "/theme":
		err = r.game.StartThemeVote(ctx, u.ChatID)
	case "/continue":
		err = r.advance(ctx, u.ChatID)
	case "/don":
		err = r.game.CreateSituation(ctx, u.ChatID, "summoned")
	case "/menu":
		err = r.sendMenu(ctx, u.ChatID)
	case "/history":
		err = r.sendHistory(ctx, u.ChatID)
	case "/relationships":
		err = r.sendRelationships(ctx, u.ChatID)
	case "/status":
		err = r.sendStatus(ctx, u.ChatID)
	case "/help":
		_, err = r.channel.SendMessage(ctx, u.ChatID, helpText, nil)
	default:
		return // unknown command, ignore
	}
	if err != nil {
		r.logger.Warn("command failed",
			zap.String("command", cmd), zap.Int64("chat_id", u.ChatID), zap.Error(err))
	}
}

// advance is the manual force-advance: it closes an open window, or opens a
// fresh situation when none is collecting.
func (r *Router) advance(ctx context.Context, chatID int64) error {
	collecting := false
	if err := r.sessions.View(ctx, chatID, func(s *game.ChatSession) {
		collecting = s.Phase == game.PhaseCollecting && s.Active != nil
	}); err != nil {
		return err
	}
	if collecting {
		return r.game.CloseAndResolve(ctx, chatID, "manual")
	}
	return r.game.CreateSituation(ctx, chatID, "summoned")
}

func (r *Router) handleCallback(ctx context.Context, u Update) {
	data := u.CallbackData
	switch {
	case strings.HasPrefix(data, "vote_theme_"):
		choice, err := strconv.Atoi(strings.TrimPrefix(data, "vote_theme_"))
		if err != nil {
			return
		}
		if ack, ok := r.game.CastThemeVote(u.ChatID, u.UserID, choice); ok {
			r.answerCallback(ctx, u.CallbackID, ack)
		} else {
			r.answerCallback(ctx, u.CallbackID, "")
		}
	case data == "next_step":
		r.answerCallback(ctx, u.CallbackID, "Moving on.")
		if err := r.advance(ctx, u.ChatID); err != nil {
			r.logger.Warn("next step failed", zap.Int64("chat_id", u.ChatID), zap.Error(err))
		}
	case data == "menu_history":
		r.answerCallback(ctx, u.CallbackID, "")
		r.logErr(u.ChatID, r.sendHistory(ctx, u.ChatID))
	case data == "menu_relationships":
		r.answerCallback(ctx, u.CallbackID, "")
		r.logErr(u.ChatID, r.sendRelationships(ctx, u.ChatID))
	case data == "menu_call_persona":
		r.answerCallback(ctx, u.CallbackID, "")
		r.logErr(u.ChatID, r.game.CreateSituation(ctx, u.ChatID, "summoned"))
	case data == "menu_status":
		r.answerCallback(ctx, u.CallbackID, "")
		r.logErr(u.ChatID, r.sendStatus(ctx, u.ChatID))
	case data == "menu_help":
		r.answerCallback(ctx, u.CallbackID, "")
		_, err := r.channel.SendMessage(ctx, u.ChatID, helpText, nil)
		r.logErr(u.ChatID, err)
	}
}

func (r *Router) answerCallback(ctx context.Context, callbackID, text string) {
	if err := r.channel.AnswerCallback(ctx, callbackID, text); err != nil {
		r.logger.Debug("callback answer failed", zap.Error(err))
	}
}

func (r *Router) logErr(chatID int64, err error) {
	if err != nil {
		r.logger.Warn("dispatch failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

// handleMessage applies the ordered classification policy to plain text.
func (r *Router) handleMessage(ctx context.Context, u Update) {
	var anchor int64
	if err := r.sessions.View(ctx, u.ChatID, func(s *game.ChatSession) {
		if s.Phase == game.PhaseCollecting && s.Active != nil {
			anchor = s.Active.AnchorMessageID
		}
	}); err != nil {
		r.logger.Warn("session read failed", zap.Int64("chat_id", u.ChatID), zap.Error(err))
		return
	}

	// Priority 1: reply targeting the anchor is a situation response.
	if anchor != 0 && u.ReplyToMessageID == anchor {
		ack, _, err := r.game.RecordResponse(ctx, u.ChatID, u.UserID, u.DisplayName, u.Text)
		if err != nil {
			r.logger.Warn("response record failed", zap.Int64("chat_id", u.ChatID), zap.Error(err))
			return
		}
		if ack != "" {
			r.logErr(u.ChatID, r.channel.ReplyTo(ctx, u.ChatID, u.MessageID, ack))
		}
		return
	}

	// Priority 2: reply to another persona message, or an alias mention.
	if (u.ReplyToPersona && u.ReplyToMessageID != anchor) || r.mentionsPersona(u.Text) {
		reply, err := r.game.HandlePersonalMention(ctx, u.ChatID, u.UserID, u.DisplayName, u.Text)
		if err != nil {
			r.logger.Warn("personal mention failed", zap.Int64("chat_id", u.ChatID), zap.Error(err))
		}
		if reply != "" {
			r.logErr(u.ChatID, r.channel.ReplyTo(ctx, u.ChatID, u.MessageID, reply))
		}
		return
	}

	// Ordinary chatter: not addressed to the persona, not a response.
}

// mentionsPersona checks aliases and the bot's own @username.
func (r *Router) mentionsPersona(text string) bool {
	lower := strings.ToLower(text)
	if r.botUsername != "" && strings.Contains(lower, "@"+strings.ToLower(r.botUsername)) {
		return true
	}
	for _, alias := range narrator.PersonaAliases {
		if containsWord(lower, alias) {
			return true
		}
	}
	return false
}

// containsWord reports a whole-word, case-folded match.
func containsWord(haystack, word string) bool {
	idx := 0
	for {
		i := strings.Index(haystack[idx:], word)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(word)
		beforeOK := start == 0 || !isWordByte(haystack[start-1])
		afterOK := end == len(haystack) || !isWordByte(haystack[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isWordByte(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

func (r *Router) greet(ctx context.Context, u Update) {
	text := fmt.Sprintf("%s. Welcome to the family. Say my name when you need me; "+
		"reply to my situations when you have a move. /help explains the house rules.", u.MemberJoined)
	_, err := r.channel.SendMessage(ctx, u.ChatID, text, nil)
	r.logErr(u.ChatID, err)
}

const helpText = `I run this table. Here is how you play:

/start - open a vote for a new campaign setting
/theme - same thing, when the current story has gone stale
/continue - force the story forward (close the open situation, or deal a new one)
/don - summon me for a situation right now
/menu - the buttons, for people who dislike typing
/history - the chronicle so far
/relationships - who loves us, who wants us dead
/status - day, treasury, reputation
/help - this

Reply to my situation messages to act. Mention me or reply to my other
messages for a private word. And respond before the deadline - the story
moves with or without you.`
