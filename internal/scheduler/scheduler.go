// Package scheduler drives the wall-clock side of the game: the morning and
// evening narrative beats and the periodic sweep that closes overdue
// collection windows.
package scheduler

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
)

// GameService is the slice of the lifecycle engine the scheduler needs.
// Every callback must be safe when a chat has no active situation.
type GameService interface {
	CreateSituation(ctx context.Context, chatID int64, tag string) error
	CloseDueSituations(ctx context.Context, now time.Time)
	KnownChats() []int64
}

// Options configures the scheduler.
type Options struct {
	// Location is the timezone the daily hours are interpreted in.
	Location *time.Location
	// MorningHour and EveningHour are the local hours of the two daily beats.
	MorningHour int
	EveningHour int
	// Jitter randomizes each chat's beat inside [0, Jitter) so the persona
	// is not perfectly predictable.
	Jitter time.Duration
	// SweepInterval is how often overdue windows are closed.
	SweepInterval time.Duration
}

// Scheduler owns the timers. It holds no game state; it is purely an event
// source calling into the engine's guarded transitions.
type Scheduler struct {
	game   GameService
	opts   Options
	logger *zap.Logger

	rngMu sync.Mutex
	rng   *rand.Rand
}

// New creates a scheduler. A nil location defaults to UTC.
func New(game GameService, opts Options, logger *zap.Logger) *Scheduler {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = 3 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		game:   game,
		opts:   opts,
		logger: logger.Named("scheduler"),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Run blocks until ctx is cancelled, firing daily beats and deadline sweeps.
func (s *Scheduler) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	wg.Add(3)

	go func() {
		defer wg.Done()
		s.runDaily(ctx, s.opts.MorningHour, "morning")
	}()
	go func() {
		defer wg.Done()
		s.runDaily(ctx, s.opts.EveningHour, "evening")
	}()
	go func() {
		defer wg.Done()
		s.runSweep(ctx)
	}()

	wg.Wait()
	return ctx.Err()
}

// runDaily fires once per day at the given local hour.
func (s *Scheduler) runDaily(ctx context.Context, hour int, tag string) {
	for {
		wait := time.Until(s.nextOccurrence(time.Now(), hour))
		s.logger.Debug("daily trigger armed",
			zap.String("tag", tag), zap.Duration("in", wait))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		s.fireBeat(ctx, tag)
	}
}

// fireBeat creates a situation in every known chat, each after its own
// random jitter delay. Chats unknown at fire time are simply not covered;
// the next beat will see them.
func (s *Scheduler) fireBeat(ctx context.Context, tag string) {
	chats := s.game.KnownChats()
	s.logger.Info("daily beat", zap.String("tag", tag), zap.Int("chats", len(chats)))

	var wg sync.WaitGroup
	for _, chatID := range chats {
		delay := s.jitter()
		wg.Add(1)
		go func(chatID int64, delay time.Duration) {
			defer wg.Done()
			timer := time.NewTimer(delay)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
			}
			if err := s.game.CreateSituation(ctx, chatID, tag); err != nil {
				s.logger.Warn("scheduled situation failed",
					zap.Int64("chat_id", chatID), zap.String("tag", tag), zap.Error(err))
			}
		}(chatID, delay)
	}
	wg.Wait()
}

func (s *Scheduler) jitter() time.Duration {
	if s.opts.Jitter <= 0 {
		return 0
	}
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return time.Duration(s.rng.Int63n(int64(s.opts.Jitter)))
}

// nextOccurrence computes the next wall-clock moment the given local hour
// comes around.
func (s *Scheduler) nextOccurrence(now time.Time, hour int) time.Time {
	local := now.In(s.opts.Location)
	next := time.Date(local.Year(), local.Month(), local.Day(), hour, 0, 0, 0, s.opts.Location)
	if !next.After(local) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// runSweep periodically closes windows whose deadline has passed. The
// engine re-checks live state under its own guard, so a sweep racing a
// quota or manual closure is harmless.
func (s *Scheduler) runSweep(ctx context.Context) {
	ticker := time.NewTicker(s.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.game.CloseDueSituations(ctx, now)
		}
	}
}
