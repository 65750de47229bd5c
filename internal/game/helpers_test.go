package game

import (
	"context"
	"errors"
	"sync"
	"time"

	"consigliere/internal/narrator"
)

// memStore is an in-memory StateStore with injectable failures.
type memStore struct {
	mu     sync.Mutex
	docs   map[int64][]byte
	getErr error
	putErr error
	gets   int
	puts   int
}

func newMemStore() *memStore {
	return &memStore{docs: make(map[int64][]byte)}
}

func (s *memStore) Get(_ context.Context, chatID int64) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets++
	if s.getErr != nil {
		return nil, false, s.getErr
	}
	doc, ok := s.docs[chatID]
	return doc, ok, nil
}

func (s *memStore) Put(_ context.Context, chatID int64, doc []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.puts++
	if s.putErr != nil {
		return s.putErr
	}
	cp := make([]byte, len(doc))
	copy(cp, doc)
	s.docs[chatID] = cp
	return nil
}

func (s *memStore) Keys(_ context.Context) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int64, 0, len(s.docs))
	for id := range s.docs {
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *memStore) failPuts(err error) {
	s.mu.Lock()
	s.putErr = err
	s.mu.Unlock()
}

// fakeNarrator records every prompt and replays scripted outputs.
type fakeNarrator struct {
	mu      sync.Mutex
	prompts [][]narrator.Message
	reply   string
	err     error
	block   chan struct{} // when set, Generate waits for a close
}

func (f *fakeNarrator) Generate(ctx context.Context, msgs []narrator.Message) (string, error) {
	f.mu.Lock()
	cp := make([]narrator.Message, len(msgs))
	copy(cp, msgs)
	f.prompts = append(f.prompts, cp)
	reply, err, block := f.reply, f.err, f.block
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err != nil {
		return "", err
	}
	if reply == "" {
		reply = "generated text"
	}
	return reply, nil
}

func (f *fakeNarrator) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

func (f *fakeNarrator) lastPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.prompts) == 0 {
		return ""
	}
	last := f.prompts[len(f.prompts)-1]
	return last[len(last)-1].Content
}

// fakeChannel records outbound messages.
type sentMessage struct {
	chatID  int64
	text    string
	buttons [][]Button
}

type fakeChannel struct {
	mu      sync.Mutex
	sent    []sentMessage
	nextID  int64
	roster  int
	sendErr error
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{nextID: 1, roster: 10}
}

func (c *fakeChannel) SendMessage(_ context.Context, chatID int64, text string, opts *SendOptions) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return 0, c.sendErr
	}
	id := c.nextID
	c.nextID++
	msg := sentMessage{chatID: chatID, text: text}
	if opts != nil {
		msg.buttons = opts.Buttons
	}
	c.sent = append(c.sent, msg)
	return id, nil
}

func (c *fakeChannel) ReplyTo(_ context.Context, chatID, _ int64, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, sentMessage{chatID: chatID, text: text})
	return nil
}

func (c *fakeChannel) RosterSize(_ context.Context, _ int64) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.roster <= 0 {
		return 0, errors.New("roster unavailable")
	}
	return c.roster, nil
}

func (c *fakeChannel) sentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

func (c *fakeChannel) lastSent() sentMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.sent) == 0 {
		return sentMessage{}
	}
	return c.sent[len(c.sent)-1]
}

// testEngine wires an engine over in-memory fakes with fast timings.
func testEngine(store StateStore) (*Engine, *fakeNarrator, *fakeChannel) {
	if store == nil {
		store = newMemStore()
	}
	n := &fakeNarrator{}
	ch := newFakeChannel()
	settings := Settings{
		ResponseWindow: time.Hour,
		ResponseQuota:  3,
		GraceDelay:     20 * time.Millisecond,
		VoteWindow:     time.Hour,
		HistoryContext: 5,
		DialogContext:  8,
		SidelineChance: 0, // deterministic unless a test opts in
		SidelineDays:   2,
	}
	e := NewEngine(NewManager(store, nil), n, ch, NewCatalog("", nil), settings, nil)
	return e, n, ch
}
