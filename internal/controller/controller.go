package controller

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"AssistChat/internal/completion"
	"AssistChat/internal/session"
)

// HistoryWindow is how many prior messages accompany a new user message.
const HistoryWindow = 10

// State is the controller's request state
type State int

const (
	Idle State = iota
	Sending
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Sending:
		return "sending"
	default:
		return "unknown"
	}
}

// Snapshot is a consistent view of the conversation. Version increases
// with every change, so a newer snapshot always has a larger Version.
type Snapshot struct {
	Version  uint64            `json:"version"`
	Messages []session.Message `json:"messages"`
	Loading  bool              `json:"loading"`
}

// Store is the persistence the controller writes through.
type Store interface {
	Load() session.Session
	Save(messages []session.Message) error
	Clear(current []session.Message) session.Session
}

// Controller owns one conversation: it appends user messages, asks the
// completer for replies and keeps at most one request in flight.
type Controller struct {
	store     Store
	completer completion.Completer
	logger    *slog.Logger

	mu          sync.Mutex
	messages    []session.Message
	state       State
	version     uint64
	subscribers []func(Snapshot)

	// delivery state, guarded by notifyMu
	notifyMu   sync.Mutex
	pending    Snapshot
	delivering bool
}

// New restores the conversation from store.
func New(store Store, completer completion.Completer, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		store:     store,
		completer: completer,
		logger:    logger,
		messages:  store.Load().Messages,
	}
}

// Subscribe registers fn to receive a snapshot after every change. fn is
// called without the controller lock held and must not block for long.
// Deliveries are serialised and never go backwards: when changes race, fn
// may skip intermediate snapshots but always ends on the latest one.
func (c *Controller) Subscribe(fn func(Snapshot)) {
	c.mu.Lock()
	c.subscribers = append(c.subscribers, fn)
	c.mu.Unlock()
}

// Submit sends text as the next user message and waits for the reply.
// It returns false without side effects when text is blank or another
// submission is still in flight. Provider failures become an assistant
// message in the conversation; they are never returned.
func (c *Controller) Submit(ctx context.Context, text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}

	c.mu.Lock()
	if c.state == Sending {
		c.mu.Unlock()
		c.logger.Debug("submit rejected, request in flight")
		return false
	}
	userMsg := session.NewMessage(session.RoleUser, text)
	window := contextWindow(c.messages, userMsg)
	c.messages = append(c.messages, userMsg)
	c.state = Sending
	c.persistLocked()
	snap := c.changedLocked()
	c.mu.Unlock()

	defer c.release()
	c.notify(snap)

	reply, err := c.completer.Complete(ctx, window)
	if err != nil {
		c.logger.Warn("completion failed", "error", err)
		reply = session.NewMessage(session.RoleAssistant, "Error: "+failureMessage(err))
	}

	c.mu.Lock()
	c.messages = append(c.messages, reply)
	c.persistLocked()
	c.mu.Unlock()
	return true
}

// Clear resets the conversation to a single acknowledgement. It does not
// wait for or cancel an in-flight submission.
func (c *Controller) Clear() {
	c.mu.Lock()
	c.messages = c.store.Clear(c.messages).Messages
	snap := c.changedLocked()
	c.mu.Unlock()

	c.logger.Info("chat history cleared")
	c.notify(snap)
}

// Messages returns a copy of the conversation.
func (c *Controller) Messages() []session.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return copyMessages(c.messages)
}

// Loading reports whether a submission is in flight.
func (c *Controller) Loading() bool {
	return c.State() == Sending
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// release returns the controller to Idle and publishes the final state.
func (c *Controller) release() {
	c.mu.Lock()
	c.state = Idle
	snap := c.changedLocked()
	c.mu.Unlock()
	c.notify(snap)
}

func (c *Controller) persistLocked() {
	if err := c.store.Save(c.messages); err != nil {
		c.logger.Error("failed to save chat history", "error", err)
	}
}

func (c *Controller) snapshotLocked() Snapshot {
	return Snapshot{
		Version:  c.version,
		Messages: copyMessages(c.messages),
		Loading:  c.state == Sending,
	}
}

// changedLocked bumps the version and returns the snapshot to publish.
func (c *Controller) changedLocked() Snapshot {
	c.version++
	return c.snapshotLocked()
}

// notify publishes snap to subscribers. Only one goroutine delivers at a
// time; a snapshot arriving meanwhile is handed to that goroutine and
// replaces any older pending one. Stale snapshots are dropped.
func (c *Controller) notify(snap Snapshot) {
	c.notifyMu.Lock()
	if snap.Version <= c.pending.Version {
		c.notifyMu.Unlock()
		return
	}
	c.pending = snap
	if c.delivering {
		c.notifyMu.Unlock()
		return
	}
	c.delivering = true

	for {
		next := c.pending
		c.notifyMu.Unlock()

		c.mu.Lock()
		subs := make([]func(Snapshot), len(c.subscribers))
		copy(subs, c.subscribers)
		c.mu.Unlock()

		for _, fn := range subs {
			fn(next)
		}

		c.notifyMu.Lock()
		if c.pending.Version == next.Version {
			c.delivering = false
			c.notifyMu.Unlock()
			return
		}
	}
}

// contextWindow returns the last HistoryWindow messages of history followed by next.
func contextWindow(history []session.Message, next session.Message) []session.Message {
	start := 0
	if len(history) > HistoryWindow {
		start = len(history) - HistoryWindow
	}
	window := make([]session.Message, 0, len(history)-start+1)
	window = append(window, history[start:]...)
	return append(window, next)
}

func failureMessage(err error) string {
	var perr *completion.ProviderError
	if errors.As(err, &perr) {
		return perr.Message
	}
	return err.Error()
}

func copyMessages(messages []session.Message) []session.Message {
	copied := make([]session.Message, len(messages))
	copy(copied, messages)
	return copied
}
