// Package chat drives a conversation: thread lifecycle, optimistic sends and
// loading past threads.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"racing-insights/internal/api"
	"racing-insights/internal/history"
	"racing-insights/internal/session"
)

// ErrorReplyText is the assistant turn shown when a send fails.
const ErrorReplyText = "Sorry, I couldn't process your request. Please try again."

// ErrStaleResult is returned when a reply arrives for a thread the user has
// since left. The reply is dropped.
var ErrStaleResult = errors.New("result belongs to a thread that is no longer active")

// HistorySource fetches stored chat records.
type HistorySource interface {
	FetchHistory(ctx context.Context, q api.HistoryQuery) ([]api.HistoryRecord, error)
}

// Backend is the part of the API client the controller needs.
type Backend interface {
	HistorySource
	SendMessage(ctx context.Context, text, threadID string) (*api.ChatReply, error)
}

// State of the active thread.
type State int

const (
	StateIdle State = iota
	StateAwaitingResponse
)

func (s State) String() string {
	switch s {
	case StateAwaitingResponse:
		return "awaiting_response"
	default:
		return "idle"
	}
}

// HistoryChanged is published after a reply is stored by the backend.
type HistoryChanged struct {
	ThreadID string
}

// Controller owns the transcript of the active thread. It is safe for
// concurrent use; backend calls run without holding the lock.
type Controller struct {
	backend    Backend
	session    *session.Store
	reconciler *history.Reconciler
	logger     zerolog.Logger
	now        func() time.Time

	mu          sync.Mutex
	threadID    string
	generation  uint64
	transcript  []history.Turn
	pending     int
	showWelcome bool
	loadErr     error
	subscribers map[int]chan HistoryChanged
	nextSubID   int
}

// Config holds the dependencies of a Controller.
type Config struct {
	Backend    Backend
	Session    *session.Store
	Reconciler *history.Reconciler
	Logger     *zerolog.Logger
	Clock      func() time.Time
}

// NewController creates a controller positioned on the session's active
// thread (if any) with an empty transcript.
func NewController(cfg *Config) (*Controller, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.Backend == nil {
		return nil, fmt.Errorf("backend is required")
	}
	if cfg.Session == nil {
		return nil, fmt.Errorf("session is required")
	}

	c := &Controller{
		backend:     cfg.Backend,
		session:     cfg.Session,
		reconciler:  cfg.Reconciler,
		logger:      zerolog.Nop(),
		now:         time.Now,
		showWelcome: true,
		subscribers: map[int]chan HistoryChanged{},
	}
	if c.reconciler == nil {
		c.reconciler = history.Default
	}
	if cfg.Logger != nil {
		c.logger = *cfg.Logger
	}
	if cfg.Clock != nil {
		c.now = cfg.Clock
	}
	if id, ok := cfg.Session.ActiveThreadID(); ok {
		c.threadID = id
	}
	return c, nil
}

// StartNewThread switches to a freshly minted thread with an empty transcript.
func (c *Controller) StartNewThread() string {
	id := c.session.NewThread()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.generation++
	c.threadID = id
	c.transcript = nil
	c.pending = 0
	c.showWelcome = true
	c.loadErr = nil

	c.logger.Debug().Str("thread_id", id).Msg("started new thread")
	return id
}

// Send posts text to the active thread. The user turn is appended before
// the request; the reply (or an error turn) is appended when it returns.
// Blank text is ignored. The returned error is informational: the transcript
// already reflects the failure.
func (c *Controller) Send(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	c.mu.Lock()
	if c.threadID == "" {
		c.threadID = c.session.EnsureThreadID()
	}
	threadID := c.threadID
	generation := c.generation
	c.transcript = append(c.transcript, history.Turn{
		ID:        c.turnID("user"),
		Speaker:   history.SpeakerUser,
		Text:      text,
		Timestamp: c.now(),
	})
	c.pending++
	c.showWelcome = false
	c.mu.Unlock()

	reply, err := c.backend.SendMessage(ctx, text, threadID)

	c.mu.Lock()
	if generation != c.generation {
		if err == nil {
			// The backend stored the exchange even though it is not shown.
			c.publishLocked(HistoryChanged{ThreadID: threadID})
		}
		c.mu.Unlock()
		c.logger.Debug().Str("thread_id", threadID).Msg("dropping reply for inactive thread")
		if err != nil {
			return errors.Join(ErrStaleResult, err)
		}
		return ErrStaleResult
	}
	c.pending--

	if err != nil {
		c.transcript = append(c.transcript, history.Turn{
			ID:        c.turnID("bot-error"),
			Speaker:   history.SpeakerAssistant,
			Text:      ErrorReplyText,
			Timestamp: c.now(),
			Error:     true,
		})
		c.mu.Unlock()
		c.logger.Error().Err(err).Str("thread_id", threadID).Msg("failed to send message")
		return err
	}

	replyText := reply.Response.DisplayText()
	if replyText == "" {
		replyText = api.MissingResponse
	}
	c.transcript = append(c.transcript, history.Turn{
		ID:        c.turnID("bot"),
		Speaker:   history.SpeakerAssistant,
		Text:      replyText,
		Timestamp: c.now(),
	})
	c.publishLocked(HistoryChanged{ThreadID: threadID})
	c.mu.Unlock()

	return nil
}

// LoadThread makes threadID active and replaces the transcript with its
// history. Turns sent while the history is in flight are kept after it.
// Fetch failures leave the welcome state (unless something was sent) and
// are reported through LoadError. The only returned error is ErrStaleResult,
// when the user moved to another thread before the history arrived.
func (c *Controller) LoadThread(ctx context.Context, threadID string) error {
	c.mu.Lock()
	c.generation++
	generation := c.generation
	c.threadID = threadID
	c.transcript = nil
	c.pending = 0
	c.showWelcome = true
	c.loadErr = nil
	c.mu.Unlock()

	if threadID == "" {
		return nil
	}
	c.session.SetActiveThreadID(threadID)

	records, err := c.backend.FetchHistory(ctx, api.HistoryQuery{ThreadID: threadID})

	c.mu.Lock()
	defer c.mu.Unlock()

	if generation != c.generation {
		c.logger.Debug().Str("thread_id", threadID).Msg("discarding stale history load")
		return ErrStaleResult
	}

	if err != nil {
		c.loadErr = err
		c.logger.Warn().Err(err).Str("thread_id", threadID).Msg("failed to load chat history")
		return nil
	}
	if len(records) == 0 {
		c.logger.Debug().Str("thread_id", threadID).Msg("no history found for thread")
		return nil
	}

	// The transcript was cleared when the load began, so anything in it now
	// was sent while the history was in flight.
	sent := c.transcript
	c.transcript = append(c.reconciler.ToTranscript(records), sent...)
	c.showWelcome = false
	return nil
}

// Retry reloads the active thread.
func (c *Controller) Retry(ctx context.Context) error {
	return c.LoadThread(ctx, c.ThreadID())
}

// Transcript returns a copy of the active thread's turns.
func (c *Controller) Transcript() []history.Turn {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]history.Turn, len(c.transcript))
	copy(out, c.transcript)
	return out
}

// ThreadID returns the active thread.
func (c *Controller) ThreadID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.threadID
}

// State reports whether a reply is outstanding.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending > 0 {
		return StateAwaitingResponse
	}
	return StateIdle
}

// ShowWelcome reports whether the presentation layer should show the empty state.
func (c *Controller) ShowWelcome() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.showWelcome
}

// LoadError returns the error of the last failed LoadThread.
func (c *Controller) LoadError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loadErr
}

// Subscribe returns a channel of history-changed notifications and a
// function that unsubscribes. Slow subscribers miss notifications rather
// than block the controller.
func (c *Controller) Subscribe() (<-chan HistoryChanged, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextSubID
	c.nextSubID++
	ch := make(chan HistoryChanged, 1)
	c.subscribers[id] = ch

	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if sub, ok := c.subscribers[id]; ok {
			delete(c.subscribers, id)
			close(sub)
		}
	}
}

func (c *Controller) turnID(prefix string) string {
	return fmt.Sprintf("%s-%d-%s", prefix, c.now().UnixMilli(), session.NewSuffix(7))
}

func (c *Controller) publishLocked(ev HistoryChanged) {
	for _, ch := range c.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
}
