// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat drives a single "assistant is responding" operation from
// user input to a finalized assistant message.
package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/jeranaias/pulsechat/internal/api"
	"github.com/jeranaias/pulsechat/internal/model"
	"github.com/jeranaias/pulsechat/internal/store"
)

// =============================================================================
// ERRORS
// =============================================================================

// ConsumerError represents a send precondition failure.
type ConsumerError struct {
	Message string
}

func (e *ConsumerError) Error() string {
	return e.Message
}

// Is implements errors.Is support.
func (e *ConsumerError) Is(target error) bool {
	t, ok := target.(*ConsumerError)
	if !ok {
		return false
	}
	return e.Message == t.Message
}

// Precondition failures. These reject the send before any network call and
// never produce a user-visible error banner.
var (
	ErrEmptyMessage = &ConsumerError{Message: "message is empty"}
	ErrBusy         = &ConsumerError{Message: "another send is already in progress"}
	ErrRateLimited  = &ConsumerError{Message: "sending too fast"}
)

// =============================================================================
// STATE MACHINE
// =============================================================================

// State is the consumer's send state. Transitions are guarded by a mutex so
// the "one send in flight" rule is enforced in one place, synchronously,
// rather than by an advisory flag.
type State int

const (
	StateIdle State = iota
	StateSending
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	default:
		return "unknown"
	}
}

// =============================================================================
// EVENTS
// =============================================================================

// EventKind tags consumer events delivered to the host UI.
type EventKind int

const (
	// EventStarted reports the IDs of the appended user and assistant
	// messages before any network activity.
	EventStarted EventKind = iota

	// EventDelta reports one appended content delta.
	EventDelta

	// EventDone reports normal completion (or cooperative cancellation
	// with partial content kept).
	EventDone

	// EventFailed reports a transport or server error. The assistant
	// message already holds the error-wrapped text.
	EventFailed
)

// Event is one step of a send operation.
type Event struct {
	Kind           EventKind
	ConversationID string
	UserMessageID  string
	MessageID      string // assistant message
	Delta          string
	Err            error
	Canceled       bool
}

// =============================================================================
// STREAM CONSUMER
// =============================================================================

// Consumer owns the in-flight send operation. Only one send may be in
// flight at a time; the state machine rejects concurrent sends.
type Consumer struct {
	mu     sync.Mutex
	state  State
	cancel context.CancelFunc

	store   *store.Store
	client  *api.Client
	limiter *rate.Limiter
}

// New creates a consumer bound to a store and API client.
func New(s *store.Store, c *api.Client) *Consumer {
	return &Consumer{
		store:  s,
		client: c,
		// Advisory client-side limit: bursts of three, then one send per
		// half second. Keeps an accidental key-repeat from hammering the
		// endpoint; the state machine is the real guard.
		limiter: rate.NewLimiter(rate.Every(500*time.Millisecond), 3),
	}
}

// State returns the current send state.
func (c *Consumer) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsSending reports whether a send is in flight.
func (c *Consumer) IsSending() bool {
	return c.State() == StateSending
}

// Cancel aborts the in-flight send, if any. The read loop is abandoned, the
// assistant message is finalized with whatever content arrived, and the
// connection is released.
func (c *Consumer) Cancel() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Send drives one complete send operation. Preconditions (empty input,
// send already in flight, rate limit) are checked synchronously and
// returned as errors before any state changes.
//
// On success it returns a channel of events: EventStarted, zero or more
// EventDelta, then exactly one EventDone or EventFailed, after which the
// channel is closed. Whatever happens, the assistant message ends in a
// terminal (non-streaming) state.
func (c *Consumer) Send(ctx context.Context, text string) (<-chan Event, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyMessage
	}

	// Guarded transition: idle -> sending, atomically with the check.
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return nil, ErrBusy
	}
	if !c.limiter.Allow() {
		c.mu.Unlock()
		return nil, ErrRateLimited
	}
	sendCtx, cancel := context.WithCancel(ctx)
	c.state = StateSending
	c.cancel = cancel
	c.mu.Unlock()

	events := make(chan Event, 16)

	go func() {
		defer close(events)
		defer func() {
			cancel()
			c.mu.Lock()
			c.state = StateIdle
			c.cancel = nil
			c.mu.Unlock()
		}()

		c.run(sendCtx, text, events)
	}()

	return events, nil
}

// run executes the send against the store and the wire.
func (c *Consumer) run(ctx context.Context, text string, events chan<- Event) {
	// Ensure an active conversation exists.
	convID := c.store.ActiveID()
	if convID == "" {
		convID = c.store.Create().ID
	}

	// Snapshot prior messages before this turn is appended. Streaming
	// flags are stripped by construction: the wire carries role+content.
	history := c.wireHistory(convID)

	userMsg := model.NewUserMessage(text)
	c.store.AppendMessage(convID, userMsg)

	assistantMsg := model.NewAssistantMessage()
	c.store.AppendMessage(convID, assistantMsg)

	events <- Event{
		Kind:           EventStarted,
		ConversationID: convID,
		UserMessageID:  userMsg.ID,
		MessageID:      assistantMsg.ID,
	}

	req := api.ChatRequest{
		Messages: history,
		Message:  text,
	}

	err := c.client.ChatStream(ctx, req, func(delta string) {
		c.store.UpdateMessage(convID, assistantMsg.ID, store.MessagePatch{AppendDelta: delta})
		events <- Event{
			Kind:           EventDelta,
			ConversationID: convID,
			MessageID:      assistantMsg.ID,
			Delta:          delta,
		}
	})

	streaming := false
	switch {
	case err == nil:
		c.store.UpdateMessage(convID, assistantMsg.ID, store.MessagePatch{Streaming: &streaming})
		events <- Event{Kind: EventDone, ConversationID: convID, MessageID: assistantMsg.ID}

	case isCanceled(err):
		// Cooperative cancellation keeps whatever content arrived.
		c.store.UpdateMessage(convID, assistantMsg.ID, store.MessagePatch{Streaming: &streaming})
		events <- Event{Kind: EventDone, ConversationID: convID, MessageID: assistantMsg.ID, Canceled: true}

	default:
		// Transport failures and server error frames are handled
		// identically: the error text becomes the permanent record in the
		// conversation and the transient notice for the UI.
		content := "Error: " + userFacing(err)
		c.store.UpdateMessage(convID, assistantMsg.ID, store.MessagePatch{Content: &content, Streaming: &streaming})
		events <- Event{Kind: EventFailed, ConversationID: convID, MessageID: assistantMsg.ID, Err: err}
	}
}

// wireHistory converts the conversation's messages to wire form.
func (c *Consumer) wireHistory(convID string) []api.Message {
	conv := c.store.Get(convID)
	if conv == nil {
		return nil
	}
	msgs := make([]api.Message, 0, len(conv.Messages))
	for _, msg := range conv.Messages {
		msgs = append(msgs, api.Message{
			Role:    msg.Role.String(),
			Content: msg.DisplayContent(),
		})
	}
	return msgs
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// isCanceled reports whether the error came from cooperative cancellation.
func isCanceled(err error) bool {
	var clientErr *api.ClientError
	if errors.As(err, &clientErr) {
		return clientErr.Type == api.ErrTypeCanceled
	}
	return false
}

// userFacing extracts the message to show the user for a failed send.
func userFacing(err error) string {
	if err == nil {
		return "generation failed"
	}
	var clientErr *api.ClientError
	if errors.As(err, &clientErr) && clientErr.Message != "" {
		return clientErr.Message
	}
	return err.Error()
}

// SendTimeout wraps Send with an overall deadline, for hosts that want a
// bounded operation rather than relying only on the stream idle watchdog.
func (c *Consumer) SendTimeout(ctx context.Context, text string, timeout time.Duration) (<-chan Event, context.CancelFunc, error) {
	sendCtx, cancel := context.WithTimeout(ctx, timeout)
	events, err := c.Send(sendCtx, text)
	if err != nil {
		cancel()
		return nil, nil, err
	}
	return events, cancel, nil
}
