// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jeranaias/pulsechat/internal/api"
	"github.com/jeranaias/pulsechat/internal/model"
	"github.com/jeranaias/pulsechat/internal/store"
)

func newTestConsumer(t *testing.T, handler http.HandlerFunc) (*Consumer, *store.Store) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	st := store.New(t.TempDir())
	client := api.NewClientWithConfig(&api.ClientConfig{BaseURL: srv.URL})
	return New(st, client), st
}

// drain collects all events until the channel closes.
func drain(t *testing.T, events <-chan Event) []Event {
	t.Helper()
	var out []Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatalf("events channel never closed; got %d events", len(out))
		}
	}
}

func streamHandler(frames ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		for _, f := range frames {
			w.Write([]byte(f + "\n"))
		}
	}
}

func TestSendAppendsOneUserOneAssistant(t *testing.T) {
	consumer, st := newTestConsumer(t, streamHandler(
		`data: {"content":"Recursion is"}`,
		`data: {"content":" fun."}`,
	))

	events, err := consumer.Send(context.Background(), "what is recursion?")
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	got := drain(t, events)

	if got[0].Kind != EventStarted {
		t.Fatalf("first event = %v, want started", got[0].Kind)
	}
	last := got[len(got)-1]
	if last.Kind != EventDone {
		t.Fatalf("last event = %v, want done", last.Kind)
	}

	conv := st.Active()
	if conv == nil {
		t.Fatalf("no active conversation")
	}
	if conv.MessageCount() != 2 {
		t.Fatalf("message count = %d, want 2", conv.MessageCount())
	}
	if conv.Messages[0].Role != model.RoleUser || conv.Messages[1].Role != model.RoleAssistant {
		t.Errorf("message order wrong: %v, %v", conv.Messages[0].Role, conv.Messages[1].Role)
	}
	if conv.Messages[0].Content != "what is recursion?" {
		t.Errorf("user content = %q", conv.Messages[0].Content)
	}

	assistant := conv.Messages[1]
	if assistant.IsStreaming {
		t.Errorf("assistant message not terminal")
	}
	if assistant.DisplayContent() != "Recursion is fun." {
		t.Errorf("assistant content = %q", assistant.DisplayContent())
	}
}

func TestSendSetsTitleFromFirstMessage(t *testing.T) {
	consumer, st := newTestConsumer(t, streamHandler(`data: {"content":"hi"}`))

	events, err := consumer.Send(context.Background(), "name this conversation")
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	drain(t, events)

	conv := st.Active()
	if conv.Title != "name this conversation" {
		t.Errorf("title = %q", conv.Title)
	}
}

func TestSendRejectsEmptyMessage(t *testing.T) {
	consumer, st := newTestConsumer(t, streamHandler())

	for _, input := range []string{"", "   ", "\n\t"} {
		if _, err := consumer.Send(context.Background(), input); !errors.Is(err, ErrEmptyMessage) {
			t.Errorf("Send(%q) = %v, want ErrEmptyMessage", input, err)
		}
	}
	if st.Len() != 0 {
		t.Errorf("rejected sends created conversations")
	}
}

func TestSendRejectsWhileBusy(t *testing.T) {
	release := make(chan struct{})
	consumer, _ := newTestConsumer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`data: {"content":"slow"}` + "\n"))
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-release
	})

	events, err := consumer.Send(context.Background(), "first")
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	// Wait until the consumer reports in-flight state.
	deadline := time.Now().Add(time.Second)
	for !consumer.IsSending() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	if _, err := consumer.Send(context.Background(), "second"); !errors.Is(err, ErrBusy) {
		t.Errorf("concurrent Send = %v, want ErrBusy", err)
	}

	close(release)
	drain(t, events)

	if consumer.State() != StateIdle {
		t.Errorf("state = %v after completion, want idle", consumer.State())
	}
}

func TestSendErrorFrameWrapsMessage(t *testing.T) {
	consumer, st := newTestConsumer(t, streamHandler(
		`data: {"content":"partial"}`,
		`data: {"error":"Rate limit exceeded"}`,
	))

	events, err := consumer.Send(context.Background(), "trigger failure")
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	got := drain(t, events)

	last := got[len(got)-1]
	if last.Kind != EventFailed {
		t.Fatalf("last event = %v, want failed", last.Kind)
	}
	if last.Err == nil {
		t.Errorf("failed event missing error")
	}

	assistant := st.Active().MessageByID(last.MessageID)
	if assistant.IsStreaming {
		t.Errorf("failed message not terminal")
	}
	if assistant.DisplayContent() != "Error: Rate limit exceeded" {
		t.Errorf("content = %q", assistant.DisplayContent())
	}
}

func TestSendConnectionFailureWrapsMessage(t *testing.T) {
	st := store.New(t.TempDir())
	client := api.NewClientWithConfig(&api.ClientConfig{BaseURL: "http://127.0.0.1:1"})
	consumer := New(st, client)

	events, err := consumer.Send(context.Background(), "unreachable")
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	got := drain(t, events)

	last := got[len(got)-1]
	if last.Kind != EventFailed {
		t.Fatalf("last event = %v, want failed", last.Kind)
	}

	assistant := st.Active().MessageByID(last.MessageID)
	if assistant.IsStreaming {
		t.Errorf("message not terminal after connection failure")
	}
	if !strings.HasPrefix(assistant.DisplayContent(), "Error: ") {
		t.Errorf("content = %q, want error-wrapped text", assistant.DisplayContent())
	}
}

func TestCancelKeepsPartialContent(t *testing.T) {
	firstFrameSent := make(chan struct{})
	stall := make(chan struct{})
	consumer, st := newTestConsumer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`data: {"content":"partial answer"}` + "\n"))
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		close(firstFrameSent)
		<-stall
	})
	defer close(stall)

	events, err := consumer.Send(context.Background(), "long question")
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	go func() {
		<-firstFrameSent
		// Give the delta time to land in the store before aborting.
		time.Sleep(50 * time.Millisecond)
		consumer.Cancel()
	}()

	got := drain(t, events)
	last := got[len(got)-1]
	if last.Kind != EventDone {
		t.Fatalf("last event = %v, want done (cancellation is cooperative)", last.Kind)
	}
	if !last.Canceled {
		t.Errorf("done event not marked canceled")
	}

	assistant := st.Active().MessageByID(last.MessageID)
	if assistant.IsStreaming {
		t.Errorf("canceled message not terminal")
	}
	if assistant.DisplayContent() != "partial answer" {
		t.Errorf("content = %q, want partial kept", assistant.DisplayContent())
	}
}

func TestSendHistoryExcludesCurrentTurn(t *testing.T) {
	var bodies []api.ChatRequest
	consumer, _ := newTestConsumer(t, func(w http.ResponseWriter, r *http.Request) {
		var req api.ChatRequest
		json.NewDecoder(r.Body).Decode(&req)
		bodies = append(bodies, req)
		w.Write([]byte(`data: {"content":"answer"}` + "\n"))
	})

	events, _ := consumer.Send(context.Background(), "first")
	drain(t, events)
	events, _ = consumer.Send(context.Background(), "second")
	drain(t, events)

	if len(bodies) != 2 {
		t.Fatalf("requests = %d", len(bodies))
	}
	if len(bodies[0].Messages) != 0 {
		t.Errorf("first request history = %+v, want empty", bodies[0].Messages)
	}
	// Second request sees the completed first turn only.
	if len(bodies[1].Messages) != 2 {
		t.Fatalf("second request history length = %d, want 2", len(bodies[1].Messages))
	}
	if bodies[1].Messages[0].Content != "first" || bodies[1].Messages[1].Content != "answer" {
		t.Errorf("history = %+v", bodies[1].Messages)
	}
	if bodies[1].Message != "second" {
		t.Errorf("message = %q", bodies[1].Message)
	}
}

func TestEventSequence(t *testing.T) {
	consumer, _ := newTestConsumer(t, streamHandler(
		`data: {"content":"a"}`,
		`data: {"content":"b"}`,
	))

	events, err := consumer.Send(context.Background(), "ordered")
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	got := drain(t, events)

	if got[0].Kind != EventStarted {
		t.Errorf("events must begin with started")
	}
	var deltas []string
	doneCount := 0
	for _, ev := range got[1:] {
		switch ev.Kind {
		case EventDelta:
			deltas = append(deltas, ev.Delta)
		case EventDone:
			doneCount++
		case EventStarted:
			t.Errorf("duplicate started event")
		}
	}
	if strings.Join(deltas, "") != "ab" {
		t.Errorf("deltas = %v", deltas)
	}
	if doneCount != 1 {
		t.Errorf("done events = %d, want exactly 1", doneCount)
	}
	if got[len(got)-1].Kind != EventDone {
		t.Errorf("done must be the final event")
	}
}
