// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func testClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := NewClientWithConfig(&ClientConfig{
		BaseURL:     srv.URL,
		IdleTimeout: 2 * time.Second,
	})
	return client, srv
}

func TestChatStreamSuccess(t *testing.T) {
	var gotReq ChatRequest
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("bad request body: %v", err)
		}

		frames := []string{
			`data: {"content":"Hello"}`,
			`data: {"content":", "}`,
			`data: {"content":"world."}`,
		}
		for _, f := range frames {
			w.Write([]byte(f + "\n"))
		}
	})

	req := ChatRequest{
		Messages: []Message{{Role: "user", Content: "earlier"}},
		Message:  "say hello",
	}

	var got strings.Builder
	err := client.ChatStream(context.Background(), req, func(delta string) {
		got.WriteString(delta)
	})
	if err != nil {
		t.Fatalf("ChatStream failed: %v", err)
	}

	if got.String() != "Hello, world." {
		t.Errorf("content = %q", got.String())
	}
	if gotReq.Message != "say hello" {
		t.Errorf("request message = %q", gotReq.Message)
	}
	if len(gotReq.Messages) != 1 || gotReq.Messages[0].Content != "earlier" {
		t.Errorf("request history = %+v", gotReq.Messages)
	}
}

func TestChatStreamErrorFrame(t *testing.T) {
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`data: {"content":"partial"}` + "\n"))
		w.Write([]byte(`data: {"error":"Rate limit exceeded"}` + "\n"))
	})

	var got strings.Builder
	err := client.ChatStream(context.Background(), ChatRequest{Message: "x"}, func(delta string) {
		got.WriteString(delta)
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !IsServerError(err) {
		t.Errorf("error = %v, want server error", err)
	}
	if !strings.Contains(err.Error(), "Rate limit exceeded") {
		t.Errorf("error message = %q", err.Error())
	}
	if got.String() != "partial" {
		t.Errorf("content = %q, deltas before the error frame must be kept", got.String())
	}
}

func TestChatStreamNon2xxWithErrorBody(t *testing.T) {
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"error": "model overloaded"})
	})

	err := client.ChatStream(context.Background(), ChatRequest{Message: "x"}, func(string) {
		t.Errorf("delta delivered on failed request")
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !IsServerError(err) {
		t.Errorf("error = %v, want server error", err)
	}
	if !strings.Contains(err.Error(), "model overloaded") {
		t.Errorf("server message not surfaced: %q", err.Error())
	}
}

func TestChatStreamNon2xxWithoutBody(t *testing.T) {
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	err := client.ChatStream(context.Background(), ChatRequest{Message: "x"}, func(string) {})
	if err == nil {
		t.Fatalf("expected error")
	}

	var clientErr *ClientError
	if !asClientError(err, &clientErr) || clientErr.Type != ErrTypeConnection {
		t.Errorf("error = %v, want generic connection error", err)
	}
}

func TestChatStreamUnreachable(t *testing.T) {
	client := NewClientWithConfig(&ClientConfig{
		BaseURL: "http://127.0.0.1:1", // nothing listens here
	})

	err := client.ChatStream(context.Background(), ChatRequest{Message: "x"}, func(string) {})
	if err != ErrUnreachable {
		t.Errorf("error = %v, want ErrUnreachable", err)
	}
}

func TestChatStreamIdleTimeout(t *testing.T) {
	stall := make(chan struct{})
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`data: {"content":"one"}` + "\n"))
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		// Stall without closing the connection.
		<-stall
	})
	defer close(stall)

	client.config.IdleTimeout = 100 * time.Millisecond

	start := time.Now()
	err := client.ChatStream(context.Background(), ChatRequest{Message: "x"}, func(string) {})
	if err != ErrIdleStream {
		t.Fatalf("error = %v, want ErrIdleStream", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("idle abort took %v", elapsed)
	}
	if !IsTimeout(err) {
		t.Errorf("idle stall must classify as timeout")
	}
}

func TestChatStreamCanceled(t *testing.T) {
	started := make(chan struct{})
	stall := make(chan struct{})
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`data: {"content":"one"}` + "\n"))
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		close(started)
		<-stall
	})
	defer close(stall)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	err := client.ChatStream(ctx, ChatRequest{Message: "x"}, func(string) {})
	if err == nil {
		t.Fatalf("expected cancellation error")
	}
	var clientErr *ClientError
	if !asClientError(err, &clientErr) || clientErr.Type != ErrTypeCanceled {
		t.Errorf("error = %v, want canceled", err)
	}
}

func TestChatStreamChanDeliversTerminalChunk(t *testing.T) {
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`data: {"content":"a"}` + "\n"))
		w.Write([]byte(`data: {"content":"b"}` + "\n"))
	})

	var content strings.Builder
	var terminal *StreamChunk
	for chunk := range client.ChatStreamChan(context.Background(), ChatRequest{Message: "x"}) {
		if chunk.Done {
			c := chunk
			terminal = &c
			continue
		}
		content.WriteString(chunk.Content)
	}

	if content.String() != "ab" {
		t.Errorf("content = %q", content.String())
	}
	if terminal == nil {
		t.Fatalf("no terminal chunk delivered")
	}
	if terminal.Err != nil {
		t.Errorf("terminal err = %v", terminal.Err)
	}
}

func TestGenerate(t *testing.T) {
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("path = %q", r.URL.Path)
		}
		json.NewEncoder(w).Encode(GenerateResponse{
			Success: true,
			Data:    json.RawMessage(`{"text":"generated"}`),
		})
	})

	data, err := client.Generate(context.Background(), "/api/generate", map[string]string{"topic": "go"})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	var payload struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		t.Fatalf("bad data payload: %v", err)
	}
	if payload.Text != "generated" {
		t.Errorf("text = %q", payload.Text)
	}
}

func TestGenerateFailureEnvelope(t *testing.T) {
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(GenerateResponse{Success: false, Error: "missing field"})
	})

	_, err := client.Generate(context.Background(), "/api/generate", map[string]string{})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !IsServerError(err) || !strings.Contains(err.Error(), "missing field") {
		t.Errorf("error = %v", err)
	}
}

func TestStreamClientReusedAcrossCalls(t *testing.T) {
	client, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`data: {"content":"ok"}` + "\n"))
	})

	if client.streamClient == nil {
		t.Fatalf("no stream client held on the struct")
	}
	if client.streamClient.Timeout != 0 {
		t.Errorf("stream client timeout = %v, want none", client.streamClient.Timeout)
	}

	before := client.streamClient
	for i := 0; i < 2; i++ {
		if err := client.ChatStream(context.Background(), ChatRequest{Message: "x"}, func(string) {}); err != nil {
			t.Fatalf("ChatStream #%d failed: %v", i+1, err)
		}
	}
	if client.streamClient != before {
		t.Errorf("stream client replaced between calls")
	}
}

func TestNewClientWithConfigBackfillsDefaults(t *testing.T) {
	client := NewClientWithConfig(&ClientConfig{})
	cfg := client.GetConfig()

	if cfg.BaseURL == "" || cfg.ChatPath == "" {
		t.Errorf("defaults not backfilled: %+v", cfg)
	}
	if cfg.Timeout == 0 || cfg.IdleTimeout == 0 {
		t.Errorf("timeout defaults not backfilled: %+v", cfg)
	}
}
