// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jeranaias/pulsechat/internal/model"
)

func TestWatcherReloadsOnExternalRewrite(t *testing.T) {
	dir := t.TempDir()

	s := New(dir)
	var reloads atomic.Int32
	w, err := NewWatcher(s, 50*time.Millisecond, func() {
		reloads.Add(1)
	})
	require.NoError(t, err)
	defer w.Close()
	go w.Watch()

	// Another process rewrites the same history file.
	other := New(dir)
	conv := other.Create()
	other.AppendMessage(conv.ID, model.NewUserMessage("written elsewhere"))

	require.Eventually(t, func() bool {
		return reloads.Load() > 0 && s.Len() == 1
	}, 3*time.Second, 20*time.Millisecond, "watcher never picked up the rewrite")

	got := s.Get(conv.ID)
	require.NotNil(t, got)
	require.Equal(t, "written elsewhere", got.Messages[0].Content)
}

func TestWatcherIgnoresUnrelatedFiles(t *testing.T) {
	dir := t.TempDir()

	s := New(dir)
	var reloads atomic.Int32
	w, err := NewWatcher(s, 20*time.Millisecond, func() {
		reloads.Add(1)
	})
	require.NoError(t, err)
	defer w.Close()
	go w.Watch()

	// A sibling file in the watched directory must not trigger a reload.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("unrelated"), 0644))

	time.Sleep(200 * time.Millisecond)
	require.Zero(t, reloads.Load())
}

func TestWatcherCloseStopsLoop(t *testing.T) {
	s := New(t.TempDir())
	w, err := NewWatcher(s, 20*time.Millisecond, nil)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		w.Watch()
		close(done)
	}()

	require.NoError(t, w.Close())

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return after Close")
	}
}
