// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// This file implements the Bubble Tea update loop for the chat interface.

package chat

import (
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
)

// errorToastDuration is how long the error notice stays before auto-dismiss.
const errorToastDuration = 6 * time.Second

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleResize(msg)

	case tea.KeyMsg:
		return m.handleKey(msg)

	case StreamStartMsg:
		m.streaming = true
		m.streamingID = msg.MessageID
		m.streamBuf.Reset()
		m.renderer.ClearCopied()
		m.refreshConversation()
		m.syncViewport(true)
		return m, tea.Batch(waitForEvent(m.events), streamTickCmd(), m.spin.Tick)

	case StreamTokenMsg:
		// Store already holds the delta; the buffer only paces rendering.
		m.streamBuf.Write(msg.Token)
		return m, waitForEvent(m.events)

	case StreamTickMsg:
		if !m.streaming {
			return m, nil
		}
		if _, ok := m.streamBuf.Flush(); ok {
			m.refreshConversation()
			m.syncViewport(true)
		}
		return m, streamTickCmd()

	case StreamCompleteMsg:
		m.streaming = false
		m.streamingID = ""
		m.events = nil
		m.streamBuf.ForceFlush()
		m.refreshConversation()
		m.syncViewport(true)
		return m, nil

	case StreamErrorMsg:
		m.streaming = false
		m.streamingID = ""
		m.events = nil
		m.streamBuf.Reset()
		m.refreshConversation()
		m.syncViewport(true)
		if msg.Error != nil {
			m.errorToast = msg.Error.Error()
		} else {
			m.errorToast = "send failed"
		}
		return m, dismissErrorCmd()

	case StoreReloadedMsg:
		m.refreshConversation()
		m.refreshSessions()
		m.syncViewport(false)
		return m, nil

	case ErrorToastMsg:
		m.errorToast = msg.Message
		return m, dismissErrorCmd()

	case DismissErrorMsg:
		m.errorToast = ""
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		if m.streaming {
			return m, cmd
		}
		return m, nil
	}

	return m.updateComponents(msg)
}

// handleResize recomputes the layout on terminal resize.
func (m Model) handleResize(msg tea.WindowSizeMsg) (tea.Model, tea.Cmd) {
	m.width = msg.Width
	m.height = msg.Height
	m.theme.SetSize(msg.Width, msg.Height)

	contentWidth := msg.Width
	if m.opts.MaxWidth > 0 && contentWidth > m.opts.MaxWidth {
		contentWidth = m.opts.MaxWidth
	}
	m.renderer.SetMaxWidth(contentWidth)

	headerHeight := 3
	inputHeight := 3
	statusHeight := 1
	vpHeight := msg.Height - headerHeight - inputHeight - statusHeight
	if vpHeight < 1 {
		vpHeight = 1
	}

	if !m.ready {
		m.viewport = viewport.New(contentWidth, vpHeight)
		m.ready = true
	} else {
		m.viewport.Width = contentWidth
		m.viewport.Height = vpHeight
	}
	m.input.Width = contentWidth - 4

	m.syncViewport(false)
	return m, nil
}

// handleKey dispatches key events by view mode.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) {
		m.consumer.Cancel()
		return m, tea.Quit
	}

	switch m.mode {
	case viewSessions:
		return m.handleSessionsKey(msg)
	case viewConfirmDelete:
		return m.handleConfirmKey(msg)
	default:
		return m.handleChatKey(msg)
	}
}

// handleChatKey handles keys on the main chat surface.
func (m Model) handleChatKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Cancel):
		if m.streaming {
			m.consumer.Cancel()
			return m, nil
		}
		m.errorToast = ""
		return m, nil

	case key.Matches(msg, m.keys.Sessions):
		m.refreshSessions()
		m.mode = viewSessions
		return m, nil

	case key.Matches(msg, m.keys.NewChat):
		m.store.Create()
		m.renderer.ClearCopied()
		m.refreshConversation()
		m.syncViewport(false)
		return m, nil

	case key.Matches(msg, m.keys.Copy):
		return m.copyLastCode()

	case key.Matches(msg, m.keys.Submit):
		text := m.input.Value()
		cmd := m.startSend(text)
		if cmd == nil {
			// Empty input, a send already in flight, or rate limited.
			// All are silent no-ops.
			return m, nil
		}
		m.input.Reset()
		return m, cmd

	case key.Matches(msg, m.keys.PageUp), key.Matches(msg, m.keys.PageDown):
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// handleSessionsKey handles keys on the conversation list overlay.
func (m Model) handleSessionsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Dismiss), key.Matches(msg, m.keys.Sessions):
		m.mode = viewChat
		return m, nil

	case key.Matches(msg, m.keys.Up):
		if m.sessionCursor > 0 {
			m.sessionCursor--
		}
		return m, nil

	case key.Matches(msg, m.keys.Down):
		if m.sessionCursor < len(m.sessions)-1 {
			m.sessionCursor++
		}
		return m, nil

	case key.Matches(msg, m.keys.NewChat):
		m.store.Create()
		m.refreshSessions()
		m.refreshConversation()
		m.sessionCursor = 0
		m.mode = viewChat
		m.syncViewport(false)
		return m, nil

	case key.Matches(msg, m.keys.Delete):
		if len(m.sessions) > 0 {
			m.deleteTarget = m.sessions[m.sessionCursor].ID
			m.mode = viewConfirmDelete
		}
		return m, nil

	case key.Matches(msg, m.keys.Select):
		if len(m.sessions) > 0 {
			m.store.Select(m.sessions[m.sessionCursor].ID)
			m.renderer.ClearCopied()
			m.refreshConversation()
			m.syncViewport(false)
		}
		m.mode = viewChat
		return m, nil
	}

	return m, nil
}

// handleConfirmKey handles the delete confirmation overlay. Deletion is
// unconditional once confirmed; this prompt is the only guard.
func (m Model) handleConfirmKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "y", "Y", "enter":
		m.store.Delete(m.deleteTarget)
		m.deleteTarget = ""
		m.refreshSessions()
		m.refreshConversation()
		m.syncViewport(false)
		m.mode = viewSessions
		return m, nil

	case "n", "N", "esc":
		m.deleteTarget = ""
		m.mode = viewSessions
		return m, nil
	}
	return m, nil
}

// updateComponents forwards unrecognized messages to the child components.
func (m Model) updateComponents(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	var cmd tea.Cmd

	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)

	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

// syncViewport re-renders the transcript into the viewport.
func (m *Model) syncViewport(gotoBottom bool) {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.renderTranscript())
	if gotoBottom {
		m.viewport.GotoBottom()
	}
}

// dismissErrorCmd schedules the error toast auto-dismiss.
func dismissErrorCmd() tea.Cmd {
	return tea.Tick(errorToastDuration, func(time.Time) tea.Msg {
		return DismissErrorMsg{}
	})
}
