// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// The model owns only a transient display copy of the active conversation.
// The store is authoritative; the display copy is re-derived from it after
// every mutation.

package chat

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	core "github.com/jeranaias/pulsechat/internal/chat"
	"github.com/jeranaias/pulsechat/internal/model"
	"github.com/jeranaias/pulsechat/internal/render"
	"github.com/jeranaias/pulsechat/internal/store"
	"github.com/jeranaias/pulsechat/internal/ui/styles"
)

// =============================================================================
// VIEW MODES
// =============================================================================

// viewMode selects which surface has input focus.
type viewMode int

const (
	// viewChat is the normal transcript + input surface.
	viewChat viewMode = iota

	// viewSessions is the conversation list overlay.
	viewSessions

	// viewConfirmDelete is the delete confirmation overlay.
	viewConfirmDelete
)

// =============================================================================
// MODEL
// =============================================================================

// Options configures the chat model.
type Options struct {
	// ShowTimestamps shows message timestamps in the transcript.
	ShowTimestamps bool

	// MaxWidth caps the rendered content width (0 = terminal width).
	MaxWidth int
}

// Model is the Bubble Tea model for the chat interface.
type Model struct {
	theme    *styles.Theme
	keys     KeyMap
	opts     Options
	store    *store.Store
	consumer *core.Consumer
	renderer *render.Terminal

	viewport viewport.Model
	input    textinput.Model
	spin     spinner.Model

	mode   viewMode
	width  int
	height int
	ready  bool

	// Streaming state
	streaming   bool
	streamingID string
	streamBuf   *StreamingBuffer
	events      <-chan core.Event

	// Transient display copy of the active conversation.
	conv *model.Conversation

	// Sessions overlay state
	sessions      []store.Meta
	sessionCursor int
	deleteTarget  string

	errorToast string
}

// New creates the chat model.
func New(theme *styles.Theme, st *store.Store, consumer *core.Consumer, opts Options) Model {
	input := textinput.New()
	input.Placeholder = "Send a message..."
	input.Prompt = "> "
	input.PromptStyle = theme.InputPrompt
	input.TextStyle = theme.InputText
	input.PlaceholderStyle = theme.InputPlaceholder
	input.CharLimit = 0
	input.Focus()

	spin := spinner.New()
	spin.Spinner = spinner.Dot
	spin.Style = theme.Spinner

	m := Model{
		theme:     theme,
		keys:      DefaultKeyMap(),
		opts:      opts,
		store:     st,
		consumer:  consumer,
		renderer:  render.NewTerminal(theme),
		input:     input,
		spin:      spin,
		streamBuf: NewStreamingBuffer(),
	}
	m.refreshConversation()
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spin.Tick)
}

// =============================================================================
// DISPLAY COPY
// =============================================================================

// refreshConversation re-derives the display copy from the store.
func (m *Model) refreshConversation() {
	m.conv = m.store.Active()
}

// refreshSessions re-derives the session list from the store.
func (m *Model) refreshSessions() {
	m.sessions = m.store.List()
	if m.sessionCursor >= len(m.sessions) {
		m.sessionCursor = len(m.sessions) - 1
	}
	if m.sessionCursor < 0 {
		m.sessionCursor = 0
	}
}

// =============================================================================
// COMMANDS
// =============================================================================

// startSend kicks off a send operation through the consumer. Precondition
// failures (empty input, busy, rate limited) are silent no-ops per policy.
func (m *Model) startSend(text string) tea.Cmd {
	events, err := m.consumer.Send(context.Background(), text)
	if err != nil {
		return nil
	}
	m.events = events
	return waitForEvent(events)
}

// waitForEvent reads the next consumer event and translates it to a
// Bubble Tea message. Re-armed from Update after each event until the
// channel closes.
func waitForEvent(events <-chan core.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return nil
		}
		switch ev.Kind {
		case core.EventStarted:
			return StreamStartMsg{
				ConversationID: ev.ConversationID,
				UserMessageID:  ev.UserMessageID,
				MessageID:      ev.MessageID,
				StartTime:      time.Now(),
			}
		case core.EventDelta:
			return StreamTokenMsg{MessageID: ev.MessageID, Token: ev.Delta}
		case core.EventDone:
			return StreamCompleteMsg{MessageID: ev.MessageID, Canceled: ev.Canceled}
		case core.EventFailed:
			return StreamErrorMsg{MessageID: ev.MessageID, Error: ev.Err}
		default:
			return nil
		}
	}
}
