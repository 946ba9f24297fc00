// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// This file implements rendering for the chat interface: the transcript,
// input area, status bar, and the session list and delete confirmation
// overlays.

package chat

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/pulsechat/internal/model"
	"github.com/jeranaias/pulsechat/internal/ui/styles"
	"github.com/jeranaias/pulsechat/internal/util"
)

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Initializing..."
	}

	switch m.mode {
	case viewSessions:
		return m.viewSessionList()
	case viewConfirmDelete:
		return m.viewConfirmDelete()
	default:
		return m.viewChat()
	}
}

// =============================================================================
// CHAT SURFACE
// =============================================================================

// viewChat renders the main transcript surface.
func (m Model) viewChat() string {
	var b strings.Builder

	b.WriteString(m.viewHeader())
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")

	if m.errorToast != "" {
		b.WriteString(m.viewErrorToast())
		b.WriteString("\n")
	}

	b.WriteString(m.viewInput())
	b.WriteString("\n")
	b.WriteString(m.viewStatusBar())

	return b.String()
}

// viewHeader renders the title bar with the active conversation title.
func (m Model) viewHeader() string {
	title := "pulsechat"
	if m.conv != nil {
		title = m.conv.Title
	}
	header := m.theme.HeaderTitle.Render(title)
	return m.theme.Header.Width(m.viewport.Width).Render(header)
}

// viewInput renders the input area. During streaming the prompt is replaced
// by the spinner so it is obvious input is not being accepted as a message.
func (m Model) viewInput() string {
	if m.streaming {
		thinking := m.spin.View() + " " + m.theme.ThinkingText.Render("responding... (Esc to cancel)")
		return m.theme.InputContainer.Width(m.viewport.Width).Render(thinking)
	}
	return m.theme.InputContainer.Width(m.viewport.Width).Render(m.input.View())
}

// viewStatusBar renders the shortcut hints.
func (m Model) viewStatusBar() string {
	var parts []string
	for _, binding := range m.keys.ShortHelp() {
		help := binding.Help()
		parts = append(parts,
			m.theme.ShortcutKey.Render(help.Key)+" "+m.theme.ShortcutDesc.Render(help.Desc))
	}
	return m.theme.StatusBar.Width(m.viewport.Width).Render(strings.Join(parts, "  "))
}

// viewErrorToast renders the transient error notice.
func (m Model) viewErrorToast() string {
	return m.theme.ErrorBox.Width(m.viewport.Width).Render(
		styles.RenderError(m.errorToast) + m.theme.ShortcutDesc.Render("  (Esc to dismiss)"))
}

// =============================================================================
// TRANSCRIPT
// =============================================================================

// renderTranscript renders the active conversation's messages.
func (m Model) renderTranscript() string {
	if m.conv == nil || len(m.conv.Messages) == 0 {
		return m.theme.ThinkingText.Render("No messages yet. Type below to start the conversation.")
	}

	parts := make([]string, 0, len(m.conv.Messages))
	for _, msg := range m.conv.Messages {
		parts = append(parts, m.renderMessage(msg))
	}
	return strings.Join(parts, "\n\n")
}

// renderMessage renders one message bubble.
func (m Model) renderMessage(msg *model.Message) string {
	label := m.theme.MessageLabel.Render(msg.Role.DisplayName())
	if m.opts.ShowTimestamps {
		label += " " + m.theme.MessageTime.Render(msg.Timestamp.Format("15:04"))
	}

	bubbleWidth := m.viewport.Width - 8
	if bubbleWidth < 20 {
		bubbleWidth = 20
	}

	switch msg.Role {
	case model.RoleUser:
		body := m.theme.UserBubble.MaxWidth(bubbleWidth).Render(msg.DisplayContent())
		block := label + "\n" + body
		return lipgloss.PlaceHorizontal(m.viewport.Width, lipgloss.Right, block)

	default:
		content := msg.DisplayContent()
		if content == "" && msg.IsStreaming {
			content = m.spin.View()
		} else {
			content = m.renderer.RenderText(content)
			if msg.IsStreaming {
				content += " " + m.spin.View()
			}
		}
		body := m.theme.AssistantBubble.MaxWidth(bubbleWidth).Render(content)
		return label + "\n" + body
	}
}

// =============================================================================
// SESSION LIST OVERLAY
// =============================================================================

// viewSessionList renders the conversation list overlay.
func (m Model) viewSessionList() string {
	var b strings.Builder

	b.WriteString(m.theme.HeaderTitle.Render("Conversations"))
	b.WriteString("\n\n")

	if len(m.sessions) == 0 {
		b.WriteString(m.theme.ThinkingText.Render("No conversations yet."))
	}

	for i, meta := range m.sessions {
		title := util.TruncateWidth(meta.Title, 40)
		line := title + "  " +
			m.theme.SessionMeta.Render(meta.UpdatedAt.Format("Jan 2 15:04"))

		switch {
		case i == m.sessionCursor:
			line = m.theme.SessionItemSelected.Render("> " + line)
		case meta.Active:
			line = m.theme.SessionItemActive.Render("* " + line)
		default:
			line = m.theme.SessionItem.Render("  " + line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.theme.ShortcutDesc.Render("Enter open · C-n new · C-x delete · Esc back"))

	box := m.theme.SessionList.Render(b.String())
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, box)
}

// viewConfirmDelete renders the delete confirmation overlay.
func (m Model) viewConfirmDelete() string {
	title := m.deleteTarget
	for _, meta := range m.sessions {
		if meta.ID == m.deleteTarget {
			title = meta.Title
			break
		}
	}

	var b strings.Builder
	b.WriteString(m.theme.ConfirmTitle.Render("Delete conversation?"))
	b.WriteString("\n\n")
	b.WriteString(util.TruncateWidth(title, 50))
	b.WriteString("\n\n")
	b.WriteString(m.theme.ConfirmButtonActive.Render("y: delete"))
	b.WriteString("  ")
	b.WriteString(m.theme.ConfirmButton.Render("n: keep"))

	box := m.theme.ConfirmBox.Render(b.String())
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, box)
}
