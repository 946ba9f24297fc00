// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/pulsechat/internal/model"
	"github.com/jeranaias/pulsechat/internal/render"
)

// writeClipboard copies text to the system clipboard. A variable so tests
// can intercept it; headless environments have no clipboard to assert on.
var writeClipboard = clipboard.WriteAll

// lastCodeBlock returns the last fenced code block in the sequence.
func lastCodeBlock(blocks []render.Block) (render.Block, bool) {
	for i := len(blocks) - 1; i >= 0; i-- {
		if blocks[i].Kind == render.BlockCode {
			return blocks[i], true
		}
	}
	return render.Block{}, false
}

// copyLastCode copies the most recent code block from the last assistant
// message to the clipboard, falling back to the whole message when it
// contains no code. On success the block's copy hint flips to "copied" on
// the next render.
func (m Model) copyLastCode() (tea.Model, tea.Cmd) {
	if m.conv == nil {
		return m, nil
	}

	var last *model.Message
	for i := len(m.conv.Messages) - 1; i >= 0; i-- {
		if m.conv.Messages[i].Role == model.RoleAssistant {
			last = m.conv.Messages[i]
			break
		}
	}
	if last == nil || last.DisplayContent() == "" {
		return m, nil
	}

	content := last.DisplayContent()
	block, ok := lastCodeBlock(render.ParseBlocks(content))
	text := content
	if ok {
		text = block.Code
	}

	if err := writeClipboard(text); err != nil {
		m.errorToast = "failed to copy: " + err.Error()
		return m, dismissErrorCmd()
	}

	if ok {
		m.renderer.MarkCopied(block.CopyKey())
		m.syncViewport(false)
	}
	return m, nil
}
