// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	chromaStyles "github.com/alecthomas/chroma/v2/styles"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/pulsechat/internal/ui/styles"
)

// =============================================================================
// TERMINAL BLOCK RENDERER
// =============================================================================

// Terminal renders display blocks as styled terminal output.
type Terminal struct {
	theme    *styles.Theme
	maxWidth int

	// copied tracks which code blocks have been copied this render cycle,
	// keyed by Block.CopyKey.
	copied map[string]bool
}

// NewTerminal creates a terminal renderer with the given theme.
func NewTerminal(theme *styles.Theme) *Terminal {
	return &Terminal{
		theme:    theme,
		maxWidth: 80,
		copied:   make(map[string]bool),
	}
}

// SetMaxWidth sets the maximum rendering width.
func (t *Terminal) SetMaxWidth(width int) {
	if width < 20 {
		width = 20
	}
	t.maxWidth = width
}

// MarkCopied records that the code block behind key was copied, so the next
// render shows the copied hint.
func (t *Terminal) MarkCopied(key string) {
	if key != "" {
		t.copied[key] = true
	}
}

// ClearCopied resets all copied markers.
func (t *Terminal) ClearCopied() {
	t.copied = make(map[string]bool)
}

// RenderText parses text and renders the resulting blocks.
func (t *Terminal) RenderText(text string) string {
	return t.RenderBlocks(ParseBlocks(text))
}

// RenderBlocks renders a block sequence to a single string.
func (t *Terminal) RenderBlocks(blocks []Block) string {
	if len(blocks) == 0 {
		return ""
	}

	rendered := make([]string, 0, len(blocks))
	for _, b := range blocks {
		rendered = append(rendered, t.renderBlock(b))
	}
	return strings.Join(rendered, "\n")
}

// renderBlock renders one block.
func (t *Terminal) renderBlock(b Block) string {
	switch b.Kind {
	case BlockHeading:
		return t.renderHeading(b)
	case BlockListItem:
		return t.theme.ListBullet.Render("•") + " " + t.theme.Paragraph.Render(b.Text)
	case BlockNumberedStep:
		return t.theme.StepNumber.Render(b.Marker) + " " + t.theme.Paragraph.Render(b.Text)
	case BlockCode:
		return t.renderCode(b)
	default:
		return t.theme.Paragraph.Render(b.Text)
	}
}

// renderHeading renders a heading at its level.
func (t *Terminal) renderHeading(b Block) string {
	switch b.Level {
	case 1:
		return t.theme.Heading1.Render(b.Text)
	case 2:
		return t.theme.Heading2.Render(b.Text)
	default:
		return t.theme.Heading3.Render(b.Text)
	}
}

// renderCode renders a fenced code block with syntax highlighting, a
// language badge, and the copy hint.
// USABILITY: Syntax highlighting for better code readability
func (t *Terminal) renderCode(b Block) string {
	code := strings.TrimRight(b.Code, "\n")

	language := b.Language
	if language == "" {
		language = detectLanguage(code)
	}

	highlighted := highlightCode(code, language)

	var header string
	if b.Language != "" {
		badge := t.theme.CodeLangBadge.Render(b.Language)
		hint := "  copy: C-y"
		if t.copied[b.CopyKey()] {
			hint = "  " + styles.StatusIndicators.Success + " copied"
		}
		header = badge + t.theme.CodeCopyHint.Render(hint) + "\n"
	}

	maxWidth := t.maxWidth - 4
	if maxWidth < 20 {
		maxWidth = 20
	}

	return t.theme.CodeBlock.
		MaxWidth(maxWidth).
		Render(header + highlighted)
}

// =============================================================================
// SYNTAX HIGHLIGHTING (Chroma-based)
// =============================================================================

// highlightCode applies syntax highlighting to code using the chroma library.
// This provides proper ANSI-safe syntax highlighting for terminal output.
func highlightCode(code, language string) string {
	lexer := lexers.Get(language)
	if lexer == nil {
		lexer = lexers.Analyse(code)
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	style := chromaStyles.Get("monokai")
	if style == nil {
		style = chromaStyles.Fallback
	}

	formatter := formatters.Get("terminal256")
	if formatter == nil {
		formatter = formatters.Fallback
	}

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return code // Fallback to plain text
	}

	var buf strings.Builder
	err = formatter.Format(&buf, style, iterator)
	if err != nil {
		return code
	}

	return buf.String()
}

// detectLanguage attempts to detect the programming language of the given code.
func detectLanguage(code string) string {
	lexer := lexers.Analyse(code)
	if lexer != nil {
		return lexer.Config().Name
	}
	return ""
}

// RenderInlineCode renders inline code with a subtle background.
func RenderInlineCode(code string) string {
	return lipgloss.NewStyle().
		Background(styles.SurfaceDim).
		Foreground(styles.Cyan).
		Padding(0, 1).
		Render(code)
}
