// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package render maps message text to typed display blocks and renders
// them for the terminal.
package render

import (
	"strings"
	"unicode"
)

// =============================================================================
// BLOCK MODEL
// =============================================================================

// BlockKind identifies the display treatment of a block.
type BlockKind int

const (
	// BlockParagraph is plain body text.
	BlockParagraph BlockKind = iota

	// BlockHeading is a heading line. Level is 1 to 3.
	BlockHeading

	// BlockListItem is a bulleted list item.
	BlockListItem

	// BlockNumberedStep is a numbered step line ("1. ..." or "2) ...").
	BlockNumberedStep

	// BlockCode is a fenced code block with an optional language tag.
	BlockCode
)

// String returns the string representation of the block kind.
func (k BlockKind) String() string {
	switch k {
	case BlockParagraph:
		return "paragraph"
	case BlockHeading:
		return "heading"
	case BlockListItem:
		return "list-item"
	case BlockNumberedStep:
		return "numbered-step"
	case BlockCode:
		return "code"
	default:
		return "unknown"
	}
}

// Block is one typed display unit of a message.
type Block struct {
	Kind BlockKind

	// Text holds the block's display text. For headings and list items the
	// marker is stripped; for numbered steps the number prefix is kept in
	// Marker and the remainder in Text.
	Text string

	// Level is the heading level (1 to 3). Zero for non-headings.
	Level int

	// Marker is the original step marker for numbered steps ("1.", "2)").
	Marker string

	// Language is the fence language tag for code blocks. May be empty.
	Language string

	// Code is the raw code content for code blocks, without the fences.
	Code string
}

// copyKeyPrefixLen bounds the code prefix used in copy keys.
const copyKeyPrefixLen = 50

// CopyKey returns the display-layer key used to track the "copied" state of
// a code block. It is a composite of the language tag and the code's leading
// characters. Two long code blocks sharing a language and a 50-character
// prefix collide; callers must treat the key as a convenience, not an
// identifier.
func (b Block) CopyKey() string {
	if b.Kind != BlockCode {
		return ""
	}
	prefix := b.Code
	runes := []rune(prefix)
	if len(runes) > copyKeyPrefixLen {
		prefix = string(runes[:copyKeyPrefixLen])
	}
	return b.Language + ":" + prefix
}

// =============================================================================
// BLOCK PARSER
// =============================================================================

// ParseBlocks maps message text to its display block sequence. It is a pure
// function: no state is carried between calls and the same input always
// yields the same blocks. It accepts in-progress text, so a fence that has
// been opened but not yet closed still parses as a code block.
func ParseBlocks(text string) []Block {
	if text == "" {
		return nil
	}

	lines := strings.Split(text, "\n")
	var blocks []Block

	var inCode bool
	var codeLang string
	var codeLines []string

	var paragraph []string

	flushParagraph := func() {
		if len(paragraph) == 0 {
			return
		}
		blocks = append(blocks, Block{
			Kind: BlockParagraph,
			Text: strings.Join(paragraph, "\n"),
		})
		paragraph = nil
	}

	for _, line := range lines {
		if strings.HasPrefix(line, "```") {
			if inCode {
				blocks = append(blocks, Block{
					Kind:     BlockCode,
					Language: codeLang,
					Code:     strings.Join(codeLines, "\n"),
				})
				codeLines = nil
				codeLang = ""
				inCode = false
			} else {
				flushParagraph()
				codeLang = strings.TrimSpace(strings.TrimPrefix(line, "```"))
				inCode = true
			}
			continue
		}

		if inCode {
			codeLines = append(codeLines, line)
			continue
		}

		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "":
			flushParagraph()

		case strings.HasPrefix(trimmed, "#"):
			if level, rest, ok := parseHeading(trimmed); ok {
				flushParagraph()
				blocks = append(blocks, Block{Kind: BlockHeading, Text: rest, Level: level})
			} else {
				paragraph = append(paragraph, trimmed)
			}

		case strings.HasPrefix(trimmed, "- ") || strings.HasPrefix(trimmed, "* "):
			flushParagraph()
			blocks = append(blocks, Block{Kind: BlockListItem, Text: strings.TrimSpace(trimmed[2:])})

		default:
			if marker, rest, ok := parseNumberedStep(trimmed); ok {
				flushParagraph()
				blocks = append(blocks, Block{Kind: BlockNumberedStep, Text: rest, Marker: marker})
			} else {
				paragraph = append(paragraph, trimmed)
			}
		}
	}

	// An unclosed fence still renders as code. In-progress streaming text
	// routinely ends mid-block.
	if inCode {
		blocks = append(blocks, Block{
			Kind:     BlockCode,
			Language: codeLang,
			Code:     strings.Join(codeLines, "\n"),
		})
	}
	flushParagraph()

	return blocks
}

// parseHeading parses "# text" through "### text". Deeper levels are
// clamped to 3.
func parseHeading(line string) (level int, rest string, ok bool) {
	i := 0
	for i < len(line) && line[i] == '#' {
		i++
	}
	if i == 0 || i >= len(line) || line[i] != ' ' {
		return 0, "", false
	}
	level = i
	if level > 3 {
		level = 3
	}
	return level, strings.TrimSpace(line[i+1:]), true
}

// parseNumberedStep parses "1. text" or "12) text".
func parseNumberedStep(line string) (marker, rest string, ok bool) {
	i := 0
	for i < len(line) && unicode.IsDigit(rune(line[i])) {
		i++
	}
	if i == 0 || i >= len(line) {
		return "", "", false
	}
	if line[i] != '.' && line[i] != ')' {
		return "", "", false
	}
	if i+1 >= len(line) || line[i+1] != ' ' {
		return "", "", false
	}
	return line[:i+1], strings.TrimSpace(line[i+2:]), true
}
