// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"reflect"
	"strings"
	"testing"
)

func TestParseBlocksEmpty(t *testing.T) {
	if blocks := ParseBlocks(""); blocks != nil {
		t.Errorf("expected nil blocks for empty input, got %v", blocks)
	}
}

func TestParseBlocksParagraphs(t *testing.T) {
	text := "first line\nsecond line\n\nnew paragraph"
	blocks := ParseBlocks(text)

	if len(blocks) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(blocks))
	}
	if blocks[0].Kind != BlockParagraph {
		t.Errorf("expected paragraph, got %s", blocks[0].Kind)
	}
	if blocks[0].Text != "first line\nsecond line" {
		t.Errorf("unexpected paragraph text: %q", blocks[0].Text)
	}
	if blocks[1].Text != "new paragraph" {
		t.Errorf("unexpected paragraph text: %q", blocks[1].Text)
	}
}

func TestParseBlocksHeadings(t *testing.T) {
	tests := []struct {
		name      string
		line      string
		wantKind  BlockKind
		wantLevel int
		wantText  string
	}{
		{"h1", "# Title", BlockHeading, 1, "Title"},
		{"h2", "## Section", BlockHeading, 2, "Section"},
		{"h3", "### Detail", BlockHeading, 3, "Detail"},
		{"deep heading clamps to 3", "##### Deep", BlockHeading, 3, "Deep"},
		{"hash without space is text", "#hashtag", BlockParagraph, 0, "#hashtag"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blocks := ParseBlocks(tt.line)
			if len(blocks) != 1 {
				t.Fatalf("expected 1 block, got %d", len(blocks))
			}
			b := blocks[0]
			if b.Kind != tt.wantKind {
				t.Errorf("kind = %s, want %s", b.Kind, tt.wantKind)
			}
			if b.Level != tt.wantLevel {
				t.Errorf("level = %d, want %d", b.Level, tt.wantLevel)
			}
			if b.Text != tt.wantText {
				t.Errorf("text = %q, want %q", b.Text, tt.wantText)
			}
		})
	}
}

func TestParseBlocksLists(t *testing.T) {
	text := "- dash item\n* star item\n1. first step\n2) second step"
	blocks := ParseBlocks(text)

	if len(blocks) != 4 {
		t.Fatalf("expected 4 blocks, got %d", len(blocks))
	}

	if blocks[0].Kind != BlockListItem || blocks[0].Text != "dash item" {
		t.Errorf("unexpected block: %+v", blocks[0])
	}
	if blocks[1].Kind != BlockListItem || blocks[1].Text != "star item" {
		t.Errorf("unexpected block: %+v", blocks[1])
	}
	if blocks[2].Kind != BlockNumberedStep || blocks[2].Marker != "1." || blocks[2].Text != "first step" {
		t.Errorf("unexpected block: %+v", blocks[2])
	}
	if blocks[3].Kind != BlockNumberedStep || blocks[3].Marker != "2)" || blocks[3].Text != "second step" {
		t.Errorf("unexpected block: %+v", blocks[3])
	}
}

func TestParseBlocksCodeFence(t *testing.T) {
	text := "intro\n```go\nfunc main() {}\n```\noutro"
	blocks := ParseBlocks(text)

	if len(blocks) != 3 {
		t.Fatalf("expected 3 blocks, got %d", len(blocks))
	}
	if blocks[0].Kind != BlockParagraph || blocks[0].Text != "intro" {
		t.Errorf("unexpected block: %+v", blocks[0])
	}
	code := blocks[1]
	if code.Kind != BlockCode {
		t.Fatalf("expected code block, got %s", code.Kind)
	}
	if code.Language != "go" {
		t.Errorf("language = %q, want go", code.Language)
	}
	if code.Code != "func main() {}" {
		t.Errorf("code = %q", code.Code)
	}
	if blocks[2].Kind != BlockParagraph || blocks[2].Text != "outro" {
		t.Errorf("unexpected block: %+v", blocks[2])
	}
}

func TestParseBlocksUnclosedFence(t *testing.T) {
	// Streaming text routinely ends mid-block; the open fence must still
	// render as code.
	text := "here is code:\n```python\nprint('hi')"
	blocks := ParseBlocks(text)

	if len(blocks) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(blocks))
	}
	code := blocks[1]
	if code.Kind != BlockCode {
		t.Fatalf("expected code block, got %s", code.Kind)
	}
	if code.Language != "python" {
		t.Errorf("language = %q, want python", code.Language)
	}
	if code.Code != "print('hi')" {
		t.Errorf("code = %q", code.Code)
	}
}

func TestParseBlocksList(t *testing.T) {
	// List markers inside a code fence must not be treated as list items.
	text := "```\n- not a list\n# not a heading\n```"
	blocks := ParseBlocks(text)

	if len(blocks) != 1 {
		t.Fatalf("expected 1 block, got %d", len(blocks))
	}
	if blocks[0].Kind != BlockCode {
		t.Fatalf("expected code block, got %s", blocks[0].Kind)
	}
	if blocks[0].Code != "- not a list\n# not a heading" {
		t.Errorf("code = %q", blocks[0].Code)
	}
}

func TestParseBlocksIdempotent(t *testing.T) {
	text := "# Title\n\nSome text.\n\n```go\nx := 1\n```\n\n- item"
	first := ParseBlocks(text)
	second := ParseBlocks(text)

	if !reflect.DeepEqual(first, second) {
		t.Errorf("parse is not idempotent:\nfirst:  %+v\nsecond: %+v", first, second)
	}
}

func TestCopyKey(t *testing.T) {
	short := Block{Kind: BlockCode, Language: "go", Code: "x := 1"}
	if got := short.CopyKey(); got != "go:x := 1" {
		t.Errorf("CopyKey = %q", got)
	}

	// Keys use only the leading 50 characters, so two long blocks with a
	// shared prefix and language collide. Known limitation, kept as-is.
	prefix := strings.Repeat("a", 60)
	a := Block{Kind: BlockCode, Language: "go", Code: prefix + "-one"}
	b := Block{Kind: BlockCode, Language: "go", Code: prefix + "-two"}
	if a.CopyKey() != b.CopyKey() {
		t.Errorf("expected colliding keys, got %q and %q", a.CopyKey(), b.CopyKey())
	}

	// A different language tag separates otherwise identical code.
	c := Block{Kind: BlockCode, Language: "python", Code: prefix + "-one"}
	if a.CopyKey() == c.CopyKey() {
		t.Errorf("expected distinct keys across languages")
	}

	if (Block{Kind: BlockParagraph, Text: "x"}).CopyKey() != "" {
		t.Errorf("non-code blocks must have empty copy keys")
	}
}
