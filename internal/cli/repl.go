// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// repl.go - Interactive REPL for pulsechat when running without the TUI.
//
// USABILITY: Markdown rendering and history for better CLI experience
//
// Provides an interactive loop for conversing with the chat endpoint.
//
// Interactive Commands (during chat):
//   /help, /h           Show available commands
//   /list, /l           List conversations
//   /new, /n            Start a new conversation
//   /switch N           Switch to conversation N from the list
//   /delete N           Delete conversation N (asks for confirmation)
//   /search QUERY       Search conversations
//   /export             Print the active conversation as markdown
//   /quit, /q           Exit
//   Ctrl+C              Cancel current generation
//   Ctrl+D              Exit

package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/peterh/liner"

	core "github.com/jeranaias/pulsechat/internal/chat"
	"github.com/jeranaias/pulsechat/internal/config"
	"github.com/jeranaias/pulsechat/internal/store"
	"github.com/jeranaias/pulsechat/internal/ui/styles"
)

// =============================================================================
// STYLES
// =============================================================================

var (
	promptStyle = lipgloss.NewStyle().
			Foreground(styles.Cyan).
			Bold(true)

	welcomeStyle = lipgloss.NewStyle().
			Foreground(styles.Purple).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(styles.TextSecondary)

	commandStyle = lipgloss.NewStyle().
			Foreground(styles.Emerald)

	warningStyle = lipgloss.NewStyle().
			Foreground(styles.Amber)

	errorStyle = lipgloss.NewStyle().
			Foreground(styles.Rose).
			Bold(true)
)

// =============================================================================
// MARKDOWN RENDERING
// =============================================================================

// markdownRenderer renders finalized assistant messages.
// USABILITY: Renders markdown responses with syntax highlighting and formatting.
var markdownRenderer *glamour.TermRenderer

func init() {
	var err error
	markdownRenderer, err = glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)
	if err != nil {
		// Fallback to plain text if renderer initialization fails
		markdownRenderer = nil
	}
}

// renderMarkdown renders markdown content for terminal display.
// Returns the original content if rendering fails or renderer is unavailable.
func renderMarkdown(content string) string {
	if markdownRenderer == nil {
		return content
	}
	rendered, err := markdownRenderer.Render(content)
	if err != nil {
		return content
	}
	return rendered
}

// =============================================================================
// INPUT HISTORY
// =============================================================================

// InputCLI provides input history and line editing for the REPL.
// USABILITY: Supports arrow keys for history navigation and line editing.
type InputCLI struct {
	line        *liner.State
	historyFile string
}

// NewInputCLI creates an InputCLI with input history support.
func NewInputCLI() *InputCLI {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	configDir, err := config.ConfigDir()
	if err != nil {
		configDir = os.TempDir()
	}

	cli := &InputCLI{
		line:        line,
		historyFile: filepath.Join(configDir, "repl_history"),
	}
	cli.loadHistory()
	return cli
}

func (c *InputCLI) loadHistory() {
	if f, err := os.Open(c.historyFile); err == nil {
		c.line.ReadHistory(f)
		f.Close()
	}
}

// ReadInput reads a line of input with the given prompt.
func (c *InputCLI) ReadInput(prompt string) (string, error) {
	input, err := c.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		c.line.AppendHistory(input)
	}
	return input, nil
}

// Confirm asks a yes/no question and returns true only on explicit yes.
func (c *InputCLI) Confirm(question string) bool {
	answer, err := c.line.Prompt(question + " [y/N] ")
	if err != nil {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}

// saveHistory persists command history with secure permissions.
func (c *InputCLI) saveHistory() {
	if err := config.EnsureConfigDir(); err != nil {
		return
	}
	f, err := os.OpenFile(c.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return
	}
	defer f.Close()
	c.line.WriteHistory(f)
}

// Close saves history and closes the liner.
func (c *InputCLI) Close() {
	c.saveHistory()
	c.line.Close()
}

// =============================================================================
// SESSION
// =============================================================================

// Session holds the state for an interactive REPL session.
type Session struct {
	Config   *config.Config
	Store    *store.Store
	Consumer *core.Consumer
	Input    *InputCLI

	// lastList maps the numbers shown by /list to conversation IDs.
	lastList []store.Meta
}

// NewSession creates a REPL session.
func NewSession(cfg *config.Config, st *store.Store, consumer *core.Consumer) *Session {
	return &Session{
		Config:   cfg,
		Store:    st,
		Consumer: consumer,
		Input:    NewInputCLI(),
	}
}

// =============================================================================
// REPL LOOP
// =============================================================================

// Run starts the interactive loop and blocks until the user exits.
func Run(cfg *config.Config, st *store.Store, consumer *core.Consumer) error {
	session := NewSession(cfg, st, consumer)
	defer session.Input.Close()

	printWelcome(session)

	// First Ctrl+C cancels the in-flight generation; liner handles Ctrl+C
	// at the prompt itself.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		for range sigChan {
			if session.Consumer.IsSending() {
				session.Consumer.Cancel()
				fmt.Fprintln(os.Stderr, "\n"+warningStyle.Render("[Cancelled]"))
			}
		}
	}()

	for {
		input, err := session.Input.ReadInput(promptStyle.Render("pulsechat> "))
		if err != nil {
			// liner.ErrPromptAborted (Ctrl+C) and EOF (Ctrl+D) both exit.
			fmt.Println()
			return nil
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			keepGoing, err := session.handleCommand(input)
			if err != nil {
				fmt.Fprintf(os.Stderr, "%s %v\n", errorStyle.Render("[Error]"), err)
			}
			if !keepGoing {
				return nil
			}
			continue
		}

		if strings.EqualFold(input, "exit") || strings.EqualFold(input, "quit") {
			return nil
		}

		if err := session.processMessage(input); err != nil {
			fmt.Fprintf(os.Stderr, "%s %v\n", errorStyle.Render("[Error]"), err)
		}
	}
}

// printWelcome shows the session banner.
func printWelcome(session *Session) {
	fmt.Println(welcomeStyle.Render("pulsechat"))
	fmt.Println(infoStyle.Render("endpoint: " + session.Config.Server.BaseURL))
	fmt.Println(infoStyle.Render("type /help for commands, /quit to exit"))
	fmt.Println()
}

// =============================================================================
// MESSAGE PROCESSING
// =============================================================================

// processMessage sends a message and streams the response to stdout.
func (s *Session) processMessage(input string) error {
	events, err := s.Consumer.Send(context.Background(), input)
	if err != nil {
		// Preconditions are silent no-ops in the UI policy, but the REPL
		// has room to say why nothing happened.
		fmt.Fprintln(os.Stderr, infoStyle.Render("("+err.Error()+")"))
		return nil
	}

	// Render markdown only for the final message, and only on a TTY.
	// While streaming, write tokens raw so the user sees progress.
	useMarkdown := s.Config.UI.Markdown && IsStdoutTTY()

	fmt.Println()

	var assistantID string
	for ev := range events {
		switch ev.Kind {
		case core.EventStarted:
			assistantID = ev.MessageID

		case core.EventDelta:
			if !useMarkdown {
				fmt.Print(ev.Delta)
			}

		case core.EventDone:
			if useMarkdown {
				s.printFinalMessage(ev.ConversationID, assistantID)
			} else {
				fmt.Println()
			}
			if ev.Canceled {
				fmt.Println(warningStyle.Render("[response truncated]"))
			}

		case core.EventFailed:
			if !useMarkdown {
				fmt.Println()
			}
			fmt.Fprintln(os.Stderr, styles.RenderError(errText(ev.Err)))
		}
	}

	fmt.Println()
	return nil
}

// printFinalMessage renders the finalized assistant message as markdown.
func (s *Session) printFinalMessage(convID, messageID string) {
	conv := s.Store.Get(convID)
	if conv == nil {
		return
	}
	msg := conv.MessageByID(messageID)
	if msg == nil {
		return
	}
	fmt.Print(renderMarkdown(msg.DisplayContent()))
}

func errText(err error) string {
	if err == nil {
		return "send failed"
	}
	return err.Error()
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

// handleCommand executes a slash command. Returns false when the REPL
// should exit.
func (s *Session) handleCommand(input string) (bool, error) {
	fields := strings.Fields(input)
	cmd := strings.ToLower(fields[0])
	args := fields[1:]

	switch cmd {
	case "/help", "/h":
		s.printHelp()
		return true, nil

	case "/quit", "/q", "/exit":
		return false, nil

	case "/list", "/l":
		s.printList(s.Store.List())
		return true, nil

	case "/new", "/n":
		conv := s.Store.Create()
		fmt.Println(infoStyle.Render("started: " + conv.Title))
		return true, nil

	case "/switch":
		meta, err := s.resolveListArg(args)
		if err != nil {
			return true, err
		}
		s.Store.Select(meta.ID)
		fmt.Println(infoStyle.Render("switched to: " + meta.Title))
		return true, nil

	case "/delete":
		meta, err := s.resolveListArg(args)
		if err != nil {
			return true, err
		}
		if !s.Input.Confirm("delete " + strconv.Quote(meta.Title) + "?") {
			fmt.Println(infoStyle.Render("kept"))
			return true, nil
		}
		s.Store.Delete(meta.ID)
		fmt.Println(infoStyle.Render("deleted"))
		return true, nil

	case "/search":
		if len(args) == 0 {
			return true, fmt.Errorf("usage: /search QUERY")
		}
		results := s.Store.Search(strings.Join(args, " "))
		if len(results) == 0 {
			fmt.Println(infoStyle.Render("no matches"))
			return true, nil
		}
		s.printList(results)
		return true, nil

	case "/export":
		id := s.Store.ActiveID()
		md, ok := s.Store.ExportMarkdown(id)
		if !ok {
			return true, fmt.Errorf("no active conversation")
		}
		fmt.Println(md)
		return true, nil

	default:
		return true, fmt.Errorf("unknown command %s (try /help)", cmd)
	}
}

// resolveListArg resolves a 1-based index from the last printed list.
func (s *Session) resolveListArg(args []string) (store.Meta, error) {
	if len(s.lastList) == 0 {
		s.lastList = s.Store.List()
	}
	if len(args) == 0 {
		return store.Meta{}, fmt.Errorf("usage: give the number shown by /list")
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 || n > len(s.lastList) {
		return store.Meta{}, fmt.Errorf("no conversation %q (run /list)", args[0])
	}
	return s.lastList[n-1], nil
}

// printList shows conversations with 1-based numbers for /switch and /delete.
func (s *Session) printList(metas []store.Meta) {
	s.lastList = metas
	if len(metas) == 0 {
		fmt.Println(infoStyle.Render("no conversations yet"))
		return
	}
	for i, meta := range metas {
		marker := "  "
		if meta.Active {
			marker = commandStyle.Render("* ")
		}
		fmt.Printf("%s%2d. %s  %s\n",
			marker, i+1, meta.Title,
			infoStyle.Render(meta.UpdatedAt.Format("Jan 2 15:04")))
	}
}

// printHelp shows the command reference.
func (s *Session) printHelp() {
	rows := [][2]string{
		{"/help, /h", "show this help"},
		{"/list, /l", "list conversations"},
		{"/new, /n", "start a new conversation"},
		{"/switch N", "switch to conversation N"},
		{"/delete N", "delete conversation N (asks first)"},
		{"/search QUERY", "search titles and content"},
		{"/export", "print active conversation as markdown"},
		{"/quit, /q", "exit"},
	}
	for _, row := range rows {
		fmt.Printf("  %s  %s\n",
			commandStyle.Render(fmt.Sprintf("%-14s", row[0])),
			infoStyle.Render(row[1]))
	}
}
