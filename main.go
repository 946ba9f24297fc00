// pulsechat - A terminal client for streaming chat endpoints.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"flag"
	"fmt"
	"os"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/pulsechat/internal/api"
	core "github.com/jeranaias/pulsechat/internal/chat"
	"github.com/jeranaias/pulsechat/internal/cli"
	"github.com/jeranaias/pulsechat/internal/config"
	"github.com/jeranaias/pulsechat/internal/store"
	"github.com/jeranaias/pulsechat/internal/ui/chat"
	"github.com/jeranaias/pulsechat/internal/ui/styles"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Global program reference for async store reload notifications
var (
	programRef *tea.Program
	programMu  sync.Mutex
)

func main() {
	var (
		configPath  = flag.String("config", "", "path to config file (TOML or JSON)")
		serverURL   = flag.String("url", "", "chat endpoint base URL (overrides config)")
		dataDir     = flag.String("data-dir", "", "directory for conversation history (overrides config)")
		forceREPL   = flag.Bool("repl", false, "use the line-based REPL even on a full terminal")
		showVersion = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("pulsechat %s (%s, built %s)\n", Version, GitCommit, BuildDate)
		return
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// CLI args override config
	if *serverURL != "" {
		cfg.Server.BaseURL = *serverURL
	}
	if *dataDir != "" {
		cfg.Storage.DataDir = *dataDir
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	dir, err := cfg.DataDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot create data directory: %v\n", err)
		os.Exit(1)
	}

	st := store.New(dir)
	st.Load()

	client := api.NewClientWithConfig(&api.ClientConfig{
		BaseURL:     cfg.Server.BaseURL,
		ChatPath:    cfg.Server.ChatPath,
		Timeout:     time.Duration(cfg.Server.RequestTimeoutSecs) * time.Second,
		IdleTimeout: time.Duration(cfg.Server.IdleTimeoutSecs) * time.Second,
	})

	consumer := core.New(st, client)

	// A dumb terminal or piped stdin gets the line-based REPL; a real
	// terminal gets the TUI.
	if *forceREPL || !cli.IsTTY() || !cli.IsStdoutTTY() {
		if err := cli.Run(cfg, st, consumer); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	runTUI(cfg, st, consumer)
}

// loadConfig loads from an explicit path or the default locations.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromPath(path)
	}
	return config.Load()
}

// runTUI starts the TUI interface.
func runTUI(cfg *config.Config, st *store.Store, consumer *core.Consumer) {
	theme := styles.NewTheme()

	m := chat.New(theme, st, consumer, chat.Options{
		ShowTimestamps: cfg.UI.ShowTimestamps,
		MaxWidth:       cfg.UI.MaxWidth,
	})

	p := tea.NewProgram(
		m,
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)

	programMu.Lock()
	programRef = p
	programMu.Unlock()

	// Pick up rewrites of the history file by other pulsechat processes.
	if cfg.Storage.WatchHistory {
		watcher, err := store.NewWatcher(st, 250*time.Millisecond, func() {
			programMu.Lock()
			ref := programRef
			programMu.Unlock()
			if ref != nil {
				ref.Send(chat.StoreReloadedMsg{})
			}
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: history watching disabled: %v\n", err)
		} else {
			go watcher.Watch()
			defer watcher.Close()
		}
	}

	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running pulsechat: %v\n", err)
		os.Exit(1)
	}
}
