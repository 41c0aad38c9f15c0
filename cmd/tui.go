package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/nagiyu/niconico-mylist-assistant/internal/shared"
	"github.com/nagiyu/niconico-mylist-assistant/internal/ui"
	"github.com/urfave/cli/v3"
)

// TUI launches the interactive terminal UI over the selected backend.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	// Logs go to a file so they do not tear the rendered screen.
	logPath := cmd.String("log-file")
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer f.Close()

	fileLogger := shared.NewLogger(f)
	fileLogger.SetLevel(r.logger.GetLevel())
	r.logger = fileLogger

	s, err := r.open(ctx, cmd)
	if err != nil {
		return err
	}
	defer s.close()

	model := ui.NewModel(ctx, r.engine(s), s.lookup)
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	return nil
}
