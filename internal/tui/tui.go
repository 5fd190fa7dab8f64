// Package tui is the interactive console: one page per item kind with grouped
// rows, lazy version expansion, tag and description editing, and a detail view.
package tui

import (
	"context"

	"fsconsole/internal/model"
	"fsconsole/internal/store"
	"fsconsole/internal/tagging"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"
)

type Options struct {
	API     Backend
	Project string
	// Store holds tui_state.json.
	Store store.Store
	// Activity is optional.
	Activity tagging.Recorder
	Logger   *zap.Logger
	// Profile is the appearance profile ("default" or "plain").
	Profile string
	// StartKind is the page shown when no saved state exists.
	StartKind model.Kind
}

func Run(ctx context.Context, opts Options) error {
	applyThemePreference()
	applyProfile(opts.Profile)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m := newAppModel(ctx, opts)
	defer m.close()
	_, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	return err
}
