// Package monitor renders a live terminal dashboard of pipeline activity.
package monitor

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"

	"stickergif/pkg/bus"
	"stickergif/pkg/dispatch"
)

// StatsFunc returns current dispatcher counters.
type StatsFunc func() dispatch.Stats

// Run shows the dashboard until the user quits or ctx is done. A quit by the
// user returns nil; callers treat it as a shutdown request.
func Run(ctx context.Context, events <-chan bus.Event, stats StatsFunc) error {
	program := tea.NewProgram(
		newModel(events, stats),
		tea.WithContext(ctx),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)

	_, err := program.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
