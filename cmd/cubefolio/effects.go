package main

import (
	"context"
	"log/slog"
	"time"

	"cubefolio/internal/portfolio"
)

// projectLister is the slice of portfolio.Store the effects layer reads.
type projectLister interface {
	List(ctx context.Context) ([]portfolio.Project, error)
}

// storeReadTimeout bounds a single store read so a stuck disk never stalls
// the frame loop for long.
const storeReadTimeout = 2 * time.Second

// runEffect executes one reducer command and reports observations through
// onEvent. It is only called from the daemon goroutine.
func runEffect(
	ctx context.Context,
	store projectLister,
	cmd Command,
	logger *slog.Logger,
	onEvent func(Event),
) {
	if onEvent == nil {
		return
	}

	now := time.Now()

	switch c := cmd.(type) {
	case CmdPublishStateSnapshot:
		if c.Reply == nil {
			logger.Warn("state snapshot requested with nil reply channel")
			return
		}

		// Never block the daemon loop on a requester.
		select {
		case c.Reply <- c.Snapshot:
		default:
			logger.Warn("state snapshot reply channel not ready; dropping snapshot")
		}

	case CmdCountProjects:
		if store == nil {
			onEvent(CommandFailed{Command: cmd, Err: errNoStore{}, At: now})
			return
		}
		readCtx, cancel := context.WithTimeout(ctx, storeReadTimeout)
		defer cancel()

		projects, err := store.List(readCtx)
		if err != nil {
			logger.Error("project store read failed", "error", err)
			onEvent(CommandFailed{Command: cmd, Err: err, At: now})
			return
		}
		onEvent(ProjectsObserved{Count: len(projects), At: now})

	default:
		logger.Warn("unknown command type", "command", cmd.String())
		onEvent(CommandFailed{
			Command: cmd,
			Err:     errUnknownCommand{cmd: cmd},
			At:      now,
		})
	}
}

type errNoStore struct{}

func (errNoStore) Error() string { return "no project store" }

type errUnknownCommand struct {
	cmd Command
}

func (e errUnknownCommand) Error() string { return "unknown command: " + e.cmd.String() }
