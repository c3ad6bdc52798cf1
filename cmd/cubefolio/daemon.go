package main

import (
	"context"
	"log/slog"
	"time"
)

// ============================================================================
// Central Daemon Loop
// ============================================================================
//
// The daemon goroutine is the only owner of DaemonState and therefore of the
// cube Controller. It samples the controller once per frame tick, reduces
// incoming events and executes the resulting commands from explicit queues
// (no nested or re-entrant execution). Broadcasts are forwarded to the
// WebSocket broadcaster without blocking.
//
// ============================================================================

// runDaemon runs until ctx is canceled or events is closed.
func runDaemon(
	ctx context.Context,
	events <-chan Event,
	broadcasts chan<- StateBroadcast,
	store projectLister,
	cfg ReducerConfig,
	state *DaemonState,
	frameHz int,
	logger *slog.Logger,
) {
	if state == nil {
		logger.Error("daemon state is nil")
		return
	}
	if frameHz <= 0 {
		frameHz = defaultFrameHz
	}

	ticker := time.NewTicker(time.Second / time.Duration(frameHz))
	defer ticker.Stop()

	lastTick := time.Now()

	var eventQueue []Event
	var cmdQueue []Command

	enqueueEvent := func(ev Event) {
		eventQueue = append(eventQueue, ev)
	}

	publish := func(bs []StateBroadcast) {
		if broadcasts == nil {
			return
		}
		for _, b := range bs {
			select {
			case broadcasts <- b:
			default:
				logger.Warn("broadcast queue full, dropping state broadcast", "type", broadcastName(b))
			}
		}
	}

	flushEvents := func() {
		for len(eventQueue) > 0 {
			ev := eventQueue[0]
			eventQueue = eventQueue[1:]

			rr := Reduce(state, ev, cfg)
			if rr.State != nil {
				state = rr.State
			}
			cmdQueue = append(cmdQueue, rr.Commands...)
			publish(rr.Broadcasts)
		}
	}

	flushCommands := func() {
		for len(cmdQueue) > 0 {
			cmd := cmdQueue[0]
			cmdQueue = cmdQueue[1:]

			runEffect(ctx, store, cmd, logger, enqueueEvent)

			// Observations are reduced promptly so follow-up commands run in
			// the same cycle.
			flushEvents()
		}
	}

	logger.Info("daemon started", "frame_hz", frameHz, "faces", state.Cube.Faces())

	// Prime the project count for state_init.
	enqueueEvent(ProjectsChanged{})
	flushEvents()
	flushCommands()

	for {
		select {
		case <-ctx.Done():
			logger.Info("daemon stopping (context canceled)")
			return

		case ev, ok := <-events:
			if !ok {
				logger.Info("daemon stopping (events channel closed)")
				return
			}
			logger.Debug("daemon event", "event", eventName(ev))
			enqueueEvent(TimedEvent{Event: ev, At: time.Now()})
			flushEvents()
			flushCommands()

		case now := <-ticker.C:
			dt := now.Sub(lastTick).Seconds()
			lastTick = now
			enqueueEvent(Tick{Now: now, Dt: dt})
			flushEvents()
			flushCommands()
		}
	}
}

func eventName(ev Event) string {
	switch ev.(type) {
	case Advance:
		return "advance"
	case Retreat:
		return "retreat"
	case SetFace:
		return "set_face"
	case DismissHint:
		return "dismiss_hint"
	case ProjectsChanged:
		return "projects_changed"
	case RequestStateSnapshot:
		return "request_state_snapshot"
	default:
		return "other"
	}
}

func broadcastName(b StateBroadcast) string {
	switch b.(type) {
	case BroadcastFrame:
		return "frame"
	case BroadcastFaceChanged:
		return "face_changed"
	case BroadcastHintHidden:
		return "hint_hidden"
	case BroadcastProjectsChanged:
		return "projects_changed"
	default:
		return "unknown"
	}
}
