package main

import (
	"fmt"
	"math"
	"time"

	"cubefolio/internal/cube"
)

// This file implements the reducer-style architecture building blocks:
//
//   - Events: inputs to the reducer (committed steps, frame ticks, store observations)
//   - Commands: side effects requested by the reducer (snapshot replies, store reads)
//   - Broadcasts: state changes to fan out to WebSocket clients
//   - Reduce(): computes next state, commands and broadcasts without performing I/O
//
// The daemon loop is responsible for executing Commands and feeding observations back as Events.

// ==============================
// Events
// ==============================

// Event is the input to the reducer.
type Event interface {
	eventMarker()
}

// Tick is emitted by the daemon loop once per frame.
// Dt is wall-clock delta in seconds between ticks.
type Tick struct {
	Now time.Time
	Dt  float64
}

func (Tick) eventMarker() {}

// TimedEvent stamps an external event with its arrival time.
type TimedEvent struct {
	Event Event
	At    time.Time
}

func (TimedEvent) eventMarker() {}

// RequestStateSnapshot asks the daemon for a copy of its state. The reply
// is delivered through CmdPublishStateSnapshot.
type RequestStateSnapshot struct {
	Reply chan<- StateSnapshot
}

func (RequestStateSnapshot) eventMarker() {}

// ProjectsChanged reports that the project store may have new content.
type ProjectsChanged struct{}

func (ProjectsChanged) eventMarker() {}

// ProjectsObserved is emitted after a successful store read.
type ProjectsObserved struct {
	Count int
	At    time.Time
}

func (ProjectsObserved) eventMarker() {}

// CommandFailed is emitted when a command could not be executed.
type CommandFailed struct {
	Command Command
	Err     error
	At      time.Time
}

func (CommandFailed) eventMarker() {}

// ==============================
// Commands
// ==============================

// Command is a side effect requested by the reducer.
type Command interface {
	commandMarker()
	String() string
}

// CmdPublishStateSnapshot delivers a reducer-produced snapshot to a requester.
type CmdPublishStateSnapshot struct {
	Reply    chan<- StateSnapshot
	Snapshot StateSnapshot
}

func (CmdPublishStateSnapshot) commandMarker() {}
func (c CmdPublishStateSnapshot) String() string {
	return fmt.Sprintf("CmdPublishStateSnapshot(face=%d)", c.Snapshot.Cube.Face)
}

// CmdCountProjects reads the project store.
type CmdCountProjects struct{}

func (CmdCountProjects) commandMarker() {}
func (CmdCountProjects) String() string { return "CmdCountProjects()" }

// ==============================
// Broadcasts
// ==============================

// StateBroadcast is a state change published to WebSocket clients.
type StateBroadcast interface {
	broadcastMarker()
}

// BroadcastFrame carries one sampled animation frame.
type BroadcastFrame struct {
	Angle     float64
	Target    float64
	Face      int
	Animating bool
	At        time.Time
}

func (BroadcastFrame) broadcastMarker() {}

// BroadcastFaceChanged is emitted after every committed step.
type BroadcastFaceChanged struct {
	Face  int
	Label string
	Step  cube.Step
	At    time.Time
}

func (BroadcastFaceChanged) broadcastMarker() {}

// BroadcastHintHidden is emitted once, on the first interaction.
type BroadcastHintHidden struct {
	At time.Time
}

func (BroadcastHintHidden) broadcastMarker() {}

// BroadcastProjectsChanged is emitted after the project store was re-read.
type BroadcastProjectsChanged struct {
	Count int
	At    time.Time
}

func (BroadcastProjectsChanged) broadcastMarker() {}

// ==============================
// Reducer input/output
// ==============================

// ReducerConfig holds reducer policy.
type ReducerConfig struct {
	// FrameEpsilon is the smallest angle change (radians) that publishes a
	// new frame. Zero publishes every change.
	FrameEpsilon float64
}

// ReduceResult is the output of Reduce(): next state plus the Commands to
// execute and the Broadcasts to publish.
type ReduceResult struct {
	State      *DaemonState
	Commands   []Command
	Broadcasts []StateBroadcast
}

// Reduce applies one event to the state.
//
// Rules:
// - Must not perform I/O
// - Must not block
// - Only mutates the given state (including its Controller)
func Reduce(s *DaemonState, e Event, cfg ReducerConfig) ReduceResult {
	if s == nil {
		s = NewDaemonState(nil)
	}

	at := time.Now()
	if te, ok := e.(TimedEvent); ok {
		e = te.Event
		if !te.At.IsZero() {
			at = te.At
		}
	}

	var cmds []Command
	var bcasts []StateBroadcast

	commit := func(step cube.Step) {
		s.Cube.Commit(step)
		face := s.Cube.Face()
		bcasts = append(bcasts, BroadcastFaceChanged{
			Face:  face,
			Label: s.Label(face),
			Step:  step,
			At:    at,
		})
	}

	switch ev := e.(type) {
	case Tick:
		angle := s.Cube.SampleFrame()
		animating := s.Cube.Animating()
		if !s.Frame.Published || animating != s.Frame.Animating || frameMoved(s.Frame.Angle, angle, cfg.FrameEpsilon) {
			s.Frame = FrameState{Angle: angle, Animating: animating, Published: true}
			bcasts = append(bcasts, BroadcastFrame{
				Angle:     angle,
				Target:    s.Cube.Target(),
				Face:      s.Cube.Face(),
				Animating: animating,
				At:        ev.Now,
			})
		}

	case Advance:
		commit(cube.Advance)

	case Retreat:
		commit(cube.Retreat)

	case SetFace:
		for _, step := range pathToFace(s.Cube.Face(), ev.Face, s.Cube.Faces()) {
			commit(step)
		}

	case DismissHint:
		if s.Hint.Visible {
			s.Hint = HintState{Visible: false, HiddenAt: at}
			bcasts = append(bcasts, BroadcastHintHidden{At: at})
		}

	case ProjectsChanged:
		cmds = append(cmds, CmdCountProjects{})

	case ProjectsObserved:
		s.Projects = ProjectsState{Count: ev.Count, Known: true, At: ev.At}
		bcasts = append(bcasts, BroadcastProjectsChanged{Count: ev.Count, At: ev.At})

	case CommandFailed:
		// The effects layer already logged it; a later change retries.

	case RequestStateSnapshot:
		cmds = append(cmds, CmdPublishStateSnapshot{
			Reply:    ev.Reply,
			Snapshot: s.Snapshot(at),
		})
	}

	return ReduceResult{State: s, Commands: cmds, Broadcasts: bcasts}
}

// frameMoved reports whether the angle changed enough to publish.
func frameMoved(prev, cur, eps float64) bool {
	if eps <= 0 {
		return prev != cur
	}
	return math.Abs(cur-prev) >= eps
}

// pathToFace returns the steps from face `from` to face `to` in the
// shorter direction. Ties advance. Out-of-range targets yield no steps.
func pathToFace(from, to, faces int) []cube.Step {
	if faces <= 0 || to < 0 || to >= faces || from == to {
		return nil
	}
	forward := ((to-from)%faces + faces) % faces
	if forward <= faces-forward {
		return repeatStep(cube.Advance, forward)
	}
	return repeatStep(cube.Retreat, faces-forward)
}

func repeatStep(s cube.Step, n int) []cube.Step {
	steps := make([]cube.Step, n)
	for i := range steps {
		steps[i] = s
	}
	return steps
}
