package main

import (
	"time"

	"cubefolio/internal/cube"
)

// DaemonState is the top-level, daemon-owned state container.
//
// Only the daemon goroutine touches it. Other goroutines observe it through
// reducer-emitted broadcasts and RequestStateSnapshot.
type DaemonState struct {
	// Cube is the single rotation controller for every connected view.
	Cube *cube.Controller

	// Faces is the catalog, one entry per cube face.
	Faces []cube.Face

	Frame    FrameState
	Hint     HintState
	Projects ProjectsState
}

// FrameState remembers the last published frame so the reducer can
// suppress identical frames once the cube has settled.
type FrameState struct {
	Angle     float64
	Animating bool
	Published bool
}

// HintState tracks the scroll hint shown until the first interaction.
// It is global: the first interaction from any client hides it everywhere.
type HintState struct {
	Visible  bool
	HiddenAt time.Time
}

// ProjectsState is the daemon's cached view of the project store.
type ProjectsState struct {
	Count int
	Known bool
	At    time.Time
}

// NewDaemonState builds a state at rest on face 0 with the hint visible.
// Empty labels fall back to the default catalog.
func NewDaemonState(labels []string) *DaemonState {
	if len(labels) == 0 {
		labels = cube.DefaultFaceLabels
	}
	faces := cube.Catalog(labels)
	return &DaemonState{
		Cube:  cube.NewController(len(faces), nil),
		Faces: faces,
		Hint:  HintState{Visible: true},
	}
}

// Label returns the panel label for a face index, or "" when out of range.
func (s *DaemonState) Label(face int) string {
	if face < 0 || face >= len(s.Faces) {
		return ""
	}
	return s.Faces[face].Label
}

// StateSnapshot is an immutable copy of the daemon state, safe to hand to
// other goroutines.
type StateSnapshot struct {
	Cube          cube.State
	Label         string
	Faces         []cube.Face
	HintVisible   bool
	ProjectCount  int
	ProjectsKnown bool
	At            time.Time
}

// Snapshot copies the state for publishing.
func (s *DaemonState) Snapshot(now time.Time) StateSnapshot {
	cs := s.Cube.Snapshot()
	faces := make([]cube.Face, len(s.Faces))
	copy(faces, s.Faces)
	return StateSnapshot{
		Cube:          cs,
		Label:         s.Label(cs.Face),
		Faces:         faces,
		HintVisible:   s.Hint.Visible,
		ProjectCount:  s.Projects.Count,
		ProjectsKnown: s.Projects.Known,
		At:            now,
	}
}
