package main

import (
	"errors"
	"math"
	"testing"
	"time"

	"cubefolio/internal/cube"

	"github.com/google/go-cmp/cmp"
)

func tick(s *DaemonState, n int) []StateBroadcast {
	var out []StateBroadcast
	now := time.Unix(1000, 0)
	for i := 0; i < n; i++ {
		now = now.Add(time.Second / 60)
		out = append(out, Reduce(s, Tick{Now: now, Dt: 1.0 / 60}, ReducerConfig{}).Broadcasts...)
	}
	return out
}

func framesOf(bs []StateBroadcast) []BroadcastFrame {
	var out []BroadcastFrame
	for _, b := range bs {
		if f, ok := b.(BroadcastFrame); ok {
			out = append(out, f)
		}
	}
	return out
}

func TestReduce_AdvanceEmitsFaceChanged(t *testing.T) {
	s := NewDaemonState(nil)
	at := time.Unix(2000, 0)

	rr := Reduce(s, TimedEvent{Event: Advance{}, At: at}, ReducerConfig{})
	want := []StateBroadcast{BroadcastFaceChanged{Face: 1, Label: "Architecture Visualisation", Step: cube.Advance, At: at}}
	if diff := cmp.Diff(want, rr.Broadcasts); diff != "" {
		t.Fatalf("broadcasts mismatch (-want +got):\n%s", diff)
	}
	if len(rr.Commands) != 0 {
		t.Fatalf("advance should not emit commands, got %v", rr.Commands)
	}
	if got := s.Cube.Target(); math.Abs(got-math.Pi/2) > 1e-12 {
		t.Fatalf("target = %v, want π/2", got)
	}
	if s.Cube.Current() != 0 {
		t.Fatalf("advance must not move the current angle")
	}

	rr = Reduce(s, TimedEvent{Event: Retreat{}, At: at}, ReducerConfig{})
	fc := rr.Broadcasts[0].(BroadcastFaceChanged)
	if fc.Face != 0 || fc.Label != "3D Modelling" || fc.Step != cube.Retreat {
		t.Fatalf("unexpected retreat broadcast: %+v", fc)
	}
}

func TestReduce_RetreatWrapsToLastFace(t *testing.T) {
	s := NewDaemonState(nil)
	rr := Reduce(s, Retreat{}, ReducerConfig{})
	fc := rr.Broadcasts[0].(BroadcastFaceChanged)
	if fc.Face != 3 || fc.Label != "Animation" {
		t.Fatalf("expected face 3 Animation, got %+v", fc)
	}
	if got := s.Cube.Target(); math.Abs(got+math.Pi/2) > 1e-12 {
		t.Fatalf("target = %v, want -π/2", got)
	}
}

func TestReduce_FramesStopOnceSettled(t *testing.T) {
	s := NewDaemonState(nil)

	// At rest: exactly one frame is published, then nothing.
	if got := framesOf(tick(s, 5)); len(got) != 1 {
		t.Fatalf("expected one initial frame at rest, got %d", len(got))
	}

	Reduce(s, Advance{}, ReducerConfig{})
	frames := framesOf(tick(s, 300))
	if len(frames) < 10 {
		t.Fatalf("expected an animation, got %d frames", len(frames))
	}
	last := frames[len(frames)-1]
	if last.Animating || last.Angle != s.Cube.Target() {
		t.Fatalf("last frame should be settled on target, got %+v", last)
	}
	for i, f := range frames[:len(frames)-1] {
		if !f.Animating {
			t.Fatalf("frame %d published while not animating: %+v", i, f)
		}
	}
	if !s.Cube.Settled() {
		t.Fatalf("cube should be settled after 300 frames")
	}

	if got := framesOf(tick(s, 10)); len(got) != 0 {
		t.Fatalf("settled cube should publish no frames, got %d", len(got))
	}
}

func TestReduce_FrameEpsilonThinsFrames(t *testing.T) {
	all := NewDaemonState(nil)
	thin := NewDaemonState(nil)
	Reduce(all, Advance{}, ReducerConfig{})
	Reduce(thin, Advance{}, ReducerConfig{})

	var nAll, nThin int
	now := time.Unix(0, 0)
	for i := 0; i < 300; i++ {
		now = now.Add(time.Second / 60)
		nAll += len(framesOf(Reduce(all, Tick{Now: now}, ReducerConfig{}).Broadcasts))
		nThin += len(framesOf(Reduce(thin, Tick{Now: now}, ReducerConfig{FrameEpsilon: 0.05}).Broadcasts))
	}
	if nThin >= nAll {
		t.Fatalf("epsilon should publish fewer frames: %d vs %d", nThin, nAll)
	}
	if thin.Frame.Animating {
		t.Fatalf("final settle must still be published")
	}
}

func TestPathToFace(t *testing.T) {
	A, R := cube.Advance, cube.Retreat
	tests := []struct {
		from, to, faces int
		want            []cube.Step
	}{
		{0, 0, 4, nil},
		{0, 1, 4, []cube.Step{A}},
		{0, 3, 4, []cube.Step{R}},
		{0, 2, 4, []cube.Step{A, A}},
		{3, 0, 4, []cube.Step{A}},
		{1, 4, 4, nil},
		{1, -1, 4, nil},
		{0, 3, 6, []cube.Step{A, A, A}},
		{0, 4, 6, []cube.Step{R, R}},
	}
	for _, tt := range tests {
		got := pathToFace(tt.from, tt.to, tt.faces)
		if diff := cmp.Diff(tt.want, got); diff != "" && !(len(tt.want) == 0 && len(got) == 0) {
			t.Errorf("pathToFace(%d, %d, %d) mismatch (-want +got):\n%s", tt.from, tt.to, tt.faces, diff)
		}
	}
}

func TestReduce_SetFace(t *testing.T) {
	s := NewDaemonState(nil)
	rr := Reduce(s, SetFace{Face: 3}, ReducerConfig{})
	if len(rr.Broadcasts) != 1 || s.Cube.Face() != 3 {
		t.Fatalf("expected one retreat to face 3, got face %d and %d broadcasts", s.Cube.Face(), len(rr.Broadcasts))
	}

	rr = Reduce(s, SetFace{Face: 1}, ReducerConfig{})
	if len(rr.Broadcasts) != 2 || s.Cube.Face() != 1 {
		t.Fatalf("expected two steps to face 1, got face %d and %d broadcasts", s.Cube.Face(), len(rr.Broadcasts))
	}

	rr = Reduce(s, SetFace{Face: 9}, ReducerConfig{})
	if len(rr.Broadcasts) != 0 || s.Cube.Face() != 1 {
		t.Fatalf("out-of-range face should be ignored")
	}
}

func TestReduce_HintHiddenOnce(t *testing.T) {
	s := NewDaemonState(nil)
	at := time.Unix(3000, 0)

	rr := Reduce(s, TimedEvent{Event: DismissHint{}, At: at}, ReducerConfig{})
	if diff := cmp.Diff([]StateBroadcast{BroadcastHintHidden{At: at}}, rr.Broadcasts); diff != "" {
		t.Fatalf("broadcasts mismatch (-want +got):\n%s", diff)
	}
	if s.Hint.Visible || !s.Hint.HiddenAt.Equal(at) {
		t.Fatalf("hint should be hidden at %v, got %+v", at, s.Hint)
	}

	rr = Reduce(s, DismissHint{}, ReducerConfig{})
	if len(rr.Broadcasts) != 0 {
		t.Fatalf("second dismiss should be silent, got %v", rr.Broadcasts)
	}
}

func TestReduce_ProjectsFlow(t *testing.T) {
	s := NewDaemonState(nil)

	rr := Reduce(s, ProjectsChanged{}, ReducerConfig{})
	if diff := cmp.Diff([]Command{CmdCountProjects{}}, rr.Commands); diff != "" {
		t.Fatalf("commands mismatch (-want +got):\n%s", diff)
	}

	at := time.Unix(4000, 0)
	rr = Reduce(s, ProjectsObserved{Count: 5, At: at}, ReducerConfig{})
	if diff := cmp.Diff([]StateBroadcast{BroadcastProjectsChanged{Count: 5, At: at}}, rr.Broadcasts); diff != "" {
		t.Fatalf("broadcasts mismatch (-want +got):\n%s", diff)
	}
	if !s.Projects.Known || s.Projects.Count != 5 {
		t.Fatalf("projects state not updated: %+v", s.Projects)
	}

	rr = Reduce(s, CommandFailed{Command: CmdCountProjects{}, Err: errors.New("disk")}, ReducerConfig{})
	if len(rr.Broadcasts) != 0 || len(rr.Commands) != 0 || s.Projects.Count != 5 {
		t.Fatalf("a failed read should keep the cached count")
	}
}

func TestReduce_RequestStateSnapshot(t *testing.T) {
	s := NewDaemonState([]string{"One", "Two", "Three"})
	Reduce(s, Advance{}, ReducerConfig{})
	tick(s, 3)

	reply := make(chan StateSnapshot, 1)
	rr := Reduce(s, RequestStateSnapshot{Reply: reply}, ReducerConfig{})
	if len(rr.Commands) != 1 {
		t.Fatalf("expected one command, got %d", len(rr.Commands))
	}
	cmd, ok := rr.Commands[0].(CmdPublishStateSnapshot)
	if !ok {
		t.Fatalf("expected CmdPublishStateSnapshot, got %T", rr.Commands[0])
	}
	snap := cmd.Snapshot
	if snap.Cube.Face != 1 || snap.Label != "Two" || len(snap.Faces) != 3 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if snap.Cube.Current != s.Cube.Current() || !snap.Cube.Animating {
		t.Fatalf("snapshot should carry the animated angle: %+v", snap.Cube)
	}

	// The snapshot is a copy.
	snap.Faces[0].Label = "changed"
	if s.Faces[0].Label != "One" {
		t.Fatalf("snapshot shares the face slice with state")
	}
}

func TestReduce_RawInputIsIgnored(t *testing.T) {
	s := NewDaemonState(nil)
	for _, ev := range []Event{Wheel{DeltaY: 100}, TouchEnd{Y: 10}, KeyPress{Key: "ArrowRight"}} {
		rr := Reduce(s, ev, ReducerConfig{})
		if len(rr.Broadcasts) != 0 || len(rr.Commands) != 0 {
			t.Fatalf("%T reached the reducer un-normalised and had an effect", ev)
		}
	}
	if s.Cube.Face() != 0 {
		t.Fatalf("raw input moved the cube")
	}
}
