package main

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"cubefolio/internal/portfolio"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"go.uber.org/goleak"
)

type fakeLister struct {
	projects []portfolio.Project
	err      error
	calls    atomic.Int32
}

func (f *fakeLister) List(ctx context.Context) ([]portfolio.Project, error) {
	f.calls.Add(1)
	return f.projects, f.err
}

func nextBroadcast(t *testing.T, bc <-chan StateBroadcast, match func(StateBroadcast) bool) StateBroadcast {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case b := <-bc:
			if match(b) {
				return b
			}
		case <-deadline:
			t.Fatalf("timeout waiting for broadcast")
			return nil
		}
	}
}

func TestRunDaemon_EndToEnd(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ctx, cancel := context.WithCancel(context.Background())
	events := make(chan Event, 8)
	bc := make(chan StateBroadcast, 512)
	store := &fakeLister{projects: make([]portfolio.Project, 2)}

	done := make(chan struct{})
	go func() {
		defer close(done)
		runDaemon(ctx, events, bc, store, ReducerConfig{}, NewDaemonState(nil), 200, slog.Default())
	}()

	// The store is read on startup.
	pc := nextBroadcast(t, bc, func(b StateBroadcast) bool { _, ok := b.(BroadcastProjectsChanged); return ok })
	if diff := cmp.Diff(BroadcastProjectsChanged{Count: 2}, pc, cmpopts.IgnoreFields(BroadcastProjectsChanged{}, "At")); diff != "" {
		t.Fatalf("projects_changed mismatch (-want +got):\n%s", diff)
	}

	events <- Advance{}
	fc := nextBroadcast(t, bc, func(b StateBroadcast) bool { _, ok := b.(BroadcastFaceChanged); return ok }).(BroadcastFaceChanged)
	if fc.Face != 1 {
		t.Fatalf("expected face 1, got %+v", fc)
	}

	settled := nextBroadcast(t, bc, func(b StateBroadcast) bool {
		f, ok := b.(BroadcastFrame)
		return ok && !f.Animating && f.Face == 1
	}).(BroadcastFrame)
	if settled.Angle != settled.Target {
		t.Fatalf("settled frame should sit on target: %+v", settled)
	}

	reply := make(chan StateSnapshot, 1)
	events <- RequestStateSnapshot{Reply: reply}
	select {
	case snap := <-reply:
		if snap.Cube.Face != 1 || snap.Label != "Architecture Visualisation" || snap.ProjectCount != 2 || !snap.ProjectsKnown {
			t.Fatalf("unexpected snapshot: %+v", snap)
		}
	case <-time.After(time.Second):
		t.Fatalf("no snapshot reply")
	}

	events <- ProjectsChanged{}
	waitUntil(t, time.Second, func() bool { return store.calls.Load() == 2 }, "store not re-read")

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("daemon did not stop on cancel")
	}
}

func TestRunDaemon_StopsWhenEventsClosed(t *testing.T) {
	events := make(chan Event)
	done := make(chan struct{})
	go func() {
		defer close(done)
		runDaemon(context.Background(), events, nil, nil, ReducerConfig{}, NewDaemonState(nil), 60, slog.Default())
	}()
	close(events)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("daemon did not stop when events closed")
	}
}

func TestRunEffect(t *testing.T) {
	var got []Event
	onEvent := func(ev Event) { got = append(got, ev) }

	runEffect(context.Background(), &fakeLister{projects: make([]portfolio.Project, 3)}, CmdCountProjects{}, slog.Default(), onEvent)
	if ev, ok := got[0].(ProjectsObserved); !ok || ev.Count != 3 {
		t.Fatalf("expected ProjectsObserved{3}, got %#v", got[0])
	}

	diskErr := errors.New("disk gone")
	runEffect(context.Background(), &fakeLister{err: diskErr}, CmdCountProjects{}, slog.Default(), onEvent)
	if ev, ok := got[1].(CommandFailed); !ok || !errors.Is(ev.Err, diskErr) {
		t.Fatalf("expected CommandFailed(disk gone), got %#v", got[1])
	}

	runEffect(context.Background(), nil, CmdCountProjects{}, slog.Default(), onEvent)
	if ev, ok := got[2].(CommandFailed); !ok || ev.Err.Error() != "no project store" {
		t.Fatalf("expected no-store failure, got %#v", got[2])
	}

	// Snapshot delivery never blocks, even without a reader.
	full := make(chan StateSnapshot)
	runEffect(context.Background(), nil, CmdPublishStateSnapshot{Reply: full}, slog.Default(), onEvent)
	if len(got) != 3 {
		t.Fatalf("snapshot delivery should not emit events, got %d", len(got))
	}
}
