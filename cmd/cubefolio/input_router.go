package main

import (
	"log/slog"
	"time"

	"cubefolio/internal/cube"
)

// InputRouter normalises raw input (wheel, touch, key) through its own
// cube.Aggregator and forwards committed steps to the daemon. Each input
// source gets its own router so that one client's wheel burst never merges
// with another's.
type InputRouter struct {
	agg    *cube.Aggregator
	events chan<- Event
	source string
	logger *slog.Logger
}

// committedStepWait bounds how long a committed advance/retreat waits for
// room in a full event queue before it is dropped.
const committedStepWait = 100 * time.Millisecond

// InputConfig tunes the aggregator behind a router.
type InputConfig struct {
	WheelDelay     time.Duration
	SwipeThreshold float64
}

// NewInputRouter creates a router that feeds events. The first wheel or
// swipe seen by this router also sends DismissHint.
func NewInputRouter(events chan<- Event, cfg InputConfig, source string, logger *slog.Logger) *InputRouter {
	if cfg.SwipeThreshold <= 0 {
		cfg.SwipeThreshold = cube.DefaultSwipeThreshold
	}
	r := &InputRouter{events: events, source: source, logger: logger}
	r.agg = cube.NewAggregator(cube.SinkFunc(r.commit),
		cube.WithWheelDelay(cfg.WheelDelay),
		cube.WithSwipeThreshold(cfg.SwipeThreshold),
		cube.WithFirstInteraction(func() { r.send(DismissHint{}) }),
	)
	return r
}

// Route feeds raw input into the aggregator and passes any other event
// straight through. Steps committed by the aggregator wait up to
// committedStepWait for queue space; everything else is dropped at once
// when the queue is full.
func (r *InputRouter) Route(ev Event) {
	switch e := ev.(type) {
	case Wheel:
		r.agg.Wheel(e.DeltaY)
	case TouchStart:
		r.agg.TouchStart(e.Y)
	case TouchMove:
		r.agg.TouchMove()
	case TouchEnd:
		r.agg.TouchEnd(e.Y)
	case KeyPress:
		k, ok := cube.ParseKey(e.Key)
		if !ok {
			r.logger.Debug("ignoring key", "source", r.source, "key", e.Key)
			return
		}
		r.agg.Key(k)
	default:
		r.send(ev)
	}
}

// Close cancels a pending wheel commit.
func (r *InputRouter) Close() {
	r.agg.Close()
}

func (r *InputRouter) commit(s cube.Step) {
	switch s {
	case cube.Advance:
		r.sendStep(Advance{})
	case cube.Retreat:
		r.sendStep(Retreat{})
	}
}

// sendStep keeps committed steps in step with the user's input when the
// daemon is briefly behind.
func (r *InputRouter) sendStep(ev Event) {
	if trySend(r.events, ev) {
		return
	}
	t := time.NewTimer(committedStepWait)
	defer t.Stop()
	select {
	case r.events <- ev:
	case <-t.C:
		r.logger.Warn("event queue full, dropping step", "source", r.source, "event", eventName(ev))
	}
}

func (r *InputRouter) send(ev Event) {
	if !trySend(r.events, ev) {
		r.logger.Warn("event queue full, dropping input", "source", r.source, "event", eventName(ev))
	}
}

// trySend performs a non-blocking send to the daemon's event channel.
func trySend(events chan<- Event, ev Event) bool {
	select {
	case events <- ev:
		return true
	default:
		return false
	}
}
