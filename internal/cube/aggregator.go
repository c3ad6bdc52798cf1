package cube

import (
	"math"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultWheelDelay is the quiet period after the last wheel event
	// before the burst commits.
	DefaultWheelDelay = 50 * time.Millisecond

	// DefaultSwipeThreshold is the minimum |deltaY| in pixels, exclusive,
	// for a touch sequence to count as a swipe.
	DefaultSwipeThreshold = 30.0
)

// Key is a navigation key, named as in DOM KeyboardEvent.key.
type Key string

const (
	KeyArrowRight Key = "ArrowRight"
	KeyArrowDown  Key = "ArrowDown"
	KeyArrowLeft  Key = "ArrowLeft"
	KeyArrowUp    Key = "ArrowUp"
)

// ParseKey accepts DOM key names and the short forms right/down/left/up.
func ParseKey(s string) (Key, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "arrowright", "right":
		return KeyArrowRight, true
	case "arrowdown", "down":
		return KeyArrowDown, true
	case "arrowleft", "left":
		return KeyArrowLeft, true
	case "arrowup", "up":
		return KeyArrowUp, true
	default:
		return Key(s), false
	}
}

// Step returns the step a key maps to, or false for keys that do not
// navigate.
func (k Key) Step() (Step, bool) {
	switch k {
	case KeyArrowRight, KeyArrowDown:
		return Advance, true
	case KeyArrowLeft, KeyArrowUp:
		return Retreat, true
	default:
		return 0, false
	}
}

// Aggregator normalizes wheel, touch and keyboard input into steps on a
// Sink. Wheel input is debounced; touch and key input commit immediately.
//
// Thread-safe: producers may call from any goroutine. Commits are
// delivered outside the internal lock. Wheel commits run on whatever
// goroutine the Scheduler fires on.
type Aggregator struct {
	mu sync.Mutex

	sink      Sink
	wheel     *Debouncer
	threshold float64
	onFirst   func()

	interacted bool

	touching    bool
	touchStartY float64
	touchMoved  bool
}

// AggregatorOption configures an Aggregator.
type AggregatorOption func(*aggregatorConfig)

type aggregatorConfig struct {
	sched     Scheduler
	delay     time.Duration
	threshold float64
	onFirst   func()
}

// WithScheduler sets the scheduler used for the wheel debounce.
func WithScheduler(s Scheduler) AggregatorOption {
	return func(c *aggregatorConfig) { c.sched = s }
}

// WithWheelDelay overrides DefaultWheelDelay.
func WithWheelDelay(d time.Duration) AggregatorOption {
	return func(c *aggregatorConfig) { c.delay = d }
}

// WithSwipeThreshold overrides DefaultSwipeThreshold.
func WithSwipeThreshold(px float64) AggregatorOption {
	return func(c *aggregatorConfig) { c.threshold = px }
}

// WithFirstInteraction registers a callback fired once, on the first wheel
// event or the first completed touch sequence that moved.
func WithFirstInteraction(f func()) AggregatorOption {
	return func(c *aggregatorConfig) { c.onFirst = f }
}

// NewAggregator creates an aggregator feeding sink.
func NewAggregator(sink Sink, opts ...AggregatorOption) *Aggregator {
	cfg := aggregatorConfig{
		delay:     DefaultWheelDelay,
		threshold: DefaultSwipeThreshold,
	}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.delay <= 0 {
		cfg.delay = DefaultWheelDelay
	}
	if cfg.threshold < 0 {
		cfg.threshold = DefaultSwipeThreshold
	}
	return &Aggregator{
		sink:      sink,
		wheel:     NewDebouncer(cfg.delay, cfg.sched),
		threshold: cfg.threshold,
		onFirst:   cfg.onFirst,
	}
}

// Wheel handles one wheel event. Positive deltaY advances. Only the last
// event of a burst commits, once the wheel delay passes without another.
func (a *Aggregator) Wheel(deltaY float64) {
	step := Retreat
	if deltaY > 0 {
		step = Advance
	}

	a.mu.Lock()
	first := a.markInteractedLocked()
	a.mu.Unlock()

	a.wheel.Trigger(func() { a.sink.Commit(step) })

	if first {
		a.onFirst()
	}
}

// TouchStart begins a touch sequence at vertical coordinate y.
func (a *Aggregator) TouchStart(y float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.touching = true
	a.touchStartY = y
	a.touchMoved = false
}

// TouchMove records that the current touch moved. A move with no touch in
// progress is ignored.
func (a *Aggregator) TouchMove() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.touching {
		a.touchMoved = true
	}
}

// TouchEnd completes the touch sequence at vertical coordinate y. Taps
// (no move) and swipes of at most the threshold are dropped; otherwise an
// upward swipe (start below end) advances.
func (a *Aggregator) TouchEnd(y float64) {
	a.mu.Lock()
	if !a.touching || !a.touchMoved {
		a.touching = false
		a.mu.Unlock()
		return
	}
	a.touching = false
	deltaY := a.touchStartY - y
	first := a.markInteractedLocked()
	a.mu.Unlock()

	if first {
		a.onFirst()
	}

	if math.Abs(deltaY) <= a.threshold {
		return
	}
	if deltaY > 0 {
		a.sink.Commit(Advance)
	} else {
		a.sink.Commit(Retreat)
	}
}

// Key handles a key press. Non-navigation keys are dropped.
func (a *Aggregator) Key(k Key) {
	if step, ok := k.Step(); ok {
		a.sink.Commit(step)
	}
}

// Interacted reports whether the first-interaction flag has been set.
func (a *Aggregator) Interacted() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.interacted
}

// WheelPending reports whether a wheel commit is waiting on the debounce.
func (a *Aggregator) WheelPending() bool {
	return a.wheel.Pending()
}

// Close cancels any pending wheel commit.
func (a *Aggregator) Close() {
	a.wheel.Cancel()
}

// markInteractedLocked sets the first-interaction flag and reports whether
// this call was the one to set it with a callback to run. a.mu must be held.
func (a *Aggregator) markInteractedLocked() bool {
	if a.interacted {
		return false
	}
	a.interacted = true
	return a.onFirst != nil
}
