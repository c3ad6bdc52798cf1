package cube

import (
	"sort"
	"sync"
	"time"
)

// Timer is a scheduled task that can be cancelled.
type Timer interface {
	Stop() bool
}

// Scheduler runs f once after d has elapsed.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type systemScheduler struct{}

func (systemScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// SystemScheduler schedules on the runtime timer; callbacks run on their
// own goroutine.
var SystemScheduler Scheduler = systemScheduler{}

// Debouncer coalesces a burst of triggers into one run of the latest
// function, delay after the last trigger.
//
// Thread-safe. A timer that fires after being superseded or cancelled is
// ignored via a generation check, so a Stop that loses the race with an
// already-running callback still cannot commit a stale function.
type Debouncer struct {
	mu    sync.Mutex
	sched Scheduler
	delay time.Duration
	timer Timer
	gen   uint64
}

// NewDebouncer creates a debouncer. A nil scheduler uses SystemScheduler.
func NewDebouncer(delay time.Duration, sched Scheduler) *Debouncer {
	if sched == nil {
		sched = SystemScheduler
	}
	return &Debouncer{sched: sched, delay: delay}
}

// Trigger cancels any pending run and schedules f.
func (d *Debouncer) Trigger(f func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.timer = d.sched.AfterFunc(d.delay, func() {
		d.mu.Lock()
		if gen != d.gen {
			d.mu.Unlock()
			return
		}
		d.timer = nil
		d.mu.Unlock()
		f()
	})
}

// Cancel drops the pending run, if any.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
}

// Pending reports whether a run is scheduled.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

// ManualScheduler is a Scheduler whose clock only moves when the caller
// advances it. Due callbacks run on the advancing goroutine, which lets a
// frame loop keep every state mutation on one goroutine.
type ManualScheduler struct {
	mu    sync.Mutex
	now   time.Time
	seq   uint64
	tasks []*manualTask
}

type manualTask struct {
	s    *ManualScheduler
	at   time.Time
	seq  uint64
	f    func()
	done bool
}

// NewManualScheduler creates a scheduler whose clock starts at start.
func NewManualScheduler(start time.Time) *ManualScheduler {
	return &ManualScheduler{now: start}
}

// Now returns the scheduler clock.
func (m *ManualScheduler) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *ManualScheduler) AfterFunc(d time.Duration, f func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	t := &manualTask{s: m, at: m.now.Add(d), seq: m.seq, f: f}
	m.tasks = append(m.tasks, t)
	return t
}

func (t *manualTask) Stop() bool {
	m := t.s
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	m.remove(t)
	return true
}

// remove drops t from the queue; m.mu must be held.
func (m *ManualScheduler) remove(t *manualTask) {
	for i, x := range m.tasks {
		if x == t {
			m.tasks = append(m.tasks[:i], m.tasks[i+1:]...)
			return
		}
	}
}

// Pending returns the number of scheduled, unfired tasks.
func (m *ManualScheduler) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

// AdvanceTo moves the clock to t, running every task due at or before t in
// deadline order. Tasks scheduled by callbacks run too if they fall due.
// Returns the number of callbacks run. The clock never moves backwards.
func (m *ManualScheduler) AdvanceTo(t time.Time) int {
	ran := 0
	for {
		m.mu.Lock()
		sort.SliceStable(m.tasks, func(i, j int) bool {
			if m.tasks[i].at.Equal(m.tasks[j].at) {
				return m.tasks[i].seq < m.tasks[j].seq
			}
			return m.tasks[i].at.Before(m.tasks[j].at)
		})
		if len(m.tasks) == 0 || m.tasks[0].at.After(t) {
			if t.After(m.now) {
				m.now = t
			}
			m.mu.Unlock()
			return ran
		}
		task := m.tasks[0]
		m.tasks = m.tasks[1:]
		task.done = true
		if task.at.After(m.now) {
			m.now = task.at
		}
		m.mu.Unlock()

		task.f()
		ran++
	}
}

// Advance moves the clock forward by d. See AdvanceTo.
func (m *ManualScheduler) Advance(d time.Duration) int {
	return m.AdvanceTo(m.Now().Add(d))
}
