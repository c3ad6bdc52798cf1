package cube

import (
	"math"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// referenceStep is the easing step without anticipation or snapping.
func referenceStep(cur, vel, target float64) (float64, float64) {
	diff := target - cur
	vel += diff * Acceleration
	vel *= Damping
	cur += vel
	if math.Abs(diff) < FollowThroughZone {
		vel *= FollowThroughDamping
	}
	return cur, vel
}

func settle(t *testing.T, c *Controller, maxFrames int) int {
	t.Helper()
	for i := 1; i <= maxFrames; i++ {
		c.SampleFrame()
		if c.Settled() {
			return i
		}
	}
	t.Fatalf("controller did not settle within %d frames: %+v", maxFrames, c.Snapshot())
	return 0
}

func TestController_InitialState(t *testing.T) {
	c := NewController(0, nil)
	want := State{}
	if diff := cmp.Diff(want, c.Snapshot()); diff != "" {
		t.Fatalf("initial state mismatch (-want +got):\n%s", diff)
	}
	if c.Faces() != DefaultFaces {
		t.Fatalf("expected %d faces, got %d", DefaultFaces, c.Faces())
	}
	if c.StepAngle() != math.Pi/2 {
		t.Fatalf("expected step π/2, got %v", c.StepAngle())
	}
	if !c.Settled() {
		t.Fatalf("expected fresh controller to be settled")
	}
}

func TestController_WrapInvariant(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for _, n := range []int{1, 3, 4, 6} {
		c := NewController(n, nil)
		net := 0
		for i := 0; i < 500; i++ {
			if rng.Intn(2) == 0 {
				c.Advance()
				net++
			} else {
				c.Retreat()
				net--
			}
			if f := c.Face(); f < 0 || f >= n {
				t.Fatalf("n=%d: face %d out of range", n, f)
			}
			want := ((net % n) + n) % n
			if c.Face() != want {
				t.Fatalf("n=%d step %d: expected face %d, got %d", n, i, want, c.Face())
			}
		}
	}
}

func TestController_TargetIsUnbounded(t *testing.T) {
	c := NewController(4, nil)
	for i := 0; i < 9; i++ {
		c.Advance()
	}
	for i := 0; i < 2; i++ {
		c.Retreat()
	}
	want := 7 * (2 * math.Pi / 4)
	if math.Abs(c.Target()-want) > 1e-12 {
		t.Fatalf("expected target %v, got %v", want, c.Target())
	}
	if c.Face() != 3 {
		t.Fatalf("expected face 3, got %d", c.Face())
	}

	for i := 0; i < 20; i++ {
		c.Retreat()
	}
	want = -13 * (2 * math.Pi / 4)
	if math.Abs(c.Target()-want) > 1e-12 {
		t.Fatalf("expected negative target %v, got %v", want, c.Target())
	}
}

func TestController_AdvanceRetreatDoNotMoveCurrent(t *testing.T) {
	c := NewController(4, nil)
	c.Advance()
	c.Advance()
	c.Retreat()
	if c.Current() != 0 || c.Velocity() != 0 || c.Animating() {
		t.Fatalf("expected only target to change, got %+v", c.Snapshot())
	}
}

func TestController_NotifiesFaceOnEveryStep(t *testing.T) {
	var got []int
	c := NewController(4, func(face int) { got = append(got, face) })

	c.Advance()
	c.Advance()
	c.Retreat()
	c.Retreat()
	c.Retreat()
	c.Commit(Advance)
	c.Commit(Step(0))

	want := []int{1, 2, 1, 0, 3, 0}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("notifications mismatch (-want +got):\n%s", diff)
	}
}

func TestController_Convergence(t *testing.T) {
	tests := []struct {
		name  string
		steps []Step
	}{
		{"single advance", []Step{Advance}},
		{"single retreat", []Step{Retreat}},
		{"half turn", []Step{Advance, Advance}},
		{"full turn back", []Step{Retreat, Retreat, Retreat, Retreat}},
		{"mixed", []Step{Advance, Retreat, Advance, Advance, Advance}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewController(4, nil)
			for _, s := range tt.steps {
				c.Commit(s)
			}
			settle(t, c, 2000)

			if c.Current() != c.Target() {
				t.Fatalf("expected current == target, got %v != %v", c.Current(), c.Target())
			}
			if c.Velocity() != 0 {
				t.Fatalf("expected zero velocity, got %v", c.Velocity())
			}
			if c.Animating() {
				t.Fatalf("expected animating=false after convergence")
			}

			// Further frames are a no-op once settled.
			before := c.Snapshot()
			c.SampleFrame()
			if diff := cmp.Diff(before, c.Snapshot()); diff != "" {
				t.Fatalf("settled controller changed on extra frame:\n%s", diff)
			}
		})
	}
}

func TestController_OvershootsBeforeSettling(t *testing.T) {
	c := NewController(4, nil)
	c.Advance()

	overshot := false
	for i := 0; i < 2000 && !c.Settled(); i++ {
		if c.SampleFrame() > c.Target() {
			overshot = true
		}
	}
	if !overshot {
		t.Fatalf("expected eased rotation to overshoot the target at least once")
	}
}

func TestController_AnticipationFiresOncePerRestToMotion(t *testing.T) {
	c := NewController(4, nil)
	c.Advance()
	c.Advance()
	if c.Target() != math.Pi {
		t.Fatalf("expected target π, got %v", c.Target())
	}

	// Frame 1: nudge backwards then integrate.
	wantVel := (0 + math.Pi*Acceleration) * Damping
	wantCur := (0 - AnticipationNudge) + wantVel
	got := c.SampleFrame()
	if got != wantCur {
		t.Fatalf("frame 1: expected current %v, got %v", wantCur, got)
	}
	if !c.Animating() {
		t.Fatalf("frame 1: expected animating=true")
	}

	// The nudge put the angle behind where a plain ease would be.
	plainCur, _ := referenceStep(0, 0, math.Pi)
	if got >= plainCur {
		t.Fatalf("expected anticipation to lag plain ease: %v >= %v", got, plainCur)
	}

	// Following frames of the same approach never nudge again.
	cur, vel := wantCur, wantVel
	for i := 2; i < 40; i++ {
		if math.Abs(math.Pi-cur) <= 10*SnapEpsilon {
			break
		}
		cur, vel = referenceStep(cur, vel, math.Pi)
		if got := c.SampleFrame(); got != cur {
			t.Fatalf("frame %d: expected %v (no nudge), got %v", i, cur, got)
		}
	}
}

func TestController_NoReTriggerMidFlight(t *testing.T) {
	c := NewController(4, nil)
	c.Advance()
	for i := 0; i < 5; i++ {
		c.SampleFrame()
	}
	if !c.Animating() {
		t.Fatalf("expected to be mid-flight")
	}

	// A second advance makes the pending rotation large again, but we are
	// not at rest, so no nudge.
	c.Advance()
	if math.Abs(c.Target()-c.Current()) <= AnticipationThreshold {
		t.Fatalf("test setup: expected large pending rotation")
	}
	cur, vel := referenceStep(c.Current(), c.Velocity(), c.Target())
	if got := c.SampleFrame(); got != cur {
		t.Fatalf("expected %v without nudge, got %v", cur, got)
	}
	if c.Velocity() != vel {
		t.Fatalf("expected velocity %v, got %v", vel, c.Velocity())
	}
}

func TestController_SmallStepSkipsAnticipation(t *testing.T) {
	// With 6 faces a step is π/3 (< 1.3 rad), so there is no nudge and the
	// animating flag stays clear.
	c := NewController(6, nil)
	c.Advance()

	want, _ := referenceStep(0, 0, c.Target())
	if got := c.SampleFrame(); got != want {
		t.Fatalf("expected %v, got %v", want, got)
	}
	if c.Animating() {
		t.Fatalf("expected animating=false for a small step")
	}
	settle(t, c, 2000)
}

func TestController_RetreatNudgesForward(t *testing.T) {
	c := NewController(4, nil)
	c.Retreat()

	wantVel := (0 + (-math.Pi/2)*Acceleration) * Damping
	wantCur := (0 + AnticipationNudge) + wantVel
	if got := c.SampleFrame(); got != wantCur {
		t.Fatalf("expected %v, got %v", wantCur, got)
	}
}

func TestController_FullTurnDoesNotWrap(t *testing.T) {
	c := NewController(4, nil)
	a := NewAggregator(c)
	for i := 0; i < 4; i++ {
		a.Key(KeyArrowRight)
	}

	if c.Face() != 0 {
		t.Fatalf("expected face 0 after full turn, got %d", c.Face())
	}
	if c.Target() != 2*math.Pi {
		t.Fatalf("expected target 2π, got %v", c.Target())
	}

	settle(t, c, 2000)
	if c.Current() != 2*math.Pi {
		t.Fatalf("expected current 2π (unwrapped), got %v", c.Current())
	}
}

func TestCatalog(t *testing.T) {
	faces := Catalog(DefaultFaceLabels)
	if len(faces) != 4 {
		t.Fatalf("expected 4 faces, got %d", len(faces))
	}
	wantRot := []float64{0, math.Pi / 2, math.Pi, 3 * math.Pi / 2}
	for i, f := range faces {
		if f.Index != i {
			t.Errorf("face %d: index %d", i, f.Index)
		}
		if math.Abs(f.Rotation-wantRot[i]) > 1e-12 {
			t.Errorf("face %d: rotation %v, want %v", i, f.Rotation, wantRot[i])
		}
		if f.Category != f.Label {
			t.Errorf("face %d: category %q should default to label %q", i, f.Category, f.Label)
		}
	}
	if Catalog(nil) != nil {
		t.Errorf("expected nil catalog for no labels")
	}
}
