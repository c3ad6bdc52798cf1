// Package cube implements the discrete-rotation interaction core of the
// portfolio cube: a controller that eases an unbounded angle toward an
// accumulated target, and an aggregator that turns wheel, touch and key
// input into advance/retreat steps.
package cube

import "math"

// DefaultFaces is the number of side faces on the reference cube.
const DefaultFaces = 4

// Easing tuning values. These are hand-tuned for quarter-turn steps
// (N=4); AnticipationThreshold in particular is a magic number and does
// not scale with the face count.
const (
	SnapEpsilon           = 0.001 // |diff| at or below this snaps to target
	AnticipationThreshold = 1.3   // rad; pending rotation above this nudges backwards once
	AnticipationNudge     = 0.05  // rad
	Acceleration          = 0.06  // fraction of diff added to velocity per frame
	Damping               = 0.88  // velocity multiplier per frame
	FollowThroughZone     = 0.1   // rad; extra damping applies below this diff
	FollowThroughDamping  = 0.75
)

// Step is a committed discrete rotation request.
type Step int

const (
	Retreat Step = -1
	Advance Step = 1
)

func (s Step) String() string {
	switch s {
	case Advance:
		return "advance"
	case Retreat:
		return "retreat"
	default:
		return "none"
	}
}

// Sink receives committed steps.
type Sink interface {
	Commit(Step)
}

// SinkFunc adapts a plain function to Sink.
type SinkFunc func(Step)

func (f SinkFunc) Commit(s Step) { f(s) }

// State is a value copy of the controller's state.
type State struct {
	Face      int     `json:"face"`
	Target    float64 `json:"target"`
	Current   float64 `json:"current"`
	Velocity  float64 `json:"velocity"`
	Animating bool    `json:"animating"`
}

// Controller owns the face index, the accumulated target angle and the
// animated angle. It is not safe for concurrent use; a single owner (the
// render loop or the daemon goroutine) drives it.
//
// Only SampleFrame mutates the current angle. Advance and Retreat only
// touch the target and the face index.
type Controller struct {
	faces  int
	step   float64
	onFace func(int)

	face      int
	target    float64
	current   float64
	velocity  float64
	animating bool
}

// NewController creates a controller at rest on face 0. onFace, if
// non-nil, is called synchronously with the new face index after every
// Advance or Retreat.
func NewController(faces int, onFace func(int)) *Controller {
	if faces <= 0 {
		faces = DefaultFaces
	}
	return &Controller{
		faces:  faces,
		step:   2 * math.Pi / float64(faces),
		onFace: onFace,
	}
}

// Advance moves to the next face and adds one step to the target.
func (c *Controller) Advance() {
	c.face = (c.face + 1) % c.faces
	c.target += c.step
	c.notify()
}

// Retreat moves to the previous face and subtracts one step from the target.
func (c *Controller) Retreat() {
	c.face = (c.face - 1 + c.faces) % c.faces
	c.target -= c.step
	c.notify()
}

// Commit applies a step, making the controller a Sink.
func (c *Controller) Commit(s Step) {
	switch s {
	case Advance:
		c.Advance()
	case Retreat:
		c.Retreat()
	}
}

func (c *Controller) notify() {
	if c.onFace != nil {
		c.onFace(c.face)
	}
}

// SampleFrame advances the animated angle one frame toward the target and
// returns it. Call it once per displayed frame.
func (c *Controller) SampleFrame() float64 {
	diff := c.target - c.current
	absDiff := math.Abs(diff)

	if absDiff <= SnapEpsilon {
		c.current = c.target
		c.velocity = 0
		c.animating = false
		return c.current
	}

	// One-shot anticipation, only when starting a large rotation from rest.
	if absDiff > AnticipationThreshold && !c.animating {
		c.animating = true
		c.current -= sign(diff) * AnticipationNudge
	}

	c.velocity += diff * Acceleration
	c.velocity *= Damping
	c.current += c.velocity

	// Follow-through uses the pre-step diff.
	if absDiff < FollowThroughZone {
		c.velocity *= FollowThroughDamping
	}

	return c.current
}

func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

func (c *Controller) Faces() int         { return c.faces }
func (c *Controller) StepAngle() float64 { return c.step }
func (c *Controller) Face() int          { return c.face }
func (c *Controller) Target() float64    { return c.target }
func (c *Controller) Current() float64   { return c.current }
func (c *Controller) Velocity() float64  { return c.velocity }
func (c *Controller) Animating() bool    { return c.animating }

// Settled reports whether the animation has fully converged.
func (c *Controller) Settled() bool {
	return c.current == c.target && c.velocity == 0 && !c.animating
}

// Snapshot returns a copy of the controller state.
func (c *Controller) Snapshot() State {
	return State{
		Face:      c.face,
		Target:    c.target,
		Current:   c.current,
		Velocity:  c.velocity,
		Animating: c.animating,
	}
}

// Face describes one side of the cube and the content panel it selects.
type Face struct {
	Index    int     `json:"index" yaml:"-"`
	Label    string  `json:"label" yaml:"label"`
	Category string  `json:"category" yaml:"category"`
	Rotation float64 `json:"rotation" yaml:"-"`
}

// DefaultFaceLabels are the panels of the reference site, in face order.
var DefaultFaceLabels = []string{
	"3D Modelling",
	"Architecture Visualisation",
	"Web Design",
	"Animation",
}

// Catalog builds the face list for the given labels, assigning each face
// its nominal rotation index × 2π/N. Categories default to the label.
func Catalog(labels []string) []Face {
	n := len(labels)
	if n == 0 {
		return nil
	}
	step := 2 * math.Pi / float64(n)
	faces := make([]Face, n)
	for i, l := range labels {
		faces[i] = Face{Index: i, Label: l, Category: l, Rotation: float64(i) * step}
	}
	return faces
}
