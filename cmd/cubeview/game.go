package main

import (
	"image/color"
	"log/slog"
	"math"
	"time"

	"cubefolio/internal/cube"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/hajimehoshi/ebiten/v2/vector"
)

// wheelPixelsPerUnit converts ebiten wheel ticks into DOM-style deltaY.
const wheelPixelsPerUnit = 100

const hintText = "scroll, swipe or use the arrow keys"

var (
	backgroundColor = color.RGBA{R: 0x0b, G: 0x0d, B: 0x17, A: 0xff}
	edgeColor       = color.RGBA{R: 0x7f, G: 0xd4, B: 0xff, A: 0xff}
)

var arrowKeys = []struct {
	key  ebiten.Key
	name cube.Key
}{
	{ebiten.KeyArrowRight, cube.KeyArrowRight},
	{ebiten.KeyArrowDown, cube.KeyArrowDown},
	{ebiten.KeyArrowLeft, cube.KeyArrowLeft},
	{ebiten.KeyArrowUp, cube.KeyArrowUp},
}

// frameInput is the input observed during one tick.
type frameInput struct {
	WheelDeltaY float64
	Keys        []cube.Key

	Down  bool
	DownY float64
	Moved bool
	Up    bool
	UpY   float64

	Quit bool
}

// Game drives one controller from ebiten's update loop. All cube state is
// touched only from Update, so no locking is needed.
type Game struct {
	ctrl    *cube.Controller
	agg     *cube.Aggregator
	sched   *cube.ManualScheduler
	faces   []cube.Face
	sides   int
	edges   []prismEdge
	pointer pointerTracker
	logger  *slog.Logger

	angle       float64
	hintVisible bool
}

type gameConfig struct {
	Labels         []string
	WheelDelay     time.Duration
	SwipeThreshold float64
}

func newGame(cfg gameConfig, start time.Time, logger *slog.Logger) *Game {
	labels := cfg.Labels
	if len(labels) == 0 {
		labels = cube.DefaultFaceLabels
	}
	g := &Game{
		faces:       cube.Catalog(labels),
		sched:       cube.NewManualScheduler(start),
		logger:      logger,
		hintVisible: true,
	}
	// A two-face catalog is still drawn as a cube.
	g.sides = len(g.faces)
	if g.sides < 3 {
		g.sides = 4
	}
	g.edges = prismEdges(g.sides)
	g.ctrl = cube.NewController(len(g.faces), func(face int) {
		logger.Info("face changed", "face", face, "label", g.faces[face].Label)
	})
	g.agg = cube.NewAggregator(g.ctrl,
		cube.WithScheduler(g.sched),
		cube.WithWheelDelay(cfg.WheelDelay),
		cube.WithSwipeThreshold(cfg.SwipeThreshold),
		cube.WithFirstInteraction(func() { g.hintVisible = false }),
	)
	return g
}

// apply feeds one tick of input and samples one animation frame.
func (g *Game) apply(in frameInput, now time.Time) {
	g.sched.AdvanceTo(now)

	if in.WheelDeltaY != 0 {
		g.agg.Wheel(in.WheelDeltaY)
	}
	for _, k := range in.Keys {
		g.agg.Key(k)
	}
	if in.Down {
		g.agg.TouchStart(in.DownY)
	}
	if in.Moved {
		g.agg.TouchMove()
	}
	if in.Up {
		g.agg.TouchEnd(in.UpY)
	}

	g.angle = g.ctrl.SampleFrame()
}

func (g *Game) Update() error {
	in := g.pointer.poll()
	if in.Quit {
		g.agg.Close()
		return ebiten.Termination
	}
	g.apply(in, time.Now())
	return nil
}

func (g *Game) Draw(screen *ebiten.Image) {
	screen.Fill(backgroundColor)

	b := screen.Bounds()
	w, h := float64(b.Dx()), float64(b.Dy())
	pts := projectPrism(g.sides, g.angle, w/2, h/2, math.Min(w, h))
	for _, e := range g.edges {
		p, q := pts[e[0]], pts[e[1]]
		vector.StrokeLine(screen, float32(p.X), float32(p.Y), float32(q.X), float32(q.Y), 2, edgeColor, true)
	}

	ebitenutil.DebugPrintAt(screen, g.label(), 12, 12)
	if g.hintVisible {
		ebitenutil.DebugPrintAt(screen, hintText, 12, b.Dy()-24)
	}
}

func (g *Game) Layout(outsideWidth, outsideHeight int) (int, int) {
	return outsideWidth, outsideHeight
}

// label names the face nearest the viewer, which trails the committed face
// while the cube is still turning.
func (g *Game) label() string {
	return g.faces[frontFace(g.angle, len(g.faces))].Label
}

// pointerTracker turns touch and left-button drags into one touch
// sequence at a time. Touch wins over the mouse when both start together.
type pointerTracker struct {
	touchIDs    []ebiten.TouchID
	touchID     ebiten.TouchID
	touchActive bool
	mouseActive bool
	lastY       float64
}

func (p *pointerTracker) poll() frameInput {
	var in frameInput
	if _, wy := ebiten.Wheel(); wy != 0 {
		in.WheelDeltaY = -wy * wheelPixelsPerUnit
	}
	for _, k := range arrowKeys {
		if inpututil.IsKeyJustPressed(k.key) {
			in.Keys = append(in.Keys, k.name)
		}
	}
	in.Quit = inpututil.IsKeyJustPressed(ebiten.KeyEscape) || inpututil.IsKeyJustPressed(ebiten.KeyQ)

	switch {
	case p.touchActive:
		if inpututil.IsTouchJustReleased(p.touchID) {
			_, y := inpututil.TouchPositionInPreviousTick(p.touchID)
			in.Up, in.UpY = true, float64(y)
			p.touchActive = false
			return in
		}
		_, y := ebiten.TouchPosition(p.touchID)
		p.moved(&in, float64(y))

	case p.mouseActive:
		_, y := ebiten.CursorPosition()
		if inpututil.IsMouseButtonJustReleased(ebiten.MouseButtonLeft) {
			in.Up, in.UpY = true, float64(y)
			p.mouseActive = false
			return in
		}
		p.moved(&in, float64(y))

	default:
		p.touchIDs = inpututil.AppendJustPressedTouchIDs(p.touchIDs[:0])
		if len(p.touchIDs) > 0 {
			p.touchID = p.touchIDs[0]
			_, y := ebiten.TouchPosition(p.touchID)
			p.start(&in, float64(y))
			p.touchActive = true
			return in
		}
		if inpututil.IsMouseButtonJustPressed(ebiten.MouseButtonLeft) {
			_, y := ebiten.CursorPosition()
			p.start(&in, float64(y))
			p.mouseActive = true
		}
	}
	return in
}

func (p *pointerTracker) start(in *frameInput, y float64) {
	in.Down, in.DownY = true, y
	p.lastY = y
}

func (p *pointerTracker) moved(in *frameInput, y float64) {
	if y != p.lastY {
		in.Moved = true
		p.lastY = y
	}
}
