package main

import "math"

const (
	cameraDistance = 4.0
	cameraTilt     = 0.35 // rad, looking slightly down onto the top face
	halfHeight     = 1.0
)

type point struct {
	X, Y float64
}

// prismEdge indexes into the vertex slice returned by projectPrism: the
// top ring occupies [0,n) and the bottom ring [n,2n).
type prismEdge [2]int

// prismEdges lists the edges of an n-sided prism.
func prismEdges(n int) []prismEdge {
	edges := make([]prismEdge, 0, 3*n)
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		edges = append(edges,
			prismEdge{i, j},
			prismEdge{n + i, n + j},
			prismEdge{i, n + i},
		)
	}
	return edges
}

// projectPrism projects an n-sided prism rotated by angle about the
// vertical axis. Face i faces the viewer when angle is i*2π/n. The result
// is centred on (cx, cy) and scaled so the apothem spans size/4 pixels at
// the front.
func projectPrism(n int, angle, cx, cy, size float64) []point {
	if n < 3 {
		n = 4
	}
	step := 2 * math.Pi / float64(n)
	radius := 1 / math.Cos(step/2)
	focal := size / 4 * (cameraDistance - 1)
	sinT, cosT := math.Sin(cameraTilt), math.Cos(cameraTilt)

	pts := make([]point, 2*n)
	for i := 0; i < n; i++ {
		psi := (float64(i)-0.5)*step - angle
		x := radius * math.Sin(psi)
		z := radius * math.Cos(psi)
		for ring, y := range []float64{halfHeight, -halfHeight} {
			ty := y*cosT - z*sinT
			tz := y*sinT + z*cosT
			scale := focal / (cameraDistance - tz)
			pts[ring*n+i] = point{X: cx + x*scale, Y: cy - ty*scale}
		}
	}
	return pts
}

// frontFace returns the face closest to the viewer for an unbounded angle.
func frontFace(angle float64, n int) int {
	if n <= 0 {
		return 0
	}
	step := 2 * math.Pi / float64(n)
	i := int(math.Round(angle/step)) % n
	if i < 0 {
		i += n
	}
	return i
}
