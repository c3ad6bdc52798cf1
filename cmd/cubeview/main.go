package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"cubefolio/internal/cube"

	"github.com/hajimehoshi/ebiten/v2"
)

func main() {
	var (
		faces     = flag.String("faces", strings.Join(cube.DefaultFaceLabels, ","), "Comma-separated face labels")
		width     = flag.Int("width", 960, "Window width")
		height    = flag.Int("height", 640, "Window height")
		wheel     = flag.Duration("wheel-delay", cube.DefaultWheelDelay, "Quiet period that ends a wheel burst")
		threshold = flag.Float64("swipe-threshold", cube.DefaultSwipeThreshold, "Minimum swipe distance in pixels")
		debug     = flag.Bool("debug", false, "Enable debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	labels, err := parseLabels(*faces)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(2)
	}

	g := newGame(gameConfig{
		Labels:         labels,
		WheelDelay:     *wheel,
		SwipeThreshold: *threshold,
	}, time.Now(), logger)

	ebiten.SetWindowSize(*width, *height)
	ebiten.SetWindowTitle("cubefolio")
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)

	logger.Info("cubeview starting", "faces", len(labels))
	if err := ebiten.RunGame(g); err != nil {
		logger.Error("cubeview stopped", "error", err)
		os.Exit(1)
	}
}

// parseLabels splits a comma list, trimming blanks. At least two labels
// are required.
func parseLabels(s string) ([]string, error) {
	var labels []string
	for _, l := range strings.Split(s, ",") {
		l = strings.TrimSpace(l)
		if l == "" {
			return nil, fmt.Errorf("empty face label in %q", s)
		}
		labels = append(labels, l)
	}
	if len(labels) < 2 {
		return nil, fmt.Errorf("need at least 2 faces, got %d", len(labels))
	}
	return labels, nil
}
