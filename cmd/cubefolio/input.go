package main

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"
)

// inputEvent represents a Linux input event structure
// struct input_event { struct timeval time; __u16 type; __u16 code; __s32 value; };
type inputEvent struct {
	Sec   int64
	Usec  int64
	Type  uint16
	Code  uint16
	Value int32
}

var inputEventSize = binary.Size(inputEvent{})

func decodeInputEvent(buf []byte) (inputEvent, error) {
	var ev inputEvent
	if len(buf) < inputEventSize {
		return ev, fmt.Errorf("short input event: %d bytes", len(buf))
	}
	err := binary.Read(bytes.NewReader(buf[:inputEventSize]), binary.LittleEndian, &ev)
	return ev, err
}

// translateInput maps an evdev event onto the daemon's raw input events.
// Arrow keys fire on press only; auto-repeat and release are ignored.
// REL_WHEEL is positive away from the user, which scrolls up, so the sign
// is flipped to match wheel deltaY.
func translateInput(ev inputEvent) (Event, bool) {
	switch ev.Type {
	case EV_KEY:
		if ev.Value != evValuePress {
			return nil, false
		}
		switch ev.Code {
		case KEY_RIGHT:
			return KeyPress{Key: "ArrowRight"}, true
		case KEY_DOWN:
			return KeyPress{Key: "ArrowDown"}, true
		case KEY_LEFT:
			return KeyPress{Key: "ArrowLeft"}, true
		case KEY_UP:
			return KeyPress{Key: "ArrowUp"}, true
		}

	case EV_REL:
		if ev.Code == REL_WHEEL && ev.Value != 0 {
			return Wheel{DeltaY: float64(-ev.Value)}, true
		}
	}
	return nil, false
}

// runInput opens the devices and feeds their events through router until
// ctx is canceled or a device fails.
func runInput(ctx context.Context, paths []string, router *InputRouter, logger *slog.Logger) error {
	if len(paths) == 0 {
		return nil
	}
	defer router.Close()

	files := make([]*os.File, 0, len(paths))
	defer func() {
		for _, f := range files {
			f.Close()
		}
	}()
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			return fmt.Errorf("open input device: %w", err)
		}
		files = append(files, f)
		logger.Info("input device opened", "path", p)
	}

	return readInputEvents(ctx, files, func(ev inputEvent) {
		if e, ok := translateInput(ev); ok {
			router.Route(e)
		}
	})
}
