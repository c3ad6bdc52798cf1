package main

import (
	"encoding/json"
	"fmt"
)

// ============================================================================
// Input Events
// ============================================================================
// Events arriving from IPC, WebSocket clients and evdev devices. Advance,
// Retreat and SetFace are committed steps and go straight to the reducer.
// Wheel, Touch* and Key are raw input; they are normalised by an InputRouter
// before anything reaches the daemon loop.
// ============================================================================

// Advance commits one step towards the next face.
type Advance struct{}

func (Advance) eventMarker() {}

// Retreat commits one step towards the previous face.
type Retreat struct{}

func (Retreat) eventMarker() {}

// SetFace jumps to a face through the shortest sequence of steps.
type SetFace struct {
	Face int `json:"face"`
}

func (SetFace) eventMarker() {}

// DismissHint hides the scroll hint. Sent by clients that track their own
// first interaction, or synthesised from an aggregator.
type DismissHint struct{}

func (DismissHint) eventMarker() {}

// Wheel is a raw wheel event. Positive DeltaY scrolls down.
type Wheel struct {
	DeltaY float64 `json:"delta_y"`
}

func (Wheel) eventMarker() {}

// TouchStart records the vertical position where a touch began.
type TouchStart struct {
	Y float64 `json:"y"`
}

func (TouchStart) eventMarker() {}

// TouchMove marks the current touch as a drag.
type TouchMove struct{}

func (TouchMove) eventMarker() {}

// TouchEnd finishes a touch at the given vertical position.
type TouchEnd struct {
	Y float64 `json:"y"`
}

func (TouchEnd) eventMarker() {}

// KeyPress carries a DOM KeyboardEvent.key name such as "ArrowRight".
type KeyPress struct {
	Key string `json:"key"`
}

func (KeyPress) eventMarker() {}

// ============================================================================
// JSON Encoding/Decoding Support
// ============================================================================

// EventEnvelope wraps an event with a type discriminator for JSON marshaling
type EventEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// UnmarshalEvent deserializes a JSON event envelope into a concrete Event
func UnmarshalEvent(data []byte) (Event, error) {
	var env EventEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}

	switch env.Type {
	case "advance":
		return Advance{}, nil
	case "retreat":
		return Retreat{}, nil
	case "dismiss_hint":
		return DismissHint{}, nil
	case "touch_move":
		return TouchMove{}, nil

	case "set_face":
		var a SetFace
		if err := unmarshalData(env.Data, &a); err != nil {
			return nil, fmt.Errorf("unmarshal SetFace: %w", err)
		}
		return a, nil

	case "wheel":
		var a Wheel
		if err := unmarshalData(env.Data, &a); err != nil {
			return nil, fmt.Errorf("unmarshal Wheel: %w", err)
		}
		return a, nil

	case "touch_start":
		var a TouchStart
		if err := unmarshalData(env.Data, &a); err != nil {
			return nil, fmt.Errorf("unmarshal TouchStart: %w", err)
		}
		return a, nil

	case "touch_end":
		var a TouchEnd
		if err := unmarshalData(env.Data, &a); err != nil {
			return nil, fmt.Errorf("unmarshal TouchEnd: %w", err)
		}
		return a, nil

	case "key":
		var a KeyPress
		if err := unmarshalData(env.Data, &a); err != nil {
			return nil, fmt.Errorf("unmarshal KeyPress: %w", err)
		}
		return a, nil

	default:
		return nil, fmt.Errorf("unknown event type: %q", env.Type)
	}
}

// unmarshalData requires a payload; events with fields are meaningless
// without one.
func unmarshalData(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return fmt.Errorf("missing data")
	}
	return json.Unmarshal(raw, v)
}

// MarshalEvent serializes an Event into a JSON envelope with type discriminator
func MarshalEvent(e Event) ([]byte, error) {
	var env EventEnvelope

	withData := func(typ string, v any) error {
		env.Type = typ
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshal %T: %w", v, err)
		}
		env.Data = data
		return nil
	}

	var err error
	switch e := e.(type) {
	case Advance:
		env.Type = "advance"
	case Retreat:
		env.Type = "retreat"
	case DismissHint:
		env.Type = "dismiss_hint"
	case TouchMove:
		env.Type = "touch_move"
	case SetFace:
		err = withData("set_face", e)
	case Wheel:
		err = withData("wheel", e)
	case TouchStart:
		err = withData("touch_start", e)
	case TouchEnd:
		err = withData("touch_end", e)
	case KeyPress:
		err = withData("key", e)
	default:
		return nil, fmt.Errorf("unsupported event type: %T", e)
	}
	if err != nil {
		return nil, err
	}

	return json.Marshal(env)
}
