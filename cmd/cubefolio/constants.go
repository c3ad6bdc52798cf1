package main

// ============================================================================
// Linux Input Event Constants
// ============================================================================
// Values from linux/input-event-codes.h. A minimal set, only what the
// daemon reads from evdev devices.
// ============================================================================

const (
	EV_SYN = 0x00
	EV_KEY = 0x01
	EV_REL = 0x02
)

const (
	KEY_UP    = 103
	KEY_LEFT  = 105
	KEY_RIGHT = 106
	KEY_DOWN  = 108
)

const (
	REL_WHEEL = 0x08
)

// Key event values
const (
	evValueRelease = 0
	evValuePress   = 1
	evValueRepeat  = 2
)

// ============================================================================
// Application Constants
// ============================================================================

const (
	// Default unix socket for IPC
	defaultIPCSocketPath = "/tmp/cubefolio.sock"

	// Default HTTP listen port
	defaultHTTPPort = 3000

	// Default frame sampling rate
	defaultFrameHz = 60

	// Default WebSocket state endpoint
	stateWSPath = "/ws"
)
