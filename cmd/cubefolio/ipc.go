package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
)

// ============================================================================
// IPC Server - Unix Domain Socket Interface
// ============================================================================
// Protocol: line-delimited JSON envelopes
//   - Client sends: {"type": "advance"} or {"type": "wheel", "data": {"delta_y": 120}}
//   - Server responds: {"status": "ok"} or {"status": "error", "error": "msg"}
//
// Raw input (wheel, touch, key) from every IPC connection shares one
// InputRouter, so a scripted wheel burst debounces like a real one.
// ============================================================================

// IPCResponse answers every request line.
type IPCResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// runIPCServer serves the socket until ctx is canceled.
func runIPCServer(ctx context.Context, socketPath string, events chan<- Event, input InputConfig, logger *slog.Logger) error {
	if err := os.RemoveAll(socketPath); err != nil {
		return fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", socketPath, err)
	}
	defer listener.Close()
	defer os.Remove(socketPath)

	if err := os.Chmod(socketPath, 0o666); err != nil {
		return fmt.Errorf("chmod socket: %w", err)
	}

	router := NewInputRouter(events, input, "ipc", logger)
	defer router.Close()

	logger.Info("control socket ready", "socket", socketPath)

	// Closing the listener unblocks Accept().
	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				logger.Debug("control socket closed")
				return nil
			}
			logger.Error("control socket accept failed", "error", err)
			continue
		}

		go handleIPCConnection(conn, events, router, logger)
	}
}

// handleIPCConnection answers each request line of one connection in order.
func handleIPCConnection(conn net.Conn, events chan<- Event, router *InputRouter, logger *slog.Logger) {
	defer conn.Close()

	lines := bufio.NewScanner(conn)
	out := json.NewEncoder(conn)
	for lines.Scan() {
		line := strings.TrimSpace(lines.Text())
		if line == "" {
			continue
		}
		resp := dispatchIPC(line, events, router)
		logger.Debug("control request", "line", line, "status", resp.Status)
		if err := out.Encode(resp); err != nil {
			logger.Warn("control reply failed", "error", err)
			return
		}
	}
}

func dispatchIPC(line string, events chan<- Event, router *InputRouter) IPCResponse {
	ev, err := UnmarshalEvent([]byte(line))
	switch {
	case err != nil:
		return IPCResponse{Status: "error", Error: fmt.Sprintf("parse event: %v", err)}
	case isRawInput(ev):
		router.Route(ev)
	case !trySend(events, ev):
		return IPCResponse{Status: "error", Error: "event queue full"}
	}
	return IPCResponse{Status: "ok"}
}

func isRawInput(ev Event) bool {
	switch ev.(type) {
	case Wheel, TouchStart, TouchMove, TouchEnd, KeyPress:
		return true
	}
	return false
}
