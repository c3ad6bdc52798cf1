package main

import (
	"encoding/json"
	"fmt"
	"net"
	"time"
)

// envelope is the daemon's IPC wire format.
type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// ipcResponse is the daemon's reply to each line.
type ipcResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

const ipcTimeout = 3 * time.Second

// sendEnvelope sends one line-delimited event and waits for the reply.
func sendEnvelope(socketPath, typ string, data any) error {
	env := envelope{Type: typ}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", typ, err)
		}
		env.Data = raw
	}
	line, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	conn, err := net.DialTimeout("unix", socketPath, ipcTimeout)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", socketPath, err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(ipcTimeout))

	if _, err := fmt.Fprintf(conn, "%s\n", line); err != nil {
		return fmt.Errorf("send %s: %w", typ, err)
	}

	var resp ipcResponse
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if resp.Status != "ok" {
		return fmt.Errorf("daemon error: %s", resp.Error)
	}
	return nil
}
