package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

var showFrames bool

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream daemon state events",
	Long: `Connects to the daemon's /ws endpoint and prints each state event as
one line. Frame events are skipped unless --frames is given.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().BoolVar(&showFrames, "frames", false, "also print per-frame angle updates")
}

// stateWSURL maps the daemon's HTTP base URL onto its state socket.
func stateWSURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}
	switch u.Scheme {
	case "http", "":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("server URL %q has no host", base)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	return u.String(), nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	target, err := stateWSURL(serverURL)
	if err != nil {
		return err
	}

	d := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, _, err := d.DialContext(cmd.Context(), target, nil)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", target, err)
	}
	defer conn.Close()

	var writeMu sync.Mutex
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	pingTicker := time.NewTicker(30 * time.Second)
	defer pingTicker.Stop()

	done := make(chan error, 1)
	go func() {
		done <- printEvents(conn, cmd.OutOrStdout(), showFrames)
	}()

	for {
		select {
		case <-cmd.Context().Done():
			writeMu.Lock()
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			writeMu.Unlock()
			return nil
		case err := <-done:
			return err
		case <-pingTicker.C:
			writeMu.Lock()
			err := conn.WriteMessage(websocket.PingMessage, nil)
			writeMu.Unlock()
			if err != nil {
				return fmt.Errorf("ping failed: %w", err)
			}
		}
	}
}

// printEvents reads until the connection closes. A normal close is not an
// error.
func printEvents(conn *websocket.Conn, out io.Writer, frames bool) error {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				return fmt.Errorf("websocket error: %w", err)
			}
			return nil
		}
		if line, ok := formatEvent(msg, frames); ok {
			fmt.Fprintln(out, line)
		}
	}
}

type wsEvent struct {
	Type string          `json:"type"`
	Ts   *time.Time      `json:"ts,omitempty"`
	Data json.RawMessage `json:"data"`
}

// formatEvent renders one state event as "[type] {data}".
func formatEvent(msg []byte, frames bool) (string, bool) {
	var ev wsEvent
	if err := json.Unmarshal(msg, &ev); err != nil || ev.Type == "" {
		return fmt.Sprintf("[TEXT] %s", msg), true
	}
	if ev.Type == "frame" && !frames {
		return "", false
	}

	var b strings.Builder
	if ev.Ts != nil {
		b.WriteString(ev.Ts.Local().Format("15:04:05.000"))
		b.WriteByte(' ')
	}
	fmt.Fprintf(&b, "[%s]", ev.Type)
	if len(ev.Data) > 0 && !bytes.Equal(ev.Data, []byte("null")) {
		var compact bytes.Buffer
		if err := json.Compact(&compact, ev.Data); err == nil {
			b.WriteByte(' ')
			b.Write(compact.Bytes())
		}
	}
	return b.String(), true
}
