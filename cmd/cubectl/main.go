package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	socketPath string
	serverURL  string
)

// rootCmd is the base command for cubectl
var rootCmd = &cobra.Command{
	Use:   "cubectl",
	Short: "Control a running cubefolio daemon",
	Long: `cubectl drives the shared cube of a cubefolio daemon over its unix
socket, follows its state stream over WebSocket, and lists portfolio
projects over HTTP.

Examples:
  cubectl advance
  cubectl face 2
  cubectl wheel 120
  cubectl watch --frames
  cubectl projects --category "Web Design"`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var advanceCmd = &cobra.Command{
	Use:   "advance",
	Short: "Rotate to the next face",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendAndReport(cmd, "advance", nil)
	},
}

var retreatCmd = &cobra.Command{
	Use:   "retreat",
	Short: "Rotate to the previous face",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendAndReport(cmd, "retreat", nil)
	},
}

var faceCmd = &cobra.Command{
	Use:   "face <index>",
	Short: "Rotate to a face by index, taking the shorter direction",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 0 {
			return fmt.Errorf("invalid face index %q", args[0])
		}
		return sendAndReport(cmd, "set_face", map[string]int{"face": n})
	},
}

var keyCmd = &cobra.Command{
	Use:   "key <name>",
	Short: "Send a key press (ArrowRight, ArrowDown, ArrowLeft, ArrowUp)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendAndReport(cmd, "key", map[string]string{"key": args[0]})
	},
}

var wheelCmd = &cobra.Command{
	Use:   "wheel <delta-y>",
	Short: "Send a wheel event; positive scrolls down (advance)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dy, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return fmt.Errorf("invalid wheel delta %q", args[0])
		}
		return sendAndReport(cmd, "wheel", map[string]float64{"delta_y": dy})
	},
}

var hintCmd = &cobra.Command{
	Use:   "hide-hint",
	Short: "Hide the scroll hint on every connected view",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendAndReport(cmd, "dismiss_hint", nil)
	},
}

func sendAndReport(cmd *cobra.Command, typ string, data any) error {
	if err := sendEnvelope(socketPath, typ, data); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "ok")
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&socketPath, "socket", "/tmp/cubefolio.sock", "daemon unix socket path")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://127.0.0.1:3000", "daemon HTTP base URL")

	rootCmd.AddCommand(advanceCmd, retreatCmd, faceCmd, keyCmd, wheelCmd, hintCmd, watchCmd, projectsCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}
