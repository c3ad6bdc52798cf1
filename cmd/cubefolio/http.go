package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"cubefolio/internal/portfolio"
)

// ============================================================================
// HTTP Server
// ============================================================================
// One listener serves the static site, the project API, uploaded files and
// the state WebSocket, all behind the CORS middleware.
// ============================================================================

// httpShutdownTimeout bounds graceful shutdown.
const httpShutdownTimeout = 3 * time.Second

// newHTTPHandler assembles the routes.
func newHTTPHandler(staticDir string, corsOrigins []string, api *portfolio.Handler, ws *Server) http.Handler {
	mux := http.NewServeMux()

	if api != nil {
		api.Register(mux)
	}
	if ws != nil {
		ws.Register(mux, stateWSPath)
	}
	mux.HandleFunc("/healthz", handleHealthz)

	if staticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(staticDir)))
	}

	return portfolio.CORS(corsOrigins, mux)
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// runHTTPServer serves handler on port until ctx is canceled, then shuts
// down gracefully.
func runHTTPServer(ctx context.Context, port int, handler http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)

	go func() {
		logger.Info("HTTP server listening", "port", port)
		// http.ErrServerClosed on Shutdown is a clean exit.
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("HTTP server shutdown: %w", err)
		}
		<-errCh
		return nil

	case err := <-errCh:
		return err
	}
}
