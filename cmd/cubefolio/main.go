package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"cubefolio/internal/portfolio"

	"golang.org/x/sync/errgroup"
)

const version = "1.0.0"

func printVersion() {
	fmt.Printf("cubefolio v%s\n", version)
	fmt.Println("Rotating-cube portfolio server")
}

func printUsage() {
	printVersion()
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  cubefolio [OPTIONS]")
	fmt.Println()
	fmt.Println("DESCRIPTION:")
	fmt.Println("  Serves the portfolio site and its upload API, and drives a shared")
	fmt.Println("  rotating cube. Browsers connect to /ws to receive animation frames")
	fmt.Println("  and send wheel, touch and arrow-key input. Local tools can step the")
	fmt.Println("  cube over a unix socket, and Linux input devices (arrow keys, mouse")
	fmt.Println("  wheel) can be attached directly.")
	fmt.Println()
	fmt.Println("OPTIONS:")
	fmt.Println("  -config string")
	fmt.Println("        Path to YAML config file (defaults apply when omitted)")
	fmt.Println()
	fmt.Println("  -http-port int")
	fmt.Printf("        HTTP listen port (default %d)\n", defaultHTTPPort)
	fmt.Println()
	fmt.Println("  -static-dir string")
	fmt.Println("        Directory served at / (default \"public\"; empty disables)")
	fmt.Println()
	fmt.Println("  -data-dir string")
	fmt.Println("        Directory holding the project store (default \"data\")")
	fmt.Println()
	fmt.Println("  -uploads-dir string")
	fmt.Println("        Directory for uploaded media, served at /uploads/ (default \"uploads\")")
	fmt.Println()
	fmt.Println("  -store-driver string")
	fmt.Println("        Project store: json|sqlite (default \"json\")")
	fmt.Println()
	fmt.Println("  -frame-hz int")
	fmt.Printf("        Cube animation frame rate (default %d)\n", defaultFrameHz)
	fmt.Println()
	fmt.Println("  -ipc-socket string")
	fmt.Printf("        Unix domain socket path for IPC (default %q; empty disables)\n", defaultIPCSocketPath)
	fmt.Println()
	fmt.Println("  -input-device string")
	fmt.Println("        Linux input event device, e.g. /dev/input/event3 (config allows several)")
	fmt.Println()
	fmt.Println("  -log-level string")
	fmt.Println("        Log level: error|warn|info|debug (default \"info\")")
	fmt.Println()
	fmt.Println("  -version")
	fmt.Println("        Print version and exit")
	fmt.Println()
	fmt.Println("  -help")
	fmt.Println("        Print this help message")
	fmt.Println()
	fmt.Println("IPC EXAMPLES:")
	fmt.Println("  echo '{\"type\":\"advance\"}' | nc -U /tmp/cubefolio.sock")
	fmt.Println("  echo '{\"type\":\"set_face\",\"data\":{\"face\":2}}' | nc -U /tmp/cubefolio.sock")
	fmt.Println("  cubectl advance")
}

func main() {
	var (
		configPath  = flag.String("config", "", "Path to YAML config file")
		httpPort    = flag.Int("http-port", defaultHTTPPort, "HTTP listen port")
		staticDir   = flag.String("static-dir", "public", "Directory served at /")
		dataDir     = flag.String("data-dir", "data", "Directory holding the project store")
		uploadsDir  = flag.String("uploads-dir", "uploads", "Directory for uploaded media")
		storeDriver = flag.String("store-driver", portfolio.DriverJSON, "Project store: json|sqlite")
		frameHz     = flag.Int("frame-hz", defaultFrameHz, "Cube animation frame rate")
		ipcSocket   = flag.String("ipc-socket", defaultIPCSocketPath, "Unix domain socket path for IPC")
		inputDevice = flag.String("input-device", "", "Linux input event device")
		logLevelStr = flag.String("log-level", "info", "Log level: error, warn, info, debug")
		showVersion = flag.Bool("version", false, "Print version and exit")
		showHelp    = flag.Bool("help", false, "Print help message")
	)

	flag.Usage = printUsage
	flag.Parse()

	if *showHelp {
		printUsage()
		return
	}
	if *showVersion {
		printVersion()
		return
	}

	cfg := DefaultConfig()
	if *configPath != "" {
		loaded, err := LoadConfigFile(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	// Only flags given on the command line override the file.
	var o FlagOverrides
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "http-port":
			o.HTTPPort = httpPort
		case "static-dir":
			o.StaticDir = staticDir
		case "data-dir":
			o.DataDir = dataDir
		case "uploads-dir":
			o.UploadsDir = uploadsDir
		case "store-driver":
			o.StoreDriver = storeDriver
		case "frame-hz":
			o.FrameHz = frameHz
		case "ipc-socket":
			o.IPCSocket = ipcSocket
		case "input-device":
			o.InputDevice = inputDevice
		case "log-level":
			o.LogLevel = logLevelStr
		}
	})
	o.Apply(&cfg)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	logLevel, _ := parseLogLevel(cfg.Logging.Level)
	logger := setupLogger(logLevel)

	if err := run(cfg, logger); err != nil {
		logger.Error("cubefolio exited with error", "error", err)
		os.Exit(1)
	}
}

// run wires every component and blocks until a signal or a fatal error.
func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hcfg := cfg.HandlerConfig()
	for _, dir := range []string{ExpandPath(cfg.Store.DataDir), hcfg.UploadsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	storePath := cfg.StorePath()
	store, err := portfolio.OpenStore(cfg.Store.Driver, storePath)
	if err != nil {
		return err
	}
	defer store.Close()

	// Central event bus into the daemon loop, and its broadcast output.
	events := make(chan Event, 256)
	broadcasts := make(chan StateBroadcast, 256)

	watchStore := cfg.Store.Watch && cfg.Store.Driver == portfolio.DriverJSON
	if !watchStore {
		// Without a file watcher, uploads announce themselves.
		hcfg.OnAdd = func(p portfolio.Project) {
			trySend(events, ProjectsChanged{})
		}
	}
	api := portfolio.NewHandler(store, hcfg)

	inputCfg := cfg.InputConfig()
	ws := NewServer(logger, events, ServerConfig{Input: inputCfg})
	handler := newHTTPHandler(ExpandPath(cfg.HTTP.StaticDir), cfg.HTTP.CORSOrigins, api, ws)

	state := NewDaemonState(cfg.Render.Faces)
	rcfg := ReducerConfig{FrameEpsilon: cfg.Render.FrameEpsilon}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		runDaemon(ctx, events, broadcasts, store, rcfg, state, cfg.Render.FrameHz, logger)
		return nil
	})
	g.Go(func() error {
		ws.Hub().Run(ctx)
		return nil
	})
	g.Go(func() error {
		RunBroadcaster(ctx, ws.Hub(), broadcasts, logger)
		return nil
	})
	g.Go(func() error {
		return runHTTPServer(ctx, cfg.HTTP.Port, handler, logger)
	})

	if rl := api.Limiter(); rl != nil {
		g.Go(func() error { return rl.Run(ctx) })
	}

	if cfg.IPC.SocketPath != "" {
		g.Go(func() error {
			return runIPCServer(ctx, cfg.IPC.SocketPath, events, inputCfg, logger)
		})
	}

	if len(cfg.Input.Devices) > 0 {
		router := NewInputRouter(events, inputCfg, "evdev", logger)
		g.Go(func() error {
			defer router.Close()
			if err := runInput(ctx, cfg.Input.Devices, router, logger); err != nil {
				logger.Error("input devices failed", "error", err, "tip", "run as root or add user to 'input' group")
				return err
			}
			return nil
		})
	}

	if watchStore {
		w, err := portfolio.NewWatcher(storePath, portfolio.DefaultWatchDelay, func() {
			trySend(events, ProjectsChanged{})
		})
		if err != nil {
			logger.Warn("project store watcher disabled", "error", err)
		} else {
			g.Go(func() error { return w.Run(ctx) })
		}
	}

	logger.Info("cubefolio started",
		"version", version,
		"http_port", cfg.HTTP.Port,
		"static_dir", cfg.HTTP.StaticDir,
		"store", cfg.Store.Driver,
		"store_path", storePath,
		"ipc", cfg.IPC.SocketPath,
		"input_devices", len(cfg.Input.Devices),
		"faces", len(cfg.Render.Faces))

	err = g.Wait()
	logger.Info("cubefolio stopped")
	return err
}
