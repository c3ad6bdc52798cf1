package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cubefolio/internal/cube"
	"cubefolio/internal/portfolio"

	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration for the cubefolio daemon.
//
// Defaults and validation live here so the rest of the code can assume a
// well-formed config. Flags override individual fields.
type Config struct {
	HTTP    HTTPConfig      `yaml:"http"`
	Store   StoreConfig     `yaml:"store"`
	Uploads UploadsConfig   `yaml:"uploads"`
	Render  RenderConfig    `yaml:"render"`
	Input   InputFileConfig `yaml:"input"`
	IPC     IPCConfig       `yaml:"ipc"`
	Logging LoggingConfig   `yaml:"logging"`
}

type HTTPConfig struct {
	Port        int      `yaml:"port"`
	StaticDir   string   `yaml:"static_dir"`
	CORSOrigins []string `yaml:"cors_origins,omitempty"` // empty or "*" allows every origin
}

type StoreConfig struct {
	Driver  string `yaml:"driver"` // "json" or "sqlite"
	DataDir string `yaml:"data_dir"`

	// Watch re-reads the JSON store when it changes on disk.
	Watch bool `yaml:"watch"`
}

type UploadsConfig struct {
	Dir          string `yaml:"dir"`
	MaxBytes     int64  `yaml:"max_bytes"`
	ThumbnailPx  int    `yaml:"thumbnail_px"`
	RateLimit    int    `yaml:"rate_limit"` // uploads per window per IP, 0 disables
	RateWindowMS int    `yaml:"rate_window_ms"`
}

type RenderConfig struct {
	FrameHz      int      `yaml:"frame_hz"`
	FrameEpsilon float64  `yaml:"frame_epsilon,omitempty"`
	Faces        []string `yaml:"faces"`
}

// InputFileConfig is the user-facing input configuration as represented in YAML.
type InputFileConfig struct {
	Devices          []string `yaml:"devices,omitempty"` // evdev devices, empty disables
	WheelDelayMS     int      `yaml:"wheel_delay_ms"`
	SwipeThresholdPX float64  `yaml:"swipe_threshold_px"`
}

type IPCConfig struct {
	SocketPath string `yaml:"socket_path"` // empty disables IPC
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns a fully-populated Config with defaults.
func DefaultConfig() Config {
	return Config{
		HTTP: HTTPConfig{
			Port:      defaultHTTPPort,
			StaticDir: "public",
		},
		Store: StoreConfig{
			Driver:  portfolio.DriverJSON,
			DataDir: "data",
			Watch:   true,
		},
		Uploads: UploadsConfig{
			Dir:          "uploads",
			MaxBytes:     portfolio.DefaultMaxUploadBytes,
			ThumbnailPx:  portfolio.DefaultThumbnailPx,
			RateLimit:    20,
			RateWindowMS: 60_000,
		},
		Render: RenderConfig{
			FrameHz: defaultFrameHz,
			Faces:   append([]string(nil), cube.DefaultFaceLabels...),
		},
		Input: InputFileConfig{
			WheelDelayMS:     int(cube.DefaultWheelDelay / time.Millisecond),
			SwipeThresholdPX: cube.DefaultSwipeThreshold,
		},
		IPC: IPCConfig{
			SocketPath: defaultIPCSocketPath,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfigFile reads and parses a YAML config file on top of the
// defaults. Unknown fields are rejected.
func LoadConfigFile(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path is empty")
	}
	b, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config yaml: %w", err)
	}

	// Only whitespace and comments may follow the document.
	var trailing any
	if err := dec.Decode(&trailing); err == nil {
		return Config{}, fmt.Errorf("decode config yaml: unexpected trailing document")
	}

	return cfg, nil
}

// FlagOverrides holds flag values that were explicitly set. A nil pointer
// means "not set"; a non-nil pointer is applied even if it is a zero value.
type FlagOverrides struct {
	HTTPPort    *int
	StaticDir   *string
	DataDir     *string
	UploadsDir  *string
	StoreDriver *string
	FrameHz     *int
	IPCSocket   *string
	InputDevice *string
	LogLevel    *string
}

// Apply merges the overrides into cfg.
func (o FlagOverrides) Apply(cfg *Config) {
	if cfg == nil {
		return
	}
	if o.HTTPPort != nil {
		cfg.HTTP.Port = *o.HTTPPort
	}
	if o.StaticDir != nil {
		cfg.HTTP.StaticDir = *o.StaticDir
	}
	if o.DataDir != nil {
		cfg.Store.DataDir = *o.DataDir
	}
	if o.UploadsDir != nil {
		cfg.Uploads.Dir = *o.UploadsDir
	}
	if o.StoreDriver != nil {
		cfg.Store.Driver = *o.StoreDriver
	}
	if o.FrameHz != nil {
		cfg.Render.FrameHz = *o.FrameHz
	}
	if o.IPCSocket != nil {
		cfg.IPC.SocketPath = *o.IPCSocket
	}
	if o.InputDevice != nil {
		if *o.InputDevice == "" {
			cfg.Input.Devices = nil
		} else {
			cfg.Input.Devices = []string{*o.InputDevice}
		}
	}
	if o.LogLevel != nil {
		cfg.Logging.Level = *o.LogLevel
	}
}

// Validate checks config invariants and returns a user-friendly error.
// Call it after defaults, file and overrides are applied.
func (c *Config) Validate() error {
	// HTTP
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}

	// Store
	switch c.Store.Driver {
	case portfolio.DriverJSON, portfolio.DriverSQLite:
	default:
		return fmt.Errorf("store.driver must be %q or %q", portfolio.DriverJSON, portfolio.DriverSQLite)
	}
	if c.Store.DataDir == "" {
		return errors.New("store.data_dir must not be empty")
	}

	// Uploads
	if c.Uploads.Dir == "" {
		return errors.New("uploads.dir must not be empty")
	}
	if c.Uploads.MaxBytes <= 0 {
		return errors.New("uploads.max_bytes must be > 0")
	}
	if c.Uploads.ThumbnailPx <= 0 {
		return errors.New("uploads.thumbnail_px must be > 0")
	}
	if c.Uploads.RateLimit < 0 {
		return errors.New("uploads.rate_limit must be >= 0")
	}
	if c.Uploads.RateLimit > 0 && c.Uploads.RateWindowMS <= 0 {
		return errors.New("uploads.rate_window_ms must be > 0 when uploads.rate_limit is set")
	}

	// Render
	if c.Render.FrameHz <= 0 || c.Render.FrameHz > 240 {
		return errors.New("render.frame_hz must be between 1 and 240")
	}
	if c.Render.FrameEpsilon < 0 {
		return errors.New("render.frame_epsilon must be >= 0")
	}
	if len(c.Render.Faces) < 2 {
		return errors.New("render.faces must list at least 2 faces")
	}
	for i, f := range c.Render.Faces {
		if strings.TrimSpace(f) == "" {
			return fmt.Errorf("render.faces[%d] is empty", i)
		}
	}

	// Input
	for i, dev := range c.Input.Devices {
		if dev == "" {
			return fmt.Errorf("input.devices[%d] is empty", i)
		}
	}
	if c.Input.WheelDelayMS <= 0 {
		return errors.New("input.wheel_delay_ms must be > 0")
	}
	if c.Input.SwipeThresholdPX <= 0 {
		return errors.New("input.swipe_threshold_px must be > 0")
	}

	// Logging
	if _, err := parseLogLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}

	return nil
}

// StorePath is the store file for the configured driver.
func (c *Config) StorePath() string {
	name := "projects.json"
	if c.Store.Driver == portfolio.DriverSQLite {
		name = "projects.db"
	}
	return filepath.Join(ExpandPath(c.Store.DataDir), name)
}

// InputConfig converts the file config into aggregator settings.
func (c *Config) InputConfig() InputConfig {
	return InputConfig{
		WheelDelay:     time.Duration(c.Input.WheelDelayMS) * time.Millisecond,
		SwipeThreshold: c.Input.SwipeThresholdPX,
	}
}

// HandlerConfig converts the uploads section into API settings.
func (c *Config) HandlerConfig() portfolio.HandlerConfig {
	return portfolio.HandlerConfig{
		UploadsDir:   ExpandPath(c.Uploads.Dir),
		MaxBytes:     c.Uploads.MaxBytes,
		ThumbnailPx:  c.Uploads.ThumbnailPx,
		UploadLimit:  c.Uploads.RateLimit,
		UploadWindow: time.Duration(c.Uploads.RateWindowMS) * time.Millisecond,
	}
}

// ExpandPath expands a leading "~" or "~/" to the user's home directory.
func ExpandPath(p string) string {
	if p == "" || p[0] != '~' {
		return p
	}
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return p
	}
	if p == "~" {
		return home
	}
	return filepath.Join(home, p[2:])
}
