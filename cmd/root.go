// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/Thermoquad/tankstat/internal/capability"
	"github.com/Thermoquad/tankstat/internal/capture"
	"github.com/Thermoquad/tankstat/internal/config"
	"github.com/Thermoquad/tankstat/internal/link"
	"github.com/spf13/cobra"
)

var (
	configPath string

	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// Logging flags
	logLevel  string
	logFormat string
)

var rootCmd = &cobra.Command{
	Use:   "tankstat",
	Short: "Tank level monitor bridge",
	Long: `Tankstat - bridges a Tuya-style tank level monitor to a capability store.

Settings from the configuration file are written to the monitor as data point
(DP) writes. Reports from the monitor are decoded and published as the
tank_state, liquid_level and liquid_level_fill capabilities.

Connection modes:
  Serial:    --port /dev/ttyUSB0 [--baud 115200]
  WebSocket: --url ws://host/path [--username user]

Connection flags override the device section of --config.

For WebSocket authentication, the password is read from the TANKSTAT_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version:      "0.3.0",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Configuration file (YAML)")

	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", config.DefaultBaud, "Baud rate (serial only)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format: text or json")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig reads --config (if given) and applies the connection and
// logging flags on top of it.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.Load(configPath)
	} else {
		cfg, err = config.Parse(nil)
	}
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Device.Port = portName
	}
	if flags.Changed("baud") {
		cfg.Device.Baud = baudRate
	}
	if flags.Changed("url") {
		cfg.Device.URL = wsURL
	}
	if flags.Changed("username") {
		cfg.Device.Username = wsUsername
	}
	if flags.Changed("no-ssl-verify") {
		cfg.Device.NoSSLVerify = wsNoSSLVerify
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}

	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger builds the slog handler selected by the log section
func newLogger(w io.Writer, lc config.LogConfig) *slog.Logger {
	level, err := lc.SlogLevel()
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if lc.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// openLink opens the device channel and wraps it in a Link.
// The returned cleanup closes the capture file, if any.
func openLink(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*link.Link, string, func(), error) {
	conn, connInfo, err := link.Open(ctx, cfg.Device.LinkOptions())
	if err != nil {
		return nil, "", nil, err
	}

	lc := link.Config{Logger: logger.With("component", "link")}
	cleanup := func() {}
	if cfg.Capture.Path != "" {
		w, err := capture.Create(cfg.Capture.Path)
		if err != nil {
			conn.Close()
			return nil, "", nil, fmt.Errorf("capture: %w", err)
		}
		lc.Capture = w
		cleanup = func() {
			if err := w.Close(); err != nil {
				logger.Warn("closing capture", "err", err)
			}
		}
	}

	return link.New(conn, lc), connInfo, cleanup, nil
}

// openStore returns the capability store for the bridge: always an in-memory
// store, fanned out to Modbus when configured.
func openStore(cfg *config.Config) (*capability.Memory, capability.Store, func(), error) {
	mem := capability.NewMemory()
	if cfg.Store.Modbus == nil {
		return mem, mem, func() {}, nil
	}

	mb, err := capability.NewModbus(cfg.Store.Modbus.Capability())
	if err != nil {
		return nil, nil, nil, err
	}
	return mem, capability.Multi{mem, mb}, func() { mb.Close() }, nil
}

// openBridge opens the capability store and then the link. The store comes
// first so that a store failure never leaves a device connection open. The
// returned cleanup closes both.
func openBridge(ctx context.Context, cfg *config.Config, logger *slog.Logger) (capability.Store, *link.Link, string, func(), error) {
	_, store, closeStore, err := openStore(cfg)
	if err != nil {
		return nil, nil, "", nil, err
	}

	l, connInfo, closeCapture, err := openLink(ctx, cfg, logger)
	if err != nil {
		closeStore()
		return nil, nil, "", nil, err
	}

	return store, l, connInfo, func() {
		closeCapture()
		closeStore()
	}, nil
}

func stderrLogger(cfg *config.Config) *slog.Logger {
	return newLogger(os.Stderr, cfg.Log)
}
