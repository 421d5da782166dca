// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Thermoquad/tankstat/internal/bridge"
	"github.com/Thermoquad/tankstat/internal/config"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the bridge",
	Long: `Connect to the tank level monitor and keep it in sync.

On start every setting in the configuration file is written to the monitor and
a full DP report is requested. Reports are then published to the capability
store until interrupted.

Send SIGHUP to reload the configuration file; only settings whose value
changed are written. Connection changes need a restart.`,
	Args: cobra.NoArgs,
	RunE: runBridge,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runBridge(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := stderrLogger(cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, l, connInfo, closeBridge, err := openBridge(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeBridge()

	dev := bridge.NewDevice(cfg.Device.ID, l, store, logger)
	logger.Info("bridge starting", "connection", connInfo, "device", dev.ID(), "session", dev.Session())
	if cfg.Settings.Len() == 0 {
		logger.Warn("no settings configured, nothing will be written")
	} else {
		logger.Info("settings loaded", "settings", cfg.Settings.String())
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return l.Run(gctx) })
	g.Go(func() error { return ignoreCanceled(dev.Run(gctx, l.Reports())) })
	g.Go(func() error { return watchReload(gctx, dev, cfg.Settings, logger) })

	dev.Init(cfg.Settings.Keys(), cfg.Settings.Values())
	if err := l.Query(); err != nil {
		logger.Warn("initial query not sent", "err", err)
	}

	err = g.Wait()
	snap := l.Statistics().Snapshot()
	logger.Info("bridge stopped", "frames", snap.TotalFrames, "records", snap.Records, "errors", snap.Errors())
	return err
}

// watchReload applies the settings of the config file on every SIGHUP
func watchReload(ctx context.Context, dev *bridge.Device, current config.Settings, logger *slog.Logger) error {
	if configPath == "" {
		return nil
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-hup:
			next, err := reloadSettings(dev, current, configPath)
			if err != nil {
				logger.Error("reload failed", "path", configPath, "err", err)
				continue
			}
			current = next
		}
	}
}

// reloadSettings loads path and writes the settings that differ from current.
// It returns the new settings.
func reloadSettings(dev *bridge.Device, current config.Settings, path string) (config.Settings, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return current, err
	}

	changed := config.ChangedKeys(current, cfg.Settings)
	if len(changed) > 0 {
		dev.SettingsChanged(changed, cfg.Settings.Values())
	}
	return cfg.Settings, nil
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
