// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Thermoquad/tankstat/internal/bridge"
	"github.com/Thermoquad/tankstat/pkg/tuyadp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var writeTimeout int

var writeCmd = &cobra.Command{
	Use:   "write <key> <value> [<key> <value>...]",
	Short: "Write settings to the monitor once",
	Long: `Write one or more settings to the tank level monitor and exit.

Keys: ` + strings.Join(tuyadp.ConfigKeys(), ", ") + `

Settings are written in the order given. Unknown keys and empty values (0) are
skipped, the same as when the bridge syncs its configuration file.`,
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 || len(args)%2 != 0 {
			return fmt.Errorf("expected key value pairs, got %d arguments", len(args))
		}
		return nil
	},
	RunE: runWrite,
}

func init() {
	rootCmd.AddCommand(writeCmd)
	writeCmd.Flags().IntVar(&writeTimeout, "timeout", 5, "Seconds to wait for the writes to be sent")
}

// settingArgs turns key value arguments into ordered keys and a value map
func settingArgs(args []string) ([]string, map[string]any) {
	keys := make([]string, 0, len(args)/2)
	values := make(map[string]any, len(args)/2)
	for i := 0; i+1 < len(args); i += 2 {
		keys = append(keys, args[i])
		values[args[i]] = args[i+1]
	}
	return keys, values
}

func runWrite(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := stderrLogger(cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	l, connInfo, closeCapture, err := openLink(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeCapture()
	fmt.Printf("Connection: %s\n", connInfo)

	keys, values := settingArgs(args)
	plans := bridge.Plan(keys, values)
	for _, p := range plans {
		if !p.Ready() && p.Err == nil {
			fmt.Printf("  %-20s skipped (%s)\n", p.Key, p.Skip)
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return l.Run(gctx) })
	g.Go(func() error {
		for range l.Reports() {
		}
		return nil
	})

	syncer := bridge.NewSynchronizer(l, logger)
	results := syncer.Sync(keys, values)

	flushCtx, flushCancel := context.WithTimeout(ctx, time.Duration(writeTimeout)*time.Second)
	defer flushCancel()
	flushErr := l.Flush(flushCtx)

	cancel()
	if err := g.Wait(); err != nil {
		return err
	}
	if flushErr != nil {
		return fmt.Errorf("writes not sent: %w", flushErr)
	}

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			fmt.Printf("  %-20s FAILED: %v\n", r.Key, r.Err)
			continue
		}
		fmt.Printf("  %-20s dp %-3d <- %d\n", r.Key, uint8(r.DP), r.Value)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d writes failed", failed, len(results))
	}
	return nil
}
