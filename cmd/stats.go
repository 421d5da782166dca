// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/Thermoquad/tankstat/pkg/tuyadp"
	"github.com/spf13/cobra"
)

var (
	showAll       bool
	statsInterval int
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Detect and count malformed frames and records",
	Long: `Track frame errors and malformed DP records with statistics.

This command validates each frame and detects:
  - CRC errors and framing failures
  - Unknown tank state bytes
  - Truncated numeric payloads
  - DPs the bridge does not recognize

By default, only errors are displayed. Use --show-all to display valid frames too.

Errors are highlighted as they arrive, with periodic statistics summaries
displayed at configurable intervals.`,
	Args: cobra.NoArgs,
	RunE: runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.Flags().BoolVar(&showAll, "show-all", false, "Show all frames (not just errors)")
	statsCmd.Flags().IntVar(&statsInterval, "stats-interval", 10, "Statistics update interval (seconds)")
}

// frameReporter prints frames and errors for the stats command.
// Decode errors before the first valid frame are line noise and only counted.
type frameReporter struct {
	mu           sync.Mutex
	showAll      bool
	synchronized bool
	skipped      int
}

func (r *frameReporter) frame(f *tuyadp.Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.synchronized {
		r.synchronized = true
		if r.skipped > 0 {
			fmt.Printf("[SYNC] Synchronized after %d framing errors\n\n", r.skipped)
		} else {
			fmt.Printf("[SYNC] Synchronized\n\n")
		}
	}

	var bad []tuyadp.RawFrame
	for _, rec := range f.Records() {
		if _, err := tuyadp.Decode(rec); err != nil {
			bad = append(bad, rec)
		}
	}

	if len(bad) > 0 {
		timestamp := f.Timestamp().Format("15:04:05.000")
		fmt.Printf("[%s] \033[1;33mRECORD ERROR:\033[0m %s seq=%d\n", timestamp, tuyadp.FormatCommand(f.Command()), f.Seq())
		fmt.Printf("  CRC: \033[1;32mOK\033[0m\n")
		for i, rec := range bad {
			fmt.Printf("  Issue %d: \033[1;31m%s\033[0m\n", i+1, tuyadp.FormatRecord(rec))
		}
		fmt.Printf("  >>> RECORDS DROPPED <<<\n\n")
		return
	}

	if r.showAll {
		fmt.Print(tuyadp.FormatFrame(f))
	}
}

func (r *frameReporter) decodeError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.synchronized {
		r.skipped++
		return
	}
	timestamp := time.Now().Format("15:04:05.000")
	fmt.Printf("[%s] \033[1;31mDECODE ERROR:\033[0m %v\n", timestamp, err)
	fmt.Printf("  >>> DECODE FAILED <<<\n\n")
}

func (r *frameReporter) summary(stats *tuyadp.Statistics) {
	r.mu.Lock()
	defer r.mu.Unlock()

	fmt.Println()
	fmt.Print(stats.Snapshot().String())
	fmt.Println()
}

func runStats(cmd *cobra.Command, args []string) error {
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

	fmt.Printf("Tankstat - Frame Statistics\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Statistics interval: %d seconds\n", statsInterval)
	if showAll {
		fmt.Printf("Mode: All frames\n")
	} else {
		fmt.Printf("Mode: Errors only\n")
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	reporter := &frameReporter{showAll: showAll}
	l.OnFrame(reporter.frame)
	l.OnError(reporter.decodeError)

	go func() {
		for range l.Reports() {
		}
	}()
	go printStatsEvery(ctx, time.Duration(statsInterval)*time.Second, func() {
		reporter.summary(l.Statistics())
	})

	err = l.Run(ctx)
	reporter.summary(l.Statistics())
	return err
}

func printStatsEvery(ctx context.Context, interval time.Duration, fn func()) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}
