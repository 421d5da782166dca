// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/Thermoquad/tankstat/pkg/tuyadp"
	"github.com/spf13/cobra"
)

var probeTimeout int

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Test the connection by querying the monitor",
	Long: `Send a DP query and wait for a valid frame until timeout.

Invalid bytes are ignored; only a complete frame passing its CRC check counts.

Exit codes:
  0 - Frame received before timeout
  1 - Timeout reached without receiving a valid frame
  2 - Connection error`,
	Args: cobra.NoArgs,
	RunE: runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)
	probeCmd.Flags().IntVar(&probeTimeout, "timeout", 10, "Timeout in seconds to wait for a frame")
}

func runProbe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := stderrLogger(cfg)

	ctx, cancel := context.WithTimeout(cmd.Context(), time.Duration(probeTimeout)*time.Second)
	defer cancel()

	l, connInfo, closeCapture, err := openLink(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer closeCapture()

	fmt.Printf("Tankstat - Probe\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds\n", probeTimeout)
	fmt.Printf("Waiting for a valid frame...\n\n")

	frames := make(chan *tuyadp.Frame, 1)
	l.OnFrame(func(f *tuyadp.Frame) {
		select {
		case frames <- f:
		default:
		}
	})
	if err := l.Query(); err != nil {
		return err
	}

	runErr := make(chan error, 1)
	go func() { runErr <- l.Run(ctx) }()
	go func() {
		for range l.Reports() {
		}
	}()

	select {
	case f := <-frames:
		cancel()
		<-runErr
		snap := l.Statistics().Snapshot()
		skipped := snap.CRCErrors + snap.DecodeErrors
		if skipped > 0 {
			fmt.Printf("(%d framing errors before sync)\n", skipped)
		}
		fmt.Printf("SUCCESS: Received valid frame\n")
		fmt.Printf("  Command: %s (0x%02X)\n", tuyadp.FormatCommand(f.Command()), uint8(f.Command()))
		fmt.Printf("  Seq: %d\n", f.Seq())
		fmt.Printf("  Records: %d\n", len(f.Records()))
		fmt.Printf("  CRC: 0x%04X\n", f.CRC())
		return nil

	case err := <-runErr:
		if err == nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			fmt.Fprintf(os.Stderr, "TIMEOUT: No valid frame received within %d seconds\n", probeTimeout)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
		os.Exit(2)
	}

	return nil
}
