// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Thermoquad/tankstat/pkg/tuyadp"
	"github.com/spf13/cobra"
)

var rawLogQuery bool

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display raw frame log in human-readable format",
	Long: `Continuously decode and display link frames as they arrive.

Each frame is shown with timestamp, command, sequence number and every DP record
it carries. Decode errors are shown inline. Nothing is written to the capability
store.

Supports both serial and WebSocket connections.`,
	Args: cobra.NoArgs,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
	rawLogCmd.Flags().BoolVar(&rawLogQuery, "query", false, "Request a full DP report after connecting")
}

func runRawLog(cmd *cobra.Command, args []string) error {
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

	fmt.Printf("Tankstat - Raw Frame Log\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	l.OnFrame(func(f *tuyadp.Frame) {
		fmt.Print(tuyadp.FormatFrame(f))
	})
	l.OnError(func(err error) {
		fmt.Printf("[%s] [ERROR] %v\n", time.Now().Format("15:04:05.000"), err)
	})

	if rawLogQuery {
		if err := l.Query(); err != nil {
			return err
		}
	}

	// Records are printed by OnFrame; drain them so the reader never stalls
	go func() {
		for range l.Reports() {
		}
	}()

	if err := l.Run(ctx); err != nil {
		return err
	}
	fmt.Println("Connection closed")
	return nil
}
