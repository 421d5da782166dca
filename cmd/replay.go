// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"io"
	"slices"

	"github.com/Thermoquad/tankstat/internal/bridge"
	"github.com/Thermoquad/tankstat/internal/capability"
	"github.com/Thermoquad/tankstat/internal/capture"
	"github.com/spf13/cobra"
)

var (
	replayMirror   bool
	replayOutbound bool
)

var replayCmd = &cobra.Command{
	Use:   "replay <capture>",
	Short: "Dispatch a capture file and show the resulting capabilities",
	Long: `Read a capture written by --config capture.path and run every inbound DP
record through the dispatcher, as the bridge did when it was recorded.

The capabilities are kept in memory and printed at the end. With --mirror they
are also written to the stores configured in --config.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().BoolVar(&replayMirror, "mirror", false, "Also write capabilities to the configured stores")
	replayCmd.Flags().BoolVar(&replayOutbound, "outbound", false, "Print outbound records too")
}

func runReplay(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := stderrLogger(cfg)

	r, err := capture.Open(args[0])
	if err != nil {
		return err
	}
	defer r.Close()

	mem := capability.NewMemory()
	var store capability.Store = mem
	if replayMirror {
		m, mirrored, closeStore, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer closeStore()
		mem, store = m, mirrored
	}

	// Observational values are kept next to the capabilities for the summary
	observed := map[string]any{}
	d := bridge.NewDispatcher(store, logger)
	d.OnOutcome(func(o bridge.Outcome) {
		if o.Route.Observational() && o.Err == nil {
			observed[o.Route.String()] = o.Value
		}
	})

	summary, err := replay(cmd.Context(), r, d, cmd.OutOrStdout(), replayOutbound)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\n%d records, %d inbound, %d dropped\n", summary.records, summary.inbound, summary.dropped)
	printCapabilities(out, mem.Snapshot())
	printCapabilities(out, observed)
	return nil
}

type replaySummary struct {
	records int
	inbound int
	dropped int
}

// replay dispatches every inbound record of r and prints one line per record
func replay(ctx context.Context, r *capture.Reader, d *bridge.Dispatcher, out io.Writer, showOutbound bool) (replaySummary, error) {
	var s replaySummary
	for {
		rec, err := r.Next()
		if err == io.EOF {
			return s, nil
		}
		if err != nil {
			return s, fmt.Errorf("record %d: %w", s.records+1, err)
		}
		s.records++

		ts := rec.Time.Format("2006-01-02 15:04:05.000")
		if rec.Direction == capture.Outbound {
			if showOutbound {
				fmt.Fprintf(out, "[%s] tx seq=%d %s\n", ts, rec.Seq, rec.RawFrame().DP)
			}
			continue
		}

		s.inbound++
		o := d.Dispatch(ctx, rec.RawFrame())
		switch {
		case o.Err != nil:
			s.dropped++
			fmt.Fprintf(out, "[%s] rx %-20s ERROR %v\n", ts, o.DP, o.Err)
		case o.Route == bridge.RouteUnknown:
			fmt.Fprintf(out, "[%s] rx %-20s ignored\n", ts, o.DP)
		default:
			fmt.Fprintf(out, "[%s] rx %-20s %v\n", ts, o.Route, o.Value)
		}
	}
}

func printCapabilities(out io.Writer, values map[string]any) {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		fmt.Fprintf(out, "  %-20s %v\n", k, values[k])
	}
}
