// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"log/slog"

	"github.com/Thermoquad/tankstat/pkg/tuyadp"
)

// Sender hands write commands to the channel.
// Submit must not block on I/O; the error only reports that the command
// could not be queued.
type Sender interface {
	Submit(cmd tuyadp.WriteCommand) error
}

// SkipReason says why a changed setting produced no write
type SkipReason int

// Skip reasons
const (
	NotSkipped SkipReason = iota
	SkipUnmappedKey
	SkipEmptyValue
)

// String returns the reason used in logs
func (r SkipReason) String() string {
	switch r {
	case SkipUnmappedKey:
		return "unmapped key"
	case SkipEmptyValue:
		return "empty value"
	default:
		return "none"
	}
}

// PlannedWrite is the outcome of resolving one changed setting
type PlannedWrite struct {
	Key     string
	DP      tuyadp.DataPointID
	Skip    SkipReason
	Command tuyadp.WriteCommand
	Err     error // value could not be encoded
}

// Ready reports whether the write should be sent
func (p PlannedWrite) Ready() bool {
	return p.Skip == NotSkipped && p.Err == nil
}

// WriteResult is the outcome of one attempted write
type WriteResult struct {
	Key   string
	DP    tuyadp.DataPointID
	Value uint32
	Err   error
}

// Plan resolves changed settings into write commands, in key order.
// Keys without a DP and keys whose value IsEmptyValue are skipped.
func Plan(keys []string, values map[string]any) []PlannedWrite {
	plans := make([]PlannedWrite, 0, len(keys))
	for _, key := range keys {
		p := PlannedWrite{Key: key}

		dp, ok := tuyadp.LookupDP(key)
		if !ok {
			p.Skip = SkipUnmappedKey
			plans = append(plans, p)
			continue
		}
		p.DP = dp

		value := values[key]
		if IsEmptyValue(value) {
			p.Skip = SkipEmptyValue
			plans = append(plans, p)
			continue
		}

		n, err := settingInt(value)
		if err == nil {
			p.Command, err = tuyadp.EncodeWrite(dp, n)
		}
		p.Err = err
		plans = append(plans, p)
	}
	return plans
}

// Synchronizer pushes settings to the device.
type Synchronizer struct {
	sender Sender
	log    *slog.Logger
}

// NewSynchronizer creates a synchronizer writing through sender
func NewSynchronizer(sender Sender, logger *slog.Logger) *Synchronizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Synchronizer{sender: sender, log: logger}
}

// Sync writes every changed setting that maps to a DP and has a value.
// Writes are submitted in key order. A failed write is logged and reported
// in its result; it never stops the remaining keys.
func (s *Synchronizer) Sync(keys []string, values map[string]any) []WriteResult {
	var results []WriteResult

	for _, p := range Plan(keys, values) {
		if p.Skip != NotSkipped {
			s.log.Debug("setting skipped", "key", p.Key, "reason", p.Skip.String())
			continue
		}

		res := WriteResult{Key: p.Key, DP: p.DP}
		if p.Err != nil {
			res.Err = p.Err
			s.log.Error("setting not encodable", "key", p.Key, "dp", uint8(p.DP), "value", values[p.Key], "err", p.Err)
			results = append(results, res)
			continue
		}

		res.Value = p.Command.Value()
		if err := s.sender.Submit(p.Command); err != nil {
			res.Err = err
			s.log.Error("write failed", "key", p.Key, "dp", uint8(p.DP), "value", res.Value, "err", err)
		} else {
			s.log.Info("writing setting", "key", p.Key, "dp", uint8(p.DP), "value", res.Value)
		}
		results = append(results, res)
	}

	return results
}
