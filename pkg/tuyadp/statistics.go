// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package tuyadp

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Statistics tracks frame statistics and error rates.
// Safe for concurrent use; read counters through Snapshot.
type Statistics struct {
	mu sync.Mutex
	s  StatsSnapshot
}

// StatsSnapshot is a point-in-time copy of the counters
type StatsSnapshot struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Frame counters
	TotalFrames  uint64
	ValidFrames  uint64
	CRCErrors    uint64
	DecodeErrors uint64

	// Record counters
	Records       uint64
	UnknownStates uint64
	Truncated     uint64
	Unrecognized  uint64

	// Rates (calculated)
	FrameRate float64 // frames/sec
	ErrorRate float64 // errors/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{s: StatsSnapshot{StartTime: now, LastUpdateTime: now}}
}

// Update counts a decoded frame or a decode error.
// Each record of a valid frame is run through Decode and counted by outcome.
func (s *Statistics) Update(f *Frame, decodeErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.s.TotalFrames++
	s.s.LastUpdateTime = time.Now()

	if decodeErr != nil {
		if errors.Is(decodeErr, ErrCRCMismatch) {
			s.s.CRCErrors++
		} else {
			s.s.DecodeErrors++
		}
		return
	}

	s.s.ValidFrames++
	if f == nil {
		return
	}
	for _, r := range f.Records() {
		s.s.Records++
		res, err := Decode(r)
		switch {
		case errors.Is(err, ErrUnknownState):
			s.s.UnknownStates++
		case errors.Is(err, ErrTruncatedPayload):
			s.s.Truncated++
		case err == nil && res.Kind == KindUnrecognized:
			s.s.Unrecognized++
		}
	}
}

// Snapshot returns the counters with rates calculated
func (s *Statistics) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.s
	elapsed := time.Since(snap.StartTime).Seconds()
	if elapsed > 0 {
		snap.FrameRate = float64(snap.TotalFrames) / elapsed
		snap.ErrorRate = float64(snap.Errors()) / elapsed
	}
	return snap
}

// Errors returns the number of frame and record level errors
func (s StatsSnapshot) Errors() uint64 {
	return s.CRCErrors + s.DecodeErrors + s.UnknownStates + s.Truncated
}

// String returns a formatted statistics summary
func (s StatsSnapshot) String() string {
	var validPercent, crcPercent, decodePercent float64
	if s.TotalFrames > 0 {
		validPercent = float64(s.ValidFrames) * 100.0 / float64(s.TotalFrames)
		crcPercent = float64(s.CRCErrors) * 100.0 / float64(s.TotalFrames)
		decodePercent = float64(s.DecodeErrors) * 100.0 / float64(s.TotalFrames)
	}

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Total Frames:    %8d\n", s.TotalFrames)
	result += fmt.Sprintf("Valid Frames:    %8d (%.1f%%)\n", s.ValidFrames, validPercent)

	if s.CRCErrors > 0 {
		result += fmt.Sprintf("CRC Errors:      %8d (%.1f%%)\n", s.CRCErrors, crcPercent)
	}
	if s.DecodeErrors > 0 {
		result += fmt.Sprintf("Decode Errors:   %8d (%.1f%%)\n", s.DecodeErrors, decodePercent)
	}

	result += fmt.Sprintf("DP Records:      %8d\n", s.Records)
	if s.UnknownStates > 0 {
		result += fmt.Sprintf("  Unknown State:    %5d\n", s.UnknownStates)
	}
	if s.Truncated > 0 {
		result += fmt.Sprintf("  Truncated:        %5d\n", s.Truncated)
	}
	if s.Unrecognized > 0 {
		result += fmt.Sprintf("  Unrecognized DP:  %5d\n", s.Unrecognized)
	}

	result += fmt.Sprintf("Frame Rate:      %8.1f frames/sec\n", s.FrameRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.s = StatsSnapshot{StartTime: now, LastUpdateTime: now}
}
