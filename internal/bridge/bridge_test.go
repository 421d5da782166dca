// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/Thermoquad/tankstat/pkg/tuyadp"
	"github.com/stretchr/testify/mock"
)

// ---------------------------------------------------------------------------
// stubStore / stubSender
// ---------------------------------------------------------------------------

type stubStore struct{ mock.Mock }

func (s *stubStore) Set(ctx context.Context, name string, value any) error {
	return s.Called(ctx, name, value).Error(0)
}

type stubSender struct{ mock.Mock }

func (s *stubSender) Submit(cmd tuyadp.WriteCommand) error {
	return s.Called(cmd).Error(0)
}

// ---------------------------------------------------------------------------
// recordingHandler captures log records by level
// ---------------------------------------------------------------------------

type recordingHandler struct {
	mu      sync.Mutex
	records []slog.Record
}

func (h *recordingHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *recordingHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, r)
	return nil
}

func (h *recordingHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *recordingHandler) WithGroup(string) slog.Handler      { return h }

func (h *recordingHandler) count(level slog.Level) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, r := range h.records {
		if r.Level == level {
			n++
		}
	}
	return n
}

func newRecordingLogger() (*slog.Logger, *recordingHandler) {
	h := &recordingHandler{}
	return slog.New(h), h
}

func mustWrite(t *testing.T, dp tuyadp.DataPointID, v int64) tuyadp.WriteCommand {
	t.Helper()
	cmd, err := tuyadp.EncodeWrite(dp, v)
	if err != nil {
		t.Fatalf("EncodeWrite(%s, %d): %v", dp, v, err)
	}
	return cmd
}

func valueFrame(dp tuyadp.DataPointID, v uint32) tuyadp.RawFrame {
	return tuyadp.RawFrame{
		DP:   dp,
		Type: tuyadp.TypeValue,
		Data: []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)},
	}
}

func stateFrame(b byte) tuyadp.RawFrame {
	return tuyadp.RawFrame{DP: tuyadp.DPLiquidLevelState, Type: tuyadp.TypeEnum, Data: []byte{b}}
}
