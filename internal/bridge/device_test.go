// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Thermoquad/tankstat/internal/capability"
	"github.com/Thermoquad/tankstat/pkg/tuyadp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// overlapStore records whether two Set calls were ever in flight at once
type overlapStore struct {
	inFlight atomic.Int32
	overlap  atomic.Bool
	calls    atomic.Int32
}

func (s *overlapStore) Set(context.Context, string, any) error {
	if s.inFlight.Add(1) > 1 {
		s.overlap.Store(true)
	}
	time.Sleep(time.Millisecond)
	s.inFlight.Add(-1)
	s.calls.Add(1)
	return nil
}

func TestNewDevice_Session(t *testing.T) {
	a := NewDevice("tank-1", &stubSender{}, capability.NewMemory(), slog.New(slog.DiscardHandler))
	b := NewDevice("tank-1", &stubSender{}, capability.NewMemory(), slog.New(slog.DiscardHandler))

	assert.Equal(t, "tank-1", a.ID())
	assert.NotEmpty(t, a.Session())
	assert.NotEqual(t, a.Session(), b.Session())
	assert.NotNil(t, a.Dispatcher())
}

func TestDevice_HandleReportSerializes(t *testing.T) {
	store := &overlapStore{}
	d := NewDevice("tank-1", &stubSender{}, store, slog.New(slog.DiscardHandler))

	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.HandleReport(context.Background(), valueFrame(tuyadp.DPLiquidLevel, uint32(i)))
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(16), store.calls.Load())
	assert.False(t, store.overlap.Load(), "reports were dispatched concurrently")
}

func TestDevice_InitWritesEverySetting(t *testing.T) {
	sender := &stubSender{}
	sender.On("Submit", mock.Anything).Return(nil)

	d := NewDevice("tank-1", sender, capability.NewMemory(), slog.New(slog.DiscardHandler))
	results := d.Init(tuyadp.ConfigKeys(), map[string]any{
		tuyadp.KeyDistanceToTop:    25,
		tuyadp.KeyDistanceToBottom: 180,
		tuyadp.KeyMinLevel:         10,
		tuyadp.KeyMaxLevel:         90,
	})

	assert.Len(t, results, 4)
	for _, r := range results {
		assert.NoError(t, r.Err, r.Key)
	}
	sender.AssertNumberOfCalls(t, "Submit", 4)
}

func TestDevice_SettingsChangedOnlyChangedKeys(t *testing.T) {
	sender := &stubSender{}
	sender.On("Submit", mustWrite(t, tuyadp.DPMaxLevel, 95)).Return(nil).Once()

	d := NewDevice("tank-1", sender, capability.NewMemory(), slog.New(slog.DiscardHandler))
	results := d.SettingsChanged([]string{tuyadp.KeyMaxLevel}, map[string]any{
		tuyadp.KeyMaxLevel: 95,
		tuyadp.KeyMinLevel: 10,
	})

	require.Len(t, results, 1)
	sender.AssertExpectations(t)
}

func TestDevice_RunUntilClosed(t *testing.T) {
	store := capability.NewMemory()
	d := NewDevice("tank-1", &stubSender{}, store, slog.New(slog.DiscardHandler))

	reports := make(chan tuyadp.RawFrame, 3)
	reports <- stateFrame(2)
	reports <- valueFrame(tuyadp.DPLiquidLevel, 812)
	reports <- valueFrame(tuyadp.DPLiquidLevelFill, 67)
	close(reports)

	require.NoError(t, d.Run(context.Background(), reports))

	assert.Equal(t, map[string]any{
		capability.TankState:       "full",
		capability.LiquidLevel:     uint32(812),
		capability.LiquidLevelFill: uint32(67),
	}, store.Snapshot())
}

func TestDevice_RunStopsOnCancel(t *testing.T) {
	d := NewDevice("tank-1", &stubSender{}, capability.NewMemory(), slog.New(slog.DiscardHandler))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx, make(chan tuyadp.RawFrame)) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
