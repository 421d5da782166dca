// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/Thermoquad/tankstat/internal/capability"
	"github.com/Thermoquad/tankstat/pkg/tuyadp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestRouteFor(t *testing.T) {
	tests := []struct {
		dp         tuyadp.DataPointID
		route      Route
		capability string
		observe    bool
	}{
		{tuyadp.DPLiquidLevelState, RouteTankState, capability.TankState, false},
		{tuyadp.DPLiquidLevel, RouteLiquidLevel, capability.LiquidLevel, false},
		{tuyadp.DPLiquidLevelFill, RouteLiquidLevelFill, capability.LiquidLevelFill, false},
		{tuyadp.DPDistanceToBottom, RouteDistanceToBottom, "", true},
		{tuyadp.DPDistanceToTop, RouteDistanceToTop, "", true},
		{tuyadp.DPMinLevel, RouteMinLevel, "", true},
		{tuyadp.DPMaxLevel, RouteMaxLevel, "", true},
		{tuyadp.DataPointID(99), RouteUnknown, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.dp.String(), func(t *testing.T) {
			r := RouteFor(tt.dp)
			assert.Equal(t, tt.route, r)
			assert.Equal(t, tt.capability, r.Capability())
			assert.Equal(t, tt.observe, r.Observational())
		})
	}
}

func TestDispatch_LiquidLevel(t *testing.T) {
	ctx := context.Background()
	store := &stubStore{}
	store.On("Set", ctx, capability.LiquidLevel, uint32(4321)).Return(nil).Once()

	d := NewDispatcher(store, slog.New(slog.DiscardHandler))
	out := d.Dispatch(ctx, valueFrame(tuyadp.DPLiquidLevel, 4321))

	require.NoError(t, out.Err)
	assert.Equal(t, capability.LiquidLevel, out.Capability)
	assert.Equal(t, uint32(4321), out.Value)
	store.AssertExpectations(t)
	store.AssertNumberOfCalls(t, "Set", 1)
}

func TestDispatch_TankStates(t *testing.T) {
	tests := []struct {
		b    byte
		want string
	}{
		{0, "normal"},
		{1, "low"},
		{2, "full"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			ctx := context.Background()
			store := &stubStore{}
			store.On("Set", ctx, capability.TankState, tt.want).Return(nil).Once()

			out := NewDispatcher(store, slog.New(slog.DiscardHandler)).Dispatch(ctx, stateFrame(tt.b))

			require.NoError(t, out.Err)
			assert.Equal(t, tuyadp.KindState, out.Result.Kind)
			store.AssertExpectations(t)
		})
	}
}

func TestDispatch_InvalidStateByte(t *testing.T) {
	store := &stubStore{}
	logger, rec := newRecordingLogger()

	out := NewDispatcher(store, logger).Dispatch(context.Background(), stateFrame(5))

	assert.ErrorIs(t, out.Err, tuyadp.ErrUnknownState)
	assert.Empty(t, out.Capability)
	store.AssertNotCalled(t, "Set", mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, 1, rec.count(slog.LevelWarn))
	assert.Equal(t, 0, rec.count(slog.LevelError))
}

func TestDispatch_TruncatedValue(t *testing.T) {
	store := &stubStore{}
	logger, rec := newRecordingLogger()

	f := tuyadp.RawFrame{DP: tuyadp.DPLiquidLevelFill, Type: tuyadp.TypeValue, Data: []byte{0x00, 0x10}}
	out := NewDispatcher(store, logger).Dispatch(context.Background(), f)

	assert.ErrorIs(t, out.Err, tuyadp.ErrTruncatedPayload)
	store.AssertNotCalled(t, "Set", mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, 1, rec.count(slog.LevelWarn))
}

func TestDispatch_UnknownDP(t *testing.T) {
	store := &stubStore{}
	logger, rec := newRecordingLogger()

	f := tuyadp.RawFrame{DP: tuyadp.DataPointID(42), Type: tuyadp.TypeRaw, Data: []byte{1, 2, 3}}
	out := NewDispatcher(store, logger).Dispatch(context.Background(), f)

	assert.NoError(t, out.Err)
	assert.Equal(t, RouteUnknown, out.Route)
	assert.Nil(t, out.Value)
	store.AssertNotCalled(t, "Set", mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, 0, rec.count(slog.LevelWarn))
	assert.Equal(t, 0, rec.count(slog.LevelError))
	assert.Equal(t, 1, rec.count(slog.LevelDebug))
}

func TestDispatch_ObservationalRoutesOnlyLog(t *testing.T) {
	for _, dp := range []tuyadp.DataPointID{
		tuyadp.DPDistanceToBottom, tuyadp.DPDistanceToTop, tuyadp.DPMinLevel, tuyadp.DPMaxLevel,
	} {
		t.Run(dp.String(), func(t *testing.T) {
			store := &stubStore{}
			logger, rec := newRecordingLogger()

			out := NewDispatcher(store, logger).Dispatch(context.Background(), valueFrame(dp, 120))

			assert.NoError(t, out.Err)
			assert.Equal(t, uint32(120), out.Value)
			assert.Empty(t, out.Capability)
			store.AssertNotCalled(t, "Set", mock.Anything, mock.Anything, mock.Anything)
			assert.Equal(t, 1, rec.count(slog.LevelInfo))
		})
	}
}

func TestDispatch_StoreFailure(t *testing.T) {
	ctx := context.Background()
	store := &stubStore{}
	store.On("Set", ctx, capability.LiquidLevelFill, uint32(55)).Return(errors.New("store down"))

	logger, rec := newRecordingLogger()
	out := NewDispatcher(store, logger).Dispatch(ctx, valueFrame(tuyadp.DPLiquidLevelFill, 55))

	assert.ErrorIs(t, out.Err, ErrCapabilityWrite)
	assert.ErrorContains(t, out.Err, "store down")
	assert.Empty(t, out.Capability)
	assert.Equal(t, 1, rec.count(slog.LevelError))
}

func TestDispatch_ObservationOrderDoesNotMatter(t *testing.T) {
	frames := []tuyadp.RawFrame{
		valueFrame(tuyadp.DPMinLevel, 10),
		valueFrame(tuyadp.DPLiquidLevel, 700),
		valueFrame(tuyadp.DPDistanceToTop, 30),
		stateFrame(1),
		valueFrame(tuyadp.DPMaxLevel, 90),
	}

	run := func(order []int) map[string]any {
		store := capability.NewMemory()
		d := NewDispatcher(store, slog.New(slog.DiscardHandler))
		for _, i := range order {
			d.Dispatch(context.Background(), frames[i])
		}
		return store.Snapshot()
	}

	forward := run([]int{0, 1, 2, 3, 4})
	shuffled := run([]int{4, 2, 0, 3, 1})

	assert.Equal(t, forward, shuffled)
	assert.Equal(t, map[string]any{
		capability.LiquidLevel: uint32(700),
		capability.TankState:   "low",
	}, forward)
}

func TestDispatch_Observer(t *testing.T) {
	var seen []Outcome
	d := NewDispatcher(capability.NewMemory(), slog.New(slog.DiscardHandler))
	d.OnOutcome(func(o Outcome) { seen = append(seen, o) })

	d.Dispatch(context.Background(), stateFrame(2))
	d.Dispatch(context.Background(), stateFrame(9))

	require.Len(t, seen, 2)
	assert.Equal(t, "full", seen[0].Value)
	assert.Error(t, seen[1].Err)
}
