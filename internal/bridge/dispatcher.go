// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Thermoquad/tankstat/internal/capability"
	"github.com/Thermoquad/tankstat/pkg/tuyadp"
)

// ErrCapabilityWrite wraps failures returned by the capability store
var ErrCapabilityWrite = errors.New("capability write failed")

// Route is the handling strategy for a DP
type Route int

// Routes, one per known DP plus RouteUnknown
const (
	RouteUnknown Route = iota
	RouteTankState
	RouteLiquidLevel
	RouteLiquidLevelFill
	RouteDistanceToBottom
	RouteDistanceToTop
	RouteMinLevel
	RouteMaxLevel
)

// RouteFor returns the route of a DP
func RouteFor(dp tuyadp.DataPointID) Route {
	switch dp {
	case tuyadp.DPLiquidLevelState:
		return RouteTankState
	case tuyadp.DPLiquidLevel:
		return RouteLiquidLevel
	case tuyadp.DPLiquidLevelFill:
		return RouteLiquidLevelFill
	case tuyadp.DPDistanceToBottom:
		return RouteDistanceToBottom
	case tuyadp.DPDistanceToTop:
		return RouteDistanceToTop
	case tuyadp.DPMinLevel:
		return RouteMinLevel
	case tuyadp.DPMaxLevel:
		return RouteMaxLevel
	default:
		return RouteUnknown
	}
}

// Capability returns the capability a route writes, or "" for routes that
// only log their value.
func (r Route) Capability() string {
	switch r {
	case RouteTankState:
		return capability.TankState
	case RouteLiquidLevel:
		return capability.LiquidLevel
	case RouteLiquidLevelFill:
		return capability.LiquidLevelFill
	default:
		return ""
	}
}

// Observational reports whether the route logs its value without touching
// the capability store. The device reports these readings but the store has
// no capability for them.
func (r Route) Observational() bool {
	switch r {
	case RouteDistanceToBottom, RouteDistanceToTop, RouteMinLevel, RouteMaxLevel:
		return true
	}
	return false
}

// String returns the route label used in logs
func (r Route) String() string {
	switch r {
	case RouteTankState:
		return "State"
	case RouteLiquidLevel:
		return "Level"
	case RouteLiquidLevelFill:
		return "Level Fill"
	case RouteDistanceToBottom:
		return "Distance to bottom"
	case RouteDistanceToTop:
		return "Distance to top"
	case RouteMinLevel:
		return "Min"
	case RouteMaxLevel:
		return "Max"
	default:
		return "Unknown"
	}
}

// Outcome describes what dispatching one frame did
type Outcome struct {
	DP         tuyadp.DataPointID
	Route      Route
	Result     tuyadp.DecodeResult
	Capability string // set when the store was written
	Value      any    // semantic value, nil when nothing was decoded
	Err        error
}

// Dispatcher routes decoded reports to the capability store.
// It keeps no state between frames.
type Dispatcher struct {
	store    capability.Store
	log      *slog.Logger
	observer func(Outcome)
}

// NewDispatcher creates a dispatcher writing to store
func NewDispatcher(store capability.Store, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{store: store, log: logger}
}

// OnOutcome registers fn to receive every dispatch outcome
func (d *Dispatcher) OnOutcome(fn func(Outcome)) {
	d.observer = fn
}

// Dispatch decodes one report and applies it.
// Failures are logged and returned in the Outcome; none of them is fatal.
func (d *Dispatcher) Dispatch(ctx context.Context, f tuyadp.RawFrame) Outcome {
	out := d.dispatch(ctx, f)
	if d.observer != nil {
		d.observer(out)
	}
	return out
}

func (d *Dispatcher) dispatch(ctx context.Context, f tuyadp.RawFrame) Outcome {
	out := Outcome{DP: f.DP, Route: RouteFor(f.DP)}

	if out.Route == RouteUnknown {
		d.log.Debug("ignoring unrecognized dp", "dp", uint8(f.DP), "type", tuyadp.FormatDataType(f.Type), "len", len(f.Data))
		return out
	}

	res, err := tuyadp.Decode(f)
	out.Result = res
	if err != nil {
		out.Err = err
		d.log.Warn("dropping report", "dp", uint8(f.DP), "route", out.Route.String(), "data", fmt.Sprintf("% X", f.Data), "err", err)
		return out
	}

	switch res.Kind {
	case tuyadp.KindState:
		out.Value = res.State.String()
	case tuyadp.KindNumber:
		out.Value = res.Number
	}

	d.log.Info(out.Route.String(), "dp", uint8(f.DP), "value", out.Value)

	name := out.Route.Capability()
	if name == "" {
		return out
	}

	if err := d.store.Set(ctx, name, out.Value); err != nil {
		out.Err = fmt.Errorf("%w: %s: %w", ErrCapabilityWrite, name, err)
		d.log.Error("capability write failed", "capability", name, "value", out.Value, "err", err)
		return out
	}
	out.Capability = name
	return out
}
