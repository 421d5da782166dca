// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package capability holds the capability stores the bridge publishes
// semantic tank values to.
//
// A capability is a named, externally observable property of the device.
// Stores expose independent last-write-wins writes per capability; nothing in
// the bridge reads a capability back before writing it.
package capability

import (
	"context"
	"errors"
	"fmt"
)

// Capability names
const (
	TankState       = "tank_state"
	LiquidLevel     = "liquid_level"
	LiquidLevelFill = "liquid_level_fill"
)

// ErrUnknownCapability is returned by stores for names outside the fixed set
var ErrUnknownCapability = errors.New("unknown capability")

// Store receives capability values.
// Implementations must be safe for concurrent use.
type Store interface {
	Set(ctx context.Context, name string, value any) error
}

// Names returns every capability name
func Names() []string {
	return []string{TankState, LiquidLevel, LiquidLevelFill}
}

func checkName(name string) error {
	switch name {
	case TankState, LiquidLevel, LiquidLevelFill:
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnknownCapability, name)
}
