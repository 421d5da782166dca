// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package tuyadp

// TankState is the fill state reported on DPLiquidLevelState
type TankState uint8

// Tank state values, numbered as on the wire
const (
	TankNormal TankState = 0
	TankLow    TankState = 1
	TankFull   TankState = 2
)

// StateOf maps a raw state byte to a TankState.
// Bytes outside {0, 1, 2} are protocol violations and yield false.
func StateOf(b byte) (TankState, bool) {
	switch TankState(b) {
	case TankNormal, TankLow, TankFull:
		return TankState(b), true
	}
	return 0, false
}

// String returns the capability value for the state
func (s TankState) String() string {
	switch s {
	case TankLow:
		return "low"
	case TankNormal:
		return "normal"
	case TankFull:
		return "full"
	default:
		return "unknown"
	}
}
