// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package tuyadp

import "fmt"

// DataPointID identifies a DP of the tank level monitor.
type DataPointID uint8

// Tank level monitor DPs
const (
	DPLiquidLevelState DataPointID = 1
	DPLiquidLevel      DataPointID = 2
	DPMaxLevel         DataPointID = 7
	DPMinLevel         DataPointID = 8
	DPDistanceToBottom DataPointID = 19
	DPDistanceToTop    DataPointID = 21
	DPLiquidLevelFill  DataPointID = 22
)

// Role is how the payload of a known DP is interpreted.
type Role int

// Role values
const (
	RoleState   Role = iota // 1 byte enumerated tank state
	RoleNumeric             // 4 byte big-endian unsigned integer
)

// ConfigKey is the name of a user-editable setting backed by a DP.
type ConfigKey = string

// Settable configuration keys
const (
	KeyDistanceToTop    ConfigKey = "distance_to_top"
	KeyDistanceToBottom ConfigKey = "distance_to_bottom"
	KeyMinLevel         ConfigKey = "min_level"
	KeyMaxLevel         ConfigKey = "max_level"
)

var configDPs = map[ConfigKey]DataPointID{
	KeyDistanceToTop:    DPDistanceToTop,
	KeyDistanceToBottom: DPDistanceToBottom,
	KeyMinLevel:         DPMinLevel,
	KeyMaxLevel:         DPMaxLevel,
}

var dpRoles = map[DataPointID]Role{
	DPLiquidLevelState: RoleState,
	DPLiquidLevel:      RoleNumeric,
	DPLiquidLevelFill:  RoleNumeric,
	DPDistanceToTop:    RoleNumeric,
	DPDistanceToBottom: RoleNumeric,
	DPMinLevel:         RoleNumeric,
	DPMaxLevel:         RoleNumeric,
}

// LookupDP returns the DP backing a configuration key.
// The second result is false for keys without a DP.
func LookupDP(key ConfigKey) (DataPointID, bool) {
	dp, ok := configDPs[key]
	return dp, ok
}

// RoleOf returns the payload interpretation of a known DP.
func RoleOf(dp DataPointID) (Role, bool) {
	r, ok := dpRoles[dp]
	return r, ok
}

// ConfigKeys returns the settable keys in DP order.
func ConfigKeys() []ConfigKey {
	return []ConfigKey{KeyMaxLevel, KeyMinLevel, KeyDistanceToBottom, KeyDistanceToTop}
}

// String returns the DP name used in logs
func (dp DataPointID) String() string {
	switch dp {
	case DPLiquidLevelState:
		return "liquid_level_state"
	case DPLiquidLevel:
		return "liquid_level"
	case DPMaxLevel:
		return "max_level"
	case DPMinLevel:
		return "min_level"
	case DPDistanceToBottom:
		return "distance_to_bottom"
	case DPDistanceToTop:
		return "distance_to_top"
	case DPLiquidLevelFill:
		return "liquid_level_fill"
	default:
		return fmt.Sprintf("dp_%d", uint8(dp))
	}
}
