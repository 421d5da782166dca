// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package tuyadp

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Decode and encode errors
var (
	ErrUnknownState     = errors.New("unknown tank state")
	ErrTruncatedPayload = errors.New("truncated payload")
	ErrValueOutOfRange  = errors.New("value out of uint32 range")
)

// RawFrame is one inbound DP record: the DP, its declared data type and the
// payload bytes. The payload is interpreted by the DP's role, not by Type.
type RawFrame struct {
	DP   DataPointID
	Type DataType
	Data []byte
}

// WriteCommand is an outbound DP write carrying a 32-bit big-endian value.
type WriteCommand struct {
	DP      DataPointID
	Payload [ValueSize]byte
}

// Value returns the unsigned value carried by the command
func (c WriteCommand) Value() uint32 {
	return binary.BigEndian.Uint32(c.Payload[:])
}

// Record returns the command as a DP record ready for framing
func (c WriteCommand) Record() RawFrame {
	data := make([]byte, ValueSize)
	copy(data, c.Payload[:])
	return RawFrame{DP: c.DP, Type: TypeValue, Data: data}
}

// Kind tells which field of a DecodeResult is meaningful.
type Kind int

// Kind values
const (
	KindUnrecognized Kind = iota
	KindState
	KindNumber
)

// DecodeResult is the typed value decoded from a RawFrame.
type DecodeResult struct {
	DP     DataPointID
	Kind   Kind
	State  TankState // KindState
	Number uint32    // KindNumber
}

// EncodeWrite builds the write command for a DP.
// Values outside [0, 2^32-1] are rejected with ErrValueOutOfRange rather
// than truncated.
func EncodeWrite(dp DataPointID, value int64) (WriteCommand, error) {
	if value < 0 || value > math.MaxUint32 {
		return WriteCommand{}, fmt.Errorf("%w: dp %d value %d", ErrValueOutOfRange, uint8(dp), value)
	}
	cmd := WriteCommand{DP: dp}
	binary.BigEndian.PutUint32(cmd.Payload[:], uint32(value))
	return cmd, nil
}

// Decode interprets a frame according to its DP.
// DPs outside the known table decode to KindUnrecognized with a nil error so
// that new device firmware does not break the channel.
func Decode(f RawFrame) (DecodeResult, error) {
	res := DecodeResult{DP: f.DP}

	role, ok := RoleOf(f.DP)
	if !ok {
		return res, nil
	}

	switch role {
	case RoleState:
		if len(f.Data) < 1 {
			return res, fmt.Errorf("%w: dp %d has no state byte", ErrTruncatedPayload, uint8(f.DP))
		}
		state, ok := StateOf(f.Data[0])
		if !ok {
			return res, fmt.Errorf("%w: 0x%02X", ErrUnknownState, f.Data[0])
		}
		res.Kind = KindState
		res.State = state

	case RoleNumeric:
		if len(f.Data) < ValueSize {
			return res, fmt.Errorf("%w: dp %d has %d bytes, need %d", ErrTruncatedPayload, uint8(f.DP), len(f.Data), ValueSize)
		}
		res.Kind = KindNumber
		res.Number = binary.BigEndian.Uint32(f.Data[:ValueSize])
	}

	return res, nil
}
