// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package capture records DP records crossing the link to a CBOR stream and
// reads them back for replay.
package capture

import (
	"fmt"
	"time"

	"github.com/Thermoquad/tankstat/pkg/tuyadp"
	"github.com/fxamacker/cbor/v2"
)

// Direction of a captured record
type Direction uint8

// Directions
const (
	Inbound  Direction = 0 // device to bridge
	Outbound Direction = 1 // bridge to device
)

// String returns "rx" or "tx"
func (d Direction) String() string {
	if d == Outbound {
		return "tx"
	}
	return "rx"
}

// Record is one DP record and the frame it travelled in
type Record struct {
	Time      time.Time `cbor:"1,keyasint"`
	Direction Direction `cbor:"2,keyasint"`
	Command   uint8     `cbor:"3,keyasint"`
	Seq       uint16    `cbor:"4,keyasint"`
	DP        uint8     `cbor:"5,keyasint"`
	Type      uint8     `cbor:"6,keyasint"`
	Data      []byte    `cbor:"7,keyasint"`
}

// RawFrame returns the DP record carried by r
func (r Record) RawFrame() tuyadp.RawFrame {
	return tuyadp.RawFrame{
		DP:   tuyadp.DataPointID(r.DP),
		Type: tuyadp.DataType(r.Type),
		Data: r.Data,
	}
}

// FromFrame returns one Record per DP record of f.
// A frame without records (a query) yields a single record with DP 0.
func FromFrame(dir Direction, f *tuyadp.Frame) []Record {
	base := Record{
		Time:      f.Timestamp(),
		Direction: dir,
		Command:   uint8(f.Command()),
		Seq:       f.Seq(),
	}

	records := f.Records()
	if len(records) == 0 {
		return []Record{base}
	}

	out := make([]Record, 0, len(records))
	for _, rec := range records {
		r := base
		r.DP = uint8(rec.DP)
		r.Type = uint8(rec.Type)
		r.Data = rec.Data
		out = append(out, r)
	}
	return out
}

var encMode cbor.EncMode

var decMode cbor.DecMode

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	}
	encMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create capture CBOR encoder mode: %v", err))
	}

	decOpts := cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyQuiet,
		IndefLength:       cbor.IndefLengthAllowed,
		ExtraReturnErrors: cbor.ExtraDecErrorNone,
	}
	decMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create capture CBOR decoder mode: %v", err))
	}
}
