// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package tuyadp implements the data point (DP) protocol spoken by the
// TS0601 tank level monitor.
//
// A DP is a numbered, typed field carrying a fixed-format payload. Settings are
// pushed to the device as DP write commands and the device reports its
// readings as DP records. This package provides the static DP table, the
// tank state lookup, the DP value codec, and the serial link framing
// (start/end bytes, byte stuffing, CRC-16-CCITT) that carries DP records.
package tuyadp

// Link framing bytes
const (
	StartByte = 0x7E
	EndByte   = 0x7F
	EscByte   = 0x7D
	EscXor    = 0x20
)

// Frame size limits
const (
	MaxFrameSize   = 128 // cmd + seq + records + crc, before stuffing
	MaxRecordsSize = 123
	HeaderSize     = 3 // cmd + seq
	RecordHeader   = 4 // dp + type + len
	ValueSize      = 4
)

// CRC-16-CCITT configuration
const (
	crcPolynomial = 0x1021
	crcInitial    = 0xFFFF
)

// Command identifies what a link frame carries.
type Command uint8

// Command values
const (
	CmdDataRequest  Command = 0x00 // host -> device, DP write
	CmdDataResponse Command = 0x01 // device -> host, reply to a write or query
	CmdDataReport   Command = 0x02 // device -> host, spontaneous report
	CmdDataQuery    Command = 0x03 // host -> device, report all DPs
)

// DataType is the DP data type byte carried in every DP record.
type DataType uint8

// Data type values
const (
	TypeRaw    DataType = 0x00
	TypeBool   DataType = 0x01
	TypeValue  DataType = 0x02 // 4 byte big-endian unsigned
	TypeString DataType = 0x03
	TypeEnum   DataType = 0x04 // 1 byte
	TypeBitmap DataType = 0x05
)

// Decoder states (internal)
const (
	stateIdle = iota
	stateBody
)
