// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package tuyadp

import (
	"encoding/binary"
	"fmt"
	"time"
)

// Frame is one link frame: a command, a sequence number and the DP records
// it carries.
type Frame struct {
	command   Command
	seq       uint16
	records   []RawFrame
	crc       uint16
	timestamp time.Time
}

// NewFrame creates a frame ready for encoding
func NewFrame(cmd Command, seq uint16, records ...RawFrame) *Frame {
	return &Frame{
		command:   cmd,
		seq:       seq,
		records:   records,
		timestamp: time.Now(),
	}
}

// NewWriteFrame creates a data request frame for a single write command
func NewWriteFrame(seq uint16, wc WriteCommand) *Frame {
	return NewFrame(CmdDataRequest, seq, wc.Record())
}

// NewQueryFrame creates a data query frame; the device answers with a report
// of every DP.
func NewQueryFrame(seq uint16) *Frame {
	return NewFrame(CmdDataQuery, seq)
}

// Command returns the frame's command byte
func (f *Frame) Command() Command {
	return f.command
}

// Seq returns the frame's sequence number
func (f *Frame) Seq() uint16 {
	return f.seq
}

// Records returns the DP records carried by the frame
func (f *Frame) Records() []RawFrame {
	return f.records
}

// CRC returns the CRC received with the frame (zero for frames built locally)
func (f *Frame) CRC() uint16 {
	return f.crc
}

// Timestamp returns when the frame was decoded or built
func (f *Frame) Timestamp() time.Time {
	return f.timestamp
}

// IsInbound reports whether the command is one a device sends
func (f *Frame) IsInbound() bool {
	return f.command == CmdDataResponse || f.command == CmdDataReport
}

// MarshalRecords serializes DP records: dp | type | len (BE) | data
func MarshalRecords(records []RawFrame) ([]byte, error) {
	size := 0
	for _, r := range records {
		if len(r.Data) > 0xFFFF {
			return nil, fmt.Errorf("dp %d payload too large: %d bytes", uint8(r.DP), len(r.Data))
		}
		size += RecordHeader + len(r.Data)
	}
	if size > MaxRecordsSize {
		return nil, fmt.Errorf("records too large: %d bytes (max %d)", size, MaxRecordsSize)
	}

	out := make([]byte, 0, size)
	for _, r := range records {
		var hdr [RecordHeader]byte
		hdr[0] = uint8(r.DP)
		hdr[1] = uint8(r.Type)
		binary.BigEndian.PutUint16(hdr[2:], uint16(len(r.Data)))
		out = append(out, hdr[:]...)
		out = append(out, r.Data...)
	}
	return out, nil
}

// ParseRecords splits a record section into DP records.
// The returned records alias data.
func ParseRecords(data []byte) ([]RawFrame, error) {
	var records []RawFrame
	for off := 0; off < len(data); {
		if len(data)-off < RecordHeader {
			return nil, fmt.Errorf("record header truncated at offset %d", off)
		}
		dp := DataPointID(data[off])
		typ := DataType(data[off+1])
		n := int(binary.BigEndian.Uint16(data[off+2 : off+4]))
		off += RecordHeader
		if len(data)-off < n {
			return nil, fmt.Errorf("dp %d record declares %d bytes, %d available", uint8(dp), n, len(data)-off)
		}
		records = append(records, RawFrame{DP: dp, Type: typ, Data: data[off : off+n]})
		off += n
	}
	return records, nil
}
