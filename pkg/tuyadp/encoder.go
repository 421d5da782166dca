// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package tuyadp

import (
	"encoding/binary"
	"fmt"
)

// EncodeFrame encodes a Frame to wire format
func EncodeFrame(f *Frame) ([]byte, error) {
	return EncodeFrameFromValues(f.Command(), f.Seq(), f.Records())
}

// EncodeFrameFromValues creates a complete wire-formatted link frame.
// Returns the bytes ready for transmission, including framing and byte stuffing.
func EncodeFrameFromValues(cmd Command, seq uint16, records []RawFrame) ([]byte, error) {
	body, err := MarshalRecords(records)
	if err != nil {
		return nil, fmt.Errorf("failed to encode records: %w", err)
	}

	// Data section: command + seq + records. This is what gets CRC'd and stuffed.
	data := make([]byte, HeaderSize, HeaderSize+len(body)+2)
	data[0] = uint8(cmd)
	binary.BigEndian.PutUint16(data[1:3], seq)
	data = append(data, body...)

	crc := CalculateCRC(data)
	data = append(data, byte(crc>>8), byte(crc&0xFF))

	stuffed := stuffBytes(data)

	frame := make([]byte, 0, len(stuffed)+2)
	frame = append(frame, StartByte)
	frame = append(frame, stuffed...)
	frame = append(frame, EndByte)

	return frame, nil
}

// EncodeWriteFrame encodes a write command as a data request frame
func EncodeWriteFrame(seq uint16, wc WriteCommand) ([]byte, error) {
	return EncodeFrame(NewWriteFrame(seq, wc))
}

// stuffBytes applies byte stuffing to escape special bytes.
// Special bytes (START, END, ESC) are replaced with ESC + (byte XOR EscXor).
func stuffBytes(data []byte) []byte {
	result := make([]byte, 0, len(data)*2)

	for _, b := range data {
		if b == StartByte || b == EndByte || b == EscByte {
			result = append(result, EscByte, b^EscXor)
		} else {
			result = append(result, b)
		}
	}

	return result
}

// UnstuffBytes removes byte stuffing from escaped data.
// This is the inverse of stuffBytes.
func UnstuffBytes(data []byte) ([]byte, error) {
	result := make([]byte, 0, len(data))
	escapeNext := false

	for _, b := range data {
		if escapeNext {
			result = append(result, b^EscXor)
			escapeNext = false
		} else if b == EscByte {
			escapeNext = true
		} else {
			result = append(result, b)
		}
	}

	if escapeNext {
		return nil, fmt.Errorf("incomplete escape sequence at end of data")
	}

	return result, nil
}
