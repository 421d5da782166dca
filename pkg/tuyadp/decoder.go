// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package tuyadp

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// ErrCRCMismatch is returned by the decoder when a frame fails its checksum
var ErrCRCMismatch = errors.New("CRC mismatch")

// Decoder implements the link frame decoder state machine
type Decoder struct {
	state      int
	buffer     []byte
	escapeNext bool
}

// NewDecoder creates a new frame decoder
func NewDecoder() *Decoder {
	return &Decoder{
		state:  stateIdle,
		buffer: make([]byte, 0, MaxFrameSize),
	}
}

// Reset resets the decoder state to idle
func (d *Decoder) Reset() {
	d.state = stateIdle
	d.buffer = d.buffer[:0]
	d.escapeNext = false
}

// DecodeByte processes a single byte through the decoder state machine.
// Returns a completed frame, or nil if the frame is incomplete.
// Returns an error if decoding fails; the decoder is then back to idle.
// Bytes outside a frame are dropped without being kept.
func (d *Decoder) DecodeByte(b byte) (*Frame, error) {
	// START always resynchronizes, even in the middle of a frame
	if b == StartByte && !d.escapeNext {
		d.Reset()
		d.state = stateBody
		return nil, nil
	}

	switch d.state {
	case stateIdle:
		return nil, nil

	case stateBody:
		if d.escapeNext {
			d.escapeNext = false
			return d.accept(b ^ EscXor)
		}
		switch b {
		case EscByte:
			d.escapeNext = true
			return nil, nil
		case EndByte:
			return d.finish()
		}
		return d.accept(b)

	default:
		d.Reset()
		return nil, fmt.Errorf("invalid state: %d", d.state)
	}
}

// Decode feeds a byte slice through the decoder and returns every complete
// frame. Decode errors do not stop processing; they are returned joined.
func (d *Decoder) Decode(data []byte) ([]*Frame, error) {
	var frames []*Frame
	var errs []error
	for _, b := range data {
		f, err := d.DecodeByte(b)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if f != nil {
			frames = append(frames, f)
		}
	}
	return frames, errors.Join(errs...)
}

func (d *Decoder) accept(b byte) (*Frame, error) {
	if len(d.buffer) >= MaxFrameSize {
		d.Reset()
		return nil, fmt.Errorf("buffer overflow: frame exceeds %d bytes", MaxFrameSize)
	}
	d.buffer = append(d.buffer, b)
	return nil, nil
}

func (d *Decoder) finish() (*Frame, error) {
	defer d.Reset()

	if len(d.buffer) < HeaderSize+2 {
		return nil, fmt.Errorf("frame too short: %d bytes", len(d.buffer))
	}

	data := d.buffer[:len(d.buffer)-2]
	received := binary.BigEndian.Uint16(d.buffer[len(d.buffer)-2:])
	calculated := CalculateCRC(data)
	if received != calculated {
		return nil, fmt.Errorf("%w: expected 0x%04X, got 0x%04X", ErrCRCMismatch, calculated, received)
	}

	// Copy out: the buffer is reused for the next frame
	body := make([]byte, len(data)-HeaderSize)
	copy(body, data[HeaderSize:])

	records, err := ParseRecords(body)
	if err != nil {
		return nil, err
	}

	return &Frame{
		command:   Command(data[0]),
		seq:       binary.BigEndian.Uint16(data[1:3]),
		records:   records,
		crc:       received,
		timestamp: time.Now(),
	}, nil
}
