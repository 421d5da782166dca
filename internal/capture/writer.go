// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package capture

import (
	"errors"
	"io"
	"os"
	"sync"

	"github.com/Thermoquad/tankstat/pkg/tuyadp"
	"github.com/fxamacker/cbor/v2"
)

// ErrClosed is returned by Append after Close
var ErrClosed = errors.New("capture closed")

// Writer appends records to a capture stream.
// Safe for concurrent use.
type Writer struct {
	mu      sync.Mutex
	w       io.Writer
	encoder *cbor.Encoder
	closed  bool
}

// Create opens path for appending, creating it with mode 0644 if needed
func Create(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	return NewWriter(f), nil
}

// NewWriter writes records to w. Close closes w when it is an io.Closer.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w, encoder: encMode.NewEncoder(w)}
}

// Append writes one record
func (w *Writer) Append(r Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}
	return w.encoder.Encode(r)
}

// AppendFrame writes every record of f
func (w *Writer) AppendFrame(dir Direction, f *tuyadp.Frame) error {
	var errs []error
	for _, r := range FromFrame(dir, f) {
		if err := w.Append(r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close stops the writer. Calling it more than once is harmless.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	if c, ok := w.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
