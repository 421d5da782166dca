// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package link carries DP records between the bridge and a tank level monitor
// over a serial or WebSocket Connection.
//
// A Link runs one reader and one writer goroutine. Inbound frames are decoded
// and their records delivered on Reports. Outbound commands are queued by
// Submit and Query, which never block on I/O, and written in FIFO order.
package link

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Thermoquad/tankstat/internal/capture"
	"github.com/Thermoquad/tankstat/pkg/tuyadp"
	"golang.org/x/sync/errgroup"
)

// Default sizes of the outbound queue and the report channel
const (
	DefaultQueueSize   = 16
	DefaultReportDepth = 64
)

var (
	// ErrQueueFull is returned by Submit when the outbound queue has no room
	ErrQueueFull = errors.New("outbound queue full")
	// ErrClosed is returned by Submit after Run has returned
	ErrClosed = errors.New("link closed")
)

// Config holds optional Link settings
type Config struct {
	QueueSize   int
	ReportDepth int
	Capture     *capture.Writer // inbound and outbound frames are appended when set
	Logger      *slog.Logger
}

type outbound struct {
	cmd   tuyadp.Command
	write tuyadp.WriteCommand
	flush chan struct{} // closed when reached; no frame is sent
}

// Link is a framed, bidirectional DP channel
type Link struct {
	conn    Connection
	log     *slog.Logger
	stats   *tuyadp.Statistics
	capture *capture.Writer

	queue   chan outbound
	reports chan tuyadp.RawFrame
	done    chan struct{}

	onFrame func(*tuyadp.Frame)
	onError func(error)

	seq uint16 // writer goroutine only
}

// New creates a Link over conn. Call Run to start moving bytes.
func New(conn Connection, cfg Config) *Link {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.ReportDepth <= 0 {
		cfg.ReportDepth = DefaultReportDepth
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Link{
		conn:    conn,
		log:     cfg.Logger,
		stats:   tuyadp.NewStatistics(),
		capture: cfg.Capture,
		queue:   make(chan outbound, cfg.QueueSize),
		reports: make(chan tuyadp.RawFrame, cfg.ReportDepth),
		done:    make(chan struct{}),
	}
}

// Reports returns the channel of inbound DP records.
// It is closed when Run returns.
func (l *Link) Reports() <-chan tuyadp.RawFrame {
	return l.reports
}

// Statistics returns the inbound frame counters
func (l *Link) Statistics() *tuyadp.Statistics {
	return l.stats
}

// OnFrame registers fn to see every valid inbound frame before its records
// are delivered. Must be called before Run.
func (l *Link) OnFrame(fn func(*tuyadp.Frame)) {
	l.onFrame = fn
}

// OnError registers fn to see every frame decode error. Must be called
// before Run.
func (l *Link) OnError(fn func(error)) {
	l.onError = fn
}

// Submit queues a DP write. It returns without waiting for I/O.
func (l *Link) Submit(cmd tuyadp.WriteCommand) error {
	return l.enqueue(outbound{cmd: tuyadp.CmdDataRequest, write: cmd})
}

// Query queues a request for a report of every DP
func (l *Link) Query() error {
	return l.enqueue(outbound{cmd: tuyadp.CmdDataQuery})
}

// Flush waits until every command queued before it has been written
func (l *Link) Flush(ctx context.Context) error {
	marker := make(chan struct{})
	select {
	case <-l.done:
		return ErrClosed
	case l.queue <- outbound{flush: marker}:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-marker:
		return nil
	case <-l.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Link) enqueue(o outbound) error {
	select {
	case <-l.done:
		return ErrClosed
	default:
	}

	select {
	case l.queue <- o:
		return nil
	default:
		return ErrQueueFull
	}
}

// Run moves frames until ctx is done or the connection fails.
// It returns nil when ctx ends the link and closes the connection either way.
func (l *Link) Run(ctx context.Context) error {
	defer close(l.reports)
	defer close(l.done)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return l.readLoop(gctx) })
	g.Go(func() error { return l.writeLoop(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		// Unblocks the pending Read
		if err := l.conn.Close(); err != nil {
			l.log.Debug("closing connection", "err", err)
		}
		return nil
	})

	return g.Wait()
}

func (l *Link) readLoop(ctx context.Context) error {
	decoder := tuyadp.NewDecoder()
	buf := make([]byte, tuyadp.MaxFrameSize)

	for {
		n, err := l.conn.Read(buf)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		for i := 0; i < n; i++ {
			f, err := decoder.DecodeByte(buf[i])
			if err != nil {
				l.stats.Update(nil, err)
				l.log.Warn("frame decode failed", "err", err)
				if l.onError != nil {
					l.onError(err)
				}
				continue
			}
			if f == nil {
				continue
			}
			if !l.deliver(ctx, f) {
				return nil
			}
		}
	}
}

// deliver publishes an inbound frame. It reports false when ctx ended first.
func (l *Link) deliver(ctx context.Context, f *tuyadp.Frame) bool {
	l.stats.Update(f, nil)
	l.tee(capture.Inbound, f)
	if l.onFrame != nil {
		l.onFrame(f)
	}

	if !f.IsInbound() {
		l.log.Debug("ignoring host command from device", "command", tuyadp.FormatCommand(f.Command()), "seq", f.Seq())
		return true
	}

	for _, rec := range f.Records() {
		select {
		case l.reports <- rec:
		case <-ctx.Done():
			return false
		}
	}
	return true
}

func (l *Link) writeLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case o := <-l.queue:
			l.send(o)
		}
	}
}

// send writes one queued command. Failures are logged, not returned; a dead
// connection is noticed by the reader.
func (l *Link) send(o outbound) {
	if o.flush != nil {
		close(o.flush)
		return
	}

	l.seq++

	var f *tuyadp.Frame
	if o.cmd == tuyadp.CmdDataRequest {
		f = tuyadp.NewWriteFrame(l.seq, o.write)
	} else {
		f = tuyadp.NewFrame(o.cmd, l.seq)
	}

	data, err := tuyadp.EncodeFrame(f)
	if err != nil {
		l.log.Error("frame encode failed", "command", tuyadp.FormatCommand(o.cmd), "seq", l.seq, "err", err)
		return
	}

	if _, err := l.conn.Write(data); err != nil {
		l.log.Error("frame write failed", "command", tuyadp.FormatCommand(o.cmd), "seq", l.seq, "err", err)
		return
	}

	l.tee(capture.Outbound, f)
	l.log.Debug("frame sent", "command", tuyadp.FormatCommand(o.cmd), "seq", l.seq, "bytes", len(data))
}

func (l *Link) tee(dir capture.Direction, f *tuyadp.Frame) {
	if l.capture == nil {
		return
	}
	if err := l.capture.AppendFrame(dir, f); err != nil {
		l.log.Warn("capture append failed", "err", err)
	}
}
