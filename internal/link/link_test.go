// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/Thermoquad/tankstat/internal/capture"
	"github.com/Thermoquad/tankstat/pkg/tuyadp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pipeConn is an in-memory device: the test writes device bytes into rx and
// reads what the link wrote from tx.
type pipeConn struct {
	rx   *io.PipeReader
	peer *io.PipeWriter

	mu     sync.Mutex
	tx     bytes.Buffer
	closed bool
}

func newPipeConn() *pipeConn {
	r, w := io.Pipe()
	return &pipeConn{rx: r, peer: w}
}

func (c *pipeConn) Read(p []byte) (int, error) { return c.rx.Read(p) }

func (c *pipeConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, io.ErrClosedPipe
	}
	return c.tx.Write(p)
}

func (c *pipeConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return c.rx.CloseWithError(ErrConnectionClosed)
}

// sent decodes every frame the link has written so far
func (c *pipeConn) sent() []*tuyadp.Frame {
	c.mu.Lock()
	data := bytes.Clone(c.tx.Bytes())
	c.mu.Unlock()

	frames, _ := tuyadp.NewDecoder().Decode(data)
	return frames
}

func (c *pipeConn) deviceSends(t *testing.T, f *tuyadp.Frame) {
	t.Helper()
	data, err := tuyadp.EncodeFrame(f)
	require.NoError(t, err)
	_, err = c.peer.Write(data)
	require.NoError(t, err)
}

func startLink(t *testing.T, conn *pipeConn, cfg Config) (*Link, context.CancelFunc, <-chan error) {
	t.Helper()
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	l := New(conn, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()
	t.Cleanup(cancel)
	return l, cancel, done
}

func recv(t *testing.T, ch <-chan tuyadp.RawFrame) tuyadp.RawFrame {
	t.Helper()
	select {
	case f, ok := <-ch:
		require.True(t, ok, "reports closed")
		return f
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for report")
		return tuyadp.RawFrame{}
	}
}

var (
	stateFull = tuyadp.RawFrame{DP: tuyadp.DPLiquidLevelState, Type: tuyadp.TypeEnum, Data: []byte{2}}
	level4321 = tuyadp.RawFrame{DP: tuyadp.DPLiquidLevel, Type: tuyadp.TypeValue, Data: []byte{0, 0, 0x10, 0xE1}}
)

func TestLink_DeliversRecordsInOrder(t *testing.T) {
	conn := newPipeConn()
	l, _, _ := startLink(t, conn, Config{})

	conn.deviceSends(t, tuyadp.NewFrame(tuyadp.CmdDataReport, 1, stateFull, level4321))

	assert.Equal(t, stateFull, recv(t, l.Reports()))
	assert.Equal(t, level4321, recv(t, l.Reports()))

	snap := l.Statistics().Snapshot()
	assert.Equal(t, uint64(1), snap.ValidFrames)
	assert.Equal(t, uint64(2), snap.Records)
}

func TestLink_CorruptFrameIsCounted(t *testing.T) {
	conn := newPipeConn()

	var errs []error
	var mu sync.Mutex
	l := New(conn, Config{Logger: slog.New(slog.DiscardHandler)})
	l.OnError(func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)

	bad, err := tuyadp.EncodeFrame(tuyadp.NewFrame(tuyadp.CmdDataReport, 1, level4321))
	require.NoError(t, err)
	bad[len(bad)-2] ^= 0x01 // low CRC byte
	_, err = conn.peer.Write(bad)
	require.NoError(t, err)

	conn.deviceSends(t, tuyadp.NewFrame(tuyadp.CmdDataReport, 2, stateFull))
	assert.Equal(t, stateFull, recv(t, l.Reports()))

	snap := l.Statistics().Snapshot()
	assert.Equal(t, uint64(1), snap.CRCErrors)
	assert.Equal(t, uint64(1), snap.ValidFrames)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], tuyadp.ErrCRCMismatch)
}

func TestLink_SubmitWritesFramesInOrder(t *testing.T) {
	conn := newPipeConn()
	l, _, _ := startLink(t, conn, Config{})

	top, err := tuyadp.EncodeWrite(tuyadp.DPDistanceToTop, 150)
	require.NoError(t, err)
	maxCmd, err := tuyadp.EncodeWrite(tuyadp.DPMaxLevel, 90)
	require.NoError(t, err)

	require.NoError(t, l.Submit(top))
	require.NoError(t, l.Submit(maxCmd))
	require.NoError(t, l.Query())

	require.Eventually(t, func() bool { return len(conn.sent()) == 3 }, time.Second, 5*time.Millisecond)

	frames := conn.sent()
	assert.Equal(t, tuyadp.CmdDataRequest, frames[0].Command())
	assert.Equal(t, uint16(1), frames[0].Seq())
	assert.Equal(t, []tuyadp.RawFrame{top.Record()}, frames[0].Records())

	assert.Equal(t, uint16(2), frames[1].Seq())
	assert.Equal(t, []tuyadp.RawFrame{maxCmd.Record()}, frames[1].Records())

	assert.Equal(t, tuyadp.CmdDataQuery, frames[2].Command())
	assert.Empty(t, frames[2].Records())
}

func TestLink_SubmitDoesNotBlock(t *testing.T) {
	l := New(newPipeConn(), Config{QueueSize: 1, Logger: slog.New(slog.DiscardHandler)})

	cmd, err := tuyadp.EncodeWrite(tuyadp.DPMinLevel, 10)
	require.NoError(t, err)

	require.NoError(t, l.Submit(cmd))
	assert.ErrorIs(t, l.Submit(cmd), ErrQueueFull)
}

func TestLink_CancelClosesReports(t *testing.T) {
	conn := newPipeConn()
	l, cancel, done := startLink(t, conn, Config{})

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}

	_, ok := <-l.Reports()
	assert.False(t, ok)

	cmd, err := tuyadp.EncodeWrite(tuyadp.DPMinLevel, 10)
	require.NoError(t, err)
	assert.ErrorIs(t, l.Submit(cmd), ErrClosed)
}

func TestLink_PeerCloseEndsRun(t *testing.T) {
	conn := newPipeConn()
	_, _, done := startLink(t, conn, Config{})

	require.NoError(t, conn.peer.Close())

	select {
	case err := <-done:
		require.Error(t, err)
		assert.True(t, errors.Is(err, io.EOF))
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
}

func TestLink_CapturesBothDirections(t *testing.T) {
	conn := newPipeConn()
	var buf safeBuffer
	w := capture.NewWriter(&buf)
	l, cancel, done := startLink(t, conn, Config{Capture: w})

	conn.deviceSends(t, tuyadp.NewFrame(tuyadp.CmdDataReport, 4, level4321))
	recv(t, l.Reports())

	require.NoError(t, l.Query())
	require.Eventually(t, func() bool { return len(conn.sent()) == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	<-done

	recs, err := capture.NewReader(bytes.NewReader(buf.Bytes())).All()
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, capture.Inbound, recs[0].Direction)
	assert.Equal(t, level4321, recs[0].RawFrame())
	assert.Equal(t, capture.Outbound, recs[1].Direction)
	assert.Equal(t, uint8(tuyadp.CmdDataQuery), recs[1].Command)
}

type safeBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *safeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *safeBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return bytes.Clone(b.buf.Bytes())
}

func TestOpen_RequiresChannel(t *testing.T) {
	_, _, err := Open(context.Background(), Options{})
	assert.ErrorIs(t, err, ErrNoChannel)
}

func TestOpenWebSocket_RejectsScheme(t *testing.T) {
	_, err := OpenWebSocketConnection(context.Background(), "http://example.invalid/ws", "", "", false)
	assert.ErrorContains(t, err, "unsupported URL scheme")
}

func TestLink_FlushWaitsForWrites(t *testing.T) {
	conn := newPipeConn()
	l, _, _ := startLink(t, conn, Config{})

	for v := range int64(3) {
		cmd, err := tuyadp.EncodeWrite(tuyadp.DPMaxLevel, 80+v)
		require.NoError(t, err)
		require.NoError(t, l.Submit(cmd))
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, l.Flush(ctx))
	assert.Len(t, conn.sent(), 3)
}
