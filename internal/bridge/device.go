// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package bridge reconciles settings and capabilities with a tank level
// monitor.
//
// Settings flow out: changed keys are resolved to DPs and written through a
// Sender. Reports flow in: each DP record is decoded and routed to the
// capability store or to the log. A Device ties both directions together for
// one physical monitor and enforces that reports are handled one at a time.
package bridge

import (
	"context"
	"log/slog"
	"sync"

	"github.com/Thermoquad/tankstat/internal/capability"
	"github.com/Thermoquad/tankstat/pkg/tuyadp"
	"github.com/google/uuid"
)

// Device is the bridge for one tank level monitor.
type Device struct {
	id      string
	session string
	log     *slog.Logger

	dispatchMu sync.Mutex // one report at a time
	dispatcher *Dispatcher

	syncMu sync.Mutex // keeps whole batches of writes in issue order
	syncer *Synchronizer
}

// NewDevice creates the bridge for a device.
// Each Device gets a fresh session id that is attached to its log lines.
func NewDevice(id string, sender Sender, store capability.Store, logger *slog.Logger) *Device {
	if logger == nil {
		logger = slog.Default()
	}
	session := uuid.NewString()
	logger = logger.With("device", id, "session", session)

	return &Device{
		id:         id,
		session:    session,
		log:        logger,
		dispatcher: NewDispatcher(store, logger),
		syncer:     NewSynchronizer(sender, logger),
	}
}

// ID returns the device id
func (d *Device) ID() string {
	return d.id
}

// Session returns the session id of this Device instance
func (d *Device) Session() string {
	return d.session
}

// Dispatcher returns the device's dispatcher, for registering observers
func (d *Device) Dispatcher() *Dispatcher {
	return d.dispatcher
}

// Init writes the full settings snapshot; every key counts as changed.
func (d *Device) Init(keys []string, values map[string]any) []WriteResult {
	d.log.Info("initializing tank monitor", "settings", len(keys))
	return d.SettingsChanged(keys, values)
}

// SettingsChanged writes the settings whose keys changed
func (d *Device) SettingsChanged(changed []string, values map[string]any) []WriteResult {
	d.syncMu.Lock()
	defer d.syncMu.Unlock()

	results := d.syncer.Sync(changed, values)
	d.log.Info("settings synchronized", "changed", len(changed), "writes", len(results))
	return results
}

// HandleReport dispatches one DP record.
// Concurrent callers are serialized.
func (d *Device) HandleReport(ctx context.Context, f tuyadp.RawFrame) Outcome {
	d.dispatchMu.Lock()
	defer d.dispatchMu.Unlock()
	return d.dispatcher.Dispatch(ctx, f)
}

// Run consumes reports until ctx is done or reports is closed
func (d *Device) Run(ctx context.Context, reports <-chan tuyadp.RawFrame) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f, ok := <-reports:
			if !ok {
				return nil
			}
			d.HandleReport(ctx, f)
		}
	}
}
