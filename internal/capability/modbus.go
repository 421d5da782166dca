// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package capability

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goburrow/modbus"
)

// Register layout, relative to the configured base address.
// 32-bit values span two registers, high word first.
const (
	RegTankState       = 0 // 0=normal 1=low 2=full
	RegLiquidLevel     = 1
	RegLiquidLevelFill = 3
	RegisterCount      = 5
)

// ModbusConfig configures a Modbus capability mirror
type ModbusConfig struct {
	Endpoint    string
	UnitID      uint8
	BaseAddress uint16
	Timeout     time.Duration
}

// Modbus mirrors capabilities into holding registers of a Modbus TCP server.
// It serializes requests over one TCP connection.
type Modbus struct {
	mu      sync.Mutex
	cfg     ModbusConfig
	handler *modbus.TCPClientHandler
	client  registerWriter
}

// registerWriter is the part of modbus.Client the mirror uses
type registerWriter interface {
	WriteMultipleRegisters(address, quantity uint16, value []byte) ([]byte, error)
}

// NewModbus connects to the Modbus endpoint
func NewModbus(cfg ModbusConfig) (*Modbus, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("capability modbus: endpoint required")
	}

	h := modbus.NewTCPClientHandler(cfg.Endpoint)
	h.Timeout = cfg.Timeout
	h.SlaveId = cfg.UnitID

	if err := h.Connect(); err != nil {
		return nil, fmt.Errorf("capability modbus: connect %s: %w", cfg.Endpoint, err)
	}

	return &Modbus{
		cfg:     cfg,
		handler: h,
		client:  modbus.NewClient(h),
	}, nil
}

// Close closes the TCP connection
func (m *Modbus) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.handler == nil {
		return nil
	}
	return m.handler.Close()
}

// Set writes the capability's registers
func (m *Modbus) Set(_ context.Context, name string, value any) error {
	addr, regs, err := encodeRegisters(name, value)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	_, err = m.client.WriteMultipleRegisters(m.cfg.BaseAddress+addr, uint16(len(regs)), packRegisters(regs))
	if err != nil {
		return fmt.Errorf("capability modbus: %s at %d: %w", name, m.cfg.BaseAddress+addr, err)
	}
	return nil
}

// encodeRegisters maps a capability value to its register offset and words
func encodeRegisters(name string, value any) (uint16, []uint16, error) {
	switch name {
	case TankState:
		s, ok := value.(string)
		if !ok {
			return 0, nil, fmt.Errorf("capability modbus: %s wants a string, got %T", name, value)
		}
		code, ok := stateCodes[s]
		if !ok {
			return 0, nil, fmt.Errorf("capability modbus: unknown tank state %q", s)
		}
		return RegTankState, []uint16{code}, nil

	case LiquidLevel, LiquidLevelFill:
		v, ok := value.(uint32)
		if !ok {
			return 0, nil, fmt.Errorf("capability modbus: %s wants uint32, got %T", name, value)
		}
		addr := uint16(RegLiquidLevel)
		if name == LiquidLevelFill {
			addr = RegLiquidLevelFill
		}
		return addr, []uint16{uint16(v >> 16), uint16(v)}, nil
	}
	return 0, nil, checkName(name)
}

var stateCodes = map[string]uint16{
	"normal": 0,
	"low":    1,
	"full":   2,
}

// Modbus register memory order (BIG-ENDIAN)
func packRegisters(regs []uint16) []byte {
	out := make([]byte, len(regs)*2)
	for i, r := range regs {
		out[2*i] = byte(r >> 8)
		out[2*i+1] = byte(r)
	}
	return out
}
