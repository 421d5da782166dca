// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads the bridge configuration file.
//
// The file is YAML. Settings keep the order they were written in, which is
// the order writes are sent to the device.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/Thermoquad/tankstat/internal/capability"
	"github.com/Thermoquad/tankstat/internal/link"
	"gopkg.in/yaml.v3"
)

// Defaults applied by Normalize
const (
	DefaultDeviceID      = "tank"
	DefaultBaud          = 115200
	DefaultLogLevel      = "info"
	DefaultLogFormat     = "text"
	DefaultModbusUnitID  = 1
	DefaultModbusTimeout = 2 * time.Second
)

// ErrInvalidConfig is wrapped by every Validate failure
var ErrInvalidConfig = errors.New("invalid config")

// Config is the bridge configuration file
type Config struct {
	Device   DeviceConfig  `yaml:"device"`
	Settings Settings      `yaml:"settings"`
	Store    StoreConfig   `yaml:"store"`
	Capture  CaptureConfig `yaml:"capture"`
	Log      LogConfig     `yaml:"log"`
}

// DeviceConfig identifies the monitor and the channel to it
type DeviceConfig struct {
	ID          string `yaml:"id"`
	Port        string `yaml:"port"`
	Baud        int    `yaml:"baud"`
	URL         string `yaml:"url"`
	Username    string `yaml:"username"`
	NoSSLVerify bool   `yaml:"no_ssl_verify"`
}

// LinkOptions returns the channel options for link.Open
func (d DeviceConfig) LinkOptions() link.Options {
	return link.Options{
		Port:        d.Port,
		Baud:        d.Baud,
		URL:         d.URL,
		Username:    d.Username,
		NoSSLVerify: d.NoSSLVerify,
	}
}

// StoreConfig configures capability mirrors besides the in-memory store
type StoreConfig struct {
	Modbus *ModbusConfig `yaml:"modbus"`
}

// ModbusConfig configures the Modbus TCP capability mirror
type ModbusConfig struct {
	Endpoint    string        `yaml:"endpoint"`
	UnitID      uint8         `yaml:"unit_id"`
	BaseAddress uint16        `yaml:"base_address"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Capability returns the store configuration
func (m ModbusConfig) Capability() capability.ModbusConfig {
	return capability.ModbusConfig{
		Endpoint:    m.Endpoint,
		UnitID:      m.UnitID,
		BaseAddress: m.BaseAddress,
		Timeout:     m.Timeout,
	}
}

// CaptureConfig enables the frame capture file
type CaptureConfig struct {
	Path string `yaml:"path"`
}

// LogConfig selects the log handler
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// SlogLevel parses Level
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, err
	}
	return level, nil
}

// Load reads, normalizes and validates the file at path
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes, normalizes and validates a configuration document.
// Unknown fields are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("YAML parse error: %w", err)
	}

	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Normalize fills in defaults for unset fields
func (c *Config) Normalize() {
	if c.Device.ID == "" {
		c.Device.ID = DefaultDeviceID
	}
	if c.Device.Baud == 0 {
		c.Device.Baud = DefaultBaud
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
	c.Log.Format = strings.ToLower(c.Log.Format)

	if m := c.Store.Modbus; m != nil {
		if m.UnitID == 0 {
			m.UnitID = DefaultModbusUnitID
		}
		if m.Timeout == 0 {
			m.Timeout = DefaultModbusTimeout
		}
	}
}

// Validate reports every problem with the configuration. It does not modify c.
func (c *Config) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	if c.Device.Baud < 0 {
		fail("device.baud must be positive, got %d", c.Device.Baud)
	}
	if c.Device.URL != "" {
		u, err := url.Parse(c.Device.URL)
		if err != nil {
			fail("device.url: %v", err)
		} else if u.Scheme != "ws" && u.Scheme != "wss" {
			fail("device.url scheme must be ws or wss, got %q", u.Scheme)
		}
	}

	if _, err := c.Log.SlogLevel(); c.Log.Level != "" && err != nil {
		fail("log.level %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		fail("log.format must be text or json, got %q", c.Log.Format)
	}

	if m := c.Store.Modbus; m != nil {
		if m.Endpoint == "" {
			fail("store.modbus.endpoint is required")
		}
		if m.Timeout < 0 {
			fail("store.modbus.timeout must not be negative")
		}
		if int(m.BaseAddress)+capability.RegisterCount > 0x10000 {
			fail("store.modbus.base_address %d leaves no room for the capability registers", m.BaseAddress)
		}
	}

	return errors.Join(errs...)
}
