// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

/*
Package config loads namon capture configurations from YAML files, such as:

	capture:
	  interface: eth0
	  filter: tcp or udp
	  snaplen: 1500
	  no-promiscuous: true
	  buffer-capacity: 8192
	output:
	  path: /var/tmp/namon.pcapng
	resolution:
	  cache-size: 1000
	  timeout: 500ms

Settings left out of a configuration file keep their defaults.
*/
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/siemens/namon"
	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration of a namon capture.
type Config struct {
	Capture    Capture    `yaml:"capture"`
	Output     Output     `yaml:"output"`
	Resolution Resolution `yaml:"resolution"`
}

// Capture configures where and how to capture packets from.
type Capture struct {
	// Network interface to capture from.
	Interface string `yaml:"interface,omitempty"`
	// pcap or pcapng file to replay instead of capturing from a network
	// interface.
	File string `yaml:"file,omitempty"`
	// Packet capture filter expression.
	Filter string `yaml:"filter,omitempty"`
	// Maximum number of octets captured per packet.
	SnapLen uint32 `yaml:"snaplen"`
	// Don't put the network interface into promiscuous mode.
	NoPromiscuous bool `yaml:"no-promiscuous,omitempty"`
	// Capacity of the ring buffer between capture and file writing.
	BufferCapacity int `yaml:"buffer-capacity"`
}

// Output configures the capture file.
type Output struct {
	// Capture file path; "-" or empty writes to stdout.
	Path string `yaml:"path,omitempty"`
}

// Resolution configures attributing flows to processes.
type Resolution struct {
	// Maximum number of cached flows and processes each.
	CacheSize int `yaml:"cache-size"`
	// Time to wait for a process identity query.
	Timeout time.Duration `yaml:"timeout"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Capture: Capture{
			SnapLen:        namon.DefaultSnapLen,
			BufferCapacity: namon.DefaultBufferCapacity,
		},
		Resolution: Resolution{
			CacheSize: namon.DefaultCacheSize,
			Timeout:   namon.DefaultResolveTimeout,
		},
	}
}

// Load reads the configuration from the YAML file at the specified path. Unset
// settings keep their defaults; unknown settings are rejected.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read configuration: %w", err)
	}
	return Parse(data)
}

// Parse parses the specified YAML configuration data on top of the defaults
// and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.Capture.Interface != "" && c.Capture.File != "" {
		return errors.New("invalid configuration: capture interface and file are mutually exclusive")
	}
	if c.Capture.SnapLen == 0 {
		return errors.New("invalid configuration: snaplen must be positive")
	}
	if c.Capture.BufferCapacity <= 0 {
		return fmt.Errorf("invalid configuration: buffer capacity must be positive, not %d",
			c.Capture.BufferCapacity)
	}
	if c.Resolution.CacheSize <= 0 {
		return fmt.Errorf("invalid configuration: cache size must be positive, not %d",
			c.Resolution.CacheSize)
	}
	if c.Resolution.Timeout <= 0 {
		return fmt.Errorf("invalid configuration: resolution timeout must be positive, not %s",
			c.Resolution.Timeout)
	}
	return nil
}

// Source returns the name of the configured packet source: the capture file
// if set, otherwise the network interface.
func (c *Config) Source() string {
	if c.Capture.File != "" {
		return c.Capture.File
	}
	return c.Capture.Interface
}

// CaptureOptions returns the capture options corresponding to this
// configuration.
func (c *Config) CaptureOptions() *namon.CaptureOptions {
	return &namon.CaptureOptions{
		Interface:            c.Source(),
		Filter:               c.Capture.Filter,
		SnapLen:              c.Capture.SnapLen,
		AvoidPromiscuousMode: c.Capture.NoPromiscuous,
		BufferCapacity:       c.Capture.BufferCapacity,
		CacheSize:            c.Resolution.CacheSize,
		ResolveTimeout:       c.Resolution.Timeout,
	}
}
