// Package config holds the settings a capture session runs with, built
// from CLI flags by cmd/fastcap and validated before any file or device
// handle is opened.
package config

import "fmt"

// Capture holds the settings for one "capture" invocation.
type Capture struct {
	Interface     string
	Output        string
	Shards        int
	StatsInterval int // seconds; 0 means "only at shutdown"
	Snaplen       int32
	BufferMiB     int
	Nano          bool
	Promisc       bool
	Monitor       bool
	Immediate     bool
	Filter        string
}

// Validate checks the invariants spelled out on the capture subcommand's
// flags, returning the first violation found.
func (c Capture) Validate() error {
	if c.Interface == "" {
		return fmt.Errorf("config: interface name is required")
	}
	if c.Output == "" {
		return fmt.Errorf("config: output path is required")
	}
	if c.Shards < 1 {
		return fmt.Errorf("config: shard count must be >= 1, got %d", c.Shards)
	}
	if c.StatsInterval < 0 {
		return fmt.Errorf("config: stats interval must be >= 0, got %d", c.StatsInterval)
	}
	if c.Snaplen <= 0 {
		return fmt.Errorf("config: snaplen must be > 0, got %d", c.Snaplen)
	}
	if c.BufferMiB < 1 {
		return fmt.Errorf("config: buffer size must be >= 1 MiB, got %d", c.BufferMiB)
	}
	return nil
}

// BufferBytes returns the ring buffer capacity in bytes.
func (c Capture) BufferBytes() uint64 {
	return uint64(c.BufferMiB) * 1024 * 1024
}

// Build holds the settings for one "build" invocation.
type Build struct {
	Output   string
	Capfiles []string
}

// Validate checks that a build invocation has enough inputs to run.
func (b Build) Validate() error {
	if b.Output == "" {
		return fmt.Errorf("config: output path is required")
	}
	if len(b.Capfiles) == 0 {
		return fmt.Errorf("config: at least one capture shard is required")
	}
	return nil
}
