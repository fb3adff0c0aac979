// Package latency defines the machine-shape configuration: functional-unit
// slot counts and execution latencies, reorder-buffer capacity, register
// count, memory size, and the engine clock.
package latency

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/sarchlab/akita/v4/sim"
)

// UnitShape describes one functional-unit class: how many reservation
// station slots it has and how many cycles an operation occupies it.
type UnitShape struct {
	// Slots is the number of reservation-station slots for the class.
	Slots int `json:"slots"`

	// Latency is the execution latency in cycles.
	Latency uint64 `json:"latency"`
}

// Config holds the machine shape for a timing run.
// Unit defaults follow the classic single-issue Tomasulo exercise setup.
type Config struct {
	// ALU serves ADD and ADDI.
	ALU UnitShape `json:"alu"`

	// Load serves LOAD.
	Load UnitShape `json:"load"`

	// Store serves STORE. Store latency covers address computation; the
	// memory write itself happens at commit.
	Store UnitShape `json:"store"`

	// Nand serves NAND.
	Nand UnitShape `json:"nand"`

	// Mul serves MUL.
	Mul UnitShape `json:"mul"`

	// Branch serves BEQ.
	Branch UnitShape `json:"branch"`

	// CallRet serves CALL and RET.
	CallRet UnitShape `json:"call_ret"`

	// ROBCapacity bounds the number of in-flight instructions. Issue
	// stalls when the reorder buffer is full.
	ROBCapacity int `json:"rob_capacity"`

	// RegisterCount is the number of architectural registers. Register 0
	// is hardwired to zero.
	RegisterCount int `json:"register_count"`

	// MemorySize is the memory size in words.
	MemorySize int `json:"memory_size"`

	// ClockFreq is the engine clock frequency, used to derive simulated
	// wall time from the cycle count.
	ClockFreq sim.Freq `json:"clock_freq_hz"`
}

// DefaultConfig returns a Config with the classic exercise defaults.
func DefaultConfig() *Config {
	return &Config{
		ALU:           UnitShape{Slots: 4, Latency: 2},
		Load:          UnitShape{Slots: 2, Latency: 6},
		Store:         UnitShape{Slots: 1, Latency: 6},
		Nand:          UnitShape{Slots: 2, Latency: 2},
		Mul:           UnitShape{Slots: 1, Latency: 8},
		Branch:        UnitShape{Slots: 2, Latency: 1},
		CallRet:       UnitShape{Slots: 2, Latency: 4},
		ROBCapacity:   16,
		RegisterCount: 8,
		MemorySize:    128 * 1024,
		ClockFreq:     1 * sim.GHz,
	}
}

// LoadConfig loads a Config from a JSON file. Fields absent from the file
// keep their defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return config, nil
}

// SaveConfig writes a Config to a JSON file.
func (c *Config) SaveConfig(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Units returns the unit shapes in a fixed order with their names, for
// validation and display.
func (c *Config) Units() map[string]UnitShape {
	return map[string]UnitShape{
		"alu":      c.ALU,
		"load":     c.Load,
		"store":    c.Store,
		"nand":     c.Nand,
		"mul":      c.Mul,
		"branch":   c.Branch,
		"call_ret": c.CallRet,
	}
}

// Validate checks that the configuration describes a runnable machine.
func (c *Config) Validate() error {
	for name, unit := range c.Units() {
		if unit.Slots <= 0 {
			return fmt.Errorf("%s slots must be > 0", name)
		}
		if unit.Latency == 0 {
			return fmt.Errorf("%s latency must be > 0", name)
		}
	}
	if c.ROBCapacity <= 0 {
		return fmt.Errorf("rob_capacity must be > 0")
	}
	if c.RegisterCount < 2 || c.RegisterCount > 256 {
		return fmt.Errorf("register_count must be in [2, 256]")
	}
	if c.MemorySize <= 0 {
		return fmt.Errorf("memory_size must be > 0")
	}
	if c.ClockFreq <= 0 {
		return fmt.Errorf("clock_freq_hz must be > 0")
	}
	return nil
}

// Clone returns a deep copy of the Config.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}
