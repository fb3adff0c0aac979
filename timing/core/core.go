// Package core assembles the architectural state and the scheduling engine
// into a runnable simulation. It wraps the tomasulo engine to provide a
// simple build-and-run interface.
package core

import (
	"fmt"

	"github.com/sarchlab/tomsim/emu"
	"github.com/sarchlab/tomsim/insts"
	"github.com/sarchlab/tomsim/timing/latency"
	"github.com/sarchlab/tomsim/timing/tomasulo"
)

// Core owns one simulation: the program, the register file and memory, and
// the scheduling engine driving them.
type Core struct {
	// Engine is the underlying scheduling engine.
	Engine *tomasulo.Engine

	program []insts.Instruction
	regFile *emu.RegFile
	memory  *emu.Memory
}

// NewCore builds a core for the program with the given machine shape.
func NewCore(program []insts.Instruction, cfg *latency.Config, opts ...tomasulo.Option) (*Core, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	regFile := emu.NewRegFile(cfg.RegisterCount)
	memory := emu.NewMemory(cfg.MemorySize)
	return &Core{
		Engine:  tomasulo.NewEngine(program, regFile, memory, cfg, opts...),
		program: program,
		regFile: regFile,
		memory:  memory,
	}, nil
}

// RegFile returns the core's register file.
func (c *Core) RegFile() *emu.RegFile {
	return c.regFile
}

// Memory returns the core's memory.
func (c *Core) Memory() *emu.Memory {
	return c.memory
}

// InitMemory stores a data image before the run.
func (c *Core) InitMemory(image map[int]emu.Word) error {
	for addr, value := range image {
		if err := c.memory.Store(addr, value); err != nil {
			return fmt.Errorf("data image: %w", err)
		}
	}
	return nil
}

// Tick advances the simulation by one cycle.
func (c *Core) Tick() error {
	return c.Engine.Tick()
}

// Done reports quiescence: stream exhausted and every entry committed.
func (c *Core) Done() bool {
	return c.Engine.Done()
}

// Run ticks until quiescence or until maxCycles is reached (0 means no
// bound). It returns the cycle count and whether the run quiesced.
func (c *Core) Run(maxCycles uint64) (uint64, bool, error) {
	for !c.Engine.Done() {
		if maxCycles > 0 && c.Engine.Cycle() >= maxCycles {
			return c.Engine.Cycle(), false, nil
		}
		if err := c.Engine.Tick(); err != nil {
			return c.Engine.Cycle(), false, err
		}
	}
	return c.Engine.Cycle(), true, nil
}

// Stats returns the run counters.
func (c *Core) Stats() tomasulo.Statistics {
	return c.Engine.Stats()
}

// Timelines returns the per-instruction cycle stamps.
func (c *Core) Timelines() []tomasulo.Timeline {
	return c.Engine.Timelines()
}
