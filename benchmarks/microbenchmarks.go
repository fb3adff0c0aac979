// Package benchmarks provides microbenchmark programs and a timing harness
// for exercising the scheduler. Each benchmark targets one scheduling
// characteristic and carries its expected architectural result, so a run
// validates correctness and reports timing in one pass.
package benchmarks

import (
	"github.com/sarchlab/tomsim/emu"
	"github.com/sarchlab/tomsim/insts"
)

// Benchmark is one microbenchmark: a program, its initial state, and the
// architectural results a correct run must produce.
type Benchmark struct {
	// Name identifies the benchmark.
	Name string

	// Description explains what the benchmark measures.
	Description string

	// Setup initializes registers and memory before the run.
	Setup func(regFile *emu.RegFile, memory *emu.Memory)

	// Program is the instruction stream.
	Program []insts.Instruction

	// ExpectedRegs/ExpectedMem are checked after quiescence.
	ExpectedRegs map[uint8]emu.Word
	ExpectedMem  map[int]emu.Word
}

// GetMicrobenchmarks returns the standard microbenchmark set. Each entry
// stresses one scheduling path: issue throughput, forwarding latency,
// memory ordering, speculation, and control transfer.
func GetMicrobenchmarks() []Benchmark {
	return []Benchmark{
		arithmeticSequential(),
		dependencyChain(16),
		memorySequential(),
		storeToLoad(),
		branchHeavy(),
		functionCall(),
		mixedOperations(),
	}
}

// BuildProgram assigns program-order indices to a hand-built stream.
func BuildProgram(program ...insts.Instruction) []insts.Instruction {
	for i := range program {
		program[i].Index = i
	}
	return program
}

// Independent ADDIs round-robin over four registers; no RAW hazards, so
// throughput is bounded by issue width and ALU slots only.
func arithmeticSequential() Benchmark {
	var program []insts.Instruction
	for i := 0; i < 16; i++ {
		reg := uint8(2 + i%4)
		program = append(program, insts.Instruction{
			Op: insts.ADDI, Rd: reg, Ra: reg, Imm: 1,
		})
	}
	return Benchmark{
		Name:        "arithmetic_sequential",
		Description: "16 independent ADDIs over four registers, measures issue throughput",
		Program:     BuildProgram(program...),
		ExpectedRegs: map[uint8]emu.Word{
			2: 4, 3: 4, 4: 4, 5: 4,
		},
	}
}

// A serial increment chain; every instruction waits on the previous
// broadcast, so the run measures end-to-end forwarding latency.
func dependencyChain(n int) Benchmark {
	var program []insts.Instruction
	for i := 0; i < n; i++ {
		program = append(program, insts.Instruction{
			Op: insts.ADDI, Rd: 2, Ra: 2, Imm: 1,
		})
	}
	return Benchmark{
		Name:        "dependency_chain",
		Description: "serial ADDI chain, measures forwarding latency under RAW hazards",
		Program:     BuildProgram(program...),
		ExpectedRegs: map[uint8]emu.Word{
			2: emu.Word(n),
		},
	}
}

func memorySequential() Benchmark {
	var program []insts.Instruction
	for i := 0; i < 8; i++ {
		program = append(program, insts.Instruction{
			Op: insts.LOAD, Rd: uint8(2 + i%4), Ra: 0, Imm: int32(i),
		})
	}
	return Benchmark{
		Name:        "memory_sequential",
		Description: "8 independent LOADs, measures load-unit occupancy",
		Setup: func(_ *emu.RegFile, memory *emu.Memory) {
			for i := 0; i < 8; i++ {
				_ = memory.Store(i, emu.Word(i+1))
			}
		},
		Program: BuildProgram(program...),
		ExpectedRegs: map[uint8]emu.Word{
			2: 5, 3: 6, 4: 7, 5: 8,
		},
	}
}

func storeToLoad() Benchmark {
	return Benchmark{
		Name:        "store_to_load",
		Description: "LOAD behind an uncommitted STORE to the same address, measures memory ordering cost",
		Program: BuildProgram(
			insts.Instruction{Op: insts.ADDI, Rd: 2, Ra: 0, Imm: 7},
			insts.Instruction{Op: insts.STORE, Rd: 2, Ra: 0, Imm: 0},
			insts.Instruction{Op: insts.LOAD, Rd: 3, Ra: 0, Imm: 0},
		),
		ExpectedRegs: map[uint8]emu.Word{3: 7},
		ExpectedMem:  map[int]emu.Word{0: 7},
	}
}

// A countdown loop whose back edge is always taken; every iteration
// mispredicts under not-taken fetch, so the run measures squash cost.
func branchHeavy() Benchmark {
	return Benchmark{
		Name:        "branch_heavy",
		Description: "countdown loop with a taken back edge, measures misprediction recovery",
		Program: BuildProgram(
			insts.Instruction{Op: insts.ADDI, Rd: 2, Ra: 0, Imm: 8},
			insts.Instruction{Op: insts.ADDI, Rd: 2, Ra: 2, Imm: -1},
			insts.Instruction{Op: insts.BEQ, Ra: 2, Rb: 0, Imm: 1},
			insts.Instruction{Op: insts.BEQ, Ra: 0, Rb: 0, Imm: -3},
		),
		ExpectedRegs: map[uint8]emu.Word{2: 0},
	}
}

func functionCall() Benchmark {
	return Benchmark{
		Name:        "function_call",
		Description: "CALL into a short routine and RET back, measures control-transfer latency",
		Program: BuildProgram(
			insts.Instruction{Op: insts.CALL, Imm: 2},
			insts.Instruction{Op: insts.BEQ, Ra: 0, Rb: 0, Imm: 2},
			insts.Instruction{Op: insts.ADDI, Rd: 2, Ra: 2, Imm: 5},
			insts.Instruction{Op: insts.RET},
		),
		ExpectedRegs: map[uint8]emu.Word{
			insts.LinkRegister: 1,
			2:                  5,
		},
	}
}

func mixedOperations() Benchmark {
	return Benchmark{
		Name:        "mixed_operations",
		Description: "arithmetic, logic, multiply, and memory mixed, measures cross-unit overlap",
		Program: BuildProgram(
			insts.Instruction{Op: insts.ADDI, Rd: 2, Ra: 0, Imm: 3},
			insts.Instruction{Op: insts.ADDI, Rd: 3, Ra: 0, Imm: 4},
			insts.Instruction{Op: insts.MUL, Rd: 4, Ra: 2, Rb: 3},
			insts.Instruction{Op: insts.NAND, Rd: 5, Ra: 2, Rb: 3},
			insts.Instruction{Op: insts.ADD, Rd: 6, Ra: 4, Rb: 2},
			insts.Instruction{Op: insts.STORE, Rd: 4, Ra: 0, Imm: 20},
			insts.Instruction{Op: insts.LOAD, Rd: 7, Ra: 0, Imm: 20},
		),
		ExpectedRegs: map[uint8]emu.Word{
			4: 12, 5: -1, 6: 15, 7: 12,
		},
		ExpectedMem: map[int]emu.Word{20: 12},
	}
}
