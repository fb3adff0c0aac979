package tomasulo_test

import (
	"errors"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/tomsim/emu"
	"github.com/sarchlab/tomsim/insts"
	"github.com/sarchlab/tomsim/loader"
	"github.com/sarchlab/tomsim/timing/latency"
	"github.com/sarchlab/tomsim/timing/tomasulo"
)

// newEngine builds an engine over an assembly snippet with its own
// register file and memory.
func newEngine(
	src string,
	cfg *latency.Config,
	opts ...tomasulo.Option,
) (*tomasulo.Engine, *emu.RegFile, *emu.Memory) {
	program, err := loader.Parse(strings.NewReader(src))
	ExpectWithOffset(1, err).NotTo(HaveOccurred())

	regFile := emu.NewRegFile(cfg.RegisterCount)
	memory := emu.NewMemory(cfg.MemorySize)
	engine := tomasulo.NewEngine(program, regFile, memory, cfg, opts...)
	return engine, regFile, memory
}

// runToDone ticks until quiescence, failing the test if the run neither
// quiesces nor errors within a generous bound.
func runToDone(e *tomasulo.Engine) {
	for i := 0; i < 1000 && !e.Done(); i++ {
		ExpectWithOffset(1, e.Tick()).To(Succeed())
	}
	ExpectWithOffset(1, e.Done()).To(BeTrue())
}

var _ = Describe("Engine", func() {
	var cfg *latency.Config

	BeforeEach(func() {
		cfg = latency.DefaultConfig()
		cfg.MemorySize = 1024
	})

	Context("independent instructions", func() {
		It("should overlap two independent ADDs", func() {
			engine, regFile, _ := newEngine(
				"ADD R1, R2, R3\nADD R4, R5, R6", cfg)
			regFile.Write(2, 1)
			regFile.Write(3, 2)
			regFile.Write(5, 4)
			regFile.Write(6, 5)

			runToDone(engine)

			Expect(regFile.Read(1)).To(Equal(emu.Word(3)))
			Expect(regFile.Read(4)).To(Equal(emu.Word(9)))

			timelines := engine.Timelines()
			Expect(timelines[0]).To(Equal(tomasulo.Timeline{
				Issue: 1, StartExec: 2, FinishExec: 3, WriteResult: 4, Commit: 5,
			}))
			Expect(timelines[1]).To(Equal(tomasulo.Timeline{
				Issue: 2, StartExec: 3, FinishExec: 4, WriteResult: 5, Commit: 6,
			}))
			Expect(engine.Stats().Cycles).To(Equal(uint64(6)))
		})

		It("should count every committed instruction", func() {
			engine, _, _ := newEngine(
				"ADD R1, R2, R3\nNAND R4, R5, R6\nMUL R7, R2, R3", cfg)
			runToDone(engine)
			Expect(engine.Stats().Committed).To(Equal(uint64(3)))
			Expect(engine.Stats().Squashed).To(BeZero())
		})
	})

	Context("RAW dependency", func() {
		It("should hold the consumer until the producer broadcasts", func() {
			engine, regFile, _ := newEngine(
				"ADD R1, R2, R3\nADD R4, R1, R5", cfg)
			regFile.Write(2, 7)
			regFile.Write(3, 3)
			regFile.Write(5, 5)

			runToDone(engine)

			Expect(regFile.Read(1)).To(Equal(emu.Word(10)))
			Expect(regFile.Read(4)).To(Equal(emu.Word(15)))

			timelines := engine.Timelines()
			// The producer broadcasts in cycle 4; the consumer may
			// start that same cycle, not earlier.
			Expect(timelines[0].WriteResult).To(Equal(uint64(4)))
			Expect(timelines[1].Issue).To(Equal(uint64(2)))
			Expect(timelines[1].StartExec).To(Equal(uint64(4)))
			Expect(timelines[1].Commit).To(Equal(uint64(7)))
		})

		It("should rename so the last writer feeds the reader", func() {
			engine, regFile, _ := newEngine(
				"ADDI R1, R0, 1\nADDI R1, R0, 2\nADD R2, R1, R0", cfg)

			runToDone(engine)

			Expect(regFile.Read(1)).To(Equal(emu.Word(2)))
			Expect(regFile.Read(2)).To(Equal(emu.Word(2)))

			// Every producer retired, so no register still carries a tag.
			for reg := uint8(0); reg < 8; reg++ {
				Expect(regFile.Tag(reg)).To(Equal(emu.NoTag))
			}
		})

		It("should resolve a pending memory address from the bus", func() {
			engine, regFile, memory := newEngine(
				"ADDI R1, R0, 20\nLOAD R2, 5(R1)", cfg)
			Expect(memory.Store(25, 7)).To(Succeed())

			runToDone(engine)

			Expect(regFile.Read(2)).To(Equal(emu.Word(7)))

			timelines := engine.Timelines()
			// The address depends on R1, so execution cannot start
			// before the ADDI broadcasts in cycle 4.
			Expect(timelines[1].StartExec).To(Equal(uint64(4)))
			Expect(timelines[1].FinishExec).To(Equal(uint64(9)))
		})
	})

	Context("structural hazards", func() {
		It("should stall issue while the only MUL slot is busy", func() {
			engine, _, _ := newEngine(
				"MUL R1, R2, R3\nMUL R4, R5, R6", cfg)

			runToDone(engine)

			timelines := engine.Timelines()
			Expect(timelines[0].WriteResult).To(Equal(uint64(10)))
			// The slot frees with the broadcast, so the second MUL
			// issues the same cycle.
			Expect(timelines[1].Issue).To(Equal(uint64(10)))
			Expect(engine.Stats().IssueStalls).To(Equal(uint64(8)))
		})

		It("should stall issue while the reorder buffer is full", func() {
			cfg.ROBCapacity = 2
			engine, _, _ := newEngine(
				"ADD R1, R2, R3\nADD R4, R5, R6\nADD R7, R2, R3", cfg)

			runToDone(engine)

			timelines := engine.Timelines()
			// Capacity 2 holds the first pair; the third waits for the
			// head to commit in cycle 5.
			Expect(timelines[2].Issue).To(Equal(uint64(5)))
			Expect(engine.Stats().IssueStalls).To(Equal(uint64(2)))
		})

		It("should never lose a stalled instruction", func() {
			cfg.ROBCapacity = 1
			engine, _, _ := newEngine(
				"ADD R1, R2, R3\nADD R4, R5, R6\nADD R7, R2, R3", cfg)
			runToDone(engine)
			Expect(engine.Stats().Committed).To(Equal(uint64(3)))
		})
	})

	Context("in-order commit", func() {
		It("should hold a fast younger instruction behind a slow head", func() {
			engine, _, _ := newEngine(
				"MUL R1, R2, R3\nADD R4, R5, R6", cfg)

			runToDone(engine)

			timelines := engine.Timelines()
			// The ADD is written in cycle 5 but the MUL head commits
			// only in cycle 11.
			Expect(timelines[1].WriteResult).To(Equal(uint64(5)))
			Expect(timelines[0].Commit).To(Equal(uint64(11)))
			Expect(timelines[1].Commit).To(Equal(uint64(12)))
		})

		It("should commit in non-decreasing program order", func() {
			engine, regFile, _ := newEngine(`
MUL  R1, R2, R3
ADD  R4, R5, R6
NAND R7, R5, R6
ADDI R2, R0, 3
`, cfg)
			regFile.Write(2, 2)
			regFile.Write(3, 3)

			runToDone(engine)

			timelines := engine.Timelines()
			last := uint64(0)
			for _, tl := range timelines {
				Expect(tl.Commit).To(BeNumerically(">", last))
				last = tl.Commit
			}
		})
	})

	Context("branch speculation", func() {
		const mispredictProgram = `
ADDI R1, R0, 5
BEQ  R0, R0, 1
ADD  R2, R1, R1
ADDI R3, R0, 7
`

		It("should squash the wrong path and resume at the target", func() {
			engine, regFile, _ := newEngine(mispredictProgram, cfg)

			runToDone(engine)

			Expect(regFile.Read(1)).To(Equal(emu.Word(5)))
			// The wrong-path ADD never commits.
			Expect(regFile.Read(2)).To(Equal(emu.Word(0)))
			Expect(regFile.Read(3)).To(Equal(emu.Word(7)))

			stats := engine.Stats()
			Expect(stats.Mispredictions).To(Equal(uint64(1)))
			Expect(stats.Squashed).To(Equal(uint64(1)))
			Expect(stats.Committed).To(Equal(uint64(3)))

			timelines := engine.Timelines()
			Expect(timelines[2].Squashed).To(BeTrue())
			Expect(timelines[2].WriteResult).To(BeZero())
			Expect(timelines[2].Commit).To(BeZero())
			// The branch resolves in cycle 4; the target issues the
			// same cycle, exactly once.
			Expect(timelines[1].WriteResult).To(Equal(uint64(4)))
			Expect(timelines[3].Issue).To(Equal(uint64(4)))
			Expect(timelines[3].Squashed).To(BeFalse())
		})

		It("should not squash on a correctly predicted not-taken branch", func() {
			engine, regFile, _ := newEngine(`
ADDI R1, R0, 1
BEQ  R1, R0, 2
ADDI R2, R0, 3
`, cfg)

			runToDone(engine)

			Expect(regFile.Read(2)).To(Equal(emu.Word(3)))
			Expect(engine.Stats().Mispredictions).To(BeZero())
			Expect(engine.Stats().Squashed).To(BeZero())
		})

		It("should replay identical timelines on identical input", func() {
			first, _, _ := newEngine(mispredictProgram, cfg)
			runToDone(first)
			second, _, _ := newEngine(mispredictProgram, cfg)
			runToDone(second)

			Expect(second.Timelines()).To(Equal(first.Timelines()))
			Expect(second.Stats()).To(Equal(first.Stats()))
		})

		It("should execute a countdown loop to completion", func() {
			engine, regFile, _ := newEngine(`
ADDI R1, R0, 2
ADDI R1, R1, -1
BEQ  R1, R0, 1
BEQ  R0, R0, -3
`, cfg)

			runToDone(engine)

			Expect(regFile.Read(1)).To(Equal(emu.Word(0)))
			stats := engine.Stats()
			Expect(stats.Committed).To(Equal(uint64(6)))
			Expect(stats.Mispredictions).To(Equal(uint64(2)))
		})

		Context("with eager resolution", func() {
			It("should redirect at issue and never squash", func() {
				engine, regFile, _ := newEngine(mispredictProgram, cfg,
					tomasulo.WithEagerBranchResolution())

				runToDone(engine)

				Expect(regFile.Read(3)).To(Equal(emu.Word(7)))
				stats := engine.Stats()
				Expect(stats.Mispredictions).To(BeZero())
				Expect(stats.Squashed).To(BeZero())

				// The wrong-path ADD was never fetched.
				Expect(engine.Timelines()[2].Issue).To(BeZero())
			})

			It("should fall back to write-time resolution for pending operands", func() {
				engine, _, _ := newEngine(`
ADDI R1, R0, 0
BEQ  R1, R0, 1
ADD  R2, R1, R1
ADDI R3, R0, 7
`, cfg, tomasulo.WithEagerBranchResolution())

				runToDone(engine)

				// R1 is still in flight at the branch's issue, so the
				// taken branch mispredicts the fall-through.
				Expect(engine.Stats().Mispredictions).To(Equal(uint64(1)))
				Expect(engine.Stats().Committed).To(Equal(uint64(3)))
			})
		})
	})

	Context("CALL and RET", func() {
		It("should link, run the callee, and return", func() {
			engine, regFile, _ := newEngine(`
CALL 2
ADDI R2, R0, 9
ADDI R3, R0, 1
RET
`, cfg)

			runToDone(engine)

			Expect(regFile.Read(insts.LinkRegister)).To(Equal(emu.Word(1)))
			Expect(regFile.Read(2)).To(Equal(emu.Word(9)))
			Expect(regFile.Read(3)).To(Equal(emu.Word(1)))

			timelines := engine.Timelines()
			// Fetch stalls behind the RET until its target resolves in
			// cycle 10; the return target issues that same cycle.
			Expect(timelines[3].Issue).To(Equal(uint64(3)))
			Expect(timelines[3].WriteResult).To(Equal(uint64(10)))
			Expect(timelines[1].Issue).To(Equal(uint64(10)))
			Expect(engine.Stats().Squashed).To(BeZero())
		})

		It("should forward a written link register to RET at issue", func() {
			engine, _, _ := newEngine(`
ADDI R1, R0, 4
NAND R2, R3, R4
NAND R5, R3, R4
RET
`, cfg)

			runToDone(engine)

			timelines := engine.Timelines()
			// The ADDI is written (not yet committed) when RET issues
			// in cycle 4; the target forwards from the ROB entry.
			Expect(timelines[3].Issue).To(Equal(uint64(4)))
			Expect(engine.Stats().Committed).To(Equal(uint64(4)))
		})
	})

	Context("memory ordering", func() {
		It("should write memory at commit, not at execute", func() {
			engine, _, memory := newEngine(
				"ADDI R1, R0, 42\nSTORE R1, 10(R0)", cfg)

			for !engine.Done() {
				Expect(engine.Tick()).To(Succeed())
				if engine.Timelines()[1].Commit == 0 {
					value, err := memory.Load(10)
					Expect(err).NotTo(HaveOccurred())
					Expect(value).To(BeZero())
				}
			}

			timelines := engine.Timelines()
			value, err := memory.Load(10)
			Expect(err).NotTo(HaveOccurred())
			Expect(value).To(Equal(emu.Word(42)))
			Expect(timelines[1].FinishExec).To(BeNumerically("<", timelines[1].Commit))
		})

		It("should hold a LOAD behind an older uncommitted STORE", func() {
			engine, regFile, memory := newEngine(`
ADDI R1, R0, 42
STORE R1, 10(R0)
LOAD  R2, 10(R0)
`, cfg)

			runToDone(engine)

			value, err := memory.Load(10)
			Expect(err).NotTo(HaveOccurred())
			Expect(value).To(Equal(emu.Word(42)))
			Expect(regFile.Read(2)).To(Equal(emu.Word(42)))

			timelines := engine.Timelines()
			// Conservative in-order memory access: the LOAD starts in
			// the cycle the STORE commits, not before.
			Expect(timelines[1].Commit).To(Equal(uint64(11)))
			Expect(timelines[2].StartExec).To(Equal(uint64(11)))
		})
	})

	Context("fatal errors", func() {
		It("should abort on an out-of-bounds STORE at commit", func() {
			engine, _, _ := newEngine("STORE R0, -5(R0)", cfg)

			var err error
			for i := 0; i < 100 && err == nil && !engine.Done(); i++ {
				err = engine.Tick()
			}
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("out of bounds"))
			Expect(err.Error()).To(ContainSubstring("instruction 0"))
		})

		It("should abort on an out-of-bounds LOAD at commit", func() {
			engine, _, _ := newEngine("LOAD R1, -1(R0)", cfg)

			var err error
			for i := 0; i < 100 && err == nil && !engine.Done(); i++ {
				err = engine.Tick()
			}
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("out of bounds"))
		})

		It("should discard a faulting load on the squashed path", func() {
			// The branch waits on the slow MUL, so the wrong-path LOAD
			// faults before the squash discards it.
			engine, regFile, _ := newEngine(`
MUL  R1, R0, R0
BEQ  R1, R0, 2
LOAD R2, -1(R0)
ADD  R3, R1, R1
ADDI R4, R0, 7
`, cfg)

			runToDone(engine)

			Expect(regFile.Read(4)).To(Equal(emu.Word(7)))
			Expect(engine.Timelines()[2].Squashed).To(BeTrue())
			Expect(engine.Stats().Mispredictions).To(Equal(uint64(1)))
		})

		It("should abort on an out-of-range register operand", func() {
			program := []insts.Instruction{
				{Index: 0, Op: insts.ADD, Rd: 9, Ra: 1, Rb: 2},
			}
			regFile := emu.NewRegFile(cfg.RegisterCount)
			memory := emu.NewMemory(cfg.MemorySize)
			engine := tomasulo.NewEngine(program, regFile, memory, cfg)

			err := engine.Tick()
			Expect(err).To(HaveOccurred())

			var opErr *tomasulo.OperandError
			Expect(errors.As(err, &opErr)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring("register R9"))
		})
	})

	Context("quiescence", func() {
		It("should terminate only when all in-flight state drains", func() {
			engine, _, _ := newEngine("MUL R1, R2, R3", cfg)

			Expect(engine.Done()).To(BeFalse())
			Expect(engine.Tick()).To(Succeed()) // issued
			Expect(engine.Done()).To(BeFalse()) // in flight, not done
			runToDone(engine)
			Expect(engine.Stats().Committed).To(Equal(uint64(1)))
		})

		It("should handle an empty program", func() {
			engine, _, _ := newEngine("", cfg)
			Expect(engine.Done()).To(BeTrue())
		})
	})
})
