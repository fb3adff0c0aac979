package tomasulo

import (
	"fmt"
	"io"

	"github.com/sarchlab/tomsim/emu"
	"github.com/sarchlab/tomsim/insts"
	"github.com/sarchlab/tomsim/timing/latency"
)

// Option is a functional option for configuring the Engine.
type Option func(*Engine)

// WithEagerBranchResolution makes the engine evaluate a BEQ at issue time
// when both source operands are already value-ready. The redirect happens
// before anything wrong-path is fetched, so eager branches never squash.
// The default resolves branches at write-result time.
func WithEagerBranchResolution() Option {
	return func(e *Engine) {
		e.eagerBranch = true
	}
}

// WithTrace makes the engine log issue, broadcast, squash, and commit
// events to w, one line per event.
func WithTrace(w io.Writer) Option {
	return func(e *Engine) {
		e.trace = w
	}
}

// pendingWrite is a completed execution waiting for next cycle's
// write-result step. The allocation number guards against broadcasting a
// result whose entry was squashed in between.
type pendingWrite struct {
	owner emu.Tag
	seq   uint64
}

// Engine is the per-cycle scheduling driver. Each Tick runs the four steps
// in a fixed order: commit, write-result, execute, issue. All state the
// engine mutates (register file, memory, stations, reorder buffer) is
// owned by it for the duration of a run.
type Engine struct {
	program []insts.Instruction
	regFile *emu.RegFile
	memory  *emu.Memory

	rob   *ROB
	pools [numClasses]*Pool

	pending []pendingWrite

	// cursor is the fetch position: the program index issued next.
	cursor int

	// waitRet stalls fetch while an issued RET's target is unresolved.
	// Stalling fetches nothing wrong-path, so RET never squashes.
	waitRet bool

	cycle     uint64
	timelines []Timeline
	stats     Statistics

	eagerBranch bool
	trace       io.Writer
}

// NewEngine creates an engine over the given program and architectural
// state, with functional-unit shapes and ROB capacity from cfg.
func NewEngine(
	program []insts.Instruction,
	regFile *emu.RegFile,
	memory *emu.Memory,
	cfg *latency.Config,
	opts ...Option,
) *Engine {
	e := &Engine{
		program:   program,
		regFile:   regFile,
		memory:    memory,
		rob:       NewROB(cfg.ROBCapacity),
		timelines: make([]Timeline, len(program)),
	}
	e.pools[ClassALU] = NewPool(ClassALU, cfg.ALU)
	e.pools[ClassLoad] = NewPool(ClassLoad, cfg.Load)
	e.pools[ClassStore] = NewPool(ClassStore, cfg.Store)
	e.pools[ClassNand] = NewPool(ClassNand, cfg.Nand)
	e.pools[ClassMul] = NewPool(ClassMul, cfg.Mul)
	e.pools[ClassBranch] = NewPool(ClassBranch, cfg.Branch)
	e.pools[ClassCallRet] = NewPool(ClassCallRet, cfg.CallRet)

	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Cycle returns the current cycle number. Cycles are numbered from 1.
func (e *Engine) Cycle() uint64 {
	return e.cycle
}

// Stats returns the run counters so far.
func (e *Engine) Stats() Statistics {
	return e.stats
}

// Timelines returns a copy of the per-instruction cycle stamps, indexed by
// program order.
func (e *Engine) Timelines() []Timeline {
	out := make([]Timeline, len(e.timelines))
	copy(out, e.timelines)
	return out
}

// Done reports quiescence: the fetch cursor has exhausted the stream and
// every in-flight instruction has committed.
func (e *Engine) Done() bool {
	return e.cursor >= len(e.program) && !e.waitRet && e.rob.Empty()
}

// Tick advances the simulation by one cycle. A returned error is fatal
// (malformed operand or out-of-bounds memory access); it carries the cycle
// and instruction index and the run must not continue.
func (e *Engine) Tick() error {
	e.cycle++
	e.stats.Cycles = e.cycle

	if err := e.commitStep(); err != nil {
		return fmt.Errorf("cycle %d: %w", e.cycle, err)
	}
	e.writeStep()
	e.executeStep()
	if err := e.issueStep(); err != nil {
		return fmt.Errorf("cycle %d: %w", e.cycle, err)
	}
	return nil
}

// commitStep retires at most one written head entry per cycle (single
// commit port). The head is never skipped: younger written entries wait
// behind an older unwritten one.
func (e *Engine) commitStep() error {
	tag, entry, ok := e.rob.Head()
	if !ok || entry.State != StateWritten {
		return nil
	}
	inst := entry.Inst

	if entry.Err != nil {
		return entry.Err
	}
	if inst.Op == insts.STORE {
		if err := e.memory.Store(entry.StoreAddr, entry.StoreValue); err != nil {
			return fmt.Errorf("instruction %d (%s): %w", inst.Index, inst, err)
		}
	}
	if entry.HasDest {
		e.regFile.Write(entry.Dest, entry.Result)
		if e.regFile.Tag(entry.Dest) == tag {
			e.regFile.ClearTag(entry.Dest)
		}
	}
	if !entry.SlotReleased {
		e.pools[entry.Class].Release(entry.SlotIdx)
		entry.SlotReleased = true
	}

	e.timelines[inst.Index].Commit = e.cycle
	e.stats.Committed++
	e.tracef("commit %s", inst)
	e.rob.PopHead()
	return nil
}

// writeStep broadcasts the previous cycle's completions. Each result is
// delivered to every waiting station operand and recorded in the owning
// ROB entry; the completing station slot is released as the broadcast
// reads it. Branches resolve here, squashing the wrong path if fetch went
// the other way.
func (e *Engine) writeStep() {
	pending := e.pending
	e.pending = e.pending[:0]

	for _, pw := range pending {
		// A completion queued before a squash may name an entry that
		// no longer exists.
		if !e.rob.Live(pw.owner, pw.seq) {
			continue
		}
		entry := e.rob.Entry(pw.owner)
		inst := entry.Inst

		entry.State = StateWritten
		e.timelines[inst.Index].WriteResult = e.cycle
		if !entry.SlotReleased {
			e.pools[entry.Class].Release(entry.SlotIdx)
			entry.SlotReleased = true
		}
		e.stats.Broadcasts++

		switch inst.Op {
		case insts.STORE:
			// The memory write waits for commit; nothing listens on
			// a store tag.
			e.tracef("write %s [mem[%d] <- %d at commit]", inst, entry.StoreAddr, entry.StoreValue)
		case insts.BEQ:
			e.tracef("write %s [taken=%v]", inst, entry.Taken)
			e.resolveBranch(entry)
		case insts.RET:
			e.tracef("write %s [target=%d]", inst, entry.TargetIndex)
			if !entry.ResolvedAtIssue {
				e.redirect(entry.TargetIndex)
				e.waitRet = false
			}
		default:
			e.tracef("write %s = %d", inst, entry.Result)
			e.broadcast(pw.owner, entry.Result)
		}
	}
}

// broadcast delivers (tag, value) to every reservation station pool.
// Register tags are left in place until the producer commits; consumers
// issued in the window read the value out of the written ROB entry.
func (e *Engine) broadcast(tag emu.Tag, value emu.Word) {
	for _, pool := range e.pools {
		pool.Deliver(tag, value)
	}
}

// resolveBranch compares the executed direction against the one fetch
// continued in and squashes all younger in-flight state on a mismatch.
func (e *Engine) resolveBranch(entry *Entry) {
	if entry.ResolvedAtIssue {
		return
	}
	if entry.Taken == entry.PredictedTaken {
		return
	}

	e.stats.Mispredictions++
	e.tracef("mispredict %s", entry.Inst)
	e.squashYounger(entry.Seq)

	if entry.Taken {
		e.redirect(entry.TargetIndex)
	} else {
		e.redirect(entry.Inst.Index + 1)
	}
}

// squashYounger invalidates every entry allocated after seq: station slots
// are released, the entries leave the buffer, and the rename table is
// rebuilt from the survivors. Entries at or before seq are untouched. The
// cascade is atomic within the cycle; later steps never see a partial
// squash.
func (e *Engine) squashYounger(seq uint64) {
	for {
		_, entry, ok := e.rob.Tail()
		if !ok || entry.Seq <= seq {
			break
		}
		if !entry.SlotReleased {
			e.pools[entry.Class].Release(entry.SlotIdx)
			entry.SlotReleased = true
		}
		e.timelines[entry.Inst.Index].Squashed = true
		e.stats.Squashed++
		e.tracef("squash %s", entry.Inst)
		e.rob.PopTail()
	}

	// A stalled fetch was waiting on a RET younger than the branch; that
	// RET is gone now.
	e.waitRet = false

	e.rebuildTags()
}

// rebuildTags recomputes the rename table from the surviving entries:
// clear everything, then re-apply destinations oldest to youngest so each
// register names its youngest surviving producer. A register whose every
// producer was squashed falls back to its architectural value.
func (e *Engine) rebuildTags() {
	for reg := 1; reg < e.regFile.Count(); reg++ {
		e.regFile.ClearTag(uint8(reg))
	}
	e.rob.Walk(func(tag emu.Tag, entry *Entry) bool {
		if entry.HasDest {
			e.regFile.SetTag(entry.Dest, tag)
		}
		return true
	})
}

// redirect moves the fetch cursor. A target outside the program ends
// fetch; the run then drains to quiescence.
func (e *Engine) redirect(target int) {
	if target < 0 || target > len(e.program) {
		target = len(e.program)
	}
	e.cursor = target
}

// executeStep advances every station pool by one cycle and records
// completions for next cycle's broadcast. Loads are additionally held
// until no older store is uncommitted (conservative in-order memory
// access).
func (e *Engine) executeStep() {
	for class := Class(0); class < numClasses; class++ {
		pool := e.pools[class]

		var gate func(owner emu.Tag) bool
		if class == ClassLoad {
			gate = func(owner emu.Tag) bool {
				return !e.rob.OlderStoreInFlight(owner)
			}
		}

		started, completed := pool.Tick(gate)
		for _, owner := range started {
			entry := e.rob.Entry(owner)
			entry.State = StateExecuting
			e.timelines[entry.Inst.Index].StartExec = e.cycle
		}
		for _, idx := range completed {
			e.complete(pool, idx)
		}
	}
}

// complete computes a finished slot's result into its ROB entry and queues
// the broadcast.
func (e *Engine) complete(pool *Pool, idx int) {
	slot := pool.Slot(idx)
	entry := e.rob.Entry(slot.Owner)
	inst := entry.Inst

	switch inst.Op {
	case insts.ADD, insts.ADDI:
		entry.Result = slot.Vj + slot.Vk
	case insts.NAND:
		entry.Result = ^(slot.Vj & slot.Vk)
	case insts.MUL:
		// Low word of the product; int32 multiplication wraps.
		entry.Result = slot.Vj * slot.Vk
	case insts.LOAD:
		value, err := e.memory.Load(slot.Addr)
		if err != nil {
			// Surfaced only at commit; the load may be wrong-path.
			entry.Err = fmt.Errorf("instruction %d (%s): %w", inst.Index, inst, err)
		}
		entry.Result = value
	case insts.STORE:
		entry.StoreAddr = slot.Addr
		entry.StoreValue = slot.Vj
	case insts.BEQ:
		entry.Taken = slot.Vj == slot.Vk
		entry.TargetIndex = inst.BranchTarget()
	case insts.CALL:
		entry.Result = slot.Vj // link address, captured at issue
	case insts.RET:
		entry.Result = slot.Vj
		entry.TargetIndex = int(slot.Vj)
	}

	e.timelines[inst.Index].FinishExec = e.cycle
	e.pending = append(e.pending, pendingWrite{owner: slot.Owner, seq: entry.Seq})
}

// issueStep fetches and issues at most one instruction. The station slot
// and the ROB entry are claimed together: if either is unavailable the
// instruction stalls in place and is retried next cycle, never lost.
func (e *Engine) issueStep() error {
	if e.waitRet || e.cursor >= len(e.program) {
		return nil
	}
	inst := &e.program[e.cursor]

	if err := e.checkOperands(inst); err != nil {
		return err
	}

	pool := e.pools[ClassOf(inst.Op)]
	if !pool.HasFree() || e.rob.Full() {
		e.stats.IssueStalls++
		e.tracef("stall %s", inst)
		return nil
	}

	slot := Slot{Qj: emu.NoTag, Qk: emu.NoTag, AddrBase: emu.NoTag, Op: inst.Op}
	switch inst.Op {
	case insts.ADD, insts.NAND, insts.MUL, insts.BEQ:
		slot.Vj, slot.Qj = e.resolveReg(inst.Ra)
		slot.Vk, slot.Qk = e.resolveReg(inst.Rb)
	case insts.ADDI:
		// The immediate folds into operand K at issue.
		slot.Vj, slot.Qj = e.resolveReg(inst.Ra)
		slot.Vk = emu.Word(inst.Imm)
	case insts.LOAD:
		e.resolveAddress(inst, &slot)
	case insts.STORE:
		slot.Vj, slot.Qj = e.resolveReg(inst.Rd)
		e.resolveAddress(inst, &slot)
	case insts.CALL:
		slot.Vj = emu.Word(inst.Index + 1)
	case insts.RET:
		slot.Vj, slot.Qj = e.resolveReg(insts.LinkRegister)
	}

	tag, _ := e.rob.Alloc(inst)
	entry := e.rob.Entry(tag)
	slot.Owner = tag
	entry.Class = pool.Class()
	entry.SlotIdx = pool.Allocate(slot)

	// Rename after reading sources so an instruction may read the
	// register it overwrites.
	if entry.HasDest {
		e.regFile.SetTag(entry.Dest, tag)
	}

	e.timelines[inst.Index] = Timeline{Issue: e.cycle}
	e.stats.Issued++
	e.tracef("issue %s", inst)

	e.cursor = inst.Index + 1
	switch inst.Op {
	case insts.CALL:
		// The target is immediate; redirect before anything wrong-path
		// is fetched.
		entry.ResolvedAtIssue = true
		e.redirect(int(inst.Imm))
	case insts.RET:
		if slot.Qj == emu.NoTag {
			entry.ResolvedAtIssue = true
			e.redirect(int(slot.Vj))
		} else {
			e.waitRet = true
		}
	case insts.BEQ:
		if e.eagerBranch && slot.Qj == emu.NoTag && slot.Qk == emu.NoTag {
			taken := slot.Vj == slot.Vk
			entry.PredictedTaken = taken
			entry.ResolvedAtIssue = true
			if taken {
				e.redirect(inst.BranchTarget())
			}
		}
		// Otherwise fetch continues in order: the branch predicts
		// not-taken and resolves at write-result.
	}
	return nil
}

// resolveReg produces a value or a producer tag for a source register. A
// written but uncommitted producer forwards its result straight out of the
// ROB entry.
func (e *Engine) resolveReg(reg uint8) (emu.Word, emu.Tag) {
	tag := e.regFile.Tag(reg)
	if tag == emu.NoTag {
		return e.regFile.Read(reg), emu.NoTag
	}
	if entry := e.rob.Entry(tag); entry.State == StateWritten {
		return entry.Result, emu.NoTag
	}
	return 0, tag
}

// resolveAddress computes a memory operand's address when the base
// register is ready; otherwise the address stays pending on the base's
// producer and resolves when its value arrives on the bus.
func (e *Engine) resolveAddress(inst *insts.Instruction, slot *Slot) {
	slot.HasAddr = true
	slot.Offset = inst.Imm
	base, tag := e.resolveReg(inst.Ra)
	if tag == emu.NoTag {
		slot.Addr = int(base) + int(inst.Imm)
	} else {
		slot.AddrBase = tag
	}
}

// checkOperands validates the instruction's register fields against the
// configured register count. Failure is fatal: the stream is assumed
// statically well formed.
func (e *Engine) checkOperands(inst *insts.Instruction) error {
	var regs []uint8
	switch inst.Op {
	case insts.ADD, insts.NAND, insts.MUL:
		regs = []uint8{inst.Rd, inst.Ra, inst.Rb}
	case insts.ADDI, insts.LOAD, insts.STORE:
		regs = []uint8{inst.Rd, inst.Ra}
	case insts.BEQ:
		regs = []uint8{inst.Ra, inst.Rb}
	}

	n := e.regFile.Count()
	for _, reg := range regs {
		if int(reg) >= n {
			return &OperandError{InstIndex: inst.Index, Reg: reg, RegCount: n}
		}
	}
	return nil
}

func (e *Engine) tracef(format string, args ...any) {
	if e.trace == nil {
		return
	}
	fmt.Fprintf(e.trace, "cycle %4d: ", e.cycle)
	fmt.Fprintf(e.trace, format, args...)
	fmt.Fprintln(e.trace)
}
