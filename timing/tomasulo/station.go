// Package tomasulo implements dynamic instruction scheduling with register
// renaming, a reorder buffer, and speculative branch execution.
//
// The package models the classic Tomasulo organization: one reservation
// station pool per functional-unit class, a common result broadcast, and a
// circular reorder buffer that enforces in-order commit over out-of-order
// completion. The Engine drives the four per-cycle steps (commit, write
// result, execute, issue) in a fixed order so runs are deterministic.
package tomasulo

import (
	"github.com/sarchlab/tomsim/emu"
	"github.com/sarchlab/tomsim/insts"
	"github.com/sarchlab/tomsim/timing/latency"
)

// Class identifies a functional-unit class. Each class owns one reservation
// station pool.
type Class int

const (
	// ClassALU serves ADD and ADDI.
	ClassALU Class = iota
	// ClassLoad serves LOAD.
	ClassLoad
	// ClassStore serves STORE.
	ClassStore
	// ClassNand serves NAND.
	ClassNand
	// ClassMul serves MUL.
	ClassMul
	// ClassBranch serves BEQ.
	ClassBranch
	// ClassCallRet serves CALL and RET.
	ClassCallRet

	numClasses
)

var classNames = [...]string{
	ClassALU:     "ALU",
	ClassLoad:    "LOAD",
	ClassStore:   "STORE",
	ClassNand:    "NAND",
	ClassMul:     "MUL",
	ClassBranch:  "BRANCH",
	ClassCallRet: "CALL/RET",
}

// String returns the class name.
func (c Class) String() string {
	if c < 0 || c >= numClasses {
		return "?"
	}
	return classNames[c]
}

// ClassOf returns the functional-unit class that executes the opcode.
func ClassOf(op insts.Opcode) Class {
	switch op {
	case insts.ADD, insts.ADDI:
		return ClassALU
	case insts.LOAD:
		return ClassLoad
	case insts.STORE:
		return ClassStore
	case insts.NAND:
		return ClassNand
	case insts.MUL:
		return ClassMul
	case insts.BEQ:
		return ClassBranch
	default:
		return ClassCallRet
	}
}

// Slot is one reservation station. A slot is busy iff it holds an issued,
// not-yet-broadcast instruction. Qj/Qk are producer tags; an operand is a
// literal value only once its tag is NoTag. For memory access the address
// itself may be pending on the base register's producer: it is resolved
// only when AddrBase is NoTag.
type Slot struct {
	Busy bool
	Op   insts.Opcode

	Vj emu.Word
	Qj emu.Tag
	Vk emu.Word
	Qk emu.Tag

	// HasAddr marks LOAD/STORE slots. Addr is valid once AddrBase is
	// NoTag; until then Offset waits for the base value to arrive on the
	// bus.
	HasAddr  bool
	Addr     int
	AddrBase emu.Tag
	Offset   int32

	// CyclesLeft counts down execution latency once the slot is ready.
	CyclesLeft uint64

	// Started is set on the first execute tick.
	Started bool

	// Owner is the reorder-buffer entry tracking this slot's commit.
	Owner emu.Tag
}

// Clear resets the slot to idle.
func (s *Slot) Clear() {
	*s = Slot{Qj: emu.NoTag, Qk: emu.NoTag, AddrBase: emu.NoTag}
}

// Ready reports whether every operand (and the address, for memory access)
// has resolved to a value. A slot that is not ready does not consume
// execution latency; it is waiting on the bus.
func (s *Slot) Ready() bool {
	if s.Qj != emu.NoTag || s.Qk != emu.NoTag {
		return false
	}
	if s.HasAddr && s.AddrBase != emu.NoTag {
		return false
	}
	return true
}

// Done reports whether the slot has finished executing and is waiting for
// its result to be read by the broadcast.
func (s *Slot) Done() bool {
	return s.Busy && s.Started && s.CyclesLeft == 0
}

// Pool is the reservation station pool for one functional-unit class.
type Pool struct {
	class   Class
	latency uint64
	slots   []Slot
}

// NewPool creates a pool with the configured slot count and latency.
func NewPool(class Class, shape latency.UnitShape) *Pool {
	p := &Pool{
		class:   class,
		latency: shape.Latency,
		slots:   make([]Slot, shape.Slots),
	}
	for i := range p.slots {
		p.slots[i].Clear()
	}
	return p
}

// Class returns the pool's functional-unit class.
func (p *Pool) Class() Class {
	return p.class
}

// HasFree reports whether an idle slot exists.
func (p *Pool) HasFree() bool {
	for i := range p.slots {
		if !p.slots[i].Busy {
			return true
		}
	}
	return false
}

// BusyCount returns the number of busy slots.
func (p *Pool) BusyCount() int {
	n := 0
	for i := range p.slots {
		if p.slots[i].Busy {
			n++
		}
	}
	return n
}

// Allocate claims an idle slot for the given in-flight state and returns
// its index, or -1 when the pool is full. On -1 no state changes; the
// caller stalls issue and retries next cycle.
func (p *Pool) Allocate(slot Slot) int {
	for i := range p.slots {
		if p.slots[i].Busy {
			continue
		}
		slot.Busy = true
		slot.CyclesLeft = p.latency
		p.slots[i] = slot
		return i
	}
	return -1
}

// Slot returns the slot at index i.
func (p *Pool) Slot(i int) *Slot {
	return &p.slots[i]
}

// Release frees the slot at index i.
func (p *Pool) Release(i int) {
	p.slots[i].Clear()
}

// Tick advances execution by one cycle. Every busy slot whose operands are
// resolved counts down; a slot that has not started yet additionally asks
// canStart (when non-nil) for permission, which is how the engine holds
// loads behind older uncommitted stores. Tick returns the owners of slots
// that started this cycle and the indices of slots that reached zero.
// Completed slots stay busy until the broadcast reads and releases them.
func (p *Pool) Tick(canStart func(owner emu.Tag) bool) (started []emu.Tag, completed []int) {
	for i := range p.slots {
		s := &p.slots[i]
		if !s.Busy || s.Done() || !s.Ready() {
			continue
		}
		if !s.Started {
			if canStart != nil && !canStart(s.Owner) {
				continue
			}
			s.Started = true
			started = append(started, s.Owner)
		}
		s.CyclesLeft--
		if s.CyclesLeft == 0 {
			completed = append(completed, i)
		}
	}
	return started, completed
}

// Deliver applies a broadcast (tag, value) to every waiting operand and
// pending address in the pool. Listeners match by tag identity, so the
// order of same-cycle broadcasts does not matter.
func (p *Pool) Deliver(tag emu.Tag, value emu.Word) {
	for i := range p.slots {
		s := &p.slots[i]
		if !s.Busy {
			continue
		}
		if s.Qj == tag {
			s.Vj = value
			s.Qj = emu.NoTag
		}
		if s.Qk == tag {
			s.Vk = value
			s.Qk = emu.NoTag
		}
		if s.HasAddr && s.AddrBase == tag {
			s.Addr = int(value) + int(s.Offset)
			s.AddrBase = emu.NoTag
		}
	}
}
