package tomasulo

import (
	"github.com/sarchlab/tomsim/emu"
	"github.com/sarchlab/tomsim/insts"
)

// EntryState is the lifecycle state of a reorder-buffer entry.
type EntryState int

const (
	// StateIssued means the entry is allocated and waiting on operands.
	StateIssued EntryState = iota
	// StateExecuting means the owning station has started counting down.
	StateExecuting
	// StateWritten means the result has been broadcast. Only a written
	// head entry may commit.
	StateWritten
	// StateCommitted means the entry has retired and left the buffer.
	StateCommitted
)

var entryStateNames = [...]string{
	StateIssued:    "issued",
	StateExecuting: "executing",
	StateWritten:   "written",
	StateCommitted: "committed",
}

// String returns the state name.
func (s EntryState) String() string {
	if s < 0 || int(s) >= len(entryStateNames) {
		return "?"
	}
	return entryStateNames[s]
}

// Entry is one in-flight instruction in the reorder buffer.
type Entry struct {
	// State is the entry's lifecycle state.
	State EntryState

	// Inst is the instruction this entry tracks.
	Inst *insts.Instruction

	// Seq is a monotonically increasing allocation number, used for
	// age comparison across circular-buffer wraparound.
	Seq uint64

	// Dest/HasDest name the register the entry writes at commit.
	Dest    uint8
	HasDest bool

	// Result is the broadcast value (the register result, or the RET
	// target).
	Result emu.Word

	// StoreAddr/StoreValue carry a STORE's side effect from execution to
	// commit; speculative stores never touch memory before commit.
	StoreAddr  int
	StoreValue emu.Word

	// Err records a faulting access, surfaced only if the entry commits.
	// A squashed wrong-path fault is discarded with its entry.
	Err error

	// Branch resolution, filled at the end of execution.
	Taken       bool
	TargetIndex int

	// PredictedTaken is the direction fetch continued in after issue.
	// BEQ predicts not-taken unless eagerly resolved at issue.
	PredictedTaken bool

	// ResolvedAtIssue marks control transfers whose redirect already
	// happened at issue (CALL, eager BEQ, RET with a ready link
	// register); their write step must not redirect again.
	ResolvedAtIssue bool

	// Class/SlotIdx locate the owning reservation station so squash and
	// commit can release it. SlotReleased guards double release.
	Class        Class
	SlotIdx      int
	SlotReleased bool
}

// ROB is the reorder buffer: a fixed-capacity circular FIFO of in-flight
// instructions. Entries commit strictly in allocation order from the head;
// capacity bounds the in-flight count and a full buffer stalls issue.
type ROB struct {
	entries []Entry
	head    int
	count   int
	nextSeq uint64
}

// NewROB creates a reorder buffer with the given capacity.
func NewROB(capacity int) *ROB {
	return &ROB{entries: make([]Entry, capacity)}
}

// Capacity returns the buffer's fixed capacity.
func (r *ROB) Capacity() int {
	return len(r.entries)
}

// Len returns the number of in-flight entries.
func (r *ROB) Len() int {
	return r.count
}

// Empty reports whether no entries are in flight.
func (r *ROB) Empty() bool {
	return r.count == 0
}

// Full reports whether allocation would fail.
func (r *ROB) Full() bool {
	return r.count == len(r.entries)
}

// Alloc claims the tail entry for inst and returns its tag. It returns
// false, with no state change, when the buffer is full.
func (r *ROB) Alloc(inst *insts.Instruction) (emu.Tag, bool) {
	if r.Full() {
		return emu.NoTag, false
	}
	idx := (r.head + r.count) % len(r.entries)
	r.count++

	seq := r.nextSeq
	r.nextSeq++

	dest, hasDest := inst.DestRegister()
	r.entries[idx] = Entry{
		State:   StateIssued,
		Inst:    inst,
		Seq:     seq,
		Dest:    dest,
		HasDest: hasDest,
	}
	return emu.Tag(idx), true
}

// Entry returns the entry named by tag. The tag must be live.
func (r *ROB) Entry(tag emu.Tag) *Entry {
	return &r.entries[tag]
}

// Live reports whether tag names an in-flight entry with the given
// allocation number. A slot freed by commit or squash is not live.
func (r *ROB) Live(tag emu.Tag, seq uint64) bool {
	idx := int(tag)
	for k := 0; k < r.count; k++ {
		if (r.head+k)%len(r.entries) == idx {
			return r.entries[idx].Seq == seq
		}
	}
	return false
}

// Head returns the oldest in-flight entry and its tag.
func (r *ROB) Head() (emu.Tag, *Entry, bool) {
	if r.count == 0 {
		return emu.NoTag, nil, false
	}
	return emu.Tag(r.head), &r.entries[r.head], true
}

// PopHead retires the head entry. Only the head may commit; out-of-order
// commit is structurally impossible.
func (r *ROB) PopHead() {
	r.entries[r.head].State = StateCommitted
	r.head = (r.head + 1) % len(r.entries)
	r.count--
}

// Tail returns the youngest in-flight entry and its tag.
func (r *ROB) Tail() (emu.Tag, *Entry, bool) {
	if r.count == 0 {
		return emu.NoTag, nil, false
	}
	idx := (r.head + r.count - 1) % len(r.entries)
	return emu.Tag(idx), &r.entries[idx], true
}

// PopTail drops the youngest entry. Used only by squash, which walks the
// tail back to the mispredicted branch.
func (r *ROB) PopTail() {
	r.count--
}

// Walk calls fn for every in-flight entry in allocation order, oldest
// first, stopping early when fn returns false.
func (r *ROB) Walk(fn func(tag emu.Tag, e *Entry) bool) {
	for k := 0; k < r.count; k++ {
		idx := (r.head + k) % len(r.entries)
		if !fn(emu.Tag(idx), &r.entries[idx]) {
			return
		}
	}
}

// OlderStoreInFlight reports whether a STORE older than the entry named by
// tag is still uncommitted. The engine holds loads behind such stores;
// committed stores have already left the buffer.
func (r *ROB) OlderStoreInFlight(tag emu.Tag) bool {
	seq := r.entries[tag].Seq
	found := false
	r.Walk(func(_ emu.Tag, e *Entry) bool {
		if e.Seq >= seq {
			return false
		}
		if e.Inst.Op == insts.STORE {
			found = true
			return false
		}
		return true
	})
	return found
}
