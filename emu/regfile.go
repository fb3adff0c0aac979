// Package emu provides the architectural state of the simulated machine:
// the register file and the word-addressable memory.
package emu

// Word is the machine word. All register and memory values are 32-bit
// signed words; arithmetic wraps and MUL keeps the low 32 bits.
type Word int32

// Tag names the in-flight reorder-buffer entry that will produce a
// register's next value. Tags are small slot indices, never strings, so
// listeners compare by identity.
type Tag int

// NoTag marks a register with no outstanding producer.
const NoTag Tag = -1

// RegFile represents the register file.
// Register 0 is hardwired to zero: reads return 0 and writes are dropped.
// Each register additionally carries a producer tag used for renaming; a
// later SetTag overwrites an earlier one (only the last writer before a
// read matters for RAW resolution).
type RegFile struct {
	values []Word
	tags   []Tag
}

// NewRegFile creates a register file with n registers, all zero and untagged.
func NewRegFile(n int) *RegFile {
	tags := make([]Tag, n)
	for i := range tags {
		tags[i] = NoTag
	}
	return &RegFile{
		values: make([]Word, n),
		tags:   tags,
	}
}

// Count returns the number of registers.
func (r *RegFile) Count() int {
	return len(r.values)
}

// Read returns a register's architectural value. Register 0 reads as 0.
func (r *RegFile) Read(reg uint8) Word {
	if reg == 0 {
		return 0
	}
	return r.values[reg]
}

// Write sets a register's architectural value. Writes to register 0 are
// dropped.
func (r *RegFile) Write(reg uint8, value Word) {
	if reg == 0 {
		return
	}
	r.values[reg] = value
}

// Tag returns the register's producer tag, or NoTag when the register is
// ready. Register 0 is never tagged.
func (r *RegFile) Tag(reg uint8) Tag {
	if reg == 0 {
		return NoTag
	}
	return r.tags[reg]
}

// SetTag renames the register to the given producer. Tagging register 0 is
// dropped, matching the write behavior.
func (r *RegFile) SetTag(reg uint8, tag Tag) {
	if reg == 0 {
		return
	}
	r.tags[reg] = tag
}

// ClearTag marks the register ready.
func (r *RegFile) ClearTag(reg uint8) {
	if reg == 0 {
		return
	}
	r.tags[reg] = NoTag
}

// ClearTagsOf removes every tag naming the given producer. Registers
// renamed to a newer producer are untouched.
func (r *RegFile) ClearTagsOf(tag Tag) {
	for i := range r.tags {
		if r.tags[i] == tag {
			r.tags[i] = NoTag
		}
	}
}
