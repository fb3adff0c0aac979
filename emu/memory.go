package emu

import "fmt"

// BoundsError reports a memory access outside the configured size.
// Out-of-range addresses are never clamped; the access that produced the
// error is fatal to the run.
type BoundsError struct {
	// Addr is the offending word address.
	Addr int
	// Size is the configured memory size in words.
	Size int
}

func (e *BoundsError) Error() string {
	return fmt.Sprintf("memory address %d out of bounds (size %d)", e.Addr, e.Size)
}

// Memory is a flat, word-addressable memory.
type Memory struct {
	words []Word
}

// NewMemory creates a memory of the given size in words, zero-filled.
func NewMemory(size int) *Memory {
	return &Memory{words: make([]Word, size)}
}

// Size returns the memory size in words.
func (m *Memory) Size() int {
	return len(m.words)
}

// Load reads the word at addr.
func (m *Memory) Load(addr int) (Word, error) {
	if addr < 0 || addr >= len(m.words) {
		return 0, &BoundsError{Addr: addr, Size: len(m.words)}
	}
	return m.words[addr], nil
}

// Store writes the word at addr.
func (m *Memory) Store(addr int, value Word) error {
	if addr < 0 || addr >= len(m.words) {
		return &BoundsError{Addr: addr, Size: len(m.words)}
	}
	m.words[addr] = value
	return nil
}
