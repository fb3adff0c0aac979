// Package insts provides the instruction definitions for the simulated ISA.
//
// The ISA is a small RiSC-16-style machine: eight general-purpose registers
// (R0 hardwired to zero), word-addressable memory, and nine opcodes covering
// arithmetic, logic, memory access, and control transfer. Instructions are
// immutable once decoded; the scheduling engine references them by their
// program-order index and never mutates them.
//
// Usage:
//
//	inst := insts.Instruction{Index: 0, Op: insts.ADD, Rd: 1, Ra: 2, Rb: 3}
//	fmt.Println(inst.String()) // "ADD R1, R2, R3"
package insts

import "fmt"

// Opcode identifies an instruction's operation.
type Opcode int

const (
	// ADD computes Rd = Ra + Rb.
	ADD Opcode = iota
	// ADDI computes Rd = Ra + Imm.
	ADDI
	// NAND computes Rd = ^(Ra & Rb).
	NAND
	// MUL computes Rd = low word of Ra * Rb.
	MUL
	// LOAD reads Rd = mem[Ra + Imm].
	LOAD
	// STORE writes mem[Ra + Imm] = Rd. The memory write happens at commit.
	STORE
	// BEQ branches to Index+1+Imm when Ra == Rb.
	BEQ
	// CALL links R1 = Index+1 and transfers control to Imm.
	CALL
	// RET transfers control to the address in R1.
	RET
)

var opcodeNames = [...]string{
	ADD:   "ADD",
	ADDI:  "ADDI",
	NAND:  "NAND",
	MUL:   "MUL",
	LOAD:  "LOAD",
	STORE: "STORE",
	BEQ:   "BEQ",
	CALL:  "CALL",
	RET:   "RET",
}

// String returns the assembly mnemonic for the opcode.
func (op Opcode) String() string {
	if op < 0 || int(op) >= len(opcodeNames) {
		return fmt.Sprintf("Opcode(%d)", int(op))
	}
	return opcodeNames[op]
}

// LinkRegister is the register that CALL writes its return address to and
// RET reads its target from.
const LinkRegister uint8 = 1

// Instruction is one decoded instruction. Field usage depends on Op:
//
//   - ADD/NAND/MUL: Rd, Ra, Rb
//   - ADDI: Rd, Ra, Imm
//   - LOAD/STORE: Rd (destination / store source), Ra (base), Imm (offset)
//   - BEQ: Ra, Rb, Imm (word offset relative to Index+1)
//   - CALL: Imm (absolute target index)
//   - RET: no operands
type Instruction struct {
	// Index is the zero-based program-order index, assigned by the loader.
	Index int

	// Op is the operation.
	Op Opcode

	// Rd is the destination register (or the value source for STORE).
	Rd uint8

	// Ra is the first source register (the base register for LOAD/STORE).
	Ra uint8

	// Rb is the second source register.
	Rb uint8

	// Imm is the immediate: the ADDI addend, the LOAD/STORE displacement,
	// the BEQ offset, or the CALL target.
	Imm int32
}

// WritesRegister reports whether the instruction produces a register result.
func (i *Instruction) WritesRegister() bool {
	switch i.Op {
	case ADD, ADDI, NAND, MUL, LOAD, CALL:
		return true
	default:
		return false
	}
}

// DestRegister returns the register the instruction writes, and whether it
// writes one at all. CALL writes the link register.
func (i *Instruction) DestRegister() (uint8, bool) {
	switch i.Op {
	case ADD, ADDI, NAND, MUL, LOAD:
		return i.Rd, true
	case CALL:
		return LinkRegister, true
	default:
		return 0, false
	}
}

// IsMemAccess reports whether the instruction addresses memory.
func (i *Instruction) IsMemAccess() bool {
	return i.Op == LOAD || i.Op == STORE
}

// IsControl reports whether the instruction can redirect fetch.
func (i *Instruction) IsControl() bool {
	return i.Op == BEQ || i.Op == CALL || i.Op == RET
}

// BranchTarget returns the fetch index a taken BEQ transfers to.
func (i *Instruction) BranchTarget() int {
	return i.Index + 1 + int(i.Imm)
}

// String renders the instruction in loader syntax.
func (i *Instruction) String() string {
	switch i.Op {
	case ADD, NAND, MUL:
		return fmt.Sprintf("%s R%d, R%d, R%d", i.Op, i.Rd, i.Ra, i.Rb)
	case ADDI:
		return fmt.Sprintf("%s R%d, R%d, %d", i.Op, i.Rd, i.Ra, i.Imm)
	case LOAD, STORE:
		return fmt.Sprintf("%s R%d, %d(R%d)", i.Op, i.Rd, i.Imm, i.Ra)
	case BEQ:
		return fmt.Sprintf("%s R%d, R%d, %d", i.Op, i.Ra, i.Rb, i.Imm)
	case CALL:
		return fmt.Sprintf("%s %d", i.Op, i.Imm)
	case RET:
		return i.Op.String()
	default:
		return fmt.Sprintf("%s ?", i.Op)
	}
}
