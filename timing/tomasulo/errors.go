package tomasulo

import "fmt"

// OperandError reports an instruction whose register operand is outside
// the configured register file. The instruction stream is assumed to be
// statically well formed, so this is fatal: the run aborts with the
// offending instruction's index.
type OperandError struct {
	// InstIndex is the program-order index of the offending instruction.
	InstIndex int
	// Reg is the out-of-range register.
	Reg uint8
	// RegCount is the configured register count.
	RegCount int
}

func (e *OperandError) Error() string {
	return fmt.Sprintf("instruction %d: register R%d out of range (register count %d)",
		e.InstIndex, e.Reg, e.RegCount)
}
