package tomasulo

// Timeline records the cycle at which one static instruction reached each
// lifecycle step. Cycles are numbered from 1; zero means the step was never
// reached. When a squashed instruction is fetched again (a loop body, or
// the correct path after a misprediction), its timeline restarts and keeps
// the cycles of the latest dynamic instance.
type Timeline struct {
	// Issue is the cycle the instruction was issued.
	Issue uint64

	// StartExec is the first cycle of execution.
	StartExec uint64

	// FinishExec is the last cycle of execution.
	FinishExec uint64

	// WriteResult is the cycle the result was broadcast.
	WriteResult uint64

	// Commit is the cycle the instruction retired.
	Commit uint64

	// Squashed marks an instance invalidated by a mispredicted branch.
	Squashed bool
}

// Committed reports whether the instruction retired.
func (t Timeline) Committed() bool {
	return t.Commit != 0
}
