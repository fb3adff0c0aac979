package tomasulo

// Statistics holds counters for one simulation run.
type Statistics struct {
	// Cycles is the total number of cycles simulated.
	Cycles uint64
	// Committed is the number of instructions retired.
	Committed uint64
	// Issued is the number of dynamic instructions issued, including ones
	// later squashed.
	Issued uint64
	// Squashed is the number of in-flight instructions invalidated by
	// branch mispredictions.
	Squashed uint64
	// IssueStalls is the number of cycles issue was blocked by a full
	// station pool or a full reorder buffer.
	IssueStalls uint64
	// Mispredictions is the number of control transfers resolved against
	// the direction fetch had continued in.
	Mispredictions uint64
	// Broadcasts is the number of results delivered on the common data
	// bus.
	Broadcasts uint64
}

// IPC returns committed instructions per cycle.
func (s Statistics) IPC() float64 {
	if s.Cycles == 0 {
		return 0
	}
	return float64(s.Committed) / float64(s.Cycles)
}

// CPI returns cycles per committed instruction.
func (s Statistics) CPI() float64 {
	if s.Committed == 0 {
		return 0
	}
	return float64(s.Cycles) / float64(s.Committed)
}
