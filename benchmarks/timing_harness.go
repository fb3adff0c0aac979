package benchmarks

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/sarchlab/tomsim/timing/core"
	"github.com/sarchlab/tomsim/timing/latency"
	"github.com/sarchlab/tomsim/timing/tomasulo"
)

// maxBenchmarkCycles bounds a single run; a benchmark that has not
// quiesced by then is reported as a failure rather than hanging the
// harness.
const maxBenchmarkCycles = 1_000_000

// Result holds the timing results for a single benchmark run.
type Result struct {
	// Name identifies the benchmark.
	Name string `json:"name"`

	// Description explains what the benchmark measures.
	Description string `json:"description"`

	// Cycles is the total cycle count.
	Cycles uint64 `json:"cycles"`

	// Committed is the number of retired instructions.
	Committed uint64 `json:"committed"`

	// Issued counts every issue, including later-squashed instructions.
	Issued uint64 `json:"issued"`

	// Squashed counts instructions discarded by misprediction recovery.
	Squashed uint64 `json:"squashed"`

	// IssueStalls counts cycles fetch held an instruction for want of a
	// station slot or reorder-buffer entry.
	IssueStalls uint64 `json:"issue_stalls"`

	// Mispredictions counts branches resolved against the fetched path.
	Mispredictions uint64 `json:"mispredictions"`

	// IPC is committed instructions per cycle; CPI is its inverse.
	IPC float64 `json:"ipc"`
	CPI float64 `json:"cpi"`

	// WallTime is the host time taken to run the simulation.
	WallTime time.Duration `json:"wall_time_ns"`
}

// Run executes one benchmark on the given machine shape, verifies its
// expected architectural results, and returns the timing numbers.
func Run(b Benchmark, cfg *latency.Config, opts ...tomasulo.Option) (Result, error) {
	c, err := core.NewCore(b.Program, cfg, opts...)
	if err != nil {
		return Result{}, fmt.Errorf("benchmark %s: %w", b.Name, err)
	}
	if b.Setup != nil {
		b.Setup(c.RegFile(), c.Memory())
	}

	start := time.Now()
	cycles, quiesced, err := c.Run(maxBenchmarkCycles)
	wall := time.Since(start)
	if err != nil {
		return Result{}, fmt.Errorf("benchmark %s: %w", b.Name, err)
	}
	if !quiesced {
		return Result{}, fmt.Errorf("benchmark %s: no quiescence after %d cycles", b.Name, cycles)
	}

	for reg, want := range b.ExpectedRegs {
		if got := c.RegFile().Read(reg); got != want {
			return Result{}, fmt.Errorf("benchmark %s: R%d = %d, want %d", b.Name, reg, got, want)
		}
	}
	for addr, want := range b.ExpectedMem {
		got, err := c.Memory().Load(addr)
		if err != nil {
			return Result{}, fmt.Errorf("benchmark %s: %w", b.Name, err)
		}
		if got != want {
			return Result{}, fmt.Errorf("benchmark %s: mem[%d] = %d, want %d", b.Name, addr, got, want)
		}
	}

	stats := c.Stats()
	return Result{
		Name:           b.Name,
		Description:    b.Description,
		Cycles:         stats.Cycles,
		Committed:      stats.Committed,
		Issued:         stats.Issued,
		Squashed:       stats.Squashed,
		IssueStalls:    stats.IssueStalls,
		Mispredictions: stats.Mispredictions,
		IPC:            stats.IPC(),
		CPI:            stats.CPI(),
		WallTime:       wall,
	}, nil
}

// RunAll runs every benchmark in the set and collects the results,
// stopping at the first failure.
func RunAll(set []Benchmark, cfg *latency.Config, opts ...tomasulo.Option) ([]Result, error) {
	results := make([]Result, 0, len(set))
	for _, b := range set {
		r, err := Run(b, cfg, opts...)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, nil
}

// WriteResults writes the collected results as indented JSON.
func WriteResults(w io.Writer, results []Result) error {
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize results: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write results: %w", err)
	}
	_, err = fmt.Fprintln(w)
	return err
}
