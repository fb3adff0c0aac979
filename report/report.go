// Package report renders simulation results: the per-instruction execution
// table and the run summary.
package report

import (
	"fmt"
	"io"
	"os"

	"github.com/sarchlab/akita/v4/sim"
	"golang.org/x/term"

	"github.com/sarchlab/tomsim/insts"
	"github.com/sarchlab/tomsim/timing/tomasulo"
)

const (
	ansiBold  = "\x1b[1m"
	ansiReset = "\x1b[0m"
)

// isTerminal reports whether w is an interactive terminal; the table header
// is bold only then, so piped output stays plain.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// cell formats a cycle stamp, with "-" for a step never reached.
func cell(cycle uint64) string {
	if cycle == 0 {
		return "-"
	}
	return fmt.Sprintf("%d", cycle)
}

// WriteTable renders the per-instruction execution table: one row per
// static instruction with the cycle of each lifecycle step. Instructions
// whose latest dynamic instance was squashed are marked.
func WriteTable(w io.Writer, program []insts.Instruction, timelines []tomasulo.Timeline) {
	header := fmt.Sprintf("%-24s%-8s%-12s%-13s%-14s%-8s",
		"Instruction", "Issue", "Start Exec", "Finish Exec", "Write Result", "Commit")
	if isTerminal(w) {
		fmt.Fprintf(w, "%s%s%s\n", ansiBold, header, ansiReset)
	} else {
		fmt.Fprintln(w, header)
	}

	for i := range program {
		inst := &program[i]
		tl := timelines[i]

		text := inst.String()
		if tl.Squashed && !tl.Committed() {
			text += " (squashed)"
		}
		fmt.Fprintf(w, "%-24s%-8s%-12s%-13s%-14s%-8s\n",
			text,
			cell(tl.Issue),
			cell(tl.StartExec),
			cell(tl.FinishExec),
			cell(tl.WriteResult),
			cell(tl.Commit))
	}
}

// WriteSummary renders the run totals: cycle count, committed instruction
// count, IPC and CPI, stall and misprediction counters, and the simulated
// wall time at the configured clock.
func WriteSummary(w io.Writer, stats tomasulo.Statistics, freq sim.Freq) {
	fmt.Fprintf(w, "Total cycles:        %d\n", stats.Cycles)
	fmt.Fprintf(w, "Committed:           %d\n", stats.Committed)
	fmt.Fprintf(w, "Issued:              %d\n", stats.Issued)
	fmt.Fprintf(w, "Squashed:            %d\n", stats.Squashed)
	fmt.Fprintf(w, "Issue stalls:        %d\n", stats.IssueStalls)
	fmt.Fprintf(w, "Mispredictions:      %d\n", stats.Mispredictions)
	fmt.Fprintf(w, "IPC:                 %.3f\n", stats.IPC())
	fmt.Fprintf(w, "CPI:                 %.3f\n", stats.CPI())
	if freq > 0 {
		seconds := float64(stats.Cycles) / float64(freq)
		fmt.Fprintf(w, "Simulated time:      %.3e s @ %.0f MHz\n",
			seconds, float64(freq)/1e6)
	}
}
