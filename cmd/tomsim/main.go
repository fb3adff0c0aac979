// Package main provides the entry point for tomsim, a cycle-accurate
// simulator of dynamic instruction scheduling with register renaming and
// speculative execution.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/sarchlab/tomsim/loader"
	"github.com/sarchlab/tomsim/report"
	"github.com/sarchlab/tomsim/timing/core"
	"github.com/sarchlab/tomsim/timing/latency"
	"github.com/sarchlab/tomsim/timing/tomasulo"
)

var (
	configPath  = flag.String("config", "", "Path to machine configuration JSON file")
	dataPath    = flag.String("data", "", "Path to memory image file (addr value per line)")
	maxCycles   = flag.Uint64("max-cycles", 0, "Stop after this many cycles (0 = run to quiescence)")
	eagerBranch = flag.Bool("eager-branch", false, "Resolve ready branches at issue time")
	traceRun    = flag.Bool("trace", false, "Print per-cycle scheduling events")
	verbose     = flag.Bool("v", false, "Verbose output")
)

func main() {
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: tomsim [options] <program.asm>\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	programPath := flag.Arg(0)

	program, err := loader.Load(programPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading program: %v\n", err)
		os.Exit(1)
	}

	cfg := latency.DefaultConfig()
	if *configPath != "" {
		cfg, err = latency.LoadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
	}

	var opts []tomasulo.Option
	if *eagerBranch {
		opts = append(opts, tomasulo.WithEagerBranchResolution())
	}
	if *traceRun {
		opts = append(opts, tomasulo.WithTrace(os.Stdout))
	}

	c, err := core.NewCore(program, cfg, opts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if *dataPath != "" {
		image, err := loader.LoadData(*dataPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading data image: %v\n", err)
			os.Exit(1)
		}
		if err := c.InitMemory(image); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	if *verbose {
		fmt.Printf("Loaded: %s (%d instructions)\n", programPath, len(program))
		fmt.Printf("ROB capacity: %d, registers: %d, memory: %d words\n\n",
			cfg.ROBCapacity, cfg.RegisterCount, cfg.MemorySize)
	}

	cycles, quiesced, err := c.Run(*maxCycles)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Simulation aborted: %v\n", err)
		os.Exit(1)
	}
	if !quiesced {
		fmt.Fprintf(os.Stderr, "Warning: cycle limit reached after %d cycles\n\n", cycles)
	}

	report.WriteTable(os.Stdout, program, c.Timelines())
	fmt.Println()
	report.WriteSummary(os.Stdout, c.Stats(), cfg.ClockFreq)

	if *verbose {
		fmt.Println()
		regFile := c.RegFile()
		for reg := 0; reg < regFile.Count(); reg++ {
			fmt.Printf("R%d = %d\n", reg, regFile.Read(uint8(reg)))
		}
	}
}
