// Package main provides the entry point for tomsim.
// Tomsim is a cycle-accurate simulator of dynamic instruction scheduling
// with register renaming, a reorder buffer, and branch speculation.
//
// For the full CLI, use: go run ./cmd/tomsim
package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Println("tomsim - dynamic instruction scheduling simulator")
	fmt.Println("")
	fmt.Println("Usage: tomsim [options] <program.asm>")
	fmt.Println("")
	fmt.Println("Options:")
	fmt.Println("  -config       Path to machine configuration JSON file")
	fmt.Println("  -data         Path to memory image file")
	fmt.Println("  -max-cycles   Stop after this many cycles")
	fmt.Println("  -eager-branch Resolve ready branches at issue time")
	fmt.Println("  -trace        Print per-cycle scheduling events")
	fmt.Println("  -v            Verbose output")
	fmt.Println("")
	fmt.Println("Run 'go run ./cmd/tomsim' for the full CLI.")

	if len(os.Args) > 1 {
		fmt.Println("\nNote: You provided arguments. Use 'go run ./cmd/tomsim' instead.")
	}
}
