// Package loader parses text assembly programs and data images for the
// simulator. One instruction per line, registers written R0..R7, memory
// operands written off(Rn). Blank lines and comments (# or ;) are skipped.
//
//	ADDI R1, R0, 5
//	LOAD R2, 4(R1)    # R2 = mem[R1+4]
//	BEQ  R1, R2, -2
package loader

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/sarchlab/tomsim/emu"
	"github.com/sarchlab/tomsim/insts"
)

var memOperandRe = regexp.MustCompile(`^(-?\d+)\(R(\d+)\)$`)

// Load reads and parses an assembly program from a file.
func Load(path string) ([]insts.Instruction, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open program file: %w", err)
	}
	defer func() { _ = f.Close() }()

	program, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return program, nil
}

// Parse reads an assembly program. Instructions receive consecutive
// program-order indices starting at zero.
func Parse(r io.Reader) ([]insts.Instruction, error) {
	var program []insts.Instruction

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := stripComment(scanner.Text())
		if line == "" {
			continue
		}

		inst, err := parseLine(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		inst.Index = len(program)
		program = append(program, inst)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read program: %w", err)
	}

	return program, nil
}

func stripComment(line string) string {
	if i := strings.IndexAny(line, "#;"); i >= 0 {
		line = line[:i]
	}
	return strings.TrimSpace(line)
}

func parseLine(line string) (insts.Instruction, error) {
	fields := strings.FieldsFunc(line, func(r rune) bool {
		return r == ' ' || r == '\t' || r == ','
	})
	mnemonic := strings.ToUpper(fields[0])
	operands := fields[1:]

	switch mnemonic {
	case "ADD", "NAND", "MUL":
		return parseThreeReg(mnemonic, operands)
	case "ADDI":
		return parseRegRegImm(insts.ADDI, operands)
	case "LOAD":
		return parseMemAccess(insts.LOAD, operands)
	case "STORE":
		return parseMemAccess(insts.STORE, operands)
	case "BEQ":
		return parseRegRegImm(insts.BEQ, operands)
	case "CALL":
		if len(operands) != 1 {
			return insts.Instruction{}, fmt.Errorf("CALL expects 1 operand, got %d", len(operands))
		}
		imm, err := parseImm(operands[0])
		if err != nil {
			return insts.Instruction{}, err
		}
		return insts.Instruction{Op: insts.CALL, Imm: imm}, nil
	case "RET":
		if len(operands) != 0 {
			return insts.Instruction{}, fmt.Errorf("RET expects no operands, got %d", len(operands))
		}
		return insts.Instruction{Op: insts.RET}, nil
	default:
		return insts.Instruction{}, fmt.Errorf("unknown mnemonic %q", fields[0])
	}
}

func parseThreeReg(mnemonic string, operands []string) (insts.Instruction, error) {
	var op insts.Opcode
	switch mnemonic {
	case "ADD":
		op = insts.ADD
	case "NAND":
		op = insts.NAND
	case "MUL":
		op = insts.MUL
	}

	if len(operands) != 3 {
		return insts.Instruction{}, fmt.Errorf("%s expects 3 operands, got %d", mnemonic, len(operands))
	}
	rd, err := parseReg(operands[0])
	if err != nil {
		return insts.Instruction{}, err
	}
	ra, err := parseReg(operands[1])
	if err != nil {
		return insts.Instruction{}, err
	}
	rb, err := parseReg(operands[2])
	if err != nil {
		return insts.Instruction{}, err
	}
	return insts.Instruction{Op: op, Rd: rd, Ra: ra, Rb: rb}, nil
}

// parseRegRegImm covers ADDI (Rd, Ra, imm) and BEQ (Ra, Rb, offset); the
// two register operands land in the fields each opcode reads.
func parseRegRegImm(op insts.Opcode, operands []string) (insts.Instruction, error) {
	if len(operands) != 3 {
		return insts.Instruction{}, fmt.Errorf("%s expects 3 operands, got %d", op, len(operands))
	}
	r1, err := parseReg(operands[0])
	if err != nil {
		return insts.Instruction{}, err
	}
	r2, err := parseReg(operands[1])
	if err != nil {
		return insts.Instruction{}, err
	}
	imm, err := parseImm(operands[2])
	if err != nil {
		return insts.Instruction{}, err
	}

	if op == insts.BEQ {
		return insts.Instruction{Op: op, Ra: r1, Rb: r2, Imm: imm}, nil
	}
	return insts.Instruction{Op: op, Rd: r1, Ra: r2, Imm: imm}, nil
}

func parseMemAccess(op insts.Opcode, operands []string) (insts.Instruction, error) {
	if len(operands) != 2 {
		return insts.Instruction{}, fmt.Errorf("%s expects 2 operands, got %d", op, len(operands))
	}
	rd, err := parseReg(operands[0])
	if err != nil {
		return insts.Instruction{}, err
	}

	m := memOperandRe.FindStringSubmatch(strings.ToUpper(operands[1]))
	if m == nil {
		return insts.Instruction{}, fmt.Errorf("invalid memory operand %q, want off(Rn)", operands[1])
	}
	offset, err := strconv.ParseInt(m[1], 10, 32)
	if err != nil {
		return insts.Instruction{}, fmt.Errorf("invalid displacement %q: %w", m[1], err)
	}
	base, err := strconv.ParseUint(m[2], 10, 8)
	if err != nil {
		return insts.Instruction{}, fmt.Errorf("invalid base register R%s: %w", m[2], err)
	}

	return insts.Instruction{Op: op, Rd: rd, Ra: uint8(base), Imm: int32(offset)}, nil
}

func parseReg(s string) (uint8, error) {
	s = strings.ToUpper(s)
	if !strings.HasPrefix(s, "R") {
		return 0, fmt.Errorf("invalid register %q", s)
	}
	n, err := strconv.ParseUint(s[1:], 10, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid register %q: %w", s, err)
	}
	return uint8(n), nil
}

func parseImm(s string) (int32, error) {
	n, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid immediate %q: %w", s, err)
	}
	return int32(n), nil
}

// LoadData reads a memory image from a file.
func LoadData(path string) (map[int]emu.Word, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open data file: %w", err)
	}
	defer func() { _ = f.Close() }()

	image, err := ParseData(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return image, nil
}

// ParseData reads a memory image: one "addr value" pair per line, with the
// same blank-line and comment rules as Parse.
func ParseData(r io.Reader) (map[int]emu.Word, error) {
	image := make(map[int]emu.Word)

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := stripComment(scanner.Text())
		if line == "" {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, fmt.Errorf("line %d: want \"addr value\", got %q", lineNo, line)
		}
		addr, err := strconv.Atoi(fields[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid address %q: %w", lineNo, fields[0], err)
		}
		value, err := strconv.ParseInt(fields[1], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid value %q: %w", lineNo, fields[1], err)
		}
		image[addr] = emu.Word(value)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read data file: %w", err)
	}

	return image, nil
}
