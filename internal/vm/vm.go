// Package vm provides a minimal, deterministic stand-in for the VM that
// executes a function over field-element arguments and reports the
// control-flow path it took. It exists only so the rest of cairofuzz — the
// mutation engine, the feedback database, the worker loops — has something
// real to drive end-to-end; it makes no claim to be a Cairo VM.
//
// A Program is a flat list of Instructions. Execute interprets them against
// an input vector, producing the ordered (from, to) program-counter
// transitions that make up a Trace. Only OpEmitEdge and a taken
// OpDecAndLoop jump record a trace edge — straight-line arithmetic is
// invisible to coverage, the same way a real VM's trace only records
// control-flow transitions, not every bytecode step.
package vm

import (
	"errors"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/cairo-fuzz/cairofuzz/pkg/felt"
)

// Opcode identifies an Instruction's operation.
type Opcode int

const (
	// OpLoadArg pushes input[A] onto the operand stack.
	OpLoadArg Opcode = iota
	// OpConst pushes the literal value A onto the operand stack.
	OpConst
	// OpMod pops b, a (in that order) and pushes a % b. b == 0 pushes 0.
	OpMod
	// OpAdd pops b, a and pushes a + b.
	OpAdd
	// OpFailIfEqual pops b, a; if a == b, execution fails with a VMError.
	OpFailIfEqual
	// OpEmitEdge unconditionally records a trace edge (pc, A) and falls
	// through to the next instruction. It is the primitive fixtures use
	// to pin down an exact, input-independent trace.
	OpEmitEdge
	// OpDecAndLoop pops a counter. If it is greater than zero, it records
	// one trace edge (pc, pc), pushes the decremented counter and jumps to
	// A; once the counter reaches zero it falls through without recording
	// an edge. With A set to the instruction's own pc it loops on itself,
	// so running it with counter == N contributes exactly N edges to the
	// trace.
	OpDecAndLoop
	// OpHalt stops execution without recording an edge.
	OpHalt
)

// Instruction is one step of a Program.
type Instruction struct {
	Op Opcode
	A  int64
}

// Program is the decoded, executable form of the function under fuzz.
type Program struct {
	Instructions []Instruction
}

// MaxSteps bounds interpretation so a malformed or adversarial Program
// cannot hang a worker forever; exceeding it is reported as a VMError,
// which the workers classify as a crash like any other VM failure.
const MaxSteps = 1 << 16

// VMError is returned when the VM fails to execute an input. Its message
// is carried verbatim into the crash log line.
type VMError struct {
	Message string
}

func (e *VMError) Error() string { return e.Message }

var errStackUnderflow = &VMError{Message: "stack underflow"}
var errStepLimitExceeded = &VMError{Message: "step limit exceeded"}

// Trace is the ordered sequence of (from, to) program-counter transitions
// produced by one execution. Equality is structural: same length, same
// pairs, same order.
type Trace []Edge

// Edge is one (from_offset, to_offset) transition.
type Edge struct {
	From uint32
	To   uint32
}

// Equal reports whether two traces hold the same edges in the same order.
func (t Trace) Equal(other Trace) bool {
	if len(t) != len(other) {
		return false
	}
	for i := range t {
		if t[i] != other[i] {
			return false
		}
	}
	return true
}

// Key returns a comparable representation of t suitable for use as a Go map
// key, since a coverage map is keyed by trace content, not identity.
func (t Trace) Key() string {
	b := make([]byte, 0, len(t)*8)
	for _, e := range t {
		b = append(b,
			byte(e.From>>24), byte(e.From>>16), byte(e.From>>8), byte(e.From),
			byte(e.To>>24), byte(e.To>>16), byte(e.To>>8), byte(e.To),
		)
	}
	return string(b)
}

// Default builds the built-in demonstration program used when the
// artifact carries no explicit instruction stream: it fails if input[0]
// equals 42, and otherwise produces a trace of exactly input[0] mod 8
// edges, so both a crash on a specific value and coverage growth tracking
// input[0] mod 8 can be exercised against the same artifact.
func Default() *Program {
	return &Program{
		Instructions: []Instruction{
			{Op: OpLoadArg, A: 0},    // 0: push input[0]
			{Op: OpConst, A: 42},     // 1: push 42
			{Op: OpFailIfEqual},      // 2: fail if input[0] == 42
			{Op: OpLoadArg, A: 0},    // 3: push input[0]
			{Op: OpConst, A: 8},      // 4: push 8
			{Op: OpMod},              // 5: push input[0] mod 8
			{Op: OpDecAndLoop, A: 6}, // 6: loop on self, one edge per unit of input[0] mod 8
			{Op: OpHalt},             // 7
		},
	}
}

// NoOp builds a program that always produces the same single-edge trace
// regardless of input.
func NoOp() *Program {
	return &Program{
		Instructions: []Instruction{
			{Op: OpEmitEdge, A: 1},
			{Op: OpHalt},
		},
	}
}

// FunctionDescriptor is the subset of artifact.FunctionDescriptor the VM
// needs, duplicated here to keep this package free of a dependency on
// internal/artifact.
type FunctionDescriptor struct {
	Name       string
	Entrypoint string
	NumArgs    int
}

// opcodeNames maps the textual opcode names an artifact's "code" array
// uses onto this package's Opcode values. Textual names, rather than raw
// integers, are what a hand-authored or generated artifact fixture can
// reasonably be expected to carry.
var opcodeNames = map[string]Opcode{
	"load_arg":      OpLoadArg,
	"const":         OpConst,
	"mod":           OpMod,
	"add":           OpAdd,
	"fail_if_equal": OpFailIfEqual,
	"emit_edge":     OpEmitEdge,
	"dec_and_loop":  OpDecAndLoop,
	"halt":          OpHalt,
}

// Load decodes a Program from an artifact's raw JSON bytes, per
// SPEC_FULL.md §5: the artifact may carry a top-level "code" object
// mapping a function's entrypoint (falling back to its name, since
// hand-authored fixtures often key by name for readability) to an array
// of {"op": ..., "a": ...} instruction objects using the opcode names in
// opcodeNames. It is built on tidwall/gjson, the same ad hoc JSON-query
// library internal/artifact uses to walk the rest of the artifact, rather
// than a generated struct, since "code" entries are keyed by arbitrary
// per-function strings with no fixed schema.
//
// If the artifact carries no "code" entry for fn (the common case for
// fixtures that only exercise the VM's built-in demonstration behavior),
// Load falls back to Default() — the extension point a real Cairo VM
// integration would replace entirely.
func Load(artifactJSON []byte, fn FunctionDescriptor) (*Program, error) {
	if len(artifactJSON) == 0 {
		return nil, errors.New("vm: empty artifact")
	}

	root := gjson.ParseBytes(artifactJSON)
	if !root.Exists() {
		return nil, errors.New("vm: could not parse artifact JSON")
	}

	code := root.Get("code")
	if code.Exists() && code.IsObject() {
		for _, key := range []string{fn.Entrypoint, fn.Name} {
			if key == "" {
				continue
			}
			entry := code.Get(gjson.Escape(key))
			if entry.Exists() && entry.IsArray() {
				return decodeProgram(entry)
			}
		}
	}

	return Default(), nil
}

// decodeProgram decodes one "code" array entry into a Program.
func decodeProgram(arr gjson.Result) (*Program, error) {
	var instructions []Instruction
	var decodeErr error

	arr.ForEach(func(_, v gjson.Result) bool {
		name := v.Get("op").String()
		op, ok := opcodeNames[name]
		if !ok {
			decodeErr = fmt.Errorf("vm: unknown opcode %q", name)
			return false
		}
		instructions = append(instructions, Instruction{Op: op, A: v.Get("a").Int()})
		return true
	})
	if decodeErr != nil {
		return nil, decodeErr
	}

	return &Program{Instructions: instructions}, nil
}

// Execute runs program against input and returns the Trace it produces, or
// a VMError. It is a pure function: identical (program, input) always
// yields an identical result, so every input recorded against a trace in
// the coverage map reproduces that exact trace when executed again.
func Execute(program *Program, functionName string, input felt.Input) (Trace, error) {
	var stack []uint64
	pop := func() (uint64, error) {
		if len(stack) == 0 {
			return 0, errStackUnderflow
		}
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return v, nil
	}
	push := func(v uint64) { stack = append(stack, v) }

	var trace Trace
	pc := 0
	steps := 0
	for pc < len(program.Instructions) {
		steps++
		if steps > MaxSteps {
			return nil, errStepLimitExceeded
		}

		ins := program.Instructions[pc]
		next := pc + 1

		switch ins.Op {
		case OpLoadArg:
			idx := int(ins.A)
			if idx < 0 || idx >= len(input) {
				return nil, &VMError{Message: fmt.Sprintf("load_arg: index %d out of range", idx)}
			}
			push(input[idx].Uint64())

		case OpConst:
			push(uint64(ins.A))

		case OpAdd:
			b, err := pop()
			if err != nil {
				return nil, err
			}
			a, err := pop()
			if err != nil {
				return nil, err
			}
			push(a + b)

		case OpMod:
			b, err := pop()
			if err != nil {
				return nil, err
			}
			a, err := pop()
			if err != nil {
				return nil, err
			}
			if b == 0 {
				push(0)
			} else {
				push(a % b)
			}

		case OpFailIfEqual:
			b, err := pop()
			if err != nil {
				return nil, err
			}
			a, err := pop()
			if err != nil {
				return nil, err
			}
			if a == b {
				return nil, &VMError{Message: fmt.Sprintf("assertion failed: %d == %d", a, b)}
			}

		case OpEmitEdge:
			trace = append(trace, Edge{From: uint32(pc), To: uint32(ins.A)})

		case OpDecAndLoop:
			v, err := pop()
			if err != nil {
				return nil, err
			}
			if v > 0 {
				trace = append(trace, Edge{From: uint32(pc), To: uint32(pc)})
				push(v - 1)
				next = int(ins.A)
			}

		case OpHalt:
			return trace, nil

		default:
			return nil, &VMError{Message: fmt.Sprintf("unknown opcode %d", ins.Op)}
		}

		pc = next
	}

	return trace, nil
}
