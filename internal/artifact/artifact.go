// Package artifact parses the JSON artifact describing a callable function
// over a finite field. The parser walks the top-level "identifiers" object
// looking for a function entry whose final
// dotted segment matches the requested function name, then reads the
// sibling "{key}.Args" identifier for its argument count and types.
//
// It is built on tidwall/gjson rather than encoding/json + a generated
// struct, the same ad hoc path-query style the teacher project's
// internal/state/extractor.go and internal/scenario/flow.go use for
// picking values out of untyped JSON bodies — the artifact's "identifiers"
// object has no fixed schema (its keys are themselves dotted Cairo
// identifier paths), so a field-by-field struct would just re-derive what
// gjson already does.
package artifact

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// FunctionDescriptor is the immutable description of the function under
// fuzz: its name, entrypoint offset, and argument shape.
type FunctionDescriptor struct {
	Name       string
	Entrypoint string
	NumArgs    int
	TypeArgs   []string
	Hints      bool
	Decorators []string
}

// ErrFunctionNotFound is returned by Parse when no identifier matches
// functionName.
type ErrFunctionNotFound struct {
	FunctionName string
}

func (e *ErrFunctionNotFound) Error() string {
	return fmt.Sprintf("artifact: function %q not found in identifiers", e.FunctionName)
}

// Parse reads the JSON artifact in data and returns the FunctionDescriptor
// for functionName.
func Parse(data []byte, functionName string) (*FunctionDescriptor, error) {
	root := gjson.ParseBytes(data)
	if !root.Exists() {
		return nil, fmt.Errorf("artifact: could not parse JSON")
	}

	hints := false
	if h := root.Get("hints"); h.Exists() && h.IsObject() {
		h.ForEach(func(_, _ gjson.Result) bool {
			hints = true
			return false
		})
	}

	identifiers := root.Get("identifiers")
	if !identifiers.Exists() || !identifiers.IsObject() {
		return nil, &ErrFunctionNotFound{FunctionName: functionName}
	}

	var found *FunctionDescriptor
	identifiers.ForEach(func(key, value gjson.Result) bool {
		name := lastDottedSegment(key.String())
		if name != functionName || value.Get("type").String() != "function" {
			return true
		}

		argsKey := key.String() + ".Args"
		argsIdent := identifiers.Get(gjson.Escape(argsKey))
		if !argsIdent.Exists() {
			return true
		}

		sizeVal := argsIdent.Get("size")
		membersVal := argsIdent.Get("members")
		if !sizeVal.Exists() || !membersVal.Exists() || !membersVal.IsObject() {
			return true
		}

		found = &FunctionDescriptor{
			Name:       name,
			Entrypoint: value.Get("pc").String(),
			NumArgs:    int(sizeVal.Int()),
			TypeArgs:   typeArgs(membersVal),
			Hints:      hints,
			Decorators: nil,
		}
		return false
	})

	if found == nil {
		return nil, &ErrFunctionNotFound{FunctionName: functionName}
	}
	return found, nil
}

func typeArgs(members gjson.Result) []string {
	var out []string
	members.ForEach(func(_, member gjson.Result) bool {
		out = append(out, member.Get("cairo_type").String())
		return true
	})
	return out
}

func lastDottedSegment(s string) string {
	idx := strings.LastIndex(s, ".")
	if idx < 0 {
		return s
	}
	return s[idx+1:]
}
