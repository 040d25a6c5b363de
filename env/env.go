// Package env implements the reference environment: a stack of open struct
// frames used by the read and write engines to resolve size/length/
// discriminant references and expression variables (spec.md §3, §4.4).
package env

import (
	"fmt"

	"github.com/finnur-hlynsson/bitspec/document"
	"github.com/finnur-hlynsson/bitspec/expr"
)

// Frame is one open struct's insertion-ordered field table.
type Frame struct {
	fields map[string]document.Value
	order  []string
}

func newFrame() *Frame {
	return &Frame{fields: make(map[string]document.Value)}
}

// Set binds name to val in this frame. Per spec §4.4, writing a value binds
// it under its field name only after its bytes have been emitted/consumed;
// callers are responsible for calling Set at the right point in the walk.
func (f *Frame) Set(name string, val document.Value) {
	if _, exists := f.fields[name]; !exists {
		f.order = append(f.order, name)
	}
	f.fields[name] = val
}

// Env is a growable stack of frames. The zero value is an empty
// environment; push a frame with Push before reading/writing a struct's
// fields.
type Env struct {
	stack []*Frame
}

// New returns an empty environment.
func New() *Env {
	return &Env{}
}

// Push opens a new, empty frame (entering a Struct) and returns it so the
// caller can bind fields into it as they are processed.
func (e *Env) Push() *Frame {
	f := newFrame()
	e.stack = append(e.stack, f)
	return f
}

// Pop closes the innermost frame (leaving a Struct).
func (e *Env) Pop() {
	if len(e.stack) == 0 {
		return
	}
	e.stack = e.stack[:len(e.stack)-1]
}

// ErrUnbound is returned by Lookup when name is not visible from any open
// frame.
type ErrUnbound struct{ Name string }

func (e *ErrUnbound) Error() string {
	return fmt.Sprintf("env: unbound reference %q", e.Name)
}

// Lookup resolves name by walking frames from innermost to outermost, per
// spec §4.4's locality rule (§8 property 3): only prior siblings of the
// current struct and its enclosing structs are visible. Arrays do not push
// a frame, so array elements never leak names into this lookup.
func (e *Env) Lookup(name string) (document.Value, error) {
	for i := len(e.stack) - 1; i >= 0; i-- {
		if v, ok := e.stack[i].fields[name]; ok {
			return v, nil
		}
	}
	return document.Value{}, &ErrUnbound{Name: name}
}

// Current returns the innermost open frame, or nil if the environment is
// empty.
func (e *Env) Current() *Frame {
	if len(e.stack) == 0 {
		return nil
	}
	return e.stack[len(e.stack)-1]
}

// Vars flattens every name visible from the current position (outermost
// frame first, so inner frames shadow outer ones) into an expr.Vars table,
// for evaluating a SizeExpr or Converter expression that may reference any
// number of sibling/ancestor fields, not just one. Document values with no
// expression representation (arrays, objects) are silently omitted; an
// expression that references one fails with expr's unbound-name error.
func (e *Env) Vars() expr.Vars {
	vars := make(expr.Vars)
	for _, f := range e.stack {
		for _, name := range f.order {
			ev, err := expr.FromDocument(f.fields[name])
			if err != nil {
				continue
			}
			vars[name] = ev
		}
	}
	return vars
}

// Depth reports how many frames are currently open. The codec package's
// cycle guard does not use it; it counts recursion depth itself.
func (e *Env) Depth() int {
	return len(e.stack)
}
