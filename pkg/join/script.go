package join

import (
	"context"

	"github.com/dop251/goja"

	sdkerrors "github.com/wehubfusion/Ariadne/pkg/errors"
)

// ScriptValueGenerator shapes matched documents with a JavaScript expression
// instead of the default as/asMap semantics. The expression is compiled once
// and evaluated per local document with these globals in scope:
//
//	matched  - array of the matched source documents, in match order
//	as       - the As field name from the join params
//	metadata - the opaque per-call metadata value
//
// The expression's completion value becomes the written value. A fresh
// runtime is created per evaluation, so a generator is safe for concurrent
// use.
type ScriptValueGenerator struct {
	program *goja.Program
}

// NewScriptValueGenerator compiles src as a JavaScript expression.
func NewScriptValueGenerator(src string) (*ScriptValueGenerator, error) {
	program, err := goja.Compile("asvalue", src, true)
	if err != nil {
		return nil, sdkerrors.NewError(sdkerrors.CodeScript, "compile", err)
	}
	return &ScriptValueGenerator{program: program}, nil
}

// GenerateAsValue evaluates the expression against the matched documents.
// Context cancellation interrupts a running script.
func (g *ScriptValueGenerator) GenerateAsValue(ctx context.Context, in AsValueInput) (any, error) {
	vm := goja.New()
	if err := vm.Set("matched", in.Matched); err != nil {
		return nil, sdkerrors.NewError(sdkerrors.CodeScript, "set matched", err)
	}
	if err := vm.Set("as", in.As); err != nil {
		return nil, sdkerrors.NewError(sdkerrors.CodeScript, "set as", err)
	}
	if err := vm.Set("metadata", in.Metadata); err != nil {
		return nil, sdkerrors.NewError(sdkerrors.CodeScript, "set metadata", err)
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			vm.Interrupt(ctx.Err())
		case <-done:
		}
	}()

	value, err := vm.RunProgram(g.program)
	if err != nil {
		return nil, sdkerrors.NewError(sdkerrors.CodeScript, "run", err)
	}
	return value.Export(), nil
}
