package jit

import (
	"github.com/roach88/wodrun/internal/behavior"
	"github.com/roach88/wodrun/internal/engine"
	"github.com/roach88/wodrun/internal/ir"
)

// Verify compiles every statement of script on its own and returns the
// errors its error blocks would report at run time. No block is pushed and
// every built block is disposed before returning.
func (c *Compiler) Verify(script *ir.Script) []engine.RuntimeError {
	rt := engine.New(script, c)
	var out []engine.RuntimeError
	stmts := script.Statements()
	for i := range stmts {
		b := c.Compile(rt, []*ir.Statement{&stmts[i]})
		for _, bh := range b.Behaviors() {
			if halt, ok := bh.(*behavior.ErrorHalt); ok {
				out = append(out, halt.Err())
			}
		}
		b.Dispose(rt)
	}
	return out
}
