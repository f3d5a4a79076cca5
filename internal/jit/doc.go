// Package jit compiles statements into blocks just in time.
//
// A Compiler holds an ordered list of strategies; the first whose Match
// accepts a statement builds its block. Selection is a pure function of the
// statement, so the same statement always compiles to the same kind of
// block. Child groups are compiled lazily by the ChildRunner behavior when
// the parent reaches them.
//
// Compilation never fails outward: unmatched statements, strategy errors and
// strategy panics produce an error block that records a RuntimeError when
// pushed and pops itself without descending further.
package jit
