// Package loader reads workout scripts authored in CUE and turns them into
// validated ir.Scripts.
//
// A script file has an optional name and a workout list. Each entry is a
// statement whose fields are its fragments; children nest statements, and a
// nested list groups statements into a superset:
//
//	name: "Fran"
//	workout: [{
//		rounds: [21, 15, 9]
//		children: [
//			{effort: "thrusters", resistance: {amount: 95, unit: "lb"}},
//			{effort: "pullups"},
//		]
//	}]
//
// Statement ids are assigned depth-first in source order, starting at 1.
// Errors carry the CUE source position of the offending value.
package loader
