// Package ir provides the immutable input model for wodrun: parsed workout
// statements, their typed fragments, and the sealed value family carried by
// fragments and memory references.
//
// This package contains data types only. All other internal packages import
// ir; ir imports nothing internal.
//
// Key design constraints:
//   - NO float types anywhere - durations are int64 milliseconds, weights
//     and distances are integer units carried next to a unit string
//   - Statements are never mutated after the script is built
//   - Canonical JSON (RFC 8785 key order, NFC strings) backs fingerprints
package ir
