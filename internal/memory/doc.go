// Package memory implements the scoped memory store shared by executing
// blocks.
//
// Every reference is owned by exactly one block (by key) and carries a kind
// tag and a visibility:
//
//   - public:    discoverable by any block through Search
//   - private:   visible only to its owner
//   - inherited: visible to the owner and to every block whose lineage
//     (the owner chain below it on the stack) contains the owner
//
// There is no keyed lookup. Callers describe what they want with Criteria,
// which lets consumers read a value without knowing which block produced it.
//
// The store is not safe for concurrent use. All access happens on the
// runtime's single goroutine; subscribers are notified synchronously inside
// Set, in registration order.
package memory
