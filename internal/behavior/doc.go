// Package behavior provides the composable units that make up blocks.
//
// A block's behavior list runs in order for every hook, so behaviors that
// read state written by another behavior must come after it. The canonical
// order for a parent block is:
//
//	ChildIndex → Rounds | Interval → ChildRunner → Completion
//
// ChildIndex moves the cursor first, Rounds and Interval may rewind or park
// it, ChildRunner pushes whatever the cursor then points at, and Completion
// pops the block once nothing is left.
package behavior
