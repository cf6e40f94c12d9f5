// Package statediff captures serialized snapshots of an instance's tracked
// state and compares them structurally.
//
// State is an explicit, declared contract wherever possible: a type that
// implements Snapshotter decides exactly which attributes participate, and a
// declared field whitelist narrows the generic fallback. Only when neither is
// present does the Detector fall back to a reflection dump of the exported
// fields. Restricting the tracked set is what keeps incidental bookkeeping
// fields (open iterators, lazily-built cursors) from producing false
// "changed" reports.
//
// Snapshots store each attribute as canonical codec bytes, so comparison is
// structural value equality, never reference identity. The capture walk
// tolerates self-referential state with a visited set, replaces attributes it
// cannot serialize with untracked markers, and fails with
// *UnsnapshottableStateError only when the caller demanded full fidelity.
//
// Class-level, global, and closure state is out of reach and deliberately
// fails open: a method mutating only such state reports no changes.
package statediff
