// Package cache defines the core primitives of the memoization engine:
// targets, invocations, fingerprints, entries, and the store contract.
//
// # Overview
//
// A Target names a cacheable operation (owner type + method). An Invocation
// is one call against a target. The Generator turns a target, an invocation,
// and optionally a pre-call state digest into a Fingerprint: a SHA-256
// content key that is a pure function of its inputs. Stores persist
// immutable Entry records under a Namespace derived from the target, keyed
// by fingerprint.
//
// # Determinism
//
// The fingerprint contract is the correctness backbone of the whole cache:
// equal invocations always produce equal fingerprints, across calls and
// across process restarts. Every component that feeds the fingerprint is
// therefore deterministic: the default msgpack codec sorts map keys, keyword
// arguments are sorted by name, and each segment is length-framed before
// hashing so adjacent segments can never be reassociated.
//
// # Unrepresentable values
//
// Arguments the configured codec cannot serialize (functions, channels,
// cyclic graphs handed in as arguments) surface as
// *UnrepresentableArgumentError at fingerprint time. This is a
// configuration error with the target, surfaced to the caller immediately,
// never converted into a silent cache bypass.
//
// # Store semantics
//
// Store.PutIfAbsent is the single write primitive and the synchronization
// point for concurrent identical misses: exactly one writer's entry becomes
// visible, everyone else observes inserted=false and treats it as success.
// Get never returns partially-written entries; corrupted leftovers are
// treated as absent so subsequent writes self-heal them.
//
// Concrete stores live in internal/storefs (filesystem), internal/storesql
// (SQL via bun), and internal/storemem (sturdyc read tier); pkg/di wires a
// Config into a store chain.
//
// # See Also
//
// Package statediff captures and compares instance state; package
// methodcache ties fingerprinting, state tracking, and stores together into
// the interception wrapper.
package cache
