package methodcache

// StateMode controls whether instance state participates in the cache key.
type StateMode int

const (
	// StateIgnore keys entries on arguments alone. State is neither
	// snapshotted nor restored; calls that mutate the instance are cached
	// like any other.
	StateIgnore StateMode = iota

	// StateKey folds a digest of the pre-call state into the fingerprint,
	// persists the post-call state next to the result, and restores it on
	// hits. The same arguments against a differently-stated instance are
	// distinct calls.
	StateKey
)

func (m StateMode) String() string {
	switch m {
	case StateIgnore:
		return "ignore"
	case StateKey:
		return "key"
	default:
		return "unknown"
	}
}

// Policy is the explicit, per-target answer to whether a state-changing call
// may be cached. There is no implicit default buried in the engine: every
// wrapped target carries its policy, and callers that care set it.
type Policy struct {
	Mode StateMode

	// SkipOnChange suppresses the cache write when the call mutated
	// tracked state. The call still executes and its mutation stands;
	// only memoization is withheld, because replaying a mutating call
	// from cache is a correctness hazard for some targets.
	SkipOnChange bool

	// RestoreOnHit applies the persisted post-call state to the instance
	// on cache hits. Only meaningful with StateKey.
	RestoreOnHit bool
}

// DefaultPolicy keys on arguments alone, matching the common
// pure-computation case.
func DefaultPolicy() Policy {
	return Policy{Mode: StateIgnore}
}

// StatefulPolicy tracks, keys, and restores instance state. This is the
// policy for estimator-style objects whose methods both depend on and
// advance internal state.
func StatefulPolicy() Policy {
	return Policy{Mode: StateKey, RestoreOnHit: true}
}

func (p Policy) stateful() bool {
	return p.Mode == StateKey
}
