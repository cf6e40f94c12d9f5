// Package methodcache is the interception layer: it wraps a bound method so
// repeat calls with the same arguments (and, when tracked, the same instance
// state) return the persisted result without executing the method again.
//
// # Basic Usage
//
//	registry := methodcache.NewRegistry()
//	cached, err := methodcache.Wrap(registry, runner, "Query",
//		func(ctx context.Context, inv cache.Invocation) (Rows, error) {
//			return runner.Query(ctx, inv.Args[0].(string))
//		},
//		store,
//	)
//
//	rows, err := cached.Invoke(ctx, "SELECT ...") // executes and persists
//	rows, err = cached.Invoke(ctx, "SELECT ...")  // served from the store
//
// # State-sensitive targets
//
// Objects whose methods both depend on and advance internal state (model
// estimators, stateful readers) use a stateful policy:
//
//	cached, err := methodcache.Wrap(registry, est, "Fit", fitFn, store,
//		methodcache.WithPolicy(methodcache.StatefulPolicy()),
//		methodcache.WithDetector(statediff.NewDetector(codec,
//			statediff.WithFields("Coefficients", "Fitted"))),
//	)
//
// The pre-call state digest becomes part of the fingerprint, the post-call
// state is persisted next to the result, and a hit restores that state onto
// the instance, so a replayed Fit leaves the estimator exactly as the original
// run did.
//
// # Registration
//
// The Registry makes installation idempotent: wrapping the same
// (owner, method) twice returns the existing wrapper with
// ErrAlreadyRegistered instead of double-wrapping, and Deregister hands the
// original callable back for uninstalling. The registry is passed by
// reference, never ambient.
//
// # Concurrency
//
// Concurrent identical misses each execute the underlying callable and race
// at the store's PutIfAbsent; exactly one entry wins and the losers treat
// the conflict as success. The wrapper never blocks a caller on another
// caller's in-flight computation.
package methodcache
