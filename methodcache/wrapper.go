package methodcache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/goliatone/go-method-cache/cache"
	"github.com/goliatone/go-method-cache/statediff"
)

// Func is the callable shape a wrapper intercepts: the bound method body,
// receiving the invocation it was called with.
type Func[T any] func(ctx context.Context, inv cache.Invocation) (T, error)

// Outcome describes what one invocation did, for diagnostics and tests.
type Outcome struct {
	Target      cache.Target
	Fingerprint cache.Fingerprint
	Hit         bool

	// Stored is true when this call won the write for its fingerprint.
	// A miss with Stored=false either lost a write race or was withheld
	// by the SkipOnChange policy.
	Stored bool

	// Report carries the state diff for stateful targets, nil otherwise.
	Report *statediff.ChangeReport

	Duration time.Duration
}

// CachedMethod intercepts calls to one bound method and memoizes them. It
// owns a reference to the original callable, exposed through Unwrap so the
// installation can be reversed.
type CachedMethod[T any] struct {
	target   cache.Target
	ns       cache.Namespace
	instance any
	fn       Func[T]
	store    cache.Store
	codec    cache.Codec
	gen      *cache.Generator
	detector *statediff.Detector
	policy   Policy
	logger   Logger
	metrics  MetricsCollector

	mu   sync.Mutex
	last *Outcome
}

// Wrap builds an interception wrapper for instance.method and records it in
// the registry. Wrapping an already-registered target is a no-op: the
// existing wrapper is returned together with ErrAlreadyRegistered.
func Wrap[T any](registry *Registry, instance any, method string, fn Func[T], store cache.Store, opts ...Option) (*CachedMethod[T], error) {
	target := cache.TargetOf(instance, method)

	cfg := defaultSettings()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.codec == nil {
		cfg.codec = cache.NewMsgpackCodec()
	}
	if cfg.detector == nil && cfg.policy.stateful() {
		cfg.detector = statediff.NewDetector(cfg.codec)
	}

	c := &CachedMethod[T]{
		target:   target,
		ns:       cache.NamespaceFor(target),
		instance: instance,
		fn:       fn,
		store:    store,
		codec:    cfg.codec,
		gen:      cache.NewGenerator(cfg.codec),
		detector: cfg.detector,
		policy:   cfg.policy,
		logger:   cfg.logger,
		metrics:  cfg.metrics,
	}

	reg, err := registry.Register(target, c, fn)
	if errors.Is(err, ErrAlreadyRegistered) {
		if existing, ok := reg.Wrapper().(*CachedMethod[T]); ok {
			return existing, ErrAlreadyRegistered
		}
		return nil, ErrAlreadyRegistered
	}
	return c, nil
}

// Invoke calls the method with positional arguments through the cache.
func (c *CachedMethod[T]) Invoke(ctx context.Context, args ...any) (T, error) {
	return c.Call(ctx, cache.Invocation{Args: args})
}

// Call runs one invocation: fingerprint, look up, and on a miss execute the
// underlying callable, capture state, and write through. Errors raised by
// the callable propagate unchanged and are never cached.
func (c *CachedMethod[T]) Call(ctx context.Context, inv cache.Invocation) (T, error) {
	var zero T
	start := time.Now()
	out := &Outcome{Target: c.target}
	labels := map[string]string{"owner": c.ns.Owner, "method": c.ns.Method}

	var pre statediff.Snapshot
	var stateSum []byte
	if c.policy.stateful() {
		snap, err := c.detector.Snapshot(c.instance)
		if err != nil {
			return zero, err
		}
		pre = snap
		stateSum = snap.Sum()
	}

	fp, err := c.gen.Fingerprint(c.target, inv, stateSum)
	if err != nil {
		return zero, err
	}
	out.Fingerprint = fp

	entry, ok, err := c.store.Get(ctx, c.ns, fp)
	if err != nil {
		return zero, err
	}
	if ok {
		result, hitErr := c.restoreHit(entry)
		if hitErr == nil {
			out.Hit = true
			out.Duration = time.Since(start)
			c.finish(out, labels)
			return result, nil
		}
		// Undecodable entry: remove it so the write below can take the
		// fingerprint again, then fall through to a miss.
		c.logger.Warn("discarding undecodable cache entry",
			"target", c.target.String(), "fingerprint", fp.Hex(), "error", hitErr)
		if delErr := c.store.Delete(ctx, c.ns, fp); delErr != nil {
			c.logger.Warn("failed to remove undecodable cache entry",
				"target", c.target.String(), "fingerprint", fp.Hex(), "error", delErr)
		}
	}

	result, err := c.fn(ctx, inv)
	if err != nil {
		out.Duration = time.Since(start)
		c.finish(out, labels)
		return zero, err
	}

	var stateBytes []byte
	if c.policy.stateful() {
		post, snapErr := c.detector.Snapshot(c.instance)
		if snapErr != nil {
			// The call already succeeded; losing the write is the
			// lesser harm.
			c.logger.Warn("skipping cache write, post-call snapshot failed",
				"target", c.target.String(), "error", snapErr)
			out.Duration = time.Since(start)
			c.finish(out, labels)
			return result, nil
		}
		report := c.detector.Diff(c.target.Method, pre, post)
		out.Report = &report

		if c.policy.SkipOnChange && report.HasChanges() {
			c.logger.Debug("state changed, cache write withheld by policy",
				"target", c.target.String(), "changes", len(report.Changes))
			out.Duration = time.Since(start)
			c.finish(out, labels)
			return result, nil
		}

		stateBytes, err = c.codec.Marshal(post.Fields)
		if err != nil {
			c.logger.Warn("skipping cache write, state not representable",
				"target", c.target.String(),
				"error", &cache.UnrepresentableResultError{Target: c.target.Key(), Err: err})
			out.Duration = time.Since(start)
			c.finish(out, labels)
			return result, nil
		}
	}

	resultBytes, err := c.codec.Marshal(result)
	if err != nil {
		// Same trade as the snapshot failure above: the call already
		// succeeded, so the caller gets the result and only the write
		// is lost.
		c.logger.Warn("skipping cache write, result not representable",
			"target", c.target.String(),
			"error", &cache.UnrepresentableResultError{Target: c.target.Key(), Err: err})
		out.Duration = time.Since(start)
		c.finish(out, labels)
		return result, nil
	}

	inserted, err := c.store.PutIfAbsent(ctx, c.ns, fp, cache.Entry{
		Result: resultBytes,
		State:  stateBytes,
		Meta: cache.Metadata{
			Owner:       c.target.Owner,
			Method:      c.target.Method,
			Fingerprint: fp.Hex(),
			Stateful:    c.policy.stateful(),
			CreatedAt:   time.Now().UTC(),
		},
	})
	if err != nil {
		return zero, err
	}
	out.Stored = inserted
	out.Duration = time.Since(start)
	c.finish(out, labels)
	return result, nil
}

// restoreHit decodes a stored entry and, for stateful targets, re-applies
// the persisted post-call state so the instance ends up exactly as the
// original execution left it.
func (c *CachedMethod[T]) restoreHit(entry cache.Entry) (T, error) {
	var result T
	if err := c.codec.Unmarshal(entry.Result, &result); err != nil {
		return result, err
	}
	if c.policy.stateful() && c.policy.RestoreOnHit && entry.Stateful() {
		fields := map[string][]byte{}
		if err := c.codec.Unmarshal(entry.State, &fields); err != nil {
			return result, err
		}
		if err := c.detector.Restore(c.instance, statediff.Snapshot{Fields: fields}); err != nil {
			return result, err
		}
	}
	return result, nil
}

func (c *CachedMethod[T]) finish(out *Outcome, labels map[string]string) {
	c.mu.Lock()
	c.last = out
	c.mu.Unlock()

	if out.Hit {
		c.metrics.IncrementCounter(MetricHits, labels)
	} else {
		c.metrics.IncrementCounter(MetricMisses, labels)
		if out.Stored {
			c.metrics.IncrementCounter(MetricWrites, labels)
		}
	}
	c.metrics.RecordDuration(MetricDurations, out.Duration, labels)
	c.logger.Debug("call finished",
		"target", c.target.String(),
		"fingerprint", out.Fingerprint.Hex(),
		"hit", out.Hit,
		"stored", out.Stored,
		"duration", out.Duration)
}

// Unwrap returns the original callable, so an installer can put it back.
func (c *CachedMethod[T]) Unwrap() Func[T] {
	return c.fn
}

// Target returns the identity this wrapper is bound to.
func (c *CachedMethod[T]) Target() cache.Target {
	return c.target
}

// LastOutcome returns the most recent invocation's outcome, or nil before
// the first call. Diagnostic surface; not intended for control flow.
func (c *CachedMethod[T]) LastOutcome() *Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}
