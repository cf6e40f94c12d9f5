package cache

import "fmt"

// UnrepresentableArgumentError reports an invocation argument the configured
// codec cannot serialize. It surfaces synchronously at fingerprint time; the
// cache never silently disables itself over one.
type UnrepresentableArgumentError struct {
	Target   string
	Position int    // positional index, -1 for keyword arguments
	Keyword  string // set when the offending argument was a keyword
	Err      error
}

func (e *UnrepresentableArgumentError) Error() string {
	if e.Keyword != "" {
		return fmt.Sprintf("cache: unrepresentable keyword argument %q for %s: %v", e.Keyword, e.Target, e.Err)
	}
	return fmt.Sprintf("cache: unrepresentable argument %d for %s: %v", e.Position, e.Target, e.Err)
}

func (e *UnrepresentableArgumentError) Unwrap() error {
	return e.Err
}

// UnrepresentableResultError reports a result value the codec cannot
// serialize. Like argument errors this is a configuration problem with the
// target, not a transient condition.
type UnrepresentableResultError struct {
	Target string
	Err    error
}

func (e *UnrepresentableResultError) Error() string {
	return fmt.Sprintf("cache: unrepresentable result for %s: %v", e.Target, e.Err)
}

func (e *UnrepresentableResultError) Unwrap() error {
	return e.Err
}
