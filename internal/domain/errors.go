package domain

import "fmt"

// The engine's failure taxonomy. All are local, synchronous failures — the
// engine performs no I/O and never retries. Callers must treat any of these
// as "unable to decide", never as an implicit ALLOW.

// ValidationError reports a malformed or non-numeric feature value.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid feature %q: %s", e.Field, e.Reason)
}

// RangeError reports a score or threshold outside [0,1], or profile cut
// points that are not strictly ordered.
type RangeError struct {
	Field  string
	Value  float64
	Reason string
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("value out of range for %q (%v): %s", e.Field, e.Value, e.Reason)
}

// ConfigurationError reports a request for configuration that does not
// exist, such as an unknown threshold profile name.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error for %q: %s", e.Field, e.Reason)
}
