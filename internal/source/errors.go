package source

import "fmt"

// ConfigError reports a source that cannot be constructed from its Spec.
type ConfigError struct {
	Source string
	Key    string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("source %s: %s", e.Source, e.Reason)
	}
	return fmt.Sprintf("source %s: option %q %s", e.Source, e.Key, e.Reason)
}

// FetchError wraps a network or parse failure inside one adapter's Search.
type FetchError struct {
	Source string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Source, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// FormatError records a malformed item field that FormatOutput replaced
// with a placeholder. It is logged, never returned.
type FormatError struct {
	Source string
	Index  int
	Field  string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("format %s: item %d has no %s", e.Source, e.Index, e.Field)
}
