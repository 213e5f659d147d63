package engine

import "fmt"

// ConfigurationError reports invalid engine configuration (weights, window,
// concurrency). It is fatal before any catalog access happens.
type ConfigurationError struct {
	Err error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %v", e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// DataFeedError reports a failed or timed-out catalog fetch. It is fatal for
// the run: no partial processing happens and the caller may retry the whole
// run.
type DataFeedError struct {
	Feed string
	Err  error
}

func (e *DataFeedError) Error() string {
	return fmt.Sprintf("data feed %s failed: %v", e.Feed, e.Err)
}

func (e *DataFeedError) Unwrap() error { return e.Err }

// PersistenceError reports a failed commit of a run's qualifying set. The
// run's results are not durable; scoring is deterministic, so the caller may
// retry the whole run.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failed: %v", e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
