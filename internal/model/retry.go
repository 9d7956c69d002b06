package model

import "time"

// DefaultArgs are the per-task defaults a DAG hands to every task it owns.
type DefaultArgs struct {
	Owner          string        `json:"owner"`
	DependsOnPast  bool          `json:"depends_on_past"`
	Retries        int           `json:"retries"`
	RetryDelay     time.Duration `json:"retry_delay"`
	EmailOnFailure bool          `json:"email_on_failure"`
	EmailOnRetry   bool          `json:"email_on_retry"`
}

// MaxTries is the total number of attempts a task gets (first try + retries).
func (a DefaultArgs) MaxTries() int {
	if a.Retries < 0 {
		return 1
	}
	return a.Retries + 1
}
