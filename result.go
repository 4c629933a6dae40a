package novaos

import (
	"time"

	"github.com/novaos/novaos/internal/producer"
)

// RunResult is the outcome of a single producer run, passed to callbacks
// registered with [WithRunCallback].
type RunResult struct {
	Producer  string
	StartedAt time.Time
	Duration  time.Duration

	// Event is what the producer announced, or nil if it had nothing to
	// announce or failed before producing one.
	Event *Event

	// Published is true when Event reached the relay channel.
	Published bool

	// Stage names the failed step ("connect", "run" or "publish") and Error
	// holds the cause. Both are empty for a successful run.
	Stage string
	Error error
}

// Outcome returns "published", "skipped" or "failed".
func (r RunResult) Outcome() string {
	switch {
	case r.Error != nil:
		return "failed"
	case r.Published:
		return "published"
	default:
		return "skipped"
	}
}

// ProducerStatus is the supervision record of one producer, as served by
// GET /producers.
type ProducerStatus struct {
	Name        string     `json:"name"`
	Interval    string     `json:"interval"`
	LastRun     *time.Time `json:"lastRun,omitempty"`
	LastSuccess *time.Time `json:"lastSuccess,omitempty"`
	LastError   string     `json:"lastError,omitempty"`
	Runs        int64      `json:"runs"`
	Failures    int64      `json:"failures"`
}

func toRunResult(r producer.RunResult) RunResult {
	var ev *Event
	if r.Event != nil {
		cp := *r.Event
		ev = &cp
	}
	return RunResult{
		Producer:  r.Producer,
		StartedAt: r.StartedAt,
		Duration:  r.Duration,
		Event:     ev,
		Published: r.Published,
		Stage:     string(r.FailedAt),
		Error:     r.Error,
	}
}

func toProducerStatus(s producer.Status) ProducerStatus {
	return ProducerStatus{
		Name:        s.Name,
		Interval:    s.Interval.String(),
		LastRun:     timePtr(s.LastRun),
		LastSuccess: timePtr(s.LastSuccess),
		LastError:   s.LastError,
		Runs:        s.Runs,
		Failures:    s.Failures,
	}
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	utc := t.UTC()
	return &utc
}
