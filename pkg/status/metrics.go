package status

import "time"

// Metrics records status-side instrumentation. A nil Metrics is valid and
// results in zero overhead.
type Metrics interface {
	// ObservePoll records one statement fetch and interpretation.
	ObservePoll(outcome Outcome, duration time.Duration, err error)

	// ObserveSweep records one aggregation sweep over all submissions.
	ObserveSweep(duration time.Duration, err error)
}

func observePoll(m Metrics, outcome Outcome, duration time.Duration, err error) {
	if m != nil {
		m.ObservePoll(outcome, duration, err)
	}
}

func observeSweep(m Metrics, duration time.Duration, err error) {
	if m != nil {
		m.ObserveSweep(duration, err)
	}
}
