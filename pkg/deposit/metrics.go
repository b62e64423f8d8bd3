package deposit

import "time"

// Metrics records pipeline outcomes. A nil Metrics is valid and results in
// zero overhead, matching the pattern used across the codebase where
// instrumentation is optional.
type Metrics interface {
	// ObserveDeposit records one finished deposit attempt with its outcome
	// ("submitted", "accepted", "failed", "skipped") and wall-clock duration.
	ObserveDeposit(outcome string, duration time.Duration)

	// ObserveTransfer records one package transmission by protocol binding.
	ObserveTransfer(protocol string, duration time.Duration, err error)

	// RecordQueueDepth records the current number of queued deposits.
	RecordQueueDepth(depth int)
}

// observeDeposit is the nil-safe helper used by the task.
func observeDeposit(m Metrics, outcome string, duration time.Duration) {
	if m != nil {
		m.ObserveDeposit(outcome, duration)
	}
}

func observeTransfer(m Metrics, protocol string, duration time.Duration, err error) {
	if m != nil {
		m.ObserveTransfer(protocol, duration, err)
	}
}

func recordQueueDepth(m Metrics, depth int) {
	if m != nil {
		m.RecordQueueDepth(depth)
	}
}
