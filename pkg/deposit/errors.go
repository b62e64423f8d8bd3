package deposit

import "fmt"

// DepositError marks a failure attributable to one deposit. The error
// handler fails the named deposit when it sees one.
type DepositError struct {
	DepositID string
	Err       error
}

func (e *DepositError) Error() string {
	return fmt.Sprintf("deposit %s: %v", e.DepositID, e.Err)
}

func (e *DepositError) Unwrap() error { return e.Err }

// SubmissionError marks a failure attributable to a whole submission. The
// error handler marks the submission's aggregated status failed.
type SubmissionError struct {
	SubmissionID string
	Err          error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submission %s: %v", e.SubmissionID, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }
