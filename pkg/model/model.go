// Package model defines the records the deposit pipeline reads and writes
// through the shared record store: submissions, repositories, deposits, and
// repository copies.
//
// All durable state lives in the record store; these types are the typed view
// of it. Every record carries an opaque id and a monotonic version used for
// optimistic concurrency (see pkg/store).
package model

import (
	"encoding/json"
	"time"
)

// Kind identifies the record type in the store.
type Kind string

const (
	KindSubmission     Kind = "Submission"
	KindRepository     Kind = "Repository"
	KindDeposit        Kind = "Deposit"
	KindRepositoryCopy Kind = "RepositoryCopy"
)

// IsValid checks whether the kind is one of the known record kinds.
func (k Kind) IsValid() bool {
	switch k {
	case KindSubmission, KindRepository, KindDeposit, KindRepositoryCopy:
		return true
	}
	return false
}

// Record is implemented by every entity persisted in the record store.
//
// GetVersion/SetVersion expose the store's monotonic record version; the
// version is not part of the serialized body (the store carries it in its
// envelope, or as an ETag for remote stores).
type Record interface {
	Kind() Kind
	GetID() string
	SetID(id string)
	GetVersion() int64
	SetVersion(v int64)
}

// Base carries the identity and version shared by all records.
// Embed it as the first field of a record type.
type Base struct {
	ID      string `json:"id,omitempty"`
	Version int64  `json:"-"`
}

// GetID returns the record id.
func (b *Base) GetID() string { return b.ID }

// SetID sets the record id.
func (b *Base) SetID(id string) { b.ID = id }

// GetVersion returns the record version observed at read time.
func (b *Base) GetVersion() int64 { return b.Version }

// SetVersion sets the record version.
func (b *Base) SetVersion(v int64) { b.Version = v }

// New returns a freshly allocated record of the given kind.
// The second return value is false for unknown kinds.
func New(kind Kind) (Record, bool) {
	switch kind {
	case KindSubmission:
		return &Submission{}, true
	case KindRepository:
		return &Repository{}, true
	case KindDeposit:
		return &Deposit{}, true
	case KindRepositoryCopy:
		return &RepositoryCopy{}, true
	}
	return nil, false
}

// ============================================================================
// Submission
// ============================================================================

// SubmissionStatus is the user-facing lifecycle of a submission.
type SubmissionStatus string

const (
	SubmissionUnsubmitted SubmissionStatus = "unsubmitted"
	SubmissionSubmitted   SubmissionStatus = "submitted"
	SubmissionComplete    SubmissionStatus = "complete"
	SubmissionCancelled   SubmissionStatus = "cancelled"
	SubmissionFailed      SubmissionStatus = "failed"
)

// Terminal reports whether the status must never be overwritten.
// Failed is intermediate: an operator may remediate it.
func (s SubmissionStatus) Terminal() bool {
	return s == SubmissionComplete || s == SubmissionCancelled
}

// AggregatedDepositStatus is the rollup of a submission's deposit statuses,
// maintained by the aggregator.
type AggregatedDepositStatus string

const (
	AggregatedNotStarted AggregatedDepositStatus = "not-started"
	AggregatedInProgress AggregatedDepositStatus = "in-progress"
	AggregatedAccepted   AggregatedDepositStatus = "accepted"
	AggregatedRejected   AggregatedDepositStatus = "rejected"
	AggregatedFailed     AggregatedDepositStatus = "failed"
)

// Terminal reports whether the aggregated status must never be overwritten.
// Failed is intermediate and may be remediated.
func (s AggregatedDepositStatus) Terminal() bool {
	return s == AggregatedAccepted || s == AggregatedRejected
}

// File describes one custodial file attached to a submission. Location is a
// URI (http(s) or file) the assembler resolves when building a package.
type File struct {
	Name     string   `json:"name"`
	Location string   `json:"location"`
	MimeType string   `json:"mimeType,omitempty"`
	Size     int64    `json:"size,omitempty"`
	Role     FileRole `json:"role,omitempty"`
}

// FileRole classifies a custodial file within the submission.
type FileRole string

const (
	RoleManuscript FileRole = "manuscript"
	RoleSupplement FileRole = "supplement"
	RoleFigure     FileRole = "figure"
	RoleTable      FileRole = "table"
)

// Submission is a user's request to deposit a manuscript into one or more
// target archives. It is created externally; the pipeline only flips its
// aggregated status.
type Submission struct {
	Base
	// Submitted is set when the user commits the submission; it is the
	// trigger the dispatcher acts on.
	Submitted               bool                    `json:"submitted"`
	SubmissionStatus        SubmissionStatus        `json:"submissionStatus,omitempty"`
	AggregatedDepositStatus AggregatedDepositStatus `json:"aggregatedDepositStatus,omitempty"`
	// Repositories lists the ids of the target Repository records.
	Repositories []string `json:"repositories,omitempty"`
	// Metadata is the opaque bibliographic blob assemblers interpret.
	Metadata    json.RawMessage `json:"metadata,omitempty"`
	Files       []File          `json:"files,omitempty"`
	SubmittedAt *time.Time      `json:"submittedAt,omitempty"`
}

// Kind implements Record.
func (*Submission) Kind() Kind { return KindSubmission }

// ============================================================================
// Repository
// ============================================================================

// Repository is a downstream target archive. RepositoryKey selects the
// runtime RepositoryConfig (transport binding, assembly spec, status map).
type Repository struct {
	Base
	Name          string `json:"name,omitempty"`
	RepositoryKey string `json:"repositoryKey"`
}

// Kind implements Record.
func (*Repository) Kind() Kind { return KindRepository }

// ============================================================================
// Deposit
// ============================================================================

// DepositStatus is the state of one deposit attempt.
//
// The zero value means the deposit has been created but no transfer has been
// attempted yet (or a failed deposit was remediated back for retry).
type DepositStatus string

const (
	// DepositNone is the initial state before any transfer attempt.
	DepositNone      DepositStatus = ""
	DepositSubmitted DepositStatus = "submitted"
	DepositAccepted  DepositStatus = "accepted"
	DepositRejected  DepositStatus = "rejected"
	DepositFailed    DepositStatus = "failed"
)

// Terminal reports whether the status must never be overwritten.
func (s DepositStatus) Terminal() bool {
	return s == DepositAccepted || s == DepositRejected
}

// Dispatchable reports whether a deposit task may pick up a deposit in this
// state. Failed deposits are remediable, so they dispatch too.
func (s DepositStatus) Dispatchable() bool {
	return s == DepositNone || s == DepositFailed
}

// Deposit records one attempt to transfer a package of one submission to one
// repository. At most one deposit per (submission, repository) pair is in
// the non-terminal state "submitted" at any time.
type Deposit struct {
	Base
	Submission    string        `json:"submission"`
	Repository    string        `json:"repository"`
	DepositStatus DepositStatus `json:"depositStatus,omitempty"`
	// DepositStatusRef is the archive-issued URI of the status document
	// (an Atom/SWORD statement) the resolver polls.
	DepositStatusRef string `json:"depositStatusRef,omitempty"`
	// StatusMessage carries the failure cause chain when the deposit failed.
	StatusMessage string    `json:"statusMessage,omitempty"`
	CreatedAt     time.Time `json:"createdAt,omitempty"`
	UpdatedAt     time.Time `json:"updatedAt,omitempty"`
}

// Kind implements Record.
func (*Deposit) Kind() Kind { return KindDeposit }

// ============================================================================
// RepositoryCopy
// ============================================================================

// CopyStatus is the custody state of a repository copy.
type CopyStatus string

const (
	CopyInProgress CopyStatus = "in-progress"
	CopyAccepted   CopyStatus = "accepted"
	CopyRejected   CopyStatus = "rejected"
	CopyComplete   CopyStatus = "complete"
)

// Terminal reports whether the status must never be overwritten.
func (s CopyStatus) Terminal() bool {
	return s == CopyComplete
}

// RepositoryCopy is evidence that a repository accepted custody of a
// package, with the archive's external identifiers (e.g. the item URL).
type RepositoryCopy struct {
	Base
	Submission  string     `json:"submission"`
	Repository  string     `json:"repository"`
	CopyStatus  CopyStatus `json:"copyStatus,omitempty"`
	ExternalIDs []string   `json:"externalIds,omitempty"`
	AccessURL   string     `json:"accessUrl,omitempty"`
}

// Kind implements Record.
func (*RepositoryCopy) Kind() Kind { return KindRepositoryCopy }

// Interface guards.
var (
	_ Record = (*Submission)(nil)
	_ Record = (*Repository)(nil)
	_ Record = (*Deposit)(nil)
	_ Record = (*RepositoryCopy)(nil)
)
