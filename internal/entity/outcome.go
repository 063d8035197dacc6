package entity

import "fmt"

const (
	ErrKindNone ErrorKind = iota
	ErrKindNetworkUnreachable
	ErrKindTimeout
	ErrKindHTTPError
	ErrKindTruncatedTransfer
	ErrKindHashMismatch
	ErrKindStorageWrite
)

// ErrorKind classifies why a fetch attempt failed. All kinds are transient
// from the fetcher's point of view and consume one attempt.
type ErrorKind int

func (k ErrorKind) String() string {
	switch k {
	case ErrKindNone:
		return "none"
	case ErrKindNetworkUnreachable:
		return "network_unreachable"
	case ErrKindTimeout:
		return "timeout"
	case ErrKindHTTPError:
		return "http_error"
	case ErrKindTruncatedTransfer:
		return "truncated_transfer"
	case ErrKindHashMismatch:
		return "hash_mismatch"
	case ErrKindStorageWrite:
		return "storage_write"
	}

	return "unknown"
}

// FetchError is one classified attempt failure.
type FetchError struct {
	Kind   ErrorKind
	Status int // HTTP status for ErrKindHTTPError, zero otherwise
	Err    error
}

func (e *FetchError) Error() string {
	if e.Kind == ErrKindHTTPError {
		return fmt.Sprintf("%s (%d): %v", e.Kind, e.Status, e.Err)
	}

	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

const (
	OutcomeSucceeded OutcomeStatus = iota
	OutcomeSkipped
	OutcomeFailed
)

type OutcomeStatus int

func (s OutcomeStatus) String() string {
	return [...]string{"succeeded", "skipped", "failed"}[s]
}

// DownloadOutcome is the terminal state of one candidate within a run.
// It lives only for the duration of that candidate's processing.
type DownloadOutcome struct {
	LogicalID string
	Status    OutcomeStatus

	// Set when Status is OutcomeSucceeded.
	Fingerprint *ContentFingerprint
	Entry       *LedgerEntry

	// Set when Status is OutcomeFailed.
	Attempts  int
	LastError *FetchError
}
