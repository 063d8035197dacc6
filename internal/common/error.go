package common

import "fmt"

var (
	ErrRunHasAlreadyStarted = fmt.Errorf("run has already started")
	ErrNoCandidatesFound    = fmt.Errorf("no candidates found")
	ErrNoReportYet          = fmt.Errorf("no run report yet")
	ErrPersistenceFailure   = fmt.Errorf("persistence failure")
)
