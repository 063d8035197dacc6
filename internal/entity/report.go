package entity

import (
	"time"

	"github.com/google/uuid"
)

const (
	RunCleanSuccess RunClass = iota
	RunPartialFailure
	RunTotalFailure
)

type RunClass int

func (c RunClass) String() string {
	return [...]string{"clean_success", "partial_failure", "total_failure"}[c]
}

// FailedCandidate is one permanently failed candidate within a run.
type FailedCandidate struct {
	LogicalID string    `json:"logical_id"`
	Kind      ErrorKind `json:"-"`
	KindName  string    `json:"error"`
	Attempts  int       `json:"attempts"`
}

// RunReport aggregates one run of the orchestrator. It is owned by the
// orchestrator until the run finishes, then handed out read only.
type RunReport struct {
	ID         string            `json:"id"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	Candidates int               `json:"candidates"`
	Succeeded  int               `json:"succeeded"`
	Skipped    int               `json:"skipped"`
	Failed     []FailedCandidate `json:"failed"`
	Aborted    bool              `json:"aborted,omitempty"` // run cut short by persistence failure or shutdown
}

func NewRunReport() *RunReport {
	return &RunReport{
		ID:        uuid.NewString(),
		StartedAt: time.Now(),
	}
}

// Class reports how the run ended. A run where every candidate failed is a
// total failure; any failures at all make it partial.
func (r *RunReport) Class() RunClass {
	switch {
	case len(r.Failed) == 0:
		return RunCleanSuccess
	case len(r.Failed) == r.Candidates:
		return RunTotalFailure
	}

	return RunPartialFailure
}
