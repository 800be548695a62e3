package breaker

import "fmt"

// TriggerType identifies which detector tripped the breaker.
type TriggerType string

const (
	TriggerBulkChange   TriggerType = "bulk_change"
	TriggerBranchChange TriggerType = "branch_change"
	TriggerFileWarning  TriggerType = "file_warning"
	TriggerConflict     TriggerType = "conflict"
)

// TriggeredError describes a tripped breaker: the repository, the
// detector, and the count and threshold involved (§7 "Circuit-breaker
// exceptions"). Nothing in this module constructs or returns one, whether
// or not require_manual_acknowledgment is set; a trip is reported through
// the repository's status and the circuit_breaker_triggered event, and
// any scheduled auto-recovery applies regardless of the flag.
type TriggeredError struct {
	RepoID      string
	Trigger     TriggerType
	Count       int
	Threshold   int
}

func (e TriggeredError) Error() string {
	return fmt.Sprintf("circuit breaker triggered for %s (%s): %d/%d",
		e.RepoID, e.Trigger, e.Count, e.Threshold)
}
