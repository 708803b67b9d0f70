package dependency

import "fmt"

// CycleError reports an edge that was rejected because it would close a
// dependency cycle.
type CycleError struct {
	PredecessorID string
	SuccessorID   string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency %s -> %s would create a cycle", e.PredecessorID, e.SuccessorID)
}
