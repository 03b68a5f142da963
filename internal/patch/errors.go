package patch

import "fmt"

// UnknownTargetError indicates an edit addressed to an entry name that no
// loaded bundle contains.
type UnknownTargetError struct {
	Entry string
}

func (e *UnknownTargetError) Error() string {
	return fmt.Sprintf("no loaded bundle has an entry named %q", e.Entry)
}

// PlanError reports which edit sank the plan and why. A single bad edit
// aborts the whole plan; no partial set of operations is ever surfaced.
type PlanError struct {
	EditIndex int
	Entry     string
	Err       error
}

func (e *PlanError) Error() string {
	if e.EditIndex < 0 {
		return fmt.Sprintf("edit for entry %q: %v", e.Entry, e.Err)
	}
	return fmt.Sprintf("edit %d (entry %q): %v", e.EditIndex+1, e.Entry, e.Err)
}

func (e *PlanError) Unwrap() error {
	return e.Err
}
