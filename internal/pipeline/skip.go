package pipeline

import (
	"errors"
	"fmt"
)

// SkipReason names the gate that rejected a case.
type SkipReason string

const (
	SkipMissingCaseID   SkipReason = "missing_case_id"
	SkipOwnerType       SkipReason = "owner_not_organization"
	SkipInvalidOwnerID  SkipReason = "invalid_owner_id"
	SkipNoBillableItems SkipReason = "no_billable_items"
)

// SkipError reports a case that was rejected by a gate. It is not a failure;
// the run continues with the next case.
type SkipError struct {
	CaseID string
	Reason SkipReason
	Detail string
}

func (e *SkipError) Error() string {
	if e.CaseID == "" {
		return fmt.Sprintf("pipeline: skip case: %s (%s)", e.Reason, e.Detail)
	}
	return fmt.Sprintf("pipeline: skip case %s: %s (%s)", e.CaseID, e.Reason, e.Detail)
}

// AsSkip reports whether err is, or wraps, a *SkipError.
func AsSkip(err error) (*SkipError, bool) {
	var skip *SkipError
	if errors.As(err, &skip) {
		return skip, true
	}
	return nil, false
}
