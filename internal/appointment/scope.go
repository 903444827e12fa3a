package appointment

import (
	"fmt"
	"time"
)

// Scope selects which occurrences of a series a mutation applies to.
type Scope string

const (
	// ScopeThisOccurrence applies the mutation to the target alone.
	ScopeThisOccurrence Scope = "THIS_OCCURRENCE"
	// ScopeThisAndFuture applies the mutation to the target and every later
	// occurrence in the same state.
	ScopeThisAndFuture Scope = "THIS_AND_ALL_FUTURE_OCCURRENCES"
	// ScopeAllFuture applies the mutation to every occurrence currently in
	// the matching state, regardless of position relative to the target.
	ScopeAllFuture Scope = "ALL_FUTURE_OCCURRENCES"
)

// ParseScope resolves a canonical scope name.
func ParseScope(name string) (Scope, error) {
	switch Scope(name) {
	case ScopeThisOccurrence, ScopeThisAndFuture, ScopeAllFuture:
		return Scope(name), nil
	}
	return "", fmt.Errorf("appointment: invalid scope %q", name)
}

// Operation identifies the kind of mutation a scope is resolved for. Cancel
// and uncancel require opposite starting states on the target.
type Operation int

const (
	// OperationEdit updates occurrence details without changing state.
	OperationEdit Operation = iota
	// OperationCancel cancels scheduled occurrences.
	OperationCancel
	// OperationUncancel restores cancelled occurrences.
	OperationUncancel
)

func (op Operation) action() string {
	switch op {
	case OperationCancel:
		return "cancel"
	case OperationUncancel:
		return "uncancel"
	default:
		return "edit"
	}
}

// ScopeError reports a precondition failure during scope resolution. Nothing
// is mutated when one is returned.
type ScopeError struct {
	Action  string
	Message string
}

func (e *ScopeError) Error() string {
	return e.Message
}

func notEditableError(op Operation) *ScopeError {
	return &ScopeError{
		Action:  op.action(),
		Message: fmt.Sprintf("Cannot %s an occurrence more than 5 days ago", op.action()),
	}
}

func deletedTargetError(op Operation) *ScopeError {
	return &ScopeError{
		Action:  op.action(),
		Message: fmt.Sprintf("Cannot %s a deleted occurrence", op.action()),
	}
}

func wrongStateError(op Operation) *ScopeError {
	switch op {
	case OperationUncancel:
		return &ScopeError{Action: "uncancel", Message: "Cannot uncancel an occurrence that is not cancelled"}
	case OperationCancel:
		return &ScopeError{Action: "cancel", Message: "Cannot cancel an occurrence that is already cancelled"}
	default:
		return &ScopeError{Action: "edit", Message: "Cannot edit a cancelled occurrence"}
	}
}

// ResolveScope translates a (target, scope, operation) triple into the exact
// occurrence set the mutation must touch. The set is computed in full before
// any mutation is applied so callers can compare its cost against the bulk
// threshold first. Occurrences are returned in sequence order.
func (s *Series) ResolveScope(targetID string, scope Scope, op Operation, now time.Time) ([]*Occurrence, error) {
	target, ok := s.Occurrence(targetID)
	if !ok {
		return nil, ErrOccurrenceNotFound
	}

	if target.IsDeleted() {
		return nil, deletedTargetError(op)
	}
	if !target.IsEditable(now) {
		return nil, notEditableError(op)
	}
	if op == OperationUncancel {
		if !target.IsCancelled() {
			return nil, wrongStateError(op)
		}
	} else if target.IsCancelled() {
		return nil, wrongStateError(op)
	}

	matches := func(occurrence *Occurrence) bool {
		if op == OperationUncancel {
			return occurrence.IsCancelled()
		}
		return occurrence.IsScheduled(now)
	}

	switch scope {
	case ScopeThisOccurrence:
		return []*Occurrence{target}, nil
	case ScopeThisAndFuture:
		out := []*Occurrence{target}
		for _, occurrence := range s.Occurrences {
			if occurrence.ID == target.ID {
				continue
			}
			if occurrence.StartDateTime().After(target.StartDateTime()) && matches(occurrence) {
				out = append(out, occurrence)
			}
		}
		return out, nil
	case ScopeAllFuture:
		var out []*Occurrence
		for _, occurrence := range s.Occurrences {
			if occurrence.ID == target.ID || matches(occurrence) {
				out = append(out, occurrence)
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("appointment: invalid scope %q", scope)
	}
}
