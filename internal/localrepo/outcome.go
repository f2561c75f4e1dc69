package localrepo

import "fmt"

// Outcome classifies how a push attempt ended.
type Outcome string

const (
	OutcomeSuccess    Outcome = "success"
	OutcomeFail       Outcome = "fail"
	OutcomeTerminated Outcome = "terminated"
)

// PushError is the classified terminal outcome of a push. The Success variant
// flows through the same channel: a push that resolves via an error-shaped
// signal (e.g. the remote already being up to date) is reported as
// PushError{Type: OutcomeSuccess}, and consumers treat it as a success.
type PushError struct {
	Type    Outcome
	Message string
}

func (e *PushError) Error() string {
	return fmt.Sprintf("push %s: %s", e.Type, e.Message)
}

// AsPushError returns the classified outcome, or nil for unclassified errors.
func AsPushError(err error) *PushError {
	if err == nil {
		return nil
	}
	pe, ok := err.(*PushError)
	if !ok {
		return nil
	}
	return pe
}
