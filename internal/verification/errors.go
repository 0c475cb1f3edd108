package verification

import (
	"errors"
	"fmt"

	"github.com/votegate/votegate/internal/ledger"
)

var (
	// ErrVoterNotFound indicates the claimed voter does not exist or is not
	// assigned where the request says. The response body never reveals which.
	ErrVoterNotFound = errors.New("voter not found or not assigned to this booth")

	// ErrAlreadyVoted is the single generic duplicate-vote rejection. The
	// same message is returned no matter how far the attempt progressed, so
	// the response cannot be used as an oracle of session state.
	ErrAlreadyVoted = errors.New("voter has already cast their vote")

	// ErrMissingEvidence indicates required step evidence was absent.
	ErrMissingEvidence = errors.New("required evidence missing for step")
)

// OutOfOrderError rejects a step submitted before its prerequisite.
type OutOfOrderError struct {
	Expected ledger.Step
	Got      ledger.Step
}

func (e *OutOfOrderError) Error() string {
	return fmt.Sprintf("step %s submitted out of order, next required step is %s", e.Got, e.Expected)
}

// BoothMismatchError rejects a voter presenting at a booth they are not assigned to.
type BoothMismatchError struct {
	VoterID string
	BoothID string
}

func (e *BoothMismatchError) Error() string {
	return fmt.Sprintf("voter %s is not assigned to booth %s", e.VoterID, e.BoothID)
}

// SecurityRejection is a threshold failure of the decision policy. It is
// always paired with a recorded fraud event.
type SecurityRejection struct {
	Step   ledger.Step
	Reason string
}

func (e *SecurityRejection) Error() string {
	return fmt.Sprintf("%s rejected: %s", e.Step, e.Reason)
}

// UpstreamError wraps a matcher or reader failure. It is retryable, is never
// logged as fraud and is never converted into a pass.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s failed: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }
