package election

import "errors"

// Error kinds. Every rejection returned by an Election matches exactly one of
// these through errors.Is, in addition to its own sentinel.
var (
	ErrPhase        = errors.New("phase violation")
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalid      = errors.New("invalid argument")
)

type electionError struct {
	reason string
	kind   error
}

func (e *electionError) Error() string {
	return e.reason
}

func (e *electionError) Is(target error) bool {
	return target == e.kind
}

func newError(kind error, reason string) error {
	return &electionError{reason: reason, kind: kind}
}

var (
	ErrRegistrationOver = newError(ErrPhase, "registration period over")
	ErrVotingOver       = newError(ErrPhase, "voting period over")

	ErrOnlyAdmin           = newError(ErrUnauthorized, "only the admin may perform this action")
	ErrOnlyShareholders    = newError(ErrUnauthorized, "only shareholders may perform this action")
	ErrAdminNotShareholder = newError(ErrUnauthorized, "admin cannot be registered as a shareholder")

	ErrProposalNotFound         = newError(ErrNotFound, "proposal not found")
	ErrShareholderNotRegistered = newError(ErrNotFound, "shareholder not registered")
	ErrIndexOutOfRange          = newError(ErrNotFound, "index out of range")

	ErrShareholderAlreadyRegistered = newError(ErrConflict, "shareholder already registered")
	ErrAlreadyVoted                 = newError(ErrConflict, "shareholder already voted")
	ErrSelfDelegation               = newError(ErrConflict, "cannot delegate to oneself")
	ErrCyclicDelegation             = newError(ErrConflict, "cyclic delegation")

	ErrInvalidShares   = newError(ErrInvalid, "number of shares must be positive")
	ErrZeroAddress     = newError(ErrInvalid, "address must not be zero")
	ErrInvalidSchedule = newError(ErrInvalid, "start time must be before end time")
	ErrWeightOverflow  = newError(ErrInvalid, "vote weight overflow")
)
