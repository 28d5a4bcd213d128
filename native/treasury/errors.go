package treasury

import "errors"

// Kind classifies a rejection so callers can react without string matching.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindAuthorization
	KindNotFound
	KindInvalidInput
	KindStateConflict
	KindResourceExhaustion
	KindZeroDeposit
)

// String returns the stable wire name of the kind.
func (k Kind) String() string {
	switch k {
	case KindAuthorization:
		return "authorization"
	case KindNotFound:
		return "not_found"
	case KindInvalidInput:
		return "invalid_input"
	case KindStateConflict:
		return "state_conflict"
	case KindResourceExhaustion:
		return "resource_exhaustion"
	case KindZeroDeposit:
		return "zero_deposit"
	default:
		return "unknown"
	}
}

// Error is a typed rejection. Every sentinel below is a distinct *Error so
// errors.Is matches by identity even after fmt.Errorf("%w") wrapping.
type Error struct {
	Kind Kind
	Code string
	msg  string
}

func (e *Error) Error() string { return "treasury: " + e.msg }

func newError(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, msg: msg}
}

var (
	ErrNotOwner     = newError(KindAuthorization, "not_owner", "caller is not the owner")
	ErrNotAuthority = newError(KindAuthorization, "not_authority", "caller is not an authority")
	ErrNotRecipient = newError(KindAuthorization, "not_recipient", "caller is not the proposal recipient")

	ErrProposalNotFound = newError(KindNotFound, "proposal_not_found", "proposal does not exist")
	ErrUnknownAuthority = newError(KindNotFound, "unknown_authority", "authority not registered")

	ErrEmptyDescription = newError(KindInvalidInput, "empty_description", "description must not be empty")
	ErrZeroAmount       = newError(KindInvalidInput, "zero_amount", "requested amount must be greater than zero")
	ErrInvalidRecipient = newError(KindInvalidInput, "invalid_recipient", "invalid recipient address")
	ErrInvalidThreshold = newError(KindInvalidInput, "invalid_threshold", "required approvals must be between 1 and the authority count")
	ErrEmptyReport      = newError(KindInvalidInput, "empty_report", "stage report must not be empty")
	ErrInvalidAuthority = newError(KindInvalidInput, "invalid_authority", "authority address must not be zero")
	ErrAmountOverflow   = newError(KindInvalidInput, "amount_overflow", "amount overflows the treasury ledger")

	ErrDuplicateAuthority   = newError(KindStateConflict, "duplicate_authority", "authority already registered")
	ErrAlreadyVoted         = newError(KindStateConflict, "already_voted", "already voted on this proposal")
	ErrAlreadyApproved      = newError(KindStateConflict, "already_approved", "proposal already approved")
	ErrAlreadyApprovedStage = newError(KindStateConflict, "already_approved_stage", "already approved this stage")
	ErrAlreadyLocked        = newError(KindStateConflict, "already_locked", "stage report already submitted")
	ErrWrongStage           = newError(KindStateConflict, "wrong_stage", "proposal is not in the reporting stage")
	ErrAlreadyReleased      = newError(KindStateConflict, "already_released", "initial funds already released")
	ErrAlreadyExecuted      = newError(KindStateConflict, "already_executed", "proposal already executed")
	ErrStageNotCleared      = newError(KindStateConflict, "stage_not_cleared", "stage has not reached required approvals")
	ErrStageAlreadyCleared  = newError(KindStateConflict, "stage_already_cleared", "stage already has the required approvals")
	ErrNotLocked            = newError(KindStateConflict, "not_locked", "no stage report submitted")
	ErrNotApproved          = newError(KindStateConflict, "not_approved", "proposal is not approved")

	ErrInsufficientTreasury        = newError(KindResourceExhaustion, "insufficient_treasury", "insufficient treasury balance")
	ErrMinimumAuthoritiesViolation = newError(KindResourceExhaustion, "minimum_authorities_violation", "removal would leave fewer authorities than required approvals")

	ErrZeroDeposit = newError(KindZeroDeposit, "zero_deposit", "deposit must be greater than zero")
)

// AsError extracts the typed rejection from err, if any.
func AsError(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// KindOf returns the kind of a treasury rejection, or KindUnknown for any
// other error.
func KindOf(err error) Kind {
	if typed, ok := AsError(err); ok {
		return typed.Kind
	}
	return KindUnknown
}
