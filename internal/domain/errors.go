package domain

import "errors"

// Kind classifies an error by how callers are expected to react to it.
type Kind string

const (
	KindValidation    Kind = "validation"     // malformed or out-of-range input
	KindStateConflict Kind = "state_conflict" // record is in the wrong status; try another
	KindAuthorization Kind = "authorization"  // missing capability or ownership
	KindResource      Kind = "resource"       // funds, eligibility, existence
	KindConfiguration Kind = "configuration"  // broken fee configuration
	KindInternal      Kind = "internal"
)

// Error is a typed protocol error. Sentinels below are compared with errors.Is;
// operations wrap them with context using fmt.Errorf("pkg.Op: %w", err).
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string { return e.Message }

func newError(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

var (
	ErrInvalidParameters = newError(KindValidation, "invalid_parameters", "invalid parameters")
	ErrInvalidPrices     = newError(KindValidation, "invalid_prices", "invalid price array")
	ErrSelfMatch         = newError(KindValidation, "self_match_forbidden", "bids cannot be matched against the same squad or creator")
	ErrIncompatibleBids  = newError(KindValidation, "incompatible_bids", "bids must have equal wager and duration")
	ErrDecode            = newError(KindValidation, "decode_error", "stored record could not be decoded")

	ErrBidNotOpen       = newError(KindStateConflict, "bid_not_open", "bid is not open")
	ErrAlreadyMatched   = newError(KindStateConflict, "already_matched", "bid is already matched")
	ErrAlreadyCancelled = newError(KindStateConflict, "already_cancelled", "bid is already cancelled")
	ErrAlreadySettled   = newError(KindStateConflict, "already_settled", "match is already settled")
	ErrAlreadyClaimed   = newError(KindStateConflict, "already_claimed", "prize already claimed")
	ErrNotSettled       = newError(KindStateConflict, "not_settled", "match is not settled")
	ErrMatchNotEnded    = newError(KindStateConflict, "match_not_ended", "match has not reached its end time")
	ErrGraceNotElapsed  = newError(KindStateConflict, "grace_not_elapsed", "bid is still inside its grace window")

	ErrNotAuthorized     = newError(KindAuthorization, "not_authorized", "requester is not authorized")
	ErrNotWinner         = newError(KindAuthorization, "not_winner", "claimant is not the winner")
	ErrMissingCapability = newError(KindAuthorization, "missing_capability", "caller lacks the required capability")

	ErrInsufficientFunds = newError(KindResource, "insufficient_funds", "insufficient funds")
	ErrSquadNotEligible  = newError(KindResource, "squad_not_eligible", "squad is not eligible")
	ErrNotFound          = newError(KindResource, "not_found", "not found")

	ErrConfiguration = newError(KindConfiguration, "configuration_error", "invalid fee configuration")
)

// KindOf returns the Kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf returns the Code of the first *Error in err's chain, or "internal".
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "internal"
}

// IsStateConflict reports whether err is an expected lost-race outcome.
func IsStateConflict(err error) bool {
	return KindOf(err) == KindStateConflict
}
