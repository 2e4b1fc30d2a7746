package ruleerrors

import (
	"fmt"

	"github.com/flamenet/flamed/domain/consensus/model/externalapi"
	"github.com/pkg/errors"
)

// These constants are used to identify a specific RuleError.
var (
	// ErrDuplicateBag indicates a bag with the same id was already submitted.
	ErrDuplicateBag = newRuleError("ErrDuplicateBag")

	// ErrUnknownBag indicates an operation referenced a bag id that is not
	// in the bag arena.
	ErrUnknownBag = newRuleError("ErrUnknownBag")

	// ErrMissingAncestor indicates a bag lists an ancestor that is not in
	// the bag arena.
	ErrMissingAncestor = newRuleError("ErrMissingAncestor")

	// ErrWrongBagHeight indicates a bag's height is not strictly greater
	// than the height of each of its ancestors.
	ErrWrongBagHeight = newRuleError("ErrWrongBagHeight")

	// ErrIncompatibleBags indicates two bags cannot be merged into one
	// block. The inner error carries the reason and the conflicting ids.
	ErrIncompatibleBags = newRuleError("ErrIncompatibleBags")

	// ErrAncestorMismatch indicates bags (or ancestor paths) disagree about
	// the ancestor set of some height inside the maturation window.
	ErrAncestorMismatch = newRuleError("ErrAncestorMismatch")

	// ErrExtMismatch indicates bags merged into one block carry different
	// ext blobs.
	ErrExtMismatch = newRuleError("ErrExtMismatch")

	// ErrTimestampTooOld indicates a bag timestamp is not after the median
	// time past of its ancestor window.
	ErrTimestampTooOld = newRuleError("ErrTimestampTooOld")

	// ErrTimestampTooFarInFuture indicates a bag timestamp is beyond the
	// tolerated wall-clock drift.
	ErrTimestampTooFarInFuture = newRuleError("ErrTimestampTooFarInFuture")

	// ErrBagSizeExceeded indicates a single bag is over the governed size
	// limit for its height.
	ErrBagSizeExceeded = newRuleError("ErrBagSizeExceeded")

	// ErrBlockSizeExceeded indicates the assembled block is over the
	// governed size limit for its height.
	ErrBlockSizeExceeded = newRuleError("ErrBlockSizeExceeded")

	// ErrInvalidTransaction indicates a merged transaction is invalid under
	// the block timestamp. The inner error identifies the transaction.
	ErrInvalidTransaction = newRuleError("ErrInvalidTransaction")

	// ErrDoubleSpend indicates two transactions consume the same output.
	// The inner error identifies the offending transaction.
	ErrDoubleSpend = newRuleError("ErrDoubleSpend")

	// ErrNoBags indicates block assembly was attempted with no bags.
	ErrNoBags = newRuleError("ErrNoBags")

	// ErrZeroBurn indicates the merged bags carry no burned value, so no
	// reward split is defined.
	ErrZeroBurn = newRuleError("ErrZeroBurn")

	// ErrBidLocktimeMismatch indicates a bid's locktime does not equal the
	// target anchor height for its bag.
	ErrBidLocktimeMismatch = newRuleError("ErrBidLocktimeMismatch")

	// ErrNotContiguous indicates a block's prev does not reference the
	// prior canonical block.
	ErrNotContiguous = newRuleError("ErrNotContiguous")

	// ErrLowerWeight indicates a competing chain does not have strictly
	// greater total weight than the current tip.
	ErrLowerWeight = newRuleError("ErrLowerWeight")

	// ErrInvalidAfterReorg indicates a chain failed replay validation after
	// an anchor-chain reorganization.
	ErrInvalidAfterReorg = newRuleError("ErrInvalidAfterReorg")

	// ErrChainBanned indicates a chain identity was previously rejected and
	// is excluded from consideration.
	ErrChainBanned = newRuleError("ErrChainBanned")

	// ErrUnknownPrev indicates a candidate chain references an unknown
	// predecessor block.
	ErrUnknownPrev = newRuleError("ErrUnknownPrev")

	// ErrUnconfirmedBid indicates a bag's bid has not confirmed on the
	// anchor chain (or has not reached the confirmation depth).
	ErrUnconfirmedBid = newRuleError("ErrUnconfirmedBid")
)

// RuleError identifies a rule violation. It is used to indicate that
// processing of a bag or block failed due to one of the many validation
// rules. The caller can use errors.As to determine if a failure was
// specifically due to a rule violation.
type RuleError struct {
	message string
	inner   error
}

// Error satisfies the error interface and prints human-readable errors.
func (e RuleError) Error() string {
	if e.inner != nil {
		return e.message + ": " + e.inner.Error()
	}
	return e.message
}

// Unwrap satisfies the errors.Unwrap interface
func (e RuleError) Unwrap() error {
	return e.inner
}

// Cause satisfies the github.com/pkg/errors.Cause interface
func (e RuleError) Cause() error {
	return e.inner
}

func newRuleError(message string) RuleError {
	return RuleError{message: message, inner: nil}
}

// Is lets errors.Is match wrapped RuleErrors against the sentinel values
// above by message, ignoring the structured inner payload.
func (e RuleError) Is(target error) bool {
	if t, ok := target.(RuleError); ok {
		return e.message == t.message
	}
	return false
}

// IncompatibleBags describes why two bags cannot be merged.
type IncompatibleBags struct {
	Reason            string
	ConflictingBagIDs []*externalapi.DomainHash
}

func (e IncompatibleBags) Error() string {
	return fmt.Sprintf("%s (bags: %v)", e.Reason, e.ConflictingBagIDs)
}

// NewErrIncompatibleBags creates a new ErrIncompatibleBags error wrapped in
// a RuleError.
func NewErrIncompatibleBags(reason string, conflicting []*externalapi.DomainHash) error {
	return errors.WithStack(RuleError{
		message: "ErrIncompatibleBags",
		inner:   IncompatibleBags{Reason: reason, ConflictingBagIDs: conflicting},
	})
}

// NewErrAncestorMismatch creates a new ErrAncestorMismatch error wrapped in
// a RuleError.
func NewErrAncestorMismatch(reason string, conflicting []*externalapi.DomainHash) error {
	return errors.WithStack(RuleError{
		message: "ErrAncestorMismatch",
		inner:   IncompatibleBags{Reason: reason, ConflictingBagIDs: conflicting},
	})
}

// InvalidTransaction identifies an invalid transaction by its index in the
// merged sequence and its id, together with the reason it was rejected.
type InvalidTransaction struct {
	Index  int
	TxID   *externalapi.DomainHash
	Reason string
}

func (e InvalidTransaction) Error() string {
	return fmt.Sprintf("transaction %d (%s): %s", e.Index, e.TxID, e.Reason)
}

// NewErrInvalidTransaction creates a new ErrInvalidTransaction error wrapped
// in a RuleError.
func NewErrInvalidTransaction(index int, txID *externalapi.DomainHash, reason string) error {
	return errors.WithStack(RuleError{
		message: "ErrInvalidTransaction",
		inner:   InvalidTransaction{Index: index, TxID: txID, Reason: reason},
	})
}

// NewErrDoubleSpend creates a new ErrDoubleSpend error wrapped in a
// RuleError.
func NewErrDoubleSpend(index int, txID *externalapi.DomainHash, reason string) error {
	return errors.WithStack(RuleError{
		message: "ErrDoubleSpend",
		inner:   InvalidTransaction{Index: index, TxID: txID, Reason: reason},
	})
}

// NewRuleError wraps one of the sentinel RuleErrors above with a stack trace
// and a formatted detail message.
func NewRuleError(sentinel RuleError, format string, args ...interface{}) error {
	return errors.WithStack(RuleError{
		message: sentinel.message,
		inner:   errors.Errorf(format, args...),
	})
}
