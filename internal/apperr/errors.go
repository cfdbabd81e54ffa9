package apperr

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/fekuna/omnipos-lending-service/pkg/postgres"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindStateConflict
	KindInsufficientStock
	KindPaymentNotConfirmed
	KindNotFound
	KindAborted
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindStateConflict:
		return "state_conflict"
	case KindInsufficientStock:
		return "insufficient_stock"
	case KindPaymentNotConfirmed:
		return "payment_not_confirmed"
	case KindNotFound:
		return "not_found"
	case KindAborted:
		return "aborted"
	default:
		return "internal"
	}
}

// Error is a recoverable domain failure. Two errors match under errors.Is
// when their codes are equal, so sentinels can be compared against errors
// that carry extra detail.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	// Remaining is the number of units still approvable, set on
	// insufficient-stock failures.
	Remaining *int
	// Fields lists offending inputs on validation failures.
	Fields []string
}

func (e *Error) Error() string {
	if e.Remaining != nil {
		return fmt.Sprintf("%s: %s (remaining %d)", e.Code, e.Message, *e.Remaining)
	}
	if len(e.Fields) > 0 {
		return fmt.Sprintf("%s: %s [%s]", e.Code, e.Message, strings.Join(e.Fields, ", "))
	}
	return e.Code + ": " + e.Message
}

func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

var (
	ErrValidation    = &Error{Kind: KindValidation, Code: "invalid_input", Message: "invalid input"}
	ErrInvalidReason = &Error{Kind: KindValidation, Code: "invalid_reason", Message: "rejection reason must be at least 3 characters"}

	ErrNotPending              = &Error{Kind: KindStateConflict, Code: "not_pending", Message: "loan is not pending"}
	ErrNotApproved             = &Error{Kind: KindStateConflict, Code: "not_approved", Message: "loan is not approved"}
	ErrNotBorrowed             = &Error{Kind: KindStateConflict, Code: "not_borrowed", Message: "loan is not borrowed"}
	ErrAlreadyReturned         = &Error{Kind: KindStateConflict, Code: "already_returned", Message: "loan already has a return"}
	ErrNotAwaitingConfirmation = &Error{Kind: KindStateConflict, Code: "not_awaiting_confirmation", Message: "return is not awaiting confirmation"}
	ErrEquipmentUnavailable    = &Error{Kind: KindStateConflict, Code: "equipment_unavailable", Message: "equipment is not available for lending"}

	ErrInsufficientStock   = &Error{Kind: KindInsufficientStock, Code: "insufficient_stock", Message: "not enough stock"}
	ErrPaymentNotConfirmed = &Error{Kind: KindPaymentNotConfirmed, Code: "payment_not_confirmed", Message: "fee payment has not been confirmed"}

	ErrLoanNotFound      = &Error{Kind: KindNotFound, Code: "loan_not_found", Message: "loan not found"}
	ErrEquipmentNotFound = &Error{Kind: KindNotFound, Code: "equipment_not_found", Message: "equipment not found"}
	ErrReturnNotFound    = &Error{Kind: KindNotFound, Code: "return_not_found", Message: "return not found"}

	ErrConcurrentUpdate = &Error{Kind: KindAborted, Code: "concurrent_update", Message: "a concurrent transaction changed the same rows"}
)

// InsufficientStock builds an insufficient-stock error reporting how many
// units remain. Negative values are reported as zero.
func InsufficientStock(remaining int) *Error {
	if remaining < 0 {
		remaining = 0
	}
	e := *ErrInsufficientStock
	e.Remaining = &remaining
	return &e
}

func Validation(message string, fields ...string) *Error {
	e := *ErrValidation
	e.Message = message
	e.Fields = fields
	return &e
}

// FromValidator converts validator/v10 failures into a validation error.
// Other errors are returned unchanged.
func FromValidator(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s:%s", fe.Field(), fe.Tag()))
	}
	return Validation("invalid input", fields...)
}

// KindOf returns the kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// FromTx reports Postgres serialization and deadlock failures as
// ErrConcurrentUpdate. The caller may retry; the core never does.
func FromTx(err error) error {
	if postgres.IsSerializationFailure(err) {
		return fmt.Errorf("%w: %v", ErrConcurrentUpdate, err)
	}
	return err
}
