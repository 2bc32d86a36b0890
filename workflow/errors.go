package workflow

import (
	"errors"

	"github.com/foodtrust/foodtrust_backend/ledger"
	"github.com/foodtrust/foodtrust_backend/models"
	"github.com/foodtrust/foodtrust_backend/store"
)

var (
	ErrInvalidInput          = errors.New("invalid input")
	ErrRestaurantNotFound    = errors.New("restaurant not found")
	ErrNotFound              = errors.New("certification not found")
	ErrAuditorNotFound       = errors.New("auditor not found")
	ErrUserNotFound          = errors.New("user not found")
	ErrDuplicatePending      = errors.New("a pending request for this certification type already exists")
	ErrNotPending            = errors.New("certification is not pending")
	ErrAuditorInactive       = errors.New("auditor is not active")
	ErrAuditorNotSpecialized = errors.New("auditor is not specialized in this certification type")
	ErrIssuanceFailed        = errors.New("certification token issuance failed")

	// ErrIssuanceInProgress means an earlier payment for the certification may
	// still be applied by the network. Retry after its time bound passes.
	ErrIssuanceInProgress = errors.New("certification token issuance in progress")

	ErrRestaurantHasPending = errors.New("restaurant has pending certification requests")
	ErrEmailTaken           = errors.New("email already registered")
	ErrInvalidCredentials   = errors.New("invalid email or password")
	ErrForbidden            = errors.New("not allowed")
)

type Category int

const (
	CategoryInternal Category = iota
	CategoryNotFound
	CategoryConflict
	CategoryUnauthorized
	CategoryUpstreamFailure
	CategoryInvalidInput
)

func (c Category) String() string {
	switch c {
	case CategoryNotFound:
		return "NotFound"
	case CategoryConflict:
		return "Conflict"
	case CategoryUnauthorized:
		return "Unauthorized"
	case CategoryUpstreamFailure:
		return "UpstreamFailure"
	case CategoryInvalidInput:
		return "InvalidInput"
	}
	return "Internal"
}

func isAny(err error, targets ...error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}

// Classify maps an error returned by the engine to a caller-facing category.
func Classify(err error) Category {
	switch {
	case err == nil:
		return CategoryInternal
	case isAny(err, ErrInvalidInput, models.ErrInvalidCertificationType, ledger.ErrInvalidAddress, ledger.ErrInvalidSecret):
		return CategoryInvalidInput
	case isAny(err, ErrIssuanceFailed, ErrIssuanceInProgress):
		return CategoryUpstreamFailure
	case isAny(err, ErrNotFound, ErrRestaurantNotFound, ErrAuditorNotFound, ErrUserNotFound, store.ErrNotFound):
		return CategoryNotFound
	case isAny(err, ErrDuplicatePending, ErrNotPending, ErrRestaurantHasPending, ErrEmailTaken, ErrLockNotObtained,
		store.ErrDuplicate, store.ErrConflict):
		return CategoryConflict
	case isAny(err, ErrAuditorInactive, ErrAuditorNotSpecialized, ErrInvalidCredentials, ErrForbidden):
		return CategoryUnauthorized
	}
	switch ledger.KindOf(err) {
	case 0:
		return CategoryInternal
	case ledger.KindInvalidAsset:
		return CategoryInvalidInput
	default:
		return CategoryUpstreamFailure
	}
}

// Retryable reports whether repeating the same call may succeed without any
// change on the caller's side.
func Retryable(err error) bool {
	if Classify(err) != CategoryUpstreamFailure {
		return false
	}
	switch ledger.KindOf(err) {
	case ledger.KindInvalidAsset, ledger.KindIssuerNotConfigured:
		return false
	}
	return true
}
