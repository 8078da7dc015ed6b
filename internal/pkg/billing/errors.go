package billing

import "errors"

// User errors: returned synchronously to the checkout caller, never leave
// partial state.
var (
	ErrCodeNotFound       = errors.New("gift code not found or inactive")
	ErrCodeNotYetValid    = errors.New("gift code not yet valid")
	ErrCodeExpired        = errors.New("gift code expired")
	ErrCodeExhausted      = errors.New("gift code usage limit reached")
	ErrCodeWrongProduct   = errors.New("gift code restricted to a different product")
	ErrProductUnavailable = errors.New("product unavailable")
	ErrInvalidCycle       = errors.New("invalid billing cycle")
)

// Configuration errors: operator problems, not user problems.
var ErrCatalogNotSynchronized = errors.New("catalog not synchronized with gateway")

// Reconciliation errors: the event is acknowledged but flagged for the
// operator queue instead of being retried forever.
var (
	ErrUnknownProduct    = errors.New("event references unknown product")
	ErrUnknownPayment    = errors.New("event references unknown payment")
	ErrUnknownCustomer   = errors.New("event references unknown gateway customer")
	ErrInvalidTransition = errors.New("payment status transition not allowed")
	ErrMalformedEvent    = errors.New("event payload is malformed")
)

// IsUserError reports whether err should surface as a 4xx to the checkout
// caller rather than alert an operator.
func IsUserError(err error) bool {
	for _, target := range []error{
		ErrCodeNotFound,
		ErrCodeNotYetValid,
		ErrCodeExpired,
		ErrCodeExhausted,
		ErrCodeWrongProduct,
		ErrProductUnavailable,
		ErrInvalidCycle,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// ErrorCode maps a billing error to the stable code exposed by the API.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrCodeNotFound):
		return "code_not_found"
	case errors.Is(err, ErrCodeNotYetValid):
		return "code_not_yet_valid"
	case errors.Is(err, ErrCodeExpired):
		return "code_expired"
	case errors.Is(err, ErrCodeExhausted):
		return "code_exhausted"
	case errors.Is(err, ErrCodeWrongProduct):
		return "code_wrong_product"
	case errors.Is(err, ErrProductUnavailable):
		return "product_unavailable"
	case errors.Is(err, ErrInvalidCycle):
		return "invalid_billing_cycle"
	case errors.Is(err, ErrCatalogNotSynchronized):
		return "catalog_not_synchronized"
	default:
		return "internal_error"
	}
}
