package domain

import "errors"

var (
	ErrOrderNotFound    = errors.New("order not found")
	ErrProductNotFound  = errors.New("product not found")
	ErrCustomerNotFound = errors.New("customer not found")

	ErrInsufficientStock = errors.New("insufficient stock")
	ErrIllegalTransition = errors.New("illegal status transition")
	ErrMissingApprover   = errors.New("approval requires a staff actor")

	ErrEmailMismatch        = errors.New("email does not match order contact")
	ErrInvalidOrExpiredCode = errors.New("invalid or expired tracking code")
	ErrTooManyRequests      = errors.New("too many tracking code requests")

	ErrPermissionDenied = errors.New("permission denied")
)
