package fulfillment

import "errors"

var (
	ErrNotFound            = errors.New("order not found")
	ErrNotPending          = errors.New("order is not pending")
	ErrInProgress          = errors.New("order is already being processed")
	ErrNoPlan              = errors.New("order has no plan")
	ErrNotTopUp            = errors.New("order is not a wallet top-up")
	ErrInsufficientBalance = errors.New("insufficient wallet balance")
	ErrForbidden           = errors.New("order belongs to another user")
	ErrPlanUnavailable     = errors.New("plan is not available")
	ErrServerUnavailable   = errors.New("server is not available")
	ErrAmountTooLow        = errors.New("amount is below the minimum charge")
)
