package models

import "errors"

var (
	ErrNotFound             = errors.New("not found")
	ErrAlreadyExists        = errors.New("already exists")
	ErrForbidden            = errors.New("forbidden")
	ErrValidation           = errors.New("validation failed")
	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrSubscriptionRequired = errors.New("active subscription required")
	ErrPremiumRequired      = errors.New("premium membership required")
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrInactiveAccount      = errors.New("account is not active")
	ErrInvalidCode          = errors.New("invalid or expired code")
	ErrQueueFull            = errors.New("queue is full")
	ErrGatewayUnavailable   = errors.New("payment gateway unavailable")
)
