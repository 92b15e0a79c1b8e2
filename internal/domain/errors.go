package domain

import "errors"

var (
	ErrNotFound              = errors.New("not found")
	ErrUnsupportedCurrency   = errors.New("unsupported quote currency")
	ErrProtectionNotAttached = errors.New("protective order not attached")
	ErrHalted                = errors.New("engine halted")
	ErrInvalidStopDistance   = errors.New("invalid stop distance")
)
