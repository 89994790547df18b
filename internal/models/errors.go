package models

import "errors"

// Ledger error taxonomy. Store and price source errors are wrapped with these so
// callers can branch with errors.Is.
var (
	ErrPriceUnavailable  = errors.New("price unavailable")
	ErrInvalidSymbol     = errors.New("invalid symbol: price source returned a zero price")
	ErrInsufficientUnits = errors.New("insufficient units to sell")
	ErrNotFound          = errors.New("not found")
	ErrPersistence       = errors.New("persistence failure")

	ErrInvalidTrade   = errors.New("invalid trade request")
	ErrDuplicateTrade = errors.New("trade already recorded for request id")
	ErrDivisionByZero = errors.New("division by zero computing average buy price")
	ErrAlreadyExists  = errors.New("already exists")
)
