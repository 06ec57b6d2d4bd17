package service

import "errors"

var (
	// ErrNoProvider is returned when an account is requested without a wallet provider.
	ErrNoProvider = errors.New("wallet provider is required to connect")
	// ErrNotConnected is returned when an operation needs a bound contract and there is none.
	ErrNotConnected = errors.New("no account connected")
	// ErrActionInFlight is returned when the same action is still waiting for confirmation.
	ErrActionInFlight = errors.New("action already in progress")
	// ErrTransactionFailed wraps submission and confirmation failures.
	ErrTransactionFailed = errors.New("transaction failed")
	// ErrNoOwner is returned when ownership transfer is requested without an address.
	ErrNoOwner = errors.New("new owner address is empty")
)
