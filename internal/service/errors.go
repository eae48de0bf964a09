package service

import "errors"

var (
	// ErrUsernameTaken is returned when registering a username that already exists.
	ErrUsernameTaken = errors.New("username taken")
	// ErrInvalidUsername rejects empty or reserved usernames at registration.
	ErrInvalidUsername = errors.New("invalid username")
	// ErrInvalidPassword rejects an empty password at registration.
	ErrInvalidPassword = errors.New("password is required")
	// ErrUserNotFound indicates that no user with the given username is registered.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidCredentials indicates that the password does not match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrSessionNotFound    = errors.New("session not found")

	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrSelfTransfer        = errors.New("cannot transfer to self")
	ErrRecipientNotFound   = errors.New("recipient not found")

	// ErrPersistence means a mutation could not be made durable and was rolled back.
	ErrPersistence = errors.New("persistence failure")
	// ErrCorruptLedger is returned when stored accounts fail reconciliation at load.
	ErrCorruptLedger = errors.New("corrupt ledger")
)
