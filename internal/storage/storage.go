package storage

import "errors"

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrAccountExists   = errors.New("account already exists")
	ErrPendingNotFound = errors.New("pending registration not found")
	ErrPendingExists   = errors.New("pending registration already exists")
)
