package access

import (
	"errors"
	"fmt"

	"burnrouter/crypto"
)

var (
	ErrNotInitialized     = errors.New("access: gate not initialised")
	ErrAlreadyInitialized = errors.New("access: gate already initialised")
	ErrUnauthorized       = errors.New("access: caller is not the owner")
	ErrNotAdminOrOwner    = errors.New("access: caller is not an admin or the owner")
	ErrSameAdmin          = errors.New("access: old and new admin are identical")
	ErrAdminAlreadyExists = errors.New("access: admin already exists")
	ErrAdminDoesNotExist  = errors.New("access: admin does not exist")
	ErrEnforcedPause      = errors.New("access: paused")
	ErrExpectedPause      = errors.New("access: not paused")
)

// UnauthorizedError carries the caller rejected by an owner-only check.
type UnauthorizedError struct {
	Caller [20]byte
}

func (e *UnauthorizedError) Error() string {
	return fmt.Sprintf("%v: %s", ErrUnauthorized, crypto.FromRaw(crypto.AccountPrefix, e.Caller))
}

func (e *UnauthorizedError) Is(target error) bool { return target == ErrUnauthorized }

// NotAdminOrOwnerError carries the caller rejected by an owner-or-admin check.
type NotAdminOrOwnerError struct {
	Caller [20]byte
}

func (e *NotAdminOrOwnerError) Error() string {
	return fmt.Sprintf("%v: %s", ErrNotAdminOrOwner, crypto.FromRaw(crypto.AccountPrefix, e.Caller))
}

func (e *NotAdminOrOwnerError) Is(target error) bool { return target == ErrNotAdminOrOwner }
