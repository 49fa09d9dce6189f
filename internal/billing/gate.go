// Package billing decides what a tenant may do with the ledger given the
// state of its own subscription to the platform.
package billing

import (
	"errors"
	"fmt"
)

type Status string

const (
	StatusTrial     Status = "TRIAL"
	StatusActive    Status = "ACTIVE"
	StatusPastDue   Status = "PAST_DUE"
	StatusSuspended Status = "SUSPENDED"
)

func (s Status) Valid() bool {
	switch s {
	case StatusTrial, StatusActive, StatusPastDue, StatusSuspended:
		return true
	}
	return false
}

// Decision is the outcome of evaluating a request against a billing status.
type Decision int

const (
	Allow Decision = iota
	ReadOnlyBlock
	FullLock
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "ALLOW"
	case ReadOnlyBlock:
		return "READ_ONLY_BLOCK"
	case FullLock:
		return "FULL_LOCK"
	}
	return fmt.Sprintf("Decision(%d)", int(d))
}

// LockedCode is the machine-readable code attached to every request refused
// because the tenant is suspended.
const LockedCode = "TENANT_SUSPENDED"

// Decide maps a billing status and request kind to a decision. It is pure:
// the same inputs always give the same answer. Statuses it does not know are
// locked.
func Decide(status Status, isMutation bool) Decision {
	switch status {
	case StatusTrial, StatusActive:
		return Allow
	case StatusPastDue:
		if isMutation {
			return ReadOnlyBlock
		}
		return Allow
	default:
		return FullLock
	}
}

// ReadOnlyError is returned for mutations while the tenant is past due.
// The caller's session stays valid and reads keep working.
type ReadOnlyError struct {
	Status Status
}

func (e *ReadOnlyError) Error() string {
	return "billing: account is past due, the ledger is read-only until the balance is settled"
}

// LockedError is returned for every request while the tenant is suspended.
type LockedError struct {
	Status Status
	Code   string
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("billing: account is locked (status %s)", e.Status)
}

// Check turns a decision into an error; nil means the request may proceed.
func Check(status Status, isMutation bool) error {
	switch Decide(status, isMutation) {
	case ReadOnlyBlock:
		return &ReadOnlyError{Status: status}
	case FullLock:
		return &LockedError{Status: status, Code: LockedCode}
	}
	return nil
}

// IsBlocked reports whether err came from the billing gate.
func IsBlocked(err error) bool {
	var ro *ReadOnlyError
	var locked *LockedError
	return errors.As(err, &ro) || errors.As(err, &locked)
}
