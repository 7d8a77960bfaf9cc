package lifecycle

import (
	"errors"
)

var (
	// ErrNoAccount is returned when no account row exists for the identity.
	ErrNoAccount = errors.New("no VPN account exists for this identity")

	// ErrIdentityUnknown is returned when the identity itself does not exist.
	ErrIdentityUnknown = errors.New("identity not found")

	// ErrIdentityInactive is returned when the identity is deactivated.
	ErrIdentityInactive = errors.New("identity is inactive")

	// ErrAlreadyCreating rejects a create while one is already in flight.
	ErrAlreadyCreating = errors.New("account creation is already in progress")

	// ErrAlreadyProvisioned rejects a create when a usable account exists.
	ErrAlreadyProvisioned = errors.New("a VPN account is already provisioned")

	// ErrCreationInProgress rejects a delete while provisioning is in flight.
	// The creating soft lock must be released (or reclaimed by the staleness
	// sweep) before a delete can be accepted.
	ErrCreationInProgress = errors.New("cannot delete while account creation is in progress")

	// ErrNotRenewable rejects a renew for statuses other than active/expired.
	ErrNotRenewable = errors.New("only active or expired accounts can be renewed")

	// ErrNotUsable is returned when a client configuration is requested for
	// an account that is not in a confirmed usable state.
	ErrNotUsable = errors.New("account is not usable")

	// ErrStateConflict is returned when a guarded transition loses the race
	// against a concurrent status change.
	ErrStateConflict = errors.New("account status changed concurrently")
)
