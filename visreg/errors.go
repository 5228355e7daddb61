package visreg

import "errors"

var (
	// ErrNoFeature is returned by Pipeline.Run when no feature ref is configured.
	ErrNoFeature = errors.New("visreg: no feature branch configured")

	// ErrRunNotFound is returned by Archive lookups for unknown run IDs.
	ErrRunNotFound = errors.New("visreg: run not found")

	// ErrNoLedger is returned by Archive methods when no ledger is open.
	ErrNoLedger = errors.New("visreg: no ledger")

	// ErrUnknownStatus is returned for a changeset filter that is not a status.
	ErrUnknownStatus = errors.New("visreg: unknown status")
)
