// Package schederr defines the sentinel error kinds raised by the
// scheduling core, grounded on Cobalt's Cobalt.Exceptions module
// (UnmanagedResourceError, InvalidStatusError, ResourceReservationFailure)
// and extended with the bridge-facing kinds spec.md §7 calls for.
package schederr

import "errors"

// Sentinel kinds. Wrap with fmt.Errorf("...: %w", ErrX) and unwrap with
// errors.Is, following the teacher's fmt.Errorf(...: %w", err) style.
var (
	// ErrUnmanagedResource is returned for any operation attempted on a
	// node not under the scheduler's control.
	ErrUnmanagedResource = errors.New("unmanaged resource")

	// ErrInvalidStatus is returned when a caller attempts to set a
	// resource status outside the enumerated status set.
	ErrInvalidStatus = errors.New("invalid status")

	// ErrResourceReservationFailure is returned when a reservation
	// collides with an existing hold owned by a different (user, jobid).
	ErrResourceReservationFailure = errors.New("resource reservation failure")

	// ErrBridgeUnavailable marks a transient failure contacting the
	// external placement service.
	ErrBridgeUnavailable = errors.New("bridge unavailable")

	// ErrInventoryMismatch marks a bridge-reported node the fleet does
	// not know about.
	ErrInventoryMismatch = errors.New("inventory mismatch")

	// ErrDataCreation marks a malformed process-group spec rejected at
	// the facade boundary.
	ErrDataCreation = errors.New("malformed data")
)
