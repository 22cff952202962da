// Package booking holds the rules that decide what a parking booking costs,
// whether it may still be cancelled, how much of it is refunded, and which
// status changes are legal. Everything here is pure: no I/O, no clocks read
// implicitly, so the same inputs always give the same answer.
package booking

import "errors"

var (
	// ErrInvalidWindow is returned when the end of a window is not strictly
	// after its start.
	ErrInvalidWindow = errors.New("end time must be after start time")

	// ErrUnknownLot is returned when a referenced parking lot does not exist.
	ErrUnknownLot = errors.New("parking lot not found")

	// ErrUnknownService is returned when a referenced add-on service does not
	// exist or does not belong to the lot.
	ErrUnknownService = errors.New("service not found")

	// ErrVehicleNotSupported is returned when the lot does not accept the
	// requested vehicle type.
	ErrVehicleNotSupported = errors.New("vehicle type not supported by this lot")

	// ErrInvalidDiscount is returned for a negative discount.
	ErrInvalidDiscount = errors.New("discount must not be negative")

	// ErrIllegalTransition is returned when an event is not allowed from the
	// booking's current status.
	ErrIllegalTransition = errors.New("illegal status transition")

	// ErrNotCancellable is returned when a cancellation is requested for a
	// booking that fails the cancellation gate.
	ErrNotCancellable = errors.New("booking can no longer be cancelled")
)
