package domain

import "errors"

// Sentinel errors for the error kinds recognized across the core, per
// spec §7. Call sites wrap these with fmt.Errorf("...: %w", ErrX) to add
// context without losing errors.Is compatibility.
var (
	// ErrInvalidPayload is returned by the bus client when a payload fails
	// schema validation at publish time.
	ErrInvalidPayload = errors.New("invalid payload")

	// ErrBusUnavailable is returned when the broker cannot be reached
	// after retrying; the message is retained in the bounded outbox.
	ErrBusUnavailable = errors.New("event bus unavailable")

	// ErrUnknownHospital is returned when a command references a hospital
	// id outside the closed three-hospital set.
	ErrUnknownHospital = errors.New("unknown hospital")

	// ErrUnknownConsultRoom is returned when a command references a
	// consult room index that does not exist for the hospital.
	ErrUnknownConsultRoom = errors.New("unknown consult room")

	// ErrInsufficientOnCall is returned when a scale-up is requested but
	// the on-call pool does not hold enough free doctors; no partial
	// scale-up is applied.
	ErrInsufficientOnCall = errors.New("insufficient on-call doctors")

	// ErrInvariantViolation marks a flow-engine post-condition failure
	// (e.g. a resource counter would go negative). Fatal to the current
	// patient only.
	ErrInvariantViolation = errors.New("invariant violation")

	// ErrPredictorUnavailable marks the advanced forecaster dependency as
	// unavailable; callers fall back to a profile-only forecast.
	ErrPredictorUnavailable = errors.New("predictor unavailable")
)
