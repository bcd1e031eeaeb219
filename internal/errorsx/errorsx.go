package errorsx

import "errors"

// ReasonCode is a short machine-readable error reason.
type ReasonCode string

const (
	ReasonUnknown ReasonCode = "unknown"

	ReasonCameraPermission  ReasonCode = "camera_permission"
	ReasonCameraUnavailable ReasonCode = "camera_unavailable"
	ReasonCameraConstraint  ReasonCode = "camera_constraint"

	ReasonLabelSource ReasonCode = "label_source"

	ReasonTranslate   ReasonCode = "translate"
	ReasonSpeech      ReasonCode = "speech"
	ReasonCircuitOpen ReasonCode = "circuit_open"
)

// ReasonedError wraps an error with a reason code.
type ReasonedError struct {
	Err    error
	Reason ReasonCode
}

func (e ReasonedError) Error() string {
	if e.Err == nil {
		return string(e.Reason)
	}
	return e.Err.Error()
}

func (e ReasonedError) Unwrap() error {
	return e.Err
}

// Wrap attaches a reason code to an error. Nil errors and errors that already
// carry a reason are returned unchanged.
func Wrap(err error, reason ReasonCode) error {
	if err == nil {
		return nil
	}
	var re ReasonedError
	if errors.As(err, &re) {
		return err
	}
	return ReasonedError{Err: err, Reason: reason}
}

// Reason extracts the reason code from err.
func Reason(err error) ReasonCode {
	if err == nil {
		return ReasonUnknown
	}
	var re ReasonedError
	if errors.As(err, &re) {
		return re.Reason
	}
	return ReasonUnknown
}

func HasReason(err error, reason ReasonCode) bool {
	return Reason(err) == reason
}
