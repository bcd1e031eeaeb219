package ports

import (
	"context"

	"signspeak/internal/domain"
)

// CameraRequest describes the capture the controller asks for. Width and
// Height are preferences, not requirements.
type CameraRequest struct {
	Facing    domain.FacingMode
	Width     int
	Height    int
	FrameRate int
}

// CameraStream is a live capture session.
type CameraStream interface {
	ID() string
	Facing() domain.FacingMode
	// Stop releases every track of the stream. Safe to call more than once.
	Stop() error
}

// Camera opens capture sessions.
type Camera interface {
	Open(ctx context.Context, req CameraRequest) (CameraStream, error)
}

// LabelSource produces recognition labels. A real inference backend can
// replace the simulated one behind this interface.
type LabelSource interface {
	Next(ctx context.Context) (domain.Label, error)
}

// Translator translates text into the language identified by code.
type Translator interface {
	Translate(ctx context.Context, text string, code string) (string, error)
}

// Synthesizer renders text as encoded audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, code string) ([]byte, error)
}

// Phraser rewrites transcript text before it is spoken.
type Phraser interface {
	Apply(text string) (string, error)
}

// Alerter shows a blocking message to the user.
type Alerter interface {
	Alert(ctx context.Context, title string, message string)
}

// DetectionSink receives recognition loop updates. Calls are synchronous and
// must not re-enter the loop.
type DetectionSink interface {
	DetectionStateChanged(state domain.DetectionState)
	LabelRecognized(label domain.Label)
	TranscriptUpdated(text string)
	RecognitionCleared()
}

// CameraSink receives camera lifecycle updates.
type CameraSink interface {
	CameraStateChanged(status domain.CameraStatus, reason domain.CameraReason)
	SessionError(code domain.ErrorCode, detail string)
}

// EventSink emits backend state/events to the UI.
type EventSink interface {
	DetectionSink
	CameraSink
	ViewChanged(view domain.View)
	ThemeChanged(dark bool)
}
