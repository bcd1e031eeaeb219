package domain

// View identifies which top-level screen the UI shows.
type View string

const (
	ViewLanding View = "landing"
	ViewMain    View = "main"
)

// FacingMode selects the physical camera.
type FacingMode string

const (
	FacingUser        FacingMode = "user"
	FacingEnvironment FacingMode = "environment"
)

// Flip returns the opposite camera.
func (m FacingMode) Flip() FacingMode {
	if m == FacingEnvironment {
		return FacingUser
	}
	return FacingEnvironment
}

// Valid reports whether m names a known camera.
func (m FacingMode) Valid() bool {
	return m == FacingUser || m == FacingEnvironment
}

// DetectionState models the simulated recognition lifecycle.
type DetectionState string

const (
	DetectionIdle      DetectionState = "idle"
	DetectionDetecting DetectionState = "detecting"
)

// CameraReason provides a structured reason for camera transitions.
type CameraReason string

const (
	CameraReasonStarted       CameraReason = "camera_started"
	CameraReasonRestarted     CameraReason = "camera_restarted"
	CameraReasonStopped       CameraReason = "camera_stopped"
	CameraReasonFailed        CameraReason = "camera_failed"
	CameraReasonFacingChanged CameraReason = "facing_changed"
)

// ErrorCode identifies backend errors surfaced to the UI.
type ErrorCode string

const (
	ErrorCodeStartup     ErrorCode = "startup"
	ErrorCodeCamera      ErrorCode = "camera"
	ErrorCodeCameraStop  ErrorCode = "camera_stop"
	ErrorCodeLabelSource ErrorCode = "label_source"
	ErrorCodeSpeech      ErrorCode = "speech"
)

// Label is one recognition result.
type Label struct {
	Text       string  `json:"sign"`
	Confidence float64 `json:"confidence"`
}

// CameraStatus is the observable camera state.
type CameraStatus struct {
	Active bool       `json:"active"`
	Facing FacingMode `json:"facing"`
}

// Status summarizes the whole session for the UI.
type Status struct {
	SessionID  string         `json:"sessionId"`
	View       View           `json:"view"`
	DarkMode   bool           `json:"darkMode"`
	Camera     CameraStatus   `json:"camera"`
	Detection  DetectionState `json:"detection"`
	Recognized string         `json:"recognized"`
	Transcript string         `json:"transcript"`
	Message    string         `json:"message,omitempty"`
}

// Utterance is the result of speaking a piece of text.
type Utterance struct {
	Text        string `json:"text"`
	Translated  string `json:"translated"`
	Language    string `json:"language"`
	ContentType string `json:"contentType"`
	Audio       []byte `json:"-"`
}
