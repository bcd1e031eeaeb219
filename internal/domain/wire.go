package domain

// Session websocket actions sent by clients.
const (
	ActionStart = "start"
	ActionStop  = "stop"
	ActionReset = "reset"
)

// Session websocket event types sent by the server.
const (
	EventTypeHello      = "hello"
	EventTypeDetection  = "detection"
	EventTypeRecognized = "recognized"
	EventTypeTranscript = "transcript"
	EventTypeCleared    = "cleared"
	EventTypeError      = "error"
)

// SessionCommand is a client message on the detection session socket.
type SessionCommand struct {
	Action string `json:"action"`
}

// SessionEvent is a server message on the detection session socket.
type SessionEvent struct {
	Type       string         `json:"type"`
	SessionID  string         `json:"sessionId,omitempty"`
	State      DetectionState `json:"state,omitempty"`
	Label      string         `json:"label,omitempty"`
	Confidence float64        `json:"confidence,omitempty"`
	Text       string         `json:"text,omitempty"`
	Detail     string         `json:"detail,omitempty"`
}
