package gateway

import "github.com/intervox/intervox/pkg/speech"

// ActionType discriminates server → browser bridge messages.
type ActionType string

const (
	ActionListenStart  ActionType = "listen.start"
	ActionListenStop   ActionType = "listen.stop"
	ActionListenAbort  ActionType = "listen.abort"
	ActionSpeakStart   ActionType = "speak.start"
	ActionSpeakCancel  ActionType = "speak.cancel"
	ActionCameraOpen   ActionType = "camera.open"
	ActionCameraGrab   ActionType = "camera.capture"
	ActionCameraClose  ActionType = "camera.close"
	ActionSessionState ActionType = "session.state"
)

// Action is the server → browser envelope. ID ties replies to the capability
// session that issued the action.
type Action struct {
	Type   ActionType    `json:"type"`
	ID     string        `json:"id,omitempty"`
	Listen *ListenParams `json:"listen,omitempty"`
	Speak  *SpeakParams  `json:"speak,omitempty"`
	Camera *CameraParams `json:"camera,omitempty"`
	State  any           `json:"state,omitempty"`
}

// ListenParams configures a browser recognition session.
type ListenParams struct {
	Language        string `json:"language"`
	Continuous      bool   `json:"continuous"`
	InterimResults  bool   `json:"interim_results"`
	MaxAlternatives int    `json:"max_alternatives,omitempty"`
}

// SpeakParams carries one narration request.
type SpeakParams struct {
	Text   string  `json:"text"`
	Rate   float64 `json:"rate,omitempty"`
	Pitch  float64 `json:"pitch,omitempty"`
	Volume float64 `json:"volume,omitempty"`
}

// CameraParams configures the browser camera stream.
type CameraParams struct {
	Width      int  `json:"width,omitempty"`
	Height     int  `json:"height,omitempty"`
	FacingUser bool `json:"facing_user,omitempty"`
}

// EventType discriminates browser → server bridge messages.
type EventType string

const (
	EventListenResult EventType = "listen.result"
	EventListenEnd    EventType = "listen.end"
	EventListenError  EventType = "listen.error"
	EventSpeakDone    EventType = "speak.done"
	EventSpeakError   EventType = "speak.error"
	EventCameraOpened EventType = "camera.opened"
	EventCameraReady  EventType = "camera.ready"
	EventCameraFrame  EventType = "camera.frame"
	EventFocusChange  EventType = "focus.change"
)

// Event is the browser → server envelope. ID echoes the Action that opened
// the capability session; focus events carry no ID.
type Event struct {
	Type   EventType     `json:"type"`
	ID     string        `json:"id,omitempty"`
	Result *ResultReport `json:"result,omitempty"`
	Error  *ErrorReport  `json:"error,omitempty"`
	Frame  *FrameReport  `json:"frame,omitempty"`
	Focus  *FocusReport  `json:"focus,omitempty"`
}

// ResultReport is one recognition update.
type ResultReport struct {
	Text       string  `json:"text"`
	IsFinal    bool    `json:"is_final"`
	Confidence float64 `json:"confidence,omitempty"`
}

// ErrorReport is a classed capability failure. Code uses the web speech error
// names for recognition and free-form strings elsewhere.
type ErrorReport struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

// FrameReport is one captured camera frame. JPEG is base64 on the wire via
// encoding/json's []byte handling.
type FrameReport struct {
	JPEG   []byte `json:"jpeg"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// FocusReport is a page visibility change. At is the client-side timestamp in
// Unix milliseconds, used so de-duplication reflects when the switch happened
// rather than when the message arrived.
type FocusReport struct {
	Hidden bool  `json:"hidden"`
	At     int64 `json:"at"`
}

func (e *ErrorReport) recognitionError() *speech.RecognitionError {
	return &speech.RecognitionError{
		Code:    speech.ErrorCode(e.Code),
		Message: e.Message,
	}
}
