package domain

// Phase models the voice connection lifecycle.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseConnecting Phase = "connecting"
	PhaseConnected  Phase = "connected"
	PhaseError      Phase = "error"
)

// Indicator is the status projection shown by the presentation layer.
type Indicator string

const (
	IndicatorReady      Indicator = "ready"
	IndicatorConnecting Indicator = "connecting"
	IndicatorListening  Indicator = "listening"
	IndicatorSpeaking   Indicator = "speaking"
	IndicatorError      Indicator = "error"
)

// ErrorKind identifies why a connection attempt ended in the error phase.
type ErrorKind string

const (
	ErrorKindNone             ErrorKind = ""
	ErrorKindConfiguration    ErrorKind = "configuration"
	ErrorKindHandshakeTimeout ErrorKind = "handshake_timeout"
	ErrorKindTransport        ErrorKind = "transport"
	ErrorKindStartRejected    ErrorKind = "start_rejected"
)

// Speaker identifies who produced a transcript entry.
type Speaker string

const (
	SpeakerCaller    Speaker = "caller"
	SpeakerAssistant Speaker = "assistant"
)

// TranscriptEntry is one final utterance in the call log.
type TranscriptEntry struct {
	Speaker Speaker `json:"speaker"`
	Text    string  `json:"text"`
}

// Status summarizes the controller state for the UI.
type Status struct {
	Indicator    Indicator `json:"indicator"`
	Text         string    `json:"text"`
	Phase        Phase     `json:"phase"`
	Connecting   bool      `json:"connecting"`
	Connected    bool      `json:"connected"`
	Speaking     bool      `json:"speaking"`
	HasError     bool      `json:"hasError"`
	ErrorKind    ErrorKind `json:"errorKind,omitempty"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
}

// StatusLabels holds the indicator texts of the status projection.
type StatusLabels struct {
	Ready      string
	Connecting string
	Listening  string
	Speaking   string
}

// DefaultStatusLabels returns the stock Nova indicator texts.
func DefaultStatusLabels() StatusLabels {
	return StatusLabels{
		Ready:      "Ready for Command",
		Connecting: "Connecting Nova",
		Listening:  "Listening",
		Speaking:   "Nova Speaking",
	}
}

// VoiceEventKind names an event delivered by the voice SDK.
type VoiceEventKind string

const (
	VoiceEventCallStarted   VoiceEventKind = "call-start"
	VoiceEventCallEnded     VoiceEventKind = "call-end"
	VoiceEventSpeechStarted VoiceEventKind = "speech-start"
	VoiceEventSpeechEnded   VoiceEventKind = "speech-end"
	VoiceEventMessage       VoiceEventKind = "message"
	VoiceEventError         VoiceEventKind = "error"
)

// VoiceEventKinds lists every SDK event a controller subscribes to.
var VoiceEventKinds = []VoiceEventKind{
	VoiceEventCallStarted,
	VoiceEventCallEnded,
	VoiceEventSpeechStarted,
	VoiceEventSpeechEnded,
	VoiceEventMessage,
	VoiceEventError,
}

// VoiceEvent is a single SDK callback delivery.
type VoiceEvent struct {
	Kind    VoiceEventKind
	Message *VoiceMessage
	// Error holds the raw error payload of an error event. It may be a
	// string, an error, a decoded JSON object or any JSON-encodable value.
	Error any
}

// MessageType discriminates the payload of a message event.
type MessageType string

const (
	MessageTypeTranscript     MessageType = "transcript"
	MessageTypeToolCallResult MessageType = "tool-call-result"
)

// TranscriptTypeFinal marks a completed utterance.
const TranscriptTypeFinal = "final"

// VoiceMessage is the body of a message event.
type VoiceMessage struct {
	Type           MessageType     `json:"type"`
	Role           string          `json:"role,omitempty"`
	TranscriptType string          `json:"transcriptType,omitempty"`
	Transcript     string          `json:"transcript,omitempty"`
	ToolCallResult *ToolCallResult `json:"toolCallResult,omitempty"`
}

// IsFinalTranscript reports whether the message carries a completed utterance.
func (m *VoiceMessage) IsFinalTranscript() bool {
	return m != nil && m.Type == MessageTypeTranscript && m.TranscriptType == TranscriptTypeFinal
}

// ToolCallResult reports the outcome of an assistant-invoked tool.
type ToolCallResult struct {
	Name   string `json:"name"`
	Result any    `json:"result,omitempty"`
}
