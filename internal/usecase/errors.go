package usecase

import (
	"encoding/json"
	"strings"
)

// Messages holds the user-facing texts of the error phase.
type Messages struct {
	MissingPublicKey string
	MissingAssistant string
	HandshakeTimeout string
	StartFailed      string
	ConnectionError  string
	Unspecified      string
	// ErrorSuffix is appended to upper-cased error event messages.
	ErrorSuffix string
}

// DefaultMessages returns the stock Nova error texts.
func DefaultMessages() Messages {
	return Messages{
		MissingPublicKey: "Missing Vapi Public Key",
		MissingAssistant: "Assistant Config Error",
		HandshakeTimeout: "HANDSHAKE TIMEOUT. CHECK INTERNET.",
		StartFailed:      "Start Failed",
		ConnectionError:  "Connection Error",
		Unspecified:      "Unspecified Error",
		ErrorSuffix:      ". CHECK MIC/INTERNET.",
	}
}

func (m Messages) withDefaults() Messages {
	d := DefaultMessages()
	if m.MissingPublicKey == "" {
		m.MissingPublicKey = d.MissingPublicKey
	}
	if m.MissingAssistant == "" {
		m.MissingAssistant = d.MissingAssistant
	}
	if m.HandshakeTimeout == "" {
		m.HandshakeTimeout = d.HandshakeTimeout
	}
	if m.StartFailed == "" {
		m.StartFailed = d.StartFailed
	}
	if m.ConnectionError == "" {
		m.ConnectionError = d.ConnectionError
	}
	if m.Unspecified == "" {
		m.Unspecified = d.Unspecified
	}
	if m.ErrorSuffix == "" {
		m.ErrorSuffix = d.ErrorSuffix
	}
	return m
}

// errorEventMessage renders an SDK error payload for the status line.
func (m Messages) errorEventMessage(payload any) string {
	return strings.ToUpper(m.describePayload(payload)) + m.ErrorSuffix
}

// startRejectionMessage renders a failed connect call.
func (m Messages) startRejectionMessage(err error) string {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	if msg == "" {
		msg = m.StartFailed
	}
	return strings.ToUpper(msg)
}

// describePayload picks the most specific text out of an error payload:
// a string verbatim, then a message field, then a nested error.message,
// then the JSON form of the payload.
func (m Messages) describePayload(payload any) string {
	switch v := payload.(type) {
	case nil:
		return m.ConnectionError
	case string:
		return v
	case error:
		if msg := v.Error(); msg != "" {
			return msg
		}
		return m.ConnectionError
	case json.RawMessage:
		var decoded any
		if err := json.Unmarshal(v, &decoded); err != nil {
			return string(v)
		}
		return m.describePayload(decoded)
	case map[string]any:
		if msg, ok := messageField(v); ok {
			return msg
		}
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return m.Unspecified
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err == nil {
		if msg, ok := messageField(decoded); ok {
			return msg
		}
	}
	return string(raw)
}

func messageField(obj map[string]any) (string, bool) {
	if msg, ok := obj["message"].(string); ok && msg != "" {
		return msg, true
	}
	if inner, ok := obj["error"].(map[string]any); ok {
		if msg, ok := inner["message"].(string); ok && msg != "" {
			return msg, true
		}
	}
	return "", false
}
