package usecase

import (
	"context"

	"novadesk/internal/domain"
	"novadesk/internal/ports"
)

// voiceSession is the mutable lifecycle state of the single voice connection.
// It is only touched while the controller mutex is held.
type voiceSession struct {
	phase    domain.Phase
	speaking bool

	errKind    domain.ErrorKind
	errMessage string

	attempt   uint64
	attemptID string
	handshake ports.Timer
	// cancelStart aborts the connect call of the current attempt.
	cancelStart context.CancelFunc
}

func (s *voiceSession) disarm() {
	if s.handshake == nil {
		return
	}
	s.handshake.Stop()
	s.handshake = nil
}

// abortStart cancels a connect call that may still be in flight.
func (s *voiceSession) abortStart() {
	if s.cancelStart == nil {
		return
	}
	s.cancelStart()
	s.cancelStart = nil
}

func (s *voiceSession) enterConnecting(attempt uint64, attemptID string, cancelStart context.CancelFunc) {
	s.abortStart()
	s.phase = domain.PhaseConnecting
	s.speaking = false
	s.clearError()
	s.attempt = attempt
	s.attemptID = attemptID
	s.cancelStart = cancelStart
}

func (s *voiceSession) enterConnected() {
	s.disarm()
	s.phase = domain.PhaseConnected
	s.speaking = false
	s.clearError()
}

func (s *voiceSession) enterIdle() {
	s.disarm()
	s.abortStart()
	s.phase = domain.PhaseIdle
	s.speaking = false
}

func (s *voiceSession) fail(kind domain.ErrorKind, message string) {
	s.disarm()
	s.abortStart()
	s.phase = domain.PhaseError
	s.speaking = false
	s.errKind = kind
	s.errMessage = message
}

func (s *voiceSession) clearError() {
	s.errKind = domain.ErrorKindNone
	s.errMessage = ""
}

// projectStatus derives the UI status from session state alone.
func projectStatus(s voiceSession, labels domain.StatusLabels) domain.Status {
	status := domain.Status{
		Phase:      s.phase,
		Connecting: s.phase == domain.PhaseConnecting,
		Connected:  s.phase == domain.PhaseConnected,
		Speaking:   s.phase == domain.PhaseConnected && s.speaking,
	}

	switch {
	case s.phase == domain.PhaseError:
		status.Indicator = domain.IndicatorError
		status.Text = s.errMessage
		status.HasError = true
		status.ErrorKind = s.errKind
		status.ErrorMessage = s.errMessage
	case status.Connecting:
		status.Indicator = domain.IndicatorConnecting
		status.Text = labels.Connecting
	case status.Speaking:
		status.Indicator = domain.IndicatorSpeaking
		status.Text = labels.Speaking
	case status.Connected:
		status.Indicator = domain.IndicatorListening
		status.Text = labels.Listening
	default:
		status.Indicator = domain.IndicatorReady
		status.Text = labels.Ready
	}
	return status
}
