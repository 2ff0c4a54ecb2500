package usecase

import (
	"go.uber.org/zap"

	"novadesk/internal/domain"
)

// Internal events share the dispatch table with SDK events.
const (
	eventHandshakeExpired domain.VoiceEventKind = "handshake-expired"
	eventStartRejected    domain.VoiceEventKind = "start-rejected"
)

type controllerEvent struct {
	domain.VoiceEvent
	attempt uint64
	err     error
}

// transition lists the side effects a handler asks for.
type transition struct {
	disconnect       bool
	notifyStatus     bool
	notifyTranscript bool
	notifyRefresh    bool
}

type outcome struct {
	transition
	status     domain.Status
	transcript []domain.TranscriptEntry
	token      uint64
}

type eventHandler func(c *VoiceController, event controllerEvent) transition

var voiceTransitions = map[domain.VoiceEventKind]eventHandler{
	domain.VoiceEventCallStarted:   (*VoiceController).onCallStarted,
	domain.VoiceEventCallEnded:     (*VoiceController).onCallEnded,
	domain.VoiceEventSpeechStarted: (*VoiceController).onSpeechStarted,
	domain.VoiceEventSpeechEnded:   (*VoiceController).onSpeechEnded,
	domain.VoiceEventMessage:       (*VoiceController).onMessage,
	domain.VoiceEventError:         (*VoiceController).onError,
	eventHandshakeExpired:          (*VoiceController).onHandshakeExpired,
	eventStartRejected:             (*VoiceController).onStartRejected,
}

func (c *VoiceController) onCallStarted(_ controllerEvent) transition {
	switch c.session.phase {
	case domain.PhaseConnecting:
	case domain.PhaseConnected:
		c.logger.Debug("ignoring duplicate call-start")
		return transition{}
	default:
		// The attempt was stopped or failed but the call came up anyway.
		c.logger.Info("hanging up call that started after its attempt ended",
			zap.String("attempt_id", c.session.attemptID),
			zap.String("phase", string(c.session.phase)),
		)
		return transition{disconnect: true}
	}
	c.session.enterConnected()
	c.logger.Info("voice call started", zap.String("attempt_id", c.session.attemptID))
	return transition{notifyStatus: true}
}

func (c *VoiceController) onCallEnded(_ controllerEvent) transition {
	switch c.session.phase {
	case domain.PhaseConnecting, domain.PhaseConnected:
		c.session.enterIdle()
		c.logger.Info("voice call ended", zap.String("attempt_id", c.session.attemptID))
		return transition{notifyStatus: true}
	default:
		// The error message stays visible after the remote side hangs up.
		c.session.disarm()
		c.session.speaking = false
		return transition{}
	}
}

func (c *VoiceController) onSpeechStarted(_ controllerEvent) transition {
	if c.session.phase != domain.PhaseConnected || c.session.speaking {
		return transition{}
	}
	c.session.speaking = true
	return transition{notifyStatus: true}
}

func (c *VoiceController) onSpeechEnded(_ controllerEvent) transition {
	if c.session.phase != domain.PhaseConnected || !c.session.speaking {
		return transition{}
	}
	c.session.speaking = false
	return transition{notifyStatus: true}
}

func (c *VoiceController) onMessage(event controllerEvent) transition {
	msg := event.Message
	if msg == nil {
		return transition{}
	}

	var tr transition
	if msg.IsFinalTranscript() {
		speaker := speakerForRole(msg.Role, c.cfg.AssistantRole)
		tr.notifyTranscript = c.transcript.Add(speaker, msg.Transcript)
	}
	if msg.Type == domain.MessageTypeToolCallResult && msg.ToolCallResult != nil &&
		msg.ToolCallResult.Name == c.cfg.BookingToolName {
		c.refreshToken++
		tr.notifyRefresh = true
		c.logger.Info("booking created by assistant", zap.Uint64("refresh_token", c.refreshToken))
	}
	return tr
}

func (c *VoiceController) onError(event controllerEvent) transition {
	message := c.cfg.Messages.errorEventMessage(event.Error)
	c.session.fail(domain.ErrorKindTransport, message)
	c.logger.Warn("voice transport error",
		zap.String("attempt_id", c.session.attemptID),
		zap.String("message", message),
	)
	return transition{notifyStatus: true}
}

func (c *VoiceController) onHandshakeExpired(event controllerEvent) transition {
	if event.attempt != c.session.attempt || c.session.phase != domain.PhaseConnecting {
		return transition{}
	}
	c.session.handshake = nil
	c.session.fail(domain.ErrorKindHandshakeTimeout, c.cfg.Messages.HandshakeTimeout)
	c.logger.Warn("voice handshake timed out",
		zap.String("attempt_id", c.session.attemptID),
		zap.Duration("timeout", c.cfg.HandshakeTimeout),
	)
	return transition{disconnect: true, notifyStatus: true}
}

func (c *VoiceController) onStartRejected(event controllerEvent) transition {
	if event.attempt != c.session.attempt || c.session.phase != domain.PhaseConnecting {
		c.logger.Debug("ignoring stale start rejection", zap.Error(event.err))
		return transition{}
	}
	c.session.fail(domain.ErrorKindStartRejected, c.cfg.Messages.startRejectionMessage(event.err))
	c.logger.Warn("voice start rejected",
		zap.String("attempt_id", c.session.attemptID),
		zap.Error(event.err),
	)
	return transition{notifyStatus: true}
}
