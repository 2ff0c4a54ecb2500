package usecase

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"novadesk/internal/domain"
	"novadesk/internal/ports"
)

const (
	MinHandshakeTimeout     = 10 * time.Second
	MaxHandshakeTimeout     = 30 * time.Second
	DefaultHandshakeTimeout = 30 * time.Second

	DefaultBookingToolName        = "create-booking"
	DefaultAssistantRole          = "assistant"
	DefaultPublicKeyPlaceholder   = "YOUR_PUBLIC_KEY"
	DefaultAssistantIDPlaceholder = "YOUR_ASSISTANT_ID"
)

// Config controls the voice session controller.
type Config struct {
	PublicKey   string
	AssistantID string

	PublicKeyPlaceholder   string
	AssistantIDPlaceholder string

	// HandshakeTimeout bounds the wait for call-start, clamped to
	// [MinHandshakeTimeout, MaxHandshakeTimeout].
	HandshakeTimeout time.Duration
	// DedupeTranscripts drops a final transcript that repeats the previous
	// entry's speaker and text.
	DedupeTranscripts bool
	// BookingToolName is the tool whose results invalidate booking views.
	BookingToolName string
	// AssistantRole is the transcript role attributed to the assistant.
	AssistantRole string

	Labels   domain.StatusLabels
	Messages Messages
}

func (cfg Config) withDefaults() Config {
	switch {
	case cfg.HandshakeTimeout <= 0:
		cfg.HandshakeTimeout = DefaultHandshakeTimeout
	case cfg.HandshakeTimeout < MinHandshakeTimeout:
		cfg.HandshakeTimeout = MinHandshakeTimeout
	case cfg.HandshakeTimeout > MaxHandshakeTimeout:
		cfg.HandshakeTimeout = MaxHandshakeTimeout
	}
	if cfg.PublicKeyPlaceholder == "" {
		cfg.PublicKeyPlaceholder = DefaultPublicKeyPlaceholder
	}
	if cfg.AssistantIDPlaceholder == "" {
		cfg.AssistantIDPlaceholder = DefaultAssistantIDPlaceholder
	}
	if cfg.BookingToolName == "" {
		cfg.BookingToolName = DefaultBookingToolName
	}
	if cfg.AssistantRole == "" {
		cfg.AssistantRole = DefaultAssistantRole
	}

	labels := domain.DefaultStatusLabels()
	if cfg.Labels.Ready == "" {
		cfg.Labels.Ready = labels.Ready
	}
	if cfg.Labels.Connecting == "" {
		cfg.Labels.Connecting = labels.Connecting
	}
	if cfg.Labels.Listening == "" {
		cfg.Labels.Listening = labels.Listening
	}
	if cfg.Labels.Speaking == "" {
		cfg.Labels.Speaking = labels.Speaking
	}
	cfg.Messages = cfg.Messages.withDefaults()
	return cfg
}

// VoiceController owns the single voice connection and projects it into UI state.
type VoiceController struct {
	client ports.VoiceClient
	events ports.EventSink
	clock  ports.Clock
	logger *zap.Logger
	cfg    Config

	mu           sync.Mutex
	session      voiceSession
	transcript   *transcriptAggregator
	refreshToken uint64
	closed       bool
}

func NewVoiceController(
	client ports.VoiceClient,
	events ports.EventSink,
	clock ports.Clock,
	logger *zap.Logger,
	cfg Config,
) *VoiceController {
	if events == nil {
		events = noopEventSink{}
	}
	if clock == nil {
		clock = SystemClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()

	c := &VoiceController{
		client:     client,
		events:     events,
		clock:      clock,
		logger:     logger.Named("voice"),
		cfg:        cfg,
		session:    voiceSession{phase: domain.PhaseIdle},
		transcript: newTranscriptAggregator(cfg.DedupeTranscripts),
	}

	for _, kind := range domain.VoiceEventKinds {
		kind := kind
		client.On(kind, func(event domain.VoiceEvent) {
			event.Kind = kind
			c.dispatch(controllerEvent{VoiceEvent: event})
		})
	}
	return c
}

// Start begins a connection attempt. It is a no-op while connecting or
// connected. Credential problems move the controller straight to the error
// phase without contacting the voice service.
func (c *VoiceController) Start(ctx context.Context) domain.Status {
	var (
		attempt  uint64
		startCtx context.Context
		release  context.CancelFunc
	)

	c.run(func() transition {
		switch c.session.phase {
		case domain.PhaseConnecting, domain.PhaseConnected:
			return transition{}
		}

		if problem := c.credentialProblem(); problem != "" {
			c.session.fail(domain.ErrorKindConfiguration, problem)
			c.logger.Warn("voice credentials rejected", zap.String("reason", problem))
			return transition{notifyStatus: true}
		}

		attempt = c.session.attempt + 1
		startCtx, release = context.WithCancel(ctx)
		c.session.enterConnecting(attempt, uuid.NewString(), release)
		c.session.handshake = c.clock.AfterFunc(c.cfg.HandshakeTimeout, func() {
			c.dispatch(controllerEvent{
				VoiceEvent: domain.VoiceEvent{Kind: eventHandshakeExpired},
				attempt:    attempt,
			})
		})
		c.logger.Info("voice call connecting",
			zap.String("attempt_id", c.session.attemptID),
			zap.Duration("handshake_timeout", c.cfg.HandshakeTimeout),
		)
		return transition{notifyStatus: true}
	})

	if startCtx == nil {
		return c.Status()
	}

	// A Stop, timeout or error landing before the client picks up the
	// attempt cancels startCtx, so the client never joins that call.
	err := c.client.Start(startCtx, c.cfg.AssistantID)
	release()
	if err != nil {
		c.dispatch(controllerEvent{
			VoiceEvent: domain.VoiceEvent{Kind: eventStartRejected},
			attempt:    attempt,
			err:        err,
		})
	}
	return c.Status()
}

// Stop ends the call, or cancels a pending handshake. Stopping while idle
// or errored is a no-op.
func (c *VoiceController) Stop() domain.Status {
	c.run(func() transition {
		switch c.session.phase {
		case domain.PhaseConnected:
			c.logger.Info("voice call stopped", zap.String("attempt_id", c.session.attemptID))
		case domain.PhaseConnecting:
			c.logger.Info("voice handshake cancelled", zap.String("attempt_id", c.session.attemptID))
		default:
			return transition{}
		}
		c.session.enterIdle()
		return transition{disconnect: true, notifyStatus: true}
	})
	return c.Status()
}

// Toggle starts when idle or errored and stops otherwise.
func (c *VoiceController) Toggle(ctx context.Context) domain.Status {
	c.mu.Lock()
	phase := c.session.phase
	c.mu.Unlock()

	if phase == domain.PhaseConnecting || phase == domain.PhaseConnected {
		return c.Stop()
	}
	return c.Start(ctx)
}

// ClearTranscript empties the call log.
func (c *VoiceController) ClearTranscript() {
	c.run(func() transition {
		return transition{notifyTranscript: c.transcript.Clear()}
	})
}

// Status returns the current status projection.
func (c *VoiceController) Status() domain.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return projectStatus(c.session, c.cfg.Labels)
}

// Transcript returns a copy of the call log.
func (c *VoiceController) Transcript() []domain.TranscriptEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transcript.Entries()
}

// RefreshToken returns the booking invalidation counter.
func (c *VoiceController) RefreshToken() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshToken
}

// Close detaches every SDK listener and cancels a pending handshake timer.
// Events delivered afterwards are ignored. Close is idempotent.
func (c *VoiceController) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.session.disarm()
	c.session.abortStart()
	c.mu.Unlock()

	c.client.RemoveAllListeners()
}

func (c *VoiceController) credentialProblem() string {
	key := strings.TrimSpace(c.cfg.PublicKey)
	if key == "" || strings.Contains(key, c.cfg.PublicKeyPlaceholder) {
		return c.cfg.Messages.MissingPublicKey
	}
	assistant := strings.TrimSpace(c.cfg.AssistantID)
	if assistant == "" || strings.Contains(assistant, c.cfg.AssistantIDPlaceholder) {
		return c.cfg.Messages.MissingAssistant
	}
	return ""
}

func (c *VoiceController) dispatch(event controllerEvent) {
	handler, ok := voiceTransitions[event.Kind]
	if !ok {
		c.logger.Debug("ignoring unknown voice event", zap.String("kind", string(event.Kind)))
		return
	}
	c.run(func() transition {
		return handler(c, event)
	})
}

// run applies one transition under the lock, then performs its side effects
// with the lock released so sinks and the client may call back in.
func (c *VoiceController) run(step func() transition) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	out := c.outcomeLocked(step())
	c.mu.Unlock()

	c.apply(out)
}

func (c *VoiceController) outcomeLocked(tr transition) outcome {
	out := outcome{transition: tr}
	if tr.notifyStatus {
		out.status = projectStatus(c.session, c.cfg.Labels)
	}
	if tr.notifyTranscript {
		out.transcript = c.transcript.Entries()
	}
	if tr.notifyRefresh {
		out.token = c.refreshToken
	}
	return out
}

func (c *VoiceController) apply(out outcome) {
	if out.disconnect {
		if err := c.client.Stop(); err != nil {
			c.logger.Warn("voice disconnect failed", zap.Error(err))
		}
	}
	if out.notifyStatus {
		c.events.StatusChanged(out.status)
	}
	if out.notifyTranscript {
		c.events.TranscriptChanged(out.transcript)
	}
	if out.notifyRefresh {
		c.events.BookingsInvalidated(out.token)
	}
}

type noopEventSink struct{}

func (noopEventSink) StatusChanged(domain.Status)               {}
func (noopEventSink) TranscriptChanged([]domain.TranscriptEntry) {}
func (noopEventSink) BookingsInvalidated(uint64)                 {}
