package vapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"novadesk/internal/domain"
	"novadesk/internal/ports"
)

const (
	DefaultAPIBaseURL    = "https://api.vapi.ai"
	DefaultAssistantRole = "assistant"

	transportProvider = "vapi.websocket"
	endCallFrame      = `{"type":"end-call"}`

	typeSpeechUpdate   = "speech-update"
	typeStatusUpdate   = "status-update"
	typeError          = "error"
	speechStarted      = "started"
	speechStopped      = "stopped"
	callStatusEnded    = "ended"
	maxErrorBodyLength = 4 << 10
)

var (
	ErrMissingPublicKey = errors.New("VAPI_PUBLIC_KEY is not configured")
	ErrCallInProgress   = errors.New("a voice call is already in progress")
)

// Config controls the Vapi call transport.
type Config struct {
	PublicKey  string
	APIBaseURL string
	// AssistantRole is the role whose speech-update frames drive the
	// speaking indicator.
	AssistantRole string
	HTTPClient    *http.Client
}

// Client implements ports.VoiceClient over the Vapi websocket call transport.
// The socket carries control frames only: binary audio frames are dropped and
// no microphone audio is sent.
type Client struct {
	cfg    Config
	http   *http.Client
	dialer *websocket.Dialer
	logger *zap.Logger

	listenersMu sync.RWMutex
	listeners   map[domain.VoiceEventKind][]ports.VoiceEventHandler

	mu       sync.Mutex
	call     *liveCall
	starting context.CancelFunc
}

func NewClient(cfg Config, logger *zap.Logger) *Client {
	cfg.APIBaseURL = strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/")
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = DefaultAPIBaseURL
	}
	cfg.AssistantRole = strings.TrimSpace(cfg.AssistantRole)
	if cfg.AssistantRole == "" {
		cfg.AssistantRole = DefaultAssistantRole
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:       cfg,
		http:      httpClient,
		dialer:    websocket.DefaultDialer,
		logger:    logger.Named("vapi"),
		listeners: make(map[domain.VoiceEventKind][]ports.VoiceEventHandler),
	}
}

func (c *Client) On(kind domain.VoiceEventKind, handler ports.VoiceEventHandler) {
	if handler == nil {
		return
	}
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	c.listeners[kind] = append(c.listeners[kind], handler)
}

func (c *Client) RemoveAllListeners() {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	c.listeners = make(map[domain.VoiceEventKind][]ports.VoiceEventHandler)
}

// Start creates a call for the assistant and joins its websocket. It returns
// once the socket is open; call-start is emitted before Start returns. A
// context that is already done aborts the start before anything is created.
func (c *Client) Start(ctx context.Context, assistantID string) error {
	if strings.TrimSpace(c.cfg.PublicKey) == "" {
		return ErrMissingPublicKey
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("call start aborted: %w", err)
	}

	c.mu.Lock()
	if c.call != nil || c.starting != nil {
		c.mu.Unlock()
		return ErrCallInProgress
	}
	startCtx, cancel := context.WithCancel(ctx)
	c.starting = cancel
	c.mu.Unlock()
	defer cancel()

	call, err := c.connect(startCtx, assistantID)

	c.mu.Lock()
	c.starting = nil
	if err == nil && startCtx.Err() != nil {
		err = fmt.Errorf("call start aborted: %w", startCtx.Err())
	}
	if err == nil {
		c.call = call
	}
	c.mu.Unlock()

	if err != nil {
		if call != nil {
			_ = call.conn.Close()
		}
		return err
	}

	c.logger.Info("call joined", zap.String("call_id", call.id))
	c.emit(domain.VoiceEvent{Kind: domain.VoiceEventCallStarted})
	go c.readLoop(call)
	return nil
}

// Stop aborts a pending start or hangs up the live call. call-end is emitted
// once the socket has been torn down.
func (c *Client) Stop() error {
	c.mu.Lock()
	cancel := c.starting
	call := c.call
	c.starting = nil
	c.call = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if call == nil {
		return nil
	}
	return call.hangUp()
}

func (c *Client) connect(ctx context.Context, assistantID string) (*liveCall, error) {
	created, err := c.createCall(ctx, assistantID)
	if err != nil {
		return nil, err
	}
	if created.Transport.WebsocketCallURL == "" {
		return nil, errors.New("vapi call response did not include a websocket url")
	}

	conn, _, err := c.dialer.DialContext(ctx, created.Transport.WebsocketCallURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Vapi call websocket: %w", err)
	}
	return &liveCall{id: created.ID, conn: conn}, nil
}

type createCallRequest struct {
	AssistantID string        `json:"assistantId"`
	Transport   callTransport `json:"transport"`
}

type callTransport struct {
	Provider         string `json:"provider,omitempty"`
	WebsocketCallURL string `json:"websocketCallUrl,omitempty"`
}

type createCallResponse struct {
	ID        string        `json:"id"`
	Transport callTransport `json:"transport"`
}

func (c *Client) createCall(ctx context.Context, assistantID string) (createCallResponse, error) {
	body, err := json.Marshal(createCallRequest{
		AssistantID: assistantID,
		Transport:   callTransport{Provider: transportProvider},
	})
	if err != nil {
		return createCallResponse{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIBaseURL+"/call", bytes.NewReader(body))
	if err != nil {
		return createCallResponse{}, fmt.Errorf("invalid Vapi API base URL: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.PublicKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return createCallResponse{}, fmt.Errorf("failed to create Vapi call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyLength))
		return createCallResponse{}, fmt.Errorf("vapi call creation failed (%d): %s", resp.StatusCode, describeErrorBody(raw))
	}

	var created createCallResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return createCallResponse{}, fmt.Errorf("failed to decode Vapi call: %w", err)
	}
	return created, nil
}

func describeErrorBody(raw []byte) string {
	var body struct {
		Message any `json:"message"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && body.Message != nil {
		switch m := body.Message.(type) {
		case string:
			return m
		case []any:
			parts := make([]string, 0, len(m))
			for _, part := range m {
				parts = append(parts, fmt.Sprint(part))
			}
			return strings.Join(parts, "; ")
		}
	}
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return "empty response"
	}
	return text
}

type liveCall struct {
	id   string
	conn *websocket.Conn

	writeMu   sync.Mutex
	closing   atomic.Bool
	closeOnce sync.Once
	endOnce   sync.Once
}

func (l *liveCall) hangUp() error {
	var err error
	l.closeOnce.Do(func() {
		l.closing.Store(true)
		l.writeMu.Lock()
		_ = l.conn.SetWriteDeadline(time.Now().Add(time.Second))
		if writeErr := l.conn.WriteMessage(websocket.TextMessage, []byte(endCallFrame)); writeErr != nil && !isCloseError(writeErr) {
			err = fmt.Errorf("failed to send end-call: %w", writeErr)
		}
		l.writeMu.Unlock()
		_ = l.conn.Close()
	})
	return err
}

func (c *Client) readLoop(call *liveCall) {
	defer c.finishCall(call)

	for {
		messageType, payload, err := call.conn.ReadMessage()
		if err != nil {
			if !call.closing.Load() && !isCloseError(err) {
				c.logger.Warn("call socket failed", zap.String("call_id", call.id), zap.Error(err))
				c.emit(domain.VoiceEvent{Kind: domain.VoiceEventError, Error: fmt.Errorf("connection lost: %w", err)})
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		events, err := decodeServerMessage(payload, c.cfg.AssistantRole)
		if err != nil {
			c.logger.Debug("dropping undecodable frame", zap.String("call_id", call.id), zap.Error(err))
			continue
		}
		for _, event := range events {
			if event.Kind == domain.VoiceEventCallEnded {
				// finishCall releases the call before call-end goes out so
				// listeners can start the next one right away.
				call.closing.Store(true)
				return
			}
			c.emit(event)
		}
	}
}

func (c *Client) finishCall(call *liveCall) {
	c.mu.Lock()
	if c.call == call {
		c.call = nil
	}
	c.mu.Unlock()
	_ = call.conn.Close()
	c.endCall(call)
}

func (c *Client) endCall(call *liveCall) {
	call.endOnce.Do(func() {
		c.logger.Info("call ended", zap.String("call_id", call.id))
		c.emit(domain.VoiceEvent{Kind: domain.VoiceEventCallEnded})
	})
}

func (c *Client) emit(event domain.VoiceEvent) {
	c.listenersMu.RLock()
	handlers := append([]ports.VoiceEventHandler(nil), c.listeners[event.Kind]...)
	c.listenersMu.RUnlock()

	for _, handler := range handlers {
		handler(event)
	}
}

type serverMessage struct {
	domain.VoiceMessage
	Status string `json:"status"`
}

// decodeServerMessage maps one control frame to the events it produces.
func decodeServerMessage(payload []byte, assistantRole string) ([]domain.VoiceEvent, error) {
	var msg serverMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, err
	}

	switch string(msg.Type) {
	case "":
		return nil, errors.New("frame has no type")
	case typeSpeechUpdate:
		if msg.Role != "" && msg.Role != assistantRole {
			return nil, nil
		}
		switch msg.Status {
		case speechStarted:
			return []domain.VoiceEvent{{Kind: domain.VoiceEventSpeechStarted}}, nil
		case speechStopped:
			return []domain.VoiceEvent{{Kind: domain.VoiceEventSpeechEnded}}, nil
		}
		return nil, nil
	case typeStatusUpdate:
		if msg.Status == callStatusEnded {
			return []domain.VoiceEvent{{Kind: domain.VoiceEventCallEnded}}, nil
		}
		return nil, nil
	case typeError:
		var detail map[string]any
		if err := json.Unmarshal(payload, &detail); err != nil {
			return nil, err
		}
		return []domain.VoiceEvent{{Kind: domain.VoiceEventError, Error: detail}}, nil
	default:
		message := msg.VoiceMessage
		return []domain.VoiceEvent{{Kind: domain.VoiceEventMessage, Message: &message}}, nil
	}
}

func isCloseError(err error) bool {
	return websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	) || errors.Is(err, net.ErrClosed)
}
