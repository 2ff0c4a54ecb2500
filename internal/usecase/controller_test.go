package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"novadesk/internal/domain"
	"novadesk/internal/ports"
)

func TestVoiceControllerStartWithBadCredentialsNeverConnects(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		publicKey string
		assistant string
		want      string
	}{
		{name: "missing key", publicKey: "", assistant: "asst_1", want: "Missing Vapi Public Key"},
		{name: "placeholder key", publicKey: "YOUR_PUBLIC_KEY_HERE", assistant: "asst_1", want: "Missing Vapi Public Key"},
		{name: "missing assistant", publicKey: "pk_live", assistant: "  ", want: "Assistant Config Error"},
		{name: "placeholder assistant", publicKey: "pk_live", assistant: "YOUR_ASSISTANT_ID", want: "Assistant Config Error"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cfg := validConfig()
			cfg.PublicKey = tc.publicKey
			cfg.AssistantID = tc.assistant
			controller, client, clock, events := newTestController(t, cfg)

			status := controller.Start(context.Background())
			if status.Phase != domain.PhaseError || status.ErrorKind != domain.ErrorKindConfiguration {
				t.Fatalf("unexpected status: %+v", status)
			}
			if status.Text != tc.want {
				t.Fatalf("unexpected message: %q", status.Text)
			}
			if client.starts() != 0 {
				t.Fatalf("expected no connect call, got %d", client.starts())
			}
			if clock.pending() != 0 {
				t.Fatalf("expected no handshake timer")
			}
			if got := events.lastStatus(); got.Indicator != domain.IndicatorError {
				t.Fatalf("expected error status event, got %+v", got)
			}
		})
	}
}

func TestVoiceControllerCallStartedBeforeHandshakeTimeout(t *testing.T) {
	t.Parallel()

	controller, client, clock, _ := newTestController(t, validConfig())

	status := controller.Start(context.Background())
	if !status.Connecting || status.Indicator != domain.IndicatorConnecting || status.Text != "Connecting Nova" {
		t.Fatalf("unexpected connecting status: %+v", status)
	}

	clock.Advance(2 * time.Second)
	client.fire(domain.VoiceEvent{Kind: domain.VoiceEventCallStarted})
	clock.Advance(30 * time.Second)

	status = controller.Status()
	if status.Phase != domain.PhaseConnected || status.Connecting || !status.Connected {
		t.Fatalf("unexpected status: %+v", status)
	}
	if status.HasError || status.ErrorMessage != "" {
		t.Fatalf("expected no error, got %+v", status)
	}
	if status.Text != "Listening" {
		t.Fatalf("unexpected text: %q", status.Text)
	}
	if client.stops() != 0 {
		t.Fatalf("expected no disconnect, got %d", client.stops())
	}
	if client.starts() != 1 {
		t.Fatalf("expected one connect call, got %d", client.starts())
	}
}

func TestVoiceControllerHandshakeTimeoutDisconnectsOnce(t *testing.T) {
	t.Parallel()

	controller, client, clock, events := newTestController(t, validConfig())
	controller.Start(context.Background())

	clock.Advance(9 * time.Second)
	if client.stops() != 0 {
		t.Fatalf("timer fired early")
	}
	clock.Advance(time.Second)

	status := controller.Status()
	if status.Phase != domain.PhaseError || status.ErrorKind != domain.ErrorKindHandshakeTimeout {
		t.Fatalf("unexpected status: %+v", status)
	}
	if !strings.Contains(status.Text, "TIMEOUT") {
		t.Fatalf("expected timeout message, got %q", status.Text)
	}

	clock.Advance(time.Minute)
	if client.stops() != 1 {
		t.Fatalf("expected exactly one disconnect, got %d", client.stops())
	}
	if got := events.countErrorKind(domain.ErrorKindHandshakeTimeout); got != 1 {
		t.Fatalf("expected one timeout status, got %d", got)
	}

	// The late call-start lost the race and must not revive the session,
	// but the call it announces is hung up.
	client.fire(domain.VoiceEvent{Kind: domain.VoiceEventCallStarted})
	if status := controller.Status(); status.Phase != domain.PhaseError {
		t.Fatalf("late call-start changed state: %+v", status)
	}
	if client.stops() != 2 {
		t.Fatalf("expected late call to be hung up, got %d disconnects", client.stops())
	}

	// The SDK reports the hang-up triggered by the disconnect.
	client.fire(domain.VoiceEvent{Kind: domain.VoiceEventCallEnded})
	if status := controller.Status(); status.Phase != domain.PhaseError || !strings.Contains(status.Text, "TIMEOUT") {
		t.Fatalf("call-end cleared the timeout error: %+v", status)
	}
}

func TestVoiceControllerHandshakeTimeoutIsClamped(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name       string
		configured time.Duration
		effective  time.Duration
	}{
		{name: "default", configured: 0, effective: 30 * time.Second},
		{name: "below minimum", configured: time.Second, effective: 10 * time.Second},
		{name: "above maximum", configured: time.Minute, effective: 30 * time.Second},
		{name: "in range", configured: 15 * time.Second, effective: 15 * time.Second},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cfg := validConfig()
			cfg.HandshakeTimeout = tc.configured
			controller, client, clock, _ := newTestController(t, cfg)
			controller.Start(context.Background())

			clock.Advance(tc.effective - time.Millisecond)
			if client.stops() != 0 {
				t.Fatalf("timer fired before %s", tc.effective)
			}
			clock.Advance(time.Millisecond)
			if client.stops() != 1 {
				t.Fatalf("timer did not fire at %s", tc.effective)
			}
		})
	}
}

func TestVoiceControllerStartWhileActiveIsNoop(t *testing.T) {
	t.Parallel()

	controller, client, clock, _ := newTestController(t, validConfig())

	controller.Start(context.Background())
	controller.Start(context.Background())
	if client.starts() != 1 {
		t.Fatalf("expected one connect call while connecting, got %d", client.starts())
	}
	if clock.pending() != 1 {
		t.Fatalf("expected a single armed timer, got %d", clock.pending())
	}

	client.fire(domain.VoiceEvent{Kind: domain.VoiceEventCallStarted})
	controller.Start(context.Background())
	if client.starts() != 1 {
		t.Fatalf("expected no connect call while connected, got %d", client.starts())
	}
}

func TestVoiceControllerStopWhileIdleIsNoop(t *testing.T) {
	t.Parallel()

	controller, client, _, events := newTestController(t, validConfig())

	status := controller.Stop()
	if status.Phase != domain.PhaseIdle || status.Text != "Ready for Command" {
		t.Fatalf("unexpected status: %+v", status)
	}
	if client.stops() != 0 {
		t.Fatalf("expected no disconnect, got %d", client.stops())
	}
	if len(events.snapshotStatuses()) != 0 {
		t.Fatalf("expected no status events")
	}
}

func TestVoiceControllerStopWhileConnectedDisconnects(t *testing.T) {
	t.Parallel()

	controller, client, _, _ := newTestController(t, validConfig())
	controller.Start(context.Background())
	client.fire(domain.VoiceEvent{Kind: domain.VoiceEventCallStarted})
	client.fire(domain.VoiceEvent{Kind: domain.VoiceEventSpeechStarted})

	status := controller.Stop()
	if status.Phase != domain.PhaseIdle || status.Speaking || status.Connected {
		t.Fatalf("unexpected status: %+v", status)
	}

	controller.Stop()
	client.fire(domain.VoiceEvent{Kind: domain.VoiceEventCallEnded})
	if client.stops() != 1 {
		t.Fatalf("expected one disconnect, got %d", client.stops())
	}
	if status := controller.Status(); status.Phase != domain.PhaseIdle {
		t.Fatalf("unexpected status after call-end: %+v", status)
	}
}

func TestVoiceControllerStopWhileConnectingCancelsHandshake(t *testing.T) {
	t.Parallel()

	controller, client, clock, _ := newTestController(t, validConfig())
	controller.Start(context.Background())

	status := controller.Stop()
	if status.Phase != domain.PhaseIdle || status.HasError {
		t.Fatalf("unexpected status: %+v", status)
	}
	if client.stops() != 1 {
		t.Fatalf("expected cancel to disconnect, got %d", client.stops())
	}
	if clock.pending() != 0 {
		t.Fatalf("expected handshake timer to be disarmed")
	}

	clock.Advance(time.Minute)
	if client.stops() != 1 {
		t.Fatalf("expected no timeout disconnect, got %d", client.stops())
	}
	if status := controller.Status(); status.Phase != domain.PhaseIdle {
		t.Fatalf("unexpected status after timeout window: %+v", status)
	}
}

func TestVoiceControllerToggle(t *testing.T) {
	t.Parallel()

	controller, client, _, _ := newTestController(t, validConfig())

	if status := controller.Toggle(context.Background()); status.Phase != domain.PhaseConnecting {
		t.Fatalf("expected connecting, got %+v", status)
	}
	if status := controller.Toggle(context.Background()); status.Phase != domain.PhaseIdle {
		t.Fatalf("expected cancel to idle, got %+v", status)
	}
	controller.Toggle(context.Background())
	client.fire(domain.VoiceEvent{Kind: domain.VoiceEventCallStarted})
	if status := controller.Toggle(context.Background()); status.Phase != domain.PhaseIdle {
		t.Fatalf("expected stop to idle, got %+v", status)
	}
	if client.starts() != 2 || client.stops() != 2 {
		t.Fatalf("unexpected call counts: starts=%d stops=%d", client.starts(), client.stops())
	}
}

func TestVoiceControllerToggleRestartsFromError(t *testing.T) {
	t.Parallel()

	controller, client, _, _ := newTestController(t, validConfig())
	controller.Start(context.Background())
	client.fire(domain.VoiceEvent{Kind: domain.VoiceEventError, Error: "boom"})

	status := controller.Toggle(context.Background())
	if status.Phase != domain.PhaseConnecting || status.HasError {
		t.Fatalf("expected fresh attempt with cleared error, got %+v", status)
	}
	if client.starts() != 2 {
		t.Fatalf("expected second connect call, got %d", client.starts())
	}
}

func TestVoiceControllerErrorEventMessage(t *testing.T) {
	t.Parallel()

	controller, client, clock, _ := newTestController(t, validConfig())
	controller.Start(context.Background())

	client.fire(domain.VoiceEvent{
		Kind:  domain.VoiceEventError,
		Error: map[string]any{"error": map[string]any{"message": "mic denied"}},
	})

	status := controller.Status()
	if status.Text != "MIC DENIED. CHECK MIC/INTERNET." {
		t.Fatalf("unexpected message: %q", status.Text)
	}
	if status.ErrorKind != domain.ErrorKindTransport || status.Connecting || status.Connected {
		t.Fatalf("unexpected status: %+v", status)
	}
	if clock.pending() != 0 {
		t.Fatalf("expected handshake timer to be disarmed")
	}
	clock.Advance(time.Minute)
	if client.stops() != 0 {
		t.Fatalf("expected no timeout disconnect after error, got %d", client.stops())
	}
}

func TestVoiceControllerErrorEventCustomSuffix(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Messages = Messages{ErrorSuffix: " - CHECK YOUR MICROPHONE"}
	controller, client, _, _ := newTestController(t, cfg)

	client.fire(domain.VoiceEvent{Kind: domain.VoiceEventError, Error: errors.New("mic denied")})
	if got := controller.Status().Text; got != "MIC DENIED - CHECK YOUR MICROPHONE" {
		t.Fatalf("unexpected message: %q", got)
	}
}

func TestVoiceControllerErrorMidCall(t *testing.T) {
	t.Parallel()

	controller, client, _, _ := newTestController(t, validConfig())
	controller.Start(context.Background())
	client.fire(domain.VoiceEvent{Kind: domain.VoiceEventCallStarted})
	client.fire(domain.VoiceEvent{Kind: domain.VoiceEventSpeechStarted})

	client.fire(domain.VoiceEvent{Kind: domain.VoiceEventError, Error: "ice failed"})

	status := controller.Status()
	if status.Phase != domain.PhaseError || status.Connected || status.Speaking || status.Connecting {
		t.Fatalf("unexpected status: %+v", status)
	}
	if status.Text != "ICE FAILED. CHECK MIC/INTERNET." {
		t.Fatalf("unexpected message: %q", status.Text)
	}
}

func TestVoiceControllerStartRejection(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "message", err: errors.New("network down"), want: "NETWORK DOWN"},
		{name: "empty", err: errors.New(""), want: "START FAILED"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			controller, client, clock, _ := newTestController(t, validConfig())
			client.startErr = tc.err

			status := controller.Start(context.Background())
			if status.Phase != domain.PhaseError || status.ErrorKind != domain.ErrorKindStartRejected {
				t.Fatalf("unexpected status: %+v", status)
			}
			if status.Text != tc.want {
				t.Fatalf("unexpected message: %q", status.Text)
			}
			if clock.pending() != 0 {
				t.Fatalf("expected handshake timer to be disarmed")
			}
			if client.stops() != 0 {
				t.Fatalf("expected no disconnect, got %d", client.stops())
			}
		})
	}
}

func TestVoiceControllerEventsDuringConnectCall(t *testing.T) {
	t.Parallel()

	controller, client, _, _ := newTestController(t, validConfig())
	client.startErr = errors.New("resolved late")
	client.onStart = func() {
		client.fire(domain.VoiceEvent{Kind: domain.VoiceEventCallStarted})
	}

	// call-start arrives while the connect call is still pending; the
	// rejection that follows is stale and must be ignored.
	status := controller.Start(context.Background())
	if status.Phase != domain.PhaseConnected || status.HasError {
		t.Fatalf("unexpected status: %+v", status)
	}
}

func TestVoiceControllerStopBeforeClientStartCancelsConnect(t *testing.T) {
	t.Parallel()

	controller, client, clock, events := newTestController(t, validConfig())
	var stopped sync.Once
	events.onStatus = func(status domain.Status) {
		if status.Phase == domain.PhaseConnecting {
			stopped.Do(func() { controller.Stop() })
		}
	}

	status := controller.Start(context.Background())
	if status.Phase != domain.PhaseIdle || status.HasError {
		t.Fatalf("unexpected status: %+v", status)
	}
	if client.starts() != 1 {
		t.Fatalf("expected one connect call, got %d", client.starts())
	}
	if !errors.Is(client.startCtxErr(), context.Canceled) {
		t.Fatalf("connect call ran with a live context: %v", client.startCtxErr())
	}
	if client.stops() != 1 {
		t.Fatalf("expected one disconnect, got %d", client.stops())
	}
	if clock.pending() != 0 {
		t.Fatalf("expected handshake timer to be disarmed")
	}
}

func TestVoiceControllerCallStartedAfterStopDisconnects(t *testing.T) {
	t.Parallel()

	controller, client, _, events := newTestController(t, validConfig())
	var stopped sync.Once
	events.onStatus = func(status domain.Status) {
		if status.Phase == domain.PhaseConnecting {
			stopped.Do(func() { controller.Stop() })
		}
	}
	// The client joins the call even though the attempt was already stopped.
	client.onStart = func() {
		client.fire(domain.VoiceEvent{Kind: domain.VoiceEventCallStarted})
	}

	status := controller.Start(context.Background())
	if status.Phase != domain.PhaseIdle || status.Connected {
		t.Fatalf("orphan call revived the session: %+v", status)
	}
	if client.stops() != 2 {
		t.Fatalf("expected the orphan call to be hung up, got %d disconnects", client.stops())
	}

	client.fire(domain.VoiceEvent{Kind: domain.VoiceEventCallEnded})
	if status := controller.Status(); status.Phase != domain.PhaseIdle || status.HasError {
		t.Fatalf("unexpected status after orphan hang-up: %+v", status)
	}
	if client.stops() != 2 {
		t.Fatalf("call-end triggered another disconnect: %d", client.stops())
	}
}

func TestVoiceControllerDuplicateCallStartedIsIgnored(t *testing.T) {
	t.Parallel()

	controller, client, _, _ := newTestController(t, validConfig())
	controller.Start(context.Background())
	client.fire(domain.VoiceEvent{Kind: domain.VoiceEventCallStarted})
	client.fire(domain.VoiceEvent{Kind: domain.VoiceEventCallStarted})

	if status := controller.Status(); status.Phase != domain.PhaseConnected {
		t.Fatalf("unexpected status: %+v", status)
	}
	if client.stops() != 0 {
		t.Fatalf("duplicate call-start disconnected the live call")
	}
}

func TestVoiceControllerSpeechEvents(t *testing.T) {
	t.Parallel()

	controller, client, _, _ := newTestController(t, validConfig())
	controller.Start(context.Background())

	client.fire(domain.VoiceEvent{Kind: domain.VoiceEventSpeechStarted})
	if status := controller.Status(); status.Speaking || status.Indicator != domain.IndicatorConnecting {
		t.Fatalf("speech-start applied before call-start: %+v", status)
	}

	client.fire(domain.VoiceEvent{Kind: domain.VoiceEventCallStarted})
	client.fire(domain.VoiceEvent{Kind: domain.VoiceEventSpeechStarted})
	status := controller.Status()
	if !status.Speaking || status.Indicator != domain.IndicatorSpeaking || status.Text != "Nova Speaking" {
		t.Fatalf("unexpected speaking status: %+v", status)
	}
	if status.Phase != domain.PhaseConnected {
		t.Fatalf("speech changed outer phase: %+v", status)
	}

	client.fire(domain.VoiceEvent{Kind: domain.VoiceEventSpeechEnded})
	status = controller.Status()
	if status.Speaking || status.Indicator != domain.IndicatorListening {
		t.Fatalf("unexpected listening status: %+v", status)
	}
}

func TestVoiceControllerCallEndedReturnsIdle(t *testing.T) {
	t.Parallel()

	controller, client, _, _ := newTestController(t, validConfig())
	controller.Start(context.Background())
	client.fire(domain.VoiceEvent{Kind: domain.VoiceEventCallStarted})
	client.fire(domain.VoiceEvent{Kind: domain.VoiceEventSpeechStarted})

	client.fire(domain.VoiceEvent{Kind: domain.VoiceEventCallEnded})

	status := controller.Status()
	if status.Phase != domain.PhaseIdle || status.Speaking || status.Connected {
		t.Fatalf("unexpected status: %+v", status)
	}
	if status.Text != "Ready for Command" {
		t.Fatalf("unexpected text: %q", status.Text)
	}
}

func TestVoiceControllerBookingToolResultBumpsRefreshToken(t *testing.T) {
	t.Parallel()

	controller, client, _, events := newTestController(t, validConfig())

	client.fire(domain.VoiceEvent{Kind: domain.VoiceEventMessage, Message: &domain.VoiceMessage{
		Type:           domain.MessageTypeToolCallResult,
		ToolCallResult: &domain.ToolCallResult{Name: "create-booking", Result: map[string]any{"success": true}},
	}})
	if got := controller.RefreshToken(); got != 1 {
		t.Fatalf("expected refresh token 1, got %d", got)
	}

	client.fire(domain.VoiceEvent{Kind: domain.VoiceEventMessage, Message: &domain.VoiceMessage{
		Type:           domain.MessageTypeToolCallResult,
		ToolCallResult: &domain.ToolCallResult{Name: "check-availability"},
	}})
	client.fire(domain.VoiceEvent{Kind: domain.VoiceEventMessage, Message: &domain.VoiceMessage{
		Type: domain.MessageTypeToolCallResult,
	}})
	if got := controller.RefreshToken(); got != 1 {
		t.Fatalf("unrelated tool result moved the token: %d", got)
	}

	tokens := events.snapshotTokens()
	if len(tokens) != 1 || tokens[0] != 1 {
		t.Fatalf("unexpected invalidation events: %v", tokens)
	}
}

func TestVoiceControllerTranscriptIngestion(t *testing.T) {
	t.Parallel()

	deliveries := []*domain.VoiceMessage{
		finalTranscript("user", "I need a car"),
		finalTranscript("user", "I need a car"),
		{Type: domain.MessageTypeTranscript, Role: "user", TranscriptType: "partial", Transcript: "I ne"},
		finalTranscript("assistant", "Which dates?"),
		finalTranscript("assistant", "Which dates?"),
		finalTranscript("user", "   "),
		finalTranscript("system", "I need a car"),
	}

	cases := []struct {
		name   string
		dedupe bool
		want   []domain.TranscriptEntry
	}{
		{
			name:   "coalesces repeats",
			dedupe: true,
			want: []domain.TranscriptEntry{
				{Speaker: domain.SpeakerCaller, Text: "I need a car"},
				{Speaker: domain.SpeakerAssistant, Text: "Which dates?"},
				{Speaker: domain.SpeakerCaller, Text: "I need a car"},
			},
		},
		{
			name:   "keeps repeats",
			dedupe: false,
			want: []domain.TranscriptEntry{
				{Speaker: domain.SpeakerCaller, Text: "I need a car"},
				{Speaker: domain.SpeakerCaller, Text: "I need a car"},
				{Speaker: domain.SpeakerAssistant, Text: "Which dates?"},
				{Speaker: domain.SpeakerAssistant, Text: "Which dates?"},
				{Speaker: domain.SpeakerCaller, Text: "I need a car"},
			},
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cfg := validConfig()
			cfg.DedupeTranscripts = tc.dedupe
			controller, client, _, events := newTestController(t, cfg)

			// Transcripts are accepted in any phase.
			for _, msg := range deliveries {
				client.fire(domain.VoiceEvent{Kind: domain.VoiceEventMessage, Message: msg})
			}

			got := controller.Transcript()
			if len(got) != len(tc.want) {
				t.Fatalf("unexpected transcript length %d: %+v", len(got), got)
			}
			for i := range tc.want {
				if got[i] != tc.want[i] {
					t.Fatalf("entry %d: got %+v, want %+v", i, got[i], tc.want[i])
				}
			}
			if n := len(events.snapshotTranscripts()); n != len(tc.want) {
				t.Fatalf("expected %d transcript events, got %d", len(tc.want), n)
			}
		})
	}
}

func TestVoiceControllerClearTranscript(t *testing.T) {
	t.Parallel()

	controller, client, _, events := newTestController(t, validConfig())
	client.fire(domain.VoiceEvent{Kind: domain.VoiceEventMessage, Message: finalTranscript("user", "hello")})
	client.fire(domain.VoiceEvent{Kind: domain.VoiceEventMessage, Message: finalTranscript("assistant", "hi there")})

	controller.ClearTranscript()
	if got := controller.Transcript(); len(got) != 0 {
		t.Fatalf("expected empty transcript, got %+v", got)
	}
	transcripts := events.snapshotTranscripts()
	if len(transcripts) != 3 || len(transcripts[2]) != 0 {
		t.Fatalf("expected clear event with empty log, got %+v", transcripts)
	}

	controller.ClearTranscript()
	if n := len(events.snapshotTranscripts()); n != 3 {
		t.Fatalf("clearing an empty log emitted an event")
	}
}

func TestVoiceControllerCloseDetachesListeners(t *testing.T) {
	t.Parallel()

	controller, client, clock, events := newTestController(t, validConfig())
	if n := client.listenerCount(); n != len(domain.VoiceEventKinds) {
		t.Fatalf("expected %d listeners, got %d", len(domain.VoiceEventKinds), n)
	}

	controller.Start(context.Background())
	detached := client.handlers()
	before := len(events.snapshotStatuses())

	controller.Close()
	controller.Close()

	if client.removeCalls != 1 {
		t.Fatalf("expected one RemoveAllListeners call, got %d", client.removeCalls)
	}
	if n := client.listenerCount(); n != 0 {
		t.Fatalf("expected listeners to be removed, got %d", n)
	}
	if clock.pending() != 0 {
		t.Fatalf("expected handshake timer to be cancelled")
	}

	// Handlers captured before disposal must not reach the controller.
	for _, handler := range detached {
		handler(domain.VoiceEvent{Kind: domain.VoiceEventCallStarted})
	}
	client.fire(domain.VoiceEvent{Kind: domain.VoiceEventError, Error: "late"})
	clock.Advance(time.Minute)

	if status := controller.Status(); status.Phase != domain.PhaseConnecting {
		t.Fatalf("events after close changed state: %+v", status)
	}
	if client.stops() != 0 {
		t.Fatalf("expected no disconnect after close, got %d", client.stops())
	}
	if after := len(events.snapshotStatuses()); after != before {
		t.Fatalf("expected no status events after close")
	}
}

func validConfig() Config {
	return Config{
		PublicKey:         "pk_live_123",
		AssistantID:       "asst_123",
		HandshakeTimeout:  10 * time.Second,
		DedupeTranscripts: true,
	}
}

func finalTranscript(role string, text string) *domain.VoiceMessage {
	return &domain.VoiceMessage{
		Type:           domain.MessageTypeTranscript,
		Role:           role,
		TranscriptType: domain.TranscriptTypeFinal,
		Transcript:     text,
	}
}

func newTestController(t *testing.T, cfg Config) (*VoiceController, *fakeVoiceClient, *fakeClock, *fakeEventSink) {
	t.Helper()

	client := newFakeVoiceClient()
	clock := &fakeClock{}
	events := &fakeEventSink{}
	controller := NewVoiceController(client, events, clock, zaptest.NewLogger(t), cfg)
	return controller, client, clock, events
}

type fakeVoiceClient struct {
	mu          sync.Mutex
	listeners   map[domain.VoiceEventKind][]ports.VoiceEventHandler
	startCalls  int
	stopCalls   int
	removeCalls int

	startErr error
	onStart  func()
	ctxErr   error
}

func newFakeVoiceClient() *fakeVoiceClient {
	return &fakeVoiceClient{listeners: make(map[domain.VoiceEventKind][]ports.VoiceEventHandler)}
}

func (f *fakeVoiceClient) On(kind domain.VoiceEventKind, handler ports.VoiceEventHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listeners[kind] = append(f.listeners[kind], handler)
}

func (f *fakeVoiceClient) RemoveAllListeners() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removeCalls++
	f.listeners = make(map[domain.VoiceEventKind][]ports.VoiceEventHandler)
}

func (f *fakeVoiceClient) Start(ctx context.Context, _ string) error {
	f.mu.Lock()
	f.startCalls++
	f.ctxErr = ctx.Err()
	hook := f.onStart
	err := f.startErr
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	return err
}

func (f *fakeVoiceClient) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopCalls++
	return nil
}

func (f *fakeVoiceClient) fire(event domain.VoiceEvent) {
	f.mu.Lock()
	handlers := append([]ports.VoiceEventHandler(nil), f.listeners[event.Kind]...)
	f.mu.Unlock()

	for _, handler := range handlers {
		handler(event)
	}
}

func (f *fakeVoiceClient) handlers() []ports.VoiceEventHandler {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []ports.VoiceEventHandler
	for _, hs := range f.listeners {
		out = append(out, hs...)
	}
	return out
}

func (f *fakeVoiceClient) listenerCount() int {
	return len(f.handlers())
}

func (f *fakeVoiceClient) starts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.startCalls
}

// startCtxErr reports the context error seen by the latest Start call.
func (f *fakeVoiceClient) startCtxErr() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ctxErr
}

func (f *fakeVoiceClient) stops() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopCalls
}

// fakeClock fires timers only when advanced.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Duration
	f       func()
	done    bool
	stopped bool
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) ports.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	timer := &fakeTimer{clock: c, at: c.now + d, f: f}
	c.timers = append(c.timers, timer)
	return timer
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now += d
	var due []*fakeTimer
	for _, timer := range c.timers {
		if !timer.done && timer.at <= c.now {
			timer.done = true
			due = append(due, timer)
		}
	}
	c.mu.Unlock()

	for _, timer := range due {
		timer.f()
	}
}

func (c *fakeClock) pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, timer := range c.timers {
		if !timer.done {
			n++
		}
	}
	return n
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	t.stopped = true
	return true
}

type fakeEventSink struct {
	mu sync.Mutex

	statuses    []domain.Status
	transcripts [][]domain.TranscriptEntry
	tokens      []uint64

	// onStatus runs after each status event, outside the sink's lock.
	onStatus func(domain.Status)
}

func (f *fakeEventSink) StatusChanged(status domain.Status) {
	f.mu.Lock()
	f.statuses = append(f.statuses, status)
	hook := f.onStatus
	f.mu.Unlock()

	if hook != nil {
		hook(status)
	}
}

func (f *fakeEventSink) TranscriptChanged(entries []domain.TranscriptEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transcripts = append(f.transcripts, entries)
}

func (f *fakeEventSink) BookingsInvalidated(token uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens = append(f.tokens, token)
}

func (f *fakeEventSink) snapshotStatuses() []domain.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Status, len(f.statuses))
	copy(out, f.statuses)
	return out
}

func (f *fakeEventSink) lastStatus() domain.Status {
	statuses := f.snapshotStatuses()
	if len(statuses) == 0 {
		return domain.Status{}
	}
	return statuses[len(statuses)-1]
}

func (f *fakeEventSink) countErrorKind(kind domain.ErrorKind) int {
	n := 0
	for _, status := range f.snapshotStatuses() {
		if status.ErrorKind == kind {
			n++
		}
	}
	return n
}

func (f *fakeEventSink) snapshotTranscripts() [][]domain.TranscriptEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]domain.TranscriptEntry, len(f.transcripts))
	copy(out, f.transcripts)
	return out
}

func (f *fakeEventSink) snapshotTokens() []uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]uint64, len(f.tokens))
	copy(out, f.tokens)
	return out
}
