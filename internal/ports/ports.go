package ports

import (
	"context"
	"time"

	"novadesk/internal/domain"
)

// VoiceEventHandler receives one SDK event.
type VoiceEventHandler func(event domain.VoiceEvent)

// VoiceClient is a voice assistant SDK session handle.
type VoiceClient interface {
	// On subscribes handler to events of the given kind.
	On(kind domain.VoiceEventKind, handler VoiceEventHandler)
	// RemoveAllListeners detaches every subscribed handler.
	RemoveAllListeners()
	// Start connects to the assistant. It returns once the connect call has
	// resolved; call progress is reported through events. A cancelled ctx
	// aborts a connect that has not completed.
	Start(ctx context.Context, assistantID string) error
	// Stop requests disconnection. Stopping an idle client is a no-op.
	Stop() error
}

// BookingAPI reads bookings from the remote rental backend.
type BookingAPI interface {
	ListBookings(ctx context.Context, query domain.BookingQuery) (domain.BookingPage, error)
}

// EventSink emits controller state changes to the UI.
type EventSink interface {
	StatusChanged(status domain.Status)
	TranscriptChanged(entries []domain.TranscriptEntry)
	BookingsInvalidated(token uint64)
}

// Timer is a pending callback that can be cancelled.
type Timer interface {
	Stop() bool
}

// Clock schedules deferred callbacks.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}
