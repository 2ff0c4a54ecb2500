package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/wailsapp/wails/v2/pkg/runtime"
	"go.uber.org/zap"

	"novadesk/internal/bootstrap"
	"novadesk/internal/config"
	"novadesk/internal/domain"
	"novadesk/internal/providers/bookingapi"
	"novadesk/internal/usecase"
)

const (
	eventStatus     = "nova:status"
	eventTranscript = "nova:transcript"
	eventBookings   = "nova:bookings"
)

// App is the Wails application root.
type App struct {
	ctx context.Context

	controller *usecase.VoiceController
	calendar   *usecase.BookingFeed
	admin      *usecase.AdminBookings
	cfg        config.Config
	logger     *zap.Logger
	bootErr    error
}

func NewApp() *App {
	return &App{logger: zap.NewNop()}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	services, err := bootstrap.Build(a)
	if err != nil {
		a.bootErr = err
		a.StatusChanged(a.GetStatus())
		return
	}

	a.cfg = services.Config
	a.logger = services.Logger
	a.controller = services.Controller
	a.calendar = services.Calendar
	a.admin = services.Admin
	a.StatusChanged(a.controller.Status())
}

func (a *App) shutdown(_ context.Context) {
	if a.controller != nil {
		a.controller.Stop()
		a.controller.Close()
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

// ToggleConnection starts the assistant when idle and hangs up otherwise.
func (a *App) ToggleConnection() (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return a.GetStatus(), err
	}
	return a.controller.Toggle(a.requestContext()), nil
}

// ClearTranscript empties the call log.
func (a *App) ClearTranscript() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	a.controller.ClearTranscript()
	return nil
}

// GetStatus returns the current status projection.
func (a *App) GetStatus() domain.Status {
	if a.controller == nil {
		labels := domain.DefaultStatusLabels()
		if a.bootErr != nil {
			return domain.Status{
				Indicator:    domain.IndicatorError,
				Text:         a.bootErr.Error(),
				Phase:        domain.PhaseError,
				HasError:     true,
				ErrorKind:    domain.ErrorKindConfiguration,
				ErrorMessage: a.bootErr.Error(),
			}
		}
		return domain.Status{Indicator: domain.IndicatorReady, Text: labels.Ready, Phase: domain.PhaseIdle}
	}
	return a.controller.Status()
}

// GetTranscript returns the call log.
func (a *App) GetTranscript() []domain.TranscriptEntry {
	if a.controller == nil {
		return []domain.TranscriptEntry{}
	}
	return a.controller.Transcript()
}

// UnlockBookings opens the admin dashboard and loads its first page.
func (a *App) UnlockBookings(pin string) (domain.BookingPage, error) {
	if err := a.requireReady(); err != nil {
		return domain.BookingPage{}, err
	}
	page, err := a.admin.Unlock(a.requestContext(), pin)
	return page, a.presentError(err)
}

// LockBookings closes the admin dashboard.
func (a *App) LockBookings() {
	if a.admin != nil {
		a.admin.Lock()
	}
}

// GetBookings returns the admin page, refetching after a booking was made.
func (a *App) GetBookings() (domain.BookingPage, error) {
	if err := a.requireReady(); err != nil {
		return domain.BookingPage{}, err
	}
	page, err := a.admin.Sync(a.requestContext(), a.controller.RefreshToken())
	return page, a.presentError(err)
}

// LoadMoreBookings appends the next admin page.
func (a *App) LoadMoreBookings() (domain.BookingPage, error) {
	if err := a.requireReady(); err != nil {
		return domain.BookingPage{}, err
	}
	page, err := a.admin.LoadMore(a.requestContext())
	return page, a.presentError(err)
}

// FilterBookings restricts the admin listing to one car category; an empty
// category shows all.
func (a *App) FilterBookings(category string) (domain.BookingPage, error) {
	if err := a.requireReady(); err != nil {
		return domain.BookingPage{}, err
	}
	page, err := a.admin.SetCategory(a.requestContext(), category)
	return page, a.presentError(err)
}

// GetCalendarBookings returns every booking for the calendar view.
func (a *App) GetCalendarBookings() (domain.BookingPage, error) {
	if err := a.requireReady(); err != nil {
		return domain.BookingPage{}, err
	}
	if _, err := a.calendar.Sync(a.requestContext(), a.controller.RefreshToken()); err != nil {
		return a.calendar.Snapshot(), a.presentError(err)
	}
	return a.calendar.Snapshot(), nil
}

// GetBookingsOn returns the calendar bookings active on a YYYY-MM-DD day.
func (a *App) GetBookingsOn(date string) ([]domain.Booking, error) {
	if err := a.requireReady(); err != nil {
		return nil, err
	}
	day, err := time.ParseInLocation("2006-01-02", date, time.Local)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q", date)
	}
	if _, err := a.calendar.Sync(a.requestContext(), a.controller.RefreshToken()); err != nil {
		return nil, a.presentError(err)
	}
	return a.calendar.On(day), nil
}

// GetRuntimeInfo returns non-sensitive config for the UI.
func (a *App) GetRuntimeInfo() map[string]string {
	if a.bootErr != nil {
		return map[string]string{"error": a.bootErr.Error()}
	}

	return map[string]string{
		"provider":         "Vapi",
		"voiceApi":         a.cfg.Voice.APIBaseURL,
		"voiceConfigured":  strconv.FormatBool(a.cfg.Voice.PublicKey != "" && a.cfg.Voice.AssistantID != ""),
		"handshakeTimeout": a.cfg.Voice.HandshakeTimeout.String(),
		"bookingsApi":      a.cfg.Bookings.APIBaseURL,
		"pageSize":         strconv.Itoa(a.cfg.Bookings.PageSize),
		"envFile":          a.cfg.EnvFile,
	}
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.controller == nil {
		return fmt.Errorf("application is not initialized")
	}
	return nil
}

func (a *App) requestContext() context.Context {
	if a.ctx == nil {
		return context.Background()
	}
	return a.ctx
}

// StatusChanged emits the status projection to the frontend.
func (a *App) StatusChanged(status domain.Status) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventStatus, status)
}

// TranscriptChanged emits the full call log to the frontend.
func (a *App) TranscriptChanged(entries []domain.TranscriptEntry) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventTranscript, entries)
}

// BookingsInvalidated tells booking views to refetch.
func (a *App) BookingsInvalidated(token uint64) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventBookings, map[string]uint64{"token": token})
}

// uiError carries a display message while keeping the cause matchable.
type uiError struct {
	message string
	cause   error
}

func (e *uiError) Error() string { return e.message }
func (e *uiError) Unwrap() error { return e.cause }

func (a *App) presentError(err error) error {
	if err == nil {
		return nil
	}
	if a.logger != nil {
		a.logger.Warn("booking request failed", zap.Error(err))
	}
	return &uiError{message: errorMessage(err), cause: err}
}

func errorMessage(err error) string {
	switch {
	case errors.Is(err, usecase.ErrInvalidPIN):
		return "Invalid Access PIN"
	case errors.Is(err, usecase.ErrAdminLocked):
		return "Dashboard locked"
	case errors.Is(err, usecase.ErrNoMoreResults):
		return "No more bookings"
	case errors.Is(err, bookingapi.ErrForbidden):
		return "Access denied by booking server"
	case errors.Is(err, bookingapi.ErrUnsuccessful):
		return "Booking server error"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "Request cancelled"
	default:
		return "Failed to load bookings"
	}
}
