package usecase

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"novadesk/internal/domain"
	"novadesk/internal/ports"
)

var (
	ErrInvalidPIN    = errors.New("invalid access PIN")
	ErrAdminLocked   = errors.New("admin dashboard is locked")
	ErrNoMoreResults = errors.New("no more bookings to load")
)

const (
	DefaultPageSize      = 10
	DefaultBookingStatus = "booked"
)

// FeedConfig selects which slice of the booking listing a feed shows.
type FeedConfig struct {
	// PageSize is the page length. Zero fetches the full listing in one call.
	PageSize int
	Status   string
	Category string
	Admin    bool
}

// AdminFeedConfig returns the paged, admin-gated listing of booked rides.
func AdminFeedConfig(pageSize int, status string) FeedConfig {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if strings.TrimSpace(status) == "" {
		status = DefaultBookingStatus
	}
	return FeedConfig{PageSize: pageSize, Status: status, Admin: true}
}

// BookingFeed caches one booking listing and refetches it whenever the
// controller refresh token moves.
type BookingFeed struct {
	api    ports.BookingAPI
	logger *zap.Logger
	cfg    FeedConfig

	mu       sync.Mutex
	page     domain.BookingPage
	offset   int
	token    uint64
	synced   bool
	category string
}

func NewBookingFeed(api ports.BookingAPI, logger *zap.Logger, cfg FeedConfig) *BookingFeed {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PageSize < 0 {
		cfg.PageSize = 0
	}
	return &BookingFeed{
		api:      api,
		logger:   logger.Named("bookings"),
		cfg:      cfg,
		category: cfg.Category,
	}
}

// Sync reloads the first page when token differs from the last synced token
// or nothing has been fetched yet. It reports whether a fetch happened.
func (f *BookingFeed) Sync(ctx context.Context, token uint64) (bool, error) {
	f.mu.Lock()
	stale := !f.synced || f.token != token
	f.mu.Unlock()
	if !stale {
		return false, nil
	}
	if err := f.reset(ctx, token); err != nil {
		return false, err
	}
	return true, nil
}

// Reload refetches the first page regardless of the token.
func (f *BookingFeed) Reload(ctx context.Context) error {
	f.mu.Lock()
	token := f.token
	f.mu.Unlock()
	return f.reset(ctx, token)
}

// SetCategory changes the car category filter and reloads. Empty means all.
func (f *BookingFeed) SetCategory(ctx context.Context, category string) error {
	f.mu.Lock()
	f.category = strings.TrimSpace(category)
	token := f.token
	f.mu.Unlock()
	return f.reset(ctx, token)
}

// LoadMore appends the next page of the current listing.
func (f *BookingFeed) LoadMore(ctx context.Context) error {
	f.mu.Lock()
	if !f.synced || !f.page.HasMore {
		f.mu.Unlock()
		return ErrNoMoreResults
	}
	query := f.queryLocked(f.offset)
	f.mu.Unlock()

	page, err := f.api.ListBookings(ctx, query)
	if err != nil {
		f.logger.Warn("failed to load more bookings", zap.Int("offset", query.Offset), zap.Error(err))
		return fmt.Errorf("load more bookings: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.offset != query.Offset || f.category != query.Category {
		// A reset landed while this page was in flight.
		return nil
	}
	f.page.Bookings = append(f.page.Bookings, page.Bookings...)
	f.page.Total = page.Total
	f.page.HasMore = page.HasMore
	f.offset += len(page.Bookings)
	return nil
}

// Snapshot returns the currently loaded listing.
func (f *BookingFeed) Snapshot() domain.BookingPage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.page
	out.Bookings = append([]domain.Booking(nil), f.page.Bookings...)
	return out
}

// On returns the loaded bookings active on the given day.
func (f *BookingFeed) On(day time.Time) []domain.Booking {
	return domain.BookingsOn(f.Snapshot().Bookings, day)
}

// Category returns the active car category filter.
func (f *BookingFeed) Category() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.category
}

func (f *BookingFeed) reset(ctx context.Context, token uint64) error {
	f.mu.Lock()
	query := f.queryLocked(0)
	f.mu.Unlock()

	page, err := f.api.ListBookings(ctx, query)
	if err != nil {
		f.logger.Warn("failed to fetch bookings",
			zap.Uint64("refresh_token", token),
			zap.String("category", query.Category),
			zap.Error(err),
		)
		return fmt.Errorf("fetch bookings: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.page = page
	f.offset = len(page.Bookings)
	f.token = token
	f.synced = true
	f.logger.Debug("bookings fetched",
		zap.Uint64("refresh_token", token),
		zap.Int("count", len(page.Bookings)),
		zap.Int("total", page.Total),
	)
	return nil
}

func (f *BookingFeed) queryLocked(offset int) domain.BookingQuery {
	query := domain.BookingQuery{
		Category: f.category,
		Status:   f.cfg.Status,
		Admin:    f.cfg.Admin,
	}
	if f.cfg.PageSize > 0 {
		query.Limit = f.cfg.PageSize
		query.Offset = offset
	}
	return query
}

// AdminGate guards the booking dashboard behind a static PIN.
type AdminGate struct {
	pin string

	mu       sync.Mutex
	unlocked bool
}

func NewAdminGate(pin string) *AdminGate {
	return &AdminGate{pin: pin}
}

// Unlock opens the gate when pin matches.
func (g *AdminGate) Unlock(pin string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pin == "" || subtle.ConstantTimeCompare([]byte(pin), []byte(g.pin)) != 1 {
		return ErrInvalidPIN
	}
	g.unlocked = true
	return nil
}

func (g *AdminGate) Lock() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.unlocked = false
}

func (g *AdminGate) Unlocked() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.unlocked
}

// AdminBookings is the booking feed behind the admin gate.
type AdminBookings struct {
	gate *AdminGate
	feed *BookingFeed
}

func NewAdminBookings(gate *AdminGate, feed *BookingFeed) *AdminBookings {
	return &AdminBookings{gate: gate, feed: feed}
}

// Unlock opens the gate and fetches the first page.
func (a *AdminBookings) Unlock(ctx context.Context, pin string) (domain.BookingPage, error) {
	if err := a.gate.Unlock(pin); err != nil {
		return domain.BookingPage{}, err
	}
	if err := a.feed.Reload(ctx); err != nil {
		return domain.BookingPage{}, err
	}
	return a.feed.Snapshot(), nil
}

// Sync refetches when the refresh token moved.
func (a *AdminBookings) Sync(ctx context.Context, token uint64) (domain.BookingPage, error) {
	if !a.gate.Unlocked() {
		return domain.BookingPage{}, ErrAdminLocked
	}
	if _, err := a.feed.Sync(ctx, token); err != nil {
		return domain.BookingPage{}, err
	}
	return a.feed.Snapshot(), nil
}

func (a *AdminBookings) LoadMore(ctx context.Context) (domain.BookingPage, error) {
	if !a.gate.Unlocked() {
		return domain.BookingPage{}, ErrAdminLocked
	}
	if err := a.feed.LoadMore(ctx); err != nil {
		return domain.BookingPage{}, err
	}
	return a.feed.Snapshot(), nil
}

func (a *AdminBookings) SetCategory(ctx context.Context, category string) (domain.BookingPage, error) {
	if !a.gate.Unlocked() {
		return domain.BookingPage{}, ErrAdminLocked
	}
	if err := a.feed.SetCategory(ctx, category); err != nil {
		return domain.BookingPage{}, err
	}
	return a.feed.Snapshot(), nil
}

func (a *AdminBookings) Lock() {
	a.gate.Lock()
}

func (a *AdminBookings) Unlocked() bool {
	return a.gate.Unlocked()
}
