package bookingapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"novadesk/internal/domain"
)

const (
	DefaultAPIBaseURL = "http://localhost:3000"
	AdminKeyHeader    = "X-Admin-Key"

	listPath = "/api/get-all-bookings"
)

var (
	ErrForbidden    = errors.New("booking api rejected the admin key")
	ErrUnsuccessful = errors.New("booking api reported failure")
)

// Config controls the rental backend client.
type Config struct {
	APIBaseURL string
	AdminKey   string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client implements ports.BookingAPI over the rental backend REST API.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *zap.Logger
}

func NewClient(cfg Config, logger *zap.Logger) *Client {
	cfg.APIBaseURL = strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/")
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = DefaultAPIBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{cfg: cfg, http: httpClient, logger: logger.Named("bookingapi")}
}

type listResponse struct {
	Success  bool             `json:"success"`
	Bookings []domain.Booking `json:"bookings"`
	Total    *int             `json:"total"`
	Message  string           `json:"message"`
}

func (c *Client) ListBookings(ctx context.Context, query domain.BookingQuery) (domain.BookingPage, error) {
	endpoint, err := c.listURL(query)
	if err != nil {
		return domain.BookingPage{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.BookingPage{}, fmt.Errorf("failed to build bookings request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-cache")
	if query.Admin && c.cfg.AdminKey != "" {
		req.Header.Set(AdminKeyHeader, c.cfg.AdminKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.BookingPage{}, fmt.Errorf("failed to fetch bookings: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden {
		return domain.BookingPage{}, ErrForbidden
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return domain.BookingPage{}, fmt.Errorf("bookings request failed (%d): %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var body listResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return domain.BookingPage{}, fmt.Errorf("failed to decode bookings: %w", err)
	}
	if !body.Success {
		if body.Message != "" {
			return domain.BookingPage{}, fmt.Errorf("%w: %s", ErrUnsuccessful, body.Message)
		}
		return domain.BookingPage{}, ErrUnsuccessful
	}

	page := domain.BookingPage{Bookings: body.Bookings, Total: len(body.Bookings)}
	if body.Total != nil {
		page.Total = *body.Total
	}
	if page.Bookings == nil {
		page.Bookings = []domain.Booking{}
	}
	page.HasMore = query.Limit > 0 && len(page.Bookings) == query.Limit

	c.logger.Debug("bookings fetched",
		zap.Int("count", len(page.Bookings)),
		zap.Int("offset", query.Offset),
		zap.String("category", query.Category),
		zap.Bool("admin", query.Admin),
	)
	return page, nil
}

func (c *Client) listURL(query domain.BookingQuery) (string, error) {
	u, err := url.Parse(c.cfg.APIBaseURL + listPath)
	if err != nil {
		return "", fmt.Errorf("invalid booking API base URL: %w", err)
	}
	values := u.Query()
	if query.Limit > 0 {
		values.Set("limit", strconv.Itoa(query.Limit))
		values.Set("offset", strconv.Itoa(query.Offset))
	}
	if query.Category != "" {
		values.Set("carCategory", query.Category)
	}
	if query.Status != "" {
		values.Set("status", query.Status)
	}
	u.RawQuery = values.Encode()
	return u.String(), nil
}
