package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Booking is a read-only rental booking as reported by the booking API.
type Booking struct {
	ID              int64  `json:"id,omitempty"`
	Reference       string `json:"bookingReference,omitempty"`
	CustomerName    string `json:"customerName"`
	CustomerPhone   string `json:"customerPhone"`
	PickupDateTime  string `json:"pickupDateTime"`
	ReturnDateTime  string `json:"returnDateTime"`
	Duration        string `json:"duration,omitempty"`
	PickupLocation  string `json:"pickupLocation"`
	DropoffLocation string `json:"dropoffLocation"`
	CarCategory     string `json:"carCategory"`
	Status          string `json:"status"`
	CalendarStatus  string `json:"calendarStatus,omitempty"`
}

// UnmarshalJSON accepts both the admin listing spelling (customerName,
// customerPhone) and the lookup spelling (fullName, phoneNumber).
func (b *Booking) UnmarshalJSON(data []byte) error {
	type plain Booking
	var wire struct {
		plain
		FullName    string `json:"fullName"`
		PhoneNumber string `json:"phoneNumber"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*b = Booking(wire.plain)
	if b.CustomerName == "" {
		b.CustomerName = wire.FullName
	}
	if b.CustomerPhone == "" {
		b.CustomerPhone = wire.PhoneNumber
	}
	return nil
}

// DisplayReference returns the booking reference, falling back to the RB-<id> form.
func (b Booking) DisplayReference() string {
	if b.Reference != "" {
		return b.Reference
	}
	return fmt.Sprintf("RB-%d", b.ID)
}

// DurationLabel returns the API supplied duration or derives one from the
// pickup and return timestamps ("2d 3h", "< 1h", "Unknown").
func (b Booking) DurationLabel() string {
	if b.Duration != "" {
		return b.Duration
	}
	start, err := ParseBookingTime(b.PickupDateTime, time.UTC)
	if err != nil {
		return "Unknown"
	}
	end, err := ParseBookingTime(b.ReturnDateTime, time.UTC)
	if err != nil {
		return "Unknown"
	}
	diff := end.Sub(start)
	if diff <= 0 {
		return "< 1h"
	}
	days := int(diff / (24 * time.Hour))
	hours := int((diff % (24 * time.Hour)) / time.Hour)
	var parts []string
	if days > 0 {
		parts = append(parts, fmt.Sprintf("%dd", days))
	}
	if hours > 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	if len(parts) == 0 {
		return "< 1h"
	}
	return strings.Join(parts, " ")
}

// Covers reports whether the pickup to return interval overlaps the calendar day.
func (b Booking) Covers(day time.Time) bool {
	loc := day.Location()
	start, err := ParseBookingTime(b.PickupDateTime, loc)
	if err != nil {
		return false
	}
	end, err := ParseBookingTime(b.ReturnDateTime, loc)
	if err != nil {
		return false
	}
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, loc)
	dayEnd := dayStart.AddDate(0, 0, 1)
	return start.Before(dayEnd) && !end.Before(dayStart)
}

// BookingsOn filters bookings to those active on the given day.
func BookingsOn(bookings []Booking, day time.Time) []Booking {
	var out []Booking
	for _, booking := range bookings {
		if booking.Covers(day) {
			out = append(out, booking)
		}
	}
	return out
}

var bookingTimeLayouts = []string{
	"2006-01-02 15:04",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
}

// ErrInvalidBookingTime is returned for timestamps in no known layout.
var ErrInvalidBookingTime = errors.New("invalid booking timestamp")

// ParseBookingTime parses API timestamps. Values without a zone are read in loc.
func ParseBookingTime(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range bookingTimeLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidBookingTime, value)
}

// BookingQuery selects a page of bookings.
type BookingQuery struct {
	Limit    int
	Offset   int
	Category string
	Status   string
	// Admin requests the admin-gated listing, which requires the shared admin key.
	Admin bool
}

// BookingPage is one fetched slice of the booking listing.
type BookingPage struct {
	Bookings []Booking `json:"bookings"`
	Total    int       `json:"total"`
	HasMore  bool      `json:"hasMore"`
}
