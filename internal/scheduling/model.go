package scheduling

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type BookingStatus string

const (
	StatusPending   BookingStatus = "PENDING"
	StatusConfirmed BookingStatus = "CONFIRMED"
	StatusCancelled BookingStatus = "CANCELLED"
)

var transitions = map[BookingStatus][]BookingStatus{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCancelled},
}

func ParseBookingStatus(s string) (BookingStatus, error) {
	switch st := BookingStatus(strings.ToUpper(strings.TrimSpace(s))); st {
	case StatusPending, StatusConfirmed, StatusCancelled:
		return st, nil
	default:
		return "", fmt.Errorf("%w: unknown booking status %q", ErrInvalidInput, s)
	}
}

// CanTransitionTo reports whether the lifecycle allows s -> to.
func (s BookingStatus) CanTransitionTo(to BookingStatus) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

func (s BookingStatus) Terminal() bool {
	return len(transitions[s]) == 0
}

type ProviderProfile struct {
	ID              uuid.UUID
	OwnerID         uuid.UUID
	HourlyRate      decimal.Decimal
	Rating          float64
	ReviewCount     int
	Bio             string
	Specialty       string
	ExperienceYears int
	Certification   string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type AvailabilityWindow struct {
	ID         uuid.UUID
	ProviderID uuid.UUID
	Weekday    Weekday
	StartTime  Clock
	EndTime    Clock
	CreatedAt  time.Time
}

func (w AvailabilityWindow) Interval() Interval {
	return Interval{Start: w.StartTime, End: w.EndTime}
}

type Booking struct {
	ID          uuid.UUID
	ClientID    uuid.UUID
	ProviderID  uuid.UUID
	SessionDate Date
	StartTime   Clock
	EndTime     Clock
	Price       decimal.Decimal
	Status      BookingStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (b Booking) Interval() Interval {
	return Interval{Start: b.StartTime, End: b.EndTime}
}

// Active bookings hold their interval; cancelled ones release it.
func (b Booking) Active() bool {
	return b.Status != StatusCancelled
}

type Review struct {
	ID         uuid.UUID
	BookingID  uuid.UUID
	ProviderID uuid.UUID
	ClientID   uuid.UUID
	Rating     int
	Comment    *string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type EventLog struct {
	ID          int64
	EventType   string
	AggregateID *uuid.UUID
	Payload     []byte
	CreatedAt   time.Time

	// TraceContext holds the W3C propagation fields of the request that
	// produced the event, empty when it was not traced.
	TraceContext map[string]string
}

// BookingFilter selects bookings for one party. Exactly one of ClientID or ProviderID is set.
type BookingFilter struct {
	ClientID   *uuid.UUID
	ProviderID *uuid.UUID
	Status     *BookingStatus
	Limit      int
	Offset     int
}

type ProviderFilter struct {
	Specialty string
	MinRate   *decimal.Decimal
	MaxRate   *decimal.Decimal
	MinRating *float64
	Limit     int
	Offset    int
}

// Page is one slice of an ordered result set plus pagination metadata.
type Page[T any] struct {
	Items    []T
	Total    int
	Page     int
	PageSize int
	Pages    int
}

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}

func newPage[T any](items []T, total, page, pageSize int) Page[T] {
	if items == nil {
		items = []T{}
	}
	return Page[T]{
		Items:    items,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
		Pages:    (total + pageSize - 1) / pageSize,
	}
}
