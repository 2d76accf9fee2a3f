package scheduling

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	redisclient "github.com/hackgods/session-scheduling/internal/redis"
)

const (
	EventBookingCreated       = "BOOKING_CREATED"
	EventBookingStatusChanged = "BOOKING_STATUS_CHANGED"
	EventBookingCancelled     = "BOOKING_CANCELLED"
)

var ErrSlotBusy = newError(KindConflict, "slot is currently being booked, please retry")

// BookingScheduler validates and creates bookings and drives their status.
type BookingScheduler struct {
	repo   Repository
	locker redisclient.Locker
	logger *zap.Logger
}

// NewBookingScheduler wires the scheduler. locker may be nil, in which case
// the repository transaction alone guards against double booking.
func NewBookingScheduler(repo Repository, locker redisclient.Locker, logger *zap.Logger) *BookingScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BookingScheduler{repo: repo, locker: locker, logger: logger}
}

// Create reserves [start, end) on date with the provider for the client.
// The covering-window check, the overlap check and the insert run in one
// transaction; a per (provider, date) lock narrows contention across instances.
func (s *BookingScheduler) Create(ctx context.Context, clientID, providerID uuid.UUID, date Date, start, end Clock) (*Booking, error) {
	requested := Interval{Start: start, End: end}
	if !requested.Valid() {
		return nil, ErrInvalidRange
	}
	if date.IsZero() {
		return nil, fmt.Errorf("%w: session date is required", ErrInvalidInput)
	}

	var created *Booking
	create := func(ctx context.Context) error {
		return s.repo.InTx(ctx, func(ctx context.Context, tx Store) error {
			provider, err := tx.GetProvider(ctx, providerID)
			if err != nil {
				return err
			}

			windows, err := tx.ListWindowsByWeekday(ctx, providerID, date.Weekday())
			if err != nil {
				return fmt.Errorf("load windows: %w", err)
			}
			if !coveredByAny(requested, windows) {
				return ErrSlotUnavailable
			}

			existing, err := tx.ListActiveBookings(ctx, providerID, date)
			if err != nil {
				return fmt.Errorf("load bookings: %w", err)
			}
			busy := make([]Interval, 0, len(existing))
			for _, b := range existing {
				busy = append(busy, b.Interval())
			}
			if overlapsAny(requested, busy) {
				return ErrSlotConflict
			}

			b := &Booking{
				ClientID:    clientID,
				ProviderID:  providerID,
				SessionDate: date,
				StartTime:   start,
				EndTime:     end,
				Price:       SessionPrice(provider.HourlyRate, requested),
				Status:      StatusPending,
			}
			if err := tx.InsertBooking(ctx, b); err != nil {
				return err
			}
			created = b

			return recordEvent(ctx, tx, b.ID, EventBookingCreated, map[string]any{
				"client_id":    clientID.String(),
				"provider_id":  providerID.String(),
				"session_date": date.String(),
				"start_time":   start.String(),
				"end_time":     end.String(),
				"price":        b.Price.StringFixed(2),
			})
		})
	}

	var err error
	if s.locker != nil {
		err = s.locker.WithLock(ctx, bookingLockKey(providerID, date), create)
	} else {
		err = create(ctx)
	}
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, fmt.Errorf("%w: %w", ErrSlotConflict, ErrSlotBusy)
		}
		return nil, fmt.Errorf("create booking: %w", err)
	}

	s.logger.Info("booking created",
		zap.Stringer("booking_id", created.ID),
		zap.Stringer("provider_id", providerID),
		zap.Stringer("client_id", clientID),
		zap.Stringer("session_date", date),
		zap.Stringer("start", start),
		zap.Stringer("end", end),
	)
	return created, nil
}

// SetStatus lets the owning provider accept or reject a pending booking.
func (s *BookingScheduler) SetStatus(ctx context.Context, bookingID, requesterID uuid.UUID, to BookingStatus) (*Booking, error) {
	var updated *Booking
	err := s.repo.InTx(ctx, func(ctx context.Context, tx Store) error {
		b, err := tx.GetBooking(ctx, bookingID)
		if err != nil {
			return err
		}
		provider, err := tx.GetProvider(ctx, b.ProviderID)
		if err != nil {
			return err
		}
		if provider.OwnerID != requesterID {
			return ErrForbidden
		}
		if b.Status != StatusPending || !b.Status.CanTransitionTo(to) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, b.Status, to)
		}

		updated, err = s.transition(ctx, tx, b, to)
		if err != nil {
			return err
		}
		return recordEvent(ctx, tx, b.ID, EventBookingStatusChanged, map[string]any{
			"from": string(b.Status),
			"to":   string(to),
		})
	})
	if err != nil {
		return nil, fmt.Errorf("set booking status: %w", err)
	}

	s.logger.Info("booking status changed",
		zap.Stringer("booking_id", bookingID),
		zap.String("status", string(to)),
	)
	return updated, nil
}

// Cancel moves a pending or confirmed booking to CANCELLED on behalf of
// either party. Sessions in the past may still be cancelled.
func (s *BookingScheduler) Cancel(ctx context.Context, bookingID, requesterID uuid.UUID) (*Booking, error) {
	var updated *Booking
	err := s.repo.InTx(ctx, func(ctx context.Context, tx Store) error {
		b, err := tx.GetBooking(ctx, bookingID)
		if err != nil {
			return err
		}
		provider, err := tx.GetProvider(ctx, b.ProviderID)
		if err != nil {
			return err
		}
		if requesterID != b.ClientID && requesterID != provider.OwnerID {
			return ErrForbidden
		}
		if !b.Status.CanTransitionTo(StatusCancelled) {
			return fmt.Errorf("%w: booking is already %s", ErrInvalidTransition, b.Status)
		}

		updated, err = s.transition(ctx, tx, b, StatusCancelled)
		if err != nil {
			return err
		}

		by := "client"
		if requesterID == provider.OwnerID {
			by = "provider"
		}
		return recordEvent(ctx, tx, b.ID, EventBookingCancelled, map[string]any{
			"from":         string(b.Status),
			"cancelled_by": by,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("cancel booking: %w", err)
	}

	s.logger.Info("booking cancelled", zap.Stringer("booking_id", bookingID), zap.Stringer("requester_id", requesterID))
	return updated, nil
}

// Get returns a booking to one of its two parties.
func (s *BookingScheduler) Get(ctx context.Context, bookingID, requesterID uuid.UUID) (*Booking, error) {
	var found *Booking
	err := s.repo.View(ctx, func(ctx context.Context, st Store) error {
		b, err := st.GetBooking(ctx, bookingID)
		if err != nil {
			return err
		}
		if b.ClientID != requesterID {
			provider, err := st.GetProvider(ctx, b.ProviderID)
			if err != nil {
				return err
			}
			if provider.OwnerID != requesterID {
				return ErrForbidden
			}
		}
		found = b
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get booking: %w", err)
	}
	return found, nil
}

// ListForClient pages through the client's bookings, newest session first.
func (s *BookingScheduler) ListForClient(ctx context.Context, clientID uuid.UUID, status *BookingStatus, page, pageSize int) (Page[Booking], error) {
	return s.list(ctx, BookingFilter{ClientID: &clientID, Status: status}, page, pageSize)
}

// ListForProvider pages through bookings of the provider profile owned by ownerID.
func (s *BookingScheduler) ListForProvider(ctx context.Context, ownerID uuid.UUID, status *BookingStatus, page, pageSize int) (Page[Booking], error) {
	var providerID uuid.UUID
	err := s.repo.View(ctx, func(ctx context.Context, st Store) error {
		p, err := st.GetProviderByOwner(ctx, ownerID)
		if err != nil {
			return err
		}
		providerID = p.ID
		return nil
	})
	if err != nil {
		return Page[Booking]{}, fmt.Errorf("list provider bookings: %w", err)
	}
	return s.list(ctx, BookingFilter{ProviderID: &providerID, Status: status}, page, pageSize)
}

func (s *BookingScheduler) list(ctx context.Context, f BookingFilter, page, pageSize int) (Page[Booking], error) {
	page, pageSize = normalizePage(page, pageSize)
	f.Limit = pageSize
	f.Offset = (page - 1) * pageSize

	var (
		items []Booking
		total int
	)
	err := s.repo.View(ctx, func(ctx context.Context, st Store) error {
		var err error
		items, total, err = st.ListBookings(ctx, f)
		return err
	})
	if err != nil {
		return Page[Booking]{}, fmt.Errorf("list bookings: %w", err)
	}
	return newPage(items, total, page, pageSize), nil
}

// transition applies a guarded status update. A concurrent change of the
// stored status surfaces as ErrInvalidTransition.
func (s *BookingScheduler) transition(ctx context.Context, tx Store, b *Booking, to BookingStatus) (*Booking, error) {
	updated, err := tx.UpdateBookingStatus(ctx, b.ID, b.Status, to)
	if err != nil {
		if errors.Is(err, ErrBookingNotFound) {
			return nil, fmt.Errorf("%w: booking changed concurrently", ErrInvalidTransition)
		}
		return nil, err
	}
	return updated, nil
}

// SessionPrice is the hourly rate prorated to the interval's length, rounded to cents.
func SessionPrice(hourlyRate decimal.Decimal, iv Interval) decimal.Decimal {
	minutes := decimal.NewFromInt(int64(iv.Minutes()))
	return hourlyRate.Mul(minutes).Div(decimal.NewFromInt(60)).Round(2)
}

func coveredByAny(iv Interval, windows []AvailabilityWindow) bool {
	for _, w := range windows {
		if w.Interval().Contains(iv) {
			return true
		}
	}
	return false
}

func bookingLockKey(providerID uuid.UUID, date Date) string {
	return fmt.Sprintf("lock:booking:%s:%s", providerID, date)
}
