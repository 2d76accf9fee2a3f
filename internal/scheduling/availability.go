package scheduling

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	EventWindowAdded   = "AVAILABILITY_ADDED"
	EventWindowRemoved = "AVAILABILITY_REMOVED"
)

// AvailabilityRegistry owns the weekly windows providers publish.
type AvailabilityRegistry struct {
	repo   Repository
	logger *zap.Logger
}

func NewAvailabilityRegistry(repo Repository, logger *zap.Logger) *AvailabilityRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AvailabilityRegistry{repo: repo, logger: logger}
}

// Add publishes a window for the provider profile owned by requesterID.
// Uniqueness of (provider, weekday, start) is enforced by the store, so of two
// concurrent identical inserts the later one fails with ErrDuplicateSlot.
func (a *AvailabilityRegistry) Add(ctx context.Context, requesterID uuid.UUID, day Weekday, start, end Clock) (*AvailabilityWindow, error) {
	if !day.Valid() {
		return nil, fmt.Errorf("%w: weekday %d", ErrInvalidInput, int(day))
	}
	if !(Interval{Start: start, End: end}).Valid() {
		return nil, ErrInvalidRange
	}

	var created *AvailabilityWindow
	err := a.repo.InTx(ctx, func(ctx context.Context, tx Store) error {
		provider, err := tx.GetProviderByOwner(ctx, requesterID)
		if err != nil {
			return err
		}

		w := &AvailabilityWindow{
			ProviderID: provider.ID,
			Weekday:    day,
			StartTime:  start,
			EndTime:    end,
		}
		if err := tx.InsertWindow(ctx, w); err != nil {
			return err
		}
		created = w

		return recordEvent(ctx, tx, w.ID, EventWindowAdded, map[string]any{
			"provider_id": provider.ID.String(),
			"weekday":     day.String(),
			"start_time":  start.String(),
			"end_time":    end.String(),
		})
	})
	if err != nil {
		return nil, fmt.Errorf("add availability: %w", err)
	}

	a.logger.Info("availability window added",
		zap.Stringer("window_id", created.ID),
		zap.Stringer("provider_id", created.ProviderID),
		zap.Stringer("weekday", day),
		zap.Stringer("start", start),
		zap.Stringer("end", end),
	)
	return created, nil
}

// List returns the provider's windows ordered by (weekday, start).
func (a *AvailabilityRegistry) List(ctx context.Context, providerID uuid.UUID) ([]AvailabilityWindow, error) {
	var windows []AvailabilityWindow
	err := a.repo.View(ctx, func(ctx context.Context, s Store) error {
		if _, err := s.GetProvider(ctx, providerID); err != nil {
			return err
		}
		var err error
		windows, err = s.ListWindows(ctx, providerID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list availability: %w", err)
	}
	if windows == nil {
		windows = []AvailabilityWindow{}
	}
	return windows, nil
}

// Remove deletes a window. Bookings made against it are left as they are.
func (a *AvailabilityRegistry) Remove(ctx context.Context, windowID, requesterID uuid.UUID) error {
	err := a.repo.InTx(ctx, func(ctx context.Context, tx Store) error {
		w, err := tx.GetWindow(ctx, windowID)
		if err != nil {
			return err
		}
		provider, err := tx.GetProvider(ctx, w.ProviderID)
		if err != nil {
			return err
		}
		if provider.OwnerID != requesterID {
			return ErrForbidden
		}
		if err := tx.DeleteWindow(ctx, windowID); err != nil {
			return err
		}
		return recordEvent(ctx, tx, windowID, EventWindowRemoved, map[string]any{
			"provider_id": provider.ID.String(),
		})
	})
	if err != nil {
		if errors.Is(err, ErrForbidden) {
			a.logger.Warn("availability removal refused",
				zap.Stringer("window_id", windowID),
				zap.Stringer("requester_id", requesterID),
			)
		}
		return fmt.Errorf("remove availability: %w", err)
	}

	a.logger.Info("availability window removed", zap.Stringer("window_id", windowID))
	return nil
}
