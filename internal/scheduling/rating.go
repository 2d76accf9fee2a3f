package scheduling

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RatingAggregator keeps ProviderProfile.Rating and ReviewCount equal to the
// mean and count of the provider's reviews.
type RatingAggregator struct {
	repo   Repository
	logger *zap.Logger
}

func NewRatingAggregator(repo Repository, logger *zap.Logger) *RatingAggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RatingAggregator{repo: repo, logger: logger}
}

// OnReviewChanged recomputes the aggregate inside tx, the same transaction as
// the review mutation that triggered it. With no reviews left the count drops
// to zero and the previous rating is kept.
func (a *RatingAggregator) OnReviewChanged(ctx context.Context, tx Store, providerID uuid.UUID) error {
	avg, count, err := tx.ReviewStats(ctx, providerID)
	if err != nil {
		return fmt.Errorf("review stats: %w", err)
	}

	var rating *float64
	if count > 0 {
		rating = &avg
	}
	if err := tx.UpdateProviderRating(ctx, providerID, rating, count); err != nil {
		return fmt.Errorf("update provider rating: %w", err)
	}
	return nil
}

// Recompute runs OnReviewChanged for one provider in its own transaction.
func (a *RatingAggregator) Recompute(ctx context.Context, providerID uuid.UUID) error {
	return a.repo.InTx(ctx, func(ctx context.Context, tx Store) error {
		return a.OnReviewChanged(ctx, tx, providerID)
	})
}

// ReconcileAll recomputes every provider's aggregate. Failures are logged and
// skipped; the number of providers successfully recomputed is returned.
func (a *RatingAggregator) ReconcileAll(ctx context.Context) (int, error) {
	var ids []uuid.UUID
	err := a.repo.View(ctx, func(ctx context.Context, s Store) error {
		var err error
		ids, err = s.ListProviderIDs(ctx)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("list providers: %w", err)
	}

	done := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return done, err
		}
		if err := a.Recompute(ctx, id); err != nil {
			a.logger.Error("rating reconcile failed", zap.Stringer("provider_id", id), zap.Error(err))
			continue
		}
		done++
	}
	return done, nil
}
