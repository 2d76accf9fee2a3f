package scheduling

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	EventReviewCreated = "REVIEW_CREATED"
	EventReviewUpdated = "REVIEW_UPDATED"
	EventReviewDeleted = "REVIEW_DELETED"
)

const (
	MinRating = 1
	MaxRating = 5
)

// ReviewUpdate carries the fields a client may change. Nil fields are left alone.
type ReviewUpdate struct {
	Rating  *int
	Comment *string
}

// ReviewService manages reviews of confirmed bookings. Every mutation
// recomputes the provider's aggregate rating in the same transaction.
type ReviewService struct {
	repo       Repository
	aggregator *RatingAggregator
	logger     *zap.Logger
}

func NewReviewService(repo Repository, aggregator *RatingAggregator, logger *zap.Logger) *ReviewService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReviewService{repo: repo, aggregator: aggregator, logger: logger}
}

func (s *ReviewService) Create(ctx context.Context, clientID, bookingID uuid.UUID, rating int, comment *string) (*Review, error) {
	if err := validateRating(rating); err != nil {
		return nil, err
	}

	var created *Review
	err := s.repo.InTx(ctx, func(ctx context.Context, tx Store) error {
		b, err := tx.GetBooking(ctx, bookingID)
		if err != nil {
			return err
		}
		if b.ClientID != clientID {
			return ErrForbidden
		}
		if b.Status != StatusConfirmed {
			return ErrBookingNotConfirmed
		}

		if _, err := tx.GetReviewByBooking(ctx, bookingID); err == nil {
			return ErrDuplicateReview
		} else if !errors.Is(err, ErrReviewNotFound) {
			return fmt.Errorf("check existing review: %w", err)
		}

		r := &Review{
			BookingID:  b.ID,
			ProviderID: b.ProviderID,
			ClientID:   clientID,
			Rating:     rating,
			Comment:    comment,
		}
		if err := tx.InsertReview(ctx, r); err != nil {
			return err
		}
		created = r

		if err := s.aggregator.OnReviewChanged(ctx, tx, b.ProviderID); err != nil {
			return err
		}
		return recordEvent(ctx, tx, r.ID, EventReviewCreated, map[string]any{
			"booking_id":  b.ID.String(),
			"provider_id": b.ProviderID.String(),
			"rating":      rating,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("create review: %w", err)
	}

	s.logger.Info("review created",
		zap.Stringer("review_id", created.ID),
		zap.Stringer("provider_id", created.ProviderID),
		zap.Int("rating", rating),
	)
	return created, nil
}

func (s *ReviewService) Update(ctx context.Context, clientID, reviewID uuid.UUID, upd ReviewUpdate) (*Review, error) {
	if upd.Rating != nil {
		if err := validateRating(*upd.Rating); err != nil {
			return nil, err
		}
	}

	var updated *Review
	err := s.repo.InTx(ctx, func(ctx context.Context, tx Store) error {
		r, err := tx.GetReview(ctx, reviewID)
		if err != nil {
			return err
		}
		if r.ClientID != clientID {
			return ErrForbidden
		}

		if upd.Rating != nil {
			r.Rating = *upd.Rating
		}
		if upd.Comment != nil {
			r.Comment = upd.Comment
		}
		if err := tx.UpdateReview(ctx, r); err != nil {
			return err
		}
		updated = r

		if err := s.aggregator.OnReviewChanged(ctx, tx, r.ProviderID); err != nil {
			return err
		}
		return recordEvent(ctx, tx, r.ID, EventReviewUpdated, map[string]any{
			"provider_id": r.ProviderID.String(),
			"rating":      r.Rating,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("update review: %w", err)
	}

	s.logger.Info("review updated", zap.Stringer("review_id", reviewID))
	return updated, nil
}

func (s *ReviewService) Delete(ctx context.Context, clientID, reviewID uuid.UUID) error {
	err := s.repo.InTx(ctx, func(ctx context.Context, tx Store) error {
		r, err := tx.GetReview(ctx, reviewID)
		if err != nil {
			return err
		}
		if r.ClientID != clientID {
			return ErrForbidden
		}
		if err := tx.DeleteReview(ctx, reviewID); err != nil {
			return err
		}

		if err := s.aggregator.OnReviewChanged(ctx, tx, r.ProviderID); err != nil {
			return err
		}
		return recordEvent(ctx, tx, r.ID, EventReviewDeleted, map[string]any{
			"provider_id": r.ProviderID.String(),
		})
	})
	if err != nil {
		return fmt.Errorf("delete review: %w", err)
	}

	s.logger.Info("review deleted", zap.Stringer("review_id", reviewID))
	return nil
}

// ListForProvider pages through a provider's reviews, newest first.
func (s *ReviewService) ListForProvider(ctx context.Context, providerID uuid.UUID, page, pageSize int) (Page[Review], error) {
	page, pageSize = normalizePage(page, pageSize)

	var (
		items []Review
		total int
	)
	err := s.repo.View(ctx, func(ctx context.Context, st Store) error {
		if _, err := st.GetProvider(ctx, providerID); err != nil {
			return err
		}
		var err error
		items, total, err = st.ListReviews(ctx, providerID, pageSize, (page-1)*pageSize)
		return err
	})
	if err != nil {
		return Page[Review]{}, fmt.Errorf("list reviews: %w", err)
	}
	return newPage(items, total, page, pageSize), nil
}

func validateRating(rating int) error {
	if rating < MinRating || rating > MaxRating {
		return ErrInvalidRating
	}
	return nil
}
