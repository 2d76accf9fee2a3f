package scheduling

import (
	"context"

	"github.com/google/uuid"
)

// Store contains all DB interactions needed by the scheduling components.
// Implementations translate storage-level constraint violations into the
// sentinel errors of this package.
type Store interface {
	// Providers
	GetProvider(ctx context.Context, id uuid.UUID) (*ProviderProfile, error)
	GetProviderByOwner(ctx context.Context, ownerID uuid.UUID) (*ProviderProfile, error)
	CreateProvider(ctx context.Context, p *ProviderProfile) error
	UpdateProvider(ctx context.Context, p *ProviderProfile) error
	// UpdateProviderRating writes the aggregate. A nil rating keeps the stored value.
	UpdateProviderRating(ctx context.Context, providerID uuid.UUID, rating *float64, count int) error
	SearchProviders(ctx context.Context, f ProviderFilter) ([]ProviderProfile, int, error)
	ListProviderIDs(ctx context.Context) ([]uuid.UUID, error)

	// Availability windows
	InsertWindow(ctx context.Context, w *AvailabilityWindow) error
	GetWindow(ctx context.Context, id uuid.UUID) (*AvailabilityWindow, error)
	ListWindows(ctx context.Context, providerID uuid.UUID) ([]AvailabilityWindow, error)
	ListWindowsByWeekday(ctx context.Context, providerID uuid.UUID, day Weekday) ([]AvailabilityWindow, error)
	DeleteWindow(ctx context.Context, id uuid.UUID) error

	// Bookings
	InsertBooking(ctx context.Context, b *Booking) error
	GetBooking(ctx context.Context, id uuid.UUID) (*Booking, error)
	// For conflict checks
	ListActiveBookings(ctx context.Context, providerID uuid.UUID, date Date) ([]Booking, error)
	// UpdateBookingStatus only applies when the stored status still equals from.
	UpdateBookingStatus(ctx context.Context, id uuid.UUID, from, to BookingStatus) (*Booking, error)
	ListBookings(ctx context.Context, f BookingFilter) ([]Booking, int, error)

	// Reviews
	InsertReview(ctx context.Context, r *Review) error
	GetReview(ctx context.Context, id uuid.UUID) (*Review, error)
	GetReviewByBooking(ctx context.Context, bookingID uuid.UUID) (*Review, error)
	UpdateReview(ctx context.Context, r *Review) error
	DeleteReview(ctx context.Context, id uuid.UUID) error
	ListReviews(ctx context.Context, providerID uuid.UUID, limit, offset int) ([]Review, int, error)
	ReviewStats(ctx context.Context, providerID uuid.UUID) (avg float64, count int, err error)

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}

// Repository is the transactional boundary around a Store.
type Repository interface {
	// InTx runs fn inside one isolated transaction. If fn returns an error
	// nothing it wrote is kept.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
	// View runs read-only fn outside an explicit transaction.
	View(ctx context.Context, fn func(ctx context.Context, s Store) error) error
}
