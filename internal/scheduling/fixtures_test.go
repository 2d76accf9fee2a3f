package scheduling

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	redisclient "github.com/hackgods/session-scheduling/internal/redis"
)

// 2026-02-09 is a Monday.
var (
	monday  = NewDate(2026, time.February, 9)
	tuesday = NewDate(2026, time.February, 10)
)

type fixture struct {
	repo         *MemoryRepository
	providers    *ProviderDirectory
	availability *AvailabilityRegistry
	bookings     *BookingScheduler
	ratings      *RatingAggregator
	reviews      *ReviewService

	owner    uuid.UUID
	provider *ProviderProfile
}

func newFixture(t *testing.T, hourlyRate string) *fixture {
	return newFixtureWithLocker(t, hourlyRate, nil)
}

func newFixtureWithLocker(t *testing.T, hourlyRate string, locker redisclient.Locker) *fixture {
	t.Helper()

	repo := NewMemoryRepository()
	ratings := NewRatingAggregator(repo, nil)
	f := &fixture{
		repo:         repo,
		providers:    NewProviderDirectory(repo, nil),
		availability: NewAvailabilityRegistry(repo, nil),
		bookings:     NewBookingScheduler(repo, locker, nil),
		ratings:      ratings,
		reviews:      NewReviewService(repo, ratings, nil),
		owner:        uuid.New(),
	}

	p, err := f.providers.CreateProfile(context.Background(), f.owner, ProfileInput{
		HourlyRate: decimal.RequireFromString(hourlyRate),
		Specialty:  "strength",
	})
	if err != nil {
		t.Fatalf("create provider: %v", err)
	}
	f.provider = p
	return f
}

func (f *fixture) addWindow(t *testing.T, day Weekday, start, end string) *AvailabilityWindow {
	t.Helper()
	w, err := f.availability.Add(context.Background(), f.owner, day, clock(t, start), clock(t, end))
	if err != nil {
		t.Fatalf("add window %s %s-%s: %v", day, start, end, err)
	}
	return w
}

func (f *fixture) book(t *testing.T, client uuid.UUID, date Date, start, end string) *Booking {
	t.Helper()
	b, err := f.bookings.Create(context.Background(), client, f.provider.ID, date, clock(t, start), clock(t, end))
	if err != nil {
		t.Fatalf("book %s %s-%s: %v", date, start, end, err)
	}
	return b
}

func (f *fixture) confirm(t *testing.T, b *Booking) {
	t.Helper()
	if _, err := f.bookings.SetStatus(context.Background(), b.ID, f.owner, StatusConfirmed); err != nil {
		t.Fatalf("confirm %s: %v", b.ID, err)
	}
}

func (f *fixture) profile(t *testing.T) *ProviderProfile {
	t.Helper()
	p, err := f.providers.GetProfile(context.Background(), f.provider.ID)
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	return p
}

func (f *fixture) eventTypes() []string {
	var out []string
	for _, ev := range f.repo.Events() {
		out = append(out, ev.EventType)
	}
	return out
}

func clock(t *testing.T, s string) Clock {
	t.Helper()
	c, err := ParseClock(s)
	if err != nil {
		t.Fatalf("parse clock %q: %v", s, err)
	}
	return c
}
