package scheduling

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository is an in-process Repository. Transactions are serialized
// and run against a copy of the state that replaces the original only when
// fn succeeds, which gives the same all-or-nothing behaviour as Postgres.
type MemoryRepository struct {
	mu    sync.Mutex
	state *memState
	now   func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		state: newMemState(),
		now:   time.Now,
	}
}

func (r *MemoryRepository) InTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	work := r.state.clone()
	if err := fn(ctx, &memStore{state: work, now: r.now}); err != nil {
		return err
	}
	r.state = work
	return nil
}

func (r *MemoryRepository) View(ctx context.Context, fn func(ctx context.Context, s Store) error) error {
	r.mu.Lock()
	snapshot := r.state.clone()
	r.mu.Unlock()

	// Writes through a view land on the discarded snapshot.
	return fn(ctx, &memStore{state: snapshot, now: r.now})
}

// Events returns a copy of every event recorded so far.
func (r *MemoryRepository) Events() []EventLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]EventLog(nil), r.state.events...)
}

type memState struct {
	providers map[uuid.UUID]ProviderProfile
	windows   map[uuid.UUID]AvailabilityWindow
	bookings  map[uuid.UUID]Booking
	reviews   map[uuid.UUID]Review
	// creation sequence, used as the tie-breaker in listings
	bookingSeq map[uuid.UUID]int64
	seq        int64
	events     []EventLog
}

func newMemState() *memState {
	return &memState{
		providers:  map[uuid.UUID]ProviderProfile{},
		windows:    map[uuid.UUID]AvailabilityWindow{},
		bookings:   map[uuid.UUID]Booking{},
		reviews:    map[uuid.UUID]Review{},
		bookingSeq: map[uuid.UUID]int64{},
	}
}

func (s *memState) clone() *memState {
	c := &memState{
		providers:  make(map[uuid.UUID]ProviderProfile, len(s.providers)),
		windows:    make(map[uuid.UUID]AvailabilityWindow, len(s.windows)),
		bookings:   make(map[uuid.UUID]Booking, len(s.bookings)),
		reviews:    make(map[uuid.UUID]Review, len(s.reviews)),
		bookingSeq: make(map[uuid.UUID]int64, len(s.bookingSeq)),
		seq:        s.seq,
		events:     append([]EventLog(nil), s.events...),
	}
	for k, v := range s.providers {
		c.providers[k] = v
	}
	for k, v := range s.windows {
		c.windows[k] = v
	}
	for k, v := range s.bookings {
		c.bookings[k] = v
	}
	for k, v := range s.reviews {
		c.reviews[k] = v
	}
	for k, v := range s.bookingSeq {
		c.bookingSeq[k] = v
	}
	return c
}

type memStore struct {
	state *memState
	now   func() time.Time
}

// Providers

func (m *memStore) GetProvider(_ context.Context, id uuid.UUID) (*ProviderProfile, error) {
	p, ok := m.state.providers[id]
	if !ok {
		return nil, ErrProviderNotFound
	}
	return &p, nil
}

func (m *memStore) GetProviderByOwner(_ context.Context, ownerID uuid.UUID) (*ProviderProfile, error) {
	for _, p := range m.state.providers {
		if p.OwnerID == ownerID {
			return &p, nil
		}
	}
	return nil, ErrProviderNotFound
}

func (m *memStore) CreateProvider(_ context.Context, p *ProviderProfile) error {
	for _, existing := range m.state.providers {
		if existing.OwnerID == p.OwnerID {
			return ErrDuplicateProfile
		}
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := m.now()
	p.CreatedAt, p.UpdatedAt = now, now
	m.state.providers[p.ID] = *p
	return nil
}

func (m *memStore) UpdateProvider(_ context.Context, p *ProviderProfile) error {
	existing, ok := m.state.providers[p.ID]
	if !ok {
		return ErrProviderNotFound
	}
	existing.HourlyRate = p.HourlyRate
	existing.Bio = p.Bio
	existing.Specialty = p.Specialty
	existing.ExperienceYears = p.ExperienceYears
	existing.Certification = p.Certification
	existing.UpdatedAt = m.now()
	m.state.providers[p.ID] = existing
	*p = existing
	return nil
}

func (m *memStore) UpdateProviderRating(_ context.Context, providerID uuid.UUID, rating *float64, count int) error {
	p, ok := m.state.providers[providerID]
	if !ok {
		return ErrProviderNotFound
	}
	if rating != nil {
		p.Rating = *rating
	}
	p.ReviewCount = count
	p.UpdatedAt = m.now()
	m.state.providers[providerID] = p
	return nil
}

func (m *memStore) SearchProviders(_ context.Context, f ProviderFilter) ([]ProviderProfile, int, error) {
	var matched []ProviderProfile
	for _, p := range m.state.providers {
		if f.Specialty != "" && !strings.Contains(strings.ToLower(p.Specialty), strings.ToLower(f.Specialty)) {
			continue
		}
		if f.MinRate != nil && p.HourlyRate.LessThan(*f.MinRate) {
			continue
		}
		if f.MaxRate != nil && p.HourlyRate.GreaterThan(*f.MaxRate) {
			continue
		}
		if f.MinRating != nil && p.Rating < *f.MinRating {
			continue
		}
		matched = append(matched, p)
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Rating != matched[j].Rating {
			return matched[i].Rating > matched[j].Rating
		}
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})
	return paginate(matched, f.Limit, f.Offset), len(matched), nil
}

func (m *memStore) ListProviderIDs(_ context.Context) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(m.state.providers))
	for id := range m.state.providers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids, nil
}

// Availability windows

func (m *memStore) InsertWindow(_ context.Context, w *AvailabilityWindow) error {
	for _, existing := range m.state.windows {
		if existing.ProviderID == w.ProviderID && existing.Weekday == w.Weekday && existing.StartTime == w.StartTime {
			return ErrDuplicateSlot
		}
	}
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	w.CreatedAt = m.now()
	m.state.windows[w.ID] = *w
	return nil
}

func (m *memStore) GetWindow(_ context.Context, id uuid.UUID) (*AvailabilityWindow, error) {
	w, ok := m.state.windows[id]
	if !ok {
		return nil, ErrWindowNotFound
	}
	return &w, nil
}

func (m *memStore) ListWindows(_ context.Context, providerID uuid.UUID) ([]AvailabilityWindow, error) {
	var out []AvailabilityWindow
	for _, w := range m.state.windows {
		if w.ProviderID == providerID {
			out = append(out, w)
		}
	}
	sortWindows(out)
	return out, nil
}

func (m *memStore) ListWindowsByWeekday(_ context.Context, providerID uuid.UUID, day Weekday) ([]AvailabilityWindow, error) {
	var out []AvailabilityWindow
	for _, w := range m.state.windows {
		if w.ProviderID == providerID && w.Weekday == day {
			out = append(out, w)
		}
	}
	sortWindows(out)
	return out, nil
}

func (m *memStore) DeleteWindow(_ context.Context, id uuid.UUID) error {
	if _, ok := m.state.windows[id]; !ok {
		return ErrWindowNotFound
	}
	delete(m.state.windows, id)
	return nil
}

// Bookings

func (m *memStore) InsertBooking(_ context.Context, b *Booking) error {
	// Mirrors the exclusion constraint on active bookings.
	if b.Active() {
		for _, existing := range m.state.bookings {
			if existing.Active() && existing.ProviderID == b.ProviderID &&
				existing.SessionDate.Equal(b.SessionDate) && existing.Interval().Overlaps(b.Interval()) {
				return ErrSlotConflict
			}
		}
	}
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	now := m.now()
	b.CreatedAt, b.UpdatedAt = now, now
	m.state.seq++
	m.state.bookingSeq[b.ID] = m.state.seq
	m.state.bookings[b.ID] = *b
	return nil
}

func (m *memStore) GetBooking(_ context.Context, id uuid.UUID) (*Booking, error) {
	b, ok := m.state.bookings[id]
	if !ok {
		return nil, ErrBookingNotFound
	}
	return &b, nil
}

func (m *memStore) ListActiveBookings(_ context.Context, providerID uuid.UUID, date Date) ([]Booking, error) {
	var out []Booking
	for _, b := range m.state.bookings {
		if b.Active() && b.ProviderID == providerID && b.SessionDate.Equal(date) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime < out[j].StartTime })
	return out, nil
}

func (m *memStore) UpdateBookingStatus(_ context.Context, id uuid.UUID, from, to BookingStatus) (*Booking, error) {
	b, ok := m.state.bookings[id]
	if !ok || b.Status != from {
		return nil, ErrBookingNotFound
	}
	b.Status = to
	b.UpdatedAt = m.now()
	m.state.bookings[id] = b
	return &b, nil
}

func (m *memStore) ListBookings(_ context.Context, f BookingFilter) ([]Booking, int, error) {
	var matched []Booking
	for _, b := range m.state.bookings {
		if f.ClientID != nil && b.ClientID != *f.ClientID {
			continue
		}
		if f.ProviderID != nil && b.ProviderID != *f.ProviderID {
			continue
		}
		if f.Status != nil && b.Status != *f.Status {
			continue
		}
		matched = append(matched, b)
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].SessionDate.Equal(matched[j].SessionDate) {
			return matched[i].SessionDate.After(matched[j].SessionDate)
		}
		return m.state.bookingSeq[matched[i].ID] < m.state.bookingSeq[matched[j].ID]
	})
	return paginate(matched, f.Limit, f.Offset), len(matched), nil
}

// Reviews

func (m *memStore) InsertReview(_ context.Context, r *Review) error {
	for _, existing := range m.state.reviews {
		if existing.BookingID == r.BookingID {
			return ErrDuplicateReview
		}
	}
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	now := m.now()
	r.CreatedAt, r.UpdatedAt = now, now
	m.state.reviews[r.ID] = *r
	return nil
}

func (m *memStore) GetReview(_ context.Context, id uuid.UUID) (*Review, error) {
	r, ok := m.state.reviews[id]
	if !ok {
		return nil, ErrReviewNotFound
	}
	return &r, nil
}

func (m *memStore) GetReviewByBooking(_ context.Context, bookingID uuid.UUID) (*Review, error) {
	for _, r := range m.state.reviews {
		if r.BookingID == bookingID {
			return &r, nil
		}
	}
	return nil, ErrReviewNotFound
}

func (m *memStore) UpdateReview(_ context.Context, r *Review) error {
	existing, ok := m.state.reviews[r.ID]
	if !ok {
		return ErrReviewNotFound
	}
	existing.Rating = r.Rating
	existing.Comment = r.Comment
	existing.UpdatedAt = m.now()
	m.state.reviews[r.ID] = existing
	*r = existing
	return nil
}

func (m *memStore) DeleteReview(_ context.Context, id uuid.UUID) error {
	if _, ok := m.state.reviews[id]; !ok {
		return ErrReviewNotFound
	}
	delete(m.state.reviews, id)
	return nil
}

func (m *memStore) ListReviews(_ context.Context, providerID uuid.UUID, limit, offset int) ([]Review, int, error) {
	var matched []Review
	for _, r := range m.state.reviews {
		if r.ProviderID == providerID {
			matched = append(matched, r)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	return paginate(matched, limit, offset), len(matched), nil
}

func (m *memStore) ReviewStats(_ context.Context, providerID uuid.UUID) (float64, int, error) {
	sum, count := 0, 0
	for _, r := range m.state.reviews {
		if r.ProviderID == providerID {
			sum += r.Rating
			count++
		}
	}
	if count == 0 {
		return 0, 0, nil
	}
	return float64(sum) / float64(count), count, nil
}

// Event logging

func (m *memStore) InsertEvent(_ context.Context, ev EventLog) error {
	ev.ID = int64(len(m.state.events) + 1)
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = m.now()
	}
	m.state.events = append(m.state.events, ev)
	return nil
}

// Helpers

func sortWindows(ws []AvailabilityWindow) {
	sort.Slice(ws, func(i, j int) bool {
		if ws[i].Weekday != ws[j].Weekday {
			return ws[i].Weekday < ws[j].Weekday
		}
		return ws[i].StartTime < ws[j].StartTime
	})
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
