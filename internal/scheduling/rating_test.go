package scheduling

import (
	"context"
	"testing"

	"github.com/google/uuid"
)

func TestRatingIsMeanOfReviews(t *testing.T) {
	f := newFixture(t, "50")
	f.addWindow(t, Monday, "09:00", "17:00")

	var reviews []*Review
	for i, rating := range []int{5, 4, 3} {
		start := NewClock(9+i, 0)
		b, err := f.bookings.Create(context.Background(), uuid.New(), f.provider.ID, monday, start, start+60)
		if err != nil {
			t.Fatalf("book: %v", err)
		}
		f.confirm(t, b)
		reviews = append(reviews, f.review(t, b, rating))
	}

	p := f.profile(t)
	if !approx(p.Rating, 4.0) || p.ReviewCount != 3 {
		t.Fatalf("rating = %v count = %d; want 4.0 and 3", p.Rating, p.ReviewCount)
	}

	// Update 3 -> 5: (5+4+5)/3
	five := 5
	last := reviews[2]
	if _, err := f.reviews.Update(context.Background(), last.ClientID, last.ID, ReviewUpdate{Rating: &five}); err != nil {
		t.Fatalf("update: %v", err)
	}
	p = f.profile(t)
	if !approx(p.Rating, 14.0/3.0) || p.ReviewCount != 3 {
		t.Fatalf("after update rating = %v count = %d", p.Rating, p.ReviewCount)
	}

	// Delete the 4: (5+5)/2
	if err := f.reviews.Delete(context.Background(), reviews[1].ClientID, reviews[1].ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	p = f.profile(t)
	if !approx(p.Rating, 5.0) || p.ReviewCount != 2 {
		t.Fatalf("after delete rating = %v count = %d", p.Rating, p.ReviewCount)
	}
}

func TestRatingKeptWhenLastReviewDeleted(t *testing.T) {
	f := newFixture(t, "50")
	f.addWindow(t, Monday, "09:00", "17:00")
	b := f.confirmedBooking(t, uuid.New(), "10:00", "11:00")
	r := f.review(t, b, 4)

	if err := f.reviews.Delete(context.Background(), b.ClientID, r.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	p := f.profile(t)
	if p.ReviewCount != 0 || !approx(p.Rating, 4) {
		t.Fatalf("rating = %v count = %d; want previous rating and 0", p.Rating, p.ReviewCount)
	}
}

func TestReconcileAllRepairsDrift(t *testing.T) {
	f := newFixture(t, "50")
	f.addWindow(t, Monday, "09:00", "17:00")
	b := f.confirmedBooking(t, uuid.New(), "10:00", "11:00")
	f.review(t, b, 2)

	drift := 4.9
	err := f.repo.InTx(context.Background(), func(ctx context.Context, tx Store) error {
		return tx.UpdateProviderRating(ctx, f.provider.ID, &drift, 17)
	})
	if err != nil {
		t.Fatalf("corrupt aggregate: %v", err)
	}

	n, err := f.ratings.ReconcileAll(context.Background())
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if n != 1 {
		t.Fatalf("reconciled %d providers, want 1", n)
	}
	p := f.profile(t)
	if !approx(p.Rating, 2) || p.ReviewCount != 1 {
		t.Fatalf("rating = %v count = %d after reconcile", p.Rating, p.ReviewCount)
	}
}

func TestFailedReviewLeavesAggregate(t *testing.T) {
	f := newFixture(t, "50")
	f.addWindow(t, Monday, "09:00", "17:00")
	b := f.confirmedBooking(t, uuid.New(), "10:00", "11:00")
	f.review(t, b, 5)
	before := f.profile(t)

	if _, err := f.reviews.Create(context.Background(), b.ClientID, b.ID, 1, nil); err == nil {
		t.Fatalf("expected duplicate review to fail")
	}
	after := f.profile(t)
	if after.Rating != before.Rating || after.ReviewCount != before.ReviewCount {
		t.Fatalf("aggregate changed: %+v -> %+v", before, after)
	}
}
