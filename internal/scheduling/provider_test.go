package scheduling

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func TestCreateProfileOncePerOwner(t *testing.T) {
	repo := NewMemoryRepository()
	d := NewProviderDirectory(repo, nil)
	owner := uuid.New()
	ctx := context.Background()

	p, err := d.CreateProfile(ctx, owner, ProfileInput{HourlyRate: decimal.RequireFromString("45.555"), Specialty: " yoga "})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !p.HourlyRate.Equal(decimal.RequireFromString("45.56")) || p.Specialty != "yoga" || p.ReviewCount != 0 {
		t.Fatalf("unexpected profile: %+v", p)
	}

	if _, err := d.CreateProfile(ctx, owner, ProfileInput{HourlyRate: decimal.NewFromInt(10)}); !errors.Is(err, ErrDuplicateProfile) {
		t.Fatalf("expected ErrDuplicateProfile, got %v", err)
	}
	if _, err := d.CreateProfile(ctx, uuid.New(), ProfileInput{HourlyRate: decimal.NewFromInt(-1)}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for negative rate, got %v", err)
	}
	if _, err := d.CreateProfile(ctx, uuid.New(), ProfileInput{HourlyRate: MaxHourlyRate.Add(decimal.NewFromInt(1))}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for oversized rate, got %v", err)
	}
	if _, err := d.GetProfile(ctx, uuid.New()); !errors.Is(err, ErrProviderNotFound) {
		t.Fatalf("expected ErrProviderNotFound, got %v", err)
	}
}

func TestUpdateProfilePartial(t *testing.T) {
	repo := NewMemoryRepository()
	d := NewProviderDirectory(repo, nil)
	owner := uuid.New()
	ctx := context.Background()

	if _, err := d.CreateProfile(ctx, owner, ProfileInput{HourlyRate: decimal.NewFromInt(40), Bio: "coach", ExperienceYears: 3}); err != nil {
		t.Fatalf("create: %v", err)
	}

	rate := decimal.NewFromInt(55)
	updated, err := d.UpdateProfile(ctx, owner, ProfileUpdate{HourlyRate: &rate})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !updated.HourlyRate.Equal(rate) || updated.Bio != "coach" || updated.ExperienceYears != 3 {
		t.Fatalf("unexpected profile after partial update: %+v", updated)
	}

	negative := -2
	if _, err := d.UpdateProfile(ctx, owner, ProfileUpdate{ExperienceYears: &negative}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := d.UpdateProfile(ctx, uuid.New(), ProfileUpdate{HourlyRate: &rate}); !errors.Is(err, ErrProviderNotFound) {
		t.Fatalf("expected ErrProviderNotFound, got %v", err)
	}
}

func TestSearchProviders(t *testing.T) {
	repo := NewMemoryRepository()
	d := NewProviderDirectory(repo, nil)
	ctx := context.Background()

	mk := func(rate int64, specialty string, rating float64) *ProviderProfile {
		p, err := d.CreateProfile(ctx, uuid.New(), ProfileInput{HourlyRate: decimal.NewFromInt(rate), Specialty: specialty})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		err = repo.InTx(ctx, func(ctx context.Context, tx Store) error {
			return tx.UpdateProviderRating(ctx, p.ID, &rating, 1)
		})
		if err != nil {
			t.Fatalf("set rating: %v", err)
		}
		return p
	}
	yoga := mk(30, "Yoga", 4.5)
	strength := mk(60, "Strength training", 4.9)
	mk(90, "Strength", 3.0)

	all, err := d.Search(ctx, ProviderFilter{}, 1, 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if all.Total != 3 || all.Items[0].ID != strength.ID || all.Items[1].ID != yoga.ID {
		t.Fatalf("expected highest rated first: %+v", all.Items)
	}

	maxRate := decimal.NewFromInt(70)
	minRating := 4.0
	res, err := d.Search(ctx, ProviderFilter{Specialty: "strength", MaxRate: &maxRate, MinRating: &minRating}, 1, 10)
	if err != nil {
		t.Fatalf("filtered search: %v", err)
	}
	if res.Total != 1 || res.Items[0].ID != strength.ID {
		t.Fatalf("unexpected filtered result: %+v", res.Items)
	}

	minRate := decimal.NewFromInt(100)
	none, err := d.Search(ctx, ProviderFilter{MinRate: &minRate}, 1, 10)
	if err != nil {
		t.Fatalf("empty search: %v", err)
	}
	if none.Total != 0 || none.Items == nil {
		t.Fatalf("expected empty non-nil result, got %+v", none)
	}
}
