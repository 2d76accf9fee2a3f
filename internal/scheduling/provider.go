package scheduling

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const EventProviderCreated = "PROVIDER_CREATED"

type ProfileInput struct {
	HourlyRate      decimal.Decimal
	Bio             string
	Specialty       string
	ExperienceYears int
	Certification   string
}

// ProfileUpdate is a partial update; nil fields are left alone.
type ProfileUpdate struct {
	HourlyRate      *decimal.Decimal
	Bio             *string
	Specialty       *string
	ExperienceYears *int
	Certification   *string
}

// ProviderDirectory manages provider profiles and search.
type ProviderDirectory struct {
	repo   Repository
	logger *zap.Logger
}

func NewProviderDirectory(repo Repository, logger *zap.Logger) *ProviderDirectory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProviderDirectory{repo: repo, logger: logger}
}

// CreateProfile registers the single profile a provider principal may own.
func (d *ProviderDirectory) CreateProfile(ctx context.Context, ownerID uuid.UUID, in ProfileInput) (*ProviderProfile, error) {
	if err := validateProfile(in.HourlyRate, in.ExperienceYears); err != nil {
		return nil, err
	}

	p := &ProviderProfile{
		OwnerID:         ownerID,
		HourlyRate:      in.HourlyRate.Round(2),
		Bio:             strings.TrimSpace(in.Bio),
		Specialty:       strings.TrimSpace(in.Specialty),
		ExperienceYears: in.ExperienceYears,
		Certification:   strings.TrimSpace(in.Certification),
	}
	err := d.repo.InTx(ctx, func(ctx context.Context, tx Store) error {
		if err := tx.CreateProvider(ctx, p); err != nil {
			return err
		}
		return recordEvent(ctx, tx, p.ID, EventProviderCreated, map[string]any{
			"owner_id":    ownerID.String(),
			"hourly_rate": p.HourlyRate.StringFixed(2),
		})
	})
	if err != nil {
		return nil, fmt.Errorf("create provider profile: %w", err)
	}

	d.logger.Info("provider profile created", zap.Stringer("provider_id", p.ID), zap.Stringer("owner_id", ownerID))
	return p, nil
}

func (d *ProviderDirectory) GetProfile(ctx context.Context, providerID uuid.UUID) (*ProviderProfile, error) {
	var p *ProviderProfile
	err := d.repo.View(ctx, func(ctx context.Context, s Store) error {
		var err error
		p, err = s.GetProvider(ctx, providerID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get provider profile: %w", err)
	}
	return p, nil
}

func (d *ProviderDirectory) UpdateProfile(ctx context.Context, ownerID uuid.UUID, upd ProfileUpdate) (*ProviderProfile, error) {
	var updated *ProviderProfile
	err := d.repo.InTx(ctx, func(ctx context.Context, tx Store) error {
		p, err := tx.GetProviderByOwner(ctx, ownerID)
		if err != nil {
			return err
		}
		if upd.HourlyRate != nil {
			p.HourlyRate = upd.HourlyRate.Round(2)
		}
		if upd.Bio != nil {
			p.Bio = strings.TrimSpace(*upd.Bio)
		}
		if upd.Specialty != nil {
			p.Specialty = strings.TrimSpace(*upd.Specialty)
		}
		if upd.ExperienceYears != nil {
			p.ExperienceYears = *upd.ExperienceYears
		}
		if upd.Certification != nil {
			p.Certification = strings.TrimSpace(*upd.Certification)
		}
		if err := validateProfile(p.HourlyRate, p.ExperienceYears); err != nil {
			return err
		}
		if err := tx.UpdateProvider(ctx, p); err != nil {
			return err
		}
		updated = p
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("update provider profile: %w", err)
	}
	return updated, nil
}

// Search lists providers matching f, highest rated first.
func (d *ProviderDirectory) Search(ctx context.Context, f ProviderFilter, page, pageSize int) (Page[ProviderProfile], error) {
	page, pageSize = normalizePage(page, pageSize)
	f.Limit = pageSize
	f.Offset = (page - 1) * pageSize

	var (
		items []ProviderProfile
		total int
	)
	err := d.repo.View(ctx, func(ctx context.Context, s Store) error {
		var err error
		items, total, err = s.SearchProviders(ctx, f)
		return err
	})
	if err != nil {
		return Page[ProviderProfile]{}, fmt.Errorf("search providers: %w", err)
	}
	return newPage(items, total, page, pageSize), nil
}

// MaxHourlyRate keeps a full-day session price within NUMERIC(10,2).
var MaxHourlyRate = decimal.NewFromInt(100000)

func validateProfile(rate decimal.Decimal, experience int) error {
	if rate.IsNegative() {
		return fmt.Errorf("%w: hourly rate must not be negative", ErrInvalidInput)
	}
	if rate.GreaterThan(MaxHourlyRate) {
		return fmt.Errorf("%w: hourly rate must not exceed %s", ErrInvalidInput, MaxHourlyRate.StringFixed(2))
	}
	if experience < 0 {
		return fmt.Errorf("%w: experience must not be negative", ErrInvalidInput)
	}
	return nil
}
