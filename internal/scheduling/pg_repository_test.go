package scheduling

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func pgErr(code, constraint string) *pgconn.PgError {
	return &pgconn.PgError{Code: code, ConstraintName: constraint}
}

func TestTranslateConstraintViolations(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want error
	}{
		{"booking overlap", pgErr(pgExclusionViolation, constraintBookingOverlap), ErrSlotConflict},
		{"duplicate window", pgErr(pgUniqueViolation, constraintWindowStart), ErrDuplicateSlot},
		{"duplicate profile", pgErr(pgUniqueViolation, constraintProfileOwner), ErrDuplicateProfile},
		{"duplicate review", pgErr(pgUniqueViolation, constraintReviewBooking), ErrDuplicateReview},
		{"missing provider", pgErr(pgForeignKeyViolation, "bookings_provider_id_fkey"), ErrProviderNotFound},
	}
	for _, c := range cases {
		for _, err := range []error{c.err, fmt.Errorf("insert booking: %w", c.err)} {
			if got := translate(err); !errors.Is(got, c.want) {
				t.Fatalf("%s: translate(%v) = %v, want %v", c.name, err, got, c.want)
			}
		}
	}
}

func TestTranslateLeavesOtherErrorsAlone(t *testing.T) {
	for _, err := range []error{
		pgErr(pgExclusionViolation, "some_other_exclusion"),
		pgErr(pgUniqueViolation, "some_other_key"),
		pgErr("42P01", ""),
		errors.New("connection reset"),
	} {
		if got := translate(err); got != err {
			t.Fatalf("translate(%v) = %v, want it unchanged", err, got)
		}
	}
}

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{pgErr(pgSerializationFailure, ""), true},
		{pgErr(pgDeadlockDetected, ""), true},
		{fmt.Errorf("commit: %w", pgErr(pgSerializationFailure, "")), true},
		{pgErr(pgExclusionViolation, constraintBookingOverlap), false},
		{pgErr(pgUniqueViolation, constraintWindowStart), false},
		{ErrSlotConflict, false},
		{errors.New("boom"), false},
	}
	for _, c := range cases {
		if got := isRetryable(c.err); got != c.want {
			t.Fatalf("isRetryable(%v) = %v, want %v", c.err, got, c.want)
		}
	}
}

func TestClassify(t *testing.T) {
	raw := errors.New("dial tcp: connection refused")
	got := classify(raw)
	if !errors.Is(got, ErrStorageUnavailable) || !errors.Is(got, raw) {
		t.Fatalf("classify(raw) = %v, want storage unavailable wrapping it", got)
	}
	if KindOf(got) != KindStorageUnavailable {
		t.Fatalf("kind = %s, want storage_unavailable", KindOf(got))
	}

	if KindOf(classify(pgErr(pgSerializationFailure, ""))) != KindStorageUnavailable {
		t.Fatalf("exhausted serialization retries should surface as storage_unavailable")
	}

	wrapped := fmt.Errorf("create booking: %w", translate(pgErr(pgExclusionViolation, constraintBookingOverlap)))
	if got := classify(wrapped); got != wrapped || KindOf(got) != KindConflict {
		t.Fatalf("classify(%v) = %v, want it unchanged with kind conflict", wrapped, got)
	}

	for _, err := range []error{context.Canceled, context.DeadlineExceeded} {
		if got := classify(err); got != err {
			t.Fatalf("classify(%v) = %v, want it unchanged", err, got)
		}
	}
}
