package scheduling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Postgres error codes the repository reacts to.
const (
	pgUniqueViolation       = "23505"
	pgExclusionViolation    = "23P01"
	pgForeignKeyViolation   = "23503"
	pgSerializationFailure  = "40001"
	pgDeadlockDetected      = "40P01"
	defaultSerializeRetries = 3
)

// Named constraints from schema.sql.
const (
	constraintProfileOwner   = "provider_profiles_owner_key"
	constraintWindowStart    = "availability_windows_slot_key"
	constraintReviewBooking  = "reviews_booking_key"
	constraintBookingOverlap = "bookings_no_overlap"
)

type PgRepository struct {
	pool       *pgxpool.Pool
	maxRetries int
}

// NewPgRepository returns a repository whose transactions run SERIALIZABLE
// and are retried up to maxRetries times on serialization failures.
func NewPgRepository(pool *pgxpool.Pool, maxRetries int) *PgRepository {
	if maxRetries < 0 {
		maxRetries = defaultSerializeRetries
	}
	return &PgRepository{pool: pool, maxRetries: maxRetries}
}

func (r *PgRepository) InTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	for attempt := 0; ; attempt++ {
		err := r.runTx(ctx, fn)
		if err == nil {
			return nil
		}
		if isRetryable(err) && attempt < r.maxRetries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt+1) * 10 * time.Millisecond):
			}
			continue
		}
		return classify(err)
	}
}

func (r *PgRepository) View(ctx context.Context, fn func(ctx context.Context, s Store) error) error {
	if err := fn(ctx, &pgStore{q: r.pool}); err != nil {
		return classify(err)
	}
	return nil
}

func (r *PgRepository) runTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(context.Background()) //nolint:errcheck

	if err := fn(ctx, &pgStore{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return translate(err)
	}
	return nil
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == pgSerializationFailure || pgErr.Code == pgDeadlockDetected
}

// classify leaves scheduling errors and cancellations alone and marks
// everything else as a storage failure.
func classify(err error) error {
	var se *Error
	if errors.As(err, &se) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
}

// translate maps constraint violations onto the package's sentinel errors.
func translate(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgExclusionViolation:
		if pgErr.ConstraintName == constraintBookingOverlap {
			return ErrSlotConflict
		}
	case pgUniqueViolation:
		switch pgErr.ConstraintName {
		case constraintProfileOwner:
			return ErrDuplicateProfile
		case constraintWindowStart:
			return ErrDuplicateSlot
		case constraintReviewBooking:
			return ErrDuplicateReview
		}
	case pgForeignKeyViolation:
		if strings.Contains(pgErr.ConstraintName, "provider") {
			return ErrProviderNotFound
		}
	}
	return err
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type pgStore struct {
	q querier
}

// Helpers

const providerColumns = `id, owner_id, hourly_rate::text, rating, review_count, bio, specialty,
	experience_years, certification, created_at, updated_at`

const windowColumns = `id, provider_id, weekday, start_minute, end_minute, created_at`

const bookingColumns = `id, client_id, provider_id, session_date, start_minute, end_minute,
	price::text, status, created_at, updated_at`

const reviewColumns = `id, booking_id, provider_id, client_id, rating, comment, created_at, updated_at`

func scanProvider(row pgx.Row) (*ProviderProfile, error) {
	var p ProviderProfile
	var rate string

	err := row.Scan(
		&p.ID,
		&p.OwnerID,
		&rate,
		&p.Rating,
		&p.ReviewCount,
		&p.Bio,
		&p.Specialty,
		&p.ExperienceYears,
		&p.Certification,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProviderNotFound
		}
		return nil, err
	}

	if p.HourlyRate, err = decimal.NewFromString(rate); err != nil {
		return nil, fmt.Errorf("parse hourly rate %q: %w", rate, err)
	}
	return &p, nil
}

func scanWindow(row pgx.Row) (*AvailabilityWindow, error) {
	var w AvailabilityWindow
	var day, start, end int

	err := row.Scan(
		&w.ID,
		&w.ProviderID,
		&day,
		&start,
		&end,
		&w.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWindowNotFound
		}
		return nil, err
	}

	w.Weekday = Weekday(day)
	w.StartTime, w.EndTime = Clock(start), Clock(end)
	return &w, nil
}

func scanBooking(row pgx.Row) (*Booking, error) {
	var b Booking
	var date time.Time
	var start, end int
	var price, status string

	err := row.Scan(
		&b.ID,
		&b.ClientID,
		&b.ProviderID,
		&date,
		&start,
		&end,
		&price,
		&status,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}

	b.SessionDate = DateOf(date)
	b.StartTime, b.EndTime = Clock(start), Clock(end)
	b.Status = BookingStatus(status)
	if b.Price, err = decimal.NewFromString(price); err != nil {
		return nil, fmt.Errorf("parse price %q: %w", price, err)
	}
	return &b, nil
}

func scanReview(row pgx.Row) (*Review, error) {
	var r Review

	err := row.Scan(
		&r.ID,
		&r.BookingID,
		&r.ProviderID,
		&r.ClientID,
		&r.Rating,
		&r.Comment,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrReviewNotFound
		}
		return nil, err
	}
	return &r, nil
}

func collect[T any](rows pgx.Rows, scan func(pgx.Row) (*T, error)) ([]T, error) {
	defer rows.Close()

	var result []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Providers

func (s *pgStore) GetProvider(ctx context.Context, id uuid.UUID) (*ProviderProfile, error) {
	row := s.q.QueryRow(ctx, `
		SELECT `+providerColumns+`
		FROM provider_profiles
		WHERE id = $1
	`, id)
	return scanProvider(row)
}

func (s *pgStore) GetProviderByOwner(ctx context.Context, ownerID uuid.UUID) (*ProviderProfile, error) {
	row := s.q.QueryRow(ctx, `
		SELECT `+providerColumns+`
		FROM provider_profiles
		WHERE owner_id = $1
	`, ownerID)
	return scanProvider(row)
}

func (s *pgStore) CreateProvider(ctx context.Context, p *ProviderProfile) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	row := s.q.QueryRow(ctx, `
		INSERT INTO provider_profiles
			(id, owner_id, hourly_rate, bio, specialty, experience_years, certification, created_at, updated_at)
		VALUES ($1, $2, $3::numeric, $4, $5, $6, $7, now(), now())
		RETURNING `+providerColumns,
		p.ID, p.OwnerID, p.HourlyRate.String(), p.Bio, p.Specialty, p.ExperienceYears, p.Certification)

	created, err := scanProvider(row)
	if err != nil {
		return translate(err)
	}
	*p = *created
	return nil
}

func (s *pgStore) UpdateProvider(ctx context.Context, p *ProviderProfile) error {
	row := s.q.QueryRow(ctx, `
		UPDATE provider_profiles
		SET hourly_rate = $2::numeric,
		    bio = $3,
		    specialty = $4,
		    experience_years = $5,
		    certification = $6,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+providerColumns,
		p.ID, p.HourlyRate.String(), p.Bio, p.Specialty, p.ExperienceYears, p.Certification)

	updated, err := scanProvider(row)
	if err != nil {
		return err
	}
	*p = *updated
	return nil
}

func (s *pgStore) UpdateProviderRating(ctx context.Context, providerID uuid.UUID, rating *float64, count int) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE provider_profiles
		SET rating = COALESCE($2, rating),
		    review_count = $3,
		    updated_at = now()
		WHERE id = $1
	`, providerID, rating, count)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrProviderNotFound
	}
	return nil
}

func (s *pgStore) SearchProviders(ctx context.Context, f ProviderFilter) ([]ProviderProfile, int, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.Specialty != "" {
		add("specialty ILIKE '%%' || $%d || '%%'", f.Specialty)
	}
	if f.MinRate != nil {
		add("hourly_rate >= $%d::numeric", f.MinRate.String())
	}
	if f.MaxRate != nil {
		add("hourly_rate <= $%d::numeric", f.MaxRate.String())
	}
	if f.MinRating != nil {
		add("rating >= $%d", *f.MinRating)
	}

	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := s.q.QueryRow(ctx, `SELECT count(*) FROM provider_profiles `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, f.Limit, f.Offset)
	rows, err := s.q.Query(ctx, fmt.Sprintf(`
		SELECT `+providerColumns+`
		FROM provider_profiles
		%s
		ORDER BY rating DESC, created_at ASC
		LIMIT $%d OFFSET $%d
	`, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	items, err := collect(rows, scanProvider)
	return items, total, err
}

func (s *pgStore) ListProviderIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := s.q.Query(ctx, `SELECT id FROM provider_profiles ORDER BY id`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
}

// Availability windows

func (s *pgStore) InsertWindow(ctx context.Context, w *AvailabilityWindow) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	row := s.q.QueryRow(ctx, `
		INSERT INTO availability_windows (id, provider_id, weekday, start_minute, end_minute, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
		RETURNING `+windowColumns,
		w.ID, w.ProviderID, int(w.Weekday), int(w.StartTime), int(w.EndTime))

	created, err := scanWindow(row)
	if err != nil {
		return translate(err)
	}
	*w = *created
	return nil
}

func (s *pgStore) GetWindow(ctx context.Context, id uuid.UUID) (*AvailabilityWindow, error) {
	row := s.q.QueryRow(ctx, `
		SELECT `+windowColumns+`
		FROM availability_windows
		WHERE id = $1
	`, id)
	return scanWindow(row)
}

func (s *pgStore) ListWindows(ctx context.Context, providerID uuid.UUID) ([]AvailabilityWindow, error) {
	rows, err := s.q.Query(ctx, `
		SELECT `+windowColumns+`
		FROM availability_windows
		WHERE provider_id = $1
		ORDER BY weekday, start_minute
	`, providerID)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanWindow)
}

func (s *pgStore) ListWindowsByWeekday(ctx context.Context, providerID uuid.UUID, day Weekday) ([]AvailabilityWindow, error) {
	rows, err := s.q.Query(ctx, `
		SELECT `+windowColumns+`
		FROM availability_windows
		WHERE provider_id = $1 AND weekday = $2
		ORDER BY start_minute
	`, providerID, int(day))
	if err != nil {
		return nil, err
	}
	return collect(rows, scanWindow)
}

func (s *pgStore) DeleteWindow(ctx context.Context, id uuid.UUID) error {
	tag, err := s.q.Exec(ctx, `DELETE FROM availability_windows WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrWindowNotFound
	}
	return nil
}

// Bookings

func (s *pgStore) InsertBooking(ctx context.Context, b *Booking) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	row := s.q.QueryRow(ctx, `
		INSERT INTO bookings
			(id, client_id, provider_id, session_date, start_minute, end_minute, price, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8, now(), now())
		RETURNING `+bookingColumns,
		b.ID, b.ClientID, b.ProviderID, b.SessionDate.Time(), int(b.StartTime), int(b.EndTime),
		b.Price.StringFixed(2), string(b.Status))

	created, err := scanBooking(row)
	if err != nil {
		return translate(err)
	}
	*b = *created
	return nil
}

func (s *pgStore) GetBooking(ctx context.Context, id uuid.UUID) (*Booking, error) {
	row := s.q.QueryRow(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE id = $1
	`, id)
	return scanBooking(row)
}

func (s *pgStore) ListActiveBookings(ctx context.Context, providerID uuid.UUID, date Date) ([]Booking, error) {
	rows, err := s.q.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE provider_id = $1
		  AND session_date = $2
		  AND status <> 'CANCELLED'
		ORDER BY start_minute
	`, providerID, date.Time())
	if err != nil {
		return nil, err
	}
	return collect(rows, scanBooking)
}

func (s *pgStore) UpdateBookingStatus(ctx context.Context, id uuid.UUID, from, to BookingStatus) (*Booking, error) {
	row := s.q.QueryRow(ctx, `
		UPDATE bookings
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+bookingColumns,
		id, string(to), string(from))

	return scanBooking(row)
}

func (s *pgStore) ListBookings(ctx context.Context, f BookingFilter) ([]Booking, int, error) {
	var (
		conds []string
		args  []any
	)
	if f.ClientID != nil {
		args = append(args, *f.ClientID)
		conds = append(conds, fmt.Sprintf("client_id = $%d", len(args)))
	}
	if f.ProviderID != nil {
		args = append(args, *f.ProviderID)
		conds = append(conds, fmt.Sprintf("provider_id = $%d", len(args)))
	}
	if f.Status != nil {
		args = append(args, string(*f.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}

	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := s.q.QueryRow(ctx, `SELECT count(*) FROM bookings `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, f.Limit, f.Offset)
	rows, err := s.q.Query(ctx, fmt.Sprintf(`
		SELECT `+bookingColumns+`
		FROM bookings
		%s
		ORDER BY session_date DESC, created_seq ASC
		LIMIT $%d OFFSET $%d
	`, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	items, err := collect(rows, scanBooking)
	return items, total, err
}

// Reviews

func (s *pgStore) InsertReview(ctx context.Context, r *Review) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	row := s.q.QueryRow(ctx, `
		INSERT INTO reviews (id, booking_id, provider_id, client_id, rating, comment, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		RETURNING `+reviewColumns,
		r.ID, r.BookingID, r.ProviderID, r.ClientID, r.Rating, r.Comment)

	created, err := scanReview(row)
	if err != nil {
		return translate(err)
	}
	*r = *created
	return nil
}

func (s *pgStore) GetReview(ctx context.Context, id uuid.UUID) (*Review, error) {
	row := s.q.QueryRow(ctx, `
		SELECT `+reviewColumns+`
		FROM reviews
		WHERE id = $1
	`, id)
	return scanReview(row)
}

func (s *pgStore) GetReviewByBooking(ctx context.Context, bookingID uuid.UUID) (*Review, error) {
	row := s.q.QueryRow(ctx, `
		SELECT `+reviewColumns+`
		FROM reviews
		WHERE booking_id = $1
	`, bookingID)
	return scanReview(row)
}

func (s *pgStore) UpdateReview(ctx context.Context, r *Review) error {
	row := s.q.QueryRow(ctx, `
		UPDATE reviews
		SET rating = $2,
		    comment = $3,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+reviewColumns,
		r.ID, r.Rating, r.Comment)

	updated, err := scanReview(row)
	if err != nil {
		return err
	}
	*r = *updated
	return nil
}

func (s *pgStore) DeleteReview(ctx context.Context, id uuid.UUID) error {
	tag, err := s.q.Exec(ctx, `DELETE FROM reviews WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrReviewNotFound
	}
	return nil
}

func (s *pgStore) ListReviews(ctx context.Context, providerID uuid.UUID, limit, offset int) ([]Review, int, error) {
	var total int
	if err := s.q.QueryRow(ctx, `SELECT count(*) FROM reviews WHERE provider_id = $1`, providerID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.q.Query(ctx, `
		SELECT `+reviewColumns+`
		FROM reviews
		WHERE provider_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, providerID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	items, err := collect(rows, scanReview)
	return items, total, err
}

func (s *pgStore) ReviewStats(ctx context.Context, providerID uuid.UUID) (float64, int, error) {
	var avg float64
	var count int
	err := s.q.QueryRow(ctx, `
		SELECT COALESCE(avg(rating), 0)::float8, count(*)
		FROM reviews
		WHERE provider_id = $1
	`, providerID).Scan(&avg, &count)
	if err != nil {
		return 0, 0, err
	}
	return avg, count, nil
}

// Event logging

func (s *pgStore) InsertEvent(ctx context.Context, ev EventLog) error {
	traceCtx := []byte("{}")
	if len(ev.TraceContext) > 0 {
		b, err := json.Marshal(ev.TraceContext)
		if err != nil {
			return fmt.Errorf("marshal trace context: %w", err)
		}
		traceCtx = b
	}
	_, err := s.q.Exec(ctx, `
		INSERT INTO event_logs (event_type, aggregate_id, payload, trace_context, created_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, now()))
	`, ev.EventType, ev.AggregateID, ev.Payload, traceCtx, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}
	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
