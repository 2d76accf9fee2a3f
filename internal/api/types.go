package api

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hackgods/session-scheduling/internal/scheduling"
)

// Requests

type CreateProfileRequest struct {
	HourlyRate      *decimal.Decimal `json:"hourly_rate" validate:"required"`
	Bio             string           `json:"bio" validate:"max=2000"`
	Specialty       string           `json:"specialty" validate:"max=200"`
	ExperienceYears int              `json:"experience_years" validate:"gte=0,lte=80"`
	Certification   string           `json:"certification" validate:"max=200"`
}

type UpdateProfileRequest struct {
	HourlyRate      *decimal.Decimal `json:"hourly_rate"`
	Bio             *string          `json:"bio" validate:"omitempty,max=2000"`
	Specialty       *string          `json:"specialty" validate:"omitempty,max=200"`
	ExperienceYears *int             `json:"experience_years" validate:"omitempty,gte=0,lte=80"`
	Certification   *string          `json:"certification" validate:"omitempty,max=200"`
}

type CreateAvailabilityRequest struct {
	Weekday   string `json:"weekday" validate:"required"`
	StartTime string `json:"start_time" validate:"required"`
	EndTime   string `json:"end_time" validate:"required"`
}

type CreateBookingRequest struct {
	ProviderID  string `json:"provider_id" validate:"required,uuid"`
	SessionDate string `json:"session_date" validate:"required"`
	StartTime   string `json:"start_time" validate:"required"`
	EndTime     string `json:"end_time" validate:"required"`
}

type UpdateBookingStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

type CreateReviewRequest struct {
	BookingID string  `json:"booking_id" validate:"required,uuid"`
	Rating    int     `json:"rating"`
	Comment   *string `json:"comment" validate:"omitempty,max=2000"`
}

type UpdateReviewRequest struct {
	Rating  *int    `json:"rating"`
	Comment *string `json:"comment" validate:"omitempty,max=2000"`
}

// Responses

type ProviderResponse struct {
	ID              uuid.UUID `json:"id"`
	OwnerID         uuid.UUID `json:"owner_id"`
	HourlyRate      string    `json:"hourly_rate"`
	Rating          float64   `json:"rating"`
	ReviewCount     int       `json:"review_count"`
	Bio             string    `json:"bio"`
	Specialty       string    `json:"specialty"`
	ExperienceYears int       `json:"experience_years"`
	Certification   string    `json:"certification"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type AvailabilityResponse struct {
	ID         uuid.UUID          `json:"id"`
	ProviderID uuid.UUID          `json:"provider_id"`
	Weekday    scheduling.Weekday `json:"weekday"`
	StartTime  scheduling.Clock   `json:"start_time"`
	EndTime    scheduling.Clock   `json:"end_time"`
}

type BookingResponse struct {
	ID          uuid.UUID        `json:"id"`
	ClientID    uuid.UUID        `json:"client_id"`
	ProviderID  uuid.UUID        `json:"provider_id"`
	SessionDate scheduling.Date  `json:"session_date"`
	StartTime   scheduling.Clock `json:"start_time"`
	EndTime     scheduling.Clock `json:"end_time"`
	Price       string           `json:"price"`
	Status      string           `json:"status"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

type ReviewResponse struct {
	ID         uuid.UUID `json:"id"`
	BookingID  uuid.UUID `json:"booking_id"`
	ProviderID uuid.UUID `json:"provider_id"`
	ClientID   uuid.UUID `json:"client_id"`
	Rating     int       `json:"rating"`
	Comment    *string   `json:"comment,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type PageResponse[T any] struct {
	Items    []T `json:"items"`
	Total    int `json:"total"`
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
	Pages    int `json:"pages"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// Mapping

func toProviderResponse(p *scheduling.ProviderProfile) ProviderResponse {
	return ProviderResponse{
		ID:              p.ID,
		OwnerID:         p.OwnerID,
		HourlyRate:      p.HourlyRate.StringFixed(2),
		Rating:          p.Rating,
		ReviewCount:     p.ReviewCount,
		Bio:             p.Bio,
		Specialty:       p.Specialty,
		ExperienceYears: p.ExperienceYears,
		Certification:   p.Certification,
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
}

func toAvailabilityResponse(w *scheduling.AvailabilityWindow) AvailabilityResponse {
	return AvailabilityResponse{
		ID:         w.ID,
		ProviderID: w.ProviderID,
		Weekday:    w.Weekday,
		StartTime:  w.StartTime,
		EndTime:    w.EndTime,
	}
}

func toBookingResponse(b *scheduling.Booking) BookingResponse {
	return BookingResponse{
		ID:          b.ID,
		ClientID:    b.ClientID,
		ProviderID:  b.ProviderID,
		SessionDate: b.SessionDate,
		StartTime:   b.StartTime,
		EndTime:     b.EndTime,
		Price:       b.Price.StringFixed(2),
		Status:      string(b.Status),
		CreatedAt:   b.CreatedAt,
		UpdatedAt:   b.UpdatedAt,
	}
}

func toReviewResponse(r *scheduling.Review) ReviewResponse {
	return ReviewResponse{
		ID:         r.ID,
		BookingID:  r.BookingID,
		ProviderID: r.ProviderID,
		ClientID:   r.ClientID,
		Rating:     r.Rating,
		Comment:    r.Comment,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

func toPageResponse[T, R any](p scheduling.Page[T], conv func(*T) R) PageResponse[R] {
	items := make([]R, 0, len(p.Items))
	for i := range p.Items {
		items = append(items, conv(&p.Items[i]))
	}
	return PageResponse[R]{
		Items:    items,
		Total:    p.Total,
		Page:     p.Page,
		PageSize: p.PageSize,
		Pages:    p.Pages,
	}
}
