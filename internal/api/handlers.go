package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/hackgods/session-scheduling/internal/auth"
	"github.com/hackgods/session-scheduling/internal/scheduling"
)

type handlers struct {
	providers    *scheduling.ProviderDirectory
	availability *scheduling.AvailabilityRegistry
	bookings     *scheduling.BookingScheduler
	reviews      *scheduling.ReviewService
	logger       *zap.Logger
}

func (h *handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	handleError(w, r, h.logger, err)
}

// urlID parses a UUID path parameter, writing a 400 if it is malformed.
func urlID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, string(scheduling.KindInvalidInput), name+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func principal(r *http.Request) auth.Principal {
	p, _ := auth.PrincipalFrom(r.Context())
	return p
}

// Providers

func (h *handlers) createProvider(w http.ResponseWriter, r *http.Request) {
	var req CreateProfileRequest
	if !decode(w, r, &req) {
		return
	}

	p, err := h.providers.CreateProfile(r.Context(), principal(r).ID, scheduling.ProfileInput{
		HourlyRate:      *req.HourlyRate,
		Bio:             req.Bio,
		Specialty:       req.Specialty,
		ExperienceYears: req.ExperienceYears,
		Certification:   req.Certification,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toProviderResponse(p))
}

func (h *handlers) updateMyProvider(w http.ResponseWriter, r *http.Request) {
	var req UpdateProfileRequest
	if !decode(w, r, &req) {
		return
	}

	p, err := h.providers.UpdateProfile(r.Context(), principal(r).ID, scheduling.ProfileUpdate{
		HourlyRate:      req.HourlyRate,
		Bio:             req.Bio,
		Specialty:       req.Specialty,
		ExperienceYears: req.ExperienceYears,
		Certification:   req.Certification,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProviderResponse(p))
}

func (h *handlers) getProvider(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}

	p, err := h.providers.GetProfile(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProviderResponse(p))
}

func (h *handlers) searchProviders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := scheduling.ProviderFilter{Specialty: q.Get("specialty")}

	for param, dst := range map[string]**decimal.Decimal{"min_rate": &f.MinRate, "max_rate": &f.MaxRate} {
		if raw := q.Get(param); raw != "" {
			d, err := decimal.NewFromString(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, string(scheduling.KindInvalidInput), param+" must be a number")
				return
			}
			*dst = &d
		}
	}
	if raw := q.Get("min_rating"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, string(scheduling.KindInvalidInput), "min_rating must be a number")
			return
		}
		f.MinRating = &v
	}

	page, size := pageParams(r)
	res, err := h.providers.Search(r.Context(), f, page, size)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPageResponse(res, toProviderResponse))
}

// Availability

func (h *handlers) addAvailability(w http.ResponseWriter, r *http.Request) {
	var req CreateAvailabilityRequest
	if !decode(w, r, &req) {
		return
	}

	day, err := scheduling.ParseWeekday(req.Weekday)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	start, err := scheduling.ParseClock(req.StartTime)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	end, err := scheduling.ParseClock(req.EndTime)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	win, err := h.availability.Add(r.Context(), principal(r).ID, day, start, end)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAvailabilityResponse(win))
}

func (h *handlers) listAvailability(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}

	windows, err := h.availability.List(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	resp := make([]AvailabilityResponse, 0, len(windows))
	for i := range windows {
		resp = append(resp, toAvailabilityResponse(&windows[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) removeAvailability(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}

	if err := h.availability.Remove(r.Context(), id, principal(r).ID); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Bookings

func (h *handlers) createBooking(w http.ResponseWriter, r *http.Request) {
	var req CreateBookingRequest
	if !decode(w, r, &req) {
		return
	}

	providerID, err := uuid.Parse(req.ProviderID)
	if err != nil {
		writeError(w, http.StatusBadRequest, string(scheduling.KindInvalidInput), "provider_id must be a valid UUID")
		return
	}
	date, err := scheduling.ParseDate(req.SessionDate)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	start, err := scheduling.ParseClock(req.StartTime)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	end, err := scheduling.ParseClock(req.EndTime)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	b, err := h.bookings.Create(r.Context(), principal(r).ID, providerID, date, start, end)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBookingResponse(b))
}

func (h *handlers) getBooking(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}

	b, err := h.bookings.Get(r.Context(), id, principal(r).ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingResponse(b))
}

func (h *handlers) listClientBookings(w http.ResponseWriter, r *http.Request) {
	status, err := statusParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	page, size := pageParams(r)
	res, err := h.bookings.ListForClient(r.Context(), principal(r).ID, status, page, size)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPageResponse(res, toBookingResponse))
}

func (h *handlers) listProviderBookings(w http.ResponseWriter, r *http.Request) {
	status, err := statusParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	page, size := pageParams(r)
	res, err := h.bookings.ListForProvider(r.Context(), principal(r).ID, status, page, size)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPageResponse(res, toBookingResponse))
}

func (h *handlers) setBookingStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}
	var req UpdateBookingStatusRequest
	if !decode(w, r, &req) {
		return
	}
	to, err := scheduling.ParseBookingStatus(req.Status)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	b, err := h.bookings.SetStatus(r.Context(), id, principal(r).ID, to)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingResponse(b))
}

func (h *handlers) cancelBooking(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}

	b, err := h.bookings.Cancel(r.Context(), id, principal(r).ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingResponse(b))
}

// Reviews

func (h *handlers) createReview(w http.ResponseWriter, r *http.Request) {
	var req CreateReviewRequest
	if !decode(w, r, &req) {
		return
	}
	bookingID, err := uuid.Parse(req.BookingID)
	if err != nil {
		writeError(w, http.StatusBadRequest, string(scheduling.KindInvalidInput), "booking_id must be a valid UUID")
		return
	}

	rev, err := h.reviews.Create(r.Context(), principal(r).ID, bookingID, req.Rating, req.Comment)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toReviewResponse(rev))
}

func (h *handlers) updateReview(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}
	var req UpdateReviewRequest
	if !decode(w, r, &req) {
		return
	}

	rev, err := h.reviews.Update(r.Context(), principal(r).ID, id, scheduling.ReviewUpdate{
		Rating:  req.Rating,
		Comment: req.Comment,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toReviewResponse(rev))
}

func (h *handlers) deleteReview(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}

	if err := h.reviews.Delete(r.Context(), principal(r).ID, id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) listProviderReviews(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(w, r, "id")
	if !ok {
		return
	}

	page, size := pageParams(r)
	res, err := h.reviews.ListForProvider(r.Context(), id, page, size)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPageResponse(res, toReviewResponse))
}
