package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/session-scheduling/internal/auth"
	redisclient "github.com/hackgods/session-scheduling/internal/redis"
	"github.com/hackgods/session-scheduling/internal/scheduling"
)

type testServer struct {
	handler  http.Handler
	gateway  *auth.Gateway
	provider string
	client   string
}

func newTestServer(t *testing.T, checks ...HealthCheck) *testServer {
	t.Helper()

	repo := scheduling.NewMemoryRepository()
	ratings := scheduling.NewRatingAggregator(repo, nil)
	gw := auth.NewGateway("test-secret", time.Hour)

	s := &testServer{
		gateway: gw,
		handler: NewRouter(RouterConfig{
			Providers:    scheduling.NewProviderDirectory(repo, nil),
			Availability: scheduling.NewAvailabilityRegistry(repo, nil),
			Bookings:     scheduling.NewBookingScheduler(repo, redisclient.NewLocalLocker(), nil),
			Reviews:      scheduling.NewReviewService(repo, ratings, nil),
			Auth:         gw,
			HealthChecks: checks,
			Env:          "test",
		}),
	}
	s.provider = s.token(t, auth.RoleProvider)
	s.client = s.token(t, auth.RoleClient)
	return s
}

func (s *testServer) token(t *testing.T, role auth.Role) string {
	t.Helper()
	tok, err := s.gateway.IssueToken(auth.Principal{ID: uuid.New(), Role: role})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return tok
}

func (s *testServer) do(t *testing.T, method, path, token string, body any, out any) int {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	if out != nil && rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			t.Fatalf("%s %s: decode response %q: %v", method, path, rec.Body.String(), err)
		}
	}
	return rec.Code
}

func (s *testServer) setupProvider(t *testing.T, rate string) ProviderResponse {
	t.Helper()

	var p ProviderResponse
	code := s.do(t, http.MethodPost, "/providers", s.provider, map[string]any{
		"hourly_rate": rate,
		"specialty":   "mobility",
	}, &p)
	if code != http.StatusCreated {
		t.Fatalf("create provider: status %d", code)
	}

	code = s.do(t, http.MethodPost, "/availability", s.provider, CreateAvailabilityRequest{
		Weekday: "MON", StartTime: "09:00", EndTime: "17:00",
	}, nil)
	if code != http.StatusCreated {
		t.Fatalf("add availability: status %d", code)
	}
	return p
}

func TestBookingLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t)
	p := s.setupProvider(t, "50")

	var booking BookingResponse
	code := s.do(t, http.MethodPost, "/bookings", s.client, CreateBookingRequest{
		ProviderID: p.ID.String(), SessionDate: "2026-02-09", StartTime: "10:00", EndTime: "11:00",
	}, &booking)
	if code != http.StatusCreated {
		t.Fatalf("create booking: status %d", code)
	}
	if booking.Status != "PENDING" || booking.Price != "50.00" || booking.StartTime.String() != "10:00" {
		t.Fatalf("unexpected booking: %+v", booking)
	}

	var errResp ErrorResponse
	code = s.do(t, http.MethodPost, "/bookings", s.token(t, auth.RoleClient), CreateBookingRequest{
		ProviderID: p.ID.String(), SessionDate: "2026-02-09", StartTime: "10:30", EndTime: "11:30",
	}, &errResp)
	if code != http.StatusConflict || errResp.Error != string(scheduling.KindConflict) {
		t.Fatalf("overlap: status %d body %+v", code, errResp)
	}

	code = s.do(t, http.MethodPost, "/bookings", s.client, CreateBookingRequest{
		ProviderID: p.ID.String(), SessionDate: "2026-02-10", StartTime: "10:00", EndTime: "11:00",
	}, &errResp)
	if code != http.StatusBadRequest || errResp.Error != string(scheduling.KindSlotUnavailable) {
		t.Fatalf("tuesday: status %d body %+v", code, errResp)
	}

	var confirmed BookingResponse
	code = s.do(t, http.MethodPut, "/bookings/"+booking.ID.String()+"/status", s.provider,
		UpdateBookingStatusRequest{Status: "confirmed"}, &confirmed)
	if code != http.StatusOK || confirmed.Status != "CONFIRMED" {
		t.Fatalf("confirm: status %d booking %+v", code, confirmed)
	}

	code = s.do(t, http.MethodPost, "/reviews", s.client, map[string]any{
		"booking_id": booking.ID.String(),
		"rating":     5,
	}, nil)
	if code != http.StatusCreated {
		t.Fatalf("create review: status %d", code)
	}

	var profile ProviderResponse
	if code := s.do(t, http.MethodGet, "/providers/"+p.ID.String(), "", nil, &profile); code != http.StatusOK {
		t.Fatalf("get provider: status %d", code)
	}
	if profile.ReviewCount != 1 || profile.Rating != 5 {
		t.Fatalf("aggregate not updated: %+v", profile)
	}

	var page PageResponse[BookingResponse]
	if code := s.do(t, http.MethodGet, "/bookings/client?status=CONFIRMED", s.client, nil, &page); code != http.StatusOK {
		t.Fatalf("list client bookings: status %d", code)
	}
	if page.Total != 1 || page.Items[0].ID != booking.ID {
		t.Fatalf("unexpected page: %+v", page)
	}

	var cancelled BookingResponse
	code = s.do(t, http.MethodPut, "/bookings/"+booking.ID.String()+"/cancel", s.client, nil, &cancelled)
	if code != http.StatusOK || cancelled.Status != "CANCELLED" {
		t.Fatalf("cancel: status %d booking %+v", code, cancelled)
	}
	code = s.do(t, http.MethodPut, "/bookings/"+booking.ID.String()+"/cancel", s.client, nil, &errResp)
	if code != http.StatusBadRequest || errResp.Error != string(scheduling.KindInvalidTransition) {
		t.Fatalf("second cancel: status %d body %+v", code, errResp)
	}
}

func TestAuthAndRoleChecks(t *testing.T) {
	s := newTestServer(t)
	p := s.setupProvider(t, "40")

	req := CreateBookingRequest{ProviderID: p.ID.String(), SessionDate: "2026-02-09", StartTime: "10:00", EndTime: "11:00"}
	if code := s.do(t, http.MethodPost, "/bookings", "", req, nil); code != http.StatusUnauthorized {
		t.Fatalf("no token: status %d, want 401", code)
	}
	if code := s.do(t, http.MethodPost, "/bookings", "garbage", req, nil); code != http.StatusUnauthorized {
		t.Fatalf("bad token: status %d, want 401", code)
	}
	if code := s.do(t, http.MethodPost, "/bookings", s.provider, req, nil); code != http.StatusForbidden {
		t.Fatalf("provider booking: status %d, want 403", code)
	}
	if code := s.do(t, http.MethodPost, "/availability", s.client, CreateAvailabilityRequest{
		Weekday: "TUE", StartTime: "09:00", EndTime: "10:00",
	}, nil); code != http.StatusForbidden {
		t.Fatalf("client availability: status %d, want 403", code)
	}

	var b BookingResponse
	if code := s.do(t, http.MethodPost, "/bookings", s.client, req, &b); code != http.StatusCreated {
		t.Fatalf("create booking: status %d", code)
	}
	if code := s.do(t, http.MethodGet, "/bookings/"+b.ID.String(), s.token(t, auth.RoleClient), nil, nil); code != http.StatusForbidden {
		t.Fatalf("stranger get: status %d, want 403", code)
	}
	if code := s.do(t, http.MethodGet, "/bookings/"+b.ID.String(), s.provider, nil, nil); code != http.StatusOK {
		t.Fatalf("provider get: status %d, want 200", code)
	}
}

func TestRequestValidation(t *testing.T) {
	s := newTestServer(t)
	p := s.setupProvider(t, "40")

	cases := []struct {
		name string
		body any
	}{
		{"bad provider id", CreateBookingRequest{ProviderID: "nope", SessionDate: "2026-02-09", StartTime: "10:00", EndTime: "11:00"}},
		{"bad date", CreateBookingRequest{ProviderID: p.ID.String(), SessionDate: "09/02/2026", StartTime: "10:00", EndTime: "11:00"}},
		{"bad clock", CreateBookingRequest{ProviderID: p.ID.String(), SessionDate: "2026-02-09", StartTime: "10am", EndTime: "11:00"}},
		{"clock with seconds", CreateBookingRequest{ProviderID: p.ID.String(), SessionDate: "2026-02-09", StartTime: "10:00:59", EndTime: "11:00"}},
		{"reversed", CreateBookingRequest{ProviderID: p.ID.String(), SessionDate: "2026-02-09", StartTime: "11:00", EndTime: "10:00"}},
		{"missing fields", map[string]any{}},
	}
	for _, c := range cases {
		if code := s.do(t, http.MethodPost, "/bookings", s.client, c.body, nil); code != http.StatusBadRequest {
			t.Fatalf("%s: status %d, want 400", c.name, code)
		}
	}

	if code := s.do(t, http.MethodPost, "/providers", s.token(t, auth.RoleProvider), map[string]any{
		"hourly_rate": "1000000",
	}, nil); code != http.StatusBadRequest {
		t.Fatalf("oversized rate: status %d, want 400", code)
	}

	if code := s.do(t, http.MethodGet, "/providers/not-a-uuid", "", nil, nil); code != http.StatusBadRequest {
		t.Fatalf("bad path id: status %d, want 400", code)
	}
	if code := s.do(t, http.MethodGet, "/providers/"+uuid.NewString(), "", nil, nil); code != http.StatusNotFound {
		t.Fatalf("unknown provider: status %d, want 404", code)
	}
	if code := s.do(t, http.MethodPost, "/availability", s.provider, CreateAvailabilityRequest{
		Weekday: "MON", StartTime: "09:00", EndTime: "12:00",
	}, nil); code != http.StatusConflict {
		t.Fatalf("duplicate window: status %d, want 409", code)
	}
}

func TestSearchAndAvailabilityArePublic(t *testing.T) {
	s := newTestServer(t)
	p := s.setupProvider(t, "40")

	var page PageResponse[ProviderResponse]
	if code := s.do(t, http.MethodGet, "/providers?specialty=mob&max_rate=50", "", nil, &page); code != http.StatusOK {
		t.Fatalf("search: status %d", code)
	}
	if page.Total != 1 || page.Items[0].ID != p.ID || page.Items[0].HourlyRate != "40.00" {
		t.Fatalf("unexpected search result: %+v", page)
	}

	if code := s.do(t, http.MethodGet, "/providers?min_rate=abc", "", nil, nil); code != http.StatusBadRequest {
		t.Fatalf("bad min_rate: status %d, want 400", code)
	}

	var windows []AvailabilityResponse
	if code := s.do(t, http.MethodGet, "/providers/"+p.ID.String()+"/availability", "", nil, &windows); code != http.StatusOK {
		t.Fatalf("availability: status %d", code)
	}
	if len(windows) != 1 || windows[0].Weekday != scheduling.Monday || windows[0].EndTime.String() != "17:00" {
		t.Fatalf("unexpected windows: %+v", windows)
	}
}

func TestReadiness(t *testing.T) {
	down := func(context.Context) error { return errors.New("down") }
	up := func(context.Context) error { return nil }

	cases := []struct {
		checks []HealthCheck
		code   int
		status string
	}{
		{[]HealthCheck{{Name: "postgres", Critical: true, Check: up}, {Name: "redis", Check: up}}, http.StatusOK, "ok"},
		{[]HealthCheck{{Name: "postgres", Critical: true, Check: up}, {Name: "redis", Check: down}}, http.StatusOK, "degraded"},
		{[]HealthCheck{{Name: "postgres", Critical: true, Check: down}, {Name: "redis", Check: up}}, http.StatusServiceUnavailable, "error"},
	}
	for _, c := range cases {
		s := newTestServer(t, c.checks...)
		var resp ReadinessResponse
		if code := s.do(t, http.MethodGet, "/health/ready", "", nil, &resp); code != c.code || resp.Status != c.status {
			t.Fatalf("readiness = %d %q, want %d %q", code, resp.Status, c.code, c.status)
		}
	}
}

func TestRateLimit(t *testing.T) {
	h := RateLimitMiddleware(1, 2, zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/providers", nil)
		req.RemoteAddr = "10.0.0.1:5555"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	if codes[0] != http.StatusNoContent || codes[1] != http.StatusNoContent || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("codes = %v, want [204 204 429]", codes)
	}
}
