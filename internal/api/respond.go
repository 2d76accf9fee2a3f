package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/hackgods/session-scheduling/internal/scheduling"
)

var validate = validator.New()

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

var kindStatus = map[scheduling.Kind]int{
	scheduling.KindInvalidRange:       http.StatusBadRequest,
	scheduling.KindInvalidInput:       http.StatusBadRequest,
	scheduling.KindDuplicate:          http.StatusConflict,
	scheduling.KindConflict:           http.StatusConflict,
	scheduling.KindSlotUnavailable:    http.StatusBadRequest,
	scheduling.KindNotFound:           http.StatusNotFound,
	scheduling.KindForbidden:          http.StatusForbidden,
	scheduling.KindUnauthenticated:    http.StatusUnauthorized,
	scheduling.KindInvalidTransition:  http.StatusBadRequest,
	scheduling.KindStorageUnavailable: http.StatusInternalServerError,
}

// handleError maps a scheduling error onto an HTTP response. Storage
// failures are logged and reported without their details.
func handleError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	kind := scheduling.KindOf(err)
	status, ok := kindStatus[kind]
	if !ok {
		status = http.StatusInternalServerError
	}

	if status == http.StatusInternalServerError {
		logger.Error("request failed",
			zap.String("request_id", GetRequestID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, status, string(kind), "internal error")
		return
	}

	writeError(w, status, string(kind), err.Error())
}

// decode reads a JSON body into dst and runs struct validation. It writes the
// 400 response itself and reports false on failure.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, string(scheduling.KindInvalidInput), err.Error())
		return false
	}
	return true
}

// pageParams reads ?page=&page_size=. Missing or malformed values fall back
// to the service defaults.
func pageParams(r *http.Request) (int, int) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	size, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	return page, size
}

func statusParam(r *http.Request) (*scheduling.BookingStatus, error) {
	raw := r.URL.Query().Get("status")
	if raw == "" {
		return nil, nil
	}
	st, err := scheduling.ParseBookingStatus(raw)
	if err != nil {
		return nil, err
	}
	return &st, nil
}
