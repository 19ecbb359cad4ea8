package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"r2r/internal/auth"
	"r2r/internal/core"
	applog "r2r/internal/log"
	"r2r/internal/services"
)

const maxJSONBody = 1 << 20

var (
	errBadRequest   = errors.New("bad request")
	errUnauthorized = errors.New("unauthorized")
)

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

type errorBody struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// writeError is the one place service errors become status codes.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := errorResponse(err)
	if status >= http.StatusInternalServerError {
		applog.FromContext(r.Context()).WithComponent(applog.ComponentHTTP).ErrorContext(r.Context(), "Request failed",
			applog.FieldMethod, r.Method,
			applog.FieldPath, r.URL.Path,
			applog.FieldStatusCode, status,
			applog.FieldError, err)
	}
	writeJSON(w, status, body)
}

func errorResponse(err error) (int, errorBody) {
	var verr *core.ValidationError
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, errorBody{Error: err.Error()}
	case errors.Is(err, errUnauthorized), errors.Is(err, core.ErrInvalidCredentials):
		return http.StatusUnauthorized, errorBody{Error: "invalid credentials"}
	case errors.Is(err, core.ErrUserExists):
		return http.StatusConflict, errorBody{Error: "an account with this email already exists"}
	case errors.Is(err, core.ErrEmptyPayload):
		return http.StatusBadRequest, errorBody{Error: "nothing to ingest: provide rawText or at least one image"}
	case errors.As(err, &verr):
		return http.StatusUnprocessableEntity, errorBody{Error: verr.Err.Error(), Field: verr.Field}
	case errors.Is(err, core.ErrValidation):
		return http.StatusUnprocessableEntity, errorBody{Error: err.Error()}
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound, errorBody{Error: "not found"}
	case errors.Is(err, services.ErrExportDisabled):
		return http.StatusServiceUnavailable, errorBody{Error: "sheet export is not configured"}
	case errors.Is(err, core.ErrExternalService):
		return http.StatusBadGateway, errorBody{Error: "upstream service unavailable"}
	default:
		return http.StatusInternalServerError, errorBody{Error: "internal error"}
	}
}

// decodeJSON reads a single JSON object into dst, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	return decodeJSONLimit(w, r, dst, maxJSONBody)
}

func decodeJSONLimit(w http.ResponseWriter, r *http.Request, dst any, limit int64) error {
	if err := decodeBody(w, r, dst, limit); errors.Is(err, io.EOF) {
		return badRequest("request body is empty")
	} else if err != nil {
		return err
	}
	return nil
}

// decodeOptionalJSON is decodeJSON for endpoints whose body may be absent;
// an empty body leaves dst untouched, however it was framed.
func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	if err := decodeBody(w, r, dst, maxJSONBody); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// decodeBody returns io.EOF for an empty body.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any, limit int64) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return io.EOF
		}
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return badRequest("request body too large")
		}
		return badRequest("invalid JSON body: %v", err)
	}
	if dec.More() {
		return badRequest("request body must hold a single JSON object")
	}
	return nil
}

// currentUser returns the id put on the context by auth.Middleware.
func currentUser(r *http.Request) (string, error) {
	id, ok := auth.UserID(r.Context())
	if !ok {
		return "", errUnauthorized
	}
	return id, nil
}

// parseDay parses a YYYY-MM-DD calendar day in UTC.
func parseDay(field, v string) (time.Time, error) {
	t, err := time.Parse(core.DayLayout, strings.TrimSpace(v))
	if err != nil {
		return time.Time{}, &core.ValidationError{Field: field, Err: core.ErrInvalidDate}
	}
	return t, nil
}

// endOfDay makes an inclusive end date cover the whole day.
func endOfDay(t time.Time) time.Time {
	return t.Add(24*time.Hour - time.Nanosecond)
}
