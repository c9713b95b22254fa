// Package httpx holds the request plumbing shared by the HTTP handlers:
// identity headers, request decoding and the error-to-status mapping.
package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"

	"github.com/emmy19999/bingham-bites/internal/service/apperrors"
	"github.com/emmy19999/bingham-bites/internal/service/models/user"
	"github.com/emmy19999/bingham-bites/internal/service/session"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/schema"
)

// Identity headers set by the upstream auth gateway.
const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"
	HeaderUserName = "X-User-Name"
)

var (
	validate      = validator.New(validator.WithRequiredStructEnabled())
	schemaDecoder = newSchemaDecoder()
)

func newSchemaDecoder() *schema.Decoder {
	d := schema.NewDecoder()
	d.IgnoreUnknownKeys(true)
	d.RegisterConverter(uuid.UUID{}, func(s string) reflect.Value {
		id, err := uuid.Parse(s)
		if err != nil {
			return reflect.Value{}
		}

		return reflect.ValueOf(id)
	})

	return d
}

// UserFromRequest reads the caller identity from the gateway headers.
func UserFromRequest(r *http.Request) (user.User, error) {
	raw := r.Header.Get(HeaderUserID)
	if raw == "" {
		return user.User{}, apperrors.ErrAuthenticationRequired
	}
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return user.User{}, fmt.Errorf("%w: malformed %s header", apperrors.ErrAuthenticationRequired, HeaderUserID)
	}
	role, err := user.ParseRole(r.Header.Get(HeaderUserRole))
	if err != nil {
		return user.User{}, fmt.Errorf("%w: %w", apperrors.ErrAuthenticationRequired, err)
	}

	return user.User{ID: id, Name: r.Header.Get(HeaderUserName), Role: role}, nil
}

type userKey struct{}

type sessionKey struct{}

func WithUser(ctx context.Context, u user.User) context.Context {
	return context.WithValue(ctx, userKey{}, u)
}

func UserFrom(ctx context.Context) (user.User, bool) {
	u, ok := ctx.Value(userKey{}).(user.User)

	return u, ok
}

func WithSession(ctx context.Context, s *session.Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

func SessionFrom(ctx context.Context) (*session.Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(*session.Session)

	return s, ok && s != nil
}

// PathUUID parses a uuid chi URL parameter.
func PathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, apperrors.Validation("invalid %s", name)
	}

	return id, nil
}

// DecodeJSON decodes and validates a request body.
func DecodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperrors.Validation("malformed request body: %v", err)
	}

	return Validate(dst)
}

// DecodeQuery decodes and validates URL query parameters.
func DecodeQuery(r *http.Request, dst any) error {
	if err := schemaDecoder.Decode(dst, r.URL.Query()); err != nil {
		return apperrors.Validation("malformed query: %v", err)
	}

	return Validate(dst)
}

func Validate(v any) error {
	if err := validate.Struct(v); err != nil {
		return apperrors.Validation("%v", err)
	}

	return nil
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string     `json:"error"`
	Code    string     `json:"code"`
	OrderID *uuid.UUID `json:"orderId,omitempty"`
}

// StatusFor maps an error onto an HTTP status and a stable code.
func StatusFor(err error) (int, string) {
	var partial *apperrors.PartialCommitError

	switch {
	case errors.Is(err, apperrors.ErrPlacementTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	case errors.As(err, &partial):
		return http.StatusInternalServerError, "partial_commit"
	case errors.Is(err, apperrors.ErrValidation):
		return http.StatusBadRequest, "validation"
	case errors.Is(err, apperrors.ErrAuthenticationRequired):
		return http.StatusUnauthorized, "unauthenticated"
	case errors.Is(err, apperrors.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, apperrors.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, apperrors.ErrIllegalTransition):
		return http.StatusConflict, "illegal_transition"
	case errors.Is(err, apperrors.ErrPersistence):
		return http.StatusInternalServerError, "persistence"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// WriteError logs err and writes its mapped response. Server-side failures
// are reported without their internal detail.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := StatusFor(err)
	resp := ErrorResponse{Error: err.Error(), Code: code}

	var partial *apperrors.PartialCommitError
	if errors.As(err, &partial) {
		id := partial.OrderID
		resp.OrderID = &id
	}

	attrs := []any{
		"request_id", middleware.GetReqID(r.Context()),
		"method", r.Method,
		"path", r.URL.Path,
		"status", status,
		"error", err,
	}
	if status >= http.StatusInternalServerError {
		slog.Error("Failed to handle request", attrs...)
		resp.Error = http.StatusText(status)
	} else {
		slog.Info("Request rejected", attrs...)
	}

	WriteJSON(w, status, resp)
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error sending response", "error", err)
	}
}
