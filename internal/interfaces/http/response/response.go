// Package response writes JSON bodies and RFC 7807 problem documents, and maps
// repository errors to HTTP status codes.
package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	apperrors "repokit/internal/errors"
)

// StatusClientClosedRequest is the non-standard status for requests the caller
// abandoned.
const StatusClientClosedRequest = 499

// Problem is an RFC 7807 problem document.
type Problem struct {
	Type      string            `json:"type"`
	Title     string            `json:"title"`
	Status    int               `json:"status"`
	Detail    string            `json:"detail,omitempty"`
	Code      string            `json:"code,omitempty"`
	Instance  string            `json:"instance,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
	Timestamp string            `json:"timestamp"`
	Fields    map[string]string `json:"fields,omitempty"`
}

func newProblem(status int, kind, title, code, detail string) *Problem {
	return &Problem{
		Type:      "/errors/" + kind,
		Title:     title,
		Status:    status,
		Code:      code,
		Detail:    detail,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

func BadRequest(detail string) *Problem {
	return newProblem(http.StatusBadRequest, "bad-request", "Bad Request", "BAD_REQUEST", detail)
}

func NotFound(detail string) *Problem {
	return newProblem(http.StatusNotFound, "not-found", "Resource Not Found", "NOT_FOUND", detail)
}

// Validation reports field errors keyed by their JSON name.
func Validation(err error) *Problem {
	p := newProblem(http.StatusBadRequest, "validation", "Validation Failed", "VALIDATION_ERROR", err.Error())
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		p.Fields = make(map[string]string, len(verrs))
		for _, fe := range verrs {
			p.Fields[fe.Field()] = fe.Tag()
		}
		p.Detail = "validation failed for one or more fields"
	}
	return p
}

// FromError classifies err. Unclassified errors become a 500 without detail.
func FromError(err error) *Problem {
	var appErr *apperrors.Error
	switch {
	case errors.As(err, &appErr) && appErr.Type == apperrors.ErrorTypeNotFound:
		return newProblem(http.StatusNotFound, "not-found", "Resource Not Found", appErr.Code, appErr.Message)
	case errors.As(err, &appErr) && appErr.Type == apperrors.ErrorTypeInvalidArgument:
		p := newProblem(http.StatusBadRequest, "bad-request", "Bad Request", appErr.Code, appErr.Message)
		if appErr.Details != "" {
			p.Detail += ": " + appErr.Details
		}
		return p
	case errors.As(err, &appErr) && appErr.Type == apperrors.ErrorTypeConflict:
		return newProblem(http.StatusConflict, "conflict", "Conflict", appErr.Code,
			"The resource has been modified. Please refresh and try again.")
	case apperrors.IsCancelled(err):
		return newProblem(StatusClientClosedRequest, "cancelled", "Request Cancelled", "CANCELLED", "the request was cancelled")
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return newProblem(http.StatusServiceUnavailable, "service-unavailable", "Service Unavailable", "SERVICE_UNAVAILABLE",
			"Service temporarily unavailable. Please try again later.")
	}
	return newProblem(http.StatusInternalServerError, "internal", "Internal Server Error", "INTERNAL_ERROR", "An unexpected error occurred")
}

// Write sends p as application/problem+json.
func (p *Problem) Write(w http.ResponseWriter, r *http.Request) {
	p.Instance = r.URL.Path
	p.RequestID = middleware.GetReqID(r.Context())
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

// Error writes the problem for err and logs server-side failures.
func Error(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	p := FromError(err)
	if p.Status >= http.StatusInternalServerError {
		logger.Error("Request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("requestID", middleware.GetReqID(r.Context())),
			zap.Error(err),
		)
	}
	p.Write(w, r)
}

// JSON writes v with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Page is a paginated list.
type Page[T any] struct {
	Items   []T  `json:"items"`
	Total   int  `json:"total"`
	Skip    int  `json:"skip"`
	Take    int  `json:"take"`
	HasMore bool `json:"hasMore"`
}

// NewPage never serialises a nil Items slice.
func NewPage[T any](items []T, total, skip, take int) Page[T] {
	if items == nil {
		items = []T{}
	}
	return Page[T]{
		Items:   items,
		Total:   total,
		Skip:    skip,
		Take:    take,
		HasMore: skip+len(items) < total,
	}
}
