package domain

import (
	"net/http"

	"github.com/pkg/errors"
)

var (
	ErrPasteNotFound      = NewErr("PASTE_NOT_FOUND", "paste not found", http.StatusNotFound)
	ErrPasteExpired       = NewErr("PASTE_EXPIRED", "paste expired", http.StatusNotFound)
	ErrViewLimitExceeded  = NewErr("VIEW_LIMIT_EXCEEDED", "view limit exceeded", http.StatusNotFound)
	ErrPasteTooLarge      = NewErr("PASTE_TOO_LARGE", "paste too large", http.StatusBadRequest)
	ErrInvalidRequest     = NewErr("INVALID_REQUEST", "invalid request", http.StatusBadRequest)
	ErrContentRequired    = NewErr("CONTENT_REQUIRED", "content required", http.StatusBadRequest)
	ErrInvalidTTL         = NewErr("INVALID_TTL", "ttl_seconds must be integer >= 1", http.StatusBadRequest)
	ErrInvalidMaxViews    = NewErr("INVALID_MAX_VIEWS", "max_views must be integer >= 1", http.StatusBadRequest)
	ErrRateLimitExceeded  = NewErr("RATE_LIMIT_EXCEEDED", "rate limit exceeded", http.StatusTooManyRequests)
	ErrUnsupportedMedia   = NewErr("UNSUPPORTED_MEDIA_TYPE", "expected Content-Type: application/json", http.StatusUnsupportedMediaType)
	ErrInternalServer     = NewErr("INTERNAL_ERROR", "internal error", http.StatusInternalServerError)
	ErrServiceUnavailable = NewErr("SERVICE_UNAVAILABLE", "service unavailable", http.StatusServiceUnavailable)
)

type Err struct {
	Code   string `json:"code"`
	Msg    string `json:"message"`
	Status int    `json:"-"`
}

func (e *Err) Error() string { return e.Msg }
func NewErr(code, msg string, status int) *Err {
	return &Err{Code: code, Msg: msg, Status: status}
}

type ErrResp struct {
	Error ErrDetail `json:"error"`
}
type ErrDetail struct {
	Code string `json:"code"`
	Msg  string `json:"message"`
}

func ToResp(err error) ErrResp {
	if e := asErr(err); e != nil {
		return ErrResp{Error: ErrDetail{Code: e.Code, Msg: e.Msg}}
	}
	return ErrResp{Error: ErrDetail{Code: "INTERNAL_ERROR", Msg: "internal error"}}
}
func Status(err error) int {
	if e := asErr(err); e != nil {
		return e.Status
	}
	return http.StatusInternalServerError
}

// IsValidation reports whether err is a client input problem.
func IsValidation(err error) bool {
	e := asErr(err)
	return e != nil && e.Status == http.StatusBadRequest
}

// IsNotFound reports whether err means the paste must be presented as
// missing: unknown id, expired, or out of views.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrPasteNotFound) ||
		errors.Is(err, ErrPasteExpired) ||
		errors.Is(err, ErrViewLimitExceeded)
}

func asErr(err error) *Err {
	if e, ok := err.(*Err); ok {
		return e
	}
	if e, ok := errors.Cause(err).(*Err); ok {
		return e
	}
	return nil
}
