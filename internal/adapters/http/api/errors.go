package api

import (
	"errors"
	"net/http"

	"github.com/okian/capboard/internal/adapters/repository"
	service "github.com/okian/capboard/internal/app"
	"github.com/okian/capboard/internal/domain/ranking"
	"github.com/okian/capboard/internal/domain/types"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest   = errors.New("bad request")
	ErrBackpressure = errors.New("backpressure")
)

// OpError carries the handler operation that failed together with the
// error kind used to pick the status code.
type OpError struct {
	Op   string
	Kind error
	Err  error
}

func (e *OpError) Error() string {
	switch {
	case e.Err != nil && e.Kind != nil:
		return e.Op + ": " + e.Kind.Error() + ": " + e.Err.Error()
	case e.Err != nil:
		return e.Op + ": " + e.Err.Error()
	case e.Kind != nil:
		return e.Op + ": " + e.Kind.Error()
	}
	return e.Op
}

// Unwrap exposes both the kind and the cause to errors.Is.
func (e *OpError) Unwrap() []error {
	var errs []error
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// NewKind returns an error of the given kind for op.
func NewKind(op string, kind error) error {
	return &OpError{Op: op, Kind: kind}
}

// WrapKind wraps err for op under the given kind.
func WrapKind(op string, kind, err error) error {
	return &OpError{Op: op, Kind: kind, Err: err}
}

// Wrap wraps err for op; the kind comes from err itself.
func Wrap(op string, err error) error {
	return &OpError{Op: op, Err: err}
}

// classify maps an error to its HTTP status and error code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ranking.ErrInvalidMode):
		return http.StatusBadRequest, "invalid_mode"
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, service.ErrInvalidSymbol),
		errors.Is(err, types.ErrInvalidCompany),
		errors.Is(err, types.ErrInvalidTick):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, ErrBackpressure):
		return http.StatusTooManyRequests, "backpressure"
	case errors.Is(err, repository.ErrBackendUnavailable),
		errors.Is(err, repository.ErrClosed),
		errors.Is(err, service.ErrNotStarted):
		return http.StatusServiceUnavailable, "backend_unavailable"
	}
	return http.StatusInternalServerError, "internal_error"
}
