package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

var (
	ErrInvalidURL      = errors.New("invalid url")
	ErrInvalidResponse = errors.New("invalid response")
	ErrDecoding        = errors.New("decoding error")
	ErrTransport       = errors.New("transport error")
	ErrNotFound        = errors.New("not found")
	ErrUsernameTaken   = errors.New("username already in use")
	ErrData            = errors.New("data error")
	ErrReceiptRejected = errors.New("purchase receipt rejected")
)

// Error describes a failed backend call. Kind is one of the sentinel errors above
// and is matched by errors.Is; Err is the underlying cause, if any.
type Error struct {
	Op     string
	Kind   error
	Status int
	Err    error
}

func (e *Error) Error() string {
	msg := e.Op + ": " + e.Kind.Error()
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// dataError collapses any list failure into ErrData, keeping the original
// error reachable for errors.Is and Classify.
func dataError(op string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr *Error
	status := 0
	if errors.As(err, &apiErr) {
		status = apiErr.Status
	}
	return &Error{Op: op, Kind: ErrData, Status: status, Err: err}
}

// State is the user-visible outcome of a fetch.
type State int

const (
	StateUnknown State = iota
	StateOK
	StateOffline
	StateServerError
	StateNoData
)

func (s State) String() string {
	switch s {
	case StateOK:
		return "ok"
	case StateOffline:
		return "offline"
	case StateServerError:
		return "server error"
	case StateNoData:
		return "no data"
	}
	return "unknown"
}

// Classify maps an error from this package onto a user-visible state.
func Classify(err error) State {
	if err == nil {
		return StateOK
	}

	var netErr net.Error
	switch {
	case errors.Is(err, ErrNotFound):
		return StateNoData
	case errors.Is(err, ErrTransport),
		errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr):
		return StateOffline
	case errors.Is(err, ErrDecoding):
		return StateServerError
	}

	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr.Status != 0 {
		if apiErr.Status == http.StatusNotFound {
			return StateNoData
		}
		return StateServerError
	}
	return StateUnknown
}
