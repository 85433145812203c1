package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrAuthenticationRequired means no user identity could be resolved
	// locally. Nothing was sent to the server.
	ErrAuthenticationRequired = errors.New("authentication required, please log in to continue")

	// ErrUnauthorized means the server rejected the bearer token (HTTP 401).
	// The caller should clear the session and sign in again.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNetwork means the request could not complete.
	ErrNetwork = errors.New("network failure")

	// ErrMalformedResponse means the server replied with an unexpected shape.
	ErrMalformedResponse = errors.New("malformed response")

	// ErrValidation means the input was rejected before any request was made.
	ErrValidation = errors.New("validation failed")
)

// StatusError is a non-2xx reply from the backend.
type StatusError struct {
	Code   int
	Detail string
	Body   string
}

func (e *StatusError) Error() string {
	msg := e.Detail
	if msg == "" {
		msg = strings.TrimSpace(e.Body)
	}
	if msg == "" {
		msg = http.StatusText(e.Code)
	}
	return fmt.Sprintf("backend returned status %d: %s", e.Code, msg)
}

// Unwrap lets errors.Is(err, ErrUnauthorized) match a 401.
func (e *StatusError) Unwrap() error {
	if e.Code == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	return nil
}

// newStatusError builds a StatusError, pulling FastAPI's "detail" out of the body.
func newStatusError(code int, body []byte) *StatusError {
	e := &StatusError{Code: code, Body: string(body)}

	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && len(payload.Detail) > 0 {
		var s string
		if err := json.Unmarshal(payload.Detail, &s); err == nil {
			e.Detail = s
		} else {
			e.Detail = string(payload.Detail)
		}
	}
	return e
}
