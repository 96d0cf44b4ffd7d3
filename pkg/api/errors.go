package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/pkg/errors"
)

// Error is a non-2xx response. The backend reports failures as
// {"error": "...", "detail": "..."}; FastAPI validation failures use
// {"detail": [...]} instead.
type Error struct {
	StatusCode int
	Message    string
	Detail     string
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if e.Detail != "" {
		return fmt.Sprintf("api error %d: %s (%s)", e.StatusCode, msg, e.Detail)
	}
	return fmt.Sprintf("api error %d: %s", e.StatusCode, msg)
}

// UserMessage is the text shown to the user for this failure.
func (e *Error) UserMessage() string {
	if e.Message != "" {
		return e.Message
	}
	switch e.StatusCode {
	case http.StatusUnauthorized:
		return "Your session has expired. Please log in again."
	case http.StatusForbidden:
		return "You do not have access to this resource."
	case http.StatusNotFound:
		return "Not found."
	case http.StatusTooManyRequests:
		return "Too many requests. Please slow down."
	}
	if e.StatusCode >= 500 {
		return "The server had a problem. Please try again."
	}
	return ""
}

func IsNotFound(err error) bool {
	return statusOf(err) == http.StatusNotFound
}

func IsUnauthorized(err error) bool {
	return statusOf(err) == http.StatusUnauthorized
}

func statusOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode
	}
	return 0
}

func newError(status int, body []byte) *Error {
	e := &Error{StatusCode: status}

	var env struct {
		Error  string          `json:"error"`
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		e.Detail = strings.TrimSpace(string(body))
		if len(e.Detail) > 200 {
			e.Detail = e.Detail[:200]
		}
		return e
	}
	e.Message = env.Error

	var detail string
	if err := json.Unmarshal(env.Detail, &detail); err == nil {
		e.Detail = detail
		if e.Message == "" {
			e.Message = detail
		}
		return e
	}

	var items []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(env.Detail, &items); err == nil && len(items) > 0 {
		msgs := make([]string, 0, len(items))
		for _, it := range items {
			msgs = append(msgs, it.Msg)
		}
		e.Detail = strings.Join(msgs, "; ")
		if e.Message == "" {
			e.Message = "Validation error: " + e.Detail
		}
	}
	return e
}
