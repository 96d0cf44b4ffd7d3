package chat

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
)

// MaxMessageLength matches the backend's chat message limit.
const MaxMessageLength = 4000

// ErrMessageTooLong is returned for drafts the backend would reject anyway.
var ErrMessageTooLong = errors.Errorf("message too long (max %d characters)", MaxMessageLength)

// userMessager is implemented by transport errors that carry a message meant
// for end users, such as the backend's {"error": ...} body.
type userMessager interface {
	UserMessage() string
}

// DescribeError turns a transport failure into a short human-readable line.
// fallback is used when the error carries nothing better.
func DescribeError(err error, fallback string) string {
	if err == nil {
		return ""
	}
	var um userMessager
	if errors.As(err, &um) {
		if msg := um.UserMessage(); msg != "" {
			return msg
		}
	}
	switch {
	case errors.Is(err, ErrMessageTooLong):
		return fmt.Sprintf("Message too long (max %d characters).", MaxMessageLength)
	case errors.Is(err, context.DeadlineExceeded):
		return "The request timed out. Please try again."
	case errors.Is(err, context.Canceled):
		return "The request was cancelled."
	}
	return fallback
}
