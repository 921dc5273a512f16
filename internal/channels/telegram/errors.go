package telegram

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aatumaykin/shuttlewatch/internal/logger"
	telegoapi "github.com/mymmrac/telego/telegoapi"
)

// APIError describes a failed Bot API call. It satisfies the retry package's
// IsRetryable and RetryAfter hooks.
type APIError struct {
	Op            string
	ErrorCode     int
	Description   string
	RetryAfterSec int
	ChatID        int64
	Err           error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s: %d %s", e.Op, e.ErrorCode, e.Description)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// IsRetryable is true for rate limiting and server errors.
func (e *APIError) IsRetryable() bool {
	return e.ErrorCode == 429 || (e.ErrorCode >= 500 && e.ErrorCode < 600)
}

// RetryAfter is the server-requested delay, if any.
func (e *APIError) RetryAfter() time.Duration {
	if e.RetryAfterSec > 0 {
		return time.Duration(e.RetryAfterSec) * time.Second
	}
	if e.ErrorCode >= 500 && e.ErrorCode < 600 {
		return 5 * time.Second
	}
	return 0
}

func (e *APIError) LogFields() []logger.Field {
	return []logger.Field{
		{Key: "error_code", Value: e.ErrorCode},
		{Key: "error_description", Value: e.Description},
		{Key: "retry_after", Value: e.RetryAfterSec},
		{Key: "chat_id", Value: e.ChatID},
	}
}

// wrapAPIError converts a telego API error into an APIError. Other errors,
// such as network failures, are returned unchanged.
func wrapAPIError(op string, chatID int64, err error) error {
	var telErr *telegoapi.Error
	if !errors.As(err, &telErr) {
		return err
	}
	apiErr := &APIError{
		Op:          op,
		ErrorCode:   telErr.ErrorCode,
		Description: telErr.Description,
		ChatID:      chatID,
		Err:         err,
	}
	if telErr.Parameters != nil {
		apiErr.RetryAfterSec = telErr.Parameters.RetryAfter
	}
	return apiErr
}

// isNotModified reports an edit whose text equals the current one.
func isNotModified(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode == 400 &&
		strings.Contains(apiErr.Description, "message is not modified")
}
