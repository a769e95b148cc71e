package gmail

import (
	"errors"
	"fmt"

	"google.golang.org/api/googleapi"
)

// APIError is a failed Gmail API call. The provider's message is embedded
// in Error; calls are never retried.
type APIError struct {
	Op        string
	MessageID string
	Query     string
	Err       error
}

func (e *APIError) Error() string {
	switch {
	case e.MessageID != "":
		return fmt.Sprintf("gmail %s %s failed: %v", e.Op, e.MessageID, e.Err)
	case e.Query != "":
		return fmt.Sprintf("gmail %s %q failed: %v", e.Op, e.Query, e.Err)
	default:
		return fmt.Sprintf("gmail %s failed: %v", e.Op, e.Err)
	}
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// StatusCode returns the HTTP status of the failed call, or 0 when the
// call never got a response.
func (e *APIError) StatusCode() int {
	var gerr *googleapi.Error
	if errors.As(e.Err, &gerr) {
		return gerr.Code
	}
	return 0
}
