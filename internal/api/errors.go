package api

import (
	"errors"
	"fmt"
	"net/http"
)

// DefaultErrorStatus is reported for failures that carry no backend status.
const DefaultErrorStatus = http.StatusBadRequest

// StatusError is a non-2xx response from the platform.
type StatusError struct {
	Op      string
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: status %d", e.Op, e.Code)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Op, e.Code, e.Message)
}

// StatusCode returns the backend status carried by err, or DefaultErrorStatus.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) && se.Code != 0 {
		return se.Code
	}
	return DefaultErrorStatus
}

// IsNotFound reports whether err is a 404 from the platform.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusNotFound
}
