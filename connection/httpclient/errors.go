package httpclient

import "fmt"

// StatusError is returned when the server answers with a non 2xx status
type StatusError struct {
	Method     string
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s request failed with status %s", e.Method, e.Status)
}

func (e *StatusError) Unwrap() error { return nil }
