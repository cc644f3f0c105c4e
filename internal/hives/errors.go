package hives

import "fmt"

// TransportError reports a failed registry or history fetch: a network error,
// a non-2xx status or an unparseable body.
type TransportError struct {
	Op         string
	Endpoint   string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s: status %d: %v", e.Op, e.Endpoint, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
