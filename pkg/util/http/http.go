package http

import (
	"fmt"
	"io"
	"net/http"
)

const maxErrorBody = 512

type StatusError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return "http response did not indicate success status code: " + e.Status
	}
	return fmt.Sprintf("http response did not indicate success status code: %s: %s", e.Status, e.Body)
}

func isSuccessStatusCode(resp *http.Response) bool {
	return resp.StatusCode >= 200 && resp.StatusCode <= 299
}

// EnsureSuccessStatusCode returns a *StatusError carrying the head of the
// response body when resp is not 2xx.
func EnsureSuccessStatusCode(resp *http.Response) error {
	if isSuccessStatusCode(resp) {
		return nil
	}

	err := &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	if resp.Body != nil {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		err.Body = string(b)
	}
	return err
}
