package vault

import (
	"strings"

	"github.com/pkg/errors"
)

var (
	// ErrExpiredSession is returned when the session token was rejected.
	ErrExpiredSession = errors.New("vault session expired")
	// ErrNotReady is returned while an export job has no results yet.
	ErrNotReady = errors.New("vault export job not ready")
)

const invalidSession = "INVALID_SESSION_ID"

type APIError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type FailureError struct {
	Op     string
	Errors []APIError
}

func (e *FailureError) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for _, a := range e.Errors {
		parts = append(parts, a.Type+": "+a.Message)
	}
	if len(parts) == 0 {
		return "vault " + e.Op + " failed"
	}
	return "vault " + e.Op + " failed: " + strings.Join(parts, "; ")
}
