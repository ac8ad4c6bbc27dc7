// Package objerr holds the errors shared by every object store backend.
package objerr

import "github.com/pkg/errors"

var ErrNotFound = errors.New("object not found")
