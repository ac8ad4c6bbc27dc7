// Package jsonx decodes the loosely typed values the document API returns:
// numbers that arrive as strings and picklists that arrive either as a
// single value or as a list.
package jsonx

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

var null = []byte("null")

type Int64 int64

func (i *Int64) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, null) {
		*i = 0
		return nil
	}

	s := string(b)
	if b[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*i = 0
			return nil
		}
	}

	// Versions come back as "1.0" from some endpoints.
	if dot := strings.IndexByte(s, '.'); dot >= 0 {
		s = s[:dot]
	}

	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return errors.Wrapf(err, "decode int from %s", string(b))
	}
	*i = Int64(v)
	return nil
}

type Strings []string

func (s *Strings) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, null) {
		*s = Strings{}
		return nil
	}

	switch b[0] {
	case '[':
		raw := make([]json.RawMessage, 0)
		if err := json.Unmarshal(b, &raw); err != nil {
			return errors.Wrap(err, "decode string list")
		}
		out := make(Strings, 0, len(raw))
		for _, r := range raw {
			v, err := scalar(r)
			if err != nil {
				return err
			}
			if v != "" {
				out = append(out, v)
			}
		}
		*s = out
	default:
		v, err := scalar(b)
		if err != nil {
			return err
		}
		if v == "" {
			*s = Strings{}
			return nil
		}
		*s = Strings{v}
	}

	return nil
}

func scalar(b json.RawMessage) (string, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, null) {
		return "", nil
	}
	if b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return "", errors.Wrap(err, "decode string")
		}
		return v, nil
	}
	return string(b), nil
}
