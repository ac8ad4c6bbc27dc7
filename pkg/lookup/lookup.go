package lookup

import (
	"fmt"

	"github.com/ValerySidorin/sopsync/pkg/document"
)

// Mapping maps raw codes to display names.
type Mapping map[string]string

// Merge returns a new mapping holding every entry of cached and live; live
// wins when both carry the same code.
func Merge(cached, live Mapping) Mapping {
	out := make(Mapping, len(cached)+len(live))
	for k, v := range cached {
		out[k] = v
	}
	for k, v := range live {
		out[k] = v
	}
	return out
}

// Rename maps every known code, leaving unknown values untouched.
func (m Mapping) Rename(values []string) []string {
	if values == nil {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if name, ok := m[v]; ok {
			out = append(out, name)
		} else {
			out = append(out, v)
		}
	}
	return out
}

// Resolve maps every code and returns the ones without a display name.
func (m Mapping) Resolve(values []string) ([]string, []string) {
	if values == nil {
		return nil, nil
	}
	out := make([]string, 0, len(values))
	var missing []string
	for _, v := range values {
		name, ok := m[v]
		if !ok {
			missing = append(missing, v)
			name = v
		}
		out = append(out, name)
	}
	return out, missing
}

// Snapshot holds the merged mapping of every table, keyed by table name.
type Snapshot map[string]Mapping

type UnresolvedError struct {
	FileID int64
	Codes  map[string][]string
}

func (e *UnresolvedError) Error() string {
	return fmt.Sprintf("document %d has unresolved business area codes: %v", e.FileID, e.Codes)
}

// Apply rewrites the coded fields of rec to display names. Business area
// codes without a display name leave rec partially resolved and are reported
// as *UnresolvedError.
func (s Snapshot) Apply(rec *document.Record) error {
	var unresolved map[string][]string
	for _, t := range Tables {
		missing := t.apply(rec, s[t.Name])
		if len(missing) > 0 {
			if unresolved == nil {
				unresolved = make(map[string][]string)
			}
			unresolved[t.Name] = missing
		}
	}
	if unresolved != nil {
		return &UnresolvedError{FileID: rec.FileID, Codes: unresolved}
	}
	return nil
}
