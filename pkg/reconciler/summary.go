package reconciler

import (
	"time"

	"github.com/ValerySidorin/sopsync/pkg/document"
)

// Summary is the report sent at the end of a run, successful or not.
type Summary struct {
	RunID      string    `json:"run_id"`
	Mode       string    `json:"mode"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	// Checked is the number of documents queued for export.
	Checked int                        `json:"checked"`
	Actions map[string]document.Action `json:"actions"`
	Counts  map[document.Action]int    `json:"counts"`

	Unrouted   int              `json:"unrouted"`
	Unresolved map[string]error `json:"-"`
	Invalid    int              `json:"invalid"`

	JobIDs []string `json:"job_ids"`
	Error  string   `json:"error,omitempty"`
}

func newSummary(runID string, mode document.Mode, now time.Time) *Summary {
	return &Summary{
		RunID:      runID,
		Mode:       string(mode),
		StartedAt:  now,
		Actions:    map[string]document.Action{},
		Counts:     map[document.Action]int{},
		Unresolved: map[string]error{},
		JobIDs:     []string{},
	}
}

func (s *Summary) record(key string, a document.Action) {
	s.Actions[key] = a
	s.Counts[a]++
}

// UnresolvedIDs lists the documents skipped for unresolved business area
// codes, with the reason.
func (s *Summary) UnresolvedIDs() map[string]string {
	out := make(map[string]string, len(s.Unresolved))
	for k, err := range s.Unresolved {
		out[k] = err.Error()
	}
	return out
}

func (s *Summary) subject() string {
	if s.Error != "" {
		return "[FAILURE] An error was found. " + s.RunID
	}
	return "[SUCCESS] Synchronization planned. " + s.RunID
}

// payload is what the notifier receives: the summary plus the skip reasons.
type payload struct {
	*Summary
	UnresolvedCodes map[string]string `json:"unresolved"`
}
