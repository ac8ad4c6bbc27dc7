package publisher

import "time"

type Outcome string

const (
	OutcomeOK      Outcome = "OK"
	OutcomeSkipped Outcome = "SKIPPED"
	OutcomeFailed  Outcome = "FAILED"
)

// Entry is the outcome of one attempted document.
type Entry struct {
	FileID  int64   `json:"file_id"`
	Outcome Outcome `json:"status"`
	Reason  string  `json:"reason,omitempty"`
	Key     string  `json:"key,omitempty"`
}

type Report struct {
	RunID      string    `json:"run_id"`
	JobID      string    `json:"job_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Entries    []Entry   `json:"entries"`
	Error      string    `json:"error,omitempty"`
}

func (r *Report) add(e Entry) {
	r.Entries = append(r.Entries, e)
}

// Count returns the number of entries with outcome o.
func (r *Report) Count(o Outcome) int {
	n := 0
	for _, e := range r.Entries {
		if e.Outcome == o {
			n++
		}
	}
	return n
}

func (r *Report) subject(what string) string {
	switch {
	case r.Error != "":
		return "[FAILURE] " + what + " failed. " + r.RunID
	case r.Count(OutcomeFailed) > 0:
		return "[WARNING] " + what + " finished with failures. " + r.RunID
	default:
		return "[SUCCESS] " + what + " finished. " + r.RunID
	}
}
