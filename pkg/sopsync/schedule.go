package sopsync

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const (
	Retrieve = "retrieve"
	Download = "download"
	Generate = "generate"
	Fetch    = "fetch"

	// PhaseEnv overrides the weekday schedule.
	PhaseEnv = "PIPELINE_PHASE"
)

var schedule = map[time.Weekday]string{
	time.Monday:    Retrieve,
	time.Tuesday:   Download,
	time.Wednesday: Generate,
	time.Thursday:  Retrieve,
	time.Friday:    Download,
	time.Saturday:  Generate,
}

// ScheduledPhase is the phase run on day, "" on days without one.
func ScheduledPhase(day time.Weekday) string {
	return schedule[day]
}

// ResolvePhase picks the phase of this invocation: the explicit flag, then
// the environment override, then the weekday schedule.
func ResolvePhase(flagValue, envValue string, now time.Time) (string, error) {
	for _, v := range []string{flagValue, envValue} {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" {
			continue
		}
		switch v {
		case Retrieve, Download, Generate:
			return v, nil
		}
		return "", errors.Errorf("unknown phase %q", v)
	}
	return ScheduledPhase(now.Weekday()), nil
}

// NewRunID returns SYNC-<unix seconds>-<8 random hex chars>.
func NewRunID(now time.Time) string {
	return fmt.Sprintf("SYNC-%d-%s", now.Unix(), strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}
