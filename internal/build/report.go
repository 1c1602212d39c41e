package build

import (
	"time"
)

// Outcome labels for finished builds.
const (
	OutcomeSuccess  = "success"
	OutcomeFailed   = "failed"
	OutcomeSkipped  = "skipped"
	OutcomeCanceled = "canceled"
)

// Report summarizes one build for logs, the cache, and the preview server.
type Report struct {
	BuildID string    `json:"build_id"`
	Started time.Time `json:"started"`
	Outcome string    `json:"outcome"`

	Posts  int `json:"posts"`
	Pages  int `json:"pages"`
	Assets int `json:"assets"`

	// Skipped is true when the input signature matched the previous
	// successful build and generation was bypassed.
	Skipped bool `json:"skipped"`

	// Signature is the build-input hash, doubling as the live-reload token.
	Signature string `json:"signature,omitempty"`

	Warnings []string                 `json:"warnings,omitempty"`
	Duration time.Duration            `json:"duration"`
	StageTimings map[string]time.Duration `json:"stage_timings,omitempty"`
}

func newReport(buildID string, started time.Time) *Report {
	return &Report{
		BuildID:      buildID,
		Started:      started,
		StageTimings: make(map[string]time.Duration),
	}
}

// AddWarning appends a non-fatal problem to the report.
func (r *Report) AddWarning(msg string) {
	r.Warnings = append(r.Warnings, msg)
}
