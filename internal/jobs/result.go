// Package jobs holds the shared result envelope returned by the batch
// passes (reminders, no-show detection, follow-ups) to their triggers.
package jobs

import "github.com/google/uuid"

// ItemResult records the outcome for one appointment inside a batch run.
type ItemResult struct {
	AppointmentID uuid.UUID `json:"appointment_id"`
	Phone         string    `json:"phone"`
	Sent          bool      `json:"sent"`
	Action        string    `json:"action,omitempty"`
	Skipped       string    `json:"skipped,omitempty"`
	Error         string    `json:"error,omitempty"`
}

// RunResult is the summary a batch job returns.
type RunResult struct {
	Processed int          `json:"processed"`
	Results   []ItemResult `json:"results"`
}

// Append adds one item and bumps the processed count.
func (r *RunResult) Append(item ItemResult) {
	r.Results = append(r.Results, item)
	r.Processed++
}

// Failures counts items that recorded an error.
func (r RunResult) Failures() int {
	n := 0
	for _, item := range r.Results {
		if item.Error != "" {
			n++
		}
	}
	return n
}
