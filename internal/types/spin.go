package types

import "time"

// SpinRequest is what a submitter sends to start a spin.
type SpinRequest struct {
	Options []string `json:"options"`
	Mode    string   `json:"mode"`
}

// SpinResponse is returned to the submitter once the spin has completed.
type SpinResponse struct {
	Result     string   `json:"result"`
	Mode       string   `json:"mode"`
	SpinID     string   `json:"spin_id"`
	AllOptions []string `json:"all_options"`
}

// SpinRecord is the immutable history entry written when a spin completes.
type SpinRecord struct {
	ID         string    `json:"id" db:"id"`
	Timestamp  time.Time `json:"timestamp" db:"completed_at"`
	Mode       string    `json:"mode" db:"mode"`
	Options    []string  `json:"options" db:"options"`
	Result     string    `json:"result" db:"result"`
	DurationMs int64     `json:"duration_ms" db:"duration_ms"`
}

type SpinState string

const (
	SpinStateCreated    SpinState = "created"
	SpinStateTicking    SpinState = "ticking"
	SpinStateFinalizing SpinState = "finalizing"
	SpinStateComplete   SpinState = "complete"
)

// ActiveSpin is the live view of a spin held by the active table.
type ActiveSpin struct {
	ID               string     `json:"id"`
	Options          []string   `json:"options"`
	Mode             string     `json:"mode"`
	CurrentHighlight int        `json:"current_highlight"`
	SpinCount        int        `json:"spin_count"`
	TotalTicks       int        `json:"total_ticks"`
	IsComplete       bool       `json:"is_complete"`
	State            SpinState  `json:"state"`
	StartedAt        time.Time  `json:"started_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
}

// Clone returns a deep copy safe to hand out of a lock.
func (a ActiveSpin) Clone() ActiveSpin {
	c := a
	c.Options = append([]string(nil), a.Options...)
	if a.CompletedAt != nil {
		t := *a.CompletedAt
		c.CompletedAt = &t
	}
	return c
}

// APIResponse is the envelope used by every HTTP endpoint.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}
