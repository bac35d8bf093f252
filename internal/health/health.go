// Package health reports hub liveness over HTTP and the standard gRPC health protocol.
package health

import (
	"time"
)

const (
	ServiceName = "liminal-server"
	Version     = "0.2.0"
)

var Features = []string{"websocket", "spinner", "presets", "metrics"}

// Status is the body of GET /api/health.
type Status struct {
	Status         string   `json:"status"`
	Service        string   `json:"service"`
	Version        string   `json:"version"`
	Features       []string `json:"features"`
	UptimeSeconds  int64    `json:"uptime_seconds"`
	Observers      int      `json:"observers"`
	ActiveSpins    int      `json:"active_spins"`
	CompletedSpins int      `json:"completed_spins"`
	HistoryRecords int      `json:"history_records"`
	MQTTConnected  *bool    `json:"mqtt_connected,omitempty"`
	NextSweep      string   `json:"next_sweep,omitempty"`
}

type Sources struct {
	Observers func() int
	// Spins returns running and completed counts from the active table.
	Spins     func() (running, completed int)
	History   func() int
	MQTT      func() bool
	NextSweep func() time.Time
}

type Reporter struct {
	started time.Time
	src     Sources
	now     func() time.Time
}

func NewReporter(src Sources) *Reporter {
	return &Reporter{started: time.Now(), src: src, now: time.Now}
}

func (r *Reporter) Check() Status {
	st := Status{
		Status:        "alive",
		Service:       ServiceName,
		Version:       Version,
		Features:      Features,
		UptimeSeconds: int64(r.now().Sub(r.started).Seconds()),
	}
	if r.src.Observers != nil {
		st.Observers = r.src.Observers()
	}
	if r.src.Spins != nil {
		st.ActiveSpins, st.CompletedSpins = r.src.Spins()
	}
	if r.src.History != nil {
		st.HistoryRecords = r.src.History()
	}
	if r.src.MQTT != nil {
		connected := r.src.MQTT()
		st.MQTTConnected = &connected
	}
	if r.src.NextSweep != nil {
		st.NextSweep = r.src.NextSweep().UTC().Format(time.RFC3339)
	}
	return st
}
