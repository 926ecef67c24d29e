package models

import "time"

// ObservationType tags every record this connector forwards downstream.
const ObservationType = "tracking-device"

// Location is a WGS84 coordinate pair.
type Location struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Observation is the canonical record the platform's ingestion API accepts.
// It is derived from a vendor device record and never persisted by the
// connector itself.
type Observation struct {
	Source     string         `json:"source"`
	SourceName string         `json:"source_name"`
	Type       string         `json:"type"`
	RecordedAt time.Time      `json:"recorded_at"`
	Location   Location       `json:"location"`
	Additional map[string]any `json:"additional,omitempty"`
}

// SkippedDevice summarises a device that reported no position and was left
// out of a pull run. Reported for operator visibility, never an error.
type SkippedDevice struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
