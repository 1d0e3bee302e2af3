package track

import "time"

type Track struct {
	ID             string       `json:"id"`
	OwnerID        string       `json:"owner_id"`
	Name           string       `json:"name"`
	Description    string       `json:"description,omitempty"`
	Path           []TrackPoint `json:"path"`
	DistanceM      float64      `json:"distance_m"`
	DurationSec    float64      `json:"duration_sec"`
	AvgSpeedMps    float64      `json:"avg_speed_mps"`
	ElevationGainM *float64     `json:"elevation_gain_m,omitempty"`
	ElevationLossM *float64     `json:"elevation_loss_m,omitempty"`
	StartTimeMs    int64        `json:"start_time_ms"`
	EndTimeMs      int64        `json:"end_time_ms"`
	IsActive       bool         `json:"is_active"`
	CreatedAt      time.Time    `json:"created_at"`
}

type TrackPoint struct {
	Lat         float64  `json:"lat"`
	Lng         float64  `json:"lng"`
	TimestampMs int64    `json:"timestamp_ms"`
	AltitudeM   *float64 `json:"altitude_m,omitempty"`
	AccuracyM   *float64 `json:"accuracy_m,omitempty"`
}
