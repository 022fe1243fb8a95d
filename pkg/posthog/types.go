package posthog

import (
	"errors"
	"time"
)

var (
	ErrNotLoaded = errors.New("posthog client is not loaded")
	ErrClosed    = errors.New("posthog client is closed")
)

const (
	// LibName is reported as $lib on every event.
	LibName = "hdtelemetry"

	eventIdentify  = "$identify"
	eventAutocap   = "$autocapture"
	eventPageview  = "$pageview"
	eventPageleave = "$pageleave"
)

// Event is a single entry of a /batch/ request.
type Event struct {
	UUID       string         `json:"uuid"`
	Event      string         `json:"event"`
	DistinctID string         `json:"distinct_id"`
	Properties map[string]any `json:"properties"`
	Timestamp  time.Time      `json:"timestamp"`
}

type batchRequest struct {
	APIKey string    `json:"api_key"`
	Batch  []Event   `json:"batch"`
	SentAt time.Time `json:"sent_at"`
}
