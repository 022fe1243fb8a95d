package server

import "github.com/helpdesk/hdtelemetry/pkg/telemetry"

// CaptureRequest is the body of POST /api/telemetry/capture.
type CaptureRequest struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data,omitempty"`
}

// StatusResponse is returned by GET /api/telemetry/status.
type StatusResponse struct {
	telemetry.State
	App              string   `json:"app"`
	SettingsReceived bool     `json:"settings_received"`
	SiteAge          *float64 `json:"site_age,omitempty"`
}

type acceptedResponse struct {
	Status string `json:"status"`
}

type errorResponse struct {
	Error string `json:"error"`
}
