package telemetry

import "context"

// PersonProfiles controls when the analytics backend builds person profiles.
type PersonProfiles string

// PersonProfilesIdentifiedOnly limits profiles to identified users.
const PersonProfilesIdentifiedOnly PersonProfiles = "identified_only"

// MaskInputOptions selects input kinds that are masked even when
// MaskAllInputs is off.
type MaskInputOptions struct {
	Password bool `json:"password"`
	Email    bool `json:"email,omitempty"`
}

type SessionRecordingConfig struct {
	MaskAllInputs    bool             `json:"maskAllInputs"`
	MaskInputOptions MaskInputOptions `json:"maskInputOptions"`
}

// Config is handed to Analytics.Init.
type Config struct {
	Host                    string                 `json:"api_host"`
	PersonProfiles          PersonProfiles         `json:"person_profiles"`
	Autocapture             bool                   `json:"autocapture"`
	CapturePageview         bool                   `json:"capture_pageview"`
	CapturePageleave        bool                   `json:"capture_pageleave"`
	DisableSessionRecording bool                   `json:"disable_session_recording"`
	SessionRecording        SessionRecordingConfig `json:"session_recording"`

	// Loaded is called once the client is ready, with the ready client.
	Loaded func(Analytics) `json:"-"`
}

// DefaultConfig returns the options the gate initializes clients with.
func DefaultConfig(host string) Config {
	return Config{
		Host:                    host,
		PersonProfiles:          PersonProfilesIdentifiedOnly,
		Autocapture:             false,
		CapturePageview:         true,
		CapturePageleave:        true,
		DisableSessionRecording: false,
		SessionRecording: SessionRecordingConfig{
			MaskAllInputs: false,
			MaskInputOptions: MaskInputOptions{
				Password: true,
			},
		},
	}
}

// Properties are the event properties forwarded to the analytics backend.
type Properties map[string]any

// Analytics is the analytics client the gate drives. The gate never
// inspects its internals, it only calls through this interface.
type Analytics interface {
	Init(ctx context.Context, projectID string, cfg Config) error
	Loaded() bool
	Identify(distinctID string)
	Capture(event string, props Properties) error
	StartSessionRecording()
	StopSessionRecording()
	SessionRecordingStarted() bool
}

// flusher is implemented by clients that buffer events.
type flusher interface {
	Close(ctx context.Context) error
}
