// Package settings fetches the PostHog settings a helpdesk site publishes
// for its desk UI. The telemetry gate reads them once to decide whether
// analytics may run at all.
package settings

import (
	"context"
	"errors"
	"fmt"
)

// Method is the whitelisted helpdesk method that returns the settings.
const Method = "helpdesk.api.telemetry.get_posthog_settings"

// CacheKey names the settings in caches shared by several gates.
const CacheKey = "posthog_settings"

var ErrNotFetched = errors.New("settings have not been fetched")

// Settings is the payload returned by the helpdesk settings method.
type Settings struct {
	ProjectID string `json:"posthog_project_id" yaml:"posthog_project_id"`
	Host      string `json:"posthog_host" yaml:"posthog_host"`
	Enabled   bool   `json:"enable_telemetry" yaml:"enable_telemetry"`
	// SiteAge is published by the server but not used for gating.
	SiteAge float64 `json:"telemetry_site_age" yaml:"telemetry_site_age"`
}

// Valid reports whether the settings permit telemetry: it must be switched
// on and name both a project and a host.
func (s Settings) Valid() bool {
	return s.Enabled && s.ProjectID != "" && s.Host != ""
}

// Provider supplies telemetry settings.
type Provider interface {
	Fetch(ctx context.Context) (Settings, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context) (Settings, error)

func (f ProviderFunc) Fetch(ctx context.Context) (Settings, error) {
	return f(ctx)
}

// Static always returns the same settings.
type Static Settings

func (s Static) Fetch(context.Context) (Settings, error) {
	return Settings(s), nil
}

// StatusError is returned when the helpdesk answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("settings request failed with status %d", e.StatusCode)
	}
	return fmt.Sprintf("settings request failed with status %d: %s", e.StatusCode, e.Body)
}
