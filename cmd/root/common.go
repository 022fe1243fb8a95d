package root

import (
	"cmp"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/goccy/go-yaml"

	"github.com/helpdesk/hdtelemetry/pkg/cli"
	"github.com/helpdesk/hdtelemetry/pkg/posthog"
	"github.com/helpdesk/hdtelemetry/pkg/settings"
	"github.com/helpdesk/hdtelemetry/pkg/telemetry"
	"github.com/helpdesk/hdtelemetry/pkg/userconfig"
)

var errNoSite = errors.New("no helpdesk site configured: run `hdtelemetry config set site_url <url>` or set " + userconfig.EnvSiteURL)

func (f *rootFlags) loadConfig() (*userconfig.Config, error) {
	if f.configPath != "" {
		return userconfig.LoadFrom(f.configPath)
	}
	return userconfig.Load()
}

func (f *rootFlags) saveConfig(config *userconfig.Config) error {
	if f.configPath != "" {
		return config.SaveTo(f.configPath)
	}
	return config.Save()
}

func (f *rootFlags) configFilePath() string {
	return cmp.Or(f.configPath, userconfig.Path())
}

// newProvider returns the settings provider for the configured site.
func newProvider(config *userconfig.Config) (settings.Provider, error) {
	if config.SiteURL == "" {
		return nil, errNoSite
	}

	provider, err := settings.NewHTTPProvider(config.SiteURL, settings.WithCredentials(config.APIKey, config.APISecret))
	if err != nil {
		return nil, err
	}

	ttl, err := config.CacheTTL()
	if err != nil {
		return nil, err
	}
	return settings.NewCachedProvider(provider, ttl), nil
}

// fileProvider reads fixed settings from a YAML file, for relays that
// cannot reach the helpdesk.
func fileProvider(path string) (settings.Provider, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings file: %w", err)
	}

	var s settings.Settings
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("failed to parse settings file %s: %w", path, err)
	}
	return settings.Static(s), nil
}

// newGate wires a gate for the configured site to a PostHog client. The
// gate is Disabled until Load is called.
func newGate(config *userconfig.Config, provider settings.Provider, opts ...posthog.Option) *telemetry.Gate {
	siteName := cmp.Or(config.SiteName, telemetry.SiteNameFromURL(config.SiteURL))
	forceDisabled := !telemetry.GetTelemetryEnabled()
	if forceDisabled {
		slog.Debug("Telemetry disabled by TELEMETRY_ENABLED")
	}

	return telemetry.New(provider, posthog.New(opts...),
		telemetry.WithApp(config.App),
		telemetry.WithSiteName(siteName),
		telemetry.WithForceDisabled(forceDisabled),
	)
}

// printErr prints err once and marks it so processErr stays quiet.
func printErr(out *cli.Printer, err error) error {
	out.PrintError(err)
	return RuntimeError{Err: err}
}
