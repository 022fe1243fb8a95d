package telemetry

import (
	"flag"
	"net/url"
	"os"
	"strings"
)

// DefaultApp prefixes every captured event name.
const DefaultApp = "helpdesk"

// GetTelemetryEnabled reports whether this process may send telemetry at
// all. It is false under "go test" and when TELEMETRY_ENABLED=false.
// Remote settings still decide for sites where it returns true.
func GetTelemetryEnabled() bool {
	if flag.Lookup("test.v") != nil {
		return false
	}
	return getTelemetryEnabledFromEnv()
}

func getTelemetryEnabledFromEnv() bool {
	if env := os.Getenv("TELEMETRY_ENABLED"); env != "" {
		return env != "false"
	}
	return true
}

// SiteNameFromURL returns the host name of a site URL, which is what a
// site is identified as. Bare host names are returned as-is.
func SiteNameFromURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "//" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
