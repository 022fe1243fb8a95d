package posthog

import (
	"strings"

	"github.com/helpdesk/hdtelemetry/pkg/telemetry"
)

// maskProperties returns a copy of props with input values masked the way
// session recordings mask them: each character replaced by '*'. With
// MaskAllInputs every string is masked, otherwise only keys naming a
// masked input kind are.
func maskProperties(props map[string]any, opts telemetry.SessionRecordingConfig) map[string]any {
	out := make(map[string]any, len(props))
	for k, v := range props {
		out[k] = maskValue(k, v, opts)
	}
	return out
}

func maskValue(key string, v any, opts telemetry.SessionRecordingConfig) any {
	switch val := v.(type) {
	case map[string]any:
		return maskProperties(val, opts)
	case telemetry.Properties:
		return maskProperties(val, opts)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = maskValue(key, item, opts)
		}
		return out
	case string:
		if opts.MaskAllInputs || maskedKey(key, opts.MaskInputOptions) {
			return strings.Repeat("*", len([]rune(val)))
		}
		return val
	default:
		return v
	}
}

func maskedKey(key string, opts telemetry.MaskInputOptions) bool {
	k := strings.ToLower(key)
	switch {
	case opts.Password && (strings.Contains(k, "password") || strings.Contains(k, "passwd")):
		return true
	case opts.Email && strings.Contains(k, "email"):
		return true
	}
	return false
}
