package telemetry

import "context"

type contextKey string

const gateContextKey contextKey = "telemetry_gate"

// WithGate adds a gate to the context.
func WithGate(ctx context.Context, g *Gate) context.Context {
	return context.WithValue(ctx, gateContextKey, g)
}

// FromContext retrieves the gate from context, or nil.
func FromContext(ctx context.Context) *Gate {
	if g, ok := ctx.Value(gateContextKey).(*Gate); ok {
		return g
	}
	return nil
}

func Capture(ctx context.Context, event string, opts ...CaptureOptions) {
	if g := FromContext(ctx); g != nil {
		g.Capture(ctx, event, opts...)
	}
}

func RecordSession(ctx context.Context) {
	if g := FromContext(ctx); g != nil {
		g.RecordSession()
	}
}

func StopSession(ctx context.Context) {
	if g := FromContext(ctx); g != nil {
		g.StopSession()
	}
}
