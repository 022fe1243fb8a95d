package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/helpdesk/hdtelemetry/pkg/settings"
	hdsync "github.com/helpdesk/hdtelemetry/pkg/sync"
)

// State mirrors the settings once the gate has been enabled, which
// happens only after the analytics client initialized successfully.
type State struct {
	Enabled   bool   `json:"enabled"`
	ProjectID string `json:"project_id"`
	Host      string `json:"host"`
}

// CaptureOptions is forwarded to the analytics client as the "data"
// property of a captured event.
type CaptureOptions struct {
	Data map[string]any `json:"data"`
}

func defaultCaptureOptions() CaptureOptions {
	return CaptureOptions{Data: map[string]any{"user": ""}}
}

// Gate decides whether telemetry may run and guards every call into the
// analytics client. It starts Disabled and moves to Enabled at most once.
type Gate struct {
	logger        *telemetryLogger
	app           string
	siteName      string
	forceDisabled bool

	provider settings.Provider
	client   Analytics
	load     func(context.Context) (struct{}, error)
	initOnce sync.Once

	mu       sync.RWMutex
	settings *settings.Settings
	state    State
}

type Option func(*Gate)

// WithApp sets the tag captured event names are prefixed with.
func WithApp(app string) Option {
	return func(g *Gate) {
		if app != "" {
			g.app = app
		}
	}
}

// WithSiteName sets the identity assigned to the client once it loads.
func WithSiteName(name string) Option {
	return func(g *Gate) {
		g.siteName = name
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) {
		g.logger = newTelemetryLogger(logger)
	}
}

// WithForceDisabled keeps the gate Disabled whatever the settings say.
func WithForceDisabled(disabled bool) Option {
	return func(g *Gate) {
		g.forceDisabled = disabled
	}
}

// New returns a Disabled gate. Nothing is fetched until Load is called.
func New(provider settings.Provider, client Analytics, opts ...Option) *Gate {
	g := &Gate{
		logger:   newTelemetryLogger(nil),
		app:      DefaultApp,
		provider: provider,
		client:   client,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.load = hdsync.OnceErrCtx(g.fetchAndInit)
	return g
}

// Load fetches the settings and initializes the gate from them. Only the
// first call does any work; later calls return the first call's error.
// A fetch error leaves the gate Disabled for the life of the process.
func (g *Gate) Load(ctx context.Context) error {
	_, err := g.load(ctx)
	return err
}

func (g *Gate) fetchAndInit(ctx context.Context) (struct{}, error) {
	if g.provider == nil {
		g.logger.Debug("No settings provider, telemetry stays disabled")
		return struct{}{}, settings.ErrNotFetched
	}

	s, err := g.provider.Fetch(ctx)
	if err != nil {
		g.logger.Warn("Failed to fetch telemetry settings", "error", err)
		return struct{}{}, fmt.Errorf("fetching telemetry settings: %w", err)
	}

	g.Init(ctx, s)
	return struct{}{}, nil
}

// IsEnabled reports whether settings have been received, telemetry is
// switched on, and both a project id and a host are set.
func (g *Gate) IsEnabled() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.isEnabledLocked()
}

func (g *Gate) isEnabledLocked() bool {
	if g.forceDisabled || g.settings == nil {
		return false
	}
	return g.settings.Valid()
}

// Init records s as the gate's settings and, if they permit telemetry,
// constructs the analytics client and enables the gate. Settings are
// recorded only once; repeated calls reuse the first ones. Client
// construction failures are logged and swallowed, and leave the gate
// Disabled for the rest of the process.
func (g *Gate) Init(ctx context.Context, s settings.Settings) {
	g.mu.Lock()
	if g.settings == nil {
		g.settings = &s
	}
	enabled := g.isEnabledLocked()
	current := *g.settings
	g.mu.Unlock()

	if !enabled {
		g.logger.Debug("Telemetry disabled",
			"forced", g.forceDisabled,
			"enabled", current.Enabled,
			"has_project_id", current.ProjectID != "",
			"has_host", current.Host != "",
		)
		return
	}

	g.initOnce.Do(func() {
		if err := g.initClient(ctx, current); err != nil {
			g.logger.Error("Failed to initialize telemetry", "error", err)
			return
		}

		g.mu.Lock()
		g.state = State{
			Enabled:   true,
			ProjectID: current.ProjectID,
			Host:      current.Host,
		}
		g.mu.Unlock()
	})
}

func (g *Gate) initClient(ctx context.Context, s settings.Settings) (err error) {
	if g.client == nil {
		return errors.New("no analytics client configured")
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("analytics client panicked: %v", r)
		}
	}()

	cfg := DefaultConfig(s.Host)
	cfg.Loaded = func(a Analytics) {
		if g.siteName != "" {
			a.Identify(g.siteName)
		}
		g.logger.Debug("Analytics client loaded", "site", g.siteName, "host", s.Host)
	}

	return g.client.Init(ctx, s.ProjectID, cfg)
}

// Capture sends "<app>_<event>" to the analytics client. It does nothing
// unless the gate is Enabled. Without options the event carries an
// empty user.
func (g *Gate) Capture(_ context.Context, event string, opts ...CaptureOptions) {
	if !g.Snapshot().Enabled || g.client == nil {
		return
	}

	o := defaultCaptureOptions()
	if len(opts) > 0 && opts[0].Data != nil {
		o = opts[0]
	}

	name := g.app + "_" + event
	if err := g.client.Capture(name, Properties{"data": o.Data}); err != nil {
		g.logger.Debug("Event not captured", "event", name, "error", err)
	}
}

// RecordSession starts session recording once the client has loaded.
func (g *Gate) RecordSession() {
	if !g.Snapshot().Enabled {
		return
	}
	if g.client != nil && g.client.Loaded() {
		g.client.StartSessionRecording()
	}
}

// StopSession stops a running session recording.
func (g *Gate) StopSession() {
	if !g.Snapshot().Enabled {
		return
	}
	if g.client != nil && g.client.Loaded() && g.client.SessionRecordingStarted() {
		g.client.StopSessionRecording()
	}
}

// Snapshot returns the current gate state.
func (g *Gate) Snapshot() State {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state
}

// Settings returns the recorded settings, if any have been received.
func (g *Gate) Settings() (settings.Settings, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.settings == nil {
		return settings.Settings{}, false
	}
	return *g.settings, true
}

// App returns the event name prefix.
func (g *Gate) App() string {
	return g.app
}

// Close flushes the analytics client when it buffers events.
func (g *Gate) Close(ctx context.Context) error {
	if f, ok := g.client.(flusher); ok {
		return f.Close(ctx)
	}
	return nil
}
