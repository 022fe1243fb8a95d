// Package posthog is a small PostHog client for the telemetry gate. It
// buffers captured events and ships them to the project's /batch/
// endpoint from a single background goroutine.
package posthog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/helpdesk/hdtelemetry/pkg/httpclient"
	"github.com/helpdesk/hdtelemetry/pkg/telemetry"
	"github.com/helpdesk/hdtelemetry/pkg/version"
)

// DeliveryTimeout bounds a single /batch/ request.
const DeliveryTimeout = 10 * time.Second

// HTTPClient interface for making HTTP requests (allows mocking in tests)
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client implements telemetry.Analytics.
type Client struct {
	logger        *slog.Logger
	httpClient    HTTPClient
	bufferSize    int
	batchSize     int
	flushInterval time.Duration
	now           func() time.Time

	mu          sync.RWMutex
	apiKey      string
	endpoint    string
	cfg         telemetry.Config
	loaded      bool
	closed      bool
	anonymousID string
	distinctID  string
	sessionID   string

	events  chan Event
	flushes chan chan struct{}
	done    chan struct{}
	stopped chan struct{}
}

var _ telemetry.Analytics = (*Client)(nil)

type Option func(*Client)

func WithHTTPClient(c HTTPClient) Option {
	return func(cl *Client) {
		if c != nil {
			cl.httpClient = c
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(cl *Client) {
		if logger != nil {
			cl.logger = logger
		}
	}
}

// WithBufferSize sets how many events may wait for delivery before new
// ones are dropped.
func WithBufferSize(n int) Option {
	return func(cl *Client) {
		if n > 0 {
			cl.bufferSize = n
		}
	}
}

// WithBatchSize caps how many events go into one /batch/ request.
func WithBatchSize(n int) Option {
	return func(cl *Client) {
		if n > 0 {
			cl.batchSize = n
		}
	}
}

func WithFlushInterval(d time.Duration) Option {
	return func(cl *Client) {
		if d > 0 {
			cl.flushInterval = d
		}
	}
}

// New returns an unloaded client. Call Init before capturing.
func New(opts ...Option) *Client {
	c := &Client{
		logger:        slog.Default(),
		httpClient:    httpclient.NewHTTPClient(httpclient.WithTimeout(DeliveryTimeout)),
		bufferSize:    1000,
		batchSize:     100,
		flushInterval: 5 * time.Second,
		now:           time.Now,
		anonymousID:   uuid.NewString(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Init loads the client for projectID. Calling it again after a
// successful load is a no-op.
func (c *Client) Init(_ context.Context, projectID string, cfg telemetry.Config) error {
	if strings.TrimSpace(projectID) == "" {
		return errors.New("posthog: project id is required")
	}
	endpoint, err := batchEndpoint(cfg.Host)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.loaded {
		c.mu.Unlock()
		return nil
	}
	c.apiKey = projectID
	c.endpoint = endpoint
	c.cfg = cfg
	c.events = make(chan Event, c.bufferSize)
	c.flushes = make(chan chan struct{})
	c.done = make(chan struct{})
	c.stopped = make(chan struct{})
	c.loaded = true
	c.mu.Unlock()

	go c.run()

	c.logger.Debug("PostHog client loaded", "endpoint", endpoint)

	if cfg.Loaded != nil {
		cfg.Loaded(c)
	}
	return nil
}

func batchEndpoint(host string) (string, error) {
	host = strings.TrimSpace(host)
	if host == "" {
		return "", errors.New("posthog: api host is required")
	}
	if !strings.Contains(host, "://") {
		host = "https://" + host
	}
	u, err := url.Parse(host)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("posthog: invalid api host %q", host)
	}
	return strings.TrimRight(u.String(), "/") + "/batch/", nil
}

func (c *Client) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded && !c.closed
}

// Identify makes distinctID the identity of every later event and links
// it to the anonymous id used so far.
func (c *Client) Identify(distinctID string) {
	if distinctID == "" {
		return
	}

	c.mu.Lock()
	if !c.loaded || c.closed || c.distinctID == distinctID {
		c.mu.Unlock()
		return
	}
	c.distinctID = distinctID
	ev := c.newEventLocked(eventIdentify, map[string]any{
		"$anon_distinct_id": c.anonymousID,
	})
	c.enqueueLocked(ev)
	c.mu.Unlock()
}

// Capture queues an event. It never blocks; when the buffer is full the
// event is dropped.
func (c *Client) Capture(event string, props telemetry.Properties) error {
	if event == "" {
		return errors.New("posthog: event name is required")
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	switch {
	case !c.loaded:
		return ErrNotLoaded
	case c.closed:
		return ErrClosed
	}

	if reason := c.filteredLocked(event); reason != "" {
		c.logger.Debug("PostHog event filtered", "event", event, "reason", reason)
		return nil
	}

	c.enqueueLocked(c.newEventLocked(event, maskProperties(props, c.cfg.SessionRecording)))
	return nil
}

func (c *Client) filteredLocked(event string) string {
	switch {
	case event == eventAutocap && !c.cfg.Autocapture:
		return "autocapture_disabled"
	case event == eventPageview && !c.cfg.CapturePageview:
		return "pageview_disabled"
	case event == eventPageleave && !c.cfg.CapturePageleave:
		return "pageleave_disabled"
	}
	return ""
}

func (c *Client) newEventLocked(name string, props map[string]any) Event {
	properties := make(map[string]any, len(props)+4)
	for k, v := range props {
		properties[k] = v
	}
	properties["$lib"] = LibName
	properties["$lib_version"] = version.Version
	if c.sessionID != "" {
		properties["$session_id"] = c.sessionID
	}

	distinctID := c.distinctID
	if distinctID == "" {
		distinctID = c.anonymousID
		if c.cfg.PersonProfiles == telemetry.PersonProfilesIdentifiedOnly {
			properties["$process_person_profile"] = false
		}
	}

	return Event{
		UUID:       uuid.NewString(),
		Event:      name,
		DistinctID: distinctID,
		Properties: properties,
		Timestamp:  c.now().UTC(),
	}
}

func (c *Client) enqueueLocked(ev Event) {
	select {
	case c.events <- ev:
	default:
		c.logger.Warn("PostHog event dropped", "reason", "buffer_full", "event", ev.Event)
	}
}

func (c *Client) StartSessionRecording() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.loaded || c.closed || c.cfg.DisableSessionRecording || c.sessionID != "" {
		return
	}
	c.sessionID = uuid.NewString()
	c.logger.Debug("PostHog session recording started", "session_id", c.sessionID)
}

func (c *Client) StopSessionRecording() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sessionID == "" {
		return
	}
	c.logger.Debug("PostHog session recording stopped", "session_id", c.sessionID)
	c.sessionID = ""
}

func (c *Client) SessionRecordingStarted() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID != ""
}

// currentSessionID returns the id of the active recording, or "".
func (c *Client) currentSessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}

// DistinctID returns the id events are currently attributed to.
func (c *Client) DistinctID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.distinctID != "" {
		return c.distinctID
	}
	return c.anonymousID
}

// Flush sends everything queued so far and waits for the request.
func (c *Client) Flush(ctx context.Context) error {
	c.mu.RLock()
	loaded, closed := c.loaded, c.closed
	flushes, stopped := c.flushes, c.stopped
	c.mu.RUnlock()

	if !loaded {
		return nil
	}
	if closed {
		return ErrClosed
	}

	ack := make(chan struct{})
	select {
	case flushes <- ack:
	case <-stopped:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-ack:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close delivers queued events and stops the background goroutine.
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	if !c.loaded || c.closed {
		c.closed = true
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.sessionID = ""
	done, stopped := c.done, c.stopped
	c.mu.Unlock()

	close(done)

	select {
	case <-stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) run() {
	defer close(c.stopped)

	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()

	var batch []Event
	send := func() {
		if len(batch) == 0 {
			return
		}
		c.sendBatch(batch)
		batch = nil
	}

	for {
		select {
		case ev := <-c.events:
			batch = append(batch, ev)
			if len(batch) >= c.batchSize {
				send()
			}
		case <-ticker.C:
			send()
		case ack := <-c.flushes:
			batch = c.drain(batch)
			send()
			close(ack)
		case <-c.done:
			batch = c.drain(batch)
			send()
			return
		}
	}
}

// drain moves every event waiting in the channel into batch.
func (c *Client) drain(batch []Event) []Event {
	for {
		select {
		case ev := <-c.events:
			batch = append(batch, ev)
		default:
			return batch
		}
	}
}
