package posthog

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helpdesk/hdtelemetry/pkg/settings"
	"github.com/helpdesk/hdtelemetry/pkg/telemetry"
)

// MockHTTPClient captures HTTP requests for testing
type MockHTTPClient struct {
	*http.Client
	mu       sync.Mutex
	requests []*http.Request
	bodies   [][]byte
	status   int
}

func NewMockHTTPClient() *MockHTTPClient {
	mock := &MockHTTPClient{status: http.StatusOK}
	mock.Client = &http.Client{Transport: mock}
	return mock
}

func (m *MockHTTPClient) SetStatus(status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = status
}

// RoundTrip implements http.RoundTripper and captures the request
func (m *MockHTTPClient) RoundTrip(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	body, _ := io.ReadAll(req.Body)
	m.requests = append(m.requests, req)
	m.bodies = append(m.bodies, body)

	return &http.Response{
		StatusCode: m.status,
		Body:       io.NopCloser(bytes.NewReader([]byte(`{"status": 1}`))),
		Header:     make(http.Header),
	}, nil
}

func (m *MockHTTPClient) GetRequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

func (m *MockHTTPClient) GetRequests() []*http.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*http.Request{}, m.requests...)
}

// Events decodes every captured batch and returns their events in order.
func (m *MockHTTPClient) Events(t *testing.T) []Event {
	t.Helper()

	m.mu.Lock()
	defer m.mu.Unlock()

	var events []Event
	for _, body := range m.bodies {
		var req batchRequest
		require.NoError(t, json.Unmarshal(body, &req))
		events = append(events, req.Batch...)
	}
	return events
}

func newLoadedClient(t *testing.T, cfg telemetry.Config, opts ...Option) (*Client, *MockHTTPClient) {
	t.Helper()

	mockHTTP := NewMockHTTPClient()
	c := New(append([]Option{WithHTTPClient(mockHTTP.Client), WithFlushInterval(time.Hour)}, opts...)...)
	require.NoError(t, c.Init(t.Context(), "phc_project", cfg))
	t.Cleanup(func() { _ = c.Close(context.Background()) })

	return c, mockHTTP
}

func eventNames(events []Event) []string {
	names := make([]string, len(events))
	for i, ev := range events {
		names[i] = ev.Event
	}
	return names
}

func TestNew_DefaultHTTPClient(t *testing.T) {
	t.Parallel()

	hc, ok := New().httpClient.(*http.Client)
	require.True(t, ok)
	assert.Equal(t, DeliveryTimeout, hc.Timeout)
}

func TestNew_SizingOptions(t *testing.T) {
	t.Parallel()

	c := New(WithBufferSize(10), WithBatchSize(2), WithFlushInterval(time.Second))
	assert.Equal(t, 10, c.bufferSize)
	assert.Equal(t, 2, c.batchSize)
	assert.Equal(t, time.Second, c.flushInterval)

	c = New(WithBufferSize(0), WithBatchSize(-1), WithFlushInterval(0))
	assert.Equal(t, 1000, c.bufferSize)
	assert.Equal(t, 100, c.batchSize)
	assert.Equal(t, 5*time.Second, c.flushInterval)
}

func TestInit_Validation(t *testing.T) {
	t.Parallel()

	c := New()
	require.Error(t, c.Init(t.Context(), "", telemetry.DefaultConfig("h1")))
	require.Error(t, c.Init(t.Context(), "p1", telemetry.DefaultConfig("")))
	require.Error(t, c.Init(t.Context(), "p1", telemetry.DefaultConfig("https://")))
	assert.False(t, c.Loaded())
}

func TestBatchEndpoint(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"h1":                          "https://h1/batch/",
		"https://eu.i.posthog.com":    "https://eu.i.posthog.com/batch/",
		"https://eu.i.posthog.com/":   "https://eu.i.posthog.com/batch/",
		"http://localhost:8010/ingest": "http://localhost:8010/ingest/batch/",
	}
	for host, want := range tests {
		got, err := batchEndpoint(host)
		require.NoError(t, err, host)
		assert.Equal(t, want, got)
	}
}

func TestInit_CallsLoadedOnce(t *testing.T) {
	t.Parallel()

	loadedCalls := 0
	cfg := telemetry.DefaultConfig("h1")
	cfg.Loaded = func(a telemetry.Analytics) {
		loadedCalls++
		assert.True(t, a.Loaded())
	}

	c, _ := newLoadedClient(t, cfg)
	require.NoError(t, c.Init(t.Context(), "phc_project", cfg))

	assert.Equal(t, 1, loadedCalls)
}

func TestCapture_NotLoaded(t *testing.T) {
	t.Parallel()

	c := New()
	require.ErrorIs(t, c.Capture("helpdesk_ticket_created", nil), ErrNotLoaded)
}

func TestCapture_DeliversBatch(t *testing.T) {
	t.Parallel()

	c, mockHTTP := newLoadedClient(t, telemetry.DefaultConfig("h1"))

	require.NoError(t, c.Capture("helpdesk_ticket_created", telemetry.Properties{"data": map[string]any{"user": "agent@example.com"}}))
	require.NoError(t, c.Flush(t.Context()))

	requests := mockHTTP.GetRequests()
	require.Len(t, requests, 1)
	assert.Equal(t, http.MethodPost, requests[0].Method)
	assert.Equal(t, "https://h1/batch/", requests[0].URL.String())
	assert.Equal(t, "application/json", requests[0].Header.Get("Content-Type"))

	events := mockHTTP.Events(t)
	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, "helpdesk_ticket_created", ev.Event)
	assert.NotEmpty(t, ev.UUID)
	assert.Equal(t, c.DistinctID(), ev.DistinctID)
	assert.Equal(t, LibName, ev.Properties["$lib"])
	assert.Equal(t, map[string]any{"user": "agent@example.com"}, ev.Properties["data"])
}

func TestCapture_APIKey(t *testing.T) {
	t.Parallel()

	c, mockHTTP := newLoadedClient(t, telemetry.DefaultConfig("h1"))
	require.NoError(t, c.Capture("helpdesk_ticket_created", nil))
	require.NoError(t, c.Flush(t.Context()))

	mockHTTP.mu.Lock()
	defer mockHTTP.mu.Unlock()
	require.Len(t, mockHTTP.bodies, 1)

	var req batchRequest
	require.NoError(t, json.Unmarshal(mockHTTP.bodies[0], &req))
	assert.Equal(t, "phc_project", req.APIKey)
	assert.False(t, req.SentAt.IsZero())
}

func TestCapture_PersonProfiles(t *testing.T) {
	t.Parallel()

	c, mockHTTP := newLoadedClient(t, telemetry.DefaultConfig("h1"))
	anonymousID := c.DistinctID()

	require.NoError(t, c.Capture("helpdesk_before_identify", nil))
	c.Identify("desk.example.com")
	require.NoError(t, c.Capture("helpdesk_after_identify", nil))
	require.NoError(t, c.Flush(t.Context()))

	events := mockHTTP.Events(t)
	require.Equal(t, []string{"helpdesk_before_identify", "$identify", "helpdesk_after_identify"}, eventNames(events))

	assert.Equal(t, anonymousID, events[0].DistinctID)
	assert.Equal(t, false, events[0].Properties["$process_person_profile"])

	assert.Equal(t, "desk.example.com", events[1].DistinctID)
	assert.Equal(t, anonymousID, events[1].Properties["$anon_distinct_id"])

	assert.Equal(t, "desk.example.com", events[2].DistinctID)
	assert.NotContains(t, events[2].Properties, "$process_person_profile")
}

func TestIdentify_SameIDOnce(t *testing.T) {
	t.Parallel()

	c, mockHTTP := newLoadedClient(t, telemetry.DefaultConfig("h1"))
	c.Identify("desk.example.com")
	c.Identify("desk.example.com")
	c.Identify("")
	require.NoError(t, c.Flush(t.Context()))

	assert.Equal(t, []string{"$identify"}, eventNames(mockHTTP.Events(t)))
}

func TestCapture_Filters(t *testing.T) {
	t.Parallel()

	t.Run("default config", func(t *testing.T) {
		t.Parallel()

		c, mockHTTP := newLoadedClient(t, telemetry.DefaultConfig("h1"))
		for _, name := range []string{"$autocapture", "$pageview", "$pageleave"} {
			require.NoError(t, c.Capture(name, nil))
		}
		require.NoError(t, c.Flush(t.Context()))

		assert.Equal(t, []string{"$pageview", "$pageleave"}, eventNames(mockHTTP.Events(t)))
	})

	t.Run("page captures off", func(t *testing.T) {
		t.Parallel()

		cfg := telemetry.DefaultConfig("h1")
		cfg.CapturePageview = false
		cfg.CapturePageleave = false
		cfg.Autocapture = true

		c, mockHTTP := newLoadedClient(t, cfg)
		for _, name := range []string{"$autocapture", "$pageview", "$pageleave"} {
			require.NoError(t, c.Capture(name, nil))
		}
		require.NoError(t, c.Flush(t.Context()))

		assert.Equal(t, []string{"$autocapture"}, eventNames(mockHTTP.Events(t)))
	})
}

func TestCapture_MasksInputs(t *testing.T) {
	t.Parallel()

	c, mockHTTP := newLoadedClient(t, telemetry.DefaultConfig("h1"))
	require.NoError(t, c.Capture("helpdesk_login_failed", telemetry.Properties{
		"data": map[string]any{
			"user":     "agent@example.com",
			"password": "hunter2",
			"fields":   []any{map[string]any{"new_password": "abc"}},
		},
	}))
	require.NoError(t, c.Flush(t.Context()))

	events := mockHTTP.Events(t)
	require.Len(t, events, 1)
	data := events[0].Properties["data"].(map[string]any)
	assert.Equal(t, "agent@example.com", data["user"])
	assert.Equal(t, "*******", data["password"])
	assert.Equal(t, []any{map[string]any{"new_password": "***"}}, data["fields"])
}

func TestMaskProperties_MaskAllInputs(t *testing.T) {
	t.Parallel()

	got := maskProperties(map[string]any{
		"user":  "ab",
		"count": 3.0,
		"email": "a@b.c",
	}, telemetry.SessionRecordingConfig{MaskAllInputs: true})

	assert.Equal(t, map[string]any{"user": "**", "count": 3.0, "email": "*****"}, got)
}

func TestMaskProperties_Email(t *testing.T) {
	t.Parallel()

	got := maskProperties(map[string]any{"user_email": "a@b.c", "user": "x"},
		telemetry.SessionRecordingConfig{MaskInputOptions: telemetry.MaskInputOptions{Email: true}})

	assert.Equal(t, map[string]any{"user_email": "*****", "user": "x"}, got)
}

func TestSessionRecording(t *testing.T) {
	t.Parallel()

	c, mockHTTP := newLoadedClient(t, telemetry.DefaultConfig("h1"))
	assert.False(t, c.SessionRecordingStarted())

	c.StartSessionRecording()
	require.True(t, c.SessionRecordingStarted())
	sessionID := c.currentSessionID()
	require.NotEmpty(t, sessionID)

	c.StartSessionRecording()
	assert.Equal(t, sessionID, c.currentSessionID(), "starting twice keeps the session")

	require.NoError(t, c.Capture("helpdesk_during", nil))
	c.StopSessionRecording()
	require.NoError(t, c.Capture("helpdesk_after", nil))
	require.NoError(t, c.Flush(t.Context()))

	assert.False(t, c.SessionRecordingStarted())

	events := mockHTTP.Events(t)
	require.Len(t, events, 2)
	assert.Equal(t, sessionID, events[0].Properties["$session_id"])
	assert.NotContains(t, events[1].Properties, "$session_id")
}

func TestSessionRecording_Disabled(t *testing.T) {
	t.Parallel()

	cfg := telemetry.DefaultConfig("h1")
	cfg.DisableSessionRecording = true

	c, _ := newLoadedClient(t, cfg)
	c.StartSessionRecording()
	assert.False(t, c.SessionRecordingStarted())
}

func TestSessionRecording_NotLoaded(t *testing.T) {
	t.Parallel()

	c := New()
	c.StartSessionRecording()
	assert.False(t, c.SessionRecordingStarted())
}

func TestBatchSize(t *testing.T) {
	t.Parallel()

	c, mockHTTP := newLoadedClient(t, telemetry.DefaultConfig("h1"), WithBatchSize(2))
	for range 4 {
		require.NoError(t, c.Capture("helpdesk_ticket_viewed", nil))
	}

	require.Eventually(t, func() bool {
		return mockHTTP.GetRequestCount() == 2
	}, time.Second, 5*time.Millisecond)
}

func TestFlushInterval(t *testing.T) {
	t.Parallel()

	mockHTTP := NewMockHTTPClient()
	c := New(WithHTTPClient(mockHTTP.Client), WithFlushInterval(10*time.Millisecond))
	require.NoError(t, c.Init(t.Context(), "phc_project", telemetry.DefaultConfig("h1")))
	defer c.Close(t.Context())

	require.NoError(t, c.Capture("helpdesk_ticket_viewed", nil))

	require.Eventually(t, func() bool {
		return mockHTTP.GetRequestCount() > 0
	}, time.Second, 5*time.Millisecond)
}

func TestClose(t *testing.T) {
	t.Parallel()

	mockHTTP := NewMockHTTPClient()
	c := New(WithHTTPClient(mockHTTP.Client), WithFlushInterval(time.Hour))
	require.NoError(t, c.Init(t.Context(), "phc_project", telemetry.DefaultConfig("h1")))

	require.NoError(t, c.Capture("helpdesk_ticket_closed", nil))
	require.NoError(t, c.Close(t.Context()))
	require.NoError(t, c.Close(t.Context()))

	assert.Equal(t, []string{"helpdesk_ticket_closed"}, eventNames(mockHTTP.Events(t)))
	assert.False(t, c.Loaded())
	require.ErrorIs(t, c.Capture("helpdesk_ticket_closed", nil), ErrClosed)
	require.ErrorIs(t, c.Flush(t.Context()), ErrClosed)
	require.ErrorIs(t, c.Init(t.Context(), "phc_project", telemetry.DefaultConfig("h1")), ErrClosed)
}

func TestDeliveryFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	c, mockHTTP := newLoadedClient(t, telemetry.DefaultConfig("h1"))
	mockHTTP.SetStatus(http.StatusServiceUnavailable)

	require.NoError(t, c.Capture("helpdesk_ticket_created", nil))
	require.NoError(t, c.Flush(t.Context()))
	assert.Equal(t, 1, mockHTTP.GetRequestCount())

	mockHTTP.SetStatus(http.StatusOK)
	require.NoError(t, c.Capture("helpdesk_ticket_created", nil))
	require.NoError(t, c.Flush(t.Context()))
	assert.Equal(t, 2, mockHTTP.GetRequestCount())
}

func TestGateWithPostHog(t *testing.T) {
	t.Parallel()

	mockHTTP := NewMockHTTPClient()
	client := New(WithHTTPClient(mockHTTP.Client), WithFlushInterval(time.Hour))
	gate := telemetry.New(
		settings.Static{Enabled: true, ProjectID: "p1", Host: "h1"},
		client,
		telemetry.WithSiteName("desk.example.com"),
	)
	t.Cleanup(func() { _ = gate.Close(context.Background()) })

	require.NoError(t, gate.Load(t.Context()))
	require.True(t, gate.IsEnabled())

	gate.RecordSession()
	gate.Capture(t.Context(), "ticket_created", telemetry.CaptureOptions{Data: map[string]any{"user": "agent@example.com"}})
	gate.StopSession()
	require.NoError(t, client.Flush(t.Context()))

	requests := mockHTTP.GetRequests()
	require.NotEmpty(t, requests)
	assert.Equal(t, "https://h1/batch/", requests[0].URL.String())

	events := mockHTTP.Events(t)
	require.Equal(t, []string{"$identify", "helpdesk_ticket_created"}, eventNames(events))
	assert.Equal(t, "desk.example.com", events[1].DistinctID)
	assert.NotEmpty(t, events[1].Properties["$session_id"])
	assert.False(t, client.SessionRecordingStarted())
}

func TestGateDisabledMakesNoRequests(t *testing.T) {
	t.Parallel()

	mockHTTP := NewMockHTTPClient()
	client := New(WithHTTPClient(mockHTTP.Client), WithFlushInterval(time.Millisecond))
	gate := telemetry.New(settings.Static{Enabled: false, ProjectID: "p1", Host: "h1"}, client)

	require.NoError(t, gate.Load(t.Context()))
	gate.Capture(t.Context(), "ticket_created", telemetry.CaptureOptions{Data: map[string]any{"user": "a@example.com"}})
	gate.RecordSession()

	assert.False(t, client.Loaded())
	require.NoError(t, client.Flush(t.Context()))
	assert.Zero(t, mockHTTP.GetRequestCount())
}
