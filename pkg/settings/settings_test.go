package settings

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettingsValid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		settings Settings
		want     bool
	}{
		{name: "zero value", settings: Settings{}, want: false},
		{name: "disabled", settings: Settings{Enabled: false, ProjectID: "p1", Host: "h1"}, want: false},
		{name: "missing project", settings: Settings{Enabled: true, Host: "h1"}, want: false},
		{name: "missing host", settings: Settings{Enabled: true, ProjectID: "p1"}, want: false},
		{name: "complete", settings: Settings{Enabled: true, ProjectID: "p1", Host: "h1"}, want: true},
		{name: "site age is ignored", settings: Settings{Enabled: true, ProjectID: "p1", Host: "h1", SiteAge: 0.5}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.settings.Valid())
		})
	}
}

func TestNewHTTPProvider_InvalidURL(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"", "desk.example.com", "ftp://desk.example.com", "http://"} {
		_, err := NewHTTPProvider(raw)
		assert.Error(t, err, raw)
	}
}

func TestHTTPProvider_Endpoint(t *testing.T) {
	t.Parallel()

	p, err := NewHTTPProvider("https://desk.example.com/")
	require.NoError(t, err)
	assert.Equal(t, "https://desk.example.com/api/method/helpdesk.api.telemetry.get_posthog_settings", p.Endpoint())
}

func TestHTTPProvider_Fetch(t *testing.T) {
	t.Parallel()

	var gotPath, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"message": {"enable_telemetry": true, "posthog_project_id": "p1", "posthog_host": "h1", "telemetry_site_age": 12}}`))
	}))
	defer srv.Close()

	p, err := NewHTTPProvider(srv.URL, WithCredentials("key", "secret"), WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	s, err := p.Fetch(t.Context())
	require.NoError(t, err)

	assert.Equal(t, "/api/method/"+Method, gotPath)
	assert.Equal(t, "token key:secret", gotAuth)
	assert.Equal(t, Settings{Enabled: true, ProjectID: "p1", Host: "h1", SiteAge: 12}, s)
}

func TestHTTPProvider_FetchWithoutCredentials(t *testing.T) {
	t.Parallel()

	var gotAuth, gotAccept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotAccept = r.Header.Get("Accept")
		_, _ = w.Write([]byte(`{"message": {"enable_telemetry": false}}`))
	}))
	defer srv.Close()

	p, err := NewHTTPProvider(srv.URL, WithCredentials("key", ""))
	require.NoError(t, err)

	s, err := p.Fetch(t.Context())
	require.NoError(t, err)
	assert.Empty(t, gotAuth)
	assert.Equal(t, "application/json", gotAccept)
	assert.False(t, s.Valid())
}

func TestHTTPProvider_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		status  int
		body    string
		checkFn func(t *testing.T, err error)
	}{
		{
			name:   "forbidden",
			status: http.StatusForbidden,
			body:   `{"exc_type": "PermissionError"}`,
			checkFn: func(t *testing.T, err error) {
				t.Helper()
				var statusErr *StatusError
				require.ErrorAs(t, err, &statusErr)
				assert.Equal(t, http.StatusForbidden, statusErr.StatusCode)
				assert.Contains(t, statusErr.Error(), "PermissionError")
			},
		},
		{
			name:   "malformed json",
			status: http.StatusOK,
			body:   `{"message": `,
			checkFn: func(t *testing.T, err error) {
				t.Helper()
				assert.ErrorContains(t, err, "decode")
			},
		},
		{
			name:   "missing message",
			status: http.StatusOK,
			body:   `{}`,
			checkFn: func(t *testing.T, err error) {
				t.Helper()
				assert.ErrorContains(t, err, "no message")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			p, err := NewHTTPProvider(srv.URL)
			require.NoError(t, err)

			_, err = p.Fetch(t.Context())
			require.Error(t, err)
			tt.checkFn(t, err)
		})
	}
}

func countingProvider(s Settings, err error) (Provider, *atomic.Int32) {
	var calls atomic.Int32
	return ProviderFunc(func(context.Context) (Settings, error) {
		calls.Add(1)
		return s, err
	}), &calls
}

func TestCachedProvider(t *testing.T) {
	t.Parallel()

	want := Settings{Enabled: true, ProjectID: "p1", Host: "h1"}
	upstream, calls := countingProvider(want, nil)
	cached := NewCachedProvider(upstream, time.Hour)

	for range 3 {
		got, err := cached.Fetch(t.Context())
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	assert.Equal(t, int32(1), calls.Load())

	cached.Invalidate()
	_, err := cached.Fetch(t.Context())
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestCachedProvider_DoesNotCacheErrors(t *testing.T) {
	t.Parallel()

	upstream, calls := countingProvider(Settings{}, errors.New("unreachable"))
	cached := NewCachedProvider(upstream, 0)

	for range 2 {
		_, err := cached.Fetch(t.Context())
		require.Error(t, err)
	}
	assert.Equal(t, int32(2), calls.Load())
}

func TestCachedProvider_UpstreamIgnoresCallerCancellation(t *testing.T) {
	t.Parallel()

	want := Settings{Enabled: true, ProjectID: "p1", Host: "h1"}
	upstream := ProviderFunc(func(ctx context.Context) (Settings, error) {
		if err := ctx.Err(); err != nil {
			return Settings{}, err
		}
		return want, nil
	})
	cached := NewCachedProvider(upstream, time.Hour)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	got, err := cached.Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestStatic(t *testing.T) {
	t.Parallel()

	want := Settings{Enabled: true, ProjectID: "p1", Host: "h1"}
	got, err := Static(want).Fetch(t.Context())
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
