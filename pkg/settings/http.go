package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/helpdesk/hdtelemetry/pkg/httpclient"
)

// HTTPClient is the subset of *http.Client used by HTTPProvider.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPProvider calls the settings method on a helpdesk site.
type HTTPProvider struct {
	siteURL    string
	apiKey     string
	apiSecret  string
	httpClient HTTPClient
}

type HTTPOption func(*HTTPProvider)

// WithCredentials authenticates with a helpdesk API key pair.
func WithCredentials(key, secret string) HTTPOption {
	return func(p *HTTPProvider) {
		p.apiKey = key
		p.apiSecret = secret
	}
}

func WithHTTPClient(c HTTPClient) HTTPOption {
	return func(p *HTTPProvider) {
		if c != nil {
			p.httpClient = c
		}
	}
}

func NewHTTPProvider(siteURL string, opts ...HTTPOption) (*HTTPProvider, error) {
	u, err := url.Parse(strings.TrimSpace(siteURL))
	if err != nil {
		return nil, fmt.Errorf("invalid site URL %q: %w", siteURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid site URL %q: must be an absolute http(s) URL", siteURL)
	}

	p := &HTTPProvider{
		siteURL:    strings.TrimRight(u.String(), "/"),
		httpClient: httpclient.NewHTTPClient(httpclient.WithHeader("Accept", "application/json")),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Endpoint returns the full URL of the settings method.
func (p *HTTPProvider) Endpoint() string {
	return p.siteURL + "/api/method/" + Method
}

// envelope is the wrapper every whitelisted method response comes in.
type envelope struct {
	Message *Settings `json:"message"`
}

func (p *HTTPProvider) Fetch(ctx context.Context) (s Settings, err error) {
	ctx, span := otel.Tracer("hdtelemetry").Start(ctx, "settings.fetch", trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(attribute.String("settings.endpoint", p.Endpoint()))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.Endpoint(), http.NoBody)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to create settings request: %w", err)
	}
	if p.apiKey != "" && p.apiSecret != "" {
		req.Header.Set("Authorization", "token "+p.apiKey+":"+p.apiSecret)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return Settings{}, fmt.Errorf("settings request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return Settings{}, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return Settings{}, fmt.Errorf("failed to decode settings response: %w", err)
	}
	if env.Message == nil {
		return Settings{}, errors.New("settings response has no message")
	}

	slog.Debug("Fetched telemetry settings",
		"endpoint", p.Endpoint(),
		"enabled", env.Message.Enabled,
		"has_project_id", env.Message.ProjectID != "",
		"has_host", env.Message.Host != "",
	)

	return *env.Message, nil
}
