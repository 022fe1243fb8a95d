package httpclient

import (
	"net/http"
	"time"

	"github.com/helpdesk/hdtelemetry/pkg/useragent"
)

type options struct {
	timeout time.Duration
	headers map[string]string
}

type Opt func(*options)

// WithTimeout bounds the whole request, body included.
func WithTimeout(d time.Duration) Opt {
	return func(o *options) {
		o.timeout = d
	}
}

// WithHeader sets a header on every outgoing request. Empty values are ignored.
func WithHeader(key, value string) Opt {
	return func(o *options) {
		if value == "" {
			return
		}
		if o.headers == nil {
			o.headers = map[string]string{}
		}
		o.headers[key] = value
	}
}

type headerTransport struct {
	headers map[string]string
	rt      http.RoundTripper
}

func (h *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r2 := req.Clone(req.Context())
	for k, v := range h.headers {
		r2.Header.Set(k, v)
	}
	return h.rt.RoundTrip(r2)
}

func NewHTTPClient(opts ...Opt) *http.Client {
	o := options{
		timeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(&o)
	}

	headers := map[string]string{"User-Agent": useragent.Header}
	for k, v := range o.headers {
		headers[k] = v
	}

	return &http.Client{
		Timeout: o.timeout,
		Transport: &headerTransport{
			headers: headers,
			rt:      http.DefaultTransport,
		},
	}
}
