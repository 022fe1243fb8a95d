package posthog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// sendBatch delivers one batch and logs the outcome. Delivery failures
// are never retried; the HTTP client's timeout bounds each request.
func (c *Client) sendBatch(batch []Event) {
	ctx, span := otel.Tracer("hdtelemetry").Start(context.Background(), "posthog.batch", trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(attribute.Int("posthog.batch_size", len(batch)))
	defer span.End()

	if err := c.performHTTPRequest(ctx, batch); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Debug("Failed to send PostHog batch", "error", err, "events", len(batch))
		return
	}
	c.logger.Debug("Sent PostHog batch", "events", len(batch), "endpoint", c.endpoint)
}

func (c *Client) performHTTPRequest(ctx context.Context, batch []Event) error {
	body, err := json.Marshal(batchRequest{
		APIKey: c.apiKey,
		Batch:  batch,
		SentAt: c.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("HTTP request failed with status %d: %s", resp.StatusCode, string(msg))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
