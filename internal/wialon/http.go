package wialon

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"wialon-connector/internal/models"
	"wialon-connector/internal/observability"
)

const (
	loginEndpoint  = "ajax.html?svc=token/login"
	searchEndpoint = "ajax.html?svc=core/search_items"
)

// postForm runs one form-encoded POST against the vendor API and returns the
// raw body. Network failures, read failures and non-2xx statuses all come
// back as *models.TransportError so callers can tell them apart from vendor
// error envelopes.
func postForm(ctx context.Context, client *http.Client, endpoint string, base string, form url.Values, op string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := client.Do(req)
	if err != nil {
		observability.VendorRequests.WithLabelValues(endpoint, "error").Inc()
		return nil, &models.TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		observability.VendorRequests.WithLabelValues(endpoint, "error").Inc()
		return nil, &models.TransportError{Op: op, Err: err}
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		observability.VendorRequests.WithLabelValues(endpoint, "error").Inc()
		return nil, &models.TransportError{Op: op, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	observability.VendorRequests.WithLabelValues(endpoint, "ok").Inc()
	return body, nil
}
