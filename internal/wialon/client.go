// Package wialon implements the vendor-facing HTTP client: token login,
// session reuse and the unit search call the connector's actions are built
// on.
package wialon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/rs/zerolog"

	"wialon-connector/internal/models"
)

// sessionRetryAttempts bounds how many times ListPositions will try the
// search call, logging in fresh after each session rejection.
const sessionRetryAttempts = 3

// Client talks to the vendor API on behalf of one or more integrations.
type Client struct {
	http     *http.Client
	sessions *SessionManager
	log      zerolog.Logger
}

func NewClient(sessions *SessionManager, httpClient *http.Client, logger zerolog.Logger) *Client {
	return &Client{
		http:     httpClient,
		sessions: sessions,
		log:      logger.With().Str("module", "wialon.client").Logger(),
	}
}

// Authenticate resolves a working session id for the integration, logging in
// with the configured credential when no session is cached. A non-nil error
// with a *APIError inside means the credential itself was rejected.
func (c *Client) Authenticate(ctx context.Context, integration *models.Integration) (string, error) {
	cfg, err := models.AuthConfigFor(integration)
	if err != nil {
		return "", err
	}
	return c.sessions.Token(ctx, integration, cfg)
}

// ListPositions fetches every tracking unit visible to the integration's
// credential, with its last known position. When the vendor rejects the
// session id, the cached session is dropped and the call is repeated with a
// fresh login, up to sessionRetryAttempts tries in total.
func (c *Client) ListPositions(ctx context.Context, integration *models.Integration) ([]Device, error) {
	cfg, err := models.AuthConfigFor(integration)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 1; attempt <= sessionRetryAttempts; attempt++ {
		sid, err := c.sessions.Token(ctx, integration, cfg)
		if err != nil {
			return nil, err
		}

		devices, err := c.searchItems(ctx, integration, sid)
		if err == nil {
			return devices, nil
		}

		var apiErr *APIError
		if !errors.As(err, &apiErr) || !apiErr.InvalidSession() {
			return nil, err
		}

		lastErr = err
		c.log.Warn().
			Str("integration_id", integration.ID.String()).
			Int("attempt", attempt).
			Msg("vendor rejected session id")
		if ierr := c.sessions.Invalidate(ctx, integration.ID.String()); ierr != nil {
			return nil, ierr
		}
	}
	return nil, lastErr
}

func (c *Client) searchItems(ctx context.Context, integration *models.Integration, sid string) ([]Device, error) {
	params, err := json.Marshal(defaultSearchParams())
	if err != nil {
		return nil, fmt.Errorf("wialon.Client.searchItems: encode params: %w", err)
	}

	form := url.Values{
		"params": {string(params)},
		"sid":    {sid},
	}
	body, err := postForm(ctx, c.http, searchEndpoint, integration.BaseURL, form, "wialon.search_items")
	if err != nil {
		return nil, err
	}

	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("wialon.Client.searchItems: %w: %v", models.ErrBadPayload, err)
	}
	if resp.Error != 0 {
		return nil, &APIError{Code: resp.Error, Reason: resp.Reason}
	}
	// An explicit json null decodes to an empty list, same as a missing key.
	if resp.Items == nil || string(resp.Items) == "null" {
		return nil, fmt.Errorf("wialon.Client.searchItems: %w: response has no items list", models.ErrBadPayload)
	}

	var devices []Device
	if err := json.Unmarshal(resp.Items, &devices); err != nil {
		return nil, fmt.Errorf("wialon.Client.searchItems: %w: %v", models.ErrBadPayload, err)
	}
	return devices, nil
}
