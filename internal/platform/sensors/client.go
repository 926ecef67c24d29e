// Package sensors is the client for the platform's observation ingestion
// API, the downstream every pull run delivers into.
package sensors

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2/clientcredentials"

	"wialon-connector/internal/models"
)

const defaultTimeout = 120 * time.Second

// SendResult reports what the ingestion API did with a batch.
type SendResult struct {
	Accepted int    `json:"accepted"`
	Status   string `json:"status,omitempty"`
}

// Client posts observation batches to the ingestion API.
type Client struct {
	baseURL string
	http    *http.Client
	log     zerolog.Logger
}

type Option func(*Client)

// WithClientCredentials authenticates every request with an OAuth2
// client-credentials token fetched from tokenURL.
func WithClientCredentials(ctx context.Context, tokenURL, clientID, clientSecret string) Option {
	return func(c *Client) {
		cfg := clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			TokenURL:     tokenURL,
		}
		c.http = cfg.Client(ctx)
		c.http.Timeout = defaultTimeout
	}
}

// WithHTTPClient swaps the underlying HTTP client, mainly for tests.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.http = httpClient
	}
}

func NewClient(baseURL string, logger zerolog.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: defaultTimeout},
		log:     logger.With().Str("module", "sensors.client").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type sendRequest struct {
	IntegrationID string               `json:"integration_id"`
	Observations  []models.Observation `json:"observations"`
}

// SendObservations delivers one batch for an integration. Network failures
// and non-2xx statuses come back as *models.TransportError so orchestrators
// can retry them.
func (c *Client) SendObservations(ctx context.Context, integrationID string, observations []models.Observation) (*SendResult, error) {
	payload, err := json.Marshal(sendRequest{IntegrationID: integrationID, Observations: observations})
	if err != nil {
		return nil, fmt.Errorf("sensors.Client.SendObservations: encode batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/observations", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("sensors.Client.SendObservations: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &models.TransportError{Op: "sensors.send_observations", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &models.TransportError{Op: "sensors.send_observations", Err: err}
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &models.TransportError{Op: "sensors.send_observations", Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	result := &SendResult{Accepted: len(observations), Status: resp.Status}
	if len(body) > 0 {
		if err := json.Unmarshal(body, result); err != nil {
			c.log.Warn().Err(err).Msg("ingestion response not decodable, assuming batch accepted")
		}
	}

	c.log.Info().
		Str("integration_id", integrationID).
		Int("observations", len(observations)).
		Int("accepted", result.Accepted).
		Msg("delivered observations")
	return result, nil
}
