package actions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"wialon-connector/internal/models"
	"wialon-connector/internal/observability"
	"wialon-connector/internal/platform/activity"
	"wialon-connector/internal/platform/sensors"
	"wialon-connector/internal/platform/state"
	"wialon-connector/internal/wialon"
	"wialon-connector/pkg/email"
	"wialon-connector/pkg/retry"
)

// VendorAPI is what the action service needs from the vendor client.
type VendorAPI interface {
	Authenticate(ctx context.Context, integration *models.Integration) (string, error)
	ListPositions(ctx context.Context, integration *models.Integration) ([]wialon.Device, error)
}

// ObservationSender delivers transformed observations to the platform.
type ObservationSender interface {
	SendObservations(ctx context.Context, integrationID string, observations []models.Observation) (*sensors.SendResult, error)
}

// ServiceInterface defines the actions the connector can run.
type ServiceInterface interface {
	Auth(ctx context.Context, integration *models.Integration) (*models.AuthResult, error)
	FetchSamples(ctx context.Context, integration *models.Integration) (*models.FetchSamplesResult, error)
	PullObservations(ctx context.Context, integration *models.Integration) *models.PullResult
}

// Service orchestrates the connector's actions against the vendor client,
// the state store and the ingestion API.
type Service struct {
	vendor VendorAPI
	sender ObservationSender
	states state.Store
	audit  activity.Logger
	log    zerolog.Logger

	// Retry governs transport-level retries around vendor fetches and
	// downstream delivery. Vendor error envelopes are never retried here.
	Retry retry.Policy

	alerts         email.ServiceInterface
	alertTemplates *email.TemplateManager
	alertRecipient string
}

func NewService(vendor VendorAPI, sender ObservationSender, states state.Store, audit activity.Logger, logger zerolog.Logger) *Service {
	return &Service{
		vendor: vendor,
		sender: sender,
		states: states,
		audit:  audit,
		log:    logger.With().Str("module", "actions").Logger(),
		Retry: retry.Policy{
			Attempts:  3,
			Wait:      10 * time.Second,
			Retryable: models.IsTransportError,
		},
	}
}

// EnableAlerts turns on operator emails for failed pull runs.
func (s *Service) EnableAlerts(sender email.ServiceInterface, templates *email.TemplateManager, recipient string) {
	s.alerts = sender
	s.alertTemplates = templates
	s.alertRecipient = recipient
}

// Auth checks that the integration's stored credential still works. A
// rejected credential or an unreachable vendor both come back as a result
// with ValidCredentials false; only a broken integration setup is an error.
func (s *Service) Auth(ctx context.Context, integration *models.Integration) (*models.AuthResult, error) {
	if _, err := s.vendor.Authenticate(ctx, integration); err != nil {
		if errors.Is(err, models.ErrConfigurationNotFound) {
			return nil, err
		}
		s.log.Warn().
			Str("integration_id", integration.ID.String()).
			Err(err).
			Msg("credential check failed")
		s.audit.Emit(ctx, activity.NewEvent(integration.ID.String(), models.ActionAuth, activity.LevelError,
			"Credential check failed", map[string]any{"error": err.Error()}))
		return &models.AuthResult{ValidCredentials: false, Error: err.Error()}, nil
	}

	s.log.Info().
		Str("integration_id", integration.ID.String()).
		Msg("credentials verified")
	return &models.AuthResult{ValidCredentials: true}, nil
}

// FetchSamples pulls the current device list and returns up to the
// configured number of raw device payloads, untransformed, for portal
// preview. It is a one-shot diagnostic call: no transport retries, and
// unlike PullObservations it surfaces failures as errors.
func (s *Service) FetchSamples(ctx context.Context, integration *models.Integration) (*models.FetchSamplesResult, error) {
	cfg, err := models.FetchSamplesConfigFor(integration)
	if err != nil {
		return nil, err
	}

	devices, err := s.vendor.ListPositions(ctx, integration)
	if err != nil {
		s.audit.Emit(ctx, activity.NewEvent(integration.ID.String(), models.ActionFetchSamples, activity.LevelError,
			"Fetching sample observations failed", map[string]any{"error": err.Error()}))
		return nil, err
	}

	limit := cfg.ObservationsToExtract
	if limit > len(devices) {
		limit = len(devices)
	}
	samples := make([]json.RawMessage, 0, limit)
	for _, device := range devices[:limit] {
		raw, err := json.Marshal(device)
		if err != nil {
			return nil, fmt.Errorf("actions.Service.FetchSamples: encode sample: %w", err)
		}
		samples = append(samples, raw)
	}

	s.log.Info().
		Str("integration_id", integration.ID.String()).
		Int("samples", len(samples)).
		Msg("fetched sample observations")
	return &models.FetchSamplesResult{
		ObservationsExtracted: len(samples),
		Observations:          samples,
	}, nil
}

// PullObservations runs one full cycle: fetch positions, keep what is newer
// than each device's watermark, deliver downstream and only then advance the
// watermarks. It never returns an error; every failure is folded into the
// result so schedulers can record it and move on.
func (s *Service) PullObservations(ctx context.Context, integration *models.Integration) *models.PullResult {
	if _, err := models.PullObservationsConfigFor(integration); err != nil {
		return s.pullFailed(ctx, integration, err)
	}

	var devices []wialon.Device
	err := retry.Do(ctx, s.Retry, func(ctx context.Context) error {
		var ferr error
		devices, ferr = s.vendor.ListPositions(ctx, integration)
		return ferr
	})
	if err != nil {
		return s.pullFailed(ctx, integration, err)
	}

	observations, marks, skipped, err := s.transform(ctx, integration, devices)
	if err != nil {
		return s.pullFailed(ctx, integration, err)
	}

	if len(skipped) > 0 {
		s.audit.Emit(ctx, activity.NewEvent(integration.ID.String(), models.ActionPullObservations, activity.LevelWarning,
			"Devices reported no position data", map[string]any{"devices": skipped}))
	}

	if len(observations) == 0 {
		s.log.Info().
			Str("integration_id", integration.ID.String()).
			Int("devices", len(devices)).
			Msg("no new observations")
		s.audit.Emit(ctx, activity.NewEvent(integration.ID.String(), models.ActionPullObservations, activity.LevelInfo,
			"No new observations to send", map[string]any{
				"devices":                  len(devices),
				"devices_without_position": len(skipped),
			}))
		return &models.PullResult{ObservationsExtracted: 0, Details: models.NoDataDetails}
	}

	err = retry.Do(ctx, s.Retry, func(ctx context.Context) error {
		_, serr := s.sender.SendObservations(ctx, integration.ID.String(), observations)
		return serr
	})
	if err != nil {
		return s.pullFailed(ctx, integration, err)
	}

	observability.ObservationsForwarded.Add(float64(len(observations)))
	s.advanceWatermarks(ctx, integration, marks)

	s.log.Info().
		Str("integration_id", integration.ID.String()).
		Int("observations_extracted", len(observations)).
		Int("devices_without_position", len(skipped)).
		Msg("pull observations finished")
	s.audit.Emit(ctx, activity.NewEvent(integration.ID.String(), models.ActionPullObservations, activity.LevelInfo,
		"Observations pulled", map[string]any{
			"observations_extracted":   len(observations),
			"devices_without_position": len(skipped),
		}))
	return &models.PullResult{ObservationsExtracted: len(observations)}
}

func (s *Service) pullFailed(ctx context.Context, integration *models.Integration, err error) *models.PullResult {
	s.log.Error().
		Str("integration_id", integration.ID.String()).
		Err(err).
		Msg("pull observations failed")
	s.audit.Emit(ctx, activity.NewEvent(integration.ID.String(), models.ActionPullObservations, activity.LevelError,
		"Pull observations failed", map[string]any{"error": err.Error()}))
	s.alertOperators(ctx, integration, err)
	return &models.PullResult{ObservationsExtracted: 0, Error: err.Error()}
}

// alertOperators emails the on-call address about a failed pull run. Alert
// failures are logged and swallowed; the run result already carries the
// original error.
func (s *Service) alertOperators(ctx context.Context, integration *models.Integration, cause error) {
	if s.alerts == nil {
		return
	}

	data := email.AlertData{
		IntegrationName: integration.Name,
		IntegrationID:   integration.ID.String(),
		ActionID:        models.ActionPullObservations,
		Message:         cause.Error(),
		OccurredAt:      time.Now().UTC().Format(time.RFC3339),
	}
	html, err := s.alertTemplates.GenerateAttentionAlertHTML(data)
	if err != nil {
		s.log.Error().Err(err).Msg("render alert email")
		return
	}
	subject := fmt.Sprintf("[wialon-connector] Attention needed: %s", integration.Name)
	if err := s.alerts.SendEmail(ctx, s.alertRecipient, subject, email.AttentionAlertText(data), html); err != nil {
		s.log.Error().Err(err).Msg("send alert email")
	}
}
