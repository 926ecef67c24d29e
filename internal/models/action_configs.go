package models

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var configValidate = validator.New()

// AuthConfig holds the secret Wialon API token exchanged for a session id.
type AuthConfig struct {
	Token string `json:"token" validate:"required"`
}

// FetchSamplesConfig bounds how many raw device records the diagnostic
// fetch_samples action returns.
type FetchSamplesConfig struct {
	ObservationsToExtract int `json:"observations_to_extract" validate:"min=1"`
}

// DefaultObservationsToExtract is applied when the block omits the field.
const DefaultObservationsToExtract = 20

// PullObservationsConfig configures the recurring pull job. It carries no
// fields yet, but the block must still be present on the integration.
type PullObservationsConfig struct{}

// AuthConfigFor parses the integration's "auth" configuration block.
func AuthConfigFor(integration *Integration) (AuthConfig, error) {
	var cfg AuthConfig
	if err := parseActionConfig(integration, ActionAuth, &cfg); err != nil {
		return AuthConfig{}, err
	}
	return cfg, nil
}

// FetchSamplesConfigFor parses the integration's "fetch_samples" block,
// applying the default extraction bound when the field is absent.
func FetchSamplesConfigFor(integration *Integration) (FetchSamplesConfig, error) {
	cfg := FetchSamplesConfig{ObservationsToExtract: DefaultObservationsToExtract}
	if err := parseActionConfig(integration, ActionFetchSamples, &cfg); err != nil {
		return FetchSamplesConfig{}, err
	}
	return cfg, nil
}

// PullObservationsConfigFor parses the integration's "pull_observations"
// block.
func PullObservationsConfigFor(integration *Integration) (PullObservationsConfig, error) {
	var cfg PullObservationsConfig
	if err := parseActionConfig(integration, ActionPullObservations, &cfg); err != nil {
		return PullObservationsConfig{}, err
	}
	return cfg, nil
}

// parseActionConfig locates the block for actionID and decodes its Data into
// the typed config via a JSON round-trip, then validates the result. A
// missing block yields ErrConfigurationNotFound with an operator-facing
// message identifying the integration.
func parseActionConfig(integration *Integration, actionID string, out any) error {
	block := integration.ConfigurationFor(actionID)
	if block == nil {
		return fmt.Errorf("%w: %q settings for integration %s are missing, please fix the integration setup in the portal",
			ErrConfigurationNotFound, actionID, integration.ID)
	}

	raw, err := json.Marshal(block.Data)
	if err != nil {
		return fmt.Errorf("models.parseActionConfig marshal %q: %w", actionID, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("models.parseActionConfig decode %q: %w", actionID, err)
	}
	if err := configValidate.Struct(out); err != nil {
		return fmt.Errorf("models.parseActionConfig validate %q: %w", actionID, err)
	}
	return nil
}
