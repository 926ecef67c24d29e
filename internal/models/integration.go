package models

import (
	"github.com/google/uuid"
)

// Action identifiers the platform can ask this connector to execute.
const (
	ActionAuth             = "auth"
	ActionFetchSamples     = "fetch_samples"
	ActionPullObservations = "pull_observations"
)

// Integration is the platform's view of one configured connection to a
// Wialon-compatible API. It is owned by the platform and arrives read-only
// in every action-run request.
type Integration struct {
	ID      uuid.UUID `json:"id" validate:"required"`
	Name    string    `json:"name"`
	BaseURL string    `json:"base_url" validate:"required,url"`

	// Configurations holds one block per enabled action. The connector never
	// writes these; the platform validates them against its own schemas.
	Configurations []ActionConfiguration `json:"configurations"`
}

// ActionConfiguration is one named configuration block of an integration.
// Data is an opaque JSON object parsed into a typed config per action.
type ActionConfiguration struct {
	ID     uuid.UUID      `json:"id"`
	Action string         `json:"action" validate:"required"`
	Data   map[string]any `json:"data"`
}

// ConfigurationFor returns the configuration block registered for the given
// action id, or nil when the integration carries none.
func (i *Integration) ConfigurationFor(actionID string) *ActionConfiguration {
	for idx := range i.Configurations {
		if i.Configurations[idx].Action == actionID {
			return &i.Configurations[idx]
		}
	}
	return nil
}

// ActionRunRequest is the body the platform posts to run an action.
type ActionRunRequest struct {
	Integration Integration `json:"integration" validate:"required"`
}
