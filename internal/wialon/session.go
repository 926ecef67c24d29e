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
	"wialon-connector/internal/observability"
	"wialon-connector/internal/platform/state"
)

// sessionAction is the state-store action id the session blob lives under.
// It is separate from the connector's action names on purpose: the blob
// belongs to the vendor session, not to any one action.
const sessionAction = "get_authentication_token"

type sessionState struct {
	Eid string `json:"eid"`
}

func sessionKey(integrationID string) state.Key {
	return state.Key{IntegrationID: integrationID, ActionID: sessionAction}
}

// SessionManager hands out vendor session ids, reusing a cached one per
// integration and logging in only when there is none. Sessions carry no
// local expiry. They are dropped only when the vendor rejects them.
type SessionManager struct {
	states state.Store
	http   *http.Client
	log    zerolog.Logger
}

func NewSessionManager(states state.Store, httpClient *http.Client, logger zerolog.Logger) *SessionManager {
	return &SessionManager{
		states: states,
		http:   httpClient,
		log:    logger.With().Str("module", "wialon.session").Logger(),
	}
}

// Token returns a session id for the integration, from cache when one is
// stored and via a fresh login otherwise. A cached blob that cannot be
// decoded or carries an empty eid is treated as absent.
func (m *SessionManager) Token(ctx context.Context, integration *models.Integration, cfg models.AuthConfig) (string, error) {
	key := sessionKey(integration.ID.String())

	blob, err := m.states.Get(ctx, key)
	switch {
	case err == nil:
		var st sessionState
		if jerr := json.Unmarshal(blob, &st); jerr == nil && st.Eid != "" {
			m.log.Debug().Str("integration_id", integration.ID.String()).Msg("reusing cached session")
			return st.Eid, nil
		}
		m.log.Warn().Str("integration_id", integration.ID.String()).Msg("cached session unusable, logging in again")
	case errors.Is(err, state.ErrNotFound):
		// no session yet, fall through to login
	default:
		return "", fmt.Errorf("wialon.SessionManager.Token: %w", err)
	}

	return m.login(ctx, integration, cfg, key)
}

func (m *SessionManager) login(ctx context.Context, integration *models.Integration, cfg models.AuthConfig, key state.Key) (string, error) {
	params, err := json.Marshal(map[string]string{"token": cfg.Token, "fl": "4"})
	if err != nil {
		return "", fmt.Errorf("wialon.SessionManager.login: encode params: %w", err)
	}

	body, err := postForm(ctx, m.http, loginEndpoint, integration.BaseURL, url.Values{"params": {string(params)}}, "wialon.login")
	if err != nil {
		return "", err
	}

	var resp loginResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("wialon.SessionManager.login: %w: %v", models.ErrBadPayload, err)
	}
	if resp.Error != 0 {
		return "", &APIError{Code: resp.Error, Reason: resp.Reason}
	}
	if resp.Eid == "" {
		return "", fmt.Errorf("wialon.SessionManager.login: %w: login response has no eid", models.ErrBadPayload)
	}

	blob, err := json.Marshal(sessionState{Eid: resp.Eid})
	if err != nil {
		return "", fmt.Errorf("wialon.SessionManager.login: encode session: %w", err)
	}
	if err := m.states.Set(ctx, key, blob); err != nil {
		return "", fmt.Errorf("wialon.SessionManager.login: cache session: %w", err)
	}

	m.log.Info().Str("integration_id", integration.ID.String()).Msg("logged in to vendor api")
	return resp.Eid, nil
}

// Invalidate drops the cached session so the next Token call logs in again.
func (m *SessionManager) Invalidate(ctx context.Context, integrationID string) error {
	if err := m.states.Delete(ctx, sessionKey(integrationID)); err != nil {
		return fmt.Errorf("wialon.SessionManager.Invalidate: %w", err)
	}
	observability.SessionInvalidations.Inc()
	m.log.Info().Str("integration_id", integrationID).Msg("dropped cached session")
	return nil
}
