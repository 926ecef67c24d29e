// Package activity records integration activity events, the audit trail
// operators see in the portal. Emission is best-effort: a lost event never
// fails the action that produced it.
package activity

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	LevelInfo    = "info"
	LevelWarning = "warning"
	LevelError   = "error"
)

// Event is one audit entry tied to an integration and the action that was
// running when it happened.
type Event struct {
	ID            string         `json:"id"`
	IntegrationID string         `json:"integration_id"`
	ActionID      string         `json:"action_id"`
	Level         string         `json:"level"`
	Title         string         `json:"title"`
	Data          map[string]any `json:"data,omitempty"`
	OccurredAt    time.Time      `json:"occurred_at"`
}

func NewEvent(integrationID, actionID, level, title string, data map[string]any) Event {
	return Event{
		ID:            uuid.NewString(),
		IntegrationID: integrationID,
		ActionID:      actionID,
		Level:         level,
		Title:         title,
		Data:          data,
		OccurredAt:    time.Now().UTC(),
	}
}

// Logger is where action code sends activity events.
type Logger interface {
	Emit(ctx context.Context, event Event)
}

// LogEmitter writes events to the service log only. It is the fallback when
// no message broker is configured.
type LogEmitter struct {
	log zerolog.Logger
}

func NewLogEmitter(logger zerolog.Logger) *LogEmitter {
	return &LogEmitter{log: logger.With().Str("module", "activity").Logger()}
}

func (e *LogEmitter) Emit(ctx context.Context, event Event) {
	lvl := zerolog.InfoLevel
	switch event.Level {
	case LevelWarning:
		lvl = zerolog.WarnLevel
	case LevelError:
		lvl = zerolog.ErrorLevel
	}
	e.log.WithLevel(lvl).
		Str("integration_id", event.IntegrationID).
		Str("action_id", event.ActionID).
		Interface("data", event.Data).
		Msg(event.Title)
}
