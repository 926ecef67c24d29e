package actions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"wialon-connector/internal/models"
	"wialon-connector/internal/observability"
	"wialon-connector/internal/platform/state"
	"wialon-connector/internal/wialon"
)

// watermarkLayout is the timestamp format stored per device. Existing
// deployments already hold state in this layout, so it must not change.
const watermarkLayout = "2006-01-02 15:04:05-0700"

type deviceState struct {
	LatestDeviceTimestamp string `json:"latest_device_timestamp"`
}

func watermarkKey(integrationID, deviceID string) state.Key {
	return state.Key{
		IntegrationID: integrationID,
		ActionID:      models.ActionPullObservations,
		SubKey:        deviceID,
	}
}

// transform turns vendor devices into observations, dropping devices without
// a position and fixes not strictly newer than the device's watermark. It
// returns the watermark values to store once delivery is confirmed.
func (s *Service) transform(ctx context.Context, integration *models.Integration, devices []wialon.Device) ([]models.Observation, map[string]time.Time, []models.SkippedDevice, error) {
	observations := make([]models.Observation, 0, len(devices))
	marks := make(map[string]time.Time)
	var skipped []models.SkippedDevice

	for _, device := range devices {
		deviceID := strconv.FormatInt(device.ID, 10)

		if device.Position == nil {
			s.log.Warn().
				Str("integration_id", integration.ID.String()).
				Str("device_id", deviceID).
				Str("device_name", device.Name).
				Msg("device has no position data")
			observability.ObservationsSkipped.WithLabelValues("no_position").Inc()
			skipped = append(skipped, models.SkippedDevice{ID: deviceID, Name: device.Name})
			continue
		}

		watermark, ok, err := s.readWatermark(ctx, integration, deviceID)
		if err != nil {
			return nil, nil, nil, err
		}
		if ok && !device.Position.RecordedAt.After(watermark) {
			s.log.Debug().
				Str("integration_id", integration.ID.String()).
				Str("device_id", deviceID).
				Time("recorded_at", device.Position.RecordedAt).
				Time("watermark", watermark).
				Msg("fix already delivered, skipping")
			observability.ObservationsSkipped.WithLabelValues("not_newer").Inc()
			continue
		}

		observations = append(observations, models.Observation{
			Source:     deviceID,
			SourceName: device.Name,
			Type:       models.ObservationType,
			RecordedAt: device.Position.RecordedAt,
			Location: models.Location{
				Lat: device.Position.Latitude,
				Lon: device.Position.Longitude,
			},
			Additional: map[string]any{
				"sensors_flags":    device.Position.SensorFlags,
				"course":           device.Position.Course,
				"altitude":         device.Position.Altitude,
				"speed":            device.Position.Speed,
				"satellites_count": device.Position.Satellites,
			},
		})

		if current, seen := marks[deviceID]; !seen || device.Position.RecordedAt.After(current) {
			marks[deviceID] = device.Position.RecordedAt
		}
	}

	return observations, marks, skipped, nil
}

// readWatermark loads a device's stored watermark. A blob that cannot be
// decoded is logged and treated as absent so one bad write cannot wedge a
// device forever.
func (s *Service) readWatermark(ctx context.Context, integration *models.Integration, deviceID string) (time.Time, bool, error) {
	blob, err := s.states.Get(ctx, watermarkKey(integration.ID.String(), deviceID))
	if err != nil {
		if errors.Is(err, state.ErrNotFound) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("actions.Service.readWatermark %s: %w", deviceID, err)
	}

	var st deviceState
	if err := json.Unmarshal(blob, &st); err != nil {
		s.log.Warn().
			Str("integration_id", integration.ID.String()).
			Str("device_id", deviceID).
			Err(err).
			Msg("stored watermark unreadable, treating device as new")
		return time.Time{}, false, nil
	}
	at, err := time.Parse(watermarkLayout, st.LatestDeviceTimestamp)
	if err != nil {
		s.log.Warn().
			Str("integration_id", integration.ID.String()).
			Str("device_id", deviceID).
			Str("stored", st.LatestDeviceTimestamp).
			Msg("stored watermark unparsable, treating device as new")
		return time.Time{}, false, nil
	}
	return at, true, nil
}

// advanceWatermarks stores the delivered batch's newest timestamp per
// device. Called only after a confirmed delivery. A failed write is logged
// and skipped: the device will resend its last fix next run, which the
// ingestion side deduplicates.
func (s *Service) advanceWatermarks(ctx context.Context, integration *models.Integration, marks map[string]time.Time) {
	for deviceID, at := range marks {
		blob, err := json.Marshal(deviceState{LatestDeviceTimestamp: at.Format(watermarkLayout)})
		if err != nil {
			s.log.Error().Str("device_id", deviceID).Err(err).Msg("encode watermark")
			continue
		}
		if err := s.states.Set(ctx, watermarkKey(integration.ID.String(), deviceID), blob); err != nil {
			s.log.Error().
				Str("integration_id", integration.ID.String()).
				Str("device_id", deviceID).
				Err(err).
				Msg("watermark not advanced")
		}
	}
}
