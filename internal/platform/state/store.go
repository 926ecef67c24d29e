// Package state is the client for the platform's integration state store: a
// persistent mapping of (integration, action, optional sub key) to a small
// JSON blob. The connector keeps its session cache and per-device watermarks
// here so they survive restarts and redeploys.
package state

import (
	"context"
	"errors"
	"strings"
)

// ErrNotFound is returned by Get when no blob exists under the key.
var ErrNotFound = errors.New("state entry not found")

// Key addresses one state blob. SubKey is optional and scopes the entry
// below the action, e.g. to a single device.
type Key struct {
	IntegrationID string
	ActionID      string
	SubKey        string
}

// String renders the canonical flat form used by key-value backends.
func (k Key) String() string {
	parts := []string{"state", k.IntegrationID, k.ActionID}
	if k.SubKey != "" {
		parts = append(parts, k.SubKey)
	}
	return strings.Join(parts, ":")
}

// Store is the persistence contract the connector relies on. Reads and
// writes are atomic per key; no cross-key transactions are offered and none
// are needed, since watermark updates are per-device and independent.
type Store interface {
	// Get returns the blob stored under key, or ErrNotFound.
	Get(ctx context.Context, key Key) ([]byte, error)
	// Set stores value under key, replacing any previous blob.
	Set(ctx context.Context, key Key, value []byte) error
	// Delete removes the blob under key. Deleting an absent key is not an
	// error.
	Delete(ctx context.Context, key Key) error
}
