package models

import "encoding/json"

// AuthResult is the structured outcome of the auth action. Vendor and
// transport failures land in Error with ValidCredentials false; only a
// broken integration setup surfaces as an error.
type AuthResult struct {
	ValidCredentials bool   `json:"valid_credentials"`
	Error            string `json:"error,omitempty"`
}

// FetchSamplesResult carries raw vendor device records for diagnostics.
// ObservationsExtracted always equals len(Observations), even when the
// vendor returned more records than the configured bound.
type FetchSamplesResult struct {
	ObservationsExtracted int               `json:"observations_extracted"`
	Observations          []json.RawMessage `json:"observations"`
}

// PullResult is the structured outcome of a pull_observations run. Details
// notes a run that found nothing to send; Error carries the underlying
// error message when the run failed.
type PullResult struct {
	ObservationsExtracted int    `json:"observations_extracted"`
	Details               any    `json:"details,omitempty"`
	Error                 string `json:"error,omitempty"`
}

// NoDataDetails is the Details value of a pull run that found nothing new.
const NoDataDetails = "No transformed data to send."
