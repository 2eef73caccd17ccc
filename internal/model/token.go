package model

import "time"

// RemoteSessionToken is the cached authorization for the remote inventory API.
// Validity is established by a liveness probe, never by age.
type RemoteSessionToken struct {
	Value    string    `json:"value"`
	Server   string    `json:"server,omitempty"`
	CachedAt time.Time `json:"cached_at"`
}
