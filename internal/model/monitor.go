package model

// -----------------------------------------------------------------
// Monitor API Response Models
// -----------------------------------------------------------------

// MonitorResponse is the main response for the monitor API
type MonitorResponse struct {
	Status      string            `json:"status"` // "healthy" or "idle"
	Connections ConnectionStats   `json:"connections"`
	Identities  []IdentityInfo    `json:"identities"`
	Backends    map[string]string `json:"backends"` // per-backend reachability
}

// HealthResponse reports overall service health for load balancers and probes
type HealthResponse struct {
	Status   string            `json:"status"` // "ok" or "degraded"
	Backends map[string]string `json:"backends"`
	Failing  []string          `json:"failing,omitempty"` // backends currently unreachable
}

// ConnectionStats holds connection-related statistics
type ConnectionStats struct {
	TotalIdentities  int `json:"totalIdentities"`  // identities with at least one socket
	TotalConnections int `json:"totalConnections"` // live sockets across all identities
}

// IdentityInfo describes one connected identity bucket
type IdentityInfo struct {
	Email       string `json:"email"`
	Connections int    `json:"connections"`
}
