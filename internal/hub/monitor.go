package hub

import (
	"context"
	"sort"
	"time"

	"Parley/internal/model"
	"Parley/internal/service"
)

// HealthCheck probes one backing service.
type HealthCheck func(ctx context.Context) error

// MonitorService gathers hub statistics and backend reachability for the
// monitor API.
type MonitorService struct {
	hub      *Hub
	backends map[string]HealthCheck
}

// NewMonitorService creates a new monitor service
func NewMonitorService(hub *Hub, backends map[string]HealthCheck) *MonitorService {
	return &MonitorService{hub: hub, backends: backends}
}

// GetStats gathers and returns all hub statistics
func (ms *MonitorService) GetStats(ctx context.Context) model.MonitorResponse {
	stats, identities := ms.hub.Stats()

	// hide idle buckets mid-teardown
	identities = service.Filter(identities, func(id model.IdentityInfo) bool {
		return id.Connections > 0
	})

	status := "healthy"
	if stats.TotalConnections == 0 {
		status = "idle"
	}

	return model.MonitorResponse{
		Status:      status,
		Connections: stats,
		Identities:  identities,
		Backends:    ms.checkBackends(ctx),
	}
}

// Health probes every backend and reports "ok" only when all of them answer.
func (ms *MonitorService) Health(ctx context.Context) model.HealthResponse {
	backends := ms.checkBackends(ctx)

	unreachable := service.FilterMap(backends, func(_, state string) bool {
		return state != "ok"
	})

	resp := model.HealthResponse{Status: "ok", Backends: backends}
	if len(unreachable) > 0 {
		resp.Status = "degraded"
		for name := range unreachable {
			resp.Failing = append(resp.Failing, name)
		}
		sort.Strings(resp.Failing)
	}
	return resp
}

func (ms *MonitorService) checkBackends(ctx context.Context) map[string]string {
	results := make(map[string]string, len(ms.backends))

	for name, check := range ms.backends {
		probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := check(probeCtx); err != nil {
			results[name] = "unreachable: " + err.Error()
		} else {
			results[name] = "ok"
		}
		cancel()
	}

	return results
}
