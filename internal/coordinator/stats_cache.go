package coordinator

import (
	"sync"

	"github.com/gemelo-digital/urgencias-twin/internal/domain"
)

// StatsCache holds the latest HospitalStats snapshot per hospital, fed by
// the coordinator's hospital-stats consumption and read by the incident
// distributor's scoring function (incident.StatsSource).
type StatsCache struct {
	mu     sync.RWMutex
	latest map[domain.HospitalId]domain.HospitalStats
}

// NewStatsCache builds an empty cache.
func NewStatsCache() *StatsCache {
	return &StatsCache{latest: make(map[domain.HospitalId]domain.HospitalStats)}
}

// Update records a hospital's newest stats snapshot.
func (c *StatsCache) Update(stats domain.HospitalStats) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.latest[stats.HospitalID] = stats
}

// LatestStats returns a hospital's last known snapshot.
func (c *StatsCache) LatestStats(h domain.HospitalId) (domain.HospitalStats, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.latest[h]
	return s, ok
}
