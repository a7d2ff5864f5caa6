// Package saturation maintains a derived SaturationState per hospital from
// the HospitalStats stream and fires debounced alert callbacks on
// threshold crossings, per spec section 4.6. Grounded in
// original_source/backend/coordinator/saturation_monitor.py's
// SaturationMonitor, with the callback-registration/notify shape adapted
// from internal/anomaly-radar-slo-budget's AlertCallback pattern (teacher's
// sibling repo, now adapted rather than kept as unwired reference code).
package saturation

import (
	"sort"
	"sync"
	"time"

	"github.com/gemelo-digital/urgencias-twin/internal/domain"
)

const (
	ThresholdWarning  = 0.70
	ThresholdHigh     = 0.85
	ThresholdCritical = 0.95
)

// level classifies a saturation value into the four bands the debounce
// logic compares against, the Go analog of the Python monitor calling
// _emit_alert once per classification it newly enters.
type level int

const (
	levelNormal level = iota
	levelWarning
	levelHigh
	levelCritical
)

func classify(saturation float64) level {
	switch {
	case saturation >= ThresholdCritical:
		return levelCritical
	case saturation >= ThresholdHigh:
		return levelHigh
	case saturation >= ThresholdWarning:
		return levelWarning
	default:
		return levelNormal
	}
}

func (l level) alertLevel() domain.AlertLevel {
	switch l {
	case levelCritical:
		return domain.AlertCritical
	case levelHigh, levelWarning:
		return domain.AlertWarning
	default:
		return domain.AlertInfo
	}
}

// AlertCallback is notified on every threshold-band change for a hospital.
type AlertCallback func(domain.CoordinatorAlert)

// Monitor tracks every hospital's latest SaturationState and debounces
// alert emission so a hospital sitting in one band does not re-alert on
// every HospitalStats tick.
type Monitor struct {
	mu        sync.RWMutex
	order     []domain.HospitalId // insertion order, used for LeastSaturated tie-breaks
	states    map[domain.HospitalId]domain.SaturationState
	lastLevel map[domain.HospitalId]level
	callbacks []AlertCallback
}

// New builds a Monitor with every hospital starting at zero saturation.
func New(hospitals []domain.HospitalId) *Monitor {
	m := &Monitor{
		order:     append([]domain.HospitalId(nil), hospitals...),
		states:    make(map[domain.HospitalId]domain.SaturationState, len(hospitals)),
		lastLevel: make(map[domain.HospitalId]level, len(hospitals)),
	}
	for _, h := range hospitals {
		m.states[h] = domain.SaturationState{HospitalID: h, CanReceiveDiversions: true}
	}
	return m
}

// RegisterAlertCallback adds a callback invoked on every band change.
func (m *Monitor) RegisterAlertCallback(cb AlertCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, cb)
}

// UpdateFromStats absorbs one HospitalStats snapshot, grounded in
// update_from_stats, and fires alert callbacks on a band change.
func (m *Monitor) UpdateFromStats(stats domain.HospitalStats) {
	m.mu.Lock()
	lvl := classify(stats.GlobalSaturation)
	state := domain.SaturationState{
		HospitalID:           stats.HospitalID,
		Saturation:           stats.GlobalSaturation,
		IsWarning:            lvl >= levelWarning,
		IsHigh:               lvl >= levelHigh,
		IsCritical:           lvl >= levelCritical,
		CanReceiveDiversions: stats.GlobalSaturation < ThresholdWarning,
		LastUpdate:           stats.Timestamp,
	}
	if state.LastUpdate.IsZero() {
		state.LastUpdate = time.Now()
	}
	m.states[stats.HospitalID] = state

	changed := m.lastLevel[stats.HospitalID] != lvl
	m.lastLevel[stats.HospitalID] = lvl
	callbacks := append([]AlertCallback(nil), m.callbacks...)
	m.mu.Unlock()

	if !changed || lvl == levelNormal {
		return
	}
	alert := domain.CoordinatorAlert{
		HospitalID: stats.HospitalID,
		Level:      lvl.alertLevel(),
		Message:    bandMessage(stats.HospitalID, lvl, stats.GlobalSaturation),
		Timestamp:  state.LastUpdate,
	}
	for _, cb := range callbacks {
		cb(alert)
	}
}

func bandMessage(h domain.HospitalId, lvl level, saturation float64) string {
	switch lvl {
	case levelCritical:
		return string(h) + " is critical"
	case levelHigh:
		return string(h) + " is saturated"
	case levelWarning:
		return string(h) + " is approaching saturation"
	default:
		return string(h) + " saturation normal"
	}
}

// State returns the last known SaturationState for a hospital.
func (m *Monitor) State(h domain.HospitalId) (domain.SaturationState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.states[h]
	return s, ok
}

// AllStates returns every hospital's current SaturationState.
func (m *Monitor) AllStates() map[domain.HospitalId]domain.SaturationState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[domain.HospitalId]domain.SaturationState, len(m.states))
	for k, v := range m.states {
		out[k] = v
	}
	return out
}

// LeastSaturated returns the lowest-saturation hospital that can still
// receive diversions, excluding one hospital if given, ties broken by
// insertion order. Returns ("", false) if no candidate qualifies.
func (m *Monitor) LeastSaturated(exclude domain.HospitalId) (domain.HospitalId, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	candidates := make([]domain.HospitalId, 0, len(m.order))
	for _, h := range m.order {
		if h == exclude {
			continue
		}
		if s, ok := m.states[h]; ok && s.CanReceiveDiversions {
			candidates = append(candidates, h)
		}
	}
	if len(candidates) == 0 {
		return "", false
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return m.states[candidates[i]].Saturation < m.states[candidates[j]].Saturation
	})
	return candidates[0], true
}

// ShouldDivertFrom reports whether saturation exceeds the high threshold.
func (m *Monitor) ShouldDivertFrom(h domain.HospitalId) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.states[h]
	return ok && s.Saturation > ThresholdHigh
}

// SystemStatus aggregates every hospital's state into a single snapshot.
func (m *Monitor) SystemStatus() domain.CoordinatorStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var total float64
	var critical, saturated int
	perHospital := make(map[domain.HospitalId]domain.SaturationState, len(m.states))
	for _, h := range m.order {
		s := m.states[h]
		perHospital[h] = s
		total += s.Saturation
		if s.IsCritical {
			critical++
		}
		if s.IsHigh {
			saturated++
		}
	}
	mean := 0.0
	if len(m.order) > 0 {
		mean = total / float64(len(m.order))
	}

	status := domain.StatusNormal
	switch {
	case critical > 0:
		status = domain.StatusCritical
	case saturated > 0:
		status = domain.StatusAlert
	case mean > ThresholdWarning:
		status = domain.StatusAttention
	}

	return domain.CoordinatorStatus{
		Status:         status,
		MeanSaturation: mean,
		CriticalCount:  critical,
		SaturatedCount: saturated,
		PerHospital:    perHospital,
		Timestamp:      time.Now(),
	}
}
