// Package diversion decides whether a triaged patient should be routed to
// another hospital and publishes the resulting DiversionAlert, per spec
// section 4.7. Grounded in
// original_source/backend/coordinator/diversion_manager.py's
// DiversionManager.
package diversion

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/gemelo-digital/urgencias-twin/internal/bus"
	"github.com/gemelo-digital/urgencias-twin/internal/domain"
	"github.com/gemelo-digital/urgencias-twin/internal/obs"
)

// SaturationSource is the subset of *saturation.Monitor the manager
// consults, narrowed for test doubles.
type SaturationSource interface {
	ShouldDivertFrom(h domain.HospitalId) bool
	LeastSaturated(exclude domain.HospitalId) (domain.HospitalId, bool)
	State(h domain.HospitalId) (domain.SaturationState, bool)
}

// Publisher is the subset of *bus.Client the manager needs.
type Publisher interface {
	Produce(ctx context.Context, topic string, payload any, opts bus.ProduceOptions) error
}

// Stats mirrors diversion_manager.py's DiversionStats for introspection.
type Stats struct {
	Total          int
	ByGravity      int
	BySaturation   int
	ByOrigin       map[domain.HospitalId]int
	ByDestination  map[domain.HospitalId]int
}

// Manager evaluates the gravity/saturation diversion cascade.
type Manager struct {
	saturation SaturationSource
	pub        Publisher
	log        *zap.Logger

	mu    sync.Mutex
	stats Stats
}

// New builds a diversion Manager over the given saturation monitor.
func New(monitor SaturationSource, pub Publisher, log *zap.Logger) *Manager {
	return &Manager{
		saturation: monitor,
		pub:        pub,
		log:        log,
		stats: Stats{
			ByOrigin:      make(map[domain.HospitalId]int),
			ByDestination: make(map[domain.HospitalId]int),
		},
	}
}

// ProcessTriageResult evaluates the two-rule cascade against a TriageResult
// and returns the DiversionAlert if the patient should be diverted.
func (m *Manager) ProcessTriageResult(ctx context.Context, result domain.TriageResult) (*domain.DiversionAlert, bool) {
	origin := result.HospitalID
	level := result.TriageLevel

	if level.RequiresReference() && origin != domain.CHUAC {
		if m.canDivertTo(domain.CHUAC) {
			return m.createDiversion(ctx, result.PatientID, origin, domain.CHUAC, level, domain.ReasonGravity), true
		}
		return nil, false
	}

	if m.saturation.ShouldDivertFrom(origin) && (level == domain.Green || level == domain.Blue) {
		if dest, ok := m.saturation.LeastSaturated(origin); ok {
			return m.createDiversion(ctx, result.PatientID, origin, dest, level, domain.ReasonSaturation), true
		}
	}

	return nil, false
}

// Handler adapts ProcessTriageResult to flowengine.DiversionHandler's
// shape: evaluated synchronously at the triage stage, before the patient's
// triage level has been published as an event elsewhere.
func (m *Manager) Handler() func(p *domain.Patient) (domain.HospitalId, bool) {
	return func(p *domain.Patient) (domain.HospitalId, bool) {
		result := domain.TriageResult{
			PatientID:   p.ID,
			HospitalID:  p.Hospital,
			TriageLevel: p.Triage,
		}
		alert, ok := m.ProcessTriageResult(context.Background(), result)
		if !ok {
			return "", false
		}
		return alert.DestinationHospital, true
	}
}

func (m *Manager) canDivertTo(h domain.HospitalId) bool {
	state, ok := m.saturation.State(h)
	if !ok {
		return true // no data yet: assume the reference center can receive
	}
	return state.CanReceiveDiversions
}

func (m *Manager) createDiversion(ctx context.Context, patientID string, origin, dest domain.HospitalId, level domain.TriageLevel, reason domain.DiversionReason) *domain.DiversionAlert {
	alert := domain.DiversionAlert{
		PatientID:               patientID,
		OriginHospital:          origin,
		DestinationHospital:     dest,
		Reason:                  reason,
		TriageLevel:             level,
		EstimatedTransferMinutes: domain.TransferMinutes(origin, dest),
	}

	m.mu.Lock()
	m.stats.Total++
	if reason == domain.ReasonGravity {
		m.stats.ByGravity++
	} else {
		m.stats.BySaturation++
	}
	m.stats.ByOrigin[origin]++
	m.stats.ByDestination[dest]++
	m.mu.Unlock()

	obs.PatientDiversions.WithLabelValues(string(origin), string(dest), string(reason)).Inc()

	if m.pub != nil {
		if err := m.pub.Produce(ctx, domain.TopicDiversionAlerts, alert, bus.ProduceOptions{Validate: true}); err != nil && m.log != nil {
			m.log.Warn("diversion alert publish failed", obs.String("patientId", patientID), obs.Err(err))
		}
	}
	return &alert
}

// StatsSnapshot returns a copy of the current diversion counters.
func (m *Manager) StatsSnapshot() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := Stats{
		Total:        m.stats.Total,
		ByGravity:    m.stats.ByGravity,
		BySaturation: m.stats.BySaturation,
		ByOrigin:     make(map[domain.HospitalId]int, len(m.stats.ByOrigin)),
		ByDestination: make(map[domain.HospitalId]int, len(m.stats.ByDestination)),
	}
	for k, v := range m.stats.ByOrigin {
		out.ByOrigin[k] = v
	}
	for k, v := range m.stats.ByDestination {
		out.ByDestination[k] = v
	}
	return out
}
