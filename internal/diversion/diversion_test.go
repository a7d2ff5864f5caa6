package diversion

import (
	"context"
	"testing"
	"time"

	"github.com/gemelo-digital/urgencias-twin/internal/bus"
	"github.com/gemelo-digital/urgencias-twin/internal/domain"
)

type stubSaturation struct {
	shouldDivert map[domain.HospitalId]bool
	leastSat     domain.HospitalId
	hasLeastSat  bool
	states       map[domain.HospitalId]domain.SaturationState
}

func (s *stubSaturation) ShouldDivertFrom(h domain.HospitalId) bool { return s.shouldDivert[h] }
func (s *stubSaturation) LeastSaturated(domain.HospitalId) (domain.HospitalId, bool) {
	return s.leastSat, s.hasLeastSat
}
func (s *stubSaturation) State(h domain.HospitalId) (domain.SaturationState, bool) {
	st, ok := s.states[h]
	return st, ok
}

type stubPublisher struct {
	produced []string
}

func (p *stubPublisher) Produce(_ context.Context, topic string, _ any, _ bus.ProduceOptions) error {
	p.produced = append(p.produced, topic)
	return nil
}

func TestGravityRuleDivertsToReferenceCenter(t *testing.T) {
	sat := &stubSaturation{
		states: map[domain.HospitalId]domain.SaturationState{
			domain.CHUAC: {CanReceiveDiversions: true},
		},
	}
	pub := &stubPublisher{}
	m := New(sat, pub, nil)

	alert, ok := m.ProcessTriageResult(context.Background(), domain.TriageResult{
		PatientID: "p1", HospitalID: domain.Modelo, TriageLevel: domain.Red,
	})
	if !ok {
		t.Fatal("expected gravity-rule diversion")
	}
	if alert.DestinationHospital != domain.CHUAC || alert.Reason != domain.ReasonGravity {
		t.Errorf("alert = %+v, want destination CHUAC reason GRAVITY", alert)
	}
	if len(pub.produced) != 1 || pub.produced[0] != domain.TopicDiversionAlerts {
		t.Errorf("expected one diversion-alerts publish, got %v", pub.produced)
	}
}

func TestGravityRuleSkipsWhenReferenceCenterCannotReceive(t *testing.T) {
	sat := &stubSaturation{
		states: map[domain.HospitalId]domain.SaturationState{
			domain.CHUAC: {CanReceiveDiversions: false},
		},
	}
	m := New(sat, nil, nil)

	_, ok := m.ProcessTriageResult(context.Background(), domain.TriageResult{
		PatientID: "p2", HospitalID: domain.SanRafael, TriageLevel: domain.Orange,
	})
	if ok {
		t.Error("expected no diversion when the reference center cannot receive")
	}
}

func TestSaturationRuleOnlyAppliesToGreenAndBlue(t *testing.T) {
	sat := &stubSaturation{
		shouldDivert: map[domain.HospitalId]bool{domain.Modelo: true},
		leastSat:     domain.SanRafael,
		hasLeastSat:  true,
	}
	m := New(sat, nil, nil)

	if _, ok := m.ProcessTriageResult(context.Background(), domain.TriageResult{
		PatientID: "p3", HospitalID: domain.Modelo, TriageLevel: domain.Yellow,
	}); ok {
		t.Error("saturation rule must not apply to YELLOW")
	}

	alert, ok := m.ProcessTriageResult(context.Background(), domain.TriageResult{
		PatientID: "p4", HospitalID: domain.Modelo, TriageLevel: domain.Green,
	})
	if !ok || alert.DestinationHospital != domain.SanRafael || alert.Reason != domain.ReasonSaturation {
		t.Errorf("expected saturation diversion to SanRafael, got %+v, %v", alert, ok)
	}
}

func TestNoRuleFiresReturnsFalse(t *testing.T) {
	sat := &stubSaturation{}
	m := New(sat, nil, nil)
	if _, ok := m.ProcessTriageResult(context.Background(), domain.TriageResult{
		PatientID: "p5", HospitalID: domain.CHUAC, TriageLevel: domain.Green,
	}); ok {
		t.Error("expected no diversion for an unsaturated hospital with a low-acuity patient")
	}
}

func TestStatsSnapshotTracksByReasonAndHospital(t *testing.T) {
	sat := &stubSaturation{
		states: map[domain.HospitalId]domain.SaturationState{domain.CHUAC: {CanReceiveDiversions: true}},
	}
	m := New(sat, nil, nil)
	m.ProcessTriageResult(context.Background(), domain.TriageResult{PatientID: "p6", HospitalID: domain.Modelo, TriageLevel: domain.Red})
	m.ProcessTriageResult(context.Background(), domain.TriageResult{PatientID: "p7", HospitalID: domain.SanRafael, TriageLevel: domain.Orange})

	stats := m.StatsSnapshot()
	if stats.Total != 2 || stats.ByGravity != 2 {
		t.Errorf("stats = %+v, want Total=2 ByGravity=2", stats)
	}
	if stats.ByDestination[domain.CHUAC] != 2 {
		t.Errorf("ByDestination[CHUAC] = %d, want 2", stats.ByDestination[domain.CHUAC])
	}
}

func TestHandlerAdaptsToFlowengineSignature(t *testing.T) {
	sat := &stubSaturation{
		states: map[domain.HospitalId]domain.SaturationState{domain.CHUAC: {CanReceiveDiversions: true}},
	}
	m := New(sat, nil, nil)
	handler := m.Handler()

	p := domain.NewPatient(domain.Modelo, 50, domain.Male, "dolor_toracico", time.Now())
	p.Triage = domain.Red

	dest, ok := handler(p)
	if !ok || dest != domain.CHUAC {
		t.Errorf("handler(p) = %v, %v, want CHUAC, true", dest, ok)
	}
}
