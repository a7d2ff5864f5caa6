package simulation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gemelo-digital/urgencias-twin/internal/bus"
	"github.com/gemelo-digital/urgencias-twin/internal/domain"
)

type recordingPublisher struct {
	mu     sync.Mutex
	counts map[string]int
}

func newRecordingPublisher() *recordingPublisher {
	return &recordingPublisher{counts: make(map[string]int)}
}

func (p *recordingPublisher) Produce(_ context.Context, topic string, _ any, _ bus.ProduceOptions) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.counts[topic]++
	return nil
}

func (p *recordingPublisher) count(topic string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counts[topic]
}

func chuacCfg() domain.HospitalConfig {
	return domain.DefaultHospitalConfigs()[domain.CHUAC]
}

func TestStartGeneratesArrivalsAndPublishesEvents(t *testing.T) {
	pub := newRecordingPublisher()
	epoch := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	sim := New(chuacCfg(), nil, epoch, 1, pub, nil)
	sim.SetSpeed(120) // fast-forward so a handful of patients clear within the test's deadline

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go sim.Start(ctx)

	time.Sleep(1500 * time.Millisecond)
	sim.Stop()

	if pub.count(domain.TopicPatientArrivals) == 0 {
		t.Error("expected at least one patient-arrivals publish")
	}
	if pub.count(domain.TopicHospitalStats) == 0 {
		t.Error("expected at least one hospital-stats publish")
	}
	if pub.count(domain.TopicSystemContext) == 0 {
		t.Error("expected at least one system-context publish on start")
	}
}

func TestSetSpeedClampsBelowMinimum(t *testing.T) {
	sim := New(chuacCfg(), nil, time.Now(), 2, nil, nil)
	sim.SetSpeed(0.01)
	if got := sim.Speed(); got != 0.1 {
		t.Errorf("Speed() = %v, want clamped to 0.1", got)
	}
}

func TestInjectPatientEntersAtTriageNotReception(t *testing.T) {
	pub := newRecordingPublisher()
	epoch := time.Now()
	sim := New(chuacCfg(), nil, epoch, 3, pub, nil)

	p := domain.NewPatient(domain.CHUAC, 40, domain.Male, "faringitis", epoch)
	sim.InjectPatient(p, epoch)
	sim.Engine().Advance(600)

	if p.TriagedAt.IsZero() {
		t.Error("expected injected patient to be triaged")
	}
	if !p.DeskAssignedAt.IsZero() {
		t.Error("injected patient should skip the reception desk stage entirely")
	}
}

func TestSetDoctorsDelegatesToEngine(t *testing.T) {
	sim := New(chuacCfg(), nil, time.Now(), 4, nil, nil)
	if err := sim.SetDoctors(1, 3); err != nil {
		t.Errorf("SetDoctors(1,3) = %v, want nil", err)
	}
	if err := sim.SetDoctors(99, 3); err == nil {
		t.Error("expected error for unknown consult room")
	}
}
