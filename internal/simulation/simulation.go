// Package simulation owns one hospital's simulated clock: it drives the
// patient generator and flow engine forward in small slices of wall-clock
// time, at a configurable speed, and publishes every event the flow engine
// and generator produce onto the bus. Grounded in
// original_source/backend/simulator/hospital_simulation.py's
// HospitalSimulation, replacing its SimPy generator-processes with a
// ticker goroutine that calls flowengine.Engine.Advance directly (per spec
// section 9's single-scheduler-per-hospital design).
package simulation

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/gemelo-digital/urgencias-twin/internal/bus"
	"github.com/gemelo-digital/urgencias-twin/internal/domain"
	"github.com/gemelo-digital/urgencias-twin/internal/flowengine"
	"github.com/gemelo-digital/urgencias-twin/internal/generator"
	"github.com/gemelo-digital/urgencias-twin/internal/obs"
)

const (
	contextIntervalSimMinutes = 60.0
	defaultMaxTickMinutes     = 10.0
	tickWallInterval          = 200 * time.Millisecond
)

// Publisher is the subset of *bus.Client the simulation needs, narrowed so
// tests can supply a stub instead of a live Redis connection.
type Publisher interface {
	Produce(ctx context.Context, topic string, payload any, opts bus.ProduceOptions) error
}

// Simulation owns one hospital's simulated clock. Speed maps wall-clock
// seconds to simulated minutes: speed=1 means one real second advances the
// clock by one simulated minute, matching spec section 4.4's time model.
type Simulation struct {
	hospital domain.HospitalConfig
	epoch    time.Time
	pub      Publisher
	log      *zap.Logger
	rng      *rand.Rand

	engine    *flowengine.Engine
	generator *generator.Generator

	speed   atomic.Uint64 // float64 bits, read/written via math.Float64bits
	maxTick float64
	running atomic.Bool

	nextArrivalSim float64 // simulated minutes since epoch

	mu     sync.Mutex
	cancel context.CancelFunc
}

// New builds a Simulation for one hospital. epoch is simulated minute zero
// in wall-clock terms, used to translate patient arrival times into the
// flow engine's virtual clock.
func New(hospital domain.HospitalConfig, provider generator.ContextProvider, epoch time.Time, seed int64, pub Publisher, log *zap.Logger) *Simulation {
	s := &Simulation{
		hospital:  hospital,
		epoch:     epoch,
		pub:       pub,
		log:       log,
		rng:       rand.New(rand.NewSource(seed)),
		generator: generator.New(hospital, provider, seed),
		maxTick:   defaultMaxTickMinutes,
	}
	s.speed.Store(math.Float64bits(1.0))

	cb := flowengine.Callbacks{
		OnTriage:       s.publishTriage,
		OnConsultation: s.publishConsultation,
		OnStats:        s.publishStats,
	}
	s.engine = flowengine.New(hospital, epoch, seed, cb, log)
	return s
}

// Engine exposes the underlying flow engine so the orchestrator can wire a
// diversion handler and relay staff-scaling commands.
func (s *Simulation) Engine() *flowengine.Engine { return s.engine }

// Speed returns the current speed multiplier.
func (s *Simulation) Speed() float64 { return math.Float64frombits(s.speed.Load()) }

// SetSpeed applies a new speed multiplier, per spec section 4.4's
// SetSpeed(s) command. Values below 0.1 are clamped up to 0.1.
func (s *Simulation) SetSpeed(speed float64) {
	if speed < 0.1 {
		speed = 0.1
	}
	s.speed.Store(math.Float64bits(speed))
}

// wallAt converts a simulated-minutes offset into a wall-clock timestamp.
func (s *Simulation) wallAt(simMinutes float64) time.Time {
	return s.epoch.Add(time.Duration(simMinutes * float64(time.Minute)))
}

// Start runs the simulated clock until ctx is cancelled or Stop is called.
// It ticks roughly every 200ms of wall-clock time, advancing the flow
// engine by at most maxTick simulated minutes per tick so that a SetSpeed
// call takes effect within one tick (spec section 4.4).
func (s *Simulation) Start(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	s.publishContext(runCtx, s.wallAt(s.engine.Now()))
	lastContextPublish := s.engine.Now()

	ticker := time.NewTicker(tickWallInterval)
	defer ticker.Stop()
	for {
		select {
		case <-runCtx.Done():
			s.running.Store(false)
			return
		case <-ticker.C:
			simSlice := tickWallInterval.Seconds() * s.Speed()
			if simSlice > s.maxTick {
				simSlice = s.maxTick
			}
			target := s.engine.Now() + simSlice
			s.generateDueArrivals(runCtx, target)
			s.engine.Advance(target)
			if target-lastContextPublish >= contextIntervalSimMinutes {
				s.publishContext(runCtx, s.wallAt(target))
				lastContextPublish = target
			}
		}
	}
}

// Stop halts the simulated clock; Start may be called again afterward.
func (s *Simulation) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// InjectPatient enters a patient directly at the triage stage, per spec
// section 4.3's "reception of injected patients" clause: used for gravity/
// saturation diversions received from another hospital and for incident
// casualties routed here.
func (s *Simulation) InjectPatient(p *domain.Patient, at time.Time) {
	s.engine.InjectPatient(p, at)
}

// SetDoctors relays a staff-scaling command to the flow engine.
func (s *Simulation) SetDoctors(consultID, doctors int) error {
	return s.engine.SetDoctors(consultID, doctors)
}

// generateDueArrivals draws inter-arrival times from an exponential
// distribution at the generator's current effective rate (patients/hour
// converted to minutes), grounded in hospital_simulation.py's
// _generate_patients using random.expovariate(arrival_rate / 60), advancing
// until the next draw would land past targetSimMinutes.
func (s *Simulation) generateDueArrivals(ctx context.Context, targetSimMinutes float64) {
	for {
		wallNow := s.wallAt(s.nextArrivalSim)
		rate, _ := s.generator.EffectiveRate(wallNow)
		if rate <= 0 {
			return
		}
		interArrivalMinutes := s.rng.ExpFloat64() / (rate / 60.0)
		candidateSim := s.nextArrivalSim + interArrivalMinutes
		if candidateSim > targetSimMinutes {
			return
		}
		s.nextArrivalSim = candidateSim
		candidateWall := s.wallAt(candidateSim)
		arrival := s.generator.GenerateArrival(candidateWall)
		p := domain.NewPatient(s.hospital.ID, arrival.Age, arrival.Sex, arrival.PathologyTag, candidateWall)
		p.ID = arrival.PatientID // keep the arrival event and the flow-engine record correlated
		s.publishArrival(ctx, arrival)
		s.engine.Arrive(p)
	}
}

func (s *Simulation) publishArrival(ctx context.Context, a domain.PatientArrival) {
	obs.PatientArrivals.WithLabelValues(string(s.hospital.ID)).Inc()
	s.produce(ctx, domain.TopicPatientArrivals, a)
}

func (s *Simulation) publishTriage(r domain.TriageResult) {
	s.produce(context.Background(), domain.TopicTriageResults, r)
}

func (s *Simulation) publishConsultation(e domain.ConsultationEvent) {
	s.produce(context.Background(), domain.TopicConsultationEvents, e)
}

func (s *Simulation) publishStats(stats domain.HospitalStats) {
	obs.HospitalSaturation.WithLabelValues(string(s.hospital.ID)).Set(stats.GlobalSaturation)
	s.produce(context.Background(), domain.TopicHospitalStats, stats)
}

func (s *Simulation) publishContext(ctx context.Context, at time.Time) {
	_, sctx := s.generator.EffectiveRate(at)
	sctx.Timestamp = at
	s.produce(ctx, domain.TopicSystemContext, sctx)
}

func (s *Simulation) produce(ctx context.Context, topic string, payload any) {
	if s.pub == nil {
		return
	}
	if err := s.pub.Produce(ctx, topic, payload, bus.ProduceOptions{Validate: true}); err != nil && s.log != nil {
		s.log.Warn("simulation publish failed",
			obs.String("hospital", string(s.hospital.ID)),
			obs.String("topic", topic),
			obs.Err(err),
		)
	}
}
