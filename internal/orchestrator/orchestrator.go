// Package orchestrator runs every hospital's Simulation in one process: it
// owns their shared simulated epoch, wires a same-process saturation
// monitor and diversion manager so triage-time diversion decisions resolve
// synchronously (no Kafka round trip), and consumes the bus topics that
// cross a hospital boundary — incident casualties, staff-scaling events,
// and simulation-control commands. Grounded in
// original_source/backend/simulator/main.py's SimulatorOrchestrator.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/gemelo-digital/urgencias-twin/internal/bus"
	"github.com/gemelo-digital/urgencias-twin/internal/diversion"
	"github.com/gemelo-digital/urgencias-twin/internal/domain"
	"github.com/gemelo-digital/urgencias-twin/internal/flowengine"
	"github.com/gemelo-digital/urgencias-twin/internal/generator"
	"github.com/gemelo-digital/urgencias-twin/internal/idempotency"
	"github.com/gemelo-digital/urgencias-twin/internal/obs"
	"github.com/gemelo-digital/urgencias-twin/internal/saturation"
	"github.com/gemelo-digital/urgencias-twin/internal/simulation"
)

const (
	groupID      = "simulator-group"
	consumerName = "simulator"
)

// subscribedTopics mirrors main.py's three consumer threads
// (_consume_incident_patients, _consume_staff_events,
// _consume_control_commands) collapsed onto the coordinator's single-
// consume-loop shape already used in internal/coordinator.
var subscribedTopics = []string{
	domain.TopicIncidentPatients,
	domain.TopicDoctorAssigned,
	domain.TopicDoctorUnassigned,
	domain.TopicCapacityChange,
	domain.TopicSimulationControl,
}

// BusClient is the subset of *bus.Client the orchestrator needs.
type BusClient interface {
	Subscribe(ctx context.Context, topics []string, groupID, consumerName string) (<-chan bus.Message, error)
	Ack(ctx context.Context, groupID string, msg bus.Message) error
	Produce(ctx context.Context, topic string, payload any, opts bus.ProduceOptions) error
}

// Orchestrator owns one Simulation per hospital plus the in-process
// saturation/diversion wiring that lets a triage-stage diversion decision
// resolve without waiting on the cross-process coordinator.
type Orchestrator struct {
	busClient   BusClient
	log         *zap.Logger
	epoch       time.Time
	simulations map[domain.HospitalId]*simulation.Simulation
	saturation  *saturation.Monitor
	diversion   *diversion.Manager
	dedup       idempotency.IdempotencyManager

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
}

// SetDedup wires a duplicate-delivery guard for doctor-assigned events
// (P6): at-least-once bus redelivery of the same attachment must produce
// no duplicate capacity bump. Left nil, every doctor-assigned is applied
// unconditionally, matching SetDoctors' own idempotent "set absolute
// count" semantics but without the explicit per-doctor dedup P6 asks for.
func (o *Orchestrator) SetDedup(m idempotency.IdempotencyManager) {
	o.dedup = m
}

// New builds an Orchestrator over the given hospital configs, all sharing
// epoch as simulated-minute zero so a diverted patient's transfer delay
// (domain.TransferMinutes) lines up across hospitals' independent clocks.
func New(hospitals []domain.HospitalConfig, provider generator.ContextProvider, epoch time.Time, seed int64, busClient BusClient, log *zap.Logger) *Orchestrator {
	ids := make([]domain.HospitalId, len(hospitals))
	for i, cfg := range hospitals {
		ids[i] = cfg.ID
	}
	sat := saturation.New(ids)
	div := diversion.New(sat, busClient, log)

	sims := make(map[domain.HospitalId]*simulation.Simulation, len(hospitals))
	for i, cfg := range hospitals {
		sims[cfg.ID] = simulation.New(cfg, provider, epoch, seed+int64(i), busClient, log)
	}

	o := &Orchestrator{
		busClient:   busClient,
		log:         log,
		epoch:       epoch,
		simulations: sims,
		saturation:  sat,
		diversion:   div,
	}
	for hospitalID, sim := range sims {
		origin := hospitalID
		sim.Engine().SetDiversionHandler(o.diversionHandlerFor(origin))
	}
	return o
}

// Simulation returns one hospital's Simulation, e.g. for a control CLI.
func (o *Orchestrator) Simulation(h domain.HospitalId) (*simulation.Simulation, bool) {
	s, ok := o.simulations[h]
	return s, ok
}

// Start runs every hospital's simulated clock and the cross-hospital
// consume loop until ctx is cancelled.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	o.running = true
	o.cancel = cancel
	o.mu.Unlock()

	messages, err := o.busClient.Subscribe(runCtx, subscribedTopics, groupID, consumerName)
	if err != nil {
		return fmt.Errorf("orchestrator: subscribe: %w", err)
	}

	var wg sync.WaitGroup
	wg.Add(1 + len(o.simulations))
	go func() {
		defer wg.Done()
		o.consumeLoop(runCtx, messages)
	}()
	for _, sim := range o.simulations {
		sim := sim
		go func() {
			defer wg.Done()
			sim.Start(runCtx)
		}()
	}
	wg.Wait()

	o.mu.Lock()
	o.running = false
	o.mu.Unlock()
	return nil
}

// Stop halts every simulation and the consume loop.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	cancel := o.cancel
	o.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	for _, sim := range o.simulations {
		sim.Stop()
	}
}

func (o *Orchestrator) consumeLoop(ctx context.Context, messages <-chan bus.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			o.handleMessage(msg)
			if err := o.busClient.Ack(ctx, groupID, msg); err != nil && o.log != nil {
				o.log.Warn("orchestrator ack failed", obs.String("topic", msg.Topic), obs.Err(err))
			}
		}
	}
}

func (o *Orchestrator) handleMessage(msg bus.Message) {
	switch msg.Topic {
	case domain.TopicIncidentPatients:
		o.handleIncidentCasualty(msg)
	case domain.TopicDoctorAssigned:
		o.handleDoctorAssigned(msg)
	case domain.TopicDoctorUnassigned:
		o.handleScaleEvent(msg, domain.CHUAC, func() (int, int, error) {
			var e domain.DoctorUnassigned
			err := json.Unmarshal(msg.Payload, &e)
			return e.ConsultID, e.MedicosRestantesConsulta, err
		})
	case domain.TopicCapacityChange:
		o.handleScaleEvent(msg, domain.CHUAC, func() (int, int, error) {
			var e domain.CapacityChange
			err := json.Unmarshal(msg.Payload, &e)
			return e.ConsultID, e.MedicosNuevos, err
		})
	case domain.TopicSimulationControl:
		o.handleControlCommand(msg)
	}
}

// handleIncidentCasualty injects one incident-patients message directly at
// triage, per main.py's _consume_incident_patients building a Patient via
// Patient.from_arrival and calling flow_engine.process_patient.
func (o *Orchestrator) handleIncidentCasualty(msg bus.Message) {
	var c domain.IncidentCasualty
	if err := json.Unmarshal(msg.Payload, &c); err != nil {
		o.logDecodeError(msg.Topic, err)
		return
	}
	sim, ok := o.simulations[c.HospitalID]
	if !ok {
		if o.log != nil {
			o.log.Warn("incident casualty for unknown hospital", obs.String("hospitalId", string(c.HospitalID)))
		}
		return
	}
	arrivalWall := o.wallAt(sim.Engine().Now())
	p := domain.NewPatient(c.HospitalID, c.Age, c.Sex, c.Pathology, arrivalWall)
	p.ID = c.PatientID
	sim.InjectPatient(p, arrivalWall)
}

// handleDoctorAssigned applies a doctor-assigned event to CHUAC's flow
// engine, deduplicating by (hospital, consult room, doctor) via the
// idempotency manager so redelivering the same attachment produces no
// duplicate capacity change, per spec.md P6.
func (o *Orchestrator) handleDoctorAssigned(msg bus.Message) {
	var e domain.DoctorAssigned
	if err := json.Unmarshal(msg.Payload, &e); err != nil {
		o.logDecodeError(msg.Topic, err)
		return
	}
	if o.dedup != nil {
		key := fmt.Sprintf("doctor-assigned:%s:%d:%s", e.HospitalID, e.ConsultID, e.MedicoID)
		duplicate, err := o.dedup.CheckAndReserve(context.Background(), key, 0)
		if err != nil {
			if o.log != nil {
				o.log.Warn("doctor-assigned dedup check failed", obs.Err(err))
			}
		} else if duplicate {
			if o.log != nil {
				o.log.Debug("duplicate doctor-assigned skipped",
					obs.String("medicoId", e.MedicoID), obs.String("hospitalId", string(e.HospitalID)))
			}
			return
		}
	}
	sim, ok := o.simulations[domain.CHUAC]
	if !ok {
		return
	}
	if err := sim.SetDoctors(e.ConsultID, e.MedicosTotalesConsulta); err != nil && o.log != nil {
		o.log.Warn("staff-scaling relay failed", obs.String("topic", msg.Topic), obs.Err(err))
	}
}

// handleScaleEvent relays doctor-unassigned/capacity-change onto
// CHUAC's flow engine, mirroring _consume_staff_events filtering every
// event to CHUAC (the only scalable hospital) and calling scale_consulta.
func (o *Orchestrator) handleScaleEvent(msg bus.Message, hospital domain.HospitalId, decode func() (consultID, doctors int, err error)) {
	consultID, doctors, err := decode()
	if err != nil {
		o.logDecodeError(msg.Topic, err)
		return
	}
	sim, ok := o.simulations[hospital]
	if !ok {
		return
	}
	if err := sim.SetDoctors(consultID, doctors); err != nil && o.log != nil {
		o.log.Warn("staff-scaling relay failed",
			obs.String("topic", msg.Topic), obs.Err(err))
	}
}

// handleControlCommand relays simulation-control's set_speed/stop commands
// to every hospital's simulation, mirroring _consume_control_commands.
func (o *Orchestrator) handleControlCommand(msg bus.Message) {
	var cmd domain.SimulationControlCommand
	if err := json.Unmarshal(msg.Payload, &cmd); err != nil {
		o.logDecodeError(msg.Topic, err)
		return
	}
	switch cmd.Command {
	case "set_speed":
		if cmd.Speed == nil {
			return
		}
		for _, sim := range o.simulations {
			sim.SetSpeed(*cmd.Speed)
		}
	case "stop":
		o.Stop()
	}
}

// diversionHandlerFor adapts diversion.Manager.ProcessTriageResult to
// flowengine.DiversionHandler for one hospital, refreshing the in-process
// saturation monitor from every hospital's live engine stats immediately
// before deciding so the decision never reads data older than this instant
// — a synchronous substitute for the Kafka-relayed hospital-stats
// main.py's coordinator relies on, since a triage-stage decision here
// cannot wait on a bus round trip. On a qualifying diversion it also
// performs the physical transfer: InjectPatient on the destination
// simulation after domain.TransferMinutes(origin, dest), which main.py's
// simulator left to "the coordinator will handle it" and never actually
// relayed.
func (o *Orchestrator) diversionHandlerFor(origin domain.HospitalId) flowengine.DiversionHandler {
	return func(p *domain.Patient) (domain.HospitalId, bool) {
		o.refreshSaturation()

		result := domain.TriageResult{
			PatientID:   p.ID,
			HospitalID:  origin,
			TriageLevel: p.Triage,
		}
		alert, ok := o.diversion.ProcessTriageResult(context.Background(), result)
		if !ok {
			return "", false
		}

		dest := alert.DestinationHospital
		if destSim, exists := o.simulations[dest]; exists {
			originSim := o.simulations[origin]
			arrivalSim := originSim.Engine().Now() + domain.TransferMinutes(origin, dest)
			arrivalWall := o.wallAt(arrivalSim)
			transferred := domain.NewPatient(dest, p.Age, p.Sex, p.Pathology, arrivalWall)
			transferred.ID = p.ID
			transferred.OriginHospital = origin
			transferred.Diverted = true
			transferred.DivertedFrom = origin
			transferred.DivertedTo = dest
			destSim.InjectPatient(transferred, arrivalWall)
		}
		return dest, true
	}
}

func (o *Orchestrator) refreshSaturation() {
	for _, sim := range o.simulations {
		o.saturation.UpdateFromStats(sim.Engine().Stats())
	}
}

func (o *Orchestrator) wallAt(simMinutes float64) time.Time {
	return o.epoch.Add(time.Duration(simMinutes * float64(time.Minute)))
}

func (o *Orchestrator) logDecodeError(topic string, err error) {
	if o.log != nil {
		o.log.Warn("orchestrator decode failed", obs.String("topic", topic), obs.Err(err))
	}
}
