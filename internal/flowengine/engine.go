// Package flowengine advances one hospital's patients through reception,
// triage, consult, and observation/discharge under bounded, priority-ordered
// resource contention, per spec section 4.3. It replaces flow_engine.py's
// SimPy environment with a single-threaded discrete-event scheduler (spec
// section 9's design notes): every stage transition is a closure scheduled
// against a virtual clock, so the whole pipeline runs deterministically on
// one goroutine per hospital.
package flowengine

import (
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/gemelo-digital/urgencias-twin/internal/domain"
	"github.com/gemelo-digital/urgencias-twin/internal/generator"
	"github.com/gemelo-digital/urgencias-twin/internal/obs"
)

const (
	receptionBaseMinutes = 2.0
	triageBaseMinutes    = 5.0
	statsIntervalMinutes = 2.0
	observationMinMinutes = 60.0
	observationMaxMinutes = 240.0
)

// Callbacks are the engine's only outward effects, mirroring flow_engine.py's
// on_triage/on_consultation/on_stats constructor arguments. The caller wires
// these to the event bus; the engine never imports internal/bus directly.
type Callbacks struct {
	OnTriage       func(domain.TriageResult)
	OnConsultation func(domain.ConsultationEvent)
	OnStats        func(domain.HospitalStats)
}

// DiversionHandler decides whether, and where, a patient whose triage level
// requires the reference center should be diverted. Returning ok=false
// leaves the patient to continue locally, per spec section 4.3 step 3:
// "if no destination is available the patient proceeds here."
type DiversionHandler func(p *domain.Patient) (destination domain.HospitalId, ok bool)

// Engine is one hospital's flow engine: its resource pools, rolling
// statistics, and event scheduler.
type Engine struct {
	hospital domain.HospitalConfig
	epoch    time.Time
	rng      *rand.Rand
	sched    scheduler
	log      *zap.Logger

	desks    *pool
	boxes    *pool
	consults *consultPool
	obsBeds  *pool

	doctorsAssigned map[int]int // consultId -> doctors assigned, 1..4

	triageWaits  rollingWindow
	consultWaits rollingWindow
	totalTimes   rollingWindow

	arrivalTimes  []float64
	attendedTimes []float64
	arrivalMinute map[string]float64 // patientId -> minute entered this engine's pipeline

	divertsSent     int
	divertsReceived int

	cb               Callbacks
	diversionHandler DiversionHandler
}

// New builds a flow engine for one hospital. startTime anchors the virtual
// clock to wall-clock time so patient timestamps can be reported in both.
func New(hospital domain.HospitalConfig, startTime time.Time, seed int64, cb Callbacks, log *zap.Logger) *Engine {
	e := &Engine{
		hospital:        hospital,
		epoch:           startTime,
		rng:             rand.New(rand.NewSource(seed)),
		desks:           newPool(hospital.Desks),
		boxes:           newPool(hospital.TriageBoxes),
		consults:        newConsultPool(hospital.ConsultRooms),
		obsBeds:         newPool(hospital.ObservationBeds),
		doctorsAssigned: make(map[int]int, hospital.ConsultRooms),
		arrivalMinute:   make(map[string]float64),
		cb:              cb,
		log:             log,
	}
	for i := 1; i <= hospital.ConsultRooms; i++ {
		e.doctorsAssigned[i] = 1
	}
	e.scheduleStatsTick()
	return e
}

// SetDiversionHandler wires the coordinator's diversion decision into the
// triage stage. Nil (the default) means every reference-required patient
// proceeds locally, matching a standalone engine under test.
func (e *Engine) SetDiversionHandler(h DiversionHandler) { e.diversionHandler = h }

// Now reports the engine's virtual clock, in minutes since startTime.
func (e *Engine) Now() float64 { return e.sched.now }

// Advance drains every due event up to t (minutes since startTime),
// including periodic stats ticks. The owning simulation loop calls this on
// every clock tick; InjectPatient and Arrive also call it internally so a
// caller never needs to interleave Advance calls by hand.
func (e *Engine) Advance(t float64) { e.sched.advanceTo(t) }

// Arrive enters a freshly generated patient into the pipeline at reception,
// per spec section 4.3's per-patient pipeline step 1.
func (e *Engine) Arrive(p *domain.Patient) {
	at := p.ArrivedAt.Sub(e.epoch).Minutes()
	e.arrivalMinute[p.ID] = at
	e.sched.schedule(at, func() { e.beginReception(p) })
	e.sched.advanceTo(at)
}

// InjectPatient enters a diverted or incident-casualty patient directly at
// triage, per spec section 4.3's "Reception of injected patients" clause:
// injected patients still undergo triage at the receiving site.
func (e *Engine) InjectPatient(p *domain.Patient, at time.Time) {
	m := at.Sub(e.epoch).Minutes()
	e.arrivalMinute[p.ID] = m
	e.divertsReceived++
	e.sched.schedule(m, func() { e.beginTriage(p) })
	e.sched.advanceTo(m)
}

// SetDoctors sets the doctor count for one consult room, taking effect on
// the next consult started there; per spec section 4.3, an in-progress
// consult retains its original duration.
func (e *Engine) SetDoctors(consultID, doctors int) error {
	if consultID < 1 || consultID > e.hospital.ConsultRooms {
		return fmt.Errorf("flowengine: %w: consult %d", domain.ErrUnknownConsultRoom, consultID)
	}
	if doctors < 1 || doctors > 4 {
		return fmt.Errorf("flowengine: %w: doctors must be in [1,4], got %d", domain.ErrInvariantViolation, doctors)
	}
	e.doctorsAssigned[consultID] = doctors
	return nil
}

// Doctors reports the doctor count currently assigned to one consult room.
func (e *Engine) Doctors(consultID int) int { return e.doctorsAssigned[consultID] }

func (e *Engine) uniform() float64 { return 0.8 + e.rng.Float64()*0.4 }

func (e *Engine) wallNow() time.Time {
	return e.epoch.Add(time.Duration(e.sched.now * float64(time.Minute)))
}

func (e *Engine) recover(p *domain.Patient, stage string) {
	if r := recover(); r != nil {
		p.Outcome = domain.OutcomeError
		if e.log != nil {
			e.log.Error("flow engine stage failed",
				obs.String("patientId", p.ID),
				obs.String("hospital", string(e.hospital.ID)),
				obs.String("stage", stage),
				zap.Any("panic", r),
			)
		}
	}
}

func (e *Engine) beginReception(p *domain.Patient) {
	defer e.recover(p, "reception")
	e.arrivalTimes = append(e.arrivalTimes, e.sched.now)

	e.desks.acquire(func() {
		defer e.recover(p, "reception")
		p.DeskAssignedAt = e.wallNow()
		duration := receptionBaseMinutes * e.uniform()
		e.sched.scheduleAfter(duration, func() {
			defer e.recover(p, "reception")
			e.desks.release()
			e.beginTriage(p)
		})
	})
}

func (e *Engine) beginTriage(p *domain.Patient) {
	defer e.recover(p, "triage")
	waitStart := e.sched.now

	e.boxes.acquire(func() {
		defer e.recover(p, "triage")
		e.triageWaits.add(e.sched.now - waitStart)

		boxID := 1 + e.rng.Intn(e.hospital.TriageBoxes)
		duration := triageBaseMinutes * e.uniform()

		e.sched.scheduleAfter(duration, func() {
			defer e.recover(p, "triage")
			e.boxes.release()

			p.TriagedAt = e.wallNow()
			p.BoxID = boxID
			p.Triage = generator.SampleTriageLevel(e.rng, p.Pathology, p.Age)

			requiresDiversion := p.Triage.RequiresReference() && !e.hospital.ID.IsReferenceCenter()
			if e.cb.OnTriage != nil {
				e.cb.OnTriage(domain.TriageResult{
					PatientID:             p.ID,
					HospitalID:            e.hospital.ID,
					TriageLevel:           p.Triage,
					BoxID:                 boxID,
					TriageDurationMinutes: duration,
					RequiresDiversion:     requiresDiversion,
				})
			}

			if requiresDiversion && e.diversionHandler != nil {
				if dest, ok := e.diversionHandler(p); ok {
					p.Diverted = true
					p.DivertedFrom = e.hospital.ID
					p.DivertedTo = dest
					p.Outcome = domain.OutcomeDiverted
					e.divertsSent++
					return
				}
			}
			e.beginConsult(p)
		})
	})
}

func (e *Engine) beginConsult(p *domain.Patient) {
	defer e.recover(p, "consult")
	priority := int(p.Triage)
	waitStart := e.sched.now

	e.consults.acquire(priority, func() {
		defer e.recover(p, "consult")
		e.consultWaits.add(e.sched.now - waitStart)

		consultID := 1 + e.rng.Intn(e.hospital.ConsultRooms)
		doctors := e.doctorsAssigned[consultID]
		if doctors < 1 {
			doctors = 1
		}
		speedFactor := doctors
		if speedFactor > 4 {
			speedFactor = 4
		}
		base := domain.TriageTable[p.Triage].BaseConsultMinutes
		duration := (base / float64(speedFactor)) * e.uniform()

		p.ConsultRoom = consultID
		p.ConsultStartAt = e.wallNow()

		if e.cb.OnConsultation != nil {
			e.cb.OnConsultation(domain.ConsultationEvent{
				PatientID:        p.ID,
				HospitalID:       e.hospital.ID,
				ConsultID:        consultID,
				Phase:            domain.ConsultStart,
				TriageLevel:      p.Triage,
				DoctorsAttending: doctors,
			})
		}

		e.sched.scheduleAfter(duration, func() {
			defer e.recover(p, "consult")
			e.consults.release()
			p.ConsultEndAt = e.wallNow()

			toObservation := e.rng.Float64() < domain.TriageTable[p.Triage].ProbabilityObservation
			if toObservation {
				p.Outcome = domain.OutcomeObservation
			} else {
				p.Outcome = domain.OutcomeDischarge
			}
			p.Observation = toObservation

			durMinutes := duration
			outcomeStr := string(p.Outcome)
			if e.cb.OnConsultation != nil {
				e.cb.OnConsultation(domain.ConsultationEvent{
					PatientID:              p.ID,
					HospitalID:             e.hospital.ID,
					ConsultID:              consultID,
					Phase:                  domain.ConsultEnd,
					TriageLevel:            p.Triage,
					DoctorsAttending:       doctors,
					ConsultDurationMinutes: &durMinutes,
					Outcome:                &outcomeStr,
				})
			}

			if toObservation {
				e.beginObservation(p)
			} else {
				e.finish(p)
			}
		})
	})
}

func (e *Engine) beginObservation(p *domain.Patient) {
	defer e.recover(p, "observation")
	e.obsBeds.acquire(func() {
		defer e.recover(p, "observation")
		duration := observationMinMinutes + e.rng.Float64()*(observationMaxMinutes-observationMinMinutes)
		e.sched.scheduleAfter(duration, func() {
			defer e.recover(p, "observation")
			e.obsBeds.release()
			p.Admitted = true
			e.finish(p)
		})
	})
}

func (e *Engine) finish(p *domain.Patient) {
	if start, ok := e.arrivalMinute[p.ID]; ok {
		e.totalTimes.add(e.sched.now - start)
		delete(e.arrivalMinute, p.ID)
	}
	e.attendedTimes = append(e.attendedTimes, e.sched.now)
}

func (e *Engine) scheduleStatsTick() {
	e.sched.scheduleAfter(statsIntervalMinutes, func() {
		if e.cb.OnStats != nil {
			e.cb.OnStats(e.Stats())
		}
		e.scheduleStatsTick()
	})
}

// Stats snapshots the engine's current resource occupancy, queue lengths,
// and rolling-window waits, per spec section 4.3's statistics clause and the
// HospitalResources.get_stats saturation formula (desks*0.1 + boxes*0.3 +
// consults*0.6; observation beds are tracked but excluded, per DESIGN.md's
// resolved Open Question).
func (e *Engine) Stats() domain.HospitalStats {
	now := e.sched.now
	e.arrivalTimes = pruneOlderThan(e.arrivalTimes, now-60)
	e.attendedTimes = pruneOlderThan(e.attendedTimes, now-60)

	deskOcc := occupancy(e.desks.busy, e.hospital.Desks)
	boxOcc := occupancy(e.boxes.busy, e.hospital.TriageBoxes)
	consultOcc := occupancy(e.consults.busy, e.hospital.ConsultRooms)
	saturation := deskOcc*0.1 + boxOcc*0.3 + consultOcc*0.6

	return domain.HospitalStats{
		HospitalID:        e.hospital.ID,
		DesksBusy:         e.desks.busy,
		DesksTotal:        e.hospital.Desks,
		TriageBoxesBusy:   e.boxes.busy,
		TriageBoxesTotal:  e.hospital.TriageBoxes,
		ConsultRoomsBusy:  e.consults.busy,
		ConsultRoomsTotal: e.hospital.ConsultRooms,
		ObservationBusy:   e.obsBeds.busy,
		ObservationTotal:  e.hospital.ObservationBeds,
		QueueLengths: map[string]int{
			"reception": e.desks.queueLen(),
			"triage":    e.boxes.queueLen(),
			"consult":   e.consults.queueLen(),
		},
		RollingMeanWaits: map[string]float64{
			"triage":  e.triageWaits.mean(),
			"consult": e.consultWaits.mean(),
			"total":   e.totalTimes.mean(),
		},
		ArrivalsLastHour: len(e.arrivalTimes),
		AttendedLastHour: len(e.attendedTimes),
		DivertsSent:      e.divertsSent,
		DivertsReceived:  e.divertsReceived,
		GlobalSaturation: saturation,
		EmergencyActive:  saturation > 0.9,
		Timestamp:        e.wallNow(),
	}
}

func occupancy(busy, capacity int) float64 {
	if capacity == 0 {
		return 0
	}
	return float64(busy) / float64(capacity)
}

func pruneOlderThan(times []float64, cutoff float64) []float64 {
	i := 0
	for i < len(times) && times[i] < cutoff {
		i++
	}
	return times[i:]
}
