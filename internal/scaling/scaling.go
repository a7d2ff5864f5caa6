// Package scaling controls dynamic doctor staffing in CHUAC's consult
// rooms: manual scale requests and a saturation-triggered auto-scale pass,
// per spec section 4.8. Grounded in
// original_source/backend/coordinator/scaling_controller.py's
// ScalingController.
package scaling

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/gemelo-digital/urgencias-twin/internal/breaker"
	"github.com/gemelo-digital/urgencias-twin/internal/bus"
	"github.com/gemelo-digital/urgencias-twin/internal/domain"
	"github.com/gemelo-digital/urgencias-twin/internal/obs"
)

const (
	minDoctorsPerRoom = 1
	maxDoctorsPerRoom = 4

	thresholdScaleUp   = 0.80
	thresholdScaleDown = 0.50
)

// SaturationSource is the subset of *saturation.Monitor auto-scaling reads.
type SaturationSource interface {
	State(h domain.HospitalId) (domain.SaturationState, bool)
}

// DoctorSetter pushes a consult room's doctor count into the flow engine,
// satisfied by *flowengine.Engine and *simulation.Simulation alike.
type DoctorSetter interface {
	SetDoctors(consultID, doctors int) error
}

// Publisher is the subset of *bus.Client the controller needs.
type Publisher interface {
	Produce(ctx context.Context, topic string, payload any, opts bus.ProduceOptions) error
}

// roomState mirrors ConsultaState: the assigned doctor count plus the
// ordered list of doctor IDs drawn from the on-call pool for this room,
// released LIFO (most-recently-attached doctor leaves first).
type roomState struct {
	doctorsAssigned int
	attached        []string
}

// Controller is CHUAC's scaling controller; only the reference center
// permits dynamic doctor scaling, per spec section 4.8.
type Controller struct {
	saturation SaturationSource
	setter     DoctorSetter
	pub        Publisher
	log        *zap.Logger
	cb         *breaker.CircuitBreaker

	mu    sync.Mutex
	pool  []string // on-call doctors not currently attached to any room, FIFO
	rooms map[int]*roomState
}

// New builds a Controller over numConsultRooms rooms, each starting at one
// doctor, with the given initial on-call pool. Repeated scale-up attempts
// that fail with domain.ErrInsufficientOnCall trip a circuit breaker so
// AutoScale stops hammering ScaleConsult once the pool is known to be
// exhausted, re-probing only after the cooldown.
func New(numConsultRooms int, onCallPool []string, saturation SaturationSource, setter DoctorSetter, pub Publisher, log *zap.Logger) *Controller {
	rooms := make(map[int]*roomState, numConsultRooms)
	for i := 1; i <= numConsultRooms; i++ {
		rooms[i] = &roomState{doctorsAssigned: 1}
	}
	return &Controller{
		saturation: saturation,
		setter:     setter,
		pub:        pub,
		log:        log,
		cb:         breaker.New(1*time.Minute, 30*time.Second, 0.5, 5),
		pool:       append([]string(nil), onCallPool...),
		rooms:      rooms,
	}
}

// SetOnCallPool replaces the free on-call pool, leaving every room's
// already-attached doctors untouched.
func (c *Controller) SetOnCallPool(entries []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pool = append([]string(nil), entries...)
	if c.log != nil {
		c.log.Info("on-call pool updated", obs.String("hospital", string(domain.CHUAC)))
	}
}

// ScaleConsult sets consultID's doctor count to target, drawing or
// releasing doctors against the on-call pool. Returns
// domain.ErrInsufficientOnCall if a scale-up needs more doctors than the
// pool holds; the room is left unchanged in that case (no partial scale-up).
func (c *Controller) ScaleConsult(ctx context.Context, consultID, target int) (*domain.CapacityChange, error) {
	if target < minDoctorsPerRoom || target > maxDoctorsPerRoom {
		return nil, domain.ErrInvariantViolation
	}

	c.mu.Lock()
	room, ok := c.rooms[consultID]
	if !ok {
		c.mu.Unlock()
		return nil, domain.ErrUnknownConsultRoom
	}
	previous := room.doctorsAssigned
	if target == previous {
		c.mu.Unlock()
		return nil, nil // no change, matches scale_consulta's "sin cambio" early return
	}

	diff := target - previous
	var assigned, unassigned []string
	if diff > 0 {
		if !c.cb.Allow() {
			c.mu.Unlock()
			if c.log != nil {
				c.log.Warn("scale-up circuit open, skipping attempt",
					obs.String("hospital", string(domain.CHUAC)))
			}
			return nil, domain.ErrInsufficientOnCall
		}
		if len(c.pool) < diff {
			c.mu.Unlock()
			c.cb.Record(false)
			if c.log != nil {
				c.log.Warn("insufficient on-call doctors for scale-up",
					obs.String("hospital", string(domain.CHUAC)))
			}
			return nil, domain.ErrInsufficientOnCall
		}
		c.cb.Record(true)
		for i := 0; i < diff; i++ {
			doctor := c.pool[0]
			c.pool = c.pool[1:]
			room.attached = append(room.attached, doctor)
			room.doctorsAssigned++
			assigned = append(assigned, doctor)
		}
	} else {
		toRemove := -diff
		for i := 0; i < toRemove && len(room.attached) > 0; i++ {
			last := len(room.attached) - 1
			doctor := room.attached[last]
			room.attached = room.attached[:last]
			room.doctorsAssigned--
			c.pool = append(c.pool, doctor)
			unassigned = append(unassigned, doctor)
		}
	}
	newCount := room.doctorsAssigned
	c.mu.Unlock()

	for _, doctor := range assigned {
		c.publish(ctx, domain.TopicDoctorAssigned, domain.DoctorAssigned{
			MedicoID:               doctor,
			HospitalID:             domain.CHUAC,
			ConsultID:              consultID,
			MedicosTotalesConsulta: newCount,
			VelocidadFactor:        newCount,
		})
	}
	for _, doctor := range unassigned {
		c.publish(ctx, domain.TopicDoctorUnassigned, domain.DoctorUnassigned{
			MedicoID:                 doctor,
			HospitalID:               domain.CHUAC,
			ConsultID:                consultID,
			MedicosRestantesConsulta: newCount,
			VelocidadFactor:          max(newCount, minDoctorsPerRoom),
			Motivo:                   "reduccion_carga",
		})
	}

	if c.setter != nil {
		if err := c.setter.SetDoctors(consultID, newCount); err != nil {
			return nil, err
		}
	}

	change := domain.CapacityChange{
		HospitalID:      domain.CHUAC,
		ConsultID:       consultID,
		MedicosPrevios:  previous,
		MedicosNuevos:   newCount,
		VelocidadPrevia: previous,
		VelocidadNueva:  newCount,
		Motivo:          "escalado_manual",
	}
	obs.CapacityChanges.WithLabelValues(string(domain.CHUAC), change.Motivo).Inc()
	c.publish(ctx, domain.TopicCapacityChange, change)
	return &change, nil
}

// AutoScale evaluates CHUAC's current saturation and scales at most one
// consult room per call, the first room (by ascending consult ID) that
// qualifies. Returns nil, nil if no saturation data exists yet or no room
// qualifies.
func (c *Controller) AutoScale(ctx context.Context) (*domain.CapacityChange, error) {
	state, ok := c.saturation.State(domain.CHUAC)
	if !ok {
		return nil, nil
	}

	c.mu.Lock()
	ids := make([]int, 0, len(c.rooms))
	for id := range c.rooms {
		ids = append(ids, id)
	}
	c.mu.Unlock()
	sort.Ints(ids)

	switch {
	case state.Saturation >= thresholdScaleUp:
		for _, id := range ids {
			c.mu.Lock()
			doctors := c.rooms[id].doctorsAssigned
			c.mu.Unlock()
			if doctors >= maxDoctorsPerRoom {
				continue
			}
			change, err := c.ScaleConsult(ctx, id, min(doctors+1, maxDoctorsPerRoom))
			if err != nil {
				if err == domain.ErrInsufficientOnCall {
					continue // pool exhausted at this room: try the next candidate
				}
				return nil, err
			}
			if change != nil {
				return change, nil
			}
		}
	case state.Saturation <= thresholdScaleDown:
		for _, id := range ids {
			c.mu.Lock()
			doctors := c.rooms[id].doctorsAssigned
			c.mu.Unlock()
			if doctors <= minDoctorsPerRoom {
				continue
			}
			change, err := c.ScaleConsult(ctx, id, max(doctors-1, minDoctorsPerRoom))
			if err != nil {
				return nil, err
			}
			if change != nil {
				return change, nil
			}
		}
	}
	return nil, nil
}

// RoomDoctors returns the current doctor count for a consult room.
func (c *Controller) RoomDoctors(consultID int) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.rooms[consultID]
	if !ok {
		return 0, false
	}
	return r.doctorsAssigned, true
}

// PoolSize returns the number of doctors currently free in the on-call pool.
func (c *Controller) PoolSize() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pool)
}

// Snapshot returns every room's current doctor count, for the coordinator's
// periodic status publish (get_consultas_state's Go analog).
func (c *Controller) Snapshot() map[int]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[int]int, len(c.rooms))
	for id, r := range c.rooms {
		out[id] = r.doctorsAssigned
	}
	return out
}

func (c *Controller) publish(ctx context.Context, topic string, payload any) {
	if c.pub == nil {
		return
	}
	if err := c.pub.Produce(ctx, topic, payload, bus.ProduceOptions{Validate: true}); err != nil && c.log != nil {
		c.log.Warn("scaling event publish failed", obs.String("topic", topic), obs.Err(err))
	}
}

