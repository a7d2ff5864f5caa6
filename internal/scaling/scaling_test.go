package scaling

import (
	"context"
	"testing"

	"github.com/gemelo-digital/urgencias-twin/internal/breaker"
	"github.com/gemelo-digital/urgencias-twin/internal/bus"
	"github.com/gemelo-digital/urgencias-twin/internal/domain"
)

type stubSaturation struct {
	state domain.SaturationState
	has   bool
}

func (s *stubSaturation) State(domain.HospitalId) (domain.SaturationState, bool) {
	return s.state, s.has
}

type stubSetter struct {
	calls map[int]int
	err   error
}

func newStubSetter() *stubSetter { return &stubSetter{calls: make(map[int]int)} }

func (s *stubSetter) SetDoctors(consultID, doctors int) error {
	if s.err != nil {
		return s.err
	}
	s.calls[consultID] = doctors
	return nil
}

type stubPublisher struct {
	produced []string
}

func (p *stubPublisher) Produce(_ context.Context, topic string, _ any, _ bus.ProduceOptions) error {
	p.produced = append(p.produced, topic)
	return nil
}

func TestScaleConsultDrawsFromPoolFIFO(t *testing.T) {
	setter := newStubSetter()
	pub := &stubPublisher{}
	c := New(6, []string{"d1", "d2", "d3"}, &stubSaturation{}, setter, pub, nil)

	change, err := c.ScaleConsult(context.Background(), 1, 3)
	if err != nil {
		t.Fatalf("ScaleConsult = %v, want nil error", err)
	}
	if change.MedicosPrevios != 1 || change.MedicosNuevos != 3 {
		t.Errorf("change = %+v, want 1 -> 3", change)
	}
	if got, ok := c.RoomDoctors(1); !ok || got != 3 {
		t.Errorf("RoomDoctors(1) = %d, %v, want 3, true", got, ok)
	}
	if c.PoolSize() != 1 {
		t.Errorf("PoolSize() = %d, want 1 (d1, d2 drawn FIFO, d3 remains)", c.PoolSize())
	}
	if setter.calls[1] != 3 {
		t.Errorf("setter.calls[1] = %d, want 3", setter.calls[1])
	}
}

func TestScaleConsultInsufficientPoolLeavesRoomUnchanged(t *testing.T) {
	c := New(6, []string{"d1"}, &stubSaturation{}, newStubSetter(), nil, nil)

	_, err := c.ScaleConsult(context.Background(), 1, 4)
	if err != domain.ErrInsufficientOnCall {
		t.Fatalf("err = %v, want ErrInsufficientOnCall", err)
	}
	if got, _ := c.RoomDoctors(1); got != 1 {
		t.Errorf("RoomDoctors(1) = %d, want unchanged at 1", got)
	}
	if c.PoolSize() != 1 {
		t.Errorf("PoolSize() = %d, want unchanged at 1", c.PoolSize())
	}
}

func TestScaleConsultTripsBreakerAfterRepeatedInsufficientPool(t *testing.T) {
	c := New(6, nil, &stubSaturation{}, newStubSetter(), nil, nil)

	for i := 0; i < 5; i++ {
		if _, err := c.ScaleConsult(context.Background(), 1, 2); err != domain.ErrInsufficientOnCall {
			t.Fatalf("attempt %d: err = %v, want ErrInsufficientOnCall", i, err)
		}
	}
	if c.cb.State() != breaker.Open {
		t.Fatalf("breaker state = %v, want Open after repeated scale-up failures", c.cb.State())
	}

	// With the breaker open, even a now-satisfiable scale-up is refused
	// without touching the pool, until the cooldown elapses.
	c.SetOnCallPool([]string{"d1"})
	if _, err := c.ScaleConsult(context.Background(), 1, 2); err != domain.ErrInsufficientOnCall {
		t.Fatalf("err = %v, want ErrInsufficientOnCall while breaker is open", err)
	}
	if c.PoolSize() != 1 {
		t.Errorf("PoolSize() = %d, want unchanged at 1 (breaker open, pool untouched)", c.PoolSize())
	}
}

func TestScaleConsultReleaseIsLIFO(t *testing.T) {
	c := New(6, []string{"d1", "d2", "d3"}, &stubSaturation{}, newStubSetter(), nil, nil)

	if _, err := c.ScaleConsult(context.Background(), 1, 3); err != nil {
		t.Fatalf("scale up: %v", err)
	}
	// attached order is [d1, d2]; releasing one should return d2 (LIFO).
	if _, err := c.ScaleConsult(context.Background(), 1, 2); err != nil {
		t.Fatalf("scale down: %v", err)
	}
	if got, _ := c.RoomDoctors(1); got != 2 {
		t.Errorf("RoomDoctors(1) = %d, want 2", got)
	}
	if c.PoolSize() != 2 {
		t.Errorf("PoolSize() = %d, want 2 (d3 unused, d2 released back)", c.PoolSize())
	}
}

func TestScaleConsultSameTargetIsNoOp(t *testing.T) {
	c := New(6, []string{"d1"}, &stubSaturation{}, newStubSetter(), nil, nil)
	change, err := c.ScaleConsult(context.Background(), 1, 1)
	if err != nil || change != nil {
		t.Errorf("ScaleConsult(same target) = %+v, %v, want nil, nil", change, err)
	}
}

func TestScaleConsultRejectsOutOfBoundsTarget(t *testing.T) {
	c := New(6, nil, &stubSaturation{}, newStubSetter(), nil, nil)
	if _, err := c.ScaleConsult(context.Background(), 1, 5); err == nil {
		t.Error("expected error scaling to 5 doctors (max is 4)")
	}
	if _, err := c.ScaleConsult(context.Background(), 1, 0); err == nil {
		t.Error("expected error scaling to 0 doctors (min is 1)")
	}
}

func TestScaleConsultUnknownRoom(t *testing.T) {
	c := New(6, nil, &stubSaturation{}, newStubSetter(), nil, nil)
	if _, err := c.ScaleConsult(context.Background(), 99, 2); err != domain.ErrUnknownConsultRoom {
		t.Errorf("err = %v, want ErrUnknownConsultRoom", err)
	}
}

func TestAutoScaleUpPicksFirstQualifyingRoom(t *testing.T) {
	c := New(3, []string{"d1", "d2", "d3"}, &stubSaturation{
		state: domain.SaturationState{Saturation: 0.85}, has: true,
	}, newStubSetter(), nil, nil)

	change, err := c.AutoScale(context.Background())
	if err != nil {
		t.Fatalf("AutoScale = %v", err)
	}
	if change == nil || change.ConsultID != 1 || change.MedicosNuevos != 2 {
		t.Fatalf("change = %+v, want room 1 scaled to 2", change)
	}
}

func TestAutoScaleDownPicksFirstQualifyingRoom(t *testing.T) {
	c := New(3, nil, &stubSaturation{
		state: domain.SaturationState{Saturation: 0.40}, has: true,
	}, newStubSetter(), nil, nil)
	c.ScaleConsult(context.Background(), 1, 1) // already 1, make room 2 the one with >1 via pool seed
	c.pool = []string{"d1"}
	c.ScaleConsult(context.Background(), 2, 2)

	change, err := c.AutoScale(context.Background())
	if err != nil {
		t.Fatalf("AutoScale = %v", err)
	}
	if change == nil || change.ConsultID != 2 || change.MedicosNuevos != 1 {
		t.Fatalf("change = %+v, want room 2 scaled down to 1", change)
	}
}

func TestAutoScaleNoOpWithoutSaturationData(t *testing.T) {
	c := New(3, nil, &stubSaturation{has: false}, newStubSetter(), nil, nil)
	change, err := c.AutoScale(context.Background())
	if err != nil || change != nil {
		t.Errorf("AutoScale() = %+v, %v, want nil, nil with no saturation data", change, err)
	}
}

func TestAutoScaleReturnsNilWhenPoolExhausted(t *testing.T) {
	c := New(1, nil, &stubSaturation{
		state: domain.SaturationState{Saturation: 0.9}, has: true,
	}, newStubSetter(), nil, nil)
	// Room 1 has no pool to draw from; scaling up should fail to find any
	// qualifying room and return nil, nil rather than an error.
	change, err := c.AutoScale(context.Background())
	if err != nil {
		t.Fatalf("AutoScale = %v, want nil error", err)
	}
	if change != nil {
		t.Errorf("change = %+v, want nil (pool exhausted)", change)
	}
}

func TestSetOnCallPoolReplacesOnlyFreePool(t *testing.T) {
	c := New(3, []string{"d1", "d2"}, &stubSaturation{}, newStubSetter(), nil, nil)
	c.ScaleConsult(context.Background(), 1, 2) // attaches d1

	c.SetOnCallPool([]string{"e1", "e2", "e3"})
	if c.PoolSize() != 3 {
		t.Errorf("PoolSize() = %d, want 3 after pool replacement", c.PoolSize())
	}
	if got, _ := c.RoomDoctors(1); got != 2 {
		t.Errorf("RoomDoctors(1) = %d, want unchanged at 2 after pool replacement", got)
	}
}
