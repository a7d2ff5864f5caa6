// Package coordinator hosts the cross-hospital coordinator process: it
// consumes hospital-stats and triage-results off the bus to drive
// saturation monitoring, gravity/saturation diversion, and CHUAC's
// auto-scaling, and periodically publishes a consolidated coordinator
// status snapshot. Grounded in
// original_source/backend/coordinator/main.py's Coordinator.
package coordinator

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
	"github.com/gemelo-digital/urgencias-twin/internal/obs"
	"github.com/gemelo-digital/urgencias-twin/internal/saturation"
	"github.com/gemelo-digital/urgencias-twin/internal/scaling"
)

const (
	groupID        = "coordinator-group"
	consumerName   = "coordinator"
	statusInterval = 30 * time.Second
)

// subscribedTopics mirrors main.py's Coordinator.SUBSCRIBED_TOPICS, minus
// staff-state/staff-load (the Python placeholders for those two branches
// are no-ops); the on-call pool keeps the roster New seeds it with until a
// caller replaces it through SetOnCallPool.
var subscribedTopics = []string{domain.TopicHospitalStats, domain.TopicTriageResults}

// BusClient is the subset of *bus.Client the coordinator needs: it
// produces alerts/status, and subscribes+acks the two topics it consumes.
type BusClient interface {
	Subscribe(ctx context.Context, topics []string, groupID, consumerName string) (<-chan bus.Message, error)
	Ack(ctx context.Context, groupID string, msg bus.Message) error
	Produce(ctx context.Context, topic string, payload any, opts bus.ProduceOptions) error
}

// Coordinator wires the saturation monitor, diversion manager, and CHUAC
// scaling controller onto the shared event bus.
type Coordinator struct {
	busClient  BusClient
	log        *zap.Logger
	stats      *StatsCache
	saturation *saturation.Monitor
	diversion  *diversion.Manager
	scaling    *scaling.Controller

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
}

// New builds a Coordinator over the given bus client, seeding CHUAC's
// on-call pool from its static OnCallDoctors config (a placeholder SERGAS
// roster; SetOnCallPool replaces it once a real roster is available).
func New(busClient BusClient, log *zap.Logger) *Coordinator {
	stats := NewStatsCache()
	sat := saturation.New(domain.AllHospitals())
	div := diversion.New(sat, busClient, log)

	chuacCfg := domain.DefaultHospitalConfigs()[domain.CHUAC]
	pool := make([]string, chuacCfg.OnCallDoctors)
	for i := range pool {
		pool[i] = fmt.Sprintf("sergas-%d", i+1)
	}
	// The coordinator has no direct handle on CHUAC's flow engine (it runs
	// in the simulator process); ScaleConsult's effect reaches the engine
	// indirectly once the orchestrator consumes the capacity-change event
	// this controller publishes, so DoctorSetter is left nil here.
	scale := scaling.New(chuacCfg.ConsultRooms, pool, sat, nil, busClient, log)

	c := &Coordinator{
		busClient:  busClient,
		log:        log,
		stats:      stats,
		saturation: sat,
		diversion:  div,
		scaling:    scale,
	}
	sat.RegisterAlertCallback(c.onAlert)
	return c
}

// Stats exposes the coordinator's stats cache, e.g. for an incident
// distributor run from the same process.
func (c *Coordinator) Stats() *StatsCache { return c.stats }

// SetOnCallPool replaces CHUAC's free on-call doctor pool.
func (c *Coordinator) SetOnCallPool(entries []string) { c.scaling.SetOnCallPool(entries) }

// Start runs the consume loop and the periodic status publish until ctx is
// cancelled.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.running = true
	c.cancel = cancel
	c.mu.Unlock()

	messages, err := c.busClient.Subscribe(runCtx, subscribedTopics, groupID, consumerName)
	if err != nil {
		return fmt.Errorf("coordinator: subscribe: %w", err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		c.consumeLoop(runCtx, messages)
	}()
	go func() {
		defer wg.Done()
		c.statusLoop(runCtx)
	}()
	wg.Wait()

	c.mu.Lock()
	c.running = false
	c.mu.Unlock()
	return nil
}

// Stop cancels the coordinator's running loops.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (c *Coordinator) consumeLoop(ctx context.Context, messages <-chan bus.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			c.handleMessage(ctx, msg)
			if err := c.busClient.Ack(ctx, groupID, msg); err != nil && c.log != nil {
				c.log.Warn("coordinator ack failed", obs.String("topic", msg.Topic), obs.Err(err))
			}
		}
	}
}

func (c *Coordinator) handleMessage(ctx context.Context, msg bus.Message) {
	switch msg.Topic {
	case domain.TopicHospitalStats:
		var stats domain.HospitalStats
		if err := json.Unmarshal(msg.Payload, &stats); err != nil {
			c.logDecodeError(msg.Topic, err)
			return
		}
		c.stats.Update(stats)
		c.saturation.UpdateFromStats(stats)
		if stats.HospitalID == domain.CHUAC {
			if _, err := c.scaling.AutoScale(ctx); err != nil && c.log != nil {
				c.log.Warn("auto-scale failed", obs.Err(err))
			}
		}

	case domain.TopicTriageResults:
		var result domain.TriageResult
		if err := json.Unmarshal(msg.Payload, &result); err != nil {
			c.logDecodeError(msg.Topic, err)
			return
		}
		if alert, ok := c.diversion.ProcessTriageResult(ctx, result); ok && c.log != nil {
			c.log.Info("diversion generated",
				obs.String("patientId", alert.PatientID),
				obs.String("destination", string(alert.DestinationHospital)))
		}
	}
}

func (c *Coordinator) logDecodeError(topic string, err error) {
	if c.log != nil {
		c.log.Warn("coordinator decode failed", obs.String("topic", topic), obs.Err(err))
	}
}

func (c *Coordinator) onAlert(alert domain.CoordinatorAlert) {
	if c.log != nil {
		c.log.Warn(alert.Message, obs.String("hospital", string(alert.HospitalID)), obs.String("level", string(alert.Level)))
	}
	if err := c.busClient.Produce(context.Background(), domain.TopicCoordinatorAlerts, alert, bus.ProduceOptions{Validate: true}); err != nil && c.log != nil {
		c.log.Warn("coordinator alert publish failed", obs.Err(err))
	}
}

func (c *Coordinator) statusLoop(ctx context.Context) {
	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.publishStatus(ctx)
		}
	}
}

func (c *Coordinator) publishStatus(ctx context.Context) {
	status := c.saturation.SystemStatus()
	divStats := c.diversion.StatsSnapshot()
	status.DiversionsTotal = divStats.Total
	status.DiversionsByGravity = divStats.ByGravity
	status.DiversionsBySaturation = divStats.BySaturation
	status.ChuacConsultDoctors = c.scaling.Snapshot()
	status.OnCallAvailable = c.scaling.PoolSize()

	if err := c.busClient.Produce(ctx, domain.TopicCoordinatorStatus, status, bus.ProduceOptions{Validate: true}); err != nil && c.log != nil {
		c.log.Warn("coordinator status publish failed", obs.Err(err))
	}
}
