package predictor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/gemelo-digital/urgencias-twin/internal/bus"
	"github.com/gemelo-digital/urgencias-twin/internal/domain"
	"github.com/gemelo-digital/urgencias-twin/internal/obs"
)

const (
	groupID      = "predictor-group"
	consumerName = "predictor"
)

// BusClient is the subset of *bus.Client the predictor's consumer needs.
type BusClient interface {
	Subscribe(ctx context.Context, topics []string, groupID, consumerName string) (<-chan bus.Message, error)
	Ack(ctx context.Context, groupID string, msg bus.Message) error
	Produce(ctx context.Context, topic string, payload any, opts bus.ProduceOptions) error
}

// Consumer owns the predictor's only bus-facing concern: every hospital's
// reported arrivals-last-hour is checked against its own demand forecast,
// and a qualifying anomaly is published for the coordinator to see.
// Grounded in original_source/backend/predictor/main.py's
// PredictionService's hospital-stats subscription loop.
type Consumer struct {
	predictor *Predictor
	busClient BusClient
	log       *zap.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
}

// NewConsumer wraps a Predictor with the bus-consumption loop main.go wires
// into the predictor process.
func NewConsumer(p *Predictor, busClient BusClient, log *zap.Logger) *Consumer {
	return &Consumer{predictor: p, busClient: busClient, log: log}
}

// Start subscribes to hospital-stats and runs until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.running = true
	c.cancel = cancel
	c.mu.Unlock()

	messages, err := c.busClient.Subscribe(runCtx, []string{domain.TopicHospitalStats}, groupID, consumerName)
	if err != nil {
		return fmt.Errorf("predictor: subscribe: %w", err)
	}

	for {
		select {
		case <-runCtx.Done():
			c.mu.Lock()
			c.running = false
			c.mu.Unlock()
			return nil
		case msg, ok := <-messages:
			if !ok {
				c.mu.Lock()
				c.running = false
				c.mu.Unlock()
				return nil
			}
			c.handleMessage(runCtx, msg)
			if err := c.busClient.Ack(runCtx, groupID, msg); err != nil && c.log != nil {
				c.log.Warn("predictor ack failed", obs.String("topic", msg.Topic), obs.Err(err))
			}
		}
	}
}

// Stop cancels the consumer's running loop.
func (c *Consumer) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (c *Consumer) handleMessage(ctx context.Context, msg bus.Message) {
	if msg.Topic != domain.TopicHospitalStats {
		return
	}
	var stats domain.HospitalStats
	if err := json.Unmarshal(msg.Payload, &stats); err != nil {
		if c.log != nil {
			c.log.Warn("predictor decode failed", obs.String("topic", msg.Topic), obs.Err(err))
		}
		return
	}

	alert, err := c.predictor.DetectAnomaly(stats.HospitalID, float64(stats.ArrivalsLastHour))
	if err != nil {
		if c.log != nil {
			c.log.Warn("anomaly detection failed", obs.String("hospitalId", string(stats.HospitalID)), obs.Err(err))
		}
		return
	}
	if alert == nil {
		return
	}
	if err := c.busClient.Produce(ctx, domain.TopicPredictionAlerts, alert, bus.ProduceOptions{Validate: true}); err != nil && c.log != nil {
		c.log.Warn("prediction alert publish failed", obs.Err(err))
	}
}
