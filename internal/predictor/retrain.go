package predictor

import (
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/gemelo-digital/urgencias-twin/internal/obs"
)

// Scheduler drives periodic retraining on a cron cadence, grounded in spec
// section 4.10's "re-trained at a configurable cadence (default: once per
// simulated day)".
type Scheduler struct {
	cron *cron.Cron
	log  *zap.Logger
}

// NewScheduler builds a Scheduler that retrains every hospital's model on
// the given cron expression. Call Start to begin running it.
func NewScheduler(p *Predictor, spec string, log *zap.Logger) (*Scheduler, error) {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		if err := p.TrainAll(); err != nil && log != nil {
			log.Error("scheduled retrain failed", obs.Err(err))
		}
	})
	if err != nil {
		return nil, err
	}
	return &Scheduler{cron: c, log: log}, nil
}

func (s *Scheduler) Start() { s.cron.Start() }

func (s *Scheduler) Stop() { s.cron.Stop() }
