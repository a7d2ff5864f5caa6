// Package predictor implements the per-hospital demand forecaster and
// anomaly detector described in section 4.10: a Holt-Winters model with a
// 24-hour seasonal period, trained on ninety days of synthetic (or real)
// hourly arrivals, with a profile-only fallback when training or the
// model's forecast fails.
package predictor

import (
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/gemelo-digital/urgencias-twin/internal/config"
	"github.com/gemelo-digital/urgencias-twin/internal/domain"
	"github.com/gemelo-digital/urgencias-twin/internal/forecasting"
	"github.com/gemelo-digital/urgencias-twin/internal/obs"
)

// HourlyPrediction is one hour of a Predict() response.
type HourlyPrediction struct {
	Hour            int
	Timestamp       time.Time
	ExpectedArrivals float64
	Lower           float64
	Upper           float64
	ScenarioFactor  float64
}

// Predictor owns one forecasting model per hospital plus the static
// configuration used to build synthetic training history and profile-only
// fallbacks.
type Predictor struct {
	mu          sync.RWMutex
	models      map[domain.HospitalId]forecasting.Forecaster
	configs     map[domain.HospitalId]domain.HospitalConfig
	syntheticDays int
	zScore      float64
	model       string
	log         *zap.Logger
}

// New builds a Predictor for the given hospital configs. A hospital's model
// is trained by Train, by TrainAll, or on that hospital's first Predict call;
// Predict falls back to the profile-only forecast when that training or the
// model's forecast fails. cfg.Model selects the forecasting.Forecaster
// implementation trained per hospital ("holt_winters" or "ewma"); an empty
// or unrecognized value falls back to "holt_winters".
func New(cfg config.Predictor, hospitals map[domain.HospitalId]domain.HospitalConfig, log *zap.Logger) *Predictor {
	return &Predictor{
		models:        make(map[domain.HospitalId]forecasting.Forecaster),
		configs:       hospitals,
		syntheticDays: cfg.SyntheticDays,
		zScore:        cfg.AnomalyZScore,
		model:         cfg.Model,
		log:           log,
	}
}

// newModel builds the configured forecasting.Forecaster implementation.
// holt_winters is the default: a hospital whose history is too short or
// noisy for a reliable 24-hour season can opt into the lighter ewma model
// instead (see config.Predictor.Model).
func (p *Predictor) newModel() forecasting.Forecaster {
	if p.model == "ewma" {
		return forecasting.NewEWMAForecaster(&forecasting.EWMAConfig{
			Alpha:              0.3,
			AutoAdjust:         true,
			MinObservations:    5,
			ConfidenceInterval: 0.95,
		})
	}
	return forecasting.NewHoltWintersForecaster(&forecasting.HoltWintersConfig{
		Alpha:            0.3,
		Beta:             0.1,
		Gamma:            0.1,
		SeasonLength:     24, // one day of hourly arrivals
		SeasonalMethod:   "additive",
		AutoDetectSeason: false,
	})
}

// Train (re)trains the hospital's model from ninety days (configurable) of
// deterministic synthetic history, per spec section 4.10: "Model training is
// triggered on first use and re-trained at a configurable cadence."
func (p *Predictor) Train(hospitalID domain.HospitalId) error {
	cfg, ok := p.configs[hospitalID]
	if !ok {
		return domain.UnknownHospitalError{ID: hospitalID}
	}

	history := generateSyntheticHistory(cfg, p.syntheticDays, time.Now())
	model := p.newModel()
	for _, point := range history {
		if err := model.Update(point.Value); err != nil {
			return fmt.Errorf("train %s: %w", hospitalID, err)
		}
	}

	p.mu.Lock()
	p.models[hospitalID] = model
	p.mu.Unlock()

	if p.log != nil {
		mean, stddev := historyStats(history)
		p.log.Info("predictor trained",
			obs.String("hospital", string(hospitalID)),
			obs.Int("observations", len(history)),
			zap.Float64("mean_arrivals_per_hour", mean),
			zap.Float64("stddev_arrivals_per_hour", stddev),
		)
	}
	return nil
}

// TrainAll trains every configured hospital's model, used at startup and by
// the retrain cron job.
func (p *Predictor) TrainAll() error {
	for id := range p.configs {
		if err := p.Train(id); err != nil {
			return err
		}
	}
	return nil
}

// ensureTrained trains a hospital's model on first use, matching
// predictor.py's predict(): "Si no hay modelo entrenado, entrenar ahora."
func (p *Predictor) ensureTrained(hospitalID domain.HospitalId) (forecasting.Forecaster, bool) {
	p.mu.RLock()
	model, ok := p.models[hospitalID]
	p.mu.RUnlock()
	if ok {
		return model, true
	}
	if err := p.Train(hospitalID); err != nil {
		return nil, false
	}
	p.mu.RLock()
	model, ok = p.models[hospitalID]
	p.mu.RUnlock()
	return model, ok
}

// Predict returns an hourly forecast for the next horizonHours, applying the
// optional scenario multiplier to every point. If the model cannot be
// trained or forecasting fails, Predict degrades to a profile-only forecast
// built directly from the demand factor tables (domain.ErrPredictorUnavailable
// is never returned to the caller; the degraded path always succeeds).
func (p *Predictor) Predict(hospitalID domain.HospitalId, horizonHours int, scenario domain.Scenario) ([]HourlyPrediction, error) {
	cfg, ok := p.configs[hospitalID]
	if !ok {
		return nil, domain.UnknownHospitalError{ID: hospitalID}
	}

	scenarioFactor := scenario.Factor()
	now := time.Now()

	model, trained := p.ensureTrained(hospitalID)
	if !trained {
		if p.log != nil {
			p.log.Warn("predictor degraded to profile-only forecast", obs.String("hospital", string(hospitalID)))
		}
		return profileForecast(cfg, horizonHours, scenarioFactor, now), nil
	}

	result, err := model.Forecast(horizonHours)
	if err != nil {
		if p.log != nil {
			p.log.Warn("predictor forecast failed, degrading to profile", obs.String("hospital", string(hospitalID)), obs.Err(err))
		}
		return profileForecast(cfg, horizonHours, scenarioFactor, now), nil
	}

	out := make([]HourlyPrediction, horizonHours)
	for i := 0; i < horizonHours; i++ {
		at := now.Add(time.Duration(i) * time.Hour)
		out[i] = HourlyPrediction{
			Hour:             at.Hour(),
			Timestamp:        at,
			ExpectedArrivals: math.Max(0, result.Points[i]*scenarioFactor),
			Lower:            math.Max(0, result.LowerBounds[i]*scenarioFactor),
			Upper:            math.Max(0, result.UpperBounds[i]*scenarioFactor),
			ScenarioFactor:   scenarioFactor,
		}
	}
	if acc := model.GetAccuracy(); acc != nil {
		obs.PredictorAccuracyMAPE.WithLabelValues(string(hospitalID)).Set(acc.MAPE)
	}
	return out, nil
}

// profileForecast builds a forecast directly from the demand factor tables
// with no trained model, the degraded path required by spec section 4.10's
// Failure clause.
func profileForecast(cfg domain.HospitalConfig, horizonHours int, scenarioFactor float64, now time.Time) []HourlyPrediction {
	variability := variabilityFor(cfg.ID)
	out := make([]HourlyPrediction, horizonHours)
	for i := 0; i < horizonHours; i++ {
		at := now.Add(time.Duration(i) * time.Hour)
		weekday := (int(at.Weekday()) + 6) % 7
		expected := cfg.BaseArrivalPerHr *
			domain.HourlyDemandFactor(at.Hour()) *
			domain.WeekdayDemandFactor(weekday) *
			domain.MonthlyDemandFactor(int(at.Month())) *
			scenarioFactor
		margin := expected * variability * 2
		out[i] = HourlyPrediction{
			Hour:             at.Hour(),
			Timestamp:        at,
			ExpectedArrivals: expected,
			Lower:            math.Max(0, expected-margin),
			Upper:            expected + margin,
			ScenarioFactor:   scenarioFactor,
		}
	}
	return out
}

// DetectAnomaly compares an observed hourly arrivals count against the
// current hour's forecast and reports an anomaly when the z-score exceeds
// the configured threshold, per spec section 4.10: "z = (x - mu) /
// max(w/2, 0.1). |z| > 2.0 emits an anomaly signal."
func (p *Predictor) DetectAnomaly(hospitalID domain.HospitalId, observed float64) (*domain.PredictionAlert, error) {
	predictions, err := p.Predict(hospitalID, 1, domain.Scenario{})
	if err != nil {
		return nil, err
	}
	current := predictions[0]
	halfWidth := (current.Upper - current.Lower) / 2
	denom := math.Max(halfWidth/2, 0.1)
	z := (observed - current.ExpectedArrivals) / denom

	if math.Abs(z) <= p.zScore {
		return nil, nil
	}
	return &domain.PredictionAlert{
		HospitalID: hospitalID,
		Hour:       current.Hour,
		Observed:   observed,
		Expected:   current.ExpectedArrivals,
		ZScore:     z,
		Timestamp:  time.Now(),
	}, nil
}
