package predictor

import (
	"math"
	"testing"
	"time"

	"github.com/gemelo-digital/urgencias-twin/internal/config"
	"github.com/gemelo-digital/urgencias-twin/internal/domain"
)

func newTestPredictor(t *testing.T) *Predictor {
	t.Helper()
	return New(config.Predictor{SyntheticDays: 90, AnomalyZScore: 2.0}, domain.DefaultHospitalConfigs(), nil)
}

func TestTrainThenPredictMatchesEmpiricalMeanWithin15Percent(t *testing.T) {
	p := newTestPredictor(t)
	if err := p.Train(domain.CHUAC); err != nil {
		t.Fatalf("train: %v", err)
	}

	history := generateSyntheticHistory(domain.DefaultHospitalConfigs()[domain.CHUAC], 90, time.Now())
	var sum float64
	for _, h := range history {
		sum += h.Value
	}
	empiricalMean := sum / float64(len(history))

	predictions, err := p.Predict(domain.CHUAC, 24, domain.Scenario{})
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	var predSum float64
	for _, pr := range predictions {
		predSum += pr.ExpectedArrivals
	}
	predMean := predSum / float64(len(predictions))

	diff := math.Abs(predMean-empiricalMean) / empiricalMean
	if diff > 0.15 {
		t.Fatalf("predicted mean %v vs empirical %v: relative diff %v exceeds 15%%", predMean, empiricalMean, diff)
	}
}

func TestPredictTrainsOnFirstUseWithoutExplicitTrain(t *testing.T) {
	p := newTestPredictor(t)
	// No Train call: Predict must still succeed via ensureTrained's
	// train-on-first-use path, and never return an error for a known hospital.
	predictions, err := p.Predict(domain.Modelo, 6, domain.Scenario{})
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if len(predictions) != 6 {
		t.Fatalf("expected 6 hourly predictions, got %d", len(predictions))
	}
	for _, pr := range predictions {
		if pr.ExpectedArrivals < 0 {
			t.Fatalf("expected non-negative forecast, got %v", pr.ExpectedArrivals)
		}
	}
}

func TestPredictUnknownHospitalErrors(t *testing.T) {
	p := newTestPredictor(t)
	if _, err := p.Predict("nonexistent", 1, domain.Scenario{}); err == nil {
		t.Fatalf("expected error for unknown hospital")
	}
}

func TestDetectAnomalyFiresOnTripleMeanArrivals(t *testing.T) {
	p := newTestPredictor(t)
	if err := p.Train(domain.SanRafael); err != nil {
		t.Fatalf("train: %v", err)
	}

	predictions, err := p.Predict(domain.SanRafael, 1, domain.Scenario{})
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	mu := predictions[0].ExpectedArrivals

	alert, err := p.DetectAnomaly(domain.SanRafael, 3*mu)
	if err != nil {
		t.Fatalf("detect anomaly: %v", err)
	}
	if alert == nil {
		t.Fatalf("expected an anomaly alert for 3x the mean")
	}
	if math.Abs(alert.ZScore) <= 2.0 {
		t.Fatalf("expected |z| > 2.0, got %v", alert.ZScore)
	}
}

func TestDetectAnomalyQuietOnExpectedLoad(t *testing.T) {
	p := newTestPredictor(t)
	if err := p.Train(domain.Modelo); err != nil {
		t.Fatalf("train: %v", err)
	}

	predictions, err := p.Predict(domain.Modelo, 1, domain.Scenario{})
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	alert, err := p.DetectAnomaly(domain.Modelo, predictions[0].ExpectedArrivals)
	if err != nil {
		t.Fatalf("detect anomaly: %v", err)
	}
	if alert != nil {
		t.Fatalf("expected no alert for on-forecast observation, got %+v", alert)
	}
}

func TestTrainWithEWMAModelProducesNonNegativeForecast(t *testing.T) {
	p := New(config.Predictor{SyntheticDays: 90, AnomalyZScore: 2.0, Model: "ewma"}, domain.DefaultHospitalConfigs(), nil)
	if err := p.Train(domain.CHUAC); err != nil {
		t.Fatalf("train: %v", err)
	}

	predictions, err := p.Predict(domain.CHUAC, 6, domain.Scenario{})
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if len(predictions) != 6 {
		t.Fatalf("expected 6 hourly predictions, got %d", len(predictions))
	}
	for _, pr := range predictions {
		if pr.ExpectedArrivals < 0 {
			t.Fatalf("expected non-negative forecast, got %v", pr.ExpectedArrivals)
		}
	}
}

func TestScenarioFactorsMultiplyForecast(t *testing.T) {
	p := newTestPredictor(t)
	if err := p.Train(domain.CHUAC); err != nil {
		t.Fatalf("train: %v", err)
	}

	base, err := p.Predict(domain.CHUAC, 1, domain.Scenario{})
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	rainy, err := p.Predict(domain.CHUAC, 1, domain.Scenario{Rain: true})
	if err != nil {
		t.Fatalf("predict: %v", err)
	}

	want := base[0].ExpectedArrivals * domain.ScenarioRainFactor
	if math.Abs(rainy[0].ExpectedArrivals-want) > 1e-6 {
		t.Fatalf("expected rain-scaled forecast %v, got %v", want, rainy[0].ExpectedArrivals)
	}
}
