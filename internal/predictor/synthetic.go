package predictor

import (
	"hash/fnv"
	"math/rand"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/gemelo-digital/urgencias-twin/internal/domain"
)

// seedFor derives a deterministic RNG seed from a hospital id, grounded in
// predictor.py's `random.seed(hash(hospital_id) % 2**32)`: every hospital's
// synthetic history is reproducible but distinct from every other's.
func seedFor(id domain.HospitalId) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(id))
	return int64(h.Sum64())
}

// syntheticObservation is one hourly synthetic arrivals count used to seed a
// forecaster before any real observation has arrived.
type syntheticObservation struct {
	At    time.Time
	Value float64
}

// generateSyntheticHistory builds `days` of hourly synthetic arrivals for one
// hospital, grounded in predictor.py's _generate_synthetic_history: the same
// hour/weekday factor tables the patient generator uses, plus a monthly
// seasonal factor and hospital-specific Gaussian noise, so each hospital's
// history is reproducible and distinct.
func generateSyntheticHistory(cfg domain.HospitalConfig, days int, now time.Time) []syntheticObservation {
	rng := rand.New(rand.NewSource(seedFor(cfg.ID)))
	variability := variabilityFor(cfg.ID)

	out := make([]syntheticObservation, 0, days*24)
	start := now.AddDate(0, 0, -days)
	for d := 0; d < days; d++ {
		date := start.AddDate(0, 0, d)
		for h := 0; h < 24; h++ {
			at := time.Date(date.Year(), date.Month(), date.Day(), h, 0, 0, 0, date.Location())

			hourFactor := domain.HourlyDemandFactor(h)
			weekFactor := domain.WeekdayDemandFactor(int(at.Weekday()+6) % 7) // Go Sunday=0 -> Monday=0
			seasonFactor := domain.MonthlyDemandFactor(int(at.Month()))
			noise := 1.0 + rng.NormFloat64()*variability

			value := cfg.BaseArrivalPerHr * hourFactor * weekFactor * seasonFactor * noise
			if value < 0.5 {
				value = 0.5
			}
			out = append(out, syntheticObservation{At: at, Value: value})
		}
	}
	return out
}

// historyStats summarizes a synthetic (or observed) series, used only for
// diagnostic logging at train time.
func historyStats(history []syntheticObservation) (mean, stddev float64) {
	values := make([]float64, len(history))
	for i, h := range history {
		values[i] = h.Value
	}
	mean, stddev = stat.MeanStdDev(values, nil)
	return mean, stddev
}

// variabilityFor returns the hospital-specific noise magnitude, grounded in
// predictor.py's HOSPITAL_CONFIG variability column: CHUAC is the
// highest-volume, most variable center; Modelo is the most predictable
// (private, elective-leaning); San Rafael is the smallest and least staffed,
// so its thin sample swings the most.
func variabilityFor(id domain.HospitalId) float64 {
	switch id {
	case domain.CHUAC:
		return 0.20
	case domain.Modelo:
		return 0.10
	case domain.SanRafael:
		return 0.25
	default:
		return 0.20
	}
}
