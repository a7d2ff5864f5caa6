// Package generator produces PatientArrival events for one hospital at a
// time, at a rate modulated by time-of-day, weekday, season, and external
// advisories, per spec section 4.2.
package generator

import (
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/gemelo-digital/urgencias-twin/internal/domain"
)

// ageBuckets is the categorical age distribution, grounded in
// patient_generator.py's EDAD_DISTRIBUCION.
var ageBuckets = []struct {
	min, max int
	weight   float64
}{
	{0, 5, 0.08},
	{6, 17, 0.12},
	{18, 35, 0.22},
	{36, 55, 0.25},
	{56, 70, 0.18},
	{71, 85, 0.12},
	{86, 100, 0.03},
}

const femaleProbability = 0.52

// Generator emits arrivals for one hospital, seeded independently so
// concurrent per-hospital generators never share RNG state (spec section
// 5's "each hospital owns a seeded RNG").
type Generator struct {
	hospital domain.HospitalConfig
	provider ContextProvider
	rng      *rand.Rand
}

// New builds a Generator for one hospital. provider may be nil, in which
// case every factor defaults to 1.0.
func New(hospital domain.HospitalConfig, provider ContextProvider, seed int64) *Generator {
	return &Generator{
		hospital: hospital,
		provider: provider,
		rng:      rand.New(rand.NewSource(seed)),
	}
}

// EffectiveRate computes the hospital's current arrivals-per-hour rate,
// per spec section 4.2 step 2: base rate modulated by hour/weekday/month/
// weather/event/football factors, clamped to [0.5, 3] times base.
func (g *Generator) EffectiveRate(at time.Time) (float64, domain.SystemContext) {
	ctx := currentFactors(g.provider, at)
	return g.effectiveRateFromContext(at, ctx), ctx
}

func (g *Generator) effectiveRateFromContext(at time.Time, ctx domain.SystemContext) float64 {
	weekday := (int(at.Weekday()) + 6) % 7

	effective := g.hospital.BaseArrivalPerHr *
		domain.HourlyDemandFactor(at.Hour()) *
		domain.WeekdayDemandFactor(weekday) *
		domain.MonthlyDemandFactor(int(at.Month())) *
		ctx.FactorClima * ctx.FactorEvento * ctx.FactorFutbol

	return domain.ClampArrivalRate(effective, g.hospital.BaseArrivalPerHr)
}

// NextInterArrivalMinutes draws the simulated minutes until the next
// arrival from an exponential distribution with mean 60/rate, per spec
// section 4.2 step 3.
func (g *Generator) NextInterArrivalMinutes(ratePerHour float64) float64 {
	if ratePerHour <= 0 {
		ratePerHour = 0.1
	}
	meanMinutes := 60.0 / ratePerHour
	return g.rng.ExpFloat64() * meanMinutes
}

// GenerateArrival produces one PatientArrival for this hospital at the
// given simulated wall time, per spec section 4.2 step 4. The triage level
// is deliberately absent: the flow engine assigns it during triage.
func (g *Generator) GenerateArrival(at time.Time) domain.PatientArrival {
	ctx := currentFactors(g.provider, at)
	age := g.sampleAge()
	sex := g.sampleSex()
	pathology := g.selectPathology(ctx)
	rate := g.effectiveRateFromContext(at, ctx)

	return domain.PatientArrival{
		PatientID:       uuid.NewString(),
		HospitalID:      g.hospital.ID,
		Age:             age,
		Sex:             sex,
		PathologyTag:    pathology,
		ArrivalWallTime: at,
		DemandFactor:    rate / g.hospital.BaseArrivalPerHr,
	}
}

// SampleTriageLevel assigns a triage level for a pathology/age pair, used
// by the flow engine at the triage stage (spec section 4.3 step 2). It is
// exported from the generator because the pathology-to-triage calibration
// table belongs with the pathology catalogue, grounded in
// patient_generator.py's _determine_triage_level.
func SampleTriageLevel(rng *rand.Rand, pathology string, age int) domain.TriageLevel {
	weights := cloneWeights(weightsFor(pathology))

	// Extremes of age skew toward more urgent levels.
	if age < 5 || age > 75 {
		if w, ok := weights[domain.Orange]; ok {
			weights[domain.Orange] = w * 1.3
		}
		if w, ok := weights[domain.Yellow]; ok {
			weights[domain.Yellow] = w * 1.2
		}
	}

	var total float64
	for _, w := range weights {
		total += w
	}
	if total == 0 {
		return domain.Green
	}

	r := rng.Float64() * total
	var cumulative float64
	for _, level := range domain.OrderedLevels() {
		w, ok := weights[level]
		if !ok {
			continue
		}
		cumulative += w
		if r <= cumulative {
			return level
		}
	}
	return domain.Green
}

func cloneWeights(w map[domain.TriageLevel]float64) map[domain.TriageLevel]float64 {
	out := make(map[domain.TriageLevel]float64, len(w))
	for k, v := range w {
		out[k] = v
	}
	return out
}

func (g *Generator) sampleAge() int {
	r := g.rng.Float64()
	var cumulative float64
	for _, b := range ageBuckets {
		cumulative += b.weight
		if r <= cumulative {
			return b.min + g.rng.Intn(b.max-b.min+1)
		}
	}
	return 30 + g.rng.Intn(21)
}

func (g *Generator) sampleSex() domain.Sex {
	if g.rng.Float64() < femaleProbability {
		return domain.Female
	}
	return domain.Male
}

// selectPathology picks a pathology tag, biasing toward context-specific
// pools when the current conditions call for it, grounded in
// patient_generator.py's _select_patologia.
func (g *Generator) selectPathology(ctx domain.SystemContext) string {
	pool := basePathologies()

	if isCold(ctx) {
		pool = appendRepeated(pool, coldPathologies, 3)
	}
	if isHot(ctx) {
		pool = appendRepeated(pool, heatPathologies, 3)
	}
	if isRaining(ctx) {
		pool = appendRepeated(pool, rainPathologies, 2)
	}
	if hasEvent(ctx) {
		pool = appendRepeated(pool, eventPathologies, 2)
	}
	if hasFootball(ctx) {
		pool = appendRepeated(pool, sportPathologies, 2)
	}

	return pool[g.rng.Intn(len(pool))]
}

func appendRepeated(pool []string, extra []string, times int) []string {
	for i := 0; i < times; i++ {
		pool = append(pool, extra...)
	}
	return pool
}
