// Package incident apportions mass-casualty incidents across the three
// hospitals via a multi-factor scoring function, per spec section 4.9.
// Grounded in original_source/backend/api/incident_routes.py's incident
// endpoints (stubs only by the time this repo was distilled — the scoring
// itself follows the specification directly) and
// patient_generator.py's pathology/age sampling for the generated
// casualty records.
package incident

import (
	"context"
	"math"
	"math/rand"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gemelo-digital/urgencias-twin/internal/bus"
	"github.com/gemelo-digital/urgencias-twin/internal/domain"
	"github.com/gemelo-digital/urgencias-twin/internal/generator"
	"github.com/gemelo-digital/urgencias-twin/internal/obs"
)

const (
	weightDistance   = 0.30
	weightSaturation = 0.35
	weightWait       = 0.25
	weightFreeBoxes  = 0.10

	distanceScaleKM  = 10.0
	waitScaleMinutes = 120.0
	qualifyThreshold = 0.1
	epsilon          = 1e-9
)

// Incident describes one mass-casualty event to apportion, grounded in
// spec section 3's Incident entity.
type Incident struct {
	ID                string
	Kind              string
	TriageDistribution map[domain.TriageLevel]float64
	TotalPatients     int
	Location          *domain.LatLon
}

// StatsSource is the subset of a per-hospital stats cache the distributor
// reads: the latest HospitalStats snapshot, or false if none has arrived
// yet (e.g. before the first hospital-stats tick).
type StatsSource interface {
	LatestStats(h domain.HospitalId) (domain.HospitalStats, bool)
}

// Publisher is the subset of *bus.Client the distributor needs.
type Publisher interface {
	Produce(ctx context.Context, topic string, payload any, opts bus.ProduceOptions) error
}

// Distributor scores every hospital against an incident and apportions
// casualties, publishing the resulting IncidentDistribution.
type Distributor struct {
	hospitals []domain.HospitalConfig
	stats     StatsSource
	pub       Publisher
	log       *zap.Logger
	rng       *rand.Rand
}

// New builds a Distributor over the given hospitals' static configuration.
func New(hospitals []domain.HospitalConfig, stats StatsSource, pub Publisher, log *zap.Logger, seed int64) *Distributor {
	return &Distributor{
		hospitals: hospitals,
		stats:     stats,
		pub:       pub,
		log:       log,
		rng:       rand.New(rand.NewSource(seed)),
	}
}

// hospitalScore is a hospital's weighted combination of its four component
// scores (lower means more able to absorb casualties).
type hospitalScore struct {
	hospital domain.HospitalId
	combined float64
}

// score computes a hospital's combined score, per spec section 4.9's
// four weighted components.
func (d *Distributor) score(cfg domain.HospitalConfig, loc *domain.LatLon) float64 {
	distScore := 0.5
	if loc != nil {
		km := haversineKM(cfg.Location, *loc)
		distScore = clamp01(km / distanceScaleKM)
	}

	saturation := 0.0
	waitScore := 0.0
	freeBoxesRatio := 1.0
	if snap, ok := d.stats.LatestStats(cfg.ID); ok {
		saturation = clamp01(snap.GlobalSaturation)
		waitScore = clamp01(snap.RollingMeanWaits["total"] / waitScaleMinutes)
		if snap.TriageBoxesTotal > 0 {
			freeBoxesRatio = clamp01(float64(snap.TriageBoxesTotal-snap.TriageBoxesBusy) / float64(snap.TriageBoxesTotal))
		}
	}

	return weightDistance*distScore +
		weightSaturation*saturation +
		weightWait*waitScore +
		weightFreeBoxes*(1-freeBoxesRatio)
}

// Apportion computes the per-hospital casualty counts for an incident and
// publishes the resulting IncidentDistribution.
func (d *Distributor) Apportion(ctx context.Context, inc Incident) map[domain.HospitalId]int {
	scores := make([]hospitalScore, len(d.hospitals))
	for i, cfg := range d.hospitals {
		scores[i] = hospitalScore{hospital: cfg.ID, combined: d.score(cfg, inc.Location)}
	}

	counts := apportion(scores, inc.TotalPatients)

	dist := domain.IncidentDistribution{
		TipoEmergencia: inc.Kind,
		TotalPacientes: inc.TotalPatients,
		Distribucion:   counts,
		Analisis:       explain(scores),
	}
	if inc.Location != nil {
		dist.Ubicacion = inc.Location
	}
	d.publish(ctx, dist)
	return counts
}

// apportion implements the invert-normalize-multiply-remainder algorithm,
// per spec section 4.9: equal scores split evenly (the "Failure" clause);
// otherwise invert each score against the max, normalize to weights,
// multiply by the total, floor, force 0 below the 0.1 qualify threshold
// and force ≥1 above it, then hand any rounding remainder to the hospital
// with the single largest weight.
func apportion(scores []hospitalScore, total int) map[domain.HospitalId]int {
	counts := make(map[domain.HospitalId]int, len(scores))
	if len(scores) == 0 || total <= 0 {
		return counts
	}

	if allEqual(scores) {
		base := total / len(scores)
		remainder := total % len(scores)
		ordered := append([]hospitalScore(nil), scores...)
		sort.Slice(ordered, func(i, j int) bool { return ordered[i].hospital < ordered[j].hospital })
		for i, s := range ordered {
			counts[s.hospital] = base
			if i < remainder {
				counts[s.hospital]++
			}
		}
		return counts
	}

	maxScore := scores[0].combined
	for _, s := range scores {
		if s.combined > maxScore {
			maxScore = s.combined
		}
	}

	raw := make(map[domain.HospitalId]float64, len(scores))
	var sumRaw float64
	for _, s := range scores {
		r := (maxScore + epsilon) - s.combined
		raw[s.hospital] = r
		sumRaw += r
	}

	normalized := make(map[domain.HospitalId]float64, len(scores))
	var largest domain.HospitalId
	var largestWeight float64 = -1
	for _, s := range scores {
		w := 0.0
		if sumRaw > 0 {
			w = raw[s.hospital] / sumRaw
		}
		normalized[s.hospital] = w
		if w > largestWeight {
			largestWeight = w
			largest = s.hospital
		}
	}

	assigned := 0
	for _, s := range scores {
		w := normalized[s.hospital]
		if w <= qualifyThreshold {
			counts[s.hospital] = 0
			continue
		}
		c := int(math.Floor(w * float64(total)))
		if c < 1 {
			c = 1
		}
		counts[s.hospital] = c
		assigned += c
	}

	counts[largest] += total - assigned
	return counts
}

func allEqual(scores []hospitalScore) bool {
	for _, s := range scores[1:] {
		if math.Abs(s.combined-scores[0].combined) > epsilon {
			return false
		}
	}
	return true
}

func explain(scores []hospitalScore) []string {
	out := make([]string, 0, len(scores))
	for _, s := range scores {
		out = append(out, string(s.hospital))
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// haversineKM computes the great-circle distance between two points, used
// to score a hospital's proximity to an incident's location.
func haversineKM(a, b domain.LatLon) float64 {
	const earthRadiusKM = 6371.0
	lat1, lat2 := toRadians(a.Lat), toRadians(b.Lat)
	dLat := toRadians(b.Lat - a.Lat)
	dLon := toRadians(b.Lon - a.Lon)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusKM * c
}

func toRadians(deg float64) float64 { return deg * math.Pi / 180 }

// GenerateCasualties synthesizes one IncidentCasualty per assigned count,
// sampling a triage level from the incident's distribution and a pathology
// consistent with that level, per spec section 4.9's output note. Ages are
// drawn uniformly from 18 to 80; each casualty is female with probability 0.52.
func (d *Distributor) GenerateCasualties(inc Incident, counts map[domain.HospitalId]int) []domain.IncidentCasualty {
	var casualties []domain.IncidentCasualty
	hospitalIDs := make([]domain.HospitalId, 0, len(counts))
	for h := range counts {
		hospitalIDs = append(hospitalIDs, h)
	}
	sort.Slice(hospitalIDs, func(i, j int) bool { return hospitalIDs[i] < hospitalIDs[j] })

	for _, h := range hospitalIDs {
		for i := 0; i < counts[h]; i++ {
			level := d.sampleTriageLevel(inc.TriageDistribution)
			casualties = append(casualties, domain.IncidentCasualty{
				PatientID:  uuid.NewString(),
				HospitalID: h,
				Age:        18 + d.rng.Intn(63),
				Sex:        d.sampleSex(),
				Pathology:  generator.PathologyForTriage(d.rng, level),
			})
		}
	}
	return casualties
}

// PublishCasualties emits one incident-patients message per casualty.
func (d *Distributor) PublishCasualties(ctx context.Context, casualties []domain.IncidentCasualty) {
	for _, c := range casualties {
		d.publish(ctx, c)
	}
}

func (d *Distributor) sampleTriageLevel(dist map[domain.TriageLevel]float64) domain.TriageLevel {
	var total float64
	for _, p := range dist {
		total += p
	}
	if total <= 0 {
		return domain.Yellow
	}
	r := d.rng.Float64() * total
	var cumulative float64
	for _, level := range domain.OrderedLevels() {
		p, ok := dist[level]
		if !ok {
			continue
		}
		cumulative += p
		if r <= cumulative {
			return level
		}
	}
	return domain.Yellow
}

func (d *Distributor) sampleSex() domain.Sex {
	if d.rng.Float64() < 0.52 {
		return domain.Female
	}
	return domain.Male
}

func (d *Distributor) publish(ctx context.Context, payload any) {
	if d.pub == nil {
		return
	}
	topic := domain.TopicIncidentDistribution
	if _, ok := payload.(domain.IncidentCasualty); ok {
		topic = domain.TopicIncidentPatients
	}
	if err := d.pub.Produce(ctx, topic, payload, bus.ProduceOptions{Validate: true}); err != nil && d.log != nil {
		d.log.Warn("incident event publish failed", obs.String("topic", topic), obs.Err(err))
	}
}
