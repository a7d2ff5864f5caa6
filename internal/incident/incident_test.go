package incident

import (
	"context"
	"testing"

	"github.com/gemelo-digital/urgencias-twin/internal/bus"
	"github.com/gemelo-digital/urgencias-twin/internal/domain"
)

type stubStats struct {
	byHospital map[domain.HospitalId]domain.HospitalStats
}

func (s *stubStats) LatestStats(h domain.HospitalId) (domain.HospitalStats, bool) {
	st, ok := s.byHospital[h]
	return st, ok
}

type stubPublisher struct {
	distributions int
	casualties    []domain.IncidentCasualty
}

func (p *stubPublisher) Produce(_ context.Context, topic string, payload any, _ bus.ProduceOptions) error {
	if topic == domain.TopicIncidentDistribution {
		p.distributions++
	}
	if c, ok := payload.(domain.IncidentCasualty); ok {
		p.casualties = append(p.casualties, c)
	}
	return nil
}

func hospitals() []domain.HospitalConfig {
	cfgs := domain.DefaultHospitalConfigs()
	return []domain.HospitalConfig{cfgs[domain.CHUAC], cfgs[domain.Modelo], cfgs[domain.SanRafael]}
}

func TestApportionFavorsLessSaturatedHospitals(t *testing.T) {
	stats := &stubStats{byHospital: map[domain.HospitalId]domain.HospitalStats{
		domain.CHUAC:     {GlobalSaturation: 0.9, TriageBoxesTotal: 3, TriageBoxesBusy: 2},
		domain.Modelo:    {GlobalSaturation: 0.3, TriageBoxesTotal: 1, TriageBoxesBusy: 0},
		domain.SanRafael: {GlobalSaturation: 0.3, TriageBoxesTotal: 1, TriageBoxesBusy: 0},
	}}
	pub := &stubPublisher{}
	d := New(hospitals(), stats, pub, nil, 1)

	chuacCfg := domain.DefaultHospitalConfigs()[domain.CHUAC]
	counts := d.Apportion(context.Background(), Incident{
		Kind:          "ACCIDENT",
		TotalPatients: 10,
		Location:      &chuacCfg.Location,
		TriageDistribution: map[domain.TriageLevel]float64{
			domain.Orange: 0.4, domain.Yellow: 0.6,
		},
	})

	total := 0
	for _, c := range counts {
		total += c
	}
	if total != 10 {
		t.Fatalf("counts sum to %d, want 10: %+v", total, counts)
	}
	others := counts[domain.Modelo] + counts[domain.SanRafael]
	if counts[domain.CHUAC] >= others {
		t.Errorf("counts = %+v, want CHUAC strictly fewer than the other two combined", counts)
	}
	if pub.distributions != 1 {
		t.Errorf("expected exactly one incident-distribution publish, got %d", pub.distributions)
	}
}

func TestApportionSplitsEvenlyOnEqualScores(t *testing.T) {
	stats := &stubStats{byHospital: map[domain.HospitalId]domain.HospitalStats{}}
	d := New(hospitals(), stats, nil, nil, 2)

	counts := d.Apportion(context.Background(), Incident{
		Kind: "GENERIC", TotalPatients: 9,
	})
	for h, c := range counts {
		if c != 3 {
			t.Errorf("counts[%s] = %d, want 3 (even split with no location/stats data)", h, c)
		}
	}
}

func TestApportionRemainderGoesToLargestWeight(t *testing.T) {
	scores := []hospitalScore{
		{hospital: domain.CHUAC, combined: 0.9},
		{hospital: domain.Modelo, combined: 0.1},
		{hospital: domain.SanRafael, combined: 0.5},
	}
	counts := apportion(scores, 10)
	total := 0
	for _, c := range counts {
		total += c
	}
	if total != 10 {
		t.Fatalf("counts sum to %d, want 10: %+v", total, counts)
	}
	if counts[domain.Modelo] <= counts[domain.SanRafael] || counts[domain.Modelo] <= counts[domain.CHUAC] {
		t.Errorf("counts = %+v, want Modelo (lowest score) to receive the most", counts)
	}
}

func TestApportionZeroesBelowQualifyThreshold(t *testing.T) {
	// One hospital scores far worse than the other two: its inverted,
	// normalized weight should fall at or below the 0.1 qualify threshold.
	scores := []hospitalScore{
		{hospital: domain.CHUAC, combined: 10.0},
		{hospital: domain.Modelo, combined: 0.01},
		{hospital: domain.SanRafael, combined: 0.02},
	}
	counts := apportion(scores, 10)
	if counts[domain.CHUAC] != 0 {
		t.Errorf("counts[CHUAC] = %d, want 0 (far worse score disqualified)", counts[domain.CHUAC])
	}
}

func TestGenerateCasualtiesMatchesCountsAndPublishes(t *testing.T) {
	pub := &stubPublisher{}
	d := New(hospitals(), &stubStats{byHospital: map[domain.HospitalId]domain.HospitalStats{}}, pub, nil, 3)

	inc := Incident{
		Kind:          "FIRE",
		TotalPatients: 5,
		TriageDistribution: map[domain.TriageLevel]float64{
			domain.Red: 0.2, domain.Orange: 0.3, domain.Yellow: 0.5,
		},
	}
	counts := map[domain.HospitalId]int{domain.CHUAC: 2, domain.Modelo: 3}
	casualties := d.GenerateCasualties(inc, counts)
	if len(casualties) != 5 {
		t.Fatalf("len(casualties) = %d, want 5", len(casualties))
	}
	for _, c := range casualties {
		if c.PatientID == "" || c.Pathology == "" {
			t.Errorf("casualty missing patientId/pathology: %+v", c)
		}
	}

	d.PublishCasualties(context.Background(), casualties)
	if len(pub.casualties) != 5 {
		t.Errorf("published %d casualties, want 5", len(pub.casualties))
	}
}
