package generator

import (
	"math/rand"
	"sort"

	"github.com/gemelo-digital/urgencias-twin/internal/domain"
)

// triageWeights gives a pathology's triage-level distribution, not
// necessarily normalized (the generator normalizes after the age-extreme
// adjustment). Pathologies not present here fall back to defaultWeights.
var triageWeights = map[string]map[domain.TriageLevel]float64{
	"dolor_toracico":  {domain.Red: 0.3, domain.Orange: 0.4, domain.Yellow: 0.2, domain.Green: 0.1},
	"traumatismo":     {domain.Red: 0.1, domain.Orange: 0.3, domain.Yellow: 0.4, domain.Green: 0.2},
	"dolor_abdominal": {domain.Orange: 0.2, domain.Yellow: 0.5, domain.Green: 0.3},
	"fiebre":          {domain.Orange: 0.1, domain.Yellow: 0.3, domain.Green: 0.5, domain.Blue: 0.1},
	"cefalea":         {domain.Orange: 0.15, domain.Yellow: 0.35, domain.Green: 0.4, domain.Blue: 0.1},
	"disnea":          {domain.Red: 0.2, domain.Orange: 0.4, domain.Yellow: 0.3, domain.Green: 0.1},
	"mareo":           {domain.Orange: 0.1, domain.Yellow: 0.3, domain.Green: 0.5, domain.Blue: 0.1},
	"herida":          {domain.Orange: 0.1, domain.Yellow: 0.3, domain.Green: 0.5, domain.Blue: 0.1},
	"intoxicacion":    {domain.Red: 0.1, domain.Orange: 0.3, domain.Yellow: 0.4, domain.Green: 0.2},
	"fractura":        {domain.Orange: 0.3, domain.Yellow: 0.5, domain.Green: 0.2},
	"quemadura":       {domain.Red: 0.1, domain.Orange: 0.3, domain.Yellow: 0.4, domain.Green: 0.2},
	"alergia":         {domain.Red: 0.1, domain.Orange: 0.2, domain.Yellow: 0.4, domain.Green: 0.3},
	"gastroenteritis": {domain.Yellow: 0.2, domain.Green: 0.6, domain.Blue: 0.2},
	"lumbalgia":       {domain.Yellow: 0.2, domain.Green: 0.6, domain.Blue: 0.2},
	"ansiedad":        {domain.Yellow: 0.1, domain.Green: 0.5, domain.Blue: 0.4},
	"conjuntivitis":   {domain.Green: 0.3, domain.Blue: 0.7},
	"otitis":          {domain.Green: 0.4, domain.Blue: 0.6},
	"faringitis":      {domain.Green: 0.5, domain.Blue: 0.5},
}

// defaultWeights applies to any pathology not listed in triageWeights —
// currently the cold and heat context pathologies and the sport pool's
// esguince and contusion.
var defaultWeights = map[domain.TriageLevel]float64{
	domain.Yellow: 0.4, domain.Green: 0.4, domain.Blue: 0.2,
}

// basePathologies is the always-eligible catalogue.
func basePathologies() []string {
	out := make([]string, 0, len(triageWeights))
	for p := range triageWeights {
		out = append(out, p)
	}
	return out
}

// Context-biased pathology pools, grounded in patient_generator.py's
// PATOLOGIAS_FRIO/CALOR/LLUVIA/EVENTOS/DEPORTIVAS.
var (
	coldPathologies   = []string{"gripe", "neumonia", "bronquitis", "hipotermia"}
	heatPathologies   = []string{"golpe_calor", "deshidratacion", "quemadura_solar"}
	rainPathologies   = []string{"traumatismo", "fractura"}
	eventPathologies  = []string{"intoxicacion", "traumatismo", "herida"}
	sportPathologies  = []string{"traumatismo", "fractura", "esguince", "contusion"}
)

func weightsFor(pathology string) map[domain.TriageLevel]float64 {
	if w, ok := triageWeights[pathology]; ok {
		return w
	}
	return defaultWeights
}

// PathologyForTriage picks a pathology tag consistent with a target triage
// level, weighted by that pathology's own probability of landing at the
// level once triaged, reusing the same triageWeights table arrivals are
// sampled from. Used by the incident distributor to generate casualty
// records matching an incident's triage distribution (spec section 4.9's
// output note).
func PathologyForTriage(rng *rand.Rand, level domain.TriageLevel) string {
	type candidate struct {
		pathology string
		weight    float64
	}
	names := make([]string, 0, len(triageWeights))
	for pathology := range triageWeights {
		names = append(names, pathology)
	}
	sort.Strings(names) // deterministic iteration so a given rng seed reproduces the same draw

	var candidates []candidate
	var total float64
	for _, pathology := range names {
		if w, ok := triageWeights[pathology][level]; ok && w > 0 {
			candidates = append(candidates, candidate{pathology, w})
			total += w
		}
	}
	if len(candidates) == 0 {
		return "traumatismo" // incidents without a matching pathology default to trauma
	}
	r := rng.Float64() * total
	var cumulative float64
	for _, c := range candidates {
		cumulative += c.weight
		if r <= cumulative {
			return c.pathology
		}
	}
	return candidates[len(candidates)-1].pathology
}
