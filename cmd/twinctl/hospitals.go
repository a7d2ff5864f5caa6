package main

import (
	"github.com/gemelo-digital/urgencias-twin/internal/config"
	"github.com/gemelo-digital/urgencias-twin/internal/domain"
)

// hospitalConfigsFromConfig builds the ordered hospital list twinctl scores
// incidents against, overriding domain.DefaultHospitalConfigs' capacity and
// arrival-rate fields from cfg.Hospitals by id.
func hospitalConfigsFromConfig(cfg *config.Config) []domain.HospitalConfig {
	defaults := domain.DefaultHospitalConfigs()
	out := make([]domain.HospitalConfig, 0, len(cfg.Hospitals))
	for _, h := range cfg.Hospitals {
		id := domain.HospitalId(h.ID)
		base, ok := defaults[id]
		if !ok {
			base = domain.HospitalConfig{ID: id, Name: h.ID}
		}
		base.Desks = h.Desks
		base.TriageBoxes = h.TriageBoxes
		base.ConsultRooms = h.ConsultRooms
		base.ObservationBeds = h.ObservationBeds
		base.OnCallDoctors = h.OnCallDoctors
		base.BaseArrivalPerHr = h.BaseArrivalPerHr
		out = append(out, base)
	}
	return out
}
