// Package domain holds the entities shared across the digital twin: the
// three hospitals, the five triage levels, and the patient record that
// flows between them.
package domain

import "fmt"

// HospitalId identifies one of the three emergency departments modeled.
type HospitalId string

const (
	CHUAC     HospitalId = "chuac"
	Modelo    HospitalId = "modelo"
	SanRafael HospitalId = "san_rafael"
)

// IsReferenceCenter reports whether this hospital is the regional reference
// center (CHUAC), the only destination gravity-rule diversions may target.
func (h HospitalId) IsReferenceCenter() bool { return h == CHUAC }

func (h HospitalId) Valid() bool {
	switch h {
	case CHUAC, Modelo, SanRafael:
		return true
	default:
		return false
	}
}

// AllHospitals lists the three hospitals in a fixed, deterministic order.
func AllHospitals() []HospitalId { return []HospitalId{CHUAC, Modelo, SanRafael} }

// HospitalConfig is the static capacity/arrival-rate configuration for one
// hospital, grounded in original_source/backend/common/schemas.py's
// HOSPITAL_CONFIGS table.
type HospitalConfig struct {
	ID                HospitalId
	Name              string
	Desks             int // ventanillas
	TriageBoxes       int // boxes
	ConsultRooms      int // consultas
	ObservationBeds   int // camas_observacion
	OnCallDoctors     int // tamaño inicial de la lista SERGAS
	BaseArrivalPerHr  float64
	Location          LatLon // used by the incident distributor's distance score
}

// DefaultHospitalConfigs returns the three hospitals' static configuration,
// grounded in schemas.py's HOSPITAL_CONFIGS and patient_generator.py's
// base_rates (CHUAC=15/hr, Modelo=6/hr, San_Rafael=5/hr).
func DefaultHospitalConfigs() map[HospitalId]HospitalConfig {
	return map[HospitalId]HospitalConfig{
		CHUAC: {
			ID: CHUAC, Name: "CHUAC", Desks: 4, TriageBoxes: 3, ConsultRooms: 6,
			ObservationBeds: 20, OnCallDoctors: 8, BaseArrivalPerHr: 15,
			Location: LatLon{Lat: 43.3384, Lon: -8.4066},
		},
		Modelo: {
			ID: Modelo, Name: "Hospital Modelo", Desks: 2, TriageBoxes: 1, ConsultRooms: 3,
			ObservationBeds: 8, OnCallDoctors: 4, BaseArrivalPerHr: 6,
			Location: LatLon{Lat: 43.3633, Lon: -8.4065},
		},
		SanRafael: {
			ID: SanRafael, Name: "Hospital San Rafael", Desks: 2, TriageBoxes: 1, ConsultRooms: 2,
			ObservationBeds: 6, OnCallDoctors: 3, BaseArrivalPerHr: 5,
			Location: LatLon{Lat: 43.3681, Lon: -8.3997},
		},
	}
}

// TransferMinutes is the static inter-hospital transfer-time table, grounded
// in diversion_manager.py's TRASLADO_TIMES.
func TransferMinutes(from, to HospitalId) float64 {
	if from == to {
		return 0
	}
	key := [2]HospitalId{from, to}
	table := map[[2]HospitalId]float64{
		{Modelo, CHUAC}:     8,
		{CHUAC, Modelo}:     8,
		{SanRafael, CHUAC}:  10,
		{CHUAC, SanRafael}:  10,
		{Modelo, SanRafael}: 15,
		{SanRafael, Modelo}: 15,
	}
	if m, ok := table[key]; ok {
		return m
	}
	return 12
}

// UnknownHospitalError wraps ErrUnknownHospital with the offending id. The
// predictor returns it for a hospital it holds no configuration for.
type UnknownHospitalError struct{ ID HospitalId }

func (e UnknownHospitalError) Error() string {
	return fmt.Sprintf("%s: %q", ErrUnknownHospital, e.ID)
}

func (e UnknownHospitalError) Unwrap() error { return ErrUnknownHospital }
