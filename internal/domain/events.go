package domain

import "time"

// Topic names recognized by the event bus schema registry, grounded in
// original_source/backend/common/schemas.py's module docstring and spec §6.
const (
	TopicPatientArrivals    = "patient-arrivals"
	TopicTriageResults      = "triage-results"
	TopicConsultationEvents = "consultation-events"
	TopicDiversionAlerts    = "diversion-alerts"
	TopicHospitalStats      = "hospital-stats"
	TopicDoctorAssigned     = "doctor-assigned"
	TopicDoctorUnassigned   = "doctor-unassigned"
	TopicCapacityChange     = "capacity-change"
	TopicIncidentPatients   = "incident-patients"
	TopicIncidentDistribution = "incident-distribution"
	TopicSimulationControl  = "simulation-control"
	TopicCoordinatorAlerts  = "coordinator-alerts"
	TopicCoordinatorStatus  = "coordinator-status"
	TopicSystemContext      = "system-context"
	TopicPredictionAlerts   = "prediction-alerts"
)

// AllTopics lists every recognized topic.
func AllTopics() []string {
	return []string{
		TopicPatientArrivals, TopicTriageResults, TopicConsultationEvents,
		TopicDiversionAlerts, TopicHospitalStats, TopicDoctorAssigned,
		TopicDoctorUnassigned, TopicCapacityChange, TopicIncidentPatients,
		TopicIncidentDistribution, TopicSimulationControl, TopicCoordinatorAlerts,
		TopicCoordinatorStatus, TopicSystemContext, TopicPredictionAlerts,
	}
}

// PatientArrival is published the instant a patient is generated or
// injected, before any stage processing begins.
type PatientArrival struct {
	PatientID      string     `json:"patientId"`
	HospitalID     HospitalId `json:"hospitalId"`
	Age            int        `json:"age"`
	Sex            Sex        `json:"sex"`
	PathologyTag   string     `json:"pathologyTag"`
	ArrivalWallTime time.Time `json:"arrivalWallTime"`
	DemandFactor   float64    `json:"demandFactor"`
}

// TriageResult is published when the flow engine finishes triaging a
// patient.
type TriageResult struct {
	PatientID             string      `json:"patientId"`
	HospitalID            HospitalId  `json:"hospitalId"`
	TriageLevel           TriageLevel `json:"triageLevel"`
	BoxID                 int         `json:"boxId"`
	TriageDurationMinutes float64     `json:"triageDurationMinutes"`
	RequiresDiversion     bool        `json:"requiresDiversion"`
}

type ConsultPhase string

const (
	ConsultStart ConsultPhase = "START"
	ConsultEnd   ConsultPhase = "END"
)

// ConsultationEvent is published twice per consult: once on START, once on
// END (with duration/outcome populated).
type ConsultationEvent struct {
	PatientID             string       `json:"patientId"`
	HospitalID            HospitalId   `json:"hospitalId"`
	ConsultID             int          `json:"consultId"`
	Phase                 ConsultPhase `json:"phase"`
	TriageLevel           TriageLevel  `json:"triageLevel"`
	DoctorsAttending      int          `json:"doctorsAttending"`
	ConsultDurationMinutes *float64    `json:"consultDurationMinutes,omitempty"`
	Outcome               *string      `json:"outcome,omitempty"`
}

// HospitalStats is the periodic per-hospital snapshot the flow engine
// publishes every two simulated minutes.
type HospitalStats struct {
	HospitalID        HospitalId `json:"hospitalId"`
	DesksBusy         int        `json:"desksBusy"`
	DesksTotal        int        `json:"desksTotal"`
	TriageBoxesBusy   int        `json:"triageBoxesBusy"`
	TriageBoxesTotal  int        `json:"triageBoxesTotal"`
	ConsultRoomsBusy  int        `json:"consultRoomsBusy"`
	ConsultRoomsTotal int        `json:"consultRoomsTotal"`
	ObservationBusy   int        `json:"observationBusy"`
	ObservationTotal  int        `json:"observationTotal"`
	QueueLengths      map[string]int `json:"queueLengthsPerStage"`
	RollingMeanWaits  map[string]float64 `json:"rollingMeanWaits"`
	ArrivalsLastHour  int        `json:"arrivalsLastHour"`
	AttendedLastHour  int        `json:"attendedLastHour"`
	DivertsSent       int        `json:"divertsSent"`
	DivertsReceived   int        `json:"divertsReceived"`
	GlobalSaturation  float64    `json:"globalSaturation"`
	EmergencyActive   bool       `json:"emergencyActive"`
	Timestamp         time.Time  `json:"timestamp"`
}

type DiversionReason string

const (
	ReasonGravity    DiversionReason = "GRAVITY"
	ReasonSaturation DiversionReason = "SATURATION"
)

// DiversionAlert is published by the diversion manager whenever a patient
// is routed away from the hospital that triaged them.
type DiversionAlert struct {
	PatientID              string          `json:"patientId"`
	OriginHospital         HospitalId      `json:"originHospital"`
	DestinationHospital    HospitalId      `json:"destinationHospital"`
	Reason                 DiversionReason `json:"reason"`
	TriageLevel            TriageLevel     `json:"triageLevel"`
	EstimatedTransferMinutes float64       `json:"estimatedTransferMinutes"`
}

// DoctorAssigned / DoctorUnassigned are published once per doctor moved by
// the scaling controller, keeping Spanish field names that match the
// original wire contract in spec §6's table verbatim.
type DoctorAssigned struct {
	MedicoID               string     `json:"medicoId"`
	HospitalID              HospitalId `json:"hospitalId"`
	ConsultID               int        `json:"consultId"`
	MedicosTotalesConsulta  int        `json:"medicosTotalesConsulta"`
	VelocidadFactor         int        `json:"velocidadFactor"`
}

type DoctorUnassigned struct {
	MedicoID                string     `json:"medicoId"`
	HospitalID               HospitalId `json:"hospitalId"`
	ConsultID                int        `json:"consultId"`
	MedicosRestantesConsulta int        `json:"medicosRestantesConsulta"`
	VelocidadFactor          int        `json:"velocidadFactor"`
	Motivo                   string     `json:"motivo"`
}

type CapacityChange struct {
	HospitalID        HospitalId `json:"hospitalId"`
	ConsultID         int        `json:"consultId"`
	MedicosPrevios    int        `json:"medicosPrevios"`
	MedicosNuevos     int        `json:"medicosNuevos"`
	VelocidadPrevia   int        `json:"velocidadPrevia"`
	VelocidadNueva    int        `json:"velocidadNueva"`
	Motivo            string     `json:"motivo"`
}

// IncidentCasualty is one message on incident-patients: a single casualty
// record routed to a hospital by the incident distributor.
type IncidentCasualty struct {
	PatientID  string     `json:"patientId"`
	HospitalID HospitalId `json:"hospitalId"`
	Age        int        `json:"age"`
	Sex        Sex        `json:"sex"`
	Pathology  string     `json:"pathology"`
}

// IncidentDistribution is published once per incident by the distributor.
type IncidentDistribution struct {
	TipoEmergencia string                  `json:"tipoEmergencia"`
	Ubicacion      *LatLon                 `json:"ubicacion,omitempty"`
	TotalPacientes int                     `json:"totalPacientes"`
	Distribucion   map[HospitalId]int      `json:"distribucion"`
	Analisis       []string                `json:"analisis"`
}

type LatLon struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// SimulationControlCommand is the simulation-control topic's payload.
type SimulationControlCommand struct {
	Command string   `json:"command"`
	Speed   *float64 `json:"speed,omitempty"`
}

type AlertLevel string

const (
	AlertInfo     AlertLevel = "info"
	AlertWarning  AlertLevel = "warning"
	AlertCritical AlertLevel = "critical"
)

type CoordinatorAlert struct {
	HospitalID HospitalId `json:"hospitalId"`
	Level      AlertLevel `json:"level"`
	Message    string     `json:"message"`
	Timestamp  time.Time  `json:"timestamp"`
}

type SystemStatus string

const (
	StatusNormal    SystemStatus = "NORMAL"
	StatusAttention SystemStatus = "ATTENTION"
	StatusAlert     SystemStatus = "ALERT"
	StatusCritical  SystemStatus = "CRITICAL"
)

type CoordinatorStatus struct {
	Status         SystemStatus                   `json:"status"`
	MeanSaturation float64                         `json:"meanSaturation"`
	CriticalCount  int                             `json:"criticalCount"`
	SaturatedCount int                              `json:"saturatedCount"`
	PerHospital    map[HospitalId]SaturationState  `json:"perHospital"`

	// Diversions/ChuacConsultDoctors/OnCall* mirror main.py's coordinator
	// status loop augmenting get_system_status() with
	// diversion_manager.get_stats()/scaling_controller.get_consultas_state()/
	// get_lista_sergas_stats() before publishing.
	DiversionsTotal        int         `json:"diversionsTotal"`
	DiversionsByGravity    int         `json:"diversionsByGravity"`
	DiversionsBySaturation int         `json:"diversionsBySaturation"`
	ChuacConsultDoctors    map[int]int `json:"chuacConsultDoctors"`
	OnCallAvailable        int         `json:"onCallAvailable"`

	Timestamp time.Time `json:"timestamp"`
}

// SaturationState is the coordinator's derived per-hospital view.
type SaturationState struct {
	HospitalID           HospitalId `json:"hospitalId"`
	Saturation           float64    `json:"saturation"`
	IsWarning            bool       `json:"isWarning"`
	IsHigh               bool       `json:"isHigh"`
	IsCritical           bool       `json:"isCritical"`
	CanReceiveDiversions bool       `json:"canReceiveDiversions"`
	LastUpdate           time.Time  `json:"lastUpdate"`
}

// SystemContext summarizes the generator's current demand factors,
// grounded in demand_factors.py's calculate_total_factor.
type SystemContext struct {
	Temperatura   float64   `json:"temperatura"`
	LluviaMM      float64   `json:"lluviaMm"`
	Condicion     string    `json:"condicion"`
	FactorClima   float64   `json:"factorClima"`
	EventoActivo  *string   `json:"eventoActivo,omitempty"`
	FactorEvento  float64   `json:"factorEvento"`
	PartidoActivo *string   `json:"partidoActivo,omitempty"`
	FactorFutbol  float64   `json:"factorFutbol"`
	EsFestivo     bool      `json:"esFestivo"`
	FactorFestivo float64   `json:"factorFestivo"`
	FactorTotal   float64   `json:"factorTotal"`
	Timestamp     time.Time `json:"timestamp"`
}

// PredictionAlert is published by the predictor when an observed count
// deviates from the forecast by more than the configured z-score threshold.
type PredictionAlert struct {
	HospitalID HospitalId `json:"hospitalId"`
	Hour       int        `json:"hour"`
	Observed   float64    `json:"observed"`
	Expected   float64    `json:"expected"`
	ZScore     float64    `json:"zScore"`
	Timestamp  time.Time  `json:"timestamp"`
}
