package domain

import (
	"time"

	"github.com/google/uuid"
)

// Sex mirrors the generator's binary sex distribution (52% female).
type Sex string

const (
	Female Sex = "F"
	Male   Sex = "M"
)

// Outcome is a patient's terminal state, keeping the original Spanish wire
// values (PatientDestination in flow_engine.py) used on ConsultationEvent.
type Outcome string

const (
	OutcomeDischarge   Outcome = "ALTA"
	OutcomeObservation Outcome = "OBSERVACION"
	OutcomeDiverted    Outcome = "DERIVADO"
	OutcomeError       Outcome = "ERROR"
)

// Patient is the record that moves through a hospital's flow engine from
// reception to discharge. It is built from a PatientArrival and mutated in
// place as the flow engine advances it through stages.
type Patient struct {
	ID           string
	Hospital     HospitalId
	OriginHospital HospitalId // where the patient actually arrived, for diversion bookkeeping
	Age          int
	Sex          Sex
	Pathology    string
	Triage       TriageLevel
	ArrivedAt    time.Time

	// Timestamps populated as the patient advances; zero until reached.
	DeskAssignedAt  time.Time
	TriagedAt       time.Time
	ConsultStartAt  time.Time
	ConsultEndAt    time.Time

	ConsultRoom  int // index of the consult room this patient was assigned, -1 until assigned
	BoxID        int // triage box index, -1 until triaged
	Observation  bool
	Admitted     bool
	Diverted     bool
	DivertedFrom HospitalId
	DivertedTo   HospitalId
	Outcome      Outcome
}

// NewPatient mints a new patient record with a fresh ID, grounded in
// patient_generator.py's generate_patient. Triage is left unset: per the
// flow engine's pipeline the level is only assigned once the patient
// reaches the triage stage, not at arrival.
func NewPatient(hospital HospitalId, age int, sex Sex, pathology string, arrivedAt time.Time) *Patient {
	return &Patient{
		ID:             uuid.NewString(),
		Hospital:       hospital,
		OriginHospital: hospital,
		Age:            age,
		Sex:            sex,
		Pathology:      pathology,
		ArrivedAt:      arrivedAt,
		ConsultRoom:    -1,
		BoxID:          -1,
	}
}

// WaitForTriageMinutes is the elapsed time between arrival and triage
// completion, or 0 if the patient has not been triaged.
func (p *Patient) WaitForTriageMinutes() float64 {
	if p.TriagedAt.IsZero() {
		return 0
	}
	return p.TriagedAt.Sub(p.ArrivedAt).Minutes()
}

// ConsultWaitMinutes is the elapsed time between triage and consult start.
func (p *Patient) ConsultWaitMinutes() float64 {
	if p.ConsultStartAt.IsZero() || p.TriagedAt.IsZero() {
		return 0
	}
	return p.ConsultStartAt.Sub(p.TriagedAt).Minutes()
}
