package domain

// TriageLevel is the Manchester Triage System analog used across the twin:
// five ordered levels from most to least urgent.
type TriageLevel int

const (
	Red TriageLevel = iota + 1
	Orange
	Yellow
	Green
	Blue
)

func (t TriageLevel) String() string {
	switch t {
	case Red:
		return "ROJO"
	case Orange:
		return "NARANJA"
	case Yellow:
		return "AMARILLO"
	case Green:
		return "VERDE"
	case Blue:
		return "AZUL"
	default:
		return "DESCONOCIDO"
	}
}

func (t TriageLevel) Valid() bool { return t >= Red && t <= Blue }

// RequiresReference reports whether a patient at this level must be
// diverted to the reference center when triaged outside it (gravity rule).
func (t TriageLevel) RequiresReference() bool { return t == Red || t == Orange }

// TriageConfig is the per-level calibration table, grounded in
// original_source/src/config/hospital_config.py's CONFIG_TRIAJE, with
// Spanish field names translated and consult-time bounds collapsed to the
// engine's base-minutes parameter (flow_engine.py's TIEMPOS_CONSULTA).
type TriageConfig struct {
	Level               TriageLevel
	MaxWaitMinutes       float64
	Probability          float64 // share of arrivals at this level
	BaseConsultMinutes   float64
	ProbabilityObservation float64
	ProbabilityAdmission float64
	MeanAge              float64
	StdDevAge            float64
}

// TriageTable is the five-level calibration table, keyed by level.
var TriageTable = map[TriageLevel]TriageConfig{
	Red: {
		Level: Red, MaxWaitMinutes: 0, Probability: 0.001,
		BaseConsultMinutes: 30, ProbabilityObservation: 0.9, ProbabilityAdmission: 0.7,
		MeanAge: 65, StdDevAge: 18,
	},
	Orange: {
		Level: Orange, MaxWaitMinutes: 10, Probability: 0.083,
		BaseConsultMinutes: 25, ProbabilityObservation: 0.6, ProbabilityAdmission: 0.4,
		MeanAge: 60, StdDevAge: 20,
	},
	Yellow: {
		Level: Yellow, MaxWaitMinutes: 60, Probability: 0.179,
		BaseConsultMinutes: 15, ProbabilityObservation: 0.3, ProbabilityAdmission: 0.15,
		MeanAge: 52, StdDevAge: 22,
	},
	Green: {
		Level: Green, MaxWaitMinutes: 120, Probability: 0.627,
		BaseConsultMinutes: 10, ProbabilityObservation: 0.05, ProbabilityAdmission: 0.02,
		MeanAge: 40, StdDevAge: 25,
	},
	Blue: {
		Level: Blue, MaxWaitMinutes: 240, Probability: 0.11,
		BaseConsultMinutes: 5, ProbabilityObservation: 0.01, ProbabilityAdmission: 0.005,
		MeanAge: 35, StdDevAge: 20,
	},
}

// OrderedLevels lists the five levels from most to least urgent, the
// priority order the consult-room scheduler uses to break ties.
func OrderedLevels() []TriageLevel { return []TriageLevel{Red, Orange, Yellow, Green, Blue} }
