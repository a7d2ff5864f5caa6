package domain

// HourlyDemandFactor returns the canonical hour-of-day multiplier on the
// base arrival rate, grounded in the source's DemandFactors.get_hour_factor:
// more urgencias in the morning peak and the evening peak, fewer overnight.
func HourlyDemandFactor(hour int) float64 {
	switch hour {
	case 0:
		return 0.7
	case 1:
		return 0.5
	case 2:
		return 0.4
	case 3, 4:
		return 0.3
	case 5:
		return 0.4
	case 6:
		return 0.6
	case 7:
		return 0.8
	case 8:
		return 1.0
	case 9:
		return 1.2
	case 10:
		return 1.3
	case 11:
		return 1.4
	case 12:
		return 1.3
	case 13:
		return 1.2
	case 14:
		return 1.1
	case 15:
		return 1.0
	case 16:
		return 1.1
	case 17:
		return 1.2
	case 18:
		return 1.3
	case 19:
		return 1.4
	case 20:
		return 1.3
	case 21:
		return 1.2
	case 22:
		return 1.0
	case 23:
		return 0.8
	default:
		return 1.0
	}
}

// WeekdayDemandFactor returns the day-of-week multiplier, weekday 0=Monday
// through 6=Sunday, grounded in DemandFactors.get_weekday_factor.
func WeekdayDemandFactor(weekday int) float64 {
	switch weekday {
	case 0:
		return 1.2 // Monday: weekend hangover
	case 4:
		return 1.1 // Friday: more accidents
	case 5:
		return 1.3 // Saturday: nightlife
	case 6:
		return 1.2 // Sunday: sport, hangover
	default:
		return 1.0
	}
}

// MonthlyDemandFactor returns the seasonal multiplier used by the predictor's
// synthetic-history generator, grounded in prophet_service/predictor.py:
// higher in winter months, lower in summer.
func MonthlyDemandFactor(month int) float64 {
	switch month {
	case 12, 1, 2:
		return 1.2
	case 6, 7, 8:
		return 0.85
	default:
		return 1.0
	}
}

// ScenarioFactors are the fixed multipliers applied by the demand predictor
// when a scenario flag is set, grounded in predictor.py's
// _calculate_scenario_factor.
const (
	ScenarioRainFactor          = 1.15
	ScenarioMassEventFactor     = 1.4
	ScenarioExtremeTempFactor   = 1.25
	ScenarioFootballMatchFactor = 1.2
)

// Scenario is the optional set of boolean demand modifiers a Predict call
// may be given, per spec section 4.10.
type Scenario struct {
	Rain           bool
	MassEvent      bool
	ExtremeTemp    bool
	FootballMatch  bool
}

// Factor multiplies together every active scenario flag's fixed factor.
func (s Scenario) Factor() float64 {
	factor := 1.0
	if s.Rain {
		factor *= ScenarioRainFactor
	}
	if s.MassEvent {
		factor *= ScenarioMassEventFactor
	}
	if s.ExtremeTemp {
		factor *= ScenarioExtremeTempFactor
	}
	if s.FootballMatch {
		factor *= ScenarioFootballMatchFactor
	}
	return factor
}

// ClampArrivalRate bounds an effective arrival rate to [0.5, 3] times the
// hospital's base rate, per spec section 4.2's generator contract.
func ClampArrivalRate(effective, base float64) float64 {
	min := 0.5 * base
	max := 3.0 * base
	if effective < min {
		return min
	}
	if effective > max {
		return max
	}
	return effective
}
