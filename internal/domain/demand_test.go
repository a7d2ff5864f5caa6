package domain

import "testing"

func TestHourlyDemandFactorPeaksAtElevenAndNineteen(t *testing.T) {
	if got := HourlyDemandFactor(11); got != 1.4 {
		t.Errorf("HourlyDemandFactor(11) = %v, want 1.4", got)
	}
	if got := HourlyDemandFactor(19); got != 1.4 {
		t.Errorf("HourlyDemandFactor(19) = %v, want 1.4", got)
	}
	if got := HourlyDemandFactor(3); got != 0.3 {
		t.Errorf("HourlyDemandFactor(3) = %v, want 0.3 (overnight trough)", got)
	}
}

func TestWeekdayDemandFactorWeekendIsHighest(t *testing.T) {
	if got := WeekdayDemandFactor(5); got != 1.3 {
		t.Errorf("Saturday factor = %v, want 1.3", got)
	}
	for _, d := range []int{1, 2, 3} {
		if got := WeekdayDemandFactor(d); got != 1.0 {
			t.Errorf("mid-week factor(%d) = %v, want 1.0", d, got)
		}
	}
}

func TestScenarioFactorCompounds(t *testing.T) {
	s := Scenario{Rain: true, FootballMatch: true}
	want := ScenarioRainFactor * ScenarioFootballMatchFactor
	if got := s.Factor(); got != want {
		t.Errorf("Scenario.Factor() = %v, want %v", got, want)
	}
	if got := (Scenario{}).Factor(); got != 1.0 {
		t.Errorf("empty scenario factor = %v, want 1.0", got)
	}
}

func TestClampArrivalRateBounds(t *testing.T) {
	base := 10.0
	if got := ClampArrivalRate(100, base); got != 30 {
		t.Errorf("clamp high = %v, want 30", got)
	}
	if got := ClampArrivalRate(0.1, base); got != 5 {
		t.Errorf("clamp low = %v, want 5", got)
	}
	if got := ClampArrivalRate(12, base); got != 12 {
		t.Errorf("clamp within bounds = %v, want 12", got)
	}
}
