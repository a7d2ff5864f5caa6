package generator

import (
	"time"

	"github.com/gemelo-digital/urgencias-twin/internal/domain"
)

// ContextProvider is the generator's one external dependency: a read-only
// call for the external factors (weather, active events, football
// fixtures, calendar) that modulate arrival rate and pathology mix. Real
// adapters (weather API, events calendar, football fixtures) live outside
// this module; ContextProvider only names the interface they present.
type ContextProvider interface {
	CurrentFactors(wallTime time.Time) (domain.SystemContext, error)
}

// NeutralContextProvider always returns factor 1.0 for every external
// input. It is both the generator's fallback on ContextProvider failure
// (spec section 4.2) and a usable default for tests and standalone runs.
type NeutralContextProvider struct{}

func (NeutralContextProvider) CurrentFactors(wallTime time.Time) (domain.SystemContext, error) {
	return domain.SystemContext{
		Temperatura:  20,
		FactorClima:  1.0,
		FactorEvento: 1.0,
		FactorFutbol: 1.0,
		FactorFestivo: 1.0,
		FactorTotal:  1.0,
		Timestamp:    wallTime,
	}, nil
}

// currentFactors calls the provider and falls back to neutral factors on
// any error, per spec section 4.2's Failure clause: "all external factors
// default to 1.0 and the generator continues."
func currentFactors(provider ContextProvider, wallTime time.Time) domain.SystemContext {
	if provider == nil {
		ctx, _ := NeutralContextProvider{}.CurrentFactors(wallTime)
		return ctx
	}
	ctx, err := provider.CurrentFactors(wallTime)
	if err != nil {
		neutral, _ := NeutralContextProvider{}.CurrentFactors(wallTime)
		return neutral
	}
	return ctx
}

// Cold/hot/rain thresholds used to bias pathology selection, grounded in
// weather_service.py's WeatherData helpers (factor_temperatura/factor_lluvia
// cross fixed bands; the generator only needs the boolean edges).
const (
	coldThresholdCelsius = 5.0
	hotThresholdCelsius  = 30.0
)

func isCold(ctx domain.SystemContext) bool  { return ctx.Temperatura <= coldThresholdCelsius }
func isHot(ctx domain.SystemContext) bool   { return ctx.Temperatura >= hotThresholdCelsius }
func isRaining(ctx domain.SystemContext) bool { return ctx.LluviaMM > 0 }
func hasEvent(ctx domain.SystemContext) bool  { return ctx.EventoActivo != nil }
func hasFootball(ctx domain.SystemContext) bool { return ctx.PartidoActivo != nil }
