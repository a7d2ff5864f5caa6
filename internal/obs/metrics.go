// Copyright 2025 James Ross
package obs

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Bus-level counters, adapted from the teacher's jobs_produced/
	// jobs_consumed/jobs_retried/jobs_dead_letter series in terms of
	// topics rather than priority queues.
	BusProduced = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bus_produced_total",
		Help: "Total number of messages successfully produced, by topic",
	}, []string{"topic"})
	BusProduceFailed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bus_produce_failed_total",
		Help: "Total number of produce attempts that exhausted retries and spilled to the outbox, by topic",
	}, []string{"topic"})
	BusConsumed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bus_consumed_total",
		Help: "Total number of messages delivered to a consumer, by topic",
	}, []string{"topic"})
	BusConsumeSkipped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bus_consume_skipped_total",
		Help: "Total number of messages skipped due to decode errors, by topic",
	}, []string{"topic"})

	// Domain counters/gauges.
	PatientArrivals = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "patient_arrivals_total",
		Help: "Total patient arrivals, by hospital",
	}, []string{"hospital"})
	PatientDiversions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "patient_diversions_total",
		Help: "Total diversions, by origin, destination and reason",
	}, []string{"origin", "destination", "reason"})
	CapacityChanges = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "capacity_changes_total",
		Help: "Total consult-room capacity changes, by hospital and reason",
	}, []string{"hospital", "reason"})
	HospitalSaturation = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "hospital_saturation",
		Help: "Current global saturation per hospital, in [0,1]",
	}, []string{"hospital"})
	PredictorAccuracyMAPE = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "predictor_accuracy_mape",
		Help: "Current mean absolute percentage error of the demand predictor, by hospital",
	}, []string{"hospital"})

	CircuitBreakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "circuit_breaker_state",
		Help: "0 Closed, 1 HalfOpen, 2 Open",
	}, []string{"name"})
)

func init() {
	prometheus.MustRegister(
		BusProduced, BusProduceFailed, BusConsumed, BusConsumeSkipped,
		PatientArrivals, PatientDiversions, CapacityChanges,
		HospitalSaturation, PredictorAccuracyMAPE, CircuitBreakerState,
	)
}
