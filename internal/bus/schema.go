// Package bus implements the topic-based event log described in spec §4.1:
// a schema-validating producer/consumer pair backed by Redis Streams, with
// streams and consumer groups standing in for Kafka topics/partitions and
// consumer groups.
package bus

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/gemelo-digital/urgencias-twin/internal/domain"
)

// SchemaRegistry is a process-wide mapping from topic name to a registered
// JSON Schema, adapted from internal/json-payload-studio's
// gojsonschema.Validate call — the one real grounding point that package
// carried for payload validation, here repurposed away from its original
// HTTP-handler/UI surface.
type SchemaRegistry struct {
	mu      sync.RWMutex
	schemas map[string]gojsonschema.JSONLoader
}

// NewSchemaRegistry builds a registry pre-populated with every topic named
// in spec §6. Validation of an unregistered topic is a no-op, per §4.1.
func NewSchemaRegistry() *SchemaRegistry {
	r := &SchemaRegistry{schemas: make(map[string]gojsonschema.JSONLoader)}
	for topic, schema := range defaultSchemas() {
		r.Register(topic, schema)
	}
	return r
}

// Register installs or replaces the schema for a topic. schema must be a
// JSON Schema document.
func (r *SchemaRegistry) Register(topic string, schema []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.schemas[topic] = gojsonschema.NewBytesLoader(schema)
}

// Validate checks payload (already-marshaled JSON) against the topic's
// registered schema. Unregistered topics always pass, per §4.1.
func (r *SchemaRegistry) Validate(topic string, payload []byte) error {
	r.mu.RLock()
	schemaLoader, ok := r.schemas[topic]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	documentLoader := gojsonschema.NewBytesLoader(payload)
	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}
	if !result.Valid() {
		var buf bytes.Buffer
		for _, e := range result.Errors() {
			fmt.Fprintf(&buf, "%s; ", e.String())
		}
		return fmt.Errorf("%w: %s", domain.ErrInvalidPayload, buf.String())
	}
	return nil
}

// objectSchema builds a minimal "object with these required string-keyed
// properties present" schema. The registry only needs to reject malformed
// or missing-field payloads, not fully model every nested type, so schemas
// stay shallow by design.
func objectSchema(required ...string) []byte {
	b, _ := json.Marshal(map[string]any{
		"type":     "object",
		"required": required,
	})
	return b
}

func defaultSchemas() map[string][]byte {
	return map[string][]byte{
		domain.TopicPatientArrivals:    objectSchema("patientId", "hospitalId", "age", "sex"),
		domain.TopicTriageResults:      objectSchema("patientId", "hospitalId", "triageLevel"),
		domain.TopicConsultationEvents: objectSchema("patientId", "hospitalId", "consultId", "phase"),
		domain.TopicDiversionAlerts:    objectSchema("patientId", "originHospital", "destinationHospital", "reason"),
		domain.TopicHospitalStats:      objectSchema("hospitalId", "globalSaturation"),
		domain.TopicDoctorAssigned:     objectSchema("medicoId", "hospitalId", "consultId"),
		domain.TopicDoctorUnassigned:   objectSchema("medicoId", "hospitalId", "consultId"),
		domain.TopicCapacityChange:     objectSchema("hospitalId", "consultId", "medicosNuevos"),
		domain.TopicIncidentPatients:   objectSchema("patientId", "hospitalId"),
		domain.TopicIncidentDistribution: objectSchema("tipoEmergencia", "totalPacientes"),
		domain.TopicSimulationControl:  objectSchema("command"),
		domain.TopicCoordinatorAlerts:  objectSchema("hospitalId", "level", "message"),
		domain.TopicCoordinatorStatus:  objectSchema("status"),
		domain.TopicSystemContext:      objectSchema("factorTotal"),
		domain.TopicPredictionAlerts:   objectSchema("hospitalId", "hour", "zScore"),
	}
}
