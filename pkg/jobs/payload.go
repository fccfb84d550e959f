package jobs

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/xeipuuv/gojsonschema"

	"github.com/cuemby/agora/pkg/errdefs"
)

// SchemaVersion is the envelope version this binary writes and accepts.
const SchemaVersion = 1

// Envelope is the immutable job payload. Once enqueued the bytes never
// change; retry bookkeeping lives on the queue Item. Data is the
// handler-specific body, opaque to the framework.
type Envelope struct {
	JobID         string          `json:"job_id"`
	TenantID      string          `json:"tenant_id"`
	SchemaVersion int             `json:"schema_version"`
	Kind          string          `json:"kind"`
	Data          json.RawMessage `json:"data"`
}

// envelopeSchemaV1 is the wire contract for version 1. Validated at enqueue
// and again at dispatch, so a payload that aged in the queue across a deploy
// is still checked against what this binary understands.
const envelopeSchemaV1 = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["job_id", "tenant_id", "schema_version", "kind", "data"],
  "properties": {
    "job_id": {"type": "string", "minLength": 1},
    "tenant_id": {"type": "string", "minLength": 1},
    "schema_version": {"type": "integer", "enum": [1]},
    "kind": {"type": "string", "minLength": 1, "pattern": "^[a-z0-9_]+(\\.[a-z0-9_]+)*$"},
    "data": {"type": "object"}
  },
  "additionalProperties": false
}`

var (
	schemaOnce sync.Once
	schemaV1   *gojsonschema.Schema
	schemaErr  error
)

func envelopeSchema() (*gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schemaV1, schemaErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(envelopeSchemaV1))
	})
	return schemaV1, schemaErr
}

// NewEnvelope builds and serializes a version-1 envelope around data, which
// must marshal to a JSON object.
func NewEnvelope(tenantID, kind string, data any) (*Envelope, []byte, error) {
	body, err := json.Marshal(data)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal job data: %w", err)
	}
	env := &Envelope{
		JobID:         uuid.New().String(),
		TenantID:      tenantID,
		SchemaVersion: SchemaVersion,
		Kind:          kind,
		Data:          body,
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal envelope: %w", err)
	}
	if _, err := ValidatePayload(raw); err != nil {
		return nil, nil, err
	}
	return env, raw, nil
}

// ValidatePayload checks raw bytes against the envelope contract. The
// schema_version field is probed first so an unknown version is reported as
// such rather than as a pile of schema errors.
func ValidatePayload(raw []byte) (*Envelope, error) {
	if !gjson.ValidBytes(raw) {
		return nil, errdefs.Validationf("payload is not valid JSON")
	}
	version := gjson.GetBytes(raw, "schema_version")
	if !version.Exists() {
		return nil, errdefs.Validationf("payload missing schema_version")
	}
	if version.Int() != SchemaVersion {
		return nil, errdefs.Validationf("unknown payload schema version %d", version.Int())
	}

	schema, err := envelopeSchema()
	if err != nil {
		return nil, fmt.Errorf("compile envelope schema: %w", err)
	}
	result, err := schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, errdefs.Validationf("validate payload: %v", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}
		return nil, errdefs.Validationf("payload schema: %s", strings.Join(msgs, "; "))
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, errdefs.Validationf("decode envelope: %v", err)
	}
	return &env, nil
}
