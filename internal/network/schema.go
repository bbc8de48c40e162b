package network

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrInvalidMessage wraps every rejection by Validator.
var ErrInvalidMessage = errors.New("network: invalid client message")

const envelopeSchema = `{
  "type": "object",
  "required": ["type"],
  "properties": {
    "type": {"enum": ["start_level", "spawn_item", "item_eligible", "item_click", "move_complete", "ping"]},
    "payload": {}
  },
  "additionalProperties": false
}`

const itemReportSchema = `{
  "type": "object",
  "required": ["item", "reachable"],
  "properties": {
    "item": {"type": "integer", "minimum": 1},
    "x": {"type": "number"},
    "y": {"type": "number"},
    "reachable": {"type": "boolean"}
  },
  "additionalProperties": false
}`

var payloadSchemas = map[string]string{
	MsgTypeStartLevel: `{
  "type": "object",
  "required": ["level"],
  "properties": {
    "level": {"type": "integer", "minimum": 1, "maximum": 10000},
    "seed": {"type": "integer"}
  },
  "additionalProperties": false
}`,
	MsgTypeSpawnItem: `{
  "type": "object",
  "required": ["shape"],
  "properties": {"shape": {"type": "integer", "minimum": 0}},
  "additionalProperties": false
}`,
	MsgTypeItemEligible: itemReportSchema,
	MsgTypeItemClick:    itemReportSchema,
	MsgTypeMoveComplete: `{
  "type": "object",
  "required": ["move"],
  "properties": {"move": {"type": "integer", "minimum": 1}},
  "additionalProperties": false
}`,
	MsgTypePing: `{"type": ["object", "null"]}`,
}

// Validator checks inbound messages against the protocol schemas.
type Validator struct {
	envelope *jsonschema.Schema
	payloads map[string]*jsonschema.Schema
}

// NewValidator compiles the embedded schemas.
func NewValidator() (*Validator, error) {
	compile := func(name, src string) (*jsonschema.Schema, error) {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		url := "https://screwsort.local/schemas/" + name + ".json"
		if err := c.AddResource(url, bytes.NewReader([]byte(src))); err != nil {
			return nil, fmt.Errorf("add schema %s: %w", name, err)
		}
		s, err := c.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", name, err)
		}
		return s, nil
	}

	env, err := compile("envelope", envelopeSchema)
	if err != nil {
		return nil, err
	}
	v := &Validator{envelope: env, payloads: make(map[string]*jsonschema.Schema, len(payloadSchemas))}
	for typ, src := range payloadSchemas {
		s, err := compile(typ, src)
		if err != nil {
			return nil, err
		}
		v.payloads[typ] = s
	}
	return v, nil
}

// Decode validates raw and returns the envelope. Payload decoding into the
// typed struct is left to the caller.
func (v *Validator) Decode(raw []byte) (ClientMessage, error) {
	var msg ClientMessage
	doc, err := decodeAny(raw)
	if err != nil {
		return msg, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	if err := v.envelope.Validate(doc); err != nil {
		return msg, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	if err := json.Unmarshal(raw, &msg); err != nil {
		return msg, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}

	var payload any
	if len(msg.Payload) > 0 {
		if payload, err = decodeAny(msg.Payload); err != nil {
			return msg, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
		}
	}
	schema := v.payloads[msg.Type]
	if payload == nil && msg.Type != MsgTypePing {
		return msg, fmt.Errorf("%w: %s requires a payload", ErrInvalidMessage, msg.Type)
	}
	if err := schema.Validate(payload); err != nil {
		return msg, fmt.Errorf("%w: %s payload: %w", ErrInvalidMessage, msg.Type, err)
	}
	return msg, nil
}

func decodeAny(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}
