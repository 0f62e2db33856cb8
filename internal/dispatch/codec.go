// Package dispatch carries resume messages from whoever observed a stimulus
// to the process that owns the bookmarks: a JSON codec for the message and a
// dispatcher that hands it to the bookmark queue.
package dispatch

import (
	"bytes"
	"encoding/json"
	"reflect"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/rendis/waypoint/pkg/schema"
)

// Payload type names of the wire envelope.
const (
	PayloadTimer    = "timer"
	PayloadCron     = "cron"
	PayloadDelay    = "delay"
	PayloadEvent    = "event"
	PayloadReadLine = "readline"
	// PayloadJSON carries untyped payloads (maps, nil) as plain JSON.
	PayloadJSON = "json"
)

type wireMessage struct {
	ActivityTypeName   string         `json:"activity_type_name"`
	BookmarkPayload    wirePayload    `json:"bookmark_payload"`
	CorrelationID      string         `json:"correlation_id,omitempty"`
	WorkflowInstanceID string         `json:"workflow_instance_id,omitempty"`
	Input              map[string]any `json:"input,omitempty"`
}

type wirePayload struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
}

// Codec encodes schema.ResumeWorkflows as JSON. The polymorphic bookmark
// payload travels as {"type": name, "value": ...} and is decoded back into
// the Go type registered under name. It is safe for concurrent use.
type Codec struct {
	validator *jsonschema.Schema

	mu     sync.RWMutex
	byName map[string]reflect.Type
	byType map[reflect.Type]string
}

// NewCodec creates a codec with the built-in payload types registered.
func NewCodec() (*Codec, error) {
	v, err := compileMessageSchema()
	if err != nil {
		return nil, err
	}
	c := &Codec{
		validator: v,
		byName:    make(map[string]reflect.Type),
		byType:    make(map[reflect.Type]string),
	}
	RegisterPayload[schema.TimerPayload](c, PayloadTimer)
	RegisterPayload[schema.CronPayload](c, PayloadCron)
	RegisterPayload[schema.DelayPayload](c, PayloadDelay)
	RegisterPayload[schema.EventPayload](c, PayloadEvent)
	RegisterPayload[schema.ReadLinePayload](c, PayloadReadLine)
	return c, nil
}

// RegisterPayload makes T encodable under name. Registering a name again
// replaces the previous type.
func RegisterPayload[T any](c *Codec, name string) {
	t := reflect.TypeFor[T]()
	c.mu.Lock()
	defer c.mu.Unlock()
	if old, ok := c.byName[name]; ok {
		delete(c.byType, old)
	}
	c.byName[name] = t
	c.byType[t] = name
}

// Encode renders msg for transport.
func (c *Codec) Encode(msg *schema.ResumeWorkflows) ([]byte, error) {
	if msg == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "resume message is nil")
	}
	name, err := c.payloadName(msg.BookmarkPayload)
	if err != nil {
		return nil, err
	}
	value, err := json.Marshal(msg.BookmarkPayload)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "encode bookmark payload: %s", err.Error()).WithCause(err)
	}
	out, err := json.Marshal(wireMessage{
		ActivityTypeName:   msg.ActivityTypeName,
		BookmarkPayload:    wirePayload{Type: name, Value: value},
		CorrelationID:      msg.CorrelationID,
		WorkflowInstanceID: msg.WorkflowInstanceID,
		Input:              msg.Input,
	})
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "encode resume message: %s", err.Error()).WithCause(err)
	}
	return out, nil
}

func (c *Codec) payloadName(payload any) (string, error) {
	if payload == nil {
		return PayloadJSON, nil
	}
	t := reflect.TypeOf(payload)
	c.mu.RLock()
	name, ok := c.byType[t]
	c.mu.RUnlock()
	if ok {
		return name, nil
	}
	switch payload.(type) {
	case map[string]any, json.RawMessage:
		return PayloadJSON, nil
	}
	return "", schema.NewErrorf(schema.ErrCodeUnsupported, "no payload type registered for %s", t)
}

// Decode validates data against the message schema and decodes it. The
// bookmark payload comes back as a value of its registered type.
func (c *Codec) Decode(data []byte) (*schema.ResumeWorkflows, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "resume message is not valid JSON: %s", err.Error()).WithCause(err)
	}
	if err := c.validator.Validate(doc); err != nil {
		return nil, toValidationError(err)
	}

	var wire wireMessage
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "decode resume message: %s", err.Error()).WithCause(err)
	}
	payload, err := c.decodePayload(wire.BookmarkPayload)
	if err != nil {
		return nil, err
	}
	return &schema.ResumeWorkflows{
		ActivityTypeName:   wire.ActivityTypeName,
		BookmarkPayload:    payload,
		CorrelationID:      wire.CorrelationID,
		WorkflowInstanceID: wire.WorkflowInstanceID,
		Input:              wire.Input,
	}, nil
}

func (c *Codec) decodePayload(p wirePayload) (any, error) {
	if p.Type == PayloadJSON {
		var v any
		if err := json.Unmarshal(p.Value, &v); err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "decode json payload: %s", err.Error()).WithCause(err)
		}
		return v, nil
	}
	c.mu.RLock()
	t, ok := c.byName[p.Type]
	c.mu.RUnlock()
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeUnsupported, "unknown payload type %q", p.Type)
	}
	ptr := reflect.New(t)
	if err := json.Unmarshal(p.Value, ptr.Interface()); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "decode %s payload: %s", p.Type, err.Error()).WithCause(err)
	}
	return ptr.Elem().Interface(), nil
}
