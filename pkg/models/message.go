package models

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Well-known message fields.
const (
	FieldPayload    = "payload"
	FieldFilter     = "filter"
	FieldProjection = "projection"
	FieldTopic      = "topic"
	FieldMsgID      = "_msgid"
)

// Message is a flow message: a free-form JSON object whose conventional
// fields are payload, filter, projection and topic.
type Message map[string]any

// NewMessage returns a message carrying payload and a fresh _msgid.
func NewMessage(payload any) Message {
	return Message{
		FieldPayload: payload,
		FieldMsgID:   uuid.NewString(),
	}
}

// ParseMessage decodes a JSON object into a Message. Numbers decode as float64.
func ParseMessage(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	if m == nil {
		return nil, fmt.Errorf("decode message: not a JSON object")
	}
	return m, nil
}

// Has reports whether the field is present, even if its value is nil or empty.
func (m Message) Has(field string) bool {
	_, ok := m[field]
	return ok
}

// Payload returns msg.payload.
func (m Message) Payload() any {
	return m[FieldPayload]
}

// String returns the field as a string. Non-string values are formatted with
// fmt; a missing or nil field yields "" and false.
func (m Message) String(field string) (string, bool) {
	v, ok := m[field]
	if !ok || v == nil {
		return "", false
	}
	if s, ok := v.(string); ok {
		return s, true
	}
	return fmt.Sprint(v), true
}

// EnsureID sets _msgid when the message has none and returns it.
func (m Message) EnsureID() string {
	if id, ok := m[FieldMsgID].(string); ok && id != "" {
		return id
	}
	id := uuid.NewString()
	m[FieldMsgID] = id
	return id
}

// Clone returns a shallow copy.
func (m Message) Clone() Message {
	c := make(Message, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}
