package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// PayloadKind tags the variant held by a Payload.
type PayloadKind string

const (
	PayloadEmpty      PayloadKind = "empty"
	PayloadText       PayloadKind = "text"
	PayloadStructured PayloadKind = "structured"
	PayloadBinary     PayloadKind = "binary"
)

// Payload is the decoded body of a captured request. Exactly one of Text,
// Value or Bytes is meaningful, selected by Kind.
type Payload struct {
	Kind  PayloadKind
	Text  string
	Value any
	Bytes []byte
}

func EmptyPayload() Payload { return Payload{Kind: PayloadEmpty} }
func TextPayload(s string) Payload { return Payload{Kind: PayloadText, Text: s} }
func StructuredPayload(v any) Payload { return Payload{Kind: PayloadStructured, Value: v} }
func BinaryPayload(b []byte) Payload { return Payload{Kind: PayloadBinary, Bytes: b} }

type payloadWire struct {
	Kind  PayloadKind     `json:"kind"`
	Value json.RawMessage `json:"value,omitempty"`
}

func (p Payload) MarshalJSON() ([]byte, error) {
	w := payloadWire{Kind: p.Kind}
	var (
		raw []byte
		err error
	)
	switch p.Kind {
	case "", PayloadEmpty:
		w.Kind = PayloadEmpty
	case PayloadText:
		raw, err = json.Marshal(p.Text)
	case PayloadStructured:
		raw, err = json.Marshal(p.Value)
	case PayloadBinary:
		raw, err = json.Marshal(p.Bytes)
	default:
		return nil, fmt.Errorf("unknown payload kind %q", p.Kind)
	}
	if err != nil {
		return nil, err
	}
	w.Value = raw
	return json.Marshal(w)
}

func (p *Payload) UnmarshalJSON(data []byte) error {
	var w payloadWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*p = Payload{Kind: w.Kind}
	switch w.Kind {
	case "", PayloadEmpty:
		p.Kind = PayloadEmpty
		return nil
	case PayloadText:
		return json.Unmarshal(w.Value, &p.Text)
	case PayloadStructured:
		dec := json.NewDecoder(bytes.NewReader(w.Value))
		dec.UseNumber()
		return dec.Decode(&p.Value)
	case PayloadBinary:
		return json.Unmarshal(w.Value, &p.Bytes)
	default:
		return fmt.Errorf("unknown payload kind %q", w.Kind)
	}
}
