// Package socket carries named events over a WebSocket connection.
//
// Every frame is an envelope {"event": name, "data": payload}. JSON
// envelopes travel as text frames; CBOR envelopes travel as binary frames.
// The receiving side picks the decoder from the frame type, so a peer may
// mix both.
package socket

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
	"github.com/gorilla/websocket"
)

// Codec encodes outbound envelopes.
type Codec interface {
	Name() string
	// FrameType is websocket.TextMessage or websocket.BinaryMessage.
	FrameType() int
	Encode(event string, payload any) ([]byte, error)
}

// ParseCodec maps a configured codec name to its implementation.
func ParseCodec(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSON, nil
	case "cbor":
		return CBOR, nil
	default:
		return nil, fmt.Errorf("socket: unknown codec %q", name)
	}
}

var (
	JSON Codec = jsonCodec{}
	CBOR Codec = cborCodec{}
)

type jsonEnvelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type jsonCodec struct{}

func (jsonCodec) Name() string   { return "json" }
func (jsonCodec) FrameType() int { return websocket.TextMessage }

func (jsonCodec) Encode(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", event, err)
	}
	return json.Marshal(jsonEnvelope{Event: event, Data: data})
}

func decodeJSON(frame []byte) (string, []byte, error) {
	var env jsonEnvelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return "", nil, fmt.Errorf("decode json frame: %w", err)
	}
	return env.Event, env.Data, nil
}

// cborEncMode uses Core Deterministic Encoding so identical payloads
// produce identical frames.
var cborEncMode cbor.EncMode

// cborDecMode decodes untyped maps as map[string]any so payloads decoded
// into any are interchangeable with JSON-decoded ones.
var cborDecMode cbor.DecMode

func init() {
	var err error

	cborEncMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("socket: CBOR encoder initialization failed: " + err.Error())
	}

	cborDecMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("socket: CBOR decoder initialization failed: " + err.Error())
	}
}

type cborEnvelope struct {
	Event string          `cbor:"event"`
	Data  cbor.RawMessage `cbor:"data,omitempty"`
}

type cborCodec struct{}

func (cborCodec) Name() string   { return "cbor" }
func (cborCodec) FrameType() int { return websocket.BinaryMessage }

func (cborCodec) Encode(event string, payload any) ([]byte, error) {
	data, err := cborEncMode.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", event, err)
	}
	return cborEncMode.Marshal(cborEnvelope{Event: event, Data: data})
}

func decodeCBOR(frame []byte) (string, []byte, error) {
	var env cborEnvelope
	if err := cborDecMode.Unmarshal(frame, &env); err != nil {
		return "", nil, fmt.Errorf("decode cbor frame: %w", err)
	}
	return env.Event, env.Data, nil
}

func unmarshalCBOR(data []byte, v any) error { return cborDecMode.Unmarshal(data, v) }
