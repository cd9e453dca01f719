package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

var ErrDecode = errors.New("decode message")

// Codec turns messages into transport frames and back.
type Codec interface {
	Name() string
	Encode(m Message) ([]byte, error)
	Decode(b []byte) (Message, error)
}

type frame[P any] struct {
	ID          string   `json:"id"`
	Version     int      `json:"v"`
	Kind        Kind     `json:"kind"`
	From        string   `json:"from"`
	To          string   `json:"to,omitempty"`
	SessionID   string   `json:"session"`
	Priority    Priority `json:"prio"`
	RequiresAck bool     `json:"ack,omitempty"`
	Timestamp   int64    `json:"ts"`
	ExpiresAt   int64    `json:"exp,omitempty"`
	Payload     P        `json:"payload"`
}

func header[P any](m Message, payload P) frame[P] {
	f := frame[P]{
		ID:          m.ID,
		Version:     m.Version,
		Kind:        m.Kind,
		From:        m.From,
		To:          m.To,
		SessionID:   m.SessionID,
		Priority:    m.Priority,
		RequiresAck: m.RequiresAck,
		Timestamp:   m.Timestamp.UnixMilli(),
		Payload:     payload,
	}
	if !m.ExpiresAt.IsZero() {
		f.ExpiresAt = m.ExpiresAt.UnixMilli()
	}
	return f
}

func (f frame[P]) message() Message {
	m := Message{
		ID:          f.ID,
		Version:     f.Version,
		Kind:        f.Kind,
		From:        f.From,
		To:          f.To,
		SessionID:   f.SessionID,
		Priority:    f.Priority,
		RequiresAck: f.RequiresAck,
		Timestamp:   time.UnixMilli(f.Timestamp).UTC(),
	}
	if f.ExpiresAt != 0 {
		m.ExpiresAt = time.UnixMilli(f.ExpiresAt).UTC()
	}
	return m
}

// JSONCodec is the default wire format.
type JSONCodec struct{}

func (JSONCodec) Name() string { return "json" }

func (JSONCodec) Encode(m Message) ([]byte, error) {
	if m.Payload == nil {
		return nil, fmt.Errorf("encoding %s: nil payload", m.Kind)
	}
	pb, err := json.Marshal(m.Payload)
	if err != nil {
		return nil, fmt.Errorf("encoding %s payload: %w", m.Kind, err)
	}
	return json.Marshal(header(m, json.RawMessage(pb)))
}

func (JSONCodec) Decode(b []byte) (Message, error) {
	if len(b) == 0 {
		return Message{}, fmt.Errorf("%w: empty frame", ErrDecode)
	}
	var f frame[json.RawMessage]
	if err := json.Unmarshal(b, &f); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	m := f.message()
	p, err := decodePayload(f.Kind, func(v any) error { return json.Unmarshal(f.Payload, v) })
	if err != nil {
		return Message{}, err
	}
	m.Payload = p
	return m, nil
}

// MsgpackCodec is a compact binary alternative. All peers of a session must
// use the same codec.
type MsgpackCodec struct{}

func (MsgpackCodec) Name() string { return "msgpack" }

func (MsgpackCodec) Encode(m Message) ([]byte, error) {
	if m.Payload == nil {
		return nil, fmt.Errorf("encoding %s: nil payload", m.Kind)
	}
	pb, err := msgpackMarshal(m.Payload)
	if err != nil {
		return nil, fmt.Errorf("encoding %s payload: %w", m.Kind, err)
	}
	return msgpackMarshal(header(m, msgpack.RawMessage(pb)))
}

func (MsgpackCodec) Decode(b []byte) (Message, error) {
	if len(b) == 0 {
		return Message{}, fmt.Errorf("%w: empty frame", ErrDecode)
	}
	var f frame[msgpack.RawMessage]
	if err := msgpackUnmarshal(b, &f); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	m := f.message()
	p, err := decodePayload(f.Kind, func(v any) error { return msgpackUnmarshal(f.Payload, v) })
	if err != nil {
		return Message{}, err
	}
	m.Payload = p
	return m, nil
}

func msgpackMarshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func msgpackUnmarshal(b []byte, v any) error {
	dec := msgpack.NewDecoder(bytes.NewReader(b))
	dec.SetCustomStructTag("json")
	return dec.Decode(v)
}

// CodecByName resolves a configured codec name.
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSONCodec{}, nil
	case "msgpack":
		return MsgpackCodec{}, nil
	}
	return nil, fmt.Errorf("unknown wire codec %q", name)
}

// Encode serializes m with the default JSON codec.
func Encode(m Message) ([]byte, error) {
	return JSONCodec{}.Encode(m)
}

// Decode parses a JSON frame. It never returns a partially filled message.
func Decode(b []byte) (Message, error) {
	return JSONCodec{}.Decode(b)
}

func decodeAs[T Payload](unmarshal func(any) error) (Payload, error) {
	var p T
	if err := unmarshal(&p); err != nil {
		return nil, fmt.Errorf("%w: payload: %v", ErrDecode, err)
	}
	return p, nil
}

func decodePayload(k Kind, unmarshal func(any) error) (Payload, error) {
	switch k {
	case KindPlayerMovement:
		return decodeAs[Movement](unmarshal)
	case KindCheckpointReached:
		return decodeAs[CheckpointReached](unmarshal)
	case KindPowerUpCollected:
		return decodeAs[PowerUpCollected](unmarshal)
	case KindPlayerDied:
		return decodeAs[PlayerDied](unmarshal)
	case KindScoreUpdate:
		return decodeAs[ScoreUpdate](unmarshal)
	case KindLevelAdvance:
		return decodeAs[LevelAdvance](unmarshal)
	case KindGameStarted:
		return decodeAs[GameStarted](unmarshal)
	case KindGamePaused:
		return decodeAs[GamePaused](unmarshal)
	case KindGameResumed:
		return decodeAs[GameResumed](unmarshal)
	case KindGameEnded:
		return decodeAs[GameEnded](unmarshal)
	case KindChat:
		return decodeAs[Chat](unmarshal)
	case KindHeartbeat:
		return decodeAs[Heartbeat](unmarshal)
	case KindError:
		return decodeAs[ErrorReport](unmarshal)
	case KindJoinRequest:
		return decodeAs[JoinRequest](unmarshal)
	case KindJoinAccepted:
		return decodeAs[JoinAccepted](unmarshal)
	case KindJoinRejected:
		return decodeAs[JoinRejected](unmarshal)
	case KindRoster:
		return decodeAs[Roster](unmarshal)
	case KindReady:
		return decodeAs[Ready](unmarshal)
	case KindRespawn:
		return decodeAs[Respawn](unmarshal)
	case KindMapScroll:
		return decodeAs[MapScroll](unmarshal)
	case KindStateSync:
		return decodeAs[StateSync](unmarshal)
	case KindAck:
		return decodeAs[Ack](unmarshal)
	case KindLeave:
		return decodeAs[Leave](unmarshal)
	case KindIntent:
		return decodeAs[Intent](unmarshal)
	case KindFinish:
		return decodeAs[FinishReached](unmarshal)
	}
	return nil, fmt.Errorf("%w: unknown kind %q", ErrDecode, k)
}
