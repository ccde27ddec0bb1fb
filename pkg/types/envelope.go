package types

import (
	"encoding/json"
	"time"

	"github.com/fystack/peermon/pkg/common/errors"
)

// Envelope kinds seen on group subjects.
const (
	KindPing    = "ping"
	KindPong    = "pong"
	KindReject  = "reject"
	KindEcho    = "echo"
	KindMessage = "message"
)

// Envelope is the normalized shape of every message handed to event
// handlers. Raw payloads coming off the wire differ between engine
// versions (sender under "from", "sender" or "pubkey", timestamps
// optional), NormalizeEnvelope flattens all of them into this one form
// before any handler sees the message.
type Envelope struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	GroupID   string          `json:"group_id,omitempty"`
	From      string          `json:"from"`
	To        string          `json:"to,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// rawEnvelope accepts the field aliases older engine builds emit.
type rawEnvelope struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	Type      string          `json:"type"`
	Tag       string          `json:"tag"`
	GroupID   string          `json:"group_id"`
	From      string          `json:"from"`
	Sender    string          `json:"sender"`
	Pubkey    string          `json:"pubkey"`
	To        string          `json:"to"`
	Data      json.RawMessage `json:"data"`
	Timestamp json.RawMessage `json:"timestamp"`
}

// parseWireTimestamp accepts the two stamp encodings seen on the wire:
// unix milliseconds and RFC3339 strings.
func parseWireTimestamp(raw json.RawMessage) (time.Time, bool) {
	if len(raw) == 0 {
		return time.Time{}, false
	}
	var millis int64
	if err := json.Unmarshal(raw, &millis); err == nil && millis > 0 {
		return time.UnixMilli(millis).UTC(), true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if at, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return at.UTC(), true
		}
	}
	return time.Time{}, false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// NormalizeEnvelope parses a wire payload into the canonical envelope.
// The sender key is normalized, a missing kind falls back to fallbackKind
// and a missing timestamp is stamped with the receive time.
func NormalizeEnvelope(payload []byte, fallbackKind string) (*Envelope, error) {
	var raw rawEnvelope
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, errors.Wrap(err, "failed to parse message envelope")
	}

	env := &Envelope{
		ID:      raw.ID,
		Kind:    firstNonEmpty(raw.Kind, raw.Type, raw.Tag, fallbackKind),
		GroupID: raw.GroupID,
		From:    NormalizePeerKey(firstNonEmpty(raw.From, raw.Sender, raw.Pubkey)),
		To:      NormalizePeerKey(raw.To),
		Data:    raw.Data,
	}
	if at, ok := parseWireTimestamp(raw.Timestamp); ok {
		env.Timestamp = at
	} else {
		env.Timestamp = time.Now().UTC()
	}
	return env, nil
}

// Marshal renders the envelope for the wire.
func (e *Envelope) Marshal() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal envelope")
	}
	return data, nil
}

// DecodeData unmarshals the envelope payload into out.
func (e *Envelope) DecodeData(out interface{}) error {
	if len(e.Data) == 0 {
		return errors.New("envelope carries no payload")
	}
	if err := json.Unmarshal(e.Data, out); err != nil {
		return errors.Wrap(err, "failed to decode envelope payload")
	}
	return nil
}
