package contract

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"

	"kvstore.contract/kvs/internal/types"
)

// ErrInvalidMsg is returned when a message does not decode into exactly one
// known variant.
var ErrInvalidMsg = errors.New("invalid contract message")

// InstantiateMsg configures the contract once at construction.
type InstantiateMsg struct {
	BaseFee *types.Coin `json:"base_fee,omitempty"`
}

// ExecuteMsg is one of SetValue, UpdateValue, DeleteValue or Withdraw.
type ExecuteMsg interface {
	executeTag() string
}

type SetValue struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type UpdateValue struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type DeleteValue struct {
	Key string `json:"key"`
}

type Withdraw struct{}

func (SetValue) executeTag() string    { return "set_value" }
func (UpdateValue) executeTag() string { return "update_value" }
func (DeleteValue) executeTag() string { return "delete_value" }
func (Withdraw) executeTag() string    { return "withdraw" }

// QueryMsg is one of Value or Config.
type QueryMsg interface {
	queryTag() string
}

// Value looks up a single entry.
type Value struct {
	Key string `json:"key"`
}

// Config returns the owner and fee the contract was instantiated with.
type Config struct{}

func (Value) queryTag() string  { return "value" }
func (Config) queryTag() string { return "config" }

// ValueResponse answers a Value query. Value is nil for absent keys.
type ValueResponse struct {
	Key   string  `json:"key"`
	Value *string `json:"value"`
}

// ConfigResponse answers a Config query.
type ConfigResponse struct {
	Owner   string     `json:"owner"`
	BaseFee types.Coin `json:"base_fee"`
}

// DecodeInstantiateMsg parses an instantiate payload. Unknown fields are
// rejected.
func DecodeInstantiateMsg(raw []byte) (InstantiateMsg, error) {
	var msg InstantiateMsg
	if err := decodeStrict(raw, &msg); err != nil {
		return msg, fmt.Errorf("%w: instantiate: %v", ErrInvalidMsg, err)
	}
	return msg, nil
}

// DecodeExecuteMsg parses the externally tagged execute union, e.g.
// {"set_value":{"key":"x","value":"y"}}.
func DecodeExecuteMsg(raw []byte) (ExecuteMsg, error) {
	tag, body, err := splitTagged(raw)
	if err != nil {
		return nil, err
	}

	switch tag {
	case "set_value":
		var m SetValue
		if err := decodeStrict(body, &m, "key", "value"); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidMsg, tag, err)
		}
		return m, nil
	case "update_value":
		var m UpdateValue
		if err := decodeStrict(body, &m, "key", "value"); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidMsg, tag, err)
		}
		return m, nil
	case "delete_value":
		var m DeleteValue
		if err := decodeStrict(body, &m, "key"); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidMsg, tag, err)
		}
		return m, nil
	case "withdraw":
		var m Withdraw
		if err := decodeStrict(body, &m); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidMsg, tag, err)
		}
		return m, nil
	}
	return nil, fmt.Errorf("%w: unknown execute variant %q", ErrInvalidMsg, tag)
}

// DecodeQueryMsg parses the externally tagged query union, e.g.
// {"value":{"key":"x"}}.
func DecodeQueryMsg(raw []byte) (QueryMsg, error) {
	tag, body, err := splitTagged(raw)
	if err != nil {
		return nil, err
	}

	switch tag {
	case "value":
		var m Value
		if err := decodeStrict(body, &m, "key"); err != nil {
			return nil, fmt.Errorf("%w: value: %v", ErrInvalidMsg, err)
		}
		return m, nil
	case "config":
		var m Config
		if err := decodeStrict(body, &m); err != nil {
			return nil, fmt.Errorf("%w: config: %v", ErrInvalidMsg, err)
		}
		return m, nil
	}
	return nil, fmt.Errorf("%w: unknown query variant %q", ErrInvalidMsg, tag)
}

// EncodeExecuteMsg renders msg in its tagged wire form.
func EncodeExecuteMsg(msg ExecuteMsg) ([]byte, error) {
	return json.Marshal(map[string]any{msg.executeTag(): msg})
}

// EncodeQueryMsg renders msg in its tagged wire form.
func EncodeQueryMsg(msg QueryMsg) ([]byte, error) {
	return json.Marshal(map[string]any{msg.queryTag(): msg})
}

func splitTagged(raw []byte) (string, json.RawMessage, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrInvalidMsg, err)
	}
	if len(envelope) != 1 {
		tags := make([]string, 0, len(envelope))
		for tag := range envelope {
			tags = append(tags, tag)
		}
		sort.Strings(tags)
		return "", nil, fmt.Errorf("%w: expected exactly one variant, got %v", ErrInvalidMsg, tags)
	}
	for tag, body := range envelope {
		return tag, body, nil
	}
	panic("unreachable")
}

// decodeStrict rejects unknown fields and any of required that is missing.
func decodeStrict(raw []byte, v any, required ...string) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		raw = []byte("{}")
	}
	if len(required) > 0 {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil {
			return err
		}
		for _, name := range required {
			if _, ok := fields[name]; !ok {
				return fmt.Errorf("missing field %q", name)
			}
		}
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	var extra json.RawMessage
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return errors.New("unexpected data after message")
	}
	return nil
}

// Tag returns the wire name of msg, e.g. "set_value".
func Tag(msg ExecuteMsg) string {
	return msg.executeTag()
}
