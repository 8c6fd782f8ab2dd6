package contract

import (
	"errors"
	"testing"
)

func TestDecodeExecuteMsg(t *testing.T) {
	tests := []struct {
		raw  string
		want ExecuteMsg
	}{
		{`{"set_value":{"key":"x","value":"first"}}`, SetValue{Key: "x", Value: "first"}},
		{`{"update_value":{"key":"x","value":""}}`, UpdateValue{Key: "x", Value: ""}},
		{`{"delete_value":{"key":"x"}}`, DeleteValue{Key: "x"}},
		{`{"withdraw":{}}`, Withdraw{}},
	}

	for _, tt := range tests {
		got, err := DecodeExecuteMsg([]byte(tt.raw))
		if err != nil {
			t.Fatalf("DecodeExecuteMsg(%s): %v", tt.raw, err)
		}
		if got != tt.want {
			t.Fatalf("DecodeExecuteMsg(%s) = %#v, want %#v", tt.raw, got, tt.want)
		}

		encoded, err := EncodeExecuteMsg(got)
		if err != nil {
			t.Fatalf("EncodeExecuteMsg: %v", err)
		}
		if string(encoded) != tt.raw {
			t.Fatalf("EncodeExecuteMsg = %s, want %s", encoded, tt.raw)
		}
	}
}

func TestDecodeExecuteMsgRejectsMalformed(t *testing.T) {
	for _, raw := range []string{
		`{}`,
		`null`,
		`[]`,
		`{"burn":{}}`,
		`{"set_value":{"key":"x","value":"y"},"withdraw":{}}`,
		`{"set_value":{"key":"x"}}`,
		`{"delete_value":{}}`,
		`{"delete_value":{"key":"x","extra":1}}`,
		`{"withdraw":{"amount":"5"}}`,
	} {
		if _, err := DecodeExecuteMsg([]byte(raw)); !errors.Is(err, ErrInvalidMsg) {
			t.Fatalf("DecodeExecuteMsg(%s): expected ErrInvalidMsg, got %v", raw, err)
		}
	}
}

func TestDecodeQueryMsg(t *testing.T) {
	got, err := DecodeQueryMsg([]byte(`{"value":{"key":"x"}}`))
	if err != nil || got != (Value{Key: "x"}) {
		t.Fatalf("value query: %#v %v", got, err)
	}
	got, err = DecodeQueryMsg([]byte(`{"config":{}}`))
	if err != nil || got != (Config{}) {
		t.Fatalf("config query: %#v %v", got, err)
	}

	if _, err := DecodeQueryMsg([]byte(`{"values":{}}`)); !errors.Is(err, ErrInvalidMsg) {
		t.Fatalf("expected ErrInvalidMsg for unknown query, got %v", err)
	}

	encoded, _ := EncodeQueryMsg(Value{Key: "k"})
	if string(encoded) != `{"value":{"key":"k"}}` {
		t.Fatalf("EncodeQueryMsg = %s", encoded)
	}
}

func TestDecodeInstantiateMsg(t *testing.T) {
	msg, err := DecodeInstantiateMsg([]byte(`{"base_fee":{"denom":"sei","amount":"2"}}`))
	if err != nil {
		t.Fatalf("DecodeInstantiateMsg: %v", err)
	}
	if msg.BaseFee == nil || msg.BaseFee.String() != "2sei" {
		t.Fatalf("base fee %v", msg.BaseFee)
	}

	msg, err = DecodeInstantiateMsg([]byte(`{}`))
	if err != nil || msg.BaseFee != nil {
		t.Fatalf("empty instantiate: %+v %v", msg, err)
	}

	for _, raw := range []string{
		`{"fee":"2sei"}`,
		`{}garbage`,
		`{"base_fee":{"denom":"sei","amount":"2"}} {}`,
	} {
		if _, err := DecodeInstantiateMsg([]byte(raw)); !errors.Is(err, ErrInvalidMsg) {
			t.Fatalf("DecodeInstantiateMsg(%s): expected ErrInvalidMsg, got %v", raw, err)
		}
	}
}
