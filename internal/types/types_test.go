package types

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"kvstore.contract/kvs/internal/identity"
)

func TestTransactionSigning(t *testing.T) {
	id, err := identity.LoadOrCreateIdentity(filepath.Join(t.TempDir(), "test_key.pem"))
	if err != nil {
		t.Fatalf("Failed to create test identity: %v", err)
	}

	tx := NewTransaction(TxExecute, json.RawMessage(`{"set_value":{"key":"a","value":"b"}}`), Coins{NewCoin(2, "sei")})
	signedTx, err := tx.Sign(id)
	if err != nil {
		t.Fatalf("Failed to sign transaction: %v", err)
	}
	if !signedTx.Verify() {
		t.Fatal("Signature verification failed")
	}

	sender, err := signedTx.Sender()
	if err != nil || sender != id.Address() {
		t.Fatalf("Sender = %q, %v; want %q", sender, err, id.Address())
	}

	raw, err := json.Marshal(signedTx)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	decoded, err := DecodeSignedTransaction(raw)
	if err != nil {
		t.Fatalf("DecodeSignedTransaction: %v", err)
	}
	inner, err := decoded.GetTransaction()
	if err != nil {
		t.Fatalf("GetTransaction: %v", err)
	}
	if inner.Type != TxExecute || inner.Nonce != tx.Nonce || inner.Funds.String() != "2sei" {
		t.Fatalf("unexpected inner transaction %+v", inner)
	}

	decoded.Tx[len(decoded.Tx)-2] ^= 0x01
	if decoded.Verify() {
		t.Fatal("tampered transaction should not verify")
	}
}

func TestNewTransactionNoncesDiffer(t *testing.T) {
	a := NewTransaction(TxExecute, []byte(`{}`), nil)
	b := NewTransaction(TxExecute, []byte(`{}`), nil)
	if a.Nonce == "" || a.Nonce == b.Nonce {
		t.Fatalf("expected distinct nonces, got %q and %q", a.Nonce, b.Nonce)
	}
}

func TestGetTransactionRejectsUnknownType(t *testing.T) {
	stx := &SignedTransaction{Tx: []byte(`{"type":"migrate","msg":{}}`)}
	if _, err := stx.GetTransaction(); err == nil {
		t.Fatal("expected unknown type error")
	}
}

func TestParseCoins(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "", want: ""},
		{in: "2sei", want: "2sei"},
		{in: "10sei,3uatom", want: "10sei,3uatom"},
		{in: "sei", wantErr: true},
		{in: "-1sei", wantErr: true},
		{in: "5s", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseCoins(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidCoin) {
				t.Errorf("ParseCoins(%q) error = %v, want ErrInvalidCoin", tt.in, err)
			}
			continue
		}
		if err != nil || got.String() != tt.want {
			t.Errorf("ParseCoins(%q) = %q, %v; want %q", tt.in, got.String(), err, tt.want)
		}
	}
}

func TestCoinsArithmetic(t *testing.T) {
	have := Coins{NewCoin(5, "sei"), NewCoin(1, "uatom"), NewCoin(3, "sei")}

	norm, err := have.Normalize()
	if err != nil || norm.String() != "8sei,1uatom" {
		t.Fatalf("Normalize = %q, %v", norm.String(), err)
	}
	if got := have.AmountOf("sei"); got.String() != "8" {
		t.Fatalf("AmountOf = %s", got)
	}

	left, ok, err := have.SafeSub(Coins{NewCoin(8, "sei")})
	if err != nil || !ok || left.String() != "1uatom" {
		t.Fatalf("SafeSub = %q, %v, %v", left.String(), ok, err)
	}
	if _, ok, _ := have.SafeSub(Coins{NewCoin(9, "sei")}); ok {
		t.Fatal("SafeSub should fail when a denomination goes negative")
	}
}

func TestUintBeyondUint64(t *testing.T) {
	big, err := ParseUint("340282366920938463463374607431768211456") // 2^128
	if err != nil {
		t.Fatalf("ParseUint: %v", err)
	}
	sum, err := big.Add(NewUint(1))
	if err != nil || sum.String() != "340282366920938463463374607431768211457" {
		t.Fatalf("Add = %s, %v", sum, err)
	}
	if !sum.GTE(big) || big.GTE(sum) {
		t.Fatal("GTE ordering is wrong")
	}
	if _, err := NewUint(1).Sub(NewUint(2)); !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected ErrOverflow, got %v", err)
	}

	var u Uint
	if err := json.Unmarshal([]byte(`"42"`), &u); err != nil || u.String() != "42" {
		t.Fatalf("quoted decode = %s, %v", u, err)
	}
	if err := json.Unmarshal([]byte(`42`), &u); err != nil || u.String() != "42" {
		t.Fatalf("bare decode = %s, %v", u, err)
	}
}
