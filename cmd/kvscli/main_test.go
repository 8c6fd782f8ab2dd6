package main

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/urfave/cli/v2"

	"kvstore.contract/kvs/internal/contract"
	"kvstore.contract/kvs/internal/types"
)

func run(t *testing.T, rpc string, args ...string) (string, error) {
	t.Helper()
	app := newApp()
	var out bytes.Buffer
	app.Writer = &out
	app.ErrWriter = io.Discard
	app.ExitErrHandler = func(*cli.Context, error) {}
	full := append([]string{"kvscli", "--rpc", rpc}, args...)
	err := app.Run(full)
	return out.String(), err
}

func TestKeysNewRecoverShow(t *testing.T) {
	home := t.TempDir()

	out, err := run(t, "", "--home", home, "keys", "new")
	if err != nil {
		t.Fatalf("keys new: %v", err)
	}
	var address, mnemonic string
	for _, line := range strings.Split(out, "\n") {
		if v, ok := strings.CutPrefix(line, "address: "); ok {
			address = v
		}
		if v, ok := strings.CutPrefix(line, "mnemonic: "); ok {
			mnemonic = v
		}
	}
	if !strings.HasPrefix(address, "kvs1") || len(strings.Fields(mnemonic)) != 24 {
		t.Fatalf("unexpected keys new output:\n%s", out)
	}

	if _, err := run(t, "", "--home", home, "keys", "new"); err == nil {
		t.Fatal("expected keys new to refuse overwriting")
	}

	other := t.TempDir()
	out, err = run(t, "", append([]string{"--home", other, "keys", "recover"}, strings.Fields(mnemonic)...)...)
	if err != nil {
		t.Fatalf("keys recover: %v", err)
	}
	if !strings.Contains(out, address) {
		t.Fatalf("recovered a different address:\n%s", out)
	}

	out, err = run(t, "", "--home", other, "keys", "show")
	if err != nil {
		t.Fatalf("keys show: %v", err)
	}
	if !strings.Contains(out, address) {
		t.Fatalf("keys show output:\n%s", out)
	}
}

func TestTxSetBroadcastsSignedCall(t *testing.T) {
	home := t.TempDir()
	if _, err := run(t, "", "--home", home, "keys", "new"); err != nil {
		t.Fatalf("keys new: %v", err)
	}

	var got *types.SignedTransaction
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string `json:"method"`
			Params struct {
				Tx string `json:"tx"`
			} `json:"params"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		if req.Method != "broadcast_tx_commit" {
			t.Errorf("method %q", req.Method)
		}
		raw, _ := base64.StdEncoding.DecodeString(req.Params.Tx)
		stx, err := types.DecodeSignedTransaction(raw)
		if err != nil {
			t.Errorf("decode tx: %v", err)
		}
		got = stx
		io.WriteString(w, `{"jsonrpc":"2.0","id":1,"result":{"check_tx":{"code":0},"deliver_tx":{"code":0},"hash":"AA","height":"4"}}`)
	}))
	defer srv.Close()

	if _, err := run(t, srv.URL, "--home", home, "tx", "set", "--funds", "2sei", "color", "blue"); err != nil {
		t.Fatalf("tx set: %v", err)
	}
	if got == nil || !got.Verify() {
		t.Fatal("expected a verified signed transaction")
	}
	tx, err := got.GetTransaction()
	if err != nil {
		t.Fatalf("GetTransaction: %v", err)
	}
	if tx.Type != types.TxExecute || tx.Funds.String() != "2sei" {
		t.Fatalf("unexpected tx %+v", tx)
	}
	msg, err := contract.DecodeExecuteMsg(tx.Msg)
	if err != nil {
		t.Fatalf("DecodeExecuteMsg: %v", err)
	}
	if set, ok := msg.(contract.SetValue); !ok || set.Key != "color" || set.Value != "blue" {
		t.Fatalf("unexpected message %#v", msg)
	}
}

func TestQueryValue(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Params struct {
				Path string `json:"path"`
				Data string `json:"data"`
			} `json:"params"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		data, _ := hex.DecodeString(req.Params.Data)
		if req.Params.Path != "/contract" || string(data) != `{"value":{"key":"color"}}` {
			t.Errorf("unexpected query %s %s", req.Params.Path, data)
		}
		value := base64.StdEncoding.EncodeToString([]byte(`{"key":"color","value":"blue"}`))
		io.WriteString(w, `{"jsonrpc":"2.0","id":1,"result":{"response":{"code":0,"value":"`+value+`","height":"4"}}}`)
	}))
	defer srv.Close()

	out, err := run(t, srv.URL, "query", "value", "color")
	if err != nil {
		t.Fatalf("query value: %v", err)
	}
	if !strings.Contains(out, `"value": "blue"`) {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestTxUsageMessages(t *testing.T) {
	home := t.TempDir()
	cases := map[string][]string{
		"usage: kvscli tx delete KEY":                  {"tx", "delete"},
		"usage: kvscli tx update KEY VALUE":            {"tx", "update", "k"},
		"usage: kvscli tx set KEY VALUE --funds COINS": {"tx", "set"},
	}
	for want, args := range cases {
		_, err := run(t, "", append([]string{"--home", home}, args...)...)
		if err == nil || err.Error() != want {
			t.Fatalf("%v: error %v, want %q", args, err, want)
		}
	}
}
