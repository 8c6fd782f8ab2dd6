package contract

import (
	"encoding/json"
	"errors"
	"testing"

	"kvstore.contract/kvs/internal/ledger"
	"kvstore.contract/kvs/internal/types"
)

const (
	creator  = "kvs1creator"
	stranger = "kvs1stranger"
	self     = "kvs1contract"
)

// fakeBank holds balances and applies emitted BankMsgs from the contract.
type fakeBank map[string]types.Coins

func (b fakeBank) AllBalances(address string) (types.Coins, error) {
	return b[address], nil
}

func (b fakeBank) apply(t *testing.T, from string, msgs []BankMsg) {
	t.Helper()
	for _, m := range msgs {
		left, ok, err := b[from].SafeSub(m.Amount)
		if err != nil || !ok {
			t.Fatalf("bank transfer %s from %s failed: ok=%v err=%v", m.Amount, from, ok, err)
		}
		b[from] = left
		to, err := b[m.ToAddress].Add(m.Amount)
		if err != nil {
			t.Fatalf("bank credit: %v", err)
		}
		b[m.ToAddress] = to
	}
}

func setup(t *testing.T, fee *types.Coin) (Deps, Env, fakeBank) {
	t.Helper()
	bank := fakeBank{}
	deps := Deps{Storage: ledger.NewMemStore(), Querier: bank}
	env := Env{Contract: ContractInfo{Address: self}}
	if _, err := Instantiate(deps, env, MessageInfo{Sender: creator}, InstantiateMsg{BaseFee: fee}); err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	return deps, env, bank
}

func sei(n uint64) *types.Coin {
	c := types.NewCoin(n, "sei")
	return &c
}

func lookup(t *testing.T, deps Deps, env Env, key string) *string {
	t.Helper()
	raw, err := Query(deps, env, Value{Key: key})
	if err != nil {
		t.Fatalf("Query %q: %v", key, err)
	}
	var res ValueResponse
	if err := json.Unmarshal(raw, &res); err != nil {
		t.Fatalf("decode query response: %v", err)
	}
	if res.Key != key {
		t.Fatalf("response key %q, want %q", res.Key, key)
	}
	return res.Value
}

func TestLookupDefaultsToAbsent(t *testing.T) {
	deps := Deps{Storage: ledger.NewMemStore(), Querier: fakeBank{}}
	env := Env{Contract: ContractInfo{Address: self}}

	if v := lookup(t, deps, env, "never"); v != nil {
		t.Fatalf("expected absent before instantiate, got %q", *v)
	}
	if _, err := Instantiate(deps, env, MessageInfo{Sender: creator}, InstantiateMsg{BaseFee: sei(2)}); err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	if v := lookup(t, deps, env, "never"); v != nil {
		t.Fatalf("expected absent after instantiate, got %q", *v)
	}

	raw, _ := Query(deps, env, Value{Key: "never"})
	if string(raw) != `{"key":"never","value":null}` {
		t.Fatalf("unexpected wire form %s", raw)
	}
}

func TestInstantiateRecordsConfig(t *testing.T) {
	deps, env, _ := setup(t, sei(2))

	raw, err := Query(deps, env, Config{})
	if err != nil {
		t.Fatalf("Query config: %v", err)
	}
	var cfg ConfigResponse
	if err := json.Unmarshal(raw, &cfg); err != nil {
		t.Fatalf("decode config: %v", err)
	}
	if cfg.Owner != creator || cfg.BaseFee.String() != "2sei" {
		t.Fatalf("unexpected config %+v", cfg)
	}

	_, err = Instantiate(deps, env, MessageInfo{Sender: stranger}, InstantiateMsg{BaseFee: sei(0)})
	if !errors.Is(err, ErrAlreadyInstantiated) {
		t.Fatalf("expected ErrAlreadyInstantiated, got %v", err)
	}
}

func TestInstantiateRequiresBaseFee(t *testing.T) {
	deps := Deps{Storage: ledger.NewMemStore(), Querier: fakeBank{}}
	_, err := Instantiate(deps, Env{}, MessageInfo{Sender: creator}, InstantiateMsg{})
	if !errors.Is(err, ErrMissingBaseFee) {
		t.Fatalf("expected ErrMissingBaseFee, got %v", err)
	}
}

func TestInstantiateAcceptsZeroFee(t *testing.T) {
	deps, env, _ := setup(t, sei(0))

	if _, err := Execute(deps, env, MessageInfo{Sender: stranger, Funds: types.Coins{*sei(0)}}, SetValue{Key: "k", Value: "v"}); err != nil {
		t.Fatalf("zero fee paid with zero coin: %v", err)
	}
	// A zero fee still needs a coin of the fee denomination.
	_, err := Execute(deps, env, MessageInfo{Sender: stranger}, SetValue{Key: "k", Value: "v"})
	if !errors.Is(err, ErrStorageFeeTooLow) {
		t.Fatalf("expected ErrStorageFeeTooLow without funds, got %v", err)
	}
}

func TestFeeGate(t *testing.T) {
	tests := []struct {
		name  string
		funds types.Coins
		ok    bool
	}{
		{"no funds", nil, false},
		{"below fee", types.Coins{types.NewCoin(1, "sei")}, false},
		{"wrong denom", types.Coins{types.NewCoin(5, "atom")}, false},
		{"split payment is not summed", types.Coins{types.NewCoin(1, "sei"), types.NewCoin(1, "sei")}, false},
		{"exact fee", types.Coins{types.NewCoin(2, "sei")}, true},
		{"above fee", types.Coins{types.NewCoin(7, "sei")}, true},
		{"matching coin among others", types.Coins{types.NewCoin(9, "atom"), types.NewCoin(2, "sei")}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps, env, _ := setup(t, sei(2))

			res, err := Execute(deps, env, MessageInfo{Sender: stranger, Funds: tt.funds}, SetValue{Key: "x", Value: "first"})
			if !tt.ok {
				var feeErr *StorageFeeTooLowError
				if !errors.As(err, &feeErr) {
					t.Fatalf("expected StorageFeeTooLowError, got %v", err)
				}
				if feeErr.Required.String() != "2" || feeErr.Denom != "sei" {
					t.Fatalf("unexpected required fee %s%s", feeErr.Required, feeErr.Denom)
				}
				if v := lookup(t, deps, env, "x"); v != nil {
					t.Fatalf("rejected set wrote %q", *v)
				}
				return
			}

			if err != nil {
				t.Fatalf("SetValue: %v", err)
			}
			if v := lookup(t, deps, env, "x"); v == nil || *v != "first" {
				t.Fatalf("lookup after set: %v", v)
			}
			want := []Attribute{{"action", "insert_value"}, {"sender", stranger}, {"value", "first"}}
			if len(res.Attributes) != len(want) {
				t.Fatalf("attributes %+v", res.Attributes)
			}
			for i, a := range want {
				if res.Attributes[i] != a {
					t.Fatalf("attribute %d = %+v, want %+v", i, res.Attributes[i], a)
				}
			}
			if len(res.Messages) != 0 {
				t.Fatalf("set value emitted transfers: %+v", res.Messages)
			}
		})
	}
}

func TestSetValueOverwrites(t *testing.T) {
	deps, env, _ := setup(t, sei(2))
	paid := MessageInfo{Sender: stranger, Funds: types.Coins{*sei(2)}}

	Execute(deps, env, paid, SetValue{Key: "x", Value: "first"})
	if _, err := Execute(deps, env, paid, SetValue{Key: "x", Value: "again"}); err != nil {
		t.Fatalf("SetValue: %v", err)
	}
	if v := lookup(t, deps, env, "x"); v == nil || *v != "again" {
		t.Fatalf("lookup after overwrite: %v", v)
	}
}

func TestUpdateBypassesFee(t *testing.T) {
	deps, env, _ := setup(t, sei(2))
	info := MessageInfo{Sender: stranger}

	// Creates a missing key.
	res, err := Execute(deps, env, info, UpdateValue{Key: "fresh", Value: "v1"})
	if err != nil {
		t.Fatalf("UpdateValue on absent key: %v", err)
	}
	if action, _ := res.Attribute("action"); action != "update_value" {
		t.Fatalf("action attribute %q", action)
	}
	if v, _ := res.Attribute("value"); v != "v1" {
		t.Fatalf("value attribute %q", v)
	}

	if _, err := Execute(deps, env, info, UpdateValue{Key: "fresh", Value: "v2"}); err != nil {
		t.Fatalf("UpdateValue: %v", err)
	}
	if v := lookup(t, deps, env, "fresh"); v == nil || *v != "v2" {
		t.Fatalf("lookup after update: %v", v)
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	deps, env, _ := setup(t, sei(2))
	info := MessageInfo{Sender: stranger}

	res, err := Execute(deps, env, info, DeleteValue{Key: "missing"})
	if err != nil {
		t.Fatalf("DeleteValue on absent key: %v", err)
	}
	if v, _ := res.Attribute("value"); v != "missing" {
		t.Fatalf("delete attribute value %q, want key", v)
	}

	Execute(deps, env, info, UpdateValue{Key: "x", Value: "v"})
	for i := 0; i < 2; i++ {
		if _, err := Execute(deps, env, info, DeleteValue{Key: "x"}); err != nil {
			t.Fatalf("DeleteValue #%d: %v", i+1, err)
		}
		if v := lookup(t, deps, env, "x"); v != nil {
			t.Fatalf("lookup after delete #%d: %q", i+1, *v)
		}
	}
}

func TestWithdrawAuthorization(t *testing.T) {
	deps, env, bank := setup(t, sei(2))
	bank[self] = types.NewCoins(types.NewCoin(10, "sei"), types.NewCoin(3, "atom"))

	_, err := Execute(deps, env, MessageInfo{Sender: stranger}, Withdraw{})
	var authErr *UnauthorizedError
	if !errors.As(err, &authErr) || !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected UnauthorizedError, got %v", err)
	}
	if authErr.Owner != creator {
		t.Fatalf("error names owner %q, want %q", authErr.Owner, creator)
	}

	res, err := Execute(deps, env, MessageInfo{Sender: creator}, Withdraw{})
	if err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	if len(res.Messages) != 1 || res.Messages[0].ToAddress != creator {
		t.Fatalf("unexpected transfers %+v", res.Messages)
	}
	if got := res.Messages[0].Amount.String(); got != "3atom,10sei" {
		t.Fatalf("withdraw amount %q", got)
	}
	if v, _ := res.Attribute("value"); v != "all balances" {
		t.Fatalf("withdraw attribute value %q", v)
	}

	bank.apply(t, self, res.Messages)
	if !bank[self].IsZero() {
		t.Fatalf("contract balance after withdraw: %s", bank[self])
	}
	if bank[creator].AmountOf("sei").String() != "10" {
		t.Fatalf("owner balance: %s", bank[creator])
	}
}

func TestEndToEndScenario(t *testing.T) {
	deps, env, bank := setup(t, sei(2))
	bank[creator] = types.NewCoins(types.NewCoin(20, "sei"))
	bank[self] = types.NewCoins(types.NewCoin(10, "sei"))

	if _, err := Execute(deps, env, MessageInfo{Sender: creator, Funds: types.Coins{*sei(2)}}, SetValue{Key: "x", Value: "first"}); err != nil {
		t.Fatalf("SetValue: %v", err)
	}
	if v := lookup(t, deps, env, "x"); v == nil || *v != "first" {
		t.Fatalf("after set: %v", v)
	}

	if _, err := Execute(deps, env, MessageInfo{Sender: creator}, UpdateValue{Key: "x", Value: "second"}); err != nil {
		t.Fatalf("UpdateValue: %v", err)
	}
	if v := lookup(t, deps, env, "x"); v == nil || *v != "second" {
		t.Fatalf("after update: %v", v)
	}

	if _, err := Execute(deps, env, MessageInfo{Sender: creator}, DeleteValue{Key: "x"}); err != nil {
		t.Fatalf("DeleteValue: %v", err)
	}
	if v := lookup(t, deps, env, "x"); v != nil {
		t.Fatalf("after delete: %q", *v)
	}

	res, err := Execute(deps, env, MessageInfo{Sender: creator}, Withdraw{})
	if err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	bank.apply(t, self, res.Messages)

	if got := bank[creator].AmountOf("sei").String(); got != "30" {
		t.Fatalf("owner balance %s, want 30sei", got)
	}
	if len(bank[self]) != 0 {
		t.Fatalf("contract balance %s, want empty", bank[self])
	}
}

func TestExecuteBeforeInstantiate(t *testing.T) {
	deps := Deps{Storage: ledger.NewMemStore(), Querier: fakeBank{}}

	_, err := Execute(deps, Env{}, MessageInfo{Sender: creator, Funds: types.Coins{*sei(2)}}, SetValue{Key: "x", Value: "v"})
	if !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	_, err = Execute(deps, Env{}, MessageInfo{Sender: creator}, Withdraw{})
	if !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPointerMessagesAreRejected(t *testing.T) {
	deps, env, _ := setup(t, sei(2))

	_, err := Execute(deps, env, MessageInfo{Sender: creator, Funds: types.Coins{*sei(2)}}, &SetValue{Key: "x", Value: "v"})
	if !errors.Is(err, ErrInvalidMsg) {
		t.Fatalf("expected ErrInvalidMsg, got %v", err)
	}
	if _, err := Query(deps, env, &Value{Key: "x"}); !errors.Is(err, ErrInvalidMsg) {
		t.Fatalf("expected ErrInvalidMsg, got %v", err)
	}
	if v := lookup(t, deps, env, "x"); v != nil {
		t.Fatalf("pointer message wrote %q", *v)
	}
}
