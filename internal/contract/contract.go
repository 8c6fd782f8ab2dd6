// Package contract implements a fee-gated key-value store. Callers pay a
// fixed fee to create entries, may update or delete entries freely, and the
// owner recorded at instantiation may sweep the contract's balance.
//
// Handlers are synchronous and hold no locks: the host runs one call at a
// time against an exclusive view of storage and commits or discards all of
// a call's writes together.
package contract

import (
	"encoding/json"
	"fmt"
	"time"

	"kvstore.contract/kvs/internal/ledger"
	"kvstore.contract/kvs/internal/types"
)

// Querier answers balance questions about chain accounts.
type Querier interface {
	AllBalances(address string) (types.Coins, error)
}

// Deps are the host capabilities a call may use.
type Deps struct {
	Storage ledger.Store
	Querier Querier
}

// BlockInfo describes the block a call executes in.
type BlockInfo struct {
	Height  int64     `json:"height"`
	Time    time.Time `json:"time"`
	ChainID string    `json:"chain_id"`
}

// ContractInfo identifies the executing contract.
type ContractInfo struct {
	Address string `json:"address"`
}

type Env struct {
	Block    BlockInfo    `json:"block"`
	Contract ContractInfo `json:"contract"`
}

// MessageInfo carries the caller and the coins attached to the call. Funds
// are already in the contract's custody when a handler runs.
type MessageInfo struct {
	Sender string      `json:"sender"`
	Funds  types.Coins `json:"funds"`
}

type Attribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// BankMsg instructs the host to move Amount from the contract to ToAddress.
type BankMsg struct {
	ToAddress string      `json:"to_address"`
	Amount    types.Coins `json:"amount"`
}

// Response is returned by a successful call. Messages are executed by the
// host as part of the same call.
type Response struct {
	Attributes []Attribute `json:"attributes"`
	Messages   []BankMsg   `json:"messages,omitempty"`
}

func (r *Response) AddAttribute(key, value string) *Response {
	r.Attributes = append(r.Attributes, Attribute{Key: key, Value: value})
	return r
}

func (r *Response) AddMessage(msg BankMsg) *Response {
	r.Messages = append(r.Messages, msg)
	return r
}

// Attribute returns the value of the first attribute named key.
func (r *Response) Attribute(key string) (string, bool) {
	for _, a := range r.Attributes {
		if a.Key == key {
			return a.Value, true
		}
	}
	return "", false
}

// Instantiate records the fee and makes the sender the owner. The fee value
// itself is not validated; a zero amount is stored as given.
func Instantiate(deps Deps, _ Env, info MessageInfo, msg InstantiateMsg) (*Response, error) {
	if msg.BaseFee == nil {
		return nil, ErrMissingBaseFee
	}

	_, exists, err := owner.MayLoad(deps.Storage)
	if err != nil {
		return nil, fmt.Errorf("load owner: %w", err)
	}
	if exists {
		return nil, ErrAlreadyInstantiated
	}

	if err := storageFee.Save(deps.Storage, *msg.BaseFee); err != nil {
		return nil, fmt.Errorf("save storage fee: %w", err)
	}
	if err := owner.Save(deps.Storage, info.Sender); err != nil {
		return nil, fmt.Errorf("save owner: %w", err)
	}
	return &Response{}, nil
}

// Execute dispatches a decoded execute message to its handler.
func Execute(deps Deps, env Env, info MessageInfo, msg ExecuteMsg) (*Response, error) {
	switch m := msg.(type) {
	case SetValue:
		return setValue(deps, info, m.Key, m.Value)
	case UpdateValue:
		return updateValue(deps, info, m.Key, m.Value)
	case DeleteValue:
		return deleteValue(deps, info, m.Key)
	case Withdraw:
		return withdraw(deps, env, info)
	}
	return nil, fmt.Errorf("%w: unsupported execute message %T", ErrInvalidMsg, msg)
}

// Query dispatches a decoded query message and returns its JSON answer.
func Query(deps Deps, _ Env, msg QueryMsg) ([]byte, error) {
	switch m := msg.(type) {
	case Value:
		return toBinary(queryValue(deps, m.Key))
	case Config:
		return toBinary(queryConfig(deps))
	}
	return nil, fmt.Errorf("%w: unsupported query message %T", ErrInvalidMsg, msg)
}

func toBinary[T any](res T, err error) ([]byte, error) {
	if err != nil {
		return nil, err
	}
	return json.Marshal(res)
}
