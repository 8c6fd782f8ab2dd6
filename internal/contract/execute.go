package contract

import (
	"fmt"

	"kvstore.contract/kvs/internal/types"
)

// feePaid reports whether any single attached coin covers fee. Coins of the
// same denomination are not summed.
func feePaid(funds types.Coins, fee types.Coin) bool {
	for _, c := range funds {
		if c.Denom == fee.Denom && c.Amount.GTE(fee.Amount) {
			return true
		}
	}
	return false
}

func ensureOwner(deps Deps, sender string) error {
	current, err := owner.Load(deps.Storage)
	if err != nil {
		return fmt.Errorf("load owner: %w", err)
	}
	if sender != current {
		return &UnauthorizedError{Owner: current}
	}
	return nil
}

func setValue(deps Deps, info MessageInfo, key, value string) (*Response, error) {
	fee, err := storageFee.Load(deps.Storage)
	if err != nil {
		return nil, fmt.Errorf("load storage fee: %w", err)
	}
	if !feePaid(info.Funds, fee) {
		return nil, &StorageFeeTooLowError{Required: fee.Amount, Denom: fee.Denom}
	}

	if err := store.Save(deps.Storage, key, value); err != nil {
		return nil, fmt.Errorf("set value: %w", err)
	}

	res := &Response{}
	res.AddAttribute("action", "insert_value").
		AddAttribute("sender", info.Sender).
		AddAttribute("value", value)
	return res, nil
}

// updateValue writes without a fee and without checking the key exists, so
// it also creates entries.
func updateValue(deps Deps, info MessageInfo, key, value string) (*Response, error) {
	if err := store.Save(deps.Storage, key, value); err != nil {
		return nil, fmt.Errorf("update value: %w", err)
	}

	res := &Response{}
	res.AddAttribute("action", "update_value").
		AddAttribute("sender", info.Sender).
		AddAttribute("value", value)
	return res, nil
}

func deleteValue(deps Deps, info MessageInfo, key string) (*Response, error) {
	if err := store.Remove(deps.Storage, key); err != nil {
		return nil, fmt.Errorf("delete value: %w", err)
	}

	res := &Response{}
	res.AddAttribute("action", "delete_value").
		AddAttribute("sender", info.Sender).
		AddAttribute("value", key)
	return res, nil
}

func withdraw(deps Deps, env Env, info MessageInfo) (*Response, error) {
	if err := ensureOwner(deps, info.Sender); err != nil {
		return nil, err
	}

	balance, err := deps.Querier.AllBalances(env.Contract.Address)
	if err != nil {
		return nil, fmt.Errorf("query contract balance: %w", err)
	}

	res := &Response{}
	res.AddMessage(BankMsg{ToAddress: info.Sender, Amount: balance}).
		AddAttribute("action", "withdraw").
		AddAttribute("sender", info.Sender).
		AddAttribute("value", "all balances")
	return res, nil
}
