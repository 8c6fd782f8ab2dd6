// Package bank keeps account balances in the ledger and executes the
// transfers contracts emit.
package bank

import (
	"errors"
	"fmt"

	"kvstore.contract/kvs/internal/contract"
	"kvstore.contract/kvs/internal/ledger"
	"kvstore.contract/kvs/internal/types"
)

// ErrInsufficientFunds is returned when a sender cannot cover a transfer.
var ErrInsufficientFunds = errors.New("insufficient funds")

var balances = ledger.NewMap[types.Coins]("balances")

// Keeper reads and moves balances within a ledger.Store. Pass a call-scoped
// ledger.Cache to make a group of transfers atomic.
type Keeper struct {
	store ledger.Store
}

var _ contract.Querier = Keeper{}

func NewKeeper(store ledger.Store) Keeper {
	return Keeper{store: store}
}

// AllBalances returns the normalized holdings of address. Unknown addresses
// hold nothing.
func (k Keeper) AllBalances(address string) (types.Coins, error) {
	coins, _, err := balances.MayLoad(k.store, address)
	if err != nil {
		return nil, fmt.Errorf("load balance of %s: %w", address, err)
	}
	if coins == nil {
		return types.Coins{}, nil
	}
	return coins, nil
}

// SetBalances overwrites the holdings of address. Used for genesis.
func (k Keeper) SetBalances(address string, coins types.Coins) error {
	if err := coins.Validate(); err != nil {
		return err
	}
	normalized, err := coins.Normalize()
	if err != nil {
		return err
	}
	if len(normalized) == 0 {
		return balances.Remove(k.store, address)
	}
	return balances.Save(k.store, address, normalized)
}

// Send moves amount from one address to another. An empty amount is a no-op.
func (k Keeper) Send(from, to string, amount types.Coins) error {
	if err := amount.Validate(); err != nil {
		return err
	}
	if amount.IsZero() {
		return nil
	}

	have, err := k.AllBalances(from)
	if err != nil {
		return err
	}
	left, ok, err := have.SafeSub(amount)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientFunds, from, have, amount)
	}
	if err := k.SetBalances(from, left); err != nil {
		return err
	}

	// Read the recipient after debiting so that self-sends net to zero.
	current, err := k.AllBalances(to)
	if err != nil {
		return err
	}
	credited, err := current.Add(amount)
	if err != nil {
		return err
	}
	return k.SetBalances(to, credited)
}

// Dispatch executes the transfers a contract emitted from its own address.
func (k Keeper) Dispatch(contractAddr string, msgs []contract.BankMsg) error {
	for _, m := range msgs {
		if m.ToAddress == "" {
			return errors.New("bank message without recipient")
		}
		if err := k.Send(contractAddr, m.ToAddress, m.Amount); err != nil {
			return fmt.Errorf("bank send to %s: %w", m.ToAddress, err)
		}
	}
	return nil
}
