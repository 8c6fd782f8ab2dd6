package abci

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"kvstore.contract/kvs/internal/bank"
	"kvstore.contract/kvs/internal/contract"
	"kvstore.contract/kvs/internal/identity"
	"kvstore.contract/kvs/internal/types"
)

// Genesis is the app_state section of the Tendermint genesis file.
type Genesis struct {
	// ContractAddress defaults to identity.ContractAddress(chain id).
	ContractAddress string                 `json:"contract_address,omitempty"`
	Balances        []types.AccountBalance `json:"balances,omitempty"`
	Instantiate     *GenesisInstantiate    `json:"instantiate,omitempty"`
}

// GenesisInstantiate instantiates the contract at genesis on behalf of Owner.
type GenesisInstantiate struct {
	Owner   string      `json:"owner"`
	BaseFee *types.Coin `json:"base_fee,omitempty"`
}

// DecodeGenesis parses app state bytes. Empty input is an empty genesis.
func DecodeGenesis(raw []byte) (Genesis, error) {
	var gen Genesis
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return gen, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&gen); err != nil {
		return gen, fmt.Errorf("decode genesis app state: %w", err)
	}
	return gen, nil
}

func (app *Application) applyGenesis(chain string, gen Genesis) error {
	addr := gen.ContractAddress
	if addr == "" {
		addr = identity.ContractAddress(chain)
	}
	if err := contractAddress.Save(app.block, addr); err != nil {
		return err
	}
	if err := chainID.Save(app.block, chain); err != nil {
		return err
	}
	app.contractAddr = addr
	app.chainID = chain

	keeper := bank.NewKeeper(app.block)
	for _, acct := range gen.Balances {
		if acct.Address == "" {
			return errors.New("genesis balance without address")
		}
		if err := keeper.SetBalances(acct.Address, acct.Coins); err != nil {
			return fmt.Errorf("genesis balance %s: %w", acct.Address, err)
		}
	}

	if gen.Instantiate == nil {
		return nil
	}
	if gen.Instantiate.Owner == "" {
		return errors.New("genesis instantiate without owner")
	}
	msg := contract.InstantiateMsg{BaseFee: gen.Instantiate.BaseFee}
	deps := contract.Deps{Storage: app.block, Querier: keeper}
	if _, err := contract.Instantiate(deps, app.env(), contract.MessageInfo{Sender: gen.Instantiate.Owner}, msg); err != nil {
		return fmt.Errorf("genesis instantiate: %w", err)
	}
	return nil
}

func (app *Application) env() contract.Env {
	return contract.Env{
		Block:    app.blockInfo,
		Contract: contract.ContractInfo{Address: app.contractAddr},
	}
}
