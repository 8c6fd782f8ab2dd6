package abci

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	abci "github.com/tendermint/tendermint/abci/types"

	"kvstore.contract/kvs/internal/bank"
	"kvstore.contract/kvs/internal/contract"
	"kvstore.contract/kvs/internal/types"
)

// Query paths served by Query.
const (
	QueryPathContract = "/contract"
	QueryPathBalances = "/balances"
	QueryPathStatus   = "/status"
)

// ErrInvalidQuery is returned for malformed query parameters.
var ErrInvalidQuery = errors.New("invalid query")

// QueryContract answers a JSON contract query against committed state.
func (app *Application) QueryContract(raw []byte) ([]byte, error) {
	msg, err := contract.DecodeQueryMsg(raw)
	if err != nil {
		return nil, err
	}
	app.mu.RLock()
	env := contract.Env{Contract: contract.ContractInfo{Address: app.contractAddr}}
	env.Block.Height = app.height
	env.Block.ChainID = app.chainID
	app.mu.RUnlock()

	deps := contract.Deps{Storage: app.store, Querier: bank.NewKeeper(app.store)}
	return contract.Query(deps, env, msg)
}

// Balances returns the committed holdings of address.
func (app *Application) Balances(address string) (types.Coins, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, fmt.Errorf("%w: address is required", ErrInvalidQuery)
	}
	return bank.NewKeeper(app.store).AllBalances(address)
}

func (app *Application) Query(req abci.RequestQuery) abci.ResponseQuery {
	status := app.Status()

	var (
		value []byte
		err   error
	)
	switch req.Path {
	case QueryPathContract:
		value, err = app.QueryContract(req.Data)
	case QueryPathBalances:
		var coins types.Coins
		if coins, err = app.Balances(string(req.Data)); err == nil {
			value, err = json.Marshal(coins)
		}
	case QueryPathStatus:
		value, err = json.Marshal(status)
	default:
		return abci.ResponseQuery{Code: CodeTypeInvalidTx, Log: fmt.Sprintf("unknown query path %q", req.Path), Height: status.Height}
	}
	if err != nil {
		return abci.ResponseQuery{Code: codeFor(err), Log: err.Error(), Height: status.Height}
	}
	return abci.ResponseQuery{Code: CodeTypeOK, Key: req.Data, Value: value, Height: status.Height}
}
