package abci

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/go-kit/log/level"
	abci "github.com/tendermint/tendermint/abci/types"

	"kvstore.contract/kvs/internal/bank"
	"kvstore.contract/kvs/internal/contract"
	"kvstore.contract/kvs/internal/ledger"
	"kvstore.contract/kvs/internal/types"
)

type decodedTx struct {
	hash   string
	sender string
	tx     *types.Transaction
}

// decodeTx verifies the envelope signature and decodes the inner body.
func decodeTx(raw []byte) (*decodedTx, uint32, error) {
	stx, err := types.DecodeSignedTransaction(raw)
	if err != nil {
		return nil, CodeTypeEncodingError, err
	}
	if !stx.Verify() {
		return nil, CodeTypeAuthError, errors.New("invalid signature")
	}
	sender, err := stx.Sender()
	if err != nil {
		return nil, CodeTypeAuthError, err
	}
	tx, err := stx.GetTransaction()
	if err != nil {
		return nil, CodeTypeEncodingError, err
	}
	if err := tx.Funds.Validate(); err != nil {
		return nil, CodeTypeInvalidTx, err
	}
	if _, err := tx.Funds.Normalize(); err != nil {
		return nil, CodeTypeInvalidTx, err
	}

	return &decodedTx{hash: stx.Hash(), sender: sender, tx: tx}, CodeTypeOK, nil
}

// validateMsg checks that the message decodes for the transaction type.
func validateMsg(tx *types.Transaction) error {
	switch tx.Type {
	case types.TxInstantiate:
		_, err := contract.DecodeInstantiateMsg(tx.Msg)
		return err
	case types.TxExecute:
		_, err := contract.DecodeExecuteMsg(tx.Msg)
		return err
	}
	return fmt.Errorf("unknown transaction type %q", tx.Type)
}

func (app *Application) CheckTx(req abci.RequestCheckTx) abci.ResponseCheckTx {
	dtx, code, err := decodeTx(req.Tx)
	if err != nil {
		return abci.ResponseCheckTx{Code: code, Log: err.Error()}
	}
	if err := validateMsg(dtx.tx); err != nil {
		return abci.ResponseCheckTx{Code: CodeTypeEncodingError, Log: err.Error()}
	}

	seen, err := seenTxs.Has(app.store, dtx.hash)
	if err != nil {
		return abci.ResponseCheckTx{Code: CodeTypeStorageError, Log: err.Error()}
	}
	if seen {
		return abci.ResponseCheckTx{Code: CodeTypeReplay, Log: "transaction already delivered"}
	}

	return abci.ResponseCheckTx{Code: CodeTypeOK, GasWanted: 1}
}

func (app *Application) DeliverTx(req abci.RequestDeliverTx) abci.ResponseDeliverTx {
	app.mu.Lock()
	defer app.mu.Unlock()

	dtx, code, err := decodeTx(req.Tx)
	if err != nil {
		return app.rejected(code, "", err)
	}

	seen, err := seenTxs.Has(app.block, dtx.hash)
	if err != nil {
		return app.rejected(CodeTypeStorageError, "", err)
	}
	if seen {
		return app.rejected(CodeTypeReplay, "", errors.New("transaction already delivered"))
	}
	// Failed calls are recorded too, so a signed transaction runs at most once.
	if err := seenTxs.Save(app.block, dtx.hash, app.blockInfo.Height); err != nil {
		return app.rejected(CodeTypeStorageError, "", err)
	}
	app.delivered++

	res, action, code, err := app.execute(dtx)
	if err != nil {
		level.Warn(app.logger).Log(
			"msg", "contract call failed",
			"tx", dtx.hash,
			"sender", dtx.sender,
			"action", action,
			"code", code,
			"err", err,
		)
		app.countExecution(action, "error")
		return app.rejected(code, action, err)
	}

	app.countExecution(action, "ok")
	app.countResult(CodeTypeOK)
	level.Info(app.logger).Log("msg", "contract call", "tx", dtx.hash, "sender", dtx.sender, "action", action)

	if app.events != nil {
		app.events.Publish(Event{
			Height:     app.blockInfo.Height,
			TxHash:     dtx.hash,
			Sender:     dtx.sender,
			Contract:   app.contractAddr,
			Attributes: res.Attributes,
			Transfers:  res.Messages,
		})
	}

	data, _ := json.Marshal(res)
	return abci.ResponseDeliverTx{
		Code:   CodeTypeOK,
		Data:   data,
		Events: app.eventsFor(res),
	}
}

// execute runs one call inside its own cache. Nothing it writes survives
// unless the handler and every emitted transfer succeed.
func (app *Application) execute(dtx *decodedTx) (*contract.Response, string, uint32, error) {
	action := string(dtx.tx.Type)
	if app.contractAddr == "" {
		return nil, action, CodeTypeInvalidTx, errors.New("chain not initialized")
	}

	call := ledger.NewCache(app.block)
	keeper := bank.NewKeeper(call)
	deps := contract.Deps{Storage: call, Querier: keeper}
	info := contract.MessageInfo{Sender: dtx.sender, Funds: dtx.tx.Funds}

	var (
		res *contract.Response
		err error
	)
	switch dtx.tx.Type {
	case types.TxInstantiate:
		msg, derr := contract.DecodeInstantiateMsg(dtx.tx.Msg)
		if derr != nil {
			return nil, action, CodeTypeEncodingError, derr
		}
		if err := keeper.Send(dtx.sender, app.contractAddr, dtx.tx.Funds); err != nil {
			return nil, action, codeFor(err), err
		}
		res, err = contract.Instantiate(deps, app.env(), info, msg)

	case types.TxExecute:
		msg, derr := contract.DecodeExecuteMsg(dtx.tx.Msg)
		if derr != nil {
			return nil, action, CodeTypeEncodingError, derr
		}
		action = contract.Tag(msg)
		if err := keeper.Send(dtx.sender, app.contractAddr, dtx.tx.Funds); err != nil {
			return nil, action, codeFor(err), err
		}
		res, err = contract.Execute(deps, app.env(), info, msg)

	default:
		return nil, action, CodeTypeInvalidTx, fmt.Errorf("unknown transaction type %q", dtx.tx.Type)
	}
	if err != nil {
		return nil, action, codeFor(err), err
	}

	if err := keeper.Dispatch(app.contractAddr, res.Messages); err != nil {
		return nil, action, codeFor(err), err
	}
	if err := call.Write(); err != nil {
		return nil, action, CodeTypeStorageError, err
	}
	return res, action, CodeTypeOK, nil
}

func (app *Application) rejected(code uint32, action string, err error) abci.ResponseDeliverTx {
	app.countResult(code)
	return abci.ResponseDeliverTx{Code: code, Log: err.Error(), Codespace: codespaceFor(action)}
}

// codespaceFor scopes contract failures under "wasm"; envelope failures
// carry no codespace.
func codespaceFor(action string) string {
	if action == "" {
		return ""
	}
	return "wasm"
}

// codeFor maps a call error to its result code.
func codeFor(err error) uint32 {
	switch {
	case errors.Is(err, contract.ErrStorageFeeTooLow):
		return CodeTypeFeeTooLow
	case errors.Is(err, contract.ErrUnauthorized):
		return CodeTypeUnauthorized
	case errors.Is(err, bank.ErrInsufficientFunds):
		return CodeTypeInsufficientFunds
	case errors.Is(err, contract.ErrInvalidMsg):
		return CodeTypeEncodingError
	case errors.Is(err, contract.ErrMissingBaseFee),
		errors.Is(err, contract.ErrAlreadyInstantiated),
		errors.Is(err, types.ErrInvalidCoin),
		errors.Is(err, types.ErrOverflow),
		errors.Is(err, ledger.ErrNotFound),
		errors.Is(err, ErrInvalidQuery):
		return CodeTypeInvalidTx
	}
	return CodeTypeStorageError
}

func (app *Application) eventsFor(res *contract.Response) []abci.Event {
	wasm := abci.Event{
		Type: "wasm",
		Attributes: []abci.EventAttribute{
			{Key: []byte("_contract_address"), Value: []byte(app.contractAddr), Index: true},
		},
	}
	for _, a := range res.Attributes {
		wasm.Attributes = append(wasm.Attributes, abci.EventAttribute{Key: []byte(a.Key), Value: []byte(a.Value), Index: true})
	}
	events := []abci.Event{wasm}

	for _, m := range res.Messages {
		events = append(events, abci.Event{
			Type: "transfer",
			Attributes: []abci.EventAttribute{
				{Key: []byte("recipient"), Value: []byte(m.ToAddress), Index: true},
				{Key: []byte("sender"), Value: []byte(app.contractAddr), Index: true},
				{Key: []byte("amount"), Value: []byte(m.Amount.String())},
			},
		})
	}
	return events
}

func (app *Application) countExecution(action, result string) {
	if app.metrics != nil {
		app.metrics.Executions.WithLabelValues(action, result).Inc()
	}
}

func (app *Application) countResult(code uint32) {
	if app.metrics != nil {
		app.metrics.TxResults.WithLabelValues(strconv.FormatUint(uint64(code), 10)).Inc()
	}
}
