package api

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/go-kit/log"
	tmabci "github.com/tendermint/tendermint/abci/types"
	tmproto "github.com/tendermint/tendermint/proto/tendermint/types"

	"kvstore.contract/kvs/internal/abci"
	"kvstore.contract/kvs/internal/contract"
	"kvstore.contract/kvs/internal/identity"
	"kvstore.contract/kvs/internal/ledger"
	"kvstore.contract/kvs/internal/logger"
	"kvstore.contract/kvs/internal/types"
)

const testChain = "kvs-api-test"

type testNode struct {
	app    *abci.Application
	owner  *identity.Identity
	height int64
}

// setupTest starts an application whose contract is instantiated at genesis
// by a funded owner, and an API service over it.
func setupTest(t *testing.T, opts Options) (*Service, *testNode) {
	t.Helper()

	owner, err := identity.LoadOrCreateIdentity(filepath.Join(t.TempDir(), "owner.pem"))
	if err != nil {
		t.Fatalf("Failed to create identity: %v", err)
	}

	if opts.Hub == nil {
		opts.Hub = NewHub(log.NewNopLogger())
	}
	app, err := abci.NewApplication(ledger.NewMemStore(), abci.Options{Events: opts.Hub})
	if err != nil {
		t.Fatalf("Failed to create application: %v", err)
	}

	fee := types.NewCoin(2, "sei")
	state, _ := json.Marshal(abci.Genesis{
		Balances: []types.AccountBalance{
			{Address: owner.Address(), Coins: types.Coins{types.NewCoin(50, "sei")}},
		},
		Instantiate: &abci.GenesisInstantiate{Owner: owner.Address(), BaseFee: &fee},
	})
	app.InitChain(tmabci.RequestInitChain{ChainId: testChain, AppStateBytes: state, InitialHeight: 1})

	if opts.Ring == nil {
		opts.Ring = logger.New(100)
	}
	return NewService(app, opts), &testNode{app: app, owner: owner}
}

// set stores key=value through a committed block.
func (n *testNode) set(t *testing.T, key, value string) {
	t.Helper()
	msg, err := contract.EncodeExecuteMsg(contract.SetValue{Key: key, Value: value})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	stx, err := types.NewTransaction(types.TxExecute, msg, types.Coins{types.NewCoin(2, "sei")}).Sign(n.owner)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	raw, _ := json.Marshal(stx)

	n.height++
	n.app.BeginBlock(tmabci.RequestBeginBlock{Header: tmproto.Header{Height: n.height, ChainID: testChain}})
	res := n.app.DeliverTx(tmabci.RequestDeliverTx{Tx: raw})
	n.app.Commit()
	if res.Code != abci.CodeTypeOK {
		t.Fatalf("DeliverTx code=%d log=%s", res.Code, res.Log)
	}
}
