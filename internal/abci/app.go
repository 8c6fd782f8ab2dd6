// Package abci contains the ABCI application that connects the key-value
// contract to the Tendermint consensus engine. Signatures and message shapes
// are validated in CheckTx; DeliverTx runs each transaction against its own
// write buffer so a failed call leaves no trace, and a block's writes reach
// durable storage together at Commit.
package abci

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	abci "github.com/tendermint/tendermint/abci/types"
	"golang.org/x/crypto/blake2b"

	"kvstore.contract/kvs/internal/contract"
	"kvstore.contract/kvs/internal/ledger"
	"kvstore.contract/kvs/internal/metrics"
	"kvstore.contract/kvs/internal/storage"
	"kvstore.contract/kvs/internal/types"
)

const (
	CodeTypeOK                uint32 = 0
	CodeTypeEncodingError     uint32 = 1
	CodeTypeAuthError         uint32 = 2
	CodeTypeInvalidTx         uint32 = 3
	CodeTypeFeeTooLow         uint32 = 4
	CodeTypeUnauthorized      uint32 = 5
	CodeTypeInsufficientFunds uint32 = 6
	CodeTypeReplay            uint32 = 7
	CodeTypeStorageError      uint32 = 8
)

const appVersion uint64 = 1

// Store is the durable backend the application commits blocks to.
type Store interface {
	ledger.Store
	ledger.Batcher
	ledger.Iterator
}

// Snapshotter is implemented by backends that keep height-named backups.
// Without one, periodic backups and state sync are disabled.
type Snapshotter interface {
	BackupAt(height int64, maxBackups int) (string, error)
	Backups() ([]storage.Backup, error)
	ReadBackup(height int64) ([]byte, error)
	ScanSnapshot(data []byte, fn func(namespace, key string, value []byte) error) error
	ImportSnapshot(data []byte, maxBackups int) (string, error)
}

type counter interface {
	Count(namespace string) (int, error)
}

// Event is published for every successful contract call.
type Event struct {
	Height     int64                `json:"height"`
	TxHash     string               `json:"tx_hash"`
	Sender     string               `json:"sender"`
	Contract   string               `json:"contract_address"`
	Attributes []contract.Attribute `json:"attributes"`
	Transfers  []contract.BankMsg   `json:"transfers,omitempty"`
}

// EventSink receives contract events after they are delivered.
type EventSink interface {
	Publish(ev Event)
}

// Options configures an Application. Zero values disable the matching
// feature.
type Options struct {
	Logger         log.Logger
	Metrics        *metrics.Metrics
	Events         EventSink
	BackupInterval int64
	MaxBackups     int
}

// Status summarizes the committed chain state.
type Status struct {
	Height          int64  `json:"height"`
	AppHash         string `json:"app_hash"`
	ContractAddress string `json:"contract_address"`
	ChainID         string `json:"chain_id"`
}

const (
	heightNamespace   = "meta/height"
	appHashNamespace  = "meta/app_hash"
	prevHashNamespace = "meta/prev_app_hash"
)

// commitMeta describes a commit rather than chain state, so it stays out of
// the state root.
var commitMeta = map[string]bool{
	heightNamespace:   true,
	appHashNamespace:  true,
	prevHashNamespace: true,
}

var (
	lastHeight      = ledger.NewItem[int64](heightNamespace)
	lastAppHash     = ledger.NewItem[[]byte](appHashNamespace)
	prevAppHash     = ledger.NewItem[[]byte](prevHashNamespace)
	contractAddress = ledger.NewItem[string]("meta/contract")
	chainID         = ledger.NewItem[string]("meta/chain_id")
	seenTxs         = ledger.NewMap[int64]("nonces")
)

// Application implements the ABCI interface.
type Application struct {
	abci.BaseApplication

	store   Store
	logger  log.Logger
	metrics *metrics.Metrics
	events  EventSink
	opts    Options

	mu           sync.RWMutex
	block        *ledger.Cache
	blockInfo    contract.BlockInfo
	delivered    int
	height       int64
	appHash      []byte
	contractAddr string
	chainID      string
	restoring    *restore
}

var _ abci.Application = (*Application)(nil)

// NewApplication resumes from the last state committed to store.
func NewApplication(store Store, opts Options) (*Application, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNopLogger()
	}

	app := &Application{
		store:   store,
		logger:  log.With(opts.Logger, "module", "abci"),
		metrics: opts.Metrics,
		events:  opts.Events,
		opts:    opts,
	}
	if err := app.reload(); err != nil {
		return nil, err
	}
	return app, nil
}

// reload reads chain metadata from the committed store and drops any
// uncommitted block writes.
func (app *Application) reload() error {
	height, _, err := lastHeight.MayLoad(app.store)
	if err != nil {
		return fmt.Errorf("load height: %w", err)
	}
	hash, _, err := lastAppHash.MayLoad(app.store)
	if err != nil {
		return fmt.Errorf("load app hash: %w", err)
	}
	addr, _, err := contractAddress.MayLoad(app.store)
	if err != nil {
		return fmt.Errorf("load contract address: %w", err)
	}
	chain, _, err := chainID.MayLoad(app.store)
	if err != nil {
		return fmt.Errorf("load chain id: %w", err)
	}

	app.height = height
	app.appHash = hash
	app.contractAddr = addr
	app.chainID = chain
	app.block = ledger.NewCache(app.store)
	app.delivered = 0
	return nil
}

// Status returns the last committed height and app hash.
func (app *Application) Status() Status {
	app.mu.RLock()
	defer app.mu.RUnlock()
	return Status{
		Height:          app.height,
		AppHash:         hex.EncodeToString(app.appHash),
		ContractAddress: app.contractAddr,
		ChainID:         app.chainID,
	}
}

func (app *Application) Info(req abci.RequestInfo) abci.ResponseInfo {
	app.mu.RLock()
	defer app.mu.RUnlock()

	level.Debug(app.logger).Log("msg", "info", "tendermint", req.Version, "height", app.height)
	return abci.ResponseInfo{
		Data:             "kvs",
		Version:          types.Version,
		AppVersion:       appVersion,
		LastBlockHeight:  app.height,
		LastBlockAppHash: app.appHash,
	}
}

func (app *Application) InitChain(req abci.RequestInitChain) abci.ResponseInitChain {
	app.mu.Lock()
	defer app.mu.Unlock()

	gen, err := DecodeGenesis(req.AppStateBytes)
	if err != nil {
		panic(fmt.Sprintf("init chain: %v", err))
	}
	app.blockInfo = contract.BlockInfo{Height: req.InitialHeight, Time: req.Time, ChainID: req.ChainId}
	if err := app.applyGenesis(req.ChainId, gen); err != nil {
		panic(fmt.Sprintf("init chain: %v", err))
	}

	level.Info(app.logger).Log(
		"msg", "chain initialized",
		"chain_id", req.ChainId,
		"contract", app.contractAddr,
		"accounts", len(gen.Balances),
		"instantiated", gen.Instantiate != nil,
	)
	return abci.ResponseInitChain{}
}

func (app *Application) BeginBlock(req abci.RequestBeginBlock) abci.ResponseBeginBlock {
	app.mu.Lock()
	defer app.mu.Unlock()

	app.blockInfo = contract.BlockInfo{
		Height:  req.Header.Height,
		Time:    req.Header.Time,
		ChainID: req.Header.ChainID,
	}
	app.delivered = 0
	return abci.ResponseBeginBlock{}
}

// Commit hashes the state as it will be after the block's writes, then
// flushes those writes and the new hash in one batch.
func (app *Application) Commit() abci.ResponseCommit {
	app.mu.Lock()
	defer app.mu.Unlock()

	height := app.blockInfo.Height
	if height <= app.height {
		height = app.height + 1
	}
	root, err := stateRoot(app.store, app.block.Ops())
	if err != nil {
		panic(fmt.Sprintf("commit %d: state root: %v", height, err))
	}
	hash := nextAppHash(app.appHash, height, root)

	if err := prevAppHash.Save(app.block, app.appHash); err != nil {
		panic(fmt.Sprintf("commit %d: %v", height, err))
	}
	if err := lastHeight.Save(app.block, height); err != nil {
		panic(fmt.Sprintf("commit %d: %v", height, err))
	}
	if err := lastAppHash.Save(app.block, hash); err != nil {
		panic(fmt.Sprintf("commit %d: %v", height, err))
	}
	if err := app.block.Write(); err != nil {
		panic(fmt.Sprintf("commit %d: %v", height, err))
	}

	txs := app.delivered
	app.height = height
	app.appHash = hash
	app.delivered = 0
	app.block = ledger.NewCache(app.store)

	if app.metrics != nil {
		app.metrics.BlockHeight.Set(float64(height))
		if c, ok := app.store.(counter); ok {
			if n, err := c.Count("store"); err == nil {
				app.metrics.StoredKeys.Set(float64(n))
			}
		}
	}

	app.maybeBackup(height)

	level.Info(app.logger).Log("msg", "committed block", "height", height, "txs", txs, "app_hash", hex.EncodeToString(hash))
	return abci.ResponseCommit{Data: hash}
}

func (app *Application) maybeBackup(height int64) {
	snap, ok := app.store.(Snapshotter)
	if !ok || app.opts.BackupInterval <= 0 || height%app.opts.BackupInterval != 0 {
		return
	}
	path, err := snap.BackupAt(height, app.opts.MaxBackups)
	if err != nil {
		level.Error(app.logger).Log("msg", "backup failed", "height", height, "err", err)
		return
	}
	level.Info(app.logger).Log("msg", "backup written", "height", height, "path", path)
}

// nextAppHash is blake2b-256(prev || height || state root).
func nextAppHash(prev []byte, height int64, root []byte) []byte {
	h, _ := blake2b.New256(nil)
	h.Write(prev)
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(height))
	h.Write(buf[:])
	h.Write(root)
	return h.Sum(nil)
}

// stateRoot hashes every entry of base overlaid with ops, skipping commit
// metadata. Entries are length-prefixed and taken in namespace/key order.
func stateRoot(base ledger.Iterator, ops []ledger.Op) ([]byte, error) {
	type entryKey struct{ namespace, key string }
	entries := make(map[entryKey][]byte)
	err := base.Each(func(namespace, key string, value []byte) error {
		if !commitMeta[namespace] {
			entries[entryKey{namespace, key}] = value
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, op := range ops {
		if commitMeta[op.Namespace] {
			continue
		}
		k := entryKey{op.Namespace, op.Key}
		if op.Delete {
			delete(entries, k)
			continue
		}
		entries[k] = op.Value
	}

	keys := make([]entryKey, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].namespace == keys[j].namespace {
			return keys[i].key < keys[j].key
		}
		return keys[i].namespace < keys[j].namespace
	})

	h, _ := blake2b.New256(nil)
	for _, k := range keys {
		writeField(h, []byte(k.namespace))
		writeField(h, []byte(k.key))
		writeField(h, entries[k])
	}
	return h.Sum(nil), nil
}

func writeField(w io.Writer, b []byte) {
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(len(b)))
	w.Write(n[:])
	w.Write(b)
}
