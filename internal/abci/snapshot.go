package abci

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/go-kit/log/level"
	abci "github.com/tendermint/tendermint/abci/types"
	"golang.org/x/crypto/blake2b"

	"kvstore.contract/kvs/internal/ledger"
)

// snapshotFormat 1 is a whole SQLite database file in a single chunk.
const snapshotFormat uint32 = 1

type restore struct {
	snapshot *abci.Snapshot
	appHash  []byte
}

func (app *Application) snapshotter() (Snapshotter, bool) {
	s, ok := app.store.(Snapshotter)
	return s, ok
}

func (app *Application) ListSnapshots(abci.RequestListSnapshots) abci.ResponseListSnapshots {
	snap, ok := app.snapshotter()
	if !ok {
		return abci.ResponseListSnapshots{}
	}
	backups, err := snap.Backups()
	if err != nil {
		level.Error(app.logger).Log("msg", "list snapshots", "err", err)
		return abci.ResponseListSnapshots{}
	}

	var out []*abci.Snapshot
	for _, b := range backups {
		data, err := snap.ReadBackup(b.Height)
		if err != nil {
			continue
		}
		sum := blake2b.Sum256(data)
		out = append(out, &abci.Snapshot{
			Height: uint64(b.Height),
			Format: snapshotFormat,
			Chunks: 1,
			Hash:   sum[:],
		})
	}
	return abci.ResponseListSnapshots{Snapshots: out}
}

func (app *Application) LoadSnapshotChunk(req abci.RequestLoadSnapshotChunk) abci.ResponseLoadSnapshotChunk {
	snap, ok := app.snapshotter()
	if !ok || req.Format != snapshotFormat || req.Chunk != 0 {
		return abci.ResponseLoadSnapshotChunk{}
	}
	data, err := snap.ReadBackup(int64(req.Height))
	if err != nil {
		level.Warn(app.logger).Log("msg", "load snapshot chunk", "height", req.Height, "err", err)
		return abci.ResponseLoadSnapshotChunk{}
	}
	return abci.ResponseLoadSnapshotChunk{Chunk: data}
}

func (app *Application) OfferSnapshot(req abci.RequestOfferSnapshot) abci.ResponseOfferSnapshot {
	app.mu.Lock()
	defer app.mu.Unlock()

	if _, ok := app.snapshotter(); !ok {
		return abci.ResponseOfferSnapshot{Result: abci.ResponseOfferSnapshot_ABORT}
	}
	if req.Snapshot == nil {
		return abci.ResponseOfferSnapshot{Result: abci.ResponseOfferSnapshot_REJECT}
	}
	if req.Snapshot.Format != snapshotFormat {
		return abci.ResponseOfferSnapshot{Result: abci.ResponseOfferSnapshot_REJECT_FORMAT}
	}
	if req.Snapshot.Chunks != 1 {
		return abci.ResponseOfferSnapshot{Result: abci.ResponseOfferSnapshot_REJECT}
	}

	app.restoring = &restore{snapshot: req.Snapshot, appHash: req.AppHash}
	level.Info(app.logger).Log("msg", "accepted snapshot", "height", req.Snapshot.Height)
	return abci.ResponseOfferSnapshot{Result: abci.ResponseOfferSnapshot_ACCEPT}
}

// ApplySnapshotChunk recomputes the app hash from the snapshot contents and
// only replaces the database when it matches the hash Tendermint verified
// for the offered height.
func (app *Application) ApplySnapshotChunk(req abci.RequestApplySnapshotChunk) abci.ResponseApplySnapshotChunk {
	app.mu.Lock()
	defer app.mu.Unlock()

	snap, ok := app.snapshotter()
	if !ok || app.restoring == nil {
		return abci.ResponseApplySnapshotChunk{Result: abci.ResponseApplySnapshotChunk_ABORT}
	}
	offer := app.restoring

	sum := blake2b.Sum256(req.Chunk)
	if !bytes.Equal(sum[:], offer.snapshot.Hash) {
		return abci.ResponseApplySnapshotChunk{
			Result:        abci.ResponseApplySnapshotChunk_RETRY,
			RefetchChunks: []uint32{req.Index},
			RejectSenders: []string{req.Sender},
		}
	}

	if err := verifySnapshot(snap, req.Chunk, int64(offer.snapshot.Height), offer.appHash); err != nil {
		level.Warn(app.logger).Log("msg", "rejected snapshot", "height", offer.snapshot.Height, "sender", req.Sender, "err", err)
		app.restoring = nil
		return abci.ResponseApplySnapshotChunk{
			Result:        abci.ResponseApplySnapshotChunk_REJECT_SNAPSHOT,
			RejectSenders: []string{req.Sender},
		}
	}

	if _, err := snap.ImportSnapshot(req.Chunk, app.opts.MaxBackups); err != nil {
		level.Error(app.logger).Log("msg", "import snapshot", "err", err)
		return abci.ResponseApplySnapshotChunk{Result: abci.ResponseApplySnapshotChunk_ABORT}
	}
	if err := app.reload(); err != nil {
		level.Error(app.logger).Log("msg", "reload after snapshot", "err", err)
		return abci.ResponseApplySnapshotChunk{Result: abci.ResponseApplySnapshotChunk_ABORT}
	}

	app.restoring = nil
	level.Info(app.logger).Log("msg", "restored snapshot", "height", app.height)
	return abci.ResponseApplySnapshotChunk{Result: abci.ResponseApplySnapshotChunk_ACCEPT}
}

// verifySnapshot checks that database bytes hold the state committed at
// height under appHash.
func verifySnapshot(snap Snapshotter, data []byte, height int64, appHash []byte) error {
	contents := ledger.NewMemStore()
	if err := snap.ScanSnapshot(data, contents.Save); err != nil {
		return err
	}

	stored, _, err := lastHeight.MayLoad(contents)
	if err != nil {
		return err
	}
	if stored != height {
		return fmt.Errorf("snapshot holds height %d, offered %d", stored, height)
	}
	prev, _, err := prevAppHash.MayLoad(contents)
	if err != nil {
		return err
	}
	storedHash, _, err := lastAppHash.MayLoad(contents)
	if err != nil {
		return err
	}

	root, err := stateRoot(contents, nil)
	if err != nil {
		return err
	}
	computed := nextAppHash(prev, height, root)
	if !bytes.Equal(computed, appHash) {
		return errors.New("snapshot contents do not match the offered app hash")
	}
	if !bytes.Equal(storedHash, computed) {
		return errors.New("snapshot metadata disagrees with its contents")
	}
	return nil
}
