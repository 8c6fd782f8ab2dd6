// Package storage provides the durable ledger.Store backed by SQLite.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"kvstore.contract/kvs/internal/ledger"

	_ "modernc.org/sqlite"
)

const (
	defaultDBFile        = "kvs.db"
	defaultBackupDirName = "backups"
	maxBusyTimeoutMs     = 5000
	defaultMaxBackups    = 20
)

var errNoBackups = errors.New("no ledger backups available")

// Store is a namespaced key-value table in a SQLite database file.
type Store struct {
	mu        sync.RWMutex
	db        *sql.DB
	file      string
	backupDir string
}

var (
	_ ledger.Store    = (*Store)(nil)
	_ ledger.Batcher  = (*Store)(nil)
	_ ledger.Iterator = (*Store)(nil)
)

// Backup describes a snapshot file taken at a block height.
type Backup struct {
	Path   string
	Height int64
}

// NewStore opens (or creates) the database at filePath. A database that
// fails to open is restored from the newest backup, or recreated empty when
// no backup exists.
func NewStore(filePath string) (*Store, error) {
	if filePath == "" {
		filePath = defaultDBFile
	}

	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return nil, fmt.Errorf("resolve db path: %w", err)
	}

	s := &Store{
		file:      absPath,
		backupDir: filepath.Join(filepath.Dir(absPath), defaultBackupDirName),
	}

	if err := os.MkdirAll(s.backupDir, 0o755); err != nil {
		return nil, fmt.Errorf("create backup directory: %w", err)
	}

	if err := s.tryOpenOrRecover(); err != nil {
		return nil, err
	}

	if err := s.ensureSchema(); err != nil {
		_ = s.closeDB()
		return nil, err
	}

	return s, nil
}

// Path returns the absolute database file path.
func (s *Store) Path() string {
	return s.file
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeDB()
}

func (s *Store) tryOpenOrRecover() error {
	if err := s.openDB(); err != nil {
		if recErr := s.recoverDatabase(err); recErr != nil {
			return recErr
		}
		return nil
	}
	// sql.Open is lazy about file format; probe the schema so a corrupt
	// file is detected here rather than on first use.
	if err := s.probe(); err != nil {
		if recErr := s.recoverDatabase(err); recErr != nil {
			return recErr
		}
	}
	return nil
}

func (s *Store) openDB() error {
	if err := os.MkdirAll(filepath.Dir(s.file), 0o755); err != nil {
		return fmt.Errorf("create db directory: %w", err)
	}

	connStr := fmt.Sprintf("file:%s", filepath.Clean(s.file))

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return fmt.Errorf("ping sqlite: %w", err)
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d", maxBusyTimeoutMs)); err != nil {
		db.Close()
		return fmt.Errorf("set busy timeout: %w", err)
	}

	s.db = db
	return nil
}

func (s *Store) probe() error {
	var n int
	if err := s.db.QueryRow(`SELECT count(*) FROM sqlite_master`).Scan(&n); err != nil {
		return fmt.Errorf("probe sqlite: %w", err)
	}
	return nil
}

func (s *Store) recoverDatabase(openErr error) error {
	if err := s.restoreLatestBackup(); err != nil {
		if errors.Is(err, errNoBackups) {
			if cleanErr := s.resetDatabaseFiles(); cleanErr != nil {
				return fmt.Errorf("reset database after %v: %w", openErr, cleanErr)
			}
			if err := s.openDB(); err != nil {
				return fmt.Errorf("create fresh database after %v: %w", openErr, err)
			}
			return nil
		}
		return fmt.Errorf("restore database after %v: %w", openErr, err)
	}
	return nil
}

func (s *Store) closeDB() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *Store) resetDatabaseFiles() error {
	_ = s.closeDB()

	var firstErr error
	for _, path := range []string{s.file, s.file + "-wal", s.file + "-shm"} {
		if err := os.Remove(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			if firstErr == nil {
				firstErr = fmt.Errorf("remove %s: %w", filepath.Base(path), err)
			}
		}
	}
	return firstErr
}

func (s *Store) removeSidecarFilesLocked() {
	for _, path := range []string{s.file + "-wal", s.file + "-shm"} {
		_ = os.Remove(path)
	}
}

func (s *Store) restoreLatestBackup() error {
	backups, err := s.Backups()
	if err != nil {
		return err
	}
	if len(backups) == 0 {
		return errNoBackups
	}

	latest := backups[len(backups)-1]
	if err := s.resetDatabaseFiles(); err != nil {
		return err
	}
	if err := copyFile(latest.Path, s.file); err != nil {
		return fmt.Errorf("copy backup %s: %w", filepath.Base(latest.Path), err)
	}
	return s.openDB()
}

func (s *Store) backupPrefix() (prefix, ext string) {
	base := filepath.Base(s.file)
	ext = filepath.Ext(base)
	prefix = strings.TrimSuffix(base, ext)
	if prefix == "" {
		prefix = base
	}
	return prefix, ext
}

// Backups lists height-named backups, oldest first.
func (s *Store) Backups() ([]Backup, error) {
	prefix, ext := s.backupPrefix()
	return listBackups(s.backupDir, prefix, ext)
}

func listBackups(dir, prefix, ext string) ([]Backup, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read backup directory: %w", err)
	}

	var backups []Backup
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		if !strings.HasPrefix(name, prefix+"-") {
			continue
		}
		if ext != "" && !strings.HasSuffix(name, ext) {
			continue
		}

		stem := name
		if ext != "" {
			stem = strings.TrimSuffix(stem, ext)
		}
		height, parseErr := strconv.ParseInt(strings.TrimPrefix(stem, prefix+"-"), 10, 64)
		if parseErr != nil || height <= 0 {
			continue
		}

		backups = append(backups, Backup{
			Path:   filepath.Join(dir, name),
			Height: height,
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].Height < backups[j].Height
	})

	return backups, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func (s *Store) ensureSchema() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS kv (
		namespace TEXT NOT NULL,
		key TEXT NOT NULL,
		value BLOB NOT NULL,
		PRIMARY KEY (namespace, key)
	)`)
	if err != nil {
		return fmt.Errorf("create kv table: %w", err)
	}

	var mode string
	if err := s.db.QueryRow("PRAGMA journal_mode=WAL").Scan(&mode); err != nil {
		return fmt.Errorf("enable WAL: %w", err)
	}

	return nil
}

// Save upserts a value.
func (s *Store) Save(namespace, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(upsertSQL, namespace, key, nonNil(value)); err != nil {
		return fmt.Errorf("save %s/%s: %w", namespace, key, err)
	}
	return nil
}

// Load returns found=false for absent keys.
func (s *Store) Load(namespace, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var value []byte
	err := s.db.QueryRow(`SELECT value FROM kv WHERE namespace = ? AND key = ?`, namespace, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("load %s/%s: %w", namespace, key, err)
	}
	return value, true, nil
}

// Remove deletes a key; absent keys are not an error.
func (s *Store) Remove(namespace, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(`DELETE FROM kv WHERE namespace = ? AND key = ?`, namespace, key); err != nil {
		return fmt.Errorf("remove %s/%s: %w", namespace, key, err)
	}
	return nil
}

// Count returns the number of keys in a namespace.
func (s *Store) Count(namespace string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	if err := s.db.QueryRow(`SELECT count(*) FROM kv WHERE namespace = ?`, namespace).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", namespace, err)
	}
	return n, nil
}

// Each walks every entry in namespace/key order.
func (s *Store) Each(fn func(namespace, key string, value []byte) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return eachRow(s.db, fn)
}

func eachRow(db *sql.DB, fn func(namespace, key string, value []byte) error) error {
	rows, err := db.Query(`SELECT namespace, key, value FROM kv ORDER BY namespace, key`)
	if err != nil {
		return fmt.Errorf("scan kv: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			namespace, key string
			value          []byte
		)
		if err := rows.Scan(&namespace, &key, &value); err != nil {
			return fmt.Errorf("scan kv row: %w", err)
		}
		if err := fn(namespace, key, value); err != nil {
			return err
		}
	}
	return rows.Err()
}

const upsertSQL = `INSERT INTO kv (namespace, key, value) VALUES (?, ?, ?)
	ON CONFLICT(namespace, key) DO UPDATE SET value = excluded.value`

// ApplyBatch applies ops in a single transaction.
func (s *Store) ApplyBatch(ops []ledger.Op) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}

	upsert, err := tx.Prepare(upsertSQL)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare batch upsert: %w", err)
	}
	defer upsert.Close()

	remove, err := tx.Prepare(`DELETE FROM kv WHERE namespace = ? AND key = ?`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare batch delete: %w", err)
	}
	defer remove.Close()

	for _, op := range ops {
		if op.Delete {
			_, err = remove.Exec(op.Namespace, op.Key)
		} else {
			_, err = upsert.Exec(op.Namespace, op.Key, nonNil(op.Value))
		}
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("batch %s/%s: %w", op.Namespace, op.Key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
