package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// BackupAt writes a snapshot of the database named after height and prunes
// old backups beyond maxBackups. Returns the backup path when created.
func (s *Store) BackupAt(height int64, maxBackups int) (string, error) {
	if height <= 0 {
		return "", fmt.Errorf("invalid backup height %d", height)
	}

	snapshot, err := s.ExportSnapshot()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", err
	}

	if maxBackups <= 0 {
		maxBackups = defaultMaxBackups
	}

	if err := os.MkdirAll(s.backupDir, 0o755); err != nil {
		return "", fmt.Errorf("ensure backup directory: %w", err)
	}

	prefix, ext := s.backupPrefix()
	backupPath := filepath.Join(s.backupDir, fmt.Sprintf("%s-%d%s", prefix, height, ext))

	if err := os.WriteFile(backupPath, snapshot, 0o600); err != nil {
		return "", fmt.Errorf("write backup: %w", err)
	}

	pruneBackups(s.backupDir, prefix, ext, maxBackups)

	return backupPath, nil
}

// ReadBackup returns the bytes of the backup taken at height.
func (s *Store) ReadBackup(height int64) ([]byte, error) {
	backups, err := s.Backups()
	if err != nil {
		return nil, err
	}
	for _, b := range backups {
		if b.Height == height {
			return os.ReadFile(b.Path)
		}
	}
	return nil, fmt.Errorf("no backup at height %d: %w", height, os.ErrNotExist)
}

// ExportSnapshot returns a consistent copy of the current database contents.
func (s *Store) ExportSnapshot() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.file); errors.Is(err, os.ErrNotExist) {
		return nil, os.ErrNotExist
	}

	tempFile, err := os.CreateTemp(filepath.Dir(s.file), "kvs-export-*.db")
	if err != nil {
		return nil, fmt.Errorf("create temp export file: %w", err)
	}
	tempPath := tempFile.Name()
	tempFile.Close()
	// VACUUM INTO needs a missing or empty target.
	os.Remove(tempPath)

	escaped := strings.ReplaceAll(tempPath, "'", "''")
	if _, err := s.db.Exec(fmt.Sprintf("VACUUM INTO '%s'", escaped)); err != nil {
		os.Remove(tempPath)
		return nil, fmt.Errorf("vacuum into temp file: %w", err)
	}

	data, err := os.ReadFile(tempPath)
	os.Remove(tempPath)
	if err != nil {
		return nil, fmt.Errorf("read export file: %w", err)
	}

	return data, nil
}

// ScanSnapshot walks the entries of SQLite database bytes without touching
// the live database.
func (s *Store) ScanSnapshot(data []byte, fn func(namespace, key string, value []byte) error) error {
	if len(data) == 0 {
		return errors.New("snapshot data is empty")
	}

	tempFile, err := os.CreateTemp(filepath.Dir(s.file), "kvs-scan-*.db")
	if err != nil {
		return fmt.Errorf("create temp scan file: %w", err)
	}
	tempPath := tempFile.Name()
	defer func() {
		for _, suffix := range []string{"", "-wal", "-shm"} {
			os.Remove(tempPath + suffix)
		}
	}()

	_, err = tempFile.Write(data)
	if closeErr := tempFile.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("write temp scan file: %w", err)
	}

	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s", filepath.Clean(tempPath)))
	if err != nil {
		return fmt.Errorf("open snapshot: %w", err)
	}
	defer db.Close()

	return eachRow(db, fn)
}

// ImportSnapshot replaces the current database contents with the provided
// SQLite database bytes. Returns the path the previous database was moved
// to, if one existed.
func (s *Store) ImportSnapshot(data []byte, maxBackups int) (string, error) {
	if len(data) == 0 {
		return "", errors.New("snapshot data is empty")
	}

	if maxBackups <= 0 {
		maxBackups = defaultMaxBackups
	}

	dir := filepath.Dir(s.file)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("prepare db directory: %w", err)
	}
	if err := os.MkdirAll(s.backupDir, 0o755); err != nil {
		return "", fmt.Errorf("prepare backup directory: %w", err)
	}

	tempFile, err := os.CreateTemp(dir, "kvs-import-*.db")
	if err != nil {
		return "", fmt.Errorf("create temp import file: %w", err)
	}
	tempPath := tempFile.Name()

	if _, err := tempFile.Write(data); err != nil {
		tempFile.Close()
		os.Remove(tempPath)
		return "", fmt.Errorf("write temp import file: %w", err)
	}
	tempFile.Close()

	s.mu.Lock()
	defer s.mu.Unlock()

	_ = s.closeDB()

	var replacedPath string
	if _, err := os.Stat(s.file); err == nil {
		replacedPath = s.file + ".replaced"
		_ = os.Remove(replacedPath)
		if err := os.Rename(s.file, replacedPath); err != nil {
			_ = s.openDB()
			os.Remove(tempPath)
			return "", fmt.Errorf("rename existing db: %w", err)
		}
		s.removeSidecarFilesLocked()
	}

	if err := os.Rename(tempPath, s.file); err != nil {
		if replacedPath != "" {
			_ = os.Rename(replacedPath, s.file)
		}
		os.Remove(tempPath)
		_ = s.openDB()
		return "", fmt.Errorf("activate imported db: %w", err)
	}

	if err := s.openDB(); err != nil {
		if replacedPath != "" {
			_ = os.Rename(replacedPath, s.file)
			_ = s.openDB()
		}
		return "", fmt.Errorf("reopen db after import: %w", err)
	}

	if err := s.ensureSchema(); err != nil {
		return replacedPath, err
	}

	prefix, ext := s.backupPrefix()
	pruneBackups(s.backupDir, prefix, ext, maxBackups)

	return replacedPath, nil
}

func pruneBackups(dir, prefix, ext string, maxBackups int) {
	if maxBackups <= 0 {
		return
	}

	backups, err := listBackups(dir, prefix, ext)
	if err != nil || len(backups) <= maxBackups {
		return
	}

	for i := 0; i < len(backups)-maxBackups; i++ {
		_ = os.Remove(backups[i].Path)
	}
}
