package state

import (
	"errors"
	"fmt"
)

// Save writes the chain, the state snapshot and the pending transactions
// to storage.
func (s *State) Save() error {
	if err := s.db.Write(); err != nil {
		return err
	}

	if err := s.savePending(); err != nil {
		return fmt.Errorf("saving pending: %w", err)
	}

	s.evHandler("state: Save: saved: blocks[%d]: pending[%d]", s.db.Length(), s.mempool.Count())

	return nil
}

// savePending writes the pending pool to storage. The copy and the write
// happen under one lock so an older snapshot never overwrites a newer one.
func (s *State) savePending() error {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	return s.storage.SavePending(s.mempool.Copy())
}

// Backup saves everything and copies the stored files and the index into
// the backup folder. The names of the copies are returned.
func (s *State) Backup() ([]string, error) {
	if s.backupDir == "" {
		return nil, errors.New("backup folder is not configured")
	}

	if err := s.Save(); err != nil {
		return nil, err
	}

	files, err := s.storage.Backup(s.backupDir)
	if err != nil {
		return files, fmt.Errorf("backing up storage: %w", err)
	}

	if s.index != nil {
		file, err := s.index.Backup(s.backupDir)
		if err != nil {
			return files, fmt.Errorf("backing up index: %w", err)
		}
		files = append(files, file)
	}

	s.evHandler("state: Backup: files[%d]", len(files))

	return files, nil
}
