package settings

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	flowerr "github.com/coffersTech/nanoflow/pkg/errors"
)

// Store keeps the current settings in memory and mirrors every change to a
// JSON file. A missing file means defaults.
type Store struct {
	filePath string
	mu       sync.RWMutex
	data     Settings
}

func NewStore(filePath string) *Store {
	return &Store{filePath: filePath, data: Default()}
}

// Load reads settings from disk. Keys absent from the file keep their
// default values.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.filePath)
	if os.IsNotExist(err) {
		s.data = Default()
		return nil
	}
	if err != nil {
		return flowerr.Wrap(err, flowerr.CodeSettingsLoadFailure, "reading settings", flowerr.FieldFile(s.filePath))
	}
	if len(raw) == 0 {
		s.data = Default()
		return nil
	}

	loaded := Default()
	if err := json.Unmarshal(raw, &loaded); err != nil {
		return flowerr.Wrap(err, flowerr.CodeSettingsLoadFailure, "decoding settings", flowerr.FieldFile(s.filePath))
	}
	if err := loaded.Validate(); err != nil {
		return err
	}
	s.data = loaded
	return nil
}

// Get returns a copy of the current settings.
func (s *Store) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.Clone()
}

// Update applies fn to a copy of the current settings and stores the result.
// Nothing changes if fn or validation fails.
func (s *Store) Update(fn func(*Settings) error) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.data.Clone()
	if err := fn(&next); err != nil {
		return s.data.Clone(), err
	}
	if err := next.Validate(); err != nil {
		return s.data.Clone(), err
	}
	if err := s.saveLocked(next); err != nil {
		return s.data.Clone(), err
	}
	s.data = next
	return next.Clone(), nil
}

func (s *Store) saveLocked(data Settings) error {
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return flowerr.Wrap(err, flowerr.CodeSettingsSaveFailure, "encoding settings")
	}

	if dir := filepath.Dir(s.filePath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return flowerr.Wrap(err, flowerr.CodeSettingsSaveFailure, "creating settings dir", flowerr.FieldFile(s.filePath))
		}
	}

	tmp := s.filePath + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return flowerr.Wrap(err, flowerr.CodeSettingsSaveFailure, "writing settings", flowerr.FieldFile(s.filePath))
	}
	if err := os.Rename(tmp, s.filePath); err != nil {
		os.Remove(tmp)
		return flowerr.Wrap(err, flowerr.CodeSettingsSaveFailure, "replacing settings", flowerr.FieldFile(s.filePath))
	}
	return nil
}
