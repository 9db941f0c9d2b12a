package main

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/smhs/intake/internal/domain/intake"
	"github.com/smhs/intake/internal/platform/hipaa"
	"github.com/smhs/intake/internal/platform/session"
)

// draftStore keeps one in-progress form on disk, sealed when a storage key
// is configured. Card images are not saved.
type draftStore struct {
	path   string
	sealer *hipaa.Sealer
}

func newDraftStore(path string, sealer *hipaa.Sealer) *draftStore {
	return &draftStore{path: path, sealer: sealer}
}

func (s *draftStore) Save(d *intake.Draft) error {
	data, err := yaml.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode draft: %w", err)
	}
	sealed, err := s.sealer.Seal(data)
	if err != nil {
		return fmt.Errorf("seal draft: %w", err)
	}
	return session.WriteFileAtomic(s.path, sealed)
}

// Load returns the saved draft, or nil when there is none.
func (s *draftStore) Load() (*intake.Draft, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read draft: %w", err)
	}
	data, err := s.sealer.Open(raw)
	if err != nil {
		return nil, fmt.Errorf("open draft: %w", err)
	}
	var d intake.Draft
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("decode draft: %w", err)
	}
	return &d, nil
}

func (s *draftStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove draft: %w", err)
	}
	return nil
}
