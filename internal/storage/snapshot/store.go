// Package snapshot persists the full platform state as one versioned blob.
package snapshot

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/tbills/internal/domain"
	"github.com/vadiminshakov/tbills/internal/storage/records"
)

const (
	// CurrentVersion is the blob layout written by Save.
	CurrentVersion = 2

	legacyVersion   = 1
	defaultFileName = "snapshot.json"
)

// Blob is the serialized form of the record store and the authorized identity set.
type Blob struct {
	Version    int           `json:"version"`
	SavedAt    int64         `json:"saved_at"`
	State      records.State `json:"state"`
	Authorized []string      `json:"authorized"`
}

// legacyBlob is the version 1 layout: a free-form profile string per identity plus the guard list.
type legacyBlob struct {
	Data  map[string]string `json:"data"`
	Guard []string          `json:"guard"`
}

// Store reads and writes the snapshot file.
type Store struct {
	path string
}

// NewStore creates a snapshot store writing into dir.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("snapshot dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create snapshot dir")
	}

	return &Store{path: filepath.Join(dir, defaultFileName)}, nil
}

// Path returns the snapshot file location.
func (s *Store) Path() string {
	return s.path
}

// Load reads the snapshot, migrating older layouts. It returns nil when no snapshot exists.
func (s *Store) Load() (*Blob, error) {
	if s == nil || s.path == "" {
		return nil, nil
	}

	payload, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}

		return nil, errors.Wrap(err, "read snapshot")
	}

	if len(payload) == 0 {
		return nil, nil
	}

	return Decode(payload)
}

// Save writes blob to disk atomically via temp file.
func (s *Store) Save(blob Blob) error {
	if s == nil || s.path == "" {
		return nil
	}

	blob.Version = CurrentVersion

	payload, err := json.MarshalIndent(blob, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode snapshot")
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return errors.Wrap(err, "write snapshot temp file")
	}

	if err := os.Rename(tmp, s.path); err != nil {
		return errors.Wrap(err, "persist snapshot")
	}

	return nil
}

// Decode parses a snapshot of any supported version into the current layout.
func Decode(payload []byte) (*Blob, error) {
	var header struct {
		Version int `json:"version"`
	}
	if err := json.Unmarshal(payload, &header); err != nil {
		return nil, errors.Wrap(domain.ErrSerialization, "decode snapshot header: "+err.Error())
	}

	switch header.Version {
	case 0, legacyVersion:
		var legacy legacyBlob
		if err := json.Unmarshal(payload, &legacy); err != nil {
			return nil, errors.Wrap(domain.ErrSerialization, "decode legacy snapshot: "+err.Error())
		}

		return migrateLegacy(legacy), nil
	case CurrentVersion:
		var blob Blob
		if err := json.Unmarshal(payload, &blob); err != nil {
			return nil, errors.Wrap(domain.ErrSerialization, "decode snapshot: "+err.Error())
		}

		return &blob, nil
	default:
		return nil, domain.ErrSerialization.Withf("unsupported snapshot version %d", header.Version)
	}
}

// migrateLegacy turns every legacy profile into a pending account whose email is the stored string.
func migrateLegacy(legacy legacyBlob) *Blob {
	identities := make([]string, 0, len(legacy.Data))
	for identity := range legacy.Data {
		identities = append(identities, identity)
	}
	sort.Strings(identities)

	accounts := make([]domain.Account, 0, len(identities))
	for _, identity := range identities {
		accounts = append(accounts, domain.Account{
			Identity:  identity,
			Email:     legacy.Data[identity],
			KYCStatus: domain.KYCPending,
			IsActive:  true,
		})
	}

	return &Blob{
		Version:    CurrentVersion,
		State:      records.State{Accounts: accounts},
		Authorized: append([]string(nil), legacy.Guard...),
	}
}
