// Package cache persists published runtime ABI descriptors so host runtimes
// can look up the exact layout a compiled artifact was built against.
package cache

import (
	"bytes"
	"errors"
	"fmt"

	dbm "github.com/cometbft/cometbft-db"

	"github.com/evmjit/evmjit/internal/runtime/abi"
	"github.com/evmjit/evmjit/types"
)

const dbName = "abi"

var (
	descriptorPrefix = []byte("d/")
	pinPrefix        = []byte("p/")
)

var (
	// ErrNotFound is returned when no descriptor has the given checksum.
	ErrNotFound = errors.New("abi descriptor not found")
	// ErrCorrupt is returned when stored bytes no longer match their checksum.
	ErrCorrupt = errors.New("stored abi descriptor does not match its checksum")
)

// Store manages published descriptors. It is safe for concurrent use.
type Store struct {
	db dbm.DB
}

// Open opens the store configured by opts.
func Open(opts types.CacheOptions) (*Store, error) {
	switch opts.Backend {
	case types.BackendMemDB:
		return &Store{db: dbm.NewMemDB()}, nil
	case types.BackendGoLevelDB:
		db, err := dbm.NewDB(dbName, dbm.BackendType(opts.Backend), opts.BaseDir)
		if err != nil {
			return nil, fmt.Errorf("could not open abi store in %s: %w", opts.BaseDir, err)
		}
		return &Store{db: db}, nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", opts.Backend)
	}
}

// NewStore wraps an already open database.
func NewStore(db dbm.DB) *Store {
	return &Store{db: db}
}

func key(prefix []byte, cs types.Checksum) []byte {
	k := make([]byte, 0, len(prefix)+types.ChecksumLen)
	k = append(k, prefix...)
	return append(k, cs[:]...)
}

// Save stores d and returns its checksum. Saving the same descriptor twice
// is a no-op.
func (s *Store) Save(d *abi.Descriptor) (types.Checksum, error) {
	bz, err := d.Marshal()
	if err != nil {
		return types.Checksum{}, err
	}
	cs, err := d.Checksum()
	if err != nil {
		return types.Checksum{}, err
	}
	if err := s.db.SetSync(key(descriptorPrefix, cs), bz); err != nil {
		return types.Checksum{}, fmt.Errorf("could not save abi descriptor %s: %w", cs, err)
	}
	return cs, nil
}

// Load retrieves the descriptor with the given checksum.
func (s *Store) Load(cs types.Checksum) (*abi.Descriptor, error) {
	bz, err := s.db.Get(key(descriptorPrefix, cs))
	if err != nil {
		return nil, err
	}
	if bz == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, cs)
	}
	d, err := abi.Unmarshal(bz)
	if err != nil {
		return nil, err
	}
	got, err := d.Checksum()
	if err != nil {
		return nil, err
	}
	if got != cs {
		return nil, fmt.Errorf("%w: %s", ErrCorrupt, cs)
	}
	return d, nil
}

// Has reports whether a descriptor with the given checksum is stored.
func (s *Store) Has(cs types.Checksum) (bool, error) {
	return s.db.Has(key(descriptorPrefix, cs))
}

// Pin marks a descriptor as pinned; pinned descriptors cannot be removed.
func (s *Store) Pin(cs types.Checksum) error {
	ok, err := s.Has(cs)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, cs)
	}
	return s.db.SetSync(key(pinPrefix, cs), []byte{1})
}

// Unpin removes the pin from a descriptor.
func (s *Store) Unpin(cs types.Checksum) error {
	return s.db.DeleteSync(key(pinPrefix, cs))
}

// IsPinned reports whether cs is pinned.
func (s *Store) IsPinned(cs types.Checksum) (bool, error) {
	return s.db.Has(key(pinPrefix, cs))
}

// Remove deletes a descriptor unless it is pinned. It reports whether the
// descriptor is gone.
func (s *Store) Remove(cs types.Checksum) (bool, error) {
	pinned, err := s.IsPinned(cs)
	if err != nil {
		return false, err
	}
	if pinned {
		return false, nil
	}
	if err := s.db.DeleteSync(key(descriptorPrefix, cs)); err != nil {
		return false, err
	}
	return true, nil
}

func prefixEnd(prefix []byte) []byte {
	end := bytes.Clone(prefix)
	end[len(end)-1]++
	return end
}

// Checksums lists the stored descriptors in key order.
func (s *Store) Checksums() ([]types.Checksum, error) {
	it, err := s.db.Iterator(descriptorPrefix, prefixEnd(descriptorPrefix))
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var out []types.Checksum
	for ; it.Valid(); it.Next() {
		cs, err := types.NewChecksum(it.Key()[len(descriptorPrefix):])
		if err != nil {
			return nil, fmt.Errorf("%w: bad key %x", ErrCorrupt, it.Key())
		}
		out = append(out, cs)
	}
	return out, it.Error()
}

// Metrics counts stored and pinned descriptors.
func (s *Store) Metrics() (types.StoreMetrics, error) {
	var m types.StoreMetrics
	it, err := s.db.Iterator(descriptorPrefix, prefixEnd(descriptorPrefix))
	if err != nil {
		return m, err
	}
	for ; it.Valid(); it.Next() {
		m.Descriptors++
		m.SizeBytes += uint64(len(it.Value()))
	}
	if err := it.Error(); err != nil {
		it.Close()
		return m, err
	}
	it.Close()

	pins, err := s.db.Iterator(pinPrefix, prefixEnd(pinPrefix))
	if err != nil {
		return m, err
	}
	defer pins.Close()
	for ; pins.Valid(); pins.Next() {
		m.Pinned++
	}
	return m, pins.Error()
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
