// Package planstore persists optimization results in BadgerDB, keyed by
// a fingerprint of the input operator tree.
package planstore

import (
	"bytes"
	"fmt"
	"sort"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"
)

var keyPrefix = []byte("plan/")

// Record is one persisted optimization result
type Record struct {
	Fingerprint string    `cbor:"fp"`
	Tree        string    `cbor:"tree"`
	Explain     string    `cbor:"explain"`
	Cost        string    `cbor:"cost"`
	Ticks       int       `cbor:"ticks"`
	Rules       []string  `cbor:"rules,omitempty"`
	RunID       string    `cbor:"run"`
	CreatedAt   time.Time `cbor:"created"`
}

// Fingerprint hashes a tree digest into the key records are stored under
func Fingerprint(digest string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(digest))
}

// Store implements record persistence using BadgerDB
type Store struct {
	db  *badger.DB
	enc cbor.EncMode
}

// Open opens (creating if needed) a store in directory path
func Open(path string) (*Store, error) {
	return open(badger.DefaultOptions(path))
}

// OpenInMemory opens a store that lives only as long as the process
func OpenInMemory() (*Store, error) {
	return open(badger.DefaultOptions("").WithInMemory(true))
}

func open(opts badger.Options) (*Store, error) {
	opts.Logger = nil // Badger logs to stderr otherwise

	enc, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		return nil, fmt.Errorf("failed to build record encoder: %w", err)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}
	return &Store{db: db, enc: enc}, nil
}

func recordKey(fingerprint string) []byte {
	return append(append([]byte(nil), keyPrefix...), fingerprint...)
}

// Put stores r, replacing any record with the same fingerprint. A zero
// CreatedAt is set to the current time.
func (s *Store) Put(r Record) error {
	if r.Fingerprint == "" {
		return fmt.Errorf("record has no fingerprint")
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	val, err := s.enc.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to encode record %s: %w", r.Fingerprint, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(recordKey(r.Fingerprint), val)
	})
}

// Get returns the record stored under fingerprint, or nil if there is none
func (s *Store) Get(fingerprint string) (*Record, error) {
	var result *Record

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(recordKey(fingerprint))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			var r Record
			if err := cbor.Unmarshal(val, &r); err != nil {
				return fmt.Errorf("failed to decode record %s: %w", fingerprint, err)
			}
			result = &r
			return nil
		})
	})

	if err == badger.ErrKeyNotFound {
		return nil, nil
	}
	return result, err
}

// Delete removes the record stored under fingerprint, if any
func (s *Store) Delete(fingerprint string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete(recordKey(fingerprint))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		return err
	})
}

// List returns up to limit records, newest first. A limit of 0 or less
// returns all of them.
func (s *Store) List(limit int) ([]Record, error) {
	var records []Record

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = keyPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(keyPrefix); it.ValidForPrefix(keyPrefix); it.Next() {
			item := it.Item()
			err := item.Value(func(val []byte) error {
				var r Record
				if err := cbor.Unmarshal(val, &r); err != nil {
					return fmt.Errorf("failed to decode record at %s: %w", bytes.TrimPrefix(item.Key(), keyPrefix), err)
				}
				records = append(records, r)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// Close closes the store
func (s *Store) Close() error {
	return s.db.Close()
}
