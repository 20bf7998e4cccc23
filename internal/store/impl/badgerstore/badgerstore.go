package badgerstore

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/phuslu/log"
	"nuha.dev/hiketracker/internal/store"
)

const recordPrefix = "rec:"

// BadgerStore keeps the same logical records as the file backend inside an
// embedded badger database. Each write is a single transaction.
type BadgerStore struct {
	db  *badger.DB
	log log.Logger
}

func Open(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %s: %w", dir, err)
	}
	return New(db), nil
}

func New(db *badger.DB) *BadgerStore {
	s := &BadgerStore{db: db}
	s.log = log.DefaultLogger
	s.log.Context = log.NewContext(nil).Str("module", "badgerstore").Value()
	return s
}

func (s *BadgerStore) Read(key string) ([]byte, error) {
	if !store.ValidKey(key) {
		return nil, store.ErrInvalidKey
	}
	var d []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(recordPrefix + key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return store.ErrNotFound
		}
		if err != nil {
			return err
		}
		d, err = item.ValueCopy(nil)
		return err
	})
	return d, err
}

func (s *BadgerStore) Write(key string, data []byte) error {
	if !store.ValidKey(key) {
		return store.ErrInvalidKey
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(recordPrefix+key), data)
	})
}

// Keys are returned in ascending order, badger iterates keys sorted.
func (s *BadgerStore) Keys() ([]string, error) {
	keys := make([]string, 0)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		prefix := []byte(recordPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, string(it.Item().Key()[len(prefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func (s *BadgerStore) Close() error {
	s.log.Info().Msg("closing badger")
	return s.db.Close()
}
