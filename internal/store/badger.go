package store

import (
	"context"
	"errors"

	"github.com/dgraph-io/badger/v4"
)

type badgerStore struct {
	db *badger.DB
}

func openBadger(path string) (badgerStore, error) {
	opts := badger.DefaultOptions(path)
	if path == ":memory:" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	db, err := badger.Open(opts.WithLogger(nil))
	if err != nil {
		return badgerStore{}, err
	}
	return badgerStore{db: db}, nil
}

func (s badgerStore) Load(ctx context.Context) (State, error) {
	var data []byte
	err := s.db.View(func(tx *badger.Txn) error {
		item, err := tx.Get([]byte(stateKey))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return State{}.normalized(), nil
	}
	if err != nil {
		return State{}, err
	}
	return decodeState(data)
}

func (s badgerStore) Save(ctx context.Context, state State) error {
	data, err := encodeState(state)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *badger.Txn) error {
		return tx.Set([]byte(stateKey), data)
	})
}

func (s badgerStore) Close() error {
	return s.db.Close()
}
