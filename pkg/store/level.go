package store

import (
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// LevelStore is a Store persisted in a LevelDB directory.
type LevelStore struct {
	db *leveldb.DB
}

// OpenLevelStore opens (or creates) the database at path.
func OpenLevelStore(path string) (*LevelStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}
	return &LevelStore{db: db}, nil
}

func (s *LevelStore) Get(key string) (string, bool, error) {
	v, err := s.db.Get([]byte(key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return string(v), true, nil
}

func (s *LevelStore) Set(key, value string) error {
	return s.db.Put([]byte(key), []byte(value), nil)
}

func (s *LevelStore) Remove(key string) error {
	return s.db.Delete([]byte(key), nil)
}

// Keys returns the keys starting with prefix in key order.
func (s *LevelStore) Keys(prefix string) ([]string, error) {
	iter := s.db.NewIterator(util.BytesPrefix([]byte(prefix)), nil)
	defer iter.Release()
	var keys []string
	for iter.Next() {
		keys = append(keys, string(iter.Key()))
	}
	return keys, iter.Error()
}

func (s *LevelStore) Close() error {
	return s.db.Close()
}
