package db

import (
	"errors"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"
)

// LevelDB wraps the actual LevelDB connection
type LevelDB struct {
	conn *leveldb.DB
}

// NewLevelDB opens (or creates) a LevelDB instance at the given path
func NewLevelDB(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &LevelDB{conn: db}, nil
}

// NewMemLevelDB opens a LevelDB instance backed by memory only.
func NewMemLevelDB() (*LevelDB, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, err
	}
	return &LevelDB{conn: db}, nil
}

// Close safely closes the LevelDB connection
func (l *LevelDB) Close() error {
	return l.conn.Close()
}

// Get retrieves the value for a given key
func (l *LevelDB) Get(key []byte) ([]byte, error) {
	return l.conn.Get(key, nil)
}

// Has reports whether the key is present
func (l *LevelDB) Has(key []byte) (bool, error) {
	return l.conn.Has(key, nil)
}

// Txn is an open write transaction. Writes become visible only on Commit.
type Txn struct {
	tr *leveldb.Transaction
}

// Update runs fn inside a transaction. The transaction commits when fn
// returns nil and is discarded otherwise, including when fn panics. LevelDB allows one open
// transaction at a time, so concurrent callers are serialized here.
func (l *LevelDB) Update(fn func(txn *Txn) error) error {
	tr, err := l.conn.OpenTransaction()
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		// also runs when fn panics, releasing the write lock
		if !committed {
			tr.Discard()
		}
	}()

	if err := fn(&Txn{tr: tr}); err != nil {
		return err
	}
	if err := tr.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// Get reads a value, including writes made earlier in the same transaction
func (t *Txn) Get(key []byte) ([]byte, error) {
	return t.tr.Get(key, nil)
}

// Has reports whether the key is present
func (t *Txn) Has(key []byte) (bool, error) {
	return t.tr.Has(key, nil)
}

// Put stages a write
func (t *Txn) Put(key, value []byte) error {
	return t.tr.Put(key, value, nil)
}

// IsNotFound reports whether err means a missing key
func IsNotFound(err error) bool {
	return errors.Is(err, leveldb.ErrNotFound)
}
