package repository

import (
	"encoding/json"
	"errors"
	"fmt"

	"crate-ledger/db"
	"crate-ledger/models"
)

var (
	ErrNotFound         = errors.New("crate record not found")
	ErrKeyAlreadyExists = errors.New("crate record key already exists")
	ErrLinkLength       = errors.New("parent_crates and parent_weights differ in length")
)

const keyPrefix = "crate:"

// LinkField selects which lineage list MutateLinks rewrites.
type LinkField int

const (
	ParentLinks LinkField = iota
	ChildLinks
)

func (f LinkField) String() string {
	if f == ParentLinks {
		return "parent_crates"
	}
	return "child_crates"
}

// Reader gives read access to records, either directly or from inside an
// open transaction.
type Reader interface {
	Get(key string) (*models.CrateRecord, error)
	GetMany(keys []string) ([]*models.CrateRecord, error)
	Exists(key string) (bool, error)
}

// BuildFunc receives the parents read for a mint, in the order they were
// requested, and returns the record to store.
type BuildFunc func(parents []*models.CrateRecord) (*models.CrateRecord, error)

// LinkFunc edits a copy of the record being repaired. r reads inside the
// same transaction.
type LinkFunc func(r Reader, rec *models.CrateRecord) error

// It abstracts the storage layer from the provenance logic
type CrateRepositoryInterface interface {
	Reader
	Create(rec *models.CrateRecord) error
	Mint(parentKeys []string, build BuildFunc) (*models.CrateRecord, error)
	MutateLinks(key string, field LinkField, fn LinkFunc) error
}

// CrateRepository implements CrateRepositoryInterface using LevelDB as the storage backend
type CrateRepository struct {
	db *db.LevelDB
}

// NewCrateRepository creates and returns a new CrateRepository instance
func NewCrateRepository(db *db.LevelDB) *CrateRepository {
	return &CrateRepository{db: db}
}

// Create stores a record under a key that must not exist yet
func (r *CrateRepository) Create(rec *models.CrateRecord) error {
	return r.db.Update(func(txn *db.Txn) error {
		return putNew(txn, rec)
	})
}

// Get retrieves a record by its key
func (r *CrateRepository) Get(key string) (*models.CrateRecord, error) {
	data, err := r.db.Get(storageKey(key))
	return decode(key, data, err)
}

// GetMany retrieves records in the order of keys, failing on the first missing one
func (r *CrateRepository) GetMany(keys []string) ([]*models.CrateRecord, error) {
	return getMany(r, keys)
}

// Exists reports whether a record is stored under key
func (r *CrateRepository) Exists(key string) (bool, error) {
	return r.db.Has(storageKey(key))
}

// Mint reads parentKeys, hands them to build and stores the result, all in
// one transaction. Nothing is written if any step fails.
func (r *CrateRepository) Mint(parentKeys []string, build BuildFunc) (*models.CrateRecord, error) {
	var minted *models.CrateRecord
	err := r.db.Update(func(txn *db.Txn) error {
		parents, err := getMany(txnReader{txn}, parentKeys)
		if err != nil {
			return err
		}
		rec, err := build(parents)
		if err != nil {
			return err
		}
		if err := putNew(txn, rec); err != nil {
			return err
		}
		minted = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return minted, nil
}

// MutateLinks rewrites one lineage field of an existing record. fn edits a
// copy of the record; only the selected field is written back, every other
// field keeps its stored value. ParentLinks carries ParentWeights along with
// ParentCrates so the two lists stay parallel.
func (r *CrateRepository) MutateLinks(key string, field LinkField, fn LinkFunc) error {
	return r.db.Update(func(txn *db.Txn) error {
		reader := txnReader{txn}
		rec, err := reader.Get(key)
		if err != nil {
			return err
		}
		edited := rec.Clone()
		if err := fn(reader, edited); err != nil {
			return err
		}
		switch field {
		case ParentLinks:
			if len(edited.ParentCrates) != len(edited.ParentWeights) {
				return fmt.Errorf("%w: %d parents, %d weights", ErrLinkLength, len(edited.ParentCrates), len(edited.ParentWeights))
			}
			rec.ParentCrates = edited.ParentCrates
			rec.ParentWeights = edited.ParentWeights
		case ChildLinks:
			rec.ChildCrates = edited.ChildCrates
		default:
			return fmt.Errorf("unknown link field %d", field)
		}
		return put(txn, rec)
	})
}

type txnReader struct {
	txn *db.Txn
}

func (t txnReader) Get(key string) (*models.CrateRecord, error) {
	data, err := t.txn.Get(storageKey(key))
	return decode(key, data, err)
}

func (t txnReader) GetMany(keys []string) ([]*models.CrateRecord, error) {
	return getMany(t, keys)
}

func (t txnReader) Exists(key string) (bool, error) {
	return t.txn.Has(storageKey(key))
}

func getMany(r Reader, keys []string) ([]*models.CrateRecord, error) {
	records := make([]*models.CrateRecord, 0, len(keys))
	for _, key := range keys {
		rec, err := r.Get(key)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func putNew(txn *db.Txn, rec *models.CrateRecord) error {
	exists, err := txn.Has(storageKey(rec.Key))
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrKeyAlreadyExists, rec.Key)
	}
	return put(txn, rec)
}

func put(txn *db.Txn, rec *models.CrateRecord) error {
	rec.Normalize()
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return txn.Put(storageKey(rec.Key), data)
}

func decode(key string, data []byte, err error) (*models.CrateRecord, error) {
	if err != nil {
		if db.IsNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, err
	}
	var rec models.CrateRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func storageKey(key string) []byte {
	return []byte(keyPrefix + key)
}
