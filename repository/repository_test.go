package repository

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crate-ledger/db"
	"crate-ledger/models"
)

func newTestRepo(t *testing.T) *CrateRepository {
	t.Helper()
	ldb, err := db.NewMemLevelDB()
	require.NoError(t, err)
	t.Cleanup(func() { ldb.Close() })
	return NewCrateRepository(ldb)
}

func record(key string, w uint32) *models.CrateRecord {
	return &models.CrateRecord{
		Key:         key,
		Authority:   "fisher1",
		CrateFields: models.CrateFields{CrateID: "CRATE_" + key, Weight: w},
	}
}

func TestCreateAndGet(t *testing.T) {
	repo := newTestRepo(t)

	require.NoError(t, repo.Create(record("A", 1000)))

	got, err := repo.Get("A")
	require.NoError(t, err)
	assert.Equal(t, "CRATE_A", got.CrateID)
	assert.Equal(t, uint32(1000), got.Weight)
	assert.Equal(t, []string{}, got.ParentCrates)

	ok, err := repo.Exists("A")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCreateDuplicateKey(t *testing.T) {
	repo := newTestRepo(t)

	require.NoError(t, repo.Create(record("A", 1000)))
	err := repo.Create(record("A", 5))
	require.ErrorIs(t, err, ErrKeyAlreadyExists)

	got, err := repo.Get("A")
	require.NoError(t, err)
	assert.Equal(t, uint32(1000), got.Weight, "first write must survive")
}

func TestGetMissing(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.Get("nope")
	require.ErrorIs(t, err, ErrNotFound)

	ok, err := repo.Exists("nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGetManyKeepsOrder(t *testing.T) {
	repo := newTestRepo(t)
	require.NoError(t, repo.Create(record("A", 1)))
	require.NoError(t, repo.Create(record("B", 2)))
	require.NoError(t, repo.Create(record("C", 3)))

	got, err := repo.GetMany([]string{"C", "A", "B"})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "C", got[0].Key)
	assert.Equal(t, "A", got[1].Key)
	assert.Equal(t, "B", got[2].Key)

	_, err = repo.GetMany([]string{"A", "missing", "B"})
	require.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "missing")
}

func TestMintReadsParentsAndWritesOnce(t *testing.T) {
	repo := newTestRepo(t)
	require.NoError(t, repo.Create(record("A", 1000)))
	require.NoError(t, repo.Create(record("B", 1500)))

	minted, err := repo.Mint([]string{"A", "B"}, func(parents []*models.CrateRecord) (*models.CrateRecord, error) {
		rec := record("C", parents[0].Weight+parents[1].Weight)
		rec.ParentCrates = []string{parents[0].Key, parents[1].Key}
		return rec, nil
	})
	require.NoError(t, err)
	assert.Equal(t, uint32(2500), minted.Weight)

	got, err := repo.Get("C")
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, got.ParentCrates)
}

func TestMintFailureWritesNothing(t *testing.T) {
	repo := newTestRepo(t)
	require.NoError(t, repo.Create(record("A", 1000)))

	boom := errors.New("rejected")
	_, err := repo.Mint([]string{"A"}, func([]*models.CrateRecord) (*models.CrateRecord, error) {
		return nil, boom
	})
	require.ErrorIs(t, err, boom)

	_, err = repo.Mint([]string{"A", "ghost"}, func([]*models.CrateRecord) (*models.CrateRecord, error) {
		t.Fatal("build must not run when a parent is missing")
		return nil, nil
	})
	require.ErrorIs(t, err, ErrNotFound)

	_, err = repo.Mint(nil, func([]*models.CrateRecord) (*models.CrateRecord, error) {
		return record("A", 1), nil
	})
	require.ErrorIs(t, err, ErrKeyAlreadyExists)

	got, err := repo.Get("A")
	require.NoError(t, err)
	assert.Equal(t, uint32(1000), got.Weight)
}

func TestMutateLinksTouchesOnlyTheSelectedField(t *testing.T) {
	repo := newTestRepo(t)
	require.NoError(t, repo.Create(record("A", 1000)))

	err := repo.MutateLinks("A", ChildLinks, func(r Reader, rec *models.CrateRecord) error {
		// edits outside the selected field are dropped
		rec.Weight = 1
		rec.Authority = "mallory"
		rec.ParentCrates = []string{"X"}
		rec.ChildCrates = []string{"B", "C"}
		return nil
	})
	require.NoError(t, err)

	got, err := repo.Get("A")
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "C"}, got.ChildCrates)
	assert.Equal(t, []string{}, got.ParentCrates)
	assert.Equal(t, uint32(1000), got.Weight)
	assert.Equal(t, "fisher1", got.Authority)

	err = repo.MutateLinks("A", ParentLinks, func(r Reader, rec *models.CrateRecord) error {
		rec.ParentCrates = append(rec.ParentCrates, "P")
		rec.ParentWeights = append(rec.ParentWeights, 7)
		rec.ChildCrates = nil
		return nil
	})
	require.NoError(t, err)
	got, err = repo.Get("A")
	require.NoError(t, err)
	assert.Equal(t, []string{"P"}, got.ParentCrates)
	assert.Equal(t, []uint32{7}, got.ParentWeights)
	assert.Equal(t, []string{"B", "C"}, got.ChildCrates)
}

func TestMutateLinksErrors(t *testing.T) {
	repo := newTestRepo(t)

	err := repo.MutateLinks("nope", ChildLinks, func(Reader, *models.CrateRecord) error {
		return nil
	})
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, repo.Create(record("A", 1)))
	boom := errors.New("denied")
	err = repo.MutateLinks("A", ChildLinks, func(Reader, *models.CrateRecord) error {
		return boom
	})
	require.ErrorIs(t, err, boom)

	err = repo.MutateLinks("A", ParentLinks, func(_ Reader, rec *models.CrateRecord) error {
		rec.ParentCrates = append(rec.ParentCrates, "P")
		return nil
	})
	require.ErrorIs(t, err, ErrLinkLength)

	got, err := repo.Get("A")
	require.NoError(t, err)
	assert.Empty(t, got.ParentCrates)
}

func TestMutateLinksIsAtomicUnderContention(t *testing.T) {
	repo := newTestRepo(t)
	require.NoError(t, repo.Create(record("A", 1)))

	const writers = 20
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := repo.MutateLinks("A", ParentLinks, func(_ Reader, rec *models.CrateRecord) error {
				rec.ParentCrates = append(rec.ParentCrates, string(rune('a'+i)))
				rec.ParentWeights = append(rec.ParentWeights, uint32(i))
				return nil
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	got, err := repo.Get("A")
	require.NoError(t, err)
	assert.Len(t, got.ParentCrates, writers, "no append may be lost")
}
