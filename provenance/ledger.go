package provenance

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"crate-ledger/logger"
	"crate-ledger/models"
	"crate-ledger/repository"
	"crate-ledger/weight"
)

// Options toggles the cross-record checks made by the link repair calls.
type Options struct {
	// VerifyChildren makes UpdateParentChildren reject child keys that are not stored.
	VerifyChildren bool
	// RequireBacklinks makes UpdateParentChildren reject children that do
	// not already list the parent in their own lineage.
	RequireBacklinks bool
	// RejectCycles makes UpdateChildParent refuse a parent that descends from the child.
	RejectCycles bool
	// MaxWalk bounds the records visited by the cycle check.
	MaxWalk int
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		VerifyChildren: true,
		MaxWalk:        1024,
	}
}

// CreateRequest mints a crate with no lineage.
type CreateRequest struct {
	Key string `json:"key,omitempty"`
	models.CrateFields
}

// TransferRequest mints a record that takes over ParentKey unchanged in weight.
type TransferRequest struct {
	Key string `json:"key,omitempty"`
	models.CrateFields
	ParentKey string `json:"parent_key"`
}

// MixRequest mints a record combining every parent. The weight field of the
// payload is ignored; the record weighs the sum of its parents.
type MixRequest struct {
	Key string `json:"key,omitempty"`
	models.CrateFields
	ParentKeys []string `json:"parent_keys"`
}

// SplitRequest mints one record of a split of ParentKey into the declared children.
type SplitRequest struct {
	Key string `json:"key,omitempty"`
	models.CrateFields
	ParentKey    string   `json:"parent_key"`
	ChildKeys    []string `json:"child_keys"`
	ChildWeights []uint32 `json:"child_weights"`
}

// Ledger applies the provenance operations against a crate repository.
// Each call runs in a single store transaction.
type Ledger struct {
	repo repository.CrateRepositoryInterface
	opts Options
}

func NewLedger(repo repository.CrateRepositoryInterface, opts Options) *Ledger {
	if opts.MaxWalk <= 0 {
		opts.MaxWalk = DefaultOptions().MaxWalk
	}
	return &Ledger{repo: repo, opts: opts}
}

// GetCrate returns the stored record for key.
func (l *Ledger) GetCrate(key string) (*models.CrateRecord, error) {
	if err := models.ValidateKey(key); err != nil {
		return nil, invalid(err)
	}
	return l.repo.Get(key)
}

// CreateCrate mints a record with no parents. The caller becomes its authority.
func (l *Ledger) CreateCrate(caller string, req CreateRequest) (rec *models.CrateRecord, err error) {
	defer func(start time.Time) { l.finish(opCreate, caller, rec, start, err) }(time.Now())

	key, err := l.prepare(caller, req.Key, &req.CrateFields)
	if err != nil {
		return nil, err
	}
	return l.repo.Mint(nil, func([]*models.CrateRecord) (*models.CrateRecord, error) {
		return newRecord(key, caller, req.CrateFields, models.OperationCreated), nil
	})
}

// TransferOwnership mints a record that succeeds the parent. The caller must
// control the parent and the weight must not change.
func (l *Ledger) TransferOwnership(caller string, req TransferRequest) (rec *models.CrateRecord, err error) {
	defer func(start time.Time) { l.finish(opTransfer, caller, rec, start, err) }(time.Now())

	key, err := l.prepare(caller, req.Key, &req.CrateFields)
	if err != nil {
		return nil, err
	}
	if err := models.ValidateKey(req.ParentKey); err != nil {
		return nil, invalid(err)
	}

	return l.repo.Mint([]string{req.ParentKey}, func(parents []*models.CrateRecord) (*models.CrateRecord, error) {
		parent := parents[0]
		if err := RequireAuthority(caller, parent.Authority); err != nil {
			return nil, err
		}
		if err := weight.ValidateConservation(parent.Weight, req.Weight); err != nil {
			return nil, fmt.Errorf("%w: parent %d, transfer %d", ErrWeightMismatchOnTransfer, parent.Weight, req.Weight)
		}

		out := newRecord(key, caller, req.CrateFields, models.OperationTransferred)
		out.ParentCrates = []string{parent.Key}
		out.ParentWeights = []uint32{parent.Weight}
		return out, nil
	})
}

// MixCrates mints a record from 2 to 10 parents, all controlled by the
// caller. Parent weights are recorded in the declared order.
func (l *Ledger) MixCrates(caller string, req MixRequest) (rec *models.CrateRecord, err error) {
	defer func(start time.Time) { l.finish(opMix, caller, rec, start, err) }(time.Now())

	switch n := len(req.ParentKeys); {
	case n < 2:
		return nil, ErrMixRequiresMultipleParents
	case n > models.MaxParents:
		return nil, ErrTooManyParents
	}
	if err := models.ValidateKeys(req.ParentKeys); err != nil {
		return nil, invalid(err)
	}
	if dup := firstDuplicate(req.ParentKeys); dup != "" {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateParent, dup)
	}
	key, err := l.prepare(caller, req.Key, &req.CrateFields)
	if err != nil {
		return nil, err
	}
	parentKeys := append([]string(nil), req.ParentKeys...)

	return l.repo.Mint(parentKeys, func(parents []*models.CrateRecord) (*models.CrateRecord, error) {
		weights := make([]uint32, 0, len(parents))
		for _, p := range parents {
			if err := RequireAuthority(caller, p.Authority); err != nil {
				return nil, fmt.Errorf("parent %s: %w", p.Key, err)
			}
			weights = append(weights, p.Weight)
		}
		total, err := weight.Sum(weights...)
		if err != nil {
			return nil, ErrWeightOverflow
		}

		fields := req.CrateFields
		fields.Weight = total
		out := newRecord(key, caller, fields, models.OperationMixed)
		out.ParentCrates = parentKeys
		out.ParentWeights = weights
		return out, nil
	})
}

// SplitCrate mints one record of a split. The declared child weights must
// add up to the parent weight exactly. The minted record keeps its own
// caller supplied weight; the declared children and their distribution are
// stored next to it. UpdateParentChildren may replace the children later.
func (l *Ledger) SplitCrate(caller string, req SplitRequest) (rec *models.CrateRecord, err error) {
	defer func(start time.Time) { l.finish(opSplit, caller, rec, start, err) }(time.Now())

	switch n := len(req.ChildKeys); {
	case n < 2:
		return nil, ErrSplitRequiresMultipleChildren
	case n > models.MaxChildren:
		return nil, ErrTooManyChildren
	}
	if len(req.ChildKeys) != len(req.ChildWeights) {
		return nil, ErrChildKeyWeightMismatch
	}
	if err := models.ValidateKeys(req.ChildKeys); err != nil {
		return nil, invalid(err)
	}
	if err := models.ValidateKey(req.ParentKey); err != nil {
		return nil, invalid(err)
	}
	key, err := l.prepare(caller, req.Key, &req.CrateFields)
	if err != nil {
		return nil, err
	}
	distribution := append([]uint32(nil), req.ChildWeights...)
	children := append([]string(nil), req.ChildKeys...)

	return l.repo.Mint([]string{req.ParentKey}, func(parents []*models.CrateRecord) (*models.CrateRecord, error) {
		parent := parents[0]
		if err := RequireAuthority(caller, parent.Authority); err != nil {
			return nil, err
		}
		total, err := weight.Sum(distribution...)
		if err != nil {
			// an overflowing total can never match a uint32 parent weight
			return nil, fmt.Errorf("%w: child weights overflow", ErrSplitWeightMismatch)
		}
		if err := weight.ValidateConservation(parent.Weight, total); err != nil {
			return nil, fmt.Errorf("%w: parent %d, children %d", ErrSplitWeightMismatch, parent.Weight, total)
		}

		out := newRecord(key, caller, req.CrateFields, models.OperationSplit)
		out.ParentCrates = []string{parent.Key}
		out.ParentWeights = []uint32{parent.Weight}
		out.ChildCrates = children
		out.SplitDistribution = distribution
		return out, nil
	})
}

// UpdateParentChildren replaces the child list of a parent record.
func (l *Ledger) UpdateParentChildren(caller, parentKey string, childKeys []string) (err error) {
	defer func(start time.Time) { l.finishLink(opUpdateChildren, caller, parentKey, start, err) }(time.Now())

	if err := models.ValidateKey(parentKey); err != nil {
		return invalid(err)
	}
	if len(childKeys) > models.MaxChildren {
		return ErrTooManyChildren
	}
	if err := models.ValidateKeys(childKeys); err != nil {
		return invalid(err)
	}
	children := append([]string{}, childKeys...)

	return l.repo.MutateLinks(parentKey, repository.ChildLinks, func(r repository.Reader, parent *models.CrateRecord) error {
		if err := RequireAuthority(caller, parent.Authority); err != nil {
			return err
		}
		if l.opts.VerifyChildren || l.opts.RequireBacklinks {
			records, err := r.GetMany(children)
			if err != nil {
				return err
			}
			if l.opts.RequireBacklinks {
				for _, child := range records {
					if !child.HasParent(parentKey) {
						return fmt.Errorf("%w: %s", ErrMissingBacklink, child.Key)
					}
				}
			}
		}
		parent.ChildCrates = children
		return nil
	})
}

// UpdateChildParent appends parentKey to the lineage of a child record.
// Calling it again with the same parent changes nothing.
func (l *Ledger) UpdateChildParent(caller, childKey, parentKey string) (err error) {
	defer func(start time.Time) { l.finishLink(opUpdateParent, caller, childKey, start, err) }(time.Now())

	if err := models.ValidateKey(childKey); err != nil {
		return invalid(err)
	}
	if err := models.ValidateKey(parentKey); err != nil {
		return invalid(err)
	}

	return l.repo.MutateLinks(childKey, repository.ParentLinks, func(r repository.Reader, child *models.CrateRecord) error {
		if err := RequireAuthority(caller, child.Authority); err != nil {
			return err
		}
		if child.HasParent(parentKey) {
			return nil
		}
		if len(child.ParentCrates) >= models.MaxParents {
			return ErrTooManyParents
		}
		parent, err := r.Get(parentKey)
		if err != nil {
			return err
		}
		if l.opts.RejectCycles {
			if err := l.checkAcyclic(r, childKey, parentKey); err != nil {
				return err
			}
		}
		child.ParentCrates = append(child.ParentCrates, parentKey)
		child.ParentWeights = append(child.ParentWeights, parent.Weight)
		return nil
	})
}

// checkAcyclic walks the ancestors of parentKey and fails if childKey is
// among them, which would make the child its own ancestor.
func (l *Ledger) checkAcyclic(r repository.Reader, childKey, parentKey string) error {
	queue := []string{parentKey}
	seen := map[string]bool{parentKey: true}
	for len(queue) > 0 {
		key := queue[0]
		queue = queue[1:]
		if key == childKey {
			return fmt.Errorf("%w: %s descends from %s", ErrLineageCycle, parentKey, childKey)
		}
		if len(seen) > l.opts.MaxWalk {
			return ErrLineageTooDeep
		}
		rec, err := r.Get(key)
		if errors.Is(err, repository.ErrNotFound) {
			// dangling lineage pointers end the walk on that branch
			continue
		}
		if err != nil {
			return err
		}
		for _, p := range rec.ParentCrates {
			if !seen[p] {
				seen[p] = true
				queue = append(queue, p)
			}
		}
	}
	return nil
}

// prepare checks the caller and payload shared by every minting call and
// returns the key of the record to mint.
func (l *Ledger) prepare(caller, key string, fields *models.CrateFields) (string, error) {
	if caller == "" {
		return "", ErrMissingCaller
	}
	if err := models.ValidateFields(fields); err != nil {
		return "", invalid(err)
	}
	if key == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return "", err
		}
		return id.String(), nil
	}
	if err := models.ValidateKey(key); err != nil {
		return "", invalid(err)
	}
	return key, nil
}

func (l *Ledger) finish(op, caller string, rec *models.CrateRecord, start time.Time, err error) {
	observe(op, start, err)
	if err != nil {
		logger.Logger.Warn("Crate operation rejected",
			zap.String("operation", op), zap.String("caller", caller), zap.Error(err))
		return
	}
	logger.Logger.Info("Minted crate record",
		zap.String("operation", op),
		zap.String("key", rec.Key),
		zap.String("crate_id", rec.CrateID),
		zap.Uint32("weight", rec.Weight),
		zap.Strings("parents", rec.ParentCrates))
}

func (l *Ledger) finishLink(op, caller, key string, start time.Time, err error) {
	observe(op, start, err)
	if err != nil {
		logger.Logger.Warn("Link repair rejected",
			zap.String("operation", op), zap.String("key", key), zap.String("caller", caller), zap.Error(err))
		return
	}
	logger.Logger.Info("Repaired crate links", zap.String("operation", op), zap.String("key", key))
}

func newRecord(key, authority string, fields models.CrateFields, op models.OperationType) *models.CrateRecord {
	return &models.CrateRecord{
		Key:               key,
		Authority:         authority,
		CrateFields:       fields,
		ParentCrates:      []string{},
		ChildCrates:       []string{},
		ParentWeights:     []uint32{},
		SplitDistribution: []uint32{},
		OperationType:     op,
	}
}

func firstDuplicate(keys []string) string {
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			return k
		}
		seen[k] = struct{}{}
	}
	return ""
}

func invalid(err error) error {
	return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
}
