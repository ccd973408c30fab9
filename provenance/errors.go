package provenance

import (
	"errors"

	"crate-ledger/repository"
)

// Authorization errors.
var (
	ErrUnauthorizedUpdate = errors.New("unauthorized update attempt")
	ErrMissingCaller      = errors.New("caller identity is required")
)

// Structural errors: the request has the wrong shape.
var (
	ErrMixRequiresMultipleParents    = errors.New("mix requires at least 2 parents")
	ErrTooManyParents                = errors.New("too many parents (max 10)")
	ErrSplitRequiresMultipleChildren = errors.New("split requires at least 2 children")
	ErrTooManyChildren               = errors.New("too many children (max 10)")
	ErrChildKeyWeightMismatch        = errors.New("child key/weight mismatch")
	ErrDuplicateParent               = errors.New("parent listed more than once")
	ErrInvalidPayload                = errors.New("invalid payload")
	ErrMissingBacklink               = errors.New("child does not list parent")
	ErrLineageCycle                  = errors.New("link would create a lineage cycle")
	ErrLineageTooDeep                = errors.New("lineage walk limit exceeded")
)

// Arithmetic errors: physical weight is not conserved.
var (
	ErrWeightMismatchOnTransfer = errors.New("weight must remain the same during transfer")
	ErrSplitWeightMismatch      = errors.New("split weights do not sum to parent weight")
	ErrWeightOverflow           = errors.New("weight overflow")
)

// Kind groups errors by how a caller should react to them.
type Kind int

const (
	KindInternal Kind = iota
	KindAuthorization
	KindStructural
	KindArithmetic
	KindNotFound
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindAuthorization:
		return "authorization"
	case KindStructural:
		return "structural"
	case KindArithmetic:
		return "arithmetic"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	default:
		return "internal"
	}
}

var errorKinds = []struct {
	err  error
	kind Kind
}{
	{ErrUnauthorizedUpdate, KindAuthorization},
	{ErrMissingCaller, KindAuthorization},
	{ErrMixRequiresMultipleParents, KindStructural},
	{ErrTooManyParents, KindStructural},
	{ErrSplitRequiresMultipleChildren, KindStructural},
	{ErrTooManyChildren, KindStructural},
	{ErrChildKeyWeightMismatch, KindStructural},
	{ErrDuplicateParent, KindStructural},
	{ErrInvalidPayload, KindStructural},
	{ErrMissingBacklink, KindStructural},
	{ErrLineageCycle, KindStructural},
	{ErrLineageTooDeep, KindStructural},
	{ErrWeightMismatchOnTransfer, KindArithmetic},
	{ErrSplitWeightMismatch, KindArithmetic},
	{ErrWeightOverflow, KindArithmetic},
	{repository.ErrNotFound, KindNotFound},
	{repository.ErrKeyAlreadyExists, KindConflict},
}

// Classify reports the Kind of err. Unknown errors are KindInternal.
func Classify(err error) Kind {
	for _, ek := range errorKinds {
		if errors.Is(err, ek.err) {
			return ek.kind
		}
	}
	return KindInternal
}
