package models

import (
	"encoding/json"
	"fmt"
)

// Lineage bounds and payload sizing of a stored crate record.
const (
	MaxParents  = 10
	MaxChildren = 10
	MaxFieldLen = 64
)

// OperationType records how a crate record came into existence.
type OperationType int

const (
	OperationCreated OperationType = iota
	OperationTransferred
	OperationMixed
	OperationSplit
)

var operationNames = map[OperationType]string{
	OperationCreated:     "created",
	OperationTransferred: "transferred",
	OperationMixed:       "mixed",
	OperationSplit:       "split",
}

func (o OperationType) String() string {
	if name, ok := operationNames[o]; ok {
		return name
	}
	return fmt.Sprintf("operation(%d)", int(o))
}

func (o OperationType) MarshalJSON() ([]byte, error) {
	name, ok := operationNames[o]
	if !ok {
		return nil, fmt.Errorf("unknown operation type %d", int(o))
	}
	return json.Marshal(name)
}

func (o *OperationType) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for op, n := range operationNames {
		if n == name {
			*o = op
			return nil
		}
	}
	return fmt.Errorf("unknown operation type %q", name)
}

// CrateFields is the descriptive and physical payload supplied by the caller
// when a record is minted. Strings are opaque to the ledger.
type CrateFields struct {
	CrateID   string `json:"crate_id" validate:"maxbytes=64"`
	CrateDID  string `json:"crate_did" validate:"maxbytes=64"`
	OwnerDID  string `json:"owner_did" validate:"maxbytes=64"`
	DeviceDID string `json:"device_did" validate:"maxbytes=64"`
	Location  string `json:"location" validate:"maxbytes=64"` // "lat,long"
	Weight    uint32 `json:"weight"`                     // grams, no fractional units
	Timestamp int64  `json:"timestamp"`                  // caller supplied, not checked
	Hash      string `json:"hash" validate:"maxbytes=64"`
	IPFSCID   string `json:"ipfs_cid" validate:"maxbytes=64"`
}

// CrateRecord is a single node of the provenance graph. Only ParentCrates and
// ChildCrates change after the record is minted.
type CrateRecord struct {
	Key       string `json:"key"`
	Authority string `json:"authority"`
	CrateFields

	ParentCrates      []string      `json:"parent_crates"`
	ChildCrates       []string      `json:"child_crates"`
	ParentWeights     []uint32      `json:"parent_weights"`
	SplitDistribution []uint32      `json:"split_distribution"`
	OperationType     OperationType `json:"operation_type"`
}

// HasParent reports whether key is already listed in ParentCrates.
func (c *CrateRecord) HasParent(key string) bool {
	for _, p := range c.ParentCrates {
		if p == key {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers cannot alias stored slices.
func (c *CrateRecord) Clone() *CrateRecord {
	out := *c
	out.ParentCrates = cloneSlice(c.ParentCrates)
	out.ChildCrates = cloneSlice(c.ChildCrates)
	out.ParentWeights = cloneSlice(c.ParentWeights)
	out.SplitDistribution = cloneSlice(c.SplitDistribution)
	return &out
}

// Normalize replaces nil lineage slices with empty ones so the JSON form
// always carries arrays.
func (c *CrateRecord) Normalize() {
	if c.ParentCrates == nil {
		c.ParentCrates = []string{}
	}
	if c.ChildCrates == nil {
		c.ChildCrates = []string{}
	}
	if c.ParentWeights == nil {
		c.ParentWeights = []uint32{}
	}
	if c.SplitDistribution == nil {
		c.SplitDistribution = []uint32{}
	}
}

func cloneSlice[T any](in []T) []T {
	if in == nil {
		return nil
	}
	out := make([]T, len(in))
	copy(out, in)
	return out
}
