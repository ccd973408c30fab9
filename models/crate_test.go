package models

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOperationTypeJSON(t *testing.T) {
	rec := CrateRecord{Key: "k", OperationType: OperationSplit}
	rec.Normalize()

	data, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"operation_type":"split"`)
	assert.Contains(t, string(data), `"parent_crates":[]`)

	var back CrateRecord
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, OperationSplit, back.OperationType)

	var op OperationType
	assert.Error(t, json.Unmarshal([]byte(`"melted"`), &op))
}

func TestCloneDoesNotAlias(t *testing.T) {
	rec := &CrateRecord{ParentCrates: []string{"a"}, ParentWeights: []uint32{1}}
	cp := rec.Clone()
	cp.ParentCrates[0] = "b"
	cp.ParentWeights[0] = 2

	assert.Equal(t, "a", rec.ParentCrates[0])
	assert.Equal(t, uint32(1), rec.ParentWeights[0])
	assert.Nil(t, cp.ChildCrates)
}

func TestValidateFields(t *testing.T) {
	ok := &CrateFields{CrateID: "CRATE_A", Location: "40.7128,-74.0060"}
	assert.NoError(t, ValidateFields(ok))

	// every string field may be empty, crate id included
	assert.NoError(t, ValidateFields(&CrateFields{}))

	long := &CrateFields{CrateID: "CRATE_A", Hash: strings.Repeat("f", MaxFieldLen+1)}
	assert.Error(t, ValidateFields(long))

	exact := &CrateFields{CrateID: strings.Repeat("c", MaxFieldLen)}
	assert.NoError(t, ValidateFields(exact))
}

func TestValidateKeys(t *testing.T) {
	assert.NoError(t, ValidateKey("crate-1"))
	assert.Error(t, ValidateKey(""))
	assert.Error(t, ValidateKey(strings.Repeat("k", MaxFieldLen+1)))

	assert.NoError(t, ValidateKeys([]string{"a", "b"}))
	assert.NoError(t, ValidateKeys(nil))
	assert.Error(t, ValidateKeys([]string{"a", ""}))
}

func TestValidateFieldsCountsBytes(t *testing.T) {
	// 22 four-byte runes fit a rune limit of 64 but not 64 bytes.
	f := &CrateFields{CrateID: "CRATE_A", Location: strings.Repeat("🐟", 22)}
	assert.Error(t, ValidateFields(f))
}
