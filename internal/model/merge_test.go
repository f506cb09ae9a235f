package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMergeLayers_LaterLayersWin(t *testing.T) {
	base := Fields{"a": 1, "b": 2}
	editor := Fields{"b": 3, "c": 4}
	admin := Fields{"c": 5}

	merged := MergeLayers(base, editor, admin)

	assert.Equal(t, Fields{"a": 1, "b": 3, "c": 5}, merged)
}

func TestMergeLayers_DoesNotMutateInputs(t *testing.T) {
	base := Fields{"title": "old"}
	patch := Fields{"title": "new"}

	merged := MergeLayers(base, patch)
	merged["extra"] = true

	assert.Equal(t, Fields{"title": "old"}, base)
	assert.Equal(t, Fields{"title": "new"}, patch)
}

func TestMergeLayers_NilBase(t *testing.T) {
	merged := MergeLayers(nil, Fields{"a": 1})
	assert.Equal(t, Fields{"a": 1}, merged)
}

func TestStripIdentity(t *testing.T) {
	patch := Fields{
		"recordId": int64(99),
		"id":       "sneaky",
		"_id":      "sneakier",
		"title":    "Cowboy Bebop",
	}

	stripped := StripIdentity(patch)

	assert.Equal(t, Fields{"title": "Cowboy Bebop"}, stripped)
	// Original patch is untouched
	assert.Contains(t, patch, "recordId")
}

func TestStripIdentity_NilPatch(t *testing.T) {
	stripped := StripIdentity(nil)
	assert.NotNil(t, stripped)
	assert.Empty(t, stripped)
}

func TestFieldsClone_NilYieldsEmpty(t *testing.T) {
	var f Fields
	clone := f.Clone()
	assert.NotNil(t, clone)
	assert.Empty(t, clone)
}

func TestRecordClone_IndependentFields(t *testing.T) {
	record := &Record{ID: 1, Fields: Fields{"title": "original"}}

	clone := record.Clone()
	clone.Fields["title"] = "changed"

	assert.Equal(t, "original", record.Fields["title"])
}
