// Package model defines the core domain types for the edit coordination
// service: records moving through review partitions, exclusive locks, and
// staged pending edits.
package model

import "time"

// RecordID identifies a catalog record.
type RecordID int64

// Partition names one of the three record lifecycle stages. A record lives in
// exactly one partition at any committed instant.
type Partition string

const (
	PartitionAvailable   Partition = "available"
	PartitionUnderReview Partition = "under_review"
	PartitionApproved    Partition = "approved"
)

// Partitions lists all partitions in lifecycle order.
var Partitions = []Partition{PartitionAvailable, PartitionUnderReview, PartitionApproved}

// Fields is the schema-less payload of a record. Keys are arbitrary; only the
// identity keys (see StripIdentity) receive special treatment.
type Fields map[string]any

// Clone returns a shallow copy of the field set. Nested values are shared;
// callers treat payloads as immutable once stored.
func (f Fields) Clone() Fields {
	if f == nil {
		return Fields{}
	}
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Record is a catalog entry. The ID is held outside the field set; any
// identity keys arriving inside client payloads are stripped before merging.
type Record struct {
	ID     RecordID `json:"recordId"`
	Fields Fields   `json:"fields"`
}

// Clone returns a copy of the record with its own field map.
func (r *Record) Clone() *Record {
	return &Record{ID: r.ID, Fields: r.Fields.Clone()}
}

// Lock is an exclusivity claim by one holder over one record.
type Lock struct {
	RecordID   RecordID  `json:"recordId"`
	Holder     string    `json:"lockedBy"`
	AcquiredAt time.Time `json:"lockedAt"`
}

// PendingEdit is a staged, not-yet-reviewed proposed change. Patch is the
// editor's original unmerged delta; Base is the record's field set as it was
// before the edit was staged, kept so a reject can restore the pre-edit state.
type PendingEdit struct {
	EditID    string    `json:"editId"`
	RecordID  RecordID  `json:"recordId"`
	Editor    string    `json:"editedBy"`
	CreatedAt time.Time `json:"createdAt"`
	Patch     Fields    `json:"patch"`

	Base Fields `json:"-"`
}
