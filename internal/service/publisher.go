// Package service implements the edit coordination core: the exclusive-lock
// table, the pending-edit table, and the review state machine that moves
// records between the Available, UnderReview, and Approved partitions.
package service

import "github.com/AdirGamil/animeedit/internal/model"

// Publisher receives table snapshots after each committed mutation. The
// snapshots are taken inside the mutating critical section, so the order in
// which a Publisher sees them equals commit order.
type Publisher interface {
	PublishLocks(locks []model.Lock)
	PublishPendingEdits(edits []model.PendingEdit)
}

// NopPublisher discards all snapshots.
type NopPublisher struct{}

func (NopPublisher) PublishLocks([]model.Lock)               {}
func (NopPublisher) PublishPendingEdits([]model.PendingEdit) {}
