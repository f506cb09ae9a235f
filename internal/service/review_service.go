package service

import (
	"context"
	"errors"
	"fmt"

	apierrors "github.com/AdirGamil/animeedit/internal/errors"
	"github.com/AdirGamil/animeedit/internal/model"
	"github.com/AdirGamil/animeedit/internal/store"
	"go.uber.org/zap"
)

// ReviewService is the state machine driving records between the Available,
// UnderReview, and Approved partitions. Each transition spans the record
// store, the pending edit table, and the lock table as one unit, serialized
// per record id by a keyed mutex so transitions on different records run in
// parallel.
type ReviewService struct {
	records store.RecordStore
	locks   *LockTable
	pending *PendingEditTable
	keys    *keyedMutex
	logger  *zap.Logger
}

// Stats reports per-partition record counts plus the pending edit count.
type Stats struct {
	TotalAvailable   int `json:"totalAvailable"`
	TotalUnderReview int `json:"totalUnderReview"`
	TotalApproved    int `json:"totalApproved"`
	TotalPending     int `json:"totalPending"`
}

// NewReviewService creates a new review service.
func NewReviewService(
	records store.RecordStore,
	locks *LockTable,
	pending *PendingEditTable,
	logger *zap.Logger,
) *ReviewService {
	return &ReviewService{
		records: records,
		locks:   locks,
		pending: pending,
		keys:    newKeyedMutex(),
		logger:  logger,
	}
}

// SubmitEdit stages a proposed edit: the record moves Available ->
// UnderReview with the patch merged over it, and a pending edit holding the
// original unmerged patch is registered. The editor must hold the lock on the
// record; submissions without it fail with Conflict("lock-required").
func (s *ReviewService) SubmitEdit(ctx context.Context, recordID model.RecordID, editor string, patch model.Fields) (string, error) {
	s.keys.Lock(recordID)
	defer s.keys.Unlock(recordID)

	holder, held := s.locks.Holder(recordID)
	if !held || holder != editor {
		return "", apierrors.NewConflict(apierrors.ReasonLockRequired, "record must be locked by the editor before submitting")
	}

	base, err := s.records.Find(ctx, model.PartitionAvailable, recordID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", apierrors.NewNotFound(apierrors.ReasonNotInAvailable, "record not found in available partition")
		}
		return "", fmt.Errorf("failed to load record %d: %w", recordID, err)
	}

	merged := model.MergeLayers(base.Fields, model.StripIdentity(patch))

	if err := s.records.Delete(ctx, model.PartitionAvailable, recordID); err != nil {
		return "", fmt.Errorf("failed to remove record %d from available: %w", recordID, err)
	}
	if err := s.records.Insert(ctx, model.PartitionUnderReview, &model.Record{ID: recordID, Fields: merged}); err != nil {
		s.restore(ctx, model.PartitionAvailable, base)
		return "", fmt.Errorf("failed to stage record %d for review: %w", recordID, err)
	}

	edit := s.pending.Create(recordID, editor, patch, base.Fields)

	s.logger.Info("edit submitted",
		zap.String("edit_id", edit.EditID),
		zap.Int64("record_id", int64(recordID)),
		zap.String("editor", editor),
	)

	return edit.EditID, nil
}

// Approve finalizes a pending edit: the record moves UnderReview -> Approved
// carrying base < editor patch < admin patch, the pending edit is removed,
// and the lock on the record is released by record id regardless of holder.
func (s *ReviewService) Approve(ctx context.Context, editID string, adminPatch model.Fields) (*model.Record, error) {
	edit, err := s.pending.FindByID(editID)
	if err != nil {
		return nil, err
	}

	s.keys.Lock(edit.RecordID)
	defer s.keys.Unlock(edit.RecordID)

	// Re-check after acquiring the record mutex; a racing approve or reject
	// may have consumed the edit while we waited.
	edit, err = s.pending.FindByID(editID)
	if err != nil {
		return nil, err
	}

	staged, err := s.records.Find(ctx, model.PartitionUnderReview, edit.RecordID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apierrors.NewNotFound(apierrors.ReasonNotInReview, "record not found in review partition")
		}
		return nil, fmt.Errorf("failed to load staged record %d: %w", edit.RecordID, err)
	}

	final := model.MergeLayers(staged.Fields, model.StripIdentity(edit.Patch), model.StripIdentity(adminPatch))

	if err := s.records.Delete(ctx, model.PartitionUnderReview, edit.RecordID); err != nil {
		return nil, fmt.Errorf("failed to remove record %d from review: %w", edit.RecordID, err)
	}
	approved := &model.Record{ID: edit.RecordID, Fields: final}
	if err := s.records.Insert(ctx, model.PartitionApproved, approved); err != nil {
		s.restore(ctx, model.PartitionUnderReview, staged)
		return nil, fmt.Errorf("failed to approve record %d: %w", edit.RecordID, err)
	}

	s.pending.Remove(editID)
	s.locks.Release(edit.RecordID)

	s.logger.Info("edit approved",
		zap.String("edit_id", editID),
		zap.Int64("record_id", int64(edit.RecordID)),
	)

	return approved, nil
}

// Reject discards a pending edit: the record moves back UnderReview ->
// Available with its pre-edit field set (the proposed patch is dropped), the
// pending edit is removed, and the lock is released by record id. If the
// record has already left UnderReview the move is skipped silently.
func (s *ReviewService) Reject(ctx context.Context, editID string) error {
	edit, err := s.pending.FindByID(editID)
	if err != nil {
		return err
	}

	s.keys.Lock(edit.RecordID)
	defer s.keys.Unlock(edit.RecordID)

	edit, err = s.pending.FindByID(editID)
	if err != nil {
		return err
	}

	staged, err := s.records.Find(ctx, model.PartitionUnderReview, edit.RecordID)
	switch {
	case err == nil:
		if err := s.records.Delete(ctx, model.PartitionUnderReview, edit.RecordID); err != nil {
			return fmt.Errorf("failed to remove record %d from review: %w", edit.RecordID, err)
		}
		reverted := &model.Record{ID: edit.RecordID, Fields: edit.Base}
		if err := s.records.Insert(ctx, model.PartitionAvailable, reverted); err != nil {
			s.restore(ctx, model.PartitionUnderReview, staged)
			return fmt.Errorf("failed to restore record %d to available: %w", edit.RecordID, err)
		}
	case errors.Is(err, store.ErrNotFound):
		// Already moved by a racing operation; nothing to revert.
		s.logger.Warn("rejected edit had no staged record",
			zap.String("edit_id", editID),
			zap.Int64("record_id", int64(edit.RecordID)),
		)
	default:
		return fmt.Errorf("failed to load staged record %d: %w", edit.RecordID, err)
	}

	s.pending.Remove(editID)
	s.locks.Release(edit.RecordID)

	s.logger.Info("edit rejected",
		zap.String("edit_id", editID),
		zap.Int64("record_id", int64(edit.RecordID)),
	)

	return nil
}

// Stats returns per-partition record counts and the pending edit count.
func (s *ReviewService) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{TotalPending: s.pending.Size()}

	var err error
	if stats.TotalAvailable, err = s.records.Count(ctx, model.PartitionAvailable); err != nil {
		return nil, fmt.Errorf("failed to count available records: %w", err)
	}
	if stats.TotalUnderReview, err = s.records.Count(ctx, model.PartitionUnderReview); err != nil {
		return nil, fmt.Errorf("failed to count records under review: %w", err)
	}
	if stats.TotalApproved, err = s.records.Count(ctx, model.PartitionApproved); err != nil {
		return nil, fmt.Errorf("failed to count approved records: %w", err)
	}

	return stats, nil
}

// restore reinserts a record after a failed transition so the id never
// vanishes from all partitions.
func (s *ReviewService) restore(ctx context.Context, partition model.Partition, record *model.Record) {
	if err := s.records.Insert(ctx, partition, record); err != nil {
		s.logger.Error("failed to restore record after aborted transition",
			zap.Int64("record_id", int64(record.ID)),
			zap.String("partition", string(partition)),
			zap.Error(err),
		)
	}
}
