package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	apierrors "github.com/AdirGamil/animeedit/internal/errors"
	"github.com/AdirGamil/animeedit/internal/model"
	"github.com/AdirGamil/animeedit/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestReviewService(t *testing.T) (*ReviewService, store.RecordStore, *LockTable, *PendingEditTable) {
	t.Helper()
	logger := zap.NewNop()
	records := store.NewMemoryRecordStore(logger)
	locks := NewLockTable(NopPublisher{}, logger)
	pending := NewPendingEditTable(NopPublisher{}, logger)
	return NewReviewService(records, locks, pending, logger), records, locks, pending
}

func seedAvailable(t *testing.T, records store.RecordStore, id model.RecordID, fields model.Fields) {
	t.Helper()
	require.NoError(t, records.Insert(context.Background(), model.PartitionAvailable, &model.Record{ID: id, Fields: fields}))
}

func TestSubmitEdit_RequiresLock(t *testing.T) {
	service, records, _, _ := newTestReviewService(t)
	seedAvailable(t, records, 1, model.Fields{"title": "old"})

	_, err := service.SubmitEdit(context.Background(), 1, "alice", model.Fields{"title": "new"})

	var conflict *apierrors.ConflictError
	assert.ErrorAs(t, err, &conflict)
	assert.Equal(t, apierrors.ReasonLockRequired, conflict.Reason)
}

func TestSubmitEdit_RequiresLockHeldByEditor(t *testing.T) {
	service, records, locks, _ := newTestReviewService(t)
	seedAvailable(t, records, 1, model.Fields{"title": "old"})
	require.NoError(t, locks.Acquire(1, "bob"))

	_, err := service.SubmitEdit(context.Background(), 1, "alice", model.Fields{"title": "new"})

	var conflict *apierrors.ConflictError
	assert.ErrorAs(t, err, &conflict)
	assert.Equal(t, apierrors.ReasonLockRequired, conflict.Reason)
}

func TestSubmitEdit_StagesRecordForReview(t *testing.T) {
	service, records, locks, pending := newTestReviewService(t)
	seedAvailable(t, records, 1, model.Fields{"title": "old", "year": 1998})
	require.NoError(t, locks.Acquire(1, "alice"))

	editID, err := service.SubmitEdit(context.Background(), 1, "alice", model.Fields{"title": "new"})
	require.NoError(t, err)
	assert.NotEmpty(t, editID)

	// record left Available
	_, err = records.Find(context.Background(), model.PartitionAvailable, 1)
	assert.ErrorIs(t, err, store.ErrNotFound)

	// staged copy carries the merged fields
	staged, err := records.Find(context.Background(), model.PartitionUnderReview, 1)
	require.NoError(t, err)
	assert.Equal(t, "new", staged.Fields["title"])
	assert.Equal(t, 1998, staged.Fields["year"])

	// pending edit holds the original patch and the pre-edit base
	edit, err := pending.FindByID(editID)
	require.NoError(t, err)
	assert.Equal(t, model.Fields{"title": "new"}, edit.Patch)
	assert.Equal(t, "old", edit.Base["title"])

	// lock survives submission; it is released on review
	holder, held := locks.Holder(1)
	assert.True(t, held)
	assert.Equal(t, "alice", holder)
}

func TestSubmitEdit_RecordNotAvailable(t *testing.T) {
	service, records, locks, _ := newTestReviewService(t)
	seedAvailable(t, records, 1, model.Fields{"title": "old"})
	require.NoError(t, locks.Acquire(1, "alice"))

	_, err := service.SubmitEdit(context.Background(), 1, "alice", model.Fields{"v": 1})
	require.NoError(t, err)

	// second submission finds the record already staged
	_, err = service.SubmitEdit(context.Background(), 1, "alice", model.Fields{"v": 2})

	var notFound *apierrors.NotFoundError
	assert.ErrorAs(t, err, &notFound)
	assert.Equal(t, apierrors.ReasonNotInAvailable, notFound.Reason)
}

func TestSubmitEdit_StripsIdentityKeys(t *testing.T) {
	service, records, locks, _ := newTestReviewService(t)
	seedAvailable(t, records, 1, model.Fields{"title": "old"})
	require.NoError(t, locks.Acquire(1, "alice"))

	_, err := service.SubmitEdit(context.Background(), 1, "alice", model.Fields{
		"recordId": int64(999),
		"_id":      "forged",
		"title":    "new",
	})
	require.NoError(t, err)

	staged, err := records.Find(context.Background(), model.PartitionUnderReview, 1)
	require.NoError(t, err)
	assert.Equal(t, model.RecordID(1), staged.ID)
	assert.NotContains(t, staged.Fields, "recordId")
	assert.NotContains(t, staged.Fields, "_id")
}

func TestApprove_MovesRecordWithLayeredMerge(t *testing.T) {
	service, records, locks, pending := newTestReviewService(t)
	seedAvailable(t, records, 1, model.Fields{"a": 1, "b": 2})
	require.NoError(t, locks.Acquire(1, "alice"))

	editID, err := service.SubmitEdit(context.Background(), 1, "alice", model.Fields{"b": 3, "c": 4})
	require.NoError(t, err)

	approved, err := service.Approve(context.Background(), editID, model.Fields{"c": 5})
	require.NoError(t, err)

	// base < editor patch < admin patch
	assert.Equal(t, 1, approved.Fields["a"])
	assert.Equal(t, 3, approved.Fields["b"])
	assert.Equal(t, 5, approved.Fields["c"])

	stored, err := records.Find(context.Background(), model.PartitionApproved, 1)
	require.NoError(t, err)
	assert.Equal(t, approved.Fields, stored.Fields)

	// no orphaned state: edit gone, lock gone, review partition empty
	_, err = pending.FindByID(editID)
	assert.Error(t, err)
	_, held := locks.Holder(1)
	assert.False(t, held)
	_, err = records.Find(context.Background(), model.PartitionUnderReview, 1)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestApprove_WithoutAdminPatch(t *testing.T) {
	service, records, locks, _ := newTestReviewService(t)
	seedAvailable(t, records, 1, model.Fields{"title": "old"})
	require.NoError(t, locks.Acquire(1, "alice"))

	editID, err := service.SubmitEdit(context.Background(), 1, "alice", model.Fields{"title": "new"})
	require.NoError(t, err)

	approved, err := service.Approve(context.Background(), editID, nil)
	require.NoError(t, err)
	assert.Equal(t, "new", approved.Fields["title"])

	_, err = records.Find(context.Background(), model.PartitionApproved, 1)
	assert.NoError(t, err)
}

func TestApprove_UnknownEdit(t *testing.T) {
	service, _, _, _ := newTestReviewService(t)

	_, err := service.Approve(context.Background(), "missing", nil)

	var notFound *apierrors.NotFoundError
	assert.ErrorAs(t, err, &notFound)
	assert.Equal(t, apierrors.ReasonEditNotFound, notFound.Reason)
}

func TestReject_RestoresPreEditState(t *testing.T) {
	service, records, locks, pending := newTestReviewService(t)
	seedAvailable(t, records, 1, model.Fields{"title": "old", "year": 1998})
	require.NoError(t, locks.Acquire(1, "alice"))

	editID, err := service.SubmitEdit(context.Background(), 1, "alice", model.Fields{"title": "new"})
	require.NoError(t, err)

	err = service.Reject(context.Background(), editID)
	require.NoError(t, err)

	// round trip: the record is back in Available with the proposed patch
	// discarded
	restored, err := records.Find(context.Background(), model.PartitionAvailable, 1)
	require.NoError(t, err)
	assert.Equal(t, "old", restored.Fields["title"])
	assert.Equal(t, 1998, restored.Fields["year"])

	_, err = records.Find(context.Background(), model.PartitionUnderReview, 1)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = pending.FindByID(editID)
	assert.Error(t, err)
	_, held := locks.Holder(1)
	assert.False(t, held)
}

func TestReject_RecordCanBeRelockedAndResubmitted(t *testing.T) {
	service, records, locks, _ := newTestReviewService(t)
	seedAvailable(t, records, 1, model.Fields{"title": "old"})
	require.NoError(t, locks.Acquire(1, "alice"))

	editID, err := service.SubmitEdit(context.Background(), 1, "alice", model.Fields{"title": "first try"})
	require.NoError(t, err)
	require.NoError(t, service.Reject(context.Background(), editID))

	// full cycle again after the reject
	require.NoError(t, locks.Acquire(1, "bob"))
	editID, err = service.SubmitEdit(context.Background(), 1, "bob", model.Fields{"title": "second try"})
	require.NoError(t, err)

	approved, err := service.Approve(context.Background(), editID, nil)
	require.NoError(t, err)
	assert.Equal(t, "second try", approved.Fields["title"])
}

// flakyStore fails the next Insert once, then delegates.
type flakyStore struct {
	store.RecordStore
	failNextInsert bool
}

func (f *flakyStore) Insert(ctx context.Context, partition model.Partition, record *model.Record) error {
	if f.failNextInsert {
		f.failNextInsert = false
		return errors.New("transient insert failure")
	}
	return f.RecordStore.Insert(ctx, partition, record)
}

func TestReject_RetrySucceedsAfterTransientInsertFailure(t *testing.T) {
	logger := zap.NewNop()
	mem := store.NewMemoryRecordStore(logger)
	flaky := &flakyStore{RecordStore: mem}
	locks := NewLockTable(NopPublisher{}, logger)
	pending := NewPendingEditTable(NopPublisher{}, logger)
	service := NewReviewService(flaky, locks, pending, logger)

	seedAvailable(t, mem, 1, model.Fields{"title": "old"})
	require.NoError(t, locks.Acquire(1, "alice"))
	editID, err := service.SubmitEdit(context.Background(), 1, "alice", model.Fields{"title": "new"})
	require.NoError(t, err)

	flaky.failNextInsert = true
	err = service.Reject(context.Background(), editID)
	assert.Error(t, err)

	// the failed rejection left the record staged, not vanished
	_, err = mem.Find(context.Background(), model.PartitionUnderReview, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, pending.Size())

	// the retry completes the rejection with the pre-edit fields
	require.NoError(t, service.Reject(context.Background(), editID))
	restored, err := mem.Find(context.Background(), model.PartitionAvailable, 1)
	require.NoError(t, err)
	assert.Equal(t, "old", restored.Fields["title"])

	total := 0
	for _, p := range model.Partitions {
		count, err := mem.Count(context.Background(), p)
		require.NoError(t, err)
		total += count
	}
	assert.Equal(t, 1, total)
	assert.Equal(t, 0, pending.Size())
}

func TestReject_UnknownEdit(t *testing.T) {
	service, _, _, _ := newTestReviewService(t)

	err := service.Reject(context.Background(), "missing")

	var notFound *apierrors.NotFoundError
	assert.ErrorAs(t, err, &notFound)
	assert.Equal(t, apierrors.ReasonEditNotFound, notFound.Reason)
}

func TestStats_CountsPartitionsAndPending(t *testing.T) {
	service, records, locks, _ := newTestReviewService(t)
	seedAvailable(t, records, 1, model.Fields{"title": "a"})
	seedAvailable(t, records, 2, model.Fields{"title": "b"})
	seedAvailable(t, records, 3, model.Fields{"title": "c"})

	require.NoError(t, locks.Acquire(2, "alice"))
	_, err := service.SubmitEdit(context.Background(), 2, "alice", model.Fields{"title": "b2"})
	require.NoError(t, err)

	require.NoError(t, locks.Acquire(3, "bob"))
	otherEditID, err := service.SubmitEdit(context.Background(), 3, "bob", model.Fields{"title": "c2"})
	require.NoError(t, err)
	_, err = service.Approve(context.Background(), otherEditID, nil)
	require.NoError(t, err)

	stats, err := service.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalAvailable)
	assert.Equal(t, 1, stats.TotalUnderReview)
	assert.Equal(t, 1, stats.TotalApproved)
	assert.Equal(t, 1, stats.TotalPending)
}

func TestReviewFlow_ConcurrentApproveAndReject(t *testing.T) {
	service, records, locks, pending := newTestReviewService(t)
	seedAvailable(t, records, 1, model.Fields{"title": "old"})
	require.NoError(t, locks.Acquire(1, "alice"))

	editID, err := service.SubmitEdit(context.Background(), 1, "alice", model.Fields{"title": "new"})
	require.NoError(t, err)

	results := make(chan error, 2)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := service.Approve(context.Background(), editID, nil)
		results <- err
	}()
	go func() {
		defer wg.Done()
		results <- service.Reject(context.Background(), editID)
	}()
	wg.Wait()
	close(results)

	// exactly one side consumes the edit; the loser sees it already gone
	successes := 0
	for err := range results {
		if err == nil {
			successes++
		}
	}
	assert.Equal(t, 1, successes)

	total := 0
	for _, p := range model.Partitions {
		count, err := records.Count(context.Background(), p)
		require.NoError(t, err)
		total += count
	}
	assert.Equal(t, 1, total)
	assert.Equal(t, 0, pending.Size())
	_, held := locks.Holder(1)
	assert.False(t, held)
}

func TestSubmitEdit_ConcurrentSubmitsExactlyOneStages(t *testing.T) {
	service, records, locks, pending := newTestReviewService(t)
	seedAvailable(t, records, 1, model.Fields{"title": "old"})
	require.NoError(t, locks.Acquire(1, "alice"))

	const submitters = 8
	results := make(chan error, submitters)
	var wg sync.WaitGroup
	for i := 0; i < submitters; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := service.SubmitEdit(context.Background(), 1, "alice", model.Fields{"attempt": n})
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	successes := 0
	for err := range results {
		if err == nil {
			successes++
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, pending.Size())

	// the record landed in UnderReview and nowhere else
	_, err := records.Find(context.Background(), model.PartitionUnderReview, 1)
	assert.NoError(t, err)
	total := 0
	for _, p := range model.Partitions {
		count, err := records.Count(context.Background(), p)
		require.NoError(t, err)
		total += count
	}
	assert.Equal(t, 1, total)
}

func TestReviewFlow_ConcurrentFullCyclesOnDistinctRecords(t *testing.T) {
	service, records, locks, _ := newTestReviewService(t)
	const workers = 8
	for i := 1; i <= workers; i++ {
		seedAvailable(t, records, model.RecordID(i), model.Fields{"n": i})
	}

	var wg sync.WaitGroup
	for i := 1; i <= workers; i++ {
		wg.Add(1)
		go func(id model.RecordID) {
			defer wg.Done()
			editor := fmt.Sprintf("editor-%d", id)
			if err := locks.Acquire(id, editor); err != nil {
				t.Errorf("acquire %d: %v", id, err)
				return
			}
			editID, err := service.SubmitEdit(context.Background(), id, editor, model.Fields{"edited": true})
			if err != nil {
				t.Errorf("submit %d: %v", id, err)
				return
			}
			if _, err := service.Approve(context.Background(), editID, nil); err != nil {
				t.Errorf("approve %d: %v", id, err)
			}
		}(model.RecordID(i))
	}
	wg.Wait()

	count, err := records.Count(context.Background(), model.PartitionApproved)
	require.NoError(t, err)
	assert.Equal(t, workers, count)
	assert.Empty(t, locks.Snapshot())
}

func TestReviewFlow_RecordNeverInTwoPartitions(t *testing.T) {
	service, records, locks, _ := newTestReviewService(t)
	seedAvailable(t, records, 1, model.Fields{"title": "old"})
	require.NoError(t, locks.Acquire(1, "alice"))

	editID, err := service.SubmitEdit(context.Background(), 1, "alice", model.Fields{"title": "new"})
	require.NoError(t, err)

	total := 0
	for _, p := range model.Partitions {
		count, err := records.Count(context.Background(), p)
		require.NoError(t, err)
		total += count
	}
	assert.Equal(t, 1, total)

	_, err = service.Approve(context.Background(), editID, nil)
	require.NoError(t, err)

	total = 0
	for _, p := range model.Partitions {
		count, err := records.Count(context.Background(), p)
		require.NoError(t, err)
		total += count
	}
	assert.Equal(t, 1, total)
}
