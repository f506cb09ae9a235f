package service

import (
	"sync"
	"time"

	apierrors "github.com/AdirGamil/animeedit/internal/errors"
	"github.com/AdirGamil/animeedit/internal/model"
	"go.uber.org/zap"
)

// LockTable tracks which record is held by which identity for the lifetime of
// the process. Invariants: at most one lock per record id, at most one lock
// per holder. All mutations publish a fresh snapshot while still inside the
// table's critical section, so snapshot order matches commit order.
type LockTable struct {
	mu        sync.Mutex
	byRecord  map[model.RecordID]*model.Lock
	order     []model.RecordID
	publisher Publisher
	logger    *zap.Logger
	now       func() time.Time
}

// NewLockTable creates an empty lock table.
func NewLockTable(publisher Publisher, logger *zap.Logger) *LockTable {
	return &LockTable{
		byRecord:  make(map[model.RecordID]*model.Lock),
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// Acquire creates a lock for the holder on the record. Fails with
// Conflict("already-locked") if the record is locked by anyone, and with
// Conflict("holder-busy") if the holder already holds a lock on a different
// record. The check-and-set is atomic under the table mutex.
func (t *LockTable) Acquire(recordID model.RecordID, holder string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, exists := t.byRecord[recordID]; exists {
		t.logger.Debug("lock acquisition rejected, record locked",
			zap.Int64("record_id", int64(recordID)),
			zap.String("holder", holder),
			zap.String("locked_by", existing.Holder),
		)
		return apierrors.NewConflict(apierrors.ReasonAlreadyLocked, "record is already locked by someone else")
	}

	for _, lock := range t.byRecord {
		if lock.Holder == holder {
			t.logger.Debug("lock acquisition rejected, holder busy",
				zap.Int64("record_id", int64(recordID)),
				zap.String("holder", holder),
				zap.Int64("held_record_id", int64(lock.RecordID)),
			)
			return apierrors.NewConflict(apierrors.ReasonHolderBusy, "you already locked another record, unlock it first")
		}
	}

	t.byRecord[recordID] = &model.Lock{
		RecordID:   recordID,
		Holder:     holder,
		AcquiredAt: t.now(),
	}
	t.order = append(t.order, recordID)

	t.logger.Info("lock acquired",
		zap.Int64("record_id", int64(recordID)),
		zap.String("holder", holder),
	)

	t.publishLocked()
	return nil
}

// Release removes any lock for the record. Idempotent; no error if absent.
func (t *LockTable) Release(recordID model.RecordID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.byRecord[recordID]; !exists {
		return
	}
	t.removeLocked(recordID)

	t.logger.Info("lock released", zap.Int64("record_id", int64(recordID)))
	t.publishLocked()
}

// ReleaseByHolder removes all locks held by the given identity. Idempotent.
// Used on client disconnect.
func (t *LockTable) ReleaseByHolder(holder string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var released []model.RecordID
	for id, lock := range t.byRecord {
		if lock.Holder == holder {
			released = append(released, id)
		}
	}
	if len(released) == 0 {
		return
	}
	for _, id := range released {
		t.removeLocked(id)
	}

	t.logger.Info("locks released for holder",
		zap.String("holder", holder),
		zap.Int("count", len(released)),
	)
	t.publishLocked()
}

// ForceRelease removes the lock regardless of holder. Mechanically identical
// to Release; the admin-only distinction is enforced by the caller.
func (t *LockTable) ForceRelease(recordID model.RecordID) {
	t.Release(recordID)
}

// Holder returns the identity holding the record's lock, if any.
func (t *LockTable) Holder(recordID model.RecordID) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	lock, exists := t.byRecord[recordID]
	if !exists {
		return "", false
	}
	return lock.Holder, true
}

// Snapshot returns the current locks in acquisition order.
func (t *LockTable) Snapshot() []model.Lock {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

// removeLocked deletes a lock entry. Caller holds t.mu.
func (t *LockTable) removeLocked(recordID model.RecordID) {
	delete(t.byRecord, recordID)
	for i, id := range t.order {
		if id == recordID {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

// snapshotLocked builds an ordered snapshot. Caller holds t.mu.
func (t *LockTable) snapshotLocked() []model.Lock {
	locks := make([]model.Lock, 0, len(t.order))
	for _, id := range t.order {
		locks = append(locks, *t.byRecord[id])
	}
	return locks
}

// publishLocked hands the current snapshot to the publisher. Caller holds
// t.mu, which is what guarantees publish order equals commit order.
func (t *LockTable) publishLocked() {
	t.publisher.PublishLocks(t.snapshotLocked())
}
