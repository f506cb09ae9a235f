package service

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	apierrors "github.com/AdirGamil/animeedit/internal/errors"
	"github.com/AdirGamil/animeedit/internal/model"
	"go.uber.org/zap"
)

// PendingEditTable tracks in-flight proposed edits awaiting review. Snapshot
// order is insertion order; clients depend on it being stable.
type PendingEditTable struct {
	mu        sync.Mutex
	byID      map[string]*model.PendingEdit
	order     []string
	seq       atomic.Int64
	publisher Publisher
	logger    *zap.Logger
	now       func() time.Time
}

// NewPendingEditTable creates an empty pending edit table.
func NewPendingEditTable(publisher Publisher, logger *zap.Logger) *PendingEditTable {
	return &PendingEditTable{
		byID:      make(map[string]*model.PendingEdit),
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// Create stores a new pending edit and returns it. The patch is the editor's
// original unmerged delta; base is the record's field set before the edit.
func (t *PendingEditTable) Create(recordID model.RecordID, editor string, patch, base model.Fields) *model.PendingEdit {
	t.mu.Lock()
	defer t.mu.Unlock()

	edit := &model.PendingEdit{
		EditID:    t.newEditID(),
		RecordID:  recordID,
		Editor:    editor,
		CreatedAt: t.now(),
		Patch:     patch.Clone(),
		Base:      base.Clone(),
	}
	t.byID[edit.EditID] = edit
	t.order = append(t.order, edit.EditID)

	t.logger.Info("pending edit created",
		zap.String("edit_id", edit.EditID),
		zap.Int64("record_id", int64(recordID)),
		zap.String("editor", editor),
	)

	t.publishLocked()
	return edit
}

// FindByID returns the pending edit with the given id.
func (t *PendingEditTable) FindByID(editID string) (*model.PendingEdit, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	edit, exists := t.byID[editID]
	if !exists {
		return nil, apierrors.NewNotFound(apierrors.ReasonEditNotFound, "pending edit not found")
	}
	return edit, nil
}

// Remove deletes the pending edit. Idempotent; publishes only when an entry
// was actually removed.
func (t *PendingEditTable) Remove(editID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.byID[editID]; !exists {
		return
	}
	delete(t.byID, editID)
	for i, id := range t.order {
		if id == editID {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}

	t.logger.Info("pending edit removed", zap.String("edit_id", editID))
	t.publishLocked()
}

// Snapshot returns the pending edits in insertion order.
func (t *PendingEditTable) Snapshot() []model.PendingEdit {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

// Size returns the number of pending edits.
func (t *PendingEditTable) Size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.order)
}

// newEditID builds a unique edit id from a nanosecond timestamp plus an
// atomic counter tiebreak, so rapid concurrent submissions never collide.
func (t *PendingEditTable) newEditID() string {
	return fmt.Sprintf("%d-%d", t.now().UnixNano(), t.seq.Add(1))
}

// snapshotLocked builds an insertion-ordered snapshot. Caller holds t.mu.
func (t *PendingEditTable) snapshotLocked() []model.PendingEdit {
	edits := make([]model.PendingEdit, 0, len(t.order))
	for _, id := range t.order {
		edits = append(edits, *t.byID[id])
	}
	return edits
}

// publishLocked hands the current snapshot to the publisher. Caller holds t.mu.
func (t *PendingEditTable) publishLocked() {
	t.publisher.PublishPendingEdits(t.snapshotLocked())
}
