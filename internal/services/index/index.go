package index

import (
	"sync/atomic"

	"github.com/ternarybob/respondeo/internal/common"
)

// Index holds the currently served snapshot. Readers load the pointer once
// and search the immutable snapshot; a rebuild publishes a complete new
// snapshot in a single atomic swap, so a query never observes half of the
// old corpus and half of the new one.
type Index struct {
	current atomic.Pointer[Snapshot]
}

// New creates an empty index with no published snapshot.
func New() *Index {
	return &Index{}
}

// Current returns the served snapshot. Returns a ValidationError when no
// snapshot has been published yet (nothing ingested).
func (i *Index) Current() (*Snapshot, error) {
	snap := i.current.Load()
	if snap == nil {
		return nil, common.NewValidationError("index", "no documents have been ingested")
	}
	return snap, nil
}

// Swap publishes a new snapshot. In-flight queries holding the previous
// snapshot finish against it unaffected.
func (i *Index) Swap(snap *Snapshot) {
	i.current.Store(snap)
}

// Version returns the served snapshot version, or 0 when empty.
func (i *Index) Version() uint64 {
	if snap := i.current.Load(); snap != nil {
		return snap.Version
	}
	return 0
}
