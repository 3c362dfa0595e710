package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/eks-observability/access-relay/internal/core/domain"
	"github.com/eks-observability/access-relay/internal/core/ports"
)

// DefaultCapacity bounds how many failures a Journal keeps.
const DefaultCapacity = 256

// Journal is an in-memory ring of recent delivery failures.
type Journal struct {
	mu       sync.RWMutex
	entries  []domain.DeliveryFailure
	capacity int
}

var _ ports.FailureJournal = (*Journal)(nil)

// New creates an in-memory journal holding at most capacity entries.
func New(capacity int) *Journal {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Journal{capacity: capacity}
}

func (j *Journal) Append(ctx context.Context, f *domain.DeliveryFailure) error {
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	if f.OccurredAt.IsZero() {
		f.OccurredAt = time.Now()
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	j.entries = append(j.entries, *f)
	if over := len(j.entries) - j.capacity; over > 0 {
		j.entries = append(j.entries[:0], j.entries[over:]...)
	}
	return nil
}

// Recent returns up to limit failures, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]domain.DeliveryFailure, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	if limit <= 0 || limit > len(j.entries) {
		limit = len(j.entries)
	}
	out := make([]domain.DeliveryFailure, 0, limit)
	for i := len(j.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, j.entries[i])
	}
	return out, nil
}

func (j *Journal) Close() error {
	return nil
}
