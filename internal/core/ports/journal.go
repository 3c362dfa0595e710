package ports

import (
	"context"

	"github.com/eks-observability/access-relay/internal/core/domain"
)

// FailureJournal keeps a local record of delivery failures for operators.
// Implementations: SQLite, in-memory.
type FailureJournal interface {
	Append(ctx context.Context, f *domain.DeliveryFailure) error
	Recent(ctx context.Context, limit int) ([]domain.DeliveryFailure, error)
	Close() error
}

// Shipper delivers formatted records to the collector.
// Ship must not block the caller and must not report failures back.
type Shipper interface {
	Ship(rec domain.LogRecord)
}
