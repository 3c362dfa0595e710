package memory

import (
	"context"
	"fmt"
	"testing"

	"github.com/eks-observability/access-relay/internal/core/domain"
)

func TestJournal_RecentNewestFirst(t *testing.T) {
	j := New(3)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := j.Append(ctx, &domain.DeliveryFailure{Error: fmt.Sprintf("e%d", i)}); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	got, err := j.Recent(ctx, 0)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Recent() returned %d entries, want 3 (capacity)", len(got))
	}
	for i, want := range []string{"e4", "e3", "e2"} {
		if got[i].Error != want {
			t.Errorf("Recent()[%d] = %q, want %q", i, got[i].Error, want)
		}
		if got[i].ID == "" || got[i].OccurredAt.IsZero() {
			t.Errorf("Recent()[%d] missing defaults: %+v", i, got[i])
		}
	}

	got, _ = j.Recent(ctx, 1)
	if len(got) != 1 || got[0].Error != "e4" {
		t.Errorf("Recent(1) = %+v", got)
	}
}
