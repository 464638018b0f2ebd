package memory

import (
	"context"
	"testing"
	"time"

	"github.com/jmcleod/customersvc/storage"
	"github.com/jmcleod/customersvc/storage/storagetest"
)

func TestMemoryRepository(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Repository {
		return NewRepository()
	})
}

func TestMemoryRepositoryStampsUpdatedAt(t *testing.T) {
	fixed := time.Date(2030, 6, 1, 0, 0, 0, 0, time.UTC)
	repo := NewRepository(WithClock(func() time.Time { return fixed }))

	ctx := context.Background()
	if err := repo.CreateClient(ctx, storagetest.NewClient("c1", "alice")); err != nil {
		t.Fatalf("CreateClient failed: %v", err)
	}
	if err := repo.SetTwoFactorActive(ctx, "c1", true); err != nil {
		t.Fatalf("SetTwoFactorActive failed: %v", err)
	}
	got, err := repo.GetClient(ctx, "c1")
	if err != nil {
		t.Fatalf("GetClient failed: %v", err)
	}
	if !got.UpdatedAt.Equal(fixed) {
		t.Errorf("expected UpdatedAt %v, got %v", fixed, got.UpdatedAt)
	}
}
