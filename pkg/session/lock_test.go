package session

import (
	"context"
	"fmt"
	"testing"

	"github.com/aretw0/stride/pkg/pipeline"
)

func TestManager_LockLifecycle(t *testing.T) {
	mgr := NewManager(func(userID string) *pipeline.Machine { return pipeline.New(userID) })
	ctx := context.Background()
	count := 10000

	// 1. Run and drop many pipelines
	for i := 0; i < count; i++ {
		uid := fmt.Sprintf("user-%d", i)
		_ = mgr.WithPipeline(ctx, uid, func(ctx context.Context, p *pipeline.Machine) error {
			p.Advance(ctx)
			return nil
		})
		mgr.Drop(uid)
	}
	mgr.Wait()

	// 2. Count locks and machines remaining in the maps
	lockCount := len(mgr.locks)
	machineCount := len(mgr.machines)

	t.Logf("Pipelines created: %d, Locks leaked: %d", count, lockCount)

	if lockCount != 0 {
		t.Errorf("Memory Leak Detected: %d locks remaining in memory", lockCount)
	}
	if machineCount != 0 {
		t.Errorf("Memory Leak Detected: %d pipelines remaining after Drop", machineCount)
	}
}
