package session_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/stride/pkg/domain"
	"github.com/aretw0/stride/pkg/pipeline"
	"github.com/aretw0/stride/pkg/ports"
	"github.com/aretw0/stride/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newManager(opts ...session.Option) *session.Manager {
	return session.NewManager(func(userID string) *pipeline.Machine {
		return pipeline.New(userID)
	}, opts...)
}

func TestManager_OpenIsLazyAndStable(t *testing.T) {
	mgr := newManager()

	_, ok := mgr.Get("alice")
	assert.False(t, ok)

	p1 := mgr.Open("alice")
	p2 := mgr.Open("alice")
	assert.Same(t, p1, p2)
	assert.Equal(t, "alice", p1.UserID())

	mgr.Open("bob")
	assert.Equal(t, []string{"alice", "bob"}, mgr.List())

	mgr.Drop("alice")
	assert.Equal(t, []string{"bob"}, mgr.List())
	assert.NotSame(t, p1, mgr.Open("alice"), "a dropped pipeline is rebuilt")
}

func TestManager_Locking(t *testing.T) {
	mgr := newManager()
	ctx := context.Background()

	var (
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := mgr.WithPipeline(ctx, "race-test", func(ctx context.Context, p *pipeline.Machine) error {
				mu.Lock()
				inside++
				maxSeen = max(maxSeen, inside)
				mu.Unlock()

				time.Sleep(5 * time.Millisecond)
				p.Advance(ctx)

				mu.Lock()
				inside--
				mu.Unlock()
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen, "operations on one user must be serialized")
	p, ok := mgr.Get("race-test")
	require.True(t, ok)
	assert.Equal(t, domain.StageAdvance, p.Session().CurrentStage)
}

type MockLocker struct {
	mock.Mock
}

func (m *MockLocker) Lock(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	args := m.Called(ctx, key, ttl)
	unlock, _ := args.Get(0).(ports.UnlockFunc)
	return unlock, args.Error(1)
}

func TestManager_DistributedLock(t *testing.T) {
	locker := new(MockLocker)
	unlocked := false
	locker.On("Lock", mock.Anything, "alice", 5*time.Second).
		Return(ports.UnlockFunc(func(context.Context) error { unlocked = true; return nil }), nil).
		Once()

	mgr := newManager(session.WithLocker(locker), session.WithLockTTL(5*time.Second))
	err := mgr.WithPipeline(context.Background(), "alice", func(ctx context.Context, p *pipeline.Machine) error {
		assert.False(t, unlocked)
		return nil
	})
	require.NoError(t, err)
	assert.True(t, unlocked)
	locker.AssertExpectations(t)
}

func TestManager_DistributedLockFailure(t *testing.T) {
	locker := new(MockLocker)
	locker.On("Lock", mock.Anything, "alice", session.DefaultLockTTL).
		Return(nil, context.DeadlineExceeded)

	mgr := newManager(session.WithLocker(locker))
	called := false
	err := mgr.WithPipeline(context.Background(), "alice", func(context.Context, *pipeline.Machine) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, called)
}

func TestManager_PropagatesError(t *testing.T) {
	mgr := newManager()
	err := mgr.WithPipeline(context.Background(), "alice", func(ctx context.Context, p *pipeline.Machine) error {
		return p.JumpTo(ctx, "nowhere")
	})
	assert.True(t, errors.Is(err, domain.ErrUnknownStage))
}
