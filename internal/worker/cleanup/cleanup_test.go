package cleanup

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

type mockSessionPurger struct {
	deleteExpiredFn func(ctx context.Context) (int64, error)
	calls           atomic.Int64
}

func (m *mockSessionPurger) DeleteExpired(ctx context.Context) (int64, error) {
	m.calls.Add(1)
	if m.deleteExpiredFn != nil {
		return m.deleteExpiredFn(ctx)
	}
	return 0, nil
}

// コンパイル時のインターフェース実装チェック
var _ SessionPurger = (*mockSessionPurger)(nil)

func TestCleanupJob_Run_DeletesExpiredSessions(t *testing.T) {
	purger := &mockSessionPurger{
		deleteExpiredFn: func(ctx context.Context) (int64, error) {
			return 3, nil
		},
	}
	job := NewCleanupJob(purger, slog.Default())

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if purger.calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", purger.calls.Load())
	}
}

func TestCleanupJob_Run_NothingToDelete_Succeeds(t *testing.T) {
	purger := &mockSessionPurger{}
	job := NewCleanupJob(purger, slog.Default())

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
}

func TestCleanupJob_Run_StoreError_ReturnsError(t *testing.T) {
	purger := &mockSessionPurger{
		deleteExpiredFn: func(ctx context.Context) (int64, error) {
			return 0, errors.New("connection refused")
		},
	}
	job := NewCleanupJob(purger, slog.Default())

	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestCleanupJob_Start_RunsPeriodicallyUntilCancelled(t *testing.T) {
	purger := &mockSessionPurger{}
	job := NewCleanupJob(purger, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		job.Start(ctx, 10*time.Millisecond)
		close(done)
	}()

	// 起動直後の実行＋少なくとも1回の定期実行を待つ
	deadline := time.Now().Add(2 * time.Second)
	for purger.calls.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start did not stop after context cancellation")
	}

	if purger.calls.Load() < 2 {
		t.Errorf("calls = %d, want >= 2", purger.calls.Load())
	}
}
