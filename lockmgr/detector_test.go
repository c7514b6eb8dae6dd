package lockmgr

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectorResolvesInBackground(t *testing.T) {
	mgr, err := New(&Config{DetectInterval: 10 * time.Millisecond})
	require.NoError(t, err)
	defer mgr.Close()
	ctx := context.Background()

	for _, op := range [][2]string{
		{"A", "ra"}, {"B", "rb"}, {"C", "rc"},
		{"A", "rb"}, {"B", "rc"}, {"C", "ra"},
	} {
		mustAcquire(t, mgr, op[0], op[1])
	}

	assert.Eventually(t, func() bool {
		_, err := mgr.Find(ctx, "A", "ra")
		return err != nil
	}, 2*time.Second, 5*time.Millisecond, "检测器应释放牺牲者 A")

	l, err := mgr.Find(ctx, "C", "ra")
	require.NoError(t, err)
	assert.Equal(t, StateHeld, l.State)
	assert.Empty(t, mgr.Cycles(ctx))
}

func TestDetectorLifecycle(t *testing.T) {
	mgr := newTestManager(t)

	assert.ErrorIs(t, mgr.StartDetector(0), ErrInvalidInterval)
	assert.False(t, mgr.Stats().DetectorRunning)

	require.NoError(t, mgr.StartDetector(time.Hour))
	assert.True(t, mgr.Stats().DetectorRunning)

	require.NoError(t, mgr.StartDetector(10*time.Millisecond), "重新启动会替换旧的任务")
	assert.True(t, mgr.Stats().DetectorRunning)

	done := make(chan struct{})
	go func() {
		mgr.StopDetector()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("StopDetector 应打断等待并立即返回")
	}
	assert.False(t, mgr.Stats().DetectorRunning)

	mgr.StopDetector()
}

func TestStopDetectorPreemptsLongInterval(t *testing.T) {
	mgr := newTestManager(t)
	require.NoError(t, mgr.StartDetector(time.Hour))

	start := time.Now()
	mgr.StopDetector()
	assert.Less(t, time.Since(start), time.Second)
}

func TestStartDetectorRacingClose(t *testing.T) {
	for i := 0; i < 200; i++ {
		mgr, err := New(&Config{DisableDetector: true})
		require.NoError(t, err)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			if err := mgr.StartDetector(time.Hour); err != nil {
				assert.ErrorIs(t, err, ErrClosed)
			}
		}()
		go func() {
			defer wg.Done()
			_ = mgr.Close()
		}()
		wg.Wait()

		require.False(t, mgr.Stats().DetectorRunning, "关闭后不应残留后台检测 (round %d)", i)
	}
}
