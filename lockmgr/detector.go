package lockmgr

import (
	"context"
	"sync"
	"time"

	"github.com/ceyewan/lockmgr/clog"
)

// detector 一次后台检测任务的生命周期
type detector struct {
	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// StartDetector 以 interval 为间隔启动后台检测，已在运行时先停止旧的任务
func (m *manager) StartDetector(interval time.Duration) error {
	if interval <= 0 {
		return ErrInvalidInterval
	}

	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return ErrClosed
	}

	m.detMu.Lock()
	defer m.detMu.Unlock()

	m.stopLocked()

	// Close 可能在上面的检查之后、取得 detMu 之前完成
	m.mu.Lock()
	closed = m.closed
	m.mu.Unlock()
	if closed {
		return ErrClosed
	}

	d := &detector{
		interval: interval,
		stopCh:   make(chan struct{}),
	}
	d.wg.Add(1)
	go m.run(d)
	m.det = d

	m.logger.Info("deadlock detector started", clog.Duration("interval", interval))
	return nil
}

// StopDetector 停止后台检测并等待当前轮次结束
func (m *manager) StopDetector() {
	m.detMu.Lock()
	defer m.detMu.Unlock()
	m.stopLocked()
}

// stopLocked 调用方须持有 detMu
func (m *manager) stopLocked() {
	if m.det == nil {
		return
	}
	close(m.det.stopCh)
	m.det.wg.Wait()
	m.logger.Info("deadlock detector stopped", clog.Duration("interval", m.det.interval))
	m.det = nil
}

// run 先执行一轮检测，然后每个间隔执行一轮，等待期间可被停止信号打断
func (m *manager) run(d *detector) {
	defer d.wg.Done()

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		m.Detect(context.Background())

		select {
		case <-d.stopCh:
			return
		case <-ticker.C:
		}
	}
}
