package tracker

import (
	"sync"
	"time"
)

// maxBackoffShift 退避倍数上限（2^3 = 8 倍基准间隔）。
const maxBackoffShift = 3

// entry 单个任务的轮询状态。
type entry struct {
	failures int
	nextDue  time.Time
}

// Manager 按任务维护轮询退避：连续失败的任务指数延后，成功即恢复基准节奏。
type Manager struct {
	mu   sync.Mutex
	base time.Duration
	jobs map[string]*entry
}

// NewManager 构造跟踪器，base 为基准轮询间隔，<=0 时取 2s。
func NewManager(base time.Duration) *Manager {
	if base <= 0 {
		base = 2 * time.Second
	}
	return &Manager{base: base, jobs: map[string]*entry{}}
}

// Due 判断任务是否到达下一次轮询时间；未登记的任务视为立即可轮询。
func (m *Manager) Due(jobID string, now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.jobs[jobID]
	if !ok {
		return true
	}
	return !now.Before(e.nextDue)
}

// Fail 记录一次轮询失败并推迟下次轮询，返回累计连续失败次数。
func (m *Manager) Fail(jobID string, now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.jobs[jobID]
	if !ok {
		e = &entry{}
		m.jobs[jobID] = e
	}
	e.failures++
	shift := e.failures - 1
	if shift > maxBackoffShift {
		shift = maxBackoffShift
	}
	e.nextDue = now.Add(m.base << shift)
	return e.failures
}

// Succeed 清除任务的失败记录，下一轮恢复基准节奏。
func (m *Manager) Succeed(jobID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.jobs, jobID)
}

// Forget 移除任务的全部跟踪状态（终态或删除后调用）。
func (m *Manager) Forget(jobID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.jobs, jobID)
}

// Failures 查询任务当前连续失败次数。
func (m *Manager) Failures(jobID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.jobs[jobID]; ok {
		return e.failures
	}
	return 0
}
