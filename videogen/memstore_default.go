package videogen

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// inMemoryStore 是包内置的线程安全内存存储，仅用于默认与测试场景。
// 设计：为了避免 import cycle，不依赖外部子包，实现最小的 JobStore 接口。
type inMemoryStore struct {
	mu    sync.RWMutex
	byID  map[string]*JobRecord
	byPID map[string]string // provider_job_id -> job_id
}

// newDefaultMemStore 创建内置内存存储实现。
// 返回：满足 JobStore 的实现。
func newDefaultMemStore() JobStore {
	return &inMemoryStore{byID: map[string]*JobRecord{}, byPID: map[string]string{}}
}

// Create 插入新记录。
func (s *inMemoryStore) Create(ctx context.Context, rec *JobRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[rec.JobID]; ok {
		return fmt.Errorf("job %s already exists", rec.JobID)
	}
	cp := rec.Clone()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = cp.CreatedAt
	}
	s.byID[cp.JobID] = cp
	if cp.ProviderJobID != "" {
		s.byPID[cp.ProviderJobID] = cp.JobID
	}
	return nil
}

// Get 按 jobID 读取记录。
func (s *inMemoryStore) Get(ctx context.Context, jobID string) (*JobRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if r, ok := s.byID[jobID]; ok {
		return r.Clone(), nil
	}
	return nil, ErrNotFound
}

// GetByProviderID 按上游任务ID读取记录。
func (s *inMemoryStore) GetByProviderID(ctx context.Context, providerJobID string) (*JobRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id, ok := s.byPID[providerJobID]; ok {
		if r, ok := s.byID[id]; ok {
			return r.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

// Apply 以 CAS 方式应用变更：仅当 last_event_seq == expectSeq 时生效。
func (s *inMemoryStore) Apply(ctx context.Context, jobID string, expectSeq int64, mut JobMutation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.byID[jobID]
	if !ok {
		return ErrNotFound
	}
	if r.LastEventSeq != expectSeq {
		return ErrConflict
	}
	r.State = mut.State
	r.Progress = mut.Progress
	r.LastEventSeq = mut.EventSeq
	if mut.ProviderJobID != "" {
		r.ProviderJobID = mut.ProviderJobID
		s.byPID[mut.ProviderJobID] = r.JobID
	}
	if mut.ArtifactRefs != nil {
		r.ArtifactRefs = append([]string(nil), mut.ArtifactRefs...)
	}
	if mut.Error != nil {
		e := *mut.Error
		r.Error = &e
	}
	r.UpdatedAt = time.Now()
	return nil
}

// ListByState 按状态列出记录（创建时间倒序）。
func (s *inMemoryStore) ListByState(ctx context.Context, state JobState, limit int) ([]JobRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]JobRecord, 0)
	for _, r := range s.byID {
		if r.State == state {
			out = append(out, *r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListRecent 列出最近创建的记录。
func (s *inMemoryStore) ListRecent(ctx context.Context, limit int) ([]JobRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]JobRecord, 0, len(s.byID))
	for _, r := range s.byID {
		out = append(out, *r.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListActive 列出已提交且未到终态的记录（按创建时间升序）。
func (s *inMemoryStore) ListActive(ctx context.Context) ([]JobRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]JobRecord, 0)
	for _, r := range s.byID {
		if r.ProviderJobID != "" && !r.State.Terminal() {
			out = append(out, *r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Delete 删除记录。
func (s *inMemoryStore) Delete(ctx context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.byID[jobID]
	if !ok {
		return ErrNotFound
	}
	if r.ProviderJobID != "" {
		delete(s.byPID, r.ProviderJobID)
	}
	delete(s.byID, jobID)
	return nil
}

// DeleteTerminalBefore 删除超过保留期的终态记录。
func (s *inMemoryStore) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, r := range s.byID {
		if r.State.Terminal() && r.UpdatedAt.Before(cutoff) {
			if r.ProviderJobID != "" {
				delete(s.byPID, r.ProviderJobID)
			}
			delete(s.byID, id)
			n++
		}
	}
	return n, nil
}
