package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mengeric/videogen-orchestrator-go/videogen"
)

// Store 线程安全的内存 JobStore 实现，仅用于开发/轻量场景。
type Store struct {
	mu    sync.RWMutex
	byID  map[string]*videogen.JobRecord
	byPID map[string]string // provider_job_id -> job_id
}

// New 创建内存存储。
func New() *Store {
	return &Store{byID: map[string]*videogen.JobRecord{}, byPID: map[string]string{}}
}

// Create 插入新记录。
func (s *Store) Create(ctx context.Context, rec *videogen.JobRecord) error {
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
func (s *Store) Get(ctx context.Context, jobID string) (*videogen.JobRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if r, ok := s.byID[jobID]; ok {
		return r.Clone(), nil
	}
	return nil, videogen.ErrNotFound
}

// GetByProviderID 按上游任务ID读取记录。
func (s *Store) GetByProviderID(ctx context.Context, providerJobID string) (*videogen.JobRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id, ok := s.byPID[providerJobID]; ok {
		if r, ok := s.byID[id]; ok {
			return r.Clone(), nil
		}
	}
	return nil, videogen.ErrNotFound
}

// Apply 以 CAS 方式应用变更：仅当 last_event_seq == expectSeq 时生效。
func (s *Store) Apply(ctx context.Context, jobID string, expectSeq int64, mut videogen.JobMutation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.byID[jobID]
	if !ok {
		return videogen.ErrNotFound
	}
	if r.LastEventSeq != expectSeq {
		return videogen.ErrConflict
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
func (s *Store) ListByState(ctx context.Context, state videogen.JobState, limit int) ([]videogen.JobRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]videogen.JobRecord, 0)
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
func (s *Store) ListRecent(ctx context.Context, limit int) ([]videogen.JobRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]videogen.JobRecord, 0, len(s.byID))
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
func (s *Store) ListActive(ctx context.Context) ([]videogen.JobRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]videogen.JobRecord, 0)
	for _, r := range s.byID {
		if r.ProviderJobID != "" && !r.State.Terminal() {
			out = append(out, *r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Delete 删除记录。
func (s *Store) Delete(ctx context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.byID[jobID]
	if !ok {
		return videogen.ErrNotFound
	}
	if r.ProviderJobID != "" {
		delete(s.byPID, r.ProviderJobID)
	}
	delete(s.byID, jobID)
	return nil
}

// DeleteTerminalBefore 删除超过保留期的终态记录。
func (s *Store) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
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
