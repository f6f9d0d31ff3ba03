package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/mengeric/videogen-orchestrator-go/videogen"
)

// model 映射到数据库表。
type model struct {
	ID            uint      `gorm:"primaryKey"`
	JobID         string    `gorm:"uniqueIndex;size:64"`
	ProviderJobID string    `gorm:"index;size:64"`
	State         string    `gorm:"index;size:16"`
	Progress      int       `gorm:"default:0"`
	LastEventSeq  int64     `gorm:"default:0"`
	Model         string    `gorm:"size:32"`
	Prompt        string    `gorm:"type:text"`
	Size          string    `gorm:"size:16"`
	Seconds       int       `gorm:"default:0"`
	ParentJobID   string    `gorm:"size:64"`
	ArtifactRefs  string    `gorm:"type:text"` // JSON 数组
	ErrorKind     string    `gorm:"size:32"`
	ErrorMessage  string    `gorm:"type:text"`
	CreatedAt     time.Time `gorm:"index"`
	UpdatedAt     time.Time `gorm:"index"`
}

// TableName 固定表名。
func (model) TableName() string { return "videogen_jobs" }

// terminalStates 终态集合，用于活跃任务与清理的 SQL 条件。
var terminalStates = []string{
	string(videogen.StateCompleted),
	string(videogen.StateFailed),
	string(videogen.StateExpired),
}

// Store 基于 GORM 的 JobStore 实现。
type Store struct{ db *gorm.DB }

// New 创建 Store，建表请先调用 AutoMigrate。
func New(db *gorm.DB) *Store { return &Store{db: db} }

// AutoMigrate 创建/升级任务表结构。
func AutoMigrate(db *gorm.DB) error { return db.AutoMigrate(&model{}) }

// Create 实现 JobStore.Create。
func (s *Store) Create(ctx context.Context, rec *videogen.JobRecord) error {
	m := toModel(rec)
	return s.db.WithContext(ctx).Create(&m).Error
}

// Get 实现 JobStore.Get。
func (s *Store) Get(ctx context.Context, jobID string) (*videogen.JobRecord, error) {
	var m model
	if err := s.db.WithContext(ctx).Where("job_id = ?", jobID).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, videogen.ErrNotFound
		}
		return nil, err
	}
	return fromModel(m), nil
}

// GetByProviderID 实现 JobStore.GetByProviderID。
func (s *Store) GetByProviderID(ctx context.Context, providerJobID string) (*videogen.JobRecord, error) {
	var m model
	if err := s.db.WithContext(ctx).Where("provider_job_id = ?", providerJobID).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, videogen.ErrNotFound
		}
		return nil, err
	}
	return fromModel(m), nil
}

// Apply 实现 JobStore.Apply：带 last_event_seq 守卫的条件更新，0 行命中时区分不存在与冲突。
func (s *Store) Apply(ctx context.Context, jobID string, expectSeq int64, mut videogen.JobMutation) error {
	updates := map[string]any{
		"state":          string(mut.State),
		"progress":       mut.Progress,
		"last_event_seq": mut.EventSeq,
		"updated_at":     time.Now(),
	}
	if mut.ProviderJobID != "" {
		updates["provider_job_id"] = mut.ProviderJobID
	}
	if mut.ArtifactRefs != nil {
		b, err := json.Marshal(mut.ArtifactRefs)
		if err != nil {
			return err
		}
		updates["artifact_refs"] = string(b)
	}
	if mut.Error != nil {
		updates["error_kind"] = string(mut.Error.Kind)
		updates["error_message"] = mut.Error.Message
	}
	res := s.db.WithContext(ctx).Model(&model{}).
		Where("job_id = ? AND last_event_seq = ?", jobID, expectSeq).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var cnt int64
		if err := s.db.WithContext(ctx).Model(&model{}).Where("job_id = ?", jobID).Count(&cnt).Error; err != nil {
			return err
		}
		if cnt == 0 {
			return videogen.ErrNotFound
		}
		return videogen.ErrConflict
	}
	return nil
}

// ListByState 实现 JobStore.ListByState。
func (s *Store) ListByState(ctx context.Context, state videogen.JobState, limit int) ([]videogen.JobRecord, error) {
	var list []model
	q := s.db.WithContext(ctx).Where("state = ?", string(state)).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&list).Error; err != nil {
		return nil, err
	}
	return fromModels(list), nil
}

// ListRecent 实现 JobStore.ListRecent。
func (s *Store) ListRecent(ctx context.Context, limit int) ([]videogen.JobRecord, error) {
	var list []model
	q := s.db.WithContext(ctx).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&list).Error; err != nil {
		return nil, err
	}
	return fromModels(list), nil
}

// ListActive 实现 JobStore.ListActive。
func (s *Store) ListActive(ctx context.Context) ([]videogen.JobRecord, error) {
	var list []model
	err := s.db.WithContext(ctx).
		Where("provider_job_id <> '' AND state NOT IN ?", terminalStates).
		Order("created_at ASC").
		Find(&list).Error
	if err != nil {
		return nil, err
	}
	return fromModels(list), nil
}

// Delete 实现 JobStore.Delete。
func (s *Store) Delete(ctx context.Context, jobID string) error {
	res := s.db.WithContext(ctx).Where("job_id = ?", jobID).Delete(&model{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return videogen.ErrNotFound
	}
	return nil
}

// DeleteTerminalBefore 实现 JobStore.DeleteTerminalBefore。
func (s *Store) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("state IN ? AND updated_at < ?", terminalStates, cutoff).
		Delete(&model{})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func toModel(r *videogen.JobRecord) model {
	m := model{
		JobID:         r.JobID,
		ProviderJobID: r.ProviderJobID,
		State:         string(r.State),
		Progress:      r.Progress,
		LastEventSeq:  r.LastEventSeq,
		Model:         r.Model,
		Prompt:        r.Prompt,
		Size:          r.Size,
		Seconds:       r.Seconds,
		ParentJobID:   r.ParentJobID,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
	if r.ArtifactRefs != nil {
		if b, err := json.Marshal(r.ArtifactRefs); err == nil {
			m.ArtifactRefs = string(b)
		}
	}
	if r.Error != nil {
		m.ErrorKind = string(r.Error.Kind)
		m.ErrorMessage = r.Error.Message
	}
	return m
}

func fromModel(m model) *videogen.JobRecord {
	r := &videogen.JobRecord{
		JobID:         m.JobID,
		ProviderJobID: m.ProviderJobID,
		State:         videogen.JobState(m.State),
		Progress:      m.Progress,
		LastEventSeq:  m.LastEventSeq,
		Model:         m.Model,
		Prompt:        m.Prompt,
		Size:          m.Size,
		Seconds:       m.Seconds,
		ParentJobID:   m.ParentJobID,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
	if m.ArtifactRefs != "" {
		var refs []string
		if err := json.Unmarshal([]byte(m.ArtifactRefs), &refs); err == nil {
			r.ArtifactRefs = refs
		}
	}
	if m.ErrorKind != "" || m.ErrorMessage != "" {
		r.Error = &videogen.JobError{Kind: videogen.ErrorKind(m.ErrorKind), Message: m.ErrorMessage}
	}
	return r
}

func fromModels(list []model) []videogen.JobRecord {
	out := make([]videogen.JobRecord, 0, len(list))
	for _, m := range list {
		out = append(out, *fromModel(m))
	}
	return out
}
