package videogen

import (
	"context"
	"errors"
	"time"
)

// JobState 任务状态（小写字符串，与存储和对外 API 一致）。
type JobState string

const (
	StatePending    JobState = "pending"
	StateSubmitted  JobState = "submitted"
	StateProcessing JobState = "processing"
	StateCompleted  JobState = "completed"
	StateFailed     JobState = "failed"
	StateExpired    JobState = "expired"
)

// Terminal 是否为终态；终态记录不可再变更。
func (s JobState) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateExpired
}

// ErrorKind 失败原因分类。
type ErrorKind string

const (
	ErrKindSubmissionRejected  ErrorKind = "submission_rejected"
	ErrKindContentPolicy       ErrorKind = "content_policy"
	ErrKindQuotaExceeded       ErrorKind = "quota_exceeded"
	ErrKindMalformedInput      ErrorKind = "malformed_input"
	ErrKindProviderInternal    ErrorKind = "provider_internal"
	ErrKindTimeout             ErrorKind = "timeout"
	ErrKindProviderUnreachable ErrorKind = "provider_unreachable"
	ErrKindUnknown             ErrorKind = "unknown"
)

// JobError 任务失败详情：归类后的 kind 加上游原始信息。
type JobError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// GenerationRequest 生成请求参数（调用方视角）。
type GenerationRequest struct {
	Model             string `json:"model"`
	Prompt            string `json:"prompt"`
	Size              string `json:"size"`
	Seconds           int    `json:"seconds"`
	InputReferenceURL string `json:"input_reference_url"`
}

// JobRecord 任务记录持久化实体。
// 不变式：provider_job_id 在离开 pending 后非空（提交被拒的 failed 记录除外）；
// artifact_refs 仅在 completed 时非空；progress 单调不减；error 仅在 failed/expired 时设置。
type JobRecord struct {
	JobID         string
	ProviderJobID string
	State         JobState
	Progress      int
	LastEventSeq  int64
	Model         string
	Prompt        string
	Size          string
	Seconds       int
	ParentJobID   string
	ArtifactRefs  []string
	Error         *JobError
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Clone 深拷贝记录，隔离存储内部状态与调用方。
func (r *JobRecord) Clone() *JobRecord {
	cp := *r
	if r.ArtifactRefs != nil {
		cp.ArtifactRefs = append([]string(nil), r.ArtifactRefs...)
	}
	if r.Error != nil {
		e := *r.Error
		cp.Error = &e
	}
	return &cp
}

// 存储层通用错误。
var (
	ErrNotFound = errors.New("job not found")
	ErrConflict = errors.New("event sequence conflict")
)

// 业务校验与流程错误。
var (
	ErrInvalidRequest = errors.New("invalid generation request")
	ErrParentNotReady = errors.New("remix parent not completed")
	ErrNotReady       = errors.New("artifact not ready")
	ErrUnknownKind    = errors.New("unknown artifact kind")
)

// JobMutation 一次状态变更的字段集合。
// State/Progress/EventSeq 总是写入；ProviderJobID 非空、ArtifactRefs 非 nil、
// Error 非 nil 时才更新对应字段。
type JobMutation struct {
	State         JobState
	Progress      int
	EventSeq      int64
	ProviderJobID string
	ArtifactRefs  []string
	Error         *JobError
}

// JobStore 任务记录存储接口（可由宿主实现或使用内置实现）。
type JobStore interface {
	// Create 插入新记录；job_id 已存在时返回错误。
	Create(ctx context.Context, rec *JobRecord) error
	// Get 按 jobID 获取记录，缺失返回 ErrNotFound。
	Get(ctx context.Context, jobID string) (*JobRecord, error)
	// GetByProviderID 按上游任务ID获取记录。
	GetByProviderID(ctx context.Context, providerJobID string) (*JobRecord, error)
	// Apply 以乐观并发方式应用变更：仅当 last_event_seq == expectSeq 时生效，
	// 否则返回 ErrConflict，由调用方重读后决定是否重试。
	Apply(ctx context.Context, jobID string, expectSeq int64, mut JobMutation) error
	// ListByState 按状态列出记录（创建时间倒序；limit <= 0 表示不限制）。
	ListByState(ctx context.Context, state JobState, limit int) ([]JobRecord, error)
	// ListRecent 列出最近创建的记录。
	ListRecent(ctx context.Context, limit int) ([]JobRecord, error)
	// ListActive 列出已提交且未到终态的记录（供轮询），按创建时间升序。
	ListActive(ctx context.Context) ([]JobRecord, error)
	// Delete 删除记录，缺失返回 ErrNotFound。
	Delete(ctx context.Context, jobID string) error
	// DeleteTerminalBefore 删除 updated_at 早于 cutoff 的终态记录，返回删除数量。
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
