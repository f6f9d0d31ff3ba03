package provider

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// 以下类型是对上游视频生成服务（Sora 风格 REST API）的标准化抽象，
// 字段命名与上游线上格式一致或等价。

// Status 上游任务状态（标准化取值）。
type Status string

const (
	StatusQueued     Status = "queued"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// IsTerminal 是否为终态。
func (s Status) IsTerminal() bool { return s == StatusCompleted || s == StatusFailed }

// ParseStatus 标准化上游状态字符串；部分服务商把 in_progress 写作 processing。
func ParseStatus(raw string) Status {
	switch raw {
	case "processing":
		return StatusInProgress
	default:
		return Status(raw)
	}
}

// SubmitRequest 创建视频任务请求（标准化）。
type SubmitRequest struct {
	Model             string
	Prompt            string
	Size              string
	Seconds           int
	InputReferenceURL string
}

// Submission 提交结果（标准化）。
type Submission struct {
	ProviderJobID string
	Status        Status
	Progress      int
	Model         string
	Size          string
	Seconds       int
	CreatedAt     time.Time
}

// StatusSnapshot 轮询得到的任务状态快照（标准化）。
type StatusSnapshot struct {
	ProviderJobID string
	Status        Status
	Progress      int
	CompletedAt   time.Time
	ExpiresAt     time.Time
	Err           *APIError // failed 时的错误详情
}

// APIError 上游返回的结构化错误。
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("provider error %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("provider error %d: %s", e.StatusCode, e.Message)
}

// ArtifactKind 产物类型。
type ArtifactKind string

const (
	ArtifactVideo       ArtifactKind = "video"
	ArtifactThumbnail   ArtifactKind = "thumbnail"
	ArtifactSpritesheet ArtifactKind = "spritesheet"
)

// Kinds 全部产物类型。
func Kinds() []ArtifactKind {
	return []ArtifactKind{ArtifactVideo, ArtifactThumbnail, ArtifactSpritesheet}
}

// Valid 是否为已知产物类型。
func (k ArtifactKind) Valid() bool {
	return k == ArtifactVideo || k == ArtifactThumbnail || k == ArtifactSpritesheet
}

// ContentType 产物的 MIME 类型。
func (k ArtifactKind) ContentType() string {
	switch k {
	case ArtifactThumbnail:
		return "image/jpeg"
	case ArtifactSpritesheet:
		return "image/png"
	default:
		return "video/mp4"
	}
}

// Filename 产物落盘文件名，与上游工具约定一致。
func (k ArtifactKind) Filename(providerJobID string) string {
	switch k {
	case ArtifactThumbnail:
		return providerJobID + "_thumbnail.jpg"
	case ArtifactSpritesheet:
		return providerJobID + "_spritesheet.png"
	default:
		return providerJobID + ".mp4"
	}
}

// ArtifactRef 产物引用：以 kind:providerJobID 形式存储在任务记录中。
type ArtifactRef struct {
	Kind          ArtifactKind
	ProviderJobID string
}

func (r ArtifactRef) String() string { return string(r.Kind) + ":" + r.ProviderJobID }

// ParseArtifactRef 解析产物引用字符串。
func ParseArtifactRef(s string) (ArtifactRef, bool) {
	kind, id, ok := strings.Cut(s, ":")
	if !ok || id == "" || !ArtifactKind(kind).Valid() {
		return ArtifactRef{}, false
	}
	return ArtifactRef{Kind: ArtifactKind(kind), ProviderJobID: id}, true
}

// 回调事件类型。
const (
	WebhookVideoProcessing = "video.processing"
	WebhookVideoCompleted  = "video.completed"
	WebhookVideoFailed     = "video.failed"
)

// WebhookEnvelope 回调事件信封（与上游 webhook 载荷一致）。
type WebhookEnvelope struct {
	ID        string      `json:"id"`
	Object    string      `json:"object"`
	CreatedAt int64       `json:"created_at"`
	Type      string      `json:"type"`
	Data      WebhookData `json:"data"`
}

// WebhookData 事件数据体；progress 仅 video.processing 事件可能携带。
type WebhookData struct {
	ID       string `json:"id"`
	Progress int    `json:"progress"`
}

// createVideoReq 创建任务请求体（线上格式，seconds 为字符串）。
type createVideoReq struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	Size           string `json:"size,omitempty"`
	Seconds        string `json:"seconds,omitempty"`
	InputReference string `json:"input_reference,omitempty"`
}

// remixVideoReq Remix 请求体。
type remixVideoReq struct {
	Prompt string `json:"prompt"`
}

// videoResp 上游任务对象（线上格式）。
type videoResp struct {
	ID          string      `json:"id"`
	Object      string      `json:"object"`
	Status      string      `json:"status"`
	Progress    int         `json:"progress"`
	Model       string      `json:"model"`
	Size        string      `json:"size"`
	Seconds     string      `json:"seconds"`
	CreatedAt   int64       `json:"created_at"`
	CompletedAt int64       `json:"completed_at"`
	ExpiresAt   int64       `json:"expires_at"`
	Error       *apiErrBody `json:"error"`
}

// apiErrBody 上游错误体。
type apiErrBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// toSubmission 映射为标准化提交结果。
func (v videoResp) toSubmission() Submission {
	sec, _ := strconv.Atoi(v.Seconds)
	return Submission{
		ProviderJobID: v.ID,
		Status:        ParseStatus(v.Status),
		Progress:      v.Progress,
		Model:         v.Model,
		Size:          v.Size,
		Seconds:       sec,
		CreatedAt:     time.Unix(v.CreatedAt, 0),
	}
}

// toSnapshot 映射为标准化状态快照。
func (v videoResp) toSnapshot() StatusSnapshot {
	s := StatusSnapshot{ProviderJobID: v.ID, Status: ParseStatus(v.Status), Progress: v.Progress}
	if v.CompletedAt > 0 {
		s.CompletedAt = time.Unix(v.CompletedAt, 0)
	}
	if v.ExpiresAt > 0 {
		s.ExpiresAt = time.Unix(v.ExpiresAt, 0)
	}
	if v.Error != nil {
		s.Err = &APIError{Code: v.Error.Code, Message: v.Error.Message}
	}
	return s
}
