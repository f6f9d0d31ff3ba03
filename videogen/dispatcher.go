package videogen

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mengeric/videogen-orchestrator-go/logging"
	"github.com/mengeric/videogen-orchestrator-go/provider"
)

// 请求默认值与结构约束（与上游约束一致）。
const (
	defaultModel   = "sora-2"
	defaultSize    = "1280x720"
	defaultSeconds = 4
	minSeconds     = 1
	maxSeconds     = 60
)

var allowedSizes = map[string]bool{
	"1280x720":  true,
	"720x1280":  true,
	"1024x1024": true,
}

// Dispatcher 接收生成请求：校验、建档并提交到上游。
type Dispatcher struct {
	store JobStore
	reg   *provider.Registry
	now   func() time.Time
	newID func() string
}

// NewDispatcher 构造。
func NewDispatcher(store JobStore, reg *provider.Registry) *Dispatcher {
	return &Dispatcher{store: store, reg: reg, now: time.Now, newID: uuid.NewString}
}

// Dispatch 处理一次生成请求。
// 功能：
// 1) 填充默认值并校验结构（prompt 非空、时长边界、分辨率集合）；
// 2) 以 pending 状态建档，job_id 由本地生成；
// 3) 在任何锁之外调用上游提交：成功则置为 submitted 并记录 provider_job_id，
//    被拒则归类错误置为 failed，此类任务不会进入轮询。
// 返回：最新记录快照；校验失败返回 ErrInvalidRequest 包装错误。
func (d *Dispatcher) Dispatch(ctx context.Context, req GenerationRequest) (*JobRecord, error) {
	return d.dispatch(ctx, req, "", "")
}

// dispatch 建档并提交；remixProviderID 非空时走上游 Remix 通道。
func (d *Dispatcher) dispatch(ctx context.Context, req GenerationRequest, parentJobID, remixProviderID string) (*JobRecord, error) {
	applyRequestDefaults(&req)
	if err := validateRequest(req, remixProviderID != ""); err != nil {
		return nil, err
	}
	api, ok := d.reg.Resolve(req.Model)
	if !ok {
		return nil, fmt.Errorf("%w: no adapter for model %q", ErrInvalidRequest, req.Model)
	}

	now := d.now()
	rec := &JobRecord{
		JobID:       d.newID(),
		State:       StatePending,
		Model:       req.Model,
		Prompt:      req.Prompt,
		Size:        req.Size,
		Seconds:     req.Seconds,
		ParentJobID: parentJobID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := d.store.Create(ctx, rec); err != nil {
		return nil, err
	}

	var sub provider.Submission
	var err error
	if remixProviderID != "" {
		sub, err = api.Remix(ctx, remixProviderID, req.Prompt)
	} else {
		sub, err = api.Submit(ctx, provider.SubmitRequest{
			Model:             req.Model,
			Prompt:            req.Prompt,
			Size:              req.Size,
			Seconds:           req.Seconds,
			InputReferenceURL: req.InputReferenceURL,
		})
	}
	if err != nil {
		jerr := classifySubmitFailure(err)
		mut := JobMutation{State: StateFailed, Progress: 0, EventSeq: stateRank(StateFailed) * 1000, Error: jerr}
		if aerr := d.store.Apply(ctx, rec.JobID, 0, mut); aerr != nil {
			logging.L().Warnf(ctx, "dispatch: mark rejected failed: job_id=%s err=%v", rec.JobID, aerr)
		}
		logging.L().Warnf(ctx, "dispatch: submit rejected: job_id=%s kind=%s err=%v", rec.JobID, jerr.Kind, err)
		return d.store.Get(ctx, rec.JobID)
	}

	mut := JobMutation{State: StateSubmitted, Progress: 0, EventSeq: stateRank(StateSubmitted) * 1000, ProviderJobID: sub.ProviderJobID}
	if aerr := d.store.Apply(ctx, rec.JobID, 0, mut); aerr != nil {
		logging.L().Warnf(ctx, "dispatch: record submit failed: job_id=%s err=%v", rec.JobID, aerr)
	}
	logging.L().Infof(ctx, "dispatch: job submitted: job_id=%s provider_job_id=%s model=%s", rec.JobID, sub.ProviderJobID, req.Model)
	return d.store.Get(ctx, rec.JobID)
}

// applyRequestDefaults 填充缺省的模型、尺寸与时长。
func applyRequestDefaults(req *GenerationRequest) {
	if req.Model == "" {
		req.Model = defaultModel
	}
	if req.Size == "" {
		req.Size = defaultSize
	}
	if req.Seconds == 0 {
		req.Seconds = defaultSeconds
	}
}

// validateRequest 校验请求结构合法性。
func validateRequest(req GenerationRequest, isRemix bool) error {
	if strings.TrimSpace(req.Prompt) == "" {
		return fmt.Errorf("%w: prompt is required", ErrInvalidRequest)
	}
	if req.Seconds < minSeconds || req.Seconds > maxSeconds {
		return fmt.Errorf("%w: seconds must be within [%d,%d]", ErrInvalidRequest, minSeconds, maxSeconds)
	}
	if !allowedSizes[req.Size] {
		return fmt.Errorf("%w: unsupported size %q", ErrInvalidRequest, req.Size)
	}
	if isRemix && req.InputReferenceURL != "" {
		return fmt.Errorf("%w: reference input and remix source are mutually exclusive", ErrInvalidRequest)
	}
	return nil
}

// classifySubmitFailure 提交失败归类：可识别的类别优先，否则记为 submission_rejected。
func classifySubmitFailure(err error) *JobError {
	var ae *provider.APIError
	if errors.As(err, &ae) {
		je := classifyFailure(ae.Code, ae.Message)
		if je.Kind == ErrKindUnknown {
			je.Kind = ErrKindSubmissionRejected
		}
		return je
	}
	return &JobError{Kind: ErrKindSubmissionRejected, Message: err.Error()}
}
