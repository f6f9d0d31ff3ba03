package videogen

import (
	"context"
	"errors"
	"strings"

	"github.com/mengeric/videogen-orchestrator-go/logging"
)

// Reconciler 唯一的状态写入方：把标准化事件按状态机规则合并进存储。
// 说明：回调与轮询产生的事件都经由 Apply 汇聚，重复与乱序在这里统一判定。
type Reconciler struct {
	store JobStore
}

// NewReconciler 构造。
func NewReconciler(store JobStore) *Reconciler { return &Reconciler{store: store} }

// canTransition 判断从 cur 到 next 的迁移是否合法；非终态自边用于进度刷新。
func canTransition(cur, next JobState) bool {
	if cur == next {
		return !cur.Terminal()
	}
	switch cur {
	case StatePending:
		return next == StateSubmitted || next == StateFailed
	case StateSubmitted:
		return next == StateProcessing || next == StateCompleted || next == StateFailed || next == StateExpired
	case StateProcessing:
		return next == StateCompleted || next == StateFailed || next == StateExpired
	default:
		return false
	}
}

// Apply 处理一条对账事件。
// 功能：
// 1) 按 job_id 或 provider_job_id 定位记录，未知任务丢弃并告警；
// 2) 事件序数小于等于 last_event_seq 视为重复或乱序，静默丢弃；
// 3) 终态记录不再变更，非法迁移丢弃并告警；
// 4) 通过存储层 CAS 应用变更，竞争失败重读一次再试，仍冲突则丢弃。
// 返回：事件被应用或被丢弃均返回 nil（丢弃不是错误）；存储读写异常返回 error。
func (r *Reconciler) Apply(ctx context.Context, ev Event) error {
	var jobID string
	for attempt := 0; attempt < 2; attempt++ {
		rec, err := r.locate(ctx, ev)
		if errors.Is(err, ErrNotFound) {
			logging.L().Warnf(ctx, "reconcile: unknown job, drop: provider_job_id=%s source=%s", ev.ProviderJobID, ev.Source)
			return nil
		}
		if err != nil {
			return err
		}
		jobID = rec.JobID
		ord := ev.Ordinal()
		if ord <= rec.LastEventSeq {
			logging.L().Debugf(ctx, "reconcile: stale event, drop: job_id=%s ord=%d seq=%d source=%s", rec.JobID, ord, rec.LastEventSeq, ev.Source)
			return nil
		}
		if rec.State.Terminal() {
			logging.L().Warnf(ctx, "reconcile: job already terminal, drop: job_id=%s state=%s event_state=%s source=%s", rec.JobID, rec.State, ev.State, ev.Source)
			return nil
		}
		if !canTransition(rec.State, ev.State) {
			logging.L().Warnf(ctx, "reconcile: invalid transition, drop: job_id=%s %s -> %s source=%s", rec.JobID, rec.State, ev.State, ev.Source)
			return nil
		}

		err = r.store.Apply(ctx, rec.JobID, rec.LastEventSeq, r.mutation(rec, ev, ord))
		if err == nil {
			if ev.State != rec.State {
				logging.L().Infof(ctx, "reconcile: job %s: %s -> %s (source=%s progress=%d)", rec.JobID, rec.State, ev.State, ev.Source, ev.Progress)
			} else {
				logging.L().Debugf(ctx, "reconcile: job %s progress %d (source=%s)", rec.JobID, ev.Progress, ev.Source)
			}
			return nil
		}
		if errors.Is(err, ErrConflict) {
			continue
		}
		return err
	}
	logging.L().Warnf(ctx, "reconcile: apply conflict persists, drop: job_id=%s source=%s", jobID, ev.Source)
	return nil
}

// locate 按事件载荷定位记录。
func (r *Reconciler) locate(ctx context.Context, ev Event) (*JobRecord, error) {
	if ev.JobID != "" {
		return r.store.Get(ctx, ev.JobID)
	}
	return r.store.GetByProviderID(ctx, ev.ProviderJobID)
}

// mutation 根据事件构造变更集合；进度只增不减。
func (r *Reconciler) mutation(rec *JobRecord, ev Event, ord int64) JobMutation {
	mut := JobMutation{State: ev.State, EventSeq: ord, Progress: rec.Progress}
	if ev.Progress > mut.Progress {
		mut.Progress = ev.Progress
	}
	switch ev.State {
	case StateCompleted:
		mut.Progress = 100
		refs := ev.ArtifactRefs
		if len(refs) == 0 {
			refs = defaultArtifactRefs(rec.ProviderJobID)
		}
		mut.ArtifactRefs = refs
	case StateFailed:
		if ev.ErrKind != "" {
			msg := ev.ErrMessage
			if msg == "" {
				msg = "video generation failed"
			}
			mut.Error = &JobError{Kind: ev.ErrKind, Message: msg}
		} else {
			mut.Error = classifyFailure(ev.ErrCode, ev.ErrMessage)
		}
	case StateExpired:
		msg := ev.ErrMessage
		if msg == "" {
			msg = "job did not reach a terminal state in time"
		}
		mut.Error = &JobError{Kind: ErrKindTimeout, Message: msg}
	}
	return mut
}

// classifyFailure 按上游错误码与文本归类失败原因。
func classifyFailure(code, msg string) *JobError {
	text := strings.ToLower(code + " " + msg)
	kind := ErrKindUnknown
	switch {
	case strings.Contains(text, "moderation") || strings.Contains(text, "content_policy") || strings.Contains(text, "policy") || strings.Contains(text, "safety"):
		kind = ErrKindContentPolicy
	case strings.Contains(text, "quota") || strings.Contains(text, "rate_limit") || strings.Contains(text, "rate limit") || strings.Contains(text, "billing"):
		kind = ErrKindQuotaExceeded
	case strings.Contains(text, "invalid") || strings.Contains(text, "malformed") || strings.Contains(text, "unsupported"):
		kind = ErrKindMalformedInput
	case strings.Contains(text, "internal") || strings.Contains(text, "server_error") || strings.Contains(text, "unavailable"):
		kind = ErrKindProviderInternal
	}
	if msg == "" {
		msg = "video generation failed"
	}
	return &JobError{Kind: kind, Message: msg}
}
