package videogen

import (
	"github.com/mengeric/videogen-orchestrator-go/provider"
)

// EventSource 对账事件来源。
type EventSource string

const (
	SourceWebhook EventSource = "webhook"
	SourcePoll    EventSource = "poll"
	SourceSweep   EventSource = "sweep"
)

// Event 标准化的对账事件：回调与轮询两个来源共用同一结构。
type Event struct {
	JobID         string      // 本地任务ID；为空时按 ProviderJobID 定位
	ProviderJobID string      // 上游任务ID
	Source        EventSource // 事件来源
	State         JobState    // 事件携带的目标状态
	Progress      int         // 0~100
	ArtifactRefs  []string    // completed 事件可携带
	ErrKind       ErrorKind   // 显式指定的失败分类；为空时按错误文本归类
	ErrCode       string      // 上游错误码（可为空）
	ErrMessage    string      // 上游原始错误文本
}

// stateRank 状态的单调序号，用于构造事件序数。
func stateRank(s JobState) int64 {
	switch s {
	case StatePending:
		return 0
	case StateSubmitted:
		return 1
	case StateProcessing:
		return 2
	case StateCompleted:
		return 3
	case StateFailed:
		return 4
	case StateExpired:
		return 5
	default:
		return -1
	}
}

// Ordinal 事件序数：状态秩 * 1000 + 进度。
// 同一底层变化无论来自回调还是轮询都会得到相同序数，再次投递即被判为重复。
func (e Event) Ordinal() int64 {
	p := int64(e.Progress)
	if p < 0 {
		p = 0
	}
	if p > 100 {
		p = 100
	}
	return stateRank(e.State)*1000 + p
}

// EventFromSnapshot 将轮询快照转换为对账事件。
func EventFromSnapshot(jobID string, snap provider.StatusSnapshot) Event {
	ev := Event{JobID: jobID, ProviderJobID: snap.ProviderJobID, Source: SourcePoll, Progress: snap.Progress}
	switch snap.Status {
	case provider.StatusQueued:
		ev.State = StateSubmitted
	case provider.StatusInProgress:
		ev.State = StateProcessing
	case provider.StatusCompleted:
		ev.State = StateCompleted
		ev.Progress = 100
		ev.ArtifactRefs = defaultArtifactRefs(snap.ProviderJobID)
	case provider.StatusFailed:
		ev.State = StateFailed
		if snap.Err != nil {
			ev.ErrCode = snap.Err.Code
			ev.ErrMessage = snap.Err.Message
		}
	default:
		// 未知状态按 processing 处理，终态只会由明确的 completed/failed 触发
		ev.State = StateProcessing
	}
	return ev
}

// EventFromWebhook 将回调信封转换为对账事件；未知事件类型返回 false（忽略）。
func EventFromWebhook(env provider.WebhookEnvelope) (Event, bool) {
	ev := Event{ProviderJobID: env.Data.ID, Source: SourceWebhook}
	switch env.Type {
	case provider.WebhookVideoProcessing:
		ev.State = StateProcessing
		ev.Progress = env.Data.Progress
	case provider.WebhookVideoCompleted:
		ev.State = StateCompleted
		ev.Progress = 100
		ev.ArtifactRefs = defaultArtifactRefs(env.Data.ID)
	case provider.WebhookVideoFailed:
		ev.State = StateFailed
	default:
		return Event{}, false
	}
	return ev, true
}

// defaultArtifactRefs 完成事件未显式枚举产物时，按约定补全三类产物引用。
func defaultArtifactRefs(providerJobID string) []string {
	kinds := provider.Kinds()
	refs := make([]string, 0, len(kinds))
	for _, k := range kinds {
		refs = append(refs, provider.ArtifactRef{Kind: k, ProviderJobID: providerJobID}.String())
	}
	return refs
}
