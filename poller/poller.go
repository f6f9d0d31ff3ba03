package poller

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/mengeric/videogen-orchestrator-go/logging"
	"github.com/mengeric/videogen-orchestrator-go/provider"
	"github.com/mengeric/videogen-orchestrator-go/tracker"
)

// Active 一条待轮询的任务视图（已提交且未到终态）。
type Active struct {
	JobID         string
	ProviderJobID string
	Model         string
	CreatedAt     time.Time
}

// activeLister 列出当前待轮询任务。
type activeLister interface {
	ListActive(ctx context.Context) ([]Active, error)
}

// statusFetcher 查询上游任务状态。
type statusFetcher interface {
	FetchStatus(ctx context.Context, model, providerJobID string) (provider.StatusSnapshot, error)
}

// eventSink 接收轮询结论：状态快照、超时、上游不可达。
type eventSink interface {
	ApplySnapshot(ctx context.Context, jobID string, snap provider.StatusSnapshot) error
	Expire(ctx context.Context, jobID string, age time.Duration) error
	MarkUnreachable(ctx context.Context, jobID string, failures int) error
}

// Options 轮询参数。
type Options struct {
	Every      time.Duration // 扫描周期
	MaxJobAge  time.Duration // 任务最长存活时间，超过即置为 expired
	FailureCap int           // 连续轮询失败上限，达到即判定上游不可达
}

// Poller 周期性对账本地任务与上游真实状态。
type Poller struct {
	lister  activeLister
	fetcher statusFetcher
	sink    eventSink
	trk     *tracker.Manager
	opt     Options
	running atomic.Bool
}

// New 构造轮询器。
func New(lister activeLister, fetcher statusFetcher, sink eventSink, trk *tracker.Manager, opt Options) *Poller {
	if opt.Every <= 0 {
		opt.Every = 2 * time.Second
	}
	if opt.MaxJobAge <= 0 {
		opt.MaxJobAge = time.Hour
	}
	if opt.FailureCap <= 0 {
		opt.FailureCap = 5
	}
	if trk == nil {
		trk = tracker.NewManager(opt.Every)
	}
	return &Poller{lister: lister, fetcher: fetcher, sink: sink, trk: trk, opt: opt}
}

// Start 启动后台轮询协程，ctx 取消即退出；重复调用只生效一次。
func (p *Poller) Start(ctx context.Context) {
	if p.running.Swap(true) {
		return
	}
	ticker := time.NewTicker(p.opt.Every)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.sweep(ctx)
			}
		}
	}()
}

// sweep 单轮扫描：先判超时，再按退避节奏查询上游并回灌对账事件。
func (p *Poller) sweep(ctx context.Context) {
	actives, err := p.lister.ListActive(ctx)
	if err != nil {
		logging.L().Warnf(ctx, "poll: list active jobs failed: %v", err)
		return
	}
	now := time.Now()
	for _, a := range actives {
		if now.Sub(a.CreatedAt) > p.opt.MaxJobAge {
			if err := p.sink.Expire(ctx, a.JobID, p.opt.MaxJobAge); err != nil {
				logging.L().Warnf(ctx, "poll: expire failed: job_id=%s err=%v", a.JobID, err)
			}
			p.trk.Forget(a.JobID)
			continue
		}
		if a.ProviderJobID == "" {
			continue
		}
		if !p.trk.Due(a.JobID, now) {
			continue
		}
		snap, err := p.fetcher.FetchStatus(ctx, a.Model, a.ProviderJobID)
		if err != nil {
			n := p.trk.Fail(a.JobID, now)
			logging.L().Warnf(ctx, "poll: fetch status failed: job_id=%s failures=%d err=%v", a.JobID, n, err)
			if n >= p.opt.FailureCap {
				if serr := p.sink.MarkUnreachable(ctx, a.JobID, n); serr != nil {
					logging.L().Warnf(ctx, "poll: mark unreachable failed: job_id=%s err=%v", a.JobID, serr)
				}
				p.trk.Forget(a.JobID)
			}
			continue
		}
		p.trk.Succeed(a.JobID)
		if err := p.sink.ApplySnapshot(ctx, a.JobID, snap); err != nil {
			logging.L().Warnf(ctx, "poll: apply snapshot failed: job_id=%s err=%v", a.JobID, err)
			continue
		}
		if snap.Status.IsTerminal() {
			p.trk.Forget(a.JobID)
		}
	}
}
