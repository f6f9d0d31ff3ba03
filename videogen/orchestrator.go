package videogen

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/mengeric/videogen-orchestrator-go/logging"
	"github.com/mengeric/videogen-orchestrator-go/poller"
	"github.com/mengeric/videogen-orchestrator-go/provider"
	"github.com/mengeric/videogen-orchestrator-go/tracker"
)

// Orchestrator 组件主对象：提供内置 HTTP Server 与后台对账生命周期控制。
// 说明：Orchestrator 在 Start(ctx) 中自动启动 HTTP Server（监听 Options.ListenAddr），
// 并开启状态轮询与终态清理任务。
type Orchestrator struct {
	opt   Options
	reg   *provider.Registry
	store JobStore

	dsp *Dispatcher
	rec *Reconciler
	ing *WebhookIngestor
	art *ArtifactResolver
	trk *tracker.Manager
	pol *poller.Poller
	jan *poller.Janitor

	e         *echo.Echo
	addrMu    sync.RWMutex
	addr      string
	startedAt time.Time
}

// New 创建 Orchestrator。
// 功能：按照 With... 可选项组合出一个可运行的编排器；未显式注入存储时使用内置内存存储，
// 未注入适配器时按 ProviderBaseURL 构造 HTTP 适配器。
// 参数：
// - opts：一组 Option，可配置监听地址、上游适配器、轮询与清理周期、验签密钥等；
// 返回：
// - *Orchestrator：已初始化的实例；
// 异常：
// - 构造阶段不返回错误，运行期问题在 Start 时通过日志输出并按周期重试。
func New(opts ...Option) *Orchestrator {
	cfg := &orchestratorConfig{}
	for _, fn := range opts {
		fn(cfg)
	}
	cfg.opt.withDefaults()
	o := &Orchestrator{opt: cfg.opt, trk: tracker.NewManager(cfg.opt.PollEvery)}
	if cfg.store != nil {
		o.store = cfg.store
	} else {
		// 避免 import cycle：默认使用包内置的内存实现
		o.store = newDefaultMemStore()
	}
	reg := cfg.reg
	if reg == nil {
		api := cfg.api
		if api == nil && cfg.opt.ProviderBaseURL != "" {
			api = provider.NewHTTPAPI(cfg.opt.ProviderBaseURL, cfg.opt.ProviderAPIKey)
		}
		reg = provider.NewRegistry(api)
	}
	o.reg = reg
	o.rec = NewReconciler(o.store)
	o.dsp = NewDispatcher(o.store, reg)
	o.ing = NewWebhookIngestor(cfg.opt.WebhookSecret, o.rec)
	o.art = NewArtifactResolver(o.store, reg, cfg.opt.ArtifactDir)
	return o
}

// Start 启动编排器。
// 功能：
// 1) 先启动内置 HTTP Server 并确定对外地址（可能为随机端口）；
// 2) 启动状态轮询与终态清理任务；
// 生命周期：受传入 ctx 控制，ctx.Done 时优雅关闭 HTTP Server 并停止后台协程。
// 异常：监听失败记录日志后返回；运行期网络失败不抛出，内部日志记录并按周期重试。
func (o *Orchestrator) Start(ctx context.Context) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	o.registerHandlers(e)

	ln, err := net.Listen("tcp", o.opt.ListenAddr)
	if err != nil {
		logging.L().Errorf(ctx, "listen failed: addr=%s err=%v", o.opt.ListenAddr, err)
		return
	}
	o.addrMu.Lock()
	o.addr = ln.Addr().String()
	o.addrMu.Unlock()
	o.startedAt = time.Now()
	e.Listener = ln
	o.e = e
	go func() { <-ctx.Done(); _ = e.Shutdown(context.Background()) }()
	go func() { _ = e.Start("") }()

	o.pol = poller.New(pollView{o.store}, fetchAdapter{o.reg}, sinkAdapter{o.rec}, o.trk, poller.Options{
		Every:      o.opt.PollEvery,
		MaxJobAge:  o.opt.MaxJobAge,
		FailureCap: o.opt.PollFailureCap,
	})
	o.pol.Start(ctx)

	o.jan = poller.NewJanitor(o.store, o.opt.RetainTerminalFor, o.opt.SweepEvery)
	o.jan.Start(ctx)

	logging.L().Infof(ctx, "orchestrator started: addr=%s poll_every=%s max_job_age=%s", o.addr, o.opt.PollEvery, o.opt.MaxJobAge)
}

// Addr 返回内置 HTTP Server 的实际监听地址（用于测试或 :0 随机端口场景）。
func (o *Orchestrator) Addr() string {
	o.addrMu.RLock()
	defer o.addrMu.RUnlock()
	return o.addr
}

// Store 返回当前使用的存储实现（宿主可用于额外查询）。
func (o *Orchestrator) Store() JobStore { return o.store }

// pollView 适配轮询器对存储的依赖（仅用到 ListActive）。
type pollView struct{ store JobStore }

// ListActive 将存储模型映射为轮询器精简视图。
func (v pollView) ListActive(ctx context.Context) ([]poller.Active, error) {
	recs, err := v.store.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]poller.Active, 0, len(recs))
	for _, r := range recs {
		out = append(out, poller.Active{JobID: r.JobID, ProviderJobID: r.ProviderJobID, Model: r.Model, CreatedAt: r.CreatedAt})
	}
	return out, nil
}

// fetchAdapter 按模型路由上游状态查询。
type fetchAdapter struct{ reg *provider.Registry }

// FetchStatus 解析模型对应的适配器并查询状态。
func (f fetchAdapter) FetchStatus(ctx context.Context, model, providerJobID string) (provider.StatusSnapshot, error) {
	api, ok := f.reg.Resolve(model)
	if !ok {
		return provider.StatusSnapshot{}, fmt.Errorf("no adapter for model %q", model)
	}
	return api.FetchStatus(ctx, providerJobID)
}

// sinkAdapter 将轮询结论转换为对账事件。
type sinkAdapter struct{ rec *Reconciler }

// ApplySnapshot 应用一次状态快照。
func (s sinkAdapter) ApplySnapshot(ctx context.Context, jobID string, snap provider.StatusSnapshot) error {
	return s.rec.Apply(ctx, EventFromSnapshot(jobID, snap))
}

// Expire 存活超限的任务置为 expired。
func (s sinkAdapter) Expire(ctx context.Context, jobID string, age time.Duration) error {
	return s.rec.Apply(ctx, Event{
		JobID:      jobID,
		Source:     SourceSweep,
		State:      StateExpired,
		ErrMessage: fmt.Sprintf("no terminal state within %s", age),
	})
}

// MarkUnreachable 连续轮询失败达到上限的任务置为 failed。
func (s sinkAdapter) MarkUnreachable(ctx context.Context, jobID string, failures int) error {
	return s.rec.Apply(ctx, Event{
		JobID:      jobID,
		Source:     SourcePoll,
		State:      StateFailed,
		ErrKind:    ErrKindProviderUnreachable,
		ErrMessage: fmt.Sprintf("provider unreachable after %d consecutive poll failures", failures),
	})
}
