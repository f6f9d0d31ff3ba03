package videogen

import (
	"fmt"
	"time"

	"github.com/mengeric/videogen-orchestrator-go/config"
	"github.com/mengeric/videogen-orchestrator-go/provider"
)

// Options 组件运行参数。
type Options struct {
	ListenAddr        string        // 内置 HTTP 监听地址，如 :8899 或 127.0.0.1:0
	ProviderBaseURL   string        // 上游 API 基础地址
	ProviderAPIKey    string        // 上游鉴权密钥
	WebhookSecret     string        // 回调验签共享密钥，空表示不验签
	PollEvery         time.Duration // 轮询周期
	MaxJobAge         time.Duration // 任务最长存活时间，超时置为 expired
	PollFailureCap    int           // 连续轮询失败上限，达到后任务置为 failed
	RetainTerminalFor time.Duration // 终态记录保留时长；负值关闭清理
	SweepEvery        time.Duration // 终态清理周期
	ArtifactDir       string        // 产物落盘目录，空表示不落盘
}

// withDefaults 填充默认值。
func (o *Options) withDefaults() {
	if o.ListenAddr == "" {
		o.ListenAddr = ":8899"
	}
	if o.PollEvery <= 0 {
		o.PollEvery = 2 * time.Second
	}
	if o.MaxJobAge <= 0 {
		o.MaxJobAge = time.Hour
	}
	if o.PollFailureCap <= 0 {
		o.PollFailureCap = 5
	}
	if o.RetainTerminalFor == 0 {
		o.RetainTerminalFor = 24 * time.Hour
	}
	if o.SweepEvery <= 0 {
		o.SweepEvery = 10 * time.Minute
	}
}

// OptionsFromConfig 由配置文件内容构造 Options。
func OptionsFromConfig(c config.Config) Options {
	return Options{
		ListenAddr:        fmt.Sprintf("%s:%d", c.Host, c.Port),
		ProviderBaseURL:   c.Provider.BaseURL,
		ProviderAPIKey:    c.Provider.APIKey,
		WebhookSecret:     c.Provider.WebhookSecret,
		PollEvery:         time.Duration(c.PollSeconds) * time.Second,
		MaxJobAge:         time.Duration(c.MaxJobAgeMinutes) * time.Minute,
		PollFailureCap:    c.PollFailureCap,
		RetainTerminalFor: time.Duration(c.RetainTerminalHours) * time.Hour,
		ArtifactDir:       c.ArtifactDir,
	}
}

// orchestratorConfig 聚合构造期注入项。
type orchestratorConfig struct {
	opt   Options
	store JobStore
	api   provider.API
	reg   *provider.Registry
}

// Option 构造期可选项。
type Option func(*orchestratorConfig)

// WithOptions 整体设置 Options。
func WithOptions(opt Options) Option {
	return func(c *orchestratorConfig) { c.opt = opt }
}

// WithListenAddr 设置内置 HTTP 监听地址。
func WithListenAddr(addr string) Option {
	return func(c *orchestratorConfig) { c.opt.ListenAddr = addr }
}

// WithProvider 设置上游地址与密钥（构造默认 HTTP 适配器）。
func WithProvider(baseURL, apiKey string) Option {
	return func(c *orchestratorConfig) {
		c.opt.ProviderBaseURL = baseURL
		c.opt.ProviderAPIKey = apiKey
	}
}

// WithProviderAPI 注入上游适配器实现（测试或自定义协议场景）。
func WithProviderAPI(api provider.API) Option {
	return func(c *orchestratorConfig) { c.api = api }
}

// WithRegistry 注入多模型注册表；设置后 WithProviderAPI/WithProvider 仅作为其默认适配器来源。
func WithRegistry(reg *provider.Registry) Option {
	return func(c *orchestratorConfig) { c.reg = reg }
}

// WithStore 注入存储实现（gormstore/sqlitestore 或宿主自定义）。
func WithStore(s JobStore) Option {
	return func(c *orchestratorConfig) { c.store = s }
}

// WithWebhookSecret 设置回调验签密钥。
func WithWebhookSecret(secret string) Option {
	return func(c *orchestratorConfig) { c.opt.WebhookSecret = secret }
}

// WithPollEvery 设置轮询周期。
func WithPollEvery(d time.Duration) Option {
	return func(c *orchestratorConfig) { c.opt.PollEvery = d }
}

// WithMaxJobAge 设置任务最长存活时间。
func WithMaxJobAge(d time.Duration) Option {
	return func(c *orchestratorConfig) { c.opt.MaxJobAge = d }
}

// WithPollFailureCap 设置连续轮询失败上限。
func WithPollFailureCap(n int) Option {
	return func(c *orchestratorConfig) { c.opt.PollFailureCap = n }
}

// WithRetention 设置终态记录保留时长与清理周期。
func WithRetention(keep, sweepEvery time.Duration) Option {
	return func(c *orchestratorConfig) {
		c.opt.RetainTerminalFor = keep
		c.opt.SweepEvery = sweepEvery
	}
}

// WithArtifactDir 设置产物落盘目录。
func WithArtifactDir(dir string) Option {
	return func(c *orchestratorConfig) { c.opt.ArtifactDir = dir }
}
