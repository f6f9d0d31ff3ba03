package videogen

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/mengeric/videogen-orchestrator-go/logging"
	"github.com/mengeric/videogen-orchestrator-go/provider"
)

// ArtifactResolver 产物解析器：按需从上游拉取产物内容并做进程内缓存。
type ArtifactResolver struct {
	store JobStore
	reg   *provider.Registry
	dir   string // 非空时产物落盘

	mu    sync.Mutex
	cache map[string][]byte // key: kind:providerJobID
}

// NewArtifactResolver 构造。dir 为空表示不落盘。
func NewArtifactResolver(store JobStore, reg *provider.Registry, dir string) *ArtifactResolver {
	return &ArtifactResolver{store: store, reg: reg, dir: dir, cache: map[string][]byte{}}
}

// Resolve 获取任务产物内容。
// 功能：仅 completed 任务可获取；kind 必须合法；同一产物在进程生命周期内只拉取一次。
// 并发未命中时允许重复拉取，缓存以后写入者为准。
// 返回：产物字节与 MIME 类型；任务未完成返回 ErrNotReady，kind 非法返回 ErrUnknownKind。
func (a *ArtifactResolver) Resolve(ctx context.Context, jobID string, kind provider.ArtifactKind) ([]byte, string, error) {
	if !kind.Valid() {
		return nil, "", fmt.Errorf("%w: %q", ErrUnknownKind, string(kind))
	}
	rec, err := a.store.Get(ctx, jobID)
	if err != nil {
		return nil, "", err
	}
	if rec.State != StateCompleted {
		return nil, "", fmt.Errorf("%w: job %s is %s", ErrNotReady, jobID, rec.State)
	}

	key := provider.ArtifactRef{Kind: kind, ProviderJobID: rec.ProviderJobID}.String()
	a.mu.Lock()
	b, hit := a.cache[key]
	a.mu.Unlock()
	if hit {
		return b, kind.ContentType(), nil
	}

	api, ok := a.reg.Resolve(rec.Model)
	if !ok {
		return nil, "", fmt.Errorf("no adapter for model %q", rec.Model)
	}
	b, err = api.FetchArtifact(ctx, rec.ProviderJobID, kind)
	if err != nil {
		return nil, "", err
	}
	a.mu.Lock()
	a.cache[key] = b
	a.mu.Unlock()

	if a.dir != "" {
		if werr := a.writeFile(rec.ProviderJobID, kind, b); werr != nil {
			logging.L().Warnf(ctx, "artifact: write file failed: job_id=%s kind=%s err=%v", jobID, kind, werr)
		}
	}
	return b, kind.ContentType(), nil
}

// Evict 移除任务的全部缓存产物（删除任务时调用）。
func (a *ArtifactResolver) Evict(providerJobID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, k := range provider.Kinds() {
		delete(a.cache, provider.ArtifactRef{Kind: k, ProviderJobID: providerJobID}.String())
	}
}

// writeFile 将产物写入输出目录，文件命名与上游下载工具约定一致。
func (a *ArtifactResolver) writeFile(providerJobID string, kind provider.ArtifactKind, b []byte) error {
	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(a.dir, kind.Filename(providerJobID)), b, 0o644)
}
