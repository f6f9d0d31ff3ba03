package poller

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/mengeric/videogen-orchestrator-go/logging"
)

// sweeper 清理终态记录的最小存储依赖。
type sweeper interface {
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Janitor 周期性清理超过保留期的终态任务记录。
type Janitor struct {
	store   sweeper
	keep    time.Duration
	every   time.Duration
	running atomic.Bool
}

// NewJanitor 构造清理器；keep<=0 表示关闭清理，every<=0 时取 10 分钟。
func NewJanitor(store sweeper, keep, every time.Duration) *Janitor {
	if every <= 0 {
		every = 10 * time.Minute
	}
	return &Janitor{store: store, keep: keep, every: every}
}

// Start 启动后台清理协程，ctx 取消即退出；重复调用只生效一次。
func (j *Janitor) Start(ctx context.Context) {
	if j.keep <= 0 {
		return
	}
	if j.running.Swap(true) {
		return
	}
	ticker := time.NewTicker(j.every)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := j.store.DeleteTerminalBefore(ctx, time.Now().Add(-j.keep))
				if err != nil {
					logging.L().Warnf(ctx, "janitor: sweep failed: %v", err)
					continue
				}
				if n > 0 {
					logging.L().Infof(ctx, "janitor: removed %d terminal jobs", n)
				}
			}
		}
	}()
}
