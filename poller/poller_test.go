package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/mengeric/videogen-orchestrator-go/provider"
	"github.com/mengeric/videogen-orchestrator-go/tracker"
)

// fakeLister 固定返回一批活跃任务，可被 sink 清空模拟任务到达终态。
type fakeLister struct {
	mu    sync.Mutex
	items []Active
}

func (f *fakeLister) ListActive(ctx context.Context) ([]Active, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Active, len(f.items))
	copy(out, f.items)
	return out, nil
}

func (f *fakeLister) set(items []Active) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = items
}

// fakeFetcher 固定返回快照或错误并计数。
type fakeFetcher struct {
	mu    sync.Mutex
	snap  provider.StatusSnapshot
	err   error
	calls int
}

func (f *fakeFetcher) FetchStatus(ctx context.Context, model, providerJobID string) (provider.StatusSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.snap, f.err
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeSink 记录各类结论；终态结论会把任务从 lister 摘除，模拟真实对账链路。
type fakeSink struct {
	mu          sync.Mutex
	lister      *fakeLister
	applied     int
	expired     int
	unreachable int
	lastFails   int
}

func (f *fakeSink) ApplySnapshot(ctx context.Context, jobID string, snap provider.StatusSnapshot) error {
	f.mu.Lock()
	f.applied++
	f.mu.Unlock()
	if snap.Status.IsTerminal() {
		f.lister.set(nil)
	}
	return nil
}

func (f *fakeSink) Expire(ctx context.Context, jobID string, age time.Duration) error {
	f.mu.Lock()
	f.expired++
	f.mu.Unlock()
	f.lister.set(nil)
	return nil
}

func (f *fakeSink) MarkUnreachable(ctx context.Context, jobID string, failures int) error {
	f.mu.Lock()
	f.unreachable++
	f.lastFails = failures
	f.mu.Unlock()
	f.lister.set(nil)
	return nil
}

func (f *fakeSink) counts() (applied, expired, unreachable, lastFails int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.applied, f.expired, f.unreachable, f.lastFails
}

func TestPollerAppliesSnapshots(t *testing.T) {
	Convey("poller should fetch due jobs and forward terminal snapshots once", t, func() {
		lister := &fakeLister{items: []Active{{JobID: "job-a", ProviderJobID: "video_1", Model: "sora-2", CreatedAt: time.Now()}}}
		fetcher := &fakeFetcher{snap: provider.StatusSnapshot{ProviderJobID: "video_1", Status: provider.StatusCompleted, Progress: 100}}
		sink := &fakeSink{lister: lister}
		p := New(lister, fetcher, sink, tracker.NewManager(time.Millisecond), Options{Every: 10 * time.Millisecond, MaxJobAge: time.Hour, FailureCap: 5})

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		p.Start(ctx)
		time.Sleep(120 * time.Millisecond)

		applied, expired, unreachable, _ := sink.counts()
		So(applied, ShouldEqual, 1)
		So(fetcher.callCount(), ShouldEqual, 1)
		So(expired, ShouldEqual, 0)
		So(unreachable, ShouldEqual, 0)
	})

	Convey("poller should keep polling a job that is still in progress", t, func() {
		lister := &fakeLister{items: []Active{{JobID: "job-a", ProviderJobID: "video_1", Model: "sora-2", CreatedAt: time.Now()}}}
		fetcher := &fakeFetcher{snap: provider.StatusSnapshot{ProviderJobID: "video_1", Status: provider.StatusInProgress, Progress: 42}}
		sink := &fakeSink{lister: lister}
		p := New(lister, fetcher, sink, tracker.NewManager(time.Millisecond), Options{Every: 10 * time.Millisecond, MaxJobAge: time.Hour, FailureCap: 5})

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		p.Start(ctx)
		time.Sleep(120 * time.Millisecond)

		applied, _, _, _ := sink.counts()
		So(applied, ShouldBeGreaterThanOrEqualTo, 2)
	})
}

func TestPollerMarksUnreachable(t *testing.T) {
	Convey("consecutive fetch failures should trip the unreachable cap", t, func() {
		lister := &fakeLister{items: []Active{{JobID: "job-a", ProviderJobID: "video_1", Model: "sora-2", CreatedAt: time.Now()}}}
		fetcher := &fakeFetcher{err: errors.New("dial tcp: connection refused")}
		sink := &fakeSink{lister: lister}
		p := New(lister, fetcher, sink, tracker.NewManager(time.Millisecond), Options{Every: 10 * time.Millisecond, MaxJobAge: time.Hour, FailureCap: 2})

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		p.Start(ctx)
		time.Sleep(150 * time.Millisecond)

		applied, _, unreachable, lastFails := sink.counts()
		So(unreachable, ShouldEqual, 1)
		So(lastFails, ShouldEqual, 2)
		So(applied, ShouldEqual, 0)
	})
}

func TestPollerExpiresOldJobs(t *testing.T) {
	Convey("jobs older than MaxJobAge should expire without hitting the provider", t, func() {
		lister := &fakeLister{items: []Active{{JobID: "job-a", ProviderJobID: "video_1", Model: "sora-2", CreatedAt: time.Now().Add(-2 * time.Hour)}}}
		fetcher := &fakeFetcher{snap: provider.StatusSnapshot{Status: provider.StatusInProgress}}
		sink := &fakeSink{lister: lister}
		p := New(lister, fetcher, sink, tracker.NewManager(time.Millisecond), Options{Every: 10 * time.Millisecond, MaxJobAge: time.Hour, FailureCap: 5})

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		p.Start(ctx)
		time.Sleep(120 * time.Millisecond)

		_, expired, _, _ := sink.counts()
		So(expired, ShouldEqual, 1)
		So(fetcher.callCount(), ShouldEqual, 0)
	})
}
