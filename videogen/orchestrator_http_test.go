package videogen

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/mengeric/videogen-orchestrator-go/provider"
)

// fakeProvider 模拟上游视频生成服务：POST /videos 建任务，
// 各任务的查询状态由测试预先写入 status。
type fakeProvider struct {
	mu     sync.Mutex
	nextID int
	status map[string]map[string]any // provider_job_id -> 查询返回体
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{status: map[string]map[string]any{}}
}

func (f *fakeProvider) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/videos", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.nextID++
		id := "video_" + string(rune('0'+f.nextID))
		// 新任务默认直接完成，测试可覆盖
		if _, ok := f.status[id]; !ok {
			f.status[id] = map[string]any{"id": id, "object": "video", "status": "completed", "progress": 100, "model": "sora-2", "size": "1280x720", "seconds": "4", "created_at": time.Now().Unix(), "completed_at": time.Now().Unix()}
		}
		f.mu.Unlock()
		writeJSON(w, map[string]any{"id": id, "object": "video", "status": "queued", "progress": 0, "model": "sora-2", "size": "1280x720", "seconds": "4", "created_at": time.Now().Unix()})
	})
	mux.HandleFunc("/videos/", func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/videos/")
		switch {
		case r.Method == http.MethodGet && strings.HasSuffix(rest, "/content"):
			id := strings.TrimSuffix(rest, "/content")
			switch r.URL.Query().Get("variant") {
			case "thumbnail":
				w.Header().Set("Content-Type", "image/jpeg")
				w.Write([]byte("jpg-bytes-" + id))
			case "spritesheet":
				w.Header().Set("Content-Type", "image/png")
				w.Write([]byte("png-bytes-" + id))
			default:
				w.Header().Set("Content-Type", "video/mp4")
				w.Write([]byte("mp4-bytes-" + id))
			}
		case r.Method == http.MethodPost && strings.HasSuffix(rest, "/remix"):
			f.mu.Lock()
			f.nextID++
			id := "video_" + string(rune('0'+f.nextID))
			// remix 产生的任务保持生成中
			f.status[id] = map[string]any{"id": id, "object": "video", "status": "in_progress", "progress": 10, "model": "sora-2", "size": "1280x720", "seconds": "4", "created_at": time.Now().Unix()}
			f.mu.Unlock()
			writeJSON(w, map[string]any{"id": id, "object": "video", "status": "queued", "progress": 0, "model": "sora-2", "size": "1280x720", "seconds": "4", "created_at": time.Now().Unix()})
		case r.Method == http.MethodDelete:
			writeJSON(w, map[string]any{"id": rest, "object": "video.deleted", "deleted": true})
		default:
			f.mu.Lock()
			body, ok := f.status[rest]
			f.mu.Unlock()
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				writeJSON(w, map[string]any{"error": map[string]any{"code": "not_found", "message": "video not found"}})
				return
			}
			writeJSON(w, body)
		}
	})
	return mux
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// postJSON 发送 JSON 请求并解析 jobView 响应。
func postJSON(t *testing.T, url string, body any) (*http.Response, jobView) {
	t.Helper()
	b, _ := json.Marshal(body)
	resp, err := http.Post(url, "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	defer resp.Body.Close()
	var view jobView
	raw, _ := io.ReadAll(resp.Body)
	_ = json.Unmarshal(raw, &view)
	return resp, view
}

func getJob(t *testing.T, base, jobID string) (int, jobView) {
	t.Helper()
	resp, err := http.Get(base + "/api/videos/" + jobID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	defer resp.Body.Close()
	var view jobView
	_ = json.NewDecoder(resp.Body).Decode(&view)
	return resp.StatusCode, view
}

func TestOrchestratorHTTPFlow(t *testing.T) {
	Convey("create, poll to completion, fetch content, remix and delete over HTTP", t, func() {
		fake := newFakeProvider()
		upstream := httptest.NewServer(fake.handler())
		defer upstream.Close()

		o := New(
			WithListenAddr("127.0.0.1:0"),
			WithProvider(upstream.URL, "test-key"),
			WithPollEvery(10*time.Millisecond),
			WithMaxJobAge(time.Hour),
		)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		o.Start(ctx)
		time.Sleep(50 * time.Millisecond)
		base := "http://" + o.Addr()

		// 创建任务：响应即为 submitted
		resp, created := postJSON(t, base+"/api/videos", map[string]any{"prompt": "a cat surfing at sunset"})
		So(resp.StatusCode, ShouldEqual, 200)
		So(created.State, ShouldEqual, string(StateSubmitted))
		So(created.JobID, ShouldNotBeEmpty)

		// 轮询将任务推进到 completed
		time.Sleep(150 * time.Millisecond)
		code, view := getJob(t, base, created.JobID)
		So(code, ShouldEqual, 200)
		So(view.State, ShouldEqual, string(StateCompleted))
		So(view.Progress, ShouldEqual, 100)
		So(view.VideoURL, ShouldNotBeEmpty)

		// 拉取产物
		cresp, err := http.Get(base + view.VideoURL)
		So(err, ShouldBeNil)
		So(cresp.StatusCode, ShouldEqual, 200)
		So(cresp.Header.Get("Content-Type"), ShouldStartWith, "video/mp4")
		cb, _ := io.ReadAll(cresp.Body)
		cresp.Body.Close()
		So(string(cb), ShouldStartWith, "mp4-bytes-")

		// 非法产物类型
		bad, err := http.Get(base + "/api/videos/" + created.JobID + "/content/gif")
		So(err, ShouldBeNil)
		So(bad.StatusCode, ShouldEqual, 400)
		bad.Body.Close()

		// 基于完成任务 remix
		resp, child := postJSON(t, base+"/api/videos/"+created.JobID+"/remix", map[string]any{"prompt": "make it rain"})
		So(resp.StatusCode, ShouldEqual, 200)
		So(child.State, ShouldEqual, string(StateSubmitted))
		So(child.ParentJobID, ShouldEqual, created.JobID)

		// 子任务尚未完成，不能再次 remix
		resp, _ = postJSON(t, base+"/api/videos/"+child.JobID+"/remix", map[string]any{"prompt": "again"})
		So(resp.StatusCode, ShouldEqual, 409)

		// 列表过滤
		lresp, err := http.Get(base + "/api/videos?state=completed")
		So(err, ShouldBeNil)
		So(lresp.StatusCode, ShouldEqual, 200)
		var listing struct {
			Videos []jobView `json:"videos"`
			Count  int       `json:"count"`
		}
		So(json.NewDecoder(lresp.Body).Decode(&listing), ShouldBeNil)
		lresp.Body.Close()
		So(listing.Count, ShouldEqual, 1)
		So(listing.Videos[0].JobID, ShouldEqual, created.JobID)

		// 删除子任务
		dreq, _ := http.NewRequest(http.MethodDelete, base+"/api/videos/"+child.JobID, nil)
		dresp, err := http.DefaultClient.Do(dreq)
		So(err, ShouldBeNil)
		So(dresp.StatusCode, ShouldEqual, 200)
		dresp.Body.Close()
		code, _ = getJob(t, base, child.JobID)
		So(code, ShouldEqual, 404)

		// 未知任务
		code, _ = getJob(t, base, "nope")
		So(code, ShouldEqual, 404)

		// 健康检查
		hresp, err := http.Get(base + "/healthz")
		So(err, ShouldBeNil)
		So(hresp.StatusCode, ShouldEqual, 200)
		hresp.Body.Close()
	})
}

func TestOrchestratorWebhookEndpoint(t *testing.T) {
	Convey("webhook delivery should be verified and reconciled", t, func() {
		fake := newFakeProvider()
		upstream := httptest.NewServer(fake.handler())
		defer upstream.Close()

		store := newDefaultMemStore()
		o := New(
			WithListenAddr("127.0.0.1:0"),
			WithProvider(upstream.URL, "test-key"),
			WithStore(store),
			WithWebhookSecret("whsec_test"),
			// 轮询间隔拉长，状态推进只来自回调
			WithPollEvery(time.Hour),
		)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		o.Start(ctx)
		time.Sleep(50 * time.Millisecond)
		base := "http://" + o.Addr()

		resp, created := postJSON(t, base+"/api/videos", map[string]any{"prompt": "a dog in space"})
		So(resp.StatusCode, ShouldEqual, 200)
		pid := mustProviderID(t, store, created.JobID)

		env := provider.WebhookEnvelope{ID: "evt_1", Object: "event", CreatedAt: time.Now().Unix(), Type: provider.WebhookVideoProcessing, Data: provider.WebhookData{ID: pid, Progress: 77}}
		body, _ := json.Marshal(env)

		// 错误签名拒收
		req, _ := http.NewRequest(http.MethodPost, base+"/api/webhooks/video", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(WebhookSignatureHeader, sign("whsec_wrong", body))
		wresp, err := http.DefaultClient.Do(req)
		So(err, ShouldBeNil)
		So(wresp.StatusCode, ShouldEqual, 401)
		wresp.Body.Close()

		code, view := getJob(t, base, created.JobID)
		So(code, ShouldEqual, 200)
		So(view.State, ShouldEqual, string(StateSubmitted))

		// 正确签名推进状态
		req, _ = http.NewRequest(http.MethodPost, base+"/api/webhooks/video", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(WebhookSignatureHeader, sign("whsec_test", body))
		wresp, err = http.DefaultClient.Do(req)
		So(err, ShouldBeNil)
		So(wresp.StatusCode, ShouldEqual, 200)
		wresp.Body.Close()

		code, view = getJob(t, base, created.JobID)
		So(code, ShouldEqual, 200)
		So(view.State, ShouldEqual, string(StateProcessing))
		So(view.Progress, ShouldEqual, 77)

		// 未知事件类型照常 2xx，不影响状态
		odd := provider.WebhookEnvelope{ID: "evt_2", Object: "event", CreatedAt: time.Now().Unix(), Type: "video.preview", Data: provider.WebhookData{ID: pid}}
		obody, _ := json.Marshal(odd)
		req, _ = http.NewRequest(http.MethodPost, base+"/api/webhooks/video", bytes.NewReader(obody))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(WebhookSignatureHeader, sign("whsec_test", obody))
		wresp, err = http.DefaultClient.Do(req)
		So(err, ShouldBeNil)
		So(wresp.StatusCode, ShouldEqual, 200)
		wresp.Body.Close()

		code, view = getJob(t, base, created.JobID)
		So(code, ShouldEqual, 200)
		So(view.State, ShouldEqual, string(StateProcessing))
	})
}

// mustProviderID 读取记录的上游任务ID。
func mustProviderID(t *testing.T, store JobStore, jobID string) string {
	t.Helper()
	rec, err := store.Get(context.Background(), jobID)
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if rec.ProviderJobID == "" {
		t.Fatalf("job %s has no provider id", jobID)
	}
	return rec.ProviderJobID
}
