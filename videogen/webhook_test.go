package videogen

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/mengeric/videogen-orchestrator-go/provider"
)

// sign 按上游签名算法计算请求体签名。
func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestWebhookVerify(t *testing.T) {
	Convey("signature verification should accept only the right secret", t, func() {
		wi := NewWebhookIngestor("whsec_test", nil)
		body := []byte(`{"id":"evt_1","type":"video.completed"}`)

		So(wi.Verify(body, sign("whsec_test", body)), ShouldBeTrue)
		So(wi.Verify(body, "sha256="+sign("whsec_test", body)), ShouldBeTrue)
		So(wi.Verify(body, sign("whsec_other", body)), ShouldBeFalse)
		So(wi.Verify(body, ""), ShouldBeFalse)
		So(wi.Verify([]byte(`{"id":"evt_1","type":"video.failed"}`), sign("whsec_test", body)), ShouldBeFalse)
	})

	Convey("an empty secret should skip verification", t, func() {
		wi := NewWebhookIngestor("", nil)
		So(wi.Verify([]byte("anything"), ""), ShouldBeTrue)
	})
}

func TestWebhookIngest(t *testing.T) {
	Convey("callbacks should flow through reconciliation", t, func() {
		store := newDefaultMemStore()
		wi := NewWebhookIngestor("", NewReconciler(store))
		ctx := context.Background()
		seedSubmitted(t, store, "job-a", "video_1")

		env := provider.WebhookEnvelope{
			ID:   "evt_1",
			Type: provider.WebhookVideoProcessing,
			Data: provider.WebhookData{ID: "video_1", Progress: 66},
		}
		So(wi.Ingest(ctx, env), ShouldBeNil)

		got, err := store.Get(ctx, "job-a")
		So(err, ShouldBeNil)
		So(got.State, ShouldEqual, StateProcessing)
		So(got.Progress, ShouldEqual, 66)

		// 重复投递同一事件不改变记录
		So(wi.Ingest(ctx, env), ShouldBeNil)
		got, err = store.Get(ctx, "job-a")
		So(err, ShouldBeNil)
		So(got.LastEventSeq, ShouldEqual, 2066)

		done := provider.WebhookEnvelope{
			ID:   "evt_2",
			Type: provider.WebhookVideoCompleted,
			Data: provider.WebhookData{ID: "video_1", Progress: 100},
		}
		So(wi.Ingest(ctx, done), ShouldBeNil)
		got, err = store.Get(ctx, "job-a")
		So(err, ShouldBeNil)
		So(got.State, ShouldEqual, StateCompleted)
		So(got.ArtifactRefs, ShouldResemble, []string{"video:video_1", "thumbnail:video_1", "spritesheet:video_1"})
	})

	Convey("unknown event types should be ignored", t, func() {
		store := newDefaultMemStore()
		wi := NewWebhookIngestor("", NewReconciler(store))
		ctx := context.Background()
		seedSubmitted(t, store, "job-a", "video_1")

		env := provider.WebhookEnvelope{ID: "evt_1", Type: "video.preview", Data: provider.WebhookData{ID: "video_1"}}
		So(wi.Ingest(ctx, env), ShouldBeNil)

		got, err := store.Get(ctx, "job-a")
		So(err, ShouldBeNil)
		So(got.State, ShouldEqual, StateSubmitted)
	})
}
