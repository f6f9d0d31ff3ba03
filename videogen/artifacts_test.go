package videogen

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"go.uber.org/mock/gomock"

	"github.com/mengeric/videogen-orchestrator-go/mocks"
	"github.com/mengeric/videogen-orchestrator-go/provider"
)

func TestArtifactResolver(t *testing.T) {
	Convey("a completed job's artifact should be fetched once and cached", t, func() {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		api := mocks.NewMockAPI(ctrl)

		// 两次 Resolve 只允许一次上游拉取
		api.EXPECT().
			FetchArtifact(gomock.Any(), "video_1", provider.ArtifactVideo).
			Return([]byte("mp4-bytes"), nil).
			Times(1)

		store := newDefaultMemStore()
		seedWithState(t, store, "job-a", "video_1", StateCompleted)
		a := NewArtifactResolver(store, provider.NewRegistry(api), "")
		ctx := context.Background()

		b, ctype, err := a.Resolve(ctx, "job-a", provider.ArtifactVideo)
		So(err, ShouldBeNil)
		So(string(b), ShouldEqual, "mp4-bytes")
		So(ctype, ShouldEqual, "video/mp4")

		b, _, err = a.Resolve(ctx, "job-a", provider.ArtifactVideo)
		So(err, ShouldBeNil)
		So(string(b), ShouldEqual, "mp4-bytes")
	})

	Convey("eviction should force a fresh fetch", t, func() {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		api := mocks.NewMockAPI(ctrl)

		api.EXPECT().
			FetchArtifact(gomock.Any(), "video_1", provider.ArtifactThumbnail).
			Return([]byte("jpg-bytes"), nil).
			Times(2)

		store := newDefaultMemStore()
		seedWithState(t, store, "job-a", "video_1", StateCompleted)
		a := NewArtifactResolver(store, provider.NewRegistry(api), "")
		ctx := context.Background()

		_, _, err := a.Resolve(ctx, "job-a", provider.ArtifactThumbnail)
		So(err, ShouldBeNil)
		a.Evict("video_1")
		_, _, err = a.Resolve(ctx, "job-a", provider.ArtifactThumbnail)
		So(err, ShouldBeNil)
	})

	Convey("artifacts should be refused until the job completes", t, func() {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		api := mocks.NewMockAPI(ctrl)

		store := newDefaultMemStore()
		seedWithState(t, store, "job-a", "video_1", StateProcessing)
		a := NewArtifactResolver(store, provider.NewRegistry(api), "")

		_, _, err := a.Resolve(context.Background(), "job-a", provider.ArtifactVideo)
		So(errors.Is(err, ErrNotReady), ShouldBeTrue)
	})

	Convey("unknown kinds and unknown jobs should be rejected", t, func() {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		api := mocks.NewMockAPI(ctrl)

		store := newDefaultMemStore()
		seedWithState(t, store, "job-a", "video_1", StateCompleted)
		a := NewArtifactResolver(store, provider.NewRegistry(api), "")
		ctx := context.Background()

		_, _, err := a.Resolve(ctx, "job-a", provider.ArtifactKind("gif"))
		So(errors.Is(err, ErrUnknownKind), ShouldBeTrue)

		_, _, err = a.Resolve(ctx, "nope", provider.ArtifactVideo)
		So(errors.Is(err, ErrNotFound), ShouldBeTrue)
	})

	Convey("with an output directory the artifact should also land on disk", t, func() {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		api := mocks.NewMockAPI(ctrl)

		api.EXPECT().
			FetchArtifact(gomock.Any(), "video_1", provider.ArtifactVideo).
			Return([]byte("mp4-bytes"), nil)

		dir := t.TempDir()
		store := newDefaultMemStore()
		seedWithState(t, store, "job-a", "video_1", StateCompleted)
		a := NewArtifactResolver(store, provider.NewRegistry(api), dir)

		_, _, err := a.Resolve(context.Background(), "job-a", provider.ArtifactVideo)
		So(err, ShouldBeNil)

		b, err := os.ReadFile(filepath.Join(dir, "video_1.mp4"))
		So(err, ShouldBeNil)
		So(string(b), ShouldEqual, "mp4-bytes")
	})
}
