package videogen

import (
	"context"
	"errors"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"go.uber.org/mock/gomock"

	"github.com/mengeric/videogen-orchestrator-go/mocks"
	"github.com/mengeric/videogen-orchestrator-go/provider"
)

// seedWithState 预置一条指定状态的记录。
func seedWithState(t *testing.T, store JobStore, jobID, providerJobID string, state JobState) {
	t.Helper()
	err := store.Create(context.Background(), &JobRecord{
		JobID:         jobID,
		ProviderJobID: providerJobID,
		State:         state,
		LastEventSeq:  1000,
		Model:         "sora-2",
		Size:          "720x1280",
		Seconds:       8,
		CreatedAt:     time.Now(),
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func TestRemix(t *testing.T) {
	Convey("remix should derive a child from a completed parent", t, func() {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		api := mocks.NewMockAPI(ctrl)

		api.EXPECT().
			Remix(gomock.Any(), "video_parent", "make it rain").
			Return(provider.Submission{ProviderJobID: "video_child", Status: provider.StatusQueued}, nil)

		store := newDefaultMemStore()
		d := NewDispatcher(store, provider.NewRegistry(api))
		seedWithState(t, store, "job-parent", "video_parent", StateCompleted)

		child, err := d.Remix(context.Background(), "job-parent", "make it rain")
		So(err, ShouldBeNil)
		So(child.State, ShouldEqual, StateSubmitted)
		So(child.ProviderJobID, ShouldEqual, "video_child")
		So(child.ParentJobID, ShouldEqual, "job-parent")
		// 子任务继承父任务参数
		So(child.Model, ShouldEqual, "sora-2")
		So(child.Size, ShouldEqual, "720x1280")
		So(child.Seconds, ShouldEqual, 8)
	})

	Convey("remix should refuse any parent that is not completed", t, func() {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		api := mocks.NewMockAPI(ctrl)

		store := newDefaultMemStore()
		d := NewDispatcher(store, provider.NewRegistry(api))
		ctx := context.Background()

		for i, state := range []JobState{StatePending, StateSubmitted, StateProcessing, StateFailed, StateExpired} {
			jobID := "job-" + string(state)
			seedWithState(t, store, jobID, "video_"+string(rune('a'+i)), state)
			_, err := d.Remix(ctx, jobID, "again")
			So(errors.Is(err, ErrParentNotReady), ShouldBeTrue)
		}
	})

	Convey("remix of a missing parent should be not found", t, func() {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		api := mocks.NewMockAPI(ctrl)

		d := NewDispatcher(newDefaultMemStore(), provider.NewRegistry(api))
		_, err := d.Remix(context.Background(), "nope", "again")
		So(errors.Is(err, ErrNotFound), ShouldBeTrue)
	})

	Convey("remix with an empty prompt should be invalid", t, func() {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		api := mocks.NewMockAPI(ctrl)

		store := newDefaultMemStore()
		d := NewDispatcher(store, provider.NewRegistry(api))
		seedWithState(t, store, "job-parent", "video_parent", StateCompleted)

		_, err := d.Remix(context.Background(), "job-parent", "  ")
		So(errors.Is(err, ErrInvalidRequest), ShouldBeTrue)
	})
}
