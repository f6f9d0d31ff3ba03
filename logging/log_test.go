package logging

import (
	"context"
	"fmt"
	"log/slog"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

// recordLogger 记录调用内容的测试替身。
type recordLogger struct{ lines []string }

func (r *recordLogger) Info(ctx context.Context, msg string, args ...any)  { r.add("INFO", msg) }
func (r *recordLogger) Warn(ctx context.Context, msg string, args ...any)  { r.add("WARN", msg) }
func (r *recordLogger) Error(ctx context.Context, msg string, args ...any) { r.add("ERROR", msg) }
func (r *recordLogger) Debug(ctx context.Context, msg string, args ...any) { r.add("DEBUG", msg) }
func (r *recordLogger) Infof(ctx context.Context, format string, args ...any) {
	r.add("INFO", fmt.Sprintf(format, args...))
}
func (r *recordLogger) Warnf(ctx context.Context, format string, args ...any) {
	r.add("WARN", fmt.Sprintf(format, args...))
}
func (r *recordLogger) Errorf(ctx context.Context, format string, args ...any) {
	r.add("ERROR", fmt.Sprintf(format, args...))
}
func (r *recordLogger) Debugf(ctx context.Context, format string, args ...any) {
	r.add("DEBUG", fmt.Sprintf(format, args...))
}
func (r *recordLogger) With(args ...any) Logger { return r }

func (r *recordLogger) add(level, msg string) { r.lines = append(r.lines, level+" "+msg) }

func TestGlobalLogger(t *testing.T) {
	Convey("SetGlobal should swap the logger used by L", t, func() {
		prev := L()
		defer SetGlobal(prev)

		rec := &recordLogger{}
		SetGlobal(rec)
		ctx := context.Background()

		L().Infof(ctx, "job %s submitted", "job-a")
		L().Warn(ctx, "poll failed", "job_id", "job-a")

		So(len(rec.lines), ShouldEqual, 2)
		So(rec.lines[0], ShouldEqual, "INFO job job-a submitted")
		So(rec.lines[1], ShouldEqual, "WARN poll failed")

		// nil 注入被忽略，保持现有日志器
		SetGlobal(nil)
		So(L(), ShouldEqual, rec)
	})
}

func TestSlogLogger(t *testing.T) {
	Convey("slog logger should handle all levels without panic", t, func() {
		lg := NewSlogLogger()
		lg.SetLevel(slog.LevelDebug)
		ctx := context.Background()

		So(func() {
			lg.Debug(ctx, "debug message", "k", "v")
			lg.Infof(ctx, "info %d", 1)
			lg.Warnf(ctx, "warn %s", "x")
			lg.Error(ctx, "error message")
			lg.With("job_id", "job-a").Info(ctx, "with fields")
		}, ShouldNotPanic)
	})
}
