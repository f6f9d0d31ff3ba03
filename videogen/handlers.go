package videogen

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/mengeric/videogen-orchestrator-go/logging"
	"github.com/mengeric/videogen-orchestrator-go/metrics"
	"github.com/mengeric/videogen-orchestrator-go/provider"
)

// registerHandlers 挂载组件 HTTP 路由。
// 端点：POST/GET /api/videos、GET /api/videos/:id、POST /api/videos/:id/remix、
// GET /api/videos/:id/content/:kind、DELETE /api/videos/:id、POST /api/webhooks/video、GET /healthz
func (o *Orchestrator) registerHandlers(e *echo.Echo) {
	api := e.Group("/api")
	api.POST("/videos", o.handleCreate)
	api.GET("/videos", o.handleList)
	api.GET("/videos/:id", o.handleGet)
	api.POST("/videos/:id/remix", o.handleRemix)
	api.GET("/videos/:id/content/:kind", o.handleContent)
	api.DELETE("/videos/:id", o.handleDelete)
	api.POST("/webhooks/video", o.handleWebhook)
	e.GET("/healthz", o.handleHealth)
}

// jobView 对外返回的任务视图。
type jobView struct {
	JobID          string    `json:"job_id"`
	State          string    `json:"state"`
	Progress       int       `json:"progress"`
	Model          string    `json:"model"`
	Size           string    `json:"size"`
	Seconds        int       `json:"seconds"`
	ParentJobID    string    `json:"parent_job_id,omitempty"`
	Error          *JobError `json:"error,omitempty"`
	VideoURL       string    `json:"video_url,omitempty"`
	ThumbnailURL   string    `json:"thumbnail_url,omitempty"`
	SpritesheetURL string    `json:"spritesheet_url,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// toView 由记录构造视图；completed 任务附加产物下载地址。
func toView(r *JobRecord) jobView {
	v := jobView{
		JobID:       r.JobID,
		State:       string(r.State),
		Progress:    r.Progress,
		Model:       r.Model,
		Size:        r.Size,
		Seconds:     r.Seconds,
		ParentJobID: r.ParentJobID,
		Error:       r.Error,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if r.State == StateCompleted {
		base := "/api/videos/" + r.JobID + "/content/"
		v.VideoURL = base + string(provider.ArtifactVideo)
		v.ThumbnailURL = base + string(provider.ArtifactThumbnail)
		v.SpritesheetURL = base + string(provider.ArtifactSpritesheet)
	}
	return v
}

// handleCreate 创建生成任务。
func (o *Orchestrator) handleCreate(c echo.Context) error {
	var req GenerationRequest
	if err := c.Bind(&req); err != nil {
		return writeErr(c, http.StatusBadRequest, err)
	}
	rec, err := o.dsp.Dispatch(c.Request().Context(), req)
	if err != nil {
		if errors.Is(err, ErrInvalidRequest) {
			return writeErr(c, http.StatusBadRequest, err)
		}
		return writeErr(c, http.StatusInternalServerError, err)
	}
	return c.JSON(http.StatusOK, toView(rec))
}

// handleList 列出任务（state、limit 查询参数可选）。
func (o *Orchestrator) handleList(c echo.Context) error {
	ctx := c.Request().Context()
	limit := 50
	if s := c.QueryParam("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			limit = n
		}
	}
	var (
		recs []JobRecord
		err  error
	)
	if st := c.QueryParam("state"); st != "" {
		recs, err = o.store.ListByState(ctx, JobState(st), limit)
	} else {
		recs, err = o.store.ListRecent(ctx, limit)
	}
	if err != nil {
		return writeErr(c, http.StatusInternalServerError, err)
	}
	out := make([]jobView, 0, len(recs))
	for i := range recs {
		out = append(out, toView(&recs[i]))
	}
	return c.JSON(http.StatusOK, map[string]any{"videos": out, "count": len(out)})
}

// handleGet 查询单个任务。
func (o *Orchestrator) handleGet(c echo.Context) error {
	rec, err := o.store.Get(c.Request().Context(), c.Param("id"))
	if errors.Is(err, ErrNotFound) {
		return writeErr(c, http.StatusNotFound, err)
	}
	if err != nil {
		return writeErr(c, http.StatusInternalServerError, err)
	}
	return c.JSON(http.StatusOK, toView(rec))
}

// remixReq Remix 请求体。
type remixReq struct {
	Prompt string `json:"prompt"`
}

// handleRemix 基于已完成任务创建改写任务。
func (o *Orchestrator) handleRemix(c echo.Context) error {
	var req remixReq
	if err := c.Bind(&req); err != nil {
		return writeErr(c, http.StatusBadRequest, err)
	}
	rec, err := o.dsp.Remix(c.Request().Context(), c.Param("id"), req.Prompt)
	switch {
	case errors.Is(err, ErrNotFound):
		return writeErr(c, http.StatusNotFound, err)
	case errors.Is(err, ErrParentNotReady):
		return writeErr(c, http.StatusConflict, err)
	case errors.Is(err, ErrInvalidRequest):
		return writeErr(c, http.StatusBadRequest, err)
	case err != nil:
		return writeErr(c, http.StatusInternalServerError, err)
	}
	return c.JSON(http.StatusOK, toView(rec))
}

// handleContent 下载产物内容。
func (o *Orchestrator) handleContent(c echo.Context) error {
	kind := provider.ArtifactKind(c.Param("kind"))
	b, ctype, err := o.art.Resolve(c.Request().Context(), c.Param("id"), kind)
	switch {
	case errors.Is(err, ErrUnknownKind):
		return writeErr(c, http.StatusBadRequest, err)
	case errors.Is(err, ErrNotFound):
		return writeErr(c, http.StatusNotFound, err)
	case errors.Is(err, ErrNotReady):
		return writeErr(c, http.StatusConflict, err)
	case err != nil:
		return writeErr(c, http.StatusBadGateway, err)
	}
	return c.Blob(http.StatusOK, ctype, b)
}

// handleDelete 删除任务；上游删除尽力而为，失败只记日志。
func (o *Orchestrator) handleDelete(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")
	rec, err := o.store.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return writeErr(c, http.StatusNotFound, err)
	}
	if err != nil {
		return writeErr(c, http.StatusInternalServerError, err)
	}
	if rec.ProviderJobID != "" {
		if api, ok := o.reg.Resolve(rec.Model); ok {
			if derr := api.Delete(ctx, rec.ProviderJobID); derr != nil {
				logging.L().Warnf(ctx, "delete: provider delete failed: job_id=%s err=%v", id, derr)
			}
		}
		o.art.Evict(rec.ProviderJobID)
	}
	if err := o.store.Delete(ctx, id); err != nil {
		return writeErr(c, http.StatusInternalServerError, err)
	}
	o.trk.Forget(id)
	logging.L().Infof(ctx, "delete: job removed: job_id=%s", id)
	return c.JSON(http.StatusOK, map[string]any{"deleted": id})
}

// handleWebhook 接收上游回调：验签失败一律 401，不触碰任何状态。
func (o *Orchestrator) handleWebhook(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return writeErr(c, http.StatusBadRequest, err)
	}
	if !o.ing.Verify(body, c.Request().Header.Get(WebhookSignatureHeader)) {
		return writeErr(c, http.StatusUnauthorized, errors.New("invalid webhook signature"))
	}
	var env provider.WebhookEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return writeErr(c, http.StatusBadRequest, err)
	}
	if err := o.ing.Ingest(c.Request().Context(), env); err != nil {
		return writeErr(c, http.StatusInternalServerError, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"received": true})
}

// handleHealth 健康检查：任务分布与系统指标。
func (o *Orchestrator) handleHealth(c echo.Context) error {
	ctx := c.Request().Context()
	counts := map[string]int{}
	states := []JobState{StatePending, StateSubmitted, StateProcessing, StateCompleted, StateFailed, StateExpired}
	for _, st := range states {
		recs, err := o.store.ListByState(ctx, st, 0)
		if err != nil {
			continue
		}
		if len(recs) > 0 {
			counts[string(st)] = len(recs)
		}
	}
	return c.JSON(http.StatusOK, map[string]any{
		"status":         "ok",
		"uptime_seconds": int(time.Since(o.startedAt).Seconds()),
		"jobs":           counts,
		"system":         metrics.Collect(ctx),
	})
}

// writeErr 公共错误返回工具。
func writeErr(c echo.Context, code int, err error) error {
	return c.JSON(code, map[string]any{"success": false, "message": err.Error()})
}
