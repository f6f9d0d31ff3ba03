package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// API 定义与上游视频生成服务的交互接口，便于 gomock 打桩。
// 功能：封装任务创建、Remix、状态查询、产物下载与删除。
type API interface {
	Submit(ctx context.Context, req SubmitRequest) (Submission, error)
	Remix(ctx context.Context, providerJobID, prompt string) (Submission, error)
	FetchStatus(ctx context.Context, providerJobID string) (StatusSnapshot, error)
	FetchArtifact(ctx context.Context, providerJobID string, kind ArtifactKind) ([]byte, error)
	Delete(ctx context.Context, providerJobID string) error
}

// httpAPI 实现 API。
type httpAPI struct {
	base   string
	apiKey string
	hc     *http.Client
}

// NewHTTPAPI 构造 HTTP 实现。
// 参数：base 形如 https://api.openai.com/v1；apiKey 鉴权密钥。
func NewHTTPAPI(base, apiKey string) API {
	return &httpAPI{base: strings.TrimRight(base, "/"), apiKey: apiKey, hc: &http.Client{Timeout: 30 * time.Second}}
}

// Submit 创建生成任务。
// 参数：req 标准化请求；seconds 在线上格式中为字符串。
// 返回：标准化提交结果（含 provider 侧任务ID），或错误。
func (h *httpAPI) Submit(ctx context.Context, req SubmitRequest) (Submission, error) {
	body := createVideoReq{Model: req.Model, Prompt: req.Prompt, Size: req.Size}
	if req.Seconds > 0 {
		body.Seconds = strconv.Itoa(req.Seconds)
	}
	if req.InputReferenceURL != "" {
		body.InputReference = req.InputReferenceURL
	}
	var resp videoResp
	if err := h.post(ctx, h.base+"/videos", body, &resp); err != nil {
		return Submission{}, err
	}
	return resp.toSubmission(), nil
}

// Remix 基于已完成任务创建改写任务。
func (h *httpAPI) Remix(ctx context.Context, providerJobID, prompt string) (Submission, error) {
	var resp videoResp
	u := fmt.Sprintf("%s/videos/%s/remix", h.base, providerJobID)
	if err := h.post(ctx, u, remixVideoReq{Prompt: prompt}, &resp); err != nil {
		return Submission{}, err
	}
	return resp.toSubmission(), nil
}

// FetchStatus 查询任务状态。
func (h *httpAPI) FetchStatus(ctx context.Context, providerJobID string) (StatusSnapshot, error) {
	var resp videoResp
	u := fmt.Sprintf("%s/videos/%s", h.base, providerJobID)
	if err := h.get(ctx, u, &resp); err != nil {
		return StatusSnapshot{}, err
	}
	return resp.toSnapshot(), nil
}

// FetchArtifact 下载产物内容。
// 参数：kind 取 video/thumbnail/spritesheet，对应上游 variant 查询参数。
func (h *httpAPI) FetchArtifact(ctx context.Context, providerJobID string, kind ArtifactKind) ([]byte, error) {
	u := fmt.Sprintf("%s/videos/%s/content?variant=%s", h.base, providerJobID, string(kind))
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	h.auth(req)
	res, err := h.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode/100 != 2 {
		return nil, decodeAPIError(res)
	}
	return io.ReadAll(res.Body)
}

// Delete 删除上游任务。
func (h *httpAPI) Delete(ctx context.Context, providerJobID string) error {
	u := fmt.Sprintf("%s/videos/%s", h.base, providerJobID)
	req, _ := http.NewRequestWithContext(ctx, http.MethodDelete, u, nil)
	h.auth(req)
	res, err := h.hc.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode/100 != 2 {
		return decodeAPIError(res)
	}
	return nil
}

// auth 附加鉴权头。
func (h *httpAPI) auth(req *http.Request) {
	if h.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.apiKey)
	}
}

// get 执行 GET 请求并解码 JSON。
func (h *httpAPI) get(ctx context.Context, url string, out any) error {
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	h.auth(req)
	res, err := h.hc.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode/100 != 2 {
		return decodeAPIError(res)
	}
	return json.NewDecoder(res.Body).Decode(out)
}

// post 执行 POST 请求并可选解码响应。
func (h *httpAPI) post(ctx context.Context, u string, body any, out any) error {
	b, _ := json.Marshal(body)
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	h.auth(req)
	res, err := h.hc.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode/100 != 2 {
		return decodeAPIError(res)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(res.Body).Decode(out)
}

// decodeAPIError 将非 2xx 响应解析为 APIError；无法解析时保留原始响应文本。
func decodeAPIError(res *http.Response) *APIError {
	b, _ := io.ReadAll(res.Body)
	e := &APIError{StatusCode: res.StatusCode, Message: strings.TrimSpace(string(b))}
	var body struct {
		Error apiErrBody `json:"error"`
	}
	if json.Unmarshal(b, &body) == nil && body.Error.Message != "" {
		e.Code = body.Error.Code
		e.Message = body.Error.Message
	}
	return e
}
