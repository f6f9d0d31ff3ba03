package videogen

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/mengeric/videogen-orchestrator-go/logging"
	"github.com/mengeric/videogen-orchestrator-go/provider"
)

// WebhookSignatureHeader 回调签名所在的请求头。
const WebhookSignatureHeader = "X-Webhook-Signature"

// WebhookIngestor 处理上游回调：验签、解包并转交对账器。
type WebhookIngestor struct {
	secret string
	rec    *Reconciler
}

// NewWebhookIngestor 构造。secret 为空时跳过验签（仅限开发环境）。
func NewWebhookIngestor(secret string, rec *Reconciler) *WebhookIngestor {
	return &WebhookIngestor{secret: secret, rec: rec}
}

// Verify 校验原始请求体的 HMAC-SHA256 签名（hex 编码，容忍 sha256= 前缀）。
// 返回：签名匹配返回 true；签名缺失或不匹配返回 false。
func (wi *WebhookIngestor) Verify(body []byte, signature string) bool {
	if wi.secret == "" {
		return true
	}
	sig := strings.TrimPrefix(strings.TrimSpace(signature), "sha256=")
	if sig == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(wi.secret))
	mac.Write(body)
	want := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(want), []byte(sig))
}

// Ingest 将回调信封转换为对账事件并应用。
// 说明：未知事件类型忽略并返回 nil，上游按 2xx 处理以避免无意义的重投。
func (wi *WebhookIngestor) Ingest(ctx context.Context, env provider.WebhookEnvelope) error {
	ev, ok := EventFromWebhook(env)
	if !ok {
		logging.L().Debugf(ctx, "webhook: ignore event type %q (id=%s)", env.Type, env.ID)
		return nil
	}
	logging.L().Debugf(ctx, "webhook: received %s for provider_job_id=%s", env.Type, env.Data.ID)
	return wi.rec.Apply(ctx, ev)
}
