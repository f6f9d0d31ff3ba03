package provider

import "sync"

// Registry 按模型名路由到对应的上游适配器。
// 功能：不同模型可由不同服务商提供；未注册的模型走默认适配器。
type Registry struct {
	mu   sync.RWMutex
	def  API
	apis map[string]API
}

// NewRegistry 创建注册表。def 为默认适配器，可为 nil（此时未注册模型不可提交）。
func NewRegistry(def API) *Registry { return &Registry{def: def, apis: map[string]API{}} }

// Register 注册模型专属适配器。
func (r *Registry) Register(model string, api API) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.apis[model] = api
}

// Resolve 按模型获取适配器；未注册时回退默认适配器。
func (r *Registry) Resolve(model string) (API, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if api, ok := r.apis[model]; ok {
		return api, true
	}
	if r.def != nil {
		return r.def, true
	}
	return nil, false
}
