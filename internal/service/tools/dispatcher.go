package tools

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/zhouzirui/workshop-voice/internal/model/live"
)

// UnknownToolResult 未注册工具的固定应答文本。
// 远端的每次调用都必须得到恰好一个应答，未知工具也不例外。
const UnknownToolResult = "tool not supported"

// 单次工具执行的时间上限，超时结果以错误文本形式回传。
const dispatchTimeout = 15 * time.Second

// Handler 执行一次工具调用并返回文本结果。
// 返回 error 时错误文本将作为结果回传给远端，调用仍然算被应答。
type Handler func(ctx context.Context, args map[string]any) (string, error)

// Registry 工具注册表。注册发生在会话启动前，之后只读。
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry 创建空的工具注册表。
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register 注册一个工具处理器，重复注册覆盖旧实现。
func (r *Registry) Register(name string, h Handler) {
	r.mu.Lock()
	r.handlers[name] = h
	r.mu.Unlock()
}

// Dispatch 执行一次工具调用并构造应答，保持原始关联 ID。
// 任何失败都转化为文本结果，绝不让调用悬空。
func (r *Registry) Dispatch(call live.ToolCall) live.FunctionResponse {
	resp := live.FunctionResponse{ID: call.ID, Name: call.Name}

	r.mu.RLock()
	h, ok := r.handlers[call.Name]
	r.mu.RUnlock()
	if !ok {
		log.Printf("[tools] unknown tool %q (call %s)", call.Name, call.ID)
		resp.Response = live.ResponseResult{Result: UnknownToolResult}
		return resp
	}

	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	defer cancel()

	result, err := h(ctx, call.Args)
	if err != nil {
		log.Printf("[tools] %s failed (call %s): %v", call.Name, call.ID, err)
		resp.Response = live.ResponseResult{Result: err.Error()}
		return resp
	}

	resp.Response = live.ResponseResult{Result: result}
	return resp
}
