package panel

import (
	"sync"

	"github.com/zhouzirui/workshop-voice/internal/model/status"
	"github.com/zhouzirui/workshop-voice/internal/model/transcript"
	"github.com/zhouzirui/workshop-voice/internal/service/session"
)

// Event 推送给调试面板的一条事件。
type Event struct {
	Kind string `json:"kind"`
	Data any    `json:"data"`
}

// Hub 把会话事件扇出给所有已订阅的面板连接。
// 广播永不阻塞：订阅者来不及消费时事件被丢弃，面板可随时
// 通过快照接口补齐全量状态。
type Hub struct {
	mu   sync.Mutex
	subs map[chan Event]struct{}
}

// NewHub 创建事件枢纽。
func NewHub() *Hub {
	return &Hub{subs: make(map[chan Event]struct{})}
}

// Subscribe 注册一个面板连接，返回事件通道与注销函数。
func (h *Hub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 32)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		delete(h.subs, ch)
		h.mu.Unlock()
	}
	return ch, cancel
}

func (h *Hub) broadcast(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// TranscriptAppended 实现 session.DisplaySink。
func (h *Hub) TranscriptAppended(entry transcript.Entry) {
	h.broadcast(Event{Kind: "transcript", Data: entry})
}

// StatusUpdated 实现 session.DisplaySink。
func (h *Hub) StatusUpdated(snap status.Snapshot) {
	h.broadcast(Event{Kind: "status", Data: snap})
}

// StateChanged 实现 session.DisplaySink。
func (h *Hub) StateChanged(state session.State) {
	h.broadcast(Event{Kind: "state", Data: string(state)})
}
