package status

import "sync"

// Snapshot 系统状态的一次只读快照，供展示层消费。
type Snapshot struct {
	Load         float64 `json:"load"`
	BufferedMS   int64   `json:"bufferedMs"`
	LatencyMS    int64   `json:"latencyMs"`
	VisionActive bool    `json:"visionActive"`
}

// Board 汇聚各组件上报的状态量。
type Board struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewBoard 创建状态面板。
func NewBoard() *Board {
	return &Board{}
}

// SetLatency 更新最近一次入站音频从接收到完成调度的耗时（毫秒）。
func (b *Board) SetLatency(ms int64) {
	b.mu.Lock()
	b.snap.LatencyMS = ms
	b.mu.Unlock()
}

// SetBuffered 更新播放缓冲占用（毫秒）。
func (b *Board) SetBuffered(ms int64) {
	b.mu.Lock()
	b.snap.BufferedMS = ms
	b.mu.Unlock()
}

// SetVisionActive 更新视觉链路是否处于活动状态。
func (b *Board) SetVisionActive(active bool) {
	b.mu.Lock()
	b.snap.VisionActive = active
	b.mu.Unlock()
}

// SetLoad 更新采集链路负载估计。
func (b *Board) SetLoad(load float64) {
	b.mu.Lock()
	b.snap.Load = load
	b.mu.Unlock()
}

// Snapshot 返回当前状态的副本。
func (b *Board) Snapshot() Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.snap
}
