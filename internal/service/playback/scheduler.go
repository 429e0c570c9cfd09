package playback

import (
	"fmt"
	"sync"
	"time"

	"github.com/zhouzirui/workshop-voice/internal/codec"
	"github.com/zhouzirui/workshop-voice/internal/model/status"
)

// 远端语音的固定输出格式。
const (
	OutputSampleRate = 24000
	OutputChannels   = 1
)

// Clock 播放调度使用的单调时钟。Now 返回自时钟启动以来的偏移，
// AfterFunc 在指定延迟后于独立 goroutine 中执行回调。
type Clock interface {
	Now() time.Duration
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer 可取消的延迟回调句柄。
type Timer interface {
	Stop() bool
}

// Device 播放输出设备。Write 送入 s16le 字节流，Flush 立即丢弃设备内未播完的数据。
type Device interface {
	Write(pcm []byte) error
	Flush()
}

// handle 一个已排期的播放源。
type handle struct {
	data     []byte
	duration time.Duration

	mu      sync.Mutex
	start   Timer
	done    Timer
	stopped bool
}

func (h *handle) stop() {
	h.mu.Lock()
	h.stopped = true
	if h.start != nil {
		h.start.Stop()
	}
	if h.done != nil {
		h.done.Stop()
	}
	h.mu.Unlock()
}

// Scheduler 将入站音频块解码后按单调游标背靠背排期，保证无缝衔接；
// 收到打断信号时强停全部在播源并把游标归零。
type Scheduler struct {
	clock Clock
	dev   Device
	board *status.Board

	sampleRate int
	channels   int

	mu     sync.Mutex
	next   time.Duration
	active map[*handle]struct{}
}

// NewScheduler 创建播放调度器。board 可为 nil，此时不上报缓冲占用。
func NewScheduler(clock Clock, dev Device, board *status.Board) *Scheduler {
	return &Scheduler{
		clock:      clock,
		dev:        dev,
		board:      board,
		sampleRate: OutputSampleRate,
		channels:   OutputChannels,
		active:     make(map[*handle]struct{}),
	}
}

// Enqueue 解码一段 s16le 音频并排期播放。解码失败时丢弃该块，
// 调度状态保持不变，后续块不受影响。
func (s *Scheduler) Enqueue(data []byte) error {
	buf, err := codec.DecodeAudioSamples(data, s.sampleRate, s.channels)
	if err != nil {
		return fmt.Errorf("decode inbound audio: %w", err)
	}

	h := &handle{data: data, duration: buf.Duration()}

	s.mu.Lock()
	// 播放可能已经追上游标，避免把新块排期到过去。
	if now := s.clock.Now(); now > s.next {
		s.next = now
	}
	delay := s.next - s.clock.Now()
	if delay < 0 {
		delay = 0
	}
	s.next += h.duration
	s.active[h] = struct{}{}
	h.start = s.clock.AfterFunc(delay, func() { s.begin(h) })
	s.reportBufferedLocked()
	s.mu.Unlock()

	return nil
}

// begin 播放源到达起始时刻：写入设备并排期自然结束。
// 写入期间持有句柄锁：并发的 Interrupt 会在 stop 上等待，
// 其 Flush 必然排在在途写入之后，能清掉刚写入的数据。
func (s *Scheduler) begin(h *handle) {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return
	}

	err := s.dev.Write(h.data)
	if err == nil {
		h.done = s.clock.AfterFunc(h.duration, func() { s.complete(h) })
	}
	h.mu.Unlock()

	if err != nil {
		// 设备写入失败按播放完成处理，不阻塞后续排期。
		s.complete(h)
	}
}

// complete 播放源自然结束，从活动集合移除。
func (s *Scheduler) complete(h *handle) {
	s.mu.Lock()
	delete(s.active, h)
	s.reportBufferedLocked()
	s.mu.Unlock()
}

// Interrupt 响应远端打断：强停所有活动源、清空集合并把游标归零，
// 后续音频块经由 Enqueue 的时钟对齐从当前时刻重新起播。
func (s *Scheduler) Interrupt() {
	s.mu.Lock()
	for h := range s.active {
		h.stop()
	}
	s.active = make(map[*handle]struct{})
	s.next = 0
	s.reportBufferedLocked()
	s.mu.Unlock()

	s.dev.Flush()
}

// Stop 会话拆除时与 Interrupt 同语义：立即停止，不等待在播数据。
func (s *Scheduler) Stop() {
	s.Interrupt()
}

// ActiveCount 返回当前活动播放源数量。
func (s *Scheduler) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// NextStart 返回下一块音频的排期起点。
func (s *Scheduler) NextStart() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

func (s *Scheduler) reportBufferedLocked() {
	if s.board == nil {
		return
	}
	buffered := s.next - s.clock.Now()
	if buffered < 0 || len(s.active) == 0 {
		buffered = 0
	}
	s.board.SetBuffered(buffered.Milliseconds())
}
