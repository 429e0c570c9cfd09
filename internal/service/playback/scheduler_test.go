package playback

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/zhouzirui/workshop-voice/internal/codec"
)

type fakeTimer struct {
	clock    *fakeClock
	deadline time.Duration
	fn       func()
	stopped  bool
	fired    bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

type fakeClock struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*fakeTimer
}

func newFakeClock() *fakeClock {
	return &fakeClock{}
}

func (c *fakeClock) Now() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, deadline: c.now + d, fn: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance 推进时钟并触发到期回调；回调在锁外执行，允许其再次排期。
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now += d
	c.mu.Unlock()

	for {
		c.mu.Lock()
		var due *fakeTimer
		for _, t := range c.timers {
			if !t.fired && !t.stopped && t.deadline <= c.now {
				due = t
				break
			}
		}
		if due != nil {
			due.fired = true
		}
		c.mu.Unlock()

		if due == nil {
			return
		}
		due.fn()
	}
}

type fakeDevice struct {
	mu        sync.Mutex
	clock     *fakeClock
	writes    []time.Duration
	flushes   int
	failWrite bool
}

func (d *fakeDevice) Write(pcm []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failWrite {
		return errors.New("device gone")
	}
	d.writes = append(d.writes, d.clock.Now())
	return nil
}

func (d *fakeDevice) Flush() {
	d.mu.Lock()
	d.flushes++
	d.mu.Unlock()
}

func (d *fakeDevice) writeTimes() []time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]time.Duration, len(d.writes))
	copy(out, d.writes)
	return out
}

// pcmChunk 生成指定播放时长的 s16le 测试音频。
func pcmChunk(d time.Duration) []byte {
	frames := int(d * OutputSampleRate / time.Second)
	return codec.Int16ToBytes(make([]int16, frames))
}

func TestGaplessScheduling(t *testing.T) {
	clock := newFakeClock()
	dev := &fakeDevice{clock: clock}
	s := NewScheduler(clock, dev, nil)

	chunk := pcmChunk(100 * time.Millisecond)
	for i := 0; i < 3; i++ {
		if err := s.Enqueue(chunk); err != nil {
			t.Fatalf("Enqueue err: %v", err)
		}
	}

	if got := s.NextStart(); got != 300*time.Millisecond {
		t.Fatalf("cursor should advance by summed durations, got %v", got)
	}
	if got := s.ActiveCount(); got != 3 {
		t.Fatalf("expected 3 active sources, got %d", got)
	}

	clock.Advance(0)
	clock.Advance(100 * time.Millisecond)
	clock.Advance(100 * time.Millisecond)
	clock.Advance(100 * time.Millisecond)

	want := []time.Duration{0, 100 * time.Millisecond, 200 * time.Millisecond}
	times := dev.writeTimes()
	if len(times) != len(want) {
		t.Fatalf("expected %d writes, got %d", len(want), len(times))
	}
	for i := range want {
		if times[i] != want[i] {
			t.Fatalf("write %d at %v, want %v (chunks must be back to back)", i, times[i], want[i])
		}
	}

	if got := s.ActiveCount(); got != 0 {
		t.Fatalf("all sources should have completed, %d still active", got)
	}
}

func TestEnqueueAfterDrainReanchorsToClock(t *testing.T) {
	clock := newFakeClock()
	dev := &fakeDevice{clock: clock}
	s := NewScheduler(clock, dev, nil)

	if err := s.Enqueue(pcmChunk(50 * time.Millisecond)); err != nil {
		t.Fatalf("Enqueue err: %v", err)
	}
	clock.Advance(0)
	clock.Advance(400 * time.Millisecond)

	// 播放早已排空，新块必须从当前时刻起播而不是历史游标。
	if err := s.Enqueue(pcmChunk(50 * time.Millisecond)); err != nil {
		t.Fatalf("Enqueue err: %v", err)
	}
	if got := s.NextStart(); got != 450*time.Millisecond {
		t.Fatalf("cursor should re-anchor to clock, got %v", got)
	}

	clock.Advance(0)
	times := dev.writeTimes()
	if times[len(times)-1] != 400*time.Millisecond {
		t.Fatalf("late chunk should start immediately, started at %v", times[len(times)-1])
	}
}

func TestInterruptFlushesEverything(t *testing.T) {
	clock := newFakeClock()
	dev := &fakeDevice{clock: clock}
	s := NewScheduler(clock, dev, nil)

	for i := 0; i < 4; i++ {
		if err := s.Enqueue(pcmChunk(100 * time.Millisecond)); err != nil {
			t.Fatalf("Enqueue err: %v", err)
		}
	}
	clock.Advance(0) // 第一块已在播
	clock.Advance(150 * time.Millisecond)

	s.Interrupt()

	if got := s.ActiveCount(); got != 0 {
		t.Fatalf("active set should be empty after interrupt, got %d", got)
	}
	if got := s.NextStart(); got != 0 {
		t.Fatalf("cursor should reset after interrupt, got %v", got)
	}
	if dev.flushes != 1 {
		t.Fatalf("device should be flushed once, got %d", dev.flushes)
	}

	before := len(dev.writeTimes())
	clock.Advance(time.Second)
	if after := len(dev.writeTimes()); after != before {
		t.Fatalf("stopped sources must not reach the device: %d -> %d writes", before, after)
	}

	// 打断后的新块从时钟当前时刻起播，而不是延续旧游标。
	if err := s.Enqueue(pcmChunk(100 * time.Millisecond)); err != nil {
		t.Fatalf("Enqueue after interrupt err: %v", err)
	}
	if got := s.NextStart(); got != 1250*time.Millisecond {
		t.Fatalf("post-interrupt chunk should anchor to the clock, got %v", got)
	}
}

func TestDecodeFailureLeavesStateUntouched(t *testing.T) {
	clock := newFakeClock()
	dev := &fakeDevice{clock: clock}
	s := NewScheduler(clock, dev, nil)

	if err := s.Enqueue(pcmChunk(100 * time.Millisecond)); err != nil {
		t.Fatalf("Enqueue err: %v", err)
	}
	cursor := s.NextStart()

	if err := s.Enqueue([]byte{1, 2, 3}); !errors.Is(err, codec.ErrOddPCMBuffer) {
		t.Fatalf("expected ErrOddPCMBuffer, got %v", err)
	}

	if got := s.NextStart(); got != cursor {
		t.Fatalf("cursor moved on failed decode: %v -> %v", cursor, got)
	}
	if got := s.ActiveCount(); got != 1 {
		t.Fatalf("active set changed on failed decode: %d", got)
	}

	// 后续块不受失败影响。
	if err := s.Enqueue(pcmChunk(100 * time.Millisecond)); err != nil {
		t.Fatalf("Enqueue after failure err: %v", err)
	}
}

// gatedDevice 的 Write 阻塞到放行为止，按序记录 write/flush 操作。
type gatedDevice struct {
	mu      sync.Mutex
	ops     []string
	gate    chan struct{}
	entered chan struct{}
	once    sync.Once
}

func (d *gatedDevice) Write(pcm []byte) error {
	d.once.Do(func() { close(d.entered) })
	<-d.gate
	d.mu.Lock()
	d.ops = append(d.ops, "write")
	d.mu.Unlock()
	return nil
}

func (d *gatedDevice) Flush() {
	d.mu.Lock()
	d.ops = append(d.ops, "flush")
	d.mu.Unlock()
}

func (d *gatedDevice) opsSnapshot() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.ops))
	copy(out, d.ops)
	return out
}

func TestInterruptWaitsForInflightWrite(t *testing.T) {
	clock := newFakeClock()
	dev := &gatedDevice{gate: make(chan struct{}), entered: make(chan struct{})}
	s := NewScheduler(clock, dev, nil)

	if err := s.Enqueue(pcmChunk(100 * time.Millisecond)); err != nil {
		t.Fatalf("Enqueue err: %v", err)
	}

	// 起播在独立goroutine中卡在设备写入上。
	go clock.Advance(0)
	<-dev.entered

	interrupted := make(chan struct{})
	go func() {
		s.Interrupt()
		close(interrupted)
	}()

	// 在途写入完成前，打断不得冲洗设备，否则旧音频会在Flush之后到达。
	select {
	case <-interrupted:
		t.Fatal("interrupt completed while a device write was still in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(dev.gate)
	select {
	case <-interrupted:
	case <-time.After(2 * time.Second):
		t.Fatal("interrupt did not finish after the write was released")
	}

	ops := dev.opsSnapshot()
	if len(ops) != 2 || ops[0] != "write" || ops[1] != "flush" {
		t.Fatalf("flush must order after the in-flight write, got %v", ops)
	}
	if got := s.ActiveCount(); got != 0 {
		t.Fatalf("active set should be empty after interrupt, got %d", got)
	}
}

func TestWriteFailureCompletesSource(t *testing.T) {
	clock := newFakeClock()
	dev := &fakeDevice{clock: clock, failWrite: true}
	s := NewScheduler(clock, dev, nil)

	if err := s.Enqueue(pcmChunk(100 * time.Millisecond)); err != nil {
		t.Fatalf("Enqueue err: %v", err)
	}
	clock.Advance(0)

	if got := s.ActiveCount(); got != 0 {
		t.Fatalf("failed source should be removed, got %d active", got)
	}
}
