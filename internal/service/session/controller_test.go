package session

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"

	"github.com/zhouzirui/workshop-voice/internal/codec"
	"github.com/zhouzirui/workshop-voice/internal/model/live"
	"github.com/zhouzirui/workshop-voice/internal/model/status"
	"github.com/zhouzirui/workshop-voice/internal/model/transcript"
	"github.com/zhouzirui/workshop-voice/internal/service/capture"
	"github.com/zhouzirui/workshop-voice/internal/service/playback"
)

type step struct {
	msg *live.InboundMessage
	err error
}

// scriptedChannel 按脚本吐出入站消息，并记录全部出站消息。
type scriptedChannel struct {
	steps chan step
	done  chan struct{}
	once  sync.Once

	mu   sync.Mutex
	sent []live.OutboundMessage
}

func newScriptedChannel(steps ...step) *scriptedChannel {
	ch := &scriptedChannel{
		steps: make(chan step, len(steps)),
		done:  make(chan struct{}),
	}
	for _, s := range steps {
		ch.steps <- s
	}
	return ch
}

func (c *scriptedChannel) Send(msg live.OutboundMessage) error {
	c.mu.Lock()
	c.sent = append(c.sent, msg)
	c.mu.Unlock()
	return nil
}

func (c *scriptedChannel) Receive() (*live.InboundMessage, error) {
	// 真实通道按到达顺序交付：已入队的脚本消息必须先于本端关闭被读出，
	// 否则 Stop 与接收循环并发时脚本会被随机跳过。
	select {
	case s := <-c.steps:
		return s.msg, s.err
	default:
	}
	select {
	case s := <-c.steps:
		return s.msg, s.err
	case <-c.done:
		return nil, ErrClosed
	}
}

func (c *scriptedChannel) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

func (c *scriptedChannel) responses() []live.FunctionResponse {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []live.FunctionResponse
	for _, m := range c.sent {
		out = append(out, m.FunctionResponses...)
	}
	return out
}

func (c *scriptedChannel) sendsWithResponses() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, m := range c.sent {
		if len(m.FunctionResponses) > 0 {
			n++
		}
	}
	return n
}

// echoDispatcher 原样回显工具名，便于断言关联 ID 透传。
type echoDispatcher struct{}

func (echoDispatcher) Dispatch(call live.ToolCall) live.FunctionResponse {
	return live.FunctionResponse{
		ID:       call.ID,
		Name:     call.Name,
		Response: live.ResponseResult{Result: "echo:" + call.Name},
	}
}

// recordingSink 记录展示层收到的全部事件。
type recordingSink struct {
	mu      sync.Mutex
	states  []State
	entries []transcript.Entry
}

func (s *recordingSink) TranscriptAppended(entry transcript.Entry) {
	s.mu.Lock()
	s.entries = append(s.entries, entry)
	s.mu.Unlock()
}

func (s *recordingSink) StatusUpdated(status.Snapshot) {}

func (s *recordingSink) StateChanged(state State) {
	s.mu.Lock()
	s.states = append(s.states, state)
	s.mu.Unlock()
}

func (s *recordingSink) stateHistory() []State {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]State, len(s.states))
	copy(out, s.states)
	return out
}

type blockingAudio struct{}

func (blockingAudio) ReadQuantum(ctx context.Context) ([]float32, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type blankVideo struct{}

func (blankVideo) Frame(ctx context.Context) (image.Image, error) {
	return image.NewRGBA(image.Rect(0, 0, 64, 64)), nil
}

type nullDevice struct{}

func (nullDevice) Write([]byte) error { return nil }
func (nullDevice) Flush()             {}

func newTestController(dial Dialer, sink DisplaySink) (*Controller, *playback.Scheduler, *transcript.Log) {
	board := status.NewBoard()
	tlog := transcript.NewLog(transcript.DefaultCapacity)
	player := playback.NewScheduler(playback.NewSystemClock(), nullDevice{}, board)
	pipe := capture.NewPipeline(blockingAudio{}, blankVideo{})
	ctrl := NewController(dial, pipe, player, echoDispatcher{}, board, tlog, sink)
	return ctrl, player, tlog
}

func audioPayload(ms int) string {
	frames := playback.OutputSampleRate * ms / 1000
	return codec.EncodeBytes(codec.Int16ToBytes(make([]int16, frames)))
}

func TestSessionLifecycleNormalClose(t *testing.T) {
	ch := newScriptedChannel(
		step{msg: &live.InboundMessage{InputTranscript: "turn the valve"}},
		step{msg: &live.InboundMessage{
			Audio:            &live.InlineAudio{Data: audioPayload(100)},
			OutputTranscript: "sure, checking the manual",
		}},
		step{msg: &live.InboundMessage{ToolCalls: []live.ToolCall{
			{ID: "call-1", Name: "check_parts_inventory", Args: map[string]any{"part_id": "X1"}},
		}}},
		step{msg: &live.InboundMessage{Interrupted: true}},
		step{err: ErrClosed},
	)
	sink := &recordingSink{}
	ctrl, player, tlog := newTestController(func(context.Context) (Channel, error) { return ch, nil }, sink)

	if err := ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start err: %v", err)
	}
	ctrl.Stop()

	if got := ctrl.State(); got != StateDisconnected {
		t.Fatalf("state after normal close: %v", got)
	}
	want := []State{StateConnecting, StateConnected, StateDisconnected}
	if got := sink.stateHistory(); len(got) != len(want) || got[0] != want[0] || got[1] != want[1] || got[2] != want[2] {
		t.Fatalf("state history %v, want %v", got, want)
	}

	entries := tlog.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 transcript entries, got %d", len(entries))
	}
	if entries[0].Role != transcript.RoleUser || entries[1].Role != transcript.RoleAgent {
		t.Fatalf("unexpected transcript roles: %+v", entries)
	}

	resps := ch.responses()
	if len(resps) != 1 {
		t.Fatalf("expected exactly one tool response, got %d", len(resps))
	}
	if resps[0].ID != "call-1" || resps[0].Name != "check_parts_inventory" {
		t.Fatalf("tool response must carry the original correlation id: %+v", resps[0])
	}

	// 打断与拆除之后不应再有待播音频。
	if got := player.ActiveCount(); got != 0 {
		t.Fatalf("playback should be flushed, %d sources active", got)
	}
}

func TestChannelFailureIsTerminal(t *testing.T) {
	ch := newScriptedChannel(step{err: errors.New("connection reset")})
	sink := &recordingSink{}
	ctrl, _, _ := newTestController(func(context.Context) (Channel, error) { return ch, nil }, sink)

	if err := ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start err: %v", err)
	}
	ctrl.Stop()

	if got := ctrl.State(); got != StateError {
		t.Fatalf("state after channel failure: %v", got)
	}
	// Error 是终态，不允许重新启动。
	if err := ctrl.Start(context.Background()); !errors.Is(err, ErrNotIdle) {
		t.Fatalf("expected ErrNotIdle on restart, got %v", err)
	}
}

func TestDialFailureEntersErrorState(t *testing.T) {
	dialErr := errors.New("no route to host")
	ctrl, _, _ := newTestController(func(context.Context) (Channel, error) { return nil, dialErr }, &recordingSink{})

	if err := ctrl.Start(context.Background()); !errors.Is(err, dialErr) {
		t.Fatalf("Start should surface dial error, got %v", err)
	}
	if got := ctrl.State(); got != StateError {
		t.Fatalf("state after dial failure: %v", got)
	}
}

func TestToolResponsesAreNeverBatched(t *testing.T) {
	ch := newScriptedChannel(
		step{msg: &live.InboundMessage{ToolCalls: []live.ToolCall{
			{ID: "a", Name: "check_parts_inventory"},
			{ID: "b", Name: "get_repair_manual"},
		}}},
		step{err: ErrClosed},
	)
	ctrl, _, _ := newTestController(func(context.Context) (Channel, error) { return ch, nil }, &recordingSink{})

	if err := ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start err: %v", err)
	}
	ctrl.Stop()

	if got := ch.sendsWithResponses(); got != 2 {
		t.Fatalf("each tool call must be answered in its own message, got %d", got)
	}
	resps := ch.responses()
	if len(resps) != 2 || resps[0].ID != "a" || resps[1].ID != "b" {
		t.Fatalf("unexpected responses: %+v", resps)
	}
}

func TestStopBeforeStartIsNoop(t *testing.T) {
	ctrl, _, _ := newTestController(func(context.Context) (Channel, error) { return nil, nil }, &recordingSink{})
	ctrl.Stop()
	if got := ctrl.State(); got != StateDisconnected {
		t.Fatalf("untouched controller should stay disconnected, got %v", got)
	}
}
