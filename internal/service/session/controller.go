package session

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/workshop-voice/internal/codec"
	"github.com/zhouzirui/workshop-voice/internal/model/live"
	"github.com/zhouzirui/workshop-voice/internal/model/status"
	"github.com/zhouzirui/workshop-voice/internal/model/transcript"
	"github.com/zhouzirui/workshop-voice/internal/service/capture"
	"github.com/zhouzirui/workshop-voice/internal/service/playback"
)

// State 会话生命周期状态。Error 为终态，一旦进入不再迁移。
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateError        State = "error"
)

// ErrNotIdle 会话已经启动过，不能重复 Start。
var ErrNotIdle = errors.New("session: controller is not idle")

// ToolDispatcher 处理远端发起的工具调用，每次调用恰好产生一个应答。
type ToolDispatcher interface {
	Dispatch(call live.ToolCall) live.FunctionResponse
}

// DisplaySink 接收面向展示层的事件通知。实现必须快速返回，
// 不得阻塞会话的接收循环。
type DisplaySink interface {
	TranscriptAppended(entry transcript.Entry)
	StatusUpdated(snap status.Snapshot)
	StateChanged(state State)
}

// Controller 会话控制器：建立通道、驱动采集与播放、
// 分发入站消息并维护状态机。
type Controller struct {
	id      string
	dial    Dialer
	capture *capture.Pipeline
	player  *playback.Scheduler
	tools   ToolDispatcher
	board   *status.Board
	log     *transcript.Log
	sink    DisplaySink

	mu    sync.Mutex
	state State
	ch    Channel
	wg    sync.WaitGroup
}

// NewController 创建会话控制器。sink 可为 nil。
func NewController(dial Dialer, cap *capture.Pipeline, player *playback.Scheduler,
	tools ToolDispatcher, board *status.Board, tlog *transcript.Log, sink DisplaySink) *Controller {
	return &Controller{
		id:      uuid.NewString(),
		dial:    dial,
		capture: cap,
		player:  player,
		tools:   tools,
		board:   board,
		log:     tlog,
		sink:    sink,
		state:   StateDisconnected,
	}
}

// ID 返回会话标识。
func (c *Controller) ID() string {
	return c.id
}

// State 返回当前状态。
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SetMuted 设置麦克风静音，视频帧不受影响。
func (c *Controller) SetMuted(muted bool) {
	c.capture.SetMuted(muted)
}

// Start 建立连接并启动采集与接收循环。
// 只能从 Disconnected 状态调用一次；拨号失败进入 Error 终态。
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return ErrNotIdle
	}
	c.state = StateConnecting
	c.mu.Unlock()
	c.notifyState(StateConnecting)

	ch, err := c.dial(ctx)
	if err != nil {
		c.setState(StateError)
		return err
	}

	c.mu.Lock()
	c.ch = ch
	c.state = StateConnected
	c.mu.Unlock()
	c.notifyState(StateConnected)
	log.Printf("[session] %s connected", c.id)

	c.board.SetVisionActive(true)
	c.capture.Start(ctx, ch.Send)

	c.wg.Add(1)
	go c.receiveLoop(ch)
	return nil
}

// Stop 主动结束会话：关闭通道，接收循环随之完成拆除。
// 对未启动或已结束的会话是无害的空操作。
func (c *Controller) Stop() {
	c.mu.Lock()
	ch := c.ch
	c.mu.Unlock()

	if ch != nil {
		ch.Close()
	}
	c.wg.Wait()
}

func (c *Controller) receiveLoop(ch Channel) {
	defer c.wg.Done()

	for {
		msg, err := ch.Receive()
		if err != nil {
			c.teardown(ch, err)
			return
		}
		c.handleMessage(ch, msg)
	}
}

// teardown 统一的拆除路径：停采集、停播放、关通道，再迁移终点状态。
func (c *Controller) teardown(ch Channel, cause error) {
	c.capture.Stop()
	c.player.Stop()
	ch.Close()
	c.board.SetVisionActive(false)

	if errors.Is(cause, ErrClosed) {
		log.Printf("[session] %s closed", c.id)
		c.setState(StateDisconnected)
		return
	}
	log.Printf("[session] %s failed: %v", c.id, cause)
	c.setState(StateError)
}

// handleMessage 按固定顺序处理一条入站消息的各类内容：
// 音频、用户转写、远端转写、工具调用、打断标记。
func (c *Controller) handleMessage(ch Channel, msg *live.InboundMessage) {
	if msg.Audio != nil {
		start := time.Now()
		raw, err := codec.DecodeBytes(msg.Audio.Data)
		if err != nil {
			log.Printf("[session] drop inbound audio: %v", err)
		} else if err := c.player.Enqueue(raw); err != nil {
			log.Printf("[session] drop inbound audio: %v", err)
		} else {
			c.board.SetLatency(time.Since(start).Milliseconds())
		}
		c.notifyStatus()
	}

	if msg.InputTranscript != "" {
		c.appendTranscript(transcript.RoleUser, msg.InputTranscript)
	}
	if msg.OutputTranscript != "" {
		c.appendTranscript(transcript.RoleAgent, msg.OutputTranscript)
	}

	for _, call := range msg.ToolCalls {
		resp := c.tools.Dispatch(call)
		out := live.OutboundMessage{FunctionResponses: []live.FunctionResponse{resp}}
		if err := ch.Send(out); err != nil {
			log.Printf("[session] tool response %s not delivered: %v", call.ID, err)
		}
	}

	if msg.Interrupted {
		log.Printf("[session] %s interrupted, flushing playback", c.id)
		c.player.Interrupt()
		c.notifyStatus()
	}
}

func (c *Controller) appendTranscript(role transcript.Role, text string) {
	entry := c.log.Append(role, text)
	if c.sink != nil {
		c.sink.TranscriptAppended(entry)
	}
}

func (c *Controller) setState(next State) {
	c.mu.Lock()
	if c.state == StateError {
		c.mu.Unlock()
		return
	}
	c.state = next
	c.mu.Unlock()
	c.notifyState(next)
}

func (c *Controller) notifyState(state State) {
	if c.sink != nil {
		c.sink.StateChanged(state)
	}
}

func (c *Controller) notifyStatus() {
	if c.sink != nil {
		c.sink.StatusUpdated(c.board.Snapshot())
	}
}
