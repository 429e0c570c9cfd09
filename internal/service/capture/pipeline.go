package capture

import (
	"context"
	"image"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zhouzirui/workshop-voice/internal/codec"
	"github.com/zhouzirui/workshop-voice/internal/model/live"
	"github.com/zhouzirui/workshop-voice/internal/model/status"
)

// 采集链路的固定参数：16kHz 麦克风按 4096 样本为一个量子，视频帧 2Hz。
const (
	InputSampleRate = 16000
	QuantumSamples  = 4096

	defaultFrameInterval = 500 * time.Millisecond
)

// AudioSource 连续音频源。ReadQuantum 阻塞直到取得一个完整量子
// （QuantumSamples 个归一化浮点样本），或 ctx 结束。
type AudioSource interface {
	ReadQuantum(ctx context.Context) ([]float32, error)
}

// VideoSource 视频帧源，返回当前时刻的完整分辨率画面。
type VideoSource interface {
	Frame(ctx context.Context) (image.Image, error)
}

// Sink 出站消息的落点，由会话控制器接到通道的发送操作上。
type Sink func(live.OutboundMessage) error

// Pipeline 采集管线：音频泵与帧定时器彼此独立并发运行，
// 均不做背压——发送不及时由传输层排队或丢弃。
type Pipeline struct {
	audio AudioSource
	video VideoSource
	board *status.Board

	frameInterval time.Duration
	loadWindow    time.Duration

	muted  atomic.Bool
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	running bool
}

// NewPipeline 创建采集管线。
func NewPipeline(audio AudioSource, video VideoSource) *Pipeline {
	return &Pipeline{
		audio:         audio,
		video:         video,
		frameInterval: defaultFrameInterval,
		loadWindow:    time.Second,
	}
}

// BindStatus 绑定状态面板，采集负载（捕获音频时长与墙钟时间之比）
// 按窗口上报。不绑定则不上报。
func (p *Pipeline) BindStatus(board *status.Board) {
	p.board = board
}

// SetMuted 设置静音。静音期间音频量子被整体丢弃（不发送静音帧），
// 视频帧不受影响。
func (p *Pipeline) SetMuted(muted bool) {
	p.muted.Store(muted)
}

// Muted 返回当前静音状态。
func (p *Pipeline) Muted() bool {
	return p.muted.Load()
}

// Start 启动两个独立的生产者。重复调用是幂等的。
func (p *Pipeline) Start(ctx context.Context, sink Sink) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	ctx, p.cancel = context.WithCancel(ctx)
	p.running = true
	p.mu.Unlock()

	p.wg.Add(2)
	go p.pumpAudio(ctx, sink)
	go p.pumpFrames(ctx, sink)
}

// Stop 停止帧定时器并中止音频泵；不等待在途发送完成。
func (p *Pipeline) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	cancel := p.cancel
	p.mu.Unlock()

	cancel()
}

// Wait 等待生产者 goroutine 退出，仅供测试与进程收尾使用。
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

func (p *Pipeline) pumpAudio(ctx context.Context, sink Sink) {
	defer p.wg.Done()
	if p.board != nil {
		defer p.board.SetLoad(0)
	}

	windowStart := time.Now()
	windowQuanta := 0

	for {
		quantum, err := p.audio.ReadQuantum(ctx)
		if err != nil {
			if ctx.Err() == nil {
				log.Printf("[capture] audio source stopped: %v", err)
			}
			return
		}

		// 静音的量子同样计入负载：采集仍在进行，只是不发送。
		windowQuanta++
		if elapsed := time.Since(windowStart); p.board != nil && elapsed >= p.loadWindow {
			captured := time.Duration(windowQuanta*QuantumSamples) * time.Second / InputSampleRate
			p.board.SetLoad(float64(captured) / float64(elapsed))
			windowStart = time.Now()
			windowQuanta = 0
		}

		if p.muted.Load() {
			continue
		}

		data := codec.Int16ToBytes(codec.FloatToInt16PCM(quantum))
		msg := live.OutboundMessage{Media: &live.MediaFrame{
			Data:     codec.EncodeBytes(data),
			MimeType: live.MimeAudioPCM16k,
		}}
		if err := sink(msg); err != nil {
			log.Printf("[capture] drop audio quantum: %v", err)
		}
	}
}

func (p *Pipeline) pumpFrames(ctx context.Context, sink Sink) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.frameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			frame, err := p.video.Frame(ctx)
			if err != nil {
				if ctx.Err() == nil {
					log.Printf("[capture] frame grab failed: %v", err)
				}
				continue
			}

			data, err := codec.EncodeFrameJPEG(frame)
			if err != nil {
				log.Printf("[capture] frame encode failed: %v", err)
				continue
			}

			msg := live.OutboundMessage{Media: &live.MediaFrame{
				Data:     codec.EncodeBytes(data),
				MimeType: live.MimeJPEG,
			}}
			if err := sink(msg); err != nil {
				log.Printf("[capture] drop video frame: %v", err)
			}
		}
	}
}
