package media

import (
	"fmt"
	"sync"

	"github.com/ebitengine/oto/v3"

	"github.com/zhouzirui/workshop-voice/internal/service/playback"
)

// Speaker 基于 oto 的扬声器输出，实现 playback.Device。
// oto 采用拉模式：播放器通过 Read 从内部缓冲取数据。
type Speaker struct {
	otoCtx *oto.Context

	mu      sync.Mutex
	cond    *sync.Cond
	buf     []byte
	player  *oto.Player
	playing bool
	closed  bool
}

// NewSpeaker 打开默认播放设备（24kHz 单声道 s16）。
func NewSpeaker() (*Speaker, func(), error) {
	opts := &oto.NewContextOptions{
		SampleRate:   playback.OutputSampleRate,
		ChannelCount: playback.OutputChannels,
		Format:       oto.FormatSignedInt16LE,
		// 约100ms的小缓冲，换取打断后的快速静音。
		BufferSize: playback.OutputSampleRate * 2 / 10,
	}
	otoCtx, ready, err := oto.NewContext(opts)
	if err != nil {
		return nil, nil, fmt.Errorf("init speaker: %w", err)
	}
	<-ready

	s := &Speaker{otoCtx: otoCtx}
	s.cond = sync.NewCond(&s.mu)
	return s, s.close, nil
}

// Write 实现 playback.Device，送入一段 s16le 音频。
func (s *Speaker) Write(pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("speaker closed")
	}

	s.buf = append(s.buf, pcm...)
	if !s.playing {
		s.playing = true
		s.player = s.otoCtx.NewPlayer(s)
		s.player.Play()
	}
	s.cond.Signal()
	return nil
}

// Read 供 oto 播放器拉取数据。缓冲为空时阻塞等待。
func (s *Speaker) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.buf) == 0 && !s.closed {
		s.cond.Wait()
	}
	if s.closed && len(s.buf) == 0 {
		// 关闭后回送静音，让播放器平滑排空。
		for i := range p {
			p[i] = 0
		}
		return len(p), nil
	}

	n := copy(p, s.buf)
	s.buf = s.buf[n:]
	return n, nil
}

// Flush 实现 playback.Device：立即丢弃未播完的数据并停住当前播放器。
func (s *Speaker) Flush() {
	s.mu.Lock()
	s.buf = s.buf[:0]

	if s.player != nil && s.playing {
		s.playing = false
		player := s.player
		s.player = nil
		s.mu.Unlock()

		// 先暂停再重置，清掉播放器内部缓冲，避免旧音频与新音频叠播。
		player.Pause()
		player.Reset()
		player.Close()
		return
	}
	s.mu.Unlock()
}

func (s *Speaker) close() {
	s.mu.Lock()
	s.closed = true
	s.cond.Broadcast()
	player := s.player
	s.player = nil
	s.mu.Unlock()

	if player != nil {
		player.Close()
	}
}
