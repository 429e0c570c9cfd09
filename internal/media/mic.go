package media

import (
	"context"
	"encoding/binary"
	"fmt"
	"log"

	"github.com/gen2brain/malgo"

	"github.com/zhouzirui/workshop-voice/internal/service/capture"
)

// Mic 基于 malgo 的麦克风采集源，按固定量子吐出归一化样本。
// 消费侧跟不上时丢弃最旧之外的新量子，绝不阻塞音频回调。
type Mic struct {
	ctx     *malgo.AllocatedContext
	device  *malgo.Device
	pending []byte
	quanta  chan []float32
}

// NewMic 打开默认采集设备（16kHz 单声道 s16）。
// 返回的清理函数负责停止设备并释放音频上下文。
func NewMic() (*Mic, func(), error) {
	malgoConfig := malgo.ContextConfig{}
	malgoConfig.ThreadPriority = malgo.ThreadPriorityRealtime

	allocated, err := malgo.InitContext(nil, malgoConfig, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("init audio context: %w", err)
	}

	m := &Mic{
		ctx:    allocated,
		quanta: make(chan []float32, 8),
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = uint32(capture.InputSampleRate)
	deviceConfig.PeriodSizeInMilliseconds = 20

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			m.ingest(input)
		},
	}

	device, err := malgo.InitDevice(allocated.Context, deviceConfig, callbacks)
	if err != nil {
		allocated.Uninit()
		return nil, nil, fmt.Errorf("init microphone: %w", err)
	}
	m.device = device

	if err := device.Start(); err != nil {
		device.Uninit()
		allocated.Uninit()
		return nil, nil, fmt.Errorf("start microphone: %w", err)
	}

	cleanup := func() {
		m.device.Stop()
		m.device.Uninit()
		m.ctx.Uninit()
	}
	return m, cleanup, nil
}

// ingest 在音频回调里累积字节流，凑满一个量子就转换后入队。
func (m *Mic) ingest(input []byte) {
	m.pending = append(m.pending, input...)

	const quantumBytes = capture.QuantumSamples * 2
	for len(m.pending) >= quantumBytes {
		raw := m.pending[:quantumBytes]
		m.pending = m.pending[quantumBytes:]

		quantum := make([]float32, capture.QuantumSamples)
		for i := range quantum {
			s := int16(binary.LittleEndian.Uint16(raw[i*2:]))
			quantum[i] = float32(s) / 32768
		}

		select {
		case m.quanta <- quantum:
		default:
			log.Printf("[media] mic quantum dropped, consumer too slow")
		}
	}
}

// ReadQuantum 实现 capture.AudioSource。
func (m *Mic) ReadQuantum(ctx context.Context) ([]float32, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case quantum := <-m.quanta:
		return quantum, nil
	}
}
