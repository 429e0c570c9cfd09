package codec

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"time"

	xdraw "golang.org/x/image/draw"
)

// 帧传输尺寸与压缩质量，与远端协议约定保持一致。
const (
	FrameWidth       = 640
	FrameHeight      = 360
	frameJPEGQuality = 60
)

var (
	// ErrOddPCMBuffer 表示字节长度不是每声道样本宽度的整数倍。
	ErrOddPCMBuffer = errors.New("pcm buffer length is not a multiple of the sample width")
	// ErrInvalidAudioFormat 表示采样率或声道数非法。
	ErrInvalidAudioFormat = errors.New("invalid sample rate or channel count")
)

// EncodeBytes 将二进制缓冲编码为可随 JSON 消息传输的文本。
func EncodeBytes(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// DecodeBytes 是 EncodeBytes 的逆操作。
func DecodeBytes(text string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return nil, fmt.Errorf("base64 decode failed: %w", err)
	}
	return data, nil
}

// FloatToInt16PCM 将 [-1,1] 区间的浮点样本按 32768 缩放并截断为 int16。
// 刻意不做钳位：越界输入会回绕，这是上游音频源的既有行为，调用方需保证输入范围。
func FloatToInt16PCM(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		out[i] = int16(int32(s * 32768))
	}
	return out
}

// Int16ToBytes 将 int16 样本序列化为小端字节流（s16le 线格式）。
func Int16ToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		out[i*2] = byte(s)
		out[i*2+1] = byte(uint16(s) >> 8)
	}
	return out
}

// AudioBuffer 表示一段已解码的归一化浮点音频。
type AudioBuffer struct {
	Samples    []float32
	SampleRate int
	Channels   int
}

// Duration 返回缓冲的播放时长。
func (b *AudioBuffer) Duration() time.Duration {
	if b == nil || b.SampleRate <= 0 || b.Channels <= 0 {
		return 0
	}
	frames := len(b.Samples) / b.Channels
	return time.Duration(frames) * time.Second / time.Duration(b.SampleRate)
}

// DecodeAudioSamples 将小端 int16 PCM 字节流解码为归一化浮点缓冲。
// 字节长度必须是 2*channels 的整数倍，否则返回 ErrOddPCMBuffer。
func DecodeAudioSamples(data []byte, sampleRate, channels int) (*AudioBuffer, error) {
	if sampleRate <= 0 || channels <= 0 {
		return nil, ErrInvalidAudioFormat
	}
	if len(data)%(2*channels) != 0 {
		return nil, fmt.Errorf("%w: %d bytes, %d channels", ErrOddPCMBuffer, len(data), channels)
	}

	samples := make([]float32, len(data)/2)
	for i := range samples {
		raw := int16(uint16(data[i*2]) | uint16(data[i*2+1])<<8)
		samples[i] = float32(raw) / 32768
	}

	return &AudioBuffer{
		Samples:    samples,
		SampleRate: sampleRate,
		Channels:   channels,
	}, nil
}

// EncodeFrameJPEG 将任意分辨率的帧缩放到 640x360 并编码为 JPEG。
func EncodeFrameJPEG(img image.Image) ([]byte, error) {
	if img == nil {
		return nil, errors.New("nil frame")
	}

	scaled := image.NewRGBA(image.Rect(0, 0, FrameWidth, FrameHeight))
	xdraw.ApproxBiLinear.Scale(scaled, scaled.Bounds(), img, img.Bounds(), xdraw.Src, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, scaled, &jpeg.Options{Quality: frameJPEGQuality}); err != nil {
		return nil, fmt.Errorf("jpeg encode failed: %w", err)
	}
	return buf.Bytes(), nil
}
