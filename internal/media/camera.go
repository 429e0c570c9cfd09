package media

import (
	"context"
	"image"
	"image/color"
	"sync/atomic"
)

// Camera 合成测试画面的视频源，在没有真实摄像头的环境下
// 仍能驱动完整的视觉链路。画面带逐帧移动的扫描条，便于确认帧在更新。
type Camera struct {
	width  int
	height int
	frames atomic.Uint64
}

// NewCamera 创建合成摄像头，输出 1280x720 画面。
func NewCamera() *Camera {
	return &Camera{width: 1280, height: 720}
}

// Frame 实现 capture.VideoSource。
func (c *Camera) Frame(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	n := c.frames.Add(1)
	img := image.NewRGBA(image.Rect(0, 0, c.width, c.height))

	barX := int(n*16) % c.width
	for y := 0; y < c.height; y++ {
		for x := 0; x < c.width; x++ {
			px := color.RGBA{
				R: uint8(x * 255 / c.width),
				G: uint8(y * 255 / c.height),
				B: 64,
				A: 255,
			}
			if x >= barX && x < barX+24 {
				px = color.RGBA{R: 255, G: 255, B: 255, A: 255}
			}
			img.SetRGBA(x, y, px)
		}
	}
	return img, nil
}
