package playback

import "time"

// systemClock 基于 time 包的真实单调时钟。
type systemClock struct {
	start time.Time
}

// NewSystemClock 创建从当前时刻起算的单调时钟。
func NewSystemClock() Clock {
	return &systemClock{start: time.Now()}
}

func (c *systemClock) Now() time.Duration {
	return time.Since(c.start)
}

func (c *systemClock) AfterFunc(d time.Duration, f func()) Timer {
	if d < 0 {
		d = 0
	}
	return time.AfterFunc(d, f)
}
