package session

import (
	"context"
	"errors"

	"github.com/zhouzirui/workshop-voice/internal/model/live"
)

// ErrClosed 表示通道已正常关闭（远端正常挥手或本端主动断开）。
// 接收循环据此区分正常拆除与异常故障。
var ErrClosed = errors.New("session: channel closed")

// Channel 与远端的双工消息通道。Send 可被多个 goroutine 并发调用，
// Receive 只允许单一读者。
type Channel interface {
	Send(msg live.OutboundMessage) error
	Receive() (*live.InboundMessage, error)
	Close() error
}

// Dialer 建立一条新通道。拨号失败由调用方决定会话进入何种状态。
type Dialer func(ctx context.Context) (Channel, error)
