package session

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zhouzirui/workshop-voice/internal/model/live"
)

// WSOptions WebSocket 通道的连接参数。
type WSOptions struct {
	URL    string
	APIKey string

	HandshakeTimeout time.Duration
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	PingInterval     time.Duration
}

func (o *WSOptions) fillDefaults() {
	if o.HandshakeTimeout == 0 {
		o.HandshakeTimeout = 30 * time.Second
	}
	if o.ReadTimeout == 0 {
		o.ReadTimeout = 60 * time.Second
	}
	if o.WriteTimeout == 0 {
		o.WriteTimeout = 30 * time.Second
	}
	if o.PingInterval == 0 {
		o.PingInterval = 30 * time.Second
	}
}

// NewWSDialer 返回按给定参数建立 WebSocket 通道的 Dialer。
func NewWSDialer(opts WSOptions) Dialer {
	opts.fillDefaults()
	return func(ctx context.Context) (Channel, error) {
		return dialWS(ctx, opts)
	}
}

// wsChannel 基于 gorilla/websocket 的双工通道实现。
// 写侧由 writeMu 串行化，读侧由会话控制器独占。
type wsChannel struct {
	conn *websocket.Conn
	opts WSOptions

	writeMu sync.Mutex
	closed  atomic.Bool
	pingCtx context.CancelFunc
}

func dialWS(ctx context.Context, opts WSOptions) (Channel, error) {
	dialer := &websocket.Dialer{
		HandshakeTimeout: opts.HandshakeTimeout,
	}

	header := http.Header{}
	if opts.APIKey != "" {
		header.Set("Authorization", "Bearer "+opts.APIKey)
	}

	conn, _, err := dialer.DialContext(ctx, opts.URL, header)
	if err != nil {
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(opts.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(opts.ReadTimeout))
		return nil
	})

	ch := &wsChannel{conn: conn, opts: opts}

	pingCtx, cancel := context.WithCancel(context.Background())
	ch.pingCtx = cancel
	go ch.pingLoop(pingCtx)

	return ch, nil
}

func (c *wsChannel) Send(msg live.OutboundMessage) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.closed.Load() {
		return ErrClosed
	}
	c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	if err := c.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("websocket write failed: %w", err)
	}
	return nil
}

func (c *wsChannel) Receive() (*live.InboundMessage, error) {
	var msg live.InboundMessage
	if err := c.conn.ReadJSON(&msg); err != nil {
		// 本端主动关闭与远端正常挥手都按正常结束处理。
		if c.closed.Load() || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return nil, ErrClosed
		}
		return nil, fmt.Errorf("websocket read failed: %w", err)
	}
	c.conn.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
	return &msg, nil
}

func (c *wsChannel) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.pingCtx()

	c.writeMu.Lock()
	c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(c.opts.WriteTimeout))
	c.writeMu.Unlock()

	return c.conn.Close()
}

// pingLoop 定期发送 ping 维持连接活性。
func (c *wsChannel) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.writeMu.Lock()
			c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			err := c.conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
