package main

import (
	"context"
	"flag"
	"image"
	"log"
	"math"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zhouzirui/workshop-voice/internal/codec"
	"github.com/zhouzirui/workshop-voice/internal/handler/panel"
	"github.com/zhouzirui/workshop-voice/internal/model/live"
	"github.com/zhouzirui/workshop-voice/internal/model/parts"
	"github.com/zhouzirui/workshop-voice/internal/model/status"
	"github.com/zhouzirui/workshop-voice/internal/model/transcript"
	"github.com/zhouzirui/workshop-voice/internal/service/capture"
	"github.com/zhouzirui/workshop-voice/internal/service/playback"
	"github.com/zhouzirui/workshop-voice/internal/service/session"
	"github.com/zhouzirui/workshop-voice/internal/service/tools"
)

// livetester 端到端演练工具：起一个脚本化的本地对端，
// 驱动真实的采集、会话、工具与播放链路跑完一轮剧本。

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	duration := flag.Duration("duration", 10*time.Second, "演练最长运行时间")
	flag.Parse()

	addr, shutdown := startScriptedPeer()
	defer shutdown()

	board := status.NewBoard()
	tlog := transcript.NewLog(transcript.DefaultCapacity)
	hub := panel.NewHub()

	registry := tools.NewRegistry()
	registry.Register("check_parts_inventory", tools.CheckInventoryHandler(parts.NewMemoryStore(parts.Seed())))
	manualSvc, err := tools.NewManualService(context.Background(), nil, tools.ManualConfig{})
	if err != nil {
		log.Fatalf("手册服务初始化失败: %v", err)
	}
	registry.Register("get_repair_manual", tools.GetManualHandler(manualSvc))

	player := playback.NewScheduler(playback.NewSystemClock(), countingDevice{}, board)
	pipeline := capture.NewPipeline(toneSource{}, testCard{})
	pipeline.BindStatus(board)

	dialer := session.NewWSDialer(session.WSOptions{URL: "ws://" + addr + "/live"})
	ctrl := session.NewController(dialer, pipeline, player, registry, board, tlog, hub)

	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	if err := ctrl.Start(ctx); err != nil {
		log.Fatalf("会话启动失败: %v", err)
	}

	// 等剧本跑完：对端发完打断后正常关闭，会话随之回到断开状态。
	deadline := time.Now().Add(*duration)
	for time.Now().Before(deadline) && ctrl.State() != session.StateDisconnected && ctrl.State() != session.StateError {
		time.Sleep(50 * time.Millisecond)
	}
	ctrl.Stop()

	log.Printf("最终状态: %s", ctrl.State())
	snap := board.Snapshot()
	log.Printf("延迟 %dms, 缓冲 %dms, 负载 %.2f, 视觉=%v", snap.LatencyMS, snap.BufferedMS, snap.Load, snap.VisionActive)
	for _, entry := range tlog.Entries() {
		log.Printf("转写 [%s] %s", entry.Role, entry.Text)
	}
	if ctrl.State() != session.StateDisconnected {
		log.Fatal("剧本未正常收尾")
	}
}

// startScriptedPeer 启动脚本化对端，返回监听地址与关闭函数。
func startScriptedPeer() (string, func()) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		log.Fatalf("监听失败: %v", err)
	}

	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()
	mux.HandleFunc("/live", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("升级失败: %v", err)
			return
		}
		runScript(conn)
	})

	srv := &http.Server{Handler: mux}
	go srv.Serve(listener)

	return listener.Addr().String(), func() { srv.Close() }
}

// runScript 对端剧本：问候、流式语音、工具调用、打断、收尾。
func runScript(conn *websocket.Conn) {
	defer conn.Close()

	// 吞掉客户端持续上行的媒体帧，只拦截工具应答。
	responses := make(chan live.OutboundMessage, 16)
	go func() {
		for {
			var msg live.OutboundMessage
			if err := conn.ReadJSON(&msg); err != nil {
				close(responses)
				return
			}
			if len(msg.FunctionResponses) > 0 {
				responses <- msg
			}
		}
	}()

	send := func(msg live.InboundMessage) bool {
		if err := conn.WriteJSON(msg); err != nil {
			log.Printf("对端发送失败: %v", err)
			return false
		}
		return true
	}

	send(live.InboundMessage{InputTranscript: "液压阀在杆部渗油"})
	send(live.InboundMessage{OutputTranscript: "收到，我先查一下库存和手册"})

	for i := 0; i < 3; i++ {
		send(live.InboundMessage{Audio: &live.InlineAudio{
			Data:     codec.EncodeBytes(tonePCM(200 * time.Millisecond)),
			MimeType: "audio/pcm;rate=24000",
		}})
	}

	send(live.InboundMessage{ToolCalls: []live.ToolCall{
		{ID: "t1", Name: "check_parts_inventory", Args: map[string]any{"part_id": "X1"}},
		{ID: "t2", Name: "get_repair_manual", Args: map[string]any{"device": "hydraulic valve", "issue": "leaking"}},
	}})

	// 两次调用各等一个应答。
	for i := 0; i < 2; i++ {
		select {
		case msg, ok := <-responses:
			if !ok {
				return
			}
			log.Printf("对端收到工具应答: %s -> %q",
				msg.FunctionResponses[0].ID, msg.FunctionResponses[0].Response.Result)
		case <-time.After(5 * time.Second):
			log.Printf("等待工具应答超时")
			return
		}
	}

	// 模拟用户抢话：先打断，再补一段新语音。
	send(live.InboundMessage{Interrupted: true})
	send(live.InboundMessage{
		Audio:            &live.InlineAudio{Data: codec.EncodeBytes(tonePCM(120 * time.Millisecond))},
		OutputTranscript: "好的，库存有货，我接着说检修步骤",
	})

	time.Sleep(300 * time.Millisecond)
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
}

// tonePCM 生成440Hz正弦波的s16le字节流。
func tonePCM(d time.Duration) []byte {
	frames := int(d * playback.OutputSampleRate / time.Second)
	samples := make([]int16, frames)
	for i := range samples {
		samples[i] = int16(8000 * math.Sin(2*math.Pi*440*float64(i)/playback.OutputSampleRate))
	}
	return codec.Int16ToBytes(samples)
}

// toneSource 合成麦克风：以真实节奏吐出880Hz正弦量子。
type toneSource struct{}

func (toneSource) ReadQuantum(ctx context.Context) ([]float32, error) {
	interval := time.Duration(capture.QuantumSamples) * time.Second / capture.InputSampleRate
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(interval):
	}

	quantum := make([]float32, capture.QuantumSamples)
	for i := range quantum {
		quantum[i] = 0.25 * float32(math.Sin(2*math.Pi*880*float64(i)/capture.InputSampleRate))
	}
	return quantum, nil
}

// testCard 合成摄像头画面。
type testCard struct{}

func (testCard) Frame(ctx context.Context) (image.Image, error) {
	return image.NewRGBA(image.Rect(0, 0, 1280, 720)), nil
}

// countingDevice 丢弃音频的播放设备，演练不依赖真实声卡。
type countingDevice struct{}

func (countingDevice) Write([]byte) error { return nil }
func (countingDevice) Flush()             {}
