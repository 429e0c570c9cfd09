package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/zhouzirui/workshop-voice/internal/config"
	"github.com/zhouzirui/workshop-voice/internal/handler"
	"github.com/zhouzirui/workshop-voice/internal/handler/panel"
	"github.com/zhouzirui/workshop-voice/internal/media"
	"github.com/zhouzirui/workshop-voice/internal/model/parts"
	"github.com/zhouzirui/workshop-voice/internal/model/status"
	"github.com/zhouzirui/workshop-voice/internal/model/transcript"
	"github.com/zhouzirui/workshop-voice/internal/service/capture"
	"github.com/zhouzirui/workshop-voice/internal/service/playback"
	"github.com/zhouzirui/workshop-voice/internal/service/session"
	"github.com/zhouzirui/workshop-voice/internal/service/tools"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	// Shared state consumed by the debug panel
	board := status.NewBoard()
	tlog := transcript.NewLog(transcript.DefaultCapacity)
	hub := panel.NewHub()

	// Tool registry: inventory lookup plus LLM-backed repair manual
	partsStore := parts.NewMemoryStore(parts.Seed())
	registry := tools.NewRegistry()
	registry.Register("check_parts_inventory", tools.CheckInventoryHandler(partsStore))

	manualSvc := buildManualService(ctx, cfg)
	registry.Register("get_repair_manual", tools.GetManualHandler(manualSvc))

	// Audio devices, degrading gracefully on headless machines
	device, speakerCleanup := buildSpeaker()
	defer speakerCleanup()

	audioSource, micCleanup := buildMic()
	defer micCleanup()

	player := playback.NewScheduler(playback.NewSystemClock(), device, board)
	pipeline := capture.NewPipeline(audioSource, media.NewCamera())
	pipeline.BindStatus(board)

	dialer := session.NewWSDialer(session.WSOptions{
		URL:    liveURL(cfg.Live),
		APIKey: cfg.Live.APIKey,
	})
	ctrl := session.NewController(dialer, pipeline, player, registry, board, tlog, hub)

	if err := ctrl.Start(ctx); err != nil {
		log.Printf("warning: live session failed to start: %v", err)
		log.Println("debug panel stays available for inspection")
	}
	defer ctrl.Stop()

	router := handler.NewRouter(tlog, board, ctrl, hub)
	startServer(ctx, cfg.Panel, router)
}

// liveURL 把模型名作为查询参数附加到通道地址上。
func liveURL(cfg config.LiveConfig) string {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return cfg.URL
	}
	q := u.Query()
	q.Set("model", cfg.Model)
	u.RawQuery = q.Encode()
	return u.String()
}

func buildManualService(ctx context.Context, cfg *config.Config) *tools.ManualService {
	if cfg.Tools.Enabled() {
		model, err := cfg.Tools.NewChatModel(ctx)
		if err != nil {
			log.Printf("warning: failed to initialize chat model: %v", err)
			log.Println("continuing with canned manual excerpts - 请检查 Ark 模型相关环境变量")
		} else {
			svc, err := tools.NewManualService(ctx, model, tools.ManualConfig{Enabled: cfg.Tools.ManualLLMEnabled})
			if err != nil {
				log.Printf("warning: failed to initialize manual service: %v", err)
			} else {
				if svc.Enabled() {
					log.Println("Manual service using LLM generation")
				}
				return svc
			}
		}
	} else {
		log.Println("Ark 凭证未配置，检修手册使用内置摘录")
	}

	svc, err := tools.NewManualService(ctx, nil, tools.ManualConfig{})
	if err != nil {
		log.Fatalf("failed to initialize manual service: %v", err)
	}
	return svc
}

func buildSpeaker() (playback.Device, func()) {
	speaker, cleanup, err := media.NewSpeaker()
	if err != nil {
		log.Printf("warning: speaker unavailable, discarding playback: %v", err)
		return discardDevice{}, func() {}
	}
	return speaker, cleanup
}

func buildMic() (capture.AudioSource, func()) {
	mic, cleanup, err := media.NewMic()
	if err != nil {
		log.Printf("warning: microphone unavailable, sending no audio: %v", err)
		return silentSource{}, func() {}
	}
	return mic, cleanup
}

// discardDevice 无声播放设备，音频环境缺失时保持会话可用。
type discardDevice struct{}

func (discardDevice) Write([]byte) error { return nil }
func (discardDevice) Flush()             {}

// silentSource 阻塞到会话结束的空音频源。
type silentSource struct{}

func (silentSource) ReadQuantum(ctx context.Context) ([]float32, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func startServer(ctx context.Context, panelCfg config.PanelConfig, router http.Handler) {
	addr := panelCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("Workshop voice panel listening on %s", addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
