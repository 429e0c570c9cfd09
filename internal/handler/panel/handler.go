package panel

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/workshop-voice/internal/model/status"
	"github.com/zhouzirui/workshop-voice/internal/model/transcript"
	"github.com/zhouzirui/workshop-voice/internal/service/session"
	"github.com/zhouzirui/workshop-voice/pkg/utils"
)

// StateReporter 提供当前会话状态，由会话控制器实现。
type StateReporter interface {
	State() session.State
}

// Handler 调试面板的只读HTTP接口：转写快照、状态指标与SSE事件流。
type Handler struct {
	log    *transcript.Log
	board  *status.Board
	states StateReporter
	hub    *Hub
}

// New 创建面板处理器。
func New(tlog *transcript.Log, board *status.Board, states StateReporter, hub *Hub) *Handler {
	return &Handler{log: tlog, board: board, states: states, hub: hub}
}

// RegisterRoutes 注册面板路由。
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/transcript", h.handleTranscript)
	r.Get("/status", h.handleStatus)
	r.Get("/state", h.handleState)
	r.Get("/events", h.handleEvents)
}

func (h *Handler) handleTranscript(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"entries": h.log.Entries(),
	})
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.board.Snapshot())
}

func (h *Handler) handleState(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]string{
		"state": string(h.states.State()),
	})
}

// handleEvents 把枢纽上的事件按SSE推送给面板，直到连接断开。
func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	utils.SetupSSEHeaders(w)

	events, cancel := h.hub.Subscribe()
	defer cancel()

	log.Printf("[panel] events stream opened from %s", r.RemoteAddr)
	defer log.Printf("[panel] events stream closed from %s", r.RemoteAddr)

	// 先推一帧全量状态，面板无需等待下一次变更。
	utils.SendSSEEvent(w, flusher, "state", string(h.states.State()))
	utils.SendSSEEvent(w, flusher, "status", h.board.Snapshot())

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			utils.SendSSEEvent(w, flusher, ev.Kind, ev.Data)
		}
	}
}
