package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/workshop-voice/internal/handler/panel"
	middlewarePkg "github.com/zhouzirui/workshop-voice/internal/middleware"
	"github.com/zhouzirui/workshop-voice/internal/model/status"
	"github.com/zhouzirui/workshop-voice/internal/model/transcript"
)

// NewRouter wires the debug panel routes to the running session.
func NewRouter(tlog *transcript.Log, board *status.Board, states panel.StateReporter, hub *panel.Hub) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	panelHandler := panel.New(tlog, board, states, hub)

	r.Route("/api", func(api chi.Router) {
		panelHandler.RegisterRoutes(api)
	})

	return r
}
