package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/zlnvch/canvasync/api/rest"
	"github.com/zlnvch/canvasync/api/ws"
	"github.com/zlnvch/canvasync/service"
	"github.com/zlnvch/canvasync/worker"
)

type CanvasyncAPI struct {
	restHandler *rest.Handler
	wsHandler   *ws.Handler
	shutdownCtx context.Context
}

// NewCanvasyncAPI wires the handlers and starts the snapshot consumer, which
// runs until shutdownCtx is done.
func NewCanvasyncAPI(svc *service.Service, clientConfig ws.ClientConfig, shutdownCtx context.Context) *CanvasyncAPI {
	snapshotConsumer := worker.NewSnapshotConsumer(svc.MQ, svc)
	go snapshotConsumer.Run(shutdownCtx)

	return &CanvasyncAPI{
		restHandler: rest.NewHandler(svc),
		wsHandler:   ws.NewHandler(svc, clientConfig),
		shutdownCtx: shutdownCtx,
	}
}

func (canvasyncAPI *CanvasyncAPI) Router(allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(rest.RequestLogger)

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	wsUpgrader := canvasyncAPI.wsHandler.NewWsUpgrader(allowedOrigins)
	r.Get("/ws", func(w http.ResponseWriter, r *http.Request) {
		canvasyncAPI.wsHandler.ServeWS(wsUpgrader, w, r, canvasyncAPI.shutdownCtx)
	})

	r.Route("/rooms/{roomId}", func(rr chi.Router) {
		rr.Use(middleware.Timeout(30 * time.Second))
		rr.Get("/operations", canvasyncAPI.restHandler.HandleOperations)
		rr.Get("/presence", canvasyncAPI.restHandler.HandlePresence)
		rr.Post("/snapshot", canvasyncAPI.restHandler.HandleRequestSnapshot)
		rr.Get("/snapshot.png", canvasyncAPI.restHandler.HandleSnapshot)
	})

	return r
}
