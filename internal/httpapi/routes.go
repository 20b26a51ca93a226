package httpapi

import (
	"net/http"

	"github.com/PandakiraDev/song-guess/internal/session"
	"github.com/PandakiraDev/song-guess/internal/store"
	"github.com/PandakiraDev/song-guess/internal/ws"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func SetupRoutes(reg *store.Registry, arch session.Archiver, baseURL string, log *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// Public routes
	r.Get("/healthz", Healthz)
	r.Get("/rooms/{code}/qr", RoomQR(reg, baseURL, log))
	r.Get("/ws", ws.Handler(reg, arch, log))
	return r
}
