package httpapi

import (
	"net/http"

	"github.com/PandakiraDev/song-guess/internal/store"
	"github.com/go-chi/chi/v5"
	qrcode "github.com/skip2/go-qrcode"
	"go.uber.org/zap"
)

// RoomQR serves a QR code for sharing a join code. The encoded content
// is the join URL when a base URL is configured, otherwise the bare
// code for manual entry.
func RoomQR(reg *store.Registry, baseURL string, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := chi.URLParam(r, "code")

		reply := make(chan *store.Room, 1)
		reg.Inbox() <- store.Get{Code: code, Reply: reply}
		if <-reply == nil {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}

		content := code
		if baseURL != "" {
			content = baseURL + "/join?code=" + code
		}
		png, err := qrcode.Encode(content, qrcode.Medium, 256)
		if err != nil {
			log.Error("qr encoding failed", zap.String("code", code), zap.Error(err))
			http.Error(w, "failed to render qr", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(png)
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
