package tracking

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
)

// pixelPNG is a 1x1 transparent PNG, encoded once at startup.
var pixelPNG = func() []byte {
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 1, 1))); err != nil {
		panic(err)
	}
	return buf.Bytes()
}()

// Recorder persists open events. Each method returns false when no row
// carries the token.
type Recorder interface {
	// RecordContactOpen bumps open_count on the contact holding the token
	// and sets opened_at on the first open only.
	RecordContactOpen(ctx context.Context, token string, at time.Time) (bool, error)

	// RecordReminderOpen does the same for a reminder queue item.
	RecordReminderOpen(ctx context.Context, token string, at time.Time) (bool, error)
}

// Handler serves the open-tracking pixel. The pixel is always returned with
// a 200, even for unknown tokens — failing the request would break image
// rendering in the recipient's mail client.
type Handler struct {
	rec Recorder
}

// NewHandler creates a tracking handler.
func NewHandler(rec Recorder) *Handler {
	return &Handler{rec: rec}
}

// Routes returns the tracking router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/track/open/{token}", h.HandleOpen)
	r.Get("/health", h.HandleHealth)
	return r
}

// HandleOpen records the open and serves the pixel. Lookup failures are
// logged, never surfaced.
func (h *Handler) HandleOpen(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	if token == "" {
		h.servePixel(w)
		return
	}

	now := time.Now().UTC()
	found, err := h.rec.RecordContactOpen(r.Context(), token, now)
	if err == nil && !found {
		found, err = h.rec.RecordReminderOpen(r.Context(), token, now)
	}
	switch {
	case err != nil:
		log.Printf("tracking: record open: %v", err)
	case !found:
		log.Printf("tracking: unknown token from %s", realIP(r))
	}

	h.servePixel(w)
}

// HandleHealth is the liveness endpoint for the tracking listener.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func (h *Handler) servePixel(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	w.Write(pixelPNG)
}

func realIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx > 0 {
			return strings.TrimSpace(xff[:idx])
		}
		return xff
	}
	if xri := r.Header.Get("X-Real-Ip"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}
