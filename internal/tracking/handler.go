package tracking

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/notification-agent/internal/delivery"
	"github.com/ignite/notification-agent/internal/domain"
	"github.com/ignite/notification-agent/internal/pkg/httputil"
	"github.com/ignite/notification-agent/internal/pkg/logger"
)

// 1x1 transparent GIF
var pixelGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00,
	0x80, 0x00, 0x00, 0xff, 0xff, 0xff, 0x00, 0x00, 0x00, 0x2c,
	0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00, 0x00, 0x02,
	0x02, 0x44, 0x01, 0x00, 0x3b,
}

// Handler serves provider callbacks and tracking links.
type Handler struct {
	sink  Sink
	links *Links
	now   func() time.Time
}

// NewHandler creates a callback handler.
func NewHandler(sink Sink, links *Links) *Handler {
	return &Handler{sink: sink, links: links, now: time.Now}
}

// Routes mounts the callback endpoint, and the open and click endpoints
// when links are configured.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/callbacks/{channel}", h.HandleCallback)
	if h.links == nil {
		return
	}
	r.Get("/track/open/{id}/{sig}", h.HandleOpen)
	r.Get("/track/click/{id}/{sig}", h.HandleClick)
}

// callbackBody accepts camelCase and snake_case producers.
type callbackBody struct {
	DeliveryID        string    `json:"deliveryId"`
	DeliveryIDSnake   string    `json:"delivery_id"`
	ProviderMessageID string    `json:"providerMessageId"`
	MessageIDSnake    string    `json:"provider_message_id"`
	Status            string    `json:"status"`
	Error             string    `json:"error"`
	OccurredAt        time.Time `json:"occurredAt"`
}

func (b callbackBody) update(ch domain.Channel) delivery.StatusUpdate {
	u := delivery.StatusUpdate{
		DeliveryID:        firstNonEmpty(b.DeliveryID, b.DeliveryIDSnake),
		Channel:           ch,
		ProviderMessageID: firstNonEmpty(b.ProviderMessageID, b.MessageIDSnake),
		Error:             b.Error,
		OccurredAt:        b.OccurredAt,
	}
	if st, ok := domain.ParseDeliveryStatus(b.Status); ok {
		u.Status = st
	} else {
		u.Status = domain.DeliveryStatus(b.Status)
	}
	return u
}

// HandleCallback accepts a JSON status update for a channel.
func (h *Handler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	ch, ok := domain.ParseChannel(chi.URLParam(r, "channel"))
	if !ok {
		httputil.NotFound(w, "unknown channel")
		return
	}

	var body callbackBody
	if err := json.NewDecoder(io.LimitReader(r.Body, 64<<10)).Decode(&body); err != nil {
		httputil.BadRequest(w, "invalid JSON body")
		return
	}
	u := body.update(ch)
	if err := u.Validate(); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	if err := h.sink.Submit(r.Context(), u); err != nil {
		switch {
		case errors.Is(err, delivery.ErrNotFound):
			httputil.NotFound(w, "delivery not found")
		case errors.Is(err, delivery.ErrBadUpdate):
			httputil.BadRequest(w, err.Error())
		default:
			httputil.InternalError(w, err)
		}
		return
	}
	httputil.Accepted(w, map[string]string{"status": "accepted"})
}

// HandleOpen records an open and always serves the pixel.
func (h *Handler) HandleOpen(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if h.links.verify(chi.URLParam(r, "sig"), "open", id) {
		h.submit(r, delivery.StatusUpdate{DeliveryID: id, Status: domain.StatusOpened, OccurredAt: h.now()})
	}
	servePixel(w)
}

// HandleClick records a click and redirects to the signed target.
func (h *Handler) HandleClick(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	target := r.URL.Query().Get("u")
	if target == "" || !h.links.verify(chi.URLParam(r, "sig"), "click", id, target) {
		http.Error(w, "bad link", http.StatusBadRequest)
		return
	}
	if u, err := url.Parse(target); err != nil || u.Scheme == "" || strings.EqualFold(u.Scheme, "javascript") {
		http.Error(w, "bad link", http.StatusBadRequest)
		return
	}

	h.submit(r, delivery.StatusUpdate{DeliveryID: id, Status: domain.StatusClicked, OccurredAt: h.now()})
	http.Redirect(w, r, target, http.StatusTemporaryRedirect)
}

// submit never fails the user-facing response.
func (h *Handler) submit(r *http.Request, u delivery.StatusUpdate) {
	if err := h.sink.Submit(r.Context(), u); err != nil {
		logger.Warn("tracking: link hit not recorded", "delivery_id", u.DeliveryID, "status", u.Status, "error", err)
	}
}

func servePixel(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	w.Write(pixelGIF)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
