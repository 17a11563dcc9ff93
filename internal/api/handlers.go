package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/notification-agent/internal/agent"
	"github.com/ignite/notification-agent/internal/catalog"
	"github.com/ignite/notification-agent/internal/delivery"
	"github.com/ignite/notification-agent/internal/domain"
	"github.com/ignite/notification-agent/internal/ingest"
	"github.com/ignite/notification-agent/internal/pkg/httputil"
)

// EventHandler is satisfied by *agent.Orchestrator.
type EventHandler interface {
	Handle(ctx context.Context, ev *domain.Event) (agent.Result, error)
}

// DeliveryReader is the tracker read side.
type DeliveryReader interface {
	Get(ctx context.Context, id string) (*domain.DeliveryRecord, error)
	List(ctx context.Context, f delivery.ListFilter) ([]domain.DeliveryRecord, int, error)
	Rates(ctx context.Context, f delivery.CountFilter) ([]delivery.Rates, error)
	Summary(ctx context.Context, f delivery.CountFilter) (delivery.Summary, error)
}

// CatalogStats is satisfied by *catalog.Catalog.
type CatalogStats interface {
	Stats() catalog.Stats
}

// Handlers contains the HTTP handlers for event intake and the read side.
type Handlers struct {
	events     EventHandler
	deliveries DeliveryReader
	catalog    CatalogStats
	now        func() time.Time
}

// NewHandlers wires the handlers.
func NewHandlers(events EventHandler, deliveries DeliveryReader, cat CatalogStats) *Handlers {
	return &Handlers{events: events, deliveries: deliveries, catalog: cat, now: time.Now}
}

const maxEventBytes = 1 << 20

// HandleEvent runs one lifecycle event through the agent.
//
//	POST /v1/events
func (h *Handlers) HandleEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxEventBytes))
	if err != nil {
		httputil.BadRequest(w, "could not read body")
		return
	}
	ev, err := ingest.DecodeEvent(body)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	res, err := h.events.Handle(r.Context(), ev)
	switch {
	case errors.Is(err, agent.ErrInvalidEvent):
		httputil.BadRequest(w, err.Error())
	case errors.Is(err, agent.ErrDeclined):
		httputil.Unavailable(w, "event declined, retry later")
	case err != nil:
		httputil.InternalError(w, err)
	default:
		httputil.OK(w, res)
	}
}

// ListDeliveries returns a page of delivery records, newest first.
//
//	GET /v1/deliveries?channel=&status=&rule_id=&recipient_id=&start_date=&end_date=&page=&limit=
func (h *Handlers) ListDeliveries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := delivery.ListFilter{
		RuleID:      q.Get("rule_id"),
		RecipientID: q.Get("recipient_id"),
	}
	if v := q.Get("channel"); v != "" {
		ch, ok := domain.ParseChannel(v)
		if !ok {
			httputil.BadRequest(w, "unknown channel "+v)
			return
		}
		f.Channel = ch
	}
	if v := q.Get("status"); v != "" {
		st, ok := domain.ParseDeliveryStatus(v)
		if !ok {
			httputil.BadRequest(w, "unknown status "+v)
			return
		}
		f.Status = st
	}
	rng, err := parseDateRange(r, time.Time{})
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	f.From, f.To = rng.Start, rng.End

	page := parsePage(r, 50, 500)
	f.Limit, f.Offset = page.Limit, page.Offset

	records, total, err := h.deliveries.List(r.Context(), f)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, newPage(records, page, int64(total)))
}

// GetDelivery returns one record.
//
//	GET /v1/deliveries/{id}
func (h *Handlers) GetDelivery(w http.ResponseWriter, r *http.Request) {
	rec, err := h.deliveries.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, delivery.ErrNotFound) {
		httputil.NotFound(w, "delivery not found")
		return
	}
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, rec)
}

// GetRates returns per-channel, per-day rates. Defaults to the last 30 days.
//
//	GET /v1/analytics/rates?start_date=&end_date=&channel=
func (h *Handlers) GetRates(w http.ResponseWriter, r *http.Request) {
	f, ok := h.countFilter(w, r)
	if !ok {
		return
	}
	rates, err := h.deliveries.Rates(r.Context(), f)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if rates == nil {
		rates = []delivery.Rates{}
	}
	httputil.OK(w, map[string]any{
		"start_date": f.From.Format(delivery.DayFormat),
		"end_date":   f.To.AddDate(0, 0, -1).Format(delivery.DayFormat),
		"rates":      rates,
	})
}

// GetSummary totals the window per channel and overall.
//
//	GET /v1/analytics/summary?start_date=&end_date=&channel=
func (h *Handlers) GetSummary(w http.ResponseWriter, r *http.Request) {
	f, ok := h.countFilter(w, r)
	if !ok {
		return
	}
	sum, err := h.deliveries.Summary(r.Context(), f)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, sum)
}

// GetCatalog describes the loaded rule snapshot.
//
//	GET /v1/catalog
func (h *Handlers) GetCatalog(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, h.catalog.Stats())
}

func (h *Handlers) countFilter(w http.ResponseWriter, r *http.Request) (delivery.CountFilter, bool) {
	today, _ := delivery.DayRange(h.now())
	rng, err := parseDateRange(r, today.AddDate(0, 0, -29))
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return delivery.CountFilter{}, false
	}
	if rng.End.IsZero() {
		rng.End = today.AddDate(0, 0, 1)
	}
	f := delivery.CountFilter{From: rng.Start, To: rng.End}
	if v := r.URL.Query().Get("channel"); v != "" {
		ch, ok := domain.ParseChannel(v)
		if !ok {
			httputil.BadRequest(w, "unknown channel "+v)
			return delivery.CountFilter{}, false
		}
		f.Channel = ch
	}
	return f, true
}
