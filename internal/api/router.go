package api

import (
	"fmt"
	"net/http"
	"time"

	"ms-checkout/internal/auth"
	"ms-checkout/internal/models"
	"ms-checkout/internal/utils"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type RouterOptions struct {
	Verifier auth.Verifier

	// UploadsDir, when set, is served read-only under /uploads for the disk object store.
	UploadsDir string
}

// NewRouter wires every route onto a chi router.
func NewRouter(h *Handler, opts RouterOptions) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(h.instrument)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("ok", nil))
	})
	if h.Metrics != nil {
		r.Handle("/metrics", h.Metrics.Handler())
	}
	if opts.UploadsDir != "" {
		r.Handle("/uploads/*", http.StripPrefix("/uploads/", http.FileServer(http.Dir(opts.UploadsDir))))
	}

	authenticated := auth.Middleware(opts.Verifier, h.Logger)
	organizerOnly := auth.RequireRole(models.RoleOrganizer)

	r.Route("/api", func(r chi.Router) {
		r.Route("/events", func(r chi.Router) {
			r.Get("/ongoing", h.OngoingEvents)
			r.Get("/organizer/{organizerId}", h.OrganizerEvents)
			r.Get("/{eventId}", h.GetEvent)
			r.With(authenticated, organizerOnly).Patch("/{eventId}", h.UpdateEvent)
		})

		r.Group(func(r chi.Router) {
			r.Use(authenticated)

			r.Route("/transactions", func(r chi.Router) {
				r.Post("/checkout", h.CreateCheckout)
				r.Get("/checkout-info", h.CheckoutInfo)
				r.Get("/me", h.MyTransactions)
				r.Post("/{id}/payment-proof", h.UploadPaymentProof)
				r.Get("/{id}/ticket", h.TicketQR)

				r.With(organizerOnly).Get("/pending", h.PendingTransactions)
				r.With(organizerOnly).Patch("/{id}/status", h.SettleTransaction)
			})

			r.Route("/users", func(r chi.Router) {
				r.Get("/points", h.UserPoints)
				r.Get("/coupons", h.UserCoupons)
				r.Get("/vouchers/{eventId}", h.EventVouchers)
			})

			r.Route("/statistics", func(r chi.Router) {
				r.Use(organizerOnly)
				r.Get("/data", h.Statistics)
				r.Get("/daily", h.DailySales)
				r.Get("/stream", h.StatisticsStream)
			})
		})
	})

	return r
}

// instrument records latency and status per route pattern and logs each request.
func (h *Handler) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		took := time.Since(start)

		h.Metrics.ObserveHTTP(r.Method, route, status, took)
		h.Logger.LogAPI(r.Method, r.URL.Path, fmt.Sprintf("%d", status), took.String())
	})
}
