package httpapi

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"time"

	"github.com/BearBump/ParcelHub/internal/api/httpapi/webhookauth"
	"github.com/go-chi/chi/v5"
	httpSwagger "github.com/swaggo/http-swagger"
)

type Deps struct {
	Carrier  CarrierIngestor
	Payments PaymentReconciler
	Packages PackageAdmin
	Tracking TrackingRegistrar
	Sync     SyncRequester

	PaymentSecret    string
	PaymentTolerance time.Duration
	AdminToken       string
	SwaggerPath      string

	// Ready is called by /readyz; nil means always ready.
	Ready  func(ctx context.Context) error
	Logger *slog.Logger
}

const AdminTokenHeader = "X-Admin-Token"

func NewRouter(d Deps) http.Handler {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		carrier:  d.Carrier,
		payments: d.Payments,
		packages: d.Packages,
		tracking: d.Tracking,
		sync:     d.Sync,
		verifier: webhookauth.NewVerifier(d.PaymentSecret, d.PaymentTolerance),
		log:      logger.With("component", "http"),
	}

	r := chi.NewRouter()
	r.Use(WithRequestID)
	r.Use(AccessLog(h.log))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if d.Ready != nil {
			if err := d.Ready(r.Context()); err != nil {
				writeError(w, r, http.StatusServiceUnavailable, err.Error())
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})

	if d.SwaggerPath != "" {
		r.Get("/swagger.json", func(w http.ResponseWriter, r *http.Request) {
			http.ServeFile(w, r, d.SwaggerPath)
		})
		r.Get("/docs/*", httpSwagger.Handler(
			httpSwagger.URL("/swagger.json"),
		))
	}

	r.Post("/webhooks/carrier", h.CarrierWebhook)
	r.Post("/webhooks/payments", h.PaymentWebhook)

	r.Route("/packages/{id}", func(r chi.Router) {
		r.Get("/", h.GetPackage)
		r.Post("/tracking", h.RegisterTracking)
		r.Post("/sync", h.RequestSync)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(adminOnly(d.AdminToken))
		r.Post("/packages/{id}/status", h.ChangeStatus)
		r.Post("/quotes/{id}/accept", h.AcceptQuote)
	})

	return r
}

// adminOnly is a shared-token gate. Without a configured token every request
// is rejected.
func adminOnly(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				writeError(w, r, http.StatusServiceUnavailable, "admin api disabled")
				return
			}
			if subtle.ConstantTimeCompare([]byte(r.Header.Get(AdminTokenHeader)), []byte(token)) != 1 {
				writeError(w, r, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
