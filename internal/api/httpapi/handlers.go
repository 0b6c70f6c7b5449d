// Package httpapi is the HTTP surface of the api binary: carrier and payment
// webhooks plus a few operator endpoints.
package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/BearBump/ParcelHub/internal/api/httpapi/webhookauth"
	"github.com/BearBump/ParcelHub/internal/integrations/carrier"
	"github.com/BearBump/ParcelHub/internal/lifecycle"
	"github.com/BearBump/ParcelHub/internal/models"
	"github.com/BearBump/ParcelHub/internal/services/carrierhook"
	"github.com/BearBump/ParcelHub/internal/services/payments"
	"github.com/go-chi/chi/v5"
)

const maxBodyBytes = 1 << 20

type CarrierIngestor interface {
	Authorize(token string) error
	Ingest(ctx context.Context, token string, p carrierhook.Payload) (carrierhook.Summary, error)
}

type PaymentReconciler interface {
	Reconcile(ctx context.Context, ev payments.Event) (payments.Outcome, error)
	AcceptQuote(ctx context.Context, quoteID uint64) ([]lifecycle.Transition, error)
}

type PackageAdmin interface {
	GetPackage(ctx context.Context, id uint64) (*models.Package, error)
	ChangeStatus(ctx context.Context, packageID uint64, status, reason string) (*lifecycle.Transition, error)
}

type TrackingRegistrar interface {
	RegisterPackageTracking(ctx context.Context, packageID uint64) (carrier.RegisterResult, error)
	DetectAndSetCarrier(ctx context.Context, packageID uint64) (string, error)
}

type SyncRequester interface {
	RequestSync(ctx context.Context, packageID uint64, requestID string) error
}

type Handlers struct {
	carrier  CarrierIngestor
	payments PaymentReconciler
	packages PackageAdmin
	tracking TrackingRegistrar
	sync     SyncRequester
	verifier *webhookauth.Verifier
	log      *slog.Logger
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	b, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, r, http.StatusRequestEntityTooLarge, "body too large or unreadable")
		return nil, false
	}
	return b, true
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, name), 10, 64)
	if err != nil || id == 0 {
		writeError(w, r, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return id, true
}

// CarrierWebhook handles POST /webhooks/carrier?token=...
func (h *Handlers) CarrierWebhook(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if err := h.carrier.Authorize(token); err != nil {
		writeError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}

	body, ok := readBody(w, r)
	if !ok {
		return
	}
	var p carrierhook.Payload
	if err := json.Unmarshal(body, &p); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid json")
		return
	}

	sum, err := h.carrier.Ingest(r.Context(), token, p)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

type gatewayEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID            string `json:"id"`
			PaymentIntent string `json:"payment_intent"`
		} `json:"object"`
	} `json:"data"`
}

// gatewayPaymentID: refunds carry a charge object that points at its payment intent.
func (e gatewayEvent) gatewayPaymentID() string {
	if e.Data.Object.PaymentIntent != "" {
		return e.Data.Object.PaymentIntent
	}
	return e.Data.Object.ID
}

// PaymentWebhook handles POST /webhooks/payments. Unknown payments answer 404
// so the gateway redelivers once the payment row exists.
func (h *Handlers) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	if err := h.verifier.Verify(r.Header.Get(webhookauth.TimestampHeader), r.Header.Get(webhookauth.SignatureHeader), body); err != nil {
		h.log.Warn("payment webhook rejected", "rid", RequestIDFromContext(r.Context()), "reason", err.Error())
		writeError(w, r, http.StatusUnauthorized, "invalid signature")
		return
	}

	var ev gatewayEvent
	if err := json.Unmarshal(body, &ev); err != nil || ev.Type == "" {
		writeError(w, r, http.StatusBadRequest, "invalid event")
		return
	}

	out, err := h.payments.Reconcile(r.Context(), payments.Event{
		ID:               ev.ID,
		Type:             ev.Type,
		GatewayPaymentID: ev.gatewayPaymentID(),
		Verified:         true,
	})
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

type packageView struct {
	ID             uint64     `json:"id"`
	OwnerID        uint64     `json:"ownerId"`
	TrackingNumber string     `json:"trackingNumber,omitempty"`
	CarrierCode    string     `json:"carrierCode,omitempty"`
	CarrierName    string     `json:"carrierName,omitempty"`
	Status         string     `json:"status"`
	ReceivedAt     *time.Time `json:"receivedAt,omitempty"`
	ShippedAt      *time.Time `json:"shippedAt,omitempty"`
	DeliveredAt    *time.Time `json:"deliveredAt,omitempty"`
	QuoteID        *uint64    `json:"quoteId,omitempty"`
}

func toView(p *models.Package) packageView {
	return packageView{
		ID:             p.ID,
		OwnerID:        p.OwnerID,
		TrackingNumber: p.TrackingNumber,
		CarrierCode:    p.CarrierCode,
		CarrierName:    p.CarrierName,
		Status:         string(p.Status),
		ReceivedAt:     p.ReceivedAt,
		ShippedAt:      p.ShippedAt,
		DeliveredAt:    p.DeliveredAt,
		QuoteID:        p.QuoteID,
	}
}

// GetPackage handles GET /packages/{id}.
func (h *Handlers) GetPackage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	p, err := h.packages.GetPackage(r.Context(), id)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toView(p))
}

type changeStatusRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

type changeStatusResponse struct {
	Changed bool   `json:"changed"`
	From    string `json:"from,omitempty"`
	To      string `json:"to,omitempty"`
}

// ChangeStatus handles POST /admin/packages/{id}/status.
func (h *Handlers) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req changeStatusRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid json")
		return
	}

	tr, err := h.packages.ChangeStatus(r.Context(), id, req.Status, req.Reason)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	if tr == nil {
		writeJSON(w, http.StatusOK, changeStatusResponse{})
		return
	}
	writeJSON(w, http.StatusOK, changeStatusResponse{Changed: true, From: string(tr.From), To: string(tr.To)})
}

// AcceptQuote handles POST /admin/quotes/{id}/accept.
func (h *Handlers) AcceptQuote(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	trs, err := h.payments.AcceptQuote(r.Context(), id)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"packagesChanged": len(trs)})
}

type registerResponse struct {
	CarrierCode string   `json:"carrierCode,omitempty"`
	Accepted    bool     `json:"accepted"`
	Rejections  []string `json:"rejections,omitempty"`
}

// RegisterTracking handles POST /packages/{id}/tracking: detect the carrier
// when missing, then subscribe the number at the gateway.
func (h *Handlers) RegisterTracking(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	code, err := h.tracking.DetectAndSetCarrier(r.Context(), id)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	res, err := h.tracking.RegisterPackageTracking(r.Context(), id)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}

	out := registerResponse{CarrierCode: code, Accepted: len(res.Accepted) > 0}
	for _, rej := range res.Rejected {
		out.Rejections = append(out.Rejections, rej.Message)
	}
	writeJSON(w, http.StatusOK, out)
}

// RequestSync handles POST /packages/{id}/sync. The worker does the actual pull.
func (h *Handlers) RequestSync(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if _, err := h.packages.GetPackage(r.Context(), id); err != nil {
		h.writeErr(w, r, err)
		return
	}
	rid := RequestIDFromContext(r.Context())
	if err := h.sync.RequestSync(r.Context(), id, rid); err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"requestId": rid})
}
