package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/BearBump/ParcelHub/internal/api/httpapi/webhookauth"
	"github.com/BearBump/ParcelHub/internal/integrations/carrier/fake"
	"github.com/BearBump/ParcelHub/internal/models"
	"github.com/BearBump/ParcelHub/internal/services/carrierhook"
	"github.com/BearBump/ParcelHub/internal/services/packages"
	"github.com/BearBump/ParcelHub/internal/services/payments"
	"github.com/BearBump/ParcelHub/internal/services/tracking"
	"github.com/BearBump/ParcelHub/internal/storage/memstore"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

const (
	hookToken  = "carrier-token"
	paySecret  = "whsec_test"
	adminToken = "admin"
)

type syncMock struct {
	mock.Mock
}

func (m *syncMock) RequestSync(ctx context.Context, packageID uint64, requestID string) error {
	return m.Called(ctx, packageID, requestID).Error(0)
}

type RouterSuite struct {
	suite.Suite

	store *memstore.Store
	gw    *fake.Gateway
	sync  *syncMock
	srv   *httptest.Server
}

func (s *RouterSuite) SetupTest() {
	s.store = memstore.New()
	s.gw = fake.New()
	s.sync = &syncMock{}

	pipe := tracking.NewPipeline(s.store, nil, nil)
	syncer := tracking.NewSynchronizer(s.store, s.gw, pipe, nil)

	s.srv = httptest.NewServer(NewRouter(Deps{
		Carrier:       carrierhook.New(s.store, pipe, hookToken, nil),
		Payments:      payments.New(s.store, nil, nil),
		Packages:      packages.New(s.store, nil, nil),
		Tracking:      syncer,
		Sync:          s.sync,
		PaymentSecret: paySecret,
		AdminToken:    adminToken,
	}))
}

func (s *RouterSuite) TearDownTest() {
	s.srv.Close()
}

func (s *RouterSuite) do(method, path string, body []byte, hdr map[string]string) (*http.Response, map[string]any) {
	req, err := http.NewRequest(method, s.srv.URL+path, bytes.NewReader(body))
	s.Require().NoError(err)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func (s *RouterSuite) signed(body []byte) map[string]string {
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	return map[string]string{
		webhookauth.TimestampHeader: ts,
		webhookauth.SignatureHeader: webhookauth.Sign(paySecret, ts, body),
	}
}

func (s *RouterSuite) TestHealthz() {
	resp, body := s.do(http.MethodGet, "/healthz", nil, nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Require().Equal("ok", body["status"])
	s.Require().NotEmpty(resp.Header.Get(RequestIDHeader))
}

func (s *RouterSuite) TestCarrierWebhook() {
	p := s.store.AddPackage(models.Package{TrackingNumber: "1Z999AA1"})
	payload := []byte(`{"event":"TRACKING_UPDATED","data":{"accepted":[{"number":"1Z999AA1","carrier":100002,"tag":"1","track":{"status":40,"events":[{"time":"2025-03-01T18:00:00Z","description":"Delivered"}]}}]}}`)

	resp, _ := s.do(http.MethodPost, "/webhooks/carrier?token=nope", payload, nil)
	s.Require().Equal(http.StatusUnauthorized, resp.StatusCode)
	s.Require().Zero(s.store.Writes())

	resp, body := s.do(http.MethodPost, "/webhooks/carrier?token="+hookToken, payload, nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Require().EqualValues(1, body["processed"])
	s.Require().EqualValues(0, body["errors"])

	got, err := s.store.GetPackage(context.Background(), p.ID)
	s.Require().NoError(err)
	s.Require().Equal(models.PackageStatusDelivered, got.Status)

	resp, _ = s.do(http.MethodPost, "/webhooks/carrier?token="+hookToken, []byte(`{`), nil)
	s.Require().Equal(http.StatusBadRequest, resp.StatusCode)
}

func (s *RouterSuite) TestPaymentWebhook() {
	q := s.store.AddQuote(models.Quote{TotalAmount: 100, Currency: "EUR"})
	s.store.AddPayment(models.Payment{QuoteID: q.ID, GatewayPaymentID: "pi_1"})
	qid := q.ID
	pkg := s.store.AddPackage(models.Package{Status: models.PackageStatusQuoteReady, QuoteID: &qid})

	body := []byte(`{"id":"evt_1","type":"payment_intent.succeeded","data":{"object":{"id":"pi_1"}}}`)

	resp, _ := s.do(http.MethodPost, "/webhooks/payments", body, map[string]string{
		webhookauth.TimestampHeader: strconv.FormatInt(time.Now().Unix(), 10),
		webhookauth.SignatureHeader: "deadbeef",
	})
	s.Require().Equal(http.StatusUnauthorized, resp.StatusCode)

	resp, out := s.do(http.MethodPost, "/webhooks/payments", body, s.signed(body))
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Require().Equal(true, out["applied"])

	resp, out = s.do(http.MethodPost, "/webhooks/payments", body, s.signed(body))
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Require().Equal(false, out["applied"])

	got, _ := s.store.GetPackage(context.Background(), pkg.ID)
	s.Require().Equal(models.PackageStatusPaid, got.Status)

	refund := []byte(`{"id":"evt_2","type":"charge.refunded","data":{"object":{"id":"ch_1","payment_intent":"pi_1"}}}`)
	resp, _ = s.do(http.MethodPost, "/webhooks/payments", refund, s.signed(refund))
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	got, _ = s.store.GetPackage(context.Background(), pkg.ID)
	s.Require().Equal(models.PackageStatusStored, got.Status)

	unknown := []byte(`{"id":"evt_3","type":"payment_intent.succeeded","data":{"object":{"id":"pi_unknown"}}}`)
	resp, _ = s.do(http.MethodPost, "/webhooks/payments", unknown, s.signed(unknown))
	s.Require().Equal(http.StatusNotFound, resp.StatusCode)
}

func (s *RouterSuite) TestAdminChangeStatus() {
	p := s.store.AddPackage(models.Package{TrackingNumber: "A"})
	path := "/admin/packages/" + strconv.FormatUint(p.ID, 10) + "/status"
	auth := map[string]string{AdminTokenHeader: adminToken}

	resp, _ := s.do(http.MethodPost, path, []byte(`{"status":"STORED"}`), nil)
	s.Require().Equal(http.StatusUnauthorized, resp.StatusCode)

	resp, _ = s.do(http.MethodPost, path, []byte(`{"status":"LOST"}`), auth)
	s.Require().Equal(http.StatusBadRequest, resp.StatusCode)

	resp, out := s.do(http.MethodPost, path, []byte(`{"status":"stored","reason":"manual check-in"}`), auth)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Require().Equal(true, out["changed"])
	s.Require().Equal("STORED", out["to"])

	resp, _ = s.do(http.MethodPost, "/admin/packages/999/status", []byte(`{"status":"STORED"}`), auth)
	s.Require().Equal(http.StatusNotFound, resp.StatusCode)
}

func (s *RouterSuite) TestAdmin_NoTokenConfiguredFailsClosed() {
	p := s.store.AddPackage(models.Package{TrackingNumber: "A"})
	srv := httptest.NewServer(NewRouter(Deps{
		Packages: packages.New(s.store, nil, nil),
		Payments: payments.New(s.store, nil, nil),
	}))
	defer srv.Close()

	for _, hdr := range []string{"", "anything"} {
		req, err := http.NewRequest(http.MethodPost, srv.URL+"/admin/packages/"+strconv.FormatUint(p.ID, 10)+"/status",
			bytes.NewReader([]byte(`{"status":"DELIVERED"}`)))
		s.Require().NoError(err)
		req.Header.Set(AdminTokenHeader, hdr)
		resp, err := http.DefaultClient.Do(req)
		s.Require().NoError(err)
		resp.Body.Close()
		s.Require().Equal(http.StatusServiceUnavailable, resp.StatusCode)
	}

	got, err := s.store.GetPackage(context.Background(), p.ID)
	s.Require().NoError(err)
	s.Require().Equal(models.PackageStatusAnnounced, got.Status)
}

func (s *RouterSuite) TestAcceptQuote() {
	q := s.store.AddQuote(models.Quote{})
	qid := q.ID
	s.store.AddPackage(models.Package{Status: models.PackageStatusQuoteRequested, QuoteID: &qid})

	resp, out := s.do(http.MethodPost, "/admin/quotes/"+strconv.FormatUint(qid, 10)+"/accept", nil, map[string]string{AdminTokenHeader: adminToken})
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Require().EqualValues(1, out["packagesChanged"])
}

func (s *RouterSuite) TestRegisterTracking() {
	p := s.store.AddPackage(models.Package{TrackingNumber: "LX123456789CN"})
	noNumber := s.store.AddPackage(models.Package{})

	resp, out := s.do(http.MethodPost, "/packages/"+strconv.FormatUint(p.ID, 10)+"/tracking", nil, nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Require().Equal(true, out["accepted"])
	s.Require().NotEmpty(out["carrierCode"])
	s.Require().True(s.gw.Registered("LX123456789CN"))

	resp, _ = s.do(http.MethodPost, "/packages/"+strconv.FormatUint(noNumber.ID, 10)+"/tracking", nil, nil)
	s.Require().Equal(http.StatusBadRequest, resp.StatusCode)
}

func (s *RouterSuite) TestRequestSync() {
	p := s.store.AddPackage(models.Package{TrackingNumber: "A"})
	s.sync.On("RequestSync", mock.Anything, p.ID, "rid-42").Return(nil).Once()

	resp, out := s.do(http.MethodPost, "/packages/"+strconv.FormatUint(p.ID, 10)+"/sync", nil, map[string]string{RequestIDHeader: "rid-42"})
	s.Require().Equal(http.StatusAccepted, resp.StatusCode)
	s.Require().Equal("rid-42", out["requestId"])
	s.sync.AssertExpectations(s.T())

	resp, _ = s.do(http.MethodPost, "/packages/404/sync", nil, nil)
	s.Require().Equal(http.StatusNotFound, resp.StatusCode)

	resp, _ = s.do(http.MethodGet, "/packages/abc", nil, nil)
	s.Require().Equal(http.StatusBadRequest, resp.StatusCode)
}

func (s *RouterSuite) TestGetPackage() {
	p := s.store.AddPackage(models.Package{TrackingNumber: "A", OwnerID: 5})
	resp, out := s.do(http.MethodGet, "/packages/"+strconv.FormatUint(p.ID, 10), nil, nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Require().Equal("ANNOUNCED", out["status"])
	s.Require().True(strings.EqualFold("A", out["trackingNumber"].(string)))
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}
