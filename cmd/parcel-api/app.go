package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/BearBump/ParcelHub/internal/api/httpapi"
	"github.com/BearBump/ParcelHub/internal/app"
	"github.com/BearBump/ParcelHub/internal/services/carrierhook"
	"github.com/BearBump/ParcelHub/internal/services/packages"
	"github.com/BearBump/ParcelHub/internal/services/payments"
	"github.com/BearBump/ParcelHub/internal/services/tracking"
	"github.com/pkg/errors"
)

type parcelAPIOpts struct {
	httpAddr    string
	swaggerPath string

	onListen func(httpAddr string)
}

func runParcelAPI(ctx context.Context, opts parcelAPIOpts, handler http.Handler) error {
	if opts.swaggerPath == "" {
		return fmt.Errorf("swaggerPath env var is required")
	}
	if _, err := os.Stat(opts.swaggerPath); os.IsNotExist(err) {
		return fmt.Errorf("swagger file not found: %s", opts.swaggerPath)
	}

	lis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		return err
	}
	if opts.onListen != nil {
		opts.onListen(lis.Addr().String())
	}

	srv := &http.Server{Handler: handler, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("HTTP api listening", "addr", lis.Addr().String())
	if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return ctx.Err()
}

func newHandler(d *app.Deps, swaggerPath string) http.Handler {
	cfg := d.Config.ParcelHub
	if cfg.AdminToken == "" {
		d.Logger.Warn("admin_token is empty, /admin routes are disabled")
	}

	var syncReq httpapi.SyncRequester = inlineSync{syncer: d.Synchronizer, log: d.Logger}
	if d.Producer != nil {
		syncReq = tracking.NewSyncRequests(d.Producer, d.Topics.SyncRequests)
	}

	return httpapi.NewRouter(httpapi.Deps{
		Carrier:          carrierhook.New(d.Store, d.Pipeline, cfg.CarrierWebhookToken, d.Logger),
		Payments:         payments.New(d.Store, d.Sink, d.Logger),
		Packages:         packages.New(d.Store, d.Sink, d.Logger),
		Tracking:         d.Synchronizer,
		Sync:             syncReq,
		PaymentSecret:    cfg.PaymentWebhookSecret,
		PaymentTolerance: time.Duration(cfg.PaymentWebhookToleranceSeconds) * time.Second,
		AdminToken:       cfg.AdminToken,
		SwaggerPath:      swaggerPath,
		Ready:            d.Ready,
		Logger:           d.Logger,
	})
}

// inlineSync serves sync requests in-process when no broker is configured.
type inlineSync struct {
	syncer *tracking.Synchronizer
	log    *slog.Logger
}

func (s inlineSync) RequestSync(ctx context.Context, packageID uint64, requestID string) error {
	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Minute)
		defer cancel()
		if _, err := s.syncer.SyncTrackingEvents(ctx, packageID); err != nil {
			s.log.Warn("inline sync failed", "package_id", packageID, "request_id", requestID, "error", err.Error())
		}
	}()
	return nil
}
