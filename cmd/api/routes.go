package main

import (
	"context"
	"database/sql"
	"net/http"

	"github.com/redis/go-redis/v9"

	"github.com/josh-kwaku/payout-ledger/api"
	"github.com/josh-kwaku/payout-ledger/internal/config"
	"github.com/josh-kwaku/payout-ledger/internal/handler"
	"github.com/josh-kwaku/payout-ledger/internal/ledger"
	"github.com/josh-kwaku/payout-ledger/internal/metrics"
	"github.com/josh-kwaku/payout-ledger/internal/middleware"
	"github.com/josh-kwaku/payout-ledger/internal/repository"
	"github.com/josh-kwaku/payout-ledger/internal/service"
	"github.com/josh-kwaku/payout-ledger/internal/service/withdrawal"
)

type routerDeps struct {
	cfg         *config.Config
	metrics     *metrics.Metrics
	idempotency middleware.IdempotencyStore
	pingers     map[string]handler.Pinger

	users       *repository.UserRepository
	ledger      *ledger.Ledger
	withdrawals *withdrawal.Service
	methods     *service.PaymentMethodService
	merchants   *service.MerchantService
	fees        *service.FeePolicyService
	webhooks    *repository.WebhookEventRepository
}

type middlewareFunc func(http.Handler) http.Handler

func chain(h http.HandlerFunc, mws ...middlewareFunc) http.Handler {
	var out http.Handler = h
	for i := len(mws) - 1; i >= 0; i-- {
		out = mws[i](out)
	}
	return out
}

func newRouter(d routerDeps) http.Handler {
	authn := middlewareFunc(middleware.Auth(d.cfg.JWTSecret))
	idem := middlewareFunc(middleware.Idempotency(d.idempotency))
	admin := middlewareFunc(middleware.RequireAdmin)

	health := handler.NewHealthHandler(d.pingers)
	authH := handler.NewAuthHandler(d.users, d.cfg.JWTSecret, d.cfg.JWTExpiry)
	balances := handler.NewBalanceHandler(d.ledger)
	methods := handler.NewPaymentMethodHandler(d.methods)
	withdrawals := handler.NewWithdrawalHandler(d.withdrawals)
	ops := handler.NewAdminWithdrawalHandler(d.withdrawals)
	merchants := handler.NewMerchantHandler(d.merchants)
	fees := handler.NewFeePolicyHandler(d.fees)
	webhooks := handler.NewWebhookHandler(d.webhooks, d.cfg.WebhookSecret)
	docs := handler.NewDocsHandler(api.OpenAPI)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", health.Liveness)
	mux.HandleFunc("GET /health/ready", health.Readiness)
	mux.Handle("GET /metrics", d.metrics.Handler())
	mux.HandleFunc("GET /docs", docs.UI)
	mux.HandleFunc("GET /docs/openapi.yaml", docs.Spec)

	mux.HandleFunc("POST /api/v1/auth/login", authH.Login)
	mux.HandleFunc("POST /api/v1/webhooks/events", webhooks.Receive)

	mux.Handle("GET /api/v1/fee-policy", chain(fees.Current, authn))

	mux.Handle("GET /api/v1/merchants/{id}/balance", chain(balances.Get, authn))
	mux.Handle("GET /api/v1/merchants/{id}/ledger", chain(balances.Ledger, authn))

	mux.Handle("GET /api/v1/merchants/{id}/payment-methods", chain(methods.List, authn))
	mux.Handle("POST /api/v1/merchants/{id}/payment-methods", chain(methods.Add, authn, idem))
	mux.Handle("PATCH /api/v1/merchants/{id}/payment-methods/{methodID}", chain(methods.Update, authn, idem))
	mux.Handle("DELETE /api/v1/merchants/{id}/payment-methods/{methodID}", chain(methods.Remove, authn, idem))

	mux.Handle("POST /api/v1/merchants/{id}/withdrawals", chain(withdrawals.Create, authn, idem))
	mux.Handle("GET /api/v1/merchants/{id}/withdrawals", chain(withdrawals.List, authn))
	mux.Handle("GET /api/v1/merchants/{id}/withdrawals/stats", chain(withdrawals.Stats, authn))
	mux.Handle("GET /api/v1/merchants/{id}/withdrawals/{wid}", chain(withdrawals.Get, authn))
	mux.Handle("GET /api/v1/merchants/{id}/withdrawals/{wid}/events", chain(withdrawals.Events, authn))

	mux.Handle("POST /api/v1/admin/merchants", chain(merchants.Register, authn, admin, idem))
	mux.Handle("GET /api/v1/admin/withdrawals", chain(ops.Queue, authn, admin))
	mux.Handle("POST /api/v1/admin/withdrawals/{wid}/approve", chain(ops.Approve, authn, admin, idem))
	mux.Handle("POST /api/v1/admin/withdrawals/{wid}/reject", chain(ops.Reject, authn, admin, idem))
	mux.Handle("POST /api/v1/admin/withdrawals/{wid}/processing", chain(ops.MarkProcessing, authn, admin, idem))
	mux.Handle("POST /api/v1/admin/withdrawals/{wid}/complete", chain(ops.Complete, authn, admin, idem))
	mux.Handle("POST /api/v1/admin/withdrawals/{wid}/fail", chain(ops.Fail, authn, admin, idem))
	mux.Handle("POST /api/v1/admin/withdrawals/{wid}/retry", chain(ops.Retry, authn, admin, idem))
	mux.Handle("PUT /api/v1/admin/fee-policy", chain(fees.Update, authn, admin, idem))
	mux.Handle("GET /api/v1/admin/fee-policy/history", chain(fees.History, authn, admin))

	// Metrics wraps the mux directly so r.Pattern is populated.
	return middleware.Tracing(middleware.Logging(middleware.Recovery(middleware.Metrics(d.metrics)(mux))))
}

func readinessChecks(db *sql.DB, rdb *redis.Client) map[string]handler.Pinger {
	checks := map[string]handler.Pinger{
		"database": handler.PingFunc(db.PingContext),
	}
	if rdb != nil {
		checks["redis"] = handler.PingFunc(func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
	}
	return checks
}
