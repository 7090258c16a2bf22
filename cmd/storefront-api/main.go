package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/jlpozo/DesafioFinalBack/internal/account"
	"github.com/jlpozo/DesafioFinalBack/internal/api"
	"github.com/jlpozo/DesafioFinalBack/internal/auth"
	"github.com/jlpozo/DesafioFinalBack/internal/catalog"
	"github.com/jlpozo/DesafioFinalBack/internal/config"
	"github.com/jlpozo/DesafioFinalBack/internal/order"
	"github.com/jlpozo/DesafioFinalBack/internal/store/postgres"
	"github.com/jlpozo/DesafioFinalBack/pkg/kafka"
	"github.com/jlpozo/DesafioFinalBack/pkg/logging"
	"github.com/jlpozo/DesafioFinalBack/pkg/metrics"
	"github.com/jlpozo/DesafioFinalBack/pkg/outbox"
)

const service = "storefront-api"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Logger().Fatal("load config", zap.String("service", service), zap.Error(err))
	}
	defer logging.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	startCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	pool, err := postgres.Open(startCtx, cfg.DatabaseURL, cfg.DBMaxConns)
	if err != nil {
		cancel()
		logging.Logger().Fatal("open database", zap.String("service", service), zap.Error(err))
	}
	defer pool.Close()
	if cfg.Migrate {
		if err := postgres.Migrate(startCtx, pool); err != nil {
			cancel()
			logging.Logger().Fatal("migrate", zap.String("service", service), zap.Error(err))
		}
	}
	cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	orderMetrics := metrics.NewOrderMetrics(reg)

	store := postgres.New(pool,
		postgres.WithTopic(cfg.KafkaTopic),
		postgres.WithRetries(cfg.TxMaxRetries, orderMetrics.ObserveRetry),
	)
	if cfg.AdminEmail != "" {
		promoteAdmin(ctx, store, cfg.AdminEmail)
	}

	issuer := auth.NewIssuer(cfg.JWTSecret, cfg.JWTTTL)
	handler := api.NewRouter(api.Deps{
		Orders:         order.NewEngine(store, orderMetrics),
		Catalog:        catalog.NewService(store),
		Accounts:       account.NewService(store, issuer, account.WithAdminEmail(cfg.AdminEmail)),
		Tokens:         issuer,
		Health:         func(ctx context.Context) error { return postgres.Ping(ctx, pool) },
		Metrics:        metrics.NewServerMetrics(reg, "api"),
		MetricsHandler: metrics.Handler(reg),
		RequestTimeout: cfg.RequestTimeout,
	})

	var wg sync.WaitGroup
	if pub, err := kafka.NewClient(cfg.KafkaBrokers).NewPublisher(); err == nil {
		defer pub.Close()
		relay := &outbox.Relay{
			Source:    outbox.PGSource{DB: pool},
			Publisher: pub,
			Interval:  cfg.OutboxPoll,
			BatchSize: cfg.OutboxBatch,
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			relay.Run(ctx)
		}()
	} else {
		logging.Log(logging.Fields{Service: service, Step: "outbox", Status: "disabled", Message: "KAFKA_BROKERS not set; events stay in the outbox"})
	}

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: handler, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logging.Log(logging.Fields{Service: service, Step: "listen", Status: "started", Message: ":" + cfg.Port})
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logging.Logger().Fatal("http server", zap.String("service", service), zap.Error(err))
	}
	stop()
	wg.Wait()
	logging.Log(logging.Fields{Service: service, Step: "shutdown", Status: "done"})
}

// promoteAdmin grants the admin flag to an already registered account. A
// not yet registered email becomes admin when it registers.
func promoteAdmin(ctx context.Context, store *postgres.Store, email string) {
	err := store.SetAdmin(ctx, email, true)
	switch {
	case err == nil:
		logging.Log(logging.Fields{Service: service, Step: "admin", Status: "promoted", Message: email})
	case errors.Is(err, account.ErrNotFound):
		logging.Log(logging.Fields{Service: service, Step: "admin", Status: "not_registered", Message: email})
	default:
		logging.Log(logging.Fields{Service: service, Step: "admin", Status: "error", Message: email, Err: err})
	}
}
