package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/jlpozo/DesafioFinalBack/internal/config"
	"github.com/jlpozo/DesafioFinalBack/internal/notify"
	"github.com/jlpozo/DesafioFinalBack/internal/store/postgres"
	"github.com/jlpozo/DesafioFinalBack/pkg/kafka"
	"github.com/jlpozo/DesafioFinalBack/pkg/logging"
	"github.com/jlpozo/DesafioFinalBack/pkg/metrics"
)

const service = "notification-service"

func main() {
	cfg, err := config.LoadBase()
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
	srvMetrics := metrics.NewServerMetrics(reg, "notifications")

	var wg sync.WaitGroup
	client := kafka.NewClient(cfg.KafkaBrokers)
	if client.Enabled() {
		reader := client.NewReader(cfg.KafkaTopic, cfg.KafkaGroupID)
		defer reader.Close()
		h := &notify.Handler{Store: postgres.New(pool)}
		wg.Add(1)
		go func() {
			defer wg.Done()
			notify.Consume(ctx, reader, h, 2*time.Second)
		}()
	} else {
		logging.Log(logging.Fields{Service: service, Step: "consume", Status: "disabled", Message: "KAFKA_BROKERS not set"})
	}

	r := chi.NewRouter()
	r.Use(srvMetrics.Middleware)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := postgres.Ping(r.Context(), pool); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"db_error"}`))
			return
		}
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler(reg))

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r, ReadHeaderTimeout: 5 * time.Second}
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
}
