package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/godmakereth/activity-tracker-bot-sub000/internal/api"
	"github.com/godmakereth/activity-tracker-bot-sub000/internal/catalog"
	"github.com/godmakereth/activity-tracker-bot-sub000/internal/config"
	"github.com/godmakereth/activity-tracker-bot-sub000/internal/domain"
	"github.com/godmakereth/activity-tracker-bot-sub000/internal/janitor"
	"github.com/godmakereth/activity-tracker-bot-sub000/internal/logging"
	"github.com/godmakereth/activity-tracker-bot-sub000/internal/outbox"
	"github.com/godmakereth/activity-tracker-bot-sub000/internal/persistence"
	"github.com/godmakereth/activity-tracker-bot-sub000/internal/timerange"
	httptransport "github.com/godmakereth/activity-tracker-bot-sub000/internal/transport/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		_, _ = os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("activity tracker stopped", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	types, err := catalog.LoadFile(cfg.ActivityTypesFile)
	if err != nil {
		return err
	}
	loc, err := timerange.LoadLocation(cfg.ReportTimezone)
	if err != nil {
		return err
	}

	store, err := persistence.Open(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer store.Close()

	lifecycle := domain.NewLifecycle(store.Ledger, types)

	var dispatcher *outbox.Dispatcher
	if store.Pool != nil {
		producer := outbox.NewKafkaProducer(cfg.KafkaBrokers)
		defer producer.Close()

		dispatcher = outbox.NewDispatcher(
			outbox.NewPGStore(store.Pool),
			producer,
			outbox.NewDLQWriter(store.Pool),
			cfg.OutboxPollInterval,
			cfg.OutboxBatchSize,
			outbox.WithLogger(logger.Named("outbox")),
		)
		go dispatcher.Start(ctx)
	}

	sweeper := janitor.NewRunner(lifecycle, cfg.JanitorInterval, cfg.StaleAfter,
		janitor.WithLogger(logger.Named("janitor")))
	go sweeper.Start(ctx)

	handler := api.NewHandler(lifecycle, store.Ledger, types,
		api.WithLocation(loc),
		api.WithLogger(logger.Named("api")))

	server := httptransport.NewServer(httptransport.ServerConfig{Address: cfg.HTTPAddress}, handler.Routes())

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("activity tracker listening",
			zap.String("address", cfg.HTTPAddress),
			zap.String("ledger", cfg.LedgerDriver),
			zap.Strings("activity_types", types.Codes()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-shutdownCh:
	case err := <-serveErr:
		cancel()
		return err
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
	}

	sweeper.Wait()
	if dispatcher != nil {
		dispatcher.Wait()
	}
	return nil
}
