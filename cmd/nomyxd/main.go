package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/cdupont/Nomyx/internal/bus"
	"github.com/cdupont/Nomyx/internal/config"
	"github.com/cdupont/Nomyx/internal/model"
	"github.com/cdupont/Nomyx/internal/rulebook"
	"github.com/cdupont/Nomyx/internal/runtime"
	"github.com/cdupont/Nomyx/internal/store"
	"github.com/cdupont/Nomyx/internal/telemetry"
	"github.com/cdupont/Nomyx/internal/transport"
	"github.com/cdupont/Nomyx/internal/value"
)

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Println("Warning: .env file not found")
	}

	fmt.Println("==================================================")
	fmt.Println("   NOMYX ENGINE STARTING - WATCH THIS CONSOLE     ")
	fmt.Println("==================================================")

	cfg := config.Load()
	logger, err := telemetry.SetupLogger()
	if err != nil {
		log.Fatalf("cannot init logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tp, err := telemetry.SetupTracerProvider(ctx, "nomyxd", cfg.TraceStdout, logger)
	if err != nil {
		logger.Fatal("cannot init tracer", zap.Error(err))
	}
	defer tp.Shutdown(ctx)

	db, err := store.ConnectMySQL(cfg.DBDSN)
	var st *store.Store
	if err != nil {
		logger.Warn("cannot connect db, falling back to IN-MEMORY MODE", zap.Error(err))
		st = store.NewMemoryStore()
	} else {
		defer db.Close()
		st = store.New(db)
	}

	metrics := telemetry.NewMetrics(prometheus.DefaultRegisterer.(*prometheus.Registry))

	jwtMgr := transport.NewJWTManager(cfg.JWTSecret, cfg.JWTTTL)

	catalog := rulebook.NewCatalog()
	mgr := runtime.NewManager(ctx, st, logger, rulebook.Bootstrap(catalog), cfg.SnapshotInterval, metrics)
	defer mgr.Close()

	if cfg.RabbitMQURL != "" {
		msgBus, err := bus.New(bus.Config{
			URL:       cfg.RabbitMQURL,
			QueueName: cfg.BusQueueName,
			Prefetch:  10,
			Logger:    logger,
		})
		if err != nil {
			logger.Warn("failed to connect to message bus", zap.Error(err))
		} else {
			defer msgBus.Close()
			if err := msgBus.Start(ctx, func(ctx context.Context, msg bus.InboundMessage) error {
				ga, err := mgr.GetOrCreate(ctx, msg.GameID)
				if err != nil {
					return err
				}
				_, err = ga.Dispatch(func(g *model.Game) (value.Value, error) {
					return value.Value{}, runtime.TriggerMessage(g, msg.Name, msg.Payload, logger)
				})
				return err
			}); err != nil {
				logger.Warn("failed to start message bus consumer", zap.Error(err))
			} else {
				logger.Info("message bus connected", zap.String("queue", cfg.BusQueueName))
			}
		}
	}

	// inject_time is never self-scheduled by the engine (spec.md §5); this
	// ticker is the one clock source driving every live game's timer
	// signals forward.
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				mgr.Tick(now, logger)
			}
		}
	}()

	wsServer := transport.NewWSServer(jwtMgr, st, mgr, catalog, logger, metrics)
	server := transport.NewServer(st, jwtMgr, mgr, wsServer, logger)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: server.Router}
	go func() {
		logger.Info("starting server", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)
}
