package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/tushaar82/VELOX-N8N-sub000/internal/feed"
	"github.com/tushaar82/VELOX-N8N-sub000/internal/gateway"
	"github.com/tushaar82/VELOX-N8N-sub000/internal/server"
	"github.com/tushaar82/VELOX-N8N-sub000/internal/stream"
	"github.com/tushaar82/VELOX-N8N-sub000/pkg/config"
	"github.com/tushaar82/VELOX-N8N-sub000/pkg/logger"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log, err := logger.NewLogger(logger.WithLoggingLevel(logger.Level(cfg.App.LogLevel)))
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	registry := stream.NewRegistry(log, cfg.Stream.TickBufferSize)
	gw := gateway.NewGateway(registry, log, cfg.Server.MaxConnections)
	srv := server.New(cfg.Server, cfg.App, registry, gw, log)

	source := newSource(cfg, log, registry)

	wg := sync.WaitGroup{}
	if source != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := source.Start(ctx); err != nil {
				log.Error(err, logger.Field{Key: "action", Value: "tick_source"})
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := srv.Start(); err != nil {
			log.Error(err, logger.Field{Key: "action", Value: "http_server"})
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	cancel()
	if source != nil {
		if err := source.Stop(); err != nil {
			log.Error(err, logger.Field{Key: "action", Value: "tick_source_stop"})
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(err, logger.Field{Key: "action", Value: "http_shutdown"})
	}

	wg.Wait()
	log.Info("stopped")
}

func newSource(cfg *config.Config, log logger.Interface, registry *stream.Registry) feed.Source {
	switch cfg.Feed.Mode {
	case "kafka":
		return feed.NewKafkaSource(cfg.Kafka, log, registry)
	case "generator":
		return feed.NewGeneratorSource(cfg.Feed, log, registry)
	default:
		log.Warn("no tick source configured",
			logger.Field{Key: "mode", Value: cfg.Feed.Mode},
		)
		return nil
	}
}
