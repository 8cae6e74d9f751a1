package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/ariefcatur/go-ecommerce-orders/internal/config"
	kafkax "github.com/ariefcatur/go-ecommerce-orders/internal/kafka"
	"github.com/ariefcatur/go-ecommerce-orders/internal/logx"
	"github.com/ariefcatur/go-ecommerce-orders/internal/projector"
	"github.com/ariefcatur/go-ecommerce-orders/internal/redisx"
	"github.com/ariefcatur/go-ecommerce-orders/internal/tracing"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("config")
	}
	name := cfg.ServiceName + "-projector"
	log := logx.New(name, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, name, cfg.OtelEndpoint)
	if err != nil {
		log.WithError(err).Fatal("tracing")
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	h := projector.NewHandler(redisx.NewDedup(rdb, name), redisx.NewStatusCache(rdb), log)
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.ProjectorGroup, projector.Topics, cfg.ProjectorWorkers, log)

	log.WithFields(logrus.Fields{
		"group":   cfg.ProjectorGroup,
		"topics":  projector.Topics,
		"workers": cfg.ProjectorWorkers,
	}).Info("projector consumer started")
	if err := cons.Start(ctx, h.Handle); err != nil {
		log.WithError(err).Error("consumer exit")
	}
	log.Info("projector stopped")
}
