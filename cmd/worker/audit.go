package worker

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmehdipour/xl-gateway/internal/config"
	"github.com/jmehdipour/xl-gateway/internal/db"
	"github.com/jmehdipour/xl-gateway/internal/kafka"
	"github.com/jmehdipour/xl-gateway/internal/logger"
	"github.com/jmehdipour/xl-gateway/internal/metrics"
	"github.com/jmehdipour/xl-gateway/internal/repository"
	"github.com/jmehdipour/xl-gateway/internal/worker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Load purchase audit events from Kafka into ClickHouse",
	RunE:  runAudit,
}

func runAudit(cmd *cobra.Command, args []string) error {
	// 1) load config
	cfgPath, _ := cmd.Root().PersistentFlags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger.Init(cfg.Log.Level, cfg.Log.Encoding)
	log := logger.Named("audit")
	defer func() { _ = logger.Log.Sync() }()

	metrics.MustRegister(prometheus.DefaultRegisterer)

	// 2) ClickHouse connection
	chDB, err := db.NewClickHouseConnection(db.PoolOpts{
		DSN:             cfg.ClickHouse.DSN,
		MaxOpenConns:    cfg.ClickHouse.MaxOpenConns,
		MaxIdleConns:    cfg.ClickHouse.MaxIdleConns,
		ConnMaxLifetime: cfg.ClickHouse.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ClickHouse.ConnMaxIdleTime,
		PingTimeout:     cfg.ClickHouse.PingTimeout,
	})
	if err != nil {
		return fmt.Errorf("clickhouse connect: %w", err)
	}
	defer chDB.Close()

	// 3) kafka consumer
	groupID := cfg.Kafka.GroupID
	if groupID == "" {
		groupID = "xlgw-audit"
	}
	consumer := kafka.NewConsumer(kafka.Config{
		Brokers:        cfg.Kafka.Brokers,
		Topic:          cfg.Kafka.Topic,
		GroupID:        groupID,
		MinBytes:       cfg.Kafka.MinBytes,
		MaxBytes:       cfg.Kafka.MaxBytes,
		CommitInterval: time.Duration(cfg.Kafka.CommitInterval) * time.Millisecond,
	})
	defer consumer.Close()

	w := worker.NewAuditLoader(consumer, repository.NewCHEventsRepository(chDB), log)
	if cfg.Audit.BatchSize > 0 {
		w.BatchSize = cfg.Audit.BatchSize
	}
	if cfg.Audit.BatchWait > 0 {
		w.BatchWait = cfg.Audit.BatchWait
	}
	if cfg.Audit.RetryMax > 0 {
		w.RetryMax = cfg.Audit.RetryMax
	}

	// 4) graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("audit loader started",
		zap.String("topic", cfg.Kafka.Topic),
		zap.String("group", groupID),
		zap.Int("batch_size", w.BatchSize),
		zap.Duration("batch_wait", w.BatchWait),
		zap.Duration("retry_max", w.RetryMax),
	)

	return w.Run(ctx)
}
