package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmehdipour/xl-gateway/internal/catalog"
	"github.com/jmehdipour/xl-gateway/internal/config"
	"github.com/jmehdipour/xl-gateway/internal/db"
	httpSrv "github.com/jmehdipour/xl-gateway/internal/http"
	"github.com/jmehdipour/xl-gateway/internal/http/middleware"
	"github.com/jmehdipour/xl-gateway/internal/kafka"
	"github.com/jmehdipour/xl-gateway/internal/logger"
	"github.com/jmehdipour/xl-gateway/internal/metrics"
	"github.com/jmehdipour/xl-gateway/internal/purchase"
	"github.com/jmehdipour/xl-gateway/internal/repository"
	"github.com/jmehdipour/xl-gateway/internal/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log := logger.Named("serve")
		defer func() { _ = logger.Log.Sync() }()

		metrics.MustRegister(prometheus.DefaultRegisterer)

		client := newRemoteClient(cfg)
		paths := cfg.Remote.Paths
		deps := httpSrv.Deps{
			Sessions:  session.NewManager(client, paths, logger.Named("session")),
			Catalog:   catalog.NewReader(client, paths),
			Purchases: purchase.NewOrchestrator(client, paths, logger.Named("purchase")),
			Log:       logger.Named("http"),
		}

		// idempotency store (MySQL)
		if cfg.MySQL.DSN != "" {
			mysqlDB, err := db.NewMySQLConnection(poolOpts(cfg.MySQL))
			if err != nil {
				return fmt.Errorf("mysql connect: %w", err)
			}
			defer mysqlDB.Close()
			deps.Submissions = repository.NewSubmissionsRepository(mysqlDB)
		}

		// rate limiter (Redis)
		if cfg.RateLimit.Enabled {
			redisClient, err := db.NewRedisClient(db.RedisOpts{
				Addr:        cfg.Redis.Addr,
				Password:    cfg.Redis.Password,
				DB:          cfg.Redis.DB,
				DialTimeout: cfg.Redis.DialTimeout,
				ReadTimeout: cfg.Redis.ReadTimeout,
				PoolSize:    cfg.Redis.PoolSize,
			})
			if err != nil {
				return fmt.Errorf("redis connect: %w", err)
			}
			defer func() { _ = redisClient.Close() }()
			deps.Limiter = middleware.RedisCounter{Client: redisClient}
		}

		// audit trail: Kafka producer + ClickHouse reads
		if cfg.Audit.Enabled {
			producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
			defer func() { _ = producer.Close() }()
			deps.Publisher = producer

			chDB, err := db.NewClickHouseConnection(poolOpts(cfg.ClickHouse))
			if err != nil {
				return fmt.Errorf("clickhouse connect: %w", err)
			}
			defer func() { _ = chDB.Close() }()
			deps.Events = repository.NewCHEventsRepository(chDB)
		}

		server := httpSrv.NewServer(cfg, deps)

		errCh := make(chan error, 1)
		go func() {
			errCh <- server.Start(cfg.HTTP.Addr)
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-sigCh:
			log.Info("signal received, shutting down", zap.String("signal", sig.String()))
		case err := <-errCh:
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("http server exited", zap.Error(err))
			}
		}

		ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(ctx)
	},
}

func poolOpts(c config.DatabaseConfig) db.PoolOpts {
	return db.PoolOpts{
		DSN:             c.DSN,
		MaxOpenConns:    c.MaxOpenConns,
		MaxIdleConns:    c.MaxIdleConns,
		ConnMaxLifetime: c.ConnMaxLifetime,
		ConnMaxIdleTime: c.ConnMaxIdleTime,
		PingTimeout:     c.PingTimeout,
	}
}
