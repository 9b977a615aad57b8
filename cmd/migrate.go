package cmd

import (
	"context"
	"fmt"

	"github.com/jmehdipour/xl-gateway/internal/db"
	"github.com/jmehdipour/xl-gateway/internal/logger"
	"github.com/jmehdipour/xl-gateway/migrations"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the idempotency (MySQL) and audit (ClickHouse) tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log := logger.Named("migrate")

		mysqlDB, err := db.NewMySQLConnection(poolOpts(cfg.MySQL))
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		defer mysqlDB.Close()
		if err := apply(cmd.Context(), mysqlDB, migrations.MySQL); err != nil {
			return err
		}
		log.Info("migration applied", zap.String("file", migrations.MySQL))

		skipCH, _ := cmd.Flags().GetBool("skip-clickhouse")
		if skipCH {
			return nil
		}
		chDB, err := db.NewClickHouseConnection(poolOpts(cfg.ClickHouse))
		if err != nil {
			return fmt.Errorf("clickhouse connect: %w", err)
		}
		defer chDB.Close()
		if err := apply(cmd.Context(), chDB, migrations.ClickHouse); err != nil {
			return err
		}
		log.Info("migration applied", zap.String("file", migrations.ClickHouse))

		return nil
	},
}

func init() {
	migrateCmd.Flags().Bool("skip-clickhouse", false, "only migrate MySQL")
}

func apply(ctx context.Context, conn *sqlx.DB, name string) error {
	stmts, err := migrations.Statements(name)
	if err != nil {
		return fmt.Errorf("read migration %s: %w", name, err)
	}
	for i, s := range stmts {
		if _, err := conn.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("exec %s statement %d: %w", name, i+1, err)
		}
	}
	return nil
}
