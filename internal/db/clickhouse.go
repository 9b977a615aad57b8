package db

import (
	"time"

	_ "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/jmoiron/sqlx"
)

// NewClickHouseConnection opens the audit event store, e.g.
// clickhouse://default:@localhost:9000/xlgw?dial_timeout=5s&compress=true
func NewClickHouseConnection(opts PoolOpts) (*sqlx.DB, error) {
	return open("clickhouse", opts, 3*time.Second)
}
