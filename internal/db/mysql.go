package db

import (
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
)

// NewMySQLConnection opens the idempotency store. The DSN must carry
// parseTime=true for the submission timestamps to scan.
func NewMySQLConnection(opts PoolOpts) (*sqlx.DB, error) {
	return open("mysql", opts, 5*time.Second)
}
