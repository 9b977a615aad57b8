package model

import "time"

// PurchaseEvent is the audit record published after every purchase operation.
// It never carries tokens or the raw API key.
type PurchaseEvent struct {
	ID                string           `json:"id" db:"id"`
	Caller            string           `json:"caller" db:"caller"` // api key fingerprint
	Rail              Rail             `json:"rail" db:"rail"`
	Operation         string           `json:"operation" db:"operation"`
	State             PurchaseState    `json:"state" db:"state"`
	Status            SettlementStatus `json:"status" db:"status"`
	PackageOptionCode string           `json:"package_option_code" db:"package_option_code"`
	TransactionID     string           `json:"transaction_id" db:"transaction_id"`
	Price             int64            `json:"price" db:"price"`
	Reason            string           `json:"reason" db:"reason"`
	ErrorKind         string           `json:"error_kind" db:"error_kind"`
	CreatedAt         time.Time        `json:"created_at" db:"created_at"`
}
