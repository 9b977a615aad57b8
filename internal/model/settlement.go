package model

import (
	"encoding/json"
	"strings"
)

type SettlementStatus string

const (
	SettlementPending SettlementStatus = "pending"
	SettlementSuccess SettlementStatus = "success"
	SettlementFailed  SettlementStatus = "failed"
)

func (s SettlementStatus) String() string { return string(s) }

func (s SettlementStatus) Valid() bool {
	return s == SettlementPending || s == SettlementSuccess || s == SettlementFailed
}

// ParseSettlementStatus maps a remote status word to a settlement status.
// Unknown and empty words are treated as pending; expired reports whether the
// remote said the code ran out of time.
func ParseSettlementStatus(raw string) (st SettlementStatus, expired bool) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "SUCCESS", "PAID", "SETTLED", "FINISHED", "COMPLETED":
		return SettlementSuccess, false
	case "EXPIRED", "TIMEOUT":
		return SettlementFailed, true
	case "FAILED", "FAILURE", "CANCELLED", "CANCELED", "REJECTED", "REFUNDED":
		return SettlementFailed, false
	default:
		return SettlementPending, false
	}
}

// SettlementResult is the outcome of one payment submission or status check.
type SettlementResult struct {
	Rail          Rail             `json:"rail"`
	State         PurchaseState    `json:"state"`
	Status        SettlementStatus `json:"status"`
	TransactionID string           `json:"transaction_id,omitempty"`
	Reason        string           `json:"reason,omitempty"`
	Deeplink      string           `json:"deeplink,omitempty"`
	PointsGained  int64            `json:"points_gained,omitempty"`
	Receipt       json.RawMessage  `json:"receipt,omitempty"`
}
