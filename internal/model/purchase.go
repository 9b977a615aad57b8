package model

import "strings"

// PurchaseState is the position of a purchase attempt in its rail's state machine.
type PurchaseState string

const (
	// multipayment
	StateInit           PurchaseState = "INIT"
	StateMethodSelected PurchaseState = "METHOD_SELECTED"
	StateSubmitted      PurchaseState = "SUBMITTED"
	StateConfirmed      PurchaseState = "CONFIRMED"
	StateRejected       PurchaseState = "REJECTED"

	// qris
	StateCodeIssued PurchaseState = "CODE_ISSUED"
	StatePolling    PurchaseState = "POLLING"
	StateSettled    PurchaseState = "SETTLED"
	StateExpired    PurchaseState = "EXPIRED"
)

func (s PurchaseState) String() string { return string(s) }

// Terminal reports whether no further transition is possible.
func (s PurchaseState) Terminal() bool {
	switch s {
	case StateConfirmed, StateRejected, StateSettled, StateExpired:
		return true
	}
	return false
}

type Rail string

const (
	RailMultipayment Rail = "multipayment"
	RailQris         Rail = "qris"
	RailBounty       Rail = "bounty"
)

func (r Rail) String() string { return string(r) }

func (r Rail) Valid() bool {
	return r == RailMultipayment || r == RailQris || r == RailBounty
}

// PaymentMethod is one option returned by the payment-methods listing.
type PaymentMethod struct {
	Code     string `json:"payment_method"`
	Name     string `json:"name,omitempty"`
	Category string `json:"category,omitempty"`
}

// PaymentOptions is the payment-methods listing for one package, including
// the one-shot payment token the settlement call must present.
type PaymentOptions struct {
	Methods      []PaymentMethod `json:"methods"`
	TokenPayment string          `json:"token_payment"`
	Timestamp    int64           `json:"timestamp"`
}

// walletRails need the subscriber's wallet number on submission.
var walletRails = map[string]bool{"DANA": true, "OVO": true}

// RequiresWalletNumber reports whether method needs a wallet number attached.
func RequiresWalletNumber(method string) bool {
	return walletRails[strings.ToUpper(strings.TrimSpace(method))]
}

// PaymentIntent is a caller-declared multipayment purchase. Price is forwarded
// for the remote to check against its quote; it is never computed locally.
type PaymentIntent struct {
	PackageOptionCode string `json:"package_option_code"`
	TokenConfirmation string `json:"token_confirmation"`
	Price             int64  `json:"price"`
	ItemName          string `json:"item_name,omitempty"`
	PaymentMethod     string `json:"payment_method,omitempty"`
	WalletNumber      string `json:"wallet_number,omitempty"`

	// TokenPayment and Timestamp come from a prior ListPaymentMethods call.
	// When empty the orchestrator fetches them before submitting.
	TokenPayment string `json:"token_payment,omitempty"`
	Timestamp    int64  `json:"timestamp,omitempty"`
}

// State is INIT until a payment method is attached.
func (i PaymentIntent) State() PurchaseState {
	if strings.TrimSpace(i.PaymentMethod) == "" {
		return StateInit
	}
	return StateMethodSelected
}

// QrisRequest is the input of a QRIS purchase.
type QrisRequest struct {
	PackageOptionCode string `json:"package_option_code"`
	TokenConfirmation string `json:"token_confirmation"`
	Price             int64  `json:"price"`
	ItemName          string `json:"item_name"`
}

// QrisIntent is an issued QRIS code awaiting settlement.
type QrisIntent struct {
	TransactionID string        `json:"transaction_id"`
	QRPayload     string        `json:"qr_payload"`
	State         PurchaseState `json:"state"`
}

// BountyIntent redeems a bounty or reward offer.
type BountyIntent struct {
	PackageOptionCode string `json:"package_option_code"`
	TokenConfirmation string `json:"token_confirmation"`
	Price             int64  `json:"price"`
	ItemName          string `json:"item_name,omitempty"`
}
