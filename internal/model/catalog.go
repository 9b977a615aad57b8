package model

import "encoding/json"

// Balance is the prepaid balance snapshot of the subscriber.
type Balance struct {
	Remaining int64 `json:"remaining"`
	ExpiredAt int64 `json:"expired_at"`
}

// PackageDetail keeps the fields the orchestrator relies on; Raw holds the
// full upstream document.
type PackageDetail struct {
	OptionCode        string          `json:"package_option_code"`
	FamilyCode        string          `json:"family_code"`
	Name              string          `json:"name"`
	Price             int64           `json:"price"`
	TokenConfirmation string          `json:"token_confirmation"`
	Raw               json.RawMessage `json:"raw,omitempty"`
}

// Quota is one entry of the subscriber's active quota listing.
type Quota struct {
	QuotaCode string `json:"quota_code"`
	GroupCode string `json:"group_code"`
	Name      string `json:"name"`
}

// PackageReference identifies a purchasable offer. FamilyCode is resolved
// through a package lookup and may be empty when that lookup failed.
type PackageReference struct {
	Name         string `json:"name"`
	QuotaCode    string `json:"quota_code"`
	FamilyCode   string `json:"family_code"`
	GroupCode    string `json:"group_code"`
	ResolveError string `json:"resolve_error,omitempty"`
}
