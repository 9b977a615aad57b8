package remote

// Paths are the remote endpoints, relative to the CIAM or API base URL.
type Paths struct {
	// identity (CIAM)
	OTP           string `mapstructure:"otp"`
	Token         string `mapstructure:"token"`
	ExtendSession string `mapstructure:"extend_session"`

	// catalog (API)
	Profile      string `mapstructure:"profile"`
	Balance      string `mapstructure:"balance"`
	QuotaDetails string `mapstructure:"quota_details"`
	Family       string `mapstructure:"family"`
	Families     string `mapstructure:"families"`
	Package      string `mapstructure:"package"`
	Addons       string `mapstructure:"addons"`

	// purchase (API)
	PaymentMethods     string `mapstructure:"payment_methods"`
	SettleMultipayment string `mapstructure:"settle_multipayment"`
	SettleQris         string `mapstructure:"settle_qris"`
	QrisDetail         string `mapstructure:"qris_detail"`
	QrisStatus         string `mapstructure:"qris_status"`
	BountyExchange     string `mapstructure:"bounty_exchange"`
	BountyStatus       string `mapstructure:"bounty_status"`
}

func DefaultPaths() Paths {
	return Paths{
		OTP:           "realms/xl-ciam/auth/otp",
		Token:         "realms/xl-ciam/protocol/openid-connect/token",
		ExtendSession: "realms/xl-ciam/auth/extend-session",

		Profile:      "api/v8/profile",
		Balance:      "api/v8/packages/balance-and-credit",
		QuotaDetails: "api/v8/packages/quota-details",
		Family:       "api/v8/xl-stores/options/list",
		Families:     "api/v8/xl-stores/families",
		Package:      "api/v8/xl-stores/options/detail",
		Addons:       "api/v8/xl-stores/options/addons-pinky-box",

		PaymentMethods:     "payments/api/v8/payment-methods-option",
		SettleMultipayment: "payments/api/v8/settlement-multipayment/ewallet",
		SettleQris:         "payments/api/v8/settlement-multipayment/qris",
		QrisDetail:         "payments/api/v8/pending-detail",
		QrisStatus:         "payments/api/v8/pending-detail",
		BountyExchange:     "api/v8/personalization/bounties-exchange",
		BountyStatus:       "api/v8/personalization/bounties-exchange/status",
	}
}

// WithDefaults fills every empty path from DefaultPaths.
func (p Paths) WithDefaults() Paths {
	d := DefaultPaths()
	fill := func(dst *string, def string) {
		if *dst == "" {
			*dst = def
		}
	}
	fill(&p.OTP, d.OTP)
	fill(&p.Token, d.Token)
	fill(&p.ExtendSession, d.ExtendSession)
	fill(&p.Profile, d.Profile)
	fill(&p.Balance, d.Balance)
	fill(&p.QuotaDetails, d.QuotaDetails)
	fill(&p.Family, d.Family)
	fill(&p.Families, d.Families)
	fill(&p.Package, d.Package)
	fill(&p.Addons, d.Addons)
	fill(&p.PaymentMethods, d.PaymentMethods)
	fill(&p.SettleMultipayment, d.SettleMultipayment)
	fill(&p.SettleQris, d.SettleQris)
	fill(&p.QrisDetail, d.QrisDetail)
	fill(&p.QrisStatus, d.QrisStatus)
	fill(&p.BountyExchange, d.BountyExchange)
	fill(&p.BountyStatus, d.BountyStatus)
	return p
}
