package model

import "strings"

// Tokens is the credential bundle issued by a successful OTP exchange or a
// refresh. It is owned by the caller and replaced wholesale on refresh.
type Tokens struct {
	AccessToken      string `json:"access_token"`
	IDToken          string `json:"id_token"`
	RefreshToken     string `json:"refresh_token,omitempty"`
	TokenType        string `json:"token_type,omitempty"`
	ExpiresIn        int    `json:"expires_in,omitempty"`
	RefreshExpiresIn int    `json:"refresh_expires_in,omitempty"`
}

func (t Tokens) HasAccess() bool   { return strings.TrimSpace(t.AccessToken) != "" }
func (t Tokens) HasIdentity() bool { return strings.TrimSpace(t.IDToken) != "" }

// Challenge is the remote acknowledgement of a dispatched OTP.
type Challenge struct {
	Contact      string `json:"contact"`
	SubscriberID string `json:"subscriber_id"`
}

// SessionExtension carries the exchange code returned by extend-session.
type SessionExtension struct {
	SubscriberID string `json:"subscriber_id"`
	ExchangeCode string `json:"exchange_code"`
}
