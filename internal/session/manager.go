package session

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/jmehdipour/xl-gateway/internal/apperr"
	"github.com/jmehdipour/xl-gateway/internal/metrics"
	"github.com/jmehdipour/xl-gateway/internal/model"
	"github.com/jmehdipour/xl-gateway/internal/remote"
	"github.com/jmehdipour/xl-gateway/internal/util"
	"go.uber.org/zap"
)

// Identity is the part of the remote client the session manager needs.
type Identity interface {
	CIAMGet(ctx context.Context, op, path string, query url.Values) ([]byte, error)
	CIAMForm(ctx context.Context, op, apiKey, path string, form url.Values) ([]byte, error)
}

// Manager drives the OTP challenge/response exchange and credential refresh.
// It holds no subscriber state: every bundle it issues belongs to the caller.
type Manager struct {
	remote Identity
	paths  remote.Paths
	log    *zap.Logger
}

func NewManager(r Identity, paths remote.Paths, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{remote: r, paths: paths.WithDefaults(), log: log}
}

// ValidateContact is the local admission gate run before any OTP traffic.
func (m *Manager) ValidateContact(contact string) bool {
	return util.ValidContact(contact)
}

// RequestOTP asks the carrier to send a one-time code to contact.
func (m *Manager) RequestOTP(ctx context.Context, contact string) (model.Challenge, error) {
	if !m.ValidateContact(contact) {
		return model.Challenge{}, reject(fmt.Errorf("request otp: %w", apperr.ErrInvalidContact))
	}
	msisdn := util.NormalizePhone(contact)

	q := url.Values{}
	q.Set("contact", msisdn)
	q.Set("contactType", "SMS")
	q.Set("alternateContact", "false")

	body, err := m.remote.CIAMGet(ctx, "request_otp", m.paths.OTP, q)
	if err != nil {
		return model.Challenge{}, fmt.Errorf("request otp: %w", err)
	}

	var res struct {
		SubscriberID string `json:"subscriber_id"`
		Error        string `json:"error"`
	}
	if err := json.Unmarshal(body, &res); err != nil || res.SubscriberID == "" {
		msg := res.Error
		if msg == "" {
			msg = "otp not dispatched"
		}
		return model.Challenge{}, &apperr.RemoteError{Op: "request_otp", Message: msg, Body: raw(body)}
	}

	m.log.Info("otp requested", zap.String("subscriber_id", res.SubscriberID))

	return model.Challenge{Contact: msisdn, SubscriberID: res.SubscriberID}, nil
}

// SubmitOTP exchanges a code for a fresh credential bundle. Codes are single
// use: on any failure the caller restarts from RequestOTP.
func (m *Manager) SubmitOTP(ctx context.Context, apiKey, contact, code string) (model.Tokens, error) {
	if strings.TrimSpace(apiKey) == "" {
		return model.Tokens{}, reject(apperr.Missing(apperr.ErrMissingCredential, "api_key"))
	}
	if !m.ValidateContact(contact) {
		return model.Tokens{}, reject(fmt.Errorf("submit otp: %w", apperr.ErrInvalidContact))
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return model.Tokens{}, reject(apperr.Missing(apperr.ErrMissingField, "code"))
	}

	form := url.Values{}
	form.Set("contactType", "SMS")
	form.Set("code", code)
	form.Set("grant_type", "password")
	form.Set("contact", util.NormalizePhone(contact))
	form.Set("scope", "openid")

	body, err := m.remote.CIAMForm(ctx, "submit_otp", apiKey, m.paths.Token, form)
	if err != nil {
		return model.Tokens{}, fmt.Errorf("submit otp: %w", err)
	}

	return decodeTokens("submit_otp", body)
}

// RefreshToken trades a refresh token for a new bundle. The remote may
// invalidate the previous access token; concurrent refreshes with the same
// token race and the loser must fall back to the OTP flow.
func (m *Manager) RefreshToken(ctx context.Context, refreshToken string) (model.Tokens, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return model.Tokens{}, reject(apperr.Missing(apperr.ErrMissingCredential, "refresh_token"))
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)

	body, err := m.remote.CIAMForm(ctx, "refresh_token", "", m.paths.Token, form)
	if err != nil {
		return model.Tokens{}, fmt.Errorf("refresh token: %w", err)
	}

	return decodeTokens("refresh_token", body)
}

// ExtendSession obtains an exchange code for an already known subscriber.
func (m *Manager) ExtendSession(ctx context.Context, subscriberID string) (model.SessionExtension, error) {
	subscriberID = strings.TrimSpace(subscriberID)
	if subscriberID == "" {
		return model.SessionExtension{}, reject(apperr.Missing(apperr.ErrMissingField, "subscriber_id"))
	}

	q := url.Values{}
	q.Set("contact", base64.StdEncoding.EncodeToString([]byte(subscriberID)))
	q.Set("contactType", "DEVICEID")

	body, err := m.remote.CIAMGet(ctx, "extend_session", m.paths.ExtendSession, q)
	if err != nil {
		return model.SessionExtension{}, fmt.Errorf("extend session: %w", err)
	}

	var res struct {
		Data struct {
			ExchangeCode string `json:"exchange_code"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &res); err != nil || res.Data.ExchangeCode == "" {
		return model.SessionExtension{}, &apperr.RemoteError{Op: "extend_session", Message: "missing exchange code", Body: raw(body)}
	}

	return model.SessionExtension{SubscriberID: subscriberID, ExchangeCode: res.Data.ExchangeCode}, nil
}

func decodeTokens(op string, body []byte) (model.Tokens, error) {
	var res struct {
		model.Tokens
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return model.Tokens{}, &apperr.RemoteError{Op: op, Message: "malformed token response", Body: raw(body)}
	}
	if res.Error != "" || !res.Tokens.HasIdentity() {
		msg := res.ErrorDescription
		if msg == "" {
			msg = res.Error
		}
		if msg == "" {
			msg = "id_token missing from response"
		}
		return model.Tokens{}, &apperr.RemoteError{Op: op, Code: res.Error, Message: msg, Body: raw(body)}
	}

	return res.Tokens, nil
}

func raw(b []byte) json.RawMessage {
	if len(b) == 0 || !json.Valid(b) {
		q, _ := json.Marshal(string(b))
		return q
	}
	return b
}

func reject(err error) error {
	metrics.LocalRejectsTotal.WithLabelValues(apperr.Kind(err)).Inc()
	return err
}
