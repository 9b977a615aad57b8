package purchase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/jmehdipour/xl-gateway/internal/apperr"
	"github.com/jmehdipour/xl-gateway/internal/metrics"
	"github.com/jmehdipour/xl-gateway/internal/model"
	"github.com/jmehdipour/xl-gateway/internal/remote"
	"go.uber.org/zap"
)

// API is the part of the remote client the orchestrator needs.
type API interface {
	Call(ctx context.Context, op, apiKey, idToken, path string, payload any) (remote.Envelope, error)
}

// Orchestrator runs the purchase state machines of every payment rail.
// It keeps no per-purchase state between calls; each transition is the
// result of exactly one remote call.
type Orchestrator struct {
	api   API
	paths remote.Paths
	log   *zap.Logger
}

func NewOrchestrator(api API, paths remote.Paths, log *zap.Logger) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{api: api, paths: paths.WithDefaults(), log: log}
}

// ListPaymentMethods queries the methods valid for a package. Pure read.
// tokenConfirmation is optional; when given the remote scopes the returned
// token_payment to that confirmation.
func (o *Orchestrator) ListPaymentMethods(ctx context.Context, apiKey string, tokens model.Tokens, packageOptionCode, tokenConfirmation string) (model.PaymentOptions, error) {
	if err := requireAuth(apiKey, tokens, false); err != nil {
		return model.PaymentOptions{}, err
	}
	if strings.TrimSpace(packageOptionCode) == "" {
		return model.PaymentOptions{}, reject(apperr.Missing(apperr.ErrMissingField, "package_option_code"))
	}

	payload := map[string]any{
		"payment_type":   "PURCHASE",
		"is_enterprise":  false,
		"payment_target": packageOptionCode,
		"lang":           "en",
		"is_referral":    false,
	}
	if tokenConfirmation != "" {
		payload["token_confirmation"] = tokenConfirmation
	}

	env, err := o.api.Call(ctx, "payment_methods", apiKey, tokens.IDToken, o.paths.PaymentMethods, payload)
	if err != nil {
		return model.PaymentOptions{}, fmt.Errorf("payment methods: %w", err)
	}
	if err := env.Err("payment_methods"); err != nil {
		return model.PaymentOptions{}, err
	}

	var res struct {
		Methods      []model.PaymentMethod `json:"payment_methods"`
		TokenPayment string                `json:"token_payment"`
		Timestamp    int64                 `json:"timestamp"`
	}
	if err := json.Unmarshal(env.Data, &res); err != nil {
		return model.PaymentOptions{}, &apperr.RemoteError{Op: "payment_methods", Message: "malformed payment methods", Body: env.Raw}
	}

	return model.PaymentOptions{
		Methods:      res.Methods,
		TokenPayment: res.TokenPayment,
		Timestamp:    res.Timestamp,
	}, nil
}

// submit issues one purchase submission. It never retries: a failed
// submission may already have charged the subscriber.
//
// A business rejection (non-SUCCESS envelope or 4xx answer) comes back as
// rejected with a nil error. Timeouts, transport failures and 5xx answers
// leave the outcome unknown and come back as errors.
func (o *Orchestrator) submit(ctx context.Context, op, apiKey string, tokens model.Tokens, path string, payload any) (env remote.Envelope, rejected *apperr.RemoteError, err error) {
	env, err = o.api.Call(ctx, op, apiKey, tokens.IDToken, path, payload)
	if err != nil {
		var re *apperr.RemoteError
		if errors.As(err, &re) && re.HTTPStatus >= http.StatusBadRequest && re.HTTPStatus < http.StatusInternalServerError {
			return remote.Envelope{}, re, nil
		}
		return remote.Envelope{}, nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := env.Err(op); err != nil {
		var re *apperr.RemoteError
		errors.As(err, &re)
		return env, re, nil
	}
	return env, nil, nil
}

// settlementItem is the single line item every settlement payload carries.
func settlementItem(code string, price int64, name, confirmation string) []map[string]any {
	return []map[string]any{{
		"item_code":          code,
		"product_type":       "",
		"item_price":         price,
		"item_name":          name,
		"tax":                0,
		"token_confirmation": confirmation,
	}}
}

func requireAuth(apiKey string, tokens model.Tokens, needAccess bool) error {
	switch {
	case strings.TrimSpace(apiKey) == "":
		return reject(apperr.Missing(apperr.ErrMissingCredential, "api_key"))
	case !tokens.HasIdentity():
		return reject(apperr.Missing(apperr.ErrMissingCredential, "id_token"))
	case needAccess && !tokens.HasAccess():
		return reject(apperr.Missing(apperr.ErrMissingCredential, "access_token"))
	}
	return nil
}

func invalid(format string, args ...any) error {
	return reject(fmt.Errorf("%w: %s", apperr.ErrInvalidIntent, fmt.Sprintf(format, args...)))
}

func reject(err error) error {
	metrics.LocalRejectsTotal.WithLabelValues(apperr.Kind(err)).Inc()
	return err
}

func record(rail model.Rail, state model.PurchaseState) {
	metrics.PurchasesTotal.WithLabelValues(rail.String(), state.String()).Inc()
}

func recordErr(rail model.Rail, err error) {
	metrics.PurchasesTotal.WithLabelValues(rail.String(), apperr.Kind(err)).Inc()
}
