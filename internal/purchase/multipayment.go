package purchase

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/jmehdipour/xl-gateway/internal/apperr"
	"github.com/jmehdipour/xl-gateway/internal/model"
	"go.uber.org/zap"
)

// SubmitMultipayment drives INIT/METHOD_SELECTED → SUBMITTED →
// CONFIRMED|REJECTED with a single settlement call.
//
// If intent carries no token_payment it is fetched with ListPaymentMethods
// first; that read is not a submission. The price is forwarded as declared
// and checked by the remote, never locally.
func (o *Orchestrator) SubmitMultipayment(ctx context.Context, apiKey string, tokens model.Tokens, intent model.PaymentIntent) (model.SettlementResult, error) {
	if err := requireAuth(apiKey, tokens, true); err != nil {
		return model.SettlementResult{}, err
	}
	if err := validatePaymentIntent(intent); err != nil {
		return model.SettlementResult{}, err
	}

	method := strings.ToUpper(strings.TrimSpace(intent.PaymentMethod))

	tokenPayment, ts := intent.TokenPayment, intent.Timestamp
	if tokenPayment == "" {
		opts, err := o.ListPaymentMethods(ctx, apiKey, tokens, intent.PackageOptionCode, intent.TokenConfirmation)
		if err != nil {
			recordErr(model.RailMultipayment, err)
			return model.SettlementResult{}, apperr.NotSubmitted(err)
		}
		tokenPayment, ts = opts.TokenPayment, opts.Timestamp
	}

	payload := map[string]any{
		"total_discount":     0,
		"is_enterprise":      false,
		"payment_token":      "",
		"token_payment":      tokenPayment,
		"cc_payment_type":    "",
		"is_myxl_wallet":     false,
		"pin":                "",
		"ewallet_promo_id":   "",
		"members":            []any{},
		"total_fee":          0,
		"fingerprint":        "",
		"is_use_point":       false,
		"lang":               "en",
		"payment_method":     method,
		"timestamp":          ts,
		"points_gained":      0,
		"can_trigger_rating": false,
		"payment_for":        "BUY_PACKAGE",
		"access_token":       tokens.AccessToken,
		"wallet_number":      strings.TrimSpace(intent.WalletNumber),
		"additional_data":    map[string]any{},
		"total_amount":       intent.Price,
		"is_using_autobuy":   false,
		"items":              settlementItem(intent.PackageOptionCode, intent.Price, intent.ItemName, intent.TokenConfirmation),
	}

	env, rejected, err := o.submit(ctx, "settle_multipayment", apiKey, tokens, o.paths.SettleMultipayment, payload)
	if err != nil {
		o.log.Warn("multipayment outcome unknown",
			zap.String("package_option_code", intent.PackageOptionCode),
			zap.String("payment_method", method),
			zap.Error(err))
		recordErr(model.RailMultipayment, err)
		return model.SettlementResult{}, err
	}

	if rejected != nil {
		o.log.Info("multipayment rejected",
			zap.String("package_option_code", intent.PackageOptionCode),
			zap.String("reason", rejected.Reason()))
		record(model.RailMultipayment, model.StateRejected)
		return model.SettlementResult{
			Rail:    model.RailMultipayment,
			State:   model.StateRejected,
			Status:  model.SettlementFailed,
			Reason:  rejected.Reason(),
			Receipt: rejected.Body,
		}, nil
	}

	var res struct {
		TransactionCode string `json:"transaction_code"`
		Deeplink        string `json:"deeplink"`
	}
	if err := json.Unmarshal(env.Data, &res); err != nil {
		o.log.Warn("multipayment receipt undecodable",
			zap.String("package_option_code", intent.PackageOptionCode),
			zap.Error(err))
	}

	o.log.Info("multipayment confirmed",
		zap.String("package_option_code", intent.PackageOptionCode),
		zap.String("transaction_id", res.TransactionCode))
	record(model.RailMultipayment, model.StateConfirmed)

	return model.SettlementResult{
		Rail:          model.RailMultipayment,
		State:         model.StateConfirmed,
		Status:        model.SettlementSuccess,
		TransactionID: res.TransactionCode,
		Deeplink:      res.Deeplink,
		Receipt:       env.Data,
	}, nil
}

// validatePaymentIntent runs the local gates in order. A missing
// confirmation is reported before any other intent defect.
func validatePaymentIntent(in model.PaymentIntent) error {
	if strings.TrimSpace(in.TokenConfirmation) == "" {
		return reject(apperr.ErrMissingConfirmation)
	}
	if strings.TrimSpace(in.PackageOptionCode) == "" {
		return invalid("package_option_code required")
	}
	if in.State() != model.StateMethodSelected {
		return invalid("payment_method required")
	}
	if in.Price < 0 {
		return invalid("negative price %d", in.Price)
	}
	if model.RequiresWalletNumber(in.PaymentMethod) && strings.TrimSpace(in.WalletNumber) == "" {
		return invalid("wallet_number required for %s", strings.ToUpper(in.PaymentMethod))
	}
	return nil
}
