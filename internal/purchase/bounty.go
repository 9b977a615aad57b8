package purchase

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/jmehdipour/xl-gateway/internal/apperr"
	"github.com/jmehdipour/xl-gateway/internal/model"
	"go.uber.org/zap"
)

// RedeemBounty submits one bounty exchange. Like the other rails it is
// submitted at most once; the settlement is then tracked with
// SettlementBounty.
func (o *Orchestrator) RedeemBounty(ctx context.Context, apiKey string, tokens model.Tokens, intent model.BountyIntent) (model.SettlementResult, error) {
	if err := requireAuth(apiKey, tokens, true); err != nil {
		return model.SettlementResult{}, err
	}
	if strings.TrimSpace(intent.TokenConfirmation) == "" {
		return model.SettlementResult{}, reject(apperr.ErrMissingConfirmation)
	}
	if strings.TrimSpace(intent.PackageOptionCode) == "" {
		return model.SettlementResult{}, invalid("package_option_code required")
	}
	if intent.Price < 0 {
		return model.SettlementResult{}, invalid("negative price %d", intent.Price)
	}

	opts, err := o.ListPaymentMethods(ctx, apiKey, tokens, intent.PackageOptionCode, intent.TokenConfirmation)
	if err != nil {
		recordErr(model.RailBounty, err)
		return model.SettlementResult{}, apperr.NotSubmitted(err)
	}

	payload := map[string]any{
		"total_discount":     0,
		"is_enterprise":      false,
		"payment_token":      "",
		"token_payment":      opts.TokenPayment,
		"is_myxl_wallet":     false,
		"pin":                "",
		"members":            []any{},
		"total_fee":          0,
		"fingerprint":        "",
		"is_use_point":       false,
		"lang":               "en",
		"payment_method":     "BALANCE",
		"timestamp":          opts.Timestamp,
		"points_gained":      0,
		"can_trigger_rating": false,
		"payment_for":        "REDEEM_VOUCHER",
		"access_token":       tokens.AccessToken,
		"additional_data":    map[string]any{},
		"total_amount":       intent.Price,
		"is_using_autobuy":   false,
		"items":              settlementItem(intent.PackageOptionCode, intent.Price, intent.ItemName, intent.TokenConfirmation),
	}

	env, rejected, err := o.submit(ctx, "redeem_bounty", apiKey, tokens, o.paths.BountyExchange, payload)
	if err != nil {
		o.log.Warn("bounty redemption outcome unknown",
			zap.String("package_option_code", intent.PackageOptionCode),
			zap.Error(err))
		recordErr(model.RailBounty, err)
		return model.SettlementResult{}, err
	}
	if rejected != nil {
		record(model.RailBounty, model.StateRejected)
		return model.SettlementResult{
			Rail:    model.RailBounty,
			State:   model.StateRejected,
			Status:  model.SettlementFailed,
			Reason:  rejected.Reason(),
			Receipt: rejected.Body,
		}, nil
	}

	var res struct {
		TransactionCode string `json:"transaction_code"`
		Status          string `json:"status"`
		PointsGained    int64  `json:"points_gained"`
	}
	if err := json.Unmarshal(env.Data, &res); err != nil {
		o.log.Warn("bounty receipt undecodable",
			zap.String("package_option_code", intent.PackageOptionCode),
			zap.Error(err))
	}

	st, _ := model.ParseSettlementStatus(res.Status)
	state := model.StatePolling
	if st == model.SettlementSuccess {
		state = model.StateSettled
		record(model.RailBounty, state)
	} else {
		st = model.SettlementPending
	}

	o.log.Info("bounty redeemed",
		zap.String("package_option_code", intent.PackageOptionCode),
		zap.String("transaction_id", res.TransactionCode),
		zap.String("state", state.String()))

	return model.SettlementResult{
		Rail:          model.RailBounty,
		State:         state,
		Status:        st,
		TransactionID: res.TransactionCode,
		PointsGained:  res.PointsGained,
		Receipt:       env.Data,
	}, nil
}

// SettlementBounty is SettlementQris for bounty-funded purchases; it also
// reports the points credited by the exchange.
func (o *Orchestrator) SettlementBounty(ctx context.Context, apiKey string, tokens model.Tokens, transactionID string) (model.SettlementResult, error) {
	return o.settlementStatus(ctx, model.RailBounty, "bounty_status", o.paths.BountyStatus, apiKey, tokens, transactionID)
}
