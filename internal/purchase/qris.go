package purchase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jmehdipour/xl-gateway/internal/apperr"
	"github.com/jmehdipour/xl-gateway/internal/model"
	"go.uber.org/zap"
)

// ShowQrisPayment drives INIT → CODE_ISSUED. It reads the payment options,
// makes one QRIS settlement submission and reads back the QR payload.
//
// The submission is never repeated. If the payload read fails after the
// submission succeeded, the returned intent still carries the transaction
// id so the caller can fetch the code later with GetQrisCode.
func (o *Orchestrator) ShowQrisPayment(ctx context.Context, apiKey string, tokens model.Tokens, req model.QrisRequest) (model.QrisIntent, error) {
	if err := requireAuth(apiKey, tokens, true); err != nil {
		return model.QrisIntent{}, err
	}
	if err := validateQrisRequest(req); err != nil {
		return model.QrisIntent{}, err
	}

	opts, err := o.ListPaymentMethods(ctx, apiKey, tokens, req.PackageOptionCode, req.TokenConfirmation)
	if err != nil {
		recordErr(model.RailQris, err)
		return model.QrisIntent{}, apperr.NotSubmitted(err)
	}

	payload := map[string]any{
		"total_discount":     0,
		"is_enterprise":      false,
		"payment_token":      "",
		"token_payment":      opts.TokenPayment,
		"cc_payment_type":    "",
		"is_myxl_wallet":     false,
		"pin":                "",
		"ewallet_promo_id":   "",
		"members":            []any{},
		"total_fee":          0,
		"fingerprint":        "",
		"is_use_point":       false,
		"lang":               "en",
		"payment_method":     "QRIS",
		"timestamp":          opts.Timestamp,
		"points_gained":      0,
		"can_trigger_rating": false,
		"payment_for":        "BUY_PACKAGE",
		"access_token":       tokens.AccessToken,
		"additional_data":    map[string]any{},
		"total_amount":       req.Price,
		"is_using_autobuy":   false,
		"items":              settlementItem(req.PackageOptionCode, req.Price, req.ItemName, req.TokenConfirmation),
	}

	env, rejected, err := o.submit(ctx, "settle_qris", apiKey, tokens, o.paths.SettleQris, payload)
	if err != nil {
		o.log.Warn("qris submission outcome unknown",
			zap.String("package_option_code", req.PackageOptionCode),
			zap.Error(err))
		recordErr(model.RailQris, err)
		return model.QrisIntent{}, err
	}
	if rejected != nil {
		recordErr(model.RailQris, rejected)
		return model.QrisIntent{}, rejected
	}

	var res struct {
		TransactionCode string `json:"transaction_code"`
	}
	if err := json.Unmarshal(env.Data, &res); err != nil || res.TransactionCode == "" {
		err := &apperr.RemoteError{Op: "settle_qris", Message: "missing transaction_code", Body: env.Raw}
		recordErr(model.RailQris, err)
		return model.QrisIntent{}, err
	}

	intent := model.QrisIntent{TransactionID: res.TransactionCode, State: model.StateCodeIssued}
	record(model.RailQris, model.StateCodeIssued)
	o.log.Info("qris code issued",
		zap.String("package_option_code", req.PackageOptionCode),
		zap.String("transaction_id", intent.TransactionID))

	qr, err := o.GetQrisCode(ctx, apiKey, tokens, intent.TransactionID)
	if err != nil {
		return intent, fmt.Errorf("qris %s issued, code unavailable: %w", intent.TransactionID, err)
	}
	intent.QRPayload = qr

	return intent, nil
}

// GetQrisCode re-fetches the renderable code of an issued transaction.
// Pure read; repeated calls return the same payload.
func (o *Orchestrator) GetQrisCode(ctx context.Context, apiKey string, tokens model.Tokens, transactionID string) (string, error) {
	if err := requireAuth(apiKey, tokens, false); err != nil {
		return "", err
	}
	if strings.TrimSpace(transactionID) == "" {
		return "", reject(apperr.Missing(apperr.ErrMissingField, "transaction_id"))
	}

	payload := map[string]any{
		"transaction_id": transactionID,
		"is_enterprise":  false,
		"lang":           "en",
	}

	env, err := o.api.Call(ctx, "qris_code", apiKey, tokens.IDToken, o.paths.QrisDetail, payload)
	if err != nil {
		return "", fmt.Errorf("qris code: %w", err)
	}
	if err := env.Err("qris_code"); err != nil {
		return "", err
	}

	var res struct {
		QRCode string `json:"qr_code"`
	}
	if err := json.Unmarshal(env.Data, &res); err != nil || res.QRCode == "" {
		return "", &apperr.RemoteError{Op: "qris_code", Message: "missing qr_code", Body: env.Raw}
	}
	return res.QRCode, nil
}

// SettlementQris is one point-in-time status check of a QRIS transaction.
// It does not loop; see PollSettlement for a caller-side cadence.
func (o *Orchestrator) SettlementQris(ctx context.Context, apiKey string, tokens model.Tokens, transactionID string) (model.SettlementResult, error) {
	return o.settlementStatus(ctx, model.RailQris, "qris_status", o.paths.QrisStatus, apiKey, tokens, transactionID)
}

// settlementStatus reads a transaction status and maps it onto the
// POLLING → SETTLED|EXPIRED leg of the state machine.
func (o *Orchestrator) settlementStatus(ctx context.Context, rail model.Rail, op, path, apiKey string, tokens model.Tokens, transactionID string) (model.SettlementResult, error) {
	if err := requireAuth(apiKey, tokens, false); err != nil {
		return model.SettlementResult{}, err
	}
	if strings.TrimSpace(transactionID) == "" {
		return model.SettlementResult{}, reject(apperr.Missing(apperr.ErrMissingField, "transaction_id"))
	}

	payload := map[string]any{
		"transaction_id": transactionID,
		"is_enterprise":  false,
		"lang":           "en",
	}

	env, err := o.api.Call(ctx, op, apiKey, tokens.IDToken, path, payload)
	if err != nil {
		return model.SettlementResult{}, fmt.Errorf("%s: %w", op, err)
	}
	if err := env.Err(op); err != nil {
		return model.SettlementResult{}, err
	}

	var res struct {
		Status       string `json:"status"`
		Message      string `json:"message"`
		PointsGained int64  `json:"points_gained"`
	}
	if err := json.Unmarshal(env.Data, &res); err != nil {
		return model.SettlementResult{}, &apperr.RemoteError{Op: op, Message: "malformed settlement status", Body: env.Raw}
	}

	st, expired := model.ParseSettlementStatus(res.Status)
	out := model.SettlementResult{
		Rail:          rail,
		Status:        st,
		TransactionID: transactionID,
		Receipt:       env.Data,
	}
	switch {
	case st == model.SettlementSuccess:
		out.State = model.StateSettled
	case st == model.SettlementFailed && expired:
		out.State = model.StateExpired
		out.Reason = reasonOr(res.Message, res.Status)
	case st == model.SettlementFailed:
		out.State = model.StateRejected
		out.Reason = reasonOr(res.Message, res.Status)
	default:
		out.State = model.StatePolling
	}
	if rail == model.RailBounty {
		out.PointsGained = res.PointsGained
	}

	if out.State.Terminal() {
		record(rail, out.State)
	}
	return out, nil
}

func validateQrisRequest(req model.QrisRequest) error {
	if strings.TrimSpace(req.TokenConfirmation) == "" {
		return reject(apperr.ErrMissingConfirmation)
	}
	if strings.TrimSpace(req.PackageOptionCode) == "" {
		return invalid("package_option_code required")
	}
	if req.Price < 0 {
		return invalid("negative price %d", req.Price)
	}
	if strings.TrimSpace(req.ItemName) == "" {
		return invalid("item_name required")
	}
	return nil
}

func reasonOr(msg, status string) string {
	if msg != "" {
		return msg
	}
	return status
}
