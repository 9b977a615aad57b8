package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/jmehdipour/xl-gateway/internal/apperr"
	"github.com/jmehdipour/xl-gateway/internal/http/middleware"
	"github.com/jmehdipour/xl-gateway/internal/model"
	"github.com/jmehdipour/xl-gateway/internal/util"
	echo "github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const maxIdempotencyKey = 128

type purchaseReq struct {
	Tokens            model.Tokens `json:"tokens"`
	PackageOptionCode string       `json:"package_option_code"`
	TokenConfirmation *string      `json:"token_confirmation"`
	Price             *int64       `json:"price"`
	ItemName          string       `json:"item_name"`
	PaymentMethod     string       `json:"payment_method"`
	WalletNumber      string       `json:"wallet_number"`
	TokenPayment      string       `json:"token_payment"`
	Timestamp         int64        `json:"timestamp"`
	TransactionID     string       `json:"transaction_id"`
}

func (r purchaseReq) confirmation() string {
	if r.TokenConfirmation == nil {
		return ""
	}
	return *r.TokenConfirmation
}

func (r purchaseReq) price() int64 {
	if r.Price == nil {
		return 0
	}
	return *r.Price
}

func (s *Server) multipayment(c echo.Context) error {
	var req purchaseReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c)
	}
	if !hasTokens(req.Tokens) {
		return missingFields(c, "tokens")
	}

	intent := model.PaymentIntent{
		PackageOptionCode: strings.TrimSpace(req.PackageOptionCode),
		TokenConfirmation: req.confirmation(),
		Price:             req.price(),
		ItemName:          req.ItemName,
		PaymentMethod:     req.PaymentMethod,
		WalletNumber:      req.WalletNumber,
		TokenPayment:      req.TokenPayment,
		Timestamp:         req.Timestamp,
	}

	return s.submission(c, model.RailMultipayment, func() (any, error) {
		res, err := s.d.Purchases.SubmitMultipayment(c.Request().Context(), middleware.APIKeyFromCtx(c), req.Tokens, intent)
		s.audit(c, "submit_multipayment", eventFor(model.RailMultipayment, intent.PackageOptionCode, intent.Price, res, err))
		return res, err
	})
}

func (s *Server) qris(c echo.Context) error {
	var req purchaseReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c)
	}
	var missing []string
	if !hasTokens(req.Tokens) {
		missing = append(missing, "tokens")
	}
	if strings.TrimSpace(req.PackageOptionCode) == "" {
		missing = append(missing, "package_option_code")
	}
	if req.TokenConfirmation == nil {
		missing = append(missing, "token_confirmation")
	}
	if req.Price == nil {
		missing = append(missing, "price")
	}
	if strings.TrimSpace(req.ItemName) == "" {
		missing = append(missing, "item_name")
	}
	if len(missing) > 0 {
		return missingFields(c, missing...)
	}

	qr := model.QrisRequest{
		PackageOptionCode: strings.TrimSpace(req.PackageOptionCode),
		TokenConfirmation: req.confirmation(),
		Price:             req.price(),
		ItemName:          req.ItemName,
	}

	return s.submission(c, model.RailQris, func() (any, error) {
		qi, err := s.d.Purchases.ShowQrisPayment(c.Request().Context(), middleware.APIKeyFromCtx(c), req.Tokens, qr)
		ev := eventFor(model.RailQris, qr.PackageOptionCode, qr.Price, model.SettlementResult{}, err)
		ev.TransactionID = qi.TransactionID
		if qi.State != "" {
			ev.State, ev.Status = qi.State, model.SettlementPending
		}
		s.audit(c, "show_qris", ev)
		if err != nil && qi.TransactionID != "" {
			// issued; the caller fetches the code through /qris/code
			s.log.Warn("qris code read failed after issue",
				zap.String("transaction_id", qi.TransactionID), zap.Error(err))
			return qi, nil
		}
		return qi, err
	})
}

func (s *Server) bounty(c echo.Context) error {
	var req purchaseReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c)
	}
	if !hasTokens(req.Tokens) {
		return missingFields(c, "tokens")
	}

	intent := model.BountyIntent{
		PackageOptionCode: strings.TrimSpace(req.PackageOptionCode),
		TokenConfirmation: req.confirmation(),
		Price:             req.price(),
		ItemName:          req.ItemName,
	}

	return s.submission(c, model.RailBounty, func() (any, error) {
		res, err := s.d.Purchases.RedeemBounty(c.Request().Context(), middleware.APIKeyFromCtx(c), req.Tokens, intent)
		s.audit(c, "redeem_bounty", eventFor(model.RailBounty, intent.PackageOptionCode, intent.Price, res, err))
		return res, err
	})
}

func (s *Server) qrisCode(c echo.Context) error {
	req, bound := s.bindTransaction(c)
	if !bound {
		return nil
	}
	qr, err := s.d.Purchases.GetQrisCode(c.Request().Context(), middleware.APIKeyFromCtx(c), req.Tokens, req.TransactionID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"ok":     true,
		"result": map[string]string{"transaction_id": req.TransactionID, "qr_payload": qr},
	})
}

func (s *Server) qrisSettlement(c echo.Context) error {
	req, bound := s.bindTransaction(c)
	if !bound {
		return nil
	}
	res, err := s.d.Purchases.SettlementQris(c.Request().Context(), middleware.APIKeyFromCtx(c), req.Tokens, req.TransactionID)
	return s.settlement(c, "settlement_qris", model.RailQris, req.TransactionID, res, err)
}

func (s *Server) bountySettlement(c echo.Context) error {
	req, bound := s.bindTransaction(c)
	if !bound {
		return nil
	}
	res, err := s.d.Purchases.SettlementBounty(c.Request().Context(), middleware.APIKeyFromCtx(c), req.Tokens, req.TransactionID)
	return s.settlement(c, "settlement_bounty", model.RailBounty, req.TransactionID, res, err)
}

// settlement audits only status checks that reached a terminal state;
// pending checks are repeated by pollers and would flood the log.
func (s *Server) settlement(c echo.Context, op string, rail model.Rail, transactionID string, res model.SettlementResult, err error) error {
	if err != nil || res.State.Terminal() {
		ev := eventFor(rail, "", 0, res, err)
		ev.TransactionID = transactionID
		s.audit(c, op, ev)
	}
	if err != nil {
		return writeError(c, err)
	}
	return ok(c, res)
}

// bindTransaction binds a {tokens, transaction_id} body. On false the
// response has already been written.
func (s *Server) bindTransaction(c echo.Context) (purchaseReq, bool) {
	var req purchaseReq
	if err := c.Bind(&req); err != nil {
		_ = badRequest(c)
		return req, false
	}
	var missing []string
	if !hasTokens(req.Tokens) {
		missing = append(missing, "tokens")
	}
	req.TransactionID = strings.TrimSpace(req.TransactionID)
	if req.TransactionID == "" {
		missing = append(missing, "transaction_id")
	}
	if len(missing) > 0 {
		_ = missingFields(c, missing...)
		return req, false
	}
	return req, true
}

// submission runs a purchase submission under the caller's
// Idempotency-Key, when one is given and a store is configured.
//
// A completed key replays the stored result. A key still in flight, or one
// whose transport failed mid-call, gets 409: only the remote knows whether
// that purchase went through. Failures before the submission call release
// the key.
func (s *Server) submission(c echo.Context, rail model.Rail, run func() (any, error)) error {
	key := strings.TrimSpace(c.Request().Header.Get("Idempotency-Key"))
	if key == "" || s.d.Submissions == nil {
		res, err := run()
		if err != nil {
			return writeError(c, err)
		}
		return ok(c, res)
	}
	if len(key) > maxIdempotencyKey {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid_idempotency_key"})
	}

	caller := middleware.CallerFromCtx(c)
	existing, reserved, err := s.d.Submissions.Reserve(c.Request().Context(), caller, key, rail)
	if err != nil {
		s.log.Error("idempotency reserve failed", zap.String("rail", rail.String()), zap.Error(err))
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "idempotency_store_unavailable"})
	}
	if !reserved {
		return replay(c, existing)
	}

	res, runErr := run()

	ctx, cancel := detached(c.Request().Context(), bookkeepingTimeout)
	defer cancel()

	if runErr != nil {
		if local(runErr) {
			err = s.d.Submissions.Release(ctx, caller, key)
		} else {
			err = s.d.Submissions.MarkUnknown(ctx, caller, key)
		}
		if err != nil {
			s.log.Error("idempotency update failed", zap.String("rail", rail.String()), zap.Error(err))
		}
		return writeError(c, runErr)
	}

	b, err := json.Marshal(res)
	if err == nil {
		err = s.d.Submissions.Complete(ctx, caller, key, b)
	}
	if err != nil {
		s.log.Error("idempotency complete failed", zap.String("rail", rail.String()), zap.Error(err))
	}
	return ok(c, res)
}

func replay(c echo.Context, sub model.Submission) error {
	switch sub.State {
	case model.SubmissionCompleted:
		return c.JSON(http.StatusOK, map[string]any{
			"ok":         true,
			"idempotent": true,
			"result":     json.RawMessage(sub.Result),
		})
	case model.SubmissionUnknown:
		return c.JSON(http.StatusConflict, map[string]string{"error": "submission_outcome_unknown"})
	default:
		return c.JSON(http.StatusConflict, map[string]string{"error": "submission_in_flight"})
	}
}

// local reports errors raised before any submission was sent to the remote:
// admission failures and failed pre-submission reads such as the payment
// methods lookup.
func local(err error) bool {
	if errors.Is(err, apperr.ErrNotSubmitted) {
		return true
	}
	switch apperr.Kind(err) {
	case "InvalidContact", "MissingCredential", "MissingField", "MissingConfirmation", "InvalidIntent":
		return true
	}
	return false
}

func eventFor(rail model.Rail, packageCode string, price int64, res model.SettlementResult, err error) model.PurchaseEvent {
	ev := model.PurchaseEvent{
		Rail:              rail,
		State:             res.State,
		Status:            res.Status,
		PackageOptionCode: packageCode,
		TransactionID:     res.TransactionID,
		Price:             price,
		Reason:            res.Reason,
	}
	if err != nil {
		ev.ErrorKind = apperr.Kind(err)
		ev.Reason = err.Error()
	}
	return ev
}

// audit publishes one event; failures are logged, never surfaced.
func (s *Server) audit(c echo.Context, op string, ev model.PurchaseEvent) {
	if s.d.Publisher == nil {
		return
	}
	ev.ID = util.New()
	ev.Caller = middleware.CallerFromCtx(c)
	ev.Operation = op
	ev.CreatedAt = time.Now().UTC()

	ctx, cancel := detached(c.Request().Context(), bookkeepingTimeout)
	defer cancel()
	if err := s.d.Publisher.Publish(ctx, ev); err != nil {
		s.log.Warn("audit publish failed", zap.String("op", op), zap.String("event_id", ev.ID), zap.Error(err))
	}
}
