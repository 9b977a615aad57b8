package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/jmehdipour/xl-gateway/internal/config"
	"github.com/jmehdipour/xl-gateway/internal/http/middleware"
	"github.com/jmehdipour/xl-gateway/internal/model"
	"github.com/jmehdipour/xl-gateway/internal/repository"
	echo "github.com/labstack/echo/v4"
	echoMid "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Sessions is the session manager surface the dispatch layer calls.
type Sessions interface {
	RequestOTP(ctx context.Context, contact string) (model.Challenge, error)
	SubmitOTP(ctx context.Context, apiKey, contact, code string) (model.Tokens, error)
	RefreshToken(ctx context.Context, refreshToken string) (model.Tokens, error)
}

type Catalog interface {
	GetProfile(ctx context.Context, apiKey string, tokens model.Tokens) (json.RawMessage, error)
	GetBalance(ctx context.Context, apiKey string, tokens model.Tokens) (model.Balance, error)
	GetFamily(ctx context.Context, apiKey string, tokens model.Tokens, familyCode string) (json.RawMessage, error)
	GetFamilies(ctx context.Context, apiKey string, tokens model.Tokens, categoryCode string) (json.RawMessage, error)
	GetPackage(ctx context.Context, apiKey string, tokens model.Tokens, optionCode string) (model.PackageDetail, error)
	GetAddons(ctx context.Context, apiKey string, tokens model.Tokens, optionCode string) (json.RawMessage, error)
	ResolveMyPackages(ctx context.Context, apiKey string, tokens model.Tokens) ([]model.PackageReference, error)
}

type Purchases interface {
	ListPaymentMethods(ctx context.Context, apiKey string, tokens model.Tokens, packageOptionCode, tokenConfirmation string) (model.PaymentOptions, error)
	SubmitMultipayment(ctx context.Context, apiKey string, tokens model.Tokens, intent model.PaymentIntent) (model.SettlementResult, error)
	ShowQrisPayment(ctx context.Context, apiKey string, tokens model.Tokens, req model.QrisRequest) (model.QrisIntent, error)
	GetQrisCode(ctx context.Context, apiKey string, tokens model.Tokens, transactionID string) (string, error)
	SettlementQris(ctx context.Context, apiKey string, tokens model.Tokens, transactionID string) (model.SettlementResult, error)
	RedeemBounty(ctx context.Context, apiKey string, tokens model.Tokens, intent model.BountyIntent) (model.SettlementResult, error)
	SettlementBounty(ctx context.Context, apiKey string, tokens model.Tokens, transactionID string) (model.SettlementResult, error)
}

// EventPublisher receives one audit event per purchase operation.
type EventPublisher interface {
	Publish(ctx context.Context, e model.PurchaseEvent) error
}

// Deps wires the server. Submissions, Events, Publisher and Limiter are
// optional; a nil one disables its feature.
type Deps struct {
	Sessions    Sessions
	Catalog     Catalog
	Purchases   Purchases
	Submissions repository.SubmissionsRepository
	Events      repository.CHEventsRepository
	Publisher   EventPublisher
	Limiter     middleware.Counter
	Log         *zap.Logger
}

const (
	refreshTimeout     = 35 * time.Second
	bookkeepingTimeout = 5 * time.Second
)

type Server struct {
	e       *echo.Echo
	d       Deps
	log     *zap.Logger
	refresh singleflight.Group
}

var endpoints = []string{
	"POST /api/otp/request",
	"POST /api/otp/submit",
	"POST /api/token/refresh",
	"POST /api/profile",
	"POST /api/balance",
	"POST /api/family",
	"POST /api/families",
	"POST /api/package/details",
	"POST /api/package/addons",
	"POST /api/packages/mine",
	"POST /api/payment/methods",
	"POST /api/purchase/multipayment",
	"POST /api/purchase/qris",
	"POST /api/purchase/qris/code",
	"POST /api/purchase/qris/settlement",
	"POST /api/purchase/bounty",
	"POST /api/purchase/bounty/settlement",
	"GET /api/purchase/events",
}

// NewServer builds the echo router. Metrics must be registered by the
// caller before /metrics is scraped.
func NewServer(cfg config.Config, d Deps) *Server {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{d: d, log: log}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echoMid.Recover(), echoMid.RequestID(), echoMid.Logger())
	if cfg.HTTP.BodyLimit != "" {
		e.Use(echoMid.BodyLimit(cfg.HTTP.BodyLimit))
	}

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]any{"name": "xl-gateway", "ok": true, "endpoints": endpoints})
	})

	// unauthenticated: the identity endpoints carry no api key
	e.POST("/api/otp/request", s.otpRequest)
	e.POST("/api/token/refresh", s.tokenRefresh)

	authMW := middleware.APIKeyMiddleware()
	rlMW := middleware.RateLimitMiddleware(middleware.RateLimitConfig{
		Counter:        d.Limiter,
		Limit:          rateLimit(cfg.RateLimit),
		Window:         cfg.RateLimit.Window,
		RetryAfterHint: true,
	})

	api := e.Group("/api", authMW, rlMW)
	api.POST("/otp/submit", s.otpSubmit)

	api.POST("/profile", s.profile)
	api.POST("/balance", s.balance)
	api.POST("/family", s.family)
	api.POST("/families", s.families)
	api.POST("/package/details", s.packageDetails)
	api.POST("/package/addons", s.packageAddons)
	api.POST("/packages/mine", s.myPackages)

	api.POST("/payment/methods", s.paymentMethods)
	api.POST("/purchase/multipayment", s.multipayment)
	api.POST("/purchase/qris", s.qris)
	api.POST("/purchase/qris/code", s.qrisCode)
	api.POST("/purchase/qris/settlement", s.qrisSettlement)
	api.POST("/purchase/bounty", s.bounty)
	api.POST("/purchase/bounty/settlement", s.bountySettlement)
	api.GET("/purchase/events", s.listEvents)

	s.e = e
	return s
}

func rateLimit(c config.RateLimitConfig) int {
	if !c.Enabled {
		return 0
	}
	return c.Limit
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.e.ServeHTTP(w, r) }

func (s *Server) Start(addr string) error {
	s.log.Info("http: listening", zap.String("addr", addr))
	return s.e.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error { return s.e.Shutdown(ctx) }

// detached keeps request values but survives the client going away, for
// bookkeeping that must finish once a submission has been sent.
func detached(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), d)
}
