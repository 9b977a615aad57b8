package http

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"

	"github.com/jmehdipour/xl-gateway/internal/apperr"
	"github.com/jmehdipour/xl-gateway/internal/http/middleware"
	"github.com/jmehdipour/xl-gateway/internal/model"
	echo "github.com/labstack/echo/v4"
)

type otpReq struct {
	Contact string `json:"contact"`
	Code    string `json:"code"`
}

func (s *Server) otpRequest(c echo.Context) error {
	var req otpReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c)
	}
	contact := strings.TrimSpace(req.Contact)
	if contact == "" {
		return missingFields(c, "contact")
	}

	ch, err := s.d.Sessions.RequestOTP(c.Request().Context(), contact)
	if err != nil {
		if errors.Is(err, apperr.ErrInvalidContact) {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid_contact"})
		}
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"ok": true, "contact": contact, "result": ch})
}

func (s *Server) otpSubmit(c echo.Context) error {
	var req otpReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c)
	}
	req.Contact, req.Code = strings.TrimSpace(req.Contact), strings.TrimSpace(req.Code)
	if req.Contact == "" || req.Code == "" {
		return missingFields(c, "contact", "code")
	}

	tokens, err := s.d.Sessions.SubmitOTP(c.Request().Context(), middleware.APIKeyFromCtx(c), req.Contact, req.Code)
	if err != nil {
		return writeError(c, err)
	}
	return ok(c, tokens)
}

// tokenRefresh coalesces concurrent refreshes of one refresh token: the
// remote invalidates a refresh token on first use, so a second in-flight
// exchange would only lose the race.
func (s *Server) tokenRefresh(c echo.Context) error {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.Bind(&req); err != nil {
		return badRequest(c)
	}
	refresh := strings.TrimSpace(req.RefreshToken)
	if refresh == "" {
		return missingFields(c, "refresh_token")
	}

	sum := sha256.Sum256([]byte(refresh))
	v, err, _ := s.refresh.Do(hex.EncodeToString(sum[:]), func() (any, error) {
		ctx, cancel := detached(c.Request().Context(), refreshTimeout)
		defer cancel()
		return s.d.Sessions.RefreshToken(ctx, refresh)
	})
	if err != nil {
		return writeError(c, err)
	}
	return ok(c, v.(model.Tokens))
}
