package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/jmehdipour/xl-gateway/internal/http/middleware"
	"github.com/jmehdipour/xl-gateway/internal/model"
	echo "github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
)

// listEvents returns the caller's purchase audit trail from ClickHouse.
func (s *Server) listEvents(c echo.Context) error {
	if s.d.Events == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "audit_store_disabled"})
	}

	limit := 50
	offset := 0
	if v := c.QueryParam("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}
	if v := c.QueryParam("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	var rail model.Rail
	if raw := model.Rail(strings.TrimSpace(c.QueryParam("rail"))); raw.Valid() {
		rail = raw
	}
	var st model.SettlementStatus
	if raw := model.SettlementStatus(strings.TrimSpace(c.QueryParam("status"))); raw.Valid() {
		st = raw
	}

	events, err := s.d.Events.ListByCaller(c.Request().Context(), middleware.CallerFromCtx(c), rail, st, limit, offset)
	if err != nil {
		log.Errorf("clickhouse list failed: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "query_failed"})
	}
	if events == nil {
		events = []model.PurchaseEvent{}
	}

	return c.JSON(http.StatusOK, map[string]any{
		"ok":     true,
		"limit":  limit,
		"offset": offset,
		"result": events,
	})
}
