package http

import (
	"errors"
	"net/http"

	"github.com/jmehdipour/xl-gateway/internal/apperr"
	echo "github.com/labstack/echo/v4"
)

// kindStatus translates error kinds into transport status codes.
var kindStatus = map[string]int{
	"InvalidContact":      http.StatusBadRequest,
	"MissingCredential":   http.StatusBadRequest,
	"MissingField":        http.StatusBadRequest,
	"MissingConfirmation": http.StatusBadRequest,
	"InvalidIntent":       http.StatusBadRequest,
	"RemoteError":         http.StatusBadGateway,
	"RemoteTimeout":       http.StatusGatewayTimeout,
	"TransportError":      http.StatusBadGateway,
}

var kindCode = map[string]string{
	"InvalidContact":      "invalid_contact",
	"MissingCredential":   "missing_credential",
	"MissingField":        "missing_field",
	"MissingConfirmation": "missing_confirmation",
	"InvalidIntent":       "invalid_intent",
	"RemoteError":         "remote_error",
	"RemoteTimeout":       "remote_timeout",
	"TransportError":      "transport_error",
}

func statusFor(err error) int {
	if s, ok := kindStatus[apperr.Kind(err)]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// writeError renders a core error. Remote rejections carry the upstream
// reason and body verbatim.
func writeError(c echo.Context, err error) error {
	kind := apperr.Kind(err)
	code, ok := kindCode[kind]
	if !ok {
		c.Logger().Errorf("%s %s: %v", c.Request().Method, c.Path(), err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal_error"})
	}

	body := map[string]any{
		"error":  code,
		"kind":   kind,
		"detail": err.Error(),
	}
	var re *apperr.RemoteError
	if errors.As(err, &re) {
		body["reason"] = re.Reason()
		if re.HTTPStatus > 0 {
			body["upstream_status"] = re.HTTPStatus
		}
		if len(re.Body) > 0 {
			body["upstream"] = re.Body
		}
	}
	return c.JSON(statusFor(err), body)
}

func missingFields(c echo.Context, fields ...string) error {
	return c.JSON(http.StatusBadRequest, map[string]any{"error": "missing_fields", "fields": fields})
}

func badRequest(c echo.Context) error {
	return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad_request"})
}

func ok(c echo.Context, result any) error {
	return c.JSON(http.StatusOK, map[string]any{"ok": true, "result": result})
}
