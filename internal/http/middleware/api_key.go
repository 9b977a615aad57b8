package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	echo "github.com/labstack/echo/v4"
)

const (
	ctxAPIKey = "api_key"
	ctxCaller = "caller"
)

// maxInspectBytes bounds how much of a body is read to look for api_key.
const maxInspectBytes = 1 << 20

// APIKeyFromCtx returns the caller's API key set by APIKeyMiddleware.
func APIKeyFromCtx(c echo.Context) string {
	v, _ := c.Get(ctxAPIKey).(string)
	return v
}

// CallerFromCtx returns the API key fingerprint set by APIKeyMiddleware.
func CallerFromCtx(c echo.Context) string {
	v, _ := c.Get(ctxCaller).(string)
	return v
}

// Fingerprint identifies a caller without keeping its key.
func Fingerprint(apiKey string) string {
	sum := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(sum[:])
}

// APIKeyMiddleware takes the API key from the X-Api-Key header, or from an
// inline "api_key" field of a JSON body. The body is restored for the
// handler. The key itself is forwarded upstream, never validated here.
func APIKeyMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := strings.TrimSpace(c.Request().Header.Get("X-Api-Key"))
			if key == "" {
				key = keyFromBody(c.Request())
			}
			if key == "" {
				return c.JSON(http.StatusBadRequest, map[string]string{
					"error": "missing_api_key",
					"hint":  "set the X-Api-Key header or api_key in the body",
				})
			}
			c.Set(ctxAPIKey, key)
			c.Set(ctxCaller, Fingerprint(key))
			return next(c)
		}
	}
}

func keyFromBody(r *http.Request) string {
	if r.Body == nil || !strings.HasPrefix(r.Header.Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
		return ""
	}
	b, err := io.ReadAll(io.LimitReader(r.Body, maxInspectBytes))
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(b))
	if err != nil {
		return ""
	}

	var body struct {
		APIKey string `json:"api_key"`
	}
	if json.Unmarshal(b, &body) != nil {
		return ""
	}
	return strings.TrimSpace(body.APIKey)
}
