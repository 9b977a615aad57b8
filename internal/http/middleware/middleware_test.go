package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	echo "github.com/labstack/echo/v4"
)

func echoKey(c echo.Context) error {
	return c.String(http.StatusOK, APIKeyFromCtx(c)+"|"+CallerFromCtx(c))
}

func TestAPIKeyFromHeader(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
	req.Header.Set("X-Api-Key", "key-1")
	rec := httptest.NewRecorder()

	if err := APIKeyMiddleware()(echoKey)(e.NewContext(req, rec)); err != nil {
		t.Fatalf("middleware: %v", err)
	}
	if rec.Body.String() != "key-1|"+Fingerprint("key-1") {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}
}

func TestAPIKeyFromBodyRestoresBody(t *testing.T) {
	e := echo.New()
	body := `{"api_key":"key-2","contact":"081234567890"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()

	var seen string
	h := func(c echo.Context) error {
		var in struct {
			Contact string `json:"contact"`
		}
		if err := c.Bind(&in); err != nil {
			return err
		}
		seen = APIKeyFromCtx(c) + "|" + in.Contact
		return c.NoContent(http.StatusOK)
	}
	if err := APIKeyMiddleware()(h)(e.NewContext(req, rec)); err != nil {
		t.Fatalf("middleware: %v", err)
	}
	if seen != "key-2|081234567890" {
		t.Fatalf("body not restored: %q", seen)
	}
}

func TestAPIKeyMissing(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"contact":"x"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()

	called := false
	h := func(c echo.Context) error {
		called = true
		return nil
	}
	if err := APIKeyMiddleware()(h)(e.NewContext(req, rec)); err != nil {
		t.Fatalf("middleware: %v", err)
	}
	if called || rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "missing_api_key") {
		t.Fatalf("expected 400 missing_api_key, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestFingerprintDoesNotLeakKey(t *testing.T) {
	fp := Fingerprint("secret-key")
	if len(fp) != 64 || strings.Contains(fp, "secret") || fp == Fingerprint("other-key") {
		t.Fatalf("unexpected fingerprint %q", fp)
	}
}

type memCounter struct {
	n    map[string]int64
	keys []string
}

func (m *memCounter) Incr(_ context.Context, key string, _ time.Duration) (int64, error) {
	if m.n == nil {
		m.n = map[string]int64{}
	}
	m.n[key]++
	m.keys = append(m.keys, key)
	return m.n[key], nil
}

func TestRateLimitPerCaller(t *testing.T) {
	e := echo.New()
	counter := &memCounter{}
	now := time.Unix(1700000000, 0)
	mw := RateLimitMiddleware(RateLimitConfig{
		Counter:        counter,
		Limit:          2,
		Window:         time.Minute,
		RetryAfterHint: true,
		Now:            func() time.Time { return now },
	})
	h := APIKeyMiddleware()(mw(func(c echo.Context) error { return c.NoContent(http.StatusOK) }))

	do := func(key string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set("X-Api-Key", key)
		rec := httptest.NewRecorder()
		if err := h(e.NewContext(req, rec)); err != nil {
			t.Fatalf("handler: %v", err)
		}
		return rec
	}

	for i := 0; i < 2; i++ {
		if rec := do("key-a"); rec.Code != http.StatusOK {
			t.Fatalf("request %d limited early", i)
		}
	}
	rec := do("key-a")
	if rec.Code != http.StatusTooManyRequests || rec.Header().Get("Retry-After") == "" {
		t.Fatalf("expected 429 with Retry-After, got %d", rec.Code)
	}
	if rec := do("key-b"); rec.Code != http.StatusOK {
		t.Fatalf("other caller must not share the window")
	}

	for _, k := range counter.keys {
		if strings.Contains(k, "key-a") || strings.Contains(k, "key-b") {
			t.Fatalf("raw api key in limiter key %q", k)
		}
	}
}
