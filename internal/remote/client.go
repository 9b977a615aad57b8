package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jmehdipour/xl-gateway/internal/apperr"
	"github.com/jmehdipour/xl-gateway/internal/metrics"
	"github.com/jmehdipour/xl-gateway/internal/util"
	"go.uber.org/zap"
)

const defaultMaxBodyBytes int64 = 4 << 20

// HTTPDoer is satisfied by *http.Client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Opts struct {
	CIAMBaseURL   string
	APIBaseURL    string
	BasicAuth     string // base64 client credentials for CIAM
	UserAgent     string
	Timeout       time.Duration // default 30s
	FailThreshold int           // default 5
	OpenFor       time.Duration // default 15s
	MaxBodyBytes  int64
	HTTPClient    HTTPDoer
	Logger        *zap.Logger
}

type upstream struct {
	name    string
	baseURL string
	br      *Breaker
}

// Client performs single, non-retried round trips against the carrier's
// identity (CIAM) and API backends.
type Client struct {
	ciam      upstream
	api       upstream
	basicAuth string
	userAgent string
	maxBody   int64
	http      HTTPDoer
	log       *zap.Logger
}

func NewClient(o Opts) *Client {
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.MaxBodyBytes <= 0 {
		o.MaxBodyBytes = defaultMaxBodyBytes
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: o.Timeout}
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}

	return &Client{
		ciam:      upstream{name: "ciam", baseURL: strings.TrimRight(o.CIAMBaseURL, "/"), br: NewBreaker(o.FailThreshold, o.OpenFor)},
		api:       upstream{name: "api", baseURL: strings.TrimRight(o.APIBaseURL, "/"), br: NewBreaker(o.FailThreshold, o.OpenFor)},
		basicAuth: o.BasicAuth,
		userAgent: o.UserAgent,
		maxBody:   o.MaxBodyBytes,
		http:      o.HTTPClient,
		log:       o.Logger,
	}
}

// Envelope is the API backend's response wrapper.
type Envelope struct {
	Status  string          `json:"status"`
	Code    string          `json:"code,omitempty"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`

	Raw json.RawMessage `json:"-"`
}

func (e Envelope) OK() bool { return strings.EqualFold(e.Status, "SUCCESS") }

// Err returns nil for a SUCCESS envelope, otherwise the rejection with the
// upstream body attached verbatim.
func (e Envelope) Err(op string) error {
	if e.OK() {
		return nil
	}
	return &apperr.RemoteError{
		Op:      op,
		Status:  e.Status,
		Code:    e.Code,
		Message: e.Message,
		Body:    e.Raw,
	}
}

// Call POSTs payload as JSON to an API path, authorized by idToken.
func (c *Client) Call(ctx context.Context, op, apiKey, idToken, path string, payload any) (Envelope, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("%s: marshal payload: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.api.baseURL+"/"+strings.TrimLeft(path, "/"), bytes.NewReader(b))
	if err != nil {
		return Envelope{}, fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+idToken)
	req.Header.Set("x-api-key", apiKey)

	body, err := c.do(ctx, &c.api, op, req)
	if err != nil {
		return Envelope{}, err
	}

	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Envelope{}, &apperr.RemoteError{Op: op, HTTPStatus: http.StatusOK, Message: "malformed response", Body: rawJSON(body)}
	}
	env.Raw = rawJSON(body)

	return env, nil
}

// CIAMGet issues a GET against the identity backend and returns the raw body.
func (c *Client) CIAMGet(ctx context.Context, op, path string, query url.Values) ([]byte, error) {
	u := c.ciam.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Authorization", "Basic "+c.basicAuth)

	return c.do(ctx, &c.ciam, op, req)
}

// CIAMForm POSTs a form to the identity backend. apiKey is forwarded when set.
func (c *Client) CIAMForm(ctx context.Context, op, apiKey, path string, form url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.ciam.baseURL+"/"+strings.TrimLeft(path, "/"), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Basic "+c.basicAuth)
	if apiKey != "" {
		req.Header.Set("x-api-key", apiKey)
	}

	return c.do(ctx, &c.ciam, op, req)
}

// do runs exactly one round trip. 2xx bodies are returned as-is; other
// statuses become *apperr.RemoteError.
func (c *Client) do(ctx context.Context, up *upstream, op string, req *http.Request) ([]byte, error) {
	if !up.br.TryAcquire() {
		c.observe(op, "circuit_open")
		return nil, fmt.Errorf("%w: %s: upstream %s circuit open", apperr.ErrTransport, op, up.name)
	}

	req.Header.Set("x-request-id", util.New())
	req.Header.Set("x-request-at", time.Now().UTC().Format("2006-01-02T15:04:05.000Z07:00"))
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	started := time.Now()
	res, err := c.http.Do(req)
	metrics.RemoteCallSeconds.WithLabelValues(op).Observe(time.Since(started).Seconds())
	if err != nil {
		up.br.Record(breakerErr(ctx, err), 0)
		if isTimeout(ctx, err) {
			c.observe(op, "timeout")
			return nil, fmt.Errorf("%w: %s: %v", apperr.ErrRemoteTimeout, op, err)
		}
		c.observe(op, "transport")
		return nil, fmt.Errorf("%w: %s: %v", apperr.ErrTransport, op, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, c.maxBody+1))
	if err != nil {
		up.br.Record(breakerErr(ctx, err), res.StatusCode)
		if isTimeout(ctx, err) {
			c.observe(op, "timeout")
			return nil, fmt.Errorf("%w: %s: read body: %v", apperr.ErrRemoteTimeout, op, err)
		}
		c.observe(op, "transport")
		return nil, fmt.Errorf("%w: %s: read body: %v", apperr.ErrTransport, op, err)
	}
	up.br.Record(nil, res.StatusCode)
	if int64(len(body)) > c.maxBody {
		c.observe(op, "transport")
		return nil, fmt.Errorf("%w: %s: response body exceeds %d bytes", apperr.ErrTransport, op, c.maxBody)
	}

	c.log.Debug("remote call",
		zap.String("op", op),
		zap.String("upstream", up.name),
		zap.Int("status", res.StatusCode),
		zap.Duration("took", time.Since(started)),
	)

	if res.StatusCode/100 == 2 {
		c.observe(op, "ok")
		return body, nil
	}

	c.observe(op, "rejected")

	return nil, rejection(op, res.StatusCode, body)
}

// breakerErr reports a caller's own cancellation as such, whatever error the
// transport wrapped it in.
func breakerErr(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return context.Canceled
	}
	return err
}

func (c *Client) observe(op, outcome string) {
	metrics.RemoteCallsTotal.WithLabelValues(op, outcome).Inc()
}

// rejection extracts the upstream's own wording from the common error shapes
// (API envelope, OAuth error, plain message).
func rejection(op string, status int, body []byte) *apperr.RemoteError {
	e := &apperr.RemoteError{Op: op, HTTPStatus: status, Body: rawJSON(body)}

	var shape struct {
		Status           string `json:"status"`
		Code             any    `json:"code"`
		Message          string `json:"message"`
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	if json.Unmarshal(body, &shape) == nil {
		e.Status = shape.Status
		if shape.Code != nil {
			e.Code = fmt.Sprint(shape.Code)
		}
		switch {
		case shape.Message != "":
			e.Message = shape.Message
		case shape.ErrorDescription != "":
			e.Message = shape.ErrorDescription
		case shape.Error != "":
			e.Message = shape.Error
		}
	}
	if e.Message == "" {
		e.Message = strings.TrimSpace(string(body))
	}
	if e.Message == "" {
		e.Message = http.StatusText(status)
	}

	return e
}

// rawJSON keeps a body verbatim when it is JSON and quotes it otherwise, so
// it can be embedded in a JSON response.
func rawJSON(b []byte) json.RawMessage {
	if len(b) == 0 {
		return nil
	}
	if json.Valid(b) {
		return json.RawMessage(b)
	}
	q, _ := json.Marshal(string(b))
	return q
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
