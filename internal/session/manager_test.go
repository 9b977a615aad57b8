package session

import (
	"context"
	"errors"
	"net/url"
	"testing"

	"github.com/jmehdipour/xl-gateway/internal/apperr"
	"github.com/jmehdipour/xl-gateway/internal/remote"
)

type fakeIdentity struct {
	calls   int
	lastOp  string
	lastQ   url.Values
	lastKey string
	body    string
	err     error
}

func (f *fakeIdentity) CIAMGet(_ context.Context, op, _ string, q url.Values) ([]byte, error) {
	f.calls++
	f.lastOp, f.lastQ = op, q
	return []byte(f.body), f.err
}

func (f *fakeIdentity) CIAMForm(_ context.Context, op, apiKey, _ string, form url.Values) ([]byte, error) {
	f.calls++
	f.lastOp, f.lastQ, f.lastKey = op, form, apiKey
	return []byte(f.body), f.err
}

func TestRequestOTPRejectsInvalidContactWithoutRemoteCall(t *testing.T) {
	fake := &fakeIdentity{body: `{"subscriber_id":"sub-1"}`}
	m := NewManager(fake, remote.Paths{}, nil)

	for _, c := range []string{"", "12345", "+1 555 0100", "08abc"} {
		_, err := m.RequestOTP(context.Background(), c)
		if !errors.Is(err, apperr.ErrInvalidContact) {
			t.Fatalf("contact %q: expected ErrInvalidContact, got %v", c, err)
		}
	}
	if fake.calls != 0 {
		t.Fatalf("expected zero remote calls, got %d", fake.calls)
	}
}

func TestRequestOTPNormalizesContact(t *testing.T) {
	fake := &fakeIdentity{body: `{"subscriber_id":"sub-1"}`}
	m := NewManager(fake, remote.Paths{}, nil)

	ch, err := m.RequestOTP(context.Background(), "081234567890")
	if err != nil {
		t.Fatalf("request otp: %v", err)
	}
	if ch.SubscriberID != "sub-1" || ch.Contact != "6281234567890" {
		t.Fatalf("unexpected challenge %+v", ch)
	}
	if fake.lastQ.Get("contact") != "6281234567890" || fake.lastQ.Get("contactType") != "SMS" {
		t.Fatalf("unexpected query %v", fake.lastQ)
	}
}

func TestRequestOTPWithoutSubscriberIsRemoteError(t *testing.T) {
	fake := &fakeIdentity{body: `{"error":"Too many requests"}`}
	m := NewManager(fake, remote.Paths{}, nil)

	_, err := m.RequestOTP(context.Background(), "081234567890")
	var re *apperr.RemoteError
	if !errors.As(err, &re) || re.Message != "Too many requests" {
		t.Fatalf("expected RemoteError with upstream reason, got %v", err)
	}
}

func TestSubmitOTPRequiresAPIKey(t *testing.T) {
	fake := &fakeIdentity{}
	m := NewManager(fake, remote.Paths{}, nil)

	_, err := m.SubmitOTP(context.Background(), " ", "081234567890", "123456")
	if !errors.Is(err, apperr.ErrMissingCredential) {
		t.Fatalf("expected ErrMissingCredential, got %v", err)
	}
	if fake.calls != 0 {
		t.Fatalf("expected zero remote calls, got %d", fake.calls)
	}
}

func TestSubmitOTPReturnsBundle(t *testing.T) {
	fake := &fakeIdentity{body: `{"access_token":"acc","id_token":"idt","refresh_token":"ref","expires_in":300}`}
	m := NewManager(fake, remote.Paths{}, nil)

	tok, err := m.SubmitOTP(context.Background(), "key-1", "081234567890", "123456")
	if err != nil {
		t.Fatalf("submit otp: %v", err)
	}
	if tok.AccessToken != "acc" || tok.IDToken != "idt" || tok.RefreshToken != "ref" {
		t.Fatalf("unexpected tokens %+v", tok)
	}
	if fake.lastKey != "key-1" || fake.lastQ.Get("grant_type") != "password" || fake.lastQ.Get("code") != "123456" {
		t.Fatalf("unexpected form %v key=%s", fake.lastQ, fake.lastKey)
	}
}

func TestSubmitOTPRejectedCode(t *testing.T) {
	fake := &fakeIdentity{body: `{"error":"invalid_grant","error_description":"OTP expired"}`}
	m := NewManager(fake, remote.Paths{}, nil)

	_, err := m.SubmitOTP(context.Background(), "key-1", "081234567890", "000000")
	var re *apperr.RemoteError
	if !errors.As(err, &re) {
		t.Fatalf("expected RemoteError, got %v", err)
	}
	if re.Code != "invalid_grant" || re.Message != "OTP expired" {
		t.Fatalf("unexpected remote error %+v", re)
	}
}

func TestRefreshToken(t *testing.T) {
	fake := &fakeIdentity{}
	m := NewManager(fake, remote.Paths{}, nil)

	if _, err := m.RefreshToken(context.Background(), ""); !errors.Is(err, apperr.ErrMissingCredential) {
		t.Fatalf("expected ErrMissingCredential, got %v", err)
	}
	if fake.calls != 0 {
		t.Fatalf("expected zero remote calls")
	}

	fake.body = `{"access_token":"acc2","id_token":"idt2","refresh_token":"ref2"}`
	tok, err := m.RefreshToken(context.Background(), "ref1")
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if tok.IDToken != "idt2" || fake.lastQ.Get("refresh_token") != "ref1" || fake.lastQ.Get("grant_type") != "refresh_token" {
		t.Fatalf("unexpected refresh result %+v form=%v", tok, fake.lastQ)
	}
}

func TestRefreshTokenTransportErrorPassesThrough(t *testing.T) {
	fake := &fakeIdentity{err: apperr.ErrRemoteTimeout}
	m := NewManager(fake, remote.Paths{}, nil)

	_, err := m.RefreshToken(context.Background(), "ref1")
	if !errors.Is(err, apperr.ErrRemoteTimeout) || !apperr.Retryable(err) {
		t.Fatalf("expected retryable timeout, got %v", err)
	}
}

func TestExtendSession(t *testing.T) {
	fake := &fakeIdentity{body: `{"data":{"exchange_code":"ex-1"}}`}
	m := NewManager(fake, remote.Paths{}, nil)

	ext, err := m.ExtendSession(context.Background(), "sub-1")
	if err != nil {
		t.Fatalf("extend: %v", err)
	}
	if ext.ExchangeCode != "ex-1" || fake.lastQ.Get("contact") != "c3ViLTE=" {
		t.Fatalf("unexpected extension %+v query=%v", ext, fake.lastQ)
	}
}
