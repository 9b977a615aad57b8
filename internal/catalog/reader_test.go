package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/jmehdipour/xl-gateway/internal/apperr"
	"github.com/jmehdipour/xl-gateway/internal/model"
	"github.com/jmehdipour/xl-gateway/internal/remote"
)

type fakeAPI struct {
	calls    map[string]int
	payloads map[string][]any
	respond  func(op string, payload map[string]any) (string, error)
}

func newFakeAPI(respond func(op string, payload map[string]any) (string, error)) *fakeAPI {
	return &fakeAPI{calls: map[string]int{}, payloads: map[string][]any{}, respond: respond}
}

func (f *fakeAPI) total() int {
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *fakeAPI) Call(_ context.Context, op, _, _, _ string, payload any) (remote.Envelope, error) {
	f.calls[op]++
	f.payloads[op] = append(f.payloads[op], payload)

	p, _ := payload.(map[string]any)
	body, err := f.respond(op, p)
	if err != nil {
		return remote.Envelope{}, err
	}
	var env remote.Envelope
	if err := json.Unmarshal([]byte(body), &env); err != nil {
		panic(err)
	}
	env.Raw = json.RawMessage(body)
	return env, nil
}

var tokens = model.Tokens{AccessToken: "acc", IDToken: "idt"}

func TestBalanceAndProfileRequireIdentityToken(t *testing.T) {
	api := newFakeAPI(func(string, map[string]any) (string, error) { return `{"status":"SUCCESS","data":{}}`, nil })
	r := NewReader(api, remote.Paths{})
	noID := model.Tokens{AccessToken: "acc"}

	if _, err := r.GetBalance(context.Background(), "key", noID); !errors.Is(err, apperr.ErrMissingCredential) {
		t.Fatalf("balance: expected ErrMissingCredential, got %v", err)
	}
	if _, err := r.GetProfile(context.Background(), "key", noID); !errors.Is(err, apperr.ErrMissingCredential) {
		t.Fatalf("profile: expected ErrMissingCredential, got %v", err)
	}
	if _, err := r.GetProfile(context.Background(), "key", model.Tokens{IDToken: "idt"}); !errors.Is(err, apperr.ErrMissingCredential) {
		t.Fatalf("profile without access token: expected ErrMissingCredential, got %v", err)
	}
	if _, err := r.GetBalance(context.Background(), "", tokens); !errors.Is(err, apperr.ErrMissingCredential) {
		t.Fatalf("balance without api key: expected ErrMissingCredential, got %v", err)
	}
	if api.total() != 0 {
		t.Fatalf("expected zero remote calls, got %d", api.total())
	}
}

func TestGetBalance(t *testing.T) {
	api := newFakeAPI(func(string, map[string]any) (string, error) {
		return `{"status":"SUCCESS","data":{"balance":{"remaining":25000,"expired_at":1767225600}}}`, nil
	})
	r := NewReader(api, remote.Paths{})

	bal, err := r.GetBalance(context.Background(), "key", tokens)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if bal.Remaining != 25000 || bal.ExpiredAt != 1767225600 {
		t.Fatalf("unexpected balance %+v", bal)
	}
}

func TestCatalogKeyRequired(t *testing.T) {
	api := newFakeAPI(func(string, map[string]any) (string, error) { return `{"status":"SUCCESS"}`, nil })
	r := NewReader(api, remote.Paths{})

	if _, err := r.GetFamily(context.Background(), "key", tokens, ""); !errors.Is(err, apperr.ErrMissingField) {
		t.Fatalf("expected ErrMissingField, got %v", err)
	}
	if _, err := r.GetAddons(context.Background(), "key", tokens, " "); !errors.Is(err, apperr.ErrMissingField) {
		t.Fatalf("expected ErrMissingField, got %v", err)
	}
	if api.total() != 0 {
		t.Fatalf("expected zero remote calls")
	}
}

func TestRemoteRejectionIsVerbatim(t *testing.T) {
	body := `{"status":"FAILED","code":"401","message":"Token expired"}`
	api := newFakeAPI(func(string, map[string]any) (string, error) { return body, nil })
	r := NewReader(api, remote.Paths{})

	_, err := r.GetFamilies(context.Background(), "key", tokens, "CAT1")
	var re *apperr.RemoteError
	if !errors.As(err, &re) {
		t.Fatalf("expected RemoteError, got %v", err)
	}
	if string(re.Body) != body || re.Message != "Token expired" {
		t.Fatalf("upstream body not kept verbatim: %+v", re)
	}
}

func TestGetPackageExtractsFamilyAndConfirmation(t *testing.T) {
	api := newFakeAPI(func(_ string, p map[string]any) (string, error) {
		if p["package_option_code"] != "PKG1" {
			t.Errorf("unexpected payload %v", p)
		}
		return `{"status":"SUCCESS","data":{"package_option":{"package_option_code":"PKG1","name":"Data 1GB","price":15000},"package_family":{"package_family_code":"FAM1"},"token_confirmation":"conf-abc"}}`, nil
	})
	r := NewReader(api, remote.Paths{})

	pkg, err := r.GetPackage(context.Background(), "key", tokens, "PKG1")
	if err != nil {
		t.Fatalf("package: %v", err)
	}
	if pkg.FamilyCode != "FAM1" || pkg.Price != 15000 || pkg.TokenConfirmation != "conf-abc" || pkg.Name != "Data 1GB" {
		t.Fatalf("unexpected package %+v", pkg)
	}
	if !strings.Contains(string(pkg.Raw), "package_family") {
		t.Fatalf("raw document not kept")
	}
}

func TestResolveMyPackagesCollapsesDuplicateQuotaCodes(t *testing.T) {
	api := newFakeAPI(func(op string, p map[string]any) (string, error) {
		switch op {
		case "quota_details":
			return `{"status":"SUCCESS","data":{"quotas":[
				{"quota_code":"Q1","group_code":"G1","name":"Main"},
				{"quota_code":"Q2","group_code":"G2","name":"Night"},
				{"quota_code":"Q1","group_code":"G1","name":"Main bonus"},
				{"quota_code":"Q3","group_code":"G3","name":"Broken"}
			]}}`, nil
		case "package":
			switch p["package_option_code"] {
			case "Q1":
				return `{"status":"SUCCESS","data":{"package_family":{"package_family_code":"F1"}}}`, nil
			case "Q2":
				return `{"status":"SUCCESS","data":{"package_family":{"package_family_code":"F2"}}}`, nil
			default:
				return `{"status":"FAILED","message":"not found"}`, nil
			}
		}
		return "", errors.New("unexpected op " + op)
	})
	r := NewReader(api, remote.Paths{})

	refs, err := r.ResolveMyPackages(context.Background(), "key", tokens)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(refs) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(refs))
	}
	if api.calls["package"] != 3 {
		t.Fatalf("expected 3 package lookups for 3 distinct quota codes, got %d", api.calls["package"])
	}
	if refs[0].FamilyCode != "F1" || refs[2].FamilyCode != "F1" || refs[1].FamilyCode != "F2" {
		t.Fatalf("unexpected family codes %+v", refs)
	}
	if refs[3].FamilyCode != "" || refs[3].ResolveError == "" {
		t.Fatalf("expected failed lookup to be recorded, got %+v", refs[3])
	}
}

func TestResolveMyPackagesFailsWhenListingFails(t *testing.T) {
	api := newFakeAPI(func(string, map[string]any) (string, error) { return "", apperr.ErrRemoteTimeout })
	r := NewReader(api, remote.Paths{})

	if _, err := r.ResolveMyPackages(context.Background(), "key", tokens); !errors.Is(err, apperr.ErrRemoteTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
}
