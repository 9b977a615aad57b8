package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jmehdipour/xl-gateway/internal/apperr"
	"github.com/jmehdipour/xl-gateway/internal/metrics"
	"github.com/jmehdipour/xl-gateway/internal/model"
	"github.com/jmehdipour/xl-gateway/internal/remote"
)

// API is the part of the remote client the catalog needs.
type API interface {
	Call(ctx context.Context, op, apiKey, idToken, path string, payload any) (remote.Envelope, error)
}

// Reader is a stateless pass-through over the carrier's catalog endpoints.
// One round trip per call, no caching, no retries.
type Reader struct {
	api   API
	paths remote.Paths
}

func NewReader(api API, paths remote.Paths) *Reader {
	return &Reader{api: api, paths: paths.WithDefaults()}
}

func (r *Reader) GetProfile(ctx context.Context, apiKey string, tokens model.Tokens) (json.RawMessage, error) {
	if err := requireAuth(apiKey, tokens, true); err != nil {
		return nil, err
	}
	payload := map[string]any{
		"access_token":  tokens.AccessToken,
		"app_version":   "8.6.0",
		"is_enterprise": false,
		"lang":          "en",
	}
	return r.data(ctx, "profile", apiKey, tokens.IDToken, r.paths.Profile, payload)
}

func (r *Reader) GetBalance(ctx context.Context, apiKey string, tokens model.Tokens) (model.Balance, error) {
	if err := requireAuth(apiKey, tokens, false); err != nil {
		return model.Balance{}, err
	}
	payload := map[string]any{"is_enterprise": false, "lang": "en"}

	data, err := r.data(ctx, "balance", apiKey, tokens.IDToken, r.paths.Balance, payload)
	if err != nil {
		return model.Balance{}, err
	}

	var res struct {
		Balance model.Balance `json:"balance"`
	}
	if err := json.Unmarshal(data, &res); err != nil {
		return model.Balance{}, &apperr.RemoteError{Op: "balance", Message: "malformed balance", Body: data}
	}
	return res.Balance, nil
}

func (r *Reader) GetFamily(ctx context.Context, apiKey string, tokens model.Tokens, familyCode string) (json.RawMessage, error) {
	if err := requireAuth(apiKey, tokens, false); err != nil {
		return nil, err
	}
	if err := requireKey("family_code", familyCode); err != nil {
		return nil, err
	}
	payload := map[string]any{
		"is_show_tagging_tab":    true,
		"is_dedicated_event":     true,
		"is_transaction_routine": false,
		"migration_type":         "NONE",
		"package_family_code":    familyCode,
		"is_autobuy":             false,
		"is_enterprise":          false,
		"is_pdlp":                true,
		"referral_code":          "",
		"is_migration":           false,
		"lang":                   "en",
	}
	return r.data(ctx, "family", apiKey, tokens.IDToken, r.paths.Family, payload)
}

func (r *Reader) GetFamilies(ctx context.Context, apiKey string, tokens model.Tokens, categoryCode string) (json.RawMessage, error) {
	if err := requireAuth(apiKey, tokens, false); err != nil {
		return nil, err
	}
	if err := requireKey("package_category_code", categoryCode); err != nil {
		return nil, err
	}
	payload := map[string]any{
		"migration_type":        "",
		"is_enterprise":         false,
		"is_shareable":          false,
		"package_category_code": categoryCode,
		"with_icon_url":         true,
		"is_migration":          false,
		"lang":                  "en",
	}
	return r.data(ctx, "families", apiKey, tokens.IDToken, r.paths.Families, payload)
}

// GetPackage fetches one package option, including the token_confirmation a
// purchase has to present.
func (r *Reader) GetPackage(ctx context.Context, apiKey string, tokens model.Tokens, optionCode string) (model.PackageDetail, error) {
	if err := requireAuth(apiKey, tokens, false); err != nil {
		return model.PackageDetail{}, err
	}
	if err := requireKey("package_option_code", optionCode); err != nil {
		return model.PackageDetail{}, err
	}
	payload := map[string]any{
		"is_transaction_routine": false,
		"migration_type":         "",
		"package_family_code":    "",
		"family_role_hub":        "",
		"is_autobuy":             false,
		"is_enterprise":          false,
		"is_shareable":           false,
		"is_migration":           false,
		"lang":                   "en",
		"package_option_code":    optionCode,
		"is_upsell_pdp":          false,
		"package_variant_code":   "",
	}

	data, err := r.data(ctx, "package", apiKey, tokens.IDToken, r.paths.Package, payload)
	if err != nil {
		return model.PackageDetail{}, err
	}

	var res struct {
		PackageOption struct {
			Code  string `json:"package_option_code"`
			Name  string `json:"name"`
			Price int64  `json:"price"`
		} `json:"package_option"`
		PackageFamily struct {
			Code string `json:"package_family_code"`
		} `json:"package_family"`
		TokenConfirmation string `json:"token_confirmation"`
	}
	if err := json.Unmarshal(data, &res); err != nil {
		return model.PackageDetail{}, &apperr.RemoteError{Op: "package", Message: "malformed package detail", Body: data}
	}

	code := res.PackageOption.Code
	if code == "" {
		code = optionCode
	}
	return model.PackageDetail{
		OptionCode:        code,
		FamilyCode:        res.PackageFamily.Code,
		Name:              res.PackageOption.Name,
		Price:             res.PackageOption.Price,
		TokenConfirmation: res.TokenConfirmation,
		Raw:               data,
	}, nil
}

func (r *Reader) GetAddons(ctx context.Context, apiKey string, tokens model.Tokens, optionCode string) (json.RawMessage, error) {
	if err := requireAuth(apiKey, tokens, false); err != nil {
		return nil, err
	}
	if err := requireKey("package_option_code", optionCode); err != nil {
		return nil, err
	}
	payload := map[string]any{
		"is_enterprise":       false,
		"lang":                "en",
		"package_option_code": optionCode,
	}
	return r.data(ctx, "addons", apiKey, tokens.IDToken, r.paths.Addons, payload)
}

// GetQuotaDetails lists the subscriber's active quotas.
func (r *Reader) GetQuotaDetails(ctx context.Context, apiKey string, tokens model.Tokens) ([]model.Quota, error) {
	if err := requireAuth(apiKey, tokens, false); err != nil {
		return nil, err
	}
	payload := map[string]any{
		"is_enterprise":    false,
		"lang":             "en",
		"family_member_id": "",
	}

	data, err := r.data(ctx, "quota_details", apiKey, tokens.IDToken, r.paths.QuotaDetails, payload)
	if err != nil {
		return nil, err
	}

	var res struct {
		Quotas []model.Quota `json:"quotas"`
	}
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, &apperr.RemoteError{Op: "quota_details", Message: "malformed quota listing", Body: data}
	}
	return res.Quotas, nil
}

// data runs one call and unwraps a SUCCESS envelope; anything else is a
// *apperr.RemoteError carrying the upstream body.
func (r *Reader) data(ctx context.Context, op, apiKey, idToken, path string, payload any) (json.RawMessage, error) {
	env, err := r.api.Call(ctx, op, apiKey, idToken, path, payload)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := env.Err(op); err != nil {
		return nil, err
	}
	return env.Data, nil
}

func requireAuth(apiKey string, tokens model.Tokens, needAccess bool) error {
	switch {
	case strings.TrimSpace(apiKey) == "":
		return reject(apperr.Missing(apperr.ErrMissingCredential, "api_key"))
	case !tokens.HasIdentity():
		return reject(apperr.Missing(apperr.ErrMissingCredential, "id_token"))
	case needAccess && !tokens.HasAccess():
		return reject(apperr.Missing(apperr.ErrMissingCredential, "access_token"))
	}
	return nil
}

func requireKey(field, v string) error {
	if strings.TrimSpace(v) == "" {
		return reject(apperr.Missing(apperr.ErrMissingField, field))
	}
	return nil
}

func reject(err error) error {
	metrics.LocalRejectsTotal.WithLabelValues(apperr.Kind(err)).Inc()
	return err
}
