package http

import (
	"strings"

	"github.com/jmehdipour/xl-gateway/internal/http/middleware"
	"github.com/jmehdipour/xl-gateway/internal/model"
	echo "github.com/labstack/echo/v4"
)

type catalogReq struct {
	Tokens              model.Tokens `json:"tokens"`
	FamilyCode          string       `json:"family_code"`
	PackageCategoryCode string       `json:"package_category_code"`
	PackageOptionCode   string       `json:"package_option_code"`
	TokenConfirmation   string       `json:"token_confirmation"`
}

func hasTokens(t model.Tokens) bool { return t.HasAccess() || t.HasIdentity() }

// bindCatalog binds the request and reports the missing fields among
// tokens and the named operation keys.
func bindCatalog(c echo.Context, keys ...string) (catalogReq, []string, error) {
	var req catalogReq
	if err := c.Bind(&req); err != nil {
		return req, nil, err
	}

	var missing []string
	if !hasTokens(req.Tokens) {
		missing = append(missing, "tokens")
	}
	for _, k := range keys {
		var v string
		switch k {
		case "family_code":
			v = req.FamilyCode
		case "package_category_code":
			v = req.PackageCategoryCode
		case "package_option_code":
			v = req.PackageOptionCode
		}
		if strings.TrimSpace(v) == "" {
			missing = append(missing, k)
		}
	}
	return req, missing, nil
}

// catalogHandler runs one read with the bound request.
func catalogHandler(keys []string, read func(c echo.Context, apiKey string, req catalogReq) (any, error)) echo.HandlerFunc {
	return func(c echo.Context) error {
		req, missing, err := bindCatalog(c, keys...)
		if err != nil {
			return badRequest(c)
		}
		if len(missing) > 0 {
			return missingFields(c, missing...)
		}

		res, err := read(c, middleware.APIKeyFromCtx(c), req)
		if err != nil {
			return writeError(c, err)
		}
		return ok(c, res)
	}
}

func (s *Server) profile(c echo.Context) error {
	return catalogHandler(nil, func(c echo.Context, key string, r catalogReq) (any, error) {
		return s.d.Catalog.GetProfile(c.Request().Context(), key, r.Tokens)
	})(c)
}

func (s *Server) balance(c echo.Context) error {
	return catalogHandler(nil, func(c echo.Context, key string, r catalogReq) (any, error) {
		return s.d.Catalog.GetBalance(c.Request().Context(), key, r.Tokens)
	})(c)
}

func (s *Server) family(c echo.Context) error {
	return catalogHandler([]string{"family_code"}, func(c echo.Context, key string, r catalogReq) (any, error) {
		return s.d.Catalog.GetFamily(c.Request().Context(), key, r.Tokens, r.FamilyCode)
	})(c)
}

func (s *Server) families(c echo.Context) error {
	return catalogHandler([]string{"package_category_code"}, func(c echo.Context, key string, r catalogReq) (any, error) {
		return s.d.Catalog.GetFamilies(c.Request().Context(), key, r.Tokens, r.PackageCategoryCode)
	})(c)
}

func (s *Server) packageDetails(c echo.Context) error {
	return catalogHandler([]string{"package_option_code"}, func(c echo.Context, key string, r catalogReq) (any, error) {
		return s.d.Catalog.GetPackage(c.Request().Context(), key, r.Tokens, r.PackageOptionCode)
	})(c)
}

func (s *Server) packageAddons(c echo.Context) error {
	return catalogHandler([]string{"package_option_code"}, func(c echo.Context, key string, r catalogReq) (any, error) {
		return s.d.Catalog.GetAddons(c.Request().Context(), key, r.Tokens, r.PackageOptionCode)
	})(c)
}

func (s *Server) myPackages(c echo.Context) error {
	return catalogHandler(nil, func(c echo.Context, key string, r catalogReq) (any, error) {
		refs, err := s.d.Catalog.ResolveMyPackages(c.Request().Context(), key, r.Tokens)
		if err != nil {
			return nil, err
		}
		return map[string]any{"packages": refs}, nil
	})(c)
}

func (s *Server) paymentMethods(c echo.Context) error {
	return catalogHandler([]string{"package_option_code"}, func(c echo.Context, key string, r catalogReq) (any, error) {
		return s.d.Purchases.ListPaymentMethods(c.Request().Context(), key, r.Tokens, r.PackageOptionCode, r.TokenConfirmation)
	})(c)
}
