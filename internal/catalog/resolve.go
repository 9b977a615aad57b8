package catalog

import (
	"context"

	"github.com/jmehdipour/xl-gateway/internal/model"
)

// ResolveMyPackages lists the subscriber's active packages with their family
// codes. The quota listing does not carry family codes, so each distinct
// quota code costs one extra package lookup: 1 + N round trips for N
// distinct quotas. Lookups are memoized for the duration of this call only;
// credentials may expire between calls.
//
// A failed lookup leaves FamilyCode empty and records the reason on the
// entry instead of failing the whole batch.
func (r *Reader) ResolveMyPackages(ctx context.Context, apiKey string, tokens model.Tokens) ([]model.PackageReference, error) {
	quotas, err := r.GetQuotaDetails(ctx, apiKey, tokens)
	if err != nil {
		return nil, err
	}

	type lookup struct {
		family string
		err    error
	}
	seen := make(map[string]lookup, len(quotas))

	out := make([]model.PackageReference, 0, len(quotas))
	for _, q := range quotas {
		ref := model.PackageReference{
			Name:      q.Name,
			QuotaCode: q.QuotaCode,
			GroupCode: q.GroupCode,
		}

		if q.QuotaCode != "" {
			l, ok := seen[q.QuotaCode]
			if !ok {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
				pkg, err := r.GetPackage(ctx, apiKey, tokens, q.QuotaCode)
				l = lookup{family: pkg.FamilyCode, err: err}
				seen[q.QuotaCode] = l
			}
			ref.FamilyCode = l.family
			if l.err != nil {
				ref.ResolveError = l.err.Error()
			}
		}

		out = append(out, ref)
	}

	return out, nil
}
