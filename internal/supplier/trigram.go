package supplier

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// TrigramThreshold is the default similarity cutoff θ (spec.md §4.4).
const TrigramThreshold = 0.30

// TrigramLimit is the default K candidates returned.
const TrigramLimit = 10

type trigramRow struct {
	SupplierID string  `gorm:"column:id"`
	Name       string  `gorm:"column:name"`
	Email      string  `gorm:"column:contact_email"`
	Website    string  `gorm:"column:website"`
	Phone      string  `gorm:"column:contact_phone"`
	Address    string  `gorm:"column:address"`
	Sim        float64 `gorm:"column:sim"`
}

// MatchTrigram runs the single indexed pg_trgm query
// `similarity(nameNormalized, ?) >= θ` against active suppliers for the
// merchant, ordered by score and capped at TrigramLimit, then applies
// the same weighting as the in-process engine to the non-name fields.
// Returns an error (extension unavailable, query failure) so the
// resolver can fall back to jsmetric per spec.md §4.4.
func MatchTrigram(ctx context.Context, db *gorm.DB, merchantID string, stub Stub) ([]Candidate, error) {
	var rows []trigramRow
	nameNorm := Normalize(stub.Name)

	err := db.WithContext(ctx).Raw(`
		SELECT id, name, contact_email, website, contact_phone, address,
		       similarity(name_normalized, ?) AS sim
		FROM supplier
		WHERE merchant_id = ? AND status = 'active'
		  AND similarity(name_normalized, ?) >= ?
		ORDER BY sim DESC
		LIMIT ?`,
		nameNorm, merchantID, nameNorm, TrigramThreshold, TrigramLimit,
	).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("trigram similarity query: %w", err)
	}

	stubDomain := emailOrWebsiteDomain(stub.Email, stub.Website)
	stubWebsiteDomain := domainOf(stub.Website)
	stubPhone := lastTenDigits(stub.Phone)
	stubAddrNorm := normalizeAddress(stub.Address)

	out := make([]Candidate, 0, len(rows))
	for _, r := range rows {
		emailSim := -1.0
		if stubDomain != "" {
			if candDomain := emailOrWebsiteDomain(r.Email, ""); candDomain != "" {
				emailSim = exactMatchScore(stubDomain, candDomain)
			}
		}
		websiteSim := -1.0
		if stubWebsiteDomain != "" {
			if candWebsiteDomain := domainOf(r.Website); candWebsiteDomain != "" {
				websiteSim = exactMatchScore(stubWebsiteDomain, candWebsiteDomain)
			}
		}
		phoneSim := -1.0
		if stubPhone != "" {
			if candPhone := lastTenDigits(r.Phone); candPhone != "" {
				phoneSim = exactMatchScore(stubPhone, candPhone)
			}
		}
		addressSim := -1.0
		if stubAddrNorm != "" && r.Address != "" {
			addressSim = levenshteinSimilarity(stubAddrNorm, normalizeAddress(r.Address))
		}

		nameSim := -1.0
		if stub.Name != "" {
			nameSim = r.Sim
		}

		score := weightedScore(nameSim, emailSim, websiteSim, phoneSim, addressSim)
		out = append(out, Candidate{SupplierID: r.SupplierID, Name: r.Name, Score: score})
	}
	return out, nil
}
