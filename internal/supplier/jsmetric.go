package supplier

import (
	"sort"
	"strings"
)

// JSMetricCandidate is the minimal supplier projection the in-process
// engine scores against; callers fetch this via the supplier repo's
// ActiveByMerchant query (all active suppliers for the merchant, per
// spec.md §4.4 — this engine has no index to push the filter into).
type JSMetricCandidate struct {
	SupplierID string
	Name       string
	Email      string
	Website    string
	Phone      string
	Address    string
}

// MatchJSMetric is the in-process fuzzy-match engine: classic
// edit-distance similarity on normalized names and addresses, combined
// with exact domain/phone checks. O(n·m²) over the candidate set — only
// acceptable up to roughly 500 active suppliers per spec.md §4.4.
func MatchJSMetric(stub Stub, candidates []JSMetricCandidate) []Candidate {
	stubNameNorm := Normalize(stub.Name)
	stubDomain := emailOrWebsiteDomain(stub.Email, stub.Website)
	stubWebsiteDomain := domainOf(stub.Website)
	stubPhone := lastTenDigits(stub.Phone)
	stubAddrNorm := normalizeAddress(stub.Address)

	out := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		nameSim := -1.0
		if stub.Name != "" && c.Name != "" {
			nameSim = levenshteinSimilarity(stubNameNorm, Normalize(c.Name))
		}

		emailSim := -1.0
		if stubDomain != "" {
			candDomain := emailOrWebsiteDomain(c.Email, "")
			if candDomain != "" {
				emailSim = exactMatchScore(stubDomain, candDomain)
			}
		}

		websiteSim := -1.0
		if stubWebsiteDomain != "" {
			candWebsiteDomain := domainOf(c.Website)
			if candWebsiteDomain != "" {
				websiteSim = exactMatchScore(stubWebsiteDomain, candWebsiteDomain)
			}
		}

		phoneSim := -1.0
		if stubPhone != "" {
			candPhone := lastTenDigits(c.Phone)
			if candPhone != "" {
				phoneSim = exactMatchScore(stubPhone, candPhone)
			}
		}

		addressSim := -1.0
		if stubAddrNorm != "" && c.Address != "" {
			addressSim = levenshteinSimilarity(stubAddrNorm, normalizeAddress(c.Address))
		}

		score := weightedScore(nameSim, emailSim, websiteSim, phoneSim, addressSim)
		out = append(out, Candidate{SupplierID: c.SupplierID, Name: c.Name, Score: score})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

func exactMatchScore(a, b string) float64 {
	if a == b {
		return 1.0
	}
	return 0.0
}

func emailOrWebsiteDomain(email, website string) string {
	if d := domainOfEmail(email); d != "" {
		return d
	}
	return domainOf(website)
}

func domainOfEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(email[at+1:]))
}

func domainOf(website string) string {
	w := strings.ToLower(strings.TrimSpace(website))
	w = strings.TrimPrefix(w, "https://")
	w = strings.TrimPrefix(w, "http://")
	w = strings.TrimPrefix(w, "www.")
	if slash := strings.Index(w, "/"); slash >= 0 {
		w = w[:slash]
	}
	return w
}

func lastTenDigits(phone string) string {
	var digits strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	s := digits.String()
	if len(s) <= 10 {
		return s
	}
	return s[len(s)-10:]
}

func normalizeAddress(addr string) string {
	return Normalize(addr)
}

// levenshteinSimilarity converts classic edit distance into a [0,1]
// similarity score normalized by the longer string's length.
func levenshteinSimilarity(a, b string) float64 {
	if a == "" && b == "" {
		return 1.0
	}
	dist := levenshteinDistance(a, b)
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 1.0
	}
	return 1.0 - float64(dist)/float64(maxLen)
}

// levenshteinDistance is a standard two-row dynamic-programming edit
// distance over runes.
func levenshteinDistance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			del := prev[j] + 1
			ins := curr[j-1] + 1
			sub := prev[j-1] + cost
			curr[j] = min3(del, ins, sub)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}
