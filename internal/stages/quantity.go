package stages

import (
	_ "embed"
	"regexp"
	"strconv"

	"gopkg.in/yaml.v3"
)

//go:embed quantity_patterns.yaml
var quantityPatternsYAML []byte

type quantityPatternsSpec struct {
	Patterns []string `yaml:"patterns"`
}

// packQuantityPatterns is the spec.md §4.6 quantity heuristic: a
// productName commonly encodes pack size the extraction model missed.
// Loaded once from quantity_patterns.yaml and applied in order; the
// first match wins.
var packQuantityPatterns = mustLoadQuantityPatterns()

func mustLoadQuantityPatterns() []*regexp.Regexp {
	var spec quantityPatternsSpec
	if err := yaml.Unmarshal(quantityPatternsYAML, &spec); err != nil {
		panic("stages: invalid quantity_patterns.yaml: " + err.Error())
	}
	out := make([]*regexp.Regexp, 0, len(spec.Patterns))
	for _, p := range spec.Patterns {
		out = append(out, regexp.MustCompile(p))
	}
	return out
}

// applyPackQuantityHeuristic replaces li.Quantity with a pack size
// recovered from li.ProductName, ONLY when the extraction returned
// quantity==1 and a pattern matches (spec.md §4.6). When quantity is
// replaced and TotalCost is nonzero (treated as authoritative),
// UnitCost is recomputed as TotalCost/quantity.
func applyPackQuantityHeuristic(li ExtractedLineItem) ExtractedLineItem {
	if li.Quantity != 1 {
		return li
	}
	for _, pat := range packQuantityPatterns {
		m := pat.FindStringSubmatch(li.ProductName)
		if m == nil {
			continue
		}
		qty, err := strconv.Atoi(m[1])
		if err != nil || qty <= 0 {
			continue
		}
		li.Quantity = qty
		if li.TotalCost > 0 {
			li.UnitCost = li.TotalCost / float64(qty)
		}
		return li
	}
	return li
}
