// Package supplier implements the dual-engine fuzzy Supplier Resolver
// (spec.md §4.4): name normalization shared by both backends, a
// trigram-similarity engine backed by Postgres pg_trgm, an in-process
// edit-distance engine, and the feature-flag router between them.
// Grounded on the teacher's hand-rolled numeric helpers (the jittered
// exponential backoff in internal/jobs/worker) rather than importing a
// string-metrics library for the small edit-distance kernel; and on
// gorm raw-SQL usage elsewhere in the teacher's repos/ layer for the
// trigram query.
package supplier

import "strings"

// businessSuffixes are stripped as whole tokens during normalization so
// "Acme Inc" and "Acme" normalize identically.
var businessSuffixes = map[string]bool{
	"inc": true, "llc": true, "ltd": true, "corp": true, "co": true,
	"gmbh": true, "sa": true, "ag": true, "pty": true, "plc": true,
	"limited": true, "corporation": true, "company": true, "the": true,
}

// Normalize applies the four-step rule both engines must agree on so
// the database column supplier.nameNormalized stays a valid join key
// between them (spec.md §4.4). It is idempotent: Normalize(Normalize(x))
// == Normalize(x).
func Normalize(name string) string {
	lower := strings.ToLower(name)

	var stripped strings.Builder
	for _, r := range lower {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == ' ' {
			stripped.WriteRune(r)
		} else {
			stripped.WriteRune(' ')
		}
	}

	fields := strings.Fields(stripped.String())
	kept := fields[:0]
	for _, tok := range fields {
		if businessSuffixes[tok] {
			continue
		}
		kept = append(kept, tok)
	}

	return strings.Join(kept, " ")
}
