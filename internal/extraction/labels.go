package extraction

import (
	"sort"
	"strings"

	"github.com/family-profiler/backend/internal/domain"
)

// LabelResolver canonicalizes raw insurance-branch cells ("ביטוח חיים",
// "Car") into coverage labels by substring match against an alias table.
type LabelResolver struct {
	order   []string
	aliases map[string][]string
}

func NewLabelResolver(aliases map[string][]string) *LabelResolver {
	r := &LabelResolver{aliases: make(map[string][]string, len(aliases))}

	for canonical, list := range aliases {
		key := strings.ToLower(strings.TrimSpace(canonical))
		for _, a := range list {
			a = strings.ToLower(strings.TrimSpace(a))
			if a != "" {
				r.aliases[key] = append(r.aliases[key], a)
			}
		}
	}

	// catalog types first, in catalog order, then anything else sorted
	seen := make(map[string]bool)
	for _, c := range domain.DefaultCoverageCatalog {
		if _, ok := r.aliases[c]; ok {
			r.order = append(r.order, c)
			seen[c] = true
		}
	}
	var rest []string
	for c := range r.aliases {
		if !seen[c] {
			rest = append(rest, c)
		}
	}
	sort.Strings(rest)
	r.order = append(r.order, rest...)

	return r
}

// Resolve returns every canonical label the raw cell mentions. A cell that
// matches no alias is returned as-is, trimmed.
func (r *LabelResolver) Resolve(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	lower := strings.ToLower(raw)
	var out []string
	for _, canonical := range r.order {
		for _, alias := range r.aliases[canonical] {
			if strings.Contains(lower, alias) {
				out = append(out, canonical)
				break
			}
		}
	}

	if len(out) == 0 {
		return []string{raw}
	}
	return out
}
