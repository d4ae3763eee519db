// Package normalize turns source identifiers (usually uploaded file names)
// into member names and family-name hints.
package normalize

import (
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/family-profiler/backend/internal/domain"
	"github.com/family-profiler/backend/pkg/config"
)

var spreadsheetExts = []string{".xlsx", ".xls", ".csv"}

// Identity is what can be recovered about a member from a source identifier.
type Identity struct {
	Name       string
	FamilyHint string
}

type Normalizer struct {
	knownNames  map[string]bool
	placeholder string
}

func NewNormalizer(cfg config.FamilyConfig) *Normalizer {
	n := &Normalizer{
		knownNames:  make(map[string]bool, len(cfg.KnownNames)),
		placeholder: cfg.MemberPlaceholder,
	}
	if n.placeholder == "" {
		n.placeholder = "family member"
	}
	for _, name := range cfg.KnownNames {
		if name = strings.TrimSpace(name); name != "" {
			n.knownNames[name] = true
		}
	}
	return n
}

// Resolve extracts the member name and an optional family-name hint from a
// reference such as "3f2c..._Eitan Levi.xlsx".
func (n *Normalizer) Resolve(reference string) Identity {
	tokens := strings.Fields(stripOpaquePrefix(baseName(reference)))

	id := Identity{Name: n.placeholder}
	if len(tokens) > 0 {
		id.Name = tokens[0]
	}
	for _, tok := range tokens {
		if n.knownNames[tok] {
			id.FamilyHint = tok
			break
		}
	}
	return id
}

func baseName(reference string) string {
	name := filepath.Base(strings.ReplaceAll(reference, "\\", "/"))
	if name == "." || name == "/" {
		return ""
	}
	lower := strings.ToLower(name)
	for _, ext := range spreadsheetExts {
		if strings.HasSuffix(lower, ext) {
			return name[:len(name)-len(ext)]
		}
	}
	return name
}

// stripOpaquePrefix drops a leading batch or upload id joined by "_".
// Only ids that look machine generated are stripped so that a name like
// "Dana_Levi" survives.
func stripOpaquePrefix(name string) string {
	prefix, rest, found := strings.Cut(name, "_")
	if !found || !isOpaqueID(prefix) {
		return name
	}
	return rest
}

func isOpaqueID(s string) bool {
	if _, err := uuid.Parse(s); err == nil {
		return true
	}
	if len(s) < 8 {
		return false
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F', r == '-':
		default:
			return false
		}
	}
	return true
}

var relationshipLabels = map[string]domain.Relationship{
	"אב":       domain.RelationshipFather,
	"אבא":      domain.RelationshipFather,
	"father":   domain.RelationshipFather,
	"dad":      domain.RelationshipFather,
	"אם":       domain.RelationshipMother,
	"אמא":      domain.RelationshipMother,
	"mother":   domain.RelationshipMother,
	"mom":      domain.RelationshipMother,
	"בן":       domain.RelationshipSon,
	"son":      domain.RelationshipSon,
	"בת":       domain.RelationshipDaughter,
	"daughter": domain.RelationshipDaughter,
}

// ParseRelationship maps a free-text relationship label onto the closed
// enum. Unrecognised labels are RelationshipUnknown.
func ParseRelationship(label string) domain.Relationship {
	label = strings.ToLower(strings.TrimSpace(label))
	if r := domain.Relationship(label); r.Valid() {
		return r
	}
	if r, ok := relationshipLabels[label]; ok {
		return r
	}
	return domain.RelationshipUnknown
}

// MajorityName returns the most frequent non-empty hint. Ties go to the hint
// seen first. ok is false when there are no hints at all.
func MajorityName(hints []string) (name string, ok bool) {
	counts := make(map[string]int)
	var order []string
	for _, h := range hints {
		if h == "" {
			continue
		}
		if counts[h] == 0 {
			order = append(order, h)
		}
		counts[h]++
	}

	best := 0
	for _, h := range order {
		if counts[h] > best {
			name, best = h, counts[h]
		}
	}
	return name, best > 0
}
