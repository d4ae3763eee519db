package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/family-profiler/backend/internal/domain"
	"github.com/family-profiler/backend/pkg/config"
)

func newTestNormalizer() *Normalizer {
	return NewNormalizer(config.Default().Family)
}

func TestResolve(t *testing.T) {
	n := newTestNormalizer()

	tests := []struct {
		name      string
		reference string
		want      Identity
	}{
		{
			name:      "uuid prefix is stripped",
			reference: "uploads/9b2d4c1e-8f3a-4b6e-9d21-7a5c3e1f0b42_איתן לוי.xlsx",
			want:      Identity{Name: "איתן", FamilyHint: "לוי"},
		},
		{
			name:      "hex prefix is stripped",
			reference: "a1b2c3d4e5_Dana כהן.xls",
			want:      Identity{Name: "Dana", FamilyHint: "כהן"},
		},
		{
			name:      "short prefix is part of the name",
			reference: "Dana_Levi.xlsx",
			want:      Identity{Name: "Dana_Levi"},
		},
		{
			name:      "first known token wins",
			reference: "נועה ברק מזרחי.xlsx",
			want:      Identity{Name: "נועה", FamilyHint: "ברק"},
		},
		{
			name:      "extension is case insensitive",
			reference: "Yoav.XLSX",
			want:      Identity{Name: "Yoav"},
		},
		{
			name:      "nothing left becomes placeholder",
			reference: "0f0f0f0f0f_.xlsx",
			want:      Identity{Name: "family member"},
		},
		{
			name:      "empty reference",
			reference: "",
			want:      Identity{Name: "family member"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, n.Resolve(tt.reference))
		})
	}
}

func TestResolve_Deterministic(t *testing.T) {
	n := newTestNormalizer()
	ref := "7e57e57e-0000-4000-8000-000000000001_מיכל הר.xlsx"
	assert.Equal(t, n.Resolve(ref), n.Resolve(ref))
}

func TestParseRelationship(t *testing.T) {
	assert.Equal(t, domain.RelationshipFather, ParseRelationship("אב"))
	assert.Equal(t, domain.RelationshipMother, ParseRelationship(" Mother "))
	assert.Equal(t, domain.RelationshipSon, ParseRelationship("בן"))
	assert.Equal(t, domain.RelationshipDaughter, ParseRelationship("child-daughter"))
	assert.Equal(t, domain.RelationshipUnknown, ParseRelationship("cousin"))
	assert.Equal(t, domain.RelationshipUnknown, ParseRelationship(""))
}

func TestMajorityName(t *testing.T) {
	name, ok := MajorityName([]string{"לוי", "כהן", "כהן", "", "לוי", "ברק"})
	assert.True(t, ok)
	assert.Equal(t, "לוי", name, "tie goes to the first seen")

	name, ok = MajorityName([]string{"ברק", "כהן", "כהן"})
	assert.True(t, ok)
	assert.Equal(t, "כהן", name)

	_, ok = MajorityName([]string{"", ""})
	assert.False(t, ok)

	_, ok = MajorityName(nil)
	assert.False(t, ok)
}
