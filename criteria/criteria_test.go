package criteria

import (
	"testing"

	"github.com/arloliu/subwatch/types"
	"github.com/stretchr/testify/require"
)

func newTestValidator(t *testing.T) *Validator {
	t.Helper()

	v, err := NewValidator(NewCatalog(DefaultResourceTypes...))
	require.NoError(t, err)

	return v
}

func TestParse(t *testing.T) {
	q, err := Parse("Patient?name=Smith&gender=male,female&_id=p1")
	require.NoError(t, err)
	require.Equal(t, "Patient", q.ResourceType)
	require.Equal(t, []Param{
		{Name: "name", Field: "name", Values: []string{"Smith"}},
		{Name: "gender", Field: "gender", Values: []string{"male", "female"}},
		{Name: "_id", Field: "id", Values: []string{"p1"}},
	}, q.Params)

	q, err = Parse("/Observation")
	require.NoError(t, err)
	require.Equal(t, "Observation", q.ResourceType)
	require.Empty(t, q.Params)

	q, err = Parse("Patient?name=O%27Brien")
	require.NoError(t, err)
	require.Equal(t, []string{"O'Brien"}, q.Params[0].Values)
}

func TestParse_Malformed(t *testing.T) {
	cases := map[string]string{
		"empty":             "",
		"lowercase type":    "patient?name=Smith",
		"double equals":     "Patient?name==",
		"missing value":     "Patient?name=",
		"no equals":         "Patient?name",
		"modifier":          "Patient?name:exact=Smith",
		"control param":     "Patient?_count=10",
		"empty alternative": "Patient?gender=male,",
		"bad escape":        "Patient?name=%zz",
	}

	for name, criteria := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(criteria)
			require.ErrorIs(t, err, types.ErrMalformedQuery)
		})
	}
}

func TestValidator_Validate(t *testing.T) {
	v := newTestValidator(t)

	m, err := v.Validate("Patient?name=Smith")
	require.NoError(t, err)
	require.Equal(t, "Patient", m.ResourceType())
	require.Equal(t, "Patient?name=Smith", m.Criteria())
	require.Contains(t, m.Expression(), `"Smith"`)
}

func TestValidator_Rejects(t *testing.T) {
	v := newTestValidator(t)

	_, err := v.Validate("Patient?name==")
	require.ErrorIs(t, err, types.ErrInvalidCriteria)
	require.ErrorIs(t, err, types.ErrMalformedQuery)

	var ve *types.ValidationError
	require.ErrorAs(t, err, &ve)
	require.Equal(t, "Patient?name==", ve.Criteria)

	_, err = v.Validate("Spaceship?name=Enterprise")
	require.ErrorIs(t, err, types.ErrInvalidCriteria)
	require.ErrorIs(t, err, types.ErrUnknownResourceType)
}

func TestMatcher_Matches(t *testing.T) {
	v := newTestValidator(t)

	m, err := v.Validate("Patient?name=Smith&gender=male,female")
	require.NoError(t, err)

	tests := []struct {
		name         string
		resourceType string
		resource     map[string]any
		want         bool
	}{
		{"all fields match", "Patient", map[string]any{"name": "Smith", "gender": "female"}, true},
		{"wrong value", "Patient", map[string]any{"name": "Jones", "gender": "female"}, false},
		{"missing field", "Patient", map[string]any{"name": "Smith"}, false},
		{"other resource type", "Observation", map[string]any{"name": "Smith", "gender": "male"}, false},
		{"nil resource", "Patient", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := m.Matches(tt.resourceType, tt.resource)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestMatcher_MatchAll(t *testing.T) {
	v := newTestValidator(t)

	m, err := v.Validate("Observation")
	require.NoError(t, err)
	require.Equal(t, "true", m.Expression())

	got, err := m.Matches("Observation", map[string]any{"status": "final"})
	require.NoError(t, err)
	require.True(t, got)
}

func TestMatcher_IDParameter(t *testing.T) {
	v := newTestValidator(t)

	m, err := v.Validate("Patient?_id=p-1")
	require.NoError(t, err)

	got, err := m.Matches("Patient", map[string]any{"id": "p-1"})
	require.NoError(t, err)
	require.True(t, got)
}

func TestCatalog(t *testing.T) {
	c := NewCatalog("Patient", " ", "Observation")

	require.True(t, c.Contains("Patient"))
	require.False(t, c.Contains("patient"))
	require.Equal(t, []string{"Observation", "Patient"}, c.Names())
}
