package criteria

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/arloliu/subwatch/types"
)

var (
	resourceTypePattern = regexp.MustCompile(`^[A-Z][A-Za-z]*$`)
	paramNamePattern    = regexp.MustCompile(`^(_id|[a-z][A-Za-z0-9-]*)$`)
)

// Param is one parsed criteria parameter.
type Param struct {
	// Name is the parameter name as written in the criteria.
	Name string

	// Field is the resource field the parameter tests.
	Field string

	// Values are alternatives; the parameter matches when the field equals any of them.
	Values []string
}

// Query is the parsed form of a criteria string.
type Query struct {
	ResourceType string
	Params       []Param
}

// ParseResourceType extracts the resource-type token from criteria.
//
// Returns:
//   - string: The token before "?", without a leading "/"
//   - error: ErrMalformedQuery when the token is missing or not a resource type name
func ParseResourceType(criteria string) (string, error) {
	criteria = strings.TrimSpace(criteria)
	if criteria == "" {
		return "", fmt.Errorf("%w: criteria is empty", types.ErrMalformedQuery)
	}

	token, _, _ := strings.Cut(criteria, "?")
	token = strings.TrimPrefix(token, "/")
	if !resourceTypePattern.MatchString(token) {
		return "", fmt.Errorf("%w: invalid resource type token %q", types.ErrMalformedQuery, token)
	}

	return token, nil
}

// Parse splits criteria into its resource type and parameters.
//
// Parse performs syntax checks only; resource-type resolution happens in the Validator.
func Parse(criteria string) (Query, error) {
	resourceType, err := ParseResourceType(criteria)
	if err != nil {
		return Query{}, err
	}

	q := Query{ResourceType: resourceType}

	_, rawQuery, found := strings.Cut(strings.TrimSpace(criteria), "?")
	if !found || rawQuery == "" {
		return q, nil
	}

	for _, part := range strings.Split(rawQuery, "&") {
		if part == "" {
			continue
		}

		rawName, rawValue, ok := strings.Cut(part, "=")
		if !ok {
			return Query{}, fmt.Errorf("%w: parameter %q has no value", types.ErrMalformedQuery, part)
		}

		name, err := url.QueryUnescape(rawName)
		if err != nil {
			return Query{}, fmt.Errorf("%w: parameter name %q: %w", types.ErrMalformedQuery, rawName, err)
		}
		if !paramNamePattern.MatchString(name) {
			return Query{}, fmt.Errorf("%w: unsupported parameter %q", types.ErrMalformedQuery, name)
		}

		value, err := url.QueryUnescape(rawValue)
		if err != nil {
			return Query{}, fmt.Errorf("%w: value of %q: %w", types.ErrMalformedQuery, name, err)
		}
		if value == "" || strings.Contains(value, "=") {
			return Query{}, fmt.Errorf("%w: invalid value %q for parameter %q", types.ErrMalformedQuery, value, name)
		}

		values := strings.Split(value, ",")
		for _, v := range values {
			if v == "" {
				return Query{}, fmt.Errorf("%w: empty alternative in %q", types.ErrMalformedQuery, name)
			}
		}

		field := name
		if name == "_id" {
			field = "id"
		}
		q.Params = append(q.Params, Param{Name: name, Field: field, Values: values})
	}

	return q, nil
}
