package criteria

import (
	"slices"
	"strings"
)

// DefaultResourceTypes is the resource-type catalog used when none is configured.
var DefaultResourceTypes = []string{
	"AllergyIntolerance",
	"Appointment",
	"CarePlan",
	"Condition",
	"DiagnosticReport",
	"Encounter",
	"Immunization",
	"MedicationRequest",
	"Observation",
	"Organization",
	"Patient",
	"Practitioner",
	"Procedure",
	"Subscription",
}

// Catalog is an immutable set of known resource types.
type Catalog struct {
	types map[string]struct{}
}

// NewCatalog builds a catalog from resource type names. Blank names are skipped.
func NewCatalog(resourceTypes ...string) Catalog {
	c := Catalog{types: make(map[string]struct{}, len(resourceTypes))}
	for _, rt := range resourceTypes {
		rt = strings.TrimSpace(rt)
		if rt != "" {
			c.types[rt] = struct{}{}
		}
	}

	return c
}

// Contains reports whether the catalog knows resourceType. Matching is case-sensitive.
func (c Catalog) Contains(resourceType string) bool {
	_, ok := c.types[resourceType]
	return ok
}

// Names returns the sorted resource type names.
func (c Catalog) Names() []string {
	names := make([]string, 0, len(c.types))
	for rt := range c.types {
		names = append(names, rt)
	}
	slices.Sort(names)

	return names
}
