// Package criteria validates subscription criteria and compiles them into executable matchers.
//
// Criteria use the search-URL form "ResourceType?param=value&param=v1,v2". The resource
// type must be part of the Catalog. Each parameter becomes an equality test against the
// same-named top-level field of the resource (comma-separated values are alternatives,
// "_id" tests the "id" field). The translated expression is compiled with CEL, for
// example:
//
//	Patient?name=Smith&gender=male,female
//
// becomes
//
//	("name" in resource && string(resource["name"]) == "Smith") &&
//	("gender" in resource && string(resource["gender"]) in ["male", "female"])
//
// Modifiers ("name:exact"), prefixes and chained parameters are rejected.
package criteria
