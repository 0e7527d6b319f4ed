package oauthprovider

import "strings"

// extractScope inspects a dynamic-registration response for a scope in
// priority order: scope, default_scope, scopes[], default_scopes[], falling
// back to DefaultScope when none are present. Registration responses from
// different authorization servers disagree on which of these fields they
// populate and whether the value is a string or an array; this accepts
// whichever shape shows up rather than treating the others as an error.
func extractScope(response map[string]interface{}) string {
	if s := stringField(response, "scope"); s != "" {
		return s
	}
	if s := stringField(response, "default_scope"); s != "" {
		return s
	}
	if s := arrayField(response, "scopes"); s != "" {
		return s
	}
	if s := arrayField(response, "default_scopes"); s != "" {
		return s
	}
	return DefaultScope
}

func stringField(m map[string]interface{}, key string) string {
	v, ok := m[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

func arrayField(m map[string]interface{}, key string) string {
	v, ok := m[key]
	if !ok {
		return ""
	}
	items, ok := v.([]interface{})
	if !ok {
		return ""
	}
	var parts []string
	for _, item := range items {
		if s, ok := item.(string); ok && s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}
