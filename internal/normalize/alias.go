package normalize

import (
	"sort"
	"strings"
)

// explicitAliases lists per-field spellings that cannot be derived by the
// generic candidate rules, keyed by the canonical snake_case name.
var explicitAliases = map[string][]string{
	"location_id":     {"locationId", "LocationId", "locationID"},
	"person_id":       {"personId", "PersonId", "personID"},
	"workspace_id":    {"workspaceId", "WorkspaceId", "workspaceID"},
	"license_id":      {"licenseId", "LicenseId", "licenseID"},
	"virtual_line_id": {"virtualLineId", "VirtualLineId", "virtualLineID"},
	"group_id":        {"groupId", "GroupId", "groupID"},
	"phone_number":    {"phoneNumber", "PhoneNumber", "number"},
	"display_name":    {"displayName", "DisplayName"},
}

// AliasCandidates generates the candidate spellings for a canonical
// snake_case field name: verbatim, lower, upper, camelCase, PascalCase,
// underscore-stripped variants, plus any explicit per-field aliases.
func AliasCandidates(field string) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(name string) {
		if name == "" {
			return
		}
		if _, dup := seen[name]; dup {
			return
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}

	add(field)
	add(strings.ToLower(field))
	add(strings.ToUpper(field))

	camel := snakeToCamel(field)
	add(camel)
	if camel != "" {
		add(strings.ToUpper(camel[:1]) + camel[1:]) // PascalCase
	}
	add(strings.ReplaceAll(field, "_", ""))
	add(strings.ToLower(strings.ReplaceAll(field, "_", "")))

	for _, alias := range explicitAliases[field] {
		add(alias)
	}
	return out
}

func snakeToCamel(s string) string {
	parts := strings.Split(s, "_")
	if len(parts) == 0 {
		return s
	}
	var b strings.Builder
	b.WriteString(strings.ToLower(parts[0]))
	for _, p := range parts[1:] {
		if p == "" {
			continue
		}
		b.WriteString(strings.ToUpper(p[:1]))
		b.WriteString(strings.ToLower(p[1:]))
	}
	return b.String()
}

// Extract looks up the canonical field in a row, tolerating the aliasing
// conventions produced by different API generations. Matching is direct-key
// first (exact, then case-insensitive across alias candidates), then a
// depth-first search through nested maps and slices. Values that are empty
// per IsEmpty never match.
func Extract(row Row, field string) (any, bool) {
	if len(row) == 0 {
		return nil, false
	}
	candidates := AliasCandidates(field)

	for _, cand := range candidates {
		if v, ok := row[cand]; ok && !IsEmpty(v) {
			return v, true
		}
	}
	lowered := make(map[string]struct{}, len(candidates))
	for _, cand := range candidates {
		lowered[strings.ToLower(cand)] = struct{}{}
	}
	// Ambiguous rows (two keys matching the same candidate) must resolve the
	// same way on every run, so the scans walk keys in sorted order.
	keys := sortedKeys(row)
	for _, key := range keys {
		if _, ok := lowered[strings.ToLower(key)]; ok && !IsEmpty(row[key]) {
			return row[key], true
		}
	}
	for _, key := range keys {
		v := row[key]
		if IsEmpty(v) {
			continue
		}
		if found, ok := searchNested(v, lowered); ok {
			return found, true
		}
	}
	return nil, false
}

func sortedKeys(m Row) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func searchNested(v any, lowered map[string]struct{}) (any, bool) {
	switch t := v.(type) {
	case Row:
		keys := sortedKeys(t)
		for _, key := range keys {
			if _, ok := lowered[strings.ToLower(key)]; ok && !IsEmpty(t[key]) {
				return t[key], true
			}
		}
		for _, key := range keys {
			val := t[key]
			if IsEmpty(val) {
				continue
			}
			if found, ok := searchNested(val, lowered); ok {
				return found, true
			}
		}
	case []any:
		for _, item := range t {
			if IsEmpty(item) {
				continue
			}
			if found, ok := searchNested(item, lowered); ok {
				return found, true
			}
		}
	}
	return nil, false
}
