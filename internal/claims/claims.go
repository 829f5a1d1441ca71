// Package claims provides helpers for reading values out of verified token
// payloads. All helpers are null-safe: absent or malformed claims yield zero
// values instead of errors so callers decide which claims are mandatory.
package claims

import (
	"reflect"
	"sort"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// RoleContainer is the nested role format used by Keycloak style identity
// providers, e.g. realm_access: {"roles": ["a", "b"]}. Roles is kept
// untyped so non-string elements can be skipped one by one.
type RoleContainer struct {
	Roles any `mapstructure:"roles"`
}

// String returns the trimmed string value of key, or "" if the claim is absent
// or not a string.
func String(claims map[string]any, key string) string {
	value, ok := claims[key]
	if !ok {
		return ""
	}

	stringValue, ok := value.(string)
	if !ok {
		return ""
	}

	return strings.TrimSpace(stringValue)
}

// Strings returns the values of a flat list claim. A single string claim is
// treated as a one element list. Non-string elements are skipped.
func Strings(claims map[string]any, key string) []string {
	value, ok := claims[key]
	if !ok {
		return []string{}
	}

	return toStrings(value)
}

// PathStrings resolves a dotted claim path and returns the string values found
// there. Missing paths yield nil.
func PathStrings(claims map[string]any, path string) []string {
	value, ok := Resolve(claims, path)
	if !ok {
		return nil
	}

	return toStrings(value)
}

// Resolve walks a dotted claim path such as "realm_access.roles".
func Resolve(claims map[string]any, path string) (any, bool) {
	segments := strings.Split(strings.TrimSpace(path), ".")
	if len(segments) == 0 {
		return nil, false
	}

	var current any = claims
	for _, segment := range segments {
		normalizedSegment := strings.TrimSpace(segment)
		if normalizedSegment == "" {
			return nil, false
		}

		next, ok := mapLookup(current, normalizedSegment)
		if !ok {
			return nil, false
		}
		current = next
	}

	return current, true
}

// ContainerRoles decodes claims[key] as a RoleContainer and returns its roles.
// A missing or malformed container contributes no roles.
func ContainerRoles(claims map[string]any, key string) []string {
	raw, ok := claims[key]
	if !ok || raw == nil {
		return nil
	}

	return decodeContainer(raw)
}

// NestedContainerRoles treats claims[key] as a map of client name to
// RoleContainer and returns the union of all client roles. Clients are visited
// in sorted order; malformed entries are skipped.
func NestedContainerRoles(claims map[string]any, key string) []string {
	raw, ok := claims[key]
	if !ok || raw == nil {
		return nil
	}

	var clients map[string]any
	if err := mapstructure.Decode(raw, &clients); err != nil {
		return nil
	}

	names := make([]string, 0, len(clients))
	for name := range clients {
		names = append(names, name)
	}
	sort.Strings(names)

	roles := make([]string, 0)
	for _, name := range names {
		roles = append(roles, decodeContainer(clients[name])...)
	}

	return roles
}

func decodeContainer(raw any) []string {
	var container RoleContainer
	if err := mapstructure.Decode(raw, &container); err != nil {
		return nil
	}

	if container.Roles == nil {
		return nil
	}
	return toStrings(container.Roles)
}

func toStrings(value any) []string {
	switch typed := value.(type) {
	case string:
		if strings.TrimSpace(typed) == "" {
			return []string{}
		}
		return []string{strings.TrimSpace(typed)}
	case []string:
		result := make([]string, 0, len(typed))
		result = append(result, typed...)
		return result
	case []any:
		result := make([]string, 0, len(typed))
		for _, item := range typed {
			if str, ok := item.(string); ok {
				result = append(result, str)
			}
		}
		return result
	default:
		return []string{}
	}
}

func mapLookup(value any, key string) (any, bool) {
	if typed, ok := value.(map[string]any); ok {
		found, exists := typed[key]
		return found, exists
	}

	rv := reflect.ValueOf(value)
	if !rv.IsValid() || rv.Kind() != reflect.Map {
		return nil, false
	}

	if rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}

	mapValue := rv.MapIndex(reflect.ValueOf(key).Convert(rv.Type().Key()))
	if !mapValue.IsValid() {
		return nil, false
	}

	return mapValue.Interface(), true
}
