package claims

import (
	"reflect"
	"sort"
	"testing"
)

func TestString(t *testing.T) {
	claims := map[string]any{
		"name":   "  alice ",
		"number": 42,
	}

	if got := String(claims, "name"); got != "alice" {
		t.Errorf("expected trimmed value, got %q", got)
	}
	if got := String(claims, "number"); got != "" {
		t.Errorf("expected empty for non-string, got %q", got)
	}
	if got := String(claims, "missing"); got != "" {
		t.Errorf("expected empty for missing claim, got %q", got)
	}
}

func TestStrings(t *testing.T) {
	tests := []struct {
		name   string
		claims map[string]any
		want   []string
	}{
		{name: "interface slice", claims: map[string]any{"groups": []any{"a", 1, "b"}}, want: []string{"a", "b"}},
		{name: "string slice", claims: map[string]any{"groups": []string{"a"}}, want: []string{"a"}},
		{name: "single string", claims: map[string]any{"groups": "a"}, want: []string{"a"}},
		{name: "missing", claims: map[string]any{}, want: []string{}},
		{name: "wrong type", claims: map[string]any{"groups": 7}, want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Strings(tt.claims, "groups"); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestContainerRoles(t *testing.T) {
	claims := map[string]any{
		"realm_access": map[string]any{"roles": []any{"offline_access", "user"}},
		"broken":       "not-a-map",
	}

	if got := ContainerRoles(claims, "realm_access"); !reflect.DeepEqual(got, []string{"offline_access", "user"}) {
		t.Errorf("unexpected realm roles %v", got)
	}
	if got := ContainerRoles(claims, "broken"); len(got) != 0 {
		t.Errorf("expected no roles from malformed container, got %v", got)
	}
	if got := ContainerRoles(claims, "missing"); len(got) != 0 {
		t.Errorf("expected no roles from missing container, got %v", got)
	}
}

func TestNestedContainerRoles(t *testing.T) {
	claims := map[string]any{
		"resource_access": map[string]any{
			"client2": map[string]any{"roles": []any{"c"}},
			"client1": map[string]any{"roles": []any{"a", "b"}},
			"broken":  42,
		},
	}

	got := NestedContainerRoles(claims, "resource_access")
	sort.Strings(got)
	if !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Errorf("unexpected client roles %v", got)
	}

	if got := NestedContainerRoles(map[string]any{}, "resource_access"); len(got) != 0 {
		t.Errorf("expected nil for missing resource_access, got %v", got)
	}
}

func TestContainerRolesSkipNonStringElements(t *testing.T) {
	claims := map[string]any{
		"roles":        []any{"a", 1.0},
		"realm_access": map[string]any{"roles": []any{"b", 2.0}},
		"resource_access": map[string]any{
			"c1": map[string]any{"roles": []any{"c", true}},
			"c2": map[string]any{"roles": []any{nil, "d"}},
		},
	}

	if got := Strings(claims, "roles"); !reflect.DeepEqual(got, []string{"a"}) {
		t.Errorf("unexpected flat roles %v", got)
	}
	if got := ContainerRoles(claims, "realm_access"); !reflect.DeepEqual(got, []string{"b"}) {
		t.Errorf("unexpected realm roles %v", got)
	}
	if got := NestedContainerRoles(claims, "resource_access"); !reflect.DeepEqual(got, []string{"c", "d"}) {
		t.Errorf("unexpected client roles %v", got)
	}
}

func TestPathStrings(t *testing.T) {
	claims := map[string]any{
		"urn:app": map[string]any{
			"authz": map[string]any{"roles": []any{"auditor"}},
		},
	}

	if got := PathStrings(claims, "urn:app.authz.roles"); !reflect.DeepEqual(got, []string{"auditor"}) {
		t.Errorf("unexpected path values %v", got)
	}
	if got := PathStrings(claims, "urn:app.missing"); got != nil {
		t.Errorf("expected nil for missing path, got %v", got)
	}
	if got := PathStrings(claims, "urn:app..roles"); got != nil {
		t.Errorf("expected nil for empty segment, got %v", got)
	}
}
