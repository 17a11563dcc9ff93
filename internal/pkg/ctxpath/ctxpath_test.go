package ctxpath

import "testing"

func TestLookup(t *testing.T) {
	ctx := map[string]any{
		"daysSinceActive": 7,
		"user": map[string]any{
			"firstName": "Ana",
			"prefs":     map[string]string{"locale": "pt"},
			"nothing":   nil,
		},
		"a.b": "literal",
	}

	tests := []struct {
		path   string
		want   any
		wantOK bool
	}{
		{"daysSinceActive", 7, true},
		{"user.firstName", "Ana", true},
		{"user.prefs.locale", "pt", true},
		{"a.b", "literal", true},
		{"user.lastName", nil, false},
		{"user.firstName.x", nil, false},
		{"user.nothing", nil, false},
		{"missing.path", nil, false},
		{"", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, ok := Lookup(ctx, tt.path)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("Lookup(%q) = %v, %v; want %v, %v", tt.path, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestLookup_NilContext(t *testing.T) {
	if Has(nil, "x") {
		t.Error("nil context should never resolve")
	}
}
