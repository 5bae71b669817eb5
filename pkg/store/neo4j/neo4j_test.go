package neo4j

import (
	"testing"
)

func TestValidIdentifier(t *testing.T) {
	tests := []struct {
		in      string
		wantErr bool
	}{
		{"Machine", false},
		{"CONTRIBUE_A", false},
		{"Entity", false},
		{"", true},
		{"Machine Label", true},
		{"Machine`) DETACH DELETE (n", true},
		{"1Machine", true},
		{"Machine-X", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			err := validIdentifier(tt.in)
			if (err != nil) != tt.wantErr {
				t.Errorf("validIdentifier(%q) error = %v, wantErr %t", tt.in, err, tt.wantErr)
			}
		})
	}
}

func TestPropsParamSkipsNil(t *testing.T) {
	v := "2024-03-15"
	got := propsParam(map[string]*string{"date": &v, "note": nil})
	if len(got) != 1 {
		t.Fatalf("got %v, want only the non-nil property", got)
	}
	if got["date"] != "2024-03-15" {
		t.Errorf("date = %v, want %q", got["date"], "2024-03-15")
	}
}

func TestNodeFromProps(t *testing.T) {
	node := nodeFromProps(map[string]any{
		"id":        "abc123",
		"key":       "Machine/presse fette 12",
		"label":     "Machine",
		"name":      "Presse Fette 12",
		"embedding": []any{0.5, 0.25},
		"site":      "atelier 3",
	})
	if node.ID != "abc123" || node.Label != "Machine" || node.Key != "Machine/presse fette 12" {
		t.Errorf("identity fields wrong: %+v", node)
	}
	if len(node.Embedding) != 2 || node.Embedding[0] != 0.5 {
		t.Errorf("embedding = %v, want [0.5 0.25]", node.Embedding)
	}
	if v := node.Properties["site"]; v == nil || *v != "atelier 3" {
		t.Errorf("site = %v, want %q", v, "atelier 3")
	}
	if v := node.Properties["name"]; v == nil || *v != "Presse Fette 12" {
		t.Errorf("name property = %v, want mirrored from the name field", v)
	}
}
