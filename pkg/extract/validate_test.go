package extract

import (
	"errors"
	"strings"
	"testing"

	"github.com/maintkg/maintkg/pkg/schema"
)

func testRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	reg, err := schema.MaintenanceRegistry()
	if err != nil {
		t.Fatalf("MaintenanceRegistry() error: %v", err)
	}
	return reg
}

func validationKind(t *testing.T, err error) ValidationKind {
	t.Helper()
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected *ValidationError, got %T: %v", err, err)
	}
	return vErr.Kind
}

func TestValidateHappyPath(t *testing.T) {
	raw := `{
		"nodes": [
			{"id": "0", "label": "Machine", "properties": {"name": "Presse Fette 12"}},
			{"id": "1", "label": "Composant", "properties": {"name": "roulement SKF6205"}},
			{"id": "2", "label": "Technicien", "properties": {"name": "Martin"}}
		],
		"relationships": [
			{"type": "CONTIENT", "start_node_id": "0", "end_node_id": "1", "properties": {}},
			{"type": "INTERVIENT_SUR", "start_node_id": "2", "end_node_id": "0", "properties": {}}
		]
	}`

	out, err := Validate(raw, testRegistry(t))
	if err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	if len(out.Nodes) != 3 {
		t.Fatalf("got %d nodes, want 3", len(out.Nodes))
	}
	if len(out.Relationships) != 2 {
		t.Fatalf("got %d relationships, want 2", len(out.Relationships))
	}
	if len(out.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", out.Warnings)
	}
	if got := out.Nodes[0].Name(); got != "Presse Fette 12" {
		t.Errorf("node name = %q, want %q", got, "Presse Fette 12")
	}
}

func TestValidateMalformedJSON(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"empty", ""},
		{"whitespace only", "   \n\t"},
		{"plain prose", "I could not find any entities in this text."},
		{"truncated mid string", `{"nodes": [{"id": "0", "label": "Mach`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Validate(tt.raw, testRegistry(t))
			if err == nil {
				t.Fatalf("Validate(%q) = %+v, want error", tt.raw, out)
			}
			if kind := validationKind(t, err); kind != KindMalformedJSON {
				t.Errorf("kind = %q, want %q", kind, KindMalformedJSON)
			}
		})
	}
}

// Trailing commas and missing closing braces are common model output defects;
// the repair pass should recover both.
func TestValidateRepairsSloppyJSON(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{
			"trailing comma",
			`{"nodes": [{"id": "0", "label": "Machine", "properties": {"name": "Presse"},},], "relationships": []}`,
		},
		{
			"missing closing brace",
			`{"nodes": [{"id": "0", "label": "Machine", "properties": {"name": "Presse"}}], "relationships": []`,
		},
		{
			"fenced in markdown",
			"```json\n{\"nodes\": [{\"id\": \"0\", \"label\": \"Machine\", \"properties\": {\"name\": \"Presse\"}}], \"relationships\": []}\n```",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Validate(tt.raw, testRegistry(t))
			if err != nil {
				t.Fatalf("Validate() error: %v", err)
			}
			if len(out.Nodes) != 1 || out.Nodes[0].Name() != "Presse" {
				t.Errorf("nodes = %+v, want one node named Presse", out.Nodes)
			}
		})
	}
}

func TestValidateSchemaViolation(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"top-level array", `[{"id": "0"}]`},
		{"missing nodes key", `{"relationships": []}`},
		{"missing relationships key", `{"nodes": []}`},
		{"nodes not an array", `{"nodes": {"id": "0"}, "relationships": []}`},
		{"relationships not an array", `{"nodes": [], "relationships": "none"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Validate(tt.raw, testRegistry(t))
			if err == nil {
				t.Fatal("Validate() = nil error, want schema violation")
			}
			if kind := validationKind(t, err); kind != KindSchemaViolation {
				t.Errorf("kind = %q, want %q", kind, KindSchemaViolation)
			}
		})
	}
}

// A node missing its mandatory name is dropped with a warning; the rest of
// the response survives untouched.
func TestValidateDropsNodeWithoutName(t *testing.T) {
	raw := `{
		"nodes": [
			{"id": "0", "label": "Machine", "properties": {"name": "Presse Fette 12"}},
			{"id": "1", "label": "Composant", "properties": {"type": "roulement"}},
			{"id": "2", "label": "Panne", "properties": {"name": "vibration anormale"}}
		],
		"relationships": [
			{"type": "AFFECTE", "start_node_id": "2", "end_node_id": "0", "properties": {}}
		]
	}`

	out, err := Validate(raw, testRegistry(t))
	if err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	if len(out.Nodes) != 2 {
		t.Fatalf("got %d nodes, want 2: %+v", len(out.Nodes), out.Nodes)
	}
	for _, n := range out.Nodes {
		if n.LocalID == "1" {
			t.Errorf("node without name survived: %+v", n)
		}
	}
	if len(out.Relationships) != 1 {
		t.Errorf("got %d relationships, want 1", len(out.Relationships))
	}
	if len(out.Warnings) != 1 || !strings.Contains(out.Warnings[0], "name") {
		t.Errorf("warnings = %v, want one mentioning the name property", out.Warnings)
	}
}

func TestValidateDropsBadElements(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantNodes int
		wantRels  int
		warnHas   string
	}{
		{
			name: "unknown label",
			raw: `{"nodes": [
				{"id": "0", "label": "Spaceship", "properties": {"name": "Apollo"}},
				{"id": "1", "label": "Machine", "properties": {"name": "Presse"}}
			], "relationships": []}`,
			wantNodes: 1,
			warnHas:   "unknown label",
		},
		{
			name: "missing node id",
			raw: `{"nodes": [
				{"id": "", "label": "Machine", "properties": {"name": "Presse"}}
			], "relationships": []}`,
			wantNodes: 0,
			warnHas:   "no id",
		},
		{
			name: "duplicate node id keeps first",
			raw: `{"nodes": [
				{"id": "0", "label": "Machine", "properties": {"name": "Presse"}},
				{"id": "0", "label": "Composant", "properties": {"name": "roulement"}}
			], "relationships": []}`,
			wantNodes: 1,
			warnHas:   "more than once",
		},
		{
			name: "unknown relationship type",
			raw: `{"nodes": [
				{"id": "0", "label": "Machine", "properties": {"name": "Presse"}},
				{"id": "1", "label": "Composant", "properties": {"name": "roulement"}}
			], "relationships": [
				{"type": "ORBITS", "start_node_id": "0", "end_node_id": "1", "properties": {}}
			]}`,
			wantNodes: 2,
			wantRels:  0,
			warnHas:   "unknown type",
		},
		{
			name: "dangling relationship endpoint",
			raw: `{"nodes": [
				{"id": "0", "label": "Machine", "properties": {"name": "Presse"}}
			], "relationships": [
				{"type": "CONTIENT", "start_node_id": "0", "end_node_id": "99", "properties": {}}
			]}`,
			wantNodes: 1,
			wantRels:  0,
			warnHas:   "unknown end node",
		},
		{
			name: "relationship to a dropped node dangles",
			raw: `{"nodes": [
				{"id": "0", "label": "Machine", "properties": {"name": "Presse"}},
				{"id": "1", "label": "Spaceship", "properties": {"name": "Apollo"}}
			], "relationships": [
				{"type": "CONTIENT", "start_node_id": "0", "end_node_id": "1", "properties": {}}
			]}`,
			wantNodes: 1,
			wantRels:  0,
			warnHas:   "unknown end node",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Validate(tt.raw, testRegistry(t))
			if err != nil {
				t.Fatalf("Validate() error: %v", err)
			}
			if len(out.Nodes) != tt.wantNodes {
				t.Errorf("got %d nodes, want %d", len(out.Nodes), tt.wantNodes)
			}
			if len(out.Relationships) != tt.wantRels {
				t.Errorf("got %d relationships, want %d", len(out.Relationships), tt.wantRels)
			}
			found := false
			for _, w := range out.Warnings {
				if strings.Contains(w, tt.warnHas) {
					found = true
				}
			}
			if !found {
				t.Errorf("warnings %v, want one containing %q", out.Warnings, tt.warnHas)
			}
		})
	}
}

func TestValidateDuplicateIDKeepsFirst(t *testing.T) {
	raw := `{"nodes": [
		{"id": "0", "label": "Machine", "properties": {"name": "Presse"}},
		{"id": "0", "label": "Machine", "properties": {"name": "Tour CN"}}
	], "relationships": []}`

	out, err := Validate(raw, testRegistry(t))
	if err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	if len(out.Nodes) != 1 || out.Nodes[0].Name() != "Presse" {
		t.Errorf("nodes = %+v, want only the first occurrence", out.Nodes)
	}
}

func TestValidateCoercesDates(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  string
	}{
		{"iso passthrough", "2024-03-15", "2024-03-15"},
		{"slash format", "15/03/2024 10:30", "2024-03-15"},
		{"textual month", "March 15, 2024", "2024-03-15"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := `{"nodes": [
				{"id": "0", "label": "Action", "properties": {"name": "remplacement roulement", "date": "` + tt.value + `"}}
			], "relationships": []}`

			out, err := Validate(raw, testRegistry(t))
			if err != nil {
				t.Fatalf("Validate() error: %v", err)
			}
			if len(out.Nodes) != 1 {
				t.Fatalf("got %d nodes, want 1", len(out.Nodes))
			}
			got := out.Nodes[0].Properties["date"]
			if got == nil || *got != tt.want {
				t.Errorf("date = %v, want %q", got, tt.want)
			}
		})
	}
}

func TestValidateKeepsUncoercibleDateAsString(t *testing.T) {
	raw := `{"nodes": [
		{"id": "0", "label": "Action", "properties": {"name": "vidange", "date": "pendant la nuit"}}
	], "relationships": []}`

	out, err := Validate(raw, testRegistry(t))
	if err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	got := out.Nodes[0].Properties["date"]
	if got == nil || *got != "pendant la nuit" {
		t.Errorf("date = %v, want the original string preserved", got)
	}
	if len(out.Warnings) == 0 || !strings.Contains(out.Warnings[0], "coerce") {
		t.Errorf("warnings = %v, want a coercion warning", out.Warnings)
	}
}

func TestValidatePropertyStringification(t *testing.T) {
	raw := `{"nodes": [
		{"id": "0", "label": "Action", "properties": {
			"name": "remplacement roulement",
			"duree": 2.5,
			"planifiee": true,
			"reference": null
		}}
	], "relationships": []}`

	out, err := Validate(raw, testRegistry(t))
	if err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	props := out.Nodes[0].Properties

	if v := props["duree"]; v == nil || *v != "2.5" {
		t.Errorf("duree = %v, want %q", v, "2.5")
	}
	if v := props["planifiee"]; v == nil || *v != "true" {
		t.Errorf("planifiee = %v, want %q", v, "true")
	}
	if v, ok := props["reference"]; !ok || v != nil {
		t.Errorf("reference = %v (present=%t), want present and nil", v, ok)
	}
}
