package jsonl

import (
	"context"
	"strings"
	"testing"

	"github.com/maintkg/maintkg/pkg/loader"
)

func TestReader(t *testing.T) {
	input := strings.Join([]string{
		`{"id": "doc-1", "text": "remplacement du roulement SKF6205"}`,
		``,
		`{"id": 2, "text": "fuite hydraulique"}`,
		`{"id": "doc-3", "text": "   "}`,
		`{"text": "vidange complete"}`,
	}, "\n")

	records, err := loader.ReadAll(context.Background(), NewReader(strings.NewReader(input), "reports.jsonl", Options{}))
	if err != nil {
		t.Fatalf("ReadAll() error: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("got %d records, want 3 (blank and empty-text lines skipped)", len(records))
	}
	if records[0].ID != "doc-1" || records[0].Text != "remplacement du roulement SKF6205" {
		t.Errorf("record 0 = %+v", records[0])
	}
	if records[1].ID != "2" {
		t.Errorf("numeric id = %q, want %q", records[1].ID, "2")
	}
	if records[2].ID != "line_5" {
		t.Errorf("fallback id = %q, want %q", records[2].ID, "line_5")
	}
}

func TestReaderCustomFields(t *testing.T) {
	input := `{"ref": "r1", "commentaire": "changement filtre"}`
	records, err := loader.ReadAll(context.Background(),
		NewReader(strings.NewReader(input), "x.jsonl", Options{TextField: "commentaire", IDField: "ref"}))
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].ID != "r1" || records[0].Text != "changement filtre" {
		t.Errorf("records = %+v", records)
	}
}

func TestReaderRejectsNonObject(t *testing.T) {
	_, err := loader.ReadAll(context.Background(),
		NewReader(strings.NewReader(`["not", "an", "object"]`), "x.jsonl", Options{}))
	if err == nil {
		t.Error("ReadAll() = nil error, want parse failure")
	}
}
