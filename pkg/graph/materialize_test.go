package graph

import (
	"context"
	"errors"
	"testing"

	"github.com/maintkg/maintkg/pkg/ai"
	"github.com/maintkg/maintkg/pkg/extract"
	"github.com/maintkg/maintkg/pkg/store"
	"github.com/maintkg/maintkg/pkg/store/memory"
)

func strptr(s string) *string { return &s }

type embedFunc func(ctx context.Context, input []byte) ([]float32, error)

// stubAI scripts the two calls the pipeline makes: completions for
// extraction and embeddings for similarity search.
type stubAI struct {
	completion    string
	completionErr error
	embed         embedFunc
}

func (s *stubAI) GenerateCompletion(ctx context.Context, prompt string, opts ...ai.GenerateOption) (string, error) {
	if s.completionErr != nil {
		return "", s.completionErr
	}
	return s.completion, nil
}

func (s *stubAI) GenerateCompletionWithFormat(ctx context.Context, name, description, prompt string, out any, opts ...ai.GenerateOption) error {
	return errors.New("stub: format mode not scripted")
}

func (s *stubAI) GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error) {
	if s.embed == nil {
		return nil, errors.New("stub: embeddings not scripted")
	}
	return s.embed(ctx, input)
}

func newMaterializer(t *testing.T, s store.GraphStore, embed embedFunc) *Materializer {
	t.Helper()
	params := NewMaterializerParams{Store: s}
	if embed != nil {
		params.AIClient = &stubAI{embed: embed}
	}
	m, err := NewMaterializer(params)
	if err != nil {
		t.Fatalf("NewMaterializer() error: %v", err)
	}
	return m
}

func extractionWith(nodes []extract.Node, rels []extract.Relationship) *extract.Extraction {
	return &extract.Extraction{Nodes: nodes, Relationships: rels}
}

func TestMaterializeCreatesNodesAndEdges(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	m := newMaterializer(t, s, nil)

	ext := extractionWith(
		[]extract.Node{
			{LocalID: "0", Label: "Machine", Properties: map[string]*string{"name": strptr("Presse Fette 12")}},
			{LocalID: "1", Label: "Composant", Properties: map[string]*string{"name": strptr("roulement SKF6205")}},
		},
		[]extract.Relationship{
			{Type: "CONTIENT", StartLocalID: "0", EndLocalID: "1"},
		},
	)

	report, err := m.Materialize(ctx, ext, "Case_0")
	if err != nil {
		t.Fatalf("Materialize() error: %v", err)
	}
	if report.NodesCreated != 2 || report.NodesMerged != 0 {
		t.Errorf("report = %+v, want 2 created, 0 merged", report)
	}
	if report.RelationshipsWritten != 1 {
		t.Errorf("relationships = %d, want 1", report.RelationshipsWritten)
	}

	node, err := s.GetNodeByKey(ctx, store.NodeKey("Machine", "Presse Fette 12"))
	if err != nil {
		t.Fatalf("GetNodeByKey() error: %v", err)
	}
	if node.ID == "" {
		t.Error("node stored without a generated ID")
	}
	if v := node.Properties["source"]; v == nil || *v != "Case_0" {
		t.Errorf("source = %v, want %q", v, "Case_0")
	}
}

// Mentions that differ only in case and spacing resolve to one node.
func TestMaterializeIdentityMerge(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	m := newMaterializer(t, s, nil)

	first := extractionWith([]extract.Node{
		{LocalID: "0", Label: "Machine", Properties: map[string]*string{"name": strptr("Presse Fette 12")}},
	}, nil)
	second := extractionWith([]extract.Node{
		{LocalID: "0", Label: "Machine", Properties: map[string]*string{
			"name": strptr("presse  FETTE 12"),
			"site": strptr("atelier 3"),
		}},
	}, nil)

	if _, err := m.Materialize(ctx, first, "Case_0"); err != nil {
		t.Fatal(err)
	}
	report, err := m.Materialize(ctx, second, "Case_1")
	if err != nil {
		t.Fatal(err)
	}
	if report.NodesCreated != 0 || report.NodesMerged != 1 {
		t.Errorf("report = %+v, want a merge, not a create", report)
	}

	node, err := s.GetNodeByKey(ctx, store.NodeKey("Machine", "Presse Fette 12"))
	if err != nil {
		t.Fatal(err)
	}
	// First mention fixed the display name; the later mention filled the gap.
	if node.Name != "Presse Fette 12" {
		t.Errorf("Name = %q, want the first mention kept", node.Name)
	}
	if v := node.Properties["site"]; v == nil || *v != "atelier 3" {
		t.Errorf("site = %v, want filled from the second mention", v)
	}
	if v := node.Properties["source"]; v == nil || *v != "Case_0" {
		t.Errorf("source = %v, want the first mention kept", v)
	}
}

func TestMaterializeExistingValuesWin(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	m := newMaterializer(t, s, nil)

	first := extractionWith([]extract.Node{
		{LocalID: "0", Label: "Composant", Properties: map[string]*string{
			"name":      strptr("roulement SKF6205"),
			"Référence": strptr("SKF6205"),
		}},
	}, nil)
	second := extractionWith([]extract.Node{
		{LocalID: "0", Label: "Composant", Properties: map[string]*string{
			"name":      strptr("roulement SKF6205"),
			"Référence": strptr("autre-ref"),
		}},
	}, nil)

	if _, err := m.Materialize(ctx, first, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Materialize(ctx, second, ""); err != nil {
		t.Fatal(err)
	}

	node, err := s.GetNodeByKey(ctx, store.NodeKey("Composant", "roulement SKF6205"))
	if err != nil {
		t.Fatal(err)
	}
	if v := node.Properties["Référence"]; v == nil || *v != "SKF6205" {
		t.Errorf("Référence = %v, want the first value kept", v)
	}
}

func TestMaterializeIdempotent(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	m := newMaterializer(t, s, nil)

	ext := extractionWith(
		[]extract.Node{
			{LocalID: "0", Label: "Machine", Properties: map[string]*string{"name": strptr("presse")}},
			{LocalID: "1", Label: "Panne", Properties: map[string]*string{"name": strptr("vibration")}},
		},
		[]extract.Relationship{
			{Type: "AFFECTE", StartLocalID: "1", EndLocalID: "0"},
		},
	)

	if _, err := m.Materialize(ctx, ext, "Case_0"); err != nil {
		t.Fatal(err)
	}
	report, err := m.Materialize(ctx, ext, "Case_0")
	if err != nil {
		t.Fatal(err)
	}
	if report.NodesCreated != 0 {
		t.Errorf("second run created %d nodes, want 0", report.NodesCreated)
	}

	sub, err := s.Neighborhood(ctx, []string{store.NodeKey("Machine", "presse")})
	if err != nil {
		t.Fatal(err)
	}
	if len(sub.Nodes) != 2 || len(sub.Relationships) != 1 {
		t.Errorf("graph = %d nodes %d edges, want unchanged 2/1", len(sub.Nodes), len(sub.Relationships))
	}
}

func TestMaterializeDropsUnresolvedRelationship(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	m := newMaterializer(t, s, nil)

	ext := extractionWith(
		[]extract.Node{
			{LocalID: "0", Label: "Machine", Properties: map[string]*string{"name": strptr("presse")}},
		},
		[]extract.Relationship{
			{Type: "CONTIENT", StartLocalID: "0", EndLocalID: "missing"},
		},
	)

	report, err := m.Materialize(ctx, ext, "")
	if err != nil {
		t.Fatalf("Materialize() error: %v", err)
	}
	if report.RelationshipsWritten != 0 {
		t.Errorf("relationships = %d, want 0", report.RelationshipsWritten)
	}
	if len(report.Warnings) != 1 {
		t.Errorf("warnings = %v, want one drop warning", report.Warnings)
	}
}

func TestMaterializeEmbedsNodes(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	m := newMaterializer(t, s, func(ctx context.Context, input []byte) ([]float32, error) {
		return []float32{1, 2, 3}, nil
	})

	ext := extractionWith([]extract.Node{
		{LocalID: "0", Label: "Machine", Properties: map[string]*string{"name": strptr("presse")}},
	}, nil)
	if _, err := m.Materialize(ctx, ext, ""); err != nil {
		t.Fatal(err)
	}

	node, err := s.GetNodeByKey(ctx, store.NodeKey("Machine", "presse"))
	if err != nil {
		t.Fatal(err)
	}
	if len(node.Embedding) != 3 {
		t.Errorf("embedding = %v, want the generated vector", node.Embedding)
	}
}

// batchStubAI additionally exposes the batch embedding API, so the
// materializer's pre-embedding pass takes the batched path.
type batchStubAI struct {
	stubAI
	batchCalls int
}

func (s *batchStubAI) GenerateEmbeddings(ctx context.Context, inputs [][]byte) ([][]float32, error) {
	s.batchCalls++
	out := make([][]float32, len(inputs))
	for i := range inputs {
		out[i] = []float32{float32(i) + 1}
	}
	return out, nil
}

func TestMaterializeBatchesEmbeddings(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	client := &batchStubAI{}
	m, err := NewMaterializer(NewMaterializerParams{Store: s, AIClient: client})
	if err != nil {
		t.Fatal(err)
	}

	ext := extractionWith([]extract.Node{
		{LocalID: "0", Label: "Machine", Properties: map[string]*string{"name": strptr("presse")}},
		{LocalID: "1", Label: "Composant", Properties: map[string]*string{"name": strptr("roulement")}},
		{LocalID: "2", Label: "Machine", Properties: map[string]*string{"name": strptr("PRESSE")}},
	}, nil)
	if _, err := m.Materialize(ctx, ext, ""); err != nil {
		t.Fatal(err)
	}

	// Two distinct keys, one provider call.
	if client.batchCalls != 1 {
		t.Errorf("batch calls = %d, want 1", client.batchCalls)
	}

	node, err := s.GetNodeByKey(ctx, store.NodeKey("Machine", "presse"))
	if err != nil {
		t.Fatal(err)
	}
	if len(node.Embedding) == 0 {
		t.Error("node stored without its batched embedding")
	}
}

func TestMaterializeEmbeddingFailureIsNotFatal(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	m := newMaterializer(t, s, func(ctx context.Context, input []byte) ([]float32, error) {
		return nil, errors.New("embedding service down")
	})

	ext := extractionWith([]extract.Node{
		{LocalID: "0", Label: "Machine", Properties: map[string]*string{"name": strptr("presse")}},
	}, nil)

	report, err := m.Materialize(ctx, ext, "")
	if err != nil {
		t.Fatalf("Materialize() error: %v", err)
	}
	if report.NodesCreated != 1 {
		t.Errorf("created = %d, want the node stored unembedded", report.NodesCreated)
	}
}
