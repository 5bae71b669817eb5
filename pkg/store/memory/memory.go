// Package memory provides an in-process GraphStore. It backs single-shot
// CLI runs that have no database at hand and serves as the reference
// implementation for the store contract in tests.
package memory

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/maintkg/maintkg/pkg/store"
)

type edgeKey struct {
	typ   string
	start string
	end   string
}

// Store keeps the whole graph in maps guarded by one RWMutex.
type Store struct {
	mu    sync.RWMutex
	nodes map[string]*store.Node
	edges map[edgeKey]*store.Relationship
}

func New() *Store {
	return &Store{
		nodes: make(map[string]*store.Node),
		edges: make(map[edgeKey]*store.Relationship),
	}
}

func (s *Store) GetNodeByKey(ctx context.Context, key string) (*store.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.nodes[key]
	if !ok {
		return nil, store.ErrNodeNotFound
	}
	cp := cloneNode(n)
	return &cp, nil
}

func (s *Store) PutNode(ctx context.Context, node *store.Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := cloneNode(node)
	s.nodes[node.Key] = &cp
	return nil
}

// PutRelationship upserts the edge keyed by (Type, StartKey, EndKey). On an
// existing edge, non-nil incoming properties overwrite stored ones.
func (s *Store) PutRelationship(ctx context.Context, rel *store.Relationship) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := edgeKey{typ: rel.Type, start: rel.StartKey, end: rel.EndKey}
	existing, ok := s.edges[k]
	if !ok {
		cp := cloneRelationship(rel)
		s.edges[k] = &cp
		return nil
	}
	if existing.Properties == nil {
		existing.Properties = make(map[string]*string, len(rel.Properties))
	}
	for pk, pv := range rel.Properties {
		if pv == nil {
			if _, seen := existing.Properties[pk]; !seen {
				existing.Properties[pk] = nil
			}
			continue
		}
		v := *pv
		existing.Properties[pk] = &v
	}
	return nil
}

func (s *Store) SimilarNodes(ctx context.Context, embedding []float32, topK int) ([]store.Node, error) {
	if topK <= 0 || len(embedding) == 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		node  *store.Node
		score float64
	}
	candidates := make([]scored, 0, len(s.nodes))
	for _, n := range s.nodes {
		if len(n.Embedding) == 0 {
			continue
		}
		candidates = append(candidates, scored{node: n, score: cosine(embedding, n.Embedding)})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].node.Key < candidates[j].node.Key
	})

	if topK > len(candidates) {
		topK = len(candidates)
	}
	out := make([]store.Node, 0, topK)
	for _, c := range candidates[:topK] {
		out = append(out, cloneNode(c.node))
	}
	return out, nil
}

func (s *Store) Neighborhood(ctx context.Context, keys []string) (*store.Subgraph, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	include := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if _, ok := s.nodes[k]; ok {
			include[k] = struct{}{}
		}
	}

	// One hop out from the seed set.
	var edges []*store.Relationship
	for _, e := range s.edges {
		_, startIn := include[e.StartKey]
		_, endIn := include[e.EndKey]
		if startIn || endIn {
			edges = append(edges, e)
		}
	}
	for _, e := range edges {
		include[e.StartKey] = struct{}{}
		include[e.EndKey] = struct{}{}
	}

	sub := &store.Subgraph{}
	nodeKeys := make([]string, 0, len(include))
	for k := range include {
		nodeKeys = append(nodeKeys, k)
	}
	sort.Strings(nodeKeys)
	for _, k := range nodeKeys {
		sub.Nodes = append(sub.Nodes, cloneNode(s.nodes[k]))
	}

	sort.Slice(edges, func(i, j int) bool {
		a, b := edges[i], edges[j]
		if a.StartKey != b.StartKey {
			return a.StartKey < b.StartKey
		}
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		return a.EndKey < b.EndKey
	})
	for _, e := range edges {
		sub.Relationships = append(sub.Relationships, cloneRelationship(e))
	}
	return sub, nil
}

func (s *Store) Close(ctx context.Context) error {
	return nil
}

func cloneNode(n *store.Node) store.Node {
	cp := *n
	if n.Properties != nil {
		cp.Properties = make(map[string]*string, len(n.Properties))
		for k, v := range n.Properties {
			if v == nil {
				cp.Properties[k] = nil
				continue
			}
			val := *v
			cp.Properties[k] = &val
		}
	}
	if n.Embedding != nil {
		cp.Embedding = append([]float32(nil), n.Embedding...)
	}
	return cp
}

func cloneRelationship(r *store.Relationship) store.Relationship {
	cp := *r
	if r.Properties != nil {
		cp.Properties = make(map[string]*string, len(r.Properties))
		for k, v := range r.Properties {
			if v == nil {
				cp.Properties[k] = nil
				continue
			}
			val := *v
			cp.Properties[k] = &val
		}
	}
	return cp
}

func cosine(a, b []float32) float64 {
	n := min(len(a), len(b))
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
