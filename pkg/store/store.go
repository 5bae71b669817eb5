package store

import (
	"context"
	"errors"
	"strings"
)

// ErrNodeNotFound is returned by GetNodeByKey when no node carries the key.
var ErrNodeNotFound = errors.New("node not found")

// Node is a persisted graph node. Key is the identity of the node across
// extractions: two mentions with the same key are the same node. ID is a
// stable opaque identifier assigned once at creation.
type Node struct {
	ID         string
	Label      string
	Key        string
	Name       string
	Properties map[string]*string
	Embedding  []float32
}

// Relationship is a persisted edge between two nodes, addressed by their
// keys. Edges are unique per (Type, StartKey, EndKey); writing the same
// edge again merges its properties.
type Relationship struct {
	Type       string
	StartKey   string
	EndKey     string
	Properties map[string]*string
}

// Subgraph is the result of a neighborhood fetch.
type Subgraph struct {
	Nodes         []Node
	Relationships []Relationship
}

// GraphStore persists and queries the property graph. Implementations must
// make PutNode and PutRelationship idempotent: re-writing the same key or
// edge updates in place instead of duplicating.
type GraphStore interface {
	GetNodeByKey(ctx context.Context, key string) (*Node, error)
	PutNode(ctx context.Context, node *Node) error
	PutRelationship(ctx context.Context, rel *Relationship) error

	// SimilarNodes returns up to topK nodes ordered by cosine similarity
	// to the given embedding. Nodes without an embedding are not matched.
	SimilarNodes(ctx context.Context, embedding []float32, topK int) ([]Node, error)

	// Neighborhood returns the given nodes plus every node one hop away,
	// with the edges between them.
	Neighborhood(ctx context.Context, keys []string) (*Subgraph, error)

	Close(ctx context.Context) error
}

// NodeKey derives the identity key for a node from its label and name.
// Name matching is case-insensitive and whitespace-insensitive so that
// "Presse  Fette 12" and "presse fette 12" resolve to the same node.
func NodeKey(label, name string) string {
	normalized := strings.ToLower(strings.TrimSpace(name))
	normalized = strings.Join(strings.Fields(normalized), " ")
	return label + "/" + normalized
}
